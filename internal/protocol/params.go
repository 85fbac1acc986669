package protocol

import (
	"context"
	"net"
	"time"

	"github.com/MonetDB/go-monetdb/internal/transport"
)

// Params is the validated-parameters input contract described in
// spec.md §3. The core treats it as immutable once a Connection has
// been established. Resolving a DSN or URL into a Params is explicitly
// out of scope for this package (spec.md §1); callers construct it
// directly or via the root package's Config.validate().
type Params struct {
	User     string
	Password string // plaintext, or "\x01"-prefixed pre-hashed
	Database string
	Language string // only "sql" is exercised by the core

	ReplySize int  // 0 means "all rows in the first reply"
	Autocommit bool
	// ConnectTimezoneSeconds, if non-nil, is sent as the session time
	// zone (seconds east of UTC) during the post-login handshake.
	ConnectTimezoneSeconds *int

	ClientInfo         bool
	ClientApplication  string
	ClientRemark       string

	// Transport selects exactly one of UnixPath or Host/Port.
	Transport transport.Target
	TLS       bool
	TLSPolicy transport.TLSPolicy

	Dialer          transport.Dialer
	DialTimeoutSecs int
	TCPKeepAlive    time.Duration
}

// dial resolves Params into a live net.Conn, performing the Unix
// protocol-byte handshake and optional TLS wrap.
func (p *Params) dial(ctx context.Context) (net.Conn, error) {
	opts := transport.DialerOptions{
		Timeout:      time.Duration(p.DialTimeoutSecs) * time.Second,
		TCPKeepAlive: p.TCPKeepAlive,
	}
	conn, err := transport.Dial(ctx, p.Dialer, p.Transport, opts)
	if err != nil {
		return nil, err
	}
	if p.TLS {
		wrapped, err := transport.WrapTLS(ctx, conn, p.TLSPolicy)
		if err != nil {
			conn.Close()
			return nil, err
		}
		conn = wrapped
	}
	return conn, nil
}

// ServerState is the per-connection mutable state primed by the
// handshake and subsequently updated by SQL (spec.md §3).
type ServerState struct {
	InitialAutocommit bool
	ReplySize         int
	TimeZoneSeconds   int32

	ServerVersion string
	Environment   map[string]string
	PrehashAlgo   string
}
