package monetdb

import (
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/MonetDB/go-monetdb/convert"
	"github.com/MonetDB/go-monetdb/internal/protocol"
	"github.com/MonetDB/go-monetdb/internal/transport"
)

// Config default and bound values, mirroring go-hdb's connAttrs constants.
const (
	defaultReplySize      = 0 // 0 means "all rows in the first reply"
	defaultDialTimeout    = 30 * time.Second
	defaultTCPKeepAlive   = 15 * time.Second
	minDialTimeout        = 0 * time.Second
)

// Config is the programmatic analogue of the core's validated parameters
// (spec.md §3 "ValidatedParams"). It is a plain struct, not a DSN: parsing
// a connection URL is explicitly out of scope for this repo (spec.md §1),
// so applications populate Config directly or via an external DSN package.
// Config is mutex-guarded so a *Connector built from it can be shared and
// safely reconfigured, mirroring go-hdb's connAttrs.
type Config struct {
	mu sync.RWMutex

	user     string
	password string
	database string

	host     string
	unixPath string
	port     int

	tls       bool
	tlsPolicy transport.TLSVerify
	certHash  []byte
	rootCAs   *x509.CertPool
	tlsServerName string

	replySize int
	autocommit bool
	timezoneSeconds *int

	clientInfo        bool
	clientApplication string
	clientRemark      string

	dialTimeout  time.Duration
	tcpKeepAlive time.Duration
	dialer       transport.Dialer

	logger        *slog.Logger
	protocolTrace bool

	converter convert.Converter
}

// NewConfig returns a Config with go-hdb-style defaults applied.
func NewConfig(user, password, database string) *Config {
	return &Config{
		user:         user,
		password:     password,
		database:     database,
		replySize:    defaultReplySize,
		autocommit:   true,
		dialTimeout:  defaultDialTimeout,
		tcpKeepAlive: defaultTCPKeepAlive,
		dialer:       transport.DefaultDialer,
		logger:       slog.Default(),
		converter:    convert.Default{},
	}
}

func (c *Config) SetConverter(conv convert.Converter) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.converter = conv
	return c
}

func (c *Config) getConverter() convert.Converter {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.converter == nil {
		return convert.Default{}
	}
	return c.converter
}

func (c *Config) SetHost(host string, port int) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host, c.port, c.unixPath = host, port, ""
	return c
}

func (c *Config) SetUnixSocket(path string) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.unixPath, c.host = path, ""
	return c
}

func (c *Config) SetTLS(serverName string) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tls = true
	c.tlsPolicy = transport.TLSVerifySystem
	c.tlsServerName = serverName
	return c
}

// SetTLSCertHash pins the server certificate's SHA-256 fingerprint,
// given as a hex string (the monetdbs:// certhash= convention), bypassing
// name and chain verification.
func (c *Config) SetTLSCertHash(hexHash string) error {
	sum, err := hex.DecodeString(hexHash)
	if err != nil {
		return fmt.Errorf("monetdb: invalid TLS cert hash: %w", err)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tls = true
	c.tlsPolicy = transport.TLSVerifyHash
	c.certHash = sum
	return nil
}

func (c *Config) SetTLSRootCAFiles(files ...string) error {
	pool := x509.NewCertPool()
	for _, fn := range files {
		pem, err := os.ReadFile(fn)
		if err != nil {
			return err
		}
		if ok := pool.AppendCertsFromPEM(pem); !ok {
			return fmt.Errorf("monetdb: failed to parse root certificate %q", fn)
		}
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tls = true
	c.tlsPolicy = transport.TLSVerifyCert
	c.rootCAs = pool
	return nil
}

func (c *Config) SetReplySize(n int) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replySize = n
	return c
}

func (c *Config) SetAutocommit(on bool) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.autocommit = on
	return c
}

func (c *Config) SetTimezoneSeconds(seconds int) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	v := seconds
	c.timezoneSeconds = &v
	return c
}

func (c *Config) SetClientInfo(application, remark string) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.clientInfo = true
	c.clientApplication = application
	c.clientRemark = remark
	return c
}

func (c *Config) SetDialTimeout(d time.Duration) *Config {
	if d < minDialTimeout {
		d = minDialTimeout
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialTimeout = d
	return c
}

func (c *Config) SetTCPKeepAlive(d time.Duration) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tcpKeepAlive = d
	return c
}

func (c *Config) SetDialer(d transport.Dialer) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.dialer = d
	return c
}

func (c *Config) SetLogger(l *slog.Logger) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.logger = l
	return c
}

func (c *Config) SetProtocolTrace(on bool) *Config {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.protocolTrace = on
	return c
}

func (c *Config) logging() (*slog.Logger, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	l := c.logger
	if l == nil {
		l = slog.Default()
	}
	return l, c.protocolTrace
}

// validate produces the protocol.Params the core consumes. This is the one
// narrow place the ambient layer touches the "validate connection
// parameters" contract spec.md §1 keeps out of scope for the core itself;
// it performs no URL parsing, only field presence/range checks.
func (c *Config) validate() (*protocol.Params, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.user == "" {
		return nil, fmt.Errorf("monetdb: Config.user is required")
	}
	if c.database == "" {
		return nil, fmt.Errorf("monetdb: Config.database is required")
	}
	var target transport.Target
	switch {
	case c.unixPath != "":
		target = transport.Target{UnixPath: c.unixPath}
	case c.host != "":
		port := c.port
		if port == 0 {
			port = 50000
		}
		target = transport.Target{Host: c.host, Port: port}
	default:
		return nil, fmt.Errorf("monetdb: Config needs either a host or a Unix socket path")
	}

	policy := transport.TLSPolicy{
		Verify:     c.tlsPolicy,
		CertHash:   c.certHash,
		RootCAs:    c.rootCAs,
		ServerName: c.tlsServerName,
	}

	return &protocol.Params{
		User:                   c.user,
		Password:               c.password,
		Database:               c.database,
		Language:               "sql",
		ReplySize:              c.replySize,
		Autocommit:             c.autocommit,
		ConnectTimezoneSeconds: c.timezoneSeconds,
		ClientInfo:             c.clientInfo,
		ClientApplication:      c.clientApplication,
		ClientRemark:           c.clientRemark,
		Transport:              target,
		TLS:                    c.tls,
		TLSPolicy:              policy,
		Dialer:                 c.dialer,
		DialTimeoutSecs:        int(c.dialTimeout / time.Second),
		TCPKeepAlive:           c.tcpKeepAlive,
	}, nil
}
