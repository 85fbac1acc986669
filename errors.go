package monetdb

import (
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/MonetDB/go-monetdb/internal/protocol"
)

// ErrNoBindParameters is returned when a query or exec is given
// arguments: MAPI has no prepared-statement bind-parameter wire format
// in this spec's scope (spec.md's "no SQL parsing" non-goal), so
// applications must substitute values into the query text themselves.
var ErrNoBindParameters = errors.New("monetdb: bind parameters are not supported; substitute values into the query text")

// mapErr translates a core protocol error into what database/sql
// expects: driver.ErrBadConn for anything that leaves the Connection
// unusable (so the connection pool evicts and retries), unchanged
// otherwise so application code sees the original message (SPEC_FULL.md
// §7).
func mapErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, protocol.ErrFatal) {
		return driver.ErrBadConn
	}
	// Transport IO errors: the core drops the socket on these.
	var opErr *net.OpError
	if errors.As(err, &opErr) || errors.Is(err, net.ErrClosed) || errors.Is(err, io.ErrClosedPipe) {
		return driver.ErrBadConn
	}
	return err
}
