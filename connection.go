package monetdb

import (
	"context"
	"database/sql/driver"
	"errors"
	"time"

	"github.com/MonetDB/go-monetdb/internal/protocol"
)

// Conn is a database/sql/driver.Conn wrapping one protocol.Connection
// and the single protocol.Cursor statements on it share, grounded on
// go-hdb/driver/connection.go's Conn (SPEC_FULL.md §4.K). database/sql
// already guarantees a driver.Conn is used by one goroutine at a time,
// so Conn adds no lock of its own — correctness against the pool's own
// concurrent Close (eviction) relies entirely on the core's mutex
// (spec.md §4.F/§5).
type Conn struct {
	core   *protocol.Connection
	cur    *protocol.Cursor
	cfg    *Config
	logger connLogger
}

var (
	_ driver.Conn              = (*Conn)(nil)
	_ driver.ConnBeginTx       = (*Conn)(nil)
	_ driver.ExecerContext     = (*Conn)(nil)
	_ driver.QueryerContext    = (*Conn)(nil)
	_ driver.Pinger            = (*Conn)(nil)
	_ driver.SessionResetter   = (*Conn)(nil)
	_ driver.NamedValueChecker = (*Conn)(nil)
)

// runCancellable runs fn on its own goroutine and races it against
// ctx.Done, following go-hdb/driver/connection.go's
// QueryContext/ExecContext pattern: a cancelled context abandons the
// goroutine's result (the Connection itself is left to the next
// operation's runLocked call to discover is unusable, if it ever
// returns) rather than blocking the caller forever.
func (c *Conn) runCancellable(ctx context.Context, fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-done:
		return err
	}
}

func (c *Conn) execLocked(ctx context.Context, query string) error {
	start := time.Now()
	c.logger.tracef(ctx, "execute", "query", query)
	err := c.runCancellable(ctx, func() error { return c.cur.Execute(ctx, query) })
	defaultMetrics.observeRoundtrip(int64(time.Since(start)))
	defaultMetrics.query()
	if err != nil {
		c.logger.errorf(ctx, "execute failed", err)
	}
	return err
}

// Prepare implements driver.Conn.
func (c *Conn) Prepare(query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

// PrepareContext implements driver.ConnPrepareContext.
func (c *Conn) PrepareContext(ctx context.Context, query string) (driver.Stmt, error) {
	return &stmt{conn: c, query: query}, nil
}

// Close implements driver.Conn. Per spec.md §7 "Drop-time errors", the
// cursor's own best-effort drain/flush errors are swallowed; only the
// Connection's own Close error is surfaced.
func (c *Conn) Close() error {
	_ = c.cur.Close()
	err := c.core.Close()
	defaultMetrics.gauge(gaugeConn, -1)
	return err
}

// Begin implements driver.Conn.
func (c *Conn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// BeginTx implements driver.ConnBeginTx. Only the default isolation
// level is supported — MAPI exposes no isolation-level wire knob in this
// spec's scope.
func (c *Conn) BeginTx(ctx context.Context, opts driver.TxOptions) (driver.Tx, error) {
	if opts.Isolation != driver.IsolationLevel(0) {
		return nil, errors.New("monetdb: only the default transaction isolation level is supported")
	}
	if err := c.execLocked(ctx, "START TRANSACTION"); err != nil {
		return nil, mapErr(err)
	}
	return &tx{conn: c}, nil
}

// Ping implements driver.Pinger.
func (c *Conn) Ping(ctx context.Context) error {
	if err := c.execLocked(ctx, "SELECT 1"); err != nil {
		return mapErr(err)
	}
	return nil
}

// ResetSession implements driver.SessionResetter: a pooled connection is
// handed back for reuse as-is, since every statement already drains its
// own reply before the next request — there is no per-statement server
// state (like an open transaction left dangling) that needs resetting
// beyond what execLocked already guarantees, save for the Connection
// being closed underneath the pool.
func (c *Conn) ResetSession(ctx context.Context) error {
	if c.core.Closed() {
		return driver.ErrBadConn
	}
	return nil
}

// ExecContext implements driver.ExecerContext.
func (c *Conn) ExecContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	if len(args) != 0 {
		return nil, ErrNoBindParameters
	}
	if err := c.execLocked(ctx, query); err != nil {
		return nil, mapErr(err)
	}
	affected, _ := c.cur.AffectedRows()
	return execResult{affected: affected}, nil
}

// QueryContext implements driver.QueryerContext.
func (c *Conn) QueryContext(ctx context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	if len(args) != 0 {
		return nil, ErrNoBindParameters
	}
	if err := c.execLocked(ctx, query); err != nil {
		return nil, mapErr(err)
	}
	defaultMetrics.gauge(gaugeCursor, 1)
	return &Rows{conn: c, cols: c.cur.Columns(), converter: c.cfg.getConverter()}, nil
}

// CheckNamedValue implements driver.NamedValueChecker by rejecting every
// argument. Prepared statements never get this far (stmt.NumInput
// reports 0, so database/sql rejects their arguments itself); for an
// Exec or Query called with arguments directly on the connection,
// database/sql consults this for each argument and the call fails here.
func (c *Conn) CheckNamedValue(nv *driver.NamedValue) error {
	return errors.New("monetdb: bind parameters are not supported")
}

type execResult struct {
	affected int64
}

func (r execResult) LastInsertId() (int64, error) {
	return 0, errors.New("monetdb: LastInsertId is not supported")
}

func (r execResult) RowsAffected() (int64, error) {
	if r.affected < 0 {
		return 0, nil
	}
	return r.affected, nil
}
