// Package monetdb is a client-side driver for the MonetDB MAPI wire
// protocol: a database/sql driver built on an internal block-framing,
// handshake, and reply/cursor core, plus a low-level entry point for
// applications that want the core's own Connection/Cursor API directly.
package monetdb

import (
	"context"

	"github.com/MonetDB/go-monetdb/internal/protocol"
)

// Connection is the low-level, non-database/sql handle onto a MonetDB
// session, wrapping the core protocol.Connection directly (SPEC_FULL.md
// §6, grounded on original_source/src/conn.rs's Connection::new /
// Connection::cursor — the one place this repo keeps the original
// implementation's own shape instead of routing everything through
// database/sql).
type Connection struct {
	core *protocol.Connection
}

// Open dials and authenticates a Connection without going through
// database/sql at all.
func Open(ctx context.Context, cfg *Config) (*Connection, error) {
	params, err := cfg.validate()
	if err != nil {
		return nil, err
	}
	core, err := protocol.Connect(ctx, params, nil)
	if err != nil {
		return nil, err
	}
	defaultMetrics.gauge(gaugeConn, 1)
	return &Connection{core: core}, nil
}

// Cursor returns a new Cursor sharing this Connection's socket and
// server state.
func (c *Connection) Cursor() *Cursor {
	return &Cursor{core: c.core.NewCursor()}
}

// Close closes the underlying connection.
func (c *Connection) Close() error {
	defaultMetrics.gauge(gaugeConn, -1)
	return c.core.Close()
}

// Cursor is the low-level, typed-getter cursor returned by
// Connection.Cursor, wrapping protocol.Cursor. Its getters use the core
// Cursor's own conversions; the Config's convert.Converter is not
// consulted here.
type Cursor struct {
	core *protocol.Cursor
}

// Execute sends sql as a new statement and parses the server's reply.
func (c *Cursor) Execute(ctx context.Context, sql string) error {
	return c.core.Execute(ctx, sql)
}

// HasResultSet reports whether the cursor is positioned on a result set.
func (c *Cursor) HasResultSet() bool { return c.core.HasResultSet() }

// AffectedRows returns the current reply's row count, if any.
func (c *Cursor) AffectedRows() (int64, bool) { return c.core.AffectedRows() }

// Columns returns the current result set's column descriptions.
func (c *Cursor) Columns() []protocol.ColumnDesc { return c.core.Columns() }

// NextReply advances to the next reply in a multi-statement response.
func (c *Cursor) NextReply() (bool, error) { return c.core.NextReply() }

// NextRow advances to the next row of the current result set.
func (c *Cursor) NextRow(ctx context.Context) (bool, error) { return c.core.NextRow(ctx) }

// GetStr, GetBool, GetI32, GetI64, GetF64 are thin typed-getter
// passthroughs to the core Cursor, matching spec.md §4.I's seed-test
// surface directly.
func (c *Cursor) GetStr(col int) (string, bool, error) { return c.core.GetStr(col) }
func (c *Cursor) GetBool(col int) (bool, bool, error)   { return c.core.GetBool(col) }
func (c *Cursor) GetI32(col int) (int32, bool, error)   { return c.core.GetI32(col) }
func (c *Cursor) GetI64(col int) (int64, bool, error)   { return c.core.GetI64(col) }
func (c *Cursor) GetF64(col int) (float64, bool, error) { return c.core.GetF64(col) }

// Close drains and releases the cursor.
func (c *Cursor) Close() error { return c.core.Close() }
