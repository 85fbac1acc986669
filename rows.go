package monetdb

import (
	"context"
	"database/sql/driver"
	"io"

	"github.com/MonetDB/go-monetdb/convert"
	"github.com/MonetDB/go-monetdb/internal/protocol"
)

// Rows implements driver.Rows over the Conn's shared Cursor, delegating
// each field's decode to a convert.Converter (SPEC_FULL.md §4.L).
type Rows struct {
	conn      *Conn
	cols      []protocol.ColumnDesc
	converter convert.Converter
	closed    bool
}

var _ driver.Rows = (*Rows)(nil)

// Columns implements driver.Rows.
func (r *Rows) Columns() []string {
	names := make([]string, len(r.cols))
	for i, c := range r.cols {
		names[i] = c.Name
	}
	return names
}

// Close implements driver.Rows. It does not eagerly drain the
// underlying reply: the Cursor drains whatever is left the next time
// Execute is called (spec.md §4.I "Execute"), so an abandoned Rows
// costs nothing extra beyond the next statement's own drain.
func (r *Rows) Close() error {
	if !r.closed {
		defaultMetrics.gauge(gaugeCursor, -1)
	}
	r.closed = true
	return nil
}

// Next implements driver.Rows.
func (r *Rows) Next(dest []driver.Value) error {
	if r.closed {
		return io.EOF
	}
	ok, err := r.conn.cur.NextRow(context.Background())
	if err != nil {
		return mapErr(err)
	}
	if !ok {
		return io.EOF
	}
	for i := range dest {
		raw, isNull, err := r.conn.cur.RawField(i)
		if err != nil {
			return err
		}
		v, err := r.converter.Convert(raw, isNull, r.cols[i].Type)
		if err != nil {
			return err
		}
		dest[i] = v
	}
	return nil
}
