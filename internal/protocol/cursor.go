package protocol

import (
	"context"
	"fmt"
	"net"
	"strconv"
)

// Cursor is the per-statement reply/row driver sharing one Connection
// (spec.md §3 "Cursor", §4.I). It is not safe for concurrent use by
// multiple goroutines — callers that need concurrent statements open
// multiple Cursors on the same Connection, which serialize naturally on
// the Connection's mutex.
type Cursor struct {
	conn   *Connection
	parser *replyParser
}

// Execute drains any reply left over from a previous Execute, then sends
// sql as a new request (piggy-backing any commands the delayed queue
// accumulated since the last request) and parses the server's reply
// (spec.md §4.I "Execute").
func (c *Cursor) Execute(ctx context.Context, sql string) error {
	if err := c.drain(); err != nil {
		return err
	}

	var buf []byte
	var delayedErr error
	err := c.conn.runLocked(func(_ *ServerState, delayed *delayedCommands, sock net.Conn) (net.Conn, error) {
		mw := newMessageWriter(sock)
		extra := []byte("s" + sql + "\n;")
		if err := delayed.sendPlus(mw, extra); err != nil {
			return nil, err
		}
		mr := newMessageReader(sock)
		delayedErr = delayed.receive(mr)
		raw, err := mr.readWholeMessage()
		if err != nil {
			return nil, err
		}
		buf = raw
		return sock, nil
	})
	if err != nil {
		return err
	}

	parser, perr := newReplyParser(buf)
	if perr != nil {
		return perr
	}
	c.parser = parser

	if errText, hasErr := detectErrors(buf); hasErr {
		c.drain()
		return &ServerError{Text: errText}
	}
	if delayedErr != nil {
		return delayedErr
	}
	return nil
}

// drain consumes whatever reply is currently loaded, purely by walking
// the in-memory buffer (no network I/O): any close-pending result ids
// encountered along the way are queued as Xclose commands on the
// Connection's delayed queue, to be piggy-backed on the next request
// (spec.md §9 "Result-set closure scheduling").
func (c *Cursor) drain() error {
	if c.parser == nil {
		return nil
	}
	var closeIDs []uint64
	for !c.parser.exhausted() {
		id, err := c.parser.advance()
		if err != nil {
			return err
		}
		if id != nil {
			closeIDs = append(closeIDs, *id)
		}
	}
	if len(closeIDs) == 0 {
		return nil
	}
	return c.conn.runLocked(func(_ *ServerState, delayed *delayedCommands, sock net.Conn) (net.Conn, error) {
		for _, id := range closeIDs {
			delayed.add(fmt.Sprintf("Xclose %d", id), fmt.Sprintf("close %d", id))
		}
		return sock, nil
	})
}

// Close drains the current reply and eagerly flushes and acknowledges
// any pending delayed commands, rather than leaving them for a request
// that will never come. Errors are swallowed: a Cursor going out of
// scope behaves like the original implementation's Drop, where recovery
// is not meaningful (spec.md §7 "Drop-time errors").
func (c *Cursor) Close() error {
	_ = c.drain()
	_ = c.conn.runLocked(func(_ *ServerState, delayed *delayedCommands, sock net.Conn) (net.Conn, error) {
		if delayed.empty() {
			return sock, nil
		}
		mw := newMessageWriter(sock)
		if err := delayed.send(mw); err != nil {
			return nil, err
		}
		mr := newMessageReader(sock)
		_ = delayed.receive(mr)
		return sock, nil
	})
	return nil
}

// HasResultSet reports whether the cursor is currently positioned on a
// result set.
func (c *Cursor) HasResultSet() bool {
	return c.parser != nil && c.parser.current().Kind == replyResultSet
}

// AffectedRows returns the row count carried by the current reply: the
// declared total for a result set, the update count for an update
// reply, false for anything else. Negative counts (the server's "don't
// know" sentinel) pass through unchanged (DESIGN.md "affected_rows kept
// signed").
func (c *Cursor) AffectedRows() (int64, bool) {
	if c.parser == nil {
		return 0, false
	}
	switch r := c.parser.current(); r.Kind {
	case replyUpdateOk:
		return r.Affected, true
	case replyResultSet:
		return int64(r.ResultSet.TotalRows), true
	default:
		return 0, false
	}
}

// Columns returns the current result set's column descriptions, or nil
// if the cursor is not positioned on a result set.
func (c *Cursor) Columns() []ColumnDesc {
	if !c.HasResultSet() {
		return nil
	}
	return c.parser.current().ResultSet.Columns
}

// NextReply advances to the next reply in the current multi-statement
// response, returning false once the whole response is exhausted
// (spec.md §4.I "Next reply").
func (c *Cursor) NextReply() (bool, error) {
	if c.parser == nil || c.parser.exhausted() {
		return false, nil
	}
	id, err := c.parser.advance()
	if err != nil {
		return false, err
	}
	if id != nil {
		if err := c.enqueueClose(*id); err != nil {
			return false, err
		}
	}
	return !c.parser.exhausted(), nil
}

func (c *Cursor) enqueueClose(id uint64) error {
	return c.conn.runLocked(func(_ *ServerState, delayed *delayedCommands, sock net.Conn) (net.Conn, error) {
		delayed.add(fmt.Sprintf("Xclose %d", id), fmt.Sprintf("close %d", id))
		return sock, nil
	})
}

// NextRow advances to the next row of the current result set,
// auto-skipping over any non-result-set replies it finds first (but
// never past exhaustion, which fails with ErrNoResultSet), and fetching
// further windows from the server as the current window runs dry
// (spec.md §4.I "Next row").
func (c *Cursor) NextRow(ctx context.Context) (bool, error) {
	for {
		if c.parser == nil || c.parser.exhausted() {
			return false, ErrNoResultSet
		}
		r := c.parser.current()
		if r.Kind != replyResultSet {
			ok, err := c.NextReply()
			if err != nil {
				return false, err
			}
			if !ok {
				return false, ErrNoResultSet
			}
			continue
		}

		rs := r.ResultSet
		has, err := rs.Window.advance()
		if err != nil {
			return false, err
		}
		if has {
			rs.NextRow++
			return true, nil
		}
		if rs.NextRow >= rs.TotalRows {
			return false, nil
		}
		if err := c.fetchMoreRows(ctx, rs); err != nil {
			return false, err
		}
	}
}

// fetchMoreRows issues `Xexport {result_id} {next_row} {n}` for the next
// window of rs and swaps it in. The window it displaces is kept in
// StashedFirstWindow only the first time this happens, because the
// initial header-aligned window is the one that reads from the reply
// parser's own buffer: replyParser.advance finishes it to find the reply
// that follows this result set (spec.md §4.I "Refetch",
// §9 "Stashed first window").
func (c *Cursor) fetchMoreRows(ctx context.Context, rs *ResultSet) error {
	start := rs.NextRow

	var buf []byte
	err := c.conn.runLocked(func(state *ServerState, delayed *delayedCommands, sock net.Conn) (net.Conn, error) {
		n := rs.TotalRows - start
		if state.ReplySize > 0 && uint64(state.ReplySize) < n {
			n = uint64(state.ReplySize)
		}
		cmd := []byte(fmt.Sprintf("Xexport %d %d %d\n", rs.ResultID, start, n))

		mw := newMessageWriter(sock)
		if err := delayed.sendPlus(mw, cmd); err != nil {
			return nil, err
		}
		mr := newMessageReader(sock)
		if err := delayed.receive(mr); err != nil {
			return nil, err
		}
		raw, err := mr.readWholeMessage()
		if err != nil {
			return nil, err
		}
		buf = raw
		return sock, nil
	})
	if err != nil {
		return err
	}

	if len(buf) > 0 && buf[0] == '!' {
		line, _, lerr := readLine(buf, 0)
		if lerr != nil {
			return lerr
		}
		return &ServerError{Text: line[1:]}
	}
	_, _, headerEnd, err := parseExportHeader(buf, 0, len(rs.Columns))
	if err != nil {
		return err
	}

	newWindow := newRowWindow(buf, len(rs.Columns))
	newWindow.pos = headerEnd

	old := rs.Window
	rs.Window = newWindow
	if !rs.usingInitialWindow {
		// not the header-aligned window: nothing downstream depends on
		// its buffer staying alive.
	} else {
		rs.StashedFirstWindow = old
		rs.usingInitialWindow = false
	}
	return nil
}

// --- typed getters -------------------------------------------------
//
// These provide the baseline conversions spec.md's own testable
// properties exercise directly against the core. A richer, pluggable
// conversion surface (spec.md §1 "conversion collaborator") lives above
// this package, in the convert package; it works on the raw field bytes
// RawField returns and exists alongside these rather than replacing them.

// RawField returns the raw decoded bytes for column col of the current
// row, for use by a conversion layer built on top of this package
// (spec.md §4.I "conversion collaborator").
func (c *Cursor) RawField(col int) ([]byte, bool, error) {
	return c.rawField(col)
}

func (c *Cursor) rawField(col int) ([]byte, bool, error) {
	if !c.HasResultSet() {
		return nil, false, ErrNoResultSet
	}
	cols := c.parser.current().ResultSet.Columns
	if col < 0 || col >= len(cols) {
		return nil, false, badReplyErr("ColumnIndexOutOfBounds", fmt.Sprintf("column index %d out of range", col))
	}
	data, isNull := c.parser.current().ResultSet.Window.getFieldRaw(col)
	return data, isNull, nil
}

// GetStr returns column col of the current row decoded as a string.
func (c *Cursor) GetStr(col int) (string, bool, error) {
	data, isNull, err := c.rawField(col)
	if err != nil || isNull {
		return "", isNull, err
	}
	return string(data), false, nil
}

// GetBool returns column col of the current row decoded as a bool.
func (c *Cursor) GetBool(col int) (bool, bool, error) {
	data, isNull, err := c.rawField(col)
	if err != nil || isNull {
		return false, isNull, err
	}
	switch string(data) {
	case "true", "t", "1":
		return true, false, nil
	case "false", "f", "0":
		return false, false, nil
	default:
		return false, false, &ConversionError{Column: col, Type: "bool", Err: fmt.Errorf("unrecognized boolean literal %q", data)}
	}
}

// GetI64 returns column col of the current row decoded as an int64.
func (c *Cursor) GetI64(col int) (int64, bool, error) {
	data, isNull, err := c.rawField(col)
	if err != nil || isNull {
		return 0, isNull, err
	}
	v, perr := strconv.ParseInt(string(data), 10, 64)
	if perr != nil {
		return 0, false, &ConversionError{Column: col, Type: "int64", Err: perr}
	}
	return v, false, nil
}

// GetI32 returns column col of the current row decoded as an int32.
func (c *Cursor) GetI32(col int) (int32, bool, error) {
	v, isNull, err := c.GetI64(col)
	if err != nil || isNull {
		return 0, isNull, err
	}
	return int32(v), false, nil
}

// GetF64 returns column col of the current row decoded as a float64.
func (c *Cursor) GetF64(col int) (float64, bool, error) {
	data, isNull, err := c.rawField(col)
	if err != nil || isNull {
		return 0, isNull, err
	}
	v, perr := strconv.ParseFloat(string(data), 64)
	if perr != nil {
		return 0, false, &ConversionError{Column: col, Type: "float64", Err: perr}
	}
	return v, false, nil
}
