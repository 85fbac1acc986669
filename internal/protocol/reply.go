package protocol

import (
	"strconv"
	"strings"
)

// replyKind is the tagged state a Reply is eagerly promoted to, per
// spec.md §4.G / §9 ("the parser eagerly promotes each reply to a
// typed state... consumers in languages without tagged unions should
// model this as an interface with variant structs").
type replyKind int

const (
	replyExhausted replyKind = iota
	replyError
	replyUpdateOk
	replyOtherOk
	replyAutocommitChange
	replyResultSet
)

// MonetType describes a result column's SQL type (spec.md §3). It is a
// plain struct rather than a sum type: Width is meaningful for
// varchar-like types, Precision/Scale for decimal types, and both are
// zero otherwise. Interpreting Name into a Go value is the conversion
// collaborator's job (convert.Converter), not this package's.
type MonetType struct {
	Name      string
	Width     int
	Precision int
	Scale     int
}

// ColumnDesc is one result column's metadata (spec.md §3).
type ColumnDesc struct {
	Name string // "table.column"
	Type MonetType
}

// ResultSet is the state of an in-progress result set (spec.md §3).
type ResultSet struct {
	ResultID  uint64
	NextRow   uint64
	TotalRows uint64
	Columns   []ColumnDesc

	Window             *rowWindow
	StashedFirstWindow *rowWindow
	usingInitialWindow bool

	// ClosePending holds the result id that must be released with
	// Xclose once the cursor moves past this result set, set iff the
	// initial reply delivered fewer rows than TotalRows.
	ClosePending *uint64
}

// Reply is one parsed reply section (spec.md §4.G).
type Reply struct {
	Kind         replyKind
	ServerErr    *ServerError // set iff Kind == replyError
	Affected     int64        // set iff Kind == replyUpdateOk
	AutocommitOn bool         // set iff Kind == replyAutocommitChange
	ResultSet    *ResultSet   // set iff Kind == replyResultSet

	// headerEnd is the buffer offset just past this reply's header (and,
	// for a result set, its five metadata lines) — the point from which
	// row data (if any) begins.
	headerEnd int
}

// detectErrors scans buf for a `!` at offset 0 or immediately after any
// '\n', returning the text of the first server error found anywhere in
// the (possibly multi-reply) buffer. This is the cross-reply scan
// execute uses as its definitive error signal, because the server may
// emit acknowledgements for earlier statements before the error for a
// later one (spec.md §4.G).
func detectErrors(buf []byte) (string, bool) {
	if len(buf) > 0 && buf[0] == '!' {
		return firstLine(buf[1:]), true
	}
	for i := 0; i+1 < len(buf); i++ {
		if buf[i] == '\n' && buf[i+1] == '!' {
			return firstLine(buf[i+2:]), true
		}
	}
	return "", false
}

func firstLine(b []byte) string {
	if i := indexByte(b, '\n'); i >= 0 {
		return string(b[:i])
	}
	return string(b)
}

func indexByte(b []byte, c byte) int {
	for i, x := range b {
		if x == c {
			return i
		}
	}
	return -1
}

// parseReply parses exactly one reply starting at buf[pos:]. It returns
// the decoded Reply; for non-result-set kinds headerEnd is the position
// just past the single header line, for a result set it is the
// position just past the five metadata lines (i.e. where row data, if
// any, begins).
func parseReply(buf []byte, pos int) (Reply, error) {
	if pos >= len(buf) {
		return Reply{Kind: replyExhausted, headerEnd: pos}, nil
	}

	switch {
	case buf[pos] == '!':
		line, end, err := readLine(buf, pos)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Kind: replyError, ServerErr: &ServerError{Text: line[1:]}, headerEnd: end}, nil

	case hasPrefixAt(buf, pos, "&1"):
		return parseResultSetHeader(buf, pos)

	case hasPrefixAt(buf, pos, "&2"):
		line, end, err := readLine(buf, pos)
		if err != nil {
			return Reply{}, err
		}
		fields := strings.Fields(line[2:])
		if len(fields) < 1 {
			return Reply{}, badReplyErr("HeaderArity", "&2 update-count header missing field")
		}
		n, err := strconv.ParseInt(fields[0], 10, 64)
		if err != nil {
			return Reply{}, badReplyErr("HeaderTyping", "&2 update count is not an integer: "+err.Error())
		}
		return Reply{Kind: replyUpdateOk, Affected: n, headerEnd: end}, nil

	case hasPrefixAt(buf, pos, "&3"):
		_, end, err := readLine(buf, pos)
		if err != nil {
			return Reply{}, err
		}
		return Reply{Kind: replyOtherOk, headerEnd: end}, nil

	case hasPrefixAt(buf, pos, "&4"):
		line, end, err := readLine(buf, pos)
		if err != nil {
			return Reply{}, err
		}
		fields := strings.Fields(line[2:])
		on := len(fields) > 0 && fields[0] != "0"
		return Reply{Kind: replyAutocommitChange, AutocommitOn: on, headerEnd: end}, nil

	default:
		return Reply{}, badReplyErr("ProtocolViolation", "unexpected lead bytes in reply: "+truncate(firstLine(buf[pos:]), 40))
	}
}

// readLine returns the line starting at buf[pos:] (excluding the
// trailing '\n') and the offset just past the '\n'.
func readLine(buf []byte, pos int) (string, int, error) {
	i := indexByte(buf[pos:], '\n')
	if i < 0 {
		return "", 0, badReplyErr("UnexpectedEOF", "reply line missing terminating newline")
	}
	return string(buf[pos : pos+i]), pos + i + 1, nil
}

func hasPrefixAt(buf []byte, pos int, prefix string) bool {
	if pos+len(prefix) > len(buf) {
		return false
	}
	return string(buf[pos:pos+len(prefix)]) == prefix
}

// parseResultSetHeader parses an `&1` header line and its five
// column-metadata lines (spec.md §4.G).
func parseResultSetHeader(buf []byte, pos int) (Reply, error) {
	line, end, err := readLine(buf, pos)
	if err != nil {
		return Reply{}, err
	}
	fields := strings.Fields(line[2:])
	if len(fields) < 4 {
		return Reply{}, badReplyErr("HeaderArity", "&1 result-set header needs 4 fields, got "+strconv.Itoa(len(fields)))
	}
	resultID, err1 := strconv.ParseUint(fields[0], 10, 64)
	totalRows, err2 := strconv.ParseUint(fields[1], 10, 64)
	ncols, err3 := strconv.Atoi(fields[2])
	rowsInReply, err4 := strconv.ParseUint(fields[3], 10, 64)
	if err1 != nil || err2 != nil || err3 != nil || err4 != nil {
		return Reply{}, badReplyErr("HeaderTyping", "&1 result-set header field is not an integer")
	}

	kinds := []string{"table_name", "name", "type", "length", "typesizes"}
	values := make(map[string][]string, 5)
	for _, want := range kinds {
		metaLine, next, err := readLine(buf, end)
		if err != nil {
			return Reply{}, err
		}
		vals, kind, err := parseMetaLine(metaLine, ncols)
		if err != nil {
			return Reply{}, err
		}
		if kind != want {
			return Reply{}, badReplyErr("HeaderArity", "expected column-metadata line '"+want+"', got '"+kind+"'")
		}
		values[want] = vals
		end = next
	}

	cols := make([]ColumnDesc, ncols)
	for i := 0; i < ncols; i++ {
		typ := MonetType{Name: values["type"][i]}
		if w, err := strconv.Atoi(values["length"][i]); err == nil {
			typ.Width = w
		}
		if ts := values["typesizes"][i]; ts != "" {
			if p, s, ok := strings.Cut(ts, " "); ok {
				typ.Precision, _ = strconv.Atoi(p)
				typ.Scale, _ = strconv.Atoi(s)
			}
		}
		cols[i] = ColumnDesc{
			Name: values["table_name"][i] + "." + values["name"][i],
			Type: typ,
		}
	}

	rs := &ResultSet{
		ResultID:           resultID,
		TotalRows:          totalRows,
		Columns:            cols,
		usingInitialWindow: true,
	}
	if rowsInReply < totalRows {
		id := resultID
		rs.ClosePending = &id
	}
	rs.Window = newRowWindow(buf, ncols)
	rs.Window.pos = end

	return Reply{Kind: replyResultSet, ResultSet: rs, headerEnd: end}, nil
}

// parseExportHeader parses the `&1` header line of an Xexport reply —
// the same four fields as a full result-set header, but with none of
// the five column-metadata lines that only accompany the reply to the
// original query (spec.md §4.I "Refetch"). It returns the declared
// result id, total row count, and the offset just past the header line.
func parseExportHeader(buf []byte, pos int, expectedNcols int) (resultID uint64, totalRows uint64, headerEnd int, err error) {
	if !hasPrefixAt(buf, pos, "&1") {
		return 0, 0, 0, badReplyErr("ProtocolViolation", "expected &1 result-set header in Xexport reply")
	}
	line, end, err := readLine(buf, pos)
	if err != nil {
		return 0, 0, 0, err
	}
	fields := strings.Fields(line[2:])
	if len(fields) < 4 {
		return 0, 0, 0, badReplyErr("HeaderArity", "&1 Xexport header needs 4 fields")
	}
	resultID, e1 := strconv.ParseUint(fields[0], 10, 64)
	totalRows, e2 := strconv.ParseUint(fields[1], 10, 64)
	ncols, e3 := strconv.Atoi(fields[2])
	_, e4 := strconv.ParseUint(fields[3], 10, 64)
	if e1 != nil || e2 != nil || e3 != nil || e4 != nil {
		return 0, 0, 0, badReplyErr("HeaderTyping", "&1 Xexport header field is not an integer")
	}
	if ncols != expectedNcols {
		return 0, 0, 0, badReplyErr("HeaderArity", "Xexport reply column count does not match the original result set")
	}
	return resultID, totalRows, end, nil
}

// replyParser walks a whole (possibly multi-section) reply buffer one
// reply at a time, eagerly parsing the reply at the current position
// (spec.md §4.G, §9). It owns the buffer for the lifetime of one
// execute() call.
type replyParser struct {
	buf []byte
	cur Reply
}

// newReplyParser parses the first reply in buf, starting at offset 0.
func newReplyParser(buf []byte) (*replyParser, error) {
	r, err := parseReply(buf, 0)
	if err != nil {
		return nil, err
	}
	return &replyParser{buf: buf, cur: r}, nil
}

func (p *replyParser) current() Reply { return p.cur }

func (p *replyParser) exhausted() bool { return p.cur.Kind == replyExhausted }

// advance consumes the current reply's bytes from the buffer — for a
// ResultSet this means skipping any rows the cursor never visited, via
// the row window's finish() — and parses the reply that follows. It
// returns the outgoing reply's close-pending result id, if any, so the
// Cursor can enqueue Xclose in the same lock scope that installs the
// replacement reply (spec.md §4.G "Advancing", §9 "Result-set closure
// scheduling").
func (p *replyParser) advance() (closePending *uint64, err error) {
	cur := p.cur
	var nextPos int
	if cur.Kind == replyResultSet {
		closePending = cur.ResultSet.ClosePending
		// After a refetch, Window reads from the Xexport reply's buffer;
		// the window over p.buf is the stashed first one.
		w := cur.ResultSet.Window
		if cur.ResultSet.StashedFirstWindow != nil {
			w = cur.ResultSet.StashedFirstWindow
		}
		nextPos = w.finish()
	} else {
		nextPos = cur.headerEnd
	}
	r, err := parseReply(p.buf, nextPos)
	if err != nil {
		return closePending, err
	}
	p.cur = r
	return closePending, nil
}

// parseMetaLine parses one `% a,\tb,\tc # kind` column-metadata line,
// validating that it yields exactly ncols values.
func parseMetaLine(line string, ncols int) (values []string, kind string, err error) {
	if !strings.HasPrefix(line, "% ") {
		return nil, "", badReplyErr("HeaderArity", "column-metadata line missing '% ' prefix")
	}
	rest := line[2:]
	idx := strings.Index(rest, " # ")
	if idx < 0 {
		return nil, "", badReplyErr("HeaderArity", "column-metadata line missing ' # ' separator")
	}
	valuesPart := rest[:idx]
	kind = rest[idx+3:]
	if valuesPart == "" && ncols == 0 {
		return []string{}, kind, nil
	}
	values = strings.Split(valuesPart, ",\t")
	if len(values) != ncols {
		return nil, "", badReplyErr("HeaderArity", "column-metadata line has wrong arity")
	}
	return values, kind, nil
}
