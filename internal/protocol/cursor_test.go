package protocol

import (
	"context"
	"net"
	"testing"
)

// serveScript answers each incoming whole message on conn with the next
// entry in responses, in order, then stops. It runs on the "server" side
// of a net.Pipe in tests that exercise the Cursor against a fake MAPI
// server.
func serveScript(conn net.Conn, responses []string) error {
	mr := newMessageReader(conn)
	mw := newMessageWriter(conn)
	for _, resp := range responses {
		if _, err := mr.readWholeMessage(); err != nil {
			return err
		}
		if err := mw.writeMessage([]byte(resp)); err != nil {
			return err
		}
	}
	return nil
}

func newTestConnection(sock net.Conn) *Connection {
	return &Connection{
		state:   ServerState{ReplySize: 100},
		sock:    sock,
		delayed: newDelayedCommands(),
	}
}

func TestCursorExecuteUpdateOk(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- serveScript(serverConn, []string{"&2 3\n"}) }()

	conn := newTestConnection(clientConn)
	cur := conn.NewCursor()

	if err := cur.Execute(context.Background(), "UPDATE t SET x = 1"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	n, ok := cur.AffectedRows()
	if !ok || n != 3 {
		t.Fatalf("AffectedRows = %d, %v", n, ok)
	}
	if cur.HasResultSet() {
		t.Fatal("update reply should not be a result set")
	}
	if err := cur.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestCursorExecuteServerError(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- serveScript(serverConn, []string{"!42S22!syntax error, unexpected token\n"}) }()

	conn := newTestConnection(clientConn)
	cur := conn.NewCursor()

	err := cur.Execute(context.Background(), "SELECT bogus FROM")
	if err == nil {
		t.Fatal("expected a server error")
	}
	serr, ok := err.(*ServerError)
	if !ok {
		t.Fatalf("err = %v (%T), want *ServerError", err, err)
	}
	if serr.Text != "42S22!syntax error, unexpected token" {
		t.Fatalf("serr.Text = %q", serr.Text)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestCursorResultSetSingleWindow(t *testing.T) {
	reply := "&1 0 2 2 2\n" +
		"% sys.t,\tsys.t # table_name\n" +
		"% a,\tb # name\n" +
		"% int,\tvarchar # type\n" +
		"% 0,\t0 # length\n" +
		"% ,\t # typesizes\n" +
		"[ 1,\t\"x\"\t]\n" +
		"[ 2,\t\"y\"\t]\n"

	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	go func() { done <- serveScript(serverConn, []string{reply}) }()

	conn := newTestConnection(clientConn)
	cur := conn.NewCursor()

	if err := cur.Execute(context.Background(), "SELECT a, b FROM t"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	if !cur.HasResultSet() {
		t.Fatal("expected a result set")
	}
	cols := cur.Columns()
	if len(cols) != 2 || cols[0].Name != "sys.t.a" || cols[1].Name != "sys.t.b" {
		t.Fatalf("columns = %+v", cols)
	}

	ctx := context.Background()
	ok, err := cur.NextRow(ctx)
	if err != nil || !ok {
		t.Fatalf("first NextRow: ok=%v err=%v", ok, err)
	}
	i, isNull, err := cur.GetI64(0)
	if err != nil || isNull || i != 1 {
		t.Fatalf("GetI64(0) = %d, null=%v, err=%v", i, isNull, err)
	}
	s, isNull, err := cur.GetStr(1)
	if err != nil || isNull || s != "x" {
		t.Fatalf("GetStr(1) = %q, null=%v, err=%v", s, isNull, err)
	}

	ok, err = cur.NextRow(ctx)
	if err != nil || !ok {
		t.Fatalf("second NextRow: ok=%v err=%v", ok, err)
	}
	s, _, _ = cur.GetStr(1)
	if s != "y" {
		t.Fatalf("GetStr(1) = %q, want y", s)
	}

	ok, err = cur.NextRow(ctx)
	if err != nil || ok {
		t.Fatalf("expected result-set exhaustion, got ok=%v err=%v", ok, err)
	}

	if err := cur.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}

func TestCursorFetchMoreRows(t *testing.T) {
	firstReply := "&1 7 3 1 1\n" +
		"% sys.t # table_name\n" +
		"% a # name\n" +
		"% int # type\n" +
		"% 0 # length\n" +
		"%  # typesizes\n" +
		"[ 1\t]\n"
	exportReply := "&1 7 3 1 2\n" +
		"[ 2\t]\n" +
		"[ 3\t]\n"

	clientConn, serverConn := net.Pipe()
	done := make(chan error, 1)
	// The third scripted response acknowledges the Xclose that Close()
	// piggy-backs for the result id left with unconsumed server-side rows
	// after the very first (partial) reply.
	go func() { done <- serveScript(serverConn, []string{firstReply, exportReply, ""}) }()

	conn := newTestConnection(clientConn)
	cur := conn.NewCursor()

	if err := cur.Execute(context.Background(), "SELECT a FROM t"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	n, ok := cur.AffectedRows()
	if !ok || n != 3 {
		t.Fatalf("AffectedRows = %d, %v", n, ok)
	}

	ctx := context.Background()
	var got []int64
	for {
		ok, err := cur.NextRow(ctx)
		if err != nil {
			t.Fatalf("NextRow: %v", err)
		}
		if !ok {
			break
		}
		v, isNull, err := cur.GetI64(0)
		if err != nil || isNull {
			t.Fatalf("GetI64(0): %v null=%v err=%v", v, isNull, err)
		}
		got = append(got, v)
	}
	if len(got) != 3 || got[0] != 1 || got[1] != 2 || got[2] != 3 {
		t.Fatalf("got rows %v, want [1 2 3]", got)
	}

	if err := cur.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}
