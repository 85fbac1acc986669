package monetdb

import (
	"context"
	"database/sql/driver"
	"io"
	"testing"
)

const sampleResultSetReply = "&1 0 2 2 2\n" +
	"% sys.t,\tsys.t # table_name\n" +
	"% a,\tb # name\n" +
	"% int,\tvarchar # type\n" +
	"% 2,\t10 # length\n" +
	"% ,\t # typesizes\n" +
	"[ 1,\t\"x\"\t]\n" +
	"[ 2,\t\"y\"\t]\n" +
	"&2 1\n"

func TestRowsCloseWithoutNextIsSafe(t *testing.T) {
	r := &Rows{conn: nil, cols: nil}
	if err := r.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	// a second Close must not double-decrement the cursor gauge
	if err := r.Close(); err != nil {
		t.Fatalf("second Close: %v", err)
	}
}

func TestRowsNextAfterCloseReturnsEOF(t *testing.T) {
	r := &Rows{conn: nil, cols: nil, closed: true}
	if err := r.Next(nil); err != io.EOF {
		t.Fatalf("Next() after Close = %v, want io.EOF", err)
	}
}

func TestConnQueryContextRowsColumnsAndValues(t *testing.T) {
	c, done := newTestConnOverPipe(t, []string{sampleResultSetReply})
	defer c.Close()

	rows, err := c.QueryContext(context.Background(), "SELECT a, b FROM t", nil)
	if err != nil {
		t.Fatalf("QueryContext: %v", err)
	}
	defer rows.Close()

	cols := rows.Columns()
	if len(cols) != 2 || cols[0] != "sys.t.a" || cols[1] != "sys.t.b" {
		t.Fatalf("Columns() = %+v", cols)
	}

	dest := make([]driver.Value, 2)
	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next (row 1): %v", err)
	}
	if dest[0] != int64(1) || dest[1] != "x" {
		t.Fatalf("row 1 = %+v, want [1 x]", dest)
	}

	if err := rows.Next(dest); err != nil {
		t.Fatalf("Next (row 2): %v", err)
	}
	if dest[0] != int64(2) || dest[1] != "y" {
		t.Fatalf("row 2 = %+v, want [2 y]", dest)
	}

	if err := rows.Next(dest); err != io.EOF {
		t.Fatalf("Next (past end) = %v, want io.EOF", err)
	}

	if err := <-done; err != nil {
		t.Fatalf("server: %v", err)
	}
}
