package monetdb

import "context"

// tx implements driver.Tx by issuing the corresponding SQL statement
// over the shared Cursor — MAPI has no dedicated transaction-control
// wire messages, only the SQL statements themselves.
type tx struct {
	conn *Conn
}

func (t *tx) Commit() error {
	return mapErr(t.conn.execLocked(context.Background(), "COMMIT"))
}

func (t *tx) Rollback() error {
	return mapErr(t.conn.execLocked(context.Background(), "ROLLBACK"))
}
