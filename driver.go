package monetdb

import (
	"database/sql"
	"database/sql/driver"
	"errors"
)

// DriverName is the name this package registers itself under with
// database/sql, mirroring go-hdb/driver's DriverName constant.
const DriverName = "monetdb"

// Driver implements database/sql/driver.Driver. It exists to satisfy the
// database/sql registry; applications build connections with
// NewConnector + sql.OpenDB rather than sql.Open, because this repo
// carries no DSN grammar (SPEC_FULL.md §9 "Why Config instead of a DSN").
type Driver struct{}

func init() {
	sql.Register(DriverName, &Driver{})
}

// Open always fails: DSN strings aren't supported. Use
// sql.OpenDB(NewConnector(cfg)) instead.
func (d *Driver) Open(name string) (driver.Conn, error) {
	return nil, errors.New("monetdb: Driver.Open (DSN strings) is not supported; use sql.OpenDB(monetdb.NewConnector(cfg))")
}

// OpenConnector always fails, for the same reason as Open.
func (d *Driver) OpenConnector(name string) (driver.Connector, error) {
	return nil, errors.New("monetdb: Driver.OpenConnector (DSN strings) is not supported; use monetdb.NewConnector(cfg) directly")
}
