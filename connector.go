package monetdb

import (
	"context"
	"database/sql/driver"

	"github.com/MonetDB/go-monetdb/internal/protocol"
)

// Connector is a DSN-less, programmatic driver.Connector (SPEC_FULL.md
// §4.K), grounded on go-hdb/driver/connector.go. Applications build one
// from a *Config and pass it to sql.OpenDB.
type Connector struct {
	cfg *Config
}

// NewConnector returns a Connector for cfg. cfg is read each time
// Connect is called, so later Config mutations affect subsequent
// connections but not ones already established.
func NewConnector(cfg *Config) *Connector {
	return &Connector{cfg: cfg}
}

// Connect performs the handshake (protocol.Connect) and returns a ready
// driver.Conn.
func (c *Connector) Connect(ctx context.Context) (driver.Conn, error) {
	params, err := c.cfg.validate()
	if err != nil {
		return nil, err
	}
	core, err := protocol.Connect(ctx, params, nil)
	if err != nil {
		return nil, err
	}
	conn := &Conn{
		core:   core,
		cur:    core.NewCursor(),
		cfg:    c.cfg,
		logger: newConnLogger(c.cfg),
	}
	defaultMetrics.gauge(gaugeConn, 1)
	return conn, nil
}

// Driver returns the package's registered Driver.
func (c *Connector) Driver() driver.Driver { return &Driver{} }
