//go:build monetdb_integration

package monetdb_test

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	monetdb "github.com/MonetDB/go-monetdb"
)

// TestMain starts one shared monetdb/monetdb container for the whole
// package, the same shape as a driver integration suite that needs a
// real server rather than a fake one (see internal/protocol's own
// net.Pipe-backed fakes for everything that doesn't).
var (
	containerHost string
	containerPort int
)

func TestMain(m *testing.M) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "monetdb/monetdb:Jun2023-SP1",
		ExposedPorts: []string{"50000/tcp"},
		WaitingFor:   wait.ForListeningPort("50000/tcp").WithStartupTimeout(3 * time.Minute),
	}
	ctr, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if ctr != nil {
			_ = ctr.Terminate(ctx)
		}
		fmt.Fprintf(os.Stderr, "start monetdb container: %v\n", err)
		os.Exit(1)
	}

	host, err := ctr.Host(ctx)
	if err != nil {
		_ = ctr.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "container host: %v\n", err)
		os.Exit(1)
	}
	port, err := ctr.MappedPort(ctx, "50000")
	if err != nil {
		_ = ctr.Terminate(ctx)
		fmt.Fprintf(os.Stderr, "container port: %v\n", err)
		os.Exit(1)
	}
	containerHost, containerPort = host, port.Int()

	code := m.Run()
	_ = ctr.Terminate(ctx)
	os.Exit(code)
}

// testConfig returns a Config pointing at the shared test container. The
// monetdb/monetdb image's default "monetdb" database ships with a
// "monetdb"/"monetdb" account already enabled for login.
func testConfig() *monetdb.Config {
	cfg := monetdb.NewConfig("monetdb", "monetdb", "monetdb")
	cfg.SetHost(containerHost, containerPort)
	return cfg
}

func TestIntegrationQueryRoundTrip(t *testing.T) {
	db := sql.OpenDB(monetdb.NewConnector(testConfig()))
	t.Cleanup(func() { _ = db.Close() })

	var answer int
	if err := db.QueryRowContext(context.Background(), "SELECT 42").Scan(&answer); err != nil {
		t.Fatalf("QueryRowContext: %v", err)
	}
	if answer != 42 {
		t.Fatalf("answer = %d, want 42", answer)
	}
}

func TestIntegrationLowLevelCursor(t *testing.T) {
	ctx := context.Background()
	conn, err := monetdb.Open(ctx, testConfig())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })

	cur := conn.Cursor()
	t.Cleanup(func() { _ = cur.Close() })

	if err := cur.Execute(ctx, "SELECT 1, 'hello'"); err != nil {
		t.Fatalf("Execute: %v", err)
	}
	ok, err := cur.NextRow(ctx)
	if err != nil || !ok {
		t.Fatalf("NextRow: ok=%v err=%v", ok, err)
	}
	i, _, err := cur.GetI64(0)
	if err != nil || i != 1 {
		t.Fatalf("GetI64(0) = %d, err=%v", i, err)
	}
	s, _, err := cur.GetStr(1)
	if err != nil || s != "hello" {
		t.Fatalf("GetStr(1) = %q, err=%v", s, err)
	}
}

// TestIntegrationBadConnRecovery exercises SPEC_FULL.md §8 scenario 8: a
// closed driver.Conn must surface as driver.ErrBadConn rather than a panic,
// and the pool must be able to open a fresh connection afterward.
func TestIntegrationBadConnRecovery(t *testing.T) {
	db := sql.OpenDB(monetdb.NewConnector(testConfig()))
	t.Cleanup(func() { _ = db.Close() })
	db.SetMaxOpenConns(1)

	conn, err := db.Conn(context.Background())
	if err != nil {
		t.Fatalf("Conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT 1"); err != nil {
		t.Fatalf("ExecContext: %v", err)
	}
	if err := conn.Raw(func(dc any) error { return dc.(*monetdb.Conn).Close() }); err != nil {
		t.Fatalf("closing the driver.Conn: %v", err)
	}
	if _, err := conn.ExecContext(context.Background(), "SELECT 1"); !errors.Is(err, driver.ErrBadConn) {
		t.Fatalf("ExecContext on closed driver.Conn = %v, want driver.ErrBadConn", err)
	}
	_ = conn.Close()

	var answer int
	if err := db.QueryRowContext(context.Background(), "SELECT 1").Scan(&answer); err != nil {
		t.Fatalf("recovery query after closed conn: %v", err)
	}
}
