// Package transport resolves a validated set of connection parameters
// to a byte-stream socket: a TCP or Unix-domain connection, optionally
// wrapped in TLS. It is the "socket abstraction" collaborator described
// in spec.md §4.C.
package transport

import (
	"context"
	"net"
	"strconv"
	"time"
)

// DialerOptions carries the knobs a Dialer may use while connecting.
type DialerOptions struct {
	Timeout      time.Duration
	TCPKeepAlive time.Duration
}

// Dialer abstracts socket creation so tests and alternate transports
// (e.g. a pooling proxy) can substitute their own net.Conn factory. A
// custom Dialer can be set on Config.
type Dialer interface {
	DialContext(ctx context.Context, network, address string, options DialerOptions) (net.Conn, error)
}

// DefaultDialer is the default Dialer, backed by net.Dialer.
var DefaultDialer Dialer = &defaultDialer{}

type defaultDialer struct{}

func (defaultDialer) DialContext(ctx context.Context, network, address string, options DialerOptions) (net.Conn, error) {
	d := net.Dialer{Timeout: options.Timeout, KeepAlive: options.TCPKeepAlive}
	return d.DialContext(ctx, network, address)
}

// Target describes where to connect: exactly one of UnixPath or
// (Host, Port) is set.
type Target struct {
	UnixPath string
	Host     string
	Port     int
}

func (t Target) network() string {
	if t.UnixPath != "" {
		return "unix"
	}
	return "tcp"
}

func (t Target) address() string {
	if t.UnixPath != "" {
		return t.UnixPath
	}
	return net.JoinHostPort(t.Host, strconv.Itoa(t.Port))
}

// Dial connects to target using dialer, and for a Unix-domain socket
// immediately writes the single '0' byte MAPI expects as the "plain
// MAPI" protocol selector (spec.md §4.C, §6) before returning the
// connection to the caller. It also enables TCP_NODELAY on TCP
// connections where the underlying net.Conn supports it.
func Dial(ctx context.Context, dialer Dialer, target Target, options DialerOptions) (net.Conn, error) {
	if dialer == nil {
		dialer = DefaultDialer
	}
	conn, err := dialer.DialContext(ctx, target.network(), target.address(), options)
	if err != nil {
		return nil, err
	}
	if tc, ok := conn.(*net.TCPConn); ok {
		_ = tc.SetNoDelay(true)
	}
	if target.UnixPath != "" {
		if _, err := conn.Write([]byte{'0'}); err != nil {
			conn.Close()
			return nil, err
		}
	}
	return conn, nil
}
