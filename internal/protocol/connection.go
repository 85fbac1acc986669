package protocol

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
)

// Connection owns the socket, the negotiated server state, and the
// delayed command queue, all guarded by one mutex (spec.md §3
// "Ownership", §4.F, §9 "Shared state behind one lock"). It is safe for
// concurrent use by multiple Cursors; every server interaction
// serializes on the mutex.
type Connection struct {
	mu      sync.Mutex
	closing atomic.Bool

	state   ServerState
	sock    net.Conn // nil while an operation has it checked out, or once closed
	delayed *delayedCommands

	params *Params
}

// ReapplyRedirect resolves a server-issued redirect URL into a fresh
// set of Params to reconnect with. Parsing/validating that URL is the
// out-of-scope collaborator spec.md §1 describes; callers that don't
// need to follow redirects may pass nil, in which case a redirect from
// the server surfaces as an error instead of being followed.
type ReapplyRedirect func(url string) (*Params, error)

// Connect dials, authenticates, and returns a ready-to-use Connection
// (spec.md §4.D "Handshake engine").
func Connect(ctx context.Context, p *Params, reapply ReapplyRedirect) (*Connection, error) {
	sock, state, dq, err := connect(ctx, p, reapply)
	if err != nil {
		return nil, err
	}
	return &Connection{state: state, sock: sock, delayed: dq, params: p}, nil
}

// runLocked is the single primitive every server interaction goes
// through (spec.md §4.F). fn receives the server state, the delayed
// queue, and the socket (taken out of the Connection for the duration
// of the call, so a concurrent entry while the socket is in use is
// unrepresentable); it must return the socket to keep using on success,
// or (nil, err) to have it dropped. If the Connection has no socket
// (already closed), runLocked fails immediately with ErrClosed without
// calling fn.
func (c *Connection) runLocked(fn func(state *ServerState, delayed *delayedCommands, sock net.Conn) (net.Conn, error)) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sock == nil {
		return ErrClosed
	}
	sock := c.sock
	c.sock = nil

	newSock, err := fn(&c.state, c.delayed, sock)
	if err != nil {
		if newSock != nil {
			newSock.Close()
		} else {
			sock.Close()
		}
		return err
	}

	if c.closing.Load() {
		// close() was called while this operation held the socket
		// checked out; finish this operation's result but drop the
		// connection now rather than handing the socket back.
		newSock.Close()
		return nil
	}

	c.sock = newSock
	return nil
}

// Close marks the Connection as closing and drops the socket without
// blocking on the mutex: if the mutex is uncontended the socket is
// closed immediately; if another operation currently holds it, that
// operation's runLocked call notices the closing flag when it finishes
// and closes the socket itself instead of returning it to the
// Connection (spec.md §3 "Lifecycle", §4.F, §5 "Poisoning" — Go's
// sync.Mutex has no poisoning to recover from; the defer-based unlock
// in runLocked already guarantees a panicking holder still releases the
// lock).
func (c *Connection) Close() error {
	c.closing.Store(true)
	if !c.mu.TryLock() {
		return nil
	}
	defer c.mu.Unlock()
	if c.sock != nil {
		c.sock.Close()
		c.sock = nil
	}
	return nil
}

// Closed reports whether the Connection has been closed or is in the
// process of closing.
func (c *Connection) Closed() bool { return c.closing.Load() }

// NewCursor returns a new Cursor sharing this Connection.
func (c *Connection) NewCursor() *Cursor {
	return &Cursor{conn: c}
}
