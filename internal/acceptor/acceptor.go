// Package acceptor binds the TCP listener and spawns one worker per accepted
// connection. Workers are detached: the acceptor does not track them for a
// join on shutdown, since graceful drain of in-flight connections is outside
// this server's scope.
package acceptor

import (
	"context"
	"fmt"
	"net"
	"sync/atomic"

	"github.com/coldforge/schnorrauth/internal/logger"
	"github.com/coldforge/schnorrauth/internal/session"
)

// Handler processes one accepted connection to completion. It must not
// return until the connection is done with (protocol.Handler satisfies
// this).
type Handler interface {
	Handle(conn *session.ConnectionContext)
}

// Acceptor listens on a TCP address and dispatches each accepted connection
// to a Handler on its own goroutine.
type Acceptor struct {
	addr    string
	handler Handler

	listener net.Listener
	nextID   atomic.Uint64
}

// New builds an Acceptor bound to addr (host:port; empty host binds all
// interfaces) dispatching to handler.
func New(addr string, handler Handler) *Acceptor {
	return &Acceptor{addr: addr, handler: handler}
}

// Listen opens the TCP socket. Separated from Serve so callers can learn
// the bound address (useful when Port is 0) before accepting connections.
func (a *Acceptor) Listen() error {
	listener, err := net.Listen("tcp", a.addr)
	if err != nil {
		return fmt.Errorf("acceptor: listen %s: %w", a.addr, err)
	}
	a.listener = listener
	return nil
}

// Addr returns the bound address. Valid only after a successful Listen.
func (a *Acceptor) Addr() net.Addr {
	return a.listener.Addr()
}

// Serve accepts connections until ctx is cancelled or the listener errors.
// Each accepted connection is wrapped in a session.ConnectionContext and
// handed to a new goroutine running Handler.Handle; Serve does not wait for
// those goroutines before returning.
func (a *Acceptor) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		_ = a.listener.Close()
	}()

	logger.Info("acceptor listening", "address", a.listener.Addr().String())

	for {
		conn, err := a.listener.Accept()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
				return fmt.Errorf("acceptor: accept: %w", err)
			}
		}

		if tcp, ok := conn.(*net.TCPConn); ok {
			if err := tcp.SetNoDelay(true); err != nil {
				logger.Debug("acceptor: set TCP_NODELAY failed", logger.Err(err))
			}
		}

		id := a.nextID.Add(1)
		cc := session.New(fmt.Sprintf("conn-%d", id), conn)
		go a.handler.Handle(cc)
	}
}
