// Package session holds the per-connection state machine: the session
// fields the protocol handler mutates as a connection authenticates, and
// the ConnectionContext that owns the socket and framed codec.
package session

import (
	"errors"
	"math/big"
	"net"
	"sync"
	"time"

	"github.com/coldforge/schnorrauth/internal/logger"
	"github.com/coldforge/schnorrauth/internal/wire"
)

// ChannelPhase tracks the handshake lifecycle of the raw connection.
type ChannelPhase int

const (
	ChannelInit ChannelPhase = iota
	ChannelHandshaked
	ChannelClosed
)

// Phase tracks the authentication lifecycle of the session carried by a
// connection.
type Phase int

const (
	PhaseAnonymous Phase = iota
	PhaseAwaitingChallengeResponse
	PhaseAuthenticated
	PhaseAwaitingPairAccept
)

// Data is the mutable session state a connection accumulates as it moves
// through the protocol handler's state machine.
type Data struct {
	User         string
	LoggedDevice string
	LoginTime    time.Time
	TempPK       *big.Int
	Challenge    *big.Int
}

// IsAuthenticated reports whether a user has successfully completed
// registration or challenge-response auth on this connection.
func (d *Data) IsAuthenticated() bool {
	return d.User != ""
}

// Clear resets all session fields to the zero (anonymous) state.
func (d *Data) Clear() {
	*d = Data{}
}

// ErrTerminated is returned by Receive and Send once the connection has
// been closed; all further sends become no-ops returning this error.
var ErrTerminated = errors.New("session: connection terminated")

// ConnectionContext owns a single accepted connection: its socket, its
// framed codec, and its session state. It is the protocol handler's only
// route to the network — the handler never touches net.Conn directly.
type ConnectionContext struct {
	ID      string
	conn    net.Conn
	codec   *wire.Codec
	writeMu sync.Mutex

	mu           sync.Mutex
	channelPhase ChannelPhase
	sessionPhase Phase
	data         Data

	closeOnce sync.Once
	closed    chan struct{}
}

// New wraps an accepted net.Conn in a ConnectionContext, ready to receive
// HANDSHAKE_REQ.
func New(id string, conn net.Conn) *ConnectionContext {
	return &ConnectionContext{
		ID:           id,
		conn:         conn,
		codec:        wire.NewCodec(conn),
		channelPhase: ChannelInit,
		sessionPhase: PhaseAnonymous,
		closed:       make(chan struct{}),
	}
}

// RemoteAddr returns the peer address, for logging.
func (c *ConnectionContext) RemoteAddr() string {
	return c.conn.RemoteAddr().String()
}

// Receive blocks for the next framed message. Once the connection has been
// closed, it always returns ErrTerminated.
func (c *ConnectionContext) Receive() (wire.Frame, error) {
	select {
	case <-c.closed:
		return nil, ErrTerminated
	default:
	}

	frame, err := c.codec.ReadFrame()
	if err != nil {
		select {
		case <-c.closed:
			return nil, ErrTerminated
		default:
		}
		return nil, err
	}
	return frame, nil
}

// Send writes a typed message with optional extra fields. A send after
// close is a no-op returning ErrTerminated.
func (c *ConnectionContext) Send(t wire.MessageType, fields map[string]any) error {
	select {
	case <-c.closed:
		return ErrTerminated
	default:
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	return c.codec.WriteFrame(wire.NewFrame(t, fields))
}

// SendError writes an ERROR frame carrying the given error code and its
// canonical label.
func (c *ConnectionContext) SendError(code wire.ErrorCode) error {
	return c.Send(wire.Error, map[string]any{
		"error_code": int(code),
		"error":      code.Label(),
	})
}

// ChannelPhase returns the current channel phase.
func (c *ConnectionContext) ChannelPhase() ChannelPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.channelPhase
}

// SetChannelPhase transitions the channel phase.
func (c *ConnectionContext) SetChannelPhase(p ChannelPhase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.channelPhase = p
}

// SessionPhase returns the current session phase.
func (c *ConnectionContext) SessionPhase() Phase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sessionPhase
}

// SetSessionPhase transitions the session phase.
func (c *ConnectionContext) SetSessionPhase(p Phase) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.sessionPhase = p
}

// Mutate runs fn against the session data under the context's lock. Use
// this for any read-modify-write of session fields.
func (c *ConnectionContext) Mutate(fn func(*Data)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn(&c.data)
}

// Snapshot returns a copy of the current session data.
func (c *ConnectionContext) Snapshot() Data {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.data
}

// ClearChallenge drops the in-flight (temp_pk, challenge) pair after a
// REJECTED response, so a client cannot retry AUTH_RESPONSE against the same
// challenge as a guessing oracle — it must resend AUTH_REQUEST for a fresh c.
func (c *ConnectionContext) ClearChallenge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.TempPK = nil
	c.data.Challenge = nil
}

// ClearSession resets session data and returns the session phase to
// PhaseAnonymous (used on LOGOUT).
func (c *ConnectionContext) ClearSession() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data.Clear()
	c.sessionPhase = PhaseAnonymous
}

// Close is idempotent: the underlying socket is closed exactly once, after
// which Receive and Send always report ErrTerminated.
func (c *ConnectionContext) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		c.SetChannelPhase(ChannelClosed)
		err = c.conn.Close()
	})
	return err
}

// LogContext builds the structured-logging context for this connection.
func (c *ConnectionContext) LogContext() *logger.LogContext {
	clientIP := c.RemoteAddr()
	if host, _, err := net.SplitHostPort(clientIP); err == nil {
		clientIP = host
	}
	return &logger.LogContext{
		ConnectionID: c.ID,
		ClientIP:     clientIP,
		StartTime:    time.Now(),
	}
}
