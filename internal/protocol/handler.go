// Package protocol implements the per-connection state machine: handshake,
// registration, challenge-response authentication, device pairing, and
// logout. It is the orchestrator that ties the group parameters, wire codec,
// schnorr verifier, auth store, and pending-pair registry together.
package protocol

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"math/big"
	"time"

	"github.com/coldforge/schnorrauth/internal/authstore"
	"github.com/coldforge/schnorrauth/internal/group"
	"github.com/coldforge/schnorrauth/internal/logger"
	"github.com/coldforge/schnorrauth/internal/metrics"
	"github.com/coldforge/schnorrauth/internal/registry"
	"github.com/coldforge/schnorrauth/internal/schnorr"
	"github.com/coldforge/schnorrauth/internal/session"
	"github.com/coldforge/schnorrauth/internal/wire"
)

// Handler runs the pairing and authentication state machine for one
// connection at a time. It holds no per-connection state itself — all of
// that lives on the session.ConnectionContext passed to Handle.
type Handler struct {
	group   *group.Group
	users   *authstore.Store
	pairing *registry.PendingPairRegistry
	metrics metrics.Metrics
}

// backgroundCtx is used for store calls driven entirely by wire messages
// already read off the socket — there is no inbound request context to
// thread through, and no operation here is cancellable mid-flight.
func backgroundCtx() context.Context { return context.Background() }

// New builds a protocol Handler bound to a single group (the server only
// ever selects one group for its lifetime; GROUP_SELECTION tells the client
// which one).
func New(g *group.Group, users *authstore.Store, pairing *registry.PendingPairRegistry, m metrics.Metrics) *Handler {
	return &Handler{group: g, users: users, pairing: pairing, metrics: metrics.Safe(m)}
}

// Handle drives one connection through the state machine until it closes.
// It never returns an error: all failures are logged and end the connection.
func (h *Handler) Handle(conn *session.ConnectionContext) {
	defer func() {
		h.pairing.RemoveConn(conn)
		_ = conn.Close()
		h.metrics.ConnectionClosed()
	}()

	h.metrics.ConnectionAccepted()
	logger.Debug("connection accepted", logger.ClientIP(conn.RemoteAddr()))

	if !h.awaitHandshake(conn) {
		return
	}

	for {
		frame, err := conn.Receive()
		if err != nil {
			if errors.Is(err, session.ErrTerminated) || errors.Is(err, io.EOF) {
				logger.Debug("connection closed", logger.ClientIP(conn.RemoteAddr()))
			} else {
				logger.Debug("connection read error", logger.ClientIP(conn.RemoteAddr()), logger.Err(err))
			}
			return
		}

		if !h.dispatch(conn, frame) {
			return
		}
	}
}

// awaitHandshake implements transition 1: wait for HANDSHAKE_REQ, send
// GROUP_SELECTION, then accept any non-null follow-up frame as confirmation.
// A frame received before HANDSHAKE_REQ is dropped and logged (transition 1).
func (h *Handler) awaitHandshake(conn *session.ConnectionContext) bool {
	for {
		frame, err := conn.Receive()
		if err != nil {
			return false
		}

		code, ok := frame.TypeCode()
		if !ok || code != wire.HandshakeReq {
			logger.Debug("frame dropped before handshake", logger.ClientIP(conn.RemoteAddr()))
			continue
		}
		break
	}

	if err := conn.Send(wire.GroupSelection, map[string]any{"group_id": h.group.ID}); err != nil {
		return false
	}

	// "read any follow-up ... any non-null frame is accepted as
	// confirmation" — the canonical client sends a typed HANDSHAKE_RES,
	// but we don't reject a raw {status:"received"} object either.
	if _, err := conn.Receive(); err != nil {
		return false
	}

	conn.SetChannelPhase(session.ChannelHandshaked)
	return true
}

// dispatch handles one frame and reports whether the connection should stay
// open.
func (h *Handler) dispatch(conn *session.ConnectionContext, frame wire.Frame) bool {
	code, ok := frame.TypeCode()
	if !ok {
		return h.sendMalformed(conn)
	}

	switch code {
	case wire.Register:
		return h.handleRegister(conn, frame)
	case wire.AuthRequest:
		return h.handleAuthRequest(conn, frame)
	case wire.AuthResponse:
		return h.handleAuthResponse(conn, frame)
	case wire.AssocRequest:
		return h.handleAssocRequest(conn, frame)
	case wire.TokenAssoc:
		return h.handleTokenAssoc(conn, frame)
	case wire.Logout:
		return h.handleLogout(conn)
	default:
		// transition 9: unknown message kind, log and ignore.
		logger.Debug("unknown message kind ignored", logger.MessageType(code.Label()))
		return true
	}
}

func (h *Handler) sendMalformed(conn *session.ConnectionContext) bool {
	if err := conn.SendError(wire.ErrMalformedMessage); err != nil {
		return false
	}
	return true
}

// handleRegister implements transition 2.
func (h *Handler) handleRegister(conn *session.ConnectionContext, frame wire.Frame) bool {
	username, ok1 := frame.GetString("username")
	pk, ok2 := frame.GetString("public_key")
	device, ok3 := frame.GetString("device")
	if !ok1 || !ok2 || !ok3 || username == "" || pk == "" || device == "" {
		return h.sendMalformed(conn)
	}

	_, err := h.users.CreateUser(backgroundCtx(), username, pk, device)
	if err != nil {
		if errors.Is(err, authstore.ErrUsernameExists) {
			h.metrics.RegistrationRejected()
			return sendOK(conn.SendError(wire.ErrUsernameAlreadyExists))
		}
		logger.Error("register failed", logger.Username(username), logger.Err(err))
		return false
	}

	conn.Mutate(func(d *session.Data) {
		d.User = username
		d.LoggedDevice = device
		d.LoginTime = time.Now().UTC()
	})
	conn.SetSessionPhase(session.PhaseAuthenticated)
	h.metrics.RegistrationSucceeded()

	return sendOK(conn.Send(wire.Registered, nil))
}

// handleAuthRequest implements transition 3.
func (h *Handler) handleAuthRequest(conn *session.ConnectionContext, frame wire.Frame) bool {
	username, ok1 := frame.GetString("username")
	tempHex, ok2 := frame.GetString("temp")
	if !ok1 || !ok2 || username == "" {
		return h.sendMalformed(conn)
	}

	if _, err := h.users.FindUser(backgroundCtx(), username); err != nil {
		if errors.Is(err, authstore.ErrUserNotFound) {
			return sendOK(conn.SendError(wire.ErrUsernameNotFound))
		}
		logger.Error("auth request lookup failed", logger.Username(username), logger.Err(err))
		return false
	}

	ut, err := wire.ParseHexBigInt(tempHex)
	if err != nil {
		return h.sendMalformed(conn)
	}

	c, err := randomChallenge(h.group.Q)
	if err != nil {
		logger.Error("challenge generation failed", logger.Err(err))
		return false
	}

	conn.Mutate(func(d *session.Data) {
		d.User = username
		d.TempPK = ut
		d.Challenge = c
	})
	conn.SetSessionPhase(session.PhaseAwaitingChallengeResponse)

	return sendOK(conn.Send(wire.Challenge, map[string]any{"challenge": wire.FormatHexBigInt(c)}))
}

// handleAuthResponse implements transition 4.
func (h *Handler) handleAuthResponse(conn *session.ConnectionContext, frame wire.Frame) bool {
	responseHex, ok := frame.GetString("response")
	if !ok {
		return h.sendMalformed(conn)
	}

	z, err := wire.ParseHexBigInt(responseHex)
	if err != nil {
		return h.sendMalformed(conn)
	}

	snap := conn.Snapshot()
	if snap.TempPK == nil || snap.Challenge == nil || snap.User == "" {
		return sendOK(conn.SendError(wire.ErrSessionNotFound))
	}

	user, err := h.users.FindUser(backgroundCtx(), snap.User)
	if err != nil {
		logger.Error("auth response user lookup failed", logger.Username(snap.User), logger.Err(err))
		return false
	}

	// An invalid hex device key is skipped, not fatal: it is left out of the
	// candidates passed to the verifier, and keyIndex maps each candidate
	// back to its slot in user.Devices.
	candidates := make([]*big.Int, 0, len(user.Devices))
	keyIndex := make([]int, 0, len(user.Devices))
	for i, d := range user.Devices {
		y, err := wire.ParseHexBigInt(d.PK)
		if err != nil {
			continue
		}
		candidates = append(candidates, y)
		keyIndex = append(keyIndex, i)
	}

	idx := schnorr.VerifyAny(h.group.P, h.group.G, snap.TempPK, snap.Challenge, z, candidates)

	if idx == -1 {
		h.metrics.AuthRejected()
		conn.ClearChallenge()
		return sendOK(conn.Send(wire.Rejected, nil))
	}

	device := user.Devices[keyIndex[idx]]
	if err := h.users.SetDeviceLogged(backgroundCtx(), user.ID, device.DeviceName, true); err != nil {
		logger.Error("set device logged failed", logger.Username(user.ID), logger.Err(err))
		return false
	}

	conn.Mutate(func(d *session.Data) {
		d.LoggedDevice = device.DeviceName
		d.LoginTime = time.Now().UTC()
	})
	conn.SetSessionPhase(session.PhaseAuthenticated)
	h.metrics.AuthSucceeded()

	return sendOK(conn.Send(wire.Accepted, nil))
}

// handleAssocRequest implements transition 5. Accepted even from an
// unauthenticated secondary — it has no account yet.
func (h *Handler) handleAssocRequest(conn *session.ConnectionContext, frame wire.Frame) bool {
	device, ok1 := frame.GetString("device")
	pk, ok2 := frame.GetString("pk")
	if !ok1 || !ok2 || device == "" || pk == "" {
		return h.sendMalformed(conn)
	}

	tok, err := h.users.MintToken(backgroundCtx(), pk, device)
	if err != nil {
		logger.Error("mint token failed", logger.DeviceName(device), logger.Err(err))
		return false
	}

	h.pairing.Register(tok.Token, conn)
	conn.SetSessionPhase(session.PhaseAwaitingPairAccept)
	h.metrics.TokenMinted()

	return sendOK(conn.Send(wire.TokenAssoc, map[string]any{"token": tok.Token}))
}

// handleTokenAssoc implements transition 6: the primary confirming a
// pairing token minted by a secondary's ASSOC_REQUEST.
func (h *Handler) handleTokenAssoc(conn *session.ConnectionContext, frame wire.Frame) bool {
	token, ok := frame.GetString("token")
	if !ok || token == "" {
		return h.sendMalformed(conn)
	}

	tok, err := h.users.FindToken(backgroundCtx(), token)
	if err != nil {
		switch {
		case errors.Is(err, authstore.ErrTokenNotFound):
			return sendOK(conn.SendError(wire.ErrUnauthorized))
		case errors.Is(err, authstore.ErrTokenExpired):
			h.metrics.TokenExpired()
			return sendOK(conn.SendError(wire.ErrTokenInvalidOrExpired))
		default:
			logger.Error("token lookup failed", logger.Err(err))
			return false
		}
	}

	snap := conn.Snapshot()
	if snap.User == "" {
		return sendOK(conn.SendError(wire.ErrSessionNotFound))
	}

	primary, err := h.users.FindUser(backgroundCtx(), snap.User)
	if err != nil {
		logger.Error("primary lookup failed", logger.Username(snap.User), logger.Err(err))
		return false
	}

	if !isMainDevice(primary, snap.LoggedDevice) {
		return sendOK(conn.SendError(wire.ErrNoMainDevice))
	}

	if err := h.users.AppendDevice(backgroundCtx(), primary.ID, authstore.Device{
		PK: tok.PK, DeviceName: tok.DeviceName, MainDevice: false, Logged: true,
	}); err != nil {
		logger.Error("append device failed", logger.Username(primary.ID), logger.Err(err))
		return false
	}
	_ = h.users.DeleteToken(backgroundCtx(), token)

	secondary, ok := h.pairing.Lookup(token)
	if !ok {
		h.metrics.TokenAssocFailed()
		return sendOK(conn.SendError(wire.ErrAssocFailure))
	}

	if err := sendToSecondary(secondary, primary.ID, tok.DeviceName); err != nil {
		h.metrics.TokenAssocFailed()
		h.pairing.Remove(token)
		return sendOK(conn.SendError(wire.ErrAssocFailure))
	}

	h.pairing.Remove(token)
	h.metrics.TokenConfirmed()
	return sendOK(conn.Send(wire.Accepted, nil))
}

// sendToSecondary delivers the ACCEPTED that completes pairing on the
// secondary's connection. The secondary is known to be blocked on receive at
// this point; if its context raced closed, the send fails and the caller
// reports ASSOC_FAILURE.
func sendToSecondary(secondary *session.ConnectionContext, username, deviceName string) error {
	secondary.Mutate(func(d *session.Data) {
		d.User = username
		d.LoggedDevice = deviceName
		d.LoginTime = time.Now().UTC()
	})
	secondary.SetSessionPhase(session.PhaseAuthenticated)
	return secondary.Send(wire.Accepted, map[string]any{"username": username})
}

// handleLogout implements transition 7.
func (h *Handler) handleLogout(conn *session.ConnectionContext) bool {
	snap := conn.Snapshot()
	if snap.User != "" && snap.LoggedDevice != "" {
		if err := h.users.SetDeviceLogged(backgroundCtx(), snap.User, snap.LoggedDevice, false); err != nil {
			logger.Error("logout set-logged failed", logger.Username(snap.User), logger.Err(err))
		}
	}
	conn.ClearSession()
	return sendOK(conn.Send(wire.LoggedOut, nil))
}

func isMainDevice(u *authstore.User, deviceName string) bool {
	for _, d := range u.Devices {
		if d.DeviceName == deviceName {
			return d.MainDevice
		}
	}
	return false
}

// randomChallenge draws c uniformly from [0, q-1].
func randomChallenge(q *big.Int) (*big.Int, error) {
	c, err := rand.Int(rand.Reader, q)
	if err != nil {
		return nil, fmt.Errorf("protocol: draw challenge: %w", err)
	}
	return c, nil
}

// sendOK turns a send error into "close the connection", and a nil error
// into "keep processing".
func sendOK(err error) bool {
	return err == nil
}
