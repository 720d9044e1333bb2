package protocol

import (
	"math/big"
	"net"
	"testing"
	"time"

	"github.com/coldforge/schnorrauth/internal/authstore"
	"github.com/coldforge/schnorrauth/internal/group"
	"github.com/coldforge/schnorrauth/internal/metrics"
	"github.com/coldforge/schnorrauth/internal/registry"
	"github.com/coldforge/schnorrauth/internal/session"
	"github.com/coldforge/schnorrauth/internal/store"
	"github.com/coldforge/schnorrauth/internal/store/memstore"
	"github.com/coldforge/schnorrauth/internal/wire"
	"github.com/stretchr/testify/require"
)

// testRig wires a Handler against a fresh in-memory store and runs a single
// connection's worker loop in the background, driven by a net.Pipe.
type testRig struct {
	t       *testing.T
	h       *Handler
	pairing *registry.PendingPairRegistry
	users   *authstore.Store
	docs    store.Store
	g       *group.Group
}

func newRig(t *testing.T) *testRig {
	t.Helper()
	g, err := group.Get("test23")
	require.NoError(t, err)

	docs := memstore.New()
	users := authstore.New(docs)
	pairing := registry.New()
	h := New(g, users, pairing, metrics.Noop)

	return &testRig{t: t, h: h, pairing: pairing, users: users, docs: docs, g: g}
}

// client wraps the client side of a net.Pipe with a wire codec and drives
// the handshake.
type client struct {
	t     *testing.T
	codec *wire.Codec
}

func (r *testRig) connect() *client {
	server, clientConn := net.Pipe()
	r.t.Cleanup(func() { _ = clientConn.Close() })
	conn := session.New("c", server)
	go r.h.Handle(conn)

	c := &client{t: r.t, codec: wire.NewCodec(clientConn)}
	c.handshake()
	return c
}

func (c *client) handshake() {
	require.NoError(c.t, c.codec.WriteFrame(wire.NewFrame(wire.HandshakeReq, nil)))
	frame, err := c.codec.ReadFrame()
	require.NoError(c.t, err)
	code, ok := frame.TypeCode()
	require.True(c.t, ok)
	require.Equal(c.t, wire.GroupSelection, code)

	require.NoError(c.t, c.codec.WriteFrame(wire.NewFrame(wire.HandshakeRes, nil)))
}

func (c *client) send(t wire.MessageType, fields map[string]any) {
	require.NoError(c.t, c.codec.WriteFrame(wire.NewFrame(t, fields)))
}

func (c *client) recv() wire.Frame {
	frame, err := c.codec.ReadFrame()
	require.NoError(c.t, err)
	return frame
}

func (c *client) recvCode() wire.MessageType {
	frame := c.recv()
	code, ok := frame.TypeCode()
	require.True(c.t, ok)
	return code
}

func registerAndAuth(t *testing.T, r *testRig, c *client, username string, alpha int64, deviceName string) {
	y := r.g.Exp(r.g.G, big.NewInt(alpha))
	c.send(wire.Register, map[string]any{
		"username": username, "public_key": wire.FormatHexBigInt(y), "device": deviceName,
	})
	require.Equal(t, wire.Registered, c.recvCode())
}

func authenticate(t *testing.T, r *testRig, c *client, username string, alpha, alphaT int64) wire.MessageType {
	ut := r.g.Exp(r.g.G, big.NewInt(alphaT))
	c.send(wire.AuthRequest, map[string]any{
		"username": username, "temp": wire.FormatHexBigInt(ut),
	})
	frame := c.recv()
	code, ok := frame.TypeCode()
	require.True(t, ok)
	require.Equal(t, wire.Challenge, code)

	challengeHex, ok := frame.GetString("challenge")
	require.True(t, ok)
	cVal, err := wire.ParseHexBigInt(challengeHex)
	require.NoError(t, err)

	// z = (alpha_t + alpha*c) mod q
	z := new(big.Int).Mul(big.NewInt(alpha), cVal)
	z.Add(z, big.NewInt(alphaT))
	z.Mod(z, r.g.Q)

	c.send(wire.AuthResponse, map[string]any{"response": wire.FormatHexBigInt(z)})
	return c.recvCode()
}

func TestS1_RegisterAndAuthenticate_HappyPath(t *testing.T) {
	r := newRig(t)
	c := r.connect()

	registerAndAuth(t, r, c, "alice", 6, "dev1")
	code := authenticate(t, r, c, "alice", 6, 4)
	require.Equal(t, wire.Accepted, code)
}

func TestS2_WrongResponse_Rejected(t *testing.T) {
	r := newRig(t)
	c := r.connect()

	registerAndAuth(t, r, c, "alice", 6, "dev1")

	ut := r.g.Exp(r.g.G, big.NewInt(4))
	c.send(wire.AuthRequest, map[string]any{"username": "alice", "temp": wire.FormatHexBigInt(ut)})
	frame := c.recv()
	code, _ := frame.TypeCode()
	require.Equal(t, wire.Challenge, code)
	challengeHex, _ := frame.GetString("challenge")
	cVal, err := wire.ParseHexBigInt(challengeHex)
	require.NoError(t, err)

	// The correct response is (4 + 6*c) mod q; one more than it never verifies.
	wrong := new(big.Int).Mul(big.NewInt(6), cVal)
	wrong.Add(wrong, big.NewInt(4+1))
	wrong.Mod(wrong, r.g.Q)
	c.send(wire.AuthResponse, map[string]any{"response": wire.FormatHexBigInt(wrong)})
	require.Equal(t, wire.Rejected, c.recvCode())
}

func TestS3_DuplicateUsername(t *testing.T) {
	r := newRig(t)
	c := r.connect()
	registerAndAuth(t, r, c, "alice", 6, "dev1")

	c.send(wire.Register, map[string]any{"username": "alice", "public_key": "0x12", "device": "dev2"})
	frame := c.recv()
	code, _ := frame.TypeCode()
	require.Equal(t, wire.Error, code)
	errCode, _ := frame["error_code"].(float64)
	require.Equal(t, float64(0), errCode)
}

func TestS4_PairingHappyPath(t *testing.T) {
	r := newRig(t)

	primary := r.connect()
	registerAndAuth(t, r, primary, "alice", 6, "dev1")
	require.Equal(t, wire.Accepted, authenticate(t, r, primary, "alice", 6, 4))

	secondary := r.connect()
	secondary.send(wire.AssocRequest, map[string]any{"device": "dev2", "pk": "0x09"})
	frame := secondary.recv()
	code, _ := frame.TypeCode()
	require.Equal(t, wire.TokenAssoc, code)
	token, _ := frame.GetString("token")
	require.NotEmpty(t, token)

	primary.send(wire.TokenAssoc, map[string]any{"token": token})
	require.Equal(t, wire.Accepted, primary.recvCode())

	secFrame := secondary.recv()
	secCode, _ := secFrame.TypeCode()
	require.Equal(t, wire.Accepted, secCode)
	username, _ := secFrame.GetString("username")
	require.Equal(t, "alice", username)

	user, err := r.users.FindUser(t.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, user.Devices, 2)
	require.True(t, user.Devices[0].MainDevice)
	require.False(t, user.Devices[1].MainDevice)
	require.Equal(t, "dev2", user.Devices[1].DeviceName)
}

func TestS5_PairingFromNonPrimary_NoMainDevice(t *testing.T) {
	r := newRig(t)

	primary := r.connect()
	registerAndAuth(t, r, primary, "alice", 6, "dev1")
	require.Equal(t, wire.Accepted, authenticate(t, r, primary, "alice", 6, 4))

	secondary := r.connect()
	secondary.send(wire.AssocRequest, map[string]any{"device": "dev2", "pk": "0x09"})
	frame := secondary.recv()
	token, _ := frame.GetString("token")

	primary.send(wire.TokenAssoc, map[string]any{"token": token})
	require.Equal(t, wire.Accepted, primary.recvCode())
	secFrame := secondary.recv() // dev2 gets ACCEPTED{username}
	secCode, _ := secFrame.TypeCode()
	require.Equal(t, wire.Accepted, secCode)

	// dev2 (the now-authenticated secondary) tries to confirm a pairing for dev3.
	tertiary := r.connect()
	tertiary.send(wire.AssocRequest, map[string]any{"device": "dev3", "pk": "0x0a"})
	tokFrame := tertiary.recv()
	tok3, _ := tokFrame.GetString("token")

	secondary.send(wire.TokenAssoc, map[string]any{"token": tok3})
	errFrame := secondary.recv()
	errCode, _ := errFrame.TypeCode()
	require.Equal(t, wire.Error, errCode)
	code, _ := errFrame["error_code"].(float64)
	require.Equal(t, float64(4), code) // NO_MAIN_DEVICE
}

func TestS6_ExpiredToken(t *testing.T) {
	r := newRig(t)

	primary := r.connect()
	registerAndAuth(t, r, primary, "alice", 6, "dev1")
	require.Equal(t, wire.Accepted, authenticate(t, r, primary, "alice", 6, 4))

	secondary := r.connect()
	secondary.send(wire.AssocRequest, map[string]any{"device": "dev2", "pk": "0x09"})
	frame := secondary.recv()
	token, _ := frame.GetString("token")

	// simulate clock +11 minutes by rewriting the token's expiry directly.
	backdate(t, r, token)

	primary.send(wire.TokenAssoc, map[string]any{"token": token})
	errFrame := primary.recv()
	errCode, _ := errFrame.TypeCode()
	require.Equal(t, wire.Error, errCode)
	code, _ := errFrame["error_code"].(float64)
	require.Equal(t, float64(6), code) // TOKEN_INVALID_OR_EXPIRED

	user, err := r.users.FindUser(t.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, user.Devices, 1)
}

// backdate rewrites a pairing token's expiry to the past, simulating the
// passage of time without a real 10-minute sleep.
func backdate(t *testing.T, r *testRig, token string) {
	t.Helper()
	expired := time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	err := r.docs.UpdateField(t.Context(), "temp_tokens", token, "expiry", expired)
	require.NoError(t, err)
}

func TestLogout_ReturnsToAnonymousAndClearsSession(t *testing.T) {
	r := newRig(t)
	c := r.connect()

	registerAndAuth(t, r, c, "alice", 6, "dev1")
	require.Equal(t, wire.Accepted, authenticate(t, r, c, "alice", 6, 4))

	user, err := r.users.FindUser(t.Context(), "alice")
	require.NoError(t, err)
	require.True(t, user.Devices[0].Logged)

	c.send(wire.Logout, nil)
	require.Equal(t, wire.LoggedOut, c.recvCode())

	user, err = r.users.FindUser(t.Context(), "alice")
	require.NoError(t, err)
	require.False(t, user.Devices[0].Logged)

	// The session is anonymous again: a second LOGOUT finds no logged-in
	// user and device, so it skips the store write but still answers
	// LOGGED_OUT rather than erroring.
	c.send(wire.Logout, nil)
	require.Equal(t, wire.LoggedOut, c.recvCode())
}

func TestTokenAssoc_ReusedToken_Unauthorized(t *testing.T) {
	r := newRig(t)

	primary := r.connect()
	registerAndAuth(t, r, primary, "alice", 6, "dev1")
	require.Equal(t, wire.Accepted, authenticate(t, r, primary, "alice", 6, 4))

	secondary := r.connect()
	secondary.send(wire.AssocRequest, map[string]any{"device": "dev2", "pk": "0x09"})
	frame := secondary.recv()
	token, _ := frame.GetString("token")
	require.NotEmpty(t, token)

	primary.send(wire.TokenAssoc, map[string]any{"token": token})
	require.Equal(t, wire.Accepted, primary.recvCode())
	require.Equal(t, wire.Accepted, secondary.recvCode())

	// The token was deleted once the pairing completed. Replaying the same
	// TOKEN_ASSOC must fail, not re-append dev2 a second time.
	primary.send(wire.TokenAssoc, map[string]any{"token": token})
	errFrame := primary.recv()
	errCode, _ := errFrame.TypeCode()
	require.Equal(t, wire.Error, errCode)
	code, _ := errFrame["error_code"].(float64)
	require.Equal(t, float64(wire.ErrUnauthorized), code)

	user, err := r.users.FindUser(t.Context(), "alice")
	require.NoError(t, err)
	require.Len(t, user.Devices, 2)
}

func TestAuthResponse_RejectedClearsChallenge_PreventsReplay(t *testing.T) {
	r := newRig(t)
	c := r.connect()
	registerAndAuth(t, r, c, "alice", 6, "dev1")

	ut := r.g.Exp(r.g.G, big.NewInt(4))
	c.send(wire.AuthRequest, map[string]any{"username": "alice", "temp": wire.FormatHexBigInt(ut)})
	frame := c.recv()
	code, _ := frame.TypeCode()
	require.Equal(t, wire.Challenge, code)
	challengeHex, _ := frame.GetString("challenge")
	cVal, err := wire.ParseHexBigInt(challengeHex)
	require.NoError(t, err)

	// The response that satisfies this challenge: z = (4 + 6*c) mod q.
	z := new(big.Int).Mul(big.NewInt(6), cVal)
	z.Add(z, big.NewInt(4))
	z.Mod(z, r.g.Q)

	// A wrong response gets REJECTED, which clears (temp_pk, challenge).
	wrong := new(big.Int).Add(z, big.NewInt(1))
	wrong.Mod(wrong, r.g.Q)
	c.send(wire.AuthResponse, map[string]any{"response": wire.FormatHexBigInt(wrong)})
	require.Equal(t, wire.Rejected, c.recvCode())

	// Replaying AUTH_RESPONSE against the same (now-cleared) challenge with
	// the response that would have satisfied it must not succeed — the
	// client has to start over with a fresh AUTH_REQUEST.
	c.send(wire.AuthResponse, map[string]any{"response": wire.FormatHexBigInt(z)})

	errFrame := c.recv()
	errCode, _ := errFrame.TypeCode()
	require.Equal(t, wire.Error, errCode)
	errVal, _ := errFrame["error_code"].(float64)
	require.Equal(t, float64(wire.ErrSessionNotFound), errVal)
}
