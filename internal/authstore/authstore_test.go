package authstore

import (
	"context"
	"testing"
	"time"

	"github.com/coldforge/schnorrauth/internal/store/memstore"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateUser_DuplicateFails(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()

	_, err := s.CreateUser(ctx, "alice", "0x10", "phone")
	require.NoError(t, err)

	_, err = s.CreateUser(ctx, "alice", "0x11", "laptop")
	assert.ErrorIs(t, err, ErrUsernameExists)
}

func TestCreateUser_FirstDeviceIsMain(t *testing.T) {
	s := New(memstore.New())
	user, err := s.CreateUser(context.Background(), "alice", "0x10", "phone")
	require.NoError(t, err)
	require.Len(t, user.Devices, 1)
	assert.True(t, user.Devices[0].MainDevice)
	assert.True(t, user.Devices[0].Logged)
}

func TestFindUser_NotFound(t *testing.T) {
	s := New(memstore.New())
	_, err := s.FindUser(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestSetDeviceLogged_RoundTrips(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "alice", "0x10", "phone")
	require.NoError(t, err)

	require.NoError(t, s.SetDeviceLogged(ctx, "alice", "phone", false))

	user, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	assert.False(t, user.Devices[0].Logged)
}

func TestAppendDevice_PreservesOrderAndMainFlag(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "alice", "0x10", "phone")
	require.NoError(t, err)

	require.NoError(t, s.AppendDevice(ctx, "alice", Device{PK: "0x20", DeviceName: "laptop", MainDevice: false, Logged: true}))

	user, err := s.FindUser(ctx, "alice")
	require.NoError(t, err)
	require.Len(t, user.Devices, 2)
	assert.True(t, user.Devices[0].MainDevice)
	assert.False(t, user.Devices[1].MainDevice)
	assert.Equal(t, "laptop", user.Devices[1].DeviceName)
}

func TestListUsers_ReturnsEveryRegisteredAccount(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()
	_, err := s.CreateUser(ctx, "alice", "0x10", "phone")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "bob", "0x11", "phone")
	require.NoError(t, err)

	users, err := s.ListUsers(ctx)
	require.NoError(t, err)
	assert.Len(t, users, 2)
}

func TestMintAndFindToken(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()

	tok, err := s.MintToken(ctx, "0x20", "laptop")
	require.NoError(t, err)
	assert.Len(t, tok.Token, 32)

	found, err := s.FindToken(ctx, tok.Token)
	require.NoError(t, err)
	assert.Equal(t, tok.PK, found.PK)
	assert.Equal(t, tok.DeviceName, found.DeviceName)
}

func TestFindToken_Expired(t *testing.T) {
	s := New(memstore.New())
	ctx := context.Background()

	tok, err := s.MintToken(ctx, "0x20", "laptop")
	require.NoError(t, err)

	doc, err := s.docs.FindByID(ctx, tempTokensCollection, tok.Token)
	require.NoError(t, err)
	doc["expiry"] = time.Now().UTC().Add(-time.Minute).Format(time.RFC3339)
	require.NoError(t, s.docs.UpdateField(ctx, tempTokensCollection, tok.Token, "expiry", doc["expiry"]))

	_, err = s.FindToken(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrTokenExpired)

	_, err = s.FindToken(ctx, tok.Token)
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestFindToken_NotFound(t *testing.T) {
	s := New(memstore.New())
	_, err := s.FindToken(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestDeleteToken_IdempotentWhenMissing(t *testing.T) {
	s := New(memstore.New())
	assert.NoError(t, s.DeleteToken(context.Background(), "never-existed"))
}
