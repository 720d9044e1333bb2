package sqlstore

import (
	"context"
	"testing"

	"github.com/coldforge/schnorrauth/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New("sqlite", "file::memory:?cache=shared")
	require.NoError(t, err)
	return s
}

func TestInsert_DuplicateFails(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Insert(ctx, "users", "alice", store.Document{"devices": []any{}}))
	err := s.Insert(ctx, "users", "alice", store.Document{"devices": []any{}})
	assert.ErrorIs(t, err, store.ErrAlreadyExists)
}

func TestFindByID_NotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.FindByID(context.Background(), "users", "ghost")
	assert.True(t, store.IsNotFound(err))
}

func TestPushToArray_AppendsDevice(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "users", "bob", store.Document{"devices": []any{}}))

	require.NoError(t, s.PushToArray(ctx, "users", "bob", "devices", map[string]any{
		"device_name": "dev2", "main_device": false, "logged": true,
	}))

	doc, err := s.FindByID(ctx, "users", "bob")
	require.NoError(t, err)
	devices := doc["devices"].([]any)
	require.Len(t, devices, 1)
	assert.Equal(t, "dev2", devices[0].(map[string]any)["device_name"])
}

func TestUpdateArrayElementByMatch_FlipsLoggedState(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "users", "carol", store.Document{
		"devices": []any{
			map[string]any{"device_name": "dev1", "logged": true},
		},
	}))

	require.NoError(t, s.UpdateArrayElementByMatch(ctx, "users", "carol", "devices", "device_name", "dev1", map[string]any{
		"logged": false,
	}))

	doc, err := s.FindByID(ctx, "users", "carol")
	require.NoError(t, err)
	devices := doc["devices"].([]any)
	assert.Equal(t, false, devices[0].(map[string]any)["logged"])
}

func TestUpdateArrayElementByMatch_NoMatch(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "users", "dave", store.Document{"devices": []any{}}))

	err := s.UpdateArrayElementByMatch(ctx, "users", "dave", "devices", "device_name", "dev9", map[string]any{"logged": false})
	assert.True(t, store.IsNotFound(err))
}

func TestDelete(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "temp_tokens", "tok1", store.Document{"pk": "0x1"}))
	require.NoError(t, s.Delete(ctx, "temp_tokens", "tok1"))

	_, err := s.FindByID(ctx, "temp_tokens", "tok1")
	assert.True(t, store.IsNotFound(err))
}

func TestList_ReturnsAllDocumentsInCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "users_list_test", "frank", store.Document{"id": "frank"}))
	require.NoError(t, s.Insert(ctx, "users_list_test", "gina", store.Document{"id": "gina"}))

	docs, err := s.List(ctx, "users_list_test")
	require.NoError(t, err)
	require.Len(t, docs, 2)
}

func TestUpdateField(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.Insert(ctx, "users", "erin", store.Document{"devices": []any{}}))

	require.NoError(t, s.UpdateField(ctx, "users", "erin", "main_pk", "0xabc"))

	doc, err := s.FindByID(ctx, "users", "erin")
	require.NoError(t, err)
	assert.Equal(t, "0xabc", doc["main_pk"])
}
