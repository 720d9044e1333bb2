// Package authstore implements the user and temp-token operations the
// protocol handler needs, on top of the generic internal/store.Store
// document abstraction.
package authstore

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"

	"github.com/coldforge/schnorrauth/internal/store"
)

const (
	usersCollection      = "users"
	tempTokensCollection = "temp_tokens"

	// TokenTTL is the lifetime of a minted pairing token before it is
	// considered expired and rejected at lookup time.
	TokenTTL = 10 * time.Minute
)

// ErrUsernameExists is returned by CreateUser when the username is already
// taken.
var ErrUsernameExists = errors.New("authstore: username already exists")

// ErrUserNotFound is returned when a lookup by username misses.
var ErrUserNotFound = errors.New("authstore: user not found")

// ErrTokenNotFound is returned when a lookup by token misses.
var ErrTokenNotFound = errors.New("authstore: token not found")

// ErrTokenExpired is returned by FindToken when the token exists but its
// expiry has passed; FindToken deletes the expired token before returning.
var ErrTokenExpired = errors.New("authstore: token expired")

// Device mirrors the wire-level device shape: an enrolled public key, a
// human label, whether it was the first device enrolled, and whether it is
// currently logged in.
type Device struct {
	PK         string `json:"pk"`
	DeviceName string `json:"device_name"`
	MainDevice bool   `json:"main_device"`
	Logged     bool   `json:"logged"`
}

// User is a single registered account: a username and its ordered device
// list. The first device enrolled is always MainDevice.
type User struct {
	ID        string    `json:"id"`
	Devices   []Device  `json:"devices"`
	CreatedAt time.Time `json:"created_at"`
}

// TempToken is the short-lived pairing handle minted by an ASSOC_REQUEST and
// redeemed by the confirming primary's TOKEN_ASSOC.
type TempToken struct {
	Token      string    `json:"token"`
	PK         string    `json:"pk"`
	DeviceName string    `json:"device_name"`
	CreatedAt  time.Time `json:"created_at"`
	Expiry     time.Time `json:"expiry"`
}

// Store wraps a store.Store with the auth-domain's user and token
// operations.
type Store struct {
	docs store.Store
}

// New wraps a generic document store with auth-domain operations.
func New(docs store.Store) *Store {
	return &Store{docs: docs}
}

// CreateUser registers a new user with a single device, main_device=true,
// logged=true (transition 2 of the protocol handler).
func (s *Store) CreateUser(ctx context.Context, username, pk, deviceName string) (*User, error) {
	user := &User{
		ID: username,
		Devices: []Device{
			{PK: pk, DeviceName: deviceName, MainDevice: true, Logged: true},
		},
		CreatedAt: time.Now().UTC(),
	}

	err := s.docs.Insert(ctx, usersCollection, username, userToDoc(user))
	if err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			return nil, ErrUsernameExists
		}
		return nil, fmt.Errorf("authstore: create user %q: %w", username, err)
	}
	return user, nil
}

// FindUser looks up a user by username.
func (s *Store) FindUser(ctx context.Context, username string) (*User, error) {
	doc, err := s.docs.FindByID(ctx, usersCollection, username)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, fmt.Errorf("authstore: find user %q: %w", username, err)
	}
	return docToUser(doc)
}

// SetDeviceLogged flips the logged flag for the named device on a user,
// used on successful auth (true) and on LOGOUT (false).
func (s *Store) SetDeviceLogged(ctx context.Context, username, deviceName string, logged bool) error {
	err := s.docs.UpdateArrayElementByMatch(ctx, usersCollection, username, "devices", "device_name", deviceName,
		map[string]any{"logged": logged})
	if err != nil {
		if store.IsNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("authstore: set device logged %q/%q: %w", username, deviceName, err)
	}
	return nil
}

// AppendDevice adds a newly paired device to an existing user's device list.
// It must be a single atomic push so two concurrent pairing confirmations
// never lose one device.
func (s *Store) AppendDevice(ctx context.Context, username string, device Device) error {
	err := s.docs.PushToArray(ctx, usersCollection, username, "devices", map[string]any{
		"pk":          device.PK,
		"device_name": device.DeviceName,
		"main_device": device.MainDevice,
		"logged":      device.Logged,
	})
	if err != nil {
		if store.IsNotFound(err) {
			return ErrUserNotFound
		}
		return fmt.Errorf("authstore: append device to %q: %w", username, err)
	}
	return nil
}

// ListUsers returns every registered user, for the admin read path. Never
// called from the protocol handler.
func (s *Store) ListUsers(ctx context.Context) ([]*User, error) {
	docs, err := s.docs.List(ctx, usersCollection)
	if err != nil {
		return nil, fmt.Errorf("authstore: list users: %w", err)
	}

	users := make([]*User, 0, len(docs))
	for _, doc := range docs {
		u, err := docToUser(doc)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, nil
}

// MintToken creates a pairing token for an ASSOC_REQUEST: token = first 32
// hex characters of SHA-256(pk || device || nonce16).
func (s *Store) MintToken(ctx context.Context, pk, deviceName string) (*TempToken, error) {
	nonce := make([]byte, 16)
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("authstore: mint token: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(pk))
	h.Write([]byte(deviceName))
	h.Write(nonce)
	token := hex.EncodeToString(h.Sum(nil))[:32]

	now := time.Now().UTC()
	tok := &TempToken{
		Token:      token,
		PK:         pk,
		DeviceName: deviceName,
		CreatedAt:  now,
		Expiry:     now.Add(TokenTTL),
	}

	if err := s.docs.Insert(ctx, tempTokensCollection, token, tempTokenToDoc(tok)); err != nil {
		return nil, fmt.Errorf("authstore: persist token: %w", err)
	}
	return tok, nil
}

// FindToken looks up a pairing token. If it exists but has expired, it is
// deleted and ErrTokenExpired is returned — expiry is enforced lazily, only
// at lookup time.
func (s *Store) FindToken(ctx context.Context, token string) (*TempToken, error) {
	doc, err := s.docs.FindByID(ctx, tempTokensCollection, token)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, ErrTokenNotFound
		}
		return nil, fmt.Errorf("authstore: find token: %w", err)
	}

	tok, err := docToTempToken(doc)
	if err != nil {
		return nil, err
	}

	if time.Now().UTC().After(tok.Expiry) {
		_ = s.docs.Delete(ctx, tempTokensCollection, token)
		return nil, ErrTokenExpired
	}
	return tok, nil
}

// DeleteToken removes a redeemed or expired token.
func (s *Store) DeleteToken(ctx context.Context, token string) error {
	if err := s.docs.Delete(ctx, tempTokensCollection, token); err != nil && !store.IsNotFound(err) {
		return fmt.Errorf("authstore: delete token: %w", err)
	}
	return nil
}

func userToDoc(u *User) store.Document {
	devices := make([]any, len(u.Devices))
	for i, d := range u.Devices {
		devices[i] = map[string]any{
			"pk": d.PK, "device_name": d.DeviceName, "main_device": d.MainDevice, "logged": d.Logged,
		}
	}
	return store.Document{
		"id": u.ID, "devices": devices, "created_at": u.CreatedAt.Format(time.RFC3339),
	}
}

func docToUser(doc store.Document) (*User, error) {
	id, _ := doc["id"].(string)
	createdAt, _ := doc["created_at"].(string)
	t, err := time.Parse(time.RFC3339, createdAt)
	if err != nil {
		t = time.Time{}
	}

	rawDevices, _ := doc["devices"].([]any)
	devices := make([]Device, 0, len(rawDevices))
	for _, raw := range rawDevices {
		m, ok := raw.(map[string]any)
		if !ok {
			continue
		}
		devices = append(devices, Device{
			PK:         stringField(m, "pk"),
			DeviceName: stringField(m, "device_name"),
			MainDevice: boolField(m, "main_device"),
			Logged:     boolField(m, "logged"),
		})
	}

	return &User{ID: id, Devices: devices, CreatedAt: t}, nil
}

func tempTokenToDoc(tok *TempToken) store.Document {
	return store.Document{
		"token": tok.Token, "pk": tok.PK, "device_name": tok.DeviceName,
		"created_at": tok.CreatedAt.Format(time.RFC3339), "expiry": tok.Expiry.Format(time.RFC3339),
	}
}

func docToTempToken(doc store.Document) (*TempToken, error) {
	created, err := time.Parse(time.RFC3339, stringField(doc, "created_at"))
	if err != nil {
		return nil, fmt.Errorf("authstore: parse created_at: %w", err)
	}
	expiry, err := time.Parse(time.RFC3339, stringField(doc, "expiry"))
	if err != nil {
		return nil, fmt.Errorf("authstore: parse expiry: %w", err)
	}
	return &TempToken{
		Token:      stringField(doc, "token"),
		PK:         stringField(doc, "pk"),
		DeviceName: stringField(doc, "device_name"),
		CreatedAt:  created,
		Expiry:     expiry,
	}, nil
}

func stringField(m map[string]any, key string) string {
	s, _ := m[key].(string)
	return s
}

func boolField(m map[string]any, key string) bool {
	b, _ := m[key].(bool)
	return b
}
