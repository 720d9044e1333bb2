// Package registry implements the pending-pair registry: the one piece of
// cross-worker shared state outside the stores. A secondary device parks its
// ConnectionContext here under its pairing token while it waits for the
// primary to confirm; the primary looks it up by token to deliver the
// ACCEPTED/ERROR that completes the pairing.
package registry

import (
	"sync"

	"github.com/coldforge/schnorrauth/internal/session"
)

// PendingPairRegistry maps a pairing token to the secondary's
// ConnectionContext. All reads and writes take a single mutex; the lock is
// never held across I/O.
type PendingPairRegistry struct {
	mu      sync.Mutex
	pending map[string]*session.ConnectionContext
}

// New returns an empty registry.
func New() *PendingPairRegistry {
	return &PendingPairRegistry{pending: make(map[string]*session.ConnectionContext)}
}

// Register parks a secondary's connection under a freshly minted token.
func (r *PendingPairRegistry) Register(token string, conn *session.ConnectionContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.pending[token] = conn
}

// Lookup returns the secondary's connection for a token, or ok=false if the
// secondary already disconnected (or the token was never registered).
func (r *PendingPairRegistry) Lookup(token string) (*session.ConnectionContext, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	conn, ok := r.pending[token]
	return conn, ok
}

// Remove deletes a registry entry, idempotently.
func (r *PendingPairRegistry) Remove(token string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.pending, token)
}

// RemoveConn removes every entry pointing at conn — used when a worker's
// connection is torn down (EOF/reset) and may still be registered under a
// token it minted.
func (r *PendingPairRegistry) RemoveConn(conn *session.ConnectionContext) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for token, c := range r.pending {
		if c == conn {
			delete(r.pending, token)
		}
	}
}
