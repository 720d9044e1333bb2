package adminapi

import (
	"context"
	"net/http"
	"time"

	"github.com/coldforge/schnorrauth/internal/authstore"
)

// healthCheckTimeout bounds how long a readiness probe waits on the store.
const healthCheckTimeout = 5 * time.Second

// healthHandler serves the unauthenticated liveness/readiness probes.
type healthHandler struct {
	users *authstore.Store
}

func (h *healthHandler) liveness(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthy(map[string]string{"service": "schnorrauthd"}))
}

// readiness confirms the store backing user lookups actually answers.
func (h *healthHandler) readiness(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	if _, err := h.users.ListUsers(ctx); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, unhealthy(err.Error()))
		return
	}
	writeJSON(w, http.StatusOK, healthy(nil))
}

// userSummary is the admin-visible projection of a registered account: no
// public key, no device secrets, nothing that would let an admin API reader
// impersonate a user.
type userSummary struct {
	Username    string `json:"username"`
	DeviceCount int    `json:"device_count"`
	CreatedAt   string `json:"created_at"`
}

// usersHandler serves the read-only /api/v1/users listing.
type usersHandler struct {
	users *authstore.Store
}

func (h *usersHandler) list(w http.ResponseWriter, r *http.Request) {
	users, err := h.users.ListUsers(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, errored(err.Error()))
		return
	}

	summaries := make([]userSummary, 0, len(users))
	for _, u := range users {
		summaries = append(summaries, userSummary{
			Username:    u.ID,
			DeviceCount: len(u.Devices),
			CreatedAt:   u.CreatedAt.Format(time.RFC3339),
		})
	}
	writeJSON(w, http.StatusOK, ok(summaries))
}
