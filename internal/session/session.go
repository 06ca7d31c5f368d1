// Package session stores the tenant a browser session last resolved to, so requests whose host
// and path no longer carry a slug stay scoped to the same tenant until the session expires.
package session

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Data is the per-session state.
type Data struct {
	TenantID   string    `json:"tenant_id"`
	TenantSlug string    `json:"tenant_slug"`
	UserID     string    `json:"user_id,omitempty"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Store persists session data keyed by session ID.
//
// Get returns nil, nil for an unknown or expired session.
type Store interface {
	Get(ctx context.Context, id string) (*Data, error)
	Save(ctx context.Context, id string, data *Data, ttl time.Duration) error
	Delete(ctx context.Context, id string) error
}

// NewID returns a fresh random session ID.
func NewID() string {
	return uuid.NewString()
}

// ValidID reports whether id has the shape NewID produces. Cookies carrying anything else are
// ignored rather than used as store keys.
func ValidID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil && len(id) == 36
}
