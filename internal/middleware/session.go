// session.go binds the tenant session cookie to the session store.
package middleware

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/dealer-crm/crm-backend/internal/session"
	"github.com/dealer-crm/crm-backend/internal/telemetry"
	"github.com/gin-gonic/gin"
)

// SessionIDKey is the gin.Context key holding the current session ID, once known.
const SessionIDKey = "session_id"

// SessionCookie describes the cookie that carries the session ID.
type SessionCookie struct {
	Name   string
	TTL    time.Duration
	Secure bool
	// Backend labels session store error metrics (memory or redis).
	Backend string
}

// ID returns the session ID presented by the client, if it is well formed.
func (sc SessionCookie) ID(c *gin.Context) (string, bool) {
	if id := c.GetString(SessionIDKey); id != "" {
		return id, true
	}
	id, err := c.Cookie(sc.Name)
	if err != nil || !session.ValidID(id) {
		return "", false
	}
	return id, true
}

// Load reads the client's session. A missing cookie, an unknown session and a store failure
// all yield nil; failures are logged and counted.
func (sc SessionCookie) Load(c *gin.Context, store session.Store) *session.Data {
	id, ok := sc.ID(c)
	if !ok || store == nil {
		return nil
	}
	data, err := store.Get(c.Request.Context(), id)
	if err != nil {
		telemetry.SessionStoreErrorsTotal.WithLabelValues(sc.Backend, "get").Inc()
		slog.Warn("session read failed",
			"error", err,
			"request_id", c.GetString(RequestIDKey))
		return nil
	}
	c.Set(SessionIDKey, id)
	return data
}

// Bind stores data under the client's session, creating the session and its cookie when the
// client has none. Store failures are logged and counted but never fail the request.
func (sc SessionCookie) Bind(c *gin.Context, store session.Store, data *session.Data) {
	if store == nil {
		return
	}
	id, ok := sc.ID(c)
	if !ok {
		id = session.NewID()
	}
	data.UpdatedAt = time.Now().UTC()

	// Detached from the request so a client disconnect does not drop the write.
	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
	defer cancel()
	if err := store.Save(ctx, id, data, sc.TTL); err != nil {
		telemetry.SessionStoreErrorsTotal.WithLabelValues(sc.Backend, "save").Inc()
		slog.Warn("session write failed",
			"error", err,
			"tenant_id", data.TenantID,
			"request_id", c.GetString(RequestIDKey))
		return
	}

	c.Set(SessionIDKey, id)
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.Name, id, int(sc.TTL.Seconds()), "/", "", sc.Secure, true)
}

// Clear deletes the client's session and expires its cookie. A store failure is logged and
// counted; the cookie is expired either way.
func (sc SessionCookie) Clear(c *gin.Context, store session.Store) {
	id, ok := sc.ID(c)
	if !ok || store == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.WithoutCancel(c.Request.Context()), 2*time.Second)
	defer cancel()
	if err := store.Delete(ctx, id); err != nil {
		telemetry.SessionStoreErrorsTotal.WithLabelValues(sc.Backend, "delete").Inc()
		slog.Warn("session delete failed",
			"error", err,
			"request_id", c.GetString(RequestIDKey))
	}

	c.Set(SessionIDKey, "")
	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie(sc.Name, "", -1, "/", "", sc.Secure, true)
}
