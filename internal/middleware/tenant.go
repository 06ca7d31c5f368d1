// tenant.go resolves the dealer (tenant) a request belongs to and guards routes that need one.
//
// Resolution order: subdomain of a configured app domain, then the leading path segment, then
// the tenant bound to the caller's session. A tenant that is named, or remembered by a session,
// but cannot be resolved to an active directory entry ends the request with 404; the request
// never falls through to a handler unscoped.
package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/session"
	"github.com/dealer-crm/crm-backend/internal/telemetry"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/gin-gonic/gin"
)

// gin.Context keys set by TenantResolverMiddleware.
const (
	TenantKey     = "tenant"
	TenantIDKey   = "tenant_id"
	TenantSlugKey = "tenant_slug"
)

// DefaultTenantLookupTimeout bounds a directory lookup when no timeout is configured.
const DefaultTenantLookupTimeout = 3 * time.Second

// TenantDirectory looks tenants up. Both methods return nil, nil for an unknown tenant.
type TenantDirectory interface {
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	GetByID(ctx context.Context, id string) (*models.Tenant, error)
}

// TenantResolverOptions configures TenantResolverMiddleware.
type TenantResolverOptions struct {
	Resolver      *tenancy.Resolver
	LookupTimeout time.Duration
	Cookie        SessionCookie
}

// TenantResolverMiddleware attaches the resolved tenant to the gin context (TenantKey,
// TenantIDKey, TenantSlugKey) and to the request context (tenancy.WithInfo).
//
// Requests that name no tenant continue unresolved unless their session carries one;
// TenantGuardMiddleware decides whether that is acceptable for the route. A session tenant is
// re-read from the directory on every request, and a session whose tenant is gone or deactivated
// is deleted.
func TenantResolverMiddleware(dir TenantDirectory, sessions session.Store, opts TenantResolverOptions) gin.HandlerFunc {
	resolver := opts.Resolver
	if resolver == nil {
		resolver = tenancy.NewResolver(nil, nil, nil)
	}
	timeout := opts.LookupTimeout
	if timeout <= 0 {
		timeout = DefaultTenantLookupTimeout
	}

	return func(c *gin.Context) {
		slug, source := resolver.Candidate(c.Request.Host, c.Request.URL.Path)

		if slug == "" {
			data := opts.Cookie.Load(c, sessions)
			if data == nil || data.TenantID == "" {
				telemetry.TenantResolutionsTotal.WithLabelValues("none", telemetry.ResolutionUnresolved).Inc()
				c.Next()
				return
			}

			tenant, outcome, err := lookupTenant(c.Request.Context(), timeout, func(ctx context.Context) (*models.Tenant, error) {
				return dir.GetByID(ctx, data.TenantID)
			})
			if tenant == nil {
				if outcome == telemetry.ResolutionNotFound || outcome == telemetry.ResolutionInactive {
					opts.Cookie.Clear(c, sessions)
				}
				rejectLookup(c, tenancy.SourceSession, data.TenantSlug, outcome, err)
				return
			}
			resolved(c, tenant, tenancy.SourceSession)
			c.Next()
			return
		}

		// Stored slugs are lower case; a path segment may arrive in any case.
		slug = strings.ToLower(slug)
		if !tenancy.ValidSlug(slug) {
			rejectUnknownTenant(c, source, slug, telemetry.ResolutionNotFound)
			return
		}

		tenant, outcome, err := lookupTenant(c.Request.Context(), timeout, func(ctx context.Context) (*models.Tenant, error) {
			return dir.GetBySlug(ctx, slug)
		})
		if tenant == nil {
			rejectLookup(c, source, slug, outcome, err)
			return
		}
		resolved(c, tenant, source)

		opts.Cookie.Bind(c, sessions, &session.Data{TenantID: tenant.ID, TenantSlug: tenant.Slug})

		c.Next()
	}
}

// lookupTenant runs get under the lookup timeout and classifies the result as one of the
// telemetry resolution outcomes. The tenant is non-nil only for ResolutionResolved.
func lookupTenant(ctx context.Context, timeout time.Duration, get func(context.Context) (*models.Tenant, error)) (*models.Tenant, string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	tenant, err := get(ctx)
	telemetry.TenantLookupDuration.Observe(time.Since(start).Seconds())

	switch {
	case err != nil && errors.Is(ctx.Err(), context.DeadlineExceeded):
		return nil, telemetry.ResolutionTimeout, err
	case err != nil:
		return nil, telemetry.ResolutionError, err
	case tenant == nil:
		return nil, telemetry.ResolutionNotFound, nil
	case !tenant.IsActive:
		return nil, telemetry.ResolutionInactive, nil
	}
	return tenant, telemetry.ResolutionResolved, nil
}

// rejectLookup answers a lookup that did not resolve. A directory failure is a 500; every other
// outcome, a timeout included, is the same 404 an unknown tenant gets.
func rejectLookup(c *gin.Context, source tenancy.Source, slug, outcome string, err error) {
	switch outcome {
	case telemetry.ResolutionError:
		telemetry.TenantResolutionsTotal.WithLabelValues(string(source), outcome).Inc()
		slog.Error("tenant lookup failed",
			"error", err,
			"slug", slug,
			"source", string(source),
			"request_id", c.GetString(RequestIDKey))
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": "Internal server error",
		})
		return
	case telemetry.ResolutionTimeout:
		slog.Warn("tenant lookup timed out",
			"slug", slug,
			"source", string(source),
			"request_id", c.GetString(RequestIDKey))
	}
	rejectUnknownTenant(c, source, slug, outcome)
}

func resolved(c *gin.Context, tenant *models.Tenant, source tenancy.Source) {
	c.Set(TenantKey, tenant)
	attachTenant(c, tenancy.Info{ID: tenant.ID, Slug: tenant.Slug, Source: source})
	telemetry.TenantResolutionsTotal.WithLabelValues(string(source), telemetry.ResolutionResolved).Inc()
}

// rejectUnknownTenant ends the request with 404. Inactive and unknown tenants get the same body
// so a caller cannot probe which slugs exist.
func rejectUnknownTenant(c *gin.Context, source tenancy.Source, slug, outcome string) {
	telemetry.TenantResolutionsTotal.WithLabelValues(string(source), outcome).Inc()
	slog.Info("tenant not resolved",
		"slug", slug,
		"source", string(source),
		"outcome", outcome,
		"request_id", c.GetString(RequestIDKey))
	c.AbortWithStatusJSON(http.StatusNotFound, gin.H{
		"error":   "Tenant not found",
		"message": "No active dealer matches this address",
	})
}

func attachTenant(c *gin.Context, info tenancy.Info) {
	c.Set(TenantIDKey, info.ID)
	c.Set(TenantSlugKey, info.Slug)
	c.Request = c.Request.WithContext(tenancy.WithInfo(c.Request.Context(), info))
}

// TenantGuardMiddleware aborts with 400 when no tenant was resolved for the request.
func TenantGuardMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if tenancy.IDFromContext(c.Request.Context()) == "" {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{
				"error":   "Tenant required",
				"message": "This endpoint must be called on a dealer subdomain or path",
				"code":    "TENANT_REQUIRED",
			})
			return
		}
		c.Next()
	}
}
