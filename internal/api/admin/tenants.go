// tenants.go implements the platform tenant directory endpoints and tenant impersonation.
package admin

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/db/repositories"
	"github.com/dealer-crm/crm-backend/internal/middleware"
	"github.com/dealer-crm/crm-backend/internal/session"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/gin-gonic/gin"
)

// TenantStore is the tenant directory access the admin endpoints need. Satisfied by
// *repositories.TenantRepository.
type TenantStore interface {
	GetBySlug(ctx context.Context, slug string) (*models.Tenant, error)
	List(ctx context.Context) ([]*models.Tenant, error)
	Create(ctx context.Context, t *models.Tenant) error
	SetActive(ctx context.Context, id string, active bool) (bool, error)
}

// TenantHandlers handles tenant administration endpoints
type TenantHandlers struct {
	tenants  TenantStore
	sessions session.Store
	cookie   middleware.SessionCookie
}

// NewTenantHandlers creates a new TenantHandlers instance. sessions and cookie are used by
// impersonation to bind the chosen tenant to the caller's session.
func NewTenantHandlers(tenants TenantStore, sessions session.Store, cookie middleware.SessionCookie) *TenantHandlers {
	return &TenantHandlers{tenants: tenants, sessions: sessions, cookie: cookie}
}

// CreateTenantRequest is the body of POST /api/v1/admin/tenants
type CreateTenantRequest struct {
	Name       string  `json:"name" binding:"required"`
	Slug       string  `json:"slug" binding:"required"`
	Subdomain  *string `json:"subdomain"`
	PathPrefix *string `json:"pathPrefix"`
	IsActive   *bool   `json:"isActive"`
}

// UpdateTenantRequest is the body of PATCH /api/v1/admin/tenants/:slug
type UpdateTenantRequest struct {
	IsActive *bool `json:"isActive" binding:"required"`
}

// ListTenantsHandler lists every tenant, active or not.
// GET /api/v1/admin/tenants
func (h *TenantHandlers) ListTenantsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenants, err := h.tenants.List(c.Request.Context())
		if err != nil {
			slog.Error("failed to list tenants", "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list tenants"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"tenants": tenants})
	}
}

// CreateTenantHandler provisions a tenant. New tenants are active unless isActive is false.
// POST /api/v1/admin/tenants
func (h *TenantHandlers) CreateTenantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req CreateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: name and slug are required"})
			return
		}

		t := &models.Tenant{
			Name:       req.Name,
			Slug:       req.Slug,
			Subdomain:  req.Subdomain,
			PathPrefix: req.PathPrefix,
			IsActive:   req.IsActive == nil || *req.IsActive,
		}
		if err := h.tenants.Create(c.Request.Context(), t); err != nil {
			switch {
			case errors.Is(err, repositories.ErrInvalidSlug):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid slug", "message": repositories.ErrInvalidSlug.Error()})
			case errors.Is(err, repositories.ErrSlugTaken):
				c.JSON(http.StatusConflict, gin.H{"error": "Slug already in use"})
			default:
				slog.Error("failed to create tenant", "slug", req.Slug, "error", err)
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create tenant"})
			}
			return
		}

		c.Set(middleware.AuditActionKey, "tenant.create")
		c.Set(middleware.AuditResourceIDKey, t.ID)
		c.JSON(http.StatusCreated, gin.H{"tenant": t})
	}
}

// UpdateTenantHandler activates or deactivates a tenant. A deactivated tenant stops resolving
// immediately, through sessions too; requests for it answer 404.
// PATCH /api/v1/admin/tenants/:slug
func (h *TenantHandlers) UpdateTenantHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req UpdateTenantRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: isActive is required"})
			return
		}

		t, ok := h.lookup(c)
		if !ok {
			return
		}
		if _, err := h.tenants.SetActive(c.Request.Context(), t.ID, *req.IsActive); err != nil {
			slog.Error("failed to update tenant", "slug", t.Slug, "error", err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to update tenant"})
			return
		}
		t.IsActive = *req.IsActive

		c.Set(middleware.AuditActionKey, "tenant.update")
		c.Set(middleware.AuditResourceIDKey, t.ID)
		c.JSON(http.StatusOK, gin.H{"tenant": t})
	}
}

// ImpersonateHandler binds a tenant to the caller's session so that later requests without a
// tenant in the host or path act on that tenant. The action is written to the audit log.
// POST /api/v1/admin/tenants/:slug/impersonate
func (h *TenantHandlers) ImpersonateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		t, ok := h.lookup(c)
		if !ok {
			return
		}
		if !t.IsActive {
			c.JSON(http.StatusConflict, gin.H{"error": "Tenant is inactive"})
			return
		}

		// Attribute the audit entry to the impersonated tenant.
		c.Request = c.Request.WithContext(tenancy.WithInfo(c.Request.Context(), tenancy.Info{ID: t.ID, Slug: t.Slug}))
		c.Set(middleware.AuditActionKey, "tenant.impersonate")
		c.Set(middleware.AuditResourceIDKey, t.ID)

		userID := c.GetString(middleware.UserIDKey)
		h.cookie.Bind(c, h.sessions, &session.Data{
			TenantID:   t.ID,
			TenantSlug: t.Slug,
			UserID:     userID,
		})

		slog.Info("tenant impersonation started",
			"user_id", userID,
			"tenant_id", t.ID,
			"tenant_slug", t.Slug,
			"request_id", c.GetString(middleware.RequestIDKey),
		)
		c.JSON(http.StatusOK, gin.H{
			"tenant":  t,
			"message": "Session bound to tenant " + t.Slug,
		})
	}
}

func (h *TenantHandlers) lookup(c *gin.Context) (*models.Tenant, bool) {
	slug := c.Param("slug")
	if !tenancy.ValidSlug(slug) {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return nil, false
	}
	t, err := h.tenants.GetBySlug(c.Request.Context(), slug)
	if err != nil {
		slog.Error("failed to get tenant", "slug", slug, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve tenant"})
		return nil, false
	}
	if t == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Tenant not found"})
		return nil, false
	}
	return t, true
}
