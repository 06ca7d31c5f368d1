// Package crm implements the tenant-scoped data endpoints: business records, equipment, service
// tickets and the sales pipeline report.
//
// Every handler here runs behind TenantResolverMiddleware, TenantGuardMiddleware and
// AuthMiddleware, so the tenant id and principal are always present in the request context.
// Handlers never read a tenant id from the request body or query string.
package crm

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/dealer-crm/crm-backend/internal/db/repositories"
	"github.com/dealer-crm/crm-backend/internal/fieldmap"
	"github.com/dealer-crm/crm-backend/internal/middleware"
	"github.com/dealer-crm/crm-backend/internal/telemetry"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPerPage = 50
	maxPerPage     = 200
)

// EntityStore is the tenant-scoped storage an entity's handlers need. Satisfied by
// *repositories.EntityRepository.
type EntityStore interface {
	List(ctx context.Context, tenantID string, opts repositories.ListOptions) ([]map[string]any, int, error)
	Get(ctx context.Context, tenantID, id string) (map[string]any, error)
	Create(ctx context.Context, tenantID, createdBy string, values map[string]any) (map[string]any, error)
	Update(ctx context.Context, tenantID, id string, values map[string]any, check repositories.UpdateCheck) (map[string]any, error)
	Delete(ctx context.Context, tenantID, id string) (bool, error)
}

// writeHooks lets an entity adjust a storage-shaped payload before it is written.
type writeHooks struct {
	// prepareCreate may rewrite values; a returned error is mapped by writeError.
	prepareCreate func(c *gin.Context, values map[string]any) error
	// prepareUpdate may rewrite values and returns the check run against the locked row.
	prepareUpdate func(c *gin.Context, values map[string]any) (repositories.UpdateCheck, error)
}

// EntityHandlers serves list/get/create/update/delete for one entity.
type EntityHandlers struct {
	entity  string
	store   EntityStore
	mapping *fieldmap.Mapping
	hooks   writeHooks
}

// NewEntityHandlers creates handlers for an entity without lifecycle rules.
func NewEntityHandlers(store EntityStore, mapping *fieldmap.Mapping) *EntityHandlers {
	return &EntityHandlers{entity: mapping.Name(), store: store, mapping: mapping}
}

// ListHandler returns one page of the tenant's rows.
// GET /api/v1/{entity}?page=1&per_page=50&<externalField>=<value>
func (h *EntityHandlers) ListHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := tenancy.IDFromContext(c.Request.Context())

		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", strconv.Itoa(defaultPerPage)))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > maxPerPage {
			perPage = defaultPerPage
		}

		filters := map[string]any{}
		for key, values := range c.Request.URL.Query() {
			if key == "page" || key == "per_page" || len(values) == 0 {
				continue
			}
			filters[h.mapping.StorageName(key)] = values[0]
		}

		rows, total, err := h.store.List(c.Request.Context(), tenantID, repositories.ListOptions{
			Filters: filters,
			Limit:   perPage,
			Offset:  (page - 1) * perPage,
		})
		if err != nil {
			h.writeError(c, "list", err)
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"data": h.mapping.ToExternalAll(rows),
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// GetHandler returns one of the tenant's rows.
// GET /api/v1/{entity}/:id
func (h *EntityHandlers) GetHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := tenancy.IDFromContext(c.Request.Context())
		id, ok := h.rowID(c)
		if !ok {
			return
		}

		row, err := h.store.Get(c.Request.Context(), tenantID, id)
		if err != nil {
			h.writeError(c, "get", err)
			return
		}
		if row == nil {
			h.notFound(c)
			return
		}

		c.JSON(http.StatusOK, gin.H{"data": h.mapping.ToExternal(row)})
	}
}

// CreateHandler inserts a row owned by the resolved tenant and created by the principal.
// POST /api/v1/{entity}
func (h *EntityHandlers) CreateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := tenancy.IDFromContext(c.Request.Context())

		values, ok := h.bindPayload(c)
		if !ok {
			return
		}
		if h.hooks.prepareCreate != nil {
			if err := h.hooks.prepareCreate(c, values); err != nil {
				h.writeError(c, "create", err)
				return
			}
		}

		row, err := h.store.Create(c.Request.Context(), tenantID, c.GetString(middleware.UserIDKey), values)
		if err != nil {
			h.writeError(c, "create", err)
			return
		}

		telemetry.EntityWritesTotal.WithLabelValues(h.entity, "create").Inc()
		if id, ok := row["id"]; ok {
			c.Set(middleware.AuditResourceIDKey, toString(id))
		}
		c.JSON(http.StatusCreated, gin.H{"data": h.mapping.ToExternal(row)})
	}
}

// UpdateHandler applies a partial update to one of the tenant's rows.
// PATCH /api/v1/{entity}/:id
func (h *EntityHandlers) UpdateHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := tenancy.IDFromContext(c.Request.Context())
		id, ok := h.rowID(c)
		if !ok {
			return
		}

		values, ok := h.bindPayload(c)
		if !ok {
			return
		}
		var check repositories.UpdateCheck
		if h.hooks.prepareUpdate != nil {
			var err error
			if check, err = h.hooks.prepareUpdate(c, values); err != nil {
				h.writeError(c, "update", err)
				return
			}
		}

		row, err := h.store.Update(c.Request.Context(), tenantID, id, values, check)
		if err != nil {
			h.writeError(c, "update", err)
			return
		}
		if row == nil {
			h.notFound(c)
			return
		}

		telemetry.EntityWritesTotal.WithLabelValues(h.entity, "update").Inc()
		c.JSON(http.StatusOK, gin.H{"data": h.mapping.ToExternal(row)})
	}
}

// DeleteHandler removes one of the tenant's rows.
// DELETE /api/v1/{entity}/:id
func (h *EntityHandlers) DeleteHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := tenancy.IDFromContext(c.Request.Context())
		id, ok := h.rowID(c)
		if !ok {
			return
		}

		deleted, err := h.store.Delete(c.Request.Context(), tenantID, id)
		if err != nil {
			h.writeError(c, "delete", err)
			return
		}
		if !deleted {
			h.notFound(c)
			return
		}

		telemetry.EntityWritesTotal.WithLabelValues(h.entity, "delete").Inc()
		c.JSON(http.StatusOK, gin.H{"message": "Deleted"})
	}
}

// bindPayload decodes a flat JSON object and forward-transforms it to storage naming.
func (h *EntityHandlers) bindPayload(c *gin.Context) (map[string]any, bool) {
	dec := json.NewDecoder(c.Request.Body)
	dec.UseNumber()

	var body map[string]any
	if err := dec.Decode(&body); err != nil {
		msg := "Request body must be a JSON object"
		if errors.Is(err, io.EOF) {
			msg = "Request body is required"
		}
		c.JSON(http.StatusBadRequest, gin.H{"error": msg})
		return nil, false
	}
	if body == nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Request body must be a JSON object"})
		return nil, false
	}
	return h.mapping.ToStorage(body), true
}

// rowID reads the :id path parameter. Ids are UUIDs, so anything else cannot name a row and is
// answered with 404 before reaching storage.
func (h *EntityHandlers) rowID(c *gin.Context) (string, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		h.notFound(c)
		return "", false
	}
	return id.String(), true
}

func (h *EntityHandlers) notFound(c *gin.Context) {
	c.JSON(http.StatusNotFound, gin.H{"error": h.entity + " not found"})
}

// writeError maps repository and validation errors to responses. Anything unrecognized is
// logged with its context and answered with a generic 500.
func (h *EntityHandlers) writeError(c *gin.Context, operation string, err error) {
	var unknown *repositories.UnknownColumnsError
	var invalid *repositories.InvalidValueError
	var rejected *validationError

	switch {
	case errors.As(err, &unknown):
		fields := make([]string, len(unknown.Fields))
		for i, f := range unknown.Fields {
			fields[i] = h.mapping.ExternalName(f)
		}
		c.JSON(http.StatusBadRequest, gin.H{
			"error":  "Unknown fields",
			"fields": fields,
		})
	case errors.As(err, &invalid):
		body := gin.H{
			"error":   "Invalid field value",
			"message": invalid.Reason,
		}
		if invalid.Field != "" {
			body["field"] = h.mapping.ExternalName(invalid.Field)
		}
		c.JSON(http.StatusBadRequest, body)
	case errors.As(err, &rejected):
		telemetry.TransitionRejectionsTotal.WithLabelValues(rejected.reason).Inc()
		body := gin.H{
			"error":   rejected.title,
			"message": rejected.Error(),
		}
		if rejected.allowed != nil {
			body["allowed"] = rejected.allowed
		}
		c.JSON(rejected.status, body)
	default:
		info, _ := tenancy.FromContext(c.Request.Context())
		slog.Error("entity operation failed",
			"entity", h.entity,
			"operation", operation,
			"tenant_id", info.ID,
			"tenant_slug", info.Slug,
			"request_id", c.GetString(middleware.RequestIDKey),
			"error", err,
		)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

func toString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case []byte:
		return string(t)
	default:
		b, _ := json.Marshal(t)
		return string(b)
	}
}
