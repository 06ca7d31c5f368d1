// audit_logs.go implements read access to the audit trail.
package admin

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/db/repositories"
	"github.com/gin-gonic/gin"
)

// AuditLogStore reads audit entries. Satisfied by *repositories.AuditRepository.
type AuditLogStore interface {
	ListAuditLogs(ctx context.Context, filters repositories.AuditFilters, limit, offset int) ([]*models.AuditLog, int, error)
	GetAuditLog(ctx context.Context, id string) (*models.AuditLog, error)
}

// AuditLogHandlers handles audit log endpoints
type AuditLogHandlers struct {
	store AuditLogStore
}

// NewAuditLogHandlers creates a new AuditLogHandlers instance
func NewAuditLogHandlers(store AuditLogStore) *AuditLogHandlers {
	return &AuditLogHandlers{store: store}
}

// ListAuditLogsHandler lists audit entries, newest first.
// GET /api/v1/admin/audit-logs?tenant_id=...&user_id=...&action=...&resource_type=...&start_date=...&end_date=...&page=1&per_page=50
func (h *AuditLogHandlers) ListAuditLogsHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
		perPage, _ := strconv.Atoi(c.DefaultQuery("per_page", "50"))
		if page < 1 {
			page = 1
		}
		if perPage < 1 || perPage > 200 {
			perPage = 50
		}

		filters := repositories.AuditFilters{
			UserID:       optionalQuery(c, "user_id"),
			TenantID:     optionalQuery(c, "tenant_id"),
			Action:       optionalQuery(c, "action"),
			ResourceType: optionalQuery(c, "resource_type"),
		}
		var err error
		if filters.StartDate, err = optionalTime(c, "start_date"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid start_date, expected RFC 3339"})
			return
		}
		if filters.EndDate, err = optionalTime(c, "end_date"); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid end_date, expected RFC 3339"})
			return
		}

		logs, total, err := h.store.ListAuditLogs(c.Request.Context(), filters, perPage, (page-1)*perPage)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to list audit logs"})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"audit_logs": logs,
			"pagination": gin.H{
				"page":     page,
				"per_page": perPage,
				"total":    total,
			},
		})
	}
}

// GetAuditLogHandler returns one audit entry.
// GET /api/v1/admin/audit-logs/:id
func (h *AuditLogHandlers) GetAuditLogHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		log, err := h.store.GetAuditLog(c.Request.Context(), c.Param("id"))
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve audit log"})
			return
		}
		if log == nil {
			c.JSON(http.StatusNotFound, gin.H{"error": "Audit log not found"})
			return
		}
		c.JSON(http.StatusOK, log)
	}
}

func optionalQuery(c *gin.Context, key string) *string {
	if v := c.Query(key); v != "" {
		return &v
	}
	return nil
}

func optionalTime(c *gin.Context, key string) (*time.Time, error) {
	v := c.Query(key)
	if v == "" {
		return nil, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return nil, err
	}
	return &t, nil
}
