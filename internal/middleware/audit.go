// audit.go provides Gin middleware that records successful authenticated writes to the audit log.
package middleware

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/safego"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/gin-gonic/gin"
)

// Handlers may set these keys to refine the recorded entry.
const (
	AuditActionKey     = "audit_action"
	AuditResourceIDKey = "audit_resource_id"
)

// AuditWriter persists audit entries.
type AuditWriter interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// resourceSegments maps a route segment to the audited resource type.
var resourceSegments = map[string]string{
	"records":   "business_record",
	"equipment": "equipment",
	"tickets":   "service_ticket",
	"tenants":   "tenant",
}

var methodOperations = map[string]string{
	http.MethodPost:   "create",
	http.MethodPut:    "update",
	http.MethodPatch:  "update",
	http.MethodDelete: "delete",
}

// AuditMiddleware records successful non-GET requests after the handler has run. The write is
// asynchronous with a 5 second budget so audit latency never reaches the client.
func AuditMiddleware(writer AuditWriter) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		switch c.Request.Method {
		case http.MethodGet, http.MethodHead, http.MethodOptions:
			return
		}
		if c.Writer.Status() >= 400 || writer == nil {
			return
		}

		entry := buildAuditEntry(c)

		requestID := c.GetString(RequestIDKey)
		tenantID := tenancy.IDFromContext(c.Request.Context())
		safego.Go("audit_log", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := writer.CreateAuditLog(ctx, entry); err != nil {
				slog.Error("failed to write audit log",
					"error", err,
					"action", entry.Action,
					"tenant_id", tenantID,
					"request_id", requestID)
			}
		}, "tenant_id", tenantID, "request_id", requestID)
	}
}

func buildAuditEntry(c *gin.Context) *models.AuditLog {
	ipAddress := c.ClientIP()
	entry := &models.AuditLog{
		IPAddress: &ipAddress,
		CreatedAt: time.Now(),
	}

	if uid := c.GetString(UserIDKey); uid != "" {
		entry.UserID = &uid
	}
	if tid := tenancy.IDFromContext(c.Request.Context()); tid != "" {
		entry.TenantID = &tid
	}

	resourceType := auditResourceType(c.FullPath())
	if resourceType != "" {
		entry.ResourceType = &resourceType
	}

	resourceID := c.GetString(AuditResourceIDKey)
	if resourceID == "" {
		resourceID = c.Param("id")
	}
	if resourceID != "" {
		entry.ResourceID = &resourceID
	}

	switch action := c.GetString(AuditActionKey); {
	case action != "":
		entry.Action = action
	case resourceType != "" && methodOperations[c.Request.Method] != "":
		entry.Action = resourceType + "." + methodOperations[c.Request.Method]
	default:
		entry.Action = fmt.Sprintf("%s %s", c.Request.Method, c.Request.URL.Path)
	}

	metadata := map[string]interface{}{
		"status_code": c.Writer.Status(),
	}
	if method := c.GetString("auth_method"); method != "" {
		metadata["auth_method"] = method
	}
	if id := c.GetString(RequestIDKey); id != "" {
		metadata["request_id"] = id
	}
	entry.Metadata = metadata

	return entry
}

// auditResourceType derives the resource type from the matched route template,
// e.g. /:tenant/api/v1/records/:id -> business_record.
func auditResourceType(route string) string {
	segments := strings.Split(strings.Trim(route, "/"), "/")
	for i := len(segments) - 1; i >= 0; i-- {
		if rt, ok := resourceSegments[segments[i]]; ok {
			return rt
		}
	}
	return ""
}
