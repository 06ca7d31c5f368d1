// Package models - audit_log.go defines the AuditLog model recording who changed which tenant's
// data, and the audited impersonation of a tenant by an administrator.
package models

import "time"

// AuditLog represents an audit log entry for tracking user actions
type AuditLog struct {
	ID           string                 `json:"id"`
	UserID       *string                `json:"userId,omitempty"`       // Nullable for system actions
	TenantID     *string                `json:"tenantId,omitempty"`     // Nullable for actions outside a tenant
	Action       string                 `json:"action"`                 // "business_record.create", "equipment.delete", "tenant.impersonate"
	ResourceType *string                `json:"resourceType,omitempty"` // "business_record", "equipment", "service_ticket", "tenant"
	ResourceID   *string                `json:"resourceId,omitempty"`   // ID of the affected row
	Metadata     map[string]interface{} `json:"metadata,omitempty"`     // JSONB: additional context
	IPAddress    *string                `json:"ipAddress,omitempty"`    // Client IP
	CreatedAt    time.Time              `json:"createdAt"`
}
