package models

import (
	"encoding/json"
	"testing"
	"time"
)

// ---------------------------------------------------------------------------
// Tenant JSON shape
// ---------------------------------------------------------------------------

func TestTenant_JSONOmitsUnsetRouting(t *testing.T) {
	data, err := json.Marshal(Tenant{ID: "T1", Name: "Acme", Slug: "acme", IsActive: true})
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if _, ok := got["subdomain"]; ok {
		t.Error("subdomain should be omitted when nil")
	}
	if _, ok := got["pathPrefix"]; ok {
		t.Error("pathPrefix should be omitted when nil")
	}
	if got["isActive"] != true {
		t.Errorf("isActive = %v, want true", got["isActive"])
	}
}

// ---------------------------------------------------------------------------
// AuditLog JSON shape
// ---------------------------------------------------------------------------

func TestAuditLog_JSONSystemAction(t *testing.T) {
	entry := AuditLog{ID: "a1", Action: "tenant.create", CreatedAt: time.Unix(0, 0).UTC()}
	data, err := json.Marshal(entry)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}

	var got map[string]any
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	for _, k := range []string{"userId", "tenantId", "resourceType", "resourceId", "metadata", "ipAddress"} {
		if _, ok := got[k]; ok {
			t.Errorf("%s should be omitted for a system action", k)
		}
	}
	if got["action"] != "tenant.create" {
		t.Errorf("action = %v", got["action"])
	}
	if got["createdAt"] != "1970-01-01T00:00:00Z" {
		t.Errorf("createdAt = %v", got["createdAt"])
	}
}
