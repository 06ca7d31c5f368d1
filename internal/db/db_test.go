package db

import (
	"database/sql"
	"io/fs"
	"strings"
	"testing"
)

func TestMigrations_EveryUpHasDown(t *testing.T) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		t.Fatalf("ReadDir: %v", err)
	}
	if len(entries) == 0 {
		t.Fatal("no embedded migrations")
	}

	names := map[string]bool{}
	for _, e := range entries {
		names[e.Name()] = true
	}
	for name := range names {
		if strings.HasSuffix(name, ".up.sql") {
			down := strings.TrimSuffix(name, ".up.sql") + ".down.sql"
			if !names[down] {
				t.Errorf("migration %s has no matching %s", name, down)
			}
		}
	}
}

func TestMigrations_CreateTenantScopedTables(t *testing.T) {
	for _, file := range []string{
		"migrations/000002_create_business_records.up.sql",
		"migrations/000003_create_equipment.up.sql",
		"migrations/000004_create_service_tickets.up.sql",
	} {
		raw, err := fs.ReadFile(migrationsFS, file)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", file, err)
		}
		if !strings.Contains(string(raw), "tenant_id") || !strings.Contains(string(raw), "REFERENCES tenants(id)") {
			t.Errorf("%s: table is not scoped to a tenant", file)
		}
	}
}

func TestRunMigrations_InvalidDirection(t *testing.T) {
	err := RunMigrations((*sql.DB)(nil), "sideways")
	if err == nil || !strings.Contains(err.Error(), "invalid migration direction") {
		t.Fatalf("expected invalid direction error, got %v", err)
	}
}
