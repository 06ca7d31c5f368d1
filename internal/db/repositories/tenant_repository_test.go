package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/lib/pq"
)

// ---------------------------------------------------------------------------
// Column definitions
// ---------------------------------------------------------------------------

var tenantCols = []string{"id", "name", "slug", "subdomain", "path_prefix", "is_active", "created_at", "updated_at"}

func sampleTenantRow(active bool) *sqlmock.Rows {
	return sqlmock.NewRows(tenantCols).
		AddRow("T1", "Acme Copiers", "acme", nil, nil, active, time.Now(), time.Now())
}

func newTenantRepo(t *testing.T) (*TenantRepository, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newMockDB(t)
	return NewTenantRepository(db), mock
}

// ---------------------------------------------------------------------------
// GetBySlug / GetByID
// ---------------------------------------------------------------------------

func TestTenantGetBySlug_Found(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("SELECT .* FROM tenants WHERE slug = \\$1").
		WithArgs("acme").
		WillReturnRows(sampleTenantRow(true))

	tenant, err := repo.GetBySlug(context.Background(), "acme")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant == nil {
		t.Fatal("expected tenant, got nil")
	}
	if tenant.ID != "T1" || tenant.Slug != "acme" || !tenant.IsActive {
		t.Errorf("unexpected tenant: %+v", tenant)
	}
	if tenant.Subdomain != nil {
		t.Errorf("Subdomain = %v, want nil", tenant.Subdomain)
	}
}

func TestTenantGetBySlug_NotFound(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("SELECT .* FROM tenants WHERE slug").
		WithArgs("unknown-slug").
		WillReturnRows(sqlmock.NewRows(tenantCols))

	tenant, err := repo.GetBySlug(context.Background(), "unknown-slug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant != nil {
		t.Errorf("expected nil, got %+v", tenant)
	}
}

func TestTenantGetBySlug_DBError(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("SELECT .* FROM tenants WHERE slug").
		WillReturnError(errDB)

	_, err := repo.GetBySlug(context.Background(), "acme")
	if !errors.Is(err, errDB) {
		t.Fatalf("expected wrapped db error, got %v", err)
	}
}

func TestTenantGetByID_Found(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("SELECT .* FROM tenants WHERE id = \\$1").
		WithArgs("T1").
		WillReturnRows(sampleTenantRow(false))

	tenant, err := repo.GetByID(context.Background(), "T1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant == nil || tenant.IsActive {
		t.Errorf("expected inactive tenant, got %+v", tenant)
	}
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestTenantList(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("SELECT .* FROM tenants ORDER BY slug").
		WillReturnRows(sqlmock.NewRows(tenantCols).
			AddRow("T1", "Acme", "acme", nil, nil, true, time.Now(), time.Now()).
			AddRow("T2", "Globex", "globex", "globex", nil, false, time.Now(), time.Now()))

	tenants, err := repo.List(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tenants) != 2 {
		t.Fatalf("len = %d, want 2", len(tenants))
	}
	if tenants[1].Subdomain == nil || *tenants[1].Subdomain != "globex" {
		t.Errorf("Subdomain = %v, want globex", tenants[1].Subdomain)
	}
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestTenantCreate_Success(t *testing.T) {
	repo, mock := newTenantRepo(t)
	now := time.Now()
	mock.ExpectQuery("INSERT INTO tenants").
		WithArgs("Acme Copiers", "acme", nil, nil, true).
		WillReturnRows(sqlmock.NewRows([]string{"id", "created_at", "updated_at"}).AddRow("T1", now, now))

	tenant := &models.Tenant{Name: "Acme Copiers", Slug: " ACME ", IsActive: true}
	if err := repo.Create(context.Background(), tenant); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tenant.ID != "T1" {
		t.Errorf("ID = %q, want T1", tenant.ID)
	}
	if tenant.Slug != "acme" {
		t.Errorf("Slug = %q, want acme", tenant.Slug)
	}
}

func TestTenantCreate_InvalidSlug(t *testing.T) {
	repo, mock := newTenantRepo(t)

	for _, slug := range []string{"", "acme_co", "-acme", "acme--co"} {
		err := repo.Create(context.Background(), &models.Tenant{Name: "X", Slug: slug})
		if !errors.Is(err, ErrInvalidSlug) {
			t.Errorf("slug %q: expected ErrInvalidSlug, got %v", slug, err)
		}
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("no query should run: %v", err)
	}
}

func TestTenantCreate_MissingName(t *testing.T) {
	repo, _ := newTenantRepo(t)
	if err := repo.Create(context.Background(), &models.Tenant{Slug: "acme"}); err == nil {
		t.Error("expected error for missing name")
	}
}

func TestTenantCreate_DuplicateSlug(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectQuery("INSERT INTO tenants").
		WillReturnError(&pq.Error{Code: "23505", Message: "duplicate key value"})

	err := repo.Create(context.Background(), &models.Tenant{Name: "Acme", Slug: "acme"})
	if !errors.Is(err, ErrSlugTaken) {
		t.Fatalf("expected ErrSlugTaken, got %v", err)
	}
}

// ---------------------------------------------------------------------------
// SetActive
// ---------------------------------------------------------------------------

func TestTenantSetActive(t *testing.T) {
	repo, mock := newTenantRepo(t)
	mock.ExpectExec("UPDATE tenants SET is_active").
		WithArgs(false, "T1").
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("UPDATE tenants SET is_active").
		WithArgs(true, "missing").
		WillReturnResult(sqlmock.NewResult(0, 0))

	ok, err := repo.SetActive(context.Background(), "T1", false)
	if err != nil || !ok {
		t.Errorf("SetActive(T1) = %v, %v; want true, nil", ok, err)
	}
	ok, err = repo.SetActive(context.Background(), "missing", true)
	if err != nil || ok {
		t.Errorf("SetActive(missing) = %v, %v; want false, nil", ok, err)
	}
}
