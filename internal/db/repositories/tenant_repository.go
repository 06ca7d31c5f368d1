// tenant_repository.go implements TenantRepository, the tenant directory consulted on every
// tenant-scoped request and by provisioning commands.
package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// ErrInvalidSlug is returned when a tenant slug is not URL-safe.
var ErrInvalidSlug = errors.New("slug must be lowercase letters, digits and single hyphens, at most 63 characters")

// ErrSlugTaken is returned when another tenant already owns the slug.
var ErrSlugTaken = errors.New("slug already in use")

const tenantColumns = `id, name, slug, subdomain, path_prefix, is_active, created_at, updated_at`

// TenantRepository handles database operations for the tenant directory
type TenantRepository struct {
	db *sqlx.DB
}

// NewTenantRepository creates a new tenant repository
func NewTenantRepository(db *sqlx.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

// GetBySlug retrieves a tenant by slug, active or not. Returns nil, nil when no tenant matches.
func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE slug = $1`

	t := &models.Tenant{}
	if err := r.db.GetContext(ctx, t, query, slug); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// GetByID retrieves a tenant by ID. Returns nil, nil when no tenant matches.
func (r *TenantRepository) GetByID(ctx context.Context, id string) (*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants WHERE id = $1`

	t := &models.Tenant{}
	if err := r.db.GetContext(ctx, t, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get tenant: %w", err)
	}
	return t, nil
}

// List returns all tenants ordered by slug.
func (r *TenantRepository) List(ctx context.Context) ([]*models.Tenant, error) {
	query := `SELECT ` + tenantColumns + ` FROM tenants ORDER BY slug`

	tenants := make([]*models.Tenant, 0)
	if err := r.db.SelectContext(ctx, &tenants, query); err != nil {
		return nil, fmt.Errorf("failed to list tenants: %w", err)
	}
	return tenants, nil
}

// Create provisions a tenant. The slug is lower-cased and validated; ID and timestamps are
// filled from the database.
func (r *TenantRepository) Create(ctx context.Context, t *models.Tenant) error {
	t.Slug = strings.ToLower(strings.TrimSpace(t.Slug))
	if !tenancy.ValidSlug(t.Slug) {
		return fmt.Errorf("%w: %q", ErrInvalidSlug, t.Slug)
	}
	if strings.TrimSpace(t.Name) == "" {
		return errors.New("tenant name is required")
	}

	query := `
		INSERT INTO tenants (name, slug, subdomain, path_prefix, is_active)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id, created_at, updated_at
	`

	err := r.db.QueryRowContext(ctx, query, t.Name, t.Slug, t.Subdomain, t.PathPrefix, t.IsActive).
		Scan(&t.ID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return fmt.Errorf("%w: %q", ErrSlugTaken, t.Slug)
		}
		return fmt.Errorf("failed to create tenant: %w", err)
	}
	return nil
}

// SetActive enables or disables a tenant. Returns false when the tenant does not exist.
func (r *TenantRepository) SetActive(ctx context.Context, id string, active bool) (bool, error) {
	query := `UPDATE tenants SET is_active = $1, updated_at = NOW() WHERE id = $2`

	res, err := r.db.ExecContext(ctx, query, active, id)
	if err != nil {
		return false, fmt.Errorf("failed to update tenant: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to update tenant: %w", err)
	}
	return n > 0, nil
}
