// pipeline_repository.go implements PipelineRepository, the sales-pipeline aggregates over a
// tenant's business records. Every filter is bound as a query parameter.
package repositories

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jmoiron/sqlx"
)

// PipelineFilter narrows the records counted in a pipeline report.
type PipelineFilter struct {
	From       *time.Time
	To         *time.Time
	AssignedTo string
	LeadSource string
}

// PipelineStage is the count and summed estimated value of one record type/status pair.
type PipelineStage struct {
	RecordType string  `db:"record_type" json:"recordType"`
	Status     string  `db:"status" json:"status"`
	Count      int64   `db:"count" json:"count"`
	TotalValue float64 `db:"total_value" json:"totalValue"`
}

// SourceBreakdown is the number of leads and converted customers per lead source.
type SourceBreakdown struct {
	LeadSource string `db:"lead_source" json:"leadSource"`
	Leads      int64  `db:"leads" json:"leads"`
	Customers  int64  `db:"customers" json:"customers"`
}

// PipelineRepository runs pipeline aggregate queries
type PipelineRepository struct {
	db *sqlx.DB
}

// NewPipelineRepository creates a new pipeline repository
func NewPipelineRepository(db *sqlx.DB) *PipelineRepository {
	return &PipelineRepository{db: db}
}

func pipelineWhere(tenantID string, f PipelineFilter) sq.And {
	where := sq.And{sq.Eq{"tenant_id": tenantID}}
	if f.From != nil {
		where = append(where, sq.GtOrEq{"created_at": *f.From})
	}
	if f.To != nil {
		where = append(where, sq.Lt{"created_at": *f.To})
	}
	if f.AssignedTo != "" {
		where = append(where, sq.Eq{"assigned_to": f.AssignedTo})
	}
	if f.LeadSource != "" {
		where = append(where, sq.Eq{"lead_source": f.LeadSource})
	}
	return where
}

// Stages groups the tenant's records by record type and status.
func (r *PipelineRepository) Stages(ctx context.Context, tenantID string, f PipelineFilter) ([]PipelineStage, error) {
	query, args, err := psql.Select(
		"record_type",
		"status",
		"COUNT(*) AS count",
		"COALESCE(SUM(estimated_value), 0) AS total_value",
	).
		From("business_records").
		Where(pipelineWhere(tenantID, f)).
		GroupBy("record_type", "status").
		OrderBy("record_type", "status").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build pipeline query: %w", err)
	}

	stages := make([]PipelineStage, 0)
	if err := r.db.SelectContext(ctx, &stages, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query pipeline stages: %w", err)
	}
	return stages, nil
}

// Sources counts leads and customers per lead source. Records without a source are grouped
// under "unknown".
func (r *PipelineRepository) Sources(ctx context.Context, tenantID string, f PipelineFilter) ([]SourceBreakdown, error) {
	query, args, err := psql.Select(
		"COALESCE(NULLIF(lead_source, ''), 'unknown') AS lead_source",
		"COUNT(*) FILTER (WHERE record_type = 'lead') AS leads",
		"COUNT(*) FILTER (WHERE record_type = 'customer') AS customers",
	).
		From("business_records").
		Where(pipelineWhere(tenantID, f)).
		GroupBy("1").
		OrderBy("1").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build source query: %w", err)
	}

	sources := make([]SourceBreakdown, 0)
	if err := r.db.SelectContext(ctx, &sources, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query lead sources: %w", err)
	}
	return sources, nil
}
