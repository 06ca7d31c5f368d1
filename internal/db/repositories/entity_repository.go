// entity_repository.go implements EntityRepository, tenant-scoped CRUD over the business data
// tables (business records, equipment, service tickets). Rows travel as flat column maps so the
// same code serves every entity; the column allowlist in each EntitySpec is the only source of
// column names that ever reach SQL text.
package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
	"github.com/dealer-crm/crm-backend/internal/fieldmap"
	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

var psql = sq.StatementBuilder.PlaceholderFormat(sq.Dollar)

// protectedColumns are never taken from caller-supplied values; the repository sets them.
var protectedColumns = map[string]bool{
	"id":         true,
	"tenant_id":  true,
	"created_by": true,
	"created_at": true,
	"updated_at": true,
}

// EntitySpec describes one tenant-scoped table.
type EntitySpec struct {
	Name           string
	Table          string
	Columns        []string
	JSONColumns    []string
	NumericColumns []string

	columnSet  map[string]bool
	jsonSet    map[string]bool
	numericSet map[string]bool
}

// NewEntitySpec builds a spec whose columns are the storage names of mapping.
func NewEntitySpec(table string, mapping *fieldmap.Mapping, jsonColumns, numericColumns []string) *EntitySpec {
	cols := make([]string, 0, len(mapping.Inverse()))
	for stored := range mapping.Inverse() {
		cols = append(cols, stored)
	}
	sort.Strings(cols)

	s := &EntitySpec{
		Name:           mapping.Name(),
		Table:          table,
		Columns:        cols,
		JSONColumns:    jsonColumns,
		NumericColumns: numericColumns,
		columnSet:      toColumnSet(cols),
		jsonSet:        toColumnSet(jsonColumns),
		numericSet:     toColumnSet(numericColumns),
	}
	return s
}

func toColumnSet(cols []string) map[string]bool {
	out := make(map[string]bool, len(cols))
	for _, c := range cols {
		out[c] = true
	}
	return out
}

// Entity specs for the business data tables.
var (
	BusinessRecordsSpec = NewEntitySpec("business_records", fieldmap.BusinessRecordFields, nil, []string{"estimated_value"})
	EquipmentSpec       = NewEntitySpec("equipment", fieldmap.EquipmentFields, []string{"onboarding_checklist"}, nil)
	ServiceTicketsSpec  = NewEntitySpec("service_tickets", fieldmap.ServiceTicketFields, nil, nil)
)

// UnknownColumnsError reports caller-supplied fields that are not columns of the table.
type UnknownColumnsError struct {
	Entity string
	Fields []string
}

func (e *UnknownColumnsError) Error() string {
	return fmt.Sprintf("unknown %s fields: %s", e.Entity, strings.Join(e.Fields, ", "))
}

// InvalidValueError reports a value that cannot be stored in its column.
type InvalidValueError struct {
	Field  string
	Reason string
}

func (e *InvalidValueError) Error() string {
	return fmt.Sprintf("invalid value for %s: %s", e.Field, e.Reason)
}

// ListOptions filters and pages a List call. Filters are equality matches on allowlisted columns.
type ListOptions struct {
	Filters map[string]any
	Limit   int
	Offset  int
}

// EntityRepository handles tenant-scoped database operations for one entity table
type EntityRepository struct {
	db   *sqlx.DB
	spec *EntitySpec
}

// NewEntityRepository creates a repository for the table described by spec
func NewEntityRepository(db *sqlx.DB, spec *EntitySpec) *EntityRepository {
	return &EntityRepository{db: db, spec: spec}
}

// List returns one page of the tenant's rows, newest first, and the total match count.
func (r *EntityRepository) List(ctx context.Context, tenantID string, opts ListOptions) ([]map[string]any, int, error) {
	if unknown := r.unknownColumns(opts.Filters); len(unknown) > 0 {
		return nil, 0, &UnknownColumnsError{Entity: r.spec.Name, Fields: unknown}
	}
	where := sq.Eq{}
	for col, v := range opts.Filters {
		where[col] = v
	}
	// Set last so a filter can never widen the query to another tenant.
	where["tenant_id"] = tenantID

	countQuery, countArgs, err := psql.Select("COUNT(*)").From(r.spec.Table).Where(where).ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build %s count query: %w", r.spec.Name, err)
	}
	var total int
	if err := r.db.QueryRowContext(ctx, countQuery, countArgs...).Scan(&total); err != nil {
		if invalid := invalidValue(err); invalid != nil {
			return nil, 0, invalid
		}
		return nil, 0, fmt.Errorf("failed to count %s rows: %w", r.spec.Name, err)
	}

	q := psql.Select(r.spec.Columns...).
		From(r.spec.Table).
		Where(where).
		OrderBy("created_at DESC", "id")
	if opts.Limit > 0 {
		q = q.Limit(uint64(opts.Limit))
	}
	if opts.Offset > 0 {
		q = q.Offset(uint64(opts.Offset))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, 0, fmt.Errorf("failed to build %s list query: %w", r.spec.Name, err)
	}

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		if invalid := invalidValue(err); invalid != nil {
			return nil, 0, invalid
		}
		return nil, 0, fmt.Errorf("failed to list %s rows: %w", r.spec.Name, err)
	}
	defer rows.Close()

	out := make([]map[string]any, 0)
	for rows.Next() {
		row := map[string]any{}
		if err := rows.MapScan(row); err != nil {
			return nil, 0, fmt.Errorf("failed to scan %s row: %w", r.spec.Name, err)
		}
		out = append(out, r.decodeRow(row))
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list %s rows: %w", r.spec.Name, err)
	}

	return out, total, nil
}

// Get returns one of the tenant's rows. Returns nil, nil when no row matches, including when the
// row exists under another tenant.
func (r *EntityRepository) Get(ctx context.Context, tenantID, id string) (map[string]any, error) {
	query, args, err := psql.Select(r.spec.Columns...).
		From(r.spec.Table).
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s get query: %w", r.spec.Name, err)
	}
	return r.queryRow(ctx, r.db, query, args)
}

// Create inserts a row owned by tenantID. Protected columns in values are ignored; tenant_id and
// created_by are always taken from the arguments.
func (r *EntityRepository) Create(ctx context.Context, tenantID, createdBy string, values map[string]any) (map[string]any, error) {
	set, err := r.writableValues(values)
	if err != nil {
		return nil, err
	}
	set["tenant_id"] = tenantID
	if createdBy != "" {
		set["created_by"] = createdBy
	}

	query, args, err := psql.Insert(r.spec.Table).
		SetMap(set).
		Suffix("RETURNING " + strings.Join(r.spec.Columns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s insert: %w", r.spec.Name, err)
	}

	row, err := r.queryRow(ctx, r.db, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to create %s: %w", r.spec.Name, err)
	}
	return row, nil
}

// UpdateCheck inspects the locked current row and the pending values before an update is
// written. It may rewrite values in place. Returning an error aborts the update.
type UpdateCheck func(current, values map[string]any) error

// Update changes one of the tenant's rows inside a transaction. The current row is locked with
// SELECT ... FOR UPDATE and handed to check, so a check cannot race a concurrent writer. Returns
// nil, nil when the row does not exist for this tenant.
func (r *EntityRepository) Update(ctx context.Context, tenantID, id string, values map[string]any, check UpdateCheck) (map[string]any, error) {
	set, err := r.writableValues(values)
	if err != nil {
		return nil, err
	}

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // no-op after Commit

	lockQuery, lockArgs, err := psql.Select(r.spec.Columns...).
		From(r.spec.Table).
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		Suffix("FOR UPDATE").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s lock query: %w", r.spec.Name, err)
	}
	current, err := r.queryRow(ctx, tx, lockQuery, lockArgs)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	if check != nil {
		if err := check(current, set); err != nil {
			return nil, err
		}
	}

	if len(set) == 0 {
		if err := tx.Commit(); err != nil {
			return nil, fmt.Errorf("failed to commit %s update: %w", r.spec.Name, err)
		}
		return current, nil
	}

	query, args, err := psql.Update(r.spec.Table).
		SetMap(set).
		Set("updated_at", sq.Expr("NOW()")).
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		Suffix("RETURNING " + strings.Join(r.spec.Columns, ", ")).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build %s update: %w", r.spec.Name, err)
	}

	updated, err := r.queryRow(ctx, tx, query, args)
	if err != nil {
		return nil, fmt.Errorf("failed to update %s: %w", r.spec.Name, err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit %s update: %w", r.spec.Name, err)
	}
	return updated, nil
}

// Delete removes one of the tenant's rows. Returns false when nothing matched.
func (r *EntityRepository) Delete(ctx context.Context, tenantID, id string) (bool, error) {
	query, args, err := psql.Delete(r.spec.Table).
		Where(sq.Eq{"id": id, "tenant_id": tenantID}).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("failed to build %s delete: %w", r.spec.Name, err)
	}

	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		if invalid := invalidValue(err); invalid != nil {
			return false, invalid
		}
		return false, fmt.Errorf("failed to delete %s: %w", r.spec.Name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to delete %s: %w", r.spec.Name, err)
	}
	return n > 0, nil
}

func (r *EntityRepository) queryRow(ctx context.Context, q sqlx.QueryerContext, query string, args []interface{}) (map[string]any, error) {
	row := map[string]any{}
	if err := q.QueryRowxContext(ctx, query, args...).MapScan(row); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		if invalid := invalidValue(err); invalid != nil {
			return nil, invalid
		}
		return nil, fmt.Errorf("failed to read %s row: %w", r.spec.Name, err)
	}
	return r.decodeRow(row), nil
}

// invalidValue converts a Postgres data exception (class 22: malformed uuid, number or date,
// value out of range) into an InvalidValueError. Other errors return nil.
func invalidValue(err error) *InvalidValueError {
	var pqErr *pq.Error
	if !errors.As(err, &pqErr) || pqErr.Code.Class() != "22" {
		return nil
	}
	return &InvalidValueError{Field: pqErr.Column, Reason: "value does not match the field type"}
}

func (r *EntityRepository) unknownColumns(values map[string]any) []string {
	var unknown []string
	for col := range values {
		if !r.spec.columnSet[col] {
			unknown = append(unknown, col)
		}
	}
	sort.Strings(unknown)
	return unknown
}

// writableValues drops protected columns, rejects unknown ones and encodes values for the driver.
func (r *EntityRepository) writableValues(values map[string]any) (map[string]any, error) {
	set := make(map[string]any, len(values))
	var unknown []string
	for col, v := range values {
		if protectedColumns[col] {
			continue
		}
		if !r.spec.columnSet[col] {
			unknown = append(unknown, col)
			continue
		}
		enc, err := r.encodeValue(col, v)
		if err != nil {
			return nil, err
		}
		set[col] = enc
	}
	if len(unknown) > 0 {
		sort.Strings(unknown)
		return nil, &UnknownColumnsError{Entity: r.spec.Name, Fields: unknown}
	}
	return set, nil
}

func (r *EntityRepository) encodeValue(col string, v any) (any, error) {
	if r.spec.jsonSet[col] {
		if v == nil {
			return nil, nil
		}
		raw, err := json.Marshal(v)
		if err != nil {
			return nil, &InvalidValueError{Field: col, Reason: err.Error()}
		}
		// lib/pq sends []byte as bytea; jsonb parameters must be text.
		return string(raw), nil
	}

	switch v.(type) {
	case map[string]any, []any:
		return nil, &InvalidValueError{Field: col, Reason: "nested values are not allowed"}
	}
	return v, nil
}

// decodeRow converts driver values into JSON-friendly ones.
func (r *EntityRepository) decodeRow(row map[string]any) map[string]any {
	for col, v := range row {
		b, ok := v.([]byte)
		if !ok {
			continue
		}
		switch {
		case r.spec.jsonSet[col]:
			row[col] = json.RawMessage(append([]byte(nil), b...))
		case r.spec.numericSet[col]:
			if f, err := strconv.ParseFloat(string(b), 64); err == nil {
				row[col] = f
			} else {
				row[col] = string(b)
			}
		default:
			row[col] = string(b)
		}
	}
	return row
}
