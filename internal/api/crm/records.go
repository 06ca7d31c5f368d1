package crm

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/dealer-crm/crm-backend/internal/db/repositories"
	"github.com/dealer-crm/crm-backend/internal/fieldmap"
	"github.com/dealer-crm/crm-backend/internal/middleware"
	"github.com/dealer-crm/crm-backend/internal/records"
	"github.com/gin-gonic/gin"
)

const (
	colRecordType = "record_type"
	colStatus     = "status"
)

// validationError is a lifecycle rule violation answered with a 4xx.
type validationError struct {
	status  int
	title   string
	reason  string
	err     error
	allowed []records.Status
}

func (e *validationError) Error() string { return e.err.Error() }
func (e *validationError) Unwrap() error { return e.err }

func unprocessable(reason string, err error) *validationError {
	return &validationError{status: http.StatusUnprocessableEntity, title: "Validation failed", reason: reason, err: err}
}

func conflict(err error) *validationError {
	return &validationError{status: http.StatusConflict, title: "Invalid status transition", reason: "invalid_transition", err: err}
}

// NewBusinessRecordHandlers creates handlers for leads and customers. Record type and status are
// normalized on every write and updates are checked against the lifecycle rules while the row is
// locked. With strict set, values that do not normalize to a valid type or status are rejected
// with 422; otherwise they are logged and stored as normalized.
//
// Writes parse the record type with ParseRecordType, which ignores surrounding whitespace, so
// "CUSTOMER " is stored as customer. Only a value that still fails to parse falls back to
// NormalizeRecordType and is stored as lead.
func NewBusinessRecordHandlers(store EntityStore, strict bool) *EntityHandlers {
	h := NewEntityHandlers(store, fieldmap.BusinessRecordFields)
	rules := recordRules{strict: strict}
	h.hooks = writeHooks{
		prepareCreate: rules.prepareCreate,
		prepareUpdate: rules.prepareUpdate,
	}
	return h
}

type recordRules struct {
	strict bool
}

func (r recordRules) prepareCreate(c *gin.Context, values map[string]any) error {
	recordType := records.TypeLead
	if raw, ok := values[colRecordType]; ok {
		t, err := r.recordType(c, raw)
		if err != nil {
			return err
		}
		recordType = t
	}
	values[colRecordType] = string(recordType)

	raw, ok := values[colStatus]
	if !ok || raw == nil || raw == "" {
		values[colStatus] = string(records.DefaultStatus(recordType))
		return nil
	}
	status, err := r.status(c, raw, recordType)
	if err != nil {
		return err
	}
	values[colStatus] = status
	return nil
}

func (r recordRules) prepareUpdate(c *gin.Context, values map[string]any) (repositories.UpdateCheck, error) {
	_, typeSet := values[colRecordType]
	_, statusSet := values[colStatus]
	if !typeSet && !statusSet {
		return nil, nil
	}

	var nextType records.RecordType
	if typeSet {
		t, err := r.recordType(c, values[colRecordType])
		if err != nil {
			return nil, err
		}
		nextType = t
		values[colRecordType] = string(t)
	}

	return func(current, pending map[string]any) error {
		cur := records.State{
			Type:   records.NormalizeRecordType(toString(current[colRecordType])),
			Status: records.Status(toString(current[colStatus])),
		}
		next := cur
		if typeSet {
			next.Type = nextType
		}
		if statusSet {
			status, err := r.status(c, pending[colStatus], next.Type)
			if err != nil {
				return err
			}
			pending[colStatus] = status
			next.Status = records.Status(status)
			if !records.IsValidStatus(next.Type, next.Status) {
				// Not strict: an unrecognized status is stored as given.
				if err := records.ValidateUnrecognizedChange(cur, next); err != nil {
					return conflict(err)
				}
				return nil
			}
		}

		if err := records.ValidateChange(cur, next); err != nil {
			if errors.Is(err, records.ErrInvalidTransition) {
				rejected := conflict(err)
				if cur.Type == next.Type {
					rejected.allowed = records.AllowedTransitions(cur.Status)
				}
				return rejected
			}
			return unprocessable("invalid_status", err)
		}
		return nil
	}, nil
}

func (r recordRules) recordType(c *gin.Context, raw any) (records.RecordType, error) {
	s, ok := raw.(string)
	if !ok {
		return "", unprocessable("invalid_record_type", fmt.Errorf("%w: recordType must be a string", records.ErrInvalidRecordType))
	}
	t, err := records.ParseRecordType(s)
	if err == nil {
		return t, nil
	}
	if r.strict {
		return "", unprocessable("invalid_record_type", err)
	}
	normalized := records.NormalizeRecordType(s)
	slog.Warn("record type normalized",
		"raw", s,
		"stored", normalized,
		"request_id", c.GetString(middleware.RequestIDKey),
	)
	return normalized, nil
}

func (r recordRules) status(c *gin.Context, raw any, t records.RecordType) (string, error) {
	s, ok := raw.(string)
	if !ok {
		return "", unprocessable("invalid_status", fmt.Errorf("%w: status must be a string", records.ErrInvalidStatus))
	}
	parsed, err := records.ParseStatus(s, t)
	if err == nil {
		return string(parsed), nil
	}
	if r.strict {
		return "", unprocessable("invalid_status", err)
	}
	stored := records.NormalizeStatus(s, t)
	slog.Warn("unrecognized status stored",
		"raw", s,
		"stored", stored,
		"record_type", string(t),
		"request_id", c.GetString(middleware.RequestIDKey),
	)
	return stored, nil
}
