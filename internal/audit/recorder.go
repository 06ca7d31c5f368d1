package audit

import (
	"context"
	"errors"
	"log/slog"

	"github.com/dealer-crm/crm-backend/internal/db/models"
	"github.com/dealer-crm/crm-backend/internal/telemetry"
)

// Store persists audit entries. Satisfied by *repositories.AuditRepository.
type Store interface {
	CreateAuditLog(ctx context.Context, log *models.AuditLog) error
}

// Recorder writes each entry to the store and then hands it to every sink. It satisfies
// middleware.AuditWriter.
type Recorder struct {
	store Store
	sinks []Sink
}

// NewRecorder creates a Recorder.
func NewRecorder(store Store, sinks ...Sink) *Recorder {
	return &Recorder{store: store, sinks: sinks}
}

// CreateAuditLog persists the entry. Sinks only see entries the store accepted, and a sink
// failure is logged and counted without failing the write.
func (r *Recorder) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	if err := r.store.CreateAuditLog(ctx, entry); err != nil {
		return err
	}
	for _, s := range r.sinks {
		if err := s.Export(ctx, entry); err != nil {
			telemetry.AuditExportErrorsTotal.WithLabelValues(s.Name()).Inc()
			slog.Warn("audit export failed",
				"sink", s.Name(),
				"action", entry.Action,
				"error", err)
		}
	}
	return nil
}

// Close closes every sink.
func (r *Recorder) Close() error {
	var errs []error
	for _, s := range r.sinks {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
