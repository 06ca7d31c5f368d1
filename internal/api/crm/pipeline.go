package crm

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/dealer-crm/crm-backend/internal/db/repositories"
	"github.com/dealer-crm/crm-backend/internal/middleware"
	"github.com/dealer-crm/crm-backend/internal/tenancy"
	"github.com/gin-gonic/gin"
)

// PipelineStore runs the pipeline aggregates. Satisfied by *repositories.PipelineRepository.
type PipelineStore interface {
	Stages(ctx context.Context, tenantID string, f repositories.PipelineFilter) ([]repositories.PipelineStage, error)
	Sources(ctx context.Context, tenantID string, f repositories.PipelineFilter) ([]repositories.SourceBreakdown, error)
}

// PipelineHandlers serves the sales pipeline report
type PipelineHandlers struct {
	store PipelineStore
}

// NewPipelineHandlers creates a new PipelineHandlers instance
func NewPipelineHandlers(store PipelineStore) *PipelineHandlers {
	return &PipelineHandlers{store: store}
}

// PipelineHandler returns record counts and estimated value per record type and status, plus
// a lead source breakdown, for the resolved tenant.
// GET /api/v1/pipeline?from=2024-01-01&to=2024-04-01&owner=rep-7&leadSource=referral
//
// from is inclusive and to is exclusive. Both accept RFC 3339 timestamps or YYYY-MM-DD dates.
func (h *PipelineHandlers) PipelineHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		tenantID := tenancy.IDFromContext(ctx)

		filter := repositories.PipelineFilter{
			AssignedTo: c.Query("owner"),
			LeadSource: c.Query("leadSource"),
		}
		var err error
		if filter.From, err = parseTimeParam(c.Query("from")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid from parameter", "message": err.Error()})
			return
		}
		if filter.To, err = parseTimeParam(c.Query("to")); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid to parameter", "message": err.Error()})
			return
		}
		if filter.From != nil && filter.To != nil && !filter.From.Before(*filter.To) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "from must be before to"})
			return
		}

		stages, err := h.store.Stages(ctx, tenantID, filter)
		if err != nil {
			h.serverError(c, err)
			return
		}
		sources, err := h.store.Sources(ctx, tenantID, filter)
		if err != nil {
			h.serverError(c, err)
			return
		}

		var totalCount int64
		var totalValue float64
		for _, s := range stages {
			totalCount += s.Count
			totalValue += s.TotalValue
		}

		c.JSON(http.StatusOK, gin.H{
			"stages":  stages,
			"sources": sources,
			"totals": gin.H{
				"count": totalCount,
				"value": totalValue,
			},
		})
	}
}

func (h *PipelineHandlers) serverError(c *gin.Context, err error) {
	slog.Error("pipeline report failed",
		"tenant_id", tenancy.IDFromContext(c.Request.Context()),
		"request_id", c.GetString(middleware.RequestIDKey),
		"error", err,
	)
	c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
}

func parseTimeParam(raw string) (*time.Time, error) {
	if raw == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return &t, nil
	}
	t, err := time.Parse(time.DateOnly, raw)
	if err != nil {
		return nil, fmt.Errorf("%q is not an RFC 3339 timestamp or YYYY-MM-DD date", raw)
	}
	return &t, nil
}
