package alerts

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nmoreau/sentra/internal/idgen"
	"github.com/nmoreau/sentra/internal/metrics"
	"github.com/nmoreau/sentra/internal/traces"
	"github.com/nmoreau/sentra/internal/transactions"
)

// Service implements the alert lifecycle over a Store.
type Service struct {
	store  Store
	floor  float64
	logger *slog.Logger
}

// NewService creates an alert service. floor is the risk score at which a
// non-fraud transaction still gets an alert for review.
func NewService(store Store, floor float64, logger *slog.Logger) *Service {
	return &Service{store: store, floor: floor, logger: logger}
}

// ShouldAlert reports whether a scored transaction warrants an alert:
// either flagged as fraud, or scored at or above the review floor.
func (s *Service) ShouldAlert(isFraud bool, score float64) bool {
	return isFraud || score >= s.floor
}

// Create records an alert for a scored transaction. The description is
// built from the assessment's reasons; reasonless alerts get a generic one.
func (s *Service) Create(ctx context.Context, tx *transactions.Transaction, reasons []string) (*Alert, error) {
	ctx, span := traces.StartSpan(ctx, "alerts.Create",
		traces.TransactionID(tx.ID), traces.Score(tx.RiskScore))
	defer span.End()

	description := strings.Join(reasons, "; ")
	if description == "" {
		description = fmt.Sprintf("Risk score %.0f exceeded review threshold", tx.RiskScore)
	}

	a := &Alert{
		ID:            idgen.WithPrefix("alert_"),
		TransactionID: tx.ID,
		UserID:        tx.UserID,
		RiskScore:     tx.RiskScore,
		AlertType:     tx.AlertType,
		Description:   description,
		Status:        StatusPending,
		CreatedAt:     time.Now().UTC(),
	}

	if err := s.store.Create(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to create alert: %w", err)
	}

	metrics.AlertsCreatedTotal.WithLabelValues(a.AlertType).Inc()
	s.logger.Info("fraud alert created",
		"alert_id", a.ID,
		"transaction_id", a.TransactionID,
		"user_id", a.UserID,
		"risk_score", a.RiskScore,
		"alert_type", a.AlertType,
	)
	return a, nil
}

// Transition moves an alert to a new review status. Unknown statuses are
// rejected with ErrInvalidStatus before any state is touched. Any move away
// from pending stamps ReviewedAt; moves between terminal statuses re-stamp
// it.
func (s *Service) Transition(ctx context.Context, id, status string) (*Alert, error) {
	if !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}

	a, err := s.store.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	a.Status = status
	if status != StatusPending {
		now := time.Now().UTC()
		a.ReviewedAt = &now
	}

	if err := s.store.Update(ctx, a); err != nil {
		return nil, fmt.Errorf("failed to update alert: %w", err)
	}

	metrics.AlertTransitionsTotal.WithLabelValues(status).Inc()
	s.logger.Info("alert status changed", "alert_id", a.ID, "status", status)
	return a, nil
}

// Get returns an alert by ID.
func (s *Service) Get(ctx context.Context, id string) (*Alert, error) {
	return s.store.Get(ctx, id)
}

// List returns alerts newest first, optionally filtered by status.
// An unknown status filter is rejected rather than silently matching nothing.
func (s *Service) List(ctx context.Context, status string, offset, limit int) ([]*Alert, error) {
	if status != "" && !ValidStatus(status) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidStatus, status)
	}
	return s.store.List(ctx, status, offset, limit)
}

// CountByStatus returns alert counts keyed by status.
func (s *Service) CountByStatus(ctx context.Context) (map[string]int64, error) {
	return s.store.CountByStatus(ctx)
}
