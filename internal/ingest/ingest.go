// Package ingest orchestrates the transaction scoring path: validate,
// deduplicate, score, persist, alert, fan out, and schedule the profile
// refresh. It is the only writer of transactions and alerts.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/nmoreau/sentra/internal/alerts"
	"github.com/nmoreau/sentra/internal/engine"
	"github.com/nmoreau/sentra/internal/profile"
	"github.com/nmoreau/sentra/internal/realtime"
	"github.com/nmoreau/sentra/internal/traces"
	"github.com/nmoreau/sentra/internal/transactions"
	"github.com/nmoreau/sentra/internal/validation"
	"github.com/nmoreau/sentra/internal/webhooks"
)

// Request is a transaction submitted for scoring.
type Request struct {
	TransactionID string     `json:"transactionId" binding:"required"`
	UserID        string     `json:"userId" binding:"required"`
	Amount        float64    `json:"amount" binding:"required"`
	Merchant      string     `json:"merchant"`
	Category      string     `json:"category"`
	Location      string     `json:"location"`
	Latitude      *float64   `json:"latitude"`
	Longitude     *float64   `json:"longitude"`
	Timestamp     *time.Time `json:"timestamp"`
}

// Result pairs the stored transaction with the assessment that produced it.
type Result struct {
	Transaction *transactions.Transaction `json:"transaction"`
	Assessment  *engine.Assessment        `json:"assessment"`
	Alert       *alerts.Alert             `json:"alert,omitempty"`
}

// Service wires the scoring pipeline together.
type Service struct {
	txStore   transactions.Store
	profiles  profile.Store
	engine    *engine.Engine
	alerts    *alerts.Service
	hub       *realtime.Hub
	emitter   *webhooks.Emitter
	refresher *profile.Refresher
	logger    *slog.Logger
}

// New creates the ingestion service. hub, emitter and refresher may be nil
// in reduced configurations (tests, batch tools); the corresponding side
// effects are skipped.
func New(
	txStore transactions.Store,
	profiles profile.Store,
	eng *engine.Engine,
	alertSvc *alerts.Service,
	hub *realtime.Hub,
	emitter *webhooks.Emitter,
	refresher *profile.Refresher,
	logger *slog.Logger,
) *Service {
	return &Service{
		txStore:   txStore,
		profiles:  profiles,
		engine:    eng,
		alerts:    alertSvc,
		hub:       hub,
		emitter:   emitter,
		refresher: refresher,
		logger:    logger,
	}
}

// Ingest validates and scores one transaction, persists it with the
// assessment folded in, creates an alert when warranted, and fans out
// notifications. Duplicate transaction IDs are rejected before scoring.
func (s *Service) Ingest(ctx context.Context, req *Request) (*Result, error) {
	ctx, span := traces.StartSpan(ctx, "ingest.Ingest",
		traces.TransactionID(req.TransactionID), traces.UserID(req.UserID))
	defer span.End()

	if err := validate(req); err != nil {
		return nil, err
	}

	// Reject duplicates before any scoring work.
	exists, err := s.txStore.Exists(ctx, req.TransactionID)
	if err != nil {
		return nil, fmt.Errorf("failed to check for duplicate: %w", err)
	}
	if exists {
		return nil, transactions.ErrDuplicate
	}

	prof, err := s.profiles.Get(ctx, req.UserID)
	if err != nil && !errors.Is(err, profile.ErrNotFound) {
		// Scoring degrades to the no-profile path rather than failing.
		s.logger.Warn("profile lookup failed, scoring without history",
			"user_id", req.UserID, "error", err)
	}

	ts := time.Now().UTC()
	if req.Timestamp != nil {
		ts = req.Timestamp.UTC()
	}

	tx := &transactions.Transaction{
		ID:        req.TransactionID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Merchant:  validation.SanitizeString(req.Merchant, validation.MaxStringLength),
		Category:  validation.SanitizeString(req.Category, validation.MaxStringLength),
		Location:  validation.SanitizeString(req.Location, validation.MaxStringLength),
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
		Timestamp: ts,
		CreatedAt: time.Now().UTC(),
	}

	assessment := s.engine.Score(ctx, tx, prof)

	tx.IsFraud = assessment.IsFraud
	tx.RiskScore = assessment.Score
	tx.AlertType = assessment.AlertType
	tx.FraudReason = strings.Join(assessment.Reasons, "; ")

	if err := s.txStore.Save(ctx, tx); err != nil {
		// A concurrent submit with the same ID loses here.
		if errors.Is(err, transactions.ErrDuplicate) {
			return nil, transactions.ErrDuplicate
		}
		return nil, fmt.Errorf("failed to persist transaction: %w", err)
	}

	result := &Result{Transaction: tx, Assessment: assessment}

	if s.alerts.ShouldAlert(assessment.IsFraud, assessment.Score) {
		alert, err := s.alerts.Create(ctx, tx, assessment.Reasons)
		if err != nil {
			// The transaction is stored and scored; a failed alert write
			// must not fail ingestion.
			s.logger.Error("alert creation failed",
				"transaction_id", tx.ID, "error", err)
		} else {
			result.Alert = alert
			s.fanOut(alert, tx)
		}
	}

	if s.refresher != nil {
		s.refresher.Enqueue(tx.UserID)
	}

	return result, nil
}

// fanOut pushes alert notifications to realtime subscribers and webhooks.
// Both paths are best-effort.
func (s *Service) fanOut(alert *alerts.Alert, tx *transactions.Transaction) {
	if s.hub != nil {
		s.hub.Broadcast(&realtime.AlertEvent{
			TransactionID: alert.TransactionID,
			UserID:        alert.UserID,
			RiskScore:     alert.RiskScore,
			AlertType:     alert.AlertType,
			Description:   alert.Description,
			Timestamp:     alert.CreatedAt,
		})
	}
	if s.emitter != nil {
		s.emitter.EmitAlertCreated(alert)
		if tx.IsFraud {
			s.emitter.EmitFraudFlagged(tx)
		}
	}
}

func validate(req *Request) error {
	errs := validation.Validate(
		validation.Required("transactionId", req.TransactionID),
		validation.ValidID("transactionId", req.TransactionID),
		validation.Required("userId", req.UserID),
		validation.ValidID("userId", req.UserID),
		validation.PositiveAmount("amount", req.Amount),
		validation.MaxLength("merchant", req.Merchant, validation.MaxStringLength),
		validation.Coordinates(req.Latitude, req.Longitude),
	)
	if len(errs) > 0 {
		return errs
	}
	return nil
}
