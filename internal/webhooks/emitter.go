package webhooks

import (
	"context"
	"log/slog"
	"time"

	"github.com/nmoreau/sentra/internal/alerts"
	"github.com/nmoreau/sentra/internal/idgen"
	"github.com/nmoreau/sentra/internal/transactions"
)

// Emitter wraps a Dispatcher to emit fraud lifecycle events. All methods
// are fire-and-forget: errors are logged but never returned, so the
// ingestion path never blocks on a webhook endpoint.
type Emitter struct {
	d      *Dispatcher
	logger *slog.Logger
}

// NewEmitter creates a new webhook emitter.
func NewEmitter(d *Dispatcher, logger *slog.Logger) *Emitter {
	return &Emitter{d: d, logger: logger}
}

func (e *Emitter) emit(eventType EventType, data map[string]interface{}) {
	if e == nil || e.d == nil {
		return
	}
	event := &Event{
		ID:        idgen.WithPrefix("evt_"),
		Type:      eventType,
		Timestamp: time.Now().UTC(),
		Data:      data,
	}
	// This context only bounds the subscriber lookup; each delivery runs
	// on its own timeout context inside the dispatcher.
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.d.Dispatch(ctx, event); err != nil {
		e.logger.Warn("webhook emit failed", "event", eventType, "error", err)
	}
}

// EmitAlertCreated emits an alert.created event.
func (e *Emitter) EmitAlertCreated(a *alerts.Alert) {
	e.emit(EventAlertCreated, map[string]interface{}{
		"alertId":       a.ID,
		"transactionId": a.TransactionID,
		"userId":        a.UserID,
		"riskScore":     a.RiskScore,
		"alertType":     a.AlertType,
		"description":   a.Description,
	})
}

// EmitFraudFlagged emits a fraud.flagged event for a transaction the
// engine marked as fraud.
func (e *Emitter) EmitFraudFlagged(tx *transactions.Transaction) {
	e.emit(EventFraudFlagged, map[string]interface{}{
		"transactionId": tx.ID,
		"userId":        tx.UserID,
		"amount":        tx.Amount,
		"merchant":      tx.Merchant,
		"riskScore":     tx.RiskScore,
		"alertType":     tx.AlertType,
	})
}
