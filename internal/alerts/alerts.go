// Package alerts manages the fraud alert lifecycle: creation for flagged or
// high-scoring transactions, and review transitions by analysts.
package alerts

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when an alert does not exist.
	ErrNotFound = errors.New("alert not found")
	// ErrInvalidStatus is returned for unknown status values on transition.
	ErrInvalidStatus = errors.New("invalid alert status")
)

// Alert statuses. Every alert starts pending; the rest are review outcomes.
// Terminal statuses may transition between each other (an analyst can
// reclassify a resolved alert as a false positive), re-stamping ReviewedAt
// each time.
const (
	StatusPending       = "pending"
	StatusReviewed      = "reviewed"
	StatusResolved      = "resolved"
	StatusFalsePositive = "false_positive"
)

// ValidStatus reports whether s is a known alert status.
func ValidStatus(s string) bool {
	switch s {
	case StatusPending, StatusReviewed, StatusResolved, StatusFalsePositive:
		return true
	}
	return false
}

// Alert is a reviewable record of a suspicious transaction.
type Alert struct {
	ID            string     `json:"id"`
	TransactionID string     `json:"transactionId"`
	UserID        string     `json:"userId"`
	RiskScore     float64    `json:"riskScore"`
	AlertType     string     `json:"alertType"`
	Description   string     `json:"description"`
	Status        string     `json:"status"`
	CreatedAt     time.Time  `json:"createdAt"`
	ReviewedAt    *time.Time `json:"reviewedAt,omitempty"`
}

// Store persists alerts.
type Store interface {
	// Create inserts a new alert.
	Create(ctx context.Context, a *Alert) error
	// Get returns an alert by ID.
	Get(ctx context.Context, id string) (*Alert, error)
	// List returns alerts newest first, optionally filtered by status.
	List(ctx context.Context, status string, offset, limit int) ([]*Alert, error)
	// Update replaces an alert's status and review timestamp.
	Update(ctx context.Context, a *Alert) error
	// CountByStatus returns alert counts keyed by status.
	CountByStatus(ctx context.Context) (map[string]int64, error)
}
