// Package transactions defines the transaction record and its persistence.
//
// A transaction is immutable once scored: the ingestion path attaches the
// risk outcome exactly once, and records are kept indefinitely for audit and
// for behavioral profile recomputation.
package transactions

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound is returned when a transaction does not exist.
	ErrNotFound = errors.New("transaction not found")
	// ErrDuplicate is returned when a transaction ID was already ingested.
	ErrDuplicate = errors.New("transaction already exists")
)

// Transaction is one financial movement plus the scoring outcome attached
// at ingestion time.
type Transaction struct {
	ID        string    `json:"transactionId"`
	UserID    string    `json:"userId"`
	Amount    float64   `json:"amount"`
	Merchant  string    `json:"merchant"`
	Category  string    `json:"category"`
	Location  string    `json:"location,omitempty"`
	Latitude  *float64  `json:"latitude,omitempty"`
	Longitude *float64  `json:"longitude,omitempty"`
	Timestamp time.Time `json:"timestamp"`

	// Scoring outcome, set once by the ingestion path.
	IsFraud     bool    `json:"isFraud"`
	RiskScore   float64 `json:"riskScore"`
	AlertType   string  `json:"alertType"`
	FraudReason string  `json:"fraudReason,omitempty"`

	CreatedAt time.Time `json:"createdAt"`
}

// Stats summarizes the transaction corpus for the dashboard.
type Stats struct {
	TotalTransactions int64   `json:"totalTransactions"`
	TotalAmount       float64 `json:"totalAmount"`
	FraudCount        int64   `json:"fraudCount"`
	HighRiskCount     int64   `json:"highRiskCount"`
	AvgRiskScore      float64 `json:"avgRiskScore"`
}

// Store persists scored transactions.
type Store interface {
	// Save inserts a scored transaction. Returns ErrDuplicate if the ID exists.
	Save(ctx context.Context, tx *Transaction) error
	// Get returns a transaction by its caller-assigned ID.
	Get(ctx context.Context, id string) (*Transaction, error)
	// ListByUser returns a user's most recent transactions, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error)
	// List returns transactions newest first, optionally filtered by user.
	List(ctx context.Context, userID string, offset, limit int) ([]*Transaction, error)
	// Exists reports whether a transaction ID was already ingested.
	Exists(ctx context.Context, id string) (bool, error)
	// Stats aggregates totals over all transactions.
	Stats(ctx context.Context) (*Stats, error)
}
