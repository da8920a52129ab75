package transactions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists transactions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed transaction store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the transactions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS transactions (
			transaction_id VARCHAR(64) PRIMARY KEY,
			user_id        VARCHAR(64) NOT NULL,
			amount         NUMERIC(14,2) NOT NULL CHECK (amount > 0),
			merchant       TEXT NOT NULL,
			category       TEXT NOT NULL,
			location       TEXT,
			latitude       DOUBLE PRECISION,
			longitude      DOUBLE PRECISION,
			ts             TIMESTAMPTZ NOT NULL,
			is_fraud       BOOLEAN NOT NULL DEFAULT FALSE,
			risk_score     NUMERIC(5,2) NOT NULL CHECK (risk_score >= 0 AND risk_score <= 100),
			alert_type     VARCHAR(20) NOT NULL,
			fraud_reason   TEXT,
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_transactions_user_ts
			ON transactions (user_id, ts DESC);

		CREATE INDEX IF NOT EXISTS idx_transactions_fraud
			ON transactions (ts DESC) WHERE is_fraud;
	`)
	return err
}

func (s *PostgresStore) Save(ctx context.Context, tx *Transaction) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO transactions
			(transaction_id, user_id, amount, merchant, category, location,
			 latitude, longitude, ts, is_fraud, risk_score, alert_type, fraud_reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`,
		tx.ID, tx.UserID, tx.Amount, tx.Merchant, tx.Category, nullString(tx.Location),
		tx.Latitude, tx.Longitude, tx.Timestamp, tx.IsFraud, tx.RiskScore,
		tx.AlertType, nullString(tx.FraudReason), tx.CreatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to save transaction: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Transaction, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT transaction_id, user_id, amount, merchant, category,
		       COALESCE(location, ''), latitude, longitude, ts,
		       is_fraud, risk_score, alert_type, COALESCE(fraud_reason, ''), created_at
		FROM transactions
		WHERE transaction_id = $1
	`, id)

	tx, err := scanTransaction(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return tx, nil
}

func (s *PostgresStore) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.db.QueryRowContext(ctx,
		`SELECT EXISTS (SELECT 1 FROM transactions WHERE transaction_id = $1)`, id,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check transaction: %w", err)
	}
	return exists, nil
}

func (s *PostgresStore) ListByUser(ctx context.Context, userID string, limit int) ([]*Transaction, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT transaction_id, user_id, amount, merchant, category,
		       COALESCE(location, ''), latitude, longitude, ts,
		       is_fraud, risk_score, alert_type, COALESCE(fraud_reason, ''), created_at
		FROM transactions
		WHERE user_id = $1
		ORDER BY ts DESC
		LIMIT $2
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) List(ctx context.Context, userID string, offset, limit int) ([]*Transaction, error) {
	query := `
		SELECT transaction_id, user_id, amount, merchant, category,
		       COALESCE(location, ''), latitude, longitude, ts,
		       is_fraud, risk_score, alert_type, COALESCE(fraud_reason, ''), created_at
		FROM transactions`
	args := []any{}
	if userID != "" {
		query += ` WHERE user_id = $1 ORDER BY ts DESC OFFSET $2 LIMIT $3`
		args = append(args, userID, offset, limit)
	} else {
		query += ` ORDER BY ts DESC OFFSET $1 LIMIT $2`
		args = append(args, offset, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return collectTransactions(rows)
}

func (s *PostgresStore) Stats(ctx context.Context) (*Stats, error) {
	stats := &Stats{}
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(amount), 0),
		       COUNT(*) FILTER (WHERE is_fraud),
		       COUNT(*) FILTER (WHERE risk_score >= 70),
		       COALESCE(AVG(risk_score), 0)
		FROM transactions
	`).Scan(
		&stats.TotalTransactions,
		&stats.TotalAmount,
		&stats.FraudCount,
		&stats.HighRiskCount,
		&stats.AvgRiskScore,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate stats: %w", err)
	}
	return stats, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanTransaction(row rowScanner) (*Transaction, error) {
	var tx Transaction
	err := row.Scan(
		&tx.ID, &tx.UserID, &tx.Amount, &tx.Merchant, &tx.Category,
		&tx.Location, &tx.Latitude, &tx.Longitude, &tx.Timestamp,
		&tx.IsFraud, &tx.RiskScore, &tx.AlertType, &tx.FraudReason, &tx.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &tx, nil
}

func collectTransactions(rows *sql.Rows) ([]*Transaction, error) {
	defer func() { _ = rows.Close() }()

	var result []*Transaction
	for rows.Next() {
		tx, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction: %w", err)
		}
		result = append(result, tx)
	}
	return result, rows.Err()
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
