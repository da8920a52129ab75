package alerts

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// PostgresStore persists alerts in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed alert store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the fraud_alerts table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS fraud_alerts (
			id             VARCHAR(64) PRIMARY KEY,
			transaction_id VARCHAR(64) NOT NULL,
			user_id        VARCHAR(64) NOT NULL,
			risk_score     NUMERIC(5,2) NOT NULL,
			alert_type     VARCHAR(20) NOT NULL,
			description    TEXT NOT NULL,
			status         VARCHAR(20) NOT NULL DEFAULT 'pending',
			created_at     TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			reviewed_at    TIMESTAMPTZ
		);

		CREATE INDEX IF NOT EXISTS idx_fraud_alerts_status
			ON fraud_alerts (status, created_at DESC);

		CREATE INDEX IF NOT EXISTS idx_fraud_alerts_user
			ON fraud_alerts (user_id);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, a *Alert) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO fraud_alerts
			(id, transaction_id, user_id, risk_score, alert_type, description, status, created_at, reviewed_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`, a.ID, a.TransactionID, a.UserID, a.RiskScore, a.AlertType, a.Description, a.Status, a.CreatedAt, a.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to create alert: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Alert, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, transaction_id, user_id, risk_score, alert_type, description, status, created_at, reviewed_at
		FROM fraud_alerts
		WHERE id = $1
	`, id)

	var a Alert
	err := row.Scan(&a.ID, &a.TransactionID, &a.UserID, &a.RiskScore,
		&a.AlertType, &a.Description, &a.Status, &a.CreatedAt, &a.ReviewedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get alert: %w", err)
	}
	return &a, nil
}

func (s *PostgresStore) List(ctx context.Context, status string, offset, limit int) ([]*Alert, error) {
	query := `
		SELECT id, transaction_id, user_id, risk_score, alert_type, description, status, created_at, reviewed_at
		FROM fraud_alerts`
	args := []any{}
	if status != "" {
		query += ` WHERE status = $1 ORDER BY created_at DESC OFFSET $2 LIMIT $3`
		args = append(args, status, offset, limit)
	} else {
		query += ` ORDER BY created_at DESC OFFSET $1 LIMIT $2`
		args = append(args, offset, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Alert
	for rows.Next() {
		var a Alert
		if err := rows.Scan(&a.ID, &a.TransactionID, &a.UserID, &a.RiskScore,
			&a.AlertType, &a.Description, &a.Status, &a.CreatedAt, &a.ReviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan alert: %w", err)
		}
		result = append(result, &a)
	}
	return result, rows.Err()
}

func (s *PostgresStore) Update(ctx context.Context, a *Alert) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE fraud_alerts
		SET status = $2, reviewed_at = $3
		WHERE id = $1
	`, a.ID, a.Status, a.ReviewedAt)
	if err != nil {
		return fmt.Errorf("failed to update alert: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT status, COUNT(*) FROM fraud_alerts GROUP BY status`)
	if err != nil {
		return nil, fmt.Errorf("failed to count alerts: %w", err)
	}
	defer func() { _ = rows.Close() }()

	counts := make(map[string]int64)
	for rows.Next() {
		var status string
		var n int64
		if err := rows.Scan(&status, &n); err != nil {
			return nil, fmt.Errorf("failed to scan alert count: %w", err)
		}
		counts[status] = n
	}
	return counts, rows.Err()
}
