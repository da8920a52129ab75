package webhooks

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"
)

// PostgresStore persists webhook subscriptions in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a PostgreSQL-backed subscription store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the webhook_subscriptions table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS webhook_subscriptions (
			id           VARCHAR(64) PRIMARY KEY,
			url          TEXT NOT NULL,
			secret       TEXT NOT NULL,
			events       TEXT[] NOT NULL,
			active       BOOLEAN NOT NULL DEFAULT TRUE,
			created_at   TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			last_success TIMESTAMPTZ,
			last_error   TEXT
		);
	`)
	return err
}

func (s *PostgresStore) Create(ctx context.Context, sub *Subscription) error {
	events := make([]string, len(sub.Events))
	for i, e := range sub.Events {
		events[i] = string(e)
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO webhook_subscriptions (id, url, secret, events, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
	`, sub.ID, sub.URL, sub.Secret, pq.Array(events), sub.Active, sub.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create webhook subscription: %w", err)
	}
	return nil
}

func (s *PostgresStore) Get(ctx context.Context, id string) (*Subscription, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, url, secret, events, active, created_at, last_success, COALESCE(last_error, '')
		FROM webhook_subscriptions
		WHERE id = $1
	`, id)

	sub, err := scanSubscription(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get webhook subscription: %w", err)
	}
	return sub, nil
}

func (s *PostgresStore) List(ctx context.Context) ([]*Subscription, error) {
	return s.query(ctx, `
		SELECT id, url, secret, events, active, created_at, last_success, COALESCE(last_error, '')
		FROM webhook_subscriptions
		ORDER BY created_at DESC
	`)
}

func (s *PostgresStore) GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error) {
	return s.query(ctx, `
		SELECT id, url, secret, events, active, created_at, last_success, COALESCE(last_error, '')
		FROM webhook_subscriptions
		WHERE $1 = ANY(events)
	`, string(eventType))
}

func (s *PostgresStore) Update(ctx context.Context, sub *Subscription) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE webhook_subscriptions
		SET active = $2, last_success = $3, last_error = NULLIF($4, '')
		WHERE id = $1
	`, sub.ID, sub.Active, sub.LastSuccess, sub.LastError)
	if err != nil {
		return fmt.Errorf("failed to update webhook subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM webhook_subscriptions WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete webhook subscription: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (s *PostgresStore) query(ctx context.Context, q string, args ...any) ([]*Subscription, error) {
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query webhook subscriptions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []*Subscription
	for rows.Next() {
		sub, err := scanSubscription(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan webhook subscription: %w", err)
		}
		result = append(result, sub)
	}
	return result, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSubscription(row rowScanner) (*Subscription, error) {
	var (
		sub    Subscription
		events []string
	)
	err := row.Scan(&sub.ID, &sub.URL, &sub.Secret, pq.Array(&events),
		&sub.Active, &sub.CreatedAt, &sub.LastSuccess, &sub.LastError)
	if err != nil {
		return nil, err
	}
	sub.Events = make([]EventType, len(events))
	for i, e := range events {
		sub.Events[i] = EventType(e)
	}
	return &sub, nil
}
