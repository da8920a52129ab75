package profile

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// PostgresStore persists profiles in PostgreSQL. The merchant and location
// detail is stored as a JSONB document; the scalar columns exist for
// retention sweeps and inspection.
type PostgresStore struct {
	db        *sql.DB
	retention time.Duration
}

// NewPostgresStore creates a PostgreSQL-backed profile store.
func NewPostgresStore(db *sql.DB, retention time.Duration) *PostgresStore {
	return &PostgresStore{db: db, retention: retention}
}

// Migrate creates the user_profiles table if it doesn't exist.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS user_profiles (
			user_id      VARCHAR(64) PRIMARY KEY,
			profile      JSONB NOT NULL,
			last_updated TIMESTAMPTZ NOT NULL
		);

		CREATE INDEX IF NOT EXISTS idx_user_profiles_updated
			ON user_profiles (last_updated);
	`)
	return err
}

func (s *PostgresStore) Get(ctx context.Context, userID string) (*Profile, error) {
	var (
		payload     []byte
		lastUpdated time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT profile, last_updated FROM user_profiles WHERE user_id = $1`, userID,
	).Scan(&payload, &lastUpdated)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get profile: %w", err)
	}
	if s.retention > 0 && time.Since(lastUpdated) > s.retention {
		return nil, ErrNotFound
	}

	var p Profile
	if err := json.Unmarshal(payload, &p); err != nil {
		return nil, fmt.Errorf("failed to decode profile: %w", err)
	}
	p.LastUpdated = lastUpdated
	return &p, nil
}

func (s *PostgresStore) Save(ctx context.Context, p *Profile) error {
	payload, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("failed to encode profile: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO user_profiles (user_id, profile, last_updated)
		VALUES ($1, $2, $3)
		ON CONFLICT (user_id) DO UPDATE
			SET profile = EXCLUDED.profile,
			    last_updated = EXCLUDED.last_updated
	`, p.UserID, payload, p.LastUpdated)
	if err != nil {
		return fmt.Errorf("failed to save profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) Delete(ctx context.Context, userID string) error {
	_, err := s.db.ExecContext(ctx,
		`DELETE FROM user_profiles WHERE user_id = $1`, userID)
	if err != nil {
		return fmt.Errorf("failed to delete profile: %w", err)
	}
	return nil
}

func (s *PostgresStore) DeleteStale(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM user_profiles WHERE last_updated < $1`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to sweep profiles: %w", err)
	}
	n, _ := res.RowsAffected()
	return int(n), nil
}
