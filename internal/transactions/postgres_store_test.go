//go:build integration

package transactions

import (
	"context"
	"testing"
	"time"

	"github.com/nmoreau/sentra/internal/testutil"
)

func TestPostgres_SaveGetList(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	lat, lon := 40.7128, -74.0060
	tx := &Transaction{
		ID:        "txn_pg_001",
		UserID:    "user_1",
		Amount:    125.40,
		Merchant:  "Whole Foods",
		Category:  "grocery",
		Location:  "New York",
		Latitude:  &lat,
		Longitude: &lon,
		Timestamp: time.Now().UTC().Truncate(time.Microsecond),
		RiskScore: 22.5,
		AlertType: "none",
		CreatedAt: time.Now().UTC(),
	}

	if err := store.Save(ctx, tx); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := store.Save(ctx, tx); err != ErrDuplicate {
		t.Fatalf("expected ErrDuplicate on second save, got %v", err)
	}

	got, err := store.Get(ctx, "txn_pg_001")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Merchant != "Whole Foods" || got.RiskScore != 22.5 {
		t.Errorf("unexpected transaction: %+v", got)
	}
	if got.Latitude == nil || *got.Latitude != lat {
		t.Errorf("latitude not round-tripped: %v", got.Latitude)
	}

	if _, err := store.Get(ctx, "txn_missing"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	txns, err := store.ListByUser(ctx, "user_1", 10)
	if err != nil {
		t.Fatalf("ListByUser failed: %v", err)
	}
	if len(txns) != 1 {
		t.Fatalf("expected 1 transaction, got %d", len(txns))
	}
}

func TestPostgres_Stats(t *testing.T) {
	db, cleanup := testutil.PGTest(t)
	defer cleanup()

	store := NewPostgresStore(db)
	ctx := context.Background()

	base := time.Now().UTC()
	rows := []struct {
		id    string
		amt   float64
		score float64
		fraud bool
	}{
		{"txn_s1", 20000, 85, true},
		{"txn_s2", 6000, 55, false},
		{"txn_s3", 40, 10, false},
	}
	for _, r := range rows {
		tx := &Transaction{
			ID: r.id, UserID: "user_1", Amount: r.amt,
			Merchant: "Test", Category: "other",
			Timestamp: base, IsFraud: r.fraud, RiskScore: r.score,
			AlertType: "none", CreatedAt: base,
		}
		if err := store.Save(ctx, tx); err != nil {
			t.Fatalf("Save failed: %v", err)
		}
	}

	stats, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if stats.TotalTransactions != 3 || stats.FraudCount != 1 || stats.HighRiskCount != 1 {
		t.Errorf("unexpected stats: %+v", stats)
	}
}
