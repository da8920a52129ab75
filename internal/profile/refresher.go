package profile

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/nmoreau/sentra/internal/metrics"
	"github.com/nmoreau/sentra/internal/syncutil"
	"github.com/nmoreau/sentra/internal/transactions"
)

const (
	defaultQueueSize     = 1024
	defaultSweepInterval = 1 * time.Hour
)

// Refresher recomputes profiles asynchronously after ingestion. Work is
// queued per user; a full queue drops the request rather than blocking the
// scoring path, since the next transaction for the same user re-enqueues it.
type Refresher struct {
	txStore   transactions.Store
	store     Store
	logger    *slog.Logger
	window    int
	retention time.Duration

	queue   chan string
	locks   syncutil.ShardedMutex
	stop    chan struct{}
	running atomic.Bool
}

// NewRefresher creates a profile refresh worker. window is how many recent
// transactions feed each profile; retention bounds profile age for the
// background sweep.
func NewRefresher(txStore transactions.Store, store Store, window int, retention time.Duration, logger *slog.Logger) *Refresher {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Refresher{
		txStore:   txStore,
		store:     store,
		logger:    logger,
		window:    window,
		retention: retention,
		queue:     make(chan string, defaultQueueSize),
		stop:      make(chan struct{}),
	}
}

// Running reports whether the worker loop is active.
func (r *Refresher) Running() bool {
	return r.running.Load()
}

// Enqueue requests a refresh for the user. Returns false if the queue is
// full and the request was dropped.
func (r *Refresher) Enqueue(userID string) bool {
	select {
	case r.queue <- userID:
		return true
	default:
		metrics.ProfileRefreshTotal.WithLabelValues("dropped").Inc()
		return false
	}
}

// Start runs the refresh loop and the periodic retention sweep until the
// context is cancelled or Stop is called.
func (r *Refresher) Start(ctx context.Context) {
	r.running.Store(true)
	defer r.running.Store(false)

	ticker := time.NewTicker(defaultSweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-r.stop:
			return
		case userID := <-r.queue:
			r.safeDoWork(ctx, func(ctx context.Context) { r.refresh(ctx, userID) })
		case <-ticker.C:
			r.safeDoWork(ctx, r.sweep)
		}
	}
}

// Stop signals the worker to stop.
func (r *Refresher) Stop() {
	select {
	case r.stop <- struct{}{}:
	default:
	}
}

func (r *Refresher) safeDoWork(ctx context.Context, fn func(context.Context)) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("panic in profile refresher", "panic", fmt.Sprint(rec))
		}
	}()
	fn(ctx)
}

// Refresh recomputes a single user's profile synchronously. The per-user
// lock keeps concurrent refreshes for the same user from interleaving.
func (r *Refresher) Refresh(ctx context.Context, userID string) error {
	unlock := r.locks.Lock(userID)
	defer unlock()

	txns, err := r.txStore.ListByUser(ctx, userID, r.window)
	if err != nil {
		return fmt.Errorf("failed to load transactions for profile: %w", err)
	}
	if len(txns) == 0 {
		// Nothing to profile; drop any stale entry.
		return r.store.Delete(ctx, userID)
	}

	return r.store.Save(ctx, Compute(userID, txns))
}

func (r *Refresher) refresh(ctx context.Context, userID string) {
	if err := r.Refresh(ctx, userID); err != nil {
		metrics.ProfileRefreshTotal.WithLabelValues("error").Inc()
		r.logger.Error("profile refresh failed", "user_id", userID, "error", err)
		return
	}
	metrics.ProfileRefreshTotal.WithLabelValues("ok").Inc()
}

func (r *Refresher) sweep(ctx context.Context) {
	if r.retention <= 0 {
		return
	}
	cutoff := time.Now().Add(-r.retention)
	removed, err := r.store.DeleteStale(ctx, cutoff)
	if err != nil {
		r.logger.Error("profile sweep failed", "error", err)
		return
	}
	if removed > 0 {
		r.logger.Info("stale profiles removed", "count", removed, "cutoff", cutoff.Format(time.RFC3339))
	}
}
