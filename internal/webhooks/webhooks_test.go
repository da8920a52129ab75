package webhooks

import (
	"context"
	"crypto/hmac"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/nmoreau/sentra/internal/alerts"
)

func testSub(id, url, secret string, events ...EventType) *Subscription {
	return &Subscription{
		ID:        id,
		URL:       url,
		Secret:    secret,
		Events:    events,
		Active:    true,
		CreatedAt: time.Now().UTC(),
	}
}

func TestMemoryStore_GetByEvent(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()

	if err := store.Create(ctx, testSub("wh_1", "https://a.example.com", "", EventAlertCreated)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testSub("wh_2", "https://b.example.com", "", EventFraudFlagged)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := store.Create(ctx, testSub("wh_3", "https://c.example.com", "", EventAlertCreated, EventFraudFlagged)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	subs, err := store.GetByEvent(ctx, EventAlertCreated)
	if err != nil {
		t.Fatalf("GetByEvent failed: %v", err)
	}
	if len(subs) != 2 {
		t.Errorf("expected 2 alert.created subscribers, got %d", len(subs))
	}

	if err := store.Delete(ctx, "wh_3"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if err := store.Delete(ctx, "wh_3"); err != ErrNotFound {
		t.Errorf("expected ErrNotFound on double delete, got %v", err)
	}
}

func TestDispatcher_DeliversSignedPayload(t *testing.T) {
	var (
		mu       sync.Mutex
		received []byte
		sig      string
		evType   string
	)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = body
		sig = r.Header.Get("X-Sentra-Signature")
		evType = r.Header.Get("X-Sentra-Event")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	sub := testSub("wh_1", srv.URL, "topsecret", EventAlertCreated)
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	d := NewDispatcher(store, "")
	event := &Event{
		ID:        "evt_test",
		Type:      EventAlertCreated,
		Timestamp: time.Now().UTC(),
		Data:      map[string]interface{}{"alertId": "alert_1", "riskScore": 85.0},
	}
	if err := d.Dispatch(ctx, event); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := received != nil
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("webhook was never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()

	if evType != string(EventAlertCreated) {
		t.Errorf("event header = %q, want %q", evType, EventAlertCreated)
	}
	expected := Sign(received, "topsecret")
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		t.Errorf("signature mismatch: got %q, want %q", sig, expected)
	}

	// Delivery result recorded on the subscription
	updated, err := store.Get(ctx, "wh_1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if updated.LastSuccess == nil {
		t.Error("LastSuccess not stamped after delivery")
	}
}

func TestDispatcher_RecordsEndpointFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, testSub("wh_1", srv.URL, "", EventFraudFlagged)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	d := NewDispatcher(store, "")
	event := &Event{ID: "evt_1", Type: EventFraudFlagged, Timestamp: time.Now().UTC()}
	if err := d.Dispatch(ctx, event); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		sub, err := store.Get(ctx, "wh_1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if sub.LastError != "" {
			if sub.LastError != "status 500" {
				t.Errorf("LastError = %q, want %q", sub.LastError, "status 500")
			}
			return
		}
		select {
		case <-deadline:
			t.Fatal("endpoint failure never recorded")
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDispatcher_SkipsInactiveSubscriptions(t *testing.T) {
	var calls atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	sub := testSub("wh_1", srv.URL, "", EventAlertCreated)
	sub.Active = false
	if err := store.Create(ctx, sub); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	d := NewDispatcher(store, "")
	if err := d.Dispatch(ctx, &Event{ID: "evt_1", Type: EventAlertCreated, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	time.Sleep(100 * time.Millisecond)
	if n := calls.Load(); n != 0 {
		t.Errorf("inactive subscription received %d deliveries", n)
	}
}

func TestDispatcher_DeliveryOutlivesCallerContext(t *testing.T) {
	delivered := make(chan struct{})
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Deliberately slower than the caller's context lifetime.
		time.Sleep(50 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
		close(delivered)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	if err := store.Create(context.Background(), testSub("wh_1", srv.URL, "", EventAlertCreated)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	d := NewDispatcher(store, "")
	ctx, cancel := context.WithCancel(context.Background())
	if err := d.Dispatch(ctx, &Event{ID: "evt_1", Type: EventAlertCreated, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}
	// Callers cancel as soon as Dispatch returns; in-flight deliveries
	// must not be torn down with them.
	cancel()

	select {
	case <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("delivery did not complete after caller context cancellation")
	}

	deadline := time.After(2 * time.Second)
	for {
		sub, err := store.Get(context.Background(), "wh_1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if sub.LastSuccess != nil {
			if sub.LastError != "" {
				t.Errorf("LastError = %q, want empty", sub.LastError)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("LastSuccess never stamped, LastError = %q", sub.LastError)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestDispatcher_FallbackSecretSignsDeliveries(t *testing.T) {
	var (
		mu       sync.Mutex
		received []byte
		sig      string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		received = body
		sig = r.Header.Get("X-Sentra-Signature")
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	// Subscription provisioned without its own secret.
	if err := store.Create(ctx, testSub("wh_1", srv.URL, "", EventAlertCreated)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	d := NewDispatcher(store, "shared-fallback")
	if err := d.Dispatch(ctx, &Event{ID: "evt_1", Type: EventAlertCreated, Timestamp: time.Now().UTC()}); err != nil {
		t.Fatalf("Dispatch failed: %v", err)
	}

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		done := received != nil
		mu.Unlock()
		if done {
			break
		}
		select {
		case <-deadline:
			t.Fatal("webhook was never delivered")
		case <-time.After(10 * time.Millisecond):
		}
	}

	mu.Lock()
	defer mu.Unlock()
	expected := Sign(received, "shared-fallback")
	if !hmac.Equal([]byte(sig), []byte(expected)) {
		t.Errorf("signature = %q, want HMAC under fallback secret %q", sig, expected)
	}
}

func TestEmitter_DeliversAlertCreated(t *testing.T) {
	delivered := make(chan []byte, 1)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		select {
		case delivered <- body:
		default:
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	store := NewMemoryStore()
	ctx := context.Background()
	if err := store.Create(ctx, testSub("wh_1", srv.URL, "s3cret", EventAlertCreated)); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	e := NewEmitter(NewDispatcher(store, ""), logger)
	e.EmitAlertCreated(&alerts.Alert{
		ID:            "alert_1",
		TransactionID: "txn_1",
		UserID:        "user_1",
		RiskScore:     82.5,
		AlertType:     "critical",
	})

	var body []byte
	select {
	case body = <-delivered:
	case <-time.After(2 * time.Second):
		t.Fatal("emitted alert.created event was never delivered")
	}

	var event Event
	if err := json.Unmarshal(body, &event); err != nil {
		t.Fatalf("delivered payload is not an event: %v", err)
	}
	if event.Type != EventAlertCreated {
		t.Errorf("event type = %q, want %q", event.Type, EventAlertCreated)
	}
	if event.Data["alertId"] != "alert_1" {
		t.Errorf("event alertId = %v, want alert_1", event.Data["alertId"])
	}

	deadline := time.After(2 * time.Second)
	for {
		sub, err := store.Get(ctx, "wh_1")
		if err != nil {
			t.Fatalf("Get failed: %v", err)
		}
		if sub.LastSuccess != nil {
			if sub.LastError != "" {
				t.Errorf("LastError = %q after successful delivery", sub.LastError)
			}
			return
		}
		select {
		case <-deadline:
			t.Fatalf("LastSuccess never stamped, LastError = %q", sub.LastError)
		case <-time.After(10 * time.Millisecond):
		}
	}
}

func TestEmitter_NilSafe(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	// An emitter without a dispatcher is a no-op, not a panic.
	var e *Emitter
	e.EmitAlertCreated(&alerts.Alert{ID: "alert_1"})

	e = NewEmitter(nil, logger)
	e.EmitAlertCreated(&alerts.Alert{ID: "alert_1"})
}
