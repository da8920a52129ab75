// Package webhooks delivers fraud events to external services.
//
// Operations teams register webhook URLs to receive notifications about:
// - Alert creation
// - Fraud-flagged transactions
//
// Deliveries are signed with HMAC-SHA256 when the subscription has a secret
// and are always fire-and-forget from the scoring path's perspective.
package webhooks

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nmoreau/sentra/internal/metrics"
)

// ErrNotFound is returned when a subscription does not exist.
var ErrNotFound = errors.New("webhook subscription not found")

// EventType represents the type of webhook event.
type EventType string

const (
	EventAlertCreated EventType = "alert.created"
	EventFraudFlagged EventType = "fraud.flagged"
)

// ValidEventType reports whether t is a known event type.
func ValidEventType(t EventType) bool {
	return t == EventAlertCreated || t == EventFraudFlagged
}

// Event represents a webhook event.
type Event struct {
	ID        string                 `json:"id"`
	Type      EventType              `json:"type"`
	Timestamp time.Time              `json:"timestamp"`
	Data      map[string]interface{} `json:"data"`
}

// Subscription represents a webhook subscription.
type Subscription struct {
	ID          string      `json:"id"`
	URL         string      `json:"url"`
	Secret      string      `json:"-"` // Used for HMAC signing
	Events      []EventType `json:"events"`
	Active      bool        `json:"active"`
	CreatedAt   time.Time   `json:"createdAt"`
	LastSuccess *time.Time  `json:"lastSuccess,omitempty"`
	LastError   string      `json:"lastError,omitempty"`
}

// Store persists webhook subscriptions.
type Store interface {
	Create(ctx context.Context, sub *Subscription) error
	Get(ctx context.Context, id string) (*Subscription, error)
	List(ctx context.Context) ([]*Subscription, error)
	GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error)
	Update(ctx context.Context, sub *Subscription) error
	Delete(ctx context.Context, id string) error
}

// deliveryTimeout bounds a single delivery attempt including the
// subscription status update that follows it.
const deliveryTimeout = 30 * time.Second

// Dispatcher sends webhook events.
type Dispatcher struct {
	store          Store
	client         *http.Client
	fallbackSecret string
}

// NewDispatcher creates a new webhook dispatcher. fallbackSecret signs
// deliveries for subscriptions that have no secret of their own; empty
// means such deliveries go unsigned.
func NewDispatcher(store Store, fallbackSecret string) *Dispatcher {
	return &Dispatcher{
		store:          store,
		fallbackSecret: fallbackSecret,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// Dispatch sends an event to all active subscribers of its type. Each
// delivery runs in its own goroutine with its own timeout context, so a
// slow endpoint cannot stall the caller and the caller's context may be
// cancelled as soon as Dispatch returns.
func (d *Dispatcher) Dispatch(ctx context.Context, event *Event) error {
	subs, err := d.store.GetByEvent(ctx, event.Type)
	if err != nil {
		return fmt.Errorf("failed to get subscribers: %w", err)
	}

	for _, sub := range subs {
		if !sub.Active {
			continue
		}
		go d.send(sub, event)
	}

	return nil
}

func (d *Dispatcher) send(sub *Subscription, event *Event) {
	ctx, cancel := context.WithTimeout(context.Background(), deliveryTimeout)
	defer cancel()

	payload, err := json.Marshal(event)
	if err != nil {
		d.updateError(ctx, sub, "failed to marshal event")
		return
	}

	req, err := http.NewRequestWithContext(ctx, "POST", sub.URL, bytes.NewReader(payload))
	if err != nil {
		d.updateError(ctx, sub, "failed to create request")
		return
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Sentra-Event", string(event.Type))
	req.Header.Set("X-Sentra-Timestamp", fmt.Sprintf("%d", event.Timestamp.Unix()))

	secret := sub.Secret
	if secret == "" {
		secret = d.fallbackSecret
	}
	if secret != "" {
		req.Header.Set("X-Sentra-Signature", Sign(payload, secret))
	}

	resp, err := d.client.Do(req)
	if err != nil {
		d.updateError(ctx, sub, fmt.Sprintf("request failed: %v", err))
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		d.updateSuccess(ctx, sub)
	} else {
		d.updateError(ctx, sub, fmt.Sprintf("status %d", resp.StatusCode))
	}
}

// Sign computes the hex HMAC-SHA256 of payload under secret. Receivers
// verify the X-Sentra-Signature header with the same computation.
func Sign(payload []byte, secret string) string {
	h := hmac.New(sha256.New, []byte(secret))
	h.Write(payload)
	return hex.EncodeToString(h.Sum(nil))
}

func (d *Dispatcher) updateSuccess(ctx context.Context, sub *Subscription) {
	metrics.WebhookDeliveriesTotal.WithLabelValues("ok").Inc()
	now := time.Now()
	sub.LastSuccess = &now
	sub.LastError = ""
	_ = d.store.Update(ctx, sub)
}

func (d *Dispatcher) updateError(ctx context.Context, sub *Subscription, errMsg string) {
	metrics.WebhookDeliveriesTotal.WithLabelValues("error").Inc()
	sub.LastError = errMsg
	_ = d.store.Update(ctx, sub)
}

// MemoryStore is an in-memory implementation for demo/test use.
type MemoryStore struct {
	subs map[string]*Subscription
	mu   sync.RWMutex
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{subs: make(map[string]*Subscription)}
}

func (m *MemoryStore) Create(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Get(ctx context.Context, id string) (*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if sub, ok := m.subs[id]; ok {
		return sub, nil
	}
	return nil, ErrNotFound
}

func (m *MemoryStore) List(ctx context.Context) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	result := make([]*Subscription, 0, len(m.subs))
	for _, sub := range m.subs {
		result = append(result, sub)
	}
	return result, nil
}

func (m *MemoryStore) GetByEvent(ctx context.Context, eventType EventType) ([]*Subscription, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var result []*Subscription
	for _, sub := range m.subs {
		for _, et := range sub.Events {
			if et == eventType {
				result = append(result, sub)
				break
			}
		}
	}
	return result, nil
}

func (m *MemoryStore) Update(ctx context.Context, sub *Subscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[sub.ID]; !ok {
		return ErrNotFound
	}
	m.subs[sub.ID] = sub
	return nil
}

func (m *MemoryStore) Delete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.subs[id]; !ok {
		return ErrNotFound
	}
	delete(m.subs, id)
	return nil
}
