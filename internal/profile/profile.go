// Package profile maintains per-user behavioral profiles derived from
// transaction history. Profiles are the reference point for the behavioral
// scoring signals: typical spend, usual hours, known merchants and locations.
package profile

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/nmoreau/sentra/internal/transactions"
)

// ErrNotFound is returned when no profile exists for a user.
var ErrNotFound = errors.New("profile not found")

const (
	// DefaultWindow is how many recent transactions feed a profile.
	DefaultWindow = 100
	// maxMerchants caps the merchant frequency map carried per profile.
	maxMerchants = 10
	// maxLocations caps the known coordinates carried per profile.
	maxLocations = 5
)

// Coordinate is a known transaction location for a user.
type Coordinate struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Profile is a user's spending baseline over their recent transactions.
type Profile struct {
	UserID    string  `json:"userId"`
	TxnCount  int     `json:"txnCount"`
	AvgAmount float64 `json:"avgAmount"`
	MinAmount float64 `json:"minAmount"`
	MaxAmount float64 `json:"maxAmount"`

	// Merchants maps merchant name to frequency within the window,
	// trimmed to the most frequent entries.
	Merchants map[string]int `json:"merchants"`
	// UniqueMerchants counts distinct merchants before trimming.
	UniqueMerchants int `json:"uniqueMerchants"`

	Locations []Coordinate `json:"locations"`
	// UniqueLocations counts distinct coordinates before trimming.
	UniqueLocations int `json:"uniqueLocations"`

	// MinHour and MaxHour bound the user's active hours (UTC).
	MinHour int `json:"minHour"`
	MaxHour int `json:"maxHour"`

	LastUpdated time.Time `json:"lastUpdated"`
}

// HasMerchant reports whether the merchant appears in the profile's
// retained frequency map.
func (p *Profile) HasMerchant(name string) bool {
	_, ok := p.Merchants[name]
	return ok
}

// TopMerchants returns merchant names ordered by descending frequency.
func (p *Profile) TopMerchants() []string {
	names := make([]string, 0, len(p.Merchants))
	for name := range p.Merchants {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		if p.Merchants[names[i]] != p.Merchants[names[j]] {
			return p.Merchants[names[i]] > p.Merchants[names[j]]
		}
		return names[i] < names[j]
	})
	return names
}

// Compute builds a profile from a user's recent transactions. The slice is
// expected newest first, as returned by the transaction store; order does
// not affect the result except for location trimming, which prefers the
// most recent coordinates.
func Compute(userID string, txns []*transactions.Transaction) *Profile {
	p := &Profile{
		UserID:      userID,
		TxnCount:    len(txns),
		Merchants:   make(map[string]int),
		MinHour:     24,
		MaxHour:     -1,
		LastUpdated: time.Now().UTC(),
	}
	if len(txns) == 0 {
		return p
	}

	merchantCounts := make(map[string]int)
	locationCounts := make(map[Coordinate]int)
	var locationOrder []Coordinate
	var total float64
	p.MinAmount = txns[0].Amount
	p.MaxAmount = txns[0].Amount

	for _, tx := range txns {
		total += tx.Amount
		if tx.Amount < p.MinAmount {
			p.MinAmount = tx.Amount
		}
		if tx.Amount > p.MaxAmount {
			p.MaxAmount = tx.Amount
		}
		if tx.Merchant != "" {
			merchantCounts[tx.Merchant]++
		}
		if tx.Latitude != nil && tx.Longitude != nil {
			c := Coordinate{Latitude: *tx.Latitude, Longitude: *tx.Longitude}
			if locationCounts[c] == 0 {
				locationOrder = append(locationOrder, c)
			}
			locationCounts[c]++
		}
		h := tx.Timestamp.UTC().Hour()
		if h < p.MinHour {
			p.MinHour = h
		}
		if h > p.MaxHour {
			p.MaxHour = h
		}
	}

	p.AvgAmount = total / float64(len(txns))
	p.UniqueMerchants = len(merchantCounts)
	p.UniqueLocations = len(locationCounts)

	// Keep only the highest-frequency merchants.
	type mc struct {
		name  string
		count int
	}
	ranked := make([]mc, 0, len(merchantCounts))
	for name, count := range merchantCounts {
		ranked = append(ranked, mc{name, count})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].count != ranked[j].count {
			return ranked[i].count > ranked[j].count
		}
		return ranked[i].name < ranked[j].name
	})
	for i, m := range ranked {
		if i >= maxMerchants {
			break
		}
		p.Merchants[m.name] = m.count
	}

	// Keep the highest-frequency coordinates, most recent first on ties.
	sort.SliceStable(locationOrder, func(i, j int) bool {
		return locationCounts[locationOrder[i]] > locationCounts[locationOrder[j]]
	})
	if len(locationOrder) > maxLocations {
		locationOrder = locationOrder[:maxLocations]
	}
	p.Locations = locationOrder

	return p
}

// Store persists user profiles.
type Store interface {
	// Get returns a user's profile, or ErrNotFound if absent or expired.
	Get(ctx context.Context, userID string) (*Profile, error)
	// Save inserts or replaces a user's profile.
	Save(ctx context.Context, p *Profile) error
	// Delete removes a user's profile. Missing profiles are not an error.
	Delete(ctx context.Context, userID string) error
	// DeleteStale removes profiles not updated since the cutoff,
	// returning how many were removed.
	DeleteStale(ctx context.Context, cutoff time.Time) (int, error)
}
