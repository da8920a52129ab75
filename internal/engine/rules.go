package engine

import (
	"context"
	"fmt"

	"github.com/nmoreau/sentra/internal/profile"
	"github.com/nmoreau/sentra/internal/transactions"
)

// Amount band thresholds and points.
const (
	veryLargeAmount = 15000.0
	largeAmount     = 8000.0
	elevatedAmount  = 5000.0

	veryLargeAmountPoints = 30
	largeAmountPoints     = 18
	elevatedAmountPoints  = 10

	invalidAmountPoints   = 50
	missingMerchantPoints = 8
)

// Behavioral thresholds and points.
const (
	severeDeviation   = 3.0
	highDeviation     = 2.0
	moderateDeviation = 1.5

	severeDeviationPoints   = 20
	highDeviationPoints     = 12
	moderateDeviationPoints = 5

	hourSlack       = 4
	oddHourPoints   = 10
	farLocationSpan = 0.5
	farLocationPoints = 15

	merchantHistoryMin = 10
	novelMerchantPoints = 2

	newUserPoints = 13

	// A rules contribution driven this hard by behavioral checks claims
	// the behavioral alert type.
	behavioralClaimFloor = 15
)

// RuleSignal applies the deterministic checks: absolute amount bands,
// malformed input penalties, and behavioral deviation against the user's
// profile. Users without a profile get a flat new-user contribution instead
// of the behavioral checks.
type RuleSignal struct{}

func NewRuleSignal() *RuleSignal { return &RuleSignal{} }

func (s *RuleSignal) Name() string { return "rules" }

func (s *RuleSignal) Evaluate(ctx context.Context, tx *transactions.Transaction, prof *profile.Profile) (Contribution, error) {
	c := Contribution{Confident: true}

	behavioral := s.behavioral(tx, prof)
	c.Points += behavioral.Points
	c.Reasons = append(c.Reasons, behavioral.Reasons...)
	if behavioral.Points > behavioralClaimFloor {
		c.AlertType = AlertTypeBehavioral
	}

	switch {
	case tx.Amount > veryLargeAmount:
		c.Points += veryLargeAmountPoints
		c.Reasons = append(c.Reasons, "Very large transaction amount (>$15,000)")
	case tx.Amount > largeAmount:
		c.Points += largeAmountPoints
		c.Reasons = append(c.Reasons, "Large transaction amount (>$8,000)")
	case tx.Amount > elevatedAmount:
		c.Points += elevatedAmountPoints
		c.Reasons = append(c.Reasons, "Above-average transaction amount (>$5,000)")
	}

	if tx.Amount <= 0 {
		c.Points += invalidAmountPoints
		c.Reasons = append(c.Reasons, "Invalid transaction amount")
	}

	if tx.Merchant == "" {
		c.Points += missingMerchantPoints
		c.Reasons = append(c.Reasons, "Missing merchant information")
	}

	return c, nil
}

func (s *RuleSignal) behavioral(tx *transactions.Transaction, prof *profile.Profile) Contribution {
	if prof == nil || prof.TxnCount == 0 {
		return Contribution{
			Points:  newUserPoints,
			Reasons: []string{"New user - limited transaction history"},
		}
	}

	var c Contribution

	if prof.AvgAmount > 0 {
		deviation := amountDeviation(tx.Amount, prof.AvgAmount)
		switch {
		case deviation > severeDeviation:
			c.Points += severeDeviationPoints
			c.Reasons = append(c.Reasons, fmt.Sprintf(
				"Transaction amount ($%.2f) is 3x different from user average ($%.2f)",
				tx.Amount, prof.AvgAmount))
		case deviation > highDeviation:
			c.Points += highDeviationPoints
			c.Reasons = append(c.Reasons, "Unusually large transaction amount")
		case deviation > moderateDeviation:
			c.Points += moderateDeviationPoints
			// Minor deviation, not worth a reason.
		}
	}

	if prof.MaxHour > prof.MinHour {
		hour := tx.Timestamp.UTC().Hour()
		if hour < prof.MinHour-hourSlack || hour > prof.MaxHour+hourSlack {
			c.Points += oddHourPoints
			c.Reasons = append(c.Reasons, fmt.Sprintf("Transaction at unusual time (%d:00)", hour))
		}
	}

	if tx.Latitude != nil && tx.Longitude != nil && len(prof.Locations) > 0 {
		far := true
		for _, loc := range prof.Locations {
			if absDiff(*tx.Latitude, loc.Latitude) < farLocationSpan &&
				absDiff(*tx.Longitude, loc.Longitude) < farLocationSpan {
				far = false
				break
			}
		}
		if far {
			c.Points += farLocationPoints
			c.Reasons = append(c.Reasons, "Transaction from unfamiliar location (>50km from typical)")
		}
	}

	// New merchants are routine; only a very established merchant history
	// makes a novel one noteworthy, and even then barely.
	if prof.UniqueMerchants > merchantHistoryMin && tx.Merchant != "" && !prof.HasMerchant(tx.Merchant) {
		c.Points += novelMerchantPoints
	}

	return c
}

func absDiff(a, b float64) float64 {
	if a > b {
		return a - b
	}
	return b - a
}
