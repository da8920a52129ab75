// Package engine aggregates fraud risk signals into a single bounded score.
//
// The engine runs its signals concurrently, sums their contributions on top
// of a small deterministic baseline, and clamps the result to [0,100]. A
// failing signal degrades to a zero contribution; scoring never fails.
package engine

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nmoreau/sentra/internal/metrics"
	"github.com/nmoreau/sentra/internal/ml"
	"github.com/nmoreau/sentra/internal/profile"
	"github.com/nmoreau/sentra/internal/traces"
	"github.com/nmoreau/sentra/internal/transactions"
)

// Risk categories in descending severity.
const (
	CategoryCritical   = "critical"
	CategoryHighRisk   = "high_risk"
	CategoryMediumRisk = "medium_risk"
	CategoryNormal     = "normal"
)

const (
	// CriticalThreshold flags fraud and forces the critical category.
	CriticalThreshold = 70.0
	// HighRiskThreshold marks transactions worth reviewing.
	HighRiskThreshold = 50.0
	// MediumRiskThreshold gates whether reasons are surfaced at all.
	MediumRiskThreshold = 30.0

	// lowConfidenceReasonFloor gates reasons from unconfident
	// contributions; they only surface on clearly elevated scores.
	lowConfidenceReasonFloor = 40.0

	// baselineRisk anchors every score above zero so the clamp and the
	// category bands see comparable inputs across signal availability.
	baselineRisk = 5.0
)

// Assessment is the outcome of scoring one transaction. It is transient:
// its fields are folded into the stored transaction and, when warranted,
// into an alert.
type Assessment struct {
	Score     float64            `json:"score"`
	IsFraud   bool               `json:"isFraud"`
	Category  string             `json:"category"`
	AlertType string             `json:"alertType"`
	Reasons   []string           `json:"reasons"`
	Signals   map[string]float64 `json:"signals"`
}

// Engine scores transactions by combining its signals.
type Engine struct {
	signals []Signal
	logger  *slog.Logger
}

// New creates an engine with the standard signal set: anomaly model,
// supervised classifier, and deterministic rules. models may carry nil
// members; the corresponding signals degrade to zero contribution.
func New(models *ml.Models, logger *slog.Logger) *Engine {
	if models == nil {
		models = &ml.Models{}
	}
	return &Engine{
		signals: []Signal{
			NewAnomalySignal(models.Anomaly),
			NewRuleSignal(),
			NewClassifierSignal(models.Classifier),
		},
		logger: logger,
	}
}

// NewWithSignals creates an engine over an explicit signal list.
func NewWithSignals(signals []Signal, logger *slog.Logger) *Engine {
	return &Engine{signals: signals, logger: logger}
}

// Score evaluates all signals concurrently and aggregates them into an
// Assessment. prof may be nil for users without history. The result is
// always well-formed with a score in [0,100], even with every signal
// degraded.
func (e *Engine) Score(ctx context.Context, tx *transactions.Transaction, prof *profile.Profile) *Assessment {
	ctx, span := traces.StartSpan(ctx, "engine.Score",
		traces.TransactionID(tx.ID), traces.UserID(tx.UserID))
	defer span.End()

	contributions := make([]Contribution, len(e.signals))
	var wg sync.WaitGroup
	for i, sig := range e.signals {
		wg.Add(1)
		go func(i int, sig Signal) {
			defer wg.Done()
			contributions[i] = e.evaluate(ctx, sig, tx, prof)
		}(i, sig)
	}
	wg.Wait()

	score := baselineRisk
	signalPoints := make(map[string]float64, len(e.signals))
	var confidentReasons, tentativeReasons []string
	claimedType := ""
	claimedPoints := 0.0

	for i, c := range contributions {
		score += c.Points
		signalPoints[e.signals[i].Name()] = c.Points
		if c.Confident {
			confidentReasons = append(confidentReasons, c.Reasons...)
		} else {
			tentativeReasons = append(tentativeReasons, c.Reasons...)
		}
		if c.AlertType != "" && c.Points > claimedPoints {
			claimedType = c.AlertType
			claimedPoints = c.Points
		}
	}

	if score > 100 {
		score = 100
	}
	if score < 0 {
		score = 0
	}

	a := &Assessment{
		Score:    score,
		IsFraud:  score >= CriticalThreshold,
		Category: categorize(score),
		Reasons:  []string{},
		Signals:  signalPoints,
	}

	// Reasons are noise on routine transactions; surface them only once
	// the score is at least medium, and hold tentative ones to a higher
	// bar still.
	if score >= MediumRiskThreshold {
		a.Reasons = append(a.Reasons, confidentReasons...)
		if score >= lowConfidenceReasonFloor {
			a.Reasons = append(a.Reasons, tentativeReasons...)
		}
	}

	// A critical score overrides whatever type a signal claimed; below
	// that, trust the strongest claiming signal, then fall back to the
	// score band.
	switch {
	case a.Category == CategoryCritical:
		a.AlertType = CategoryCritical
	case claimedType != "":
		a.AlertType = claimedType
	default:
		a.AlertType = a.Category
	}

	metrics.TransactionsScoredTotal.WithLabelValues(a.Category).Inc()
	metrics.RiskScore.Observe(a.Score)
	if a.IsFraud {
		metrics.FraudFlaggedTotal.Inc()
	}
	span.SetAttributes(traces.Score(a.Score))

	return a
}

// evaluate runs one signal, containing panics and errors so a broken
// signal can never take down the scoring path.
func (e *Engine) evaluate(ctx context.Context, sig Signal, tx *transactions.Transaction, prof *profile.Profile) (c Contribution) {
	defer func() {
		if r := recover(); r != nil {
			metrics.SignalFailuresTotal.WithLabelValues(sig.Name()).Inc()
			e.logger.Warn("signal panicked, contributing zero",
				"signal", sig.Name(), "transaction_id", tx.ID, "panic", fmt.Sprint(r))
			c = Contribution{Confident: true}
		}
	}()

	c, err := sig.Evaluate(ctx, tx, prof)
	if err != nil {
		metrics.SignalFailuresTotal.WithLabelValues(sig.Name()).Inc()
		e.logger.Warn("signal failed, contributing zero",
			"signal", sig.Name(), "transaction_id", tx.ID, "error", err)
		return Contribution{Confident: true}
	}
	if c.Points < 0 {
		c.Points = 0
	}
	return c
}

func categorize(score float64) string {
	switch {
	case score >= CriticalThreshold:
		return CategoryCritical
	case score >= HighRiskThreshold:
		return CategoryHighRisk
	case score >= MediumRiskThreshold:
		return CategoryMediumRisk
	default:
		return CategoryNormal
	}
}
