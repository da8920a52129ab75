package engine

import (
	"context"

	"github.com/nmoreau/sentra/internal/ml"
	"github.com/nmoreau/sentra/internal/profile"
	"github.com/nmoreau/sentra/internal/transactions"
)

// Alert types a signal can claim. The aggregator may replace them with a
// score-band name; see Engine.Score.
const (
	AlertTypeAnomaly    = "anomaly"
	AlertTypeBehavioral = "behavioral"
	AlertTypePattern    = "pattern"
)

// Contribution is one signal's share of the aggregate risk score.
type Contribution struct {
	Points  float64
	Reasons []string
	// AlertType is set when the signal claims a specific alert type
	// for this transaction; empty otherwise.
	AlertType string
	// Confident marks reasons that stand on their own. Reasons from an
	// unconfident contribution are surfaced only at elevated aggregate
	// scores.
	Confident bool
}

// Signal produces a non-negative risk contribution for one transaction.
// Implementations must not fail the scoring path: internal model errors
// degrade to a zero contribution.
type Signal interface {
	Name() string
	Evaluate(ctx context.Context, tx *transactions.Transaction, prof *profile.Profile) (Contribution, error)
}

// Anomaly signal tuning, matched to the offline model's score range.
const (
	anomalyMinPoints      = 20
	anomalyMaxPoints      = 40
	anomalyScaleFactor    = 12
	nearAnomalyThreshold  = -0.3
	nearAnomalyPoints     = 15
)

// AnomalySignal scores transactions against the unsupervised outlier model.
type AnomalySignal struct {
	model *ml.AnomalyModel
}

func NewAnomalySignal(model *ml.AnomalyModel) *AnomalySignal {
	return &AnomalySignal{model: model}
}

func (s *AnomalySignal) Name() string { return "anomaly" }

func (s *AnomalySignal) Evaluate(ctx context.Context, tx *transactions.Transaction, prof *profile.Profile) (Contribution, error) {
	if s.model == nil {
		return Contribution{Confident: true}, nil
	}

	features := extractFeatures(tx, prof)
	outlier, score := s.model.Score(features)

	if outlier {
		magnitude := score
		if magnitude < 0 {
			magnitude = -magnitude
		}
		points := magnitude * anomalyScaleFactor
		if points < anomalyMinPoints {
			points = anomalyMinPoints
		}
		if points > anomalyMaxPoints {
			points = anomalyMaxPoints
		}
		return Contribution{
			Points:    points,
			Reasons:   []string{"Transaction pattern deviates from normal behavior"},
			AlertType: AlertTypeAnomaly,
			Confident: true,
		}, nil
	}

	if score < nearAnomalyThreshold {
		// Borderline: contributes, but its reason only surfaces when the
		// aggregate ends up elevated anyway.
		return Contribution{
			Points:  nearAnomalyPoints,
			Reasons: []string{"Unusual transaction pattern detected"},
		}, nil
	}

	return Contribution{Confident: true}, nil
}

// Classifier signal tuning: contributions start above the confidence floor
// and are deliberately small so the supervised model cannot dominate.
const (
	classifierFloor       = 0.6
	classifierScale       = 25
	classifierReasonFloor = 0.75
)

// ClassifierSignal scores transactions with the supervised fraud model.
type ClassifierSignal struct {
	model *ml.Classifier
}

func NewClassifierSignal(model *ml.Classifier) *ClassifierSignal {
	return &ClassifierSignal{model: model}
}

func (s *ClassifierSignal) Name() string { return "classifier" }

func (s *ClassifierSignal) Evaluate(ctx context.Context, tx *transactions.Transaction, prof *profile.Profile) (Contribution, error) {
	if s.model == nil {
		return Contribution{Confident: true}, nil
	}

	features := extractFeatures(tx, prof)
	p := s.model.Probability(features)

	if p <= classifierFloor {
		return Contribution{Confident: true}, nil
	}

	c := Contribution{
		Points:    (p - classifierFloor) * classifierScale,
		Confident: true,
	}
	if p > classifierReasonFloor {
		c.Reasons = []string{"ML model indicates elevated fraud probability"}
		c.AlertType = AlertTypePattern
	}
	return c, nil
}
