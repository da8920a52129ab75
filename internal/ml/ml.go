// Package ml wraps the pretrained scoring models produced by the offline
// training pipeline.
//
// Models are loaded once at startup from JSON coefficient artifacts and are
// immutable afterwards. A missing or corrupt artifact disables that model;
// it never prevents the engine from starting. Scoring a feature vector of
// the wrong width returns the neutral result rather than an error, so a
// model mismatch degrades the signal instead of failing the pipeline.
package ml

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"
)

// NumFeatures is the width of the feature vector both models were trained on.
const NumFeatures = 10

// Feature vector layout, fixed by the training pipeline:
//
//	0: amount / 1000 (capped at 50)
//	1: hour of day
//	2: weekday (0 = Monday)
//	3: latitude / 100
//	4: longitude / 100
//	5: historical average amount / 1000
//	6: transaction count / 100 (capped)
//	7: unique merchants / 10
//	8: unique locations / 10
//	9: amount deviation ratio (capped at 5)
const (
	FeatAmount = iota
	FeatHour
	FeatWeekday
	FeatLatitude
	FeatLongitude
	FeatAvgAmount
	FeatTxnCount
	FeatMerchants
	FeatLocations
	FeatDeviation
)

// Models is the immutable handle holding whichever models loaded successfully.
// Either field may be nil; callers must treat a nil model as "no signal".
type Models struct {
	Anomaly    *AnomalyModel
	Classifier *Classifier
}

// AnomalyModel is an unsupervised outlier model: per-feature robust centers
// and scales plus a decision offset. The decision function is the offset
// minus the mean scaled distance, matching the convention that negative
// values are anomalous and more negative means more anomalous.
type AnomalyModel struct {
	Center []float64 `json:"center"`
	Scale  []float64 `json:"scale"`
	Offset float64   `json:"offset"`
}

// Score evaluates the decision function for a feature vector.
// Returns the outlier verdict and the raw decision score (negative =
// anomalous). A malformed vector yields (false, 0).
func (m *AnomalyModel) Score(features []float64) (outlier bool, score float64) {
	if m == nil || len(features) != len(m.Center) || len(m.Center) != len(m.Scale) {
		return false, 0
	}

	var dist float64
	for i, x := range features {
		s := m.Scale[i]
		if s <= 0 {
			s = 1
		}
		dist += math.Abs(x-m.Center[i]) / s
	}
	dist /= float64(len(features))

	score = m.Offset - dist
	return score < 0, score
}

// Classifier is a supervised logistic model over standardized features.
type Classifier struct {
	Mean      []float64 `json:"mean"`
	Stddev    []float64 `json:"stddev"`
	Weights   []float64 `json:"weights"`
	Intercept float64   `json:"intercept"`
}

// Probability returns the fraud probability in [0, 1] for a feature vector.
// A malformed vector yields 0 (never confident).
func (c *Classifier) Probability(features []float64) float64 {
	if c == nil || len(features) != len(c.Weights) ||
		len(c.Mean) != len(c.Weights) || len(c.Stddev) != len(c.Weights) {
		return 0
	}

	z := c.Intercept
	for i, x := range features {
		s := c.Stddev[i]
		if s <= 0 {
			s = 1
		}
		z += c.Weights[i] * (x - c.Mean[i]) / s
	}
	return 1 / (1 + math.Exp(-z))
}

// Artifact filenames within the models directory.
const (
	anomalyArtifact    = "anomaly_detector.json"
	classifierArtifact = "fraud_classifier.json"
)

// Load reads model artifacts from dir. Each artifact is optional: a missing
// or invalid file logs a warning and leaves that model nil.
func Load(dir string, logger *slog.Logger) *Models {
	models := &Models{}

	var anomaly AnomalyModel
	if err := loadArtifact(filepath.Join(dir, anomalyArtifact), &anomaly); err != nil {
		logger.Warn("anomaly model unavailable, signal disabled", "error", err)
	} else if err := validateDims("anomaly", len(anomaly.Center), len(anomaly.Scale)); err != nil {
		logger.Warn("anomaly model rejected", "error", err)
	} else {
		models.Anomaly = &anomaly
		logger.Info("anomaly model loaded", "features", len(anomaly.Center))
	}

	var clf Classifier
	if err := loadArtifact(filepath.Join(dir, classifierArtifact), &clf); err != nil {
		logger.Warn("fraud classifier unavailable, signal disabled", "error", err)
	} else if err := validateDims("classifier", len(clf.Weights), len(clf.Mean), len(clf.Stddev)); err != nil {
		logger.Warn("fraud classifier rejected", "error", err)
	} else {
		models.Classifier = &clf
		logger.Info("fraud classifier loaded", "features", len(clf.Weights))
	}

	return models
}

func loadArtifact(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("parse %s: %w", filepath.Base(path), err)
	}
	return nil
}

func validateDims(name string, dims ...int) error {
	for _, d := range dims {
		if d != NumFeatures {
			return fmt.Errorf("%s model has wrong feature width %d, want %d", name, d, NumFeatures)
		}
	}
	return nil
}
