package ml

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
)

func typicalFeatures() []float64 {
	// A feature vector close to the anomaly model's center.
	return []float64{0.033, 14.0, 2.0, 0.4071, -0.7401, 0.034, 0.48, 1.18, 0.62, 0.21}
}

func testAnomalyModel() *AnomalyModel {
	return &AnomalyModel{
		Center: typicalFeatures(),
		Scale:  []float64{0.05, 3.0, 1.5, 0.001, 0.001, 0.05, 0.3, 0.5, 0.3, 0.3},
		Offset: 1.5,
	}
}

func TestAnomalyModel_TypicalPointNotOutlier(t *testing.T) {
	m := testAnomalyModel()

	outlier, score := m.Score(typicalFeatures())
	if outlier {
		t.Errorf("typical point flagged as outlier, score %f", score)
	}
	if score <= 0 {
		t.Errorf("expected positive decision score for typical point, got %f", score)
	}
}

func TestAnomalyModel_DistantPointIsOutlier(t *testing.T) {
	m := testAnomalyModel()

	far := typicalFeatures()
	far[FeatAmount] = 45.0   // $45k transaction
	far[FeatHour] = 3        // 3am
	far[FeatDeviation] = 5.0 // max deviation ratio

	outlier, score := m.Score(far)
	if !outlier {
		t.Errorf("distant point not flagged, score %f", score)
	}
	if score >= 0 {
		t.Errorf("expected negative decision score, got %f", score)
	}
}

func TestAnomalyModel_MalformedVector(t *testing.T) {
	m := testAnomalyModel()

	outlier, score := m.Score([]float64{1, 2, 3})
	if outlier || score != 0 {
		t.Errorf("malformed vector must be neutral, got (%v, %f)", outlier, score)
	}

	var nilModel *AnomalyModel
	if outlier, _ := nilModel.Score(typicalFeatures()); outlier {
		t.Error("nil model must never flag")
	}
}

func TestClassifier_ProbabilityBounds(t *testing.T) {
	c := &Classifier{
		Mean:      typicalFeatures(),
		Stddev:    []float64{0.05, 3.0, 1.5, 0.001, 0.001, 0.05, 0.3, 0.5, 0.3, 0.3},
		Weights:   []float64{1.3, -0.4, 0.2, 0.1, 0.1, -0.4, -0.9, -0.5, -0.4, 1.7},
		Intercept: -3.0,
	}

	p := c.Probability(typicalFeatures())
	if p < 0 || p > 1 {
		t.Fatalf("probability out of range: %f", p)
	}
	if p > 0.5 {
		t.Errorf("typical point should be low probability, got %f", p)
	}

	hot := typicalFeatures()
	hot[FeatAmount] = 40.0
	hot[FeatDeviation] = 5.0
	if hp := c.Probability(hot); hp <= p {
		t.Errorf("high-deviation point should score above typical: %f <= %f", hp, p)
	}
}

func TestClassifier_MalformedVector(t *testing.T) {
	c := &Classifier{Weights: []float64{1}, Mean: []float64{0}, Stddev: []float64{1}}
	if p := c.Probability(typicalFeatures()); p != 0 {
		t.Errorf("width mismatch must yield 0, got %f", p)
	}

	var nilClf *Classifier
	if p := nilClf.Probability(typicalFeatures()); p != 0 {
		t.Errorf("nil classifier must yield 0, got %f", p)
	}
}

func TestLoad_MissingDirDegrades(t *testing.T) {
	models := Load(filepath.Join(t.TempDir(), "nope"), slog.Default())
	if models.Anomaly != nil || models.Classifier != nil {
		t.Error("missing artifacts must leave models nil")
	}
}

func TestLoad_CorruptArtifactDegrades(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, anomalyArtifact), []byte("{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	models := Load(dir, slog.Default())
	if models.Anomaly != nil {
		t.Error("corrupt anomaly artifact must be rejected")
	}
}

func TestLoad_ValidArtifacts(t *testing.T) {
	dir := t.TempDir()
	writeJSON := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	writeJSON(anomalyArtifact, `{
		"center": [0,0,0,0,0,0,0,0,0,0],
		"scale":  [1,1,1,1,1,1,1,1,1,1],
		"offset": 1.0
	}`)
	writeJSON(classifierArtifact, `{
		"mean":    [0,0,0,0,0,0,0,0,0,0],
		"stddev":  [1,1,1,1,1,1,1,1,1,1],
		"weights": [1,0,0,0,0,0,0,0,0,1],
		"intercept": -2.0
	}`)

	models := Load(dir, slog.Default())
	if models.Anomaly == nil {
		t.Fatal("anomaly model should load")
	}
	if models.Classifier == nil {
		t.Fatal("classifier should load")
	}
}

func TestLoad_WrongWidthRejected(t *testing.T) {
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, anomalyArtifact),
		[]byte(`{"center":[0,0],"scale":[1,1],"offset":1}`), 0o644); err != nil {
		t.Fatal(err)
	}

	models := Load(dir, slog.Default())
	if models.Anomaly != nil {
		t.Error("wrong-width model must be rejected")
	}
}
