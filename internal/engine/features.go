package engine

import (
	"github.com/nmoreau/sentra/internal/ml"
	"github.com/nmoreau/sentra/internal/profile"
	"github.com/nmoreau/sentra/internal/transactions"
)

const (
	amountCap    = 50000.0
	deviationCap = 5.0
)

// extractFeatures builds the feature vector both models were trained on.
// The layout is fixed by the training pipeline; see the ml package for the
// index constants.
func extractFeatures(tx *transactions.Transaction, prof *profile.Profile) []float64 {
	f := make([]float64, ml.NumFeatures)

	f[ml.FeatAmount] = capped(tx.Amount, amountCap) / 1000

	ts := tx.Timestamp.UTC()
	f[ml.FeatHour] = float64(ts.Hour())
	f[ml.FeatWeekday] = float64(int(ts.Weekday()+6) % 7) // Monday = 0

	if tx.Latitude != nil {
		f[ml.FeatLatitude] = *tx.Latitude / 100
	}
	if tx.Longitude != nil {
		f[ml.FeatLongitude] = *tx.Longitude / 100
	}

	if prof != nil && prof.TxnCount > 0 {
		f[ml.FeatAvgAmount] = capped(prof.AvgAmount, amountCap) / 1000
		f[ml.FeatTxnCount] = capped(float64(prof.TxnCount), 1000) / 100
		f[ml.FeatMerchants] = capped(float64(prof.UniqueMerchants), 100) / 10
		f[ml.FeatLocations] = capped(float64(prof.UniqueLocations), 50) / 10
		f[ml.FeatDeviation] = amountDeviation(tx.Amount, prof.AvgAmount)
	} else {
		// No history: the models were trained with these sentinel values
		// for unknown users.
		f[ml.FeatAvgAmount] = tx.Amount / 1000
		f[ml.FeatTxnCount] = 0.01
		f[ml.FeatMerchants] = 0.1
		f[ml.FeatLocations] = 0.1
		f[ml.FeatDeviation] = 0
	}

	return f
}

// amountDeviation is the relative distance from the user's average spend,
// capped so one extreme transaction cannot dominate the vector.
func amountDeviation(amount, avg float64) float64 {
	if avg <= 0 {
		return 0
	}
	d := amount - avg
	if d < 0 {
		d = -d
	}
	return capped(d/avg, deviationCap)
}

func capped(v, max float64) float64 {
	if v > max {
		return max
	}
	return v
}
