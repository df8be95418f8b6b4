package calculator

import (
	"errors"
	"math"

	"CryptoHist/internal/model"
)

// CalculateRange returns the highest High and lowest Low over the last n
// records (all records when n <= 0). Nil values are skipped.
func CalculateRange(records []model.HistoricalRecord, n int) (high, low float64, err error) {
	start := 0
	if n > 0 && len(records) > n {
		start = len(records) - n
	}
	high = math.Inf(-1)
	low = math.Inf(1)
	for _, r := range records[start:] {
		if r.High != nil && *r.High > high {
			high = *r.High
		}
		if r.Low != nil && *r.Low < low {
			low = *r.Low
		}
	}
	if math.IsInf(high, 0) || math.IsInf(low, 0) {
		return 0, 0, errors.New("no high/low values in range")
	}
	return high, low, nil
}

// CalculatePosition returns where current sits within [low, high], clamped to 0..1.
func CalculatePosition(current, high, low float64) (float64, error) {
	if high == low {
		return 0.5, nil
	}
	if high < low {
		return 0, errors.New("high must be >= low")
	}
	pos := (current - low) / (high - low)
	if pos < 0 {
		pos = 0
	}
	if pos > 1 {
		pos = 1
	}
	return pos, nil
}
