package calculator

import (
	"errors"

	"CryptoHist/internal/model"
)

// Summary holds statistics over one series. Nil fields had too little data.
type Summary struct {
	Records   int
	LastClose *float64
	SMA20     *float64
	SMA50     *float64
	SMA200    *float64
	RSI14     float64
	High      *float64
	Low       *float64
	High30    *float64
	Low30     *float64
	Position  *float64 // last close within [Low, High]
}

// Summarize computes a Summary for s.
func Summarize(s *model.Series) (*Summary, error) {
	if s == nil {
		return nil, errors.New("nil series")
	}
	closes := s.Closes()
	sum := &Summary{Records: len(s.Records)}
	if len(closes) == 0 {
		sum.RSI14 = 50
		return sum, nil
	}
	sum.LastClose = model.Float(closes[len(closes)-1])

	for _, ma := range []struct {
		period int
		dst    **float64
	}{{20, &sum.SMA20}, {50, &sum.SMA50}, {200, &sum.SMA200}} {
		if v, err := CalculateSMA(closes, ma.period); err == nil {
			*ma.dst = model.Float(v)
		}
	}

	rsi, err := CalculateRSI(closes, 14)
	if err != nil {
		return nil, err
	}
	sum.RSI14 = rsi

	if h, l, err := CalculateRange(s.Records, 0); err == nil {
		sum.High, sum.Low = model.Float(h), model.Float(l)
		if pos, err := CalculatePosition(*sum.LastClose, h, l); err == nil {
			sum.Position = model.Float(pos)
		}
	}
	if h, l, err := CalculateRange(s.Records, 30); err == nil {
		sum.High30, sum.Low30 = model.Float(h), model.Float(l)
	}
	return sum, nil
}
