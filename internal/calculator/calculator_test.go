package calculator

import (
	"math"
	"testing"
	"time"

	"CryptoHist/internal/model"
)

func series(closes ...float64) *model.Series {
	s := &model.Series{}
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, c := range closes {
		s.Records = append(s.Records, model.HistoricalRecord{
			Date:  start.AddDate(0, 0, i),
			High:  model.Float(c + 1),
			Low:   model.Float(c - 1),
			Close: model.Float(c),
		})
	}
	return s
}

func TestCalculateSMA(t *testing.T) {
	v, err := CalculateSMA([]float64{1, 2, 3, 4}, 2)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 3.5 {
		t.Errorf("expected 3.5, got %v", v)
	}
	if _, err := CalculateSMA([]float64{1}, 2); err == nil {
		t.Error("expected error for insufficient data")
	}
	if _, err := CalculateSMA([]float64{1}, 0); err == nil {
		t.Error("expected error for zero period")
	}
}

func TestCalculateRSI(t *testing.T) {
	up := make([]float64, 20)
	for i := range up {
		up[i] = float64(i)
	}
	if v, _ := CalculateRSI(up, 14); v != 100 {
		t.Errorf("expected 100 for monotonic rise, got %v", v)
	}
	if v, _ := CalculateRSI([]float64{1, 2}, 14); v != 50 {
		t.Errorf("expected 50 for insufficient data, got %v", v)
	}
	down := make([]float64, 20)
	for i := range down {
		down[i] = float64(100 - i)
	}
	if v, _ := CalculateRSI(down, 14); v != 0 {
		t.Errorf("expected 0 for monotonic fall, got %v", v)
	}
}

func TestCalculateRange_SkipsNil(t *testing.T) {
	s := series(10, 20, 30)
	s.Records[2].High = nil
	h, l, err := CalculateRange(s.Records, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if h != 21 || l != 9 {
		t.Errorf("expected 21/9, got %v/%v", h, l)
	}

	h, l, err = CalculateRange(s.Records, 1)
	if err == nil {
		t.Errorf("expected error when last record has no high, got %v/%v", h, l)
	}
	if _, _, err := CalculateRange(nil, 0); err == nil {
		t.Error("expected error for empty records")
	}
}

func TestCalculatePosition(t *testing.T) {
	if p, _ := CalculatePosition(15, 20, 10); p != 0.5 {
		t.Errorf("expected 0.5, got %v", p)
	}
	if p, _ := CalculatePosition(25, 20, 10); p != 1 {
		t.Errorf("expected clamp to 1, got %v", p)
	}
	if _, err := CalculatePosition(1, 10, 20); err == nil {
		t.Error("expected error when high < low")
	}
}

func TestSummarize(t *testing.T) {
	closes := make([]float64, 60)
	for i := range closes {
		closes[i] = float64(i + 1)
	}
	sum, err := Summarize(series(closes...))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.Records != 60 || *sum.LastClose != 60 {
		t.Errorf("unexpected records/last: %d/%v", sum.Records, *sum.LastClose)
	}
	if sum.SMA20 == nil || math.Abs(*sum.SMA20-50.5) > 1e-9 {
		t.Errorf("unexpected SMA20: %v", sum.SMA20)
	}
	if sum.SMA50 == nil || sum.SMA200 != nil {
		t.Errorf("expected SMA50 set and SMA200 nil")
	}
	if *sum.High != 61 || *sum.Low != 0 {
		t.Errorf("unexpected range: %v/%v", *sum.High, *sum.Low)
	}
	if *sum.High30 != 61 || *sum.Low30 != 30 {
		t.Errorf("unexpected 30-record range: %v/%v", *sum.High30, *sum.Low30)
	}
	if sum.RSI14 != 100 {
		t.Errorf("expected RSI 100, got %v", sum.RSI14)
	}
}

func TestSummarize_Empty(t *testing.T) {
	sum, err := Summarize(&model.Series{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if sum.LastClose != nil || sum.High != nil || sum.RSI14 != 50 {
		t.Errorf("unexpected summary for empty series: %+v", sum)
	}
	if _, err := Summarize(nil); err == nil {
		t.Error("expected error for nil series")
	}
}
