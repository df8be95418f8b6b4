package model

import (
	"fmt"
	"net/url"
	"time"
)

// DateLayout is the compact date form used in query strings and cache keys.
const DateLayout = "20060102"

// CurrencyEntry is one row of the currency index.
type CurrencyEntry struct {
	Name              string
	Symbol            string
	CirculatingSupply *float64
	MarketCap         *float64
	Price             *float64
	Volume24h         *float64
	DetailURL         string
}

// HistoricalRecord is a single day of market data. Nil fields could not be parsed.
type HistoricalRecord struct {
	Date      time.Time
	Open      *float64
	High      *float64
	Low       *float64
	Close     *float64
	MarketCap *float64
	Volume    *float64
}

// DateRange bounds a historical query. Both ends are inclusive calendar dates.
type DateRange struct {
	Start time.Time
	End   time.Time
}

// Query returns the start/end pair formatted for the historical-data endpoint.
func (r DateRange) Query() (start, end string) {
	return r.Start.Format(DateLayout), r.End.Format(DateLayout)
}

// SeriesKey identifies one cached series.
type SeriesKey struct {
	Symbol string
	Range  DateRange
}

func (k SeriesKey) String() string {
	start, end := k.Range.Query()
	return fmt.Sprintf("%s-%s-%s", k.Symbol, start, end)
}

// FileName is the on-disk name of the series CSV. The symbol is path-escaped,
// so the name is a single path element and distinct symbols never collide.
func (k SeriesKey) FileName() string {
	start, end := k.Range.Query()
	return fmt.Sprintf("%s-%s-%s.csv", url.PathEscape(k.Symbol), start, end)
}

// Source tells which cache layer served a series.
type Source string

const (
	SourceMemory  Source = "memory"
	SourceDisk    Source = "disk"
	SourceNetwork Source = "network"
)

// Series holds a date-ascending run of records with unique dates.
type Series struct {
	Key     SeriesKey
	Records []HistoricalRecord
	Source  Source
}

// Closes returns the non-nil close prices in date order.
func (s *Series) Closes() []float64 {
	closes := make([]float64, 0, len(s.Records))
	for _, r := range s.Records {
		if r.Close != nil {
			closes = append(closes, *r.Close)
		}
	}
	return closes
}

// Float returns a pointer to v.
func Float(v float64) *float64 { return &v }
