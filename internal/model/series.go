package model

import (
	"sort"
	"time"
)

// NormalizeRecords sorts records by date and collapses duplicate dates,
// keeping the last record seen for each date. The input is not modified.
func NormalizeRecords(records []HistoricalRecord) []HistoricalRecord {
	sorted := make([]HistoricalRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Date.Before(sorted[j].Date) })

	out := sorted[:0]
	for _, r := range sorted {
		if n := len(out); n > 0 && out[n-1].Date.Equal(r.Date) {
			out[n-1] = r
			continue
		}
		out = append(out, r)
	}
	return out
}

// Day truncates t to its calendar date in UTC.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
