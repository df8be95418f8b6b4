package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"CryptoHist/internal/dataset"
	"CryptoHist/internal/model"
	"CryptoHist/internal/numeric"
	"CryptoHist/internal/table"
)

// EpochStart is the first day the source publishes data for.
var EpochStart = time.Date(2013, 4, 28, 0, 0, 0, 0, time.UTC)

var dateLayouts = []string{
	"Jan 02, 2006",
	"Jan 2, 2006",
	"January 2, 2006",
	"2006-01-02",
	"02 Jan 2006",
}

// FetcherConfig configures the series fetcher.
type FetcherConfig struct {
	CacheDir string
	// Concurrency bounds FetchAll. Values below 1 mean sequential.
	Concurrency int
}

// Fetcher retrieves historical series per currency and caches them in
// memory and on disk.
type Fetcher struct {
	index       *Index
	pages       PageFetcher
	extractor   table.Extractor
	cacheDir    string
	concurrency int
	logger      zerolog.Logger

	mu     sync.RWMutex
	series map[string]*model.Series
}

// NewFetcher creates a Fetcher that resolves currencies through index.
func NewFetcher(index *Index, pages PageFetcher, extractor table.Extractor, cfg FetcherConfig, logger zerolog.Logger) *Fetcher {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	return &Fetcher{
		index:       index,
		pages:       pages,
		extractor:   extractor,
		cacheDir:    cfg.CacheDir,
		concurrency: cfg.Concurrency,
		logger:      logger.With().Str("component", "history").Logger(),
		series:      make(map[string]*model.Series),
	}
}

// FetchBySymbol returns the series for symbol over r.
func (f *Fetcher) FetchBySymbol(ctx context.Context, symbol string, r model.DateRange, force bool) (*model.Series, error) {
	entry, err := f.index.BySymbol(ctx, symbol)
	if err != nil {
		return nil, err
	}
	return f.fetch(ctx, entry, r, force)
}

// FetchByName resolves name to its currency and returns its series over r.
func (f *Fetcher) FetchByName(ctx context.Context, name string, r model.DateRange, force bool) (*model.Series, error) {
	entry, err := f.index.ByName(ctx, name)
	if err != nil {
		return nil, err
	}
	return f.fetch(ctx, entry, r, force)
}

// HistoricalURL appends the date range query to a detail URL.
func HistoricalURL(detailURL string, r model.DateRange) string {
	if !strings.HasSuffix(detailURL, "/") {
		detailURL += "/"
	}
	start, end := r.Query()
	return fmt.Sprintf("%shistorical-data/?start=%s&end=%s", detailURL, start, end)
}

func (f *Fetcher) fetch(ctx context.Context, entry model.CurrencyEntry, r model.DateRange, force bool) (*model.Series, error) {
	key := model.SeriesKey{
		Symbol: entry.Symbol,
		Range:  model.DateRange{Start: model.Day(r.Start), End: model.Day(r.End)},
	}
	path := filepath.Join(f.cacheDir, key.FileName())
	log := f.logger.With().Str("key", key.String()).Logger()

	if !force {
		f.mu.RLock()
		cached, ok := f.series[key.String()]
		f.mu.RUnlock()
		if ok {
			log.Debug().Msg("series served from memory")
			return withSource(cached, model.SourceMemory), nil
		}

		records, found, err := dataset.LoadSeries(path)
		if err != nil {
			return nil, fmt.Errorf("load series %s: %w", key, err)
		}
		if found {
			s := f.remember(&model.Series{Key: key, Records: records})
			log.Debug().Int("records", len(records)).Msg("series loaded from disk")
			return withSource(s, model.SourceDisk), nil
		}
	}

	url := HistoricalURL(entry.DetailURL, key.Range)
	data, err := f.pages.Fetch(ctx, url, force)
	if err != nil {
		return nil, fmt.Errorf("fetch history %s: %w", key, err)
	}
	tbl, err := f.extractor.Extract(data, tableSelector)
	if err != nil {
		return nil, fmt.Errorf("extract history %s: %w", key, err)
	}

	records, skipped := parseHistory(tbl)
	if skipped > 0 || tbl.Dropped > 0 {
		log.Warn().Int("bad_dates", skipped).Int("dropped_rows", tbl.Dropped).Msg("history rows discarded")
	}
	if err := dataset.SaveSeries(path, records); err != nil {
		return nil, fmt.Errorf("save series %s: %w", key, err)
	}
	s := f.remember(&model.Series{Key: key, Records: records})
	log.Info().Int("records", len(records)).Msg("series fetched")
	return withSource(s, model.SourceNetwork), nil
}

// remember stores s in the memory layer, replacing any previous entry.
func (f *Fetcher) remember(s *model.Series) *model.Series {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.series[s.Key.String()] = s
	return s
}

// withSource returns a shallow copy tagged with the serving layer. Records
// are shared and never mutated.
func withSource(s *model.Series, src model.Source) *model.Series {
	out := *s
	out.Source = src
	return &out
}

// parseHistory converts extracted rows to normalized records. Rows whose date
// cannot be parsed are skipped and counted.
func parseHistory(tbl table.Table) (records []model.HistoricalRecord, skipped int) {
	records = make([]model.HistoricalRecord, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		cells := canonicalCells(row.Cells)
		date, ok := parseDate(cells["Date"])
		if !ok {
			skipped++
			continue
		}
		records = append(records, model.HistoricalRecord{
			Date:      date,
			Open:      numeric.ToNumber(cells["Open"]),
			High:      numeric.ToNumber(cells["High"]),
			Low:       numeric.ToNumber(cells["Low"]),
			Close:     numeric.ToNumber(cells["Close"]),
			MarketCap: numeric.ToNumber(cells["Market Cap"]),
			Volume:    numeric.ToNumber(cells["Volume"]),
		})
	}
	return model.NormalizeRecords(records), skipped
}

// canonicalCells strips footnote markers from header names ("Open*" -> "Open").
func canonicalCells(cells map[string]string) map[string]string {
	out := make(map[string]string, len(cells))
	for k, v := range cells {
		out[strings.TrimSpace(strings.ReplaceAll(k, "*", ""))] = v
	}
	return out
}

func parseDate(s string) (time.Time, bool) {
	s = collapse(s)
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}
