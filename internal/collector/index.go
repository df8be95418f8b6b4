package collector

import (
	"context"
	"fmt"
	"path/filepath"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"CryptoHist/internal/dataset"
	"CryptoHist/internal/model"
	"CryptoHist/internal/numeric"
	"CryptoHist/internal/table"
)

const (
	DefaultBaseURL    = "https://coinmarketcap.com"
	DefaultListingURL = DefaultBaseURL + "/coins/views/all/"
)

var slugPattern = regexp.MustCompile(`/currencies/([^/?#]+)/`)

// IndexConfig locates the listing page and the index cache file.
type IndexConfig struct {
	BaseURL    string
	ListingURL string
	CacheDir   string
}

// IndexStats reports what the last build discarded or degraded.
type IndexStats struct {
	Rows           int
	DroppedRows    int
	DegenerateURLs int
}

// Index is the master currency list. It is built once and reused until a
// forced reload; it is safe for concurrent use.
type Index struct {
	pages      PageFetcher
	extractor  table.Extractor
	baseURL    string
	listingURL string
	path       string
	logger     zerolog.Logger

	mu      sync.RWMutex
	entries []model.CurrencyEntry
	loaded  bool
	stats   IndexStats
}

// NewIndex creates an Index. Empty URLs fall back to the public site.
func NewIndex(pages PageFetcher, extractor table.Extractor, cfg IndexConfig, logger zerolog.Logger) *Index {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.ListingURL == "" {
		cfg.ListingURL = strings.TrimSuffix(cfg.BaseURL, "/") + "/coins/views/all/"
	}
	return &Index{
		pages:      pages,
		extractor:  extractor,
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		listingURL: cfg.ListingURL,
		path:       filepath.Join(cfg.CacheDir, dataset.IndexFile),
		logger:     logger.With().Str("component", "index").Logger(),
	}
}

// Load returns the index, building it from the listing page when neither the
// in-memory nor the on-disk copy exists, or when force is set.
func (x *Index) Load(ctx context.Context, force bool) ([]model.CurrencyEntry, error) {
	x.mu.RLock()
	if x.loaded && !force {
		defer x.mu.RUnlock()
		return slices.Clone(x.entries), nil
	}
	x.mu.RUnlock()

	x.mu.Lock()
	defer x.mu.Unlock()
	if x.loaded && !force {
		return slices.Clone(x.entries), nil
	}

	if !force {
		entries, found, err := dataset.LoadIndex(x.path)
		if err != nil {
			return nil, fmt.Errorf("load index: %w", err)
		}
		if found {
			x.entries, x.loaded = entries, true
			x.logger.Info().Int("entries", len(entries)).Str("path", x.path).Msg("index loaded from disk")
			return slices.Clone(entries), nil
		}
	}

	entries, err := x.build(ctx, force)
	if err != nil {
		return nil, err
	}
	x.entries, x.loaded = entries, true
	return slices.Clone(entries), nil
}

func (x *Index) build(ctx context.Context, force bool) ([]model.CurrencyEntry, error) {
	data, err := x.pages.Fetch(ctx, x.listingURL, force)
	if err != nil {
		return nil, fmt.Errorf("fetch listing: %w", err)
	}
	tbl, err := x.extractor.Extract(data, tableSelector)
	if err != nil {
		return nil, fmt.Errorf("extract listing: %w", err)
	}

	stats := IndexStats{Rows: len(tbl.Rows), DroppedRows: tbl.Dropped}
	entries := make([]model.CurrencyEntry, 0, len(tbl.Rows))
	for _, row := range tbl.Rows {
		symbol := normalizeSymbol(row.Cells["Symbol"])
		detail, ok := x.detailURL(row.Links)
		if !ok {
			stats.DegenerateURLs++
			x.logger.Warn().Str("symbol", symbol).Str("url", detail).Msg("no detail link in row, using site root")
		}
		entries = append(entries, model.CurrencyEntry{
			Name:              stripRank(row.Cells["Name"], symbol),
			Symbol:            symbol,
			CirculatingSupply: numeric.ToNumber(row.Cells["Circulating Supply"]),
			MarketCap:         numeric.ToNumber(row.Cells["Market Cap"]),
			Price:             numeric.ToNumber(row.Cells["Price"]),
			Volume24h:         numeric.ToNumber(row.Cells["Volume (24h)"]),
			DetailURL:         detail,
		})
	}
	if tbl.Dropped > 0 {
		x.logger.Warn().Int("dropped", tbl.Dropped).Msg("listing rows with mismatched cell count dropped")
	}
	x.stats = stats

	if !tbl.Found() {
		// An empty index is not persisted so the next run retries the listing.
		x.logger.Warn().Str("url", x.listingURL).Msg("listing table not found, index is empty")
		return entries, nil
	}
	if err := dataset.SaveIndex(x.path, entries); err != nil {
		return nil, fmt.Errorf("save index: %w", err)
	}
	x.logger.Info().Int("entries", len(entries)).Int("degenerate_urls", stats.DegenerateURLs).Msg("index built")
	return entries, nil
}

// detailURL builds the canonical detail page from the last /currencies/<slug>/
// link in the row. Without one, the slug is empty and ok is false.
func (x *Index) detailURL(links []string) (u string, ok bool) {
	slug := ""
	for _, href := range links {
		if m := slugPattern.FindStringSubmatch(href); m != nil {
			slug = m[1]
		}
	}
	return x.baseURL + "/currencies/" + slug + "/", slug != ""
}

// Stats returns counters from the last build from the network.
func (x *Index) Stats() IndexStats {
	x.mu.RLock()
	defer x.mu.RUnlock()
	return x.stats
}

// Symbols lists every symbol in index order.
func (x *Index) Symbols(ctx context.Context) ([]string, error) {
	entries, err := x.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Symbol
	}
	return out, nil
}

// Names lists every name in index order.
func (x *Index) Names(ctx context.Context) ([]string, error) {
	entries, err := x.Load(ctx, false)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.Name
	}
	return out, nil
}

// BySymbol returns the single entry whose symbol matches, ignoring case and
// surrounding whitespace.
func (x *Index) BySymbol(ctx context.Context, symbol string) (model.CurrencyEntry, error) {
	entries, err := x.Load(ctx, false)
	if err != nil {
		return model.CurrencyEntry{}, err
	}
	want := normalizeSymbol(symbol)
	return lookup(entries, "symbol", symbol, func(e model.CurrencyEntry) bool {
		return e.Symbol == want
	})
}

// ByName returns the single entry whose name matches, ignoring case and
// whitespace differences.
func (x *Index) ByName(ctx context.Context, name string) (model.CurrencyEntry, error) {
	entries, err := x.Load(ctx, false)
	if err != nil {
		return model.CurrencyEntry{}, err
	}
	want := collapse(name)
	return lookup(entries, "name", name, func(e model.CurrencyEntry) bool {
		return strings.EqualFold(collapse(e.Name), want)
	})
}

func lookup(entries []model.CurrencyEntry, field, query string, match func(model.CurrencyEntry) bool) (model.CurrencyEntry, error) {
	var found []model.CurrencyEntry
	for _, e := range entries {
		if match(e) {
			found = append(found, e)
		}
	}
	switch len(found) {
	case 1:
		return found[0], nil
	case 0:
		return model.CurrencyEntry{}, &LookupError{Field: field, Query: query, Err: ErrNotFound}
	default:
		return model.CurrencyEntry{}, &LookupError{Field: field, Query: query, Matches: len(found), Err: ErrAmbiguous}
	}
}

func collapse(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func normalizeSymbol(s string) string {
	return strings.ToUpper(collapse(s))
}

// stripRank drops a leading rank ("1", "1.") or ticker token from a listing name cell.
func stripRank(cell, symbol string) string {
	fields := strings.Fields(cell)
	if len(fields) < 2 {
		return collapse(cell)
	}
	first := strings.TrimSuffix(fields[0], ".")
	if _, err := strconv.Atoi(first); err == nil || strings.EqualFold(first, symbol) {
		return strings.Join(fields[1:], " ")
	}
	return strings.Join(fields, " ")
}
