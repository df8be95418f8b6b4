package scheduler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"CryptoHist/internal/collector"
	"CryptoHist/internal/model"
	"CryptoHist/internal/pagecache"
	"CryptoHist/internal/recorder"
	"CryptoHist/internal/table"
)

const listingHTML = `<table class="table">
<thead><tr><th>Name</th><th>Symbol</th><th>Market Cap</th><th>Price</th><th>Circulating Supply</th><th>Volume (24h)</th></tr></thead>
<tbody>
<tr><td>1 <a href="/currencies/bitcoin/">Bitcoin</a></td><td>BTC</td><td>$1</td><td>$1</td><td>1</td><td>$1</td></tr>
<tr><td>2 <a href="/currencies/ethereum/">Ethereum</a></td><td>ETH</td><td>$1</td><td>$1</td><td>1</td><td>$1</td></tr>
</tbody></table>`

const historyHTML = `<table class="table">
<thead><tr><th>Date</th><th>Open*</th><th>High</th><th>Low</th><th>Close**</th><th>Volume</th><th>Market Cap</th></tr></thead>
<tbody>
<tr><td>Jan 02, 2017</td><td>998.62</td><td>1,031.39</td><td>996.70</td><td>1,021.75</td><td>222,185,000</td><td>16,000,000,000</td></tr>
<tr><td>Jan 01, 2017</td><td>963.66</td><td>1,003.08</td><td>958.70</td><td>998.33</td><td>147,775,000</td><td>15,491,200,000</td></tr>
</tbody></table>`

type fakeNotifier struct {
	mu   sync.Mutex
	sent []string
}

func (f *fakeNotifier) Send(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, text)
	return nil
}

type fakeRecorder struct {
	series  []*model.Series
	batches []*recorder.BatchRun
}

func (f *fakeRecorder) RecordSeries(s *model.Series) error {
	f.series = append(f.series, s)
	return nil
}

func (f *fakeRecorder) RecordBatch(run *recorder.BatchRun) error {
	f.batches = append(f.batches, run)
	return nil
}

func (f *fakeRecorder) Close() error { return nil }

func newTestScheduler(t *testing.T) (*Scheduler, *fakeNotifier, *fakeRecorder) {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/coins/views/all/":
			_, _ = w.Write([]byte(listingHTML))
		case "/currencies/bitcoin/historical-data/":
			_, _ = w.Write([]byte(historyHTML))
		default:
			http.Error(w, "down", http.StatusBadGateway)
		}
	}))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	store, err := pagecache.NewDiskStore(dir)
	require.NoError(t, err)
	d, err := pagecache.NewDownloader(store, pagecache.Config{}, zerolog.Nop())
	require.NoError(t, err)
	ext := table.NewGoqueryExtractor()
	idx := collector.NewIndex(d, ext, collector.IndexConfig{BaseURL: srv.URL, CacheDir: dir}, zerolog.Nop())
	f := collector.NewFetcher(idx, d, ext, collector.FetcherConfig{CacheDir: dir}, zerolog.Nop())

	n, rec := &fakeNotifier{}, &fakeRecorder{}
	start := time.Date(2017, 1, 1, 0, 0, 0, 0, time.UTC)
	s := NewScheduler(context.Background(), idx, f, n, rec, start, zerolog.Nop())
	s.Now = func() time.Time { return time.Date(2017, 1, 5, 2, 0, 0, 0, time.UTC) }
	return s, n, rec
}

func TestRegister(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	require.NoError(t, s.Register("0 0 2 * * *"))
	assert.Len(t, s.Cron.Entries(), 1)
	assert.Error(t, s.Register("not a cron"))
}

func TestRunNow_RecordsAndNotifies(t *testing.T) {
	s, n, rec := newTestScheduler(t)
	s.RunNow()

	require.Len(t, rec.series, 1)
	assert.Equal(t, "BTC", rec.series[0].Key.Symbol)
	assert.Equal(t, "20170105", rec.series[0].Key.Range.End.Format(model.DateLayout))

	require.Len(t, rec.batches, 1)
	assert.Equal(t, 2, rec.batches[0].Total)
	assert.Equal(t, 1, rec.batches[0].Failed)
	assert.Equal(t, "scheduled", rec.batches[0].Note)

	require.Len(t, n.sent, 1)
	assert.Contains(t, n.sent[0], "Failed: 1")
	assert.Contains(t, n.sent[0], "ETH:")
	assert.Same(t, rec.batches[0], s.LastRun())
}

func TestHandleCommand(t *testing.T) {
	s, _, _ := newTestScheduler(t)
	ctx := context.Background()

	assert.Contains(t, s.HandleCommand(ctx, "hello"), "/status")
	assert.Equal(t, "No batch has run yet", s.HandleCommand(ctx, "/status"))
	assert.Equal(t, "Usage: /stats SYMBOL", s.HandleCommand(ctx, "/stats"))

	reply := s.HandleCommand(ctx, "/stats btc")
	assert.Contains(t, reply, "<b>BTC</b>")
	assert.Contains(t, reply, "Records: 2")
	assert.Contains(t, reply, "Last close: 1021.75")

	assert.Contains(t, s.HandleCommand(ctx, "/stats XYZ"), "not found")

	s.RunNow()
	assert.Contains(t, s.HandleCommand(ctx, "/status"), "Symbols: 2")
}
