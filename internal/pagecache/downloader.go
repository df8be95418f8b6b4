// Package pagecache fetches pages over HTTP and caches the raw bytes by URL.
package pagecache

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"
	"golang.org/x/net/html/charset"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/htmlindex"
)

// Config configures the Downloader's HTTP side.
type Config struct {
	// Encoding is the text encoding pages are stored in. Defaults to utf-8.
	Encoding  string
	Timeout   time.Duration
	Proxy     string
	UserAgent string
}

// Downloader is the raw-page cache. It is safe for concurrent use; at most one
// request per URL is in flight at a time.
type Downloader struct {
	store   Store
	client  *http.Client
	enc     encoding.Encoding // nil when pages are stored as utf-8
	agent   string
	group   singleflight.Group
	network atomic.Int64
	logger  zerolog.Logger
}

// Key returns the cache key of url: its 64-bit xxhash as 16 hex digits.
func Key(url string) string {
	return fmt.Sprintf("%016x", xxhash.Sum64String(url))
}

// NewDownloader creates a Downloader over store.
func NewDownloader(store Store, cfg Config, logger zerolog.Logger) (*Downloader, error) {
	if cfg.Encoding == "" {
		cfg.Encoding = "utf-8"
	}
	enc, err := htmlindex.Get(cfg.Encoding)
	if err != nil {
		return nil, fmt.Errorf("unknown encoding %q: %w", cfg.Encoding, err)
	}
	if name, _ := htmlindex.Name(enc); name == "utf-8" {
		enc = nil
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.UserAgent == "" {
		cfg.UserAgent = "Mozilla/5.0"
	}

	transport := &http.Transport{Proxy: http.ProxyFromEnvironment}
	if cfg.Proxy != "" {
		u, err := url.Parse(cfg.Proxy)
		if err != nil {
			return nil, fmt.Errorf("parse proxy: %w", err)
		}
		transport.Proxy = http.ProxyURL(u)
	}
	return &Downloader{
		store: store,
		client: &http.Client{
			Timeout:   cfg.Timeout,
			Transport: transport,
		},
		enc:    enc,
		agent:  cfg.UserAgent,
		logger: logger.With().Str("component", "pagecache").Str("store", store.Name()).Logger(),
	}, nil
}

// NetworkFetches returns how many HTTP requests have been issued.
func (d *Downloader) NetworkFetches() int64 { return d.network.Load() }

type fetchResult struct {
	text  []byte // utf-8
	fresh bool
}

// Fetch returns the page at url as UTF-8. Without force a cached copy is
// returned when present; with force the page is always downloaded and the
// entry replaced. The store holds pages in the configured encoding.
func (d *Downloader) Fetch(ctx context.Context, url string, force bool) ([]byte, error) {
	for {
		// The shared load outlives any single caller; each caller waits on its own ctx.
		ch := d.group.DoChan(url, func() (any, error) {
			return d.load(context.WithoutCancel(ctx), url, force)
		})
		var res singleflight.Result
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case res = <-ch:
		}
		if res.Err != nil {
			return nil, res.Err
		}
		page := res.Val.(fetchResult)
		// A forced caller may have joined a flight that was served from cache.
		if !force || page.fresh {
			return page.text, nil
		}
	}
}

func (d *Downloader) load(ctx context.Context, url string, force bool) (fetchResult, error) {
	key := Key(url)
	if !force {
		data, ok, err := d.store.Get(ctx, key)
		if err != nil {
			return fetchResult{}, err
		}
		if ok {
			text, err := d.decode(data)
			if err != nil {
				return fetchResult{}, &CacheIOError{Op: "read", Path: key, Err: err}
			}
			d.logger.Debug().Str("url", url).Str("key", key).Msg("cache hit")
			return fetchResult{text: text}, nil
		}
	}

	text, err := d.download(ctx, url)
	if err != nil {
		return fetchResult{}, err
	}
	data, err := d.encode(text)
	if err != nil {
		return fetchResult{}, &FetchError{URL: url, Err: fmt.Errorf("encode body: %w", err)}
	}
	if err := d.store.Put(ctx, key, data); err != nil {
		return fetchResult{}, err
	}
	d.logger.Info().Str("url", url).Str("key", key).Int("bytes", len(data)).Bool("force", force).Msg("page downloaded")
	return fetchResult{text: text, fresh: true}, nil
}

func (d *Downloader) encode(text []byte) ([]byte, error) {
	if d.enc == nil {
		return text, nil
	}
	return d.enc.NewEncoder().Bytes(text)
}

func (d *Downloader) decode(data []byte) ([]byte, error) {
	if d.enc == nil {
		return data, nil
	}
	return d.enc.NewDecoder().Bytes(data)
}

func (d *Downloader) download(ctx context.Context, url string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	req.Header.Set("User-Agent", d.agent)

	d.network.Add(1)
	resp, err := d.client.Do(req)
	if err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &FetchError{
			URL:        url,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected response: %s", string(body)),
		}
	}

	// Decode using the declared charset.
	r, err := charset.NewReader(resp.Body, resp.Header.Get("Content-Type"))
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("decode body: %w", err)}
	}
	text, err := io.ReadAll(r)
	if err != nil {
		return nil, &FetchError{URL: url, Err: fmt.Errorf("read body: %w", err)}
	}
	return text, nil
}
