package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog"

	"CryptoHist/internal/collector"
	"CryptoHist/internal/config"
	"CryptoHist/internal/logger"
	"CryptoHist/internal/pagecache"
	"CryptoHist/internal/recorder"
	"CryptoHist/internal/table"
)

// app holds the wired components shared by every command.
type app struct {
	cfg     *config.Config
	logger  zerolog.Logger
	idx     *collector.Index
	fetcher *collector.Fetcher
	rec     recorder.Recorder
	closers []io.Closer
}

func newApp(ctx context.Context, cfg *config.Config, stderr io.Writer) (*app, error) {
	a := &app{cfg: cfg, logger: logger.NewWithWriter(cfg.Log, stderr)}

	// Parsed CSVs always live on disk, whatever backs the page cache.
	if err := os.MkdirAll(cfg.Cache.Path, 0o755); err != nil {
		return nil, &pagecache.CacheIOError{Op: "mkdir", Path: cfg.Cache.Path, Err: err}
	}

	store, err := a.pageStore(ctx)
	if err != nil {
		a.Close()
		return nil, err
	}
	pages, err := pagecache.NewDownloader(store, pagecache.Config{
		Encoding:  cfg.Fetch.Encoding,
		Timeout:   cfg.HTTP.Timeout,
		Proxy:     cfg.HTTP.Proxy,
		UserAgent: cfg.HTTP.UserAgent,
	}, a.logger)
	if err != nil {
		a.Close()
		return nil, err
	}

	ext := table.NewGoqueryExtractor()
	a.idx = collector.NewIndex(pages, ext, collector.IndexConfig{
		BaseURL:    cfg.Source.BaseURL,
		ListingURL: cfg.Source.ListingURL,
		CacheDir:   cfg.Cache.Path,
	}, a.logger)
	a.fetcher = collector.NewFetcher(a.idx, pages, ext, collector.FetcherConfig{
		CacheDir:    cfg.Cache.Path,
		Concurrency: cfg.Fetch.Concurrency,
	}, a.logger)

	a.rec = recorder.NewNoopRecorder()
	if cfg.Database.SQLitePath != "" {
		sr, err := recorder.NewSQLiteRecorder(cfg.Database.SQLitePath, a.logger)
		if err != nil {
			a.logger.Warn().Err(err).Msg("init sqlite recorder failed, using noop")
		} else {
			a.rec = sr
			a.closers = append(a.closers, sr)
		}
	}
	return a, nil
}

func (a *app) pageStore(ctx context.Context) (pagecache.Store, error) {
	if a.cfg.Cache.Backend != "redis" {
		return pagecache.NewDiskStore(a.cfg.Cache.Path)
	}
	rs, err := pagecache.NewRedisStore(pagecache.RedisConfig{
		Addr:      a.cfg.Redis.Addr,
		Password:  a.cfg.Redis.Password,
		DB:        a.cfg.Redis.DB,
		KeyPrefix: a.cfg.Redis.KeyPrefix,
	})
	if err != nil {
		return nil, err
	}
	a.closers = append(a.closers, rs)
	if err := rs.Ping(ctx); err != nil {
		return nil, fmt.Errorf("redis page cache: %w", err)
	}
	a.logger.Info().Str("addr", a.cfg.Redis.Addr).Msg("using redis page cache")
	return rs, nil
}

// Close releases the recorder and page store.
func (a *app) Close() {
	for _, c := range a.closers {
		if err := c.Close(); err != nil {
			a.logger.Warn().Err(err).Msg("close failed")
		}
	}
}
