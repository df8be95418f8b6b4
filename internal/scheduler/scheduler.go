package scheduler

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"CryptoHist/internal/calculator"
	"CryptoHist/internal/collector"
	"CryptoHist/internal/model"
	"CryptoHist/internal/notifier"
	"CryptoHist/internal/recorder"
)

// Scheduler runs the periodic index refresh and batch fetch.
type Scheduler struct {
	Cron     *cron.Cron
	Index    *collector.Index
	Fetcher  *collector.Fetcher
	Notifier notifier.Notifier
	Recorder recorder.Recorder
	Ctx      context.Context
	// StartDate is the first day of every scheduled range. The range ends today.
	StartDate time.Time
	Now       func() time.Time

	logger zerolog.Logger
	runMu  sync.Mutex

	mu       sync.Mutex
	last     *recorder.BatchRun
	failures []collector.SymbolFailure
}

// NewScheduler creates a new Scheduler.
func NewScheduler(ctx context.Context, index *collector.Index, fetcher *collector.Fetcher, n notifier.Notifier, rec recorder.Recorder, start time.Time, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		Cron:      cron.New(cron.WithSeconds()),
		Index:     index,
		Fetcher:   fetcher,
		Notifier:  n,
		Recorder:  rec,
		Ctx:       ctx,
		StartDate: start,
		Now:       time.Now,
		logger:    logger.With().Str("component", "scheduler").Logger(),
	}
}

// Register adds the batch task under the given cron spec (with seconds).
func (s *Scheduler) Register(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.batchTask); err != nil {
		return fmt.Errorf("register batch task: %w", err)
	}
	return nil
}

// Start starts the cron scheduler.
func (s *Scheduler) Start() {
	s.Cron.Start()
	s.logger.Info().Msg("scheduler started")
}

// Stop stops the cron scheduler and waits for a running task.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow executes the batch task immediately (manual trigger / RUN_ON_START).
func (s *Scheduler) RunNow() {
	s.batchTask()
}

// LastRun returns the most recent batch run, or nil.
func (s *Scheduler) LastRun() *recorder.BatchRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *Scheduler) batchTask() {
	// Overlapping ticks are skipped rather than queued.
	if !s.runMu.TryLock() {
		s.logger.Warn().Msg("batch already running, skipping")
		return
	}
	defer s.runMu.Unlock()

	run := recorder.NewBatchRun(s.Now(), "scheduled")
	log := s.logger.With().Str("run_id", run.ID).Logger()
	log.Info().Msg("running batch task")

	if _, err := s.Index.Load(s.Ctx, true); err != nil {
		log.Error().Err(err).Msg("index refresh failed")
		s.trySend(fmt.Sprintf("❌ CryptoHist index refresh failed: %v", err))
		return
	}

	r := model.DateRange{Start: s.StartDate, End: model.Day(run.StartedAt)}
	res, err := s.Fetcher.FetchAll(s.Ctx, r, false, nil)
	if err != nil {
		log.Error().Err(err).Msg("batch failed")
		s.trySend(fmt.Sprintf("❌ CryptoHist batch failed: %v", err))
		return
	}

	for _, series := range res.Succeeded {
		if err := s.Recorder.RecordSeries(series); err != nil {
			log.Error().Err(err).Str("symbol", series.Key.Symbol).Msg("record series failed")
		}
	}
	run.FinishedAt = s.Now()
	run.Total = res.Total
	run.Failed = len(res.Failures)
	if err := s.Recorder.RecordBatch(run); err != nil {
		log.Error().Err(err).Msg("record batch failed")
	}

	s.mu.Lock()
	s.last, s.failures = run, res.Failures
	s.mu.Unlock()

	s.trySend(notifier.FormatBatchReport(run, res.Failures))
}

// HandleCommand processes a chat command and returns a reply.
func (s *Scheduler) HandleCommand(ctx context.Context, command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return helpText
	}
	switch fields[0] {
	case "/status":
		s.mu.Lock()
		run, failures := s.last, s.failures
		s.mu.Unlock()
		if run == nil {
			return "No batch has run yet"
		}
		return notifier.FormatBatchReport(run, failures)
	case "/stats":
		if len(fields) != 2 {
			return "Usage: /stats SYMBOL"
		}
		return s.stats(ctx, fields[1])
	case "/run":
		go s.batchTask()
		return "Batch started"
	default:
		return helpText
	}
}

const helpText = "Commands:\n• /status - last batch report\n• /stats SYMBOL - series statistics\n• /run - start a batch now"

func (s *Scheduler) stats(ctx context.Context, symbol string) string {
	r := model.DateRange{Start: s.StartDate, End: model.Day(s.Now())}
	series, err := s.Fetcher.FetchBySymbol(ctx, symbol, r, false)
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	sum, err := calculator.Summarize(series)
	if err != nil {
		return fmt.Sprintf("❌ %v", err)
	}
	return notifier.FormatSummary(series.Key.Symbol, series.Key.Range, sum)
}

func (s *Scheduler) trySend(text string) {
	if err := s.Notifier.Send(s.Ctx, text); err != nil {
		s.logger.Error().Err(err).Msg("send notification failed")
	}
}
