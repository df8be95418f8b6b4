package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"CryptoHist/internal/calculator"
	"CryptoHist/internal/config"
	"CryptoHist/internal/dataset"
	"CryptoHist/internal/model"
	"CryptoHist/internal/notifier"
	"CryptoHist/internal/recorder"
	"CryptoHist/internal/scheduler"
)

const usage = `usage: cryptohist <command> [flags]

commands:
  index       print the currency index as CSV
  fetch       print one historical series as CSV (-symbol or -name)
  fetch-all   fetch every indexed currency
  stats       print statistics for one series (-symbol)
  serve       run the scheduled batch with Telegram reports
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1], os.Args[2:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "cryptohist: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	configPath string
	force      bool
	start      string
	end        string
	symbol     string
	name       string
}

func parseFlags(command string, args []string, stderr io.Writer) (*options, error) {
	opts := &options{configPath: "configs/config.yaml"}
	if v := os.Getenv("CONFIG_PATH"); v != "" {
		opts.configPath = v
	}
	fs := flag.NewFlagSet(command, flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configPath, "config", opts.configPath, "path to the YAML config")
	fs.BoolVar(&opts.force, "force", false, "ignore every cache layer and re-download")
	fs.StringVar(&opts.start, "start", "", "first day, YYYY-MM-DD")
	fs.StringVar(&opts.end, "end", "", "last day, YYYY-MM-DD (default today)")
	if command == "fetch" || command == "stats" {
		fs.StringVar(&opts.symbol, "symbol", "", "currency symbol")
	}
	if command == "fetch" {
		fs.StringVar(&opts.name, "name", "", "currency name")
	}
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return opts, nil
}

func run(ctx context.Context, command string, args []string, stdout, stderr io.Writer) error {
	switch command {
	case "index", "fetch", "fetch-all", "stats", "serve":
	case "-h", "-help", "--help", "help":
		fmt.Fprint(stdout, usage)
		return nil
	default:
		fmt.Fprint(stderr, usage)
		return fmt.Errorf("unknown command %q", command)
	}

	opts, err := parseFlags(command, args, stderr)
	if err != nil {
		return err
	}
	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if opts.force {
		cfg.Fetch.Force = true
	}
	if opts.start != "" {
		cfg.Fetch.Start = opts.start
	}
	if opts.end != "" {
		cfg.Fetch.End = opts.end
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("config validation: %w", err)
	}

	a, err := newApp(ctx, cfg, stderr)
	if err != nil {
		return err
	}
	defer a.Close()

	switch command {
	case "index":
		return a.index(ctx, stdout)
	case "fetch":
		return a.fetch(ctx, opts, stdout)
	case "fetch-all":
		return a.fetchAll(ctx, stderr)
	case "stats":
		return a.stats(ctx, opts, stdout)
	default:
		return a.serve(ctx)
	}
}

func (a *app) index(ctx context.Context, w io.Writer) error {
	entries, err := a.idx.Load(ctx, a.cfg.Fetch.Force)
	if err != nil {
		return err
	}
	return dataset.EncodeIndex(w, entries)
}

// refreshIndex rebuilds the index first when the run is forced.
func (a *app) refreshIndex(ctx context.Context) error {
	if !a.cfg.Fetch.Force {
		return nil
	}
	_, err := a.idx.Load(ctx, true)
	return err
}

func (a *app) fetch(ctx context.Context, opts *options, w io.Writer) error {
	if (opts.symbol == "") == (opts.name == "") {
		return errors.New("exactly one of -symbol or -name is required")
	}
	r, err := a.cfg.Range(time.Now())
	if err != nil {
		return err
	}
	if err := a.refreshIndex(ctx); err != nil {
		return err
	}

	var s *model.Series
	if opts.symbol != "" {
		s, err = a.fetcher.FetchBySymbol(ctx, opts.symbol, r, a.cfg.Fetch.Force)
	} else {
		s, err = a.fetcher.FetchByName(ctx, opts.name, r, a.cfg.Fetch.Force)
	}
	if err != nil {
		return err
	}
	if err := a.rec.RecordSeries(s); err != nil {
		a.logger.Error().Err(err).Msg("record series failed")
	}
	a.logger.Info().Str("key", s.Key.String()).Str("source", string(s.Source)).Int("records", len(s.Records)).Msg("series ready")
	return dataset.EncodeSeries(w, s.Records)
}

func (a *app) fetchAll(ctx context.Context, stderr io.Writer) error {
	r, err := a.cfg.Range(time.Now())
	if err != nil {
		return err
	}
	if err := a.refreshIndex(ctx); err != nil {
		return err
	}

	run := recorder.NewBatchRun(time.Now(), "manual")
	res, err := a.fetcher.FetchAll(ctx, r, a.cfg.Fetch.Force, func(i, total int, symbol string) {
		fmt.Fprintf(stderr, "[%d/%d] %s\n", i, total, symbol)
	})
	if err != nil {
		return err
	}
	for _, s := range res.Succeeded {
		if err := a.rec.RecordSeries(s); err != nil {
			a.logger.Error().Err(err).Str("symbol", s.Key.Symbol).Msg("record series failed")
		}
	}
	run.FinishedAt = time.Now()
	run.Total, run.Failed = res.Total, len(res.Failures)
	if err := a.rec.RecordBatch(run); err != nil {
		a.logger.Error().Err(err).Msg("record batch failed")
	}

	fmt.Fprintf(stderr, "fetched %d/%d currencies\n", len(res.Succeeded), res.Total)
	for _, f := range res.Failures {
		fmt.Fprintf(stderr, "  %s: %v\n", f.Symbol, f.Err)
	}
	return nil
}

func (a *app) stats(ctx context.Context, opts *options, w io.Writer) error {
	if opts.symbol == "" {
		return errors.New("-symbol is required")
	}
	r, err := a.cfg.Range(time.Now())
	if err != nil {
		return err
	}
	if err := a.refreshIndex(ctx); err != nil {
		return err
	}
	s, err := a.fetcher.FetchBySymbol(ctx, opts.symbol, r, a.cfg.Fetch.Force)
	if err != nil {
		return err
	}
	sum, err := calculator.Summarize(s)
	if err != nil {
		return err
	}
	printSummary(w, s.Key.String(), sum)
	return nil
}

func printSummary(w io.Writer, key string, sum *calculator.Summary) {
	fmt.Fprintf(w, "series:     %s\n", key)
	fmt.Fprintf(w, "records:    %d\n", sum.Records)
	fmt.Fprintf(w, "last close: %s\n", optional(sum.LastClose))
	fmt.Fprintf(w, "sma20:      %s\n", optional(sum.SMA20))
	fmt.Fprintf(w, "sma50:      %s\n", optional(sum.SMA50))
	fmt.Fprintf(w, "sma200:     %s\n", optional(sum.SMA200))
	fmt.Fprintf(w, "rsi14:      %.2f\n", sum.RSI14)
	fmt.Fprintf(w, "high/low:   %s / %s\n", optional(sum.High), optional(sum.Low))
	fmt.Fprintf(w, "30d range:  %s / %s\n", optional(sum.High30), optional(sum.Low30))
	fmt.Fprintf(w, "position:   %s\n", optional(sum.Position))
}

func optional(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.4f", *v)
}

func (a *app) serve(ctx context.Context) error {
	var n notifier.Notifier = notifier.NoopNotifier{}
	var tn *notifier.TelegramNotifier
	if a.cfg.NotifyEnabled() {
		var err error
		tn, err = notifier.NewTelegramNotifier(a.cfg.Telegram.BotToken, a.cfg.Telegram.ChatID, a.cfg.HTTP.Proxy, a.logger)
		if err != nil {
			return err
		}
		n = notifier.Retrying{TelegramNotifier: tn, Retries: 3}
	} else {
		a.logger.Warn().Msg("telegram not configured, batch reports are only logged")
	}

	start, err := time.Parse(config.DateFormat, a.cfg.Fetch.Start)
	if err != nil {
		return fmt.Errorf("fetch.start: %w", err)
	}
	sched := scheduler.NewScheduler(ctx, a.idx, a.fetcher, n, a.rec, start, a.logger)
	if err := sched.Register(a.cfg.Schedule.Cron); err != nil {
		return err
	}
	sched.Start()
	defer sched.Stop()

	if tn != nil {
		go tn.StartPolling(ctx, sched.HandleCommand)
		a.logger.Info().Msg("telegram polling started")
	}
	if a.cfg.Schedule.RunOnStart {
		a.logger.Info().Msg("RUN_ON_START enabled, executing batch now")
		go sched.RunNow()
	}

	a.logger.Info().Str("cron", a.cfg.Schedule.Cron).Msg("cryptohist is running, press Ctrl+C to stop")
	<-ctx.Done()
	a.logger.Info().Msg("shutdown signal received, stopping")
	return nil
}
