package recorder

import (
	"database/sql"
	"fmt"
	"sync"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"

	"CryptoHist/internal/dataset"
	"CryptoHist/internal/model"
)

// SQLiteRecorder persists series and batch runs to a SQLite database.
type SQLiteRecorder struct {
	db     *sql.DB
	mu     sync.Mutex
	logger zerolog.Logger
}

// NewSQLiteRecorder opens (or creates) the SQLite database and runs migrations.
func NewSQLiteRecorder(dbPath string, logger zerolog.Logger) (*SQLiteRecorder, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}

	// WAL lets readers query while a batch writes.
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}

	r := &SQLiteRecorder{db: db, logger: logger.With().Str("component", "recorder").Logger()}
	if err := r.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}

	r.logger.Info().Str("path", dbPath).Msg("sqlite recorder opened")
	return r, nil
}

func (r *SQLiteRecorder) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS historical_records (
			symbol     TEXT NOT NULL,
			date       TEXT NOT NULL,
			open       REAL,
			high       REAL,
			low        REAL,
			close      REAL,
			market_cap REAL,
			volume     REAL,
			PRIMARY KEY (symbol, date)
		)`,

		`CREATE TABLE IF NOT EXISTS batch_runs (
			id          TEXT PRIMARY KEY,
			started_at  INTEGER NOT NULL,
			finished_at INTEGER NOT NULL,
			total       INTEGER,
			failed      INTEGER,
			note        TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_batch_started ON batch_runs(started_at)`,
	}

	for _, s := range stmts {
		if _, err := r.db.Exec(s); err != nil {
			return fmt.Errorf("exec %q: %w", s[:40], err)
		}
	}
	return nil
}

// RecordSeries upserts every record of s keyed by (symbol, date).
func (r *SQLiteRecorder) RecordSeries(s *model.Series) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`INSERT INTO historical_records
		(symbol, date, open, high, low, close, market_cap, volume)
		VALUES (?,?,?,?,?,?,?,?)
		ON CONFLICT(symbol, date) DO UPDATE SET
			open = excluded.open, high = excluded.high, low = excluded.low,
			close = excluded.close, market_cap = excluded.market_cap, volume = excluded.volume`)
	if err != nil {
		return fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	for _, rec := range s.Records {
		if _, err := stmt.Exec(s.Key.Symbol, rec.Date.Format(dataset.DateFormat),
			rec.Open, rec.High, rec.Low, rec.Close, rec.MarketCap, rec.Volume); err != nil {
			return fmt.Errorf("upsert %s %s: %w", s.Key.Symbol, rec.Date.Format(dataset.DateFormat), err)
		}
	}
	return tx.Commit()
}

func (r *SQLiteRecorder) RecordBatch(run *BatchRun) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, err := r.db.Exec(`INSERT INTO batch_runs
		(id, started_at, finished_at, total, failed, note)
		VALUES (?,?,?,?,?,?)`,
		run.ID, run.StartedAt.Unix(), run.FinishedAt.Unix(),
		run.Total, run.Failed, run.Note,
	)
	return err
}

func (r *SQLiteRecorder) Close() error {
	r.logger.Info().Msg("closing sqlite recorder")
	return r.db.Close()
}
