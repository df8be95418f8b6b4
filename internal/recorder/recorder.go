package recorder

import (
	"time"

	"github.com/google/uuid"

	"CryptoHist/internal/model"
)

// BatchRun summarizes one FetchAll pass.
type BatchRun struct {
	ID         string
	StartedAt  time.Time
	FinishedAt time.Time
	Total      int
	Failed     int
	Note       string // "manual" or "scheduled"
}

// NewBatchRun starts a run record with a fresh ID.
func NewBatchRun(startedAt time.Time, note string) *BatchRun {
	return &BatchRun{
		ID:        uuid.NewString(),
		StartedAt: startedAt,
		Note:      note,
	}
}

// Recorder persists fetched series and batch runs for analysis.
type Recorder interface {
	RecordSeries(s *model.Series) error
	RecordBatch(run *BatchRun) error
	Close() error
}
