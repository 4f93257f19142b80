package httptransport

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"medgate/internal/domain"
	"medgate/internal/pipeline"
	"medgate/internal/platform/metrics"
)

// ErrRunActive is reported when a batch is submitted while another is still
// being processed. Runs share one verification session, so they never
// overlap.
var ErrRunActive = errors.New("a validation run is already in progress")

// BatchState describes where a run currently stands.
type BatchState string

const (
	BatchRunning   BatchState = "running"
	BatchCompleted BatchState = "completed"
)

// Snapshot is a point-in-time view of a run for status queries.
type Snapshot struct {
	RunID      string
	State      BatchState
	Processed  int
	Total      int
	StartedAt  time.Time
	FinishedAt time.Time
	Report     *domain.Report
}

// Runner owns batch execution. It admits one run at a time, drives the
// pipeline on a background goroutine, and keeps finished reports in memory
// for status queries.
type Runner struct {
	pipe    *pipeline.Pipeline
	logger  *slog.Logger
	metrics *metrics.Metrics

	mu       sync.Mutex
	active   *batch
	finished map[string]*batch
}

type batch struct {
	runID     string
	total     int
	startedAt time.Time

	mu         sync.Mutex
	processed  int
	finishedAt time.Time
	report     *domain.Report
}

func NewRunner(pipe *pipeline.Pipeline, logger *slog.Logger, m *metrics.Metrics) *Runner {
	return &Runner{
		pipe:     pipe,
		logger:   logger,
		metrics:  m,
		finished: make(map[string]*batch),
	}
}

// Start admits a new run and returns its ID. The run proceeds on a
// background goroutine detached from the request context, so clients may
// disconnect and poll the status endpoint later.
func (r *Runner) Start(ctx context.Context, localIDs []string) (string, error) {
	r.mu.Lock()
	if r.active != nil {
		r.mu.Unlock()
		return "", ErrRunActive
	}

	b := &batch{
		runID:     uuid.NewString(),
		total:     len(localIDs),
		startedAt: time.Now().UTC(),
	}
	r.active = b
	r.mu.Unlock()

	r.metrics.BatchStarted()
	r.logger.InfoContext(ctx, "batch admitted", "run_id", b.runID, "records", b.total)

	go r.run(context.WithoutCancel(ctx), b, localIDs)
	return b.runID, nil
}

func (r *Runner) run(ctx context.Context, b *batch, localIDs []string) {
	report := r.pipe.Run(ctx, b.runID, localIDs, func(processed, _ int) {
		b.mu.Lock()
		b.processed = processed
		b.mu.Unlock()
	})

	b.mu.Lock()
	b.report = &report
	b.finishedAt = time.Now().UTC()
	b.mu.Unlock()

	r.mu.Lock()
	r.finished[b.runID] = b
	r.active = nil
	r.mu.Unlock()

	r.logger.Info("batch completed",
		"run_id", b.runID,
		"records", report.Total,
		"enriched", report.ByCategory[domain.CategoryEnriched],
		"session_established", report.SessionEstablished,
	)
}

// Status reports the state of a known run.
func (r *Runner) Status(runID string) (Snapshot, bool) {
	r.mu.Lock()
	b := r.finished[runID]
	if b == nil && r.active != nil && r.active.runID == runID {
		b = r.active
	}
	r.mu.Unlock()

	if b == nil {
		return Snapshot{}, false
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	snap := Snapshot{
		RunID:     b.runID,
		State:     BatchRunning,
		Processed: b.processed,
		Total:     b.total,
		StartedAt: b.startedAt,
	}
	if b.report != nil {
		snap.State = BatchCompleted
		snap.FinishedAt = b.finishedAt
		snap.Report = b.report
	}
	return snap, true
}
