package audit

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder decouples outcome emission from persistence: the pipeline pushes
// entries into a buffered inbox and the Worker drains it into the configured
// stores. A full inbox drops the entry rather than stalling record
// processing; drops are logged.
type Recorder struct {
	inbox  chan Entry
	logger *slog.Logger
}

const defaultInboxSize = 256

func NewRecorder(logger *slog.Logger) *Recorder {
	return &Recorder{
		inbox:  make(chan Entry, defaultInboxSize),
		logger: logger,
	}
}

// Record stamps and enqueues an entry.
func (r *Recorder) Record(ctx context.Context, e Entry) {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now()
	}
	select {
	case r.inbox <- e:
	default:
		r.logger.WarnContext(ctx, "audit inbox full, entry dropped",
			"local_id", e.LocalID,
			"category", string(e.Category),
		)
	}
}

// Inbox exposes the consuming side for the worker.
func (r *Recorder) Inbox() <-chan Entry { return r.inbox }

// Worker drains a recorder inbox into one or more stores. Store failures are
// logged and skipped; auditing must never take the pipeline down.
type Worker struct {
	inbox  <-chan Entry
	stores []Store
	logger *slog.Logger
}

func NewWorker(inbox <-chan Entry, logger *slog.Logger, stores ...Store) *Worker {
	return &Worker{inbox: inbox, stores: stores, logger: logger}
}

func (w *Worker) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.drain()
			return ctx.Err()
		case e := <-w.inbox:
			w.append(ctx, e)
		}
	}
}

// drain flushes whatever is left in the inbox at shutdown.
func (w *Worker) drain() {
	ctx := context.Background()
	for {
		select {
		case e := <-w.inbox:
			w.append(ctx, e)
		default:
			return
		}
	}
}

func (w *Worker) append(ctx context.Context, e Entry) {
	for _, s := range w.stores {
		if err := s.Append(ctx, e); err != nil {
			w.logger.ErrorContext(ctx, "audit append failed",
				"local_id", e.LocalID,
				"category", string(e.Category),
				"error", err,
			)
		}
	}
}
