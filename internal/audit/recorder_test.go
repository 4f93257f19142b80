package audit

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medgate/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

// collectStore gathers appended entries for assertions.
type collectStore struct {
	mu      sync.Mutex
	entries []Entry
	err     error
}

func (s *collectStore) Append(_ context.Context, e Entry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, e)
	return nil
}

func (s *collectStore) all() []Entry {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]Entry{}, s.entries...)
}

func TestRecorderStampsEntries(t *testing.T) {
	r := NewRecorder(testLogger())

	r.Record(context.Background(), Entry{RunID: "run-1", LocalID: "rec-1", Category: domain.CategoryEnriched})

	e := <-r.Inbox()
	assert.NotEmpty(t, e.ID)
	assert.False(t, e.Timestamp.IsZero())
	assert.Equal(t, "run-1", e.RunID)
}

func TestRecorderDropsWhenInboxFull(t *testing.T) {
	r := NewRecorder(testLogger())

	// Nothing consumes the inbox; overfill it and make sure Record returns.
	done := make(chan struct{})
	go func() {
		for i := 0; i < defaultInboxSize+10; i++ {
			r.Record(context.Background(), Entry{LocalID: "rec", Category: domain.CategoryEnriched})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Record blocked on a full inbox")
	}
	assert.Len(t, r.Inbox(), defaultInboxSize)
}

func TestWorkerFansOutToAllStores(t *testing.T) {
	r := NewRecorder(testLogger())
	first := &collectStore{}
	second := &collectStore{}
	w := NewWorker(r.Inbox(), testLogger(), first, second)

	ctx, cancel := context.WithCancel(context.Background())
	workerDone := make(chan struct{})
	go func() {
		_ = w.Run(ctx)
		close(workerDone)
	}()

	r.Record(ctx, Entry{RunID: "run-1", LocalID: "rec-1", Category: domain.CategoryEnriched})
	r.Record(ctx, Entry{RunID: "run-1", LocalID: "rec-2", Category: domain.CategoryDuplicate})

	require.Eventually(t, func() bool {
		return len(first.all()) == 2 && len(second.all()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	<-workerDone
}

func TestWorkerDrainsOnShutdown(t *testing.T) {
	r := NewRecorder(testLogger())
	store := &collectStore{}
	w := NewWorker(r.Inbox(), testLogger(), store)

	// Enqueue before the worker ever runs, then cancel immediately: the
	// drain pass must still flush everything.
	for i := 0; i < 5; i++ {
		r.Record(context.Background(), Entry{LocalID: "rec", Category: domain.CategoryEnriched})
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	err := w.Run(ctx)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, store.all(), 5)
}

func TestWorkerSkipsFailingStore(t *testing.T) {
	r := NewRecorder(testLogger())
	failing := &collectStore{err: errors.New("disk full")}
	healthy := &collectStore{}
	w := NewWorker(r.Inbox(), testLogger(), failing, healthy)

	r.Record(context.Background(), Entry{LocalID: "rec-1", Category: domain.CategoryEnriched})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_ = w.Run(ctx)

	assert.Len(t, healthy.all(), 1, "one store failing must not starve the others")
}

func TestFromOutcome(t *testing.T) {
	t.Run("plain outcome", func(t *testing.T) {
		e := FromOutcome("run-1", domain.Outcome{
			LocalID:  "rec-1",
			Category: domain.CategoryEnriched,
			Message:  "enriched; document stem Ivanova-MP",
		})
		assert.Equal(t, "run-1", e.RunID)
		assert.Equal(t, domain.CategoryEnriched, e.Category)
		assert.Equal(t, "enriched", e.Channel())
		assert.Empty(t, e.OriginalCategory)
	})

	t.Run("duplicate cites original", func(t *testing.T) {
		e := FromOutcome("run-1", domain.Outcome{
			LocalID:  "rec-2",
			Category: domain.CategoryDuplicate,
			Message:  "duplicate identity number",
			Original: &domain.LedgerEntry{
				Category: domain.CategoryGenderMismatch,
				Message:  "declared gender not corroborated",
			},
		})
		assert.Equal(t, domain.CategoryGenderMismatch, e.OriginalCategory)
		assert.Equal(t, "declared gender not corroborated", e.OriginalMessage)
	})
}
