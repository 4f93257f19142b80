package httptransport

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"medgate/internal/verify"
	"medgate/pkg/platform/sentinel"
)

func TestRelaySolverDeliversAnswer(t *testing.T) {
	s := NewRelaySolver(slog.New(slog.DiscardHandler))
	ch := verify.Challenge{ID: "ch-1", Image: []byte("png")}

	type result struct {
		answer string
		err    error
	}
	done := make(chan result, 1)
	go func() {
		answer, err := s.Solve(context.Background(), ch)
		done <- result{answer, err}
	}()

	// The challenge becomes visible to the operator.
	require.Eventually(t, func() bool {
		_, ok := s.Current()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	current, ok := s.Current()
	require.True(t, ok)
	assert.Equal(t, "ch-1", current.ID)
	assert.Equal(t, []byte("png"), current.Image)

	require.NoError(t, s.Submit("ch-1", "kitten"))

	got := <-done
	require.NoError(t, got.err)
	assert.Equal(t, "kitten", got.answer)

	_, ok = s.Current()
	assert.False(t, ok, "answered challenge is no longer pending")
}

func TestRelaySolverRejectsUnknownChallengeID(t *testing.T) {
	s := NewRelaySolver(slog.New(slog.DiscardHandler))

	err := s.Submit("nope", "kitten")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	go func() {
		_, _ = s.Solve(context.Background(), verify.Challenge{ID: "ch-1"})
	}()
	require.Eventually(t, func() bool {
		_, ok := s.Current()
		return ok
	}, 2*time.Second, 10*time.Millisecond)

	err = s.Submit("stale-id", "kitten")
	assert.ErrorIs(t, err, sentinel.ErrNotFound)

	require.NoError(t, s.Submit("ch-1", "kitten"))
}

func TestRelaySolverAbandonment(t *testing.T) {
	s := NewRelaySolver(slog.New(slog.DiscardHandler))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	_, err := s.Solve(ctx, verify.Challenge{ID: "ch-1"})
	assert.ErrorIs(t, err, verify.ErrAbandoned)

	_, ok := s.Current()
	assert.False(t, ok, "abandoned challenge is cleared")
}
