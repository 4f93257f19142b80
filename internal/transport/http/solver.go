package httptransport

import (
	"context"
	"log/slog"
	"sync"

	"medgate/internal/verify"
	"medgate/pkg/platform/sentinel"
)

// RelaySolver bridges the verification client's challenge hook to the HTTP
// surface. When the authority demands a challenge the solver parks it here;
// an operator fetches the image, reads it, and posts the answer back. Only
// one challenge can be pending at a time because the verification flow is
// strictly sequential.
type RelaySolver struct {
	logger *slog.Logger

	mu      sync.Mutex
	pending *parkedChallenge
}

type parkedChallenge struct {
	challenge verify.Challenge
	answer    chan string
}

func NewRelaySolver(logger *slog.Logger) *RelaySolver {
	return &RelaySolver{logger: logger}
}

// Solve implements verify.Solver. It blocks until an operator submits an
// answer or the context expires, whichever comes first. An expired context
// means the challenge was abandoned.
func (s *RelaySolver) Solve(ctx context.Context, ch verify.Challenge) (string, error) {
	parked := &parkedChallenge{challenge: ch, answer: make(chan string, 1)}

	s.mu.Lock()
	s.pending = parked
	s.mu.Unlock()

	s.logger.InfoContext(ctx, "challenge awaiting operator", "challenge_id", ch.ID)

	defer func() {
		s.mu.Lock()
		if s.pending == parked {
			s.pending = nil
		}
		s.mu.Unlock()
	}()

	select {
	case answer := <-parked.answer:
		return answer, nil
	case <-ctx.Done():
		s.logger.WarnContext(ctx, "challenge abandoned", "challenge_id", ch.ID)
		return "", verify.ErrAbandoned
	}
}

// Current returns the challenge an operator should solve, if any.
func (s *RelaySolver) Current() (verify.Challenge, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.pending == nil {
		return verify.Challenge{}, false
	}
	return s.pending.challenge, true
}

// Submit delivers an operator's answer for the pending challenge. The
// challenge ID must match the pending one; a stale or unknown ID reports
// sentinel.ErrNotFound.
func (s *RelaySolver) Submit(challengeID, answer string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.pending == nil || s.pending.challenge.ID != challengeID {
		return sentinel.ErrNotFound
	}

	select {
	case s.pending.answer <- answer:
	default:
		// Already answered; the second submission loses.
	}
	s.pending = nil
	return nil
}
