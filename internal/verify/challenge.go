package verify

import (
	"context"
	"errors"
)

// Challenge is one human-solvable gate issued by the authority: an opaque
// image payload the operator must read. At most one challenge is outstanding
// per pipeline run.
type Challenge struct {
	ID    string
	Image []byte
}

// Solver is the host-injected capability that puts a challenge in front of a
// human operator. Solve blocks until an answer arrives, the operator abandons
// the challenge, or ctx expires; the client bounds ctx with its solve
// timeout. Implementations must return ErrAbandoned (possibly wrapped) when
// no answer will come.
type Solver interface {
	Solve(ctx context.Context, ch Challenge) (string, error)
}

var (
	// ErrAbandoned means the operator closed or ignored the challenge.
	ErrAbandoned = errors.New("challenge abandoned")
	// ErrChallengeFailed means the authority rejected the submitted answer
	// or still demanded a human check afterwards.
	ErrChallengeFailed = errors.New("challenge failed")
)

// SolverFunc adapts a function to the Solver interface.
type SolverFunc func(ctx context.Context, ch Challenge) (string, error)

func (f SolverFunc) Solve(ctx context.Context, ch Challenge) (string, error) {
	return f(ctx, ch)
}
