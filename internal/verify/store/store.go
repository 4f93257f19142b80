// Package store persists the external-authority verification session. Stores
// are interface-driven so the pipeline can run against Redis in production
// and memory in tests without rewiring.
package store

import (
	"context"

	"medgate/internal/verify"
)

// SessionStore loads and saves the single shared verification session.
// Load returns sentinel.ErrNotFound (wrapped) when nothing is persisted;
// a stale or version-mismatched blob is treated the same way.
type SessionStore interface {
	Load(ctx context.Context) (verify.Session, error)
	Save(ctx context.Context, s verify.Session) error
	Delete(ctx context.Context) error
}
