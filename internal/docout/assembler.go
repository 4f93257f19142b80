// Package docout is the boundary to the downstream document-generation
// collaborator. The pipeline hands over enriched records keyed by filename
// stem; assembly itself (XML templating, signing) lives outside this service.
package docout

import (
	"context"

	"medgate/internal/domain"
)

// Assembler receives enriched records ready for document generation.
type Assembler interface {
	Assemble(ctx context.Context, rec domain.EnrichedRecord) error
}

// Nop discards enriched records. Used when no downstream assembler is wired.
type Nop struct{}

func (Nop) Assemble(context.Context, domain.EnrichedRecord) error { return nil }
