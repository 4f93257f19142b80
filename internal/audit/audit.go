// Package audit records every per-record outcome a pipeline run produces.
// Entries fan out to category-named channels plus one always-written
// "all records" channel, mirroring how operators review results.
package audit

import (
	"context"
	"time"

	"medgate/internal/domain"
)

// ChannelAll receives every entry regardless of outcome category.
const ChannelAll = "all_records"

// Entry is one audit record. Duplicates additionally cite the original
// outcome so reviewers can trace the first occurrence.
type Entry struct {
	ID        string
	RunID     string
	LocalID   string
	Category  domain.Category
	Message   string
	Timestamp time.Time

	// Original* are set only for duplicate outcomes.
	OriginalCategory domain.Category
	OriginalMessage  string
}

// Channel names the category-specific channel for the entry.
func (e Entry) Channel() string { return string(e.Category) }

// Store persists audit entries. Implementations: memory (tests, reports),
// postgres (archive), kafka (stream fan-out).
type Store interface {
	Append(ctx context.Context, e Entry) error
}

// FromOutcome builds the audit entry for a validation outcome.
func FromOutcome(runID string, o domain.Outcome) Entry {
	e := Entry{
		RunID:    runID,
		LocalID:  o.LocalID,
		Category: o.Category,
		Message:  o.Message,
	}
	if o.Original != nil {
		e.OriginalCategory = o.Original.Category
		e.OriginalMessage = o.Original.Message
	}
	return e
}
