package validate

import "medgate/internal/domain"

// Ledger is the per-run dedup record: identity number → first outcome.
// One pipeline run owns exactly one Ledger; it is append-only within the run
// and thrown away afterwards, so repeated runs cannot cross-contaminate.
// Not safe for concurrent use — record processing is strictly sequential.
type Ledger struct {
	entries map[string]domain.LedgerEntry
}

func NewLedger() *Ledger {
	return &Ledger{entries: make(map[string]domain.LedgerEntry)}
}

// Lookup returns the recorded outcome for an identity number.
func (l *Ledger) Lookup(snils string) (domain.LedgerEntry, bool) {
	e, ok := l.entries[snils]
	return e, ok
}

// Record remembers the first outcome for an identity number. Later writes for
// the same number are ignored: the original outcome is what duplicates cite.
func (l *Ledger) Record(snils string, category domain.Category, message string) {
	if _, exists := l.entries[snils]; exists {
		return
	}
	l.entries[snils] = domain.LedgerEntry{Category: category, Message: message}
}

// Len reports how many distinct identity numbers the run has seen.
func (l *Ledger) Len() int { return len(l.entries) }
