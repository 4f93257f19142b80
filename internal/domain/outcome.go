package domain

// Category is the closed set of per-record outcome classes. Every record a
// pipeline run touches ends up in exactly one of these, and the audit sink
// keys its channels off them.
type Category string

const (
	CategoryEnriched               Category = "enriched"
	CategoryDuplicate              Category = "duplicate"
	CategoryUpstreamMismatchAbsent Category = "upstream_mismatch_absent"
	CategoryWhitespaceInName       Category = "whitespace_in_name"
	CategoryGenderMismatch         Category = "gender_mismatch"
	CategoryOrganizationUnresolved Category = "organization_unresolved"
	CategoryPatronymicMismatch     Category = "patronymic_mismatch"
	CategoryExternalVerification   Category = "external_verification_failed"
	CategoryUpstreamRecordMissing  Category = "upstream_record_missing"
	CategoryUpstreamRecordMalformed Category = "upstream_record_malformed"
	CategoryInternalError          Category = "internal_error"
)

// Categories lists every outcome category in report order.
func Categories() []Category {
	return []Category{
		CategoryEnriched,
		CategoryDuplicate,
		CategoryUpstreamMismatchAbsent,
		CategoryWhitespaceInName,
		CategoryGenderMismatch,
		CategoryOrganizationUnresolved,
		CategoryPatronymicMismatch,
		CategoryExternalVerification,
		CategoryUpstreamRecordMissing,
		CategoryUpstreamRecordMalformed,
		CategoryInternalError,
	}
}

// Outcome is the tagged result of validating one raw record. Exactly one of
// the three shapes applies: enriched (Record != nil), duplicate
// (Category == CategoryDuplicate, Original populated), or rejected.
type Outcome struct {
	LocalID  string
	Category Category
	Message  string

	// Record is set only for enriched outcomes.
	Record *EnrichedRecord

	// Original cites the first outcome for this SNILS when the record was
	// rejected as a duplicate.
	Original *LedgerEntry
}

// Enriched reports whether the outcome carries an enriched record.
func (o Outcome) Enriched() bool { return o.Record != nil }

// LedgerEntry is what the dedup ledger remembers per identity number: the
// category and message of the first record seen with that SNILS.
type LedgerEntry struct {
	Category Category
	Message  string
}

// Report aggregates one pipeline run.
type Report struct {
	Total     int
	ByCategory map[Category]int
	Outcomes  []Outcome

	// SessionEstablished is false when no verification session could be
	// established or persisted during the run; the host surfaces this as an
	// explicit notice.
	SessionEstablished bool
}
