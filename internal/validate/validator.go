// Package validate runs the per-record rule chain: dedup, upstream flag gate,
// whitespace hygiene, gender cross-check, organization resolution, and the
// external identity confirmation. Rules run in fixed order and short-circuit
// at the first failure.
package validate

//go:generate mockgen -source=validator.go -destination=mocks/mocks.go -package=mocks Checker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"medgate/internal/domain"
	"medgate/internal/gender"
	"medgate/internal/translit"
	"medgate/internal/verify"
)

// mismatchFlagCode is the upstream code marking an identity mismatch between
// the record and the master patient index.
const mismatchFlagCode = "PATIENT_MPI_MISMATCH"

// Upstream mismatch messages are free text in Russian; these fragments pick
// out the identity-relevant ones.
var identityFragments = []string{
	"Имя пациента",
	"Дата рождения",
	"снилс",
	"Пол пациента",
}

const genderFragment = "Пол пациента"

// Checker submits the normalized identity tuple to the external authority.
// *verify.Client satisfies this; tests substitute mocks.
type Checker interface {
	Confirm(ctx context.Context, id verify.Identity) (verify.Match, error)
}

// Validator consumes one raw record at a time and owns the run's dedup
// ledger writes.
type Validator struct {
	checker Checker
	ledger  *Ledger
	logger  *slog.Logger

	// requireMismatchFlag enables the discrepancy-flag gate: only records the
	// upstream system already flagged as suspicious are re-checked.
	requireMismatchFlag bool
}

type Option func(*Validator)

func WithLogger(logger *slog.Logger) Option {
	return func(v *Validator) { v.logger = logger }
}

// WithMismatchGate toggles the upstream discrepancy-flag gate.
func WithMismatchGate(enabled bool) Option {
	return func(v *Validator) { v.requireMismatchFlag = enabled }
}

func New(checker Checker, ledger *Ledger, opts ...Option) (*Validator, error) {
	if checker == nil {
		return nil, fmt.Errorf("identity checker is required")
	}
	if ledger == nil {
		return nil, fmt.Errorf("dedup ledger is required")
	}
	v := &Validator{
		checker: checker,
		ledger:  ledger,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(v)
	}
	return v, nil
}

// Validate applies the rule chain and returns exactly one outcome. Every
// non-duplicate outcome is written to the ledger so later records sharing
// the identity number can cite it.
func (v *Validator) Validate(ctx context.Context, rec domain.RawRecord) domain.Outcome {
	if original, seen := v.ledger.Lookup(rec.SNILS); seen {
		msg := fmt.Sprintf("duplicate identity number; original outcome: %s", original.Message)
		v.logger.WarnContext(ctx, "duplicate record", "local_id", rec.LocalID, "original_category", string(original.Category))
		return domain.Outcome{
			LocalID:  rec.LocalID,
			Category: domain.CategoryDuplicate,
			Message:  msg,
			Original: &original,
		}
	}

	if v.requireMismatchFlag && !hasIdentityMismatchFlag(rec.Flags) {
		return v.reject(ctx, rec, domain.CategoryUpstreamMismatchAbsent,
			"no upstream identity-mismatch flag referencing name, birth date, identity number, or gender")
	}

	if field, ok := strayWhitespaceField(rec); ok {
		return v.reject(ctx, rec, domain.CategoryWhitespaceInName,
			fmt.Sprintf("%s field has stray whitespace", field))
	}

	genderDisputed := hasGenderMismatchFlag(rec.Flags)
	if genderDisputed {
		verdict := gender.Classify(rec.Surname, rec.GivenName, rec.Patronymic)
		if verdict != rec.Gender {
			return v.reject(ctx, rec, domain.CategoryGenderMismatch,
				fmt.Sprintf("declared gender %s not corroborated by name morphology (%s)", rec.Gender, verdict))
		}
	}

	org, ok := resolveOrganization(rec)
	if !ok {
		return v.reject(ctx, rec, domain.CategoryOrganizationUnresolved,
			"organization code or display name missing from both envelope and document body")
	}

	match, err := v.checker.Confirm(ctx, verify.Identity{
		Surname:    rec.Surname,
		GivenName:  rec.GivenName,
		Patronymic: rec.Patronymic,
		BirthDate:  dayFirst(rec.BirthDate),
		SNILS:      rec.SNILS,
	})
	if err != nil {
		return v.reject(ctx, rec, domain.CategoryExternalVerification, verificationMessage(err))
	}

	if match.Patronymic != "" && !strings.EqualFold(match.Patronymic, rec.Patronymic) {
		return v.reject(ctx, rec, domain.CategoryPatronymicMismatch,
			"authority-reported patronymic does not match the record")
	}

	stem := translit.FileStem(rec.Surname, rec.GivenName, rec.Patronymic)
	enriched := &domain.EnrichedRecord{
		LocalID:        rec.LocalID,
		Surname:        rec.Surname,
		GivenName:      rec.GivenName,
		Patronymic:     rec.Patronymic,
		BirthDate:      rec.BirthDate,
		SNILS:          rec.SNILS,
		Gender:         rec.Gender,
		Organization:   org,
		FileStem:       stem,
		GenderDisputed: genderDisputed,
		EnrichedAt:     time.Now(),
	}

	msg := fmt.Sprintf("enriched; document stem %s", stem)
	v.ledger.Record(rec.SNILS, domain.CategoryEnriched, msg)
	v.logger.InfoContext(ctx, "record enriched", "local_id", rec.LocalID, "stem", stem)
	return domain.Outcome{
		LocalID:  rec.LocalID,
		Category: domain.CategoryEnriched,
		Message:  msg,
		Record:   enriched,
	}
}

func (v *Validator) reject(ctx context.Context, rec domain.RawRecord, category domain.Category, msg string) domain.Outcome {
	v.ledger.Record(rec.SNILS, category, msg)
	v.logger.WarnContext(ctx, "record rejected",
		"local_id", rec.LocalID,
		"category", string(category),
		"reason", msg,
	)
	return domain.Outcome{LocalID: rec.LocalID, Category: category, Message: msg}
}

func hasIdentityMismatchFlag(flags []domain.DiscrepancyFlag) bool {
	for _, f := range flags {
		if f.Code != mismatchFlagCode {
			continue
		}
		for _, fragment := range identityFragments {
			if containsFold(f.Message, fragment) {
				return true
			}
		}
	}
	return false
}

func hasGenderMismatchFlag(flags []domain.DiscrepancyFlag) bool {
	for _, f := range flags {
		if f.Code == mismatchFlagCode && strings.Contains(f.Message, genderFragment) {
			return true
		}
	}
	return false
}

// strayWhitespaceField finds the first name field with leading, trailing, or
// doubled internal whitespace.
func strayWhitespaceField(rec domain.RawRecord) (string, bool) {
	fields := []struct{ name, value string }{
		{"surname", rec.Surname},
		{"given name", rec.GivenName},
	}
	if rec.HasPatronymic() {
		fields = append(fields, struct{ name, value string }{"patronymic", rec.Patronymic})
	}
	for _, f := range fields {
		if f.value != strings.Join(strings.Fields(f.value), " ") {
			return f.name, true
		}
	}
	return "", false
}

func verificationMessage(err error) string {
	switch {
	case errors.Is(err, verify.ErrChallengeFailed):
		return "verification challenge failed or was abandoned"
	case errors.Is(err, verify.ErrAntiAbuse):
		return "authority anti-abuse check rejected the request"
	case errors.Is(err, verify.ErrMalformedIdentity):
		return "authority reports the identity number as malformed"
	default:
		return fmt.Sprintf("external verification failed: %v", err)
	}
}

// dayFirst reverses an ISO date into the day-first order the authority
// expects: 1990-05-04 → 04.05.1990.
func dayFirst(iso string) string {
	parts := strings.Split(iso, "-")
	for i, j := 0, len(parts)-1; i < j; i, j = i+1, j-1 {
		parts[i], parts[j] = parts[j], parts[i]
	}
	return strings.Join(parts, ".")
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}
