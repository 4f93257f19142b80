package domain

import "time"

// Gender is the declared patient gender as carried by upstream metadata.
// The upstream system encodes it as "1" (male) and "2" (female); anything
// else maps to GenderUnknown.
type Gender int

const (
	GenderUnknown Gender = iota
	GenderMale
	GenderFemale
)

// ParseGenderCode maps the upstream numeric gender code to a Gender.
func ParseGenderCode(code string) Gender {
	switch code {
	case "1":
		return GenderMale
	case "2":
		return GenderFemale
	default:
		return GenderUnknown
	}
}

// Code returns the upstream numeric encoding for g, or "" when unknown.
func (g Gender) Code() string {
	switch g {
	case GenderMale:
		return "1"
	case GenderFemale:
		return "2"
	default:
		return ""
	}
}

func (g Gender) String() string {
	switch g {
	case GenderMale:
		return "male"
	case GenderFemale:
		return "female"
	default:
		return "unknown"
	}
}

// DiscrepancyFlag is an upstream-reported data-quality concern on a record:
// a machine code plus a free-text message describing the mismatched field.
type DiscrepancyFlag struct {
	Code    string
	Message string
}

// Organization references the medical organization that produced the record.
// Either both fields are present in the upstream envelope, or they must be
// recovered from the base64-encoded document body.
type Organization struct {
	Code        string
	DisplayName string
}

// RawRecord is one upstream patient record as read from the record store.
// Immutable once read; validation never mutates it.
type RawRecord struct {
	LocalID    string
	Surname    string
	GivenName  string
	Patronymic string
	BirthDate  string // ISO order YYYY-MM-DD, as delivered upstream
	SNILS      string
	Gender     Gender
	Flags      []DiscrepancyFlag

	// Organization may be zero-valued when the upstream envelope omitted it;
	// the validator then falls back to DocBody.
	Organization Organization

	// DocBody is the base64-encoded document body, used only as the fallback
	// source for organization resolution.
	DocBody string
}

// HasPatronymic reports whether the record carries a patronymic at all.
func (r RawRecord) HasPatronymic() bool { return r.Patronymic != "" }

// EnrichedRecord is the canonical output handed to document assembly after
// every rule and the external confirmation passed.
type EnrichedRecord struct {
	LocalID      string
	Surname      string
	GivenName    string
	Patronymic   string
	BirthDate    string // normalized YYYY-MM-DD
	SNILS        string
	Gender       Gender
	Organization Organization

	// FileStem is the transliterated, ASCII-safe document filename stem.
	FileStem string

	// GenderDisputed marks records whose declared gender was under an
	// upstream mismatch flag when they passed; document assembly surfaces
	// the warning to the operator.
	GenderDisputed bool

	EnrichedAt time.Time
}
