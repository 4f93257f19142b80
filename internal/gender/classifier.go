// Package gender derives a patient's grammatical gender from the Cyrillic
// morphology of the full name. The verdict is used as an independent
// corroborating signal against upstream gender-mismatch flags, never as an
// authoritative value.
package gender

import (
	"strings"

	"medgate/internal/domain"
)

// Classify tags patronymic, surname, and given name independently and returns
// the majority gender. A strict majority of masculine or feminine votes wins;
// everything else (ties, neuter-dominated names, no recognizable morphology)
// collapses to GenderUnknown. Pure and deterministic; never fails.
func Classify(surname, givenName, patronymic string) domain.Gender {
	var masc, femn, neut int

	tally := func(g vote) {
		switch g {
		case voteMasc:
			masc++
		case voteFemn:
			femn++
		case voteNeut:
			neut++
		}
	}

	if patronymic != "" {
		tally(tagPatronymic(patronymic))
	}
	tally(tagSurname(surname))
	tally(tagGivenName(givenName))

	switch {
	case masc > femn && masc > neut:
		return domain.GenderMale
	case femn > masc && femn > neut:
		return domain.GenderFemale
	default:
		// Includes the neuter-majority case: neuter is never a valid
		// patient gender, so it reads as "cannot determine".
		return domain.GenderUnknown
	}
}

type vote int

const (
	voteNone vote = iota
	voteMasc
	voteFemn
	voteNeut
)

var patronymicSuffixes = []suffixRule{
	{"ьич", voteMasc},
	{"ович", voteMasc},
	{"евич", voteMasc},
	{"ич", voteMasc},
	{"оглы", voteMasc},
	{"овна", voteFemn},
	{"евна", voteFemn},
	{"ична", voteFemn},
	{"кызы", voteFemn},
	{"гызы", voteFemn},
}

var surnameSuffixes = []suffixRule{
	{"ова", voteFemn},
	{"ева", voteFemn},
	{"ёва", voteFemn},
	{"ина", voteFemn},
	{"ына", voteFemn},
	{"ская", voteFemn},
	{"цкая", voteFemn},
	{"ая", voteFemn},
	{"яя", voteFemn},
	{"ский", voteMasc},
	{"цкий", voteMasc},
	{"ов", voteMasc},
	{"ев", voteMasc},
	{"ёв", voteMasc},
	{"ин", voteMasc},
	{"ын", voteMasc},
	{"ий", voteMasc},
	{"ый", voteMasc},
	{"ой", voteMasc},
	// Indeclinable surnames in -о/-е (Шевченко, Дурново) tag as neuter,
	// which the vote treats as morphological noise.
	{"ко", voteNeut},
	{"о", voteNeut},
	{"е", voteNeut},
}

// Common given names whose ending contradicts their gender.
var givenNameExceptions = map[string]vote{
	"никита":  voteMasc,
	"илья":    voteMasc,
	"фома":    voteMasc,
	"кузьма":  voteMasc,
	"лука":    voteMasc,
	"савва":   voteMasc,
	"данила":  voteMasc,
	"гаврила": voteMasc,
	"жора":    voteMasc,
	"лёва":    voteMasc,
	"любовь":  voteFemn,
	"нинель":  voteFemn,
	"эсфирь":  voteFemn,
	"рахиль":  voteFemn,
	"юдифь":   voteFemn,
}

type suffixRule struct {
	suffix string
	vote   vote
}

func tagPatronymic(s string) vote {
	return matchSuffix(normalize(s), patronymicSuffixes)
}

func tagSurname(s string) vote {
	return matchSuffix(normalize(s), surnameSuffixes)
}

func tagGivenName(s string) vote {
	name := normalize(s)
	if v, ok := givenNameExceptions[name]; ok {
		return v
	}
	runes := []rune(name)
	if len(runes) == 0 {
		return voteNone
	}
	switch runes[len(runes)-1] {
	case 'а', 'я':
		return voteFemn
	case 'о', 'е':
		return voteNeut
	case 'ь', 'и', 'у', 'ю', 'э', 'ы':
		// Ambiguous or foreign endings carry no vote.
		return voteNone
	default:
		return voteMasc
	}
}

func matchSuffix(s string, rules []suffixRule) vote {
	for _, r := range rules {
		if strings.HasSuffix(s, r.suffix) {
			return r.vote
		}
	}
	return voteNone
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
