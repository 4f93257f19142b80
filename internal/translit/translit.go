// Package translit turns Cyrillic name fields into ASCII-safe document
// filename stems. The mapping is deterministic and idempotent: ASCII input
// passes through unchanged.
package translit

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// ruLatin maps lowercase Cyrillic letters to their Latin renderings. Uppercase
// input keeps its case on the first output letter.
var ruLatin = map[rune]string{
	'а': "a", 'б': "b", 'в': "v", 'г': "g", 'д': "d",
	'е': "e", 'ё': "e", 'ж': "zh", 'з': "z", 'и': "i",
	'й': "i", 'к': "k", 'л': "l", 'м': "m", 'н': "n",
	'о': "o", 'п': "p", 'р': "r", 'с': "s", 'т': "t",
	'у': "u", 'ф': "f", 'х': "kh", 'ц': "ts", 'ч': "ch",
	'ш': "sh", 'щ': "shch", 'ъ': "", 'ы': "y", 'ь': "",
	'э': "e", 'ю': "yu", 'я': "ya",
}

// stripMarks removes combining marks left over from decomposing accented
// Latin letters (é → e), so Western names also come out ASCII-clean.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// Transliterate renders s as ASCII. Cyrillic letters map through ruLatin,
// accented Latin letters lose their marks, and anything still outside
// printable ASCII is dropped.
func Transliterate(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		lower := unicode.ToLower(r)
		if mapped, ok := ruLatin[lower]; ok {
			if r != lower && mapped != "" {
				b.WriteString(strings.ToUpper(mapped[:1]) + mapped[1:])
			} else {
				b.WriteString(mapped)
			}
			continue
		}
		b.WriteRune(r)
	}

	flat, _, err := transform.String(stripMarks, b.String())
	if err != nil {
		flat = b.String()
	}

	var out strings.Builder
	out.Grow(len(flat))
	for _, r := range flat {
		if r < 128 && (unicode.IsPrint(r) || r == ' ') {
			out.WriteRune(r)
		}
	}
	return out.String()
}

// FileStem derives the document filename stem for an enriched record:
// transliterated surname, a hyphen, then the transliterated initials of the
// given name and patronymic (patronymic initial omitted when absent). Spaces
// become hyphens and apostrophes are dropped.
func FileStem(surname, givenName, patronymic string) string {
	initials := initial(givenName) + initial(patronymic)
	stem := Transliterate(surname)
	if initials != "" {
		stem += "-" + Transliterate(initials)
	}
	stem = strings.ReplaceAll(stem, " ", "-")
	stem = strings.ReplaceAll(stem, "'", "")
	return stem
}

func initial(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}
