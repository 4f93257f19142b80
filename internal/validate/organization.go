package validate

import (
	"encoding/base64"
	"regexp"
	"strings"
	"unicode/utf8"

	"medgate/internal/domain"
)

// The document body is a clinical XML document; organization identity lives
// under providerOrganization as an OID plus a display name.
var (
	orgCodePattern = regexp.MustCompile(`<providerOrganization>\s*<id root="([^"]+)"`)
	orgNamePattern = regexp.MustCompile(`(?s)<providerOrganization>.*?<name>([^<]+)</name>`)
)

// resolveOrganization returns the organization reference from the envelope
// when complete, otherwise recovers it from the base64-encoded document body.
// Both code and display name must resolve; partial data never defaults.
func resolveOrganization(rec domain.RawRecord) (domain.Organization, bool) {
	if rec.Organization.Code != "" && rec.Organization.DisplayName != "" {
		return rec.Organization, true
	}

	body, ok := decodeDocBody(rec.DocBody)
	if !ok {
		return domain.Organization{}, false
	}

	codeMatch := orgCodePattern.FindStringSubmatch(body)
	nameMatch := orgNamePattern.FindStringSubmatch(body)
	if codeMatch == nil || nameMatch == nil {
		return domain.Organization{}, false
	}
	return domain.Organization{
		Code:        codeMatch[1],
		DisplayName: strings.TrimSpace(nameMatch[1]),
	}, true
}

func decodeDocBody(encoded string) (string, bool) {
	if encoded == "" {
		return "", false
	}
	decoded, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", false
	}
	if !utf8.Valid(decoded) {
		return "", false
	}
	return string(decoded), true
}
