// Package records reads raw upstream patient records. The upstream fetcher
// drops one JSON file per record identifier into a work directory; this
// package turns those files into domain.RawRecord values.
package records

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"medgate/internal/domain"
	"medgate/pkg/platform/sentinel"
)

// ErrMalformed marks a record file that exists but cannot be decoded.
// Distinct from sentinel.ErrNotFound so the pipeline can report the two
// upstream failure categories separately.
var ErrMalformed = errors.New("record malformed")

// Source yields raw records by local identifier.
type Source interface {
	Load(ctx context.Context, localID string) (domain.RawRecord, error)
}

// FSSource is the file-per-identifier implementation: <dir>/<localID>.json.
type FSSource struct {
	dir string
}

func NewFSSource(dir string) *FSSource {
	return &FSSource{dir: dir}
}

// envelope mirrors the upstream gateway JSON shape.
type envelope struct {
	Patient struct {
		LocalID   string `json:"localId"`
		Surname   string `json:"surname"`
		Name      string `json:"name"`
		PatrName  string `json:"patrName"`
		BirthDate string `json:"birthDate"`
		SNILS     string `json:"snils"`
		Gender    struct {
			Code string `json:"code"`
		} `json:"gender"`
	} `json:"patient"`
	Errors []struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"errors"`
	Organization *struct {
		Code        string `json:"code"`
		DisplayName string `json:"displayName"`
	} `json:"organization"`
	DocContent struct {
		Data string `json:"data"`
	} `json:"docContent"`
}

func (s *FSSource) Load(_ context.Context, localID string) (domain.RawRecord, error) {
	path := filepath.Join(s.dir, localID+".json")
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return domain.RawRecord{}, fmt.Errorf("record %s: %w", localID, sentinel.ErrNotFound)
		}
		return domain.RawRecord{}, fmt.Errorf("read record %s: %w", localID, err)
	}

	var env envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return domain.RawRecord{}, fmt.Errorf("decode record %s: %w: %v", localID, ErrMalformed, err)
	}
	if env.Patient.SNILS == "" || env.Patient.Surname == "" {
		return domain.RawRecord{}, fmt.Errorf("record %s missing patient identity: %w", localID, ErrMalformed)
	}

	rec := domain.RawRecord{
		LocalID:    localID,
		Surname:    env.Patient.Surname,
		GivenName:  env.Patient.Name,
		Patronymic: env.Patient.PatrName,
		BirthDate:  env.Patient.BirthDate,
		SNILS:      env.Patient.SNILS,
		Gender:     domain.ParseGenderCode(env.Patient.Gender.Code),
		DocBody:    env.DocContent.Data,
	}
	for _, e := range env.Errors {
		rec.Flags = append(rec.Flags, domain.DiscrepancyFlag{Code: e.Code, Message: e.Message})
	}
	if env.Organization != nil {
		rec.Organization = domain.Organization{
			Code:        env.Organization.Code,
			DisplayName: env.Organization.DisplayName,
		}
	}
	return rec, nil
}
