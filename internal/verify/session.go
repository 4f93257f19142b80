package verify

import (
	"net/http"
	"time"
)

// Status tracks where a session sits in the authority's challenge protocol.
type Status string

const (
	// StatusFresh is a session with no authority state attached yet.
	StatusFresh Status = "fresh"
	// StatusActive passed the probe without a pending human check.
	StatusActive Status = "active"
	// StatusNeedsChallenge means the authority is holding the session until
	// a human solves a challenge.
	StatusNeedsChallenge Status = "needs_challenge"
	// StatusVerified passed a challenge; this is the only status persisted
	// for reuse across runs.
	StatusVerified Status = "verified"
)

// SessionVersion is bumped when the persisted session layout changes so stale
// blobs are discarded instead of misread.
const SessionVersion = 1

// Cookie is the persistable subset of an authority cookie.
type Cookie struct {
	Name    string    `json:"name"`
	Value   string    `json:"value"`
	Path    string    `json:"path,omitempty"`
	Domain  string    `json:"domain,omitempty"`
	Expires time.Time `json:"expires,omitempty"`
}

// Session is the versioned, persistable external-authority session record:
// an opaque credential bundle plus protocol status and the last confirmation
// time. One session is shared by all identity checks within a pipeline run.
type Session struct {
	Version     int       `json:"version"`
	Status      Status    `json:"status"`
	Cookies     []Cookie  `json:"cookies"`
	ConfirmedAt time.Time `json:"confirmed_at"`
}

// Usable reports whether the session may carry identity-check submissions.
func (s Session) Usable() bool {
	return s.Status == StatusActive || s.Status == StatusVerified
}

// HTTPCookies converts the stored bundle for injection into a cookie jar.
func (s Session) HTTPCookies() []*http.Cookie {
	out := make([]*http.Cookie, 0, len(s.Cookies))
	for _, c := range s.Cookies {
		path := c.Path
		if path == "" {
			path = "/"
		}
		out = append(out, &http.Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    path,
			Domain:  c.Domain,
			Expires: c.Expires,
		})
	}
	return out
}

// SessionFromCookies packages live jar cookies into a persistable session.
func SessionFromCookies(status Status, cookies []*http.Cookie, confirmedAt time.Time) Session {
	s := Session{Version: SessionVersion, Status: status, ConfirmedAt: confirmedAt}
	for _, c := range cookies {
		s.Cookies = append(s.Cookies, Cookie{
			Name:    c.Name,
			Value:   c.Value,
			Path:    c.Path,
			Domain:  c.Domain,
			Expires: c.Expires,
		})
	}
	return s
}
