// Package verify drives the external identity-verification authority: session
// establishment, the human-solvable challenge gate, and per-record identity
// checks. The session is a single shared handle; callers must serialize use.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"medgate/pkg/platform/sentinel"
)

const (
	statusPath  = "/checkSnils"
	captchaPath = "/api/captcha/img"
	checkPath   = "/api/service_checkSnils"

	// userCheckMarker appears in the authority's HTML whenever the session
	// is being held for a human check.
	userCheckMarker = "Проверка пользователя"

	// Authority response codes on the identity-check endpoint.
	codeAntiAbuse      = 9107
	codeMalformedSNILS = 5624
)

var (
	// ErrAntiAbuse is the authority's anti-abuse rejection for this record.
	ErrAntiAbuse = errors.New("authority anti-abuse rejection")
	// ErrMalformedIdentity means the authority considers the identity number
	// itself malformed.
	ErrMalformedIdentity = errors.New("identity number malformed")
	// ErrUnclassified covers every authority response that is neither a
	// rejection code nor a confirmed match.
	ErrUnclassified = errors.New("unclassified verification failure")
)

var (
	checkDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "medgate_identity_check_duration_seconds",
		Help:    "Round-trip latency of identity-check submissions",
		Buckets: prometheus.DefBuckets,
	})
	challengesServed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medgate_challenges_served_total",
		Help: "Challenges surfaced to the operator",
	})
	challengesFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "medgate_challenges_failed_total",
		Help: "Challenges that timed out, were abandoned, or were rejected",
	})
)

// Identity is the normalized identity tuple submitted for confirmation.
// BirthDate is day-first (DD.MM.YYYY), the order the authority expects.
type Identity struct {
	Surname    string
	GivenName  string
	Patronymic string
	BirthDate  string
	SNILS      string
}

// Match is a confirmed identity as echoed back by the authority.
type Match struct {
	FullName   string
	Patronymic string
}

// Client owns the protocol; it is stateless between runs except for what the
// SessionStore persists. Not safe for concurrent use: the pipeline holds it
// exclusively for a run.
type Client struct {
	base         *url.URL
	httpc        *http.Client
	sessions     SessionStore
	solver       Solver
	logger       *slog.Logger
	solveTimeout time.Duration

	status    Status
	persisted bool
}

// SessionStore is the narrow persistence surface the client needs. The
// concrete implementations live in verify/store.
type SessionStore interface {
	Load(ctx context.Context) (Session, error)
	Save(ctx context.Context, s Session) error
	Delete(ctx context.Context) error
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

func WithHTTPClient(httpc *http.Client) Option {
	return func(c *Client) { c.httpc = httpc }
}

// WithSolveTimeout bounds how long one challenge may sit in front of the
// operator before it is treated as abandoned.
func WithSolveTimeout(d time.Duration) Option {
	return func(c *Client) { c.solveTimeout = d }
}

func NewClient(baseURL string, sessions SessionStore, solver Solver, opts ...Option) (*Client, error) {
	if sessions == nil {
		return nil, fmt.Errorf("session store is required")
	}
	if solver == nil {
		return nil, fmt.Errorf("challenge solver is required")
	}
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse authority URL: %w", err)
	}

	c := &Client{
		base:         base,
		httpc:        &http.Client{Timeout: 30 * time.Second},
		sessions:     sessions,
		solver:       solver,
		logger:       slog.Default(),
		solveTimeout: 2 * time.Minute,
		status:       StatusFresh,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Status reports the session status after the most recent operation.
func (c *Client) Status() Status { return c.status }

// SessionPersisted reports whether a verified session was written to the
// store during this run (or reused from a previous one).
func (c *Client) SessionPersisted() bool { return c.persisted }

// Confirm establishes a usable session (solving a challenge if the authority
// demands one) and submits the identity check. A challenge failure discards
// the session and fails only this call; the next Confirm starts a fresh
// probe without manual intervention.
func (c *Client) Confirm(ctx context.Context, id Identity) (Match, error) {
	if err := c.ensureSession(ctx); err != nil {
		return Match{}, err
	}
	return c.checkIdentity(ctx, id)
}

func (c *Client) ensureSession(ctx context.Context) error {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return fmt.Errorf("cookie jar: %w", err)
	}

	loaded := StatusFresh
	sess, err := c.sessions.Load(ctx)
	switch {
	case err == nil:
		jar.SetCookies(c.base, sess.HTTPCookies())
		loaded = sess.Status
		c.persisted = sess.Status == StatusVerified
		c.logger.DebugContext(ctx, "persisted session loaded", "status", string(sess.Status))
	case errors.Is(err, sentinel.ErrNotFound):
		c.logger.DebugContext(ctx, "no persisted session, starting fresh")
	default:
		// Losing the stored session is never fatal; probe fresh.
		c.logger.WarnContext(ctx, "session load failed, starting fresh", "error", err)
	}
	c.httpc.Jar = jar
	c.status = StatusFresh

	body, err := c.getText(ctx, statusPath)
	if err != nil {
		return fmt.Errorf("probe authority: %w", sentinel.ErrUnavailable)
	}

	if !strings.Contains(body, userCheckMarker) {
		if loaded == StatusVerified {
			c.status = StatusVerified
		} else {
			c.status = StatusActive
		}
		return nil
	}

	c.status = StatusNeedsChallenge
	return c.solveChallenge(ctx)
}

func (c *Client) solveChallenge(ctx context.Context) error {
	img, err := c.getBytes(ctx, captchaPath)
	if err != nil {
		c.discard(ctx)
		return fmt.Errorf("fetch challenge: %w", ErrChallengeFailed)
	}

	ch := Challenge{ID: uuid.NewString(), Image: img}
	challengesServed.Inc()

	solveCtx, cancel := context.WithTimeout(ctx, c.solveTimeout)
	answer, err := c.solver.Solve(solveCtx, ch)
	cancel()
	if err != nil {
		challengesFailed.Inc()
		c.discard(ctx)
		c.logger.WarnContext(ctx, "challenge not solved", "challenge_id", ch.ID, "error", err)
		return fmt.Errorf("%w: %w", ErrChallengeFailed, err)
	}

	form := url.Values{"captcha-response": {answer}}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(statusPath).String(), strings.NewReader(form.Encode()))
	if err != nil {
		c.discard(ctx)
		return fmt.Errorf("build answer request: %w", ErrChallengeFailed)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.httpc.Do(req)
	if err != nil {
		challengesFailed.Inc()
		c.discard(ctx)
		return fmt.Errorf("submit answer: %w", ErrChallengeFailed)
	}
	body, readErr := readBody(resp)
	if readErr != nil || resp.StatusCode != http.StatusOK || strings.Contains(string(body), userCheckMarker) {
		// "Still needs checking" after an answer counts as a failed attempt.
		challengesFailed.Inc()
		c.discard(ctx)
		return ErrChallengeFailed
	}

	c.status = StatusVerified
	sess := SessionFromCookies(StatusVerified, c.httpc.Jar.Cookies(c.base), time.Now())
	if err := c.sessions.Save(ctx, sess); err != nil {
		// The session is live even if persistence failed; next run re-solves.
		c.logger.WarnContext(ctx, "session persist failed", "error", err)
		return nil
	}
	c.persisted = true
	c.logger.InfoContext(ctx, "verified session persisted", "challenge_id", ch.ID)
	return nil
}

// discard drops both the persisted and in-memory session state so the next
// attempt starts from a clean probe.
func (c *Client) discard(ctx context.Context) {
	if err := c.sessions.Delete(ctx); err != nil {
		c.logger.WarnContext(ctx, "session delete failed", "error", err)
	}
	if jar, err := cookiejar.New(nil); err == nil {
		c.httpc.Jar = jar
	}
	c.status = StatusFresh
	c.persisted = false
}

type checkResponse struct {
	Error int `json:"error"`
	Data  struct {
		IsValid    bool   `json:"isValid"`
		PersonFIO  string `json:"personFIO"`
		Patronymic string `json:"patronymic"`
	} `json:"data"`
}

func (c *Client) checkIdentity(ctx context.Context, id Identity) (Match, error) {
	if !c.status.usableForCheck() {
		return Match{}, fmt.Errorf("session %s: %w", c.status, sentinel.ErrInvalidState)
	}

	form := url.Values{
		"userData[nameLast]":   {id.Surname},
		"userData[nameFirst]":  {id.GivenName},
		"userData[patronymic]": {id.Patronymic},
		"userData[birthDate]":  {id.BirthDate},
		"userData[snils]":      {id.SNILS},
		"simpleCheck":          {"true"},
	}

	start := time.Now()
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.JoinPath(checkPath).String(), strings.NewReader(form.Encode()))
	if err != nil {
		return Match{}, fmt.Errorf("build check request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.httpc.Do(req)
	if err != nil {
		return Match{}, fmt.Errorf("submit check: %w", ErrUnclassified)
	}
	body, err := readBody(resp)
	checkDuration.Observe(time.Since(start).Seconds())
	if err != nil || resp.StatusCode != http.StatusOK {
		return Match{}, ErrUnclassified
	}

	var out checkResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return Match{}, fmt.Errorf("decode check response: %w", ErrUnclassified)
	}

	switch {
	case out.Error == codeAntiAbuse:
		return Match{}, ErrAntiAbuse
	case out.Error == codeMalformedSNILS:
		return Match{}, ErrMalformedIdentity
	case out.Data.IsValid:
		return Match{FullName: out.Data.PersonFIO, Patronymic: out.Data.Patronymic}, nil
	default:
		return Match{}, ErrUnclassified
	}
}

func (s Status) usableForCheck() bool {
	return s == StatusActive || s == StatusVerified
}

func (c *Client) getText(ctx context.Context, path string) (string, error) {
	b, err := c.getBytes(ctx, path)
	return string(b), err
}

func (c *Client) getBytes(ctx context.Context, path string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.base.JoinPath(path).String(), nil)
	if err != nil {
		return nil, err
	}
	resp, err := c.httpc.Do(req)
	if err != nil {
		return nil, err
	}
	body, err := readBody(resp)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("GET %s: status %d", path, resp.StatusCode)
	}
	return body, nil
}

func readBody(resp *http.Response) ([]byte, error) {
	defer resp.Body.Close()
	return io.ReadAll(resp.Body)
}
