package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
	"golang.org/x/crypto/bcrypt"

	"medgate/internal/audit"
	"medgate/internal/domain"
	"medgate/internal/pipeline"
	"medgate/internal/platform/metrics"
	"medgate/internal/verify"
	"medgate/pkg/platform/sentinel"
)

// Prometheus collectors register once per process.
var (
	metricsOnce sync.Once
	testMetrics *metrics.Metrics
)

func sharedMetrics() *metrics.Metrics {
	metricsOnce.Do(func() { testMetrics = metrics.New() })
	return testMetrics
}

// =============================================================================
// HTTP Surface Suite
// =============================================================================
// The suite drives the full router with a real pipeline over stub source and
// checker, so the batch endpoints exercise the same paths production does.

type HandlerSuite struct {
	suite.Suite

	checker *gateChecker
	source  *stubSource
	solver  *RelaySolver
	runner  *Runner
	router  http.Handler
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.DiscardHandler)

	s.checker = &gateChecker{}
	s.source = &stubSource{}
	s.solver = NewRelaySolver(logger)

	recorder := audit.NewRecorder(logger)
	pipe, err := pipeline.New(s.source, s.checker, recorder, pipeline.WithLogger(logger))
	s.Require().NoError(err)

	s.runner = NewRunner(pipe, logger, sharedMetrics())
	handler := NewHandler(s.runner, s.solver, stubSession{}, "", logger)
	s.router = NewRouter(handler)
}

func (s *HandlerSuite) do(method, path string, body any) *httptest.ResponseRecorder {
	var buf bytes.Buffer
	if body != nil {
		s.Require().NoError(json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) startBatch(ids []string) string {
	rec := s.do(http.MethodPost, "/v1/batches", map[string]any{"record_ids": ids})
	s.Require().Equal(http.StatusAccepted, rec.Code)
	var resp struct {
		RunID string `json:"run_id"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Require().NotEmpty(resp.RunID)
	return resp.RunID
}

func (s *HandlerSuite) waitCompleted(runID string) map[string]any {
	var last map[string]any
	s.Require().Eventually(func() bool {
		rec := s.do(http.MethodGet, "/v1/batches/"+runID, nil)
		if rec.Code != http.StatusOK {
			return false
		}
		last = map[string]any{}
		if err := json.NewDecoder(rec.Body).Decode(&last); err != nil {
			return false
		}
		return last["state"] == string(BatchCompleted)
	}, 5*time.Second, 10*time.Millisecond)
	return last
}

// =============================================================================
// Batch Endpoints
// =============================================================================

func (s *HandlerSuite) TestStartBatchValidation() {
	s.Run("invalid body", func() {
		req := httptest.NewRequest(http.MethodPost, "/v1/batches", bytes.NewBufferString("{"))
		rec := httptest.NewRecorder()
		s.router.ServeHTTP(rec, req)
		s.Equal(http.StatusBadRequest, rec.Code)
	})

	s.Run("empty record list", func() {
		rec := s.do(http.MethodPost, "/v1/batches", map[string]any{"record_ids": []string{}})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

func (s *HandlerSuite) TestBatchLifecycle() {
	runID := s.startBatch([]string{"rec-1", "rec-2", "missing"})
	status := s.waitCompleted(runID)

	s.EqualValues(3, status["total"])
	s.EqualValues(3, status["processed"])

	byCategory, ok := status["by_category"].(map[string]any)
	s.Require().True(ok)
	s.EqualValues(2, byCategory[string(domain.CategoryEnriched)])
	s.EqualValues(1, byCategory[string(domain.CategoryUpstreamRecordMissing)])
	s.NotNil(status["session_established"])
}

func (s *HandlerSuite) TestConcurrentBatchRejected() {
	s.checker.block()

	runID := s.startBatch([]string{"rec-1"})

	rec := s.do(http.MethodPost, "/v1/batches", map[string]any{"record_ids": []string{"rec-2"}})
	s.Equal(http.StatusConflict, rec.Code)

	s.checker.release()
	s.waitCompleted(runID)

	// With the first run finished, a new batch is admitted again.
	second := s.startBatch([]string{"rec-2"})
	s.waitCompleted(second)
}

func (s *HandlerSuite) TestBatchStatusUnknownRun() {
	rec := s.do(http.MethodGet, "/v1/batches/no-such-run", nil)
	s.Equal(http.StatusNotFound, rec.Code)
}

// =============================================================================
// Challenge Endpoints
// =============================================================================

func (s *HandlerSuite) TestChallengeRoundTrip() {
	s.Run("no pending challenge", func() {
		rec := s.do(http.MethodGet, "/v1/challenge", nil)
		s.Equal(http.StatusNoContent, rec.Code)
	})

	s.Run("pending challenge is served and answered", func() {
		answered := make(chan string, 1)
		go func() {
			answer, err := s.solver.Solve(context.Background(), verify.Challenge{ID: "ch-1", Image: []byte("png-bytes")})
			if err == nil {
				answered <- answer
			}
		}()
		s.Require().Eventually(func() bool {
			_, ok := s.solver.Current()
			return ok
		}, 2*time.Second, 10*time.Millisecond)

		rec := s.do(http.MethodGet, "/v1/challenge", nil)
		s.Require().Equal(http.StatusOK, rec.Code)
		var resp struct {
			ChallengeID string `json:"challenge_id"`
			Image       []byte `json:"image"`
		}
		s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
		s.Equal("ch-1", resp.ChallengeID)
		s.Equal([]byte("png-bytes"), resp.Image)

		rec = s.do(http.MethodPost, "/v1/challenge/ch-1", map[string]string{"answer": "kitten"})
		s.Equal(http.StatusAccepted, rec.Code)
		s.Equal("kitten", <-answered)
	})

	s.Run("unknown challenge id", func() {
		rec := s.do(http.MethodPost, "/v1/challenge/stale", map[string]string{"answer": "kitten"})
		s.Equal(http.StatusNotFound, rec.Code)
	})

	s.Run("missing answer", func() {
		rec := s.do(http.MethodPost, "/v1/challenge/ch-1", map[string]string{})
		s.Equal(http.StatusBadRequest, rec.Code)
	})
}

// =============================================================================
// Health
// =============================================================================

func (s *HandlerSuite) TestHealth() {
	rec := s.do(http.MethodGet, "/healthz", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp struct {
		Status  string `json:"status"`
		Session string `json:"session"`
	}
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("ok", resp.Status)
	s.Equal(string(verify.StatusFresh), resp.Session)
}

// =============================================================================
// Operator Key
// =============================================================================

func TestOperatorKeyGuardsMutatingRoutes(t *testing.T) {
	logger := slog.New(slog.DiscardHandler)
	hash, err := bcrypt.GenerateFromPassword([]byte("operator-secret"), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}

	source := &stubSource{}
	checker := &gateChecker{}
	recorder := audit.NewRecorder(logger)
	pipe, err := pipeline.New(source, checker, recorder, pipeline.WithLogger(logger))
	if err != nil {
		t.Fatal(err)
	}
	runner := NewRunner(pipe, logger, sharedMetrics())
	router := NewRouter(NewHandler(runner, NewRelaySolver(logger), stubSession{}, string(hash), logger))

	body := func() *bytes.Buffer {
		return bytes.NewBufferString(`{"record_ids": ["rec-1"]}`)
	}

	t.Run("missing key rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/batches", body())
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 without operator key, got %d", rec.Code)
		}
	})

	t.Run("wrong key rejected", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/batches", body())
		req.Header.Set("Authorization", "Bearer wrong")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Fatalf("expected 401 with wrong operator key, got %d", rec.Code)
		}
	})

	t.Run("reads stay open", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("expected 200 on open route, got %d", rec.Code)
		}
	})

	t.Run("valid key accepted", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPost, "/v1/batches", body())
		req.Header.Set("Authorization", "Bearer operator-secret")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		if rec.Code != http.StatusAccepted {
			t.Fatalf("expected 202 with valid operator key, got %d", rec.Code)
		}
	})
}

// =============================================================================
// Test Doubles
// =============================================================================

// stubSource serves a minimal valid record for any identifier except
// "missing".
type stubSource struct{}

func (stubSource) Load(_ context.Context, localID string) (domain.RawRecord, error) {
	if localID == "missing" {
		return domain.RawRecord{}, fmt.Errorf("record %s: %w", localID, sentinel.ErrNotFound)
	}
	return domain.RawRecord{
		LocalID:    localID,
		Surname:    "Иванова",
		GivenName:  "Мария",
		Patronymic: "Петровна",
		BirthDate:  "1990-05-04",
		SNILS:      "snils-" + localID,
		Gender:     domain.GenderFemale,
		Organization: domain.Organization{
			Code:        "1.2.643.5.1.13",
			DisplayName: "Поликлиника 1",
		},
	}, nil
}

// gateChecker confirms every identity; block() makes Confirm wait until
// release() so tests can hold a run open.
type gateChecker struct {
	mu   sync.Mutex
	gate chan struct{}
}

func (c *gateChecker) block() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
}

func (c *gateChecker) release() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gate != nil {
		close(c.gate)
		c.gate = nil
	}
}

func (c *gateChecker) Confirm(ctx context.Context, _ verify.Identity) (verify.Match, error) {
	c.mu.Lock()
	gate := c.gate
	c.mu.Unlock()
	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return verify.Match{}, ctx.Err()
		}
	}
	return verify.Match{FullName: "Иванова Мария", Patronymic: "Петровна"}, nil
}

type stubSession struct{}

func (stubSession) Status() verify.Status  { return verify.StatusFresh }
func (stubSession) SessionPersisted() bool { return false }
