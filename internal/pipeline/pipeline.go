// Package pipeline sequences record validation over a batch. Records are
// processed strictly in order: the dedup ledger depends on it, and the
// verification session is a single shared handle that cannot fan out.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"medgate/internal/audit"
	"medgate/internal/docout"
	"medgate/internal/domain"
	"medgate/internal/platform/metrics"
	"medgate/internal/records"
	"medgate/internal/validate"
	"medgate/internal/verify"
	"medgate/pkg/platform/sentinel"
)

// ProgressFunc is invoked after every record with (processed so far, total).
// Callbacks run on the pipeline goroutine; hosts must treat them as
// read-mostly notifications and never push back-pressure through them.
type ProgressFunc func(processed, total int)

// SessionReporter exposes the verification session state for the run report.
// *verify.Client satisfies this.
type SessionReporter interface {
	Status() verify.Status
	SessionPersisted() bool
}

// Pipeline drives one batch at a time. Concurrent runs are not supported;
// the host serializes submissions.
type Pipeline struct {
	source    records.Source
	checker   validate.Checker
	session   SessionReporter
	assembler docout.Assembler
	recorder  *audit.Recorder
	metrics   *metrics.Metrics
	logger    *slog.Logger
	tracer    trace.Tracer

	mismatchGate bool
}

type Option func(*Pipeline)

func WithLogger(logger *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = logger }
}

func WithAssembler(a docout.Assembler) Option {
	return func(p *Pipeline) { p.assembler = a }
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

// WithSessionReporter lets the run report carry the final session state.
func WithSessionReporter(s SessionReporter) Option {
	return func(p *Pipeline) { p.session = s }
}

// WithMismatchGate makes the validator require an upstream identity-mismatch
// flag on every record.
func WithMismatchGate(enabled bool) Option {
	return func(p *Pipeline) { p.mismatchGate = enabled }
}

func New(source records.Source, checker validate.Checker, recorder *audit.Recorder, opts ...Option) (*Pipeline, error) {
	if source == nil {
		return nil, fmt.Errorf("record source is required")
	}
	if checker == nil {
		return nil, fmt.Errorf("identity checker is required")
	}
	if recorder == nil {
		return nil, fmt.Errorf("audit recorder is required")
	}
	p := &Pipeline{
		source:    source,
		checker:   checker,
		assembler: docout.Nop{},
		recorder:  recorder,
		logger:    slog.Default(),
		tracer:    otel.Tracer("medgate/pipeline"),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p, nil
}

// Run processes the batch and returns the aggregate report. A fresh dedup
// ledger is created per run. Any single record's failure, including a panic
// below the record boundary, becomes that record's outcome; the batch always
// runs to completion.
func (p *Pipeline) Run(ctx context.Context, runID string, localIDs []string, progress ProgressFunc) domain.Report {
	ctx, span := p.tracer.Start(ctx, "pipeline.run",
		trace.WithAttributes(
			attribute.String("run.id", runID),
			attribute.Int("run.total", len(localIDs)),
		))
	defer span.End()

	ledger := validate.NewLedger()
	validator, err := validate.New(p.checker, ledger,
		validate.WithLogger(p.logger),
		validate.WithMismatchGate(p.mismatchGate),
	)
	if err != nil {
		// Construction can only fail on nil dependencies, which New rejected.
		panic(err)
	}

	report := domain.Report{
		Total:      len(localIDs),
		ByCategory: make(map[domain.Category]int),
	}

	for i, localID := range localIDs {
		outcome := p.processRecord(ctx, validator, localID)

		report.ByCategory[outcome.Category]++
		report.Outcomes = append(report.Outcomes, outcome)
		p.recorder.Record(ctx, audit.FromOutcome(runID, outcome))
		if p.metrics != nil {
			p.metrics.RecordOutcome(outcome.Category)
		}

		if outcome.Enriched() {
			if err := p.assembler.Assemble(ctx, *outcome.Record); err != nil {
				// Assembly is downstream of validation; its failure does not
				// reclassify the record.
				p.logger.ErrorContext(ctx, "document assembly failed",
					"local_id", localID, "stem", outcome.Record.FileStem, "error", err)
			}
		}

		if progress != nil {
			progress(i+1, len(localIDs))
		}
	}

	if p.session != nil {
		report.SessionEstablished = p.session.SessionPersisted() || p.session.Status() == verify.StatusActive
	}
	span.SetAttributes(attribute.Int("run.enriched", report.ByCategory[domain.CategoryEnriched]))
	p.logger.InfoContext(ctx, "batch complete",
		"run_id", runID,
		"total", report.Total,
		"enriched", report.ByCategory[domain.CategoryEnriched],
	)
	return report
}

func (p *Pipeline) processRecord(ctx context.Context, validator *validate.Validator, localID string) (outcome domain.Outcome) {
	ctx, span := p.tracer.Start(ctx, "pipeline.record",
		trace.WithAttributes(attribute.String("record.local_id", localID)))
	defer func() {
		if r := recover(); r != nil {
			p.logger.ErrorContext(ctx, "record processing panicked", "local_id", localID, "panic", r)
			outcome = domain.Outcome{
				LocalID:  localID,
				Category: domain.CategoryInternalError,
				Message:  fmt.Sprintf("internal error: %v", r),
			}
		}
		span.SetAttributes(attribute.String("record.category", string(outcome.Category)))
		span.End()
	}()

	rec, err := p.source.Load(ctx, localID)
	if err != nil {
		return domain.Outcome{
			LocalID:  localID,
			Category: loadCategory(err),
			Message:  fmt.Sprintf("record load failed: %v", err),
		}
	}

	return validator.Validate(ctx, rec)
}

func loadCategory(err error) domain.Category {
	switch {
	case errors.Is(err, sentinel.ErrNotFound):
		return domain.CategoryUpstreamRecordMissing
	case errors.Is(err, records.ErrMalformed):
		return domain.CategoryUpstreamRecordMalformed
	default:
		return domain.CategoryInternalError
	}
}
