package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/engine"
	"github.com/pennant-io/pennant/pkg/events"
	"github.com/pennant-io/pennant/pkg/flags"
	"github.com/pennant-io/pennant/pkg/telemetry"
)

// DocumentSource yields tenant documents for evaluation. Either the
// document cache or a bare store satisfies it.
type DocumentSource interface {
	GetDocument(ctx context.Context, tenant flags.Tenant) (flags.Document, error)
}

// ExposureSink receives exposure events for trackable flags.
type ExposureSink interface {
	PublishExposure(ev events.Exposure) error
}

// EvaluationService runs flag decisions for a tenant. The decision itself
// is pure and in-process; the only I/O is the document load up front and
// the fire-and-forget exposure events after.
type EvaluationService struct {
	docs      DocumentSource
	evaluator *engine.Evaluator
	sink      ExposureSink
	logger    zerolog.Logger
}

// NewEvaluationService creates the evaluation service. sink may be nil
// when exposure tracking is disabled.
func NewEvaluationService(docs DocumentSource, evaluator *engine.Evaluator, sink ExposureSink, logger zerolog.Logger) *EvaluationService {
	return &EvaluationService{
		docs:      docs,
		evaluator: evaluator,
		sink:      sink,
		logger:    logger.With().Str("service", "evaluation").Logger(),
	}
}

// EvaluateAll decides every flag in the tenant document. It fails only when
// the document cannot be loaded; individual flag failures are contained and
// yield that flag's default.
func (s *EvaluationService) EvaluateAll(ctx context.Context, tenant flags.Tenant, in engine.Input) (map[string]engine.Result, error) {
	doc, err := s.docs.GetDocument(ctx, tenant)
	if err != nil {
		return nil, fmt.Errorf("failed to load document for %s: %w", tenant.String(), err)
	}

	now := time.Now().UTC()
	results := s.evaluator.EvaluateAll(doc, in, now)

	for id, res := range results {
		telemetry.CountEvaluation(string(res.Type), res.IsEval)
		s.trackExposure(tenant, doc.Flags[id], in, res, now)
	}
	return results, nil
}

// EvaluateFlag decides a single flag.
func (s *EvaluationService) EvaluateFlag(ctx context.Context, tenant flags.Tenant, id string, in engine.Input) (engine.Result, error) {
	doc, err := s.docs.GetDocument(ctx, tenant)
	if err != nil {
		return engine.Result{}, fmt.Errorf("failed to load document for %s: %w", tenant.String(), err)
	}

	def, ok := doc.Flags[id]
	if !ok {
		return engine.Result{}, fmt.Errorf("%w: flag %q", store.ErrNotFound, id)
	}

	now := time.Now().UTC()
	res := s.evaluator.Evaluate(def, doc.Segments, in, now)

	telemetry.CountEvaluation(string(res.Type), res.IsEval)
	s.trackExposure(tenant, def, in, res, now)
	return res, nil
}

// trackExposure emits an exposure event off the request path. Anonymous
// evaluations carry no identity worth attributing, so they are skipped.
func (s *EvaluationService) trackExposure(tenant flags.Tenant, def flags.Definition, in engine.Input, res engine.Result, now time.Time) {
	if s.sink == nil || !def.IsTrackable || in.ID == "" {
		return
	}

	ev := events.Exposure{
		App:         tenant.App,
		Env:         tenant.Env,
		FlagID:      def.ID,
		FlagType:    def.Type,
		Identity:    in.ID,
		Fired:       res.IsEval,
		VariationID: res.Variation,
		EvaluatedAt: now,
	}

	go func() {
		if err := s.sink.PublishExposure(ev); err != nil {
			s.logger.Warn().Err(err).Str("flag", ev.FlagID).Msg("Failed to publish exposure event")
		}
	}()
}
