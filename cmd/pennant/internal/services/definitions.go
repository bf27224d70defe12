package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/flags"
)

// Notifier is told after every successful document mutation so caches can
// drop the stale copy. The invalidation service implements it.
type Notifier interface {
	DocumentChanged(tenant flags.Tenant)
}

// SyncSummary reports what a sync operation copied.
type SyncSummary struct {
	Flags    int    `json:"flags"`
	Segments int    `json:"segments"`
	Source   string `json:"source"`
	Target   string `json:"target"`
}

// DefinitionsService owns the management-side document operations: flag and
// segment writes, reads, and environment sync. All mutations run through the
// store's per-tenant concurrency control and end with a change notice.
type DefinitionsService struct {
	store  store.Store
	notify Notifier
	logger zerolog.Logger
}

// NewDefinitionsService creates the management service. notify may be nil.
func NewDefinitionsService(s store.Store, notify Notifier, logger zerolog.Logger) *DefinitionsService {
	return &DefinitionsService{
		store:  s,
		notify: notify,
		logger: logger.With().Str("service", "definitions").Logger(),
	}
}

// GetDocument returns the full tenant document, straight from the store so
// management reads always see the latest write.
func (s *DefinitionsService) GetDocument(ctx context.Context, tenant flags.Tenant) (flags.Document, error) {
	return s.store.GetDocument(ctx, tenant)
}

// GetFlag returns a single definition.
func (s *DefinitionsService) GetFlag(ctx context.Context, tenant flags.Tenant, id string) (flags.Definition, error) {
	doc, err := s.store.GetDocument(ctx, tenant)
	if err != nil {
		return flags.Definition{}, err
	}
	def, ok := doc.Flags[id]
	if !ok {
		return flags.Definition{}, fmt.Errorf("%w: flag %q", store.ErrNotFound, id)
	}
	return def, nil
}

// PutFlag validates and upserts a whole definition. The returned warnings
// flag suspicious but legal definitions, like standalone segments that are
// shadowed by rollout steps.
func (s *DefinitionsService) PutFlag(ctx context.Context, tenant flags.Tenant, def flags.Definition) (flags.Definition, []string, error) {
	doc, err := s.store.Mutate(ctx, tenant, func(doc flags.Document) (flags.Document, error) {
		return store.PutFlag(doc, def)
	})
	if err != nil {
		return flags.Definition{}, nil, err
	}

	s.documentChanged(tenant)
	s.logger.Info().Str("tenant", tenant.String()).Str("flag", def.ID).Msg("Flag written")

	stored := doc.Flags[def.ID]
	return stored, flagWarnings(stored, doc.Segments), nil
}

// UpdateFlag merges a partial update into an existing flag.
func (s *DefinitionsService) UpdateFlag(ctx context.Context, tenant flags.Tenant, id string, patch flags.Patch) (flags.Definition, []string, error) {
	doc, err := s.store.Mutate(ctx, tenant, func(doc flags.Document) (flags.Document, error) {
		return store.UpdateFlag(doc, id, patch)
	})
	if err != nil {
		return flags.Definition{}, nil, err
	}

	s.documentChanged(tenant)
	s.logger.Info().Str("tenant", tenant.String()).Str("flag", id).Msg("Flag updated")

	stored := doc.Flags[id]
	return stored, flagWarnings(stored, doc.Segments), nil
}

// DeleteFlag removes a flag.
func (s *DefinitionsService) DeleteFlag(ctx context.Context, tenant flags.Tenant, id string) error {
	_, err := s.store.Mutate(ctx, tenant, func(doc flags.Document) (flags.Document, error) {
		return store.DeleteFlag(doc, id)
	})
	if err != nil {
		return err
	}

	s.documentChanged(tenant)
	s.logger.Info().Str("tenant", tenant.String()).Str("flag", id).Msg("Flag deleted")
	return nil
}

// PutSegment upserts a segment expression.
func (s *DefinitionsService) PutSegment(ctx context.Context, tenant flags.Tenant, id, expression string) error {
	_, err := s.store.Mutate(ctx, tenant, func(doc flags.Document) (flags.Document, error) {
		return store.PutSegment(doc, id, expression)
	})
	if err != nil {
		return err
	}

	s.documentChanged(tenant)
	s.logger.Info().Str("tenant", tenant.String()).Str("segment", id).Msg("Segment written")
	return nil
}

// DeleteSegment removes a segment and strips it from every flag that
// references it, in one write.
func (s *DefinitionsService) DeleteSegment(ctx context.Context, tenant flags.Tenant, id string) error {
	_, err := s.store.Mutate(ctx, tenant, func(doc flags.Document) (flags.Document, error) {
		return store.DeleteSegment(doc, id)
	})
	if err != nil {
		return err
	}

	s.documentChanged(tenant)
	s.logger.Info().Str("tenant", tenant.String()).Str("segment", id).Msg("Segment deleted, references stripped")
	return nil
}

// SyncEnv copies every flag and segment from the source environment into
// the target environment of the same app. Unless overwrite is set, copied
// flags arrive disabled so a sync never silently turns features on.
func (s *DefinitionsService) SyncEnv(ctx context.Context, source, target flags.Tenant, overwrite bool) (SyncSummary, error) {
	if err := validateSyncPair(source, target); err != nil {
		return SyncSummary{}, err
	}

	sourceDoc, err := s.store.GetDocument(ctx, source)
	if err != nil {
		return SyncSummary{}, err
	}

	_, err = s.store.Mutate(ctx, target, func(doc flags.Document) (flags.Document, error) {
		return store.MergeEnv(doc, sourceDoc, overwrite), nil
	})
	if err != nil {
		return SyncSummary{}, err
	}

	s.documentChanged(target)
	s.logger.Info().
		Str("source", source.String()).
		Str("target", target.String()).
		Bool("overwrite", overwrite).
		Int("flags", len(sourceDoc.Flags)).
		Int("segments", len(sourceDoc.Segments)).
		Msg("Environment synced")

	return SyncSummary{
		Flags:    len(sourceDoc.Flags),
		Segments: len(sourceDoc.Segments),
		Source:   source.String(),
		Target:   target.String(),
	}, nil
}

// SyncFlag copies a single flag plus the segments it references.
func (s *DefinitionsService) SyncFlag(ctx context.Context, source, target flags.Tenant, id string, overwrite bool) (SyncSummary, error) {
	if err := validateSyncPair(source, target); err != nil {
		return SyncSummary{}, err
	}

	sourceDoc, err := s.store.GetDocument(ctx, source)
	if err != nil {
		return SyncSummary{}, err
	}

	def, ok := sourceDoc.Flags[id]
	if !ok {
		return SyncSummary{}, fmt.Errorf("%w: flag %q in %s", store.ErrNotFound, id, source.String())
	}

	_, err = s.store.Mutate(ctx, target, func(doc flags.Document) (flags.Document, error) {
		return store.MergeFlag(doc, sourceDoc, id, overwrite)
	})
	if err != nil {
		return SyncSummary{}, err
	}

	s.documentChanged(target)
	s.logger.Info().
		Str("source", source.String()).
		Str("target", target.String()).
		Str("flag", id).
		Bool("overwrite", overwrite).
		Msg("Flag synced")

	return SyncSummary{
		Flags:    1,
		Segments: len(def.Segments),
		Source:   source.String(),
		Target:   target.String(),
	}, nil
}

func (s *DefinitionsService) documentChanged(tenant flags.Tenant) {
	if s.notify != nil {
		s.notify.DocumentChanged(tenant)
	}
}

func validateSyncPair(source, target flags.Tenant) error {
	if !flags.ValidKeyPart(source.Env) {
		return fmt.Errorf("%w: source environment %q", flags.ErrInvalid, source.Env)
	}
	if !flags.ValidKeyPart(target.Env) {
		return fmt.Errorf("%w: target environment %q", flags.ErrInvalid, target.Env)
	}
	if source.App != target.App {
		return fmt.Errorf("%w: sync crosses apps %q and %q", flags.ErrInvalid, source.App, target.App)
	}
	if source.Env == target.Env {
		return fmt.Errorf("%w: sync source and target are both %q", flags.ErrInvalid, source.Env)
	}
	return nil
}

// flagWarnings collects advisory notes for a stored definition: conditions
// that evaluate legally but probably not the way the author expected.
func flagWarnings(def flags.Definition, segments map[string]string) []string {
	var warnings []string
	if len(def.Rollouts) > 0 && len(def.Segments) > 0 {
		warnings = append(warnings,
			"flag has rollout steps, so its standalone segments are ignored during evaluation; reference the segments from the steps instead")
	}
	for i, step := range def.Rollouts {
		if step.Segment == "" {
			continue
		}
		if _, ok := segments[step.Segment]; !ok {
			warnings = append(warnings, fmt.Sprintf(
				"rollout step %d references unknown segment %q and will not match until the segment exists", i, step.Segment))
		}
	}
	return warnings
}
