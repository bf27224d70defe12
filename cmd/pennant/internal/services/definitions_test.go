package services

import (
	"context"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pennant-io/pennant/cmd/pennant/internal/store"
	"github.com/pennant-io/pennant/pkg/flags"
)

type notifyRecorder struct {
	changed []flags.Tenant
}

func (n *notifyRecorder) DocumentChanged(tenant flags.Tenant) {
	n.changed = append(n.changed, tenant)
}

func newDefinitionsFixture() (*DefinitionsService, *store.MemoryStore, *notifyRecorder) {
	backing := store.NewMemoryStore()
	notify := &notifyRecorder{}
	svc := NewDefinitionsService(backing, notify, zerolog.Nop())
	return svc, backing, notify
}

func TestPutFlagNotifies(t *testing.T) {
	svc, _, notify := newDefinitionsFixture()
	tenant := flags.NewTenant("storefront", "prod")

	def, warnings, err := svc.PutFlag(context.Background(), tenant, flags.Definition{
		ID:      "new-dashboard",
		Type:    flags.TypeBoolean,
		Enabled: true,
	})
	require.NoError(t, err)
	assert.Empty(t, warnings)
	assert.Equal(t, 100, def.EffectiveRollout())
	assert.Equal(t, []flags.Tenant{tenant}, notify.changed)
}

func TestPutFlagWarnsOnShadowedSegments(t *testing.T) {
	svc, _, _ := newDefinitionsFixture()
	tenant := flags.NewTenant("storefront", "prod")

	require.NoError(t, svc.PutSegment(context.Background(), tenant, "beta-users", "user.beta == true"))

	_, warnings, err := svc.PutFlag(context.Background(), tenant, flags.Definition{
		ID:       "new-dashboard",
		Type:     flags.TypeBoolean,
		Enabled:  true,
		Segments: []string{"beta-users"},
		Rollouts: []flags.RolloutStep{{Start: "2025-01-01T00:00:00Z", Percentage: intPtr(10)}},
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ignored")
}

func TestPutFlagWarnsOnUnknownStepSegment(t *testing.T) {
	svc, _, _ := newDefinitionsFixture()
	tenant := flags.NewTenant("storefront", "prod")

	_, warnings, err := svc.PutFlag(context.Background(), tenant, flags.Definition{
		ID:       "new-dashboard",
		Type:     flags.TypeBoolean,
		Enabled:  true,
		Rollouts: []flags.RolloutStep{{Start: "2025-01-01T00:00:00Z", Segment: "ghost"}},
	})
	require.NoError(t, err)
	require.Len(t, warnings, 1)
	assert.Contains(t, warnings[0], "ghost")
}

func TestPutFlagInvalidDoesNotNotify(t *testing.T) {
	svc, _, notify := newDefinitionsFixture()
	tenant := flags.NewTenant("storefront", "prod")

	_, _, err := svc.PutFlag(context.Background(), tenant, flags.Definition{
		ID:       "new-dashboard",
		Type:     flags.TypeBoolean,
		Segments: []string{"missing"},
	})
	require.ErrorIs(t, err, flags.ErrUnknownSegment)
	assert.Empty(t, notify.changed)
}

func TestUpdateAndDeleteFlag(t *testing.T) {
	svc, _, notify := newDefinitionsFixture()
	tenant := flags.NewTenant("storefront", "prod")

	_, _, err := svc.PutFlag(context.Background(), tenant, flags.Definition{
		ID: "checkout-flow", Type: flags.TypeBoolean, Enabled: true,
	})
	require.NoError(t, err)

	enabled := false
	def, _, err := svc.UpdateFlag(context.Background(), tenant, "checkout-flow", flags.Patch{Enabled: &enabled})
	require.NoError(t, err)
	assert.False(t, def.Enabled)

	require.NoError(t, svc.DeleteFlag(context.Background(), tenant, "checkout-flow"))

	_, err = svc.GetFlag(context.Background(), tenant, "checkout-flow")
	assert.ErrorIs(t, err, store.ErrNotFound)
	assert.Len(t, notify.changed, 3)
}

func TestDeleteSegmentThroughService(t *testing.T) {
	svc, _, _ := newDefinitionsFixture()
	tenant := flags.NewTenant("storefront", "prod")

	require.NoError(t, svc.PutSegment(context.Background(), tenant, "beta-users", "user.beta == true"))
	_, _, err := svc.PutFlag(context.Background(), tenant, flags.Definition{
		ID: "new-dashboard", Type: flags.TypeBoolean, Segments: []string{"beta-users"},
	})
	require.NoError(t, err)

	require.NoError(t, svc.DeleteSegment(context.Background(), tenant, "beta-users"))

	doc, err := svc.GetDocument(context.Background(), tenant)
	require.NoError(t, err)
	assert.Empty(t, doc.Segments)
	assert.Empty(t, doc.Flags["new-dashboard"].Segments)
}

func TestSyncEnv(t *testing.T) {
	svc, _, notify := newDefinitionsFixture()
	source := flags.NewTenant("storefront", "prod")
	target := source.WithEnv("staging")

	require.NoError(t, svc.PutSegment(context.Background(), source, "beta-users", "user.beta == true"))
	_, _, err := svc.PutFlag(context.Background(), source, flags.Definition{
		ID: "feature-a", Type: flags.TypeBoolean, Enabled: true, Segments: []string{"beta-users"},
	})
	require.NoError(t, err)

	summary, err := svc.SyncEnv(context.Background(), source, target, false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Flags)
	assert.Equal(t, 1, summary.Segments)
	assert.Equal(t, "storefront/staging", summary.Target)

	doc, err := svc.GetDocument(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, doc.Flags["feature-a"].Enabled, "synced flags land disabled by default")
	assert.Contains(t, doc.Segments, "beta-users")
	assert.Equal(t, target, notify.changed[len(notify.changed)-1])
}

func TestSyncFlagCopiesReferencedSegments(t *testing.T) {
	svc, _, _ := newDefinitionsFixture()
	source := flags.NewTenant("storefront", "prod")
	target := source.WithEnv("staging")

	require.NoError(t, svc.PutSegment(context.Background(), source, "beta-users", "user.beta == true"))
	require.NoError(t, svc.PutSegment(context.Background(), source, "unrelated", "user.other == true"))
	_, _, err := svc.PutFlag(context.Background(), source, flags.Definition{
		ID: "feature-a", Type: flags.TypeBoolean, Enabled: true, Segments: []string{"beta-users"},
	})
	require.NoError(t, err)

	summary, err := svc.SyncFlag(context.Background(), source, target, "feature-a", false)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Flags)

	doc, err := svc.GetDocument(context.Background(), target)
	require.NoError(t, err)
	assert.False(t, doc.Flags["feature-a"].Enabled)
	assert.Contains(t, doc.Segments, "beta-users")
	assert.NotContains(t, doc.Segments, "unrelated")
}

func TestSyncValidation(t *testing.T) {
	svc, _, _ := newDefinitionsFixture()
	prod := flags.NewTenant("storefront", "prod")

	_, err := svc.SyncEnv(context.Background(), prod, prod, false)
	assert.ErrorIs(t, err, flags.ErrInvalid)

	_, err = svc.SyncEnv(context.Background(), prod, flags.Tenant{App: "storefront", Env: "bad env!"}, false)
	assert.ErrorIs(t, err, flags.ErrInvalid)

	_, err = svc.SyncEnv(context.Background(), prod, flags.Tenant{App: "other", Env: "staging"}, false)
	assert.ErrorIs(t, err, flags.ErrInvalid)

	_, err = svc.SyncFlag(context.Background(), prod, prod.WithEnv("staging"), "missing", false)
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func intPtr(v int) *int { return &v }
