package resilient

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/memkeep/memkeep-go/pkg/memory"
)

// stubBackend is a Backend whose every operation either succeeds with canned
// values or fails with err.
type stubBackend struct {
	name string
	err  error

	addCalls      int
	retrieveCalls int
	clearCalls    int
	deleteCalls   int
}

func (s *stubBackend) Add(ctx context.Context, ownerID, content string, opts ...memory.AddOption) (string, error) {
	s.addCalls++
	if s.err != nil {
		return "", s.err
	}
	return s.name + "_id", nil
}

func (s *stubBackend) Retrieve(ctx context.Context, ownerID, query string, limit int) ([]memory.ScoredRecord, error) {
	s.retrieveCalls++
	if s.err != nil {
		return nil, s.err
	}
	return []memory.ScoredRecord{{ID: s.name + "_id", Content: "from " + s.name, Score: 0.9}}, nil
}

func (s *stubBackend) Clear(ctx context.Context, ownerID string) error {
	s.clearCalls++
	return s.err
}

func (s *stubBackend) DeleteOne(ctx context.Context, id string) (bool, error) {
	s.deleteCalls++
	if s.err != nil {
		return false, s.err
	}
	return true, nil
}

func (s *stubBackend) Ping(ctx context.Context) error { return s.err }

// capableBackend adds the legacy extension operations on top of stubBackend.
type capableBackend struct {
	stubBackend
	cleanupCalls  int
	exchangeCalls int
}

func (c *capableBackend) Cleanup(ctx context.Context, currentMood string) (int, error) {
	c.cleanupCalls++
	return 2, nil
}

func (c *capableBackend) RecordExchange(ctx context.Context, userMsg, assistantMsg, mood string) (string, error) {
	c.exchangeCalls++
	return c.name + "_exchange", nil
}

func TestAdvancedServesWhenHealthy(t *testing.T) {
	advanced := &stubBackend{name: "adv"}
	legacy := &stubBackend{name: "leg"}
	w := New(advanced, legacy, nil)
	ctx := context.Background()

	id, status := w.Add(ctx, "user_a", "content")
	assert.Equal(t, "adv_id", id)
	assert.Equal(t, KindAdvanced, status.Backend)
	assert.False(t, status.Degraded)
	assert.NoError(t, status.Err)
	assert.Zero(t, legacy.addCalls)
}

func TestFallbackOnAdvancedFailure(t *testing.T) {
	bootErr := errors.New("index unreachable")
	advanced := &stubBackend{name: "adv", err: bootErr}
	legacy := &stubBackend{name: "leg"}
	w := New(advanced, legacy, nil)
	ctx := context.Background()

	id, status := w.Add(ctx, "user_a", "content")
	assert.Equal(t, "leg_id", id)
	assert.Equal(t, KindLegacy, status.Backend)
	assert.True(t, status.Degraded)
	assert.ErrorIs(t, status.Err, bootErr, "the swallowed reason is reported, not returned")

	records, status := w.Retrieve(ctx, "user_a", "query", 5)
	require.Len(t, records, 1)
	assert.Equal(t, "from leg", records[0].Content)
	assert.Equal(t, KindLegacy, status.Backend)

	status = w.Clear(ctx, "user_a")
	assert.Equal(t, KindLegacy, status.Backend)
	assert.True(t, status.Degraded)

	deleted, status := w.DeleteOne(ctx, "some_id")
	assert.True(t, deleted)
	assert.Equal(t, KindLegacy, status.Backend)
}

func TestNeutralValuesWhenBothFail(t *testing.T) {
	advErr := errors.New("advanced down")
	legErr := errors.New("legacy down")
	w := New(&stubBackend{name: "adv", err: advErr}, &stubBackend{name: "leg", err: legErr}, nil)
	ctx := context.Background()

	id, status := w.Add(ctx, "user_a", "content")
	assert.Empty(t, id)
	assert.Equal(t, KindNone, status.Backend)
	assert.True(t, status.Degraded)
	assert.ErrorIs(t, status.Err, advErr)
	assert.ErrorIs(t, status.Err, legErr)

	records, status := w.Retrieve(ctx, "user_a", "query", 5)
	assert.Empty(t, records)
	assert.Equal(t, KindNone, status.Backend)

	deleted, status := w.DeleteOne(ctx, "id")
	assert.False(t, deleted)
	assert.Equal(t, KindNone, status.Backend)
}

func TestNoBackendsAtAll(t *testing.T) {
	w := New(nil, nil, nil)
	ctx := context.Background()

	id, status := w.Add(ctx, "user_a", "content")
	assert.Empty(t, id)
	assert.Equal(t, KindNone, status.Backend)

	records, status := w.Retrieve(ctx, "user_a", "query", 5)
	assert.Empty(t, records)
	assert.Equal(t, KindNone, status.Backend)

	h := w.Health(ctx)
	assert.False(t, h.AdvancedOK)
	assert.False(t, h.LegacyOK)
	assert.Equal(t, KindNone, h.Active)
}

func TestForceFlagsAreExclusive(t *testing.T) {
	advanced := &stubBackend{name: "adv"}
	legacy := &stubBackend{name: "leg"}
	w := New(advanced, legacy, nil)
	ctx := context.Background()

	w.ForceLegacy(true)
	id, status := w.Add(ctx, "user_a", "content")
	assert.Equal(t, "leg_id", id)
	assert.Equal(t, KindLegacy, status.Backend)
	assert.False(t, status.Degraded, "routing by choice is not degradation")
	assert.Zero(t, advanced.addCalls)

	// Enabling the other flag clears the first.
	w.ForceAdvanced(true)
	id, status = w.Add(ctx, "user_a", "content")
	assert.Equal(t, "adv_id", id)
	assert.Equal(t, KindAdvanced, status.Backend)

	w.ForceAdvanced(false)
	id, _ = w.Add(ctx, "user_a", "content")
	assert.Equal(t, "adv_id", id, "with no overrides the advanced backend is preferred")
}

func TestForcedAbsentBackendYieldsNeutral(t *testing.T) {
	legacy := &stubBackend{name: "leg"}
	w := New(nil, legacy, nil)
	ctx := context.Background()

	w.ForceAdvanced(true)
	id, status := w.Add(ctx, "user_a", "content")
	assert.Empty(t, id, "forcing an absent backend does not silently reroute")
	assert.Equal(t, KindNone, status.Backend)
	assert.Zero(t, legacy.addCalls)
}

func TestHealthReportsBothProbes(t *testing.T) {
	advanced := &stubBackend{name: "adv", err: errors.New("probe failed")}
	legacy := &stubBackend{name: "leg"}
	w := New(advanced, legacy, nil)

	h := w.Health(context.Background())
	assert.False(t, h.AdvancedOK)
	assert.True(t, h.LegacyOK)
	assert.Equal(t, KindAdvanced, h.Active, "a failed probe does not change routing")
	require.Len(t, h.Errors, 1)
	assert.Contains(t, h.Errors[0], "probe failed")
}

func TestExtensionOperationsResolveByCapability(t *testing.T) {
	advanced := &stubBackend{name: "adv"}
	legacy := &capableBackend{stubBackend: stubBackend{name: "leg"}}
	w := New(advanced, legacy, nil)
	ctx := context.Background()

	// The active backend is advanced, but only legacy has the capability.
	removed, err := w.Cleanup(ctx, "happy")
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	assert.Equal(t, 1, legacy.cleanupCalls)

	id, err := w.RecordExchange(ctx, "hi", "hello", "happy")
	require.NoError(t, err)
	assert.Equal(t, "leg_exchange", id)
}

func TestExtensionOperationsWithoutCapability(t *testing.T) {
	w := New(&stubBackend{name: "adv"}, &stubBackend{name: "leg"}, nil)
	ctx := context.Background()

	_, err := w.Cleanup(ctx, "happy")
	assert.ErrorIs(t, err, ErrCapabilityNotFound)

	_, err = w.RecordExchange(ctx, "hi", "hello", "happy")
	assert.ErrorIs(t, err, ErrCapabilityNotFound)
}
