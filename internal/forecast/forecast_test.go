package forecast

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegionMetrics/internal/domain"
)

type stubForecaster struct {
	projection domain.Projection
	err        error
	calls      int
}

func (s *stubForecaster) Forecast(context.Context, string, float64) (domain.Projection, error) {
	s.calls++
	return s.projection, s.err
}

func TestFallbackProjection(t *testing.T) {
	t.Parallel()

	p := NewFallback(nil).Project(200)
	assert.InDeltaSlice(t, []float64{210, 210, 210}, p.Values, 1e-9)
	assert.Zero(t, p.Accuracy)
	assert.Equal(t, domain.TrendUnknown, p.Trend)
	assert.Equal(t, SourceFallback, p.Source)

	p = NewFallback([]float64{0.1, 0.2}).Project(100)
	assert.InDeltaSlice(t, []float64{110, 120}, p.Values, 1e-9)

	var zero Fallback
	assert.Len(t, zero.Project(1).Values, 3)
}

func TestFallbackCopiesSteps(t *testing.T) {
	t.Parallel()

	steps := []float64{0.5}
	f := NewFallback(steps)
	steps[0] = 9
	assert.InDeltaSlice(t, []float64{15}, f.Project(10).Values, 1e-9)
}

func TestTrend(t *testing.T) {
	t.Parallel()

	assert.Equal(t, domain.TrendUnknown, Trend(nil))
	assert.Equal(t, domain.TrendUpward, Trend([]float64{1, 2, 3}))
	assert.Equal(t, domain.TrendStable, Trend([]float64{3, 2, 3}))
	assert.Equal(t, domain.TrendStable, Trend([]float64{5}))
}

func TestChainFirstSuccessWins(t *testing.T) {
	t.Parallel()

	failing := &stubForecaster{err: ErrUnavailable}
	ok := &stubForecaster{projection: domain.Projection{Values: []float64{1, 4}, Accuracy: 90, Source: SourceHTTP}}
	never := &stubForecaster{projection: domain.Projection{Values: []float64{7}}}

	chain := NewChain(NewFallback(nil), nil, failing, nil, ok, never)
	p, err := chain.Forecast(context.Background(), "GOA", 10)
	require.NoError(t, err)
	assert.Equal(t, SourceHTTP, p.Source)
	assert.Equal(t, domain.TrendUpward, p.Trend)
	assert.Equal(t, 1, failing.calls)
	assert.Zero(t, never.calls)
}

func TestChainFallsBackWithReasons(t *testing.T) {
	t.Parallel()

	empty := &stubForecaster{}
	down := &stubForecaster{err: errors.New("connection refused")}

	p, err := NewChain(NewFallback(nil), nil, empty, down).Forecast(context.Background(), "GOA", 100)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, p.Source)
	assert.Contains(t, p.FailureReason, "no projection")
	assert.Contains(t, p.FailureReason, "connection refused")
}

func TestChainWithoutForecasters(t *testing.T) {
	t.Parallel()

	p, err := NewChain(NewFallback(nil), nil).Forecast(context.Background(), "GOA", 100)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, p.Source)
	assert.Empty(t, p.FailureReason)
}

func TestChainStopsOnCancelledContext(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	stub := &stubForecaster{projection: domain.Projection{Values: []float64{1}}}
	_, err := NewChain(NewFallback(nil), nil, stub).Forecast(ctx, "GOA", 1)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, stub.calls)
}

func TestWriteModelReplacesAtomically(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, WriteModel(path, map[string]ModelEntry{"GOA": {Values: []float64{1}}}))
	require.NoError(t, WriteModel(path, map[string]ModelEntry{"GOA": {Values: []float64{2, 3}}}))

	entries, err := ReadModel(path)
	require.NoError(t, err)
	assert.Equal(t, []float64{2, 3}, entries["GOA"].Values)

	files, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, "model.json", files[0].Name())
}

func TestWriteModelFailureKeepsPrevious(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	path := filepath.Join(dir, "model.json")
	require.NoError(t, os.MkdirAll(filepath.Join(path, "occupied"), 0o755))

	require.Error(t, WriteModel(path, map[string]ModelEntry{"GOA": {Values: []float64{1}}}))
	_, err := NewModelFile(path).Forecast(context.Background(), "GOA", 10)
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestModelFile(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "model.json")
	require.NoError(t, WriteModel(path, map[string]ModelEntry{
		"odisha": {Values: []float64{10, 12, 15}, Accuracy: 91.5},
		"GOA":    {Values: []float64{4, 4, 4}, Accuracy: 80, Trend: domain.TrendStable},
	}))

	m := NewModelFile(path)

	p, err := m.Forecast(context.Background(), " Odisha", 1)
	require.NoError(t, err)
	assert.Equal(t, []float64{10, 12, 15}, p.Values)
	assert.Equal(t, 91.5, p.Accuracy)
	assert.Equal(t, domain.TrendUpward, p.Trend)
	assert.Equal(t, SourceModel, p.Source)

	p, err = m.Forecast(context.Background(), "KERALA", 100)
	require.NoError(t, err)
	assert.InDeltaSlice(t, []float64{110, 110, 110}, p.Values, 1e-9)
	assert.Equal(t, 85.0, p.Accuracy)
	assert.Equal(t, domain.TrendStable, p.Trend)
	assert.Equal(t, SourceModelDefault, p.Source)
}

func TestModelFileUnavailable(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	_, err := NewModelFile(filepath.Join(dir, "absent.json")).Forecast(context.Background(), "GOA", 1)
	require.ErrorIs(t, err, ErrUnavailable)

	corrupt := filepath.Join(dir, "corrupt.json")
	require.NoError(t, os.WriteFile(corrupt, []byte("not json"), 0o644))
	_, err = NewModelFile(corrupt).Forecast(context.Background(), "GOA", 1)
	require.ErrorIs(t, err, ErrUnavailable)

	hollow := filepath.Join(dir, "hollow.json")
	require.NoError(t, os.WriteFile(hollow, []byte(`{"GOA":{"values":[]}}`), 0o644))
	_, err = NewModelFile(hollow).Forecast(context.Background(), "GOA", 1)
	require.ErrorIs(t, err, ErrNoProjection)
}

func TestChainOverMissingModelUsesFallback(t *testing.T) {
	t.Parallel()

	model := NewModelFile(filepath.Join(t.TempDir(), "absent.json"))
	p, err := NewChain(NewFallback(nil), nil, model).Forecast(context.Background(), "GOA", 20)
	require.NoError(t, err)
	assert.Equal(t, SourceFallback, p.Source)
	assert.InDeltaSlice(t, []float64{21, 21, 21}, p.Values, 1e-9)
	assert.Contains(t, p.FailureReason, "not found")
}
