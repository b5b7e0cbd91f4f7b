package forecast

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/ports"
	"RegionMetrics/internal/snapshot"
)

// Defaults applied when the model file exists but has no entry for a region.
const (
	modelDefaultGrowth   = 0.10
	modelDefaultAccuracy = 85.0
	modelDefaultHorizon  = 3
)

// ModelEntry is one region's stored projection.
type ModelEntry struct {
	Values   []float64 `json:"values"`
	Accuracy float64   `json:"accuracy"`
	Trend    string    `json:"trend"`
}

// ModelFile serves projections from a JSON document keyed by canonical
// region. The file is re-read on every call so a retrained model is picked up.
type ModelFile struct {
	path string
}

var _ ports.Forecaster = (*ModelFile)(nil)

// NewModelFile reads projections from path.
func NewModelFile(path string) *ModelFile {
	return &ModelFile{path: path}
}

// Forecast looks the region up in the model file.
func (m *ModelFile) Forecast(ctx context.Context, region string, volume float64) (domain.Projection, error) {
	if err := ctx.Err(); err != nil {
		return domain.Projection{}, err
	}

	entries, err := ReadModel(m.path)
	if err != nil {
		return domain.Projection{}, err
	}

	entry, ok := entries[strings.ToUpper(strings.TrimSpace(region))]
	if !ok {
		values := make([]float64, modelDefaultHorizon)
		for i := range values {
			values[i] = volume * (1 + modelDefaultGrowth)
		}
		return domain.Projection{
			Values:   values,
			Accuracy: modelDefaultAccuracy,
			Trend:    domain.TrendStable,
			Source:   SourceModelDefault,
		}, nil
	}
	if len(entry.Values) == 0 {
		return domain.Projection{}, fmt.Errorf("%w: empty entry for %s", ErrNoProjection, region)
	}

	trend := entry.Trend
	if trend == "" {
		trend = Trend(entry.Values)
	}
	return domain.Projection{
		Values:   append([]float64(nil), entry.Values...),
		Accuracy: entry.Accuracy,
		Trend:    trend,
		Source:   SourceModel,
	}, nil
}

// ReadModel decodes a model file. Missing or corrupt files wrap ErrUnavailable.
func ReadModel(path string) (map[string]ModelEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: model file %s not found", ErrUnavailable, path)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: read model: %v", ErrUnavailable, err)
	}

	raw := make(map[string]ModelEntry)
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: decode model: %v", ErrUnavailable, err)
	}

	entries := make(map[string]ModelEntry, len(raw))
	for region, entry := range raw {
		entries[strings.ToUpper(strings.TrimSpace(region))] = entry
	}
	return entries, nil
}

// WriteModel atomically replaces path with entries as an indented JSON document.
func WriteModel(path string, entries map[string]ModelEntry) error {
	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		return fmt.Errorf("encode model: %w", err)
	}
	if err := snapshot.WriteFileAtomic(path, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("write model: %w", err)
	}
	return nil
}
