// Package snapshot publishes and reads the metrics snapshot document.
package snapshot

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"

	"RegionMetrics/internal/aggregate"
	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/ports"
)

// SchemaVersion is bumped whenever the row layout changes.
const SchemaVersion = 1

// ErrManifestNotPublished means the snapshot itself was replaced but its
// manifest could not be written.
var ErrManifestNotPublished = errors.New("manifest not published")

// Writer atomically replaces the snapshot file and its manifest.
type Writer struct {
	path     string
	manifest bool
	logger   *slog.Logger
}

var _ ports.SnapshotWriter = (*Writer)(nil)

// NewWriter targets path; withManifest also publishes <path>.manifest.json.
func NewWriter(path string, withManifest bool, log *slog.Logger) *Writer {
	return &Writer{path: path, manifest: withManifest, logger: log}
}

// Path returns the snapshot destination.
func (w *Writer) Path() string {
	return w.path
}

// Write encodes rows and swaps them in. Either the new snapshot is fully in
// place afterwards or the previous one is untouched. A failure after the swap
// wraps ErrManifestNotPublished.
func (w *Writer) Write(ctx context.Context, rows []domain.MetricsRow, manifest domain.Manifest) (domain.Manifest, error) {
	if err := ctx.Err(); err != nil {
		return manifest, err
	}

	data, err := Encode(rows)
	if err != nil {
		return manifest, fmt.Errorf("encode snapshot: %w", err)
	}

	sum := sha256.Sum256(data)
	manifest.SchemaVersion = SchemaVersion
	manifest.RowCount = len(rows)
	manifest.SHA256 = hex.EncodeToString(sum[:])

	if err := WriteFileAtomic(w.path, data, 0o644); err != nil {
		return manifest, fmt.Errorf("publish snapshot: %w", err)
	}
	if w.logger != nil {
		w.logger.Debug("snapshot replaced", "path", w.path, "rows", len(rows), "bytes", len(data))
	}

	if !w.manifest {
		return manifest, nil
	}

	meta, err := json.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return manifest, fmt.Errorf("%w: encode: %w", ErrManifestNotPublished, err)
	}
	if err := WriteFileAtomic(ManifestPath(w.path), append(meta, '\n'), 0o644); err != nil {
		return manifest, fmt.Errorf("%w: %w", ErrManifestNotPublished, err)
	}
	return manifest, nil
}

// ManifestPath returns where the manifest of a snapshot lives.
func ManifestPath(snapshotPath string) string {
	return snapshotPath + ".manifest.json"
}

// Encode renders rows as an indented JSON array ordered by (region, district).
// Counts are rounded here and nowhere earlier.
func Encode(rows []domain.MetricsRow) ([]byte, error) {
	out := make([]domain.MetricsRow, len(rows))
	for i, row := range rows {
		row.TotalEnrolment = math.Round(row.TotalEnrolment)
		row.YouthCount = math.Round(row.YouthCount)
		row.DemographicVolume = math.Round(row.DemographicVolume)
		row.BiometricVolume = math.Round(row.BiometricVolume)
		row.MobileUpdateVolume = math.Round(row.MobileUpdateVolume)
		out[i] = row
	}

	keys := make([]domain.DistrictKey, len(out))
	byKey := make(map[domain.DistrictKey]domain.MetricsRow, len(out))
	for i, row := range out {
		keys[i] = row.Key()
		byKey[row.Key()] = row
	}
	if len(byKey) != len(out) {
		return nil, fmt.Errorf("duplicate district keys in %d rows", len(out))
	}
	aggregate.SortKeys(keys)
	for i, k := range keys {
		out[i] = byKey[k]
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// WriteFileAtomic replaces path with data through a synced temp file and a
// rename, creating the parent directory when needed.
func WriteFileAtomic(path string, data []byte, perm os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create dir: %w", err)
	}
	if err := renameio.WriteFile(path, data, perm); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
