package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/ports"
)

// ErrNoSnapshot is returned while nothing has been published yet.
var ErrNoSnapshot = errors.New("snapshot not published")

// Reader loads the published snapshot. Parsed rows are cached per
// (path, mtime, size) so a replaced snapshot is always picked up.
type Reader struct {
	path  string
	cache *cache.Cache
}

var _ ports.SnapshotSource = (*Reader)(nil)

// NewReader caches parsed snapshots for ttl; ttl <= 0 disables caching.
func NewReader(path string, ttl time.Duration) *Reader {
	r := &Reader{path: path}
	if ttl > 0 {
		r.cache = cache.New(ttl, 2*ttl)
	}
	return r
}

// Path returns the snapshot location.
func (r *Reader) Path() string {
	return r.path
}

// Load returns a copy of the published rows.
func (r *Reader) Load() ([]domain.MetricsRow, error) {
	info, err := os.Stat(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("stat snapshot: %w", err)
	}

	key := fmt.Sprintf("%s:%d:%d", r.path, info.ModTime().UnixNano(), info.Size())
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return copyRows(cached.([]domain.MetricsRow)), nil
		}
	}

	data, err := os.ReadFile(r.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, ErrNoSnapshot
	}
	if err != nil {
		return nil, fmt.Errorf("read snapshot: %w", err)
	}

	rows, err := Decode(data)
	if err != nil {
		return nil, err
	}

	if r.cache != nil {
		r.cache.Set(key, rows, cache.DefaultExpiration)
	}
	return copyRows(rows), nil
}

// Flush drops every cached snapshot.
func (r *Reader) Flush() {
	if r.cache != nil {
		r.cache.Flush()
	}
}

func (r *Reader) cached() int {
	if r.cache == nil {
		return 0
	}
	return r.cache.ItemCount()
}

// Decode parses a snapshot document, normalizing the key fields.
func Decode(data []byte) ([]domain.MetricsRow, error) {
	var rows []domain.MetricsRow
	if err := json.Unmarshal(data, &rows); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	for i := range rows {
		rows[i].Region = strings.ToUpper(strings.TrimSpace(rows[i].Region))
		rows[i].District = strings.ToUpper(strings.TrimSpace(rows[i].District))
	}
	return rows, nil
}

// ReadManifest loads the manifest published next to a snapshot.
func ReadManifest(snapshotPath string) (domain.Manifest, error) {
	var manifest domain.Manifest
	data, err := os.ReadFile(ManifestPath(snapshotPath))
	if errors.Is(err, fs.ErrNotExist) {
		return manifest, ErrNoSnapshot
	}
	if err != nil {
		return manifest, fmt.Errorf("read manifest: %w", err)
	}
	if err := json.Unmarshal(data, &manifest); err != nil {
		return manifest, fmt.Errorf("decode manifest: %w", err)
	}
	return manifest, nil
}

func copyRows(rows []domain.MetricsRow) []domain.MetricsRow {
	return append([]domain.MetricsRow(nil), rows...)
}
