// Package source reads the per-category CSV batches into raw records.
package source

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/ports"
)

const defaultPattern = "*.csv"

var errMissingColumns = errors.New("missing key columns")

// Columns names the key columns every file must carry (after header normalization).
type Columns struct {
	Region   string
	District string
	Date     string
}

// Options configures where each category lives.
type Options struct {
	BaseDir string
	Dirs    map[domain.Category]string
	Pattern string
	Columns Columns
}

// Loader implements ports.RecordSource over a directory tree.
type Loader struct {
	opts   Options
	logger *slog.Logger
}

var _ ports.RecordSource = (*Loader)(nil)

// NewLoader fills defaults for pattern and key columns.
func NewLoader(opts Options, log *slog.Logger) *Loader {
	if opts.Pattern == "" {
		opts.Pattern = defaultPattern
	}
	if opts.Columns.Region == "" {
		opts.Columns.Region = "state"
	}
	if opts.Columns.District == "" {
		opts.Columns.District = "district"
	}
	if opts.Columns.Date == "" {
		opts.Columns.Date = "date"
	}
	opts.Columns.Region = normalizeHeader(opts.Columns.Region)
	opts.Columns.District = normalizeHeader(opts.Columns.District)
	opts.Columns.Date = normalizeHeader(opts.Columns.Date)
	return &Loader{opts: opts, logger: log}
}

// Dir resolves the directory holding a category's files.
func (l *Loader) Dir(category domain.Category) string {
	dir := l.opts.Dirs[category]
	if dir == "" {
		dir = string(category)
	}
	if filepath.IsAbs(dir) {
		return dir
	}
	return filepath.Join(l.opts.BaseDir, dir)
}

// Load concatenates every matching file of the category. An absent directory or
// one without matching files yields an empty batch, not an error.
func (l *Loader) Load(ctx context.Context, category domain.Category) (domain.Batch, error) {
	dir := l.Dir(category)
	batch := domain.Batch{Category: category, Dir: dir}

	info, err := os.Stat(dir)
	if errors.Is(err, fs.ErrNotExist) {
		l.warn("category directory absent", "category", category, "dir", dir)
		return batch, nil
	}
	if err != nil {
		return batch, fmt.Errorf("stat %s: %w", dir, err)
	}
	if !info.IsDir() {
		return batch, fmt.Errorf("%s is not a directory", dir)
	}

	matches, err := filepath.Glob(filepath.Join(dir, l.opts.Pattern))
	if err != nil {
		return batch, fmt.Errorf("glob %s: %w", l.opts.Pattern, err)
	}
	sort.Strings(matches)

	for _, path := range matches {
		if err := ctx.Err(); err != nil {
			return batch, err
		}
		if fi, statErr := os.Stat(path); statErr != nil || fi.IsDir() {
			continue
		}

		records, err := l.readFile(path)
		if errors.Is(err, errMissingColumns) {
			l.warn("skip file without key columns", "category", category, "file", path, "error", err)
			batch.SkippedFiles = append(batch.SkippedFiles, path)
			continue
		}
		if err != nil {
			return batch, fmt.Errorf("read %s: %w", path, err)
		}

		l.debug("file loaded", "category", category, "file", filepath.Base(path), "records", len(records))
		batch.Files = append(batch.Files, path)
		batch.Records = append(batch.Records, records...)
	}

	if batch.Missing() {
		l.warn("category has no files", "category", category, "dir", dir, "pattern", l.opts.Pattern)
	}
	return batch, nil
}

func (l *Loader) readFile(path string) ([]domain.RawRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	return ReadCSV(f, path, l.opts.Columns)
}

// ReadCSV parses one delimited file. Headers are lower-cased and trimmed so
// column-name drift between files does not matter; short rows read as empty.
func ReadCSV(r io.Reader, name string, cols Columns) ([]domain.RawRecord, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	for i := range header {
		header[i] = normalizeHeader(header[i])
	}

	if !hasColumn(header, cols.Region) || !hasColumn(header, cols.District) {
		return nil, fmt.Errorf("%w: want %q and %q, have %v", errMissingColumns, cols.Region, cols.District, header)
	}

	var records []domain.RawRecord
	for {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read row: %w", err)
		}

		fields := make(map[string]string, len(header))
		for i, column := range header {
			if column == "" {
				continue
			}
			if i < len(row) {
				fields[column] = strings.TrimSpace(row[i])
			} else {
				fields[column] = ""
			}
		}

		records = append(records, domain.RawRecord{
			Region:   fields[cols.Region],
			District: fields[cols.District],
			Date:     fields[cols.Date],
			Fields:   fields,
			File:     name,
		})
	}
	return records, nil
}

func normalizeHeader(h string) string {
	return strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
}

func hasColumn(header []string, column string) bool {
	for _, h := range header {
		if h == column {
			return true
		}
	}
	return false
}

func (l *Loader) debug(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Debug(msg, args...)
	}
}

func (l *Loader) warn(msg string, args ...interface{}) {
	if l.logger != nil {
		l.logger.Warn(msg, args...)
	}
}
