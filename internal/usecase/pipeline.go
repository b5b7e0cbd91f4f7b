package usecase

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"RegionMetrics/internal/aggregate"
	"RegionMetrics/internal/canon"
	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/metrics"
	"RegionMetrics/internal/ports"
	"RegionMetrics/internal/snapshot"
)

// PipelineDeps wires all driven adapters into the ingestion pipeline.
type PipelineDeps struct {
	Source        ports.RecordSource
	Canonicalizer *canon.Canonicalizer
	Reassigner    *canon.Reassigner
	Aggregator    *aggregate.Aggregator
	Schemas       map[domain.Category]aggregate.Schema
	Writer        ports.SnapshotWriter
	Mirror        ports.SnapshotMirror
	Notifier      ports.Notifier
	Metrics       *metrics.Metrics
	Logger        *slog.Logger
	Clock         func() time.Time
	NewRunID      func() string
}

// Pipeline implements the load, canonicalize, reassign, aggregate, filter,
// publish workflow.
type Pipeline struct {
	source     ports.RecordSource
	canon      *canon.Canonicalizer
	reassigner *canon.Reassigner
	aggregator *aggregate.Aggregator
	schemas    map[domain.Category]aggregate.Schema
	writer     ports.SnapshotWriter
	mirror     ports.SnapshotMirror
	notifier   ports.Notifier
	metrics    *metrics.Metrics
	logger     *slog.Logger
	clock      func() time.Time
	newRunID   func() string
}

// CategoryReport summarises what one category contributed to a run.
type CategoryReport struct {
	Category     domain.Category
	Dir          string
	Files        int
	SkippedFiles int
	Records      int
	Unresolved   int
	Missing      bool
}

// Report is the user-visible outcome of a run.
type Report struct {
	RunID               string
	Categories          []CategoryReport
	Rows                int
	Dropped             int
	DroppedRegions      []string
	Regions             []string
	MissingRegions      []string
	MissingCategories   []string
	Ambiguous           map[string][]string
	AnchoredOnEnrolment bool
	Mirrored            bool
	ManifestMissing     bool
	Manifest            domain.Manifest
	Duration            time.Duration
}

var errNotConfigured = errors.New("pipeline not configured")

// NewPipeline constructs the orchestration component.
func NewPipeline(deps PipelineDeps) *Pipeline {
	p := &Pipeline{
		source:     deps.Source,
		canon:      deps.Canonicalizer,
		reassigner: deps.Reassigner,
		aggregator: deps.Aggregator,
		schemas:    deps.Schemas,
		writer:     deps.Writer,
		mirror:     deps.Mirror,
		notifier:   deps.Notifier,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		clock:      deps.Clock,
		newRunID:   deps.NewRunID,
	}
	if p.schemas == nil {
		p.schemas = aggregate.DefaultSchemas()
	}
	if p.logger == nil {
		p.logger = slog.New(slog.DiscardHandler)
	}
	if p.clock == nil {
		p.clock = time.Now
	}
	if p.newRunID == nil {
		p.newRunID = uuid.NewString
	}
	return p
}

// Run executes one full pass and publishes a snapshot. Any error means the
// previously published snapshot is still in place.
func (p *Pipeline) Run(ctx context.Context) (report Report, err error) {
	start := p.clock()
	defer func() { p.metrics.ObserveRun(start, err) }()

	if p.source == nil || p.canon == nil || p.aggregator == nil || p.writer == nil {
		return Report{}, errNotConfigured
	}

	report.RunID = p.newRunID()
	log := p.logger.With("run_id", report.RunID)

	batches, err := p.load(ctx)
	if err != nil {
		return report, err
	}

	observations, tracker := p.normalize(batches)
	for _, batch := range batches {
		cr := CategoryReport{
			Category:     batch.Category,
			Dir:          batch.Dir,
			Files:        len(batch.Files),
			SkippedFiles: len(batch.SkippedFiles),
			Records:      len(batch.Records),
			Unresolved:   tracker.unresolved[batch.Category],
			Missing:      batch.Missing(),
		}
		report.Categories = append(report.Categories, cr)
		if cr.Missing {
			report.MissingCategories = append(report.MissingCategories, string(batch.Category))
			log.Warn("category missing, its metrics are zero for every district", "category", batch.Category, "dir", batch.Dir)
		}
		p.metrics.SetFiles(string(batch.Category), cr.Files)
		p.metrics.AddDropped("unresolved", cr.Unresolved)
	}
	tracker.logFindings(log)
	report.Ambiguous = tracker.ambiguous
	p.metrics.AddAmbiguities(len(tracker.ambiguous))

	result := p.aggregator.Aggregate(observations)
	report.AnchoredOnEnrolment = result.AnchoredOnEnrolment
	if !result.AnchoredOnEnrolment && len(result.Rows) > 0 {
		log.Warn("no enrolment records, rows anchored on update categories")
	}

	universe := p.canon.Universe()
	filtered := aggregate.Filter(result.Rows, universe)
	report.Rows = len(filtered.Rows)
	report.Dropped = filtered.Dropped
	report.DroppedRegions = filtered.DroppedRegions
	report.Regions = aggregate.Regions(filtered.Rows)
	report.MissingRegions = aggregate.MissingRegions(filtered.Rows, universe)
	p.metrics.AddDropped("filtered", filtered.Dropped)
	if filtered.Dropped > 0 {
		log.Warn("rows outside the canonical universe dropped", "rows", filtered.Dropped, "regions", filtered.DroppedRegions)
	}

	manifest := domain.Manifest{
		RunID:             report.RunID,
		GeneratedAt:       p.clock().UTC(),
		Files:             make(map[string]int, len(report.Categories)),
		MissingCategories: report.MissingCategories,
		Regions:           report.Regions,
		MissingRegions:    report.MissingRegions,
	}
	for _, cr := range report.Categories {
		manifest.Files[string(cr.Category)] = cr.Files
	}

	manifest, err = p.writer.Write(ctx, filtered.Rows, manifest)
	switch {
	case errors.Is(err, snapshot.ErrManifestNotPublished):
		log.Warn("snapshot published without manifest", "error", err)
		report.ManifestMissing = true
		err = nil
	case err != nil:
		return report, fmt.Errorf("write snapshot: %w", err)
	}
	report.Manifest = manifest

	if p.mirror != nil {
		if mErr := p.mirror.Replace(ctx, report.RunID, filtered.Rows); mErr != nil {
			log.Warn("snapshot mirror failed", "error", mErr)
		} else {
			report.Mirrored = true
		}
	}

	report.Duration = p.clock().Sub(start)
	p.metrics.Published(manifest.GeneratedAt, report.Rows, len(report.Regions), len(report.MissingRegions))

	for _, cr := range report.Categories {
		log.Info("category loaded",
			"category", cr.Category,
			"files", cr.Files,
			"skipped_files", cr.SkippedFiles,
			"records", cr.Records,
			"unresolved", cr.Unresolved)
	}
	log.Info("snapshot published",
		"rows", report.Rows,
		"entities", len(report.Regions),
		"missing_entities", len(report.MissingRegions),
		"sha256", manifest.SHA256,
		"duration", report.Duration)
	if len(report.MissingRegions) > 0 {
		log.Info("canonical entities absent from snapshot", "regions", report.MissingRegions)
	}

	if p.notifier != nil {
		if nErr := p.notifier.PublishReport(ctx, BuildReportMessage(report)); nErr != nil {
			log.Warn("run report not delivered", "error", nErr)
		}
	}

	return report, nil
}

// load reads every category concurrently. Each worker only fills its own slot.
func (p *Pipeline) load(ctx context.Context) ([]domain.Batch, error) {
	categories := domain.Categories()
	batches := make([]domain.Batch, len(categories))

	g, gctx := errgroup.WithContext(ctx)
	for i, category := range categories {
		g.Go(func() error {
			batch, err := p.source.Load(gctx, category)
			if err != nil {
				return fmt.Errorf("load %s: %w", category, err)
			}
			batch.Category = category
			batches[i] = batch
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return batches, nil
}

// findings collects per-run canonicalization diagnostics.
type findings struct {
	regions     map[string]canon.Resolution
	districts   map[string]canon.Resolution
	ambiguous   map[string][]string
	passThrough map[string]int
	rejected    int
	reassigned  int
	unresolved  map[domain.Category]int
}

func newFindings() *findings {
	return &findings{
		regions:     map[string]canon.Resolution{},
		districts:   map[string]canon.Resolution{},
		ambiguous:   map[string][]string{},
		passThrough: map[string]int{},
		unresolved:  map[domain.Category]int{},
	}
}

func (p *Pipeline) normalize(batches []domain.Batch) (map[domain.Category][]domain.Observation, *findings) {
	f := newFindings()
	universe := p.canon.Universe()
	observations := make(map[domain.Category][]domain.Observation, len(batches))

	for _, batch := range batches {
		schema := p.schemas[batch.Category]
		obs := make([]domain.Observation, 0, len(batch.Records))
		for _, rec := range batch.Records {
			region := resolveOnce(p.canon, f.regions, rec.Region, canon.RoleRegion)
			district := resolveOnce(p.canon, f.districts, rec.District, canon.RoleDistrict)

			if region.Ambiguous() {
				clean := canon.Clean(rec.Region)
				if _, seen := f.ambiguous[clean]; !seen {
					f.ambiguous[clean] = region.Candidates
				}
			}
			if region.Method == canon.MethodPassThrough {
				f.passThrough[region.Name]++
			}
			if !region.Resolved() || !district.Resolved() {
				f.rejected++
			}

			key, moved := p.reassigner.Reassign(domain.DistrictKey{Region: region.Name, District: district.Name})
			if moved {
				f.reassigned++
			}
			if !universe.Contains(key.Region) || key.District == canon.Unresolved {
				f.unresolved[batch.Category]++
			}

			total, youth, volume := schema.Derive(rec.Fields)
			obs = append(obs, domain.Observation{
				Key:    key,
				Period: aggregate.MonthKey(rec.Date),
				Total:  total,
				Youth:  youth,
				Volume: volume,
			})
		}
		observations[batch.Category] = obs
	}
	return observations, f
}

func resolveOnce(c *canon.Canonicalizer, memo map[string]canon.Resolution, raw string, role canon.Role) canon.Resolution {
	if res, ok := memo[raw]; ok {
		return res
	}
	res := c.Canonicalize(raw, role)
	memo[raw] = res
	return res
}

func (f *findings) logFindings(log *slog.Logger) {
	for _, text := range sortedKeys(f.ambiguous) {
		log.Warn("ambiguous region name, first candidate used", "text", text, "chosen", f.ambiguous[text][0], "candidates", f.ambiguous[text])
	}
	for _, text := range sortedKeys(f.passThrough) {
		log.Warn("region name not canonical", "text", text, "records", f.passThrough[text])
	}
	if f.rejected > 0 {
		log.Info("records with unusable names", "records", f.rejected)
	}
	if f.reassigned > 0 {
		log.Debug("records reassigned to a new region", "records", f.reassigned)
	}
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// BuildReportMessage renders a run report for chat delivery.
func BuildReportMessage(report Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Region metrics run %s\n", report.RunID)
	for _, cr := range report.Categories {
		fmt.Fprintf(&b, "- %s: %d files, %d records", cr.Category, cr.Files, cr.Records)
		if cr.Missing {
			b.WriteString(" (MISSING)")
		}
		b.WriteString("\n")
	}
	fmt.Fprintf(&b, "Rows: %d\n", report.Rows)
	fmt.Fprintf(&b, "Entities: %d present, %d missing\n", len(report.Regions), len(report.MissingRegions))
	if len(report.MissingRegions) > 0 {
		fmt.Fprintf(&b, "Missing: %s\n", strings.Join(report.MissingRegions, ", "))
	}
	if report.Dropped > 0 {
		fmt.Fprintf(&b, "Dropped rows: %d\n", report.Dropped)
	}
	return b.String()
}
