// Package query answers read-only questions over the published snapshot.
package query

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"

	"RegionMetrics/internal/domain"
	"RegionMetrics/internal/forecast"
	"RegionMetrics/internal/metrics"
	"RegionMetrics/internal/ports"
)

var (
	// ErrRegionNotFound means the snapshot has no rows for the region.
	ErrRegionNotFound = errors.New("region not found")
	// ErrDistrictNotFound means the region exists but the district does not.
	ErrDistrictNotFound = errors.New("district not found")
)

// Status levels shared by every pillar.
const (
	StatusCritical = "CRITICAL"
	StatusWarning  = "WARNING"
	StatusSafe     = "SAFE"
)

// Rollup is a population-weighted summary of one region.
type Rollup struct {
	Region     string  `json:"region"`
	Ratio      float64 `json:"ratio"`
	Volume     float64 `json:"mobile_update_volume"`
	Population float64 `json:"total_enrolment"`
	Districts  int     `json:"districts"`
}

// HeatCell is one region on the heatmap.
type HeatCell struct {
	Ratio  float64 `json:"ratio"`
	Status string  `json:"status"`
}

// Pillar is a scored status card.
type Pillar struct {
	Status string  `json:"status"`
	Value  float64 `json:"value"`
}

// Efficiency carries the forecast card.
type Efficiency struct {
	Status                string  `json:"status"`
	BiometricTrafficTrend []int64 `json:"biometric_traffic_trend"`
	Accuracy              float64 `json:"accuracy"`
	Trend                 string  `json:"trend"`
	Source                string  `json:"source"`
	FailureReason         string  `json:"failure_reason,omitempty"`
}

// Cards groups the three audit pillars.
type Cards struct {
	Inclusivity Pillar     `json:"inclusivity"`
	Security    Pillar     `json:"security"`
	Efficiency  Efficiency `json:"efficiency"`
}

// Audit is the drilldown answer for a region or one of its districts.
type Audit struct {
	Location string `json:"location"`
	Cards    Cards  `json:"cards"`
}

// Service reads the snapshot fresh on every call; caching is the source's concern.
type Service struct {
	source     ports.SnapshotSource
	forecaster ports.Forecaster
	metrics    *metrics.Metrics
	logger     *slog.Logger
}

// NewService builds a query service. A nil forecaster means fallback only.
func NewService(source ports.SnapshotSource, forecaster ports.Forecaster, m *metrics.Metrics, log *slog.Logger) *Service {
	if log == nil {
		log = slog.New(slog.DiscardHandler)
	}
	if forecaster == nil {
		forecaster = forecast.NewChain(forecast.NewFallback(nil), log)
	}
	return &Service{source: source, forecaster: forecaster, metrics: m, logger: log}
}

// Normalize trims and upper-cases user input the way snapshot keys are stored.
func Normalize(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// Districts lists the sorted district names of every region.
func (s *Service) Districts() (map[string][]string, error) {
	rows, err := s.source.Load()
	if err != nil {
		return nil, err
	}
	out := make(map[string][]string)
	for _, row := range rows {
		out[row.Region] = append(out[row.Region], row.District)
	}
	for region := range out {
		sort.Strings(out[region])
	}
	return out, nil
}

// District returns the single row for (region, district).
func (s *Service) District(region, district string) (domain.MetricsRow, error) {
	rows, err := s.regionRows(Normalize(region))
	if err != nil {
		return domain.MetricsRow{}, err
	}
	district = Normalize(district)
	for _, row := range rows {
		if row.District == district {
			return row, nil
		}
	}
	return domain.MetricsRow{}, fmt.Errorf("%w: %s/%s", ErrDistrictNotFound, Normalize(region), district)
}

// Rollup summarises every district of region.
func (s *Service) Rollup(region string) (Rollup, error) {
	region = Normalize(region)
	rows, err := s.regionRows(region)
	if err != nil {
		return Rollup{}, err
	}
	return RollupOf(region, rows), nil
}

// Rollups summarises every region, sorted by name.
func (s *Service) Rollups() ([]Rollup, error) {
	rows, err := s.source.Load()
	if err != nil {
		return nil, err
	}
	byRegion := make(map[string][]domain.MetricsRow)
	for _, row := range rows {
		byRegion[row.Region] = append(byRegion[row.Region], row)
	}
	out := make([]Rollup, 0, len(byRegion))
	for region, regionRows := range byRegion {
		out = append(out, RollupOf(region, regionRows))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Region < out[j].Region })
	return out, nil
}

// Projections forecasts every region from its truncated rollup volume.
func (s *Service) Projections(ctx context.Context) (map[string]domain.Projection, error) {
	rollups, err := s.Rollups()
	if err != nil {
		return nil, err
	}
	out := make(map[string]domain.Projection, len(rollups))
	for _, rollup := range rollups {
		projection, err := s.forecaster.Forecast(ctx, rollup.Region, math.Trunc(rollup.Volume))
		if err != nil {
			return nil, fmt.Errorf("forecast %s: %w", rollup.Region, err)
		}
		if projection.Source == forecast.SourceFallback {
			s.metrics.IncForecastFallback()
		}
		out[rollup.Region] = projection
	}
	return out, nil
}

// Heatmap returns the rollup ratio and inclusivity status of every region.
func (s *Service) Heatmap() (map[string]HeatCell, error) {
	rows, err := s.source.Load()
	if err != nil {
		return nil, err
	}
	byRegion := make(map[string][]domain.MetricsRow)
	for _, row := range rows {
		byRegion[row.Region] = append(byRegion[row.Region], row)
	}
	out := make(map[string]HeatCell, len(byRegion))
	for region, regionRows := range byRegion {
		ratio := RollupOf(region, regionRows).Ratio
		out[region] = HeatCell{Ratio: round(ratio, 2), Status: InclusivityStatus(ratio)}
	}
	return out, nil
}

// Audit drills into a district, or the whole region when district is empty,
// and scores it against the forecast for the region.
func (s *Service) Audit(ctx context.Context, region, district string) (Audit, error) {
	region = Normalize(region)
	district = Normalize(district)

	var (
		location string
		ratio    float64
		volume   float64
	)
	if district == "" {
		rollup, err := s.Rollup(region)
		if err != nil {
			return Audit{}, err
		}
		location, ratio, volume = region, rollup.Ratio, math.Trunc(rollup.Volume)
	} else {
		row, err := s.District(region, district)
		if err != nil {
			return Audit{}, err
		}
		location, ratio, volume = district, row.Ratio, math.Trunc(row.MobileUpdateVolume)
	}

	projection, err := s.forecaster.Forecast(ctx, region, volume)
	if err != nil {
		return Audit{}, fmt.Errorf("forecast %s: %w", region, err)
	}
	if projection.Source == forecast.SourceFallback {
		s.metrics.IncForecastFallback()
	}

	return Audit{Location: location, Cards: Score(volume, ratio, projection)}, nil
}

func (s *Service) regionRows(region string) ([]domain.MetricsRow, error) {
	rows, err := s.source.Load()
	if err != nil {
		return nil, err
	}
	var out []domain.MetricsRow
	for _, row := range rows {
		if row.Region == region {
			out = append(out, row)
		}
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("%w: %s", ErrRegionNotFound, region)
	}
	return out, nil
}

// RollupOf weights each district ratio by its enrolment. A region without
// enrolment has ratio 0.
func RollupOf(region string, rows []domain.MetricsRow) Rollup {
	r := Rollup{Region: region, Districts: len(rows)}
	var weighted float64
	for _, row := range rows {
		r.Population += row.TotalEnrolment
		r.Volume += row.MobileUpdateVolume
		weighted += row.Ratio * row.TotalEnrolment
	}
	if r.Population > 0 {
		r.Ratio = weighted / r.Population
	}
	return r
}

// Score turns a ratio, a volume and its projection into the pillar cards.
func Score(volume, ratio float64, projection domain.Projection) Cards {
	values := make([]int64, len(projection.Values))
	for i, v := range projection.Values {
		values[i] = int64(math.Max(0, math.Trunc(v)))
	}
	velocity := Velocity(volume, values)

	return Cards{
		Inclusivity: Pillar{Status: InclusivityStatus(ratio), Value: round(ratio, 4)},
		Security:    Pillar{Status: VelocityStatus(velocity), Value: round(velocity*100, 2)},
		Efficiency: Efficiency{
			Status:                StatusSafe,
			BiometricTrafficTrend: values,
			Accuracy:              projection.Accuracy,
			Trend:                 projection.Trend,
			Source:                projection.Source,
			FailureReason:         projection.FailureReason,
		},
	}
}

// Velocity is volume / (volume + mean forecast), 0 when both are zero.
func Velocity(volume float64, projected []int64) float64 {
	var mean float64
	if len(projected) > 0 {
		var sum float64
		for _, v := range projected {
			sum += float64(v)
		}
		mean = sum / float64(len(projected))
	}
	total := volume + mean
	if total <= 0 {
		return 0
	}
	return volume / total
}

// InclusivityStatus grades a youth ratio.
func InclusivityStatus(ratio float64) string {
	switch {
	case ratio < 0.5:
		return StatusCritical
	case ratio < 0.7:
		return StatusWarning
	default:
		return StatusSafe
	}
}

// VelocityStatus grades an update velocity.
func VelocityStatus(velocity float64) string {
	switch {
	case velocity < 0.75:
		return StatusCritical
	case velocity < 0.85:
		return StatusWarning
	default:
		return StatusSafe
	}
}

func round(v float64, places int) float64 {
	p := math.Pow(10, float64(places))
	return math.Round(v*p) / p
}
