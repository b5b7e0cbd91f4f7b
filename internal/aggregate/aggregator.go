// Package aggregate folds canonicalized observations into per-district
// metrics rows.
package aggregate

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"RegionMetrics/internal/domain"
)

// Mode selects how observations of the same key are combined.
type Mode string

const (
	// ModeSum adds every observation of a key.
	ModeSum Mode = "sum"
	// ModeMonthlyMean sums per month and averages across the months observed,
	// so a key with twelve months of data is not twelve times heavier.
	ModeMonthlyMean Mode = "monthly_mean"
)

// Settings controls the aggregation math.
type Settings struct {
	Mode         Mode    `yaml:"mode"`
	Epsilon      float64 `yaml:"epsilon"`
	RatioFloor   float64 `yaml:"ratioFloor"`
	RatioCeiling float64 `yaml:"ratioCeiling"`
}

// DefaultSettings returns the production constants.
func DefaultSettings() Settings {
	return Settings{
		Mode:         ModeSum,
		Epsilon:      1,
		RatioFloor:   0.12,
		RatioCeiling: 0.98,
	}
}

// Validate checks the settings describe a usable ratio interval.
func (s Settings) Validate() error {
	var errs []error
	if s.Mode != ModeSum && s.Mode != ModeMonthlyMean {
		errs = append(errs, fmt.Errorf("unknown aggregation mode %q", s.Mode))
	}
	if !(s.Epsilon > 0) {
		errs = append(errs, fmt.Errorf("epsilon must be positive, got %v", s.Epsilon))
	}
	if s.RatioFloor < 0 {
		errs = append(errs, fmt.Errorf("ratio floor must not be negative, got %v", s.RatioFloor))
	}
	if s.RatioCeiling > 1 {
		errs = append(errs, fmt.Errorf("ratio ceiling must not exceed 1, got %v", s.RatioCeiling))
	}
	if s.RatioFloor > s.RatioCeiling {
		errs = append(errs, fmt.Errorf("ratio floor %v exceeds ceiling %v", s.RatioFloor, s.RatioCeiling))
	}
	return errors.Join(errs...)
}

// Result carries the merged rows and how the merge was anchored.
type Result struct {
	Rows                []domain.MetricsRow
	AnchoredOnEnrolment bool
}

// Aggregator computes per-key aggregates and merges the categories.
type Aggregator struct {
	settings Settings
}

// New validates settings and builds an Aggregator.
func New(settings Settings) (*Aggregator, error) {
	if err := settings.Validate(); err != nil {
		return nil, err
	}
	return &Aggregator{settings: settings}, nil
}

// Settings returns the active settings.
func (a *Aggregator) Settings() Settings {
	return a.settings
}

// Aggregate folds each category and left-joins them on the enrolment keys.
// Without any enrolment observations the join anchors on the union of the
// other categories' keys instead.
func (a *Aggregator) Aggregate(observations map[domain.Category][]domain.Observation) Result {
	folded := make(map[domain.Category]map[domain.DistrictKey]domain.CategoryAggregate, len(observations))
	for _, category := range domain.Categories() {
		folded[category] = a.Fold(observations[category])
	}

	anchored := len(folded[domain.CategoryEnrolment]) > 0
	return Result{
		Rows:                a.Merge(folded, anchored),
		AnchoredOnEnrolment: anchored,
	}
}

// Fold groups observations by district key. Input order never matters: the
// observations are summed in a canonical order.
func (a *Aggregator) Fold(observations []domain.Observation) map[domain.DistrictKey]domain.CategoryAggregate {
	sorted := append([]domain.Observation(nil), observations...)
	sort.Slice(sorted, func(i, j int) bool {
		return lessObservation(sorted[i], sorted[j])
	})

	result := make(map[domain.DistrictKey]domain.CategoryAggregate)
	periods := make(map[domain.DistrictKey]map[string]struct{})
	for _, obs := range sorted {
		agg := result[obs.Key]
		agg.Key = obs.Key
		agg.Total += obs.Total
		agg.Youth += obs.Youth
		agg.Volume += obs.Volume
		result[obs.Key] = agg

		if a.settings.Mode == ModeMonthlyMean {
			if periods[obs.Key] == nil {
				periods[obs.Key] = map[string]struct{}{}
			}
			periods[obs.Key][obs.Period] = struct{}{}
		}
	}

	if a.settings.Mode == ModeMonthlyMean {
		for key, agg := range result {
			months := float64(len(periods[key]))
			agg.Total /= months
			agg.Youth /= months
			agg.Volume /= months
			result[key] = agg
		}
	}
	return result
}

// Merge builds one row per anchor key. Keys missing from a category read as zero.
func (a *Aggregator) Merge(folded map[domain.Category]map[domain.DistrictKey]domain.CategoryAggregate, anchorOnEnrolment bool) []domain.MetricsRow {
	enrolment := folded[domain.CategoryEnrolment]
	demographic := folded[domain.CategoryDemographic]
	biometric := folded[domain.CategoryBiometric]

	keys := make(map[domain.DistrictKey]struct{}, len(enrolment))
	for key := range enrolment {
		keys[key] = struct{}{}
	}
	if !anchorOnEnrolment {
		for key := range demographic {
			keys[key] = struct{}{}
		}
		for key := range biometric {
			keys[key] = struct{}{}
		}
	}

	ordered := make([]domain.DistrictKey, 0, len(keys))
	for key := range keys {
		ordered = append(ordered, key)
	}
	SortKeys(ordered)

	rows := make([]domain.MetricsRow, 0, len(ordered))
	for _, key := range ordered {
		e := enrolment[key]
		demo := demographic[key].Volume
		bio := biometric[key].Volume
		rows = append(rows, domain.MetricsRow{
			Region:             key.Region,
			District:           key.District,
			TotalEnrolment:     e.Total,
			YouthCount:         e.Youth,
			DemographicVolume:  demo,
			BiometricVolume:    bio,
			MobileUpdateVolume: demo + bio,
			Ratio:              a.Ratio(e.Youth, e.Total),
		})
	}
	return rows
}

// Ratio is youth / (total + epsilon) clamped to the configured interval.
func (a *Aggregator) Ratio(youth, total float64) float64 {
	return Clamp(youth/(total+a.settings.Epsilon), a.settings.RatioFloor, a.settings.RatioCeiling)
}

// Clamp bounds v to [lo, hi]; NaN collapses to lo.
func Clamp(v, lo, hi float64) float64 {
	if math.IsNaN(v) {
		return lo
	}
	return math.Max(lo, math.Min(hi, v))
}

// SortKeys orders keys by region, then district.
func SortKeys(keys []domain.DistrictKey) {
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Region != keys[j].Region {
			return keys[i].Region < keys[j].Region
		}
		return keys[i].District < keys[j].District
	})
}

func lessObservation(a, b domain.Observation) bool {
	switch {
	case a.Key.Region != b.Key.Region:
		return a.Key.Region < b.Key.Region
	case a.Key.District != b.Key.District:
		return a.Key.District < b.Key.District
	case a.Period != b.Period:
		return a.Period < b.Period
	case a.Total != b.Total:
		return a.Total < b.Total
	case a.Youth != b.Youth:
		return a.Youth < b.Youth
	default:
		return a.Volume < b.Volume
	}
}
