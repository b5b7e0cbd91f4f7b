package domain

import "time"

// Category names one logical source stream.
type Category string

const (
	CategoryEnrolment   Category = "enrolment"
	CategoryDemographic Category = "demographic"
	CategoryBiometric   Category = "biometric"
)

// Categories returns every category in pipeline order.
func Categories() []Category {
	return []Category{CategoryEnrolment, CategoryDemographic, CategoryBiometric}
}

// RawRecord is one row from a source file with lower-cased, trimmed headers.
type RawRecord struct {
	Region   string
	District string
	Date     string
	Fields   map[string]string
	File     string
}

// Batch is everything one category directory produced.
type Batch struct {
	Category     Category
	Dir          string
	Files        []string
	SkippedFiles []string
	Records      []RawRecord
}

// Missing reports whether the category contributed no files at all.
func (b Batch) Missing() bool {
	return len(b.Files) == 0
}

// DistrictKey identifies one output row.
type DistrictKey struct {
	Region   string
	District string
}

// Observation is a canonicalized record reduced to its numeric features.
type Observation struct {
	Key    DistrictKey
	Period string
	Total  float64
	Youth  float64
	Volume float64
}

// CategoryAggregate holds per-key totals for a single category.
type CategoryAggregate struct {
	Key    DistrictKey
	Total  float64
	Youth  float64
	Volume float64
}

// MetricsRow is one published row of the snapshot.
type MetricsRow struct {
	Region             string  `json:"region"`
	District           string  `json:"district"`
	TotalEnrolment     float64 `json:"total_enrolment"`
	YouthCount         float64 `json:"youth_count"`
	DemographicVolume  float64 `json:"demographic_volume"`
	BiometricVolume    float64 `json:"biometric_volume"`
	MobileUpdateVolume float64 `json:"mobile_update_volume"`
	Ratio              float64 `json:"ratio"`
}

// Key returns the row's district key.
func (r MetricsRow) Key() DistrictKey {
	return DistrictKey{Region: r.Region, District: r.District}
}

// Manifest describes a published snapshot.
type Manifest struct {
	RunID             string         `json:"run_id"`
	GeneratedAt       time.Time      `json:"generated_at"`
	SchemaVersion     int            `json:"schema_version"`
	RowCount          int            `json:"row_count"`
	SHA256            string         `json:"sha256"`
	Files             map[string]int `json:"files"`
	MissingCategories []string       `json:"missing_categories,omitempty"`
	Regions           []string       `json:"regions"`
	MissingRegions    []string       `json:"missing_regions,omitempty"`
}

// Projection is what the forecasting collaborator returns for one region.
type Projection struct {
	Values        []float64 `json:"values"`
	Accuracy      float64   `json:"accuracy"`
	Trend         string    `json:"trend"`
	Source        string    `json:"source"`
	FailureReason string    `json:"failure_reason,omitempty"`
}

// Trend labels.
const (
	TrendUpward  = "UPWARD"
	TrendStable  = "STABLE"
	TrendUnknown = "UNKNOWN"
)
