package aggregate

import (
	"math"
	"strconv"
	"strings"
	"time"

	"RegionMetrics/internal/domain"
)

// Schema lists which columns feed each numeric feature of a category.
type Schema struct {
	Total  []string `yaml:"total"`
	Youth  []string `yaml:"youth"`
	Volume []string `yaml:"volume"`
}

// DefaultSchemas mirrors the column layout of the published batches.
func DefaultSchemas() map[domain.Category]Schema {
	return map[domain.Category]Schema{
		domain.CategoryEnrolment: {
			Total: []string{"age_0_5", "age_5_17", "age_18_greater"},
			Youth: []string{"age_0_5", "age_5_17"},
		},
		domain.CategoryDemographic: {
			Volume: []string{"demo_age_5_17", "demo_age_17_"},
		},
		domain.CategoryBiometric: {
			Volume: []string{"bio_age_5_17", "bio_age_17_"},
		},
	}
}

// Derive sums the schema's columns out of one record. Absent columns count as zero.
func (s Schema) Derive(fields map[string]string) (total, youth, volume float64) {
	return sumColumns(fields, s.Total), sumColumns(fields, s.Youth), sumColumns(fields, s.Volume)
}

func sumColumns(fields map[string]string, columns []string) float64 {
	var sum float64
	for _, column := range columns {
		sum += ParseCount(fields[strings.ToLower(strings.TrimSpace(column))])
	}
	return sum
}

// ParseCount coerces a raw cell to a non-negative count. Anything that is not
// a finite number reads as zero so no missing-value marker reaches the sums.
func ParseCount(raw string) float64 {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

var dateLayouts = []string{
	"02-01-2006",
	"02/01/2006",
	"2-1-2006",
	"2/1/2006",
	"2006-01-02",
	"01-2006",
	"2006-01",
}

// MonthKey parses a day-first date and returns its YYYY-MM period, or "" when
// the value cannot be parsed.
func MonthKey(raw string) string {
	s := strings.TrimSpace(raw)
	if s == "" {
		return ""
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t.Format("2006-01")
		}
	}
	return ""
}
