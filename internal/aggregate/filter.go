package aggregate

import (
	"sort"

	"RegionMetrics/internal/canon"
	"RegionMetrics/internal/domain"
)

// FilterResult is the outcome of restricting rows to the canonical universe.
type FilterResult struct {
	Rows           []domain.MetricsRow
	Dropped        int
	DroppedRegions []string
}

// Filter keeps rows whose region is a canonical entity and whose district
// resolved. Everything else, including pass-through free text, is dropped.
func Filter(rows []domain.MetricsRow, universe canon.Universe) FilterResult {
	kept := make([]domain.MetricsRow, 0, len(rows))
	dropped := map[string]struct{}{}
	for _, row := range rows {
		if universe.Contains(row.Region) && row.District != canon.Unresolved && row.District != "" {
			kept = append(kept, row)
			continue
		}
		dropped[row.Region] = struct{}{}
	}

	regions := make([]string, 0, len(dropped))
	for region := range dropped {
		regions = append(regions, region)
	}
	sort.Strings(regions)

	return FilterResult{
		Rows:           kept,
		Dropped:        len(rows) - len(kept),
		DroppedRegions: regions,
	}
}

// Regions returns the sorted distinct regions present in rows.
func Regions(rows []domain.MetricsRow) []string {
	seen := map[string]struct{}{}
	for _, row := range rows {
		seen[row.Region] = struct{}{}
	}
	regions := make([]string, 0, len(seen))
	for region := range seen {
		regions = append(regions, region)
	}
	sort.Strings(regions)
	return regions
}

// MissingRegions lists universe members with no row, in universe order.
func MissingRegions(rows []domain.MetricsRow, universe canon.Universe) []string {
	present := map[string]struct{}{}
	for _, row := range rows {
		present[row.Region] = struct{}{}
	}
	var missing []string
	for _, name := range universe.Names() {
		if _, ok := present[name]; !ok {
			missing = append(missing, name)
		}
	}
	return missing
}
