package canon

import (
	"fmt"

	"RegionMetrics/internal/domain"
)

// Reassigner moves districts whose governing region changed after the source
// data was coded.
type Reassigner struct {
	overrides map[string]string
}

// NewReassigner copies the override table (district -> region). District keys
// are cleaned the same way record districts are; targets must be in the universe.
func NewReassigner(universe Universe, overrides map[string]string) (*Reassigner, error) {
	table := make(map[string]string, len(overrides))
	for district, region := range overrides {
		if !universe.Contains(region) {
			return nil, fmt.Errorf("reassignment of %q targets unknown entity %q", district, region)
		}
		key := Clean(district)
		if key == "" {
			return nil, fmt.Errorf("reassignment district %q is empty after cleaning", district)
		}
		table[key] = region
	}
	return &Reassigner{overrides: table}, nil
}

// Reassign returns the key with its region overwritten when the district is on
// the override list. The second result reports whether the region changed.
func (r *Reassigner) Reassign(key domain.DistrictKey) (domain.DistrictKey, bool) {
	if r == nil {
		return key, false
	}
	region, ok := r.overrides[key.District]
	if !ok || region == key.Region {
		return key, false
	}
	key.Region = region
	return key, true
}

// Len returns the number of overrides.
func (r *Reassigner) Len() int {
	if r == nil {
		return 0
	}
	return len(r.overrides)
}
