package aggregate

import (
	"math"
	"math/rand"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"RegionMetrics/internal/canon"
	"RegionMetrics/internal/domain"
)

func newAggregator(t *testing.T, mutate func(*Settings)) *Aggregator {
	t.Helper()
	settings := DefaultSettings()
	if mutate != nil {
		mutate(&settings)
	}
	a, err := New(settings)
	require.NoError(t, err)
	return a
}

func key(region, district string) domain.DistrictKey {
	return domain.DistrictKey{Region: region, District: district}
}

func TestAggregateLeftJoinsOnEnrolment(t *testing.T) {
	t.Parallel()

	a := newAggregator(t, nil)
	result := a.Aggregate(map[domain.Category][]domain.Observation{
		domain.CategoryEnrolment: {
			{Key: key("ODISHA", "PURI"), Total: 90, Youth: 45},
			{Key: key("ODISHA", "PURI"), Total: 9, Youth: 4},
			{Key: key("ODISHA", "KHORDHA"), Total: 50, Youth: 10},
		},
		domain.CategoryDemographic: {
			{Key: key("ODISHA", "PURI"), Volume: 7},
			{Key: key("GOA", "NORTH GOA"), Volume: 100},
		},
		domain.CategoryBiometric: {
			{Key: key("ODISHA", "PURI"), Volume: 3},
		},
	})

	require.True(t, result.AnchoredOnEnrolment)
	want := []domain.MetricsRow{
		{Region: "ODISHA", District: "KHORDHA", TotalEnrolment: 50, YouthCount: 10, Ratio: 10.0 / 51},
		{Region: "ODISHA", District: "PURI", TotalEnrolment: 99, YouthCount: 49, DemographicVolume: 7, BiometricVolume: 3, MobileUpdateVolume: 10, Ratio: 49.0 / 100},
	}
	if diff := cmp.Diff(want, result.Rows); diff != "" {
		t.Fatalf("rows mismatch (-want +got):\n%s", diff)
	}
}

func TestAggregateDigitalDesertKeepsZeroVolume(t *testing.T) {
	t.Parallel()

	a := newAggregator(t, nil)
	result := a.Aggregate(map[domain.Category][]domain.Observation{
		domain.CategoryEnrolment: {{Key: key("BIHAR", "ARARIA"), Total: 200, Youth: 120}},
	})

	require.Len(t, result.Rows, 1)
	assert.Zero(t, result.Rows[0].MobileUpdateVolume)
	assert.Zero(t, result.Rows[0].DemographicVolume)
	assert.Zero(t, result.Rows[0].BiometricVolume)
}

func TestAggregateWithoutEnrolmentAnchorsOnUnion(t *testing.T) {
	t.Parallel()

	a := newAggregator(t, nil)
	result := a.Aggregate(map[domain.Category][]domain.Observation{
		domain.CategoryDemographic: {{Key: key("GOA", "NORTH GOA"), Volume: 5}},
		domain.CategoryBiometric:   {{Key: key("GOA", "SOUTH GOA"), Volume: 8}},
	})

	require.False(t, result.AnchoredOnEnrolment)
	require.Len(t, result.Rows, 2)
	for _, row := range result.Rows {
		assert.Zero(t, row.TotalEnrolment)
		assert.False(t, math.IsNaN(row.Ratio))
		assert.Equal(t, 0.12, row.Ratio)
	}
	assert.Equal(t, 5.0, result.Rows[0].MobileUpdateVolume)
	assert.Equal(t, 8.0, result.Rows[1].MobileUpdateVolume)
}

func TestRatioStaysWithinBounds(t *testing.T) {
	t.Parallel()

	a := newAggregator(t, nil)
	cases := []struct{ youth, total float64 }{
		{youth: 500, total: 10},
		{youth: 0, total: 0},
		{youth: 3, total: 0},
		{youth: 50, total: 100},
		{youth: 1e12, total: 1},
		{youth: math.Inf(1), total: 1},
	}
	for _, tc := range cases {
		r := a.Ratio(tc.youth, tc.total)
		assert.GreaterOrEqual(t, r, 0.0)
		assert.LessOrEqual(t, r, 0.98)
		assert.GreaterOrEqual(t, r, 0.12)
	}

	wide := newAggregator(t, func(s *Settings) {
		s.RatioFloor = 0
		s.RatioCeiling = 1
	})
	assert.Equal(t, 1.0, wide.Ratio(500, 10))
	assert.Equal(t, 0.0, wide.Ratio(0, 0))
}

func TestClamp(t *testing.T) {
	t.Parallel()

	assert.Equal(t, 0.2, Clamp(math.NaN(), 0.2, 0.8))
	assert.Equal(t, 0.8, Clamp(3, 0.2, 0.8))
	assert.Equal(t, 0.2, Clamp(-1, 0.2, 0.8))
	assert.Equal(t, 0.5, Clamp(0.5, 0.2, 0.8))
}

func TestFoldIsOrderIndependent(t *testing.T) {
	t.Parallel()

	a := newAggregator(t, nil)
	rng := rand.New(rand.NewSource(7))

	var obs []domain.Observation
	districts := []string{"PURI", "KHORDHA", "CUTTACK"}
	for i := 0; i < 300; i++ {
		obs = append(obs, domain.Observation{
			Key:    key("ODISHA", districts[i%len(districts)]),
			Period: "2025-0" + string(rune('1'+i%9)),
			Total:  rng.Float64() * 1000,
			Youth:  rng.Float64() * 300,
			Volume: rng.Float64() * 50,
		})
	}

	input := map[domain.Category][]domain.Observation{
		domain.CategoryEnrolment:   obs,
		domain.CategoryDemographic: obs,
	}
	want := a.Aggregate(input).Rows

	for round := 0; round < 5; round++ {
		shuffled := append([]domain.Observation(nil), obs...)
		rng.Shuffle(len(shuffled), func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })
		got := a.Aggregate(map[domain.Category][]domain.Observation{
			domain.CategoryEnrolment:   shuffled,
			domain.CategoryDemographic: shuffled,
		}).Rows
		if diff := cmp.Diff(want, got); diff != "" {
			t.Fatalf("round %d: permutation changed rows (-want +got):\n%s", round, diff)
		}
	}
}

func TestFoldMonthlyMean(t *testing.T) {
	t.Parallel()

	a := newAggregator(t, func(s *Settings) { s.Mode = ModeMonthlyMean })
	folded := a.Fold([]domain.Observation{
		{Key: key("GOA", "NORTH GOA"), Period: "2025-01", Total: 10, Youth: 4},
		{Key: key("GOA", "NORTH GOA"), Period: "2025-01", Total: 20, Youth: 6},
		{Key: key("GOA", "NORTH GOA"), Period: "2025-02", Total: 30, Youth: 2},
		{Key: key("GOA", "SOUTH GOA"), Period: "", Total: 7},
	})

	north := folded[key("GOA", "NORTH GOA")]
	assert.Equal(t, 30.0, north.Total)
	assert.Equal(t, 6.0, north.Youth)
	assert.Equal(t, 7.0, folded[key("GOA", "SOUTH GOA")].Total)
}

func TestFoldSumMergesDuplicates(t *testing.T) {
	t.Parallel()

	a := newAggregator(t, nil)
	folded := a.Fold([]domain.Observation{
		{Key: key("GOA", "NORTH GOA"), Total: 1},
		{Key: key("GOA", "NORTH GOA"), Total: 2},
		{Key: key("GOA", "NORTH GOA"), Total: 3},
	})
	require.Len(t, folded, 1)
	assert.Equal(t, 6.0, folded[key("GOA", "NORTH GOA")].Total)
}

func TestSettingsValidate(t *testing.T) {
	t.Parallel()

	require.NoError(t, DefaultSettings().Validate())

	bad := []Settings{
		{Mode: "median", Epsilon: 1, RatioFloor: 0, RatioCeiling: 1},
		{Mode: ModeSum, Epsilon: 0, RatioFloor: 0, RatioCeiling: 1},
		{Mode: ModeSum, Epsilon: 1, RatioFloor: -0.1, RatioCeiling: 1},
		{Mode: ModeSum, Epsilon: 1, RatioFloor: 0, RatioCeiling: 1.5},
		{Mode: ModeSum, Epsilon: 1, RatioFloor: 0.9, RatioCeiling: 0.1},
	}
	for _, s := range bad {
		assert.Error(t, s.Validate(), "%+v", s)
		_, err := New(s)
		assert.Error(t, err)
	}
}

func TestFilterKeepsOnlyCanonicalRegions(t *testing.T) {
	t.Parallel()

	universe := canon.NewUniverse([]string{"ODISHA", "GOA"})
	rows := []domain.MetricsRow{
		{Region: "ODISHA", District: "PURI"},
		{Region: "ATLANTIS", District: "CAPITAL"},
		{Region: canon.Unresolved, District: "PURI"},
		{Region: "GOA", District: canon.Unresolved},
		{Region: "GOA", District: "NORTH GOA"},
	}

	result := Filter(rows, universe)
	assert.Equal(t, 3, result.Dropped)
	assert.Equal(t, []string{"<unresolved>", "ATLANTIS", "GOA"}, result.DroppedRegions)
	require.Len(t, result.Rows, 2)
	for _, row := range result.Rows {
		assert.True(t, universe.Contains(row.Region))
	}

	assert.Equal(t, []string{"GOA", "ODISHA"}, Regions(result.Rows))
	assert.Empty(t, MissingRegions(result.Rows, universe))
	assert.Equal(t, []string{"GOA"}, MissingRegions(result.Rows[:1], universe))
}
