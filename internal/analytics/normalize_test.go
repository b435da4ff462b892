package analytics

import (
	"math"
	"math/rand"
	"testing"

	"github.com/rewired-gh/oeewatch/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sum(values []int) int {
	total := 0
	for _, v := range values {
		total += v
	}
	return total
}

func TestNormalize_EqualThirds(t *testing.T) {
	got, err := Normalize([]float64{1, 1, 1})
	require.NoError(t, err)
	assert.Equal(t, []int{34, 33, 33}, got)
}

func TestNormalize_SingleNonZero(t *testing.T) {
	got, err := Normalize([]float64{0, 0, 10, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 100, 0}, got)
}

func TestNormalize_AllZero(t *testing.T) {
	got, err := Normalize([]float64{0, 0, 0, 0, 0})
	require.NoError(t, err)
	assert.Equal(t, []int{0, 0, 0, 0, 0}, got)
}

func TestNormalize_Empty(t *testing.T) {
	got, err := Normalize([]float64{})
	require.NoError(t, err)
	assert.Empty(t, got)
	assert.NotNil(t, got)

	got, err = Normalize(nil)
	require.NoError(t, err)
	assert.Len(t, got, 0)
}

func TestNormalize_LargestRemainderWins(t *testing.T) {
	// Shares: 41.6, 33.3, 25.0 -> floors 41, 33, 25 = 99; the .6 gets the point.
	got, err := Normalize([]float64{41.6, 33.3, 25.1})
	require.NoError(t, err)
	assert.Equal(t, 100, sum(got))
	assert.Equal(t, []int{42, 33, 25}, got)
}

func TestNormalize_TieBreakByIndex(t *testing.T) {
	// Six equal values: 16.66 each, floors sum to 96, four extra points go to
	// the first four indices.
	got, err := Normalize([]float64{5, 5, 5, 5, 5, 5})
	require.NoError(t, err)
	assert.Equal(t, []int{17, 17, 17, 17, 16, 16}, got)
}

func TestNormalize_InvalidArgument(t *testing.T) {
	_, err := Normalize([]float64{-1, 5})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Normalize([]float64{1, math.NaN()})
	assert.ErrorIs(t, err, ErrInvalidArgument)

	_, err = Normalize([]float64{math.Inf(1)})
	assert.ErrorIs(t, err, ErrInvalidArgument)
}

func TestNormalize_Properties(t *testing.T) {
	rng := rand.New(rand.NewSource(42))

	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(15)
		values := make([]float64, n)
		var total float64
		for i := range values {
			switch rng.Intn(4) {
			case 0:
				values[i] = 0
			case 1:
				values[i] = float64(rng.Intn(100))
			default:
				values[i] = rng.Float64() * 86400
			}
			total += values[i]
		}

		got, err := Normalize(values)
		require.NoError(t, err)
		require.Len(t, got, n)

		if total == 0 {
			assert.Equal(t, 0, sum(got), "values=%v", values)
			continue
		}
		assert.Equal(t, 100, sum(got), "values=%v", values)
		for i, v := range values {
			exact := v * 100 / total
			assert.LessOrEqual(t, math.Abs(float64(got[i])-exact), 1.0, "index %d of %v", i, values)
			if v == 0 {
				assert.Equal(t, 0, got[i], "zero value must stay at 0: %v", values)
			}
		}
	}
}

func TestNormalize_Deterministic(t *testing.T) {
	values := []float64{3, 3, 3, 7, 0, 11}
	first, err := Normalize(values)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := Normalize(values)
		require.NoError(t, err)
		assert.Equal(t, first, again)
	}
}

func TestNormalizeBucket(t *testing.T) {
	bucket := models.NewCategoryBucket("2025-03-01", map[string]float64{
		"Operation": 1,
		"Fault":     1,
		"Break":     1,
	})

	got, err := NormalizeBucket(bucket)
	require.NoError(t, err)
	assert.Equal(t, "2025-03-01", got.Label)
	require.Len(t, got.Shares, len(models.DefaultCategories))
	assert.Equal(t, 100, got.Sum())
	// Operation comes first in category order, so it receives the extra point.
	assert.Equal(t, 34, got.Percent(models.CategoryOperation))
	assert.Equal(t, 33, got.Percent(models.CategoryFault))
	assert.Equal(t, 33, got.Percent(models.CategoryBreak))
	assert.Equal(t, 0, got.Percent(models.CategoryEat))
	for i, c := range models.DefaultCategories {
		assert.Equal(t, c, got.Shares[i].Category)
	}
}

func TestNormalizeBuckets_PropagatesError(t *testing.T) {
	buckets := []models.CategoryBucket{
		{Label: "01", Values: []models.CategoryValue{{Category: models.CategoryOperation, Value: 1}}},
		{Label: "02", Values: []models.CategoryValue{{Category: models.CategoryOperation, Value: -5}}},
	}
	_, err := NormalizeBuckets(buckets)
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrInvalidArgument)
	assert.Contains(t, err.Error(), "bucket 02")
}

func TestNormalize_HugeFiniteValues(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   []int
	}{
		{name: "sum overflows", values: []float64{1e307, 1e307}, want: []int{50, 50}},
		{name: "share overflows", values: []float64{5e306, 1}, want: []int{100, 0}},
		{name: "max float thirds", values: []float64{math.MaxFloat64, math.MaxFloat64, math.MaxFloat64}, want: []int{34, 33, 33}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.values)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
