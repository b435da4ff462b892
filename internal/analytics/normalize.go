// Package analytics implements the client-side aggregations of the dashboard:
// largest-remainder percentage normalization for stacked category bars and
// top-N Pareto ranking with a cumulative-percentage curve.
//
// Both operations are pure. A zero total is a valid "no data" result (all-zero
// percentages, or an empty ranking); malformed input returns ErrInvalidArgument.
package analytics

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/oeewatch/internal/models"
)

// ErrInvalidArgument reports a negative or non-finite value, or a non-positive top-N.
var ErrInvalidArgument = errors.New("invalid argument")

// Normalize converts non-negative magnitudes into integer percentages that
// sum to exactly 100, using the largest-remainder method. Leftover points go
// to the largest fractional parts, ties to the lower index. A zero total
// (including empty input) yields all zeros.
func Normalize(values []float64) ([]int, error) {
	for i, v := range values {
		if err := checkValue(v); err != nil {
			return nil, fmt.Errorf("%w: value at index %d %v", ErrInvalidArgument, i, err)
		}
	}

	scale := overflowScale(values)
	var total float64
	for _, v := range values {
		total += v / scale
	}

	percents := make([]int, len(values))
	if total == 0 {
		return percents, nil
	}

	fractions := make([]float64, len(values))
	assigned := 0
	for i, v := range values {
		share := v / scale * 100 / total
		floor := math.Floor(share)
		percents[i] = int(floor)
		fractions[i] = share - floor
		assigned += percents[i]
	}

	order := make([]int, len(values))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return fractions[order[a]] > fractions[order[b]]
	})

	for i := 0; i < 100-assigned; i++ {
		percents[order[i%len(order)]]++
	}

	return percents, nil
}

// NormalizeBucket normalizes a category bucket, keeping its label and category order.
func NormalizeBucket(bucket models.CategoryBucket) (models.NormalizedBucket, error) {
	percents, err := Normalize(bucket.Magnitudes())
	if err != nil {
		return models.NormalizedBucket{}, fmt.Errorf("bucket %s: %w", bucket.Label, err)
	}

	normalized := models.NormalizedBucket{
		Label:  bucket.Label,
		Shares: make([]models.CategoryShare, len(bucket.Values)),
	}
	for i, v := range bucket.Values {
		normalized.Shares[i] = models.CategoryShare{Category: v.Category, Percent: percents[i]}
	}
	return normalized, nil
}

// NormalizeBuckets normalizes every bucket in order.
func NormalizeBuckets(buckets []models.CategoryBucket) ([]models.NormalizedBucket, error) {
	out := make([]models.NormalizedBucket, 0, len(buckets))
	for _, b := range buckets {
		nb, err := NormalizeBucket(b)
		if err != nil {
			return nil, err
		}
		out = append(out, nb)
	}
	return out, nil
}

func checkValue(v float64) error {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return errors.New("is not a finite number")
	}
	if v < 0 {
		return fmt.Errorf("is negative (%g)", v)
	}
	return nil
}

// overflowScale returns the divisor that keeps a sum of the values times 100
// finite: the largest value when it is that large, 1 otherwise.
func overflowScale(values []float64) float64 {
	var largest float64
	for _, v := range values {
		largest = math.Max(largest, v)
	}
	if len(values) > 0 && largest > math.MaxFloat64/100/float64(len(values)) {
		return largest
	}
	return 1
}
