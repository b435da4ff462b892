package analytics

import (
	"fmt"
	"math"
	"sort"

	"github.com/rewired-gh/oeewatch/internal/models"
)

// Transform scales a metric value before ranking, e.g. seconds to hours.
type Transform func(float64) float64

// SecondsToHours converts a duration in seconds to hours.
func SecondsToHours(seconds float64) float64 {
	return seconds / 3600
}

// TransformFor returns the transform used for a metric: recovery time is
// ranked in hours, counts are ranked as-is.
func TransformFor(metric models.Metric) Transform {
	if metric == models.MetricRecovery {
		return SecondsToHours
	}
	return nil
}

// Rank selects the topN items by transformed value and computes the running
// cumulative percentage against the retained subset's total only.
//
// Sorting is stable, so equal values keep their input order. Zero-valued
// items inside the cutoff are kept. When the retained total is 0 the result
// is empty (non-nil) and the error is nil.
func Rank(items []models.RankedItem, topN int, transform Transform) ([]models.ParetoEntry, error) {
	if topN < 1 {
		return nil, fmt.Errorf("%w: topN must be positive, got %d", ErrInvalidArgument, topN)
	}
	if transform == nil {
		transform = func(v float64) float64 { return v }
	}

	ranked := make([]models.RankedItem, len(items))
	for i, item := range items {
		if err := checkValue(item.Value); err != nil {
			return nil, fmt.Errorf("%w: item %d (%s) %v", ErrInvalidArgument, i, item.Label, err)
		}
		v := transform(item.Value)
		if err := checkValue(v); err != nil {
			return nil, fmt.Errorf("%w: transformed item %d (%s) %v", ErrInvalidArgument, i, item.Label, err)
		}
		ranked[i] = models.RankedItem{Label: item.Label, Value: v}
	}

	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Value > ranked[j].Value
	})
	if len(ranked) > topN {
		ranked = ranked[:topN]
	}

	values := make([]float64, len(ranked))
	for i, item := range ranked {
		values[i] = item.Value
	}
	scale := overflowScale(values)

	var subtotal float64
	for _, v := range values {
		subtotal += v / scale
	}
	if subtotal == 0 {
		return []models.ParetoEntry{}, nil
	}

	entries := make([]models.ParetoEntry, 0, len(ranked))
	var cumulative float64
	for _, item := range ranked {
		cumulative += item.Value / scale / subtotal * 100
		entries = append(entries, models.ParetoEntry{
			Label:             item.Label,
			Value:             roundTo(item.Value, 2),
			CumulativePercent: math.Min(100, roundTo(cumulative, 1)),
		})
	}
	return entries, nil
}

// RankErrors ranks error records by the given metric.
func RankErrors(records []models.ErrorRecord, metric models.Metric, topN int) ([]models.ParetoEntry, error) {
	items := make([]models.RankedItem, len(records))
	for i := range records {
		items[i] = records[i].RankedItem(metric)
	}
	return Rank(items, topN, TransformFor(metric))
}

func roundTo(v float64, places int) float64 {
	// Beyond 2^53 a float64 has no fractional digits left to round.
	if math.Abs(v) >= 1<<53 {
		return v
	}
	scale := math.Pow(10, float64(places))
	return math.Round(v*scale) / scale
}
