package models

import (
	"errors"
	"fmt"
	"math"
	"sort"
)

// Category is a downtime/activity category reported per time bucket.
type Category string

const (
	CategoryOperation         Category = "Operation"
	CategorySmallStop         Category = "SmallStop"
	CategoryFault             Category = "Fault"
	CategoryBreak             Category = "Break"
	CategoryMaintenance       Category = "Maintenance"
	CategoryEat               Category = "Eat"
	CategoryWaiting           Category = "Waiting"
	CategoryMachineryEdit     Category = "MachineryEdit"
	CategoryChangeProductCode Category = "ChangeProductCode"
	CategoryGlueCleaningPaper Category = "Glue_CleaningPaper"
	CategoryOthers            Category = "Others"
)

// DefaultCategories is the legend and stacking order used across the dashboard.
var DefaultCategories = []Category{
	CategoryOperation,
	CategorySmallStop,
	CategoryFault,
	CategoryBreak,
	CategoryMaintenance,
	CategoryEat,
	CategoryWaiting,
	CategoryMachineryEdit,
	CategoryChangeProductCode,
	CategoryGlueCleaningPaper,
	CategoryOthers,
}

// CategoryValue pairs a category with a raw magnitude (seconds or a count).
type CategoryValue struct {
	Category Category `json:"category"`
	Value    float64  `json:"value"`
}

// CategoryBucket holds the ordered category magnitudes of one day or month.
// Order is significant: it drives stacking order and the normalization tie-break.
type CategoryBucket struct {
	Label  string          `json:"label"`
	Values []CategoryValue `json:"values"`
}

// NewCategoryBucket builds a bucket from a category map. Known categories
// come first in DefaultCategories order (missing ones as 0), followed by any
// unknown categories sorted by name.
func NewCategoryBucket(label string, values map[string]float64) CategoryBucket {
	bucket := CategoryBucket{
		Label:  label,
		Values: make([]CategoryValue, 0, len(DefaultCategories)),
	}

	known := make(map[string]bool, len(DefaultCategories))
	for _, c := range DefaultCategories {
		known[string(c)] = true
		bucket.Values = append(bucket.Values, CategoryValue{Category: c, Value: values[string(c)]})
	}

	var extra []string
	for name := range values {
		if !known[name] {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)
	for _, name := range extra {
		bucket.Values = append(bucket.Values, CategoryValue{Category: Category(name), Value: values[name]})
	}

	return bucket
}

// Magnitudes returns the raw values in bucket order.
func (b CategoryBucket) Magnitudes() []float64 {
	out := make([]float64, len(b.Values))
	for i, v := range b.Values {
		out[i] = v.Value
	}
	return out
}

// Total returns the sum of all magnitudes.
func (b CategoryBucket) Total() float64 {
	var total float64
	for _, v := range b.Values {
		total += v.Value
	}
	return total
}

// Validate checks that all bucket fields are valid.
func (b *CategoryBucket) Validate() error {
	if b.Label == "" {
		return errors.New("bucket label must not be empty")
	}
	seen := make(map[Category]bool, len(b.Values))
	for _, v := range b.Values {
		if v.Category == "" {
			return errors.New("bucket category must not be empty")
		}
		if seen[v.Category] {
			return fmt.Errorf("duplicate category %s in bucket %s", v.Category, b.Label)
		}
		seen[v.Category] = true
		if v.Value < 0 || math.IsNaN(v.Value) || math.IsInf(v.Value, 0) {
			return fmt.Errorf("category %s in bucket %s must be a non-negative number", v.Category, b.Label)
		}
	}
	return nil
}

// SumBuckets adds the magnitudes of all buckets per category. Category order
// follows the first occurrence across the buckets.
func SumBuckets(label string, buckets []CategoryBucket) CategoryBucket {
	total := CategoryBucket{Label: label}
	index := make(map[Category]int)
	for _, b := range buckets {
		for _, v := range b.Values {
			i, ok := index[v.Category]
			if !ok {
				i = len(total.Values)
				index[v.Category] = i
				total.Values = append(total.Values, CategoryValue{Category: v.Category})
			}
			total.Values[i].Value += v.Value
		}
	}
	return total
}

// CategoryShare is an integer percentage of one category within a bucket.
type CategoryShare struct {
	Category Category `json:"category"`
	Percent  int      `json:"percent"`
}

// NormalizedBucket has the same label and category order as its source
// bucket, with integer percentages summing to 100 (or all 0 for an empty bucket).
type NormalizedBucket struct {
	Label  string          `json:"label"`
	Shares []CategoryShare `json:"shares"`
}

// Sum returns the sum of all percentages.
func (b NormalizedBucket) Sum() int {
	sum := 0
	for _, s := range b.Shares {
		sum += s.Percent
	}
	return sum
}

// Percent returns the share of a category, or 0 when it is absent.
func (b NormalizedBucket) Percent(c Category) int {
	for _, s := range b.Shares {
		if s.Category == c {
			return s.Percent
		}
	}
	return 0
}

// Validate checks the sum invariant.
func (b *NormalizedBucket) Validate() error {
	if b.Label == "" {
		return errors.New("bucket label must not be empty")
	}
	for _, s := range b.Shares {
		if s.Percent < 0 || s.Percent > 100 {
			return fmt.Errorf("share of %s must be between 0 and 100", s.Category)
		}
	}
	if sum := b.Sum(); sum != 0 && sum != 100 {
		return fmt.Errorf("shares of bucket %s sum to %d, want 0 or 100", b.Label, sum)
	}
	return nil
}
