package models

import (
	"errors"
	"fmt"
	"strings"
)

// Metric selects which value of an error record is ranked.
type Metric string

const (
	// MetricCount ranks errors by occurrence count.
	MetricCount Metric = "count"
	// MetricRecovery ranks errors by recovery time, reported in hours.
	MetricRecovery Metric = "recovery"
)

// ParseMetric parses a metric name (case-insensitive). "time" is accepted
// as an alias for recovery, matching the API's sort_by values.
func ParseMetric(s string) (Metric, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "count":
		return MetricCount, nil
	case "recovery", "time":
		return MetricRecovery, nil
	default:
		return "", fmt.Errorf("unknown metric %q: must be count or recovery", s)
	}
}

// SortBy returns the API sort_by value for the metric.
func (m Metric) SortBy() string {
	if m == MetricRecovery {
		return "time"
	}
	return "count"
}

// RankedItem is a labeled metric value (an error code, a line or a machine).
type RankedItem struct {
	Label string  `json:"label"`
	Value float64 `json:"value"`
}

// ParetoEntry is one row of a Pareto ranking. Value is rounded to 2 decimals
// and CumulativePercent to 1 decimal.
type ParetoEntry struct {
	Label             string  `json:"label"`
	Value             float64 `json:"value"`
	CumulativePercent float64 `json:"cumulative_percent"`
}

// ValidateParetoEntries checks ordering invariants of a ranking.
func ValidateParetoEntries(entries []ParetoEntry) error {
	for i, e := range entries {
		if e.Label == "" {
			return fmt.Errorf("entry %d: label must not be empty", i)
		}
		if e.Value < 0 {
			return fmt.Errorf("entry %d: value must not be negative", i)
		}
		if e.CumulativePercent < 0 || e.CumulativePercent > 100 {
			return fmt.Errorf("entry %d: cumulative percent must be between 0 and 100", i)
		}
		if i == 0 {
			continue
		}
		prev := entries[i-1]
		if e.Value > prev.Value {
			return fmt.Errorf("entry %d: values must be in descending order", i)
		}
		if e.CumulativePercent < prev.CumulativePercent {
			return errors.New("cumulative percent must be non-decreasing")
		}
	}
	return nil
}
