package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// ReportKind distinguishes the two derived report types.
type ReportKind string

const (
	ReportKindPareto   ReportKind = "pareto"
	ReportKindDowntime ReportKind = "downtime"
)

// ParseReportKind parses a report kind name.
func ParseReportKind(s string) (ReportKind, error) {
	switch ReportKind(strings.ToLower(s)) {
	case ReportKindPareto:
		return ReportKindPareto, nil
	case ReportKindDowntime:
		return ReportKindDowntime, nil
	default:
		return "", fmt.Errorf("unknown report kind %q", s)
	}
}

// LineScope returns the report scope for a whole line.
func LineScope(lineID string) string {
	return "line:" + lineID
}

// MachineScope returns the report scope for a single machine.
func MachineScope(machineID string) string {
	return "machine:" + machineID
}

// ParetoReport is a point-in-time top-N error ranking for a scope.
type ParetoReport struct {
	ID        string        `json:"id"`
	Scope     string        `json:"scope"`  // "line:<id>" or "machine:<id>"
	Period    string        `json:"period"` // day ("2006-01-02") or month ("2006-01")
	Metric    Metric        `json:"metric"`
	TopN      int           `json:"top_n"`
	Entries   []ParetoEntry `json:"entries"`
	CreatedAt time.Time     `json:"created_at"`
}

// Labels returns the ranked labels in order.
func (r *ParetoReport) Labels() []string {
	labels := make([]string, len(r.Entries))
	for i, e := range r.Entries {
		labels[i] = e.Label
	}
	return labels
}

// TopShare returns the cumulative percent of the first entry, or 0 when empty.
func (r *ParetoReport) TopShare() float64 {
	if len(r.Entries) == 0 {
		return 0
	}
	return r.Entries[0].CumulativePercent
}

// Validate checks that all report fields are valid.
func (r *ParetoReport) Validate() error {
	if r.ID == "" {
		return errors.New("report ID must not be empty")
	}
	if r.Scope == "" {
		return errors.New("report scope must not be empty")
	}
	if r.Period == "" {
		return errors.New("report period must not be empty")
	}
	if r.Metric != MetricCount && r.Metric != MetricRecovery {
		return fmt.Errorf("report metric %q is invalid", r.Metric)
	}
	if r.TopN < 1 {
		return errors.New("report top_n must be at least 1")
	}
	if len(r.Entries) > r.TopN {
		return fmt.Errorf("report has %d entries, more than top_n %d", len(r.Entries), r.TopN)
	}
	if err := ValidateParetoEntries(r.Entries); err != nil {
		return fmt.Errorf("invalid entries: %w", err)
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	return nil
}

// DowntimeReport holds the normalized category shares of every bucket of a
// period plus the normalized period totals.
type DowntimeReport struct {
	ID        string             `json:"id"`
	Scope     string             `json:"scope"`
	Period    string             `json:"period"`
	Buckets   []NormalizedBucket `json:"buckets"`
	Totals    NormalizedBucket   `json:"totals"`
	CreatedAt time.Time          `json:"created_at"`
}

// Validate checks that all report fields are valid.
func (r *DowntimeReport) Validate() error {
	if r.ID == "" {
		return errors.New("report ID must not be empty")
	}
	if r.Scope == "" {
		return errors.New("report scope must not be empty")
	}
	if r.Period == "" {
		return errors.New("report period must not be empty")
	}
	for i := range r.Buckets {
		if err := r.Buckets[i].Validate(); err != nil {
			return fmt.Errorf("invalid bucket: %w", err)
		}
	}
	if err := r.Totals.Validate(); err != nil {
		return fmt.Errorf("invalid totals: %w", err)
	}
	if r.CreatedAt.IsZero() {
		return errors.New("created at must be set")
	}
	return nil
}
