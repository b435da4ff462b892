// Package models defines the core domain entities for the oeewatch application.
// These models represent production lines, machines, downtime category buckets,
// error statistics, shift plans, and the reports derived from them.
// All models include built-in validation to ensure data integrity throughout the application.
//
// Terminology (matching the factory API's own naming):
//   - Line: a production line (idline / ten_line).
//   - Machine: a single machine on a line (idmay / ten_may).
//   - Bucket: a fixed time window (day, month) with per-category magnitudes.
package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"time"
)

// AllMachines selects every machine on a line in API queries.
const AllMachines = "All"

// Line represents a production line as returned by the factory API.
type Line struct {
	ID   string `json:"idline"`
	Name string `json:"ten_line"`
}

// UnmarshalJSON accepts both numeric and string line IDs.
func (l *Line) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID   json.RawMessage `json:"idline"`
		Name string          `json:"ten_line"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.ID)
	if err != nil {
		return fmt.Errorf("line id: %w", err)
	}
	l.ID = id
	l.Name = raw.Name
	return nil
}

// Validate checks that all line fields are valid.
func (l *Line) Validate() error {
	if l.ID == "" {
		return errors.New("line ID must not be empty")
	}
	return nil
}

// Machine represents a machine that belongs to a production line.
// The API reports machines either as {idmay, ten_may} or {id, name};
// both shapes decode into the same struct.
type Machine struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	LineID string `json:"line_id,omitempty"`
}

// UnmarshalJSON decodes either machine shape the API produces.
func (m *Machine) UnmarshalJSON(data []byte) error {
	var raw struct {
		IDMay  json.RawMessage `json:"idmay"`
		ID     json.RawMessage `json:"id"`
		TenMay string          `json:"ten_may"`
		Name   string          `json:"name"`
		LineID json.RawMessage `json:"line_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}

	idField := raw.IDMay
	if len(idField) == 0 || string(idField) == "null" {
		idField = raw.ID
	}
	id, err := decodeID(idField)
	if err != nil {
		return fmt.Errorf("machine id: %w", err)
	}
	lineID, err := decodeID(raw.LineID)
	if err != nil {
		return fmt.Errorf("machine line id: %w", err)
	}

	m.ID = id
	m.Name = raw.TenMay
	if m.Name == "" {
		m.Name = raw.Name
	}
	m.LineID = lineID
	return nil
}

// Validate checks that all machine fields are valid.
func (m *Machine) Validate() error {
	if m.ID == "" {
		return errors.New("machine ID must not be empty")
	}
	if m.ID == AllMachines {
		return fmt.Errorf("machine ID %q is reserved", AllMachines)
	}
	return nil
}

// ErrorRecord is one row of the per-error-code statistics for a day or month.
type ErrorRecord struct {
	Code              string   `json:"ErrorCode"`
	MachineName       string   `json:"MachineName"`
	Message           string   `json:"ErrorName_Vie"`
	Count             float64  `json:"ErrorCount"`
	TotalErrorSeconds *float64 `json:"TotalErrorSeconds,omitempty"`
	RecoveryTime      string   `json:"RecoveryTime"`
}

// Seconds returns the total recovery time of the error in seconds.
// The numeric TotalErrorSeconds field wins; otherwise the "0h 13m 32s"
// text is parsed.
func (e *ErrorRecord) Seconds() float64 {
	if e.TotalErrorSeconds != nil {
		return *e.TotalErrorSeconds
	}
	return ParseRecoveryTime(e.RecoveryTime).Seconds()
}

// RankedItem converts the record into a rankable item for the given metric.
// Recovery values stay in seconds; callers scale them with a transform.
func (e *ErrorRecord) RankedItem(metric Metric) RankedItem {
	value := e.Count
	if metric == MetricRecovery {
		value = e.Seconds()
	}
	return RankedItem{Label: e.Code, Value: value}
}

// Validate checks that all error record fields are valid.
func (e *ErrorRecord) Validate() error {
	if e.Code == "" {
		return errors.New("error code must not be empty")
	}
	if e.Count < 0 {
		return errors.New("error count must not be negative")
	}
	if e.TotalErrorSeconds != nil && *e.TotalErrorSeconds < 0 {
		return errors.New("total error seconds must not be negative")
	}
	return nil
}

var recoveryTimePattern = regexp.MustCompile(`(?i)(\d+)\s*h\s*(\d*)m?\s*(\d*)s?`)

// ParseRecoveryTime parses "<h>h <m>m <s>s" text into a duration.
// Minutes and seconds are optional, but the first number after the hours is
// always minutes: "0h 32s" reads as 32 minutes, as the dashboard reads it.
// Empty or unparseable input is 0.
func ParseRecoveryTime(s string) time.Duration {
	if s == "" {
		return 0
	}
	m := recoveryTimePattern.FindStringSubmatch(s)
	if m == nil {
		return 0
	}
	h := atoiOrZero(m[1])
	mins := atoiOrZero(m[2])
	secs := atoiOrZero(m[3])
	return time.Duration(h)*time.Hour + time.Duration(mins)*time.Minute + time.Duration(secs)*time.Second
}

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0
	}
	return n
}

// decodeID turns a JSON string or number into a string ID.
func decodeID(raw json.RawMessage) (string, error) {
	if len(raw) == 0 || string(raw) == "null" {
		return "", nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err != nil {
		return "", err
	}
	return n.String(), nil
}
