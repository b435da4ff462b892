package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// PieSlice is one category of a machine day pie chart.
type PieSlice struct {
	Name  string  `json:"name"`
	Value float64 `json:"value"`
	Color string  `json:"color,omitempty"`
}

// DayDetail is one row of the machine day time table.
type DayDetail struct {
	Label     string  `json:"label"`
	Value     float64 `json:"value"` // hours
	Time      string  `json:"time"`  // "0h 13m 32s"
	Ratio     float64 `json:"ratio"`
	RatioText string  `json:"ratio_text,omitempty"`
	Color     string  `json:"color,omitempty"`
}

// ProductSummary counts the products of a machine day.
type ProductSummary struct {
	Total     float64 `json:"total"`
	OK        float64 `json:"ok"`
	NG        float64 `json:"ng"`
	Ratio     float64 `json:"ratio"`
	RatioText string  `json:"ratio_text,omitempty"`
}

// MachineDay is the single-day view of a machine: the category pie, the time
// table and the product counts.
type MachineDay struct {
	MachineID  string          `json:"machine_id"`
	Day        string          `json:"day"`
	PowerRun   string          `json:"power_run,omitempty"`
	TotalHours *float64        `json:"total_hours,omitempty"`
	Pie        []PieSlice      `json:"pie"`
	Details    []DayDetail     `json:"details"`
	Product    *ProductSummary `json:"product,omitempty"`
}

// UnmarshalJSON accepts both numeric and string machine IDs.
func (d *MachineDay) UnmarshalJSON(data []byte) error {
	type plain MachineDay
	var raw struct {
		plain
		MachineID json.RawMessage `json:"machine_id"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	id, err := decodeID(raw.MachineID)
	if err != nil {
		return fmt.Errorf("machine id: %w", err)
	}
	*d = MachineDay(raw.plain)
	d.MachineID = id
	return nil
}

// PieBucket converts the pie into a category bucket so it can be normalized
// like any day of a month view.
func (d *MachineDay) PieBucket() CategoryBucket {
	bucket := CategoryBucket{Label: d.Day, Values: make([]CategoryValue, len(d.Pie))}
	for i, s := range d.Pie {
		bucket.Values[i] = CategoryValue{Category: Category(s.Name), Value: s.Value}
	}
	return bucket
}

// Validate checks that all day fields are valid.
func (d *MachineDay) Validate() error {
	if d.Day == "" {
		return errors.New("day must not be empty")
	}
	for i, s := range d.Pie {
		if s.Name == "" {
			return fmt.Errorf("pie slice %d: name must not be empty", i)
		}
		if s.Value < 0 {
			return fmt.Errorf("pie slice %s: value must not be negative", s.Name)
		}
	}
	return nil
}

// RatioType selects one of the performance ratio series of the API.
type RatioType string

const (
	RatioAll      RatioType = "ALL"
	RatioOEE      RatioType = "OEE RATIO"
	RatioOK       RatioType = "OK PRODUCT RATIO"
	RatioOutput   RatioType = "OUTPUT RATIO"
	RatioActivity RatioType = "ACTIVITY RATIO"
)

// ParseRatioType parses a ratio series name. Short forms ("oee", "ok",
// "output", "activity", "all") are accepted case-insensitively.
func ParseRatioType(s string) (RatioType, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "", "ALL":
		return RatioAll, nil
	case "OEE", string(RatioOEE):
		return RatioOEE, nil
	case "OK", "OK PRODUCT", string(RatioOK):
		return RatioOK, nil
	case "OUTPUT", string(RatioOutput):
		return RatioOutput, nil
	case "ACTIVITY", string(RatioActivity):
		return RatioActivity, nil
	default:
		return "", fmt.Errorf("unknown ratio type %q: must be all, oee, ok, output or activity", s)
	}
}

// RatioPoint holds the performance ratios (percent) of one day or month.
type RatioPoint struct {
	Label         string  `json:"label"`
	OEE           float64 `json:"oee"`
	OKRatio       float64 `json:"ok_ratio"`
	OutputRatio   float64 `json:"output_ratio"`
	ActivityRatio float64 `json:"activity_ratio"`
}
