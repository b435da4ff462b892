package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"
)

// LocalTimeLayout is the wall-clock format of shift times on the wire, as
// produced by a datetime-local input.
const LocalTimeLayout = "2006-01-02T15:04"

// localTimeLayouts are tried in order when decoding a shift time.
var localTimeLayouts = []string{LocalTimeLayout, "2006-01-02T15:04:05", time.RFC3339}

// LocalTime is a shift boundary without a zone. It encodes back in the
// layout it was decoded from; "" and null decode to the zero time.
type LocalTime struct {
	time.Time
	layout string
}

// NewLocalTime returns a LocalTime that encodes as LocalTimeLayout.
func NewLocalTime(t time.Time) *LocalTime {
	return &LocalTime{Time: t, layout: LocalTimeLayout}
}

// UnmarshalJSON parses "2006-01-02T15:04", with optional seconds, or RFC3339.
func (t *LocalTime) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*t = LocalTime{}
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("shift time: %w", err)
	}
	if s == "" {
		*t = LocalTime{}
		return nil
	}
	for _, layout := range localTimeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			*t = LocalTime{Time: parsed, layout: layout}
			return nil
		}
	}
	return fmt.Errorf("shift time %q: expected %s", s, LocalTimeLayout)
}

// MarshalJSON encodes the time in its original layout, or null when zero.
func (t LocalTime) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte("null"), nil
	}
	layout := t.layout
	if layout == "" {
		layout = LocalTimeLayout
	}
	return json.Marshal(t.Format(layout))
}

// ShiftPlan is one row of a day plan: two shifts, the planned running hours,
// the machine cycle time in seconds, and the resulting product target.
type ShiftPlan struct {
	ID            string     `json:"id"`
	Line          string     `json:"line"`
	Machine       string     `json:"machine"`
	Day           string     `json:"day"`
	StartShift1   *LocalTime `json:"startShift1,omitempty"`
	EndShift1     *LocalTime `json:"endShift1,omitempty"`
	StartShift2   *LocalTime `json:"startShift2,omitempty"`
	EndShift2     *LocalTime `json:"endShift2,omitempty"`
	DayPlan       *float64   `json:"dayPlan"`
	CycleTime     *float64   `json:"cycleTime"`
	TargetProduct *int       `json:"targetProduct"`
}

// RecalculateDayPlan sets DayPlan to the total hours of both shifts,
// rounded to 2 decimals. A shift missing either bound counts as 0.
func (p *ShiftPlan) RecalculateDayPlan() {
	total := shiftHours(p.StartShift1, p.EndShift1) + shiftHours(p.StartShift2, p.EndShift2)
	rounded := math.Round(total*100) / 100
	p.DayPlan = &rounded
}

// RecalculateTarget sets TargetProduct = round(DayPlan * 3600 / CycleTime).
// It is cleared when DayPlan is unset or CycleTime is not positive.
func (p *ShiftPlan) RecalculateTarget() {
	if p.DayPlan == nil || p.CycleTime == nil || *p.CycleTime <= 0 {
		p.TargetProduct = nil
		return
	}
	target := int(math.Round(*p.DayPlan * 3600 / *p.CycleTime))
	p.TargetProduct = &target
}

// Recalculate refreshes DayPlan from the shift times and then the target.
func (p *ShiftPlan) Recalculate() {
	p.RecalculateDayPlan()
	p.RecalculateTarget()
}

// Validate checks that all plan fields are valid.
func (p *ShiftPlan) Validate() error {
	if p.Line == "" {
		return errors.New("plan line must not be empty")
	}
	if p.Day == "" {
		return errors.New("plan day must not be empty")
	}
	if p.StartShift1 != nil && p.EndShift1 != nil && p.EndShift1.Before(p.StartShift1.Time) {
		return errors.New("shift 1 must not end before it starts")
	}
	if p.StartShift2 != nil && p.EndShift2 != nil && p.EndShift2.Before(p.StartShift2.Time) {
		return errors.New("shift 2 must not end before it starts")
	}
	if p.DayPlan != nil && *p.DayPlan < 0 {
		return errors.New("day plan must not be negative")
	}
	if p.CycleTime != nil && *p.CycleTime < 0 {
		return errors.New("cycle time must not be negative")
	}
	return nil
}

func shiftHours(start, end *LocalTime) float64 {
	if start == nil || end == nil || start.IsZero() || end.IsZero() {
		return 0
	}
	return end.Sub(start.Time).Hours()
}
