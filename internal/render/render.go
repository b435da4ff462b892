// Package render prints reports and shift plans for the command line, as
// lipgloss tables or as JSON/YAML documents.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"gopkg.in/yaml.v3"

	"github.com/rewired-gh/oeewatch/internal/models"
)

// Format selects the output encoding.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat parses an output format name.
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(s)) {
	case "", FormatTable:
		return FormatTable, nil
	case FormatJSON:
		return FormatJSON, nil
	case FormatYAML, "yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("unknown output format %q: must be table, json or yaml", s)
	}
}

var (
	accent = lipgloss.Color("#D97706") // amber
	dim    = lipgloss.Color("#6B7280") // muted gray
	good   = lipgloss.Color("#22C55E") // green
	bad    = lipgloss.Color("#EF4444") // red

	titleStyle  = lipgloss.NewStyle().Bold(true).Foreground(accent)
	dimStyle    = lipgloss.NewStyle().Foreground(dim)
	headerStyle = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle   = lipgloss.NewStyle().Padding(0, 1)
	numberStyle = cellStyle.Align(lipgloss.Right)
	barStyle    = lipgloss.NewStyle().Foreground(accent)
)

// Pareto writes a Pareto report.
func Pareto(w io.Writer, format Format, report *models.ParetoReport) error {
	if format != FormatTable {
		return encode(w, format, report)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Top errors · %s", report.Scope)))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s, by %s, top %d", report.Period, report.Metric, report.TopN)))
	b.WriteString("\n")

	if len(report.Entries) == 0 {
		b.WriteString(dimStyle.Render("No errors recorded."))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	valueHeader := "Count"
	if report.Metric == models.MetricRecovery {
		valueHeader = "Hours"
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("#", "Error", valueHeader, "Cumulative", "").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 || col == 2 || col == 3 {
				return numberStyle
			}
			return cellStyle
		})
	for i, e := range report.Entries {
		t.Row(
			fmt.Sprintf("%d", i+1),
			e.Label,
			formatNumber(e.Value),
			fmt.Sprintf("%.1f%%", e.CumulativePercent),
			barStyle.Render(bar(e.CumulativePercent, 20)),
		)
	}

	b.WriteString(t.String())
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// Downtime writes a downtime report with one column per category.
func Downtime(w io.Writer, format Format, report *models.DowntimeReport) error {
	if format != FormatTable {
		return encode(w, format, report)
	}

	categories := downtimeCategories(report)
	headers := make([]string, 0, len(categories)+1)
	headers = append(headers, "Bucket")
	for _, c := range categories {
		headers = append(headers, string(c))
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers(headers...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return cellStyle
			}
			return numberStyle
		})

	row := func(nb models.NormalizedBucket) []string {
		cells := make([]string, 0, len(categories)+1)
		cells = append(cells, nb.Label)
		for _, c := range categories {
			cells = append(cells, fmt.Sprintf("%d%%", nb.Percent(c)))
		}
		return cells
	}
	for _, nb := range report.Buckets {
		t.Row(row(nb)...)
	}
	t.Row(row(report.Totals)...)

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Downtime · %s", report.Scope)))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(report.Period))
	b.WriteString("\n")
	b.WriteString(t.String())
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// DayView is a machine day with its pie normalized to whole percentages.
type DayView struct {
	Day    *models.MachineDay      `json:"day"`
	Shares models.NormalizedBucket `json:"shares"`
}

// MachineDay writes the single-day view of a machine.
func MachineDay(w io.Writer, format Format, view DayView) error {
	if format != FormatTable {
		return encode(w, format, view)
	}

	day := view.Day
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Machine day · %s", models.MachineScope(day.MachineID))))
	b.WriteString("  ")
	subtitle := day.Day
	if day.PowerRun != "" {
		subtitle += ", power run " + day.PowerRun
	}
	b.WriteString(dimStyle.Render(subtitle))
	b.WriteString("\n")

	if len(day.Pie) == 0 {
		b.WriteString(dimStyle.Render("No activity recorded."))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	times := make(map[string]string, len(day.Details))
	for _, d := range day.Details {
		times[d.Label] = d.Time
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Category", "Hours", "Time", "Share", "").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 1 || col == 3 {
				return numberStyle
			}
			return cellStyle
		})
	for i, slice := range day.Pie {
		percent := 0
		if i < len(view.Shares.Shares) {
			percent = view.Shares.Shares[i].Percent
		}
		t.Row(
			slice.Name,
			formatNumber(slice.Value),
			times[slice.Name],
			fmt.Sprintf("%d%%", percent),
			barStyle.Render(bar(float64(percent), 20)),
		)
	}
	b.WriteString(t.String())
	b.WriteString("\n")

	if p := day.Product; p != nil {
		b.WriteString(dimStyle.Render(fmt.Sprintf("Product: %s total · %s OK · %s NG (%s%%)",
			formatNumber(p.Total), formatNumber(p.OK), formatNumber(p.NG), formatNumber(p.Ratio))))
		b.WriteString("\n")
	}
	_, err := io.WriteString(w, b.String())
	return err
}

// RatioSeries is a performance ratio series of a machine over a month or year.
type RatioSeries struct {
	Scope  string              `json:"scope"`
	Period string              `json:"period"`
	Ratio  models.RatioType    `json:"ratio"`
	Points []models.RatioPoint `json:"points"`
}

// Ratios writes a performance ratio series.
func Ratios(w io.Writer, format Format, series RatioSeries) error {
	if format != FormatTable {
		return encode(w, format, series)
	}

	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Ratios · %s", series.Scope)))
	b.WriteString("  ")
	b.WriteString(dimStyle.Render(fmt.Sprintf("%s, %s", series.Period, series.Ratio)))
	b.WriteString("\n")

	if len(series.Points) == 0 {
		b.WriteString(dimStyle.Render("No ratios recorded."))
		b.WriteString("\n")
		_, err := io.WriteString(w, b.String())
		return err
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Bucket", "OEE", "OK", "Output", "Activity").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col == 0 {
				return cellStyle
			}
			return numberStyle
		})
	percent := func(v float64) string { return formatNumber(v) + "%" }
	for _, p := range series.Points {
		t.Row(p.Label, percent(p.OEE), percent(p.OKRatio), percent(p.OutputRatio), percent(p.ActivityRatio))
	}
	b.WriteString(t.String())
	b.WriteString("\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// PlanChange pairs a shift plan with its target before recalculation.
type PlanChange struct {
	Plan      models.ShiftPlan `json:"plan"`
	OldTarget *int             `json:"old_target"`
}

// Plans writes recalculated shift plans with their target deltas.
func Plans(w io.Writer, format Format, changes []PlanChange) error {
	if format != FormatTable {
		return encode(w, format, changes)
	}

	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(dimStyle).
		Headers("Plan", "Machine", "Day", "Hours", "Cycle (s)", "Target", "Old").
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			if col >= 3 {
				return numberStyle
			}
			return cellStyle
		})
	for _, c := range changes {
		p := c.Plan
		target := optionalInt(p.TargetProduct)
		if !intPtrEqual(p.TargetProduct, c.OldTarget) {
			style := lipgloss.NewStyle().Foreground(good)
			if p.TargetProduct == nil {
				style = lipgloss.NewStyle().Foreground(bad)
			}
			target = style.Render(target)
		}
		t.Row(p.ID, p.Machine, p.Day, optionalFloat(p.DayPlan), optionalFloat(p.CycleTime), target, optionalInt(c.OldTarget))
	}

	_, err := io.WriteString(w, t.String()+"\n")
	return err
}

// encode writes v as indented JSON, or as YAML with the same field names.
func encode(w io.Writer, format Format, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode json: %w", err)
	}
	if format == FormatJSON {
		_, err = w.Write(append(data, '\n'))
		return err
	}

	// JSON is valid YAML; decoding into a node keeps key order.
	var node yaml.Node
	if err := yaml.Unmarshal(data, &node); err != nil {
		return fmt.Errorf("failed to convert to yaml: %w", err)
	}
	blockStyle(&node)

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&node); err != nil {
		return fmt.Errorf("failed to encode yaml: %w", err)
	}
	return enc.Close()
}

func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// downtimeCategories returns the categories in report order, dropping
// categories that are 0 everywhere.
func downtimeCategories(report *models.DowntimeReport) []models.Category {
	seen := make(map[models.Category]bool)
	var order []models.Category
	nonZero := make(map[models.Category]bool)

	buckets := append([]models.NormalizedBucket{report.Totals}, report.Buckets...)
	for _, nb := range buckets {
		for _, s := range nb.Shares {
			if !seen[s.Category] {
				seen[s.Category] = true
				order = append(order, s.Category)
			}
			if s.Percent > 0 {
				nonZero[s.Category] = true
			}
		}
	}

	categories := make([]models.Category, 0, len(order))
	for _, c := range order {
		if nonZero[c] {
			categories = append(categories, c)
		}
	}
	return categories
}

func bar(percent float64, width int) string {
	filled := int(percent / 100 * float64(width))
	if filled > width {
		filled = width
	}
	return strings.Repeat("█", filled) + strings.Repeat("░", width-filled)
}

func formatNumber(v float64) string {
	if v == float64(int64(v)) {
		return fmt.Sprintf("%d", int64(v))
	}
	return fmt.Sprintf("%.2f", v)
}

func optionalFloat(v *float64) string {
	if v == nil {
		return "-"
	}
	return formatNumber(*v)
}

func optionalInt(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func intPtrEqual(a, b *int) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
