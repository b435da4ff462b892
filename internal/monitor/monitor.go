// Package monitor builds the periodic OEE reports from factory API data.
//
// Each cycle ranks the current day's errors of every watched line into a
// Pareto report, and normalizes the current month's downtime categories of
// every machine into a downtime report:
//
//	pareto:   top-N errors by count or recovery hours, with cumulative percent
//	downtime: per-day category shares plus the normalized month totals
//
// Reports are persisted and Pareto reports that changed since the last
// notification (or whose cooldown expired) are returned for sending.
package monitor

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/rewired-gh/oeewatch/internal/analytics"
	"github.com/rewired-gh/oeewatch/internal/factory"
	"github.com/rewired-gh/oeewatch/internal/logger"
	"github.com/rewired-gh/oeewatch/internal/metrics"
	"github.com/rewired-gh/oeewatch/internal/models"
	"github.com/rewired-gh/oeewatch/internal/storage"
)

// Source is the subset of the factory API a cycle reads from.
type Source interface {
	FetchLines(ctx context.Context) ([]models.Line, error)
	FetchMachines(ctx context.Context, lineID string) ([]models.Machine, error)
	FetchMachineMonth(ctx context.Context, machineID string, month int) ([]models.CategoryBucket, error)
	FetchErrorAnalysis(ctx context.Context, q factory.ErrorQuery) ([]models.ErrorRecord, error)
}

// Options controls what a cycle watches and how it ranks.
type Options struct {
	Lines          []string // empty = every line the API reports
	TopN           int
	Metric         models.Metric
	NotifyCooldown time.Duration
	Downtime       bool
}

// notifiedRecord tracks a previously sent notification for cooldown deduplication.
type notifiedRecord struct {
	Labels []string
	SentAt time.Time
}

// Monitor handles report building and notification deduplication
type Monitor struct {
	source        Source
	storage       *storage.Storage
	recorder      *metrics.Recorder
	opts          Options
	notifiedScope map[string]notifiedRecord // key = report scope
}

// New creates a new Monitor instance. recorder may be nil.
func New(source Source, s *storage.Storage, recorder *metrics.Recorder, opts Options) *Monitor {
	return &Monitor{
		source:        source,
		storage:       s,
		recorder:      recorder,
		opts:          opts,
		notifiedScope: make(map[string]notifiedRecord),
	}
}

// CycleError represents a per-scope error during a monitoring cycle
type CycleError struct {
	Scope string
	Err   error
}

func (e CycleError) Error() string {
	return fmt.Sprintf("cycle error for %s: %v", e.Scope, e.Err)
}

func (e CycleError) Unwrap() error {
	return e.Err
}

// BuildParetoReport ranks error records into a report for one scope and period.
func BuildParetoReport(scope, period string, records []models.ErrorRecord, metric models.Metric, topN int, now time.Time) (*models.ParetoReport, error) {
	entries, err := analytics.RankErrors(records, metric, topN)
	if err != nil {
		return nil, fmt.Errorf("failed to rank errors for %s: %w", scope, err)
	}
	return &models.ParetoReport{
		ID:        uuid.New().String(),
		Scope:     scope,
		Period:    period,
		Metric:    metric,
		TopN:      topN,
		Entries:   entries,
		CreatedAt: now,
	}, nil
}

// BuildDowntimeReport normalizes every bucket of a period and the period totals.
func BuildDowntimeReport(scope, period string, buckets []models.CategoryBucket, now time.Time) (*models.DowntimeReport, error) {
	normalized, err := analytics.NormalizeBuckets(buckets)
	if err != nil {
		return nil, fmt.Errorf("failed to normalize buckets for %s: %w", scope, err)
	}
	totals, err := analytics.NormalizeBucket(models.SumBuckets(period, buckets))
	if err != nil {
		return nil, fmt.Errorf("failed to normalize totals for %s: %w", scope, err)
	}
	return &models.DowntimeReport{
		ID:        uuid.New().String(),
		Scope:     scope,
		Period:    period,
		Buckets:   normalized,
		Totals:    totals,
		CreatedAt: now,
	}, nil
}

// ShouldNotify reports whether a Pareto report is worth sending. Empty
// rankings are never sent. A scope notified within cooldown is suppressed
// unless its ranked label order changed.
func (m *Monitor) ShouldNotify(report *models.ParetoReport, cooldown time.Duration, now time.Time) bool {
	if len(report.Entries) == 0 {
		return false
	}
	rec, exists := m.notifiedScope[report.Scope]
	if !exists || now.Sub(rec.SentAt) >= cooldown {
		return true
	}
	return !slices.Equal(rec.Labels, report.Labels())
}

// RecordNotified records the given reports as notified at now.
// Call this after a successful Telegram send to enable cooldown deduplication.
func (m *Monitor) RecordNotified(reports []*models.ParetoReport, now time.Time) {
	for _, r := range reports {
		m.notifiedScope[r.Scope] = notifiedRecord{
			Labels: r.Labels(),
			SentAt: now,
		}
	}
}

// RunCycle builds and persists the reports of every watched line and machine.
// Returns the Pareto reports eligible for notification, per-scope errors
// (non-fatal), and a fatal error when the line list cannot be loaded.
func (m *Monitor) RunCycle(ctx context.Context, now time.Time) ([]*models.ParetoReport, []CycleError, error) {
	start := time.Now()
	lines, err := m.watchedLines(ctx)
	if err != nil {
		m.recorder.ObserveCycle(time.Since(start), true, 0)
		return nil, nil, err
	}

	var notify []*models.ParetoReport
	var cycleErrors []CycleError
	day := now.Format("2006-01-02")
	month := now.Format("2006-01")
	paretoBuilt, downtimeBuilt := 0, 0

	for _, line := range lines {
		if err := ctx.Err(); err != nil {
			return notify, cycleErrors, err
		}

		scope := models.LineScope(line.ID)
		if err := m.storage.UpsertLine(&line); err != nil {
			cycleErrors = append(cycleErrors, CycleError{Scope: scope, Err: err})
			continue
		}

		report, err := m.lineParetoReport(ctx, line.ID, day, now)
		if err != nil {
			cycleErrors = append(cycleErrors, CycleError{Scope: scope, Err: err})
		} else {
			paretoBuilt++
			if m.ShouldNotify(report, m.opts.NotifyCooldown, now) {
				notify = append(notify, report)
			}
		}

		if !m.opts.Downtime {
			continue
		}

		machines, err := m.source.FetchMachines(ctx, line.ID)
		if err != nil {
			cycleErrors = append(cycleErrors, CycleError{Scope: scope, Err: err})
			continue
		}
		for _, machine := range machines {
			machineScope := models.MachineScope(machine.ID)
			if err := m.machineDowntimeReport(ctx, &machine, month, now); err != nil {
				cycleErrors = append(cycleErrors, CycleError{Scope: machineScope, Err: err})
				continue
			}
			downtimeBuilt++
		}
	}

	logger.Debug("RunCycle: lines=%d, pareto=%d, downtime=%d, notify=%d, errors=%d",
		len(lines), paretoBuilt, downtimeBuilt, len(notify), len(cycleErrors))
	m.recorder.ObserveCycle(time.Since(start), false, len(cycleErrors))

	return notify, cycleErrors, nil
}

func (m *Monitor) lineParetoReport(ctx context.Context, lineID, day string, now time.Time) (*models.ParetoReport, error) {
	records, err := m.source.FetchErrorAnalysis(ctx, factory.ErrorQuery{
		LineID: lineID,
		Period: factory.PeriodDay,
		Date:   day,
		Metric: m.opts.Metric,
	})
	if err != nil {
		return nil, err
	}

	report, err := BuildParetoReport(models.LineScope(lineID), day, records, m.opts.Metric, m.opts.TopN, now)
	if err != nil {
		return nil, err
	}
	if err := m.storage.AddParetoReport(report); err != nil {
		return nil, err
	}
	m.recorder.ObserveParetoReport(report)
	return report, nil
}

func (m *Monitor) machineDowntimeReport(ctx context.Context, machine *models.Machine, month string, now time.Time) error {
	if err := m.storage.UpsertMachine(machine); err != nil {
		return err
	}

	buckets, err := m.source.FetchMachineMonth(ctx, machine.ID, int(now.Month()))
	if err != nil {
		return err
	}

	report, err := BuildDowntimeReport(models.MachineScope(machine.ID), month, buckets, now)
	if err != nil {
		return err
	}
	if err := m.storage.AddDowntimeReport(report); err != nil {
		return err
	}
	m.recorder.ObserveDowntimeReport(report)
	return nil
}

// watchedLines returns the API's lines, filtered to the configured ones.
// A configured line the API does not report is watched with its ID as name.
func (m *Monitor) watchedLines(ctx context.Context) ([]models.Line, error) {
	lines, err := m.source.FetchLines(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to list lines: %w", err)
	}
	if len(m.opts.Lines) == 0 {
		return lines, nil
	}

	byID := make(map[string]models.Line, len(lines))
	for _, l := range lines {
		byID[l.ID] = l
	}
	watched := make([]models.Line, 0, len(m.opts.Lines))
	for _, id := range m.opts.Lines {
		l, ok := byID[id]
		if !ok {
			logger.Warn("Configured line %s not reported by the API", id)
			l = models.Line{ID: id, Name: id}
		}
		watched = append(watched, l)
	}
	return watched, nil
}
