package storage

import (
	"errors"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/rewired-gh/oeewatch/internal/models"
)

func newTestStorage(t *testing.T, maxReports int) *Storage {
	t.Helper()
	s, err := New(maxReports, ":memory:")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func paretoReport(id, scope string, createdAt time.Time) *models.ParetoReport {
	return &models.ParetoReport{
		ID:     id,
		Scope:  scope,
		Period: "2025-03-01",
		Metric: models.MetricCount,
		TopN:   5,
		Entries: []models.ParetoEntry{
			{Label: "AL-1", Value: 6, CumulativePercent: 60},
			{Label: "AL-2", Value: 4, CumulativePercent: 100},
		},
		CreatedAt: createdAt,
	}
}

func TestStorage_UpsertAndGetLines(t *testing.T) {
	s := newTestStorage(t, 10)

	if err := s.UpsertLine(&models.Line{ID: "2", Name: "LINE 2"}); err != nil {
		t.Fatalf("UpsertLine failed: %v", err)
	}
	if err := s.UpsertLine(&models.Line{ID: "1", Name: "LINE 1"}); err != nil {
		t.Fatalf("UpsertLine failed: %v", err)
	}
	// Renaming keeps a single row
	if err := s.UpsertLine(&models.Line{ID: "1", Name: "ASSEMBLY"}); err != nil {
		t.Fatalf("UpsertLine failed: %v", err)
	}

	lines, err := s.GetLines()
	if err != nil {
		t.Fatalf("GetLines failed: %v", err)
	}
	if len(lines) != 2 {
		t.Fatalf("Expected 2 lines, got %d", len(lines))
	}
	if lines[0].ID != "1" || lines[0].Name != "ASSEMBLY" {
		t.Errorf("Unexpected first line: %+v", lines[0])
	}
}

func TestStorage_UpsertLine_Invalid(t *testing.T) {
	s := newTestStorage(t, 10)
	if err := s.UpsertLine(&models.Line{}); err == nil {
		t.Error("Expected error for line without ID")
	}
}

func TestStorage_GetMachines(t *testing.T) {
	s := newTestStorage(t, 10)

	machines := []*models.Machine{
		{ID: "31", Name: "PRESS A", LineID: "3"},
		{ID: "32", Name: "PRESS B", LineID: "3"},
		{ID: "11", Name: "OVEN", LineID: "1"},
	}
	for _, m := range machines {
		if err := s.UpsertMachine(m); err != nil {
			t.Fatalf("UpsertMachine failed: %v", err)
		}
	}

	line3, err := s.GetMachines("3")
	if err != nil {
		t.Fatalf("GetMachines failed: %v", err)
	}
	if len(line3) != 2 {
		t.Errorf("Expected 2 machines on line 3, got %d", len(line3))
	}

	all, err := s.GetMachines("")
	if err != nil {
		t.Fatalf("GetMachines failed: %v", err)
	}
	if len(all) != 3 {
		t.Errorf("Expected 3 machines, got %d", len(all))
	}
	if all[0].ID != "11" {
		t.Errorf("Expected machines ordered by line, got %s first", all[0].ID)
	}
}

func TestStorage_UpsertMachine_ReservedID(t *testing.T) {
	s := newTestStorage(t, 10)
	if err := s.UpsertMachine(&models.Machine{ID: models.AllMachines, LineID: "1"}); err == nil {
		t.Error("Expected error for reserved machine ID")
	}
}

func TestStorage_LatestParetoReport(t *testing.T) {
	s := newTestStorage(t, 10)
	scope := models.LineScope("3")
	now := time.Now()

	if err := s.AddParetoReport(paretoReport("r-old", scope, now.Add(-time.Hour))); err != nil {
		t.Fatalf("AddParetoReport failed: %v", err)
	}
	if err := s.AddParetoReport(paretoReport("r-new", scope, now)); err != nil {
		t.Fatalf("AddParetoReport failed: %v", err)
	}

	latest, err := s.LatestParetoReport(scope)
	if err != nil {
		t.Fatalf("LatestParetoReport failed: %v", err)
	}
	if latest.ID != "r-new" {
		t.Errorf("Expected r-new, got %s", latest.ID)
	}
	if len(latest.Entries) != 2 || latest.Entries[1].CumulativePercent != 100 {
		t.Errorf("Entries not restored: %+v", latest.Entries)
	}
	if !latest.CreatedAt.Equal(now) {
		t.Errorf("Expected created at %v, got %v", now, latest.CreatedAt)
	}
}

func TestStorage_LatestReport_NotFound(t *testing.T) {
	s := newTestStorage(t, 10)

	if _, err := s.LatestParetoReport("line:404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
	if _, err := s.LatestDowntimeReport("machine:404"); !errors.Is(err, ErrNotFound) {
		t.Errorf("Expected ErrNotFound, got %v", err)
	}
}

func TestStorage_AddParetoReport_Invalid(t *testing.T) {
	s := newTestStorage(t, 10)
	report := paretoReport("r-1", models.LineScope("1"), time.Now())
	report.TopN = 1 // fewer than the number of entries

	if err := s.AddParetoReport(report); err == nil {
		t.Error("Expected error for report exceeding top_n")
	}
}

func TestStorage_DowntimeReport(t *testing.T) {
	s := newTestStorage(t, 10)
	scope := models.MachineScope("31")

	report := &models.DowntimeReport{
		ID:     "d-1",
		Scope:  scope,
		Period: "2025-03",
		Buckets: []models.NormalizedBucket{
			{Label: "1", Shares: []models.CategoryShare{{Category: models.CategoryOperation, Percent: 88}, {Category: models.CategoryFault, Percent: 12}}},
			{Label: "2", Shares: []models.CategoryShare{{Category: models.CategoryOperation, Percent: 0}}},
		},
		Totals:    models.NormalizedBucket{Label: "2025-03", Shares: []models.CategoryShare{{Category: models.CategoryOperation, Percent: 100}}},
		CreatedAt: time.Now(),
	}
	if err := s.AddDowntimeReport(report); err != nil {
		t.Fatalf("AddDowntimeReport failed: %v", err)
	}

	latest, err := s.LatestDowntimeReport(scope)
	if err != nil {
		t.Fatalf("LatestDowntimeReport failed: %v", err)
	}
	if len(latest.Buckets) != 2 {
		t.Fatalf("Expected 2 buckets, got %d", len(latest.Buckets))
	}
	if latest.Buckets[0].Percent(models.CategoryFault) != 12 {
		t.Errorf("Expected fault share 12, got %d", latest.Buckets[0].Percent(models.CategoryFault))
	}

	// Downtime and pareto scopes are listed separately
	scopes, err := s.ListScopes(models.ReportKindPareto)
	if err != nil {
		t.Fatalf("ListScopes failed: %v", err)
	}
	if len(scopes) != 0 {
		t.Errorf("Expected no pareto scopes, got %v", scopes)
	}
}

func TestStorage_ListScopes(t *testing.T) {
	s := newTestStorage(t, 10)
	now := time.Now()

	for i, scope := range []string{"line:3", "line:1", "line:3", "machine:31"} {
		if err := s.AddParetoReport(paretoReport(fmt.Sprintf("r-%d", i), scope, now)); err != nil {
			t.Fatalf("AddParetoReport failed: %v", err)
		}
	}

	scopes, err := s.ListScopes(models.ReportKindPareto)
	if err != nil {
		t.Fatalf("ListScopes failed: %v", err)
	}
	want := []string{"line:1", "line:3", "machine:31"}
	if len(scopes) != len(want) {
		t.Fatalf("Expected %v, got %v", want, scopes)
	}
	for i := range want {
		if scopes[i] != want[i] {
			t.Errorf("scope %d: expected %s, got %s", i, want[i], scopes[i])
		}
	}
}

func TestStorage_RotateReports(t *testing.T) {
	s := newTestStorage(t, 3)
	now := time.Now()

	for i := 0; i < 5; i++ {
		report := paretoReport(fmt.Sprintf("a-%d", i), "line:1", now.Add(time.Duration(i-10)*time.Minute))
		if err := s.AddParetoReport(report); err != nil {
			t.Fatalf("AddParetoReport failed: %v", err)
		}
	}
	if err := s.AddParetoReport(paretoReport("b-0", "line:2", now.Add(-time.Hour))); err != nil {
		t.Fatalf("AddParetoReport failed: %v", err)
	}

	removed, err := s.RotateReports()
	if err != nil {
		t.Fatalf("RotateReports failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("Expected 2 reports removed, got %d", removed)
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM reports WHERE scope = 'line:1'`).Scan(&count); err != nil {
		t.Fatalf("count failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected 3 reports for line:1, got %d", count)
	}

	latest, err := s.LatestParetoReport("line:1")
	if err != nil {
		t.Fatalf("LatestParetoReport failed: %v", err)
	}
	if latest.ID != "a-4" {
		t.Errorf("Expected newest report kept, got %s", latest.ID)
	}
	if _, err := s.LatestParetoReport("line:2"); err != nil {
		t.Errorf("Expected line:2 report to survive rotation, got %v", err)
	}
}

func TestStorage_PersistsAcrossReopen(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "oeewatch.db")

	s, err := New(10, dbPath)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if err := s.UpsertLine(&models.Line{ID: "1", Name: "LINE 1"}); err != nil {
		t.Fatalf("UpsertLine failed: %v", err)
	}
	if err := s.AddParetoReport(paretoReport("r-1", "line:1", time.Now())); err != nil {
		t.Fatalf("AddParetoReport failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := New(10, dbPath)
	if err != nil {
		t.Fatalf("reopen failed: %v", err)
	}
	defer reopened.Close()

	lines, err := reopened.GetLines()
	if err != nil {
		t.Fatalf("GetLines failed: %v", err)
	}
	if len(lines) != 1 {
		t.Errorf("Expected 1 line after reopen, got %d", len(lines))
	}
	if _, err := reopened.LatestParetoReport("line:1"); err != nil {
		t.Errorf("Expected report after reopen, got %v", err)
	}
}

func TestStorage_AcceptsInjectedClock(t *testing.T) {
	s := newTestStorage(t, 10)
	scope := models.LineScope("3")
	future := time.Date(2030, 1, 1, 8, 0, 0, 0, time.UTC)

	if err := s.AddParetoReport(paretoReport("r-future", scope, future)); err != nil {
		t.Fatalf("AddParetoReport with injected clock failed: %v", err)
	}
	if err := s.AddParetoReport(paretoReport("r-zero", scope, time.Time{})); err == nil {
		t.Error("Expected error for report without timestamp")
	}

	latest, err := s.LatestParetoReport(scope)
	if err != nil {
		t.Fatalf("LatestParetoReport failed: %v", err)
	}
	if latest.ID != "r-future" {
		t.Errorf("Expected r-future, got %s", latest.ID)
	}
}
