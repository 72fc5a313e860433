package store

import (
	"testing"

	"github.com/agng-dev/montron/internal/database"
	"github.com/agng-dev/montron/internal/model"
)

func setupReportTestDB(t *testing.T) (*ReportStore, *AuditStore, string) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		t.Fatalf("enable foreign keys: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	es := NewEmployeeStore(db)
	ws := NewWorkdayStore(db)
	e, err := es.Upsert(model.Employee{Username: "mmeier", Active: true})
	if err != nil {
		t.Fatalf("upsert employee: %v", err)
	}
	w, err := ws.Ensure(e.ID, "2026-03-02")
	if err != nil {
		t.Fatalf("ensure workday: %v", err)
	}
	return NewReportStore(db), NewAuditStore(db), w.ID
}

func seedDailyReport(t *testing.T, rs *ReportStore, workdayID string) *model.DailyReport {
	t.Helper()
	tb, err := rs.UpsertDailyReport(workdayID, model.DailyReport{
		StartTime:    sptr("07:00"),
		EndTime:      sptr("16:00"),
		BreakMinutes: iptr(30),
		Comment:      sptr(""),
		Extra:        map[string]any{"weather": "dry"},
	})
	if err != nil {
		t.Fatalf("upsert daily report: %v", err)
	}
	return tb
}

func TestApplyTBPatchChangesFieldAndBumpsVersion(t *testing.T) {
	rs, audits, workdayID := setupReportTestDB(t)
	tb := seedDailyReport(t, rs, workdayID)
	if tb.Version != 1 {
		t.Fatalf("seed version = %d, want 1", tb.Version)
	}

	patched, err := rs.ApplyTBPatch(workdayID, map[string]any{"endTime": "16:30"}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if *patched.EndTime != "16:30" {
		t.Errorf("endTime = %q, want %q", *patched.EndTime, "16:30")
	}
	if patched.Version != 2 {
		t.Errorf("version = %d, want 2", patched.Version)
	}

	entries, err := audits.ListByEntity("TB", patched.ID)
	if err != nil {
		t.Fatalf("list audit entries: %v", err)
	}
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].Field != "endTime" {
		t.Errorf("audit field = %q, want %q", entries[0].Field, "endTime")
	}
	if entries[0].OldValue == nil || *entries[0].OldValue != "16:00" {
		t.Errorf("audit old value = %v, want 16:00", entries[0].OldValue)
	}
}

func TestApplyTBPatchNoopDoesNotBump(t *testing.T) {
	rs, audits, workdayID := setupReportTestDB(t)
	tb := seedDailyReport(t, rs, workdayID)

	patched, err := rs.ApplyTBPatch(workdayID, map[string]any{"endTime": "16:00"}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if patched.Version != tb.Version {
		t.Errorf("version = %d, want unchanged %d", patched.Version, tb.Version)
	}
	entries, _ := audits.ListByEntity("TB", tb.ID)
	if len(entries) != 0 {
		t.Errorf("got %d audit entries, want none for a no-op", len(entries))
	}
}

func TestApplyTBPatchNilClearsField(t *testing.T) {
	rs, _, workdayID := setupReportTestDB(t)
	seedDailyReport(t, rs, workdayID)

	patched, err := rs.ApplyTBPatch(workdayID, map[string]any{"breakMinutes": nil}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if patched.BreakMinutes != nil {
		t.Errorf("breakMinutes = %v, want nil", *patched.BreakMinutes)
	}
}

func TestApplyTBPatchRoundsTimes(t *testing.T) {
	rs, _, workdayID := setupReportTestDB(t)
	seedDailyReport(t, rs, workdayID)

	patched, err := rs.ApplyTBPatch(workdayID, map[string]any{"endTime": "16:32"}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if *patched.EndTime != "16:30" {
		t.Errorf("endTime = %q, want snapped %q", *patched.EndTime, "16:30")
	}
}

func TestApplyTBPatchExtraField(t *testing.T) {
	rs, _, workdayID := setupReportTestDB(t)
	seedDailyReport(t, rs, workdayID)

	patched, err := rs.ApplyTBPatch(workdayID, map[string]any{"weather": "rain"}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if patched.Extra["weather"] != "rain" {
		t.Errorf("extra weather = %v, want %q", patched.Extra["weather"], "rain")
	}
}

func TestApplyTBPatchMissingReport(t *testing.T) {
	rs, _, workdayID := setupReportTestDB(t)

	patched, err := rs.ApplyTBPatch(workdayID, map[string]any{"endTime": "16:30"}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if patched != nil {
		t.Errorf("patched = %+v, want nil without a daily report", patched)
	}
}

func TestUpsertDailyReportKeepsLocalEdits(t *testing.T) {
	rs, _, workdayID := setupReportTestDB(t)
	seedDailyReport(t, rs, workdayID)

	// A local correction bumps the version past 1.
	if _, err := rs.ApplyTBPatch(workdayID, map[string]any{"endTime": "16:30"}, "u1"); err != nil {
		t.Fatalf("apply patch: %v", err)
	}

	// A re-ingest of the raw submission must not overwrite the correction.
	got, err := rs.UpsertDailyReport(workdayID, model.DailyReport{
		StartTime: sptr("07:00"),
		EndTime:   sptr("16:00"),
	})
	if err != nil {
		t.Fatalf("upsert daily report: %v", err)
	}
	if *got.EndTime != "16:30" {
		t.Errorf("endTime = %q, want preserved correction %q", *got.EndTime, "16:30")
	}
}

func TestApplyRSPatchPositionsAtomically(t *testing.T) {
	rs, audits, workdayID := setupReportTestDB(t)
	seeded, err := rs.UpsertServiceRecord(workdayID, model.ServiceRecord{
		CustomerName: sptr("Bauhof Nord"),
		StartTime:    sptr("08:00"),
		Positions: []model.Position{
			{Code: sptr("P100"), Hours: fptr(4)},
			{Code: sptr("P200"), Hours: fptr(2)},
		},
	})
	if err != nil {
		t.Fatalf("upsert service record: %v", err)
	}

	patched, err := rs.ApplyRSPatch(workdayID, map[string]any{
		"positions": []model.Position{
			{Code: sptr("P100"), Hours: fptr(4)},
			{Code: sptr("P200"), Hours: fptr(3)},
			{Code: sptr("P300"), Hours: fptr(1)},
		},
	}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if len(patched.Positions) != 3 {
		t.Fatalf("got %d positions, want 3", len(patched.Positions))
	}
	if *patched.Positions[1].Hours != 3 {
		t.Errorf("second position hours = %v, want 3", *patched.Positions[1].Hours)
	}
	if patched.Version != seeded.Version+1 {
		t.Errorf("version = %d, want %d", patched.Version, seeded.Version+1)
	}

	entries, _ := audits.ListByEntity("RS", patched.ID)
	if len(entries) != 1 {
		t.Fatalf("got %d audit entries, want 1", len(entries))
	}
	if entries[0].Field != "positions" {
		t.Errorf("audit field = %q, want %q", entries[0].Field, "positions")
	}
}

func TestApplyRSPatchDecodesGenericPositions(t *testing.T) {
	rs, _, workdayID := setupReportTestDB(t)
	if _, err := rs.UpsertServiceRecord(workdayID, model.ServiceRecord{StartTime: sptr("08:00")}); err != nil {
		t.Fatalf("upsert service record: %v", err)
	}

	// JSON request bodies arrive as []any of map[string]any.
	patched, err := rs.ApplyRSPatch(workdayID, map[string]any{
		"positions": []any{
			map[string]any{"code": "P500", "hours": 2.5},
		},
	}, "u1")
	if err != nil {
		t.Fatalf("apply patch: %v", err)
	}
	if len(patched.Positions) != 1 {
		t.Fatalf("got %d positions, want 1", len(patched.Positions))
	}
	if *patched.Positions[0].Code != "P500" || *patched.Positions[0].Hours != 2.5 {
		t.Errorf("position = %+v, want P500 / 2.5h", patched.Positions[0])
	}
}
