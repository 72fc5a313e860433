package ingest

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/agng-dev/montron/internal/database"
	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/store"
	"github.com/agng-dev/montron/internal/websocket"
)

type feedFixture struct {
	employees   []formapi.Employee
	submissions []formapi.Submission
}

func feedServer(t *testing.T, fx *feedFixture) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/api/v1/employees":
			json.NewEncoder(w).Encode(map[string]any{"items": fx.employees})
		case "/api/v1/submissions":
			json.NewEncoder(w).Encode(map[string]any{"items": fx.submissions})
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func setupSyncer(t *testing.T, fx *feedFixture) (*Syncer, *store.WorkdayStore, *store.ReportStore, *store.EmployeeStore, *store.ConfigStore) {
	t.Helper()
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	server := feedServer(t, fx)
	client := formapi.NewClient(formapi.Config{BaseURL: server.URL, ServiceToken: "svc_test"})

	employees := store.NewEmployeeStore(db)
	workdays := store.NewWorkdayStore(db)
	reports := store.NewReportStore(db)
	config := store.NewConfigStore(db)
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	hub := websocket.NewHub(logger)

	s := NewSyncer(client, employees, workdays, reports, config, hub, logger, 0)
	return s, workdays, reports, employees, config
}

func sptr(s string) *string { return &s }

func tbSubmission(id, username, date string, payload map[string]any) formapi.Submission {
	raw, _ := json.Marshal(payload)
	return formapi.Submission{
		ID:           id,
		DocumentType: "TB",
		Username:     username,
		Date:         date,
		UpdatedAt:    "2026-03-02T18:00:00Z",
		Payload:      raw,
	}
}

func TestSyncOnceIngestsEmployeeAndDailyReport(t *testing.T) {
	fx := &feedFixture{
		employees: []formapi.Employee{
			{ID: "e-1", Username: "mmeier", FirstName: sptr("Max"), LastName: sptr("Meier"), Active: true, UpdatedAt: "2026-03-02T08:00:00Z"},
		},
		submissions: []formapi.Submission{
			tbSubmission("s-1", "mmeier", "2026-03-02", map[string]any{
				"startTime":    "07:00",
				"endTime":      "16:30",
				"breakMinutes": 30,
				"licensePlate": "M-AB 123",
				"attachments": []map[string]any{
					{"kind": "photo", "filename": "baustelle.jpg", "s3Key": "sub/s-1/baustelle.jpg", "bytes": 52000},
				},
			}),
		},
	}
	s, workdays, reports, employees, config := setupSyncer(t, fx)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	e, err := employees.GetByUsername("mmeier")
	if err != nil || e == nil {
		t.Fatalf("employee not synced: %v", err)
	}

	wd, err := workdays.GetByEmployeeAndDate(e.ID, "2026-03-02")
	if err != nil || wd == nil {
		t.Fatalf("workday not created: %v", err)
	}

	tb, err := reports.GetDailyReport(wd.ID)
	if err != nil || tb == nil {
		t.Fatalf("daily report not created: %v", err)
	}
	if tb.StartTime == nil || *tb.StartTime != "07:00" {
		t.Errorf("startTime = %v, want 07:00", tb.StartTime)
	}
	if tb.BreakMinutes == nil || *tb.BreakMinutes != 30 {
		t.Errorf("breakMinutes = %v, want 30", tb.BreakMinutes)
	}
	if tb.SourceSubmissionID == nil || *tb.SourceSubmissionID != "s-1" {
		t.Errorf("sourceSubmissionId = %v, want s-1", tb.SourceSubmissionID)
	}

	attachments, err := workdays.ListAttachments(wd.ID)
	if err != nil {
		t.Fatalf("list attachments: %v", err)
	}
	if len(attachments) != 1 || attachments[0].Filename != "baustelle.jpg" {
		t.Errorf("attachments = %+v, want one baustelle.jpg", attachments)
	}

	cursor, err := config.Cursor("submissions")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor != "2026-03-02T18:00:00Z" {
		t.Errorf("cursor = %q, want 2026-03-02T18:00:00Z", cursor)
	}
}

func TestSyncOnceRecordsValidationIssues(t *testing.T) {
	fx := &feedFixture{
		employees: []formapi.Employee{
			{ID: "e-1", Username: "mmeier", Active: true, UpdatedAt: "2026-03-02T08:00:00Z"},
		},
		submissions: []formapi.Submission{
			// 07:10 is off the 15-minute raster
			tbSubmission("s-1", "mmeier", "2026-03-02", map[string]any{
				"startTime": "07:10",
				"endTime":   "16:00",
			}),
		},
	}
	s, workdays, _, employees, _ := setupSyncer(t, fx)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	e, _ := employees.GetByUsername("mmeier")
	wd, _ := workdays.GetByEmployeeAndDate(e.ID, "2026-03-02")
	issues, err := workdays.ListIssues(wd.ID)
	if err != nil {
		t.Fatalf("list issues: %v", err)
	}

	found := false
	for _, issue := range issues {
		if issue.Code == "RASTER_MISMATCH" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected RASTER_MISMATCH issue, got %+v", issues)
	}
}

func TestSyncOnceDoesNotClobberLocalCorrections(t *testing.T) {
	fx := &feedFixture{
		employees: []formapi.Employee{
			{ID: "e-1", Username: "mmeier", Active: true, UpdatedAt: "2026-03-02T08:00:00Z"},
		},
		submissions: []formapi.Submission{
			tbSubmission("s-1", "mmeier", "2026-03-02", map[string]any{"startTime": "07:00"}),
		},
	}
	s, workdays, reports, employees, _ := setupSyncer(t, fx)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("first sync: %v", err)
	}

	e, _ := employees.GetByUsername("mmeier")
	wd, _ := workdays.GetByEmployeeAndDate(e.ID, "2026-03-02")

	// An admin corrects the start time locally, bumping the version
	if _, err := reports.ApplyTBPatch(wd.ID, map[string]any{"startTime": "06:45"}, "admin"); err != nil {
		t.Fatalf("apply patch: %v", err)
	}

	// The same submission arrives again with the original value
	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("second sync: %v", err)
	}

	tb, err := reports.GetDailyReport(wd.ID)
	if err != nil || tb == nil {
		t.Fatalf("get daily report: %v", err)
	}
	if tb.StartTime == nil || *tb.StartTime != "06:45" {
		t.Errorf("startTime = %v, want local correction 06:45 preserved", tb.StartTime)
	}
	if tb.Version < 2 {
		t.Errorf("version = %d, want >= 2", tb.Version)
	}
}

func TestSyncOnceSkipsUnknownEmployee(t *testing.T) {
	fx := &feedFixture{
		submissions: []formapi.Submission{
			tbSubmission("s-1", "ghost", "2026-03-02", map[string]any{"startTime": "07:00"}),
		},
	}
	s, _, _, _, config := setupSyncer(t, fx)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	// The cursor still advances so the bad record is not re-fetched forever
	cursor, err := config.Cursor("submissions")
	if err != nil {
		t.Fatalf("cursor: %v", err)
	}
	if cursor == "" {
		t.Error("expected cursor to advance past skipped submission")
	}
}

func TestSyncOnceUnconfiguredIsNoop(t *testing.T) {
	db, err := database.Open(":memory:")
	if err != nil {
		t.Fatalf("open test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewSyncer(
		formapi.NewClient(formapi.Config{}),
		store.NewEmployeeStore(db),
		store.NewWorkdayStore(db),
		store.NewReportStore(db),
		store.NewConfigStore(db),
		websocket.NewHub(logger),
		logger,
		0,
	)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("expected no-op, got %v", err)
	}
}

func TestSyncOnceIngestsTripLog(t *testing.T) {
	payload, _ := json.Marshal(map[string]any{
		"licensePlate": "M-AB 123",
		"entries": []map[string]any{
			{"time": "07:00", "km": 12034.5, "lat": 48.137, "lon": 11.575},
			{"time": "16:00", "km": 12101.2, "lat": 48.140, "lon": 11.560},
		},
	})
	fx := &feedFixture{
		employees: []formapi.Employee{
			{ID: "e-1", Username: "mmeier", Active: true, UpdatedAt: "2026-03-02T08:00:00Z"},
		},
		submissions: []formapi.Submission{
			{ID: "s-2", DocumentType: "SW", Username: "mmeier", Date: "2026-03-02", UpdatedAt: "2026-03-02T18:00:00Z", Payload: payload},
		},
	}
	s, workdays, _, employees, _ := setupSyncer(t, fx)

	if err := s.SyncOnce(context.Background()); err != nil {
		t.Fatalf("sync: %v", err)
	}

	e, _ := employees.GetByUsername("mmeier")
	wd, _ := workdays.GetByEmployeeAndDate(e.ID, "2026-03-02")
	log, err := workdays.GetTripLog(wd.ID)
	if err != nil || log == nil {
		t.Fatalf("trip log not created: %v", err)
	}
	if len(log.Entries) != 2 {
		t.Fatalf("entries = %d, want 2", len(log.Entries))
	}
	if log.Entries[0].Km == nil || *log.Entries[0].Km != 12034.5 {
		t.Errorf("first km = %v, want 12034.5", log.Entries[0].Km)
	}
}
