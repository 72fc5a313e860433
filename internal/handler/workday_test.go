package handler

import (
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/pin"
	"github.com/agng-dev/montron/internal/storage"
	"github.com/agng-dev/montron/internal/store"
	"github.com/agng-dev/montron/internal/websocket"
)

type workdayFixture struct {
	db       *sql.DB
	handler  *WorkdayHandler
	pins     *pin.Service
	workdays *store.WorkdayStore
	reports  *store.ReportStore
	audits   *store.AuditStore
	user     *model.User
}

func newWorkdayFixture(t *testing.T) *workdayFixture {
	t.Helper()
	db := openTestDB(t)
	logger := testLogger()
	ws := store.NewWorkdayStore(db)
	rs := store.NewReportStore(db)
	es := store.NewEmployeeStore(db)
	as := store.NewAuditStore(db)
	pins := pin.NewService(store.NewPINStore(db), logger)
	st := storage.New(storage.Config{})
	fc := formapi.NewClient(formapi.Config{})
	hub := websocket.NewHub(logger)

	return &workdayFixture{
		db:       db,
		handler:  NewWorkdayHandler(ws, rs, es, as, pins, st, fc, hub, logger),
		pins:     pins,
		workdays: ws,
		reports:  rs,
		audits:   as,
		user:     seedUser(t, db, "anna@example.com", "correct-horse"),
	}
}

// seedDay creates a workday with a Tagesbericht and Regieschein whose times
// agree, so validation starts clean.
func (f *workdayFixture) seedDay(t *testing.T) *model.Workday {
	t.Helper()
	e := seedEmployee(t, f.db, "mmuster", "Max", "Muster")
	wd := seedWorkday(t, f.db, e.ID, "2026-08-28")
	if _, err := f.reports.UpsertDailyReport(wd.ID, model.DailyReport{
		StartTime:    strPtr("08:00"),
		EndTime:      strPtr("16:00"),
		BreakMinutes: intPtr(30),
	}); err != nil {
		t.Fatalf("upsert daily report: %v", err)
	}
	if _, err := f.reports.UpsertServiceRecord(wd.ID, model.ServiceRecord{
		CustomerName: strPtr("Baufirma Huber"),
		StartTime:    strPtr("08:00"),
		EndTime:      strPtr("16:00"),
		BreakMinutes: intPtr(30),
	}); err != nil {
		t.Fatalf("upsert service record: %v", err)
	}
	return wd
}

// addTripMismatch records a Streetwatch trace that is a full hour shorter
// than the Tagesbericht, which validates as an ERROR issue.
func (f *workdayFixture) addTripMismatch(t *testing.T, workdayID string) {
	t.Helper()
	err := f.workdays.UpsertTripLog(workdayID, model.TripLog{
		Date: "2026-08-28",
		Entries: []model.TripEntry{
			{Time: strPtr("08:00")},
			{Time: strPtr("14:30")},
		},
	})
	if err != nil {
		t.Fatalf("upsert trip log: %v", err)
	}
}

func (f *workdayFixture) get(t *testing.T, id string) *httptest.ResponseRecorder {
	t.Helper()
	req := asUser(httptest.NewRequest("GET", "/api/workdays/"+id, nil), f.user.ID)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	f.handler.Get(rec, req)
	return rec
}

func (f *workdayFixture) patchTB(t *testing.T, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := asUser(httptest.NewRequest("PATCH", "/api/workdays/"+id+"/tb", strings.NewReader(body)), f.user.ID)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	f.handler.PatchTB(rec, req)
	return rec
}

func (f *workdayFixture) releaseConfirm(t *testing.T, id, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := asUser(httptest.NewRequest("POST", "/api/workdays/"+id+"/release/confirm", strings.NewReader(body)), f.user.ID)
	req.SetPathValue("id", id)
	rec := httptest.NewRecorder()
	f.handler.ReleaseConfirm(rec, req)
	return rec
}

func TestGetWorkdayNotFound(t *testing.T) {
	f := newWorkdayFixture(t)

	rec := f.get(t, "no-such-id")
	if rec.Code != http.StatusNotFound {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusNotFound)
	}
}

func TestGetWorkdayDetail(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)

	rec := f.get(t, wd.ID)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	var detail model.WorkdayDetail
	if err := json.NewDecoder(rec.Body).Decode(&detail); err != nil {
		t.Fatalf("decode detail: %v", err)
	}
	if detail.ID != wd.ID || detail.Status != model.StatusDraft {
		t.Errorf("detail = id %s status %s, want id %s status %s", detail.ID, detail.Status, wd.ID, model.StatusDraft)
	}
	if detail.Tb == nil || detail.Rs == nil {
		t.Error("detail is missing tb or rs document")
	}
	if detail.Employee == nil || detail.Employee.Username != "mmuster" {
		t.Errorf("employee = %+v, want username mmuster", detail.Employee)
	}
}

func TestPatchTBRevalidates(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)

	rec := f.patchTB(t, wd.ID, `{"startTime":"08:07"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	var resp struct {
		Tb     *model.DailyReport      `json:"tb"`
		Issues []model.ValidationIssue `json:"validationIssues"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.Tb == nil || resp.Tb.StartTime == nil || *resp.Tb.StartTime != "08:07" {
		t.Errorf("tb start time = %v, want 08:07", resp.Tb)
	}

	found := false
	for _, issue := range resp.Issues {
		if issue.Code == "RASTER_MISMATCH" && issue.Severity == model.SeverityWarn {
			found = true
		}
	}
	if !found {
		t.Errorf("issues = %+v, want RASTER_MISMATCH warning", resp.Issues)
	}
}

func TestPatchReleasedWorkdayConflicts(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	if err := f.workdays.SetStatus(wd.ID, model.StatusReleased); err != nil {
		t.Fatalf("set status: %v", err)
	}

	rec := f.patchTB(t, wd.ID, `{"comment":"too late"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestReleaseWithoutPinSet(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)

	rec := f.releaseConfirm(t, wd.ID, `{"pin":"1234"}`)
	if rec.Code != http.StatusPreconditionFailed {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusPreconditionFailed)
	}
}

func TestReleaseWrongPin(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	if err := f.pins.Set(f.user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	rec := f.releaseConfirm(t, wd.ID, `{"pin":"9999"}`)
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
}

func TestReleaseMalformedPin(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	if err := f.pins.Set(f.user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	rec := f.releaseConfirm(t, wd.ID, `{"pin":"12a4"}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReleaseLockedAfterMaxAttempts(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	if err := f.pins.Set(f.user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	var rec *httptest.ResponseRecorder
	for i := 0; i <= pin.MaxAttempts; i++ {
		rec = f.releaseConfirm(t, wd.ID, `{"pin":"9999"}`)
	}
	if rec.Code != http.StatusLocked {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusLocked)
	}
	var resp struct {
		LockedUntil string `json:"lockedUntil"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if resp.LockedUntil == "" {
		t.Error("lockedUntil is empty")
	}
}

func TestReleaseBlockedByValidationErrors(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	f.addTripMismatch(t, wd.ID)
	if err := f.pins.Set(f.user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	rec := f.releaseConfirm(t, wd.ID, `{"pin":"1234"}`)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusUnprocessableEntity, rec.Body.String())
	}
	var resp struct {
		Issues []model.ValidationIssue `json:"validationIssues"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	if len(resp.Issues) == 0 {
		t.Error("response has no validation issues")
	}

	got, err := f.workdays.GetByID(wd.ID)
	if err != nil {
		t.Fatalf("get workday: %v", err)
	}
	if got.Status != model.StatusDraft {
		t.Errorf("status = %s, want %s", got.Status, model.StatusDraft)
	}
}

func TestReleaseForceNeedsReason(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	f.addTripMismatch(t, wd.ID)
	if err := f.pins.Set(f.user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	rec := f.releaseConfirm(t, wd.ID, `{"pin":"1234","force":true}`)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestReleaseForceWithReason(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	f.addTripMismatch(t, wd.ID)
	if err := f.pins.Set(f.user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	rec := f.releaseConfirm(t, wd.ID, `{"pin":"1234","force":true,"overrideReason":"Streetwatch device was defective"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	got, err := f.workdays.GetByID(wd.ID)
	if err != nil {
		t.Fatalf("get workday: %v", err)
	}
	if got.Status != model.StatusReleased {
		t.Errorf("status = %s, want %s", got.Status, model.StatusReleased)
	}
}

func TestReleaseCleanDay(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)
	if err := f.pins.Set(f.user.ID, "1234"); err != nil {
		t.Fatalf("set pin: %v", err)
	}

	rec := f.releaseConfirm(t, wd.ID, `{"pin":"1234"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}

	got, err := f.workdays.GetByID(wd.ID)
	if err != nil {
		t.Fatalf("get workday: %v", err)
	}
	if got.Status != model.StatusReleased {
		t.Errorf("status = %s, want %s", got.Status, model.StatusReleased)
	}

	actions, err := f.audits.ListReleaseActions(wd.ID)
	if err != nil {
		t.Fatalf("list release actions: %v", err)
	}
	if len(actions) != 1 {
		t.Fatalf("release actions = %d, want 1", len(actions))
	}

	// A released day refuses a second release.
	rec = f.releaseConfirm(t, wd.ID, `{"pin":"1234"}`)
	if rec.Code != http.StatusConflict {
		t.Errorf("second release status = %d, want %d", rec.Code, http.StatusConflict)
	}
}

func TestGeneratePdfUnknownKind(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)

	req := asUser(httptest.NewRequest("POST", "/api/workdays/"+wd.ID+"/pdf/xx", nil), f.user.ID)
	req.SetPathValue("id", wd.ID)
	req.SetPathValue("kind", "xx")
	rec := httptest.NewRecorder()
	f.handler.GeneratePdf(rec, req)

	if rec.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusBadRequest)
	}
}

func TestGeneratePdfTB(t *testing.T) {
	f := newWorkdayFixture(t)
	wd := f.seedDay(t)

	req := asUser(httptest.NewRequest("POST", "/api/workdays/"+wd.ID+"/pdf/tb", nil), f.user.ID)
	req.SetPathValue("id", wd.ID)
	req.SetPathValue("kind", "tb")
	rec := httptest.NewRecorder()
	f.handler.GeneratePdf(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d: %s", rec.Code, http.StatusOK, rec.Body.String())
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pdf" {
		t.Errorf("Content-Type = %q, want application/pdf", ct)
	}
	if !strings.HasPrefix(rec.Body.String(), "%PDF-") {
		t.Error("body does not start with a PDF header")
	}
}
