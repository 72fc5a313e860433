package handler

import (
	"errors"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/export"
	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/pin"
	"github.com/agng-dev/montron/internal/store"
	"github.com/agng-dev/montron/internal/websocket"
	"github.com/agng-dev/montron/internal/workday"
)

// releaseDialog is the server-side state of one open PIN dialog. The gate
// tracks digit entry; the verified PIN and blocking issues survive between
// keypresses so the override form can re-submit without re-entering.
type releaseDialog struct {
	gate        *pin.Gate
	verifiedPin string
	blocked     []model.ValidationIssue
	errMsg      string
}

type TemplateHandler struct {
	employees *store.EmployeeStore
	workdays  *store.WorkdayStore
	reports   *store.ReportStore
	layouts   *store.LayoutStore
	config    *store.ConfigStore
	pins      *pin.Service
	sessions  *workday.EditSessions
	exports   *export.Builder
	days      *WorkdayHandler
	templates *template.Template
	logger    *slog.Logger

	mu      sync.Mutex
	dialogs map[string]*releaseDialog
}

func NewTemplateHandler(
	es *store.EmployeeStore,
	ws *store.WorkdayStore,
	rs *store.ReportStore,
	ls *store.LayoutStore,
	cs *store.ConfigStore,
	pins *pin.Service,
	sessions *workday.EditSessions,
	exports *export.Builder,
	days *WorkdayHandler,
	logger *slog.Logger,
) *TemplateHandler {
	tmpl := template.Must(template.ParseGlob("web/templates/*.html"))
	return &TemplateHandler{
		employees: es,
		workdays:  ws,
		reports:   rs,
		layouts:   ls,
		config:    cs,
		pins:      pins,
		sessions:  sessions,
		exports:   exports,
		days:      days,
		templates: tmpl,
		logger:    logger,
		dialogs:   make(map[string]*releaseDialog),
	}
}

func (h *TemplateHandler) render(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render template", "template", name, "error", err)
		http.Error(w, "template error", http.StatusInternalServerError)
	}
}

func (h *TemplateHandler) renderPartial(w http.ResponseWriter, name string, data any) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := h.templates.ExecuteTemplate(w, name, data); err != nil {
		h.logger.Error("render partial", "template", name, "error", err)
		fmt.Fprint(w, `<div class="alert alert-error">Anzeigefehler</div>`)
	}
}

// LoginPage renders the login form. Authenticated users land here too; the
// form simply logs them in again.
func (h *TemplateHandler) LoginPage(w http.ResponseWriter, r *http.Request) {
	h.render(w, "login.html", map[string]any{"Title": "Anmeldung"})
}

// SetupPage renders the one-time installation wizard.
func (h *TemplateHandler) SetupPage(w http.ResponseWriter, r *http.Request) {
	state, err := h.config.InstallationState()
	if err != nil {
		http.Error(w, "failed to load setup state", http.StatusInternalServerError)
		return
	}
	h.render(w, "setup.html", map[string]any{
		"Title": "Einrichtung",
		"State": state,
	})
}

// Dashboard is the employee list, the landing page of the tool.
func (h *TemplateHandler) Dashboard(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	h.employeeListPage(w, r, "employees.html")
}

// EmployeeList re-renders just the list table, for the active-only toggle.
func (h *TemplateHandler) EmployeeList(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	employees, err := h.employees.List(!all)
	if err != nil {
		http.Error(w, "failed to load employees", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "employee-list", map[string]any{"Employees": employees, "All": all})
}

func (h *TemplateHandler) employeeListPage(w http.ResponseWriter, r *http.Request, page string) {
	all := r.URL.Query().Get("all") == "true"
	employees, err := h.employees.List(!all)
	if err != nil {
		http.Error(w, "failed to load employees", http.StatusInternalServerError)
		return
	}
	h.render(w, page, map[string]any{
		"Title":     "Mitarbeiter",
		"Employees": employees,
		"All":       all,
	})
}

// dayRow is one entry in the per-employee date selection list.
type dayRow struct {
	model.WorkdaySummary
	StatusLabel string
	StatusClass string
}

// EmployeeDays renders the date selection list for one employee.
func (h *TemplateHandler) EmployeeDays(w http.ResponseWriter, r *http.Request) {
	employee, err := h.employees.GetByID(r.PathValue("id"))
	if err != nil || employee == nil {
		http.NotFound(w, r)
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = time.Now().Format("2006-01-02")
	}
	if from == "" {
		from = time.Now().AddDate(0, 0, -35).Format("2006-01-02")
	}

	summaries, err := h.workdays.Summaries(employee.ID, from, to)
	if err != nil {
		http.Error(w, "failed to load workdays", http.StatusInternalServerError)
		return
	}
	rows := make([]dayRow, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, dayRow{
			WorkdaySummary: s,
			StatusLabel:    export.StatusLabel(s.Status),
			StatusClass:    statusClass(s.Status),
		})
	}

	data := map[string]any{
		"Title":    employee.DisplayName(),
		"Employee": employee,
		"Days":     rows,
		"From":     from,
		"To":       to,
	}
	if r.Header.Get("HX-Request") == "true" {
		h.renderPartial(w, "day-list", data)
		return
	}
	h.render(w, "days.html", data)
}

func statusClass(status string) string {
	switch status {
	case model.StatusReleased:
		return "badge-released"
	case model.StatusReady:
		return "badge-ready"
	default:
		return "badge-draft"
	}
}

// fieldView is one rendered field row on the day detail panels.
type fieldView struct {
	WorkdayID  string
	Key        string
	Label      string
	EditorType string
	Doc        string
	Display    string
	Raw        any
	Checked    bool
	Changed    bool
	HasError   bool
	HasWarn    bool
	Issues     []model.ValidationIssue
}

type issueView struct {
	model.ValidationIssue
	RegionLabel string
	Anchor      string
}

// dayView is everything the day detail template needs, fully precomputed.
type dayView struct {
	Detail      *model.WorkdayDetail
	Title       string
	StatusLabel string
	StatusClass string
	Released    bool
	Editing     bool
	Dirty       bool

	TBFields []fieldView
	RSFields []fieldView

	SwColumns []model.LayoutField
	SwRows    [][]string
	SwIssues  workday.FieldIssues

	Issues     []issueView
	ErrorCount int
	WarnCount  int
}

func (h *TemplateHandler) layout() model.LayoutConfig {
	l, err := h.layouts.Get(defaultLayoutName)
	if err != nil || l == nil {
		return model.LayoutConfig{}
	}
	return l.Config
}

func (h *TemplateHandler) buildDayView(detail *model.WorkdayDetail, sess *workday.EditSession, editing bool) *dayView {
	cfg := h.layout()
	grouped := workday.GroupIssues(detail.ValidationIssues)
	errCount, warnCount := workday.CountBySeverity(detail.ValidationIssues)

	tb := detail.Tb
	rs := detail.Rs
	var tbOrig *model.DailyReport
	var rsOrig *model.ServiceRecord
	if editing && sess != nil {
		tb = sess.TBDraft
		rs = sess.RSDraft
		tbOrig = sess.TBOriginal
		rsOrig = sess.RSOriginal
	}

	v := &dayView{
		Detail:      detail,
		Title:       fmt.Sprintf("%s · %s", detail.Employee.DisplayName(), detail.Date),
		StatusLabel: export.StatusLabel(detail.Status),
		StatusClass: statusClass(detail.Status),
		Released:    detail.Status == model.StatusReleased,
		Editing:     editing,
		ErrorCount:  errCount,
		WarnCount:   warnCount,
		SwIssues:    workday.StreetwatchIssues(grouped),
	}
	if sess != nil {
		v.Dirty = sess.Dirty()
	}

	for _, f := range cfg.TbFields {
		raw := workday.TBFieldValue(tb, f.Key)
		fv := fieldView{
			WorkdayID:  detail.ID,
			Key:        f.Key,
			Label:      f.Label,
			EditorType: f.EditorType,
			Doc:        "tb",
			Display:    workday.DisplayValue(raw),
			Raw:        raw,
			Checked:    raw == true,
		}
		if editing {
			fv.Changed = workday.TBFieldChanged(tbOrig, tb, f.Key)
		}
		bucket := workday.FieldIssuesFor(grouped, "tb."+f.Key)
		fv.HasError = bucket.HasError()
		fv.HasWarn = bucket.HasWarn()
		fv.Issues = append(bucket.Errors, bucket.Warns...)
		v.TBFields = append(v.TBFields, fv)
	}

	for _, f := range cfg.RsFields {
		raw := workday.RSFieldValue(rs, f.Key)
		fv := fieldView{
			WorkdayID:  detail.ID,
			Key:        f.Key,
			Label:      f.Label,
			EditorType: f.EditorType,
			Doc:        "rs",
			Display:    workday.DisplayValue(raw),
			Raw:        raw,
		}
		if editing {
			fv.Changed = workday.RSFieldChanged(rsOrig, rs, f.Key)
		}
		bucket := workday.FieldIssuesFor(grouped, "rs."+f.Key)
		fv.HasError = bucket.HasError()
		fv.HasWarn = bucket.HasWarn()
		fv.Issues = append(bucket.Errors, bucket.Warns...)
		v.RSFields = append(v.RSFields, fv)
	}

	if detail.Streetwatch != nil {
		v.SwColumns = cfg.StreetwatchColumns
		for _, entry := range detail.Streetwatch.Entries {
			row := make([]string, 0, len(cfg.StreetwatchColumns))
			for _, col := range cfg.StreetwatchColumns {
				row = append(row, workday.DisplayValue(workday.StreetwatchCell(entry, col.Key)))
			}
			v.SwRows = append(v.SwRows, row)
		}
	}

	for _, issue := range detail.ValidationIssues {
		if issue.Severity == model.SeverityOK {
			continue
		}
		region := workday.IssueRegion(issue.FieldRef)
		v.Issues = append(v.Issues, issueView{
			ValidationIssue: issue,
			RegionLabel:     workday.RegionLabel(region),
			Anchor:          "#" + string(region) + "-panel",
		})
	}

	return v
}

func (h *TemplateHandler) loadDay(w http.ResponseWriter, r *http.Request) *model.Workday {
	wd, err := h.workdays.GetByID(r.PathValue("id"))
	if err != nil {
		http.Error(w, "failed to load workday", http.StatusInternalServerError)
		return nil
	}
	if wd == nil {
		http.NotFound(w, r)
		return nil
	}
	return wd
}

// DayPage renders the full day detail view in read mode.
func (h *TemplateHandler) DayPage(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	detail, err := h.days.detail(wd)
	if err != nil {
		http.Error(w, "failed to load workday", http.StatusInternalServerError)
		return
	}
	sess := h.sessions.Get(wd.ID)
	editing := sess != nil && sess.Dirty()
	h.render(w, "day.html", h.buildDayView(detail, sess, editing))
}

// DayEdit opens the edit session and re-renders the panels in edit mode.
// A dirty session is resumed rather than replaced; force discards it.
func (h *TemplateHandler) DayEdit(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	if wd.Status == model.StatusReleased {
		http.Error(w, "workday already released", http.StatusConflict)
		return
	}
	detail, err := h.days.detail(wd)
	if err != nil {
		http.Error(w, "failed to load workday", http.StatusInternalServerError)
		return
	}
	force := r.FormValue("force") == "true"
	sess := h.sessions.Init(wd.ID, detail.Tb, detail.Rs, force)
	h.renderPartial(w, "day-panel", h.buildDayView(detail, sess, true))
}

// DayField applies one field edit to the draft and re-renders the panels so
// changed-field highlighting stays current.
func (h *TemplateHandler) DayField(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	sess := h.sessions.Get(wd.ID)
	if sess == nil {
		http.Error(w, "no edit session", http.StatusConflict)
		return
	}

	doc := r.FormValue("doc")
	key := r.FormValue("key")
	value := r.FormValue("value")
	switch doc {
	case "tb":
		sess.SetTBField(key, value)
	case "rs":
		sess.SetRSField(key, value)
	default:
		http.Error(w, "unknown document", http.StatusBadRequest)
		return
	}

	detail, err := h.days.detail(wd)
	if err != nil {
		http.Error(w, "failed to load workday", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "day-panel", h.buildDayView(detail, sess, true))
}

// DaySave builds the minimal patches from the session, persists them,
// revalidates and renders the panels back in read mode.
func (h *TemplateHandler) DaySave(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	sess := h.sessions.Get(wd.ID)
	if sess == nil {
		http.Error(w, "no edit session", http.StatusConflict)
		return
	}

	userID := auth.UserID(r.Context())
	tbPatch, rsPatch := sess.Patches()
	if !tbPatch.IsEmpty() {
		if _, err := h.reports.ApplyTBPatch(wd.ID, tbPatch, userID); err != nil {
			h.logger.Error("apply tb patch", "error", err, "workdayId", wd.ID)
			http.Error(w, "failed to save changes", http.StatusInternalServerError)
			return
		}
	}
	if !rsPatch.IsEmpty() {
		if _, err := h.reports.ApplyRSPatch(wd.ID, rsPatch, userID); err != nil {
			h.logger.Error("apply rs patch", "error", err, "workdayId", wd.ID)
			http.Error(w, "failed to save changes", http.StatusInternalServerError)
			return
		}
	}

	if _, err := h.days.revalidate(wd.ID); err != nil {
		h.logger.Error("revalidate workday", "error", err, "workdayId", wd.ID)
	}
	h.days.hub.Broadcast(websocket.NewMessage("workday", "updated", wd.ID, nil))

	detail, err := h.days.detail(wd)
	if err != nil {
		http.Error(w, "failed to load workday", http.StatusInternalServerError)
		return
	}
	sess.Saved(detail.Tb, detail.Rs)
	h.renderPartial(w, "day-panel", h.buildDayView(detail, sess, false))
}

// DayCancel discards the edit session and renders read mode.
func (h *TemplateHandler) DayCancel(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	h.sessions.Drop(wd.ID)
	detail, err := h.days.detail(wd)
	if err != nil {
		http.Error(w, "failed to load workday", http.StatusInternalServerError)
		return
	}
	h.renderPartial(w, "day-panel", h.buildDayView(detail, nil, false))
}

// dialogView is the release dialog partial's data.
type dialogView struct {
	WorkdayID   string
	State       pin.GateState
	Masked      string
	LockedUntil string
	PinSet      bool
	Blocked     []model.ValidationIssue
	Error       string
	TargetPath  string
}

func (h *TemplateHandler) dialog(workdayID string) *releaseDialog {
	h.mu.Lock()
	defer h.mu.Unlock()
	d, ok := h.dialogs[workdayID]
	if !ok {
		d = &releaseDialog{gate: pin.NewGate()}
		h.dialogs[workdayID] = d
	}
	return d
}

func (h *TemplateHandler) dialogView(workdayID string, d *releaseDialog, pinSet bool) dialogView {
	v := dialogView{
		WorkdayID: workdayID,
		State:     d.gate.State(),
		Masked:    d.gate.Masked(),
		PinSet:    pinSet,
		Blocked:   d.blocked,
		Error:     d.errMsg,
	}
	if until := d.gate.LockedUntil(); !until.IsZero() {
		v.LockedUntil = until.Format("15:04")
	}
	return v
}

// ReleaseDialog opens the PIN dialog. Reopening resets digit entry; a lock
// stays in effect until it expires.
func (h *TemplateHandler) ReleaseDialog(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	if wd.Status == model.StatusReleased {
		http.Error(w, "workday already released", http.StatusConflict)
		return
	}

	status, err := h.pins.Status(auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "failed to load pin status", http.StatusInternalServerError)
		return
	}

	d := h.dialog(wd.ID)
	d.gate.Reset()
	d.blocked = nil
	d.errMsg = ""
	h.renderPartial(w, "release-dialog", h.dialogView(wd.ID, d, status.IsSet))
}

// ReleaseKey handles one keypad press. The fourth digit auto-submits exactly
// once; while that verify runs no further press can trigger another.
func (h *TemplateHandler) ReleaseKey(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	d := h.dialog(wd.ID)
	d.errMsg = ""

	key := r.FormValue("key")
	switch key {
	case "back":
		d.gate.Backspace()
	case "reset":
		d.gate.Reset()
		d.blocked = nil
	default:
		if len(key) == 1 {
			if entered, submit := d.gate.Press(key[0]); submit {
				h.submitRelease(r, wd, d, entered, false, "")
			}
		}
	}
	h.renderPartial(w, "release-dialog", h.dialogView(wd.ID, d, true))
}

// ReleaseForce re-submits the already verified PIN with the override reason.
func (h *TemplateHandler) ReleaseForce(w http.ResponseWriter, r *http.Request) {
	wd := h.loadDay(w, r)
	if wd == nil {
		return
	}
	d := h.dialog(wd.ID)
	reason := strings.TrimSpace(r.FormValue("overrideReason"))
	if d.verifiedPin == "" {
		d.errMsg = "PIN erneut eingeben"
	} else if reason == "" {
		d.errMsg = "Begründung ist erforderlich"
	} else {
		h.submitRelease(r, wd, d, d.verifiedPin, true, reason)
	}
	h.renderPartial(w, "release-dialog", h.dialogView(wd.ID, d, true))
}

func (h *TemplateHandler) submitRelease(r *http.Request, wd *model.Workday, d *releaseDialog, entered string, force bool, reason string) {
	userID := auth.UserID(r.Context())
	_, err := h.days.release(r.Context(), wd, userID, entered, force, reason)
	if err == nil {
		d.gate.Verified()
		d.verifiedPin = ""
		d.blocked = nil
		h.dropDialog(wd.ID)
		return
	}

	var locked *pin.LockedError
	var blockedErr *ValidationBlockedError
	switch {
	case errors.As(err, &locked):
		d.gate.Locked(locked.Until)
	case errors.As(err, &blockedErr):
		// PIN verified but ERROR issues block the release. Hold the PIN so
		// the override form can resubmit it.
		d.gate.Verified()
		d.verifiedPin = entered
		d.blocked = blockedErr.Issues
	case errors.Is(err, pin.ErrNotSet):
		d.gate.Rejected()
		d.errMsg = "Kein Freigabe-PIN festgelegt"
	case errors.Is(err, pin.ErrMismatch), errors.Is(err, pin.ErrInvalidFormat):
		d.gate.Rejected()
		d.errMsg = "PIN falsch"
	default:
		h.logger.Error("release workday", "error", err, "workdayId", wd.ID)
		d.gate.Rejected()
		d.errMsg = "Freigabe fehlgeschlagen"
	}
}

func (h *TemplateHandler) dropDialog(workdayID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.dialogs, workdayID)
}

// ExportPage renders the export view with the current filter applied.
func (h *TemplateHandler) ExportPage(w http.ResponseWriter, r *http.Request) {
	data, err := h.exportData(r)
	if err != nil {
		http.Error(w, "failed to build document list", http.StatusInternalServerError)
		return
	}
	if r.Header.Get("HX-Request") == "true" {
		h.renderPartial(w, "export-table", data)
		return
	}
	h.render(w, "export.html", data)
}

func (h *TemplateHandler) exportData(r *http.Request) (map[string]any, error) {
	f := filterFromQuery(r)
	docs, err := h.exports.Documents(f)
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"Title":     "Export",
		"Documents": docs,
		"Filter":    f,
		"Query":     r.URL.RawQuery,
	}, nil
}

// SettingsPage renders Form Builder binding and PIN management.
func (h *TemplateHandler) SettingsPage(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.FormAPIConfig()
	if err != nil {
		http.Error(w, "failed to load config", http.StatusInternalServerError)
		return
	}
	status, err := h.pins.Status(auth.UserID(r.Context()))
	if err != nil {
		http.Error(w, "failed to load pin status", http.StatusInternalServerError)
		return
	}
	h.render(w, "settings.html", map[string]any{
		"Title":     "Einstellungen",
		"FormAPI":   cfg,
		"PinStatus": status,
	})
}
