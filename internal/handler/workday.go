package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/pdf"
	"github.com/agng-dev/montron/internal/pin"
	"github.com/agng-dev/montron/internal/storage"
	"github.com/agng-dev/montron/internal/store"
	"github.com/agng-dev/montron/internal/websocket"
	"github.com/agng-dev/montron/internal/workday"
)

type WorkdayHandler struct {
	workdays   *store.WorkdayStore
	reports    *store.ReportStore
	employees  *store.EmployeeStore
	audits     *store.AuditStore
	pins       *pin.Service
	storage    *storage.Store
	formClient *formapi.Client
	hub        *websocket.Hub
	logger     *slog.Logger
}

func NewWorkdayHandler(
	ws *store.WorkdayStore,
	rs *store.ReportStore,
	es *store.EmployeeStore,
	as *store.AuditStore,
	pins *pin.Service,
	st *storage.Store,
	formClient *formapi.Client,
	hub *websocket.Hub,
	logger *slog.Logger,
) *WorkdayHandler {
	return &WorkdayHandler{
		workdays:   ws,
		reports:    rs,
		employees:  es,
		audits:     as,
		pins:       pins,
		storage:    st,
		formClient: formClient,
		hub:        hub,
		logger:     logger,
	}
}

// detail assembles the full day bundle.
func (h *WorkdayHandler) detail(wd *model.Workday) (*model.WorkdayDetail, error) {
	employee, err := h.employees.GetByID(wd.EmployeeID)
	if err != nil {
		return nil, err
	}
	tb, err := h.reports.GetDailyReport(wd.ID)
	if err != nil {
		return nil, err
	}
	rs, err := h.reports.GetServiceRecord(wd.ID)
	if err != nil {
		return nil, err
	}
	sw, err := h.workdays.GetTripLog(wd.ID)
	if err != nil {
		return nil, err
	}
	attachments, err := h.workdays.ListAttachments(wd.ID)
	if err != nil {
		return nil, err
	}
	issues, err := h.workdays.ListIssues(wd.ID)
	if err != nil {
		return nil, err
	}
	return &model.WorkdayDetail{
		ID:               wd.ID,
		Date:             wd.Date,
		Status:           wd.Status,
		Employee:         employee,
		Tb:               tb,
		Rs:               rs,
		Streetwatch:      sw,
		Attachments:      attachments,
		ValidationIssues: issues,
	}, nil
}

func (h *WorkdayHandler) Get(w http.ResponseWriter, r *http.Request) {
	wd, err := h.workdays.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get workday", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get workday")
		return
	}
	if wd == nil {
		writeError(w, http.StatusNotFound, "workday not found")
		return
	}

	detail, err := h.detail(wd)
	if err != nil {
		h.logger.Error("assemble workday detail", "error", err, "workdayId", wd.ID)
		writeError(w, http.StatusInternalServerError, "failed to load workday")
		return
	}
	writeJSON(w, http.StatusOK, detail)
}

// PatchTB applies a partial update to the day's Tagesbericht. The body is a
// JSON object of changed fields; nil clears a field, absent keys stay
// untouched.
func (h *WorkdayHandler) PatchTB(w http.ResponseWriter, r *http.Request) {
	h.patchDocument(w, r, "tb")
}

// PatchRS applies a partial update to the day's Regieschein. A "positions"
// key replaces the whole positions list.
func (h *WorkdayHandler) PatchRS(w http.ResponseWriter, r *http.Request) {
	h.patchDocument(w, r, "rs")
}

func (h *WorkdayHandler) patchDocument(w http.ResponseWriter, r *http.Request, kind string) {
	wd, err := h.workdays.GetByID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get workday")
		return
	}
	if wd == nil {
		writeError(w, http.StatusNotFound, "workday not found")
		return
	}
	if wd.Status == model.StatusReleased {
		writeError(w, http.StatusConflict, "workday already released")
		return
	}

	var patch map[string]any
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	userID := auth.UserID(r.Context())
	var doc any
	switch kind {
	case "tb":
		tb, err := h.reports.ApplyTBPatch(wd.ID, patch, userID)
		if err != nil {
			h.logger.Error("apply tb patch", "error", err, "workdayId", wd.ID)
			writeError(w, http.StatusInternalServerError, "failed to save changes")
			return
		}
		if tb == nil {
			writeError(w, http.StatusNotFound, "no daily report for this workday")
			return
		}
		doc = tb
	case "rs":
		rs, err := h.reports.ApplyRSPatch(wd.ID, patch, userID)
		if err != nil {
			h.logger.Error("apply rs patch", "error", err, "workdayId", wd.ID)
			writeError(w, http.StatusInternalServerError, "failed to save changes")
			return
		}
		if rs == nil {
			writeError(w, http.StatusNotFound, "no service record for this workday")
			return
		}
		doc = rs
	}

	issues, err := h.revalidate(wd.ID)
	if err != nil {
		h.logger.Error("revalidate workday", "error", err, "workdayId", wd.ID)
		writeError(w, http.StatusInternalServerError, "failed to revalidate")
		return
	}

	h.hub.Broadcast(websocket.NewMessage("workday", "updated", wd.ID, nil))
	writeJSON(w, http.StatusOK, map[string]any{
		kind:               doc,
		"validationIssues": issues,
	})
}

// revalidate recomputes and persists the day's issue set.
func (h *WorkdayHandler) revalidate(workdayID string) ([]model.ValidationIssue, error) {
	tb, err := h.reports.GetDailyReport(workdayID)
	if err != nil {
		return nil, err
	}
	rs, err := h.reports.GetServiceRecord(workdayID)
	if err != nil {
		return nil, err
	}
	sw, err := h.workdays.GetTripLog(workdayID)
	if err != nil {
		return nil, err
	}

	issues := workday.Validate(tb, rs, sw)
	if err := h.workdays.ReplaceIssues(workdayID, issues); err != nil {
		return nil, err
	}
	return h.workdays.ListIssues(workdayID)
}

// GeneratePdf renders the day's TB or RS document. The PDF is returned
// inline; when object storage is configured it is archived there as well.
func (h *WorkdayHandler) GeneratePdf(w http.ResponseWriter, r *http.Request) {
	wd, err := h.workdays.GetByID(r.PathValue("id"))
	if err != nil || wd == nil {
		writeError(w, http.StatusNotFound, "workday not found")
		return
	}
	kind := r.PathValue("kind")

	data, key, err := h.renderPdf(wd, kind)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.storage.Enabled() {
		if err := h.storage.Upload(r.Context(), key, "application/pdf", strings.NewReader(string(data))); err != nil {
			h.logger.Error("archive pdf", "error", err, "key", key)
		}
	}

	w.Header().Set("Content-Type", "application/pdf")
	w.Header().Set("Content-Disposition", fmt.Sprintf("inline; filename=%q", key[strings.LastIndexByte(key, '/')+1:]))
	w.Write(data)
}

func (h *WorkdayHandler) renderPdf(wd *model.Workday, kind string) ([]byte, string, error) {
	employee, err := h.employees.GetByID(wd.EmployeeID)
	if err != nil || employee == nil {
		return nil, "", fmt.Errorf("employee not found")
	}

	switch kind {
	case "tb":
		tb, err := h.reports.GetDailyReport(wd.ID)
		if err != nil || tb == nil {
			return nil, "", fmt.Errorf("no daily report for this workday")
		}
		doc := pdf.DailyReportDoc(employee.DisplayName(), wd.Date, tb)
		return pdf.Render(doc), fmt.Sprintf("released/%s/TB_%s.pdf", wd.ID, wd.Date), nil
	case "rs":
		rs, err := h.reports.GetServiceRecord(wd.ID)
		if err != nil || rs == nil {
			return nil, "", fmt.Errorf("no service record for this workday")
		}
		doc := pdf.ServiceRecordDoc(employee.DisplayName(), wd.Date, rs)
		return pdf.Render(doc), fmt.Sprintf("released/%s/RS_%s.pdf", wd.ID, wd.Date), nil
	default:
		return nil, "", fmt.Errorf("unknown document kind %q", kind)
	}
}

type presignRequest struct {
	AttachmentID string `json:"attachmentId"`
}

// PresignDownload returns a short-lived URL for an attachment file. Own
// object storage is preferred; otherwise the Form Builder presigns the
// original upload.
func (h *WorkdayHandler) PresignDownload(w http.ResponseWriter, r *http.Request) {
	wd, err := h.workdays.GetByID(r.PathValue("id"))
	if err != nil || wd == nil {
		writeError(w, http.StatusNotFound, "workday not found")
		return
	}

	var req presignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	attachments, err := h.workdays.ListAttachments(wd.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list attachments")
		return
	}
	var att *model.Attachment
	for i := range attachments {
		if attachments[i].ID == req.AttachmentID {
			att = &attachments[i]
			break
		}
	}
	if att == nil {
		writeError(w, http.StatusNotFound, "attachment not found")
		return
	}

	if h.storage.Enabled() {
		url, err := h.storage.PresignDownload(r.Context(), att.S3Key, 15*time.Minute)
		if err != nil {
			h.logger.Error("presign attachment", "error", err, "key", att.S3Key)
			writeError(w, http.StatusInternalServerError, "failed to presign download")
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"url": url})
		return
	}

	if att.SourceSubmissionID == nil {
		writeError(w, http.StatusNotFound, "attachment has no source submission")
		return
	}
	url, err := h.formClient.PresignedURL(r.Context(), *att.SourceSubmissionID, att.Filename)
	if err != nil {
		h.logger.Error("presign via form api", "error", err)
		writeError(w, http.StatusBadGateway, "failed to presign download")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"url": url})
}

// ReleaseRequestPin is step one of the release flow: it reports whether the
// day can be released and the caller's PIN state, so the dialog can render.
func (h *WorkdayHandler) ReleaseRequestPin(w http.ResponseWriter, r *http.Request) {
	wd, err := h.workdays.GetByID(r.PathValue("id"))
	if err != nil || wd == nil {
		writeError(w, http.StatusNotFound, "workday not found")
		return
	}
	if wd.Status == model.StatusReleased {
		writeError(w, http.StatusConflict, "workday already released")
		return
	}

	status, err := h.pins.Status(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("pin status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load pin status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type releaseRequest struct {
	Pin            string `json:"pin"`
	Force          bool   `json:"force"`
	OverrideReason string `json:"overrideReason"`
}

// ReleaseConfirm is step two: verify the PIN, revalidate, refuse on ERROR
// issues unless forced with a reason, archive the PDFs, and mark the day
// released.
func (h *WorkdayHandler) ReleaseConfirm(w http.ResponseWriter, r *http.Request) {
	wd, err := h.workdays.GetByID(r.PathValue("id"))
	if err != nil || wd == nil {
		writeError(w, http.StatusNotFound, "workday not found")
		return
	}
	if wd.Status == model.StatusReleased {
		writeError(w, http.StatusConflict, "workday already released")
		return
	}

	var req releaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	userID := auth.UserID(r.Context())
	targetPath, err := h.release(r.Context(), wd, userID, req.Pin, req.Force, req.OverrideReason)
	if err != nil {
		var locked *pin.LockedError
		var blocked *ValidationBlockedError
		switch {
		case errors.As(err, &locked):
			writeJSON(w, http.StatusLocked, map[string]any{
				"error":       "pin locked",
				"lockedUntil": locked.Until,
			})
		case errors.Is(err, pin.ErrNotSet):
			writeError(w, http.StatusPreconditionFailed, "no release pin set")
		case errors.As(err, &blocked):
			writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
				"error":            "validation errors present",
				"validationIssues": blocked.Issues,
			})
		case errors.Is(err, errOverrideReasonRequired):
			writeError(w, http.StatusBadRequest, "override reason is required")
		case errors.Is(err, pin.ErrInvalidFormat):
			writeError(w, http.StatusBadRequest, "PIN must be exactly 4 digits")
		case errors.Is(err, pin.ErrMismatch):
			writeError(w, http.StatusUnauthorized, "invalid pin")
		default:
			h.logger.Error("release workday", "error", err, "workdayId", wd.ID)
			writeError(w, http.StatusInternalServerError, "failed to release workday")
		}
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":     model.StatusReleased,
		"targetPath": targetPath,
	})
}

// ValidationBlockedError refuses a release while ERROR issues are present and
// no override was given.
type ValidationBlockedError struct {
	Issues []model.ValidationIssue
}

func (e *ValidationBlockedError) Error() string {
	return "validation errors present"
}

var errOverrideReasonRequired = errors.New("override reason is required")

// release runs the full release pipeline: verify the PIN, revalidate, refuse
// on ERROR issues unless forced with a reason, archive the PDFs, record the
// audit row and flip the status. Shared by the JSON API and the HTMX dialog.
func (h *WorkdayHandler) release(ctx context.Context, wd *model.Workday, userID, pinCandidate string, force bool, overrideReason string) (string, error) {
	if err := h.pins.Verify(userID, pinCandidate); err != nil {
		return "", err
	}

	issues, err := h.revalidate(wd.ID)
	if err != nil {
		return "", fmt.Errorf("revalidate: %w", err)
	}
	if hasError(issues) {
		if !force {
			return "", &ValidationBlockedError{Issues: issues}
		}
		if strings.TrimSpace(overrideReason) == "" {
			return "", errOverrideReasonRequired
		}
	}

	targetPath, err := h.archivePdfs(ctx, wd)
	if err != nil {
		return "", fmt.Errorf("archive pdfs: %w", err)
	}

	if _, err := h.audits.CreateReleaseAction(wd.ID, userID, pinCandidate, targetPath); err != nil {
		return "", fmt.Errorf("record release: %w", err)
	}
	if err := h.workdays.SetStatus(wd.ID, model.StatusReleased); err != nil {
		return "", fmt.Errorf("set status: %w", err)
	}

	h.logger.Info("workday released", "workdayId", wd.ID, "userId", userID, "forced", force)
	h.hub.Broadcast(websocket.NewMessage("workday", "released", wd.ID, nil))
	return targetPath, nil
}

// archivePdfs renders both documents and stores them when object storage is
// configured. Days with only one document archive just that one.
func (h *WorkdayHandler) archivePdfs(ctx context.Context, wd *model.Workday) (string, error) {
	targetPath := fmt.Sprintf("released/%s", wd.ID)
	for _, kind := range []string{"tb", "rs"} {
		data, key, err := h.renderPdf(wd, kind)
		if err != nil {
			continue // document kind not present on this day
		}
		if h.storage.Enabled() {
			if err := h.storage.Upload(ctx, key, "application/pdf", strings.NewReader(string(data))); err != nil {
				return "", err
			}
		}
		if kind == "rs" {
			if err := h.reports.SetPdfObjectKey(wd.ID, key); err != nil {
				return "", err
			}
		}
	}
	return targetPath, nil
}

func hasError(issues []model.ValidationIssue) bool {
	for _, issue := range issues {
		if issue.Severity == model.SeverityError {
			return true
		}
	}
	return false
}

