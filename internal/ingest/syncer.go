package ingest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/store"
	"github.com/agng-dev/montron/internal/websocket"
	"github.com/agng-dev/montron/internal/workday"
)

const (
	feedEmployees   = "employees"
	feedSubmissions = "submissions"

	defaultInterval = 5 * time.Minute
)

// Syncer pulls employees and form submissions from the Form Builder on an
// interval and reconciles them into the local database. Each feed keeps an
// updatedAfter cursor so a pull only sees records changed since the last run.
type Syncer struct {
	client    *formapi.Client
	employees *store.EmployeeStore
	workdays  *store.WorkdayStore
	reports   *store.ReportStore
	config    *store.ConfigStore
	hub       *websocket.Hub
	logger    *slog.Logger
	interval  time.Duration
	stopCh    chan struct{}
	stopped   chan struct{}
}

// NewSyncer creates a Syncer. A zero interval falls back to the default.
func NewSyncer(
	client *formapi.Client,
	employees *store.EmployeeStore,
	workdays *store.WorkdayStore,
	reports *store.ReportStore,
	config *store.ConfigStore,
	hub *websocket.Hub,
	logger *slog.Logger,
	interval time.Duration,
) *Syncer {
	if interval == 0 {
		interval = defaultInterval
	}
	return &Syncer{
		client:    client,
		employees: employees,
		workdays:  workdays,
		reports:   reports,
		config:    config,
		hub:       hub,
		logger:    logger.With("component", "ingest"),
		interval:  interval,
		stopCh:    make(chan struct{}),
		stopped:   make(chan struct{}),
	}
}

// Start runs an initial sync and then launches the background loop.
func (s *Syncer) Start(ctx context.Context) {
	if err := s.SyncOnce(ctx); err != nil {
		s.logger.Error("initial sync", "error", err)
	}

	go func() {
		defer close(s.stopped)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ticker.C:
				if err := s.SyncOnce(ctx); err != nil {
					s.logger.Error("sync", "error", err)
				}
			case <-s.stopCh:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop halts the background loop and waits for it to exit.
func (s *Syncer) Stop() {
	close(s.stopCh)
	<-s.stopped
}

// SyncOnce performs a single pull of both feeds. When the Form Builder
// binding is not configured yet, it is a no-op.
func (s *Syncer) SyncOnce(ctx context.Context) error {
	if !s.client.Configured() {
		s.logger.Debug("form api not configured, skipping sync")
		return nil
	}

	if err := s.syncEmployees(ctx); err != nil {
		return fmt.Errorf("sync employees: %w", err)
	}
	if err := s.syncSubmissions(ctx); err != nil {
		return fmt.Errorf("sync submissions: %w", err)
	}
	return nil
}

func (s *Syncer) syncEmployees(ctx context.Context) error {
	cursor, err := s.config.Cursor(feedEmployees)
	if err != nil {
		return err
	}

	feed, err := s.client.ListEmployees(ctx, cursor)
	if err != nil {
		return err
	}
	if len(feed) == 0 {
		return nil
	}

	latest := cursor
	for _, fe := range feed {
		updatedAt, err := time.Parse(time.RFC3339, fe.UpdatedAt)
		if err != nil {
			s.logger.Warn("employee with invalid updatedAt", "id", fe.ID, "updatedAt", fe.UpdatedAt)
			updatedAt = time.Now().UTC()
		}
		_, err = s.employees.Upsert(model.Employee{
			ID:         fe.ID,
			Username:   fe.Username,
			FirstName:  fe.FirstName,
			LastName:   fe.LastName,
			Department: fe.Department,
			Active:     fe.Active,
			UpdatedAt:  updatedAt,
		})
		if err != nil {
			return fmt.Errorf("upsert employee %s: %w", fe.Username, err)
		}
		if fe.UpdatedAt > latest {
			latest = fe.UpdatedAt
		}
	}

	s.logger.Info("employees synced", "count", len(feed))
	return s.config.SetCursor(feedEmployees, latest)
}

func (s *Syncer) syncSubmissions(ctx context.Context) error {
	cursor, err := s.config.Cursor(feedSubmissions)
	if err != nil {
		return err
	}

	subs, err := s.client.ListSubmissions(ctx, cursor)
	if err != nil {
		return err
	}
	if len(subs) == 0 {
		return nil
	}

	latest := cursor
	touched := make(map[string]bool)
	for _, sub := range subs {
		workdayID, err := s.applySubmission(sub)
		if err != nil {
			s.logger.Error("apply submission", "id", sub.ID, "type", sub.DocumentType, "error", err)
			continue
		}
		if workdayID != "" {
			touched[workdayID] = true
		}
		if sub.UpdatedAt > latest {
			latest = sub.UpdatedAt
		}
	}

	for id := range touched {
		if err := s.revalidate(id); err != nil {
			s.logger.Error("revalidate workday", "workdayId", id, "error", err)
			continue
		}
		s.hub.Broadcast(websocket.NewMessage("workday", "updated", id, nil))
	}

	s.logger.Info("submissions synced", "count", len(subs), "workdays", len(touched))
	return s.config.SetCursor(feedSubmissions, latest)
}

// applySubmission routes one submission by document type and returns the ID
// of the workday it landed on, or "" when it was skipped.
func (s *Syncer) applySubmission(sub formapi.Submission) (string, error) {
	employee, err := s.employees.GetByUsername(sub.Username)
	if err != nil {
		return "", err
	}
	if employee == nil {
		s.logger.Warn("submission for unknown employee, skipping", "id", sub.ID, "username", sub.Username)
		return "", nil
	}

	wd, err := s.workdays.Ensure(employee.ID, sub.Date)
	if err != nil {
		return "", err
	}

	switch sub.DocumentType {
	case "TB":
		return wd.ID, s.applyDailyReport(wd.ID, sub)
	case "RS":
		return wd.ID, s.applyServiceRecord(wd.ID, sub)
	case "SW":
		return wd.ID, s.applyTripLog(wd.ID, sub)
	default:
		s.logger.Warn("unknown document type, skipping", "id", sub.ID, "type", sub.DocumentType)
		return "", nil
	}
}

type tbPayload struct {
	StartTime     *string             `json:"startTime"`
	EndTime       *string             `json:"endTime"`
	BreakMinutes  *int                `json:"breakMinutes"`
	TravelMinutes *int                `json:"travelMinutes"`
	LicensePlate  *string             `json:"licensePlate"`
	Department    *string             `json:"department"`
	Overnight     *bool               `json:"overnight"`
	KmStart       *int                `json:"kmStart"`
	KmEnd         *int                `json:"kmEnd"`
	Comment       *string             `json:"comment"`
	Extra         map[string]any      `json:"extra"`
	Attachments   []attachmentPayload `json:"attachments"`
}

type rsPayload struct {
	CustomerID   *string             `json:"customerId"`
	CustomerName *string             `json:"customerName"`
	StartTime    *string             `json:"startTime"`
	EndTime      *string             `json:"endTime"`
	BreakMinutes *int                `json:"breakMinutes"`
	Positions    []model.Position    `json:"positions"`
	PdfObjectKey *string             `json:"pdfObjectKey"`
	Attachments  []attachmentPayload `json:"attachments"`
}

type swPayload struct {
	LicensePlate *string           `json:"licensePlate"`
	Entries      []model.TripEntry `json:"entries"`
}

type attachmentPayload struct {
	Kind     string `json:"kind"`
	Filename string `json:"filename"`
	S3Key    string `json:"s3Key"`
	Bytes    int64  `json:"bytes"`
}

func (s *Syncer) applyDailyReport(workdayID string, sub formapi.Submission) error {
	var p tbPayload
	if err := json.Unmarshal(sub.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	_, err := s.reports.UpsertDailyReport(workdayID, model.DailyReport{
		SourceSubmissionID: &sub.ID,
		StartTime:          p.StartTime,
		EndTime:            p.EndTime,
		BreakMinutes:       p.BreakMinutes,
		TravelMinutes:      p.TravelMinutes,
		LicensePlate:       p.LicensePlate,
		Department:         p.Department,
		Overnight:          p.Overnight,
		KmStart:            p.KmStart,
		KmEnd:              p.KmEnd,
		Comment:            p.Comment,
		Extra:              p.Extra,
	})
	if err != nil {
		return err
	}
	return s.replaceAttachments(workdayID, sub.ID, p.Attachments)
}

func (s *Syncer) applyServiceRecord(workdayID string, sub formapi.Submission) error {
	var p rsPayload
	if err := json.Unmarshal(sub.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	_, err := s.reports.UpsertServiceRecord(workdayID, model.ServiceRecord{
		SourceSubmissionID: &sub.ID,
		CustomerID:         p.CustomerID,
		CustomerName:       p.CustomerName,
		StartTime:          p.StartTime,
		EndTime:            p.EndTime,
		BreakMinutes:       p.BreakMinutes,
		Positions:          p.Positions,
		PdfObjectKey:       p.PdfObjectKey,
	})
	if err != nil {
		return err
	}
	return s.replaceAttachments(workdayID, sub.ID, p.Attachments)
}

func (s *Syncer) applyTripLog(workdayID string, sub formapi.Submission) error {
	var p swPayload
	if err := json.Unmarshal(sub.Payload, &p); err != nil {
		return fmt.Errorf("decode payload: %w", err)
	}

	return s.workdays.UpsertTripLog(workdayID, model.TripLog{
		LicensePlate: p.LicensePlate,
		Date:         sub.Date,
		Entries:      p.Entries,
	})
}

func (s *Syncer) replaceAttachments(workdayID, submissionID string, payloads []attachmentPayload) error {
	attachments := make([]model.Attachment, 0, len(payloads))
	for _, a := range payloads {
		attachments = append(attachments, model.Attachment{
			Kind:     a.Kind,
			Filename: a.Filename,
			S3Key:    a.S3Key,
			Bytes:    a.Bytes,
		})
	}
	return s.workdays.ReplaceAttachments(workdayID, submissionID, attachments)
}

// revalidate reloads a workday's documents, recomputes the issue set, and
// persists it.
func (s *Syncer) revalidate(workdayID string) error {
	tb, err := s.reports.GetDailyReport(workdayID)
	if err != nil {
		return err
	}
	rs, err := s.reports.GetServiceRecord(workdayID)
	if err != nil {
		return err
	}
	sw, err := s.workdays.GetTripLog(workdayID)
	if err != nil {
		return err
	}

	issues := workday.Validate(tb, rs, sw)
	if err := s.workdays.ReplaceIssues(workdayID, issues); err != nil {
		return err
	}
	return s.workdays.Touch(workdayID)
}
