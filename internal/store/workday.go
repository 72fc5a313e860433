package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agng-dev/montron/internal/model"
)

type WorkdayStore struct {
	db *sql.DB
}

func NewWorkdayStore(db *sql.DB) *WorkdayStore {
	return &WorkdayStore{db: db}
}

func scanWorkday(scanner interface{ Scan(...any) error }) (*model.Workday, error) {
	var w model.Workday
	err := scanner.Scan(&w.ID, &w.EmployeeID, &w.Date, &w.Status, &w.CreatedAt, &w.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &w, nil
}

const workdayCols = `id, employee_id, date, status, created_at, updated_at`

func (s *WorkdayStore) GetByID(id string) (*model.Workday, error) {
	row := s.db.QueryRow(`SELECT `+workdayCols+` FROM workdays WHERE id = ?`, id)
	w, err := scanWorkday(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workday: %w", err)
	}
	return w, nil
}

func (s *WorkdayStore) GetByEmployeeAndDate(employeeID, date string) (*model.Workday, error) {
	row := s.db.QueryRow(
		`SELECT `+workdayCols+` FROM workdays WHERE employee_id = ? AND date = ?`,
		employeeID, date,
	)
	w, err := scanWorkday(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get workday by date: %w", err)
	}
	return w, nil
}

// Ensure returns the workday for an employee and date, creating a DRAFT row
// if none exists yet. Ingest and the detail view both funnel through here.
func (s *WorkdayStore) Ensure(employeeID, date string) (*model.Workday, error) {
	existing, err := s.GetByEmployeeAndDate(employeeID, date)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}

	id := uuid.NewString()
	_, err = s.db.Exec(
		`INSERT INTO workdays (id, employee_id, date, status) VALUES (?, ?, ?, ?)`,
		id, employeeID, date, model.StatusDraft,
	)
	if err != nil {
		return nil, fmt.Errorf("insert workday: %w", err)
	}
	return s.GetByID(id)
}

func (s *WorkdayStore) SetStatus(id, status string) error {
	_, err := s.db.Exec(
		`UPDATE workdays SET status = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`,
		status, id,
	)
	if err != nil {
		return fmt.Errorf("set workday status: %w", err)
	}
	return nil
}

func (s *WorkdayStore) Touch(id string) error {
	_, err := s.db.Exec(`UPDATE workdays SET updated_at = CURRENT_TIMESTAMP WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("touch workday: %w", err)
	}
	return nil
}

// Summaries lists an employee's workdays in a date range, newest first, with
// document presence flags and issue counts for the selection list.
func (s *WorkdayStore) Summaries(employeeID, from, to string) ([]model.WorkdaySummary, error) {
	rows, err := s.db.Query(`
		SELECT w.id, w.date, w.status,
			EXISTS (SELECT 1 FROM daily_reports dr WHERE dr.workday_id = w.id),
			EXISTS (SELECT 1 FROM service_records sr WHERE sr.workday_id = w.id),
			EXISTS (SELECT 1 FROM trip_logs tl WHERE tl.workday_id = w.id),
			(SELECT COUNT(*) FROM validation_issues vi WHERE vi.workday_id = w.id AND vi.severity = 'ERROR'),
			(SELECT COUNT(*) FROM validation_issues vi WHERE vi.workday_id = w.id AND vi.severity = 'WARN')
		FROM workdays w
		WHERE w.employee_id = ? AND w.date >= ? AND w.date <= ?
		ORDER BY w.date DESC`,
		employeeID, from, to,
	)
	if err != nil {
		return nil, fmt.Errorf("list workday summaries: %w", err)
	}
	defer rows.Close()

	var summaries []model.WorkdaySummary
	for rows.Next() {
		var sm model.WorkdaySummary
		err := rows.Scan(&sm.ID, &sm.Date, &sm.Status, &sm.HasTb, &sm.HasRs, &sm.HasStreetwatch, &sm.ErrorCount, &sm.WarnCount)
		if err != nil {
			return nil, fmt.Errorf("scan workday summary: %w", err)
		}
		summaries = append(summaries, sm)
	}
	return summaries, rows.Err()
}

// --- Trip logs ---

func (s *WorkdayStore) GetTripLog(workdayID string) (*model.TripLog, error) {
	row := s.db.QueryRow(
		`SELECT license_plate, date, entries FROM trip_logs WHERE workday_id = ?`,
		workdayID,
	)
	var t model.TripLog
	var entries string
	err := row.Scan(&t.LicensePlate, &t.Date, &entries)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get trip log: %w", err)
	}
	if err := json.Unmarshal([]byte(entries), &t.Entries); err != nil {
		return nil, fmt.Errorf("decode trip entries: %w", err)
	}
	return &t, nil
}

func (s *WorkdayStore) UpsertTripLog(workdayID string, t model.TripLog) error {
	entries, err := json.Marshal(t.Entries)
	if err != nil {
		return fmt.Errorf("encode trip entries: %w", err)
	}
	_, err = s.db.Exec(`
		INSERT INTO trip_logs (workday_id, license_plate, date, entries) VALUES (?, ?, ?, ?)
		ON CONFLICT (workday_id) DO UPDATE SET license_plate = excluded.license_plate, date = excluded.date, entries = excluded.entries`,
		workdayID, t.LicensePlate, t.Date, string(entries),
	)
	if err != nil {
		return fmt.Errorf("upsert trip log: %w", err)
	}
	return nil
}

// --- Attachments ---

func scanAttachment(scanner interface{ Scan(...any) error }) (*model.Attachment, error) {
	var a model.Attachment
	err := scanner.Scan(&a.ID, &a.Kind, &a.Filename, &a.S3Key, &a.Bytes, &a.SourceSubmissionID)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *WorkdayStore) ListAttachments(workdayID string) ([]model.Attachment, error) {
	rows, err := s.db.Query(
		`SELECT id, kind, filename, s3_key, bytes, source_submission_id FROM attachments WHERE workday_id = ? ORDER BY filename ASC`,
		workdayID,
	)
	if err != nil {
		return nil, fmt.Errorf("list attachments: %w", err)
	}
	defer rows.Close()

	var attachments []model.Attachment
	for rows.Next() {
		a, err := scanAttachment(rows)
		if err != nil {
			return nil, fmt.Errorf("scan attachment: %w", err)
		}
		attachments = append(attachments, *a)
	}
	return attachments, rows.Err()
}

func (s *WorkdayStore) AddAttachment(workdayID string, a model.Attachment) (*model.Attachment, error) {
	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	_, err := s.db.Exec(
		`INSERT INTO attachments (id, workday_id, kind, filename, s3_key, bytes, source_submission_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
		a.ID, workdayID, a.Kind, a.Filename, a.S3Key, a.Bytes, a.SourceSubmissionID,
	)
	if err != nil {
		return nil, fmt.Errorf("insert attachment: %w", err)
	}
	return &a, nil
}

// ReplaceAttachments swaps the attachments a given submission contributed to
// a workday. Attachments from other submissions are left alone.
func (s *WorkdayStore) ReplaceAttachments(workdayID, sourceSubmissionID string, attachments []model.Attachment) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		`DELETE FROM attachments WHERE workday_id = ? AND source_submission_id = ?`,
		workdayID, sourceSubmissionID,
	)
	if err != nil {
		return fmt.Errorf("delete attachments: %w", err)
	}

	for _, a := range attachments {
		id := a.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = tx.Exec(
			`INSERT INTO attachments (id, workday_id, kind, filename, s3_key, bytes, source_submission_id) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, workdayID, a.Kind, a.Filename, a.S3Key, a.Bytes, sourceSubmissionID,
		)
		if err != nil {
			return fmt.Errorf("insert attachment: %w", err)
		}
	}
	return tx.Commit()
}

// --- Validation issues ---

// ReplaceIssues swaps the persisted issue set for a workday in one
// transaction, assigning fresh IDs. Recalculation always replaces wholesale.
func (s *WorkdayStore) ReplaceIssues(workdayID string, issues []model.ValidationIssue) error {
	tx, err := s.db.Begin()
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM validation_issues WHERE workday_id = ?`, workdayID); err != nil {
		return fmt.Errorf("clear issues: %w", err)
	}
	for _, iss := range issues {
		delta, err := json.Marshal(iss.Delta)
		if err != nil {
			return fmt.Errorf("encode issue delta: %w", err)
		}
		id := iss.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = tx.Exec(
			`INSERT INTO validation_issues (id, workday_id, code, severity, message, field_ref, delta) VALUES (?, ?, ?, ?, ?, ?, ?)`,
			id, workdayID, iss.Code, iss.Severity, iss.Message, iss.FieldRef, string(delta),
		)
		if err != nil {
			return fmt.Errorf("insert issue: %w", err)
		}
	}
	return tx.Commit()
}

func (s *WorkdayStore) ListIssues(workdayID string) ([]model.ValidationIssue, error) {
	rows, err := s.db.Query(
		`SELECT id, code, severity, message, field_ref, delta FROM validation_issues WHERE workday_id = ? ORDER BY severity ASC, code ASC`,
		workdayID,
	)
	if err != nil {
		return nil, fmt.Errorf("list issues: %w", err)
	}
	defer rows.Close()

	var issues []model.ValidationIssue
	for rows.Next() {
		var iss model.ValidationIssue
		var delta string
		if err := rows.Scan(&iss.ID, &iss.Code, &iss.Severity, &iss.Message, &iss.FieldRef, &delta); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		if err := json.Unmarshal([]byte(delta), &iss.Delta); err != nil {
			return nil, fmt.Errorf("decode issue delta: %w", err)
		}
		issues = append(issues, iss)
	}
	return issues, rows.Err()
}
