package store

import (
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/workday"
)

// ReportStore persists the two editable documents of a workday: the daily
// report and the service record. Patches are applied field by field with
// audit entries and a version bump in one transaction.
type ReportStore struct {
	db *sql.DB
}

func NewReportStore(db *sql.DB) *ReportStore {
	return &ReportStore{db: db}
}

// --- Daily reports ---

const dailyReportCols = `id, source_submission_id, start_time, end_time, break_minutes, travel_minutes,
	license_plate, department, overnight, km_start, km_end, comment, extra, version`

func scanDailyReport(scanner interface{ Scan(...any) error }) (*model.DailyReport, error) {
	var r model.DailyReport
	var extra string
	err := scanner.Scan(
		&r.ID, &r.SourceSubmissionID, &r.StartTime, &r.EndTime, &r.BreakMinutes, &r.TravelMinutes,
		&r.LicensePlate, &r.Department, &r.Overnight, &r.KmStart, &r.KmEnd, &r.Comment, &extra, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(extra), &r.Extra); err != nil {
		return nil, fmt.Errorf("decode extra: %w", err)
	}
	return &r, nil
}

func (s *ReportStore) GetDailyReport(workdayID string) (*model.DailyReport, error) {
	row := s.db.QueryRow(`SELECT `+dailyReportCols+` FROM daily_reports WHERE workday_id = ?`, workdayID)
	r, err := scanDailyReport(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get daily report: %w", err)
	}
	return r, nil
}

// UpsertDailyReport writes a full daily report row for ingest. Existing
// corrections win: a row that was already edited locally (version > 1)
// is left untouched.
func (s *ReportStore) UpsertDailyReport(workdayID string, r model.DailyReport) (*model.DailyReport, error) {
	existing, err := s.GetDailyReport(workdayID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Version > 1 {
		return existing, nil
	}

	extra, err := json.Marshal(orEmptyMap(r.Extra))
	if err != nil {
		return nil, fmt.Errorf("encode extra: %w", err)
	}

	if existing == nil {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = s.db.Exec(`
			INSERT INTO daily_reports (id, workday_id, source_submission_id, start_time, end_time, break_minutes,
				travel_minutes, license_plate, department, overnight, km_start, km_end, comment, extra)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, workdayID, r.SourceSubmissionID, r.StartTime, r.EndTime, r.BreakMinutes,
			r.TravelMinutes, r.LicensePlate, r.Department, r.Overnight, r.KmStart, r.KmEnd, r.Comment, string(extra),
		)
		if err != nil {
			return nil, fmt.Errorf("insert daily report: %w", err)
		}
		return s.GetDailyReport(workdayID)
	}

	_, err = s.db.Exec(`
		UPDATE daily_reports SET source_submission_id = ?, start_time = ?, end_time = ?, break_minutes = ?,
			travel_minutes = ?, license_plate = ?, department = ?, overnight = ?, km_start = ?, km_end = ?,
			comment = ?, extra = ? WHERE workday_id = ?`,
		r.SourceSubmissionID, r.StartTime, r.EndTime, r.BreakMinutes,
		r.TravelMinutes, r.LicensePlate, r.Department, r.Overnight, r.KmStart, r.KmEnd,
		r.Comment, string(extra), workdayID,
	)
	if err != nil {
		return nil, fmt.Errorf("update daily report: %w", err)
	}
	return s.GetDailyReport(workdayID)
}

// ApplyTBPatch applies a partial update to a workday's daily report. A key
// present with nil clears the field; time values snap to the 15-minute
// raster. Every actual change writes an audit entry, and any change bumps
// the version once. An empty or no-op patch leaves the row untouched.
// Returns nil when the workday has no daily report.
func (s *ReportStore) ApplyTBPatch(workdayID string, patch map[string]any, userID string) (*model.DailyReport, error) {
	current, err := s.GetDailyReport(workdayID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	draft := current.Clone()
	for key, raw := range patch {
		if isTimeKey(key) {
			raw = roundTimeValue(raw)
		}
		workday.SetTBField(draft, key, raw)
	}

	var audits []model.AuditEntry
	for key := range patch {
		prev := workday.TBFieldValue(current, key)
		next := workday.TBFieldValue(draft, key)
		if !workday.ValuesDiffer(prev, next) {
			continue
		}
		audits = append(audits, model.AuditEntry{
			EntityType: "TB",
			EntityID:   current.ID,
			Field:      key,
			OldValue:   auditString(prev),
			NewValue:   auditString(next),
			UserID:     userID,
		})
	}
	if len(audits) == 0 {
		return current, nil
	}

	extra, err := json.Marshal(orEmptyMap(draft.Extra))
	if err != nil {
		return nil, fmt.Errorf("encode extra: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE daily_reports SET start_time = ?, end_time = ?, break_minutes = ?, travel_minutes = ?,
			license_plate = ?, department = ?, overnight = ?, km_start = ?, km_end = ?, comment = ?,
			extra = ?, version = version + 1 WHERE workday_id = ?`,
		draft.StartTime, draft.EndTime, draft.BreakMinutes, draft.TravelMinutes,
		draft.LicensePlate, draft.Department, draft.Overnight, draft.KmStart, draft.KmEnd, draft.Comment,
		string(extra), workdayID,
	)
	if err != nil {
		return nil, fmt.Errorf("patch daily report: %w", err)
	}
	if err := insertAudits(tx, audits); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetDailyReport(workdayID)
}

// --- Service records ---

const serviceRecordCols = `id, source_submission_id, customer_id, customer_name, start_time, end_time,
	break_minutes, positions, pdf_object_key, version`

func scanServiceRecord(scanner interface{ Scan(...any) error }) (*model.ServiceRecord, error) {
	var r model.ServiceRecord
	var positions string
	err := scanner.Scan(
		&r.ID, &r.SourceSubmissionID, &r.CustomerID, &r.CustomerName, &r.StartTime, &r.EndTime,
		&r.BreakMinutes, &positions, &r.PdfObjectKey, &r.Version,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(positions), &r.Positions); err != nil {
		return nil, fmt.Errorf("decode positions: %w", err)
	}
	return &r, nil
}

func (s *ReportStore) GetServiceRecord(workdayID string) (*model.ServiceRecord, error) {
	row := s.db.QueryRow(`SELECT `+serviceRecordCols+` FROM service_records WHERE workday_id = ?`, workdayID)
	r, err := scanServiceRecord(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get service record: %w", err)
	}
	return r, nil
}

// UpsertServiceRecord mirrors UpsertDailyReport for the service record feed.
func (s *ReportStore) UpsertServiceRecord(workdayID string, r model.ServiceRecord) (*model.ServiceRecord, error) {
	existing, err := s.GetServiceRecord(workdayID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.Version > 1 {
		return existing, nil
	}

	positions, err := json.Marshal(orEmptyPositions(r.Positions))
	if err != nil {
		return nil, fmt.Errorf("encode positions: %w", err)
	}

	if existing == nil {
		id := r.ID
		if id == "" {
			id = uuid.NewString()
		}
		_, err = s.db.Exec(`
			INSERT INTO service_records (id, workday_id, source_submission_id, customer_id, customer_name,
				start_time, end_time, break_minutes, positions, pdf_object_key)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			id, workdayID, r.SourceSubmissionID, r.CustomerID, r.CustomerName,
			r.StartTime, r.EndTime, r.BreakMinutes, string(positions), r.PdfObjectKey,
		)
		if err != nil {
			return nil, fmt.Errorf("insert service record: %w", err)
		}
		return s.GetServiceRecord(workdayID)
	}

	_, err = s.db.Exec(`
		UPDATE service_records SET source_submission_id = ?, customer_id = ?, customer_name = ?,
			start_time = ?, end_time = ?, break_minutes = ?, positions = ?, pdf_object_key = ?
		WHERE workday_id = ?`,
		r.SourceSubmissionID, r.CustomerID, r.CustomerName,
		r.StartTime, r.EndTime, r.BreakMinutes, string(positions), r.PdfObjectKey, workdayID,
	)
	if err != nil {
		return nil, fmt.Errorf("update service record: %w", err)
	}
	return s.GetServiceRecord(workdayID)
}

// ApplyRSPatch applies a partial update to a workday's service record. The
// positions key, when present, replaces the whole list. Semantics otherwise
// match ApplyTBPatch.
func (s *ReportStore) ApplyRSPatch(workdayID string, patch map[string]any, userID string) (*model.ServiceRecord, error) {
	current, err := s.GetServiceRecord(workdayID)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, nil
	}

	draft := current.Clone()
	var audits []model.AuditEntry
	for key, raw := range patch {
		if key == "positions" {
			positions, err := decodePositions(raw)
			if err != nil {
				return nil, err
			}
			if !workday.PositionsDiffer(current.Positions, positions) {
				continue
			}
			audits = append(audits, model.AuditEntry{
				EntityType: "RS",
				EntityID:   current.ID,
				Field:      key,
				OldValue:   positionsJSON(current.Positions),
				NewValue:   positionsJSON(positions),
				UserID:     userID,
			})
			draft.Positions = positions
			continue
		}

		if isTimeKey(key) {
			raw = roundTimeValue(raw)
		}
		workday.SetRSField(draft, key, raw)
		prev := workday.RSFieldValue(current, key)
		next := workday.RSFieldValue(draft, key)
		if !workday.ValuesDiffer(prev, next) {
			continue
		}
		audits = append(audits, model.AuditEntry{
			EntityType: "RS",
			EntityID:   current.ID,
			Field:      key,
			OldValue:   auditString(prev),
			NewValue:   auditString(next),
			UserID:     userID,
		})
	}
	if len(audits) == 0 {
		return current, nil
	}

	positions, err := json.Marshal(orEmptyPositions(draft.Positions))
	if err != nil {
		return nil, fmt.Errorf("encode positions: %w", err)
	}

	tx, err := s.db.Begin()
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.Exec(`
		UPDATE service_records SET customer_id = ?, customer_name = ?, start_time = ?, end_time = ?,
			break_minutes = ?, positions = ?, version = version + 1 WHERE workday_id = ?`,
		draft.CustomerID, draft.CustomerName, draft.StartTime, draft.EndTime,
		draft.BreakMinutes, string(positions), workdayID,
	)
	if err != nil {
		return nil, fmt.Errorf("patch service record: %w", err)
	}
	if err := insertAudits(tx, audits); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit tx: %w", err)
	}
	return s.GetServiceRecord(workdayID)
}

func (s *ReportStore) SetPdfObjectKey(workdayID, key string) error {
	_, err := s.db.Exec(`UPDATE service_records SET pdf_object_key = ? WHERE workday_id = ?`, key, workdayID)
	if err != nil {
		return fmt.Errorf("set pdf object key: %w", err)
	}
	return nil
}

// --- helpers ---

func isTimeKey(key string) bool {
	return key == "startTime" || key == "endTime"
}

func roundTimeValue(raw any) any {
	s, ok := raw.(string)
	if !ok || s == "" {
		return raw
	}
	return workday.RoundTo15(s)
}

func auditString(v any) *string {
	if v == nil {
		return nil
	}
	s := fmt.Sprint(v)
	return &s
}

func positionsJSON(positions []model.Position) *string {
	b, err := json.Marshal(orEmptyPositions(positions))
	if err != nil {
		return nil
	}
	s := string(b)
	return &s
}

func decodePositions(raw any) ([]model.Position, error) {
	if raw == nil {
		return []model.Position{}, nil
	}
	if positions, ok := raw.([]model.Position); ok {
		return positions, nil
	}
	// JSON bodies decode to []any; round-trip through encoding.
	b, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("encode positions patch: %w", err)
	}
	var positions []model.Position
	if err := json.Unmarshal(b, &positions); err != nil {
		return nil, fmt.Errorf("decode positions patch: %w", err)
	}
	return positions, nil
}

func orEmptyMap(m map[string]any) map[string]any {
	if m == nil {
		return map[string]any{}
	}
	return m
}

func orEmptyPositions(p []model.Position) []model.Position {
	if p == nil {
		return []model.Position{}
	}
	return p
}

func insertAudits(tx *sql.Tx, audits []model.AuditEntry) error {
	for _, a := range audits {
		_, err := tx.Exec(
			`INSERT INTO audit_entries (entity_type, entity_id, field, old_value, new_value, user_id) VALUES (?, ?, ?, ?, ?, ?)`,
			a.EntityType, a.EntityID, a.Field, a.OldValue, a.NewValue, a.UserID,
		)
		if err != nil {
			return fmt.Errorf("insert audit entry: %w", err)
		}
	}
	return nil
}
