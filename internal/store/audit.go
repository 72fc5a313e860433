package store

import (
	"database/sql"
	"fmt"

	"github.com/agng-dev/montron/internal/model"
)

type AuditStore struct {
	db *sql.DB
}

func NewAuditStore(db *sql.DB) *AuditStore {
	return &AuditStore{db: db}
}

func (s *AuditStore) ListByEntity(entityType, entityID string) ([]model.AuditEntry, error) {
	rows, err := s.db.Query(
		`SELECT id, entity_type, entity_id, field, old_value, new_value, user_id, created_at
		 FROM audit_entries WHERE entity_type = ? AND entity_id = ? ORDER BY created_at DESC, id DESC`,
		entityType, entityID,
	)
	if err != nil {
		return nil, fmt.Errorf("list audit entries: %w", err)
	}
	defer rows.Close()

	var entries []model.AuditEntry
	for rows.Next() {
		var a model.AuditEntry
		err := rows.Scan(&a.ID, &a.EntityType, &a.EntityID, &a.Field, &a.OldValue, &a.NewValue, &a.UserID, &a.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan audit entry: %w", err)
		}
		entries = append(entries, a)
	}
	return entries, rows.Err()
}

func (s *AuditStore) CreateReleaseAction(workdayID, userID, pinLast4, targetPath string) (*model.ReleaseAction, error) {
	result, err := s.db.Exec(
		`INSERT INTO release_actions (workday_id, user_id, pin_last4, target_path) VALUES (?, ?, ?, ?)`,
		workdayID, userID, pinLast4, targetPath,
	)
	if err != nil {
		return nil, fmt.Errorf("insert release action: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("last insert id: %w", err)
	}

	row := s.db.QueryRow(
		`SELECT id, workday_id, user_id, pin_last4, target_path, released_at FROM release_actions WHERE id = ?`, id,
	)
	var r model.ReleaseAction
	if err := row.Scan(&r.ID, &r.WorkdayID, &r.UserID, &r.PinLast4, &r.TargetPath, &r.ReleasedAt); err != nil {
		return nil, fmt.Errorf("get release action: %w", err)
	}
	return &r, nil
}

func (s *AuditStore) ListReleaseActions(workdayID string) ([]model.ReleaseAction, error) {
	rows, err := s.db.Query(
		`SELECT id, workday_id, user_id, pin_last4, target_path, released_at
		 FROM release_actions WHERE workday_id = ? ORDER BY released_at DESC`,
		workdayID,
	)
	if err != nil {
		return nil, fmt.Errorf("list release actions: %w", err)
	}
	defer rows.Close()

	var actions []model.ReleaseAction
	for rows.Next() {
		var r model.ReleaseAction
		if err := rows.Scan(&r.ID, &r.WorkdayID, &r.UserID, &r.PinLast4, &r.TargetPath, &r.ReleasedAt); err != nil {
			return nil, fmt.Errorf("scan release action: %w", err)
		}
		actions = append(actions, r)
	}
	return actions, rows.Err()
}
