package model

import "time"

// AuditEntry records a single field-level correction made by office staff.
type AuditEntry struct {
	ID         int64     `json:"id"`
	EntityType string    `json:"entityType"` // "TB" or "RS"
	EntityID   string    `json:"entityId"`
	Field      string    `json:"field"`
	OldValue   *string   `json:"oldValue"`
	NewValue   *string   `json:"newValue"`
	UserID     string    `json:"userId"`
	CreatedAt  time.Time `json:"createdAt"`
}

// ReleaseAction records a completed workday release.
type ReleaseAction struct {
	ID         int64     `json:"id"`
	WorkdayID  string    `json:"workdayId"`
	UserID     string    `json:"userId"`
	PinLast4   string    `json:"pinLast4"`
	TargetPath string    `json:"targetPath"`
	ReleasedAt time.Time `json:"releasedAt"`
}
