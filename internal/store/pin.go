package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/agng-dev/montron/internal/model"
)

// PINStore persists release PIN state. It satisfies pin.Store.
type PINStore struct {
	db *sql.DB
}

func NewPINStore(db *sql.DB) *PINStore {
	return &PINStore{db: db}
}

func (s *PINStore) Get(userID string) (*model.UserPIN, error) {
	row := s.db.QueryRow(
		`SELECT user_id, pin_hash, failed_attempts, locked_until, updated_at FROM user_pins WHERE user_id = ?`,
		userID,
	)
	var p model.UserPIN
	err := row.Scan(&p.UserID, &p.PinHash, &p.FailedAttempts, &p.LockedUntil, &p.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get pin: %w", err)
	}
	return &p, nil
}

// Set writes a new PIN hash and clears the attempt counter and lockout.
func (s *PINStore) Set(userID, pinHash string) error {
	_, err := s.db.Exec(`
		INSERT INTO user_pins (user_id, pin_hash, failed_attempts, locked_until) VALUES (?, ?, 0, NULL)
		ON CONFLICT (user_id) DO UPDATE SET pin_hash = excluded.pin_hash, failed_attempts = 0,
			locked_until = NULL, updated_at = CURRENT_TIMESTAMP`,
		userID, pinHash,
	)
	if err != nil {
		return fmt.Errorf("set pin: %w", err)
	}
	return nil
}

func (s *PINStore) RecordFailure(userID string, attempts int, lockedUntil *time.Time) error {
	_, err := s.db.Exec(
		`UPDATE user_pins SET failed_attempts = ?, locked_until = ?, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		attempts, lockedUntil, userID,
	)
	if err != nil {
		return fmt.Errorf("record pin failure: %w", err)
	}
	return nil
}

func (s *PINStore) ResetAttempts(userID string) error {
	_, err := s.db.Exec(
		`UPDATE user_pins SET failed_attempts = 0, locked_until = NULL, updated_at = CURRENT_TIMESTAMP WHERE user_id = ?`,
		userID,
	)
	if err != nil {
		return fmt.Errorf("reset pin attempts: %w", err)
	}
	return nil
}
