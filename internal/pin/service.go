package pin

import (
	"errors"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agng-dev/montron/internal/model"
)

const (
	// MaxAttempts failed verifications in a row lock the PIN.
	MaxAttempts = 3
	// LockDuration is how long a locked PIN stays closed.
	LockDuration = 30 * time.Minute
)

var (
	// ErrNotSet means the user has no release PIN configured.
	ErrNotSet = errors.New("pin: not set")
	// ErrMismatch means the PIN did not verify. The attempt was counted.
	ErrMismatch = errors.New("pin: mismatch")
	// ErrInvalidFormat means the candidate is not exactly four digits.
	ErrInvalidFormat = errors.New("pin: must be exactly 4 digits")
)

// LockedError reports a locked PIN. Handlers map it to HTTP 423.
type LockedError struct {
	Until time.Time
}

func (e *LockedError) Error() string {
	return fmt.Sprintf("pin: locked until %s", e.Until.Format(time.RFC3339))
}

// Store is the persistence the service needs. Implemented by store.PINStore.
type Store interface {
	Get(userID string) (*model.UserPIN, error)
	Set(userID, pinHash string) error
	RecordFailure(userID string, attempts int, lockedUntil *time.Time) error
	ResetAttempts(userID string) error
}

// Service verifies release PINs with bcrypt and enforces the lockout policy
// server-side, so the count survives restarts and parallel sessions.
type Service struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

func NewService(store Store, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		logger: logger.With("component", "pin"),
		now:    time.Now,
	}
}

// Status reports whether a PIN is set and whether it is currently locked.
func (s *Service) Status(userID string) (*model.PINStatus, error) {
	p, err := s.store.Get(userID)
	if err != nil {
		return nil, fmt.Errorf("loading pin: %w", err)
	}
	if p == nil {
		return &model.PINStatus{}, nil
	}
	status := &model.PINStatus{
		IsSet:          true,
		FailedAttempts: p.FailedAttempts,
	}
	if p.LockedUntil != nil && p.LockedUntil.After(s.now()) {
		status.IsLocked = true
		status.LockedUntil = p.LockedUntil
	}
	return status, nil
}

// Set hashes and stores a new PIN, clearing any previous lockout.
func (s *Service) Set(userID, candidate string) error {
	if !validFormat(candidate) {
		return ErrInvalidFormat
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(candidate), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hashing pin: %w", err)
	}
	if err := s.store.Set(userID, string(hash)); err != nil {
		return fmt.Errorf("storing pin: %w", err)
	}
	s.logger.Info("pin updated", "user_id", userID)
	return nil
}

// Verify checks a candidate PIN. A mismatch counts toward the lockout; the
// attempt counter resets on success and when an expired lock is cleared.
// Malformed candidates fail with ErrInvalidFormat without counting. While
// locked, every call fails with LockedError without touching the counter.
func (s *Service) Verify(userID, candidate string) error {
	p, err := s.store.Get(userID)
	if err != nil {
		return fmt.Errorf("loading pin: %w", err)
	}
	if p == nil || p.PinHash == "" {
		return ErrNotSet
	}
	if p.LockedUntil != nil {
		if p.LockedUntil.After(s.now()) {
			return &LockedError{Until: *p.LockedUntil}
		}
		// The lock has expired; the user gets a fresh attempt window.
		if err := s.store.ResetAttempts(userID); err != nil {
			return fmt.Errorf("resetting pin attempts: %w", err)
		}
		p.FailedAttempts = 0
		p.LockedUntil = nil
	}

	if !validFormat(candidate) {
		return ErrInvalidFormat
	}
	if err := bcrypt.CompareHashAndPassword([]byte(p.PinHash), []byte(candidate)); err != nil {
		return s.fail(p)
	}

	if p.FailedAttempts > 0 || p.LockedUntil != nil {
		if err := s.store.ResetAttempts(userID); err != nil {
			return fmt.Errorf("resetting pin attempts: %w", err)
		}
	}
	return nil
}

func (s *Service) fail(p *model.UserPIN) error {
	attempts := p.FailedAttempts + 1
	var lockedUntil *time.Time
	if attempts >= MaxAttempts {
		until := s.now().Add(LockDuration)
		lockedUntil = &until
	}
	if err := s.store.RecordFailure(p.UserID, attempts, lockedUntil); err != nil {
		return fmt.Errorf("recording pin failure: %w", err)
	}
	if lockedUntil != nil {
		s.logger.Warn("pin locked", "user_id", p.UserID, "until", lockedUntil)
		return &LockedError{Until: *lockedUntil}
	}
	return ErrMismatch
}

func validFormat(candidate string) bool {
	if len(candidate) != PinLength {
		return false
	}
	for i := 0; i < len(candidate); i++ {
		if candidate[i] < '0' || candidate[i] > '9' {
			return false
		}
	}
	return true
}
