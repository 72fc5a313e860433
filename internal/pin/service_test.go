package pin

import (
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/agng-dev/montron/internal/model"
)

type fakeStore struct {
	pins map[string]*model.UserPIN
}

func newFakeStore() *fakeStore {
	return &fakeStore{pins: make(map[string]*model.UserPIN)}
}

func (f *fakeStore) Get(userID string) (*model.UserPIN, error) {
	p, ok := f.pins[userID]
	if !ok {
		return nil, nil
	}
	c := *p
	return &c, nil
}

func (f *fakeStore) Set(userID, pinHash string) error {
	f.pins[userID] = &model.UserPIN{UserID: userID, PinHash: pinHash}
	return nil
}

func (f *fakeStore) RecordFailure(userID string, attempts int, lockedUntil *time.Time) error {
	p := f.pins[userID]
	p.FailedAttempts = attempts
	p.LockedUntil = lockedUntil
	return nil
}

func (f *fakeStore) ResetAttempts(userID string) error {
	p := f.pins[userID]
	p.FailedAttempts = 0
	p.LockedUntil = nil
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeStore) {
	t.Helper()
	store := newFakeStore()
	svc := NewService(store, slog.New(slog.NewTextHandler(io.Discard, nil)))
	return svc, store
}

func setPin(t *testing.T, store *fakeStore, userID, pin string) {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hashing pin: %v", err)
	}
	store.pins[userID] = &model.UserPIN{UserID: userID, PinHash: string(hash)}
}

func TestVerifySuccess(t *testing.T) {
	svc, store := newTestService(t)
	setPin(t, store, "u1", "4711")

	if err := svc.Verify("u1", "4711"); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestVerifyNotSet(t *testing.T) {
	svc, _ := newTestService(t)

	err := svc.Verify("u1", "4711")
	if !errors.Is(err, ErrNotSet) {
		t.Fatalf("Verify() = %v, want ErrNotSet", err)
	}
}

func TestVerifyLocksAfterThreeFailures(t *testing.T) {
	svc, store := newTestService(t)
	setPin(t, store, "u1", "4711")
	start := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return start }

	for i := 0; i < MaxAttempts-1; i++ {
		err := svc.Verify("u1", "0000")
		if !errors.Is(err, ErrMismatch) {
			t.Fatalf("attempt %d: err = %v, want ErrMismatch", i+1, err)
		}
	}

	err := svc.Verify("u1", "0000")
	var locked *LockedError
	if !errors.As(err, &locked) {
		t.Fatalf("third failure: err = %v, want LockedError", err)
	}
	want := start.Add(LockDuration)
	if !locked.Until.Equal(want) {
		t.Errorf("locked until %v, want %v", locked.Until, want)
	}

	// Even the correct PIN is refused while locked.
	err = svc.Verify("u1", "4711")
	if !errors.As(err, &locked) {
		t.Fatalf("while locked: err = %v, want LockedError", err)
	}
	if store.pins["u1"].FailedAttempts != MaxAttempts {
		t.Errorf("attempts = %d, want unchanged %d", store.pins["u1"].FailedAttempts, MaxAttempts)
	}
}

func TestVerifyLockExpires(t *testing.T) {
	svc, store := newTestService(t)
	setPin(t, store, "u1", "4711")
	current := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	for i := 0; i < MaxAttempts; i++ {
		svc.Verify("u1", "0000")
	}

	current = current.Add(LockDuration + time.Minute)
	if err := svc.Verify("u1", "4711"); err != nil {
		t.Fatalf("Verify() after expiry = %v, want nil", err)
	}
	if store.pins["u1"].FailedAttempts != 0 {
		t.Errorf("attempts = %d, want reset to 0", store.pins["u1"].FailedAttempts)
	}
}

func TestVerifySuccessResetsCounter(t *testing.T) {
	svc, store := newTestService(t)
	setPin(t, store, "u1", "4711")

	svc.Verify("u1", "0000")
	if err := svc.Verify("u1", "4711"); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
	if store.pins["u1"].FailedAttempts != 0 {
		t.Errorf("attempts = %d, want 0", store.pins["u1"].FailedAttempts)
	}

	// Counter starts fresh for the next failure.
	err := svc.Verify("u1", "9999")
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("err = %v, want ErrMismatch", err)
	}
	if store.pins["u1"].FailedAttempts != 1 {
		t.Errorf("attempts = %d, want 1", store.pins["u1"].FailedAttempts)
	}
}

func TestVerifyWrongPinAfterLockExpiry(t *testing.T) {
	svc, store := newTestService(t)
	setPin(t, store, "u1", "4711")
	current := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	svc.now = func() time.Time { return current }

	for i := 0; i < MaxAttempts; i++ {
		svc.Verify("u1", "0000")
	}

	// A wrong PIN after the lock expires is attempt one of a fresh window,
	// not a continuation of the old count.
	current = current.Add(LockDuration + time.Minute)
	err := svc.Verify("u1", "0000")
	if !errors.Is(err, ErrMismatch) {
		t.Fatalf("Verify() after expiry = %v, want ErrMismatch", err)
	}
	if store.pins["u1"].FailedAttempts != 1 {
		t.Errorf("attempts = %d, want 1", store.pins["u1"].FailedAttempts)
	}
	if store.pins["u1"].LockedUntil != nil {
		t.Errorf("locked until %v, want nil", store.pins["u1"].LockedUntil)
	}
}

func TestVerifyBadFormatDoesNotCount(t *testing.T) {
	svc, store := newTestService(t)
	setPin(t, store, "u1", "4711")

	for _, bad := range []string{"123", "12345", "12a4", ""} {
		if err := svc.Verify("u1", bad); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Verify(%q) = %v, want ErrInvalidFormat", bad, err)
		}
	}
	if store.pins["u1"].FailedAttempts != 0 {
		t.Errorf("attempts = %d, want 0", store.pins["u1"].FailedAttempts)
	}
}

func TestSetRejectsBadFormat(t *testing.T) {
	svc, _ := newTestService(t)

	for _, bad := range []string{"123", "12345", "12a4", ""} {
		if err := svc.Set("u1", bad); !errors.Is(err, ErrInvalidFormat) {
			t.Errorf("Set(%q) = %v, want ErrInvalidFormat", bad, err)
		}
	}
}

func TestSetThenVerify(t *testing.T) {
	svc, _ := newTestService(t)

	if err := svc.Set("u1", "7380"); err != nil {
		t.Fatalf("Set() = %v", err)
	}
	if err := svc.Verify("u1", "7380"); err != nil {
		t.Fatalf("Verify() = %v, want nil", err)
	}
}

func TestStatus(t *testing.T) {
	svc, store := newTestService(t)

	status, err := svc.Status("u1")
	if err != nil {
		t.Fatalf("Status() = %v", err)
	}
	if status.IsSet {
		t.Error("IsSet = true, want false")
	}

	setPin(t, store, "u1", "4711")
	until := time.Now().Add(10 * time.Minute)
	store.pins["u1"].FailedAttempts = 3
	store.pins["u1"].LockedUntil = &until

	status, err = svc.Status("u1")
	if err != nil {
		t.Fatalf("Status() = %v", err)
	}
	if !status.IsSet || !status.IsLocked {
		t.Errorf("status = %+v, want set and locked", status)
	}
}
