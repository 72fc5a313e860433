package pin

import (
	"testing"
	"time"
)

func TestGateAutoSubmitOnFourthDigit(t *testing.T) {
	g := NewGate()

	for _, key := range []byte{'1', '2', '3'} {
		pin, submit := g.Press(key)
		if submit {
			t.Fatalf("submit after %q, want none before the fourth digit", key)
		}
		if pin != "" {
			t.Fatalf("pin = %q before completion", pin)
		}
	}
	if g.State() != StateEntering {
		t.Errorf("state = %q, want %q", g.State(), StateEntering)
	}

	pin, submit := g.Press('4')
	if !submit {
		t.Fatal("fourth digit should trigger submit")
	}
	if pin != "1234" {
		t.Errorf("pin = %q, want %q", pin, "1234")
	}
	if g.State() != StateSubmitting {
		t.Errorf("state = %q, want %q", g.State(), StateSubmitting)
	}
}

func TestGateNoDoubleSubmit(t *testing.T) {
	g := NewGate()
	for _, key := range []byte("1234") {
		g.Press(key)
	}

	// Keys arriving while the verify is in flight are dropped.
	pin, submit := g.Press('5')
	if submit || pin != "" {
		t.Errorf("Press while submitting = (%q, %v), want ignored", pin, submit)
	}
	if g.Digits() != 4 {
		t.Errorf("digits = %d, want 4", g.Digits())
	}
}

func TestGateRejectClearsDigits(t *testing.T) {
	g := NewGate()
	for _, key := range []byte("1234") {
		g.Press(key)
	}
	g.Rejected()

	if g.State() != StateRejected {
		t.Errorf("state = %q, want %q", g.State(), StateRejected)
	}
	if g.Digits() != 0 {
		t.Errorf("digits = %d, want 0 after reject", g.Digits())
	}

	// Next keypress starts a fresh attempt.
	_, submit := g.Press('9')
	if submit {
		t.Error("first digit of a new attempt must not submit")
	}
	if g.State() != StateEntering {
		t.Errorf("state = %q, want %q", g.State(), StateEntering)
	}
	if g.Digits() != 1 {
		t.Errorf("digits = %d, want 1", g.Digits())
	}
}

func TestGateIgnoresNonDigits(t *testing.T) {
	g := NewGate()
	g.Press('x')
	g.Press(' ')
	if g.Digits() != 0 {
		t.Errorf("digits = %d, want 0", g.Digits())
	}
	if g.State() != StateIdle {
		t.Errorf("state = %q, want %q", g.State(), StateIdle)
	}
}

func TestGateBackspace(t *testing.T) {
	g := NewGate()
	g.Press('1')
	g.Press('2')
	g.Backspace()
	if g.Digits() != 1 {
		t.Errorf("digits = %d, want 1", g.Digits())
	}
	g.Backspace()
	if g.State() != StateIdle {
		t.Errorf("state = %q, want %q", g.State(), StateIdle)
	}
}

func TestGateLockedDropsInputUntilExpiry(t *testing.T) {
	g := NewGate()
	current := time.Date(2026, 3, 2, 10, 0, 0, 0, time.UTC)
	g.now = func() time.Time { return current }

	g.Locked(current.Add(30 * time.Minute))
	if g.State() != StateLocked {
		t.Fatalf("state = %q, want %q", g.State(), StateLocked)
	}
	if _, submit := g.Press('1'); submit || g.Digits() != 0 {
		t.Error("locked gate must drop input")
	}

	current = current.Add(31 * time.Minute)
	if g.State() != StateIdle {
		t.Errorf("state after expiry = %q, want %q", g.State(), StateIdle)
	}
	g.Press('1')
	if g.Digits() != 1 {
		t.Errorf("digits = %d, want 1 after lock expiry", g.Digits())
	}
}

func TestGateMasked(t *testing.T) {
	g := NewGate()
	g.Press('1')
	g.Press('2')
	if got := g.Masked(); got != "* * _ _" {
		t.Errorf("Masked() = %q, want %q", got, "* * _ _")
	}
}
