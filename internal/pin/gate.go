// Package pin holds the release PIN gate: a fixed-length digit entry state
// machine plus the bcrypt-backed verification service with lockout.
package pin

import (
	"strings"
	"time"
)

// PinLength is the fixed number of digits a release PIN has.
const PinLength = 4

// GateState is the lifecycle of one PIN entry attempt.
type GateState string

const (
	StateIdle       GateState = "idle"
	StateEntering   GateState = "entering"
	StateSubmitting GateState = "submitting"
	StateVerified   GateState = "verified"
	StateRejected   GateState = "rejected"
	StateLocked     GateState = "locked"
)

// Gate models the masked PIN input on the release dialog. Entry fills up to
// PinLength digits and submission triggers exactly once per attempt: while a
// verify is in flight every further keypress is dropped, so a slow round trip
// can never cause a second submit of the same digits.
type Gate struct {
	state       GateState
	digits      []byte
	lockedUntil time.Time
	now         func() time.Time
}

func NewGate() *Gate {
	return &Gate{state: StateIdle, now: time.Now}
}

// State reports the current lifecycle state. A lock expires lazily: once
// lockedUntil has passed the gate reads as idle again.
func (g *Gate) State() GateState {
	if g.state == StateLocked && !g.lockedUntil.IsZero() && g.now().After(g.lockedUntil) {
		g.state = StateIdle
		g.digits = nil
		g.lockedUntil = time.Time{}
	}
	return g.state
}

// Digits returns how many digits are currently entered, for masked rendering.
func (g *Gate) Digits() int {
	return len(g.digits)
}

// LockedUntil reports when a locked gate reopens.
func (g *Gate) LockedUntil() time.Time {
	return g.lockedUntil
}

// Press appends one digit. It returns the complete PIN and true exactly when
// this press filled the last slot and a submit should start now. Non-digit
// input and presses while submitting, verified, or locked are ignored.
func (g *Gate) Press(key byte) (pin string, submit bool) {
	switch g.State() {
	case StateSubmitting, StateVerified, StateLocked:
		return "", false
	}
	if key < '0' || key > '9' {
		return "", false
	}
	if g.state == StateRejected {
		g.digits = nil
	}
	if len(g.digits) >= PinLength {
		return "", false
	}
	g.digits = append(g.digits, key)
	if len(g.digits) < PinLength {
		g.state = StateEntering
		return "", false
	}
	g.state = StateSubmitting
	return string(g.digits), true
}

// Backspace removes the last digit while entry is still open.
func (g *Gate) Backspace() {
	switch g.State() {
	case StateEntering, StateRejected:
		if len(g.digits) > 0 {
			g.digits = g.digits[:len(g.digits)-1]
		}
		if len(g.digits) == 0 {
			g.state = StateIdle
		} else {
			g.state = StateEntering
		}
	}
}

// Reset clears entry back to idle. Locked gates stay locked.
func (g *Gate) Reset() {
	if g.State() == StateLocked {
		return
	}
	g.state = StateIdle
	g.digits = nil
}

// Verified marks the in-flight submit as accepted.
func (g *Gate) Verified() {
	if g.state == StateSubmitting {
		g.state = StateVerified
	}
}

// Rejected marks the in-flight submit as refused and clears the digits, so
// the next keypress starts a fresh attempt.
func (g *Gate) Rejected() {
	if g.state == StateSubmitting {
		g.state = StateRejected
		g.digits = nil
	}
}

// Locked closes the gate until the given time, discarding any entry.
func (g *Gate) Locked(until time.Time) {
	g.state = StateLocked
	g.digits = nil
	g.lockedUntil = until
}

// Masked renders the entry as filled and empty slots for the dialog.
func (g *Gate) Masked() string {
	var b strings.Builder
	for i := 0; i < PinLength; i++ {
		if i > 0 {
			b.WriteByte(' ')
		}
		if i < len(g.digits) {
			b.WriteByte('*')
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}
