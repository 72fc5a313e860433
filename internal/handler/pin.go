package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"github.com/agng-dev/montron/internal/auth"
	"github.com/agng-dev/montron/internal/pin"
)

type PINHandler struct {
	pins   *pin.Service
	logger *slog.Logger
}

func NewPINHandler(pins *pin.Service, logger *slog.Logger) *PINHandler {
	return &PINHandler{pins: pins, logger: logger}
}

func (h *PINHandler) Status(w http.ResponseWriter, r *http.Request) {
	status, err := h.pins.Status(auth.UserID(r.Context()))
	if err != nil {
		h.logger.Error("pin status", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load pin status")
		return
	}
	writeJSON(w, http.StatusOK, status)
}

type pinRequest struct {
	Pin string `json:"pin"`
}

func (h *PINHandler) Set(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	if err := h.pins.Set(auth.UserID(r.Context()), req.Pin); err != nil {
		if errors.Is(err, pin.ErrInvalidFormat) {
			writeError(w, http.StatusBadRequest, "PIN must be exactly 4 digits")
			return
		}
		h.logger.Error("set pin", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to set pin")
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"isSet": true})
}

// Verify checks a candidate PIN. Locked accounts answer 423 with the unlock
// time so the dialog can show it without treating it as a failure.
func (h *PINHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req pinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}

	err := h.pins.Verify(auth.UserID(r.Context()), req.Pin)
	if err == nil {
		writeJSON(w, http.StatusOK, map[string]bool{"valid": true})
		return
	}

	var locked *pin.LockedError
	switch {
	case errors.As(err, &locked):
		writeJSON(w, http.StatusLocked, map[string]any{
			"error":       "pin locked",
			"lockedUntil": locked.Until,
		})
	case errors.Is(err, pin.ErrNotSet):
		writeError(w, http.StatusPreconditionFailed, "no pin set")
	case errors.Is(err, pin.ErrInvalidFormat):
		writeError(w, http.StatusBadRequest, "PIN must be exactly 4 digits")
	case errors.Is(err, pin.ErrMismatch):
		writeError(w, http.StatusUnauthorized, "invalid pin")
	default:
		h.logger.Error("verify pin", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to verify pin")
	}
}
