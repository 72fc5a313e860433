package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/middleware"
	"github.com/agng-dev/montron/internal/secrets"
	"github.com/agng-dev/montron/internal/store"
)

type SetupHandler struct {
	config     *store.ConfigStore
	formClient *formapi.Client
	box        *secrets.Box
	logger     *slog.Logger
}

func NewSetupHandler(cs *store.ConfigStore, fc *formapi.Client, box *secrets.Box, logger *slog.Logger) *SetupHandler {
	return &SetupHandler{config: cs, formClient: fc, box: box, logger: logger}
}

func (h *SetupHandler) State(w http.ResponseWriter, r *http.Request) {
	state, err := h.config.InstallationState()
	if err != nil {
		h.logger.Error("installation state", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load installation state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}

type setupTokenRequest struct {
	BaseURL      string `json:"baseUrl"`
	ServiceToken string `json:"serviceToken"`
}

// Token performs the one-time binding: validate the service token against
// the Form Builder, persist it encrypted, and flip the installation state.
func (h *SetupHandler) Token(w http.ResponseWriter, r *http.Request) {
	var req setupTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.BaseURL = strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	req.ServiceToken = strings.TrimSpace(req.ServiceToken)
	if req.BaseURL == "" || req.ServiceToken == "" {
		writeError(w, http.StatusBadRequest, "baseUrl and serviceToken are required")
		return
	}

	info, err := h.formClient.ValidateServiceToken(r.Context(), req.BaseURL, req.ServiceToken)
	if err != nil {
		if errors.Is(err, formapi.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "service token rejected")
			return
		}
		h.logger.Error("validate service token", "error", err)
		writeError(w, http.StatusBadGateway, "could not reach the Form Builder")
		return
	}

	encrypted, err := h.box.Encrypt(req.ServiceToken)
	if err != nil {
		h.logger.Error("encrypt service token", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store token")
		return
	}

	if err := h.config.SetFormAPIBaseURL(req.BaseURL); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store configuration")
		return
	}
	if err := h.config.SetFormAPIToken(encrypted); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to store token")
		return
	}
	if err := h.config.MarkConfigured(info.CompanyID, info.CompanyName, middleware.RealIP(r), r.UserAgent()); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to complete setup")
		return
	}

	h.formClient.SetConfig(formapi.Config{BaseURL: req.BaseURL, ServiceToken: req.ServiceToken})
	h.logger.Info("installation configured", "company", info.CompanyName)

	state, err := h.config.InstallationState()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load installation state")
		return
	}
	writeJSON(w, http.StatusOK, state)
}
