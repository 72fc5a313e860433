package handler

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/agng-dev/montron/internal/formapi"
	"github.com/agng-dev/montron/internal/secrets"
	"github.com/agng-dev/montron/internal/store"
)

type ConfigHandler struct {
	config     *store.ConfigStore
	formClient *formapi.Client
	box        *secrets.Box
	logger     *slog.Logger
}

func NewConfigHandler(cs *store.ConfigStore, fc *formapi.Client, box *secrets.Box, logger *slog.Logger) *ConfigHandler {
	return &ConfigHandler{config: cs, formClient: fc, box: box, logger: logger}
}

// GetFormAPI returns the Form Builder binding with the token masked.
func (h *ConfigHandler) GetFormAPI(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.config.FormAPIConfig()
	if err != nil {
		h.logger.Error("form api config", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load configuration")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}

type formAPIRequest struct {
	BaseURL      string `json:"baseUrl"`
	ServiceToken string `json:"serviceToken"` // empty keeps the stored token
}

// PutFormAPI updates the binding. A new token is validated against the Form
// Builder before it replaces the stored one.
func (h *ConfigHandler) PutFormAPI(w http.ResponseWriter, r *http.Request) {
	var req formAPIRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON")
		return
	}
	req.BaseURL = strings.TrimRight(strings.TrimSpace(req.BaseURL), "/")
	if req.BaseURL == "" {
		writeError(w, http.StatusBadRequest, "baseUrl is required")
		return
	}

	token := strings.TrimSpace(req.ServiceToken)
	if token == "" {
		stored, err := h.config.FormAPIToken()
		if err != nil {
			writeError(w, http.StatusInternalServerError, "failed to load stored token")
			return
		}
		if stored == "" {
			writeError(w, http.StatusBadRequest, "serviceToken is required")
			return
		}
		token, err = h.box.Decrypt(stored)
		if err != nil {
			h.logger.Error("decrypt stored token", "error", err)
			writeError(w, http.StatusInternalServerError, "failed to read stored token")
			return
		}
	}

	if _, err := h.formClient.ValidateServiceToken(r.Context(), req.BaseURL, token); err != nil {
		if errors.Is(err, formapi.ErrUnauthorized) {
			writeError(w, http.StatusUnauthorized, "service token rejected")
			return
		}
		h.logger.Error("validate service token", "error", err)
		writeError(w, http.StatusBadGateway, "could not reach the Form Builder")
		return
	}

	encrypted, err := h.box.Encrypt(token)
	if err != nil {
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

	h.formClient.SetConfig(formapi.Config{BaseURL: req.BaseURL, ServiceToken: token})

	cfg, err := h.config.FormAPIConfig()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to load configuration")
		return
	}
	writeJSON(w, http.StatusOK, cfg)
}
