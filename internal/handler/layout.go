package handler

import (
	"log/slog"
	"net/http"

	"github.com/agng-dev/montron/internal/store"
)

const defaultLayoutName = "default"

type LayoutHandler struct {
	layouts *store.LayoutStore
	logger  *slog.Logger
}

func NewLayoutHandler(ls *store.LayoutStore, logger *slog.Logger) *LayoutHandler {
	return &LayoutHandler{layouts: ls, logger: logger}
}

// Get serves the field/column configuration the day detail editor renders.
func (h *LayoutHandler) Get(w http.ResponseWriter, r *http.Request) {
	name := r.URL.Query().Get("name")
	if name == "" {
		name = defaultLayoutName
	}

	layout, err := h.layouts.Get(name)
	if err != nil {
		h.logger.Error("get layout", "error", err, "name", name)
		writeError(w, http.StatusInternalServerError, "failed to load layout")
		return
	}
	if layout == nil {
		writeError(w, http.StatusNotFound, "layout not found")
		return
	}
	writeJSON(w, http.StatusOK, layout)
}
