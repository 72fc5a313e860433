package handler

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/agng-dev/montron/internal/export"
)

type ExportHandler struct {
	builder *export.Builder
	logger  *slog.Logger
}

func NewExportHandler(b *export.Builder, logger *slog.Logger) *ExportHandler {
	return &ExportHandler{builder: b, logger: logger}
}

func filterFromQuery(r *http.Request) export.Filter {
	q := r.URL.Query()
	return export.Filter{
		From:     q.Get("from"),
		To:       q.Get("to"),
		Employee: q.Get("employee"),
		Customer: q.Get("customer"),
	}
}

func (h *ExportHandler) Documents(w http.ResponseWriter, r *http.Request) {
	docs, err := h.builder.Documents(filterFromQuery(r))
	if err != nil {
		h.logger.Error("build export documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build document list")
		return
	}
	if docs == nil {
		docs = []export.Document{}
	}
	writeJSON(w, http.StatusOK, docs)
}

func (h *ExportHandler) CSV(w http.ResponseWriter, r *http.Request) {
	docs, err := h.builder.Documents(filterFromQuery(r))
	if err != nil {
		h.logger.Error("build export documents", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to build document list")
		return
	}

	filename := fmt.Sprintf("export_%s.csv", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))
	if err := export.WriteCSV(w, docs); err != nil {
		h.logger.Error("write csv", "error", err)
	}
}
