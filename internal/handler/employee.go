package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/store"
)

type EmployeeHandler struct {
	employees *store.EmployeeStore
	workdays  *store.WorkdayStore
	logger    *slog.Logger
}

func NewEmployeeHandler(es *store.EmployeeStore, ws *store.WorkdayStore, logger *slog.Logger) *EmployeeHandler {
	return &EmployeeHandler{employees: es, workdays: ws, logger: logger}
}

func (h *EmployeeHandler) List(w http.ResponseWriter, r *http.Request) {
	activeOnly := r.URL.Query().Get("all") != "true"
	employees, err := h.employees.List(activeOnly)
	if err != nil {
		h.logger.Error("list employees", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to list employees")
		return
	}
	if employees == nil {
		employees = []model.Employee{}
	}
	writeJSON(w, http.StatusOK, employees)
}

func (h *EmployeeHandler) Get(w http.ResponseWriter, r *http.Request) {
	e, err := h.employees.GetByID(r.PathValue("id"))
	if err != nil {
		h.logger.Error("get employee", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "employee not found")
		return
	}
	writeJSON(w, http.StatusOK, e)
}

// Workdays lists an employee's day summaries in a date range. Without bounds
// it covers the past five weeks.
func (h *EmployeeHandler) Workdays(w http.ResponseWriter, r *http.Request) {
	e, err := h.employees.GetByID(r.PathValue("id"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to get employee")
		return
	}
	if e == nil {
		writeError(w, http.StatusNotFound, "employee not found")
		return
	}

	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")
	if to == "" {
		to = time.Now().Format("2006-01-02")
	}
	if from == "" {
		from = time.Now().AddDate(0, 0, -35).Format("2006-01-02")
	}

	summaries, err := h.workdays.Summaries(e.ID, from, to)
	if err != nil {
		h.logger.Error("list workday summaries", "error", err, "employeeId", e.ID)
		writeError(w, http.StatusInternalServerError, "failed to list workdays")
		return
	}
	if summaries == nil {
		summaries = []model.WorkdaySummary{}
	}
	writeJSON(w, http.StatusOK, summaries)
}
