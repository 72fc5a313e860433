// Package export builds the filterable document list for the export page and
// writes it as CSV.
package export

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/agng-dev/montron/internal/model"
	"github.com/agng-dev/montron/internal/store"
)

// Document is one exportable row: a Tagesbericht or Regieschein on a workday.
type Document struct {
	ID        string `json:"id"`
	WorkdayID string `json:"workdayId"`
	Type      string `json:"type"` // "Tagesbericht" or "Regieschein"
	Date      string `json:"date"`
	Employee  string `json:"employee"` // SURNAME Firstname
	Customer  string `json:"customer"` // "-" for Tagesberichte
	Status    string `json:"status"`   // German status label
	Filename  string `json:"filename"`
}

// Filter narrows the document list. Empty fields match everything; the date
// range is inclusive on both ends. Employee and customer match as
// case-insensitive substrings.
type Filter struct {
	From     string
	To       string
	Employee string
	Customer string
}

// Matches reports whether a document passes the filter. Dates are ISO
// strings, so plain string comparison orders them correctly.
func (f Filter) Matches(d Document) bool {
	if f.From != "" && d.Date < f.From {
		return false
	}
	if f.To != "" && d.Date > f.To {
		return false
	}
	if f.Employee != "" && !containsFold(d.Employee, f.Employee) {
		return false
	}
	if f.Customer != "" && !containsFold(d.Customer, f.Customer) {
		return false
	}
	return true
}

// Apply returns the documents that pass the filter, preserving order.
func Apply(docs []Document, f Filter) []Document {
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if f.Matches(d) {
			out = append(out, d)
		}
	}
	return out
}

func containsFold(haystack, needle string) bool {
	return strings.Contains(strings.ToLower(haystack), strings.ToLower(needle))
}

// StatusLabel maps a workday status to its German display label.
func StatusLabel(status string) string {
	switch status {
	case model.StatusReleased:
		return "Freigegeben"
	case model.StatusReady:
		return "In Prüfung"
	default:
		return "Entwurf"
	}
}

// Filename builds the download name for a document, e.g.
// "TB_2024-03-01_MEIER_Michael.pdf".
func Filename(prefix, date, name string) string {
	clean := strings.NewReplacer(" ", "_", "/", "_").Replace(name)
	return fmt.Sprintf("%s_%s_%s.pdf", prefix, date, clean)
}

// Builder assembles the document list from the stores.
type Builder struct {
	employees *store.EmployeeStore
	workdays  *store.WorkdayStore
	reports   *store.ReportStore
}

func NewBuilder(employees *store.EmployeeStore, workdays *store.WorkdayStore, reports *store.ReportStore) *Builder {
	return &Builder{employees: employees, workdays: workdays, reports: reports}
}

// Documents lists all TB and RS documents in the filter's date range. The
// date bounds narrow the database query; employee and customer filters apply
// in memory afterwards.
func (b *Builder) Documents(f Filter) ([]Document, error) {
	from := f.From
	if from == "" {
		from = "0000-00-00"
	}
	to := f.To
	if to == "" {
		to = "9999-12-31"
	}

	employees, err := b.employees.List(false)
	if err != nil {
		return nil, fmt.Errorf("list employees: %w", err)
	}

	var docs []Document
	for _, e := range employees {
		summaries, err := b.workdays.Summaries(e.ID, from, to)
		if err != nil {
			return nil, fmt.Errorf("list workdays for %s: %w", e.Username, err)
		}
		name := e.DisplayName()
		for _, sm := range summaries {
			label := StatusLabel(sm.Status)
			if sm.HasTb {
				docs = append(docs, Document{
					ID:        "tb_" + sm.ID,
					WorkdayID: sm.ID,
					Type:      "Tagesbericht",
					Date:      sm.Date,
					Employee:  name,
					Customer:  "-",
					Status:    label,
					Filename:  Filename("TB", sm.Date, name),
				})
			}
			if sm.HasRs {
				customer := "-"
				rs, err := b.reports.GetServiceRecord(sm.ID)
				if err != nil {
					return nil, fmt.Errorf("get service record: %w", err)
				}
				if rs != nil && rs.CustomerName != nil && *rs.CustomerName != "" {
					customer = *rs.CustomerName
				}
				docs = append(docs, Document{
					ID:        "rs_" + sm.ID,
					WorkdayID: sm.ID,
					Type:      "Regieschein",
					Date:      sm.Date,
					Employee:  name,
					Customer:  customer,
					Status:    label,
					Filename:  Filename("RS", sm.Date, customerOrName(customer, name)),
				})
			}
		}
	}
	return Apply(docs, Filter{Employee: f.Employee, Customer: f.Customer}), nil
}

func customerOrName(customer, name string) string {
	if customer != "-" {
		return customer
	}
	return name
}

// WriteCSV writes the document list with a header row.
func WriteCSV(w io.Writer, docs []Document) error {
	cw := csv.NewWriter(w)
	if err := cw.Write([]string{"Typ", "Datum", "Mitarbeiter", "Kunde", "Status", "Datei"}); err != nil {
		return fmt.Errorf("write csv header: %w", err)
	}
	for _, d := range docs {
		if err := cw.Write([]string{d.Type, d.Date, d.Employee, d.Customer, d.Status, d.Filename}); err != nil {
			return fmt.Errorf("write csv row: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
