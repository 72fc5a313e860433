package pdf

import (
	"fmt"

	"github.com/agng-dev/montron/internal/model"
)

// DailyReportDoc lays out a released Tagesbericht.
func DailyReportDoc(employeeName, date string, tb *model.DailyReport) Doc {
	lines := []string{
		"Mitarbeiter: " + employeeName,
		"Datum: " + date,
		"",
		"Beginn: " + orDash(tb.StartTime),
		"Ende: " + orDash(tb.EndTime),
		"Pause: " + minutes(tb.BreakMinutes),
		"Fahrzeit: " + minutes(tb.TravelMinutes),
		"Kennzeichen: " + orDash(tb.LicensePlate),
		"Abteilung: " + orDash(tb.Department),
		"Km Start: " + intOrDash(tb.KmStart),
		"Km Ende: " + intOrDash(tb.KmEnd),
	}
	if tb.Overnight != nil && *tb.Overnight {
		lines = append(lines, "Übernachtung: ja")
	}
	if tb.Comment != nil && *tb.Comment != "" {
		lines = append(lines, "", "Bemerkung: "+*tb.Comment)
	}
	return Doc{Title: "Tagesbericht " + date, Lines: lines}
}

// ServiceRecordDoc lays out a released Regieschein with its positions.
func ServiceRecordDoc(employeeName, date string, rs *model.ServiceRecord) Doc {
	lines := []string{
		"Mitarbeiter: " + employeeName,
		"Datum: " + date,
		"Kunde: " + orDash(rs.CustomerName),
		"Beginn: " + orDash(rs.StartTime),
		"Ende: " + orDash(rs.EndTime),
		"Pause: " + minutes(rs.BreakMinutes),
		"",
		"Positionen:",
	}
	if len(rs.Positions) == 0 {
		lines = append(lines, "  (keine)")
	}
	for i, p := range rs.Positions {
		lines = append(lines, fmt.Sprintf("  %d. %s %s  %s h  %s %s  %s EUR",
			i+1, orDash(p.Code), orDash(p.Description),
			floatOrDash(p.Hours), floatOrDash(p.Quantity), orDash(p.Unit), floatOrDash(p.PricePerUnit)))
	}
	return Doc{Title: "Regieschein " + date, Lines: lines}
}

func orDash(s *string) string {
	if s == nil || *s == "" {
		return "-"
	}
	return *s
}

func minutes(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d min", *v)
}

func intOrDash(v *int) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *v)
}

func floatOrDash(v *float64) string {
	if v == nil {
		return "-"
	}
	return fmt.Sprintf("%.2f", *v)
}
