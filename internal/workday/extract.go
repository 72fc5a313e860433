package workday

import (
	"fmt"

	"github.com/agng-dev/montron/internal/model"
)

// TBFieldValue resolves a layout field key on a daily report. Fixed
// attributes win over the extra bag; a nil report always yields nil. The same
// switch backs reads and writes so extract -> set -> extract round-trips.
func TBFieldValue(tb *model.DailyReport, key string) any {
	if tb == nil {
		return nil
	}
	switch key {
	case "startTime":
		return strVal(tb.StartTime)
	case "endTime":
		return strVal(tb.EndTime)
	case "breakMinutes":
		return intVal(tb.BreakMinutes)
	case "travelMinutes":
		return intVal(tb.TravelMinutes)
	case "licensePlate":
		return strVal(tb.LicensePlate)
	case "department":
		return strVal(tb.Department)
	case "overnight":
		return boolVal(tb.Overnight)
	case "kmStart":
		return intVal(tb.KmStart)
	case "kmEnd":
		return intVal(tb.KmEnd)
	case "comment":
		return strVal(tb.Comment)
	default:
		if tb.Extra == nil {
			return nil
		}
		return tb.Extra[key]
	}
}

// RSFieldValue resolves a layout field key on a service record. Service
// records have no extra bag; unknown keys yield nil.
func RSFieldValue(rs *model.ServiceRecord, key string) any {
	if rs == nil {
		return nil
	}
	switch key {
	case "customerId":
		return strVal(rs.CustomerID)
	case "customerName":
		return strVal(rs.CustomerName)
	case "startTime":
		return strVal(rs.StartTime)
	case "endTime":
		return strVal(rs.EndTime)
	case "breakMinutes":
		return intVal(rs.BreakMinutes)
	default:
		return nil
	}
}

// StreetwatchCell resolves a trip-log column key on a single entry.
func StreetwatchCell(entry model.TripEntry, key string) any {
	switch key {
	case "time":
		return strVal(entry.Time)
	case "km":
		return floatVal(entry.Km)
	case "lat":
		return floatVal(entry.Lat)
	case "lon":
		return floatVal(entry.Lon)
	default:
		return nil
	}
}

// DisplayValue formats a field value for read-only rendering. This is purely
// presentational and never feeds back into the stored value.
func DisplayValue(v any) string {
	if v == nil {
		return "–"
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "–"
		}
		return t
	case bool:
		if t {
			return "Ja"
		}
		return "Nein"
	default:
		return fmt.Sprintf("%v", v)
	}
}

func strVal(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func intVal(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func floatVal(p *float64) any {
	if p == nil {
		return nil
	}
	return *p
}

func boolVal(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
