package workday

import (
	"fmt"
	"reflect"
	"strconv"
	"strings"

	"github.com/agng-dev/montron/internal/model"
)

// NewTBDraft derives a working copy from the last confirmed server state.
// The original is never mutated; every edit goes through SetTBField on the
// returned clone.
func NewTBDraft(original *model.DailyReport) *model.DailyReport {
	return original.Clone()
}

func NewRSDraft(original *model.ServiceRecord) *model.ServiceRecord {
	return original.Clone()
}

// SetTBField applies a raw edit to a draft, coercing the value by the field's
// semantic type. Raw input arrives as form strings or decoded JSON values;
// what lands on the draft is always the typed form, so a subsequent
// TBFieldValue returns the coerced value rather than the raw input.
func SetTBField(draft *model.DailyReport, key string, raw any) {
	if draft == nil {
		return
	}
	switch key {
	case "startTime":
		draft.StartTime = coerceTime(raw)
	case "endTime":
		draft.EndTime = coerceTime(raw)
	case "breakMinutes":
		draft.BreakMinutes = coerceInt(raw)
	case "travelMinutes":
		draft.TravelMinutes = coerceInt(raw)
	case "licensePlate":
		draft.LicensePlate = coerceString(raw)
	case "department":
		draft.Department = coerceString(raw)
	case "overnight":
		b := coerceBool(raw)
		draft.Overnight = &b
	case "kmStart":
		draft.KmStart = coerceInt(raw)
	case "kmEnd":
		draft.KmEnd = coerceInt(raw)
	case "comment":
		draft.Comment = coerceString(raw)
	default:
		if draft.Extra == nil {
			draft.Extra = make(map[string]any)
		}
		draft.Extra[key] = raw
	}
}

func SetRSField(draft *model.ServiceRecord, key string, raw any) {
	if draft == nil {
		return
	}
	switch key {
	case "customerId":
		draft.CustomerID = coerceString(raw)
	case "customerName":
		draft.CustomerName = coerceString(raw)
	case "startTime":
		draft.StartTime = coerceTime(raw)
	case "endTime":
		draft.EndTime = coerceTime(raw)
	case "breakMinutes":
		draft.BreakMinutes = coerceInt(raw)
	}
}

// TBFieldChanged reports whether a field differs between original and draft,
// using the extractor on both sides.
func TBFieldChanged(original, draft *model.DailyReport, key string) bool {
	return ValuesDiffer(TBFieldValue(original, key), TBFieldValue(draft, key))
}

func RSFieldChanged(original, draft *model.ServiceRecord, key string) bool {
	return ValuesDiffer(RSFieldValue(original, key), RSFieldValue(draft, key))
}

// ValuesDiffer is a shallow comparison. Extra-bag values are JSON scalars in
// practice; a non-comparable value (map, slice) is conservatively treated as
// changed rather than deep-compared, since drafts are copy-on-write and a
// replaced reference is the only legal way to mutate one.
func ValuesDiffer(a, b any) bool {
	if a == nil || b == nil {
		return a != b
	}
	ta := reflect.TypeOf(a)
	if ta != reflect.TypeOf(b) {
		return true
	}
	if !ta.Comparable() {
		return true
	}
	return a != b
}

// Numeric fields: empty string or nil clears the value, everything else must
// parse. Unparseable input also clears rather than poisoning the draft.
func coerceInt(raw any) *int {
	switch t := raw.(type) {
	case nil:
		return nil
	case int:
		return &t
	case float64:
		n := int(t)
		return &n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return nil
		}
		n, err := strconv.Atoi(s)
		if err != nil {
			return nil
		}
		return &n
	default:
		return nil
	}
}

// Time fields use null-for-absent: an empty string collapses to nil.
func coerceTime(raw any) *string {
	s, ok := raw.(string)
	if !ok || s == "" {
		return nil
	}
	return &s
}

// Free-text fields keep empty strings; only nil collapses to nil.
func coerceString(raw any) *string {
	if raw == nil {
		return nil
	}
	if s, ok := raw.(string); ok {
		return &s
	}
	s := fmt.Sprint(raw)
	return &s
}

func coerceBool(raw any) bool {
	switch t := raw.(type) {
	case bool:
		return t
	case string:
		return t == "true" || t == "on" || t == "1"
	case float64:
		return t != 0
	case int:
		return t != 0
	default:
		return false
	}
}
