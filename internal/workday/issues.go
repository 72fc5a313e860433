package workday

import (
	"strings"

	"github.com/agng-dev/montron/internal/model"
)

// Region identifies which panel of the day detail view an issue belongs to.
type Region string

const (
	RegionTB          Region = "tb"
	RegionRS          Region = "rs"
	RegionStreetwatch Region = "streetwatch"
	RegionGlobal      Region = "global"
)

// globalKey buckets issues without a field reference.
const globalKey = "_global"

// IssueRegion maps a field reference to its UI region by prefix. Unmatched
// or missing references land in the global region.
func IssueRegion(fieldRef *string) Region {
	if fieldRef == nil || *fieldRef == "" {
		return RegionGlobal
	}
	switch {
	case strings.HasPrefix(*fieldRef, "tb."):
		return RegionTB
	case strings.HasPrefix(*fieldRef, "rs."):
		return RegionRS
	case strings.HasPrefix(*fieldRef, "streetwatch"):
		return RegionStreetwatch
	default:
		return RegionGlobal
	}
}

// RegionLabel is the human-readable panel name shown in the issue list.
func RegionLabel(r Region) string {
	switch r {
	case RegionTB:
		return "Tagesbericht"
	case RegionRS:
		return "Regieschein"
	case RegionStreetwatch:
		return "Streetwatch"
	default:
		return "Allgemein"
	}
}

// FieldIssues is the per-field bucket of visually significant issues.
// OK-severity issues carry no visual weight and are never bucketed.
type FieldIssues struct {
	Errors []model.ValidationIssue
	Warns  []model.ValidationIssue
}

// HasError reports whether error styling applies. Errors always dominate
// warnings for the same field.
func (f FieldIssues) HasError() bool { return len(f.Errors) > 0 }

// HasWarn reports whether warning styling applies: at least one warning and
// no error.
func (f FieldIssues) HasWarn() bool { return len(f.Errors) == 0 && len(f.Warns) > 0 }

// GroupIssues buckets a flat issue list by exact field reference, with the
// _global sentinel for issues that have none.
func GroupIssues(issues []model.ValidationIssue) map[string]FieldIssues {
	grouped := make(map[string]FieldIssues)
	for _, issue := range issues {
		key := globalKey
		if issue.FieldRef != nil && *issue.FieldRef != "" {
			key = *issue.FieldRef
		}
		bucket := grouped[key]
		switch issue.Severity {
		case model.SeverityError:
			bucket.Errors = append(bucket.Errors, issue)
		case model.SeverityWarn:
			bucket.Warns = append(bucket.Warns, issue)
		}
		grouped[key] = bucket
	}
	return grouped
}

// FieldIssuesFor looks up the bucket for one field reference.
func FieldIssuesFor(grouped map[string]FieldIssues, fieldRef string) FieldIssues {
	return grouped[fieldRef]
}

// StreetwatchIssues collects the bucket for the trip-log panel, which may be
// referenced with or without a suffix.
func StreetwatchIssues(grouped map[string]FieldIssues) FieldIssues {
	for _, key := range []string{"streetwatch", "streetwatch.entries", "streetwatch.timeRange"} {
		if bucket, ok := grouped[key]; ok {
			return bucket
		}
	}
	return FieldIssues{}
}

// CountBySeverity returns the total error and warning counts for the summary
// badges.
func CountBySeverity(issues []model.ValidationIssue) (errors, warns int) {
	for _, issue := range issues {
		switch issue.Severity {
		case model.SeverityError:
			errors++
		case model.SeverityWarn:
			warns++
		}
	}
	return errors, warns
}
