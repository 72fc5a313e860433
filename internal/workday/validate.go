package workday

import (
	"fmt"

	"github.com/agng-dev/montron/internal/model"
)

// Validate recomputes the full issue set for a day bundle. Issues are data,
// not errors: callers persist and render them, editing is never blocked.
func Validate(tb *model.DailyReport, rs *model.ServiceRecord, sw *model.TripLog) []model.ValidationIssue {
	var issues []model.ValidationIssue

	if tb != nil {
		issues = appendRasterIssue(issues, tb.StartTime, "tb.startTime")
		issues = appendRasterIssue(issues, tb.EndTime, "tb.endTime")
	}
	if rs != nil {
		issues = appendRasterIssue(issues, rs.StartTime, "rs.startTime")
		issues = appendRasterIssue(issues, rs.EndTime, "rs.endTime")
	}

	if tb != nil && sw != nil && len(sw.Entries) > 0 {
		issues = appendTbVsStreetwatch(issues, tb, sw.Entries)
	}
	if tb != nil && rs != nil {
		issues = appendTbVsRs(issues, tb, rs)
	}

	return issues
}

func appendRasterIssue(issues []model.ValidationIssue, value *string, fieldRef string) []model.ValidationIssue {
	if value == nil {
		return issues
	}
	total, err := ParseHHMM(*value)
	if err != nil {
		return issues
	}
	minutes := total % 60
	if minutes%15 == 0 {
		return issues
	}
	return append(issues, issue("RASTER_MISMATCH", model.SeverityWarn,
		"Time is not aligned to 15-minute raster", fieldRef, map[string]any{
			"minutes":        minutes,
			"nearestQuarter": (minutes / 15) * 15,
		}))
}

func appendTbVsStreetwatch(issues []model.ValidationIssue, tb *model.DailyReport, entries []model.TripEntry) []model.ValidationIssue {
	tbMinutes, ok := tbWorkMinutes(tb)
	if !ok {
		return issues
	}
	swMinutes, ok := streetwatchMinutes(entries)
	if !ok {
		return issues
	}
	diff := tbMinutes - swMinutes
	if diff < 0 {
		diff = -diff
	}
	if diff < 15 {
		return issues
	}
	severity := model.SeverityError
	if diff < 30 {
		severity = model.SeverityWarn
	}
	return append(issues, issue("TB_SW_TIME_DIFF", severity,
		fmt.Sprintf("Difference between TB and Streetwatch working time is %d minutes", diff),
		"tb.totalTime", map[string]any{
			"tbMinutes":          tbMinutes,
			"streetwatchMinutes": swMinutes,
			"differenceMinutes":  diff,
		}))
}

func appendTbVsRs(issues []model.ValidationIssue, tb *model.DailyReport, rs *model.ServiceRecord) []model.ValidationIssue {
	if tb.StartTime != nil && rs.StartTime != nil && *tb.StartTime != *rs.StartTime {
		issues = append(issues, issue("TB_RS_START_MISMATCH", model.SeverityWarn,
			"TB and RS start time differ", "tb.startTime", map[string]any{
				"tbStartTime": *tb.StartTime,
				"rsStartTime": *rs.StartTime,
			}))
	}
	if tb.EndTime != nil && rs.EndTime != nil && *tb.EndTime != *rs.EndTime {
		issues = append(issues, issue("TB_RS_END_MISMATCH", model.SeverityWarn,
			"TB and RS end time differ", "tb.endTime", map[string]any{
				"tbEndTime": *tb.EndTime,
				"rsEndTime": *rs.EndTime,
			}))
	}
	if tb.BreakMinutes != nil && rs.BreakMinutes != nil && *tb.BreakMinutes != *rs.BreakMinutes {
		issues = append(issues, issue("TB_RS_BREAK_MISMATCH", model.SeverityWarn,
			"TB and RS break minutes differ", "tb.breakMinutes", map[string]any{
				"tbBreakMinutes": *tb.BreakMinutes,
				"rsBreakMinutes": *rs.BreakMinutes,
			}))
	}
	return issues
}

// tbWorkMinutes is end minus start minus break; absent endpoints or a
// negative result mean "no comparable working time".
func tbWorkMinutes(tb *model.DailyReport) (int, bool) {
	if tb.StartTime == nil || tb.EndTime == nil {
		return 0, false
	}
	start, err := ParseHHMM(*tb.StartTime)
	if err != nil {
		return 0, false
	}
	end, err := ParseHHMM(*tb.EndTime)
	if err != nil {
		return 0, false
	}
	minutes := end - start
	if tb.BreakMinutes != nil {
		minutes -= *tb.BreakMinutes
	}
	if minutes < 0 {
		return 0, false
	}
	return minutes, true
}

// streetwatchMinutes spans first to last entry; entries arrive time-ordered.
func streetwatchMinutes(entries []model.TripEntry) (int, bool) {
	first := entries[0].Time
	last := entries[len(entries)-1].Time
	if first == nil || last == nil {
		return 0, false
	}
	start, err := ParseHHMM(*first)
	if err != nil {
		return 0, false
	}
	end, err := ParseHHMM(*last)
	if err != nil {
		return 0, false
	}
	if end < start {
		return 0, false
	}
	return end - start, true
}

func issue(code, severity, message, fieldRef string, delta map[string]any) model.ValidationIssue {
	ref := fieldRef
	return model.ValidationIssue{
		Code:     code,
		Severity: severity,
		Message:  message,
		FieldRef: &ref,
		Delta:    delta,
	}
}
