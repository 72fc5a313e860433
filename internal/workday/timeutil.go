package workday

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ParseHHMM parses a "HH:MM" time-of-day string into minutes since midnight.
func ParseHHMM(s string) (int, error) {
	parts := strings.SplitN(s, ":", 2)
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil {
		return 0, fmt.Errorf("invalid time %q", s)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("time %q out of range", s)
	}
	return h*60 + m, nil
}

func formatHHMM(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// RoundTo15 snaps an "HH:MM" value to the nearest quarter hour, clamped to
// 23:45. Invalid input is returned unchanged so a bad value stays visible
// instead of silently disappearing.
func RoundTo15(s string) string {
	total, err := ParseHHMM(s)
	if err != nil {
		return s
	}
	rounded := int(math.Round(float64(total)/15.0)) * 15
	if rounded > 23*60+45 {
		rounded = 23*60 + 45
	}
	if rounded < 0 {
		rounded = 0
	}
	return formatHHMM(rounded)
}
