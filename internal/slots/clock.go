package slots

import (
	"fmt"

	"sessionbook/internal/model"
)

// MinutesPerDay bounds clock values.
const MinutesPerDay = 24 * 60

// ParseClock converts a zero-padded "HH:MM" 24h time to minutes since midnight.
func ParseClock(s string) (int, error) {
	if len(s) != 5 || s[2] != ':' {
		return 0, model.Validationf("invalid time %q; expected HH:MM", s)
	}
	digits := [4]byte{s[0], s[1], s[3], s[4]}
	for _, c := range digits {
		if c < '0' || c > '9' {
			return 0, model.Validationf("invalid time %q; expected HH:MM", s)
		}
	}
	hour := int(s[0]-'0')*10 + int(s[1]-'0')
	minute := int(s[3]-'0')*10 + int(s[4]-'0')
	if hour > 23 || minute > 59 {
		return 0, model.Validationf("invalid time %q; out of range", s)
	}
	return hour*60 + minute, nil
}

// FormatClock renders minutes since midnight as "HH:MM".
func FormatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}

// Range is a parsed half-open [Start, End) interval in minutes since midnight.
type Range struct {
	Start int
	End   int
}

// ParseRange parses a start/end pair and requires start < end.
func ParseRange(start, end string) (Range, error) {
	s, err := ParseClock(start)
	if err != nil {
		return Range{}, err
	}
	e, err := ParseClock(end)
	if err != nil {
		return Range{}, err
	}
	if s >= e {
		return Range{}, model.Validationf("start time %s must be before end time %s", start, end)
	}
	return Range{Start: s, End: e}, nil
}
