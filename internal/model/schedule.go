package model

import "time"

// DefaultSessionDuration is used when a window omits its duration.
const DefaultSessionDuration = 30

// DateLayout is the wire format of calendar dates.
const DateLayout = "2006-01-02"

// TimeWindow is a contiguous range of a day split into sessions.
type TimeWindow struct {
	StartTime       string `json:"start_time" yaml:"start_time"`
	EndTime         string `json:"end_time" yaml:"end_time"`
	SessionDuration int    `json:"session_duration" yaml:"session_duration"`
}

// Duration returns the session length in minutes, defaulting to 30.
func (w TimeWindow) Duration() int {
	if w.SessionDuration == 0 {
		return DefaultSessionDuration
	}
	return w.SessionDuration
}

// DayAvailability lists the windows of one weekday in declaration order.
type DayAvailability struct {
	DayOfWeek int          `json:"day_of_week" yaml:"day_of_week"`
	Windows   []TimeWindow `json:"windows" yaml:"windows"`
}

// ScheduleDefinition is a provider's recurring weekly schedule.
type ScheduleDefinition struct {
	ProviderID string            `json:"provider_id" yaml:"-"`
	Days       []DayAvailability `json:"days" yaml:"days"`
}

// Session is a bookable unit derived from a window.
type Session struct {
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

// Weekday returns the weekday of date numbered 0=Monday..6=Sunday.
func Weekday(date time.Time) int {
	return (int(date.Weekday()) + 6) % 7
}

// ParseDate parses a YYYY-MM-DD calendar date at UTC midnight.
func ParseDate(s string) (time.Time, error) {
	d, err := time.Parse(DateLayout, s)
	if err != nil {
		return time.Time{}, Validationf("invalid date %q; expected YYYY-MM-DD", s)
	}
	return d, nil
}

// FormatDate formats a calendar date as YYYY-MM-DD.
func FormatDate(d time.Time) string {
	return d.Format(DateLayout)
}

// DateOf truncates t to its calendar date at UTC midnight.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
