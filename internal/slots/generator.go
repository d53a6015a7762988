package slots

import (
	"fmt"

	"sessionbook/internal/model"
)

// Result is the outcome of splitting one window into sessions.
type Result struct {
	Sessions  []model.Session
	Count     int
	Remainder int
	// UnusedStart is the minute where the trailing unusable time begins.
	UnusedStart int
	UnusedEnd   int
}

// HasRemainder reports whether the window leaves minutes unused.
func (r Result) HasRemainder() bool {
	return r.Remainder > 0
}

// Generate splits a window into contiguous sessions of the window's duration,
// starting at the window start. Trailing minutes shorter than one session are
// reported as the remainder.
func Generate(w model.TimeWindow) (Result, error) {
	duration := w.Duration()
	if duration < 0 {
		return Result{}, model.Validationf("session duration must be positive, got %d", w.SessionDuration)
	}

	start, err := ParseClock(w.StartTime)
	if err != nil {
		return Result{}, fmt.Errorf("parse start time: %w", err)
	}
	end, err := ParseClock(w.EndTime)
	if err != nil {
		return Result{}, fmt.Errorf("parse end time: %w", err)
	}
	if end < start {
		return Result{}, model.Validationf("window %s-%s ends before it starts", w.StartTime, w.EndTime)
	}

	total := end - start
	count := total / duration
	res := Result{
		Sessions:    make([]model.Session, 0, count),
		Remainder:   total % duration,
		UnusedStart: start + count*duration,
		UnusedEnd:   end,
	}

	for i := 0; i < count; i++ {
		sessionStart := start + i*duration
		sessionEnd := sessionStart + duration
		if sessionStart < start || sessionEnd > end {
			break
		}
		res.Sessions = append(res.Sessions, model.Session{
			StartTime: FormatClock(sessionStart),
			EndTime:   FormatClock(sessionEnd),
		})
	}
	res.Count = len(res.Sessions)

	return res, nil
}

// GenerateDay concatenates the sessions of every window in declaration order.
func GenerateDay(windows []model.TimeWindow) ([]model.Session, error) {
	var sessions []model.Session
	for i, w := range windows {
		res, err := Generate(w)
		if err != nil {
			return nil, fmt.Errorf("window %d: %w", i, err)
		}
		sessions = append(sessions, res.Sessions...)
	}
	return sessions, nil
}

// CountDay sums session counts across windows.
func CountDay(windows []model.TimeWindow) (int, error) {
	total := 0
	for i, w := range windows {
		res, err := Generate(w)
		if err != nil {
			return 0, fmt.Errorf("window %d: %w", i, err)
		}
		total += res.Count
	}
	return total, nil
}

// MatchesSession reports whether start-end is exactly one of the generated sessions.
func MatchesSession(windows []model.TimeWindow, start, end string) (bool, error) {
	sessions, err := GenerateDay(windows)
	if err != nil {
		return false, err
	}
	for _, s := range sessions {
		if s.StartTime == start && s.EndTime == end {
			return true, nil
		}
	}
	return false, nil
}

// WithinWindow reports whether r lies inside at least one window.
func WithinWindow(windows []model.TimeWindow, r Range) (bool, error) {
	for i, w := range windows {
		ws, err := ParseClock(w.StartTime)
		if err != nil {
			return false, fmt.Errorf("window %d: %w", i, err)
		}
		we, err := ParseClock(w.EndTime)
		if err != nil {
			return false, fmt.Errorf("window %d: %w", i, err)
		}
		if ws <= r.Start && we >= r.End {
			return true, nil
		}
	}
	return false, nil
}
