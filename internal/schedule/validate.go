package schedule

import (
	"errors"
	"fmt"

	"sessionbook/internal/model"
	"sessionbook/internal/slots"
)

// Warning reports minutes of a window that cannot hold a full session.
type Warning struct {
	DayOfWeek       int    `json:"day_of_week"`
	WindowIndex     int    `json:"window_index"`
	StartTime       string `json:"start_time"`
	EndTime         string `json:"end_time"`
	SessionDuration int    `json:"session_duration"`
	SessionCount    int    `json:"session_count"`
	UnusedMinutes   int    `json:"unused_minutes"`
	UnusedStart     string `json:"unused_start"`
	UnusedEnd       string `json:"unused_end"`
	Message         string `json:"message"`
	Suggestion      string `json:"suggestion"`
}

// Validate checks a definition and returns remainder warnings for every window
// that leaves trailing minutes unused. It also fills in default durations.
func Validate(def *model.ScheduleDefinition) ([]Warning, error) {
	if def == nil {
		return nil, model.Validationf("schedule is required")
	}

	var (
		warnings []Warning
		errs     []error
		seen     = make(map[int]bool, len(def.Days))
	)

	for i := range def.Days {
		day := &def.Days[i]
		if day.DayOfWeek < 0 || day.DayOfWeek > 6 {
			errs = append(errs, fmt.Errorf("day %d: day_of_week must be 0..6, got %d", i, day.DayOfWeek))
			continue
		}
		if seen[day.DayOfWeek] {
			errs = append(errs, fmt.Errorf("day %d: duplicate day_of_week %d", i, day.DayOfWeek))
			continue
		}
		seen[day.DayOfWeek] = true

		var ranges []slots.Range
		for j := range day.Windows {
			w := &day.Windows[j]
			if w.SessionDuration < 0 {
				errs = append(errs, fmt.Errorf("day %d window %d: session_duration must be positive", day.DayOfWeek, j))
				continue
			}
			w.SessionDuration = w.Duration()

			r, err := slots.ParseRange(w.StartTime, w.EndTime)
			if err != nil {
				errs = append(errs, fmt.Errorf("day %d window %d: %w", day.DayOfWeek, j, err))
				continue
			}
			if k := overlapping(ranges, r); k >= 0 {
				errs = append(errs, fmt.Errorf("day %d window %d: %s-%s overlaps %s-%s",
					day.DayOfWeek, j, w.StartTime, w.EndTime, slots.FormatClock(ranges[k].Start), slots.FormatClock(ranges[k].End)))
				continue
			}
			ranges = append(ranges, r)
			res, err := slots.Generate(*w)
			if err != nil {
				errs = append(errs, fmt.Errorf("day %d window %d: %w", day.DayOfWeek, j, err))
				continue
			}
			if res.HasRemainder() {
				warnings = append(warnings, newWarning(day.DayOfWeek, j, *w, r, res))
			}
		}
	}

	if len(errs) > 0 {
		return nil, fmt.Errorf("%w: %w", model.ErrValidation, errors.Join(errs...))
	}
	return warnings, nil
}

// overlapping returns the index of the first range in rs that overlaps r, or -1.
func overlapping(rs []slots.Range, r slots.Range) int {
	for i, o := range rs {
		if r.Start < o.End && r.End > o.Start {
			return i
		}
	}
	return -1
}

func newWarning(dow, idx int, w model.TimeWindow, r slots.Range, res slots.Result) Warning {
	extendTo := r.Start + (res.Count+1)*w.SessionDuration
	suggestion := fmt.Sprintf("end the window at %s", slots.FormatClock(res.UnusedStart))
	if extendTo < slots.MinutesPerDay {
		suggestion = fmt.Sprintf("extend the window to %s or end it at %s",
			slots.FormatClock(extendTo), slots.FormatClock(res.UnusedStart))
	}
	return Warning{
		DayOfWeek:       dow,
		WindowIndex:     idx,
		StartTime:       w.StartTime,
		EndTime:         w.EndTime,
		SessionDuration: w.SessionDuration,
		SessionCount:    res.Count,
		UnusedMinutes:   res.Remainder,
		UnusedStart:     slots.FormatClock(res.UnusedStart),
		UnusedEnd:       slots.FormatClock(res.UnusedEnd),
		Message:         fmt.Sprintf("%d minutes will be unused", res.Remainder),
		Suggestion:      suggestion + ", or change the session duration",
	}
}

// DayPreview lists the sessions a weekday would offer.
type DayPreview struct {
	DayOfWeek int             `json:"day_of_week"`
	Sessions  []model.Session `json:"sessions"`
}

// PreviewResult is a validated schedule rendered into sessions.
type PreviewResult struct {
	Days     []DayPreview `json:"days"`
	Warnings []Warning    `json:"warnings"`
}

// Preview validates def and expands every day into its sessions without storing anything.
func Preview(def *model.ScheduleDefinition) (*PreviewResult, error) {
	warnings, err := Validate(def)
	if err != nil {
		return nil, err
	}
	out := &PreviewResult{Days: make([]DayPreview, 0, len(def.Days)), Warnings: warnings}
	for _, day := range def.Days {
		sessions, err := slots.GenerateDay(day.Windows)
		if err != nil {
			return nil, err
		}
		if sessions == nil {
			sessions = []model.Session{}
		}
		out.Days = append(out.Days, DayPreview{DayOfWeek: day.DayOfWeek, Sessions: sessions})
	}
	return out, nil
}
