package schedule

import (
	"time"

	"sessionbook/internal/model"
)

// Resolve returns the availability entry for the weekday of date. The first
// matching entry wins when a definition carries duplicate weekdays. A nil
// definition or missing weekday yields ok=false.
func Resolve(def *model.ScheduleDefinition, date time.Time) (model.DayAvailability, bool) {
	if def == nil {
		return model.DayAvailability{}, false
	}
	weekday := model.Weekday(date)
	for _, day := range def.Days {
		if day.DayOfWeek == weekday {
			return day, true
		}
	}
	return model.DayAvailability{}, false
}

// Windows is Resolve reduced to the day's window list.
func Windows(def *model.ScheduleDefinition, date time.Time) []model.TimeWindow {
	day, ok := Resolve(def, date)
	if !ok {
		return nil
	}
	return day.Windows
}
