// Package conflict detects temporal overlap between sessions and bookings.
package conflict

import "sessionbook/internal/model"

// Overlaps reports whether [aStart, aEnd) and [bStart, bEnd) intersect.
// Times are zero-padded "HH:MM" strings, so lexical order is time order.
// Ranges that only touch do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd string) bool {
	return aStart < bEnd && aEnd > bStart
}

// Find returns the first pending or confirmed booking overlapping [start, end),
// skipping the booking with id excludeID. Callers pass bookings of a single
// provider and date.
func Find(start, end string, bookings []model.Booking, excludeID string) *model.Booking {
	for i := range bookings {
		b := &bookings[i]
		if !b.Status.Active() || (excludeID != "" && b.ID == excludeID) {
			continue
		}
		if Overlaps(start, end, b.StartTime, b.EndTime) {
			return b
		}
	}
	return nil
}

// Any reports whether any blocking booking overlaps [start, end).
func Any(start, end string, bookings []model.Booking, excludeID string) bool {
	return Find(start, end, bookings, excludeID) != nil
}

// Split partitions sessions into those free of blocking bookings and those taken.
func Split(sessions []model.Session, bookings []model.Booking, excludeID string) (open, taken []model.Session) {
	open = make([]model.Session, 0, len(sessions))
	for _, s := range sessions {
		if Any(s.StartTime, s.EndTime, bookings, excludeID) {
			taken = append(taken, s)
			continue
		}
		open = append(open, s)
	}
	return open, taken
}

// Open returns the sessions no blocking booking overlaps, keeping their order.
func Open(sessions []model.Session, bookings []model.Booking) []model.Session {
	open, _ := Split(sessions, bookings, "")
	return open
}
