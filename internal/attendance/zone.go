package attendance

import "time"

// referenceOffset is the fixed UTC+7 offset all day boundaries are computed in.
const referenceOffset = 7 * 60 * 60

var referenceZone = time.FixedZone("UTC+7", referenceOffset)

// Admission window, as offsets from local midnight.
const (
	earliestClockIn = 7*time.Hour + 30*time.Minute
	almostLateFrom  = 8*time.Hour + 45*time.Minute
	lateAfter       = 9 * time.Hour
)

// Lateness classifies a clock-in by its local time of day.
type Lateness int

const (
	OnTime Lateness = iota
	AlmostLate
	Late
)

func (l Lateness) String() string {
	switch l {
	case OnTime:
		return "on_time"
	case AlmostLate:
		return "almost_late"
	case Late:
		return "late"
	default:
		return "unknown"
	}
}

// ReferenceZone returns the fixed zone used for lateness and day boundaries.
func ReferenceZone() *time.Location { return referenceZone }

// ToReferenceZone converts an instant to reference-zone local time.
func ToReferenceZone(t time.Time) time.Time { return t.In(referenceZone) }

// DayBounds returns the half-open local day [start, end) containing t.
func DayBounds(t time.Time) (time.Time, time.Time) {
	local := ToReferenceZone(t)
	start := time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, referenceZone)
	return start, start.AddDate(0, 0, 1)
}

// LocalDay returns the reference-zone calendar date of t as YYYY-MM-DD.
func LocalDay(t time.Time) string {
	return ToReferenceZone(t).Format(time.DateOnly)
}

// sinceMidnight is the local time of day of t.
func sinceMidnight(t time.Time) time.Duration {
	start, _ := DayBounds(t)
	return ToReferenceZone(t).Sub(start)
}

// TooEarly reports whether t is before the earliest admissible clock-in.
func TooEarly(t time.Time) bool {
	return sinceMidnight(t) < earliestClockIn
}

// Classify returns the lateness of a clock-in at t. 09:00:00 exactly is AlmostLate.
func Classify(t time.Time) Lateness {
	tod := sinceMidnight(t)
	switch {
	case tod < almostLateFrom:
		return OnTime
	case tod <= lateAfter:
		return AlmostLate
	default:
		return Late
	}
}
