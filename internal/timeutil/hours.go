// Package timeutil holds the hour arithmetic shared by the scheduling core.
// Nothing here reads the wall clock; callers pass every instant explicitly.
package timeutil

import (
	"math"
	"time"
)

// HoursBetween returns end - start in fractional hours. Negative when end is before start.
func HoursBetween(start, end time.Time) float64 {
	return end.Sub(start).Hours()
}

// RoundTo1 rounds half away from zero to one decimal place.
func RoundTo1(v float64) float64 {
	return math.Round(v*10) / 10
}

// RoundTo2 rounds half away from zero to two decimal places.
func RoundTo2(v float64) float64 {
	return math.Round(v*100) / 100
}

// Interval is a half-open time range [Start, End).
type Interval struct {
	Start time.Time
	End   time.Time
}

// Hours returns the interval length in hours.
func (i Interval) Hours() float64 {
	return HoursBetween(i.Start, i.End)
}

// Valid reports whether Start <= End.
func (i Interval) Valid() bool {
	return !i.End.Before(i.Start)
}

// Overlaps checks if two time ranges overlap. Touching ranges do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// Overlaps reports whether i and o share any instant.
func (i Interval) Overlaps(o Interval) bool {
	return Overlaps(i.Start, i.End, o.Start, o.End)
}

// Clip returns the part of i inside window, and false if they do not intersect.
func (i Interval) Clip(window Interval) (Interval, bool) {
	if !i.Overlaps(window) {
		return Interval{}, false
	}
	out := i
	if out.Start.Before(window.Start) {
		out.Start = window.Start
	}
	if out.End.After(window.End) {
		out.End = window.End
	}
	return out, true
}

// TrailingWindow returns [at - d, at).
func TrailingWindow(at time.Time, d time.Duration) Interval {
	return Interval{Start: at.Add(-d), End: at}
}

// FirstOverlap returns the indexes of the first pair of overlapping intervals, or -1, -1.
func FirstOverlap(intervals []Interval) (int, int) {
	for i := 0; i < len(intervals); i++ {
		for j := i + 1; j < len(intervals); j++ {
			if intervals[i].Overlaps(intervals[j]) {
				return i, j
			}
		}
	}
	return -1, -1
}
