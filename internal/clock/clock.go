// Package clock defines the canonical simulation time unit — the segment —
// and the time-of-day bands derived from it. One segment is one sim-hour;
// every countdown in the engine is denominated in segments, and all unit
// conversion lives here.
package clock

import "fmt"

// SegmentsPerDay is the number of segments (sim-hours) in one sim-day.
const SegmentsPerDay = 24

// Band is a time-of-day band used for NPC schedules and dawn-gated actions.
type Band uint8

const (
	BandDawn      Band = iota // 05:00–08:00
	BandMorning               // 08:00–12:00
	BandAfternoon             // 12:00–17:00
	BandEvening               // 17:00–22:00
	BandNight                 // 22:00–05:00
)

// NumBands is the number of time-of-day bands.
const NumBands = 5

// bandNames maps bands to display names.
var bandNames = [NumBands]string{"dawn", "morning", "afternoon", "evening", "night"}

// String returns the band's display name.
func (b Band) String() string {
	if int(b) >= NumBands {
		return "unknown"
	}
	return bandNames[b]
}

// HourOf returns the hour of day [0,24) for a segment counter.
func HourOf(segment uint64) int {
	return int(segment % SegmentsPerDay)
}

// DayOf returns the sim-day index (0-based) for a segment counter.
func DayOf(segment uint64) uint64 {
	return segment / SegmentsPerDay
}

// BandOf returns the time-of-day band for a segment counter.
func BandOf(segment uint64) Band {
	switch h := HourOf(segment); {
	case h >= 5 && h < 8:
		return BandDawn
	case h >= 8 && h < 12:
		return BandMorning
	case h >= 12 && h < 17:
		return BandAfternoon
	case h >= 17 && h < 22:
		return BandEvening
	default:
		return BandNight
	}
}

// SimTime returns a human-readable simulation time string from a segment
// counter, e.g. "Day 3, 14:00 (afternoon)".
func SimTime(segment uint64) string {
	return fmt.Sprintf("Day %d, %02d:00 (%s)", DayOf(segment)+1, HourOf(segment), BandOf(segment))
}
