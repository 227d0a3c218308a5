/*
hours.go - Time normalizer

PURPOSE:
  Converts a stored instant pair into local wall-clock times and computes
  net worked duration. Pure functions, no side effects.

RULES:
  - Instants are stored in UTC; local time is a fixed offset (+09:00).
  - span = end - start on the wall clock; +24h when end < start (overnight).
  - If the interval strictly spans the lunch window (start before 12:00 and
    end after 13:00) and the entry is not flagged lunch_overtime, one hour
    is subtracted.
  - Result is floored at 0.

PRECISION:
  Durations are whole minutes. Hours are derived only for display and for
  money math (see AmountFor), so sums never accumulate rounding error.
*/
package billing

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultZone is the fixed local zone used to read stored instants.
var DefaultZone = time.FixedZone("JST", 9*60*60)

// =============================================================================
// CLOCK - Minutes since local midnight
// =============================================================================

type Clock int

const minutesPerDay = 24 * 60

// NewClock builds a Clock from hour and minute.
func NewClock(hour, minute int) Clock { return Clock(hour*60 + minute) }

// ParseClock parses "HH:MM".
func ParseClock(s string) (Clock, error) {
	var h, m int
	if _, err := fmt.Sscanf(s, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid clock %q: %w", s, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid clock %q: out of range", s)
	}
	return NewClock(h, m), nil
}

// ClockOf converts an instant to wall-clock minutes in zone.
func ClockOf(t time.Time, zone *time.Location) Clock {
	if zone == nil {
		zone = DefaultZone
	}
	local := t.In(zone)
	return NewClock(local.Hour(), local.Minute())
}

func (c Clock) String() string { return fmt.Sprintf("%02d:%02d", int(c)/60, int(c)%60) }

// =============================================================================
// MINUTES - Worked duration
// =============================================================================

type Minutes int64

// Hours returns the duration in hours (minutes / 60).
func (m Minutes) Hours() decimal.Decimal {
	return decimal.NewFromInt(int64(m)).Div(sixty)
}

// Display returns hours rounded to two places.
func (m Minutes) Display() decimal.Decimal { return m.Hours().Round(2) }

// =============================================================================
// LUNCH WINDOW
// =============================================================================

type LunchWindow struct {
	Start Clock
	End   Clock
}

// DefaultLunch is [12:00, 13:00).
var DefaultLunch = LunchWindow{Start: NewClock(12, 0), End: NewClock(13, 0)}

// Length is the amount subtracted when the window applies.
func (w LunchWindow) Length() Minutes { return Minutes(w.End - w.Start) }

// =============================================================================
// NORMALIZER
// =============================================================================

// Interval is the local time-of-day pair of an entry.
type Interval struct {
	Start Clock
	End   Clock
}

// LocalInterval converts a stored instant pair to a local time-of-day pair.
func LocalInterval(start, end time.Time, zone *time.Location) Interval {
	return Interval{Start: ClockOf(start, zone), End: ClockOf(end, zone)}
}

// NetWorked returns the net worked duration of a local interval.
func NetWorked(iv Interval, flag StatusFlag, lunch LunchWindow) Minutes {
	span := Minutes(iv.End - iv.Start)
	if iv.End < iv.Start {
		span += minutesPerDay
	}
	if iv.Start < lunch.Start && iv.End > lunch.End && flag != FlagLunchOvertime {
		span -= lunch.Length()
	}
	if span < 0 {
		return 0
	}
	return span
}

// Normalizer binds a zone and lunch window.
type Normalizer struct {
	Zone  *time.Location
	Lunch LunchWindow
}

// Worked returns the net worked minutes of one entry.
func (n Normalizer) Worked(e TimesheetEntry) Minutes {
	lunch := n.Lunch
	if lunch == (LunchWindow{}) {
		lunch = DefaultLunch
	}
	return NetWorked(LocalInterval(e.Start, e.End, n.Zone), e.Flag, lunch)
}
