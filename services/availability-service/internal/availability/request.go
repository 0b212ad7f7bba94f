package availability

import (
	"fmt"
	"time"
)

var (
	// DefaultFrom is the start of the working day when DailyWindow.From is nil.
	DefaultFrom = Clock{Hour: 9}
	// DefaultTo is the end of the working day when DailyWindow.To is nil.
	DefaultTo = Clock{Hour: 17}
)

// Clock is a wall-clock time of day.
type Clock struct {
	Hour   int
	Minute int
	Second int
}

// Validate accepts 00:00:00 through 24:00:00.
func (c Clock) Validate() error {
	if c.Hour < 0 || c.Hour > 24 || c.Minute < 0 || c.Minute > 59 || c.Second < 0 || c.Second > 59 {
		return fmt.Errorf("clock %s out of range", c)
	}
	if c.Hour == 24 && (c.Minute != 0 || c.Second != 0) {
		return fmt.Errorf("clock %s out of range", c)
	}
	return nil
}

func (c Clock) String() string {
	return fmt.Sprintf("%02d:%02d:%02d", c.Hour, c.Minute, c.Second)
}

// On returns the instant c on the calendar date of day, in day's location.
func (c Clock) On(day time.Time) time.Time {
	y, m, d := day.Date()
	return time.Date(y, m, d, c.Hour, c.Minute, c.Second, 0, day.Location())
}

// DailyWindow bounds the working hours of every scanned day. Nil ends fall back
// to DefaultFrom and DefaultTo independently.
type DailyWindow struct {
	From *Clock
	To   *Clock
}

// Bounds returns the working window [start, end) on day's date.
func (w DailyWindow) Bounds(day time.Time) (time.Time, time.Time) {
	from, to := DefaultFrom, DefaultTo
	if w.From != nil {
		from = *w.From
	}
	if w.To != nil {
		to = *w.To
	}
	return from.On(day), to.On(day)
}

// Request describes one availability computation. RangeStart and RangeEnd bound
// the scanned calendar days inclusively; their location is the calendar's.
type Request struct {
	RangeStart time.Time
	RangeEnd   time.Time
	// SlotDuration is the minimum slot length. Zero keeps every non-empty gap.
	SlotDuration    time.Duration
	IncludeWeekends bool
	Daily           DailyWindow
	// MaxSlots truncates the result; zero means no limit.
	MaxSlots int
}

func (r Request) slotDuration() time.Duration {
	return max(r.SlotDuration, 0)
}

func (r Request) allows(day time.Time) bool {
	if r.IncludeWeekends {
		return true
	}
	wd := day.Weekday()
	return wd != time.Saturday && wd != time.Sunday
}

// days lists midnight of every calendar date from RangeStart's through
// RangeEnd's, both read in RangeStart's location. Clock times are ignored.
func (r Request) days() []time.Time {
	loc := r.RangeStart.Location()
	first, last := dateOf(r.RangeStart), dateOf(r.RangeEnd.In(loc))

	var out []time.Time
	for d := first; !d.After(last); d = d.AddDate(0, 0, 1) {
		y, m, dd := d.Date()
		out = append(out, time.Date(y, m, dd, 0, 0, 0, 0, loc))
	}
	return out
}

// dateOf maps t's calendar date to UTC midnight so stepping is DST-free.
func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// RangeFromDays derives a scan range of numDays calendar days starting today,
// or tomorrow when includeToday is false. Both ends keep now's clock time;
// only their dates matter to the scan.
func RangeFromDays(now time.Time, numDays int, includeToday bool) (time.Time, time.Time) {
	if includeToday {
		return now, now.AddDate(0, 0, numDays-1)
	}
	return now.AddDate(0, 0, 1), now.AddDate(0, 0, numDays)
}
