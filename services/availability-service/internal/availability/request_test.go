package availability

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockValidate(t *testing.T) {
	cases := []struct {
		clock Clock
		ok    bool
	}{
		{Clock{}, true},
		{Clock{Hour: 9, Minute: 30, Second: 15}, true},
		{Clock{Hour: 23, Minute: 59, Second: 59}, true},
		{Clock{Hour: 24}, true},
		{Clock{Hour: 24, Minute: 1}, false},
		{Clock{Hour: 25}, false},
		{Clock{Hour: -1}, false},
		{Clock{Minute: 60}, false},
		{Clock{Second: 60}, false},
	}
	for _, tc := range cases {
		err := tc.clock.Validate()
		if tc.ok {
			assert.NoError(t, err, tc.clock.String())
		} else {
			assert.Error(t, err, tc.clock.String())
		}
	}
}

func TestDailyWindowBounds(t *testing.T) {
	day := time.Date(2026, 1, 5, 13, 45, 0, 0, time.UTC)

	start, end := DailyWindow{}.Bounds(day)
	assert.Equal(t, time.Date(2026, 1, 5, 9, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 5, 17, 0, 0, 0, time.UTC), end)

	// Hour zero is an explicit midnight, not "unset".
	start, end = DailyWindow{From: &Clock{}, To: &Clock{Hour: 24}}.Bounds(day)
	assert.Equal(t, time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 6, 0, 0, 0, 0, time.UTC), end)
}

func TestRequestDays(t *testing.T) {
	req := Request{RangeStart: monday, RangeEnd: monday.AddDate(0, 0, 2)}
	days := req.days()
	require.Len(t, days, 3)
	assert.Equal(t, monday.AddDate(0, 0, 2), days[2])

	req = Request{RangeStart: monday, RangeEnd: monday}
	assert.Len(t, req.days(), 1)

	req = Request{RangeStart: monday, RangeEnd: monday.Add(-time.Millisecond)}
	assert.Empty(t, req.days())

	// Clock times never trim a date off either end.
	req = Request{RangeStart: monday.Add(23 * time.Hour), RangeEnd: monday.AddDate(0, 0, 1).Add(time.Minute)}
	days = req.days()
	require.Len(t, days, 2)
	assert.Equal(t, monday, days[0])
	assert.Equal(t, monday.AddDate(0, 0, 1), days[1])
}

func TestRequestDaysReadsRangeEndInCalendarZone(t *testing.T) {
	loc, err := time.LoadLocation("Asia/Tokyo")
	require.NoError(t, err)

	// 20:00 UTC on Tuesday is already Wednesday in Tokyo.
	req := Request{
		RangeStart: time.Date(2026, 1, 5, 8, 0, 0, 0, loc),
		RangeEnd:   time.Date(2026, 1, 6, 20, 0, 0, 0, time.UTC),
	}
	days := req.days()
	require.Len(t, days, 3)
	assert.Equal(t, time.Date(2026, 1, 7, 0, 0, 0, 0, loc), days[2])
	assert.Equal(t, loc, days[2].Location())
}

func TestRequestDefaults(t *testing.T) {
	assert.Zero(t, Request{}.slotDuration())
	assert.Zero(t, Request{SlotDuration: -time.Minute}.slotDuration())
	assert.Equal(t, 45*time.Minute, Request{SlotDuration: 45 * time.Minute}.slotDuration())

	assert.True(t, Request{}.allows(monday))
	assert.False(t, Request{}.allows(monday.AddDate(0, 0, 5)))
	assert.True(t, Request{IncludeWeekends: true}.allows(monday.AddDate(0, 0, 6)))
}

func TestRangeFromDays(t *testing.T) {
	now := time.Date(2026, 1, 5, 14, 30, 0, 0, time.UTC)

	start, end := RangeFromDays(now, 5, true)
	assert.Equal(t, now, start)
	assert.Equal(t, time.Date(2026, 1, 9, 14, 30, 0, 0, time.UTC), end)

	start, end = RangeFromDays(now, 5, false)
	assert.Equal(t, time.Date(2026, 1, 6, 14, 30, 0, 0, time.UTC), start)
	assert.Equal(t, time.Date(2026, 1, 10, 14, 30, 0, 0, time.UTC), end)

	req := Request{RangeStart: start, RangeEnd: end}
	assert.Len(t, req.days(), 5)
}

func TestRangeFromDaysAcrossDST(t *testing.T) {
	loc, err := time.LoadLocation("Europe/Stockholm")
	require.NoError(t, err)

	// Clocks go forward on 29 March 2026; calendar steps keep the wall time.
	now := time.Date(2026, 3, 27, 10, 0, 0, 0, loc)
	start, end := RangeFromDays(now, 4, true)
	assert.Equal(t, now, start)
	assert.Equal(t, time.Date(2026, 3, 30, 10, 0, 0, 0, loc), end)

	req := Request{RangeStart: start, RangeEnd: end, IncludeWeekends: true}
	slots, err := FreeSlots(nil, req)
	require.NoError(t, err)
	require.Len(t, slots, 4)
	for _, s := range slots {
		assert.Equal(t, 8*time.Hour, s.Duration())
		assert.Equal(t, 9, s.Start.Hour())
	}
}
