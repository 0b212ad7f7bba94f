package availability

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/intervaltree"
	"golang.org/x/sync/errgroup"
)

// Interval is a busy period in epoch milliseconds.
type Interval = intervaltree.Interval[int64]

// FreeSlot is a bookable window inside one day's working hours.
type FreeSlot struct {
	Start time.Time
	End   time.Time
}

func (s FreeSlot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// FreeSlots returns the free windows of req that are at least req.SlotDuration
// long and do not overlap any busy interval, ordered by start. Empty windows
// are never returned, even for a zero SlotDuration.
//
// A busy interval that ends before it starts fails the whole call with
// intervaltree.ErrInvalidInterval.
func FreeSlots(busy []Interval, req Request) ([]FreeSlot, error) {
	s, err := newSweep(busy, req)
	if err != nil {
		return nil, err
	}
	var slots []FreeSlot
	for _, day := range req.days() {
		slots = append(slots, s.scanDay(day)...)
	}
	return s.limit(slots), nil
}

// FreeSlotsConcurrent is FreeSlots with days scanned by up to workers
// goroutines. The result is identical to FreeSlots.
func FreeSlotsConcurrent(ctx context.Context, busy []Interval, req Request, workers int) ([]FreeSlot, error) {
	s, err := newSweep(busy, req)
	if err != nil {
		return nil, err
	}
	days := req.days()
	perDay := make([][]FreeSlot, len(days))

	g, gctx := errgroup.WithContext(ctx)
	if workers > 0 {
		g.SetLimit(workers)
	}
	for i, day := range days {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			perDay[i] = s.scanDay(day)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var slots []FreeSlot
	for _, daySlots := range perDay {
		slots = append(slots, daySlots...)
	}
	return s.limit(slots), nil
}

type sweep struct {
	req    Request
	index  *intervaltree.Tree[int64]
	slotMs int64
}

func newSweep(busy []Interval, req Request) (*sweep, error) {
	index := intervaltree.New[int64](len(busy))
	for i, b := range busy {
		if err := index.Insert(b.Start, b.End); err != nil {
			return nil, fmt.Errorf("busy[%d]: %w", i, err)
		}
	}
	return &sweep{
		req:    req,
		index:  index,
		slotMs: req.slotDuration().Milliseconds(),
	}, nil
}

// scanDay returns the consistent free slots of a single day.
func (s *sweep) scanDay(day time.Time) []FreeSlot {
	if !s.req.allows(day) {
		return nil
	}
	dayStart, dayEnd := s.req.Daily.Bounds(day)
	startMs, endMs := dayStart.UnixMilli(), dayEnd.UnixMilli()
	if endMs <= startMs {
		return nil
	}

	events := s.index.Search(startMs, endMs)
	slices.SortStableFunc(events, func(a, b Interval) int {
		return cmp.Compare(a.Start, b.Start)
	})

	loc := dayStart.Location()
	at := func(ms int64) time.Time {
		return time.UnixMilli(ms).In(loc)
	}

	var candidates []FreeSlot
	gap := func(from, to int64, start, end time.Time) {
		if to > from && to-from >= s.slotMs {
			candidates = append(candidates, FreeSlot{Start: start, End: end})
		}
	}
	if len(events) == 0 {
		gap(startMs, endMs, dayStart, dayEnd)
	} else {
		first, last := events[0], events[len(events)-1]
		gap(startMs, first.Start, dayStart, at(first.Start))
		for i := 0; i < len(events)-1; i++ {
			gap(events[i].End, events[i+1].Start, at(events[i].End), at(events[i+1].Start))
		}
		gap(last.End, endMs, at(last.End), dayEnd)
	}

	out := candidates[:0]
	for _, c := range candidates {
		if s.consistent(c) {
			out = append(out, c)
		}
	}
	return out
}

// consistent rejects a candidate that still overlaps a busy interval once its
// ends are pulled in by 1ms, so touching the events that bound it is allowed.
func (s *sweep) consistent(slot FreeSlot) bool {
	return !s.index.Overlaps(slot.Start.UnixMilli()+1, slot.End.UnixMilli()-1)
}

func (s *sweep) limit(slots []FreeSlot) []FreeSlot {
	if s.req.MaxSlots > 0 && len(slots) > s.req.MaxSlots {
		return slots[:s.req.MaxSlots]
	}
	return slots
}
