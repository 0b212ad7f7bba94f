package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/md-rashed-zaman/slotfinder/libs/httpx"
	otelx "github.com/md-rashed-zaman/slotfinder/libs/otel"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/availability"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/cache"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/intervaltree"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// QueryRecorder persists a summary of each computed request.
type QueryRecorder interface {
	Record(ctx context.Context, q *model.Query) error
}

type Defaults struct {
	DurationMinutes int
	NumDays         int
	Workers         int
	CacheTTL        time.Duration
	// MaxRangeDays rejects requests spanning more calendar days.
	MaxRangeDays int
}

type SlotsHandler struct {
	logger   *slog.Logger
	cache    cache.Cache
	recorder QueryRecorder
	defaults Defaults
	now      func() time.Time
}

// NewSlotsHandler builds the handler. c and recorder may be nil.
func NewSlotsHandler(logger *slog.Logger, c cache.Cache, recorder QueryRecorder, defaults Defaults) *SlotsHandler {
	if defaults.DurationMinutes <= 0 {
		defaults.DurationMinutes = 25
	}
	if defaults.NumDays <= 0 {
		defaults.NumDays = 5
	}
	if defaults.MaxRangeDays <= 0 {
		defaults.MaxRangeDays = 366
	}
	return &SlotsHandler{
		logger:   logger,
		cache:    c,
		recorder: recorder,
		defaults: defaults,
		now:      time.Now,
	}
}

type busyItem struct {
	Start int64 `json:"start"`
	End   int64 `json:"end"`
}

type dailyItem struct {
	From []int `json:"from"`
	To   []int `json:"to"`
}

type slotsRequest struct {
	Busy            []busyItem `json:"busy"`
	RangeStart      string     `json:"range_start"`
	RangeEnd        string     `json:"range_end"`
	NumDays         *int       `json:"num_days"`
	IncludeToday    *bool      `json:"include_today"`
	Timezone        string     `json:"timezone"`
	DurationMinutes *int       `json:"duration_minutes"`
	IncludeWeekends bool       `json:"include_weekends"`
	MaxSlots        int        `json:"max_slots"`
	Daily           *dailyItem `json:"daily"`
}

type slotItem struct {
	Start     int64  `json:"start"`
	End       int64  `json:"end"`
	StartTime string `json:"start_time"`
	EndTime   string `json:"end_time"`
}

type slotsResponse struct {
	Slots  []slotItem `json:"slots"`
	Count  int        `json:"count"`
	Cached bool       `json:"cached"`
}

// cacheKey is the normalized form of a request; equal keys give equal results.
// The scan only looks at calendar dates, so the range is keyed by date.
type cacheKey struct {
	Busy            []busyItem `json:"busy"`
	RangeStart      string     `json:"range_start"`
	RangeEnd        string     `json:"range_end"`
	Timezone        string     `json:"tz"`
	DurationMinutes int        `json:"duration"`
	IncludeWeekends bool       `json:"weekends"`
	MaxSlots        int        `json:"max"`
	From            string     `json:"from"`
	To              string     `json:"to"`
}

// Slots serves POST /api/v1/slots.
func (h *SlotsHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		w.Header().Set("Allow", http.MethodPost)
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req slotsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid json body", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	areq, busy, loc, durationMinutes, err := h.resolve(req)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	key, keyErr := cache.Key("slots", cacheKey{
		Busy:            req.Busy,
		RangeStart:      areq.RangeStart.Format(time.DateOnly),
		RangeEnd:        areq.RangeEnd.In(loc).Format(time.DateOnly),
		Timezone:        loc.String(),
		DurationMinutes: durationMinutes,
		IncludeWeekends: areq.IncludeWeekends,
		MaxSlots:        areq.MaxSlots,
		From:            clockString(areq.Daily.From),
		To:              clockString(areq.Daily.To),
	})
	if keyErr != nil {
		h.logger.Warn("cache key failed", "err", keyErr)
	}
	if resp, ok := h.lookup(ctx, key); ok {
		httpx.WriteJSON(w, http.StatusOK, resp)
		return
	}

	start := time.Now()
	slots, err := h.compute(ctx, busy, areq)
	if err != nil {
		switch {
		case errors.Is(err, intervaltree.ErrInvalidInterval):
			http.Error(w, err.Error(), http.StatusBadRequest)
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			http.Error(w, "request cancelled", http.StatusServiceUnavailable)
		default:
			h.logger.Error("slot computation failed", "err", err)
			http.Error(w, "failed to compute slots", http.StatusInternalServerError)
		}
		return
	}
	elapsed := time.Since(start)

	resp := slotsResponse{Slots: make([]slotItem, 0, len(slots)), Count: len(slots)}
	for _, s := range slots {
		resp.Slots = append(resp.Slots, slotItem{
			Start:     s.Start.UnixMilli(),
			End:       s.End.UnixMilli(),
			StartTime: s.Start.Format(time.RFC3339),
			EndTime:   s.End.Format(time.RFC3339),
		})
	}

	h.store(ctx, key, resp)
	h.record(ctx, &model.Query{
		RequestID:       httpx.RequestIDFromContext(ctx),
		RangeStart:      areq.RangeStart,
		RangeEnd:        areq.RangeEnd,
		Timezone:        loc.String(),
		DurationMinutes: durationMinutes,
		IncludeWeekends: areq.IncludeWeekends,
		MaxSlots:        areq.MaxSlots,
		BusyCount:       len(busy),
		SlotCount:       len(slots),
		ElapsedMS:       elapsed.Milliseconds(),
	})

	httpx.WriteJSON(w, http.StatusOK, resp)
}

// resolve validates req and turns it into an engine request. Every error it
// returns is a client error.
func (h *SlotsHandler) resolve(req slotsRequest) (availability.Request, []availability.Interval, *time.Location, int, error) {
	var zero availability.Request

	loc := time.UTC
	if tz := strings.TrimSpace(req.Timezone); tz != "" {
		l, err := time.LoadLocation(tz)
		if err != nil {
			return zero, nil, nil, 0, fmt.Errorf("invalid timezone %q", tz)
		}
		loc = l
	}

	durationMinutes := h.defaults.DurationMinutes
	if req.DurationMinutes != nil {
		if *req.DurationMinutes < 0 {
			return zero, nil, nil, 0, errors.New("duration_minutes must not be negative")
		}
		durationMinutes = *req.DurationMinutes
	}
	if req.MaxSlots < 0 {
		return zero, nil, nil, 0, errors.New("max_slots must not be negative")
	}

	rangeStart, rangeEnd, err := h.resolveRange(req, loc)
	if err != nil {
		return zero, nil, nil, 0, err
	}

	daily, err := parseDaily(req.Daily)
	if err != nil {
		return zero, nil, nil, 0, err
	}

	busy := make([]availability.Interval, 0, len(req.Busy))
	for _, b := range req.Busy {
		busy = append(busy, availability.Interval{Start: b.Start, End: b.End})
	}

	return availability.Request{
		RangeStart:      rangeStart,
		RangeEnd:        rangeEnd,
		SlotDuration:    time.Duration(durationMinutes) * time.Minute,
		IncludeWeekends: req.IncludeWeekends,
		Daily:           daily,
		MaxSlots:        req.MaxSlots,
	}, busy, loc, durationMinutes, nil
}

func (h *SlotsHandler) resolveRange(req slotsRequest, loc *time.Location) (time.Time, time.Time, error) {
	rs, re := strings.TrimSpace(req.RangeStart), strings.TrimSpace(req.RangeEnd)
	if rs == "" && re == "" {
		numDays := h.defaults.NumDays
		if req.NumDays != nil {
			if *req.NumDays < 1 {
				return time.Time{}, time.Time{}, errors.New("num_days must be at least 1")
			}
			numDays = *req.NumDays
		}
		if numDays > h.defaults.MaxRangeDays {
			return time.Time{}, time.Time{}, fmt.Errorf("range exceeds %d days", h.defaults.MaxRangeDays)
		}
		includeToday := true
		if req.IncludeToday != nil {
			includeToday = *req.IncludeToday
		}
		start, end := availability.RangeFromDays(h.now().In(loc), numDays, includeToday)
		return start, end, nil
	}
	if rs == "" || re == "" {
		return time.Time{}, time.Time{}, errors.New("range_start and range_end must be given together")
	}

	start, err := parseDate(rs, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range_start %q", rs)
	}
	end, err := parseDate(re, loc)
	if err != nil {
		return time.Time{}, time.Time{}, fmt.Errorf("invalid range_end %q", re)
	}
	if end.Sub(start) > time.Duration(h.defaults.MaxRangeDays)*24*time.Hour {
		return time.Time{}, time.Time{}, fmt.Errorf("range exceeds %d days", h.defaults.MaxRangeDays)
	}
	return start, end, nil
}

// parseDate accepts YYYY-MM-DD (midnight in loc) or RFC3339 (converted to loc).
func parseDate(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.ParseInLocation(time.DateOnly, s, loc); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, err
	}
	return t.In(loc), nil
}

func parseDaily(d *dailyItem) (availability.DailyWindow, error) {
	var w availability.DailyWindow
	if d == nil {
		return w, nil
	}
	var err error
	if w.From, err = parseClock("daily.from", d.From); err != nil {
		return w, err
	}
	if w.To, err = parseClock("daily.to", d.To); err != nil {
		return w, err
	}
	return w, nil
}

// parseClock reads [h], [h, m] or [h, m, s]. An empty list means unset.
func parseClock(field string, parts []int) (*availability.Clock, error) {
	if len(parts) == 0 {
		return nil, nil
	}
	if len(parts) > 3 {
		return nil, fmt.Errorf("%s takes at most [hour, minute, second]", field)
	}
	var c availability.Clock
	c.Hour = parts[0]
	if len(parts) > 1 {
		c.Minute = parts[1]
	}
	if len(parts) > 2 {
		c.Second = parts[2]
	}
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", field, err)
	}
	return &c, nil
}

func clockString(c *availability.Clock) string {
	if c == nil {
		return ""
	}
	return c.String()
}

func (h *SlotsHandler) compute(ctx context.Context, busy []availability.Interval, req availability.Request) ([]availability.FreeSlot, error) {
	ctx, span := otelx.Tracer("availability").Start(ctx, "availability.FreeSlots")
	defer span.End()
	span.SetAttributes(
		attribute.Int("busy.count", len(busy)),
		attribute.String("range.start", req.RangeStart.Format(time.RFC3339)),
		attribute.String("range.end", req.RangeEnd.Format(time.RFC3339)),
		attribute.Int64("slot.duration_ms", req.SlotDuration.Milliseconds()),
	)

	slots, err := availability.FreeSlotsConcurrent(ctx, busy, req, h.defaults.Workers)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("slot.count", len(slots)))
	return slots, nil
}

func (h *SlotsHandler) lookup(ctx context.Context, key string) (slotsResponse, bool) {
	var resp slotsResponse
	if h.cache == nil || key == "" {
		return resp, false
	}
	raw, ok, err := h.cache.Get(ctx, key)
	if err != nil {
		h.logger.Warn("slots cache get failed", "err", err)
		return resp, false
	}
	if !ok {
		return resp, false
	}
	if err := json.Unmarshal(raw, &resp); err != nil {
		h.logger.Warn("slots cache entry corrupt", "key", key, "err", err)
		return resp, false
	}
	resp.Cached = true
	return resp, true
}

func (h *SlotsHandler) store(ctx context.Context, key string, resp slotsResponse) {
	if h.cache == nil || key == "" || h.defaults.CacheTTL <= 0 {
		return
	}
	raw, err := json.Marshal(resp)
	if err != nil {
		return
	}
	if err := h.cache.Set(ctx, key, raw, h.defaults.CacheTTL); err != nil {
		h.logger.Warn("slots cache set failed", "err", err)
	}
}

func (h *SlotsHandler) record(ctx context.Context, q *model.Query) {
	if h.recorder == nil {
		return
	}
	if err := h.recorder.Record(ctx, q); err != nil {
		h.logger.Warn("query log failed", "err", err, "request_id", q.RequestID)
	}
}
