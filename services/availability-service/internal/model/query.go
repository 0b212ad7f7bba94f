package model

import "time"

// Query is one computed availability request, kept for analytics.
type Query struct {
	ID              string
	RequestID       string
	RangeStart      time.Time
	RangeEnd        time.Time
	Timezone        string
	DurationMinutes int
	IncludeWeekends bool
	MaxSlots        int
	BusyCount       int
	SlotCount       int
	ElapsedMS       int64
	CreatedAt       time.Time
}
