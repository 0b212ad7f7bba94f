package outbox

import (
	"encoding/json"
	"time"

	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
)

// Event is the envelope written to the outbox table. The Kafka topic equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}

const (
	AggregateQuery     = "availability_query"
	EventSlotsComputed = "availability.slots.computed.v1"
)

type slotsComputedPayload struct {
	QueryID         string    `json:"query_id"`
	RequestID       string    `json:"request_id,omitempty"`
	RangeStart      time.Time `json:"range_start"`
	RangeEnd        time.Time `json:"range_end"`
	Timezone        string    `json:"timezone"`
	DurationMinutes int       `json:"duration_minutes"`
	IncludeWeekends bool      `json:"include_weekends"`
	BusyCount       int       `json:"busy_count"`
	SlotCount       int       `json:"slot_count"`
	ElapsedMS       int64     `json:"elapsed_ms"`
	ComputedAt      time.Time `json:"computed_at"`
}

// SlotsComputed builds the event announcing a finished computation.
func SlotsComputed(q model.Query) (Event, error) {
	payload, err := json.Marshal(slotsComputedPayload{
		QueryID:         q.ID,
		RequestID:       q.RequestID,
		RangeStart:      q.RangeStart.UTC(),
		RangeEnd:        q.RangeEnd.UTC(),
		Timezone:        q.Timezone,
		DurationMinutes: q.DurationMinutes,
		IncludeWeekends: q.IncludeWeekends,
		BusyCount:       q.BusyCount,
		SlotCount:       q.SlotCount,
		ElapsedMS:       q.ElapsedMS,
		ComputedAt:      q.CreatedAt.UTC(),
	})
	if err != nil {
		return Event{}, err
	}
	return Event{
		AggregateType: AggregateQuery,
		AggregateID:   q.ID,
		EventType:     EventSlotsComputed,
		Payload:       payload,
	}, nil
}
