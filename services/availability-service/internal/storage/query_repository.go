package storage

import (
	"context"
	"embed"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/md-rashed-zaman/slotfinder/libs/db"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/model"
	"github.com/md-rashed-zaman/slotfinder/services/availability-service/internal/outbox"
)

// Migrations holds the goose migrations for this service under "migrations".
//
//go:embed migrations/*.sql
var Migrations embed.FS

const MigrationsDir = "migrations"

type QueryRepository struct {
	pool   *db.Pool
	outbox *outbox.Repository
}

func NewQueryRepository(pool *db.Pool, outboxRepo *outbox.Repository) *QueryRepository {
	return &QueryRepository{pool: pool, outbox: outboxRepo}
}

// Record stores q and its slots-computed event atomically. A missing ID or
// CreatedAt is filled in.
func (r *QueryRepository) Record(ctx context.Context, q *model.Query) error {
	if q.ID == "" {
		q.ID = uuid.NewString()
	}
	if q.CreatedAt.IsZero() {
		q.CreatedAt = time.Now().UTC()
	}
	evt, err := outbox.SlotsComputed(*q)
	if err != nil {
		return fmt.Errorf("build event: %w", err)
	}

	return r.pool.InTx(ctx, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO availability_queries
				(id, request_id, range_start, range_end, timezone, duration_minutes, include_weekends,
				 max_slots, busy_count, slot_count, elapsed_ms, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
		`, q.ID, q.RequestID, q.RangeStart, q.RangeEnd, q.Timezone, q.DurationMinutes, q.IncludeWeekends,
			q.MaxSlots, q.BusyCount, q.SlotCount, q.ElapsedMS, q.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert query: %w", err)
		}
		if err := r.outbox.Insert(ctx, tx, evt); err != nil {
			return fmt.Errorf("insert outbox event: %w", err)
		}
		return nil
	})
}
