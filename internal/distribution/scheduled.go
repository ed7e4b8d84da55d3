package distribution

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// ScheduledDelivery is a delivery queued for a partner's next business-hours
// opening. Unique per (lead, partner).
type ScheduledDelivery struct {
	ID            uuid.UUID
	LeadID        uuid.UUID
	PartnerID     uuid.UUID
	ScheduledTime time.Time
}

// ScheduleDelivery queues a delivery for when the partner opens. Conflicts on
// (lead, partner) are ignored: the earlier schedule stands.
func (r *Repository) ScheduleDelivery(ctx context.Context, leadID, partnerID uuid.UUID, at time.Time) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO scheduled_deliveries (lead_id, partner_id, scheduled_time)
		VALUES ($1, $2, $3)
		ON CONFLICT (lead_id, partner_id) DO NOTHING`,
		leadID, partnerID, at,
	)
	return err
}

// ClaimDueScheduled marks due scheduled deliveries dispatched and returns
// them. The dispatched_at update is part of the claiming statement, so
// overlapping sweeps never promote the same row twice.
func (r *Repository) ClaimDueScheduled(ctx context.Context, now time.Time, limit int) ([]ScheduledDelivery, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH cte AS (
			SELECT id FROM scheduled_deliveries
			WHERE dispatched_at IS NULL AND scheduled_time <= $1
			ORDER BY scheduled_time ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE scheduled_deliveries sd
		SET dispatched_at = now()
		FROM cte
		WHERE sd.id = cte.id
		RETURNING sd.id, sd.lead_id, sd.partner_id, sd.scheduled_time`,
		now, limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []ScheduledDelivery
	for rows.Next() {
		var sd ScheduledDelivery
		if err := rows.Scan(&sd.ID, &sd.LeadID, &sd.PartnerID, &sd.ScheduledTime); err != nil {
			return nil, err
		}
		result = append(result, sd)
	}
	return result, rows.Err()
}
