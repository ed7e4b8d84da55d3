package leads

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const leadNotFoundMsg = "lead not found"

// Repository provides database operations for leads.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new leads repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const leadColumns = `
	id, country, niche, lead_type, first_name, last_name, email, phone, source,
	amount_lost, fraud_type, status, failure_reason, assigned_partner_id,
	created_at, distributed_at, converted_at`

// Create inserts a new pending lead.
func (r *Repository) Create(ctx context.Context, lead Lead) (Lead, error) {
	err := r.pool.QueryRow(ctx, `
		INSERT INTO leads (
			id, country, niche, lead_type, first_name, last_name, email, phone,
			source, amount_lost, fraud_type, status
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 'pending')
		RETURNING`+leadColumns,
		lead.ID, lead.Country, lead.Niche, lead.Type, lead.FirstName, lead.LastName,
		lead.Email, lead.Phone, lead.Source, lead.AmountLost, lead.FraudType,
	).Scan(leadDest(&lead)...)
	return lead, err
}

// GetByID returns a single lead.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Lead, error) {
	var lead Lead
	err := r.pool.QueryRow(ctx, `SELECT`+leadColumns+` FROM leads WHERE id = $1`, id).
		Scan(leadDest(&lead)...)
	if errors.Is(err, pgx.ErrNoRows) {
		return Lead{}, apperr.NotFound(leadNotFoundMsg)
	}
	return lead, err
}

// ClaimUnmatchedForRetry flips unmatched failed leads created within the
// retry window back to pending and returns their ids. The status change is
// part of the claiming statement, so overlapping sweeps never double-claim.
func (r *Repository) ClaimUnmatchedForRetry(ctx context.Context, window time.Duration, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		WITH cte AS (
			SELECT id FROM leads
			WHERE status = 'failed'
			  AND failure_reason = $1
			  AND created_at > now() - $2::interval
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE leads l
		SET status = 'pending', failure_reason = NULL, updated_at = now()
		FROM cte
		WHERE l.id = cte.id
		RETURNING l.id`,
		FailureNoEligiblePartner, window.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// MarkStranded flags unmatched leads whose retry window has expired. These
// require manual intervention and are no longer swept.
func (r *Repository) MarkStranded(ctx context.Context, window time.Duration, limit int) ([]Lead, error) {
	rows, err := r.pool.Query(ctx, `
		WITH cte AS (
			SELECT id FROM leads
			WHERE status = 'failed'
			  AND failure_reason = $1
			  AND created_at <= now() - $2::interval
			ORDER BY created_at ASC
			LIMIT $3
			FOR UPDATE SKIP LOCKED
		)
		UPDATE leads l
		SET failure_reason = $4, updated_at = now()
		FROM cte
		WHERE l.id = cte.id
		RETURNING`+prefixedLeadColumns("l"),
		FailureNoEligiblePartner, window.String(), limit, FailureStranded,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Lead
	for rows.Next() {
		var lead Lead
		if err := rows.Scan(leadDest(&lead)...); err != nil {
			return nil, err
		}
		result = append(result, lead)
	}
	return result, rows.Err()
}

// ListStalePending returns leads stuck in pending beyond the threshold.
// Closes the crash window between a rolled-back assignment and its recovery
// statement: the reconcile sweep re-enqueues these for distribution.
func (r *Repository) ListStalePending(ctx context.Context, olderThan time.Duration, limit int) ([]uuid.UUID, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id FROM leads
		WHERE status = 'pending' AND created_at <= now() - $1::interval
		ORDER BY created_at ASC
		LIMIT $2`,
		olderThan.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanIDs(rows)
}

// Undispatched is a distributed lead whose delivery handoff never landed:
// no attempt was recorded and no business-hours schedule is waiting.
type Undispatched struct {
	LeadID    uuid.UUID
	PartnerID uuid.UUID
}

// ListUndispatched returns committed assignments with no trace in the
// delivery tables. The assignment transaction commits before the delivery
// task is enqueued, so a crash or queue outage in that gap leaves the lead
// distributed with nothing downstream; the reconcile sweep re-enqueues it.
// A scheduled delivery still waiting for its window does not count as lost.
func (r *Repository) ListUndispatched(ctx context.Context, olderThan time.Duration, limit int) ([]Undispatched, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT l.id, l.assigned_partner_id
		FROM leads l
		WHERE l.status = 'distributed'
		  AND l.assigned_partner_id IS NOT NULL
		  AND l.distributed_at <= now() - $1::interval
		  AND NOT EXISTS (
			SELECT 1 FROM webhook_deliveries d
			WHERE d.lead_id = l.id AND d.partner_id = l.assigned_partner_id
		  )
		  AND NOT EXISTS (
			SELECT 1 FROM scheduled_deliveries sd
			WHERE sd.lead_id = l.id
			  AND sd.partner_id = l.assigned_partner_id
			  AND sd.dispatched_at IS NULL
		  )
		ORDER BY l.distributed_at ASC
		LIMIT $2`,
		olderThan.String(), limit,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []Undispatched
	for rows.Next() {
		var u Undispatched
		if err := rows.Scan(&u.LeadID, &u.PartnerID); err != nil {
			return nil, err
		}
		result = append(result, u)
	}
	return result, rows.Err()
}

func scanIDs(rows pgx.Rows) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func leadDest(lead *Lead) []any {
	return []any{
		&lead.ID, &lead.Country, &lead.Niche, &lead.Type, &lead.FirstName,
		&lead.LastName, &lead.Email, &lead.Phone, &lead.Source,
		&lead.AmountLost, &lead.FraudType, &lead.Status, &lead.FailureReason,
		&lead.AssignedPartnerID, &lead.CreatedAt, &lead.DistributedAt,
		&lead.ConvertedAt,
	}
}

func prefixedLeadColumns(alias string) string {
	return `
	` + alias + `.id, ` + alias + `.country, ` + alias + `.niche, ` + alias + `.lead_type,
	` + alias + `.first_name, ` + alias + `.last_name, ` + alias + `.email, ` + alias + `.phone,
	` + alias + `.source, ` + alias + `.amount_lost, ` + alias + `.fraud_type, ` + alias + `.status,
	` + alias + `.failure_reason, ` + alias + `.assigned_partner_id, ` + alias + `.created_at,
	` + alias + `.distributed_at, ` + alias + `.converted_at`
}
