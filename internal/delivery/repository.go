package delivery

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists delivery attempt records.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new delivery repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const recordColumns = `
	id, lead_id, partner_id, endpoint, payload, attempt, status,
	response_code, response_body, error_message, archive_key, terminal,
	attempted_at, retry_claimed_at, created_at, updated_at`

func scanRecord(row pgx.Row) (Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.LeadID, &rec.PartnerID, &rec.Endpoint, &rec.Payload,
		&rec.Attempt, &rec.Status, &rec.ResponseCode, &rec.ResponseBody,
		&rec.ErrorMessage, &rec.ArchiveKey, &rec.Terminal, &rec.AttemptedAt,
		&rec.RetryClaimedAt, &rec.CreatedAt, &rec.UpdatedAt,
	)
	return rec, err
}

// GetByID loads one delivery record.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Record, error) {
	rec, err := scanRecord(r.pool.QueryRow(ctx, `
		SELECT `+recordColumns+`
		FROM webhook_deliveries
		WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return Record{}, apperr.NotFound("delivery not found")
	}
	return rec, err
}

// ListByLead returns all attempts for a lead, newest first.
func (r *Repository) ListByLead(ctx context.Context, leadID uuid.UUID) ([]Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT `+recordColumns+`
		FROM webhook_deliveries
		WHERE lead_id = $1
		ORDER BY attempted_at DESC`, leadID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// HasSuccess reports whether a successful delivery already exists for the
// pair. Checked before any attempt so a delivery never fires twice.
func (r *Repository) HasSuccess(ctx context.Context, leadID, partnerID uuid.UUID) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1 FROM webhook_deliveries
			WHERE lead_id = $1 AND partner_id = $2 AND status = 'success'
		)`, leadID, partnerID).Scan(&exists)
	return exists, err
}

// LatestAttempt returns the highest attempt number recorded for the pair,
// zero when none exist.
func (r *Repository) LatestAttempt(ctx context.Context, leadID, partnerID uuid.UUID) (int, error) {
	var attempt int
	err := r.pool.QueryRow(ctx, `
		SELECT COALESCE(MAX(attempt), 0)
		FROM webhook_deliveries
		WHERE lead_id = $1 AND partner_id = $2`, leadID, partnerID).Scan(&attempt)
	return attempt, err
}

// CreateAttempt inserts a new attempt row in the given initial status and
// returns its id.
func (r *Repository) CreateAttempt(ctx context.Context, leadID, partnerID uuid.UUID, endpoint string, payload []byte, attempt int, status Status) (uuid.UUID, error) {
	var id uuid.UUID
	err := r.pool.QueryRow(ctx, `
		INSERT INTO webhook_deliveries (lead_id, partner_id, endpoint, payload, attempt, status, attempted_at)
		VALUES ($1, $2, $3, $4, $5, $6, now())
		RETURNING id`,
		leadID, partnerID, endpoint, payload, attempt, status,
	).Scan(&id)
	return id, err
}

// MarkSuccess finalizes an attempt with the partner's response.
func (r *Repository) MarkSuccess(ctx context.Context, id uuid.UUID, code int, body string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'success', response_code = $2, response_body = $3, updated_at = now()
		WHERE id = $1`, id, code, body)
	return err
}

// MarkFailed finalizes an attempt as failed. Code and body are nil on
// transport failures that produced no response. Terminal failures are
// excluded from retry claiming.
func (r *Repository) MarkFailed(ctx context.Context, id uuid.UUID, code *int, body *string, errMsg string, terminal bool) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET status = 'failed', response_code = $2, response_body = $3,
		    error_message = $4, terminal = $5, updated_at = now()
		WHERE id = $1`, id, code, body, errMsg, terminal)
	return err
}

// SetArchiveKey records where the full request/response document was stored.
func (r *Repository) SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE webhook_deliveries
		SET archive_key = $2, updated_at = now()
		WHERE id = $1`, id, key)
	return err
}

// ClaimRetryable claims failed attempts whose exponential backoff has elapsed
// and which have no successful or newer attempt for the same pair. The claim
// happens inside the selecting statement, so overlapping sweeps never pick up
// the same row. A claim older than claimTimeout is treated as lost, since the
// enqueue after claiming can fail; re-running the task is safe because an
// executed retry leaves a newer attempt row that the NOT EXISTS clause sees.
func (r *Repository) ClaimRetryable(ctx context.Context, maxAttempts, limit int, claimTimeout time.Duration) ([]Record, error) {
	if limit < 1 {
		limit = 50
	}

	rows, err := r.pool.Query(ctx, `
		WITH cte AS (
			SELECT d.id FROM webhook_deliveries d
			WHERE d.status = 'failed'
			  AND NOT d.terminal
			  AND d.attempt < $1
			  AND (d.retry_claimed_at IS NULL OR d.retry_claimed_at <= now() - $3::interval)
			  AND d.attempted_at + make_interval(secs => power(2, d.attempt - 1)) <= now()
			  AND NOT EXISTS (
				SELECT 1 FROM webhook_deliveries x
				WHERE x.lead_id = d.lead_id
				  AND x.partner_id = d.partner_id
				  AND (x.status = 'success' OR x.attempt > d.attempt)
			  )
			ORDER BY d.attempted_at ASC
			LIMIT $2
			FOR UPDATE SKIP LOCKED
		)
		UPDATE webhook_deliveries w
		SET retry_claimed_at = now(), updated_at = now()
		FROM cte
		WHERE w.id = cte.id
		RETURNING `+prefixedRecordColumns("w"),
		maxAttempts, limit, claimTimeout.String(),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// ConsecutiveFailures counts the partner's failed attempts since its last
// success, looking at the most recent attempts across all leads.
func (r *Repository) ConsecutiveFailures(ctx context.Context, partnerID uuid.UUID, window int) (int, error) {
	if window < 1 {
		window = 10
	}

	rows, err := r.pool.Query(ctx, `
		SELECT status FROM webhook_deliveries
		WHERE partner_id = $1 AND status IN ('success', 'failed')
		ORDER BY attempted_at DESC
		LIMIT $2`, partnerID, window)
	if err != nil {
		return 0, err
	}
	defer rows.Close()

	count := 0
	for rows.Next() {
		var status Status
		if err := rows.Scan(&status); err != nil {
			return 0, err
		}
		if status != StatusFailed {
			break
		}
		count++
	}
	return count, rows.Err()
}

// CountFailedSince counts failed attempts in a trailing window, across all
// partners. Feeds the failure burst alert.
func (r *Repository) CountFailedSince(ctx context.Context, since time.Time) (int, error) {
	var count int
	err := r.pool.QueryRow(ctx, `
		SELECT count(*) FROM webhook_deliveries
		WHERE status = 'failed' AND attempted_at >= $1`, since).Scan(&count)
	return count, err
}

func prefixedRecordColumns(alias string) string {
	return alias + `.id, ` + alias + `.lead_id, ` + alias + `.partner_id, ` +
		alias + `.endpoint, ` + alias + `.payload, ` + alias + `.attempt, ` +
		alias + `.status, ` + alias + `.response_code, ` + alias + `.response_body, ` +
		alias + `.error_message, ` + alias + `.archive_key, ` + alias + `.terminal, ` +
		alias + `.attempted_at, ` + alias + `.retry_claimed_at, ` +
		alias + `.created_at, ` + alias + `.updated_at`
}
