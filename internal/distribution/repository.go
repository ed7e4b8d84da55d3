package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/leads"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	// ErrNoEligiblePartner is the normal, retryable no-candidates outcome.
	ErrNoEligiblePartner = errors.New("no eligible partner")
	// ErrLeadNotPending signals a duplicate trigger; the assignment is a no-op.
	ErrLeadNotPending = errors.New("lead is not pending")
)

// Repository runs the assignment transaction and owns the stats ledger.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository creates a new distribution repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// Assign atomically assigns a pending lead to a partner. It locks the lead
// row and the candidate partner rows, applies the ratio rule, updates the
// lead and the stats ledger inside one transaction, and commits. Delivery is
// the caller's concern, after commit.
func (r *Repository) Assign(ctx context.Context, leadID uuid.UUID, now time.Time) (uuid.UUID, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return uuid.Nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	var status, country, niche string
	var leadType leads.LeadType
	err = tx.QueryRow(ctx,
		`SELECT status, country, niche, lead_type FROM leads WHERE id = $1 FOR UPDATE`,
		leadID,
	).Scan(&status, &country, &niche, &leadType)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lock lead: %w", err)
	}
	if status != string(leads.StatusPending) {
		return uuid.Nil, ErrLeadNotPending
	}

	candidates, err := lockCandidates(ctx, tx, country, niche, now)
	if err != nil {
		return uuid.Nil, fmt.Errorf("lock candidates: %w", err)
	}

	selected, ok := SelectCandidate(candidates, leadType)
	if !ok {
		// Normal outcome: mark failed and commit so the retry sweep sees it.
		if _, err := tx.Exec(ctx,
			`UPDATE leads SET status = 'failed', failure_reason = $2, updated_at = now() WHERE id = $1`,
			leadID, leads.FailureNoEligiblePartner,
		); err != nil {
			return uuid.Nil, fmt.Errorf("mark unmatched: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return uuid.Nil, err
		}
		return uuid.Nil, ErrNoEligiblePartner
	}

	if _, err := tx.Exec(ctx, `
		UPDATE leads
		SET assigned_partner_id = $2, status = 'distributed', distributed_at = $3, updated_at = now()
		WHERE id = $1`,
		leadID, selected.PartnerID, now,
	); err != nil {
		return uuid.Nil, fmt.Errorf("assign lead: %w", err)
	}

	if err := upsertReceived(ctx, tx, selected.PartnerID, statDate(now), leadType); err != nil {
		return uuid.Nil, fmt.Errorf("update stats: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return uuid.Nil, err
	}
	return selected.PartnerID, nil
}

// lockCandidates locks the matching partner rows, then reads today's counters
// in a second statement. The two-step shape matters: under read committed the
// first statement may block on a concurrent assignment, and its joined counter
// values would date from before that assignment committed. Re-reading after
// the locks are held sees the committed counters, so the cap filter cannot
// admit a partner another transaction just filled.
func lockCandidates(ctx context.Context, tx pgx.Tx, country, niche string, now time.Time) ([]Candidate, error) {
	if _, err := tx.Exec(ctx, `
		SELECT id FROM partners
		WHERE status = 'active' AND country = $1 AND niche = $2
		ORDER BY id
		FOR UPDATE`,
		country, niche,
	); err != nil {
		return nil, err
	}

	rows, err := tx.Query(ctx, `
		SELECT p.id, p.daily_limit, p.premium_ratio,
		       COALESCE(s.leads_received, 0),
		       COALESCE(s.premium_leads, 0),
		       COALESCE(s.raw_leads, 0)
		FROM partners p
		LEFT JOIN distribution_stats s
		  ON s.partner_id = p.id AND s.stat_date = $3
		WHERE p.status = 'active'
		  AND p.country = $1
		  AND p.niche = $2
		  AND COALESCE(s.leads_received, 0) < p.daily_limit
		ORDER BY COALESCE(s.leads_received, 0) ASC, random()`,
		country, niche, statDate(now),
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var candidates []Candidate
	for rows.Next() {
		var c Candidate
		if err := rows.Scan(&c.PartnerID, &c.DailyLimit, &c.PremiumRatio,
			&c.Received, &c.Premium, &c.Raw); err != nil {
			return nil, err
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

func upsertReceived(ctx context.Context, tx pgx.Tx, partnerID uuid.UUID, date time.Time, leadType leads.LeadType) error {
	premium := 0
	raw := 0
	if leadType == leads.TypePremium {
		premium = 1
	} else {
		raw = 1
	}

	_, err := tx.Exec(ctx, `
		INSERT INTO distribution_stats (partner_id, stat_date, leads_received, premium_leads, raw_leads)
		VALUES ($1, $2, 1, $3, $4)
		ON CONFLICT (partner_id, stat_date) DO UPDATE SET
			leads_received = distribution_stats.leads_received + 1,
			premium_leads  = distribution_stats.premium_leads + EXCLUDED.premium_leads,
			raw_leads      = distribution_stats.raw_leads + EXCLUDED.raw_leads,
			updated_at     = now()`,
		partnerID, date, premium, raw,
	)
	return err
}

// MarkFailed records a terminal failure outside any open transaction. Used
// as the recovery statement after an assignment rollback.
func (r *Repository) MarkFailed(ctx context.Context, leadID uuid.UUID, reason string) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE leads
		SET status = 'failed', failure_reason = $2, updated_at = now()
		WHERE id = $1 AND status = 'pending'`,
		leadID, reason,
	)
	return err
}

func statDate(now time.Time) time.Time {
	return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
}
