package distribution

import (
	"context"
	"errors"
	"fmt"
	"time"

	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

// Stat is one row of the per-partner per-day ledger.
type Stat struct {
	PartnerID     uuid.UUID `json:"partnerId"`
	StatDate      time.Time `json:"statDate"`
	LeadsReceived int       `json:"leadsReceived"`
	PremiumLeads  int       `json:"premiumLeads"`
	RawLeads      int       `json:"rawLeads"`
	Conversions   int       `json:"conversions"`
	Revenue       float64   `json:"revenue"`
}

// GetStat returns the ledger row for a partner and date. A missing row is a
// zero-valued row, not an error.
func (r *Repository) GetStat(ctx context.Context, partnerID uuid.UUID, date time.Time) (Stat, error) {
	stat := Stat{PartnerID: partnerID, StatDate: statDate(date)}
	err := r.pool.QueryRow(ctx, `
		SELECT leads_received, premium_leads, raw_leads, conversions, revenue
		FROM distribution_stats
		WHERE partner_id = $1 AND stat_date = $2`,
		partnerID, statDate(date),
	).Scan(&stat.LeadsReceived, &stat.PremiumLeads, &stat.RawLeads, &stat.Conversions, &stat.Revenue)
	if errors.Is(err, pgx.ErrNoRows) {
		return stat, nil
	}
	return stat, err
}

// RecordConversion increments conversions and revenue for the lead's partner,
// idempotently per external transaction id. Returns true when the postback
// was a duplicate (a successful no-op).
func (r *Repository) RecordConversion(ctx context.Context, leadID uuid.UUID, value float64, externalTxnID string, now time.Time) (bool, error) {
	tx, err := r.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return false, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, `
		INSERT INTO conversion_postbacks (external_txn_id, lead_id, value)
		VALUES ($1, $2, $3)
		ON CONFLICT (external_txn_id) DO NOTHING`,
		externalTxnID, leadID, value,
	)
	if err != nil {
		return false, fmt.Errorf("record postback: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Duplicate external transaction id: nothing else to do.
		return true, tx.Commit(ctx)
	}

	var status string
	var partnerID *uuid.UUID
	err = tx.QueryRow(ctx,
		`SELECT status, assigned_partner_id FROM leads WHERE id = $1 FOR UPDATE`,
		leadID,
	).Scan(&status, &partnerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return false, apperr.NotFound("lead not found")
	}
	if err != nil {
		return false, fmt.Errorf("lock lead: %w", err)
	}
	if partnerID == nil || status == string(leads.StatusPending) || status == string(leads.StatusFailed) {
		return false, apperr.Unprocessable("lead has not been distributed")
	}

	if status != string(leads.StatusConverted) {
		if _, err := tx.Exec(ctx,
			`UPDATE leads SET status = 'converted', converted_at = $2, updated_at = now() WHERE id = $1`,
			leadID, now,
		); err != nil {
			return false, fmt.Errorf("mark converted: %w", err)
		}
	}

	if _, err := tx.Exec(ctx, `
		INSERT INTO distribution_stats (partner_id, stat_date, conversions, revenue)
		VALUES ($1, $2, 1, $3)
		ON CONFLICT (partner_id, stat_date) DO UPDATE SET
			conversions = distribution_stats.conversions + 1,
			revenue     = distribution_stats.revenue + EXCLUDED.revenue,
			updated_at  = now()`,
		*partnerID, statDate(now), value,
	); err != nil {
		return false, fmt.Errorf("update stats: %w", err)
	}

	return false, tx.Commit(ctx)
}
