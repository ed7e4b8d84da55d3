package partners

import (
	"context"
	"encoding/json"
	"errors"

	"leadflow_backend/platform/apperr"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

const partnerNotFoundMsg = "partner not found"

// Repository provides read access to partner rows.
type Repository struct {
	pool *pgxpool.Pool
}

// New creates a new partners repository.
func New(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const partnerColumns = `
	id, name, country, niche, status, daily_limit, premium_ratio,
	delivery_config, timezone, hours_start, hours_end, weekends_enabled,
	created_at, updated_at`

// GetByID returns a single partner.
func (r *Repository) GetByID(ctx context.Context, id uuid.UUID) (Partner, error) {
	row := r.pool.QueryRow(ctx, `SELECT`+partnerColumns+` FROM partners WHERE id = $1`, id)
	partner, err := scanPartner(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return Partner{}, apperr.NotFound(partnerNotFoundMsg)
	}
	return partner, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPartner(row rowScanner) (Partner, error) {
	var p Partner
	var status string
	var deliveryRaw []byte

	err := row.Scan(
		&p.ID, &p.Name, &p.Country, &p.Niche, &status, &p.DailyLimit, &p.PremiumRatio,
		&deliveryRaw, &p.Hours.Timezone, &p.Hours.StartLocal, &p.Hours.EndLocal,
		&p.Hours.WeekendsEnabled, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return Partner{}, err
	}

	p.Status = Status(status)
	if len(deliveryRaw) > 0 {
		if err := json.Unmarshal(deliveryRaw, &p.Delivery); err != nil {
			return Partner{}, err
		}
	}
	return p, nil
}
