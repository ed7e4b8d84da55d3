package leads

import (
	"context"
	"os"
	"testing"
	"time"

	"leadflow_backend/platform/db"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
)

type testDBConfig struct{ url string }

func (c testDBConfig) GetDatabaseURL() string { return c.url }

func newTestPool(t *testing.T) *pgxpool.Pool {
	t.Helper()
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	if err := db.RunMigrations(ctx, testDBConfig{url}, "../../migrations"); err != nil {
		t.Fatalf("migrations: %v", err)
	}
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	t.Cleanup(pool.Close)

	if _, err := pool.Exec(ctx, `
		TRUNCATE partners, leads, distribution_stats, scheduled_deliveries,
		         webhook_deliveries, conversion_postbacks CASCADE`); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	return pool
}

func insertTestPartner(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO partners (id, name, country, niche, daily_limit, premium_ratio)
		VALUES ($1, $2, 'US', 'forex', 10, 0.5)`,
		id, "partner-"+id.String()[:8],
	)
	if err != nil {
		t.Fatalf("insert partner: %v", err)
	}
	return id
}

func insertDistributedLead(t *testing.T, pool *pgxpool.Pool, partnerID uuid.UUID, distributedAt time.Time) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO leads (id, country, niche, first_name, email, phone,
		                   status, assigned_partner_id, distributed_at)
		VALUES ($1, 'US', 'forex', 'Test', $2, '+12025550100', 'distributed', $3, $4)`,
		id, id.String()[:8]+"@example.com", partnerID, distributedAt,
	)
	if err != nil {
		t.Fatalf("insert lead: %v", err)
	}
	return id
}

func TestListUndispatched_FindsLostHandoffs(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	partnerID := insertTestPartner(t, pool)
	old := time.Now().UTC().Add(-time.Hour)

	// Committed assignment with no trace downstream: lost.
	lost := insertDistributedLead(t, pool, partnerID, old)

	// Waiting on its business-hours window: not lost.
	scheduled := insertDistributedLead(t, pool, partnerID, old)
	if _, err := pool.Exec(ctx, `
		INSERT INTO scheduled_deliveries (lead_id, partner_id, scheduled_time)
		VALUES ($1, $2, now() + interval '2 hours')`,
		scheduled, partnerID,
	); err != nil {
		t.Fatalf("insert scheduled: %v", err)
	}

	// Attempt recorded, retry sweep owns it from here: not lost.
	attempted := insertDistributedLead(t, pool, partnerID, old)
	if _, err := pool.Exec(ctx, `
		INSERT INTO webhook_deliveries (lead_id, partner_id, endpoint, payload, attempt, status)
		VALUES ($1, $2, 'https://partner.example.com/hook', '{}', 1, 'failed')`,
		attempted, partnerID,
	); err != nil {
		t.Fatalf("insert attempt: %v", err)
	}

	// Promoted out of its schedule but the enqueue never landed: lost.
	promoted := insertDistributedLead(t, pool, partnerID, old)
	if _, err := pool.Exec(ctx, `
		INSERT INTO scheduled_deliveries (lead_id, partner_id, scheduled_time, dispatched_at)
		VALUES ($1, $2, now() - interval '30 minutes', now() - interval '20 minutes')`,
		promoted, partnerID,
	); err != nil {
		t.Fatalf("insert dispatched schedule: %v", err)
	}

	// Too fresh to call lost yet.
	insertDistributedLead(t, pool, partnerID, time.Now().UTC())

	got, err := repo.ListUndispatched(ctx, 5*time.Minute, 10)
	if err != nil {
		t.Fatalf("list undispatched: %v", err)
	}

	found := make(map[uuid.UUID]bool, len(got))
	for _, u := range got {
		if u.PartnerID != partnerID {
			t.Fatalf("unexpected partner %s", u.PartnerID)
		}
		found[u.LeadID] = true
	}
	if len(got) != 2 || !found[lost] || !found[promoted] {
		t.Fatalf("expected exactly the two lost handoffs, got %v", got)
	}
}
