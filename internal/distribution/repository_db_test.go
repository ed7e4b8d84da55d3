package distribution

import (
	"context"
	"errors"
	"os"
	"sync"
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

func insertTestPartner(t *testing.T, pool *pgxpool.Pool, dailyLimit int, premiumRatio float64) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO partners (id, name, country, niche, daily_limit, premium_ratio)
		VALUES ($1, $2, 'US', 'forex', $3, $4)`,
		id, "partner-"+id.String()[:8], dailyLimit, premiumRatio,
	)
	if err != nil {
		t.Fatalf("insert partner: %v", err)
	}
	return id
}

func insertPendingLead(t *testing.T, pool *pgxpool.Pool) uuid.UUID {
	t.Helper()
	id := uuid.New()
	_, err := pool.Exec(context.Background(), `
		INSERT INTO leads (id, country, niche, first_name, email, phone)
		VALUES ($1, 'US', 'forex', 'Test', $2, '+12025550100')`,
		id, id.String()[:8]+"@example.com",
	)
	if err != nil {
		t.Fatalf("insert lead: %v", err)
	}
	return id
}

// Concurrent assignments against a partner with a single slot must award the
// slot exactly once. The rest of the leads fail with no eligible partner, and
// the day's counter never exceeds the limit.
func TestAssign_ConcurrentRespectsDailyCap(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	partnerID := insertTestPartner(t, pool, 1, 0.5)

	const contenders = 4
	leadIDs := make([]uuid.UUID, contenders)
	for i := range leadIDs {
		leadIDs[i] = insertPendingLead(t, pool)
	}

	now := time.Now().UTC()
	results := make([]error, contenders)
	var start, done sync.WaitGroup
	start.Add(1)
	done.Add(contenders)
	for i := range leadIDs {
		go func() {
			defer done.Done()
			start.Wait()
			_, results[i] = repo.Assign(ctx, leadIDs[i], now)
		}()
	}
	start.Done()
	done.Wait()

	var assigned, unmatched int
	for i, err := range results {
		switch {
		case err == nil:
			assigned++
		case errors.Is(err, ErrNoEligiblePartner):
			unmatched++
		default:
			t.Fatalf("lead %d: unexpected error: %v", i, err)
		}
	}
	if assigned != 1 {
		t.Fatalf("expected exactly one assignment for a single slot, got %d", assigned)
	}
	if unmatched != contenders-1 {
		t.Fatalf("expected %d unmatched leads, got %d", contenders-1, unmatched)
	}

	stat, err := repo.GetStat(ctx, partnerID, now)
	if err != nil {
		t.Fatalf("get stat: %v", err)
	}
	if stat.LeadsReceived != 1 {
		t.Fatalf("expected leads_received = 1, got %d", stat.LeadsReceived)
	}

	var distributed, failed int
	err = pool.QueryRow(ctx, `
		SELECT count(*) FILTER (WHERE status = 'distributed'),
		       count(*) FILTER (WHERE status = 'failed' AND failure_reason = 'no_eligible_partner')
		FROM leads`,
	).Scan(&distributed, &failed)
	if err != nil {
		t.Fatalf("count leads: %v", err)
	}
	if distributed != 1 || failed != contenders-1 {
		t.Fatalf("expected 1 distributed and %d failed, got %d and %d", contenders-1, distributed, failed)
	}
}

func TestAssign_SecondLeadGoesToOtherPartner(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)
	first := insertTestPartner(t, pool, 10, 0.5)
	second := insertTestPartner(t, pool, 10, 0.5)

	now := time.Now().UTC()
	a, err := repo.Assign(ctx, insertPendingLead(t, pool), now)
	if err != nil {
		t.Fatalf("first assign: %v", err)
	}
	b, err := repo.Assign(ctx, insertPendingLead(t, pool), now)
	if err != nil {
		t.Fatalf("second assign: %v", err)
	}

	// Least-loaded ordering sends the second lead to the idle partner.
	if a == b {
		t.Fatalf("expected the two leads to land on different partners, both hit %s", a)
	}
	for _, id := range []uuid.UUID{a, b} {
		if id != first && id != second {
			t.Fatalf("assignment hit unknown partner %s", id)
		}
	}
}
