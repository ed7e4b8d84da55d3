package delivery

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

// insertPair creates a partner and a distributed lead assigned to it.
func insertPair(t *testing.T, pool *pgxpool.Pool) (leadID, partnerID uuid.UUID) {
	t.Helper()
	ctx := context.Background()
	partnerID = uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO partners (id, name, country, niche, daily_limit, premium_ratio)
		VALUES ($1, $2, 'US', 'forex', 10, 0.5)`,
		partnerID, "partner-"+partnerID.String()[:8],
	); err != nil {
		t.Fatalf("insert partner: %v", err)
	}
	leadID = uuid.New()
	if _, err := pool.Exec(ctx, `
		INSERT INTO leads (id, country, niche, first_name, email, phone,
		                   status, assigned_partner_id, distributed_at)
		VALUES ($1, 'US', 'forex', 'Test', $2, '+12025550100', 'distributed', $3, now())`,
		leadID, leadID.String()[:8]+"@example.com", partnerID,
	); err != nil {
		t.Fatalf("insert lead: %v", err)
	}
	return leadID, partnerID
}

// insertFailedAttempt backdates timestamps relative to the database clock so
// backoff boundaries are immune to any skew against the test host.
func insertFailedAttempt(t *testing.T, pool *pgxpool.Pool, leadID, partnerID uuid.UUID, attempt int, attemptedAgo time.Duration, claimedAgo *time.Duration) uuid.UUID {
	t.Helper()
	id := uuid.New()
	var claimed *string
	if claimedAgo != nil {
		s := claimedAgo.String()
		claimed = &s
	}
	if _, err := pool.Exec(context.Background(), `
		INSERT INTO webhook_deliveries (id, lead_id, partner_id, endpoint, payload,
		                                attempt, status, attempted_at, retry_claimed_at)
		VALUES ($1, $2, $3, 'https://partner.example.com/hook', '{}', $4, 'failed',
		        now() - $5::interval, now() - $6::interval)`,
		id, leadID, partnerID, attempt, attemptedAgo.String(), claimed,
	); err != nil {
		t.Fatalf("insert attempt: %v", err)
	}
	return id
}

func claimedIDs(t *testing.T, records []Record) map[uuid.UUID]bool {
	t.Helper()
	out := make(map[uuid.UUID]bool, len(records))
	for _, rec := range records {
		out[rec.ID] = true
	}
	return out
}

// Backoff doubles per attempt, starting at one second, and is evaluated where
// retries are claimed.
func TestClaimRetryable_ExponentialBackoff(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)

	leadA, partnerA := insertPair(t, pool)
	leadB, partnerB := insertPair(t, pool)
	leadC, partnerC := insertPair(t, pool)
	leadD, partnerD := insertPair(t, pool)

	fresh := insertFailedAttempt(t, pool, leadA, partnerA, 1, 0, nil)
	dueFirst := insertFailedAttempt(t, pool, leadB, partnerB, 1, 2*time.Second, nil)
	early := insertFailedAttempt(t, pool, leadC, partnerC, 2, time.Second, nil)
	dueSecond := insertFailedAttempt(t, pool, leadD, partnerD, 2, 3*time.Second, nil)

	records, err := repo.ClaimRetryable(ctx, 3, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}

	got := claimedIDs(t, records)
	if len(got) != 2 || !got[dueFirst] || !got[dueSecond] {
		t.Fatalf("expected only the attempts past their backoff, got %v", records)
	}
	if got[fresh] || got[early] {
		t.Fatal("claimed an attempt still inside its backoff window")
	}
}

func TestClaimRetryable_SkipsExhaustedAndTerminal(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)

	leadA, partnerA := insertPair(t, pool)
	leadB, partnerB := insertPair(t, pool)

	insertFailedAttempt(t, pool, leadA, partnerA, 3, time.Minute, nil)
	terminal := insertFailedAttempt(t, pool, leadB, partnerB, 1, time.Minute, nil)
	if _, err := pool.Exec(ctx,
		`UPDATE webhook_deliveries SET terminal = TRUE WHERE id = $1`, terminal,
	); err != nil {
		t.Fatalf("mark terminal: %v", err)
	}

	records, err := repo.ClaimRetryable(ctx, 3, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no claims, got %v", records)
	}
}

// A claim whose task never executed leaves the stamp behind with no newer
// attempt. Once the stamp ages past the timeout the sweep claims the row
// again; a fresh stamp still shields the row.
func TestClaimRetryable_ReclaimsAfterTimeout(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)

	leadA, partnerA := insertPair(t, pool)
	leadB, partnerB := insertPair(t, pool)

	staleClaim := 20 * time.Minute
	freshClaim := time.Minute
	lost := insertFailedAttempt(t, pool, leadA, partnerA, 1, 30*time.Minute, &staleClaim)
	inFlight := insertFailedAttempt(t, pool, leadB, partnerB, 1, 30*time.Minute, &freshClaim)

	records, err := repo.ClaimRetryable(ctx, 3, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	got := claimedIDs(t, records)
	if len(got) != 1 || !got[lost] {
		t.Fatalf("expected only the timed-out claim, got %v", records)
	}
	if got[inFlight] {
		t.Fatal("claimed a row whose claim is still fresh")
	}

	// The claim just refreshed the stamp, so an immediate second sweep
	// leaves the row alone.
	records, err = repo.ClaimRetryable(ctx, 3, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("second claim: %v", err)
	}
	if len(records) != 0 {
		t.Fatalf("expected no claims right after claiming, got %v", records)
	}
}

func TestClaimRetryable_NewerAttemptSupersedes(t *testing.T) {
	pool := newTestPool(t)
	ctx := context.Background()
	repo := NewRepository(pool)

	leadID, partnerID := insertPair(t, pool)
	insertFailedAttempt(t, pool, leadID, partnerID, 1, time.Hour, nil)
	second := insertFailedAttempt(t, pool, leadID, partnerID, 2, time.Minute, nil)

	records, err := repo.ClaimRetryable(ctx, 3, 10, 10*time.Minute)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	got := claimedIDs(t, records)
	if len(got) != 1 || !got[second] {
		t.Fatalf("expected only the latest attempt for the pair, got %v", records)
	}
}
