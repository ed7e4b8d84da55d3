package hours

import (
	"context"
	"testing"
	"time"

	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/logger"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func newCachedService(t *testing.T) (*Service, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewService(client, time.Minute, logger.New("test")), mr
}

func testPartner() partners.Partner {
	return partners.Partner{
		ID: uuid.New(),
		Hours: partners.BusinessHours{
			Timezone:   "UTC",
			StartLocal: "09:00",
			EndLocal:   "18:00",
		},
	}
}

func TestServiceIsOpen_CachesAnswer(t *testing.T) {
	svc, mr := newCachedService(t)
	svc.WithClock(func() time.Time {
		return time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	})
	partner := testPartner()

	open, err := svc.IsOpen(context.Background(), partner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !open {
		t.Fatal("expected open at noon")
	}

	cached, err := mr.Get(cacheKeyPrefix + partner.ID.String())
	if err != nil {
		t.Fatalf("expected a cached value: %v", err)
	}
	if cached != "1" {
		t.Fatalf("expected cached value 1, got %q", cached)
	}
}

func TestServiceIsOpen_ServesFromCache(t *testing.T) {
	svc, mr := newCachedService(t)
	// Clock says closed, cache says open. The cache wins until the TTL expires.
	svc.WithClock(func() time.Time {
		return time.Date(2026, 1, 7, 3, 0, 0, 0, time.UTC)
	})
	partner := testPartner()
	if err := mr.Set(cacheKeyPrefix+partner.ID.String(), "1"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	open, err := svc.IsOpen(context.Background(), partner)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !open {
		t.Fatal("expected the cached answer")
	}
}

func TestServiceIsOpen_FallsThroughOnRedisOutage(t *testing.T) {
	svc, mr := newCachedService(t)
	svc.WithClock(func() time.Time {
		return time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	})
	mr.Close()

	open, err := svc.IsOpen(context.Background(), testPartner())
	if err != nil {
		t.Fatalf("expected computation despite cache outage, got error: %v", err)
	}
	if !open {
		t.Fatal("expected open at noon")
	}
}

func TestServiceInvalidate(t *testing.T) {
	svc, mr := newCachedService(t)
	partner := testPartner()
	if err := mr.Set(cacheKeyPrefix+partner.ID.String(), "0"); err != nil {
		t.Fatalf("seed cache: %v", err)
	}

	if err := svc.Invalidate(context.Background(), partner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if mr.Exists(cacheKeyPrefix + partner.ID.String()) {
		t.Fatal("expected cache entry to be dropped")
	}
}

func TestServiceIsOpen_NilCache(t *testing.T) {
	svc := NewService(nil, time.Minute, logger.New("test"))
	svc.WithClock(func() time.Time {
		return time.Date(2026, 1, 7, 12, 0, 0, 0, time.UTC)
	})

	open, err := svc.IsOpen(context.Background(), testPartner())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !open {
		t.Fatal("expected open at noon without a cache")
	}
}
