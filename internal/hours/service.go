package hours

import (
	"context"
	"time"

	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const cacheKeyPrefix = "hours:open:"

// Service wraps the pure gate functions with a short-TTL cache to avoid
// recomputation storms during bursts. The cache is advisory only: a miss or a
// redis outage falls through to the computation, never to a wrong answer.
type Service struct {
	cache *redis.Client
	ttl   time.Duration
	now   func() time.Time
	log   *logger.Logger
}

// NewService creates the gate service. The redis client is injected and may
// be shared; pass nil to disable caching entirely.
func NewService(cache *redis.Client, ttl time.Duration, log *logger.Logger) *Service {
	if ttl <= 0 {
		ttl = 3 * time.Minute
	}
	return &Service{
		cache: cache,
		ttl:   ttl,
		now:   time.Now,
		log:   log,
	}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// IsOpen reports whether the partner currently accepts traffic, consulting
// the cache first.
func (s *Service) IsOpen(ctx context.Context, partner partners.Partner) (bool, error) {
	if s.cache != nil {
		cached, err := s.cache.Get(ctx, cacheKeyPrefix+partner.ID.String()).Result()
		if err == nil {
			return cached == "1", nil
		}
		if err != redis.Nil && s.log != nil {
			s.log.Warn("hours cache read failed", "partner_id", partner.ID, "error", err)
		}
	}

	open, err := IsOpen(partner.Hours, s.now())
	if err != nil {
		return false, err
	}

	if s.cache != nil {
		value := "0"
		if open {
			value = "1"
		}
		if err := s.cache.Set(ctx, cacheKeyPrefix+partner.ID.String(), value, s.ttl).Err(); err != nil && s.log != nil {
			s.log.Warn("hours cache write failed", "partner_id", partner.ID, "error", err)
		}
	}

	return open, nil
}

// NextOpen returns the partner's next opening instant, or nil when the
// window never opens within the lookahead bound.
func (s *Service) NextOpen(partner partners.Partner) (*time.Time, error) {
	return NextOpen(partner.Hours, s.now())
}

// Invalidate drops the cached answer for a partner. Called whenever a
// partner's hours are edited.
func (s *Service) Invalidate(ctx context.Context, partnerID uuid.UUID) error {
	if s.cache == nil {
		return nil
	}
	return s.cache.Del(ctx, cacheKeyPrefix+partnerID.String()).Err()
}
