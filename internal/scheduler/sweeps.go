package scheduler

import (
	"context"
	"time"

	"leadflow_backend/internal/delivery"
	"leadflow_backend/internal/distribution"
	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/sync/errgroup"
)

const (
	sweepBatchSize = 100
	enqueueFanout  = 5

	// retryClaimTimeout bounds how long a claimed retry may sit without a
	// newer attempt appearing before the sweep treats the claim as lost.
	retryClaimTimeout = 10 * time.Minute
)

// Sweeper re-feeds the work queue from the database on a fixed interval. It
// covers everything the happy path can drop: failed deliveries whose backoff
// elapsed, unmatched leads still inside their retry window, deliveries
// deferred to business hours, and leads stranded in pending by a crash.
type Sweeper struct {
	client         *Client
	leadRepo       *leads.Repository
	distRepo       *distribution.Repository
	deliveryRepo   *delivery.Repository
	bus            events.Bus
	log            *logger.Logger
	interval       time.Duration
	retryWindow    time.Duration
	staleAfter     time.Duration
	burstThreshold int
	maxAttempts    int
}

// NewSweeper creates the sweeper.
func NewSweeper(
	pool *pgxpool.Pool,
	client *Client,
	bus events.Bus,
	log *logger.Logger,
	sweepCfg config.SweepConfig,
	deliveryCfg config.DeliveryConfig,
) *Sweeper {
	return &Sweeper{
		client:         client,
		leadRepo:       leads.NewRepository(pool),
		distRepo:       distribution.NewRepository(pool),
		deliveryRepo:   delivery.NewRepository(pool),
		bus:            bus,
		log:            log,
		interval:       sweepCfg.GetSweepInterval(),
		retryWindow:    sweepCfg.GetUnmatchedRetryWindow(),
		staleAfter:     sweepCfg.GetStalePendingAfter(),
		burstThreshold: sweepCfg.GetFailureBurstThreshold(),
		maxAttempts:    deliveryCfg.GetDeliveryMaxAttempts(),
	}
}

// Run blocks until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		s.promoteScheduledDeliveries(ctx)
		s.retryFailedDeliveries(ctx)
		s.retryUnmatchedLeads(ctx)
		s.reconcileStalePending(ctx)
		s.reconcileUndispatched(ctx)
	}
}

// promoteScheduledDeliveries enqueues deliveries whose business-hours window
// has opened.
func (s *Sweeper) promoteScheduledDeliveries(ctx context.Context) {
	due, err := s.distRepo.ClaimDueScheduled(ctx, time.Now().UTC(), sweepBatchSize)
	if err != nil {
		s.log.Warn("scheduled delivery claim failed", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enqueueFanout)
	for _, sd := range due {
		g.Go(func() error {
			if err := s.client.EnqueueDelivery(gctx, sd.LeadID, sd.PartnerID); err != nil {
				s.log.Warn("scheduled delivery enqueue failed",
					"lead_id", sd.LeadID, "partner_id", sd.PartnerID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(due) > 0 {
		s.log.Info("scheduled deliveries promoted", "count", len(due))
	}
}

// retryFailedDeliveries re-enqueues failed attempts whose backoff elapsed and
// raises a failure burst alert when the trailing window runs hot.
func (s *Sweeper) retryFailedDeliveries(ctx context.Context) {
	records, err := s.deliveryRepo.ClaimRetryable(ctx, s.maxAttempts, sweepBatchSize, retryClaimTimeout)
	if err != nil {
		s.log.Warn("delivery retry claim failed", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enqueueFanout)
	for _, rec := range records {
		g.Go(func() error {
			if err := s.client.EnqueueDelivery(gctx, rec.LeadID, rec.PartnerID); err != nil {
				s.log.Warn("delivery retry enqueue failed",
					"lead_id", rec.LeadID, "partner_id", rec.PartnerID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(records) > 0 {
		s.log.Info("failed deliveries re-enqueued", "count", len(records))
	}

	failures, err := s.deliveryRepo.CountFailedSince(ctx, time.Now().UTC().Add(-s.interval))
	if err != nil {
		s.log.DatabaseError("sweep.count_failed", err)
		return
	}
	if failures >= s.burstThreshold {
		s.bus.Publish(ctx, events.FailureBurst{
			BaseEvent:    events.NewBaseEvent(),
			FailureCount: failures,
			Threshold:    s.burstThreshold,
		})
	}
}

// retryUnmatchedLeads flips unmatched leads inside the retry window back to
// pending and re-enqueues them; leads past the window are marked stranded
// and reported once.
func (s *Sweeper) retryUnmatchedLeads(ctx context.Context) {
	ids, err := s.leadRepo.ClaimUnmatchedForRetry(ctx, s.retryWindow, sweepBatchSize)
	if err != nil {
		s.log.Warn("unmatched lead claim failed", "error", err)
		return
	}

	for _, id := range ids {
		if err := s.client.EnqueueDistribution(ctx, id); err != nil {
			s.log.Warn("unmatched lead enqueue failed", "lead_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		s.log.Info("unmatched leads re-enqueued", "count", len(ids))
	}

	stranded, err := s.leadRepo.MarkStranded(ctx, s.retryWindow, sweepBatchSize)
	if err != nil {
		s.log.Warn("stranded lead sweep failed", "error", err)
		return
	}
	for _, lead := range stranded {
		s.bus.Publish(ctx, events.LeadStranded{
			BaseEvent: events.NewBaseEvent(),
			LeadID:    lead.ID,
			Country:   lead.Country,
			Niche:     string(lead.Niche),
		})
	}
}

// reconcileStalePending re-enqueues leads stuck in pending, closing the
// crash window between intake and assignment.
func (s *Sweeper) reconcileStalePending(ctx context.Context) {
	ids, err := s.leadRepo.ListStalePending(ctx, s.staleAfter, sweepBatchSize)
	if err != nil {
		s.log.Warn("stale pending sweep failed", "error", err)
		return
	}

	for _, id := range ids {
		if err := s.client.EnqueueDistribution(ctx, id); err != nil {
			s.log.Warn("stale pending enqueue failed", "lead_id", id, "error", err)
		}
	}
	if len(ids) > 0 {
		s.log.Info("stale pending leads re-enqueued", "count", len(ids))
	}
}

// reconcileUndispatched re-enqueues committed assignments whose delivery
// handoff was lost between the commit and the queue: no attempt recorded, no
// schedule waiting. Re-enqueueing an in-flight pair is harmless since the
// dispatcher skips pairs that already succeeded.
func (s *Sweeper) reconcileUndispatched(ctx context.Context) {
	lost, err := s.leadRepo.ListUndispatched(ctx, s.staleAfter, sweepBatchSize)
	if err != nil {
		s.log.Warn("undispatched sweep failed", "error", err)
		return
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(enqueueFanout)
	for _, u := range lost {
		g.Go(func() error {
			if err := s.client.EnqueueDelivery(gctx, u.LeadID, u.PartnerID); err != nil {
				s.log.Warn("undispatched enqueue failed",
					"lead_id", u.LeadID, "partner_id", u.PartnerID, "error", err)
			}
			return nil
		})
	}
	_ = g.Wait()
	if len(lost) > 0 {
		s.log.Info("undispatched assignments re-enqueued", "count", len(lost))
	}
}
