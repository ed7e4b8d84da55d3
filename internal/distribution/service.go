package distribution

import (
	"context"
	"errors"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// DeliveryEnqueuer hands a committed assignment to the delivery work queue.
// Satisfied by scheduler.Client.
type DeliveryEnqueuer interface {
	EnqueueDelivery(ctx context.Context, leadID, partnerID uuid.UUID) error
}

// HoursGate decides whether a partner is currently accepting traffic.
// Satisfied by hours.Service.
type HoursGate interface {
	IsOpen(ctx context.Context, partner partners.Partner) (bool, error)
	NextOpen(partner partners.Partner) (*time.Time, error)
}

// PartnerReader loads partner configuration. Satisfied by partners.Repository.
type PartnerReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (partners.Partner, error)
}

// LeadReader loads leads for event enrichment. Satisfied by leads.Repository.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (leads.Lead, error)
}

// Service is the distribution coordinator.
type Service struct {
	repo        *Repository
	partnerRepo PartnerReader
	leadRepo    LeadReader
	gate        HoursGate
	enqueuer    DeliveryEnqueuer
	bus         events.Bus
	log         *logger.Logger
	now         func() time.Time
}

// NewService creates the coordinator.
func NewService(
	repo *Repository,
	partnerRepo PartnerReader,
	leadRepo LeadReader,
	gate HoursGate,
	enqueuer DeliveryEnqueuer,
	bus events.Bus,
	log *logger.Logger,
) *Service {
	return &Service{
		repo:        repo,
		partnerRepo: partnerRepo,
		leadRepo:    leadRepo,
		gate:        gate,
		enqueuer:    enqueuer,
		bus:         bus,
		log:         log,
		now:         time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Assign runs the assignment transaction for a pending lead and, on success,
// hands delivery to the work queue after commit, never inside the
// transaction. No-eligible-partner is a normal outcome, not an error to the
// caller; the retry sweep picks the lead up again.
func (s *Service) Assign(ctx context.Context, leadID uuid.UUID) error {
	now := s.now()

	partnerID, err := s.repo.Assign(ctx, leadID, now)
	switch {
	case errors.Is(err, ErrLeadNotPending):
		// Duplicate trigger; the first assignment already handled the lead.
		s.log.Debug("assignment skipped, lead not pending", "lead_id", leadID)
		return nil

	case errors.Is(err, ErrNoEligiblePartner):
		s.publishUnmatched(ctx, leadID)
		return nil

	case err != nil:
		// The transaction rolled back. Mark the lead failed on a fresh
		// connection so a transient error cannot strand it in pending; the
		// stale-pending sweep covers a crash between these two statements.
		if markErr := s.repo.MarkFailed(ctx, leadID, leads.FailureAssignmentError); markErr != nil {
			s.log.DatabaseError("distribution.mark_failed", markErr)
		}
		return err
	}

	lead, err := s.leadRepo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}

	deferred, err := s.dispatchOrSchedule(ctx, lead, partnerID)
	if err != nil {
		return err
	}

	s.log.LeadAssigned(leadID.String(), partnerID.String(), string(lead.Type))
	s.bus.Publish(ctx, events.LeadAssigned{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		PartnerID: partnerID,
		LeadType:  string(lead.Type),
		Deferred:  deferred,
	})
	return nil
}

// dispatchOrSchedule enqueues delivery immediately when the partner is open,
// or queues a scheduled delivery for its next opening. Reports whether the
// delivery was deferred.
func (s *Service) dispatchOrSchedule(ctx context.Context, lead leads.Lead, partnerID uuid.UUID) (bool, error) {
	partner, err := s.partnerRepo.GetByID(ctx, partnerID)
	if err != nil {
		return false, err
	}

	open, err := s.gate.IsOpen(ctx, partner)
	if err != nil {
		s.log.Warn("business hours check failed, dispatching immediately",
			"partner_id", partnerID, "error", err)
		open = true
	}

	if open {
		return false, s.enqueuer.EnqueueDelivery(ctx, lead.ID, partnerID)
	}

	nextOpen, err := s.gate.NextOpen(partner)
	if err != nil || nextOpen == nil {
		// A window that never opens is a partner misconfiguration; deliver
		// rather than hold the lead indefinitely.
		return false, s.enqueuer.EnqueueDelivery(ctx, lead.ID, partnerID)
	}

	if err := s.repo.ScheduleDelivery(ctx, lead.ID, partnerID, *nextOpen); err != nil {
		return false, err
	}

	s.log.Info("delivery deferred to business hours",
		"lead_id", lead.ID, "partner_id", partnerID, "scheduled_time", *nextOpen)
	return true, nil
}

// RecordConversion applies a conversion postback to the stats ledger,
// idempotently per external transaction id.
func (s *Service) RecordConversion(ctx context.Context, leadID uuid.UUID, value float64, externalTxnID string) (duplicate bool, err error) {
	duplicate, err = s.repo.RecordConversion(ctx, leadID, value, externalTxnID, s.now())
	if err != nil {
		return false, err
	}
	if duplicate {
		s.log.Info("duplicate conversion postback ignored",
			"lead_id", leadID, "external_txn_id", externalTxnID)
	}
	return duplicate, nil
}

func (s *Service) publishUnmatched(ctx context.Context, leadID uuid.UUID) {
	lead, err := s.leadRepo.GetByID(ctx, leadID)
	if err != nil {
		s.log.DatabaseError("distribution.load_unmatched_lead", err)
		return
	}

	s.log.LeadUnmatched(leadID.String(), lead.Country, string(lead.Niche))
	s.bus.Publish(ctx, events.LeadUnmatched{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		Country:   lead.Country,
		Niche:     string(lead.Niche),
	})
}
