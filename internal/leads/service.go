package leads

import (
	"context"
	"strings"

	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/apperr"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/phone"

	"github.com/google/uuid"
)

// DistributionEnqueuer hands accepted leads to the work queue. Satisfied by
// scheduler.Client.
type DistributionEnqueuer interface {
	EnqueueDistribution(ctx context.Context, leadID uuid.UUID) error
}

// Service handles lead intake: normalization, persistence, and the
// asynchronous handoff to the distribution coordinator.
type Service struct {
	repo     *Repository
	enqueuer DistributionEnqueuer
	log      *logger.Logger
}

// NewService creates a new leads service.
func NewService(repo *Repository, enqueuer DistributionEnqueuer, log *logger.Logger) *Service {
	return &Service{repo: repo, enqueuer: enqueuer, log: log}
}

// Intake normalizes and persists an inbound lead, then enqueues distribution.
// The enqueue is best-effort: a queue outage leaves the lead pending, where
// the stale-pending reconcile sweep picks it up.
func (s *Service) Intake(ctx context.Context, req transport.IntakeLeadRequest, source IntakeSource) (Lead, error) {
	lead, err := s.normalize(req, source)
	if err != nil {
		return Lead{}, err
	}

	created, err := s.repo.Create(ctx, lead)
	if err != nil {
		s.log.DatabaseError("leads.create", err)
		return Lead{}, apperr.Wrap(apperr.KindInternal, "failed to store lead", err)
	}

	if err := s.enqueuer.EnqueueDistribution(ctx, created.ID); err != nil {
		s.log.Warn("distribution enqueue failed, lead left pending for reconcile sweep",
			"lead_id", created.ID, "error", err)
	}

	return created, nil
}

func (s *Service) normalize(req transport.IntakeLeadRequest, source IntakeSource) (Lead, error) {
	country := strings.ToLower(strings.TrimSpace(req.Country))
	if country == "" {
		country = strings.ToLower(strings.TrimSpace(source.DefaultCountry))
	}
	if country == "" {
		return Lead{}, apperr.Validation("country is required")
	}

	nicheValue := strings.ToLower(strings.TrimSpace(req.Niche))
	if nicheValue == "" {
		nicheValue = strings.ToLower(strings.TrimSpace(source.DefaultNiche))
	}
	niche := Niche(nicheValue)
	if niche != NicheForex && niche != NicheRecovery {
		return Lead{}, apperr.Validation("niche must be forex or recovery")
	}

	leadType := TypeRaw
	if strings.EqualFold(req.Type, string(TypePremium)) {
		leadType = TypePremium
	}

	region := phone.RegionForCountry(country)

	return Lead{
		ID:         uuid.New(),
		Country:    country,
		Niche:      niche,
		Type:       leadType,
		FirstName:  strings.TrimSpace(req.FirstName),
		LastName:   strings.TrimSpace(req.LastName),
		Email:      strings.ToLower(strings.TrimSpace(req.Email)),
		Phone:      phone.NormalizeE164(req.Phone, region),
		Source:     source.Name,
		AmountLost: req.AmountLost,
		FraudType:  req.FraudType,
		Status:     StatusPending,
	}, nil
}
