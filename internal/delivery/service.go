package delivery

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

// offlineThreshold is the consecutive-failure count at which a partner is
// reported offline.
const offlineThreshold = 3

// RecordStore persists delivery attempts. Satisfied by Repository; tests
// substitute a fake.
type RecordStore interface {
	HasSuccess(ctx context.Context, leadID, partnerID uuid.UUID) (bool, error)
	LatestAttempt(ctx context.Context, leadID, partnerID uuid.UUID) (int, error)
	CreateAttempt(ctx context.Context, leadID, partnerID uuid.UUID, endpoint string, payload []byte, attempt int, status Status) (uuid.UUID, error)
	MarkSuccess(ctx context.Context, id uuid.UUID, code int, body string) error
	MarkFailed(ctx context.Context, id uuid.UUID, code *int, body *string, errMsg string, terminal bool) error
	SetArchiveKey(ctx context.Context, id uuid.UUID, key string) error
	ConsecutiveFailures(ctx context.Context, partnerID uuid.UUID, window int) (int, error)
}

// LeadReader loads leads for payload building. Satisfied by leads.Repository.
type LeadReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (leads.Lead, error)
}

// PartnerReader loads partner configuration. Satisfied by partners.Repository.
type PartnerReader interface {
	GetByID(ctx context.Context, id uuid.UUID) (partners.Partner, error)
}

// Service is the delivery dispatcher. Deliver is safe to call repeatedly for
// the same pair: a recorded success short-circuits before any network
// activity.
type Service struct {
	store       RecordStore
	leadRepo    LeadReader
	partnerRepo PartnerReader
	builder     *Builder
	guard       *Guard
	sender      Sender
	tokenClient *http.Client
	archive     Archive
	bus         events.Bus
	log         *logger.Logger
	maxAttempts int
	now         func() time.Time
}

// NewService creates the dispatcher. archive may be nil.
func NewService(
	store RecordStore,
	leadRepo LeadReader,
	partnerRepo PartnerReader,
	builder *Builder,
	guard *Guard,
	sender Sender,
	tokenClient *http.Client,
	archive Archive,
	bus events.Bus,
	log *logger.Logger,
	maxAttempts int,
) *Service {
	if maxAttempts < 1 {
		maxAttempts = 3
	}
	return &Service{
		store:       store,
		leadRepo:    leadRepo,
		partnerRepo: partnerRepo,
		builder:     builder,
		guard:       guard,
		sender:      sender,
		tokenClient: tokenClient,
		archive:     archive,
		bus:         bus,
		log:         log,
		maxAttempts: maxAttempts,
		now:         time.Now,
	}
}

// WithClock replaces the time source. Test hook.
func (s *Service) WithClock(now func() time.Time) *Service {
	s.now = now
	return s
}

// Deliver executes one delivery attempt for the pair.
func (s *Service) Deliver(ctx context.Context, leadID, partnerID uuid.UUID) error {
	done, err := s.store.HasSuccess(ctx, leadID, partnerID)
	if err != nil {
		return err
	}
	if done {
		s.log.Debug("delivery already succeeded, skipping", "lead_id", leadID, "partner_id", partnerID)
		return nil
	}

	// The automatic retry cap is enforced where retries are claimed, not
	// here: an operator replay past the cap must still reach the wire.
	latest, err := s.store.LatestAttempt(ctx, leadID, partnerID)
	if err != nil {
		return err
	}
	attempt := latest + 1

	lead, err := s.leadRepo.GetByID(ctx, leadID)
	if err != nil {
		return err
	}
	partner, err := s.partnerRepo.GetByID(ctx, partnerID)
	if err != nil {
		return err
	}

	payload := s.builder.Build(lead, partner)
	body, err := json.Marshal(payload)
	if err != nil {
		return err
	}

	if partner.Delivery.Mode == partners.ModeSimulate {
		if _, err := s.store.CreateAttempt(ctx, leadID, partnerID, partner.Delivery.Endpoint, body, attempt, StatusSimulated); err != nil {
			return err
		}
		s.log.Info("delivery simulated", "lead_id", leadID, "partner_id", partnerID, "attempt", attempt)
		return nil
	}

	recordID, err := s.store.CreateAttempt(ctx, leadID, partnerID, partner.Delivery.Endpoint, body, attempt, StatusPending)
	if err != nil {
		return err
	}

	strategy, err := NewStrategy(partner.Delivery, s.tokenClient)
	if err != nil {
		return s.failTerminal(ctx, recordID, lead, partner, attempt, err)
	}

	if err := s.validateDestinations(ctx, partner, strategy); err != nil {
		s.log.SSRFBlocked(partnerID.String(), partner.Delivery.Endpoint, err.Error())
		return s.failTerminal(ctx, recordID, lead, partner, attempt, err)
	}

	auth, err := strategy.Authorize(ctx, partner.Delivery.Endpoint)
	if err != nil {
		if errors.Is(err, ErrAuthSetup) {
			return s.failTerminal(ctx, recordID, lead, partner, attempt, err)
		}
		return s.failRetryable(ctx, recordID, lead, partner, attempt, nil, nil, err)
	}

	result, err := s.sender.Send(ctx, partner.Delivery.Method, auth.URL, partner.Delivery.ContentType, auth.Headers, body)
	if err != nil {
		s.archiveAttempt(ctx, recordID, lead, partner, attempt, body, nil, err.Error())
		return s.failRetryable(ctx, recordID, lead, partner, attempt, nil, nil, err)
	}

	s.archiveAttempt(ctx, recordID, lead, partner, attempt, body, &result, "")

	if result.StatusCode >= 200 && result.StatusCode < 300 {
		if err := s.store.MarkSuccess(ctx, recordID, result.StatusCode, result.Body); err != nil {
			return err
		}
		s.log.DeliveryAttempt(leadID.String(), partnerID.String(), attempt, string(StatusSuccess), result.StatusCode)
		return nil
	}

	return s.failRetryable(ctx, recordID, lead, partner, attempt, &result.StatusCode, &result.Body, ErrRejected)
}

// validateDestinations SSRF-checks every URL a delivery could touch: the
// endpoint itself and, for oauth2, the token endpoint.
func (s *Service) validateDestinations(ctx context.Context, partner partners.Partner, strategy Strategy) error {
	if err := s.guard.Validate(ctx, partner.Delivery.Endpoint); err != nil {
		return err
	}
	if o, ok := strategy.(*oauth2Strategy); ok {
		if err := s.guard.Validate(ctx, o.TokenURL()); err != nil {
			return err
		}
	}
	return nil
}

// failTerminal records a failure with no retry value and reports the
// permanent loss immediately.
func (s *Service) failTerminal(ctx context.Context, recordID uuid.UUID, lead leads.Lead, partner partners.Partner, attempt int, cause error) error {
	if err := s.store.MarkFailed(ctx, recordID, nil, nil, cause.Error(), true); err != nil {
		return err
	}
	s.log.DeliveryAttempt(lead.ID.String(), partner.ID.String(), attempt, string(StatusFailed), 0)
	s.publishPermanentFailure(ctx, lead.ID, partner.ID, attempt, cause.Error())
	return nil
}

// failRetryable records a failed attempt. The retry sweep re-enqueues it
// once its backoff elapses; exhaustion of the attempt budget is reported as
// a permanent failure.
func (s *Service) failRetryable(ctx context.Context, recordID uuid.UUID, lead leads.Lead, partner partners.Partner, attempt int, code *int, body *string, cause error) error {
	if err := s.store.MarkFailed(ctx, recordID, code, body, cause.Error(), false); err != nil {
		return err
	}

	statusCode := 0
	if code != nil {
		statusCode = *code
	}
	s.log.DeliveryAttempt(lead.ID.String(), partner.ID.String(), attempt, string(StatusFailed), statusCode)

	if attempt >= s.maxAttempts {
		s.publishPermanentFailure(ctx, lead.ID, partner.ID, attempt, cause.Error())
	}

	failures, err := s.store.ConsecutiveFailures(ctx, partner.ID, 10)
	if err != nil {
		s.log.DatabaseError("delivery.consecutive_failures", err)
		return nil
	}
	if failures >= offlineThreshold {
		s.bus.Publish(ctx, events.PartnerOffline{
			BaseEvent:           events.NewBaseEvent(),
			PartnerID:           partner.ID,
			ConsecutiveFailures: failures,
		})
	}
	return nil
}

func (s *Service) publishPermanentFailure(ctx context.Context, leadID, partnerID uuid.UUID, attempts int, reason string) {
	s.bus.Publish(ctx, events.DeliveryFailedPermanently{
		BaseEvent: events.NewBaseEvent(),
		LeadID:    leadID,
		PartnerID: partnerID,
		Attempts:  attempts,
		Reason:    reason,
	})
}

// archiveAttempt uploads the full request/response document. Best effort;
// archive failures never affect the delivery outcome.
func (s *Service) archiveAttempt(ctx context.Context, recordID uuid.UUID, lead leads.Lead, partner partners.Partner, attempt int, payload []byte, result *Result, errMsg string) {
	if s.archive == nil {
		return
	}

	doc := ArchiveDocument{
		DeliveryID: recordID,
		LeadID:     lead.ID,
		PartnerID:  partner.ID,
		Attempt:    attempt,
		Endpoint:   partner.Delivery.Endpoint,
		Payload:    payload,
		Error:      errMsg,
		ArchivedAt: s.now().UTC(),
	}
	if result != nil {
		doc.Response = &ArchivedResponse{StatusCode: result.StatusCode, Body: result.Body}
	}

	raw, err := json.Marshal(doc)
	if err != nil {
		return
	}

	key := ArchiveKey(lead.ID, recordID, doc.ArchivedAt)
	if err := s.archive.Store(ctx, key, raw); err != nil {
		s.log.Warn("delivery archive write failed", "delivery_id", recordID, "error", err)
		return
	}
	if err := s.store.SetArchiveKey(ctx, recordID, key); err != nil {
		s.log.DatabaseError("delivery.set_archive_key", err)
	}
}
