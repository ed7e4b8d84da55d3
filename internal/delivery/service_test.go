package delivery

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	"leadflow_backend/internal/events"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/logger"

	"github.com/google/uuid"
)

type fakeStore struct {
	mu       sync.Mutex
	records  []Record
	statuses map[uuid.UUID]Status
}

func newFakeStore() *fakeStore {
	return &fakeStore{statuses: make(map[uuid.UUID]Status)}
}

func (s *fakeStore) HasSuccess(_ context.Context, leadID, partnerID uuid.UUID) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, rec := range s.records {
		if rec.LeadID == leadID && rec.PartnerID == partnerID && rec.Status == StatusSuccess {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeStore) LatestAttempt(_ context.Context, leadID, partnerID uuid.UUID) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	latest := 0
	for _, rec := range s.records {
		if rec.LeadID == leadID && rec.PartnerID == partnerID && rec.Attempt > latest {
			latest = rec.Attempt
		}
	}
	return latest, nil
}

func (s *fakeStore) CreateAttempt(_ context.Context, leadID, partnerID uuid.UUID, endpoint string, payload []byte, attempt int, status Status) (uuid.UUID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	id := uuid.New()
	s.records = append(s.records, Record{
		ID: id, LeadID: leadID, PartnerID: partnerID, Endpoint: endpoint,
		Payload: payload, Attempt: attempt, Status: status, AttemptedAt: time.Now(),
	})
	return id, nil
}

func (s *fakeStore) MarkSuccess(_ context.Context, id uuid.UUID, code int, body string) error {
	return s.update(id, func(rec *Record) {
		rec.Status = StatusSuccess
		rec.ResponseCode = &code
		rec.ResponseBody = &body
	})
}

func (s *fakeStore) MarkFailed(_ context.Context, id uuid.UUID, code *int, body *string, errMsg string, terminal bool) error {
	return s.update(id, func(rec *Record) {
		rec.Status = StatusFailed
		rec.ResponseCode = code
		rec.ResponseBody = body
		rec.ErrorMessage = &errMsg
		rec.Terminal = terminal
	})
}

func (s *fakeStore) SetArchiveKey(_ context.Context, id uuid.UUID, key string) error {
	return s.update(id, func(rec *Record) { rec.ArchiveKey = &key })
}

func (s *fakeStore) ConsecutiveFailures(_ context.Context, partnerID uuid.UUID, _ int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	count := 0
	for i := len(s.records) - 1; i >= 0; i-- {
		rec := s.records[i]
		if rec.PartnerID != partnerID || (rec.Status != StatusFailed && rec.Status != StatusSuccess) {
			continue
		}
		if rec.Status != StatusFailed {
			break
		}
		count++
	}
	return count, nil
}

func (s *fakeStore) update(id uuid.UUID, fn func(*Record)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.records {
		if s.records[i].ID == id {
			fn(&s.records[i])
			return nil
		}
	}
	return errors.New("record not found")
}

func (s *fakeStore) last(t *testing.T) Record {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.records) == 0 {
		t.Fatal("expected at least one recorded attempt")
	}
	return s.records[len(s.records)-1]
}

type fakeSender struct {
	mu      sync.Mutex
	calls   int
	results []Result
	errs    []error
}

func (f *fakeSender) Send(_ context.Context, _, _, _ string, _ map[string]string, _ []byte) (Result, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	idx := f.calls
	f.calls++
	var res Result
	var err error
	if idx < len(f.results) {
		res = f.results[idx]
	}
	if idx < len(f.errs) {
		err = f.errs[idx]
	}
	return res, err
}

func (f *fakeSender) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type staticLeadReader struct{ lead leads.Lead }

func (r staticLeadReader) GetByID(context.Context, uuid.UUID) (leads.Lead, error) {
	return r.lead, nil
}

type staticPartnerReader struct{ partner partners.Partner }

func (r staticPartnerReader) GetByID(context.Context, uuid.UUID) (partners.Partner, error) {
	return r.partner, nil
}

type recordingBus struct {
	mu     sync.Mutex
	events []events.Event
}

func (b *recordingBus) Publish(_ context.Context, event events.Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.events = append(b.events, event)
}

func (b *recordingBus) PublishSync(ctx context.Context, event events.Event) error {
	b.Publish(ctx, event)
	return nil
}

func (b *recordingBus) Subscribe(string, events.Handler) {}

func (b *recordingBus) names() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	var out []string
	for _, e := range b.events {
		out = append(out, e.EventName())
	}
	return out
}

func livePartner() partners.Partner {
	return partners.Partner{
		ID:     uuid.New(),
		Status: partners.StatusActive,
		Delivery: partners.DeliveryConfig{
			Endpoint:     "https://partner.example.com/leads",
			AuthStrategy: partners.AuthNone,
			Mode:         partners.ModeLive,
		},
	}
}

func newTestService(t *testing.T, store *fakeStore, sender Sender, partner partners.Partner, bus events.Bus) *Service {
	t.Helper()
	builder, err := NewBuilder("https://engine.example.com")
	if err != nil {
		t.Fatalf("builder: %v", err)
	}
	lead := forexLead()
	guard := NewGuard(false).WithResolver(fakeResolver{ips: map[string][]string{
		"partner.example.com": {"93.184.216.34"},
		"token.example.com":   {"93.184.216.34"},
	}})
	return NewService(store, staticLeadReader{lead: lead}, staticPartnerReader{partner: partner},
		builder, guard, sender, http.DefaultClient, nil, bus, logger.New("test"), 3)
}

func TestDeliver_Success(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{results: []Result{{StatusCode: 200, Body: `{"ok":true}`}}}
	partner := livePartner()
	bus := &recordingBus{}
	svc := newTestService(t, store, sender, partner, bus)

	if err := svc.Deliver(context.Background(), uuid.New(), partner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := store.last(t)
	if rec.Status != StatusSuccess || rec.Attempt != 1 {
		t.Fatalf("expected successful first attempt, got %+v", rec)
	}
	if len(bus.names()) != 0 {
		t.Fatalf("expected no events on success, got %v", bus.names())
	}
}

func TestDeliver_SkipsAfterSuccess(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{results: []Result{{StatusCode: 200}}}
	partner := livePartner()
	svc := newTestService(t, store, sender, partner, &recordingBus{})
	leadID := uuid.New()

	if err := svc.Deliver(context.Background(), leadID, partner.ID); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if err := svc.Deliver(context.Background(), leadID, partner.ID); err != nil {
		t.Fatalf("second delivery: %v", err)
	}

	if sender.callCount() != 1 {
		t.Fatalf("expected exactly one outbound call, got %d", sender.callCount())
	}
}

func TestDeliver_RejectionRecordsFailure(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{results: []Result{{StatusCode: 500, Body: "boom"}}}
	partner := livePartner()
	bus := &recordingBus{}
	svc := newTestService(t, store, sender, partner, bus)

	if err := svc.Deliver(context.Background(), uuid.New(), partner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := store.last(t)
	if rec.Status != StatusFailed || rec.Terminal {
		t.Fatalf("expected retryable failure, got %+v", rec)
	}
	if rec.ResponseCode == nil || *rec.ResponseCode != 500 {
		t.Fatalf("expected recorded response code, got %+v", rec)
	}
}

func TestDeliver_ExhaustionEmitsPermanentFailure(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{
		results: []Result{{StatusCode: 500}, {StatusCode: 500}, {StatusCode: 500}},
	}
	partner := livePartner()
	bus := &recordingBus{}
	svc := newTestService(t, store, sender, partner, bus)
	leadID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := svc.Deliver(context.Background(), leadID, partner.ID); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}
	if sender.callCount() != 3 {
		t.Fatalf("expected exactly three outbound calls, got %d", sender.callCount())
	}

	var permanent, offline bool
	for _, name := range bus.names() {
		switch name {
		case events.DeliveryFailedPermanently{}.EventName():
			permanent = true
		case events.PartnerOffline{}.EventName():
			offline = true
		}
	}
	if !permanent {
		t.Fatal("expected a permanent failure event after exhaustion")
	}
	if !offline {
		t.Fatal("expected a partner offline event after three consecutive failures")
	}
}

func TestDeliver_ReplayAfterExhaustionReachesWire(t *testing.T) {
	// Automatic retries stop at the attempt budget, but that cap lives in the
	// retry claim query. An operator replay goes through Deliver directly and
	// must produce a real fourth attempt.
	store := newFakeStore()
	sender := &fakeSender{
		results: []Result{{StatusCode: 500}, {StatusCode: 500}, {StatusCode: 500}, {StatusCode: 200, Body: "ok"}},
	}
	partner := livePartner()
	bus := &recordingBus{}
	svc := newTestService(t, store, sender, partner, bus)
	leadID := uuid.New()

	for i := 0; i < 3; i++ {
		if err := svc.Deliver(context.Background(), leadID, partner.ID); err != nil {
			t.Fatalf("attempt %d: %v", i+1, err)
		}
	}

	if err := svc.Deliver(context.Background(), leadID, partner.ID); err != nil {
		t.Fatalf("replay: %v", err)
	}
	if sender.callCount() != 4 {
		t.Fatalf("expected the replay to reach the wire, got %d calls", sender.callCount())
	}

	rec := store.last(t)
	if rec.Attempt != 4 || rec.Status != StatusSuccess {
		t.Fatalf("expected a successful fourth attempt, got %+v", rec)
	}
}

func TestDeliver_AuthSetupErrorIsTerminal(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	partner := livePartner()
	partner.Delivery.AuthStrategy = partners.AuthBearer // token missing
	bus := &recordingBus{}
	svc := newTestService(t, store, sender, partner, bus)

	if err := svc.Deliver(context.Background(), uuid.New(), partner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.callCount() != 0 {
		t.Fatal("expected no outbound call on auth misconfiguration")
	}
	rec := store.last(t)
	if rec.Status != StatusFailed || !rec.Terminal {
		t.Fatalf("expected terminal failure, got %+v", rec)
	}
	if names := bus.names(); len(names) == 0 || names[0] != (events.DeliveryFailedPermanently{}).EventName() {
		t.Fatalf("expected immediate permanent failure event, got %v", names)
	}
}

func TestDeliver_SSRFBlockedIsTerminal(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	partner := livePartner()
	partner.Delivery.Endpoint = "https://169.254.169.254/latest"
	bus := &recordingBus{}
	svc := newTestService(t, store, sender, partner, bus)

	if err := svc.Deliver(context.Background(), uuid.New(), partner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.callCount() != 0 {
		t.Fatal("expected no outbound call to a blocked destination")
	}
	rec := store.last(t)
	if !rec.Terminal {
		t.Fatalf("expected terminal failure, got %+v", rec)
	}
}

func TestDeliver_SimulateModeSkipsNetwork(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{}
	partner := livePartner()
	partner.Delivery.Mode = partners.ModeSimulate
	svc := newTestService(t, store, sender, partner, &recordingBus{})

	if err := svc.Deliver(context.Background(), uuid.New(), partner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if sender.callCount() != 0 {
		t.Fatal("expected no outbound call in simulate mode")
	}
	if rec := store.last(t); rec.Status != StatusSimulated {
		t.Fatalf("expected a simulated record, got %+v", rec)
	}
}

func TestDeliver_TransportErrorIsRetryable(t *testing.T) {
	store := newFakeStore()
	sender := &fakeSender{errs: []error{ErrTransport}}
	partner := livePartner()
	svc := newTestService(t, store, sender, partner, &recordingBus{})

	if err := svc.Deliver(context.Background(), uuid.New(), partner.ID); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	rec := store.last(t)
	if rec.Status != StatusFailed || rec.Terminal {
		t.Fatalf("expected retryable failure, got %+v", rec)
	}
	if rec.ResponseCode != nil {
		t.Fatal("expected no response code on transport failure")
	}
}
