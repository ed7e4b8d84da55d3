package delivery

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the delivery bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
	repo    *Repository
}

// NewModule creates and initializes the delivery module. archive may be nil.
func NewModule(
	pool *pgxpool.Pool,
	cfg config.DeliveryConfig,
	enqueuer Enqueuer,
	archive Archive,
	bus events.Bus,
	log *logger.Logger,
) (*Module, error) {
	builder, err := NewBuilder(cfg.GetPostbackBaseURL())
	if err != nil {
		return nil, err
	}

	sender := NewHTTPSender(cfg.GetDeliveryTimeout(), cfg.GetDeliveryBodyCap())
	guard := NewGuard(cfg.GetDeliveryAllowInsecure())
	repo := NewRepository(pool)

	svc := NewService(
		repo,
		leads.NewRepository(pool),
		partners.New(pool),
		builder,
		guard,
		sender,
		sender.Client(),
		archive,
		bus,
		log,
		cfg.GetDeliveryMaxAttempts(),
	)

	return &Module{
		handler: NewHandler(repo, enqueuer),
		service: svc,
		repo:    repo,
	}, nil
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "delivery"
}

// Service returns the dispatcher for use by the worker.
func (m *Module) Service() *Service {
	return m.service
}

// Repository returns the delivery repository for use by the sweeps.
func (m *Module) Repository() *Repository {
	return m.repo
}

// RegisterRoutes mounts the operator delivery routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterOps(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)

// Compile-time check that Repository satisfies the dispatcher's store port.
var _ RecordStore = (*Repository)(nil)
