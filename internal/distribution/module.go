package distribution

import (
	"leadflow_backend/internal/events"
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/logger"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the distribution bounded context module implementing http.Module.
type Module struct {
	handler *Handler
	service *Service
	repo    *Repository
}

// NewModule creates and initializes the distribution module.
func NewModule(
	pool *pgxpool.Pool,
	gate HoursGate,
	enqueuer DeliveryEnqueuer,
	bus events.Bus,
	log *logger.Logger,
) *Module {
	repo := NewRepository(pool)
	svc := NewService(repo, partners.New(pool), leads.NewRepository(pool), gate, enqueuer, bus, log)

	return &Module{
		handler: NewHandler(svc),
		service: svc,
		repo:    repo,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "distribution"
}

// Service returns the coordinator for use by the worker and sweeps.
func (m *Module) Service() *Service {
	return m.service
}

// Repository returns the distribution repository for use by the sweeps.
func (m *Module) Repository() *Repository {
	return m.repo
}

// RegisterRoutes mounts the postback and ops routes.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterPostback(ctx.V1)
	m.handler.RegisterOps(ctx.Protected)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
