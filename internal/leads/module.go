package leads

import (
	apphttp "leadflow_backend/internal/http"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Module is the leads bounded context module implementing http.Module.
type Module struct {
	handler    *Handler
	service    *Service
	repo       *Repository
	sourceRepo *SourceRepository
	log        *logger.Logger
}

// NewModule creates and initializes the leads module with all its dependencies.
func NewModule(pool *pgxpool.Pool, enqueuer DistributionEnqueuer, val *validator.Validator, log *logger.Logger) *Module {
	repo := NewRepository(pool)
	sourceRepo := NewSourceRepository(pool)
	svc := NewService(repo, enqueuer, log)

	return &Module{
		handler:    NewHandler(svc, val),
		service:    svc,
		repo:       repo,
		sourceRepo: sourceRepo,
		log:        log,
	}
}

// Name returns the module identifier.
func (m *Module) Name() string {
	return "leads"
}

// Repository returns the lead repository for use by the sweeps.
func (m *Module) Repository() *Repository {
	return m.repo
}

// IntakeAuth returns the intake API key middleware. The router installs it on
// the intake group before modules register their routes.
func (m *Module) IntakeAuth() gin.HandlerFunc {
	return APIKeyAuth(m.sourceRepo, m.log)
}

// RegisterRoutes mounts the intake routes on the provided router context.
func (m *Module) RegisterRoutes(ctx *apphttp.RouterContext) {
	m.handler.RegisterRoutes(ctx.Intake)
}

// Compile-time check that Module implements http.Module
var _ apphttp.Module = (*Module)(nil)
