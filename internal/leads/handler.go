package leads

import (
	"context"
	"net/http"
	"strings"
	"time"

	"leadflow_backend/internal/leads/transport"
	"leadflow_backend/platform/httpkit"
	"leadflow_backend/platform/logger"
	"leadflow_backend/platform/validator"

	"github.com/gin-gonic/gin"
)

// Handler exposes the lead intake endpoint.
type Handler struct {
	service *Service
	val     *validator.Validator
}

// NewHandler creates a new leads handler.
func NewHandler(service *Service, val *validator.Validator) *Handler {
	return &Handler{service: service, val: val}
}

// RegisterRoutes mounts the intake routes.
func (h *Handler) RegisterRoutes(group *gin.RouterGroup) {
	group.POST("/leads", h.intakeLead)
}

// intakeLead accepts a lead and returns 202 before distribution runs.
func (h *Handler) intakeLead(c *gin.Context) {
	source, ok := SourceFromContext(c)
	if !ok {
		httpkit.Error(c, http.StatusUnauthorized, "missing intake source", nil)
		return
	}

	var req transport.IntakeLeadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", nil)
		return
	}
	if err := h.val.Struct(req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "validation failed", err.Error())
		return
	}

	lead, err := h.service.Intake(c.Request.Context(), req, source)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.Accepted(c, transport.IntakeLeadResponse{
		LeadID:     lead.ID,
		Status:     string(lead.Status),
		ReceivedAt: lead.CreatedAt,
	})
}

// APIKeyAuth returns middleware that authenticates intake requests with the
// X-API-Key header against the intake_sources table.
func APIKeyAuth(repo *SourceRepository, log *logger.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		rawKey := strings.TrimSpace(c.GetHeader("X-API-Key"))
		if rawKey == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing api key"})
			return
		}

		ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
		defer cancel()

		source, err := repo.GetByHash(ctx, HashKey(rawKey))
		if err != nil {
			if log != nil {
				log.Warn("intake auth failed", "client_ip", c.ClientIP())
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid api key"})
			return
		}

		c.Set(httpkit.ContextIntakeSourceKey, source)
		c.Next()
	}
}

// SourceFromContext extracts the authenticated intake source.
func SourceFromContext(c *gin.Context) (IntakeSource, bool) {
	value, ok := c.Get(httpkit.ContextIntakeSourceKey)
	if !ok {
		return IntakeSource{}, false
	}
	source, ok := value.(IntakeSource)
	return source, ok
}
