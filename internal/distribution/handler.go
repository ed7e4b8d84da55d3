package distribution

import (
	"net/http"
	"time"

	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Handler exposes the conversion postback and the ops stats endpoint.
type Handler struct {
	service *Service
}

// NewHandler creates a new distribution handler.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service}
}

type conversionRequest struct {
	LeadID        uuid.UUID `json:"leadId" binding:"required"`
	Value         float64   `json:"value" binding:"gte=0"`
	TransactionID string    `json:"transactionId" binding:"required,max=128"`
}

type conversionResponse struct {
	LeadID    uuid.UUID `json:"leadId"`
	Duplicate bool      `json:"duplicate"`
}

// RegisterPostback mounts the conversion postback route.
func (h *Handler) RegisterPostback(group *gin.RouterGroup) {
	group.POST("/postback/conversion", h.postConversion)
}

// RegisterOps mounts the operator stats route.
func (h *Handler) RegisterOps(group *gin.RouterGroup) {
	group.GET("/partners/:id/stats", h.getPartnerStats)
}

func (h *Handler) postConversion(c *gin.Context) {
	var req conversionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid payload", err.Error())
		return
	}

	duplicate, err := h.service.RecordConversion(c.Request.Context(), req.LeadID, req.Value, req.TransactionID)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, conversionResponse{LeadID: req.LeadID, Duplicate: duplicate})
}

func (h *Handler) getPartnerStats(c *gin.Context) {
	partnerID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid partner id", nil)
		return
	}

	date := time.Now().UTC()
	if raw := c.Query("date"); raw != "" {
		parsed, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpkit.Error(c, http.StatusBadRequest, "invalid date, expected YYYY-MM-DD", nil)
			return
		}
		date = parsed
	}

	stat, err := h.service.repo.GetStat(c.Request.Context(), partnerID, date)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, stat)
}
