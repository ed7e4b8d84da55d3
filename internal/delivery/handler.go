package delivery

import (
	"context"
	"net/http"
	"time"

	"leadflow_backend/platform/httpkit"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// Enqueuer re-queues a delivery on the work queue. Satisfied by
// scheduler.Client.
type Enqueuer interface {
	EnqueueDelivery(ctx context.Context, leadID, partnerID uuid.UUID) error
}

// Handler exposes the operator delivery endpoints.
type Handler struct {
	repo     *Repository
	enqueuer Enqueuer
}

// NewHandler creates a new delivery handler.
func NewHandler(repo *Repository, enqueuer Enqueuer) *Handler {
	return &Handler{repo: repo, enqueuer: enqueuer}
}

type deliveryResponse struct {
	ID           uuid.UUID `json:"id"`
	LeadID       uuid.UUID `json:"leadId"`
	PartnerID    uuid.UUID `json:"partnerId"`
	Endpoint     string    `json:"endpoint"`
	Attempt      int       `json:"attempt"`
	Status       Status    `json:"status"`
	ResponseCode *int      `json:"responseCode,omitempty"`
	ErrorMessage *string   `json:"errorMessage,omitempty"`
	Terminal     bool      `json:"terminal"`
	AttemptedAt  time.Time `json:"attemptedAt"`
	ArchiveKey   *string   `json:"archiveKey,omitempty"`
}

func toResponse(rec Record) deliveryResponse {
	return deliveryResponse{
		ID:           rec.ID,
		LeadID:       rec.LeadID,
		PartnerID:    rec.PartnerID,
		Endpoint:     rec.Endpoint,
		Attempt:      rec.Attempt,
		Status:       rec.Status,
		ResponseCode: rec.ResponseCode,
		ErrorMessage: rec.ErrorMessage,
		Terminal:     rec.Terminal,
		AttemptedAt:  rec.AttemptedAt,
		ArchiveKey:   rec.ArchiveKey,
	}
}

// RegisterOps mounts the delivery inspection and replay routes.
func (h *Handler) RegisterOps(group *gin.RouterGroup) {
	group.GET("/deliveries/:id", h.getDelivery)
	group.GET("/leads/:id/deliveries", h.listLeadDeliveries)
	group.POST("/deliveries/:id/replay", h.replayDelivery)
}

func (h *Handler) getDelivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid delivery id", nil)
		return
	}

	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	httpkit.OK(c, toResponse(rec))
}

func (h *Handler) listLeadDeliveries(c *gin.Context) {
	leadID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid lead id", nil)
		return
	}

	records, err := h.repo.ListByLead(c.Request.Context(), leadID)
	if httpkit.HandleError(c, err) {
		return
	}

	out := make([]deliveryResponse, 0, len(records))
	for _, rec := range records {
		out = append(out, toResponse(rec))
	}
	httpkit.OK(c, out)
}

// replayDelivery re-enqueues the pair behind an existing attempt. The
// dispatcher's success check still applies, so replaying a delivered lead is
// a no-op. A replay is not bound by the automatic retry budget; it produces a
// real attempt even after retries are exhausted.
func (h *Handler) replayDelivery(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		httpkit.Error(c, http.StatusBadRequest, "invalid delivery id", nil)
		return
	}

	rec, err := h.repo.GetByID(c.Request.Context(), id)
	if httpkit.HandleError(c, err) {
		return
	}

	if err := h.enqueuer.EnqueueDelivery(c.Request.Context(), rec.LeadID, rec.PartnerID); err != nil {
		httpkit.Error(c, http.StatusInternalServerError, "failed to enqueue replay", nil)
		return
	}

	httpkit.Accepted(c, gin.H{"leadId": rec.LeadID, "partnerId": rec.PartnerID})
}
