// Package events provides domain event definitions for decoupled,
// event-driven communication between modules.
// Infrastructure (Bus, Handler) is in platform/events.
package events

import (
	"leadflow_backend/platform/events"

	"github.com/google/uuid"
)

// Re-export platform types for convenience
type (
	Event       = events.Event
	Bus         = events.Bus
	Handler     = events.Handler
	HandlerFunc = events.HandlerFunc
	BaseEvent   = events.BaseEvent
)

// Re-export platform functions
var (
	NewBaseEvent   = events.NewBaseEvent
	NewInMemoryBus = events.NewInMemoryBus
)

// =============================================================================
// Distribution Domain Events
// =============================================================================

// LeadAssigned is published after a lead is committed to a partner.
type LeadAssigned struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	PartnerID uuid.UUID `json:"partnerId"`
	LeadType  string    `json:"leadType"`
	Deferred  bool      `json:"deferred"` // delivery queued for business hours
}

func (e LeadAssigned) EventName() string { return "distribution.lead.assigned" }

// LeadUnmatched is published when no eligible partner exists for a lead.
type LeadUnmatched struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Country string    `json:"country"`
	Niche   string    `json:"niche"`
}

func (e LeadUnmatched) EventName() string { return "distribution.lead.unmatched" }

// LeadStranded is published when an unmatched lead exhausts its retry window
// and will not be distributed without manual intervention.
type LeadStranded struct {
	BaseEvent
	LeadID  uuid.UUID `json:"leadId"`
	Country string    `json:"country"`
	Niche   string    `json:"niche"`
}

func (e LeadStranded) EventName() string { return "distribution.lead.stranded" }

// =============================================================================
// Delivery Domain Events
// =============================================================================

// DeliveryFailedPermanently is published when a delivery exhausts its retries
// or fails validation with no retry value.
type DeliveryFailedPermanently struct {
	BaseEvent
	LeadID    uuid.UUID `json:"leadId"`
	PartnerID uuid.UUID `json:"partnerId"`
	Attempts  int       `json:"attempts"`
	Reason    string    `json:"reason"`
}

func (e DeliveryFailedPermanently) EventName() string { return "delivery.failed_permanently" }

// PartnerOffline is published after three consecutive failed deliveries to
// the same partner.
type PartnerOffline struct {
	BaseEvent
	PartnerID           uuid.UUID `json:"partnerId"`
	ConsecutiveFailures int       `json:"consecutiveFailures"`
}

func (e PartnerOffline) EventName() string { return "delivery.partner_offline" }

// FailureBurst is published when a retry sweep observes failures across
// partners above the configured threshold.
type FailureBurst struct {
	BaseEvent
	FailureCount int `json:"failureCount"`
	Threshold    int `json:"threshold"`
}

func (e FailureBurst) EventName() string { return "delivery.failure_burst" }
