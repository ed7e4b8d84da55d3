// Package transport defines the intake DTOs for the leads context.
package transport

import (
	"time"

	"github.com/google/uuid"
)

// IntakeLeadRequest is the normalized inbound lead payload. Country and niche
// fall back to the intake source's defaults when omitted.
type IntakeLeadRequest struct {
	FirstName  string   `json:"firstName" validate:"required,max=100"`
	LastName   string   `json:"lastName" validate:"max=100"`
	Email      string   `json:"email" validate:"required,email"`
	Phone      string   `json:"phone" validate:"required,phone,max=32"`
	Country    string   `json:"country" validate:"max=64"`
	Niche      string   `json:"niche" validate:"omitempty,oneof=forex recovery"`
	Type       string   `json:"type" validate:"omitempty,oneof=premium raw"`
	AmountLost *float64 `json:"amountLost" validate:"omitempty,gte=0"`
	FraudType  *string  `json:"fraudType" validate:"omitempty,max=100"`
}

// IntakeLeadResponse acknowledges acceptance. Distribution happens after the
// response is written.
type IntakeLeadResponse struct {
	LeadID     uuid.UUID `json:"leadId"`
	Status     string    `json:"status"`
	ReceivedAt time.Time `json:"receivedAt"`
}
