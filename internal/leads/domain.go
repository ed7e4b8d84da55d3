// Package leads provides the lead bounded context: the canonical lead shape,
// persistence, and the token-authenticated intake surface.
package leads

import (
	"time"

	"github.com/google/uuid"
)

// Niche is the top-level lead category constraining partner eligibility.
type Niche string

const (
	NicheForex    Niche = "forex"
	NicheRecovery Niche = "recovery"
)

// LeadType is the quality tier used by the premium/raw ratio rule.
type LeadType string

const (
	TypePremium LeadType = "premium"
	TypeRaw     LeadType = "raw"
)

// Status is the lead state machine: pending -> distributed -> converted | failed.
type Status string

const (
	StatusPending     Status = "pending"
	StatusDistributed Status = "distributed"
	StatusConverted   Status = "converted"
	StatusFailed      Status = "failed"
)

// Failure reasons recorded on status = failed. Only no_eligible_partner is
// automatically retried.
const (
	FailureNoEligiblePartner = "no_eligible_partner"
	FailureAssignmentError   = "assignment_error"
	FailureStranded          = "stranded"
)

// Lead is a prospective customer record to be routed to a partner.
// AssignedPartnerID is set if and only if status is distributed or converted.
type Lead struct {
	ID                uuid.UUID
	Country           string
	Niche             Niche
	Type              LeadType
	FirstName         string
	LastName          string
	Email             string
	Phone             string
	Source            string
	AmountLost        *float64 // recovery niche only
	FraudType         *string  // recovery niche only
	Status            Status
	FailureReason     *string
	AssignedPartnerID *uuid.UUID
	CreatedAt         time.Time
	DistributedAt     *time.Time
	ConvertedAt       *time.Time
}
