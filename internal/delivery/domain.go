// Package delivery implements the dispatcher: building partner-specific
// payloads, authenticating and SSRF-validating outbound requests, recording
// every attempt, and enforcing at-most-one-success per (lead, partner).
package delivery

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Status of a delivery attempt row.
type Status string

const (
	StatusPending   Status = "pending"
	StatusSuccess   Status = "success"
	StatusFailed    Status = "failed"
	StatusSimulated Status = "simulated"
)

// Sentinel errors forming the delivery failure taxonomy.
var (
	// ErrAuthSetup indicates partner auth misconfiguration. The delivery is
	// never attempted and never retried.
	ErrAuthSetup = errors.New("auth setup error")
	// ErrSSRFBlocked indicates the destination failed SSRF validation. The
	// delivery is never attempted and never retried.
	ErrSSRFBlocked = errors.New("destination blocked by ssrf validation")
	// ErrRejected indicates a non-2xx response from the partner. Retryable.
	ErrRejected = errors.New("delivery rejected by partner")
	// ErrTransport indicates a network or timeout failure. Retryable.
	ErrTransport = errors.New("delivery transport error")
)

// Record is one delivery attempt. For a given (lead, partner) at most one
// record may carry status success; that row is the idempotency anchor.
type Record struct {
	ID           uuid.UUID
	LeadID       uuid.UUID
	PartnerID    uuid.UUID
	Endpoint     string
	Payload      []byte
	Attempt      int
	Status       Status
	ResponseCode *int
	ResponseBody *string
	ErrorMessage *string
	ArchiveKey   *string
	// Terminal marks failures with no retry value: auth misconfiguration
	// and SSRF-blocked destinations. The retry sweep skips them.
	Terminal       bool
	AttemptedAt    time.Time
	RetryClaimedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
