// Package partners provides the partner read model consumed by the
// distribution and delivery engines. Partner rows are owned by admin
// tooling; this package only reads them.
package partners

import (
	"time"

	"github.com/google/uuid"
)

// Status is the partner lifecycle status.
type Status string

const (
	StatusActive   Status = "active"
	StatusInactive Status = "inactive"
	StatusPaused   Status = "paused"
)

// AuthStrategy is the closed set of delivery authentication strategies.
type AuthStrategy string

const (
	AuthNone         AuthStrategy = "none"
	AuthBearer       AuthStrategy = "bearer"
	AuthAPIKey       AuthStrategy = "api_key"
	AuthBasic        AuthStrategy = "basic"
	AuthCustomHeader AuthStrategy = "custom_header"
	AuthQueryParam   AuthStrategy = "query_param"
	AuthOAuth2       AuthStrategy = "oauth2"
)

// DeliveryMode selects live dispatch or a recorded simulation.
type DeliveryMode string

const (
	ModeLive     DeliveryMode = "live"
	ModeSimulate DeliveryMode = "simulate"
)

// DeliveryConfig is the partner's endpoint configuration, stored as JSONB.
type DeliveryConfig struct {
	Endpoint               string            `json:"endpoint"`
	Method                 string            `json:"method"`
	ContentType            string            `json:"contentType"`
	AuthStrategy           AuthStrategy      `json:"authStrategy"`
	AuthConfig             map[string]string `json:"authConfig"`
	FieldMapping           map[string]string `json:"fieldMapping"`
	Defaults               map[string]string `json:"defaults"`
	PhoneFormat            string            `json:"phoneFormat"`
	SeparateRecoveryFields bool              `json:"separateRecoveryFields"`
	Mode                   DeliveryMode      `json:"mode"`
}

// BusinessHours is the partner's acceptance window in its local timezone.
type BusinessHours struct {
	Timezone        string `json:"timezone"`
	StartLocal      string `json:"startLocal"` // "09:00"
	EndLocal        string `json:"endLocal"`   // "18:00"; end < start crosses midnight
	WeekendsEnabled bool   `json:"weekendsEnabled"`
}

// Partner is an external lead recipient.
type Partner struct {
	ID           uuid.UUID
	Name         string
	Country      string
	Niche        string
	Status       Status
	DailyLimit   int
	PremiumRatio float64
	Delivery     DeliveryConfig
	Hours        BusinessHours
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
