package delivery

import (
	_ "embed"
	"fmt"
	"strconv"
	"strings"
	"time"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/partners"
	"leadflow_backend/platform/phone"

	"gopkg.in/yaml.v3"
)

//go:embed niche_defaults.yaml
var nicheDefaultsRaw []byte

// Builder assembles the outbound payload for a (lead, partner) pair.
// Construction order matters: canonical fields, then niche fields, then
// backfill from partner and niche defaults, then phone formatting, and field
// remapping last so every earlier step operates on canonical names.
type Builder struct {
	postbackBaseURL string
	nicheDefaults   map[string]map[string]string
}

// NewBuilder parses the embedded niche defaults and returns a builder.
// postbackBaseURL is the public base for conversion postbacks, advertised to
// partners inside every payload.
func NewBuilder(postbackBaseURL string) (*Builder, error) {
	defaults := make(map[string]map[string]string)
	if err := yaml.Unmarshal(nicheDefaultsRaw, &defaults); err != nil {
		return nil, fmt.Errorf("parsing niche defaults: %w", err)
	}
	return &Builder{
		postbackBaseURL: strings.TrimSuffix(postbackBaseURL, "/"),
		nicheDefaults:   defaults,
	}, nil
}

// Build produces the payload fields to send to the partner.
func (b *Builder) Build(lead leads.Lead, partner partners.Partner) map[string]string {
	payload := map[string]string{
		"lead_id":      lead.ID.String(),
		"first_name":   lead.FirstName,
		"last_name":    lead.LastName,
		"email":        lead.Email,
		"phone":        lead.Phone,
		"country":      lead.Country,
		"niche":        string(lead.Niche),
		"lead_type":    string(lead.Type),
		"source":       lead.Source,
		"created_at":   lead.CreatedAt.UTC().Format(time.RFC3339),
		"postback_url": b.postbackBaseURL + "/api/v1/postback/conversion",
	}

	b.applyNicheFields(payload, lead, partner)
	b.backfill(payload, partner)
	b.formatPhone(payload, lead, partner)
	return remapFields(payload, partner.Delivery.FieldMapping)
}

// applyNicheFields adds recovery-specific data either as separate fields or
// folded into a single notes field, per partner preference.
func (b *Builder) applyNicheFields(payload map[string]string, lead leads.Lead, partner partners.Partner) {
	if lead.Niche != leads.NicheRecovery {
		return
	}

	var amount, fraud string
	if lead.AmountLost != nil {
		amount = strconv.FormatFloat(*lead.AmountLost, 'f', 2, 64)
	}
	if lead.FraudType != nil {
		fraud = *lead.FraudType
	}

	if partner.Delivery.SeparateRecoveryFields {
		if amount != "" {
			payload["amount_lost"] = amount
		}
		if fraud != "" {
			payload["fraud_type"] = fraud
		}
		return
	}

	var parts []string
	if amount != "" {
		parts = append(parts, "amount_lost: "+amount)
	}
	if fraud != "" {
		parts = append(parts, "fraud_type: "+fraud)
	}
	if len(parts) > 0 {
		payload["notes"] = strings.Join(parts, "; ")
	}
}

// backfill fills empty fields from partner-configured defaults first, then
// from the embedded niche defaults. Existing non-empty values always win.
func (b *Builder) backfill(payload map[string]string, partner partners.Partner) {
	for key, value := range partner.Delivery.Defaults {
		if payload[key] == "" && value != "" {
			payload[key] = value
		}
	}
	for key, value := range b.nicheDefaults[payload["niche"]] {
		if payload[key] == "" && value != "" {
			payload[key] = value
		}
	}
}

// formatPhone renders the phone in the shape the partner expects. The stored
// value is already E.164; the plus shape needs no work.
func (b *Builder) formatPhone(payload map[string]string, lead leads.Lead, partner partners.Partner) {
	shape := phone.Shape(partner.Delivery.PhoneFormat)
	if shape == "" || shape == phone.ShapePlus {
		return
	}
	payload["phone"] = phone.Format(lead.Phone, phone.RegionForCountry(lead.Country), shape)
}

// remapFields renames canonical keys to the partner's names. Unmapped fields
// pass through unchanged. Runs last.
func remapFields(payload map[string]string, mapping map[string]string) map[string]string {
	if len(mapping) == 0 {
		return payload
	}
	out := make(map[string]string, len(payload))
	for key, value := range payload {
		if renamed, ok := mapping[key]; ok && renamed != "" {
			out[renamed] = value
			continue
		}
		out[key] = value
	}
	return out
}
