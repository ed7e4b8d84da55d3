package delivery

import (
	"testing"
	"time"

	"leadflow_backend/internal/leads"
	"leadflow_backend/internal/partners"

	"github.com/google/uuid"
)

func newTestBuilder(t *testing.T) *Builder {
	t.Helper()
	builder, err := NewBuilder("https://engine.example.com")
	if err != nil {
		t.Fatalf("build payload builder: %v", err)
	}
	return builder
}

func forexLead() leads.Lead {
	return leads.Lead{
		ID:        uuid.New(),
		Country:   "italy",
		Niche:     leads.NicheForex,
		Type:      leads.TypePremium,
		FirstName: "Marco",
		LastName:  "Rossi",
		Email:     "marco@example.com",
		Phone:     "+393331234567",
		Source:    "fb-campaign-12",
		CreatedAt: time.Date(2026, 1, 7, 10, 30, 0, 0, time.UTC),
	}
}

func TestBuild_CanonicalFields(t *testing.T) {
	builder := newTestBuilder(t)
	lead := forexLead()

	payload := builder.Build(lead, partners.Partner{})

	if payload["first_name"] != "Marco" || payload["last_name"] != "Rossi" {
		t.Fatalf("unexpected name fields: %v", payload)
	}
	if payload["lead_type"] != "premium" || payload["niche"] != "forex" {
		t.Fatalf("unexpected classification fields: %v", payload)
	}
	if payload["created_at"] != "2026-01-07T10:30:00Z" {
		t.Fatalf("expected RFC3339 created_at, got %q", payload["created_at"])
	}
	if payload["postback_url"] != "https://engine.example.com/api/v1/postback/conversion" {
		t.Fatalf("unexpected postback url: %q", payload["postback_url"])
	}
}

func TestBuild_PhoneShapes(t *testing.T) {
	builder := newTestBuilder(t)
	lead := forexLead()

	cases := []struct {
		shape string
		want  string
	}{
		{"", "+393331234567"},
		{"plus", "+393331234567"},
		{"bare", "393331234567"},
		{"zerozero", "00393331234567"},
	}
	for _, tc := range cases {
		partner := partners.Partner{Delivery: partners.DeliveryConfig{PhoneFormat: tc.shape}}
		payload := builder.Build(lead, partner)
		if payload["phone"] != tc.want {
			t.Fatalf("shape %q: expected %q, got %q", tc.shape, tc.want, payload["phone"])
		}
	}
}

func TestBuild_RecoverySeparateFields(t *testing.T) {
	builder := newTestBuilder(t)
	amount := 12500.50
	fraud := "crypto_scam"
	lead := forexLead()
	lead.Niche = leads.NicheRecovery
	lead.AmountLost = &amount
	lead.FraudType = &fraud

	partner := partners.Partner{Delivery: partners.DeliveryConfig{SeparateRecoveryFields: true}}
	payload := builder.Build(lead, partner)

	if payload["amount_lost"] != "12500.50" {
		t.Fatalf("expected separate amount_lost, got %q", payload["amount_lost"])
	}
	if payload["fraud_type"] != "crypto_scam" {
		t.Fatalf("expected separate fraud_type, got %q", payload["fraud_type"])
	}
	if _, ok := payload["notes"]; ok {
		t.Fatal("expected no notes field when recovery fields are separate")
	}
}

func TestBuild_RecoveryFoldedIntoNotes(t *testing.T) {
	builder := newTestBuilder(t)
	amount := 800.0
	fraud := "romance_scam"
	lead := forexLead()
	lead.Niche = leads.NicheRecovery
	lead.AmountLost = &amount
	lead.FraudType = &fraud

	payload := builder.Build(lead, partners.Partner{})

	if payload["notes"] != "amount_lost: 800.00; fraud_type: romance_scam" {
		t.Fatalf("unexpected notes field: %q", payload["notes"])
	}
}

func TestBuild_BackfillPartnerDefaultsWinOverNicheDefaults(t *testing.T) {
	builder := newTestBuilder(t)
	lead := forexLead()
	lead.Source = ""

	partner := partners.Partner{Delivery: partners.DeliveryConfig{
		Defaults: map[string]string{
			"source":             "partner-default-feed",
			"trading_experience": "expert",
		},
	}}
	payload := builder.Build(lead, partner)

	if payload["source"] != "partner-default-feed" {
		t.Fatalf("expected partner default to fill empty source, got %q", payload["source"])
	}
	if payload["trading_experience"] != "expert" {
		t.Fatalf("expected partner default to beat the niche default, got %q", payload["trading_experience"])
	}
}

func TestBuild_NicheDefaultsFillRemainingGaps(t *testing.T) {
	builder := newTestBuilder(t)
	payload := builder.Build(forexLead(), partners.Partner{})

	if payload["trading_experience"] != "none" {
		t.Fatalf("expected forex niche default, got %q", payload["trading_experience"])
	}
}

func TestBuild_DefaultsNeverOverrideLeadData(t *testing.T) {
	builder := newTestBuilder(t)
	lead := forexLead()

	partner := partners.Partner{Delivery: partners.DeliveryConfig{
		Defaults: map[string]string{"email": "fallback@example.com"},
	}}
	payload := builder.Build(lead, partner)

	if payload["email"] != "marco@example.com" {
		t.Fatalf("expected lead email preserved, got %q", payload["email"])
	}
}

func TestBuild_FieldMappingRunsLast(t *testing.T) {
	builder := newTestBuilder(t)
	lead := forexLead()

	partner := partners.Partner{Delivery: partners.DeliveryConfig{
		PhoneFormat: "bare",
		FieldMapping: map[string]string{
			"first_name": "FirstName",
			"phone":      "msisdn",
		},
	}}
	payload := builder.Build(lead, partner)

	if payload["FirstName"] != "Marco" {
		t.Fatalf("expected renamed first name, got %v", payload)
	}
	if _, ok := payload["first_name"]; ok {
		t.Fatal("expected canonical key to be gone after remapping")
	}
	// Remapping sees the already-formatted phone value.
	if payload["msisdn"] != "393331234567" {
		t.Fatalf("expected formatted phone under mapped key, got %q", payload["msisdn"])
	}
	// Unmapped fields pass through unchanged.
	if payload["email"] != "marco@example.com" {
		t.Fatalf("expected unmapped field passthrough, got %v", payload)
	}
}
