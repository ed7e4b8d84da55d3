// Package alerts turns alert-worthy domain events into operator
// notifications. Every alert is logged; email is sent only when enabled.
package alerts

import (
	"context"
	"fmt"

	"leadflow_backend/internal/events"
	"leadflow_backend/platform/config"
	"leadflow_backend/platform/logger"
)

// Module subscribes to alert-worthy events on the bus.
type Module struct {
	sender Sender
	log    *logger.Logger
}

// NewModule creates the alert emitter. sender may be nil when alert email is
// disabled; alerts are then log-only.
func NewModule(cfg config.AlertConfig, log *logger.Logger) *Module {
	var sender Sender
	if cfg.GetAlertEmailEnabled() {
		sender = NewSMTPSender(cfg)
	}
	return &Module{sender: sender, log: log}
}

// Register subscribes the module's handlers on the bus.
func (m *Module) Register(bus events.Bus) {
	bus.Subscribe(events.LeadUnmatched{}.EventName(), events.HandlerFunc(m.onLeadUnmatched))
	bus.Subscribe(events.LeadStranded{}.EventName(), events.HandlerFunc(m.onLeadStranded))
	bus.Subscribe(events.DeliveryFailedPermanently{}.EventName(), events.HandlerFunc(m.onDeliveryFailed))
	bus.Subscribe(events.PartnerOffline{}.EventName(), events.HandlerFunc(m.onPartnerOffline))
	bus.Subscribe(events.FailureBurst{}.EventName(), events.HandlerFunc(m.onFailureBurst))
}

func (m *Module) onLeadUnmatched(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadUnmatched)
	if !ok {
		return nil
	}
	m.log.Warn("alert: lead unmatched", "lead_id", e.LeadID, "country", e.Country, "niche", e.Niche)
	return m.send(ctx,
		"Lead unmatched: no eligible partner",
		fmt.Sprintf("Lead %s (%s / %s) found no eligible partner. It will be retried automatically for 24 hours.",
			e.LeadID, e.Country, e.Niche))
}

func (m *Module) onLeadStranded(ctx context.Context, event events.Event) error {
	e, ok := event.(events.LeadStranded)
	if !ok {
		return nil
	}
	m.log.Error("alert: lead stranded", "lead_id", e.LeadID, "country", e.Country, "niche", e.Niche)
	return m.send(ctx,
		"Lead stranded: retry window exhausted",
		fmt.Sprintf("Lead %s (%s / %s) exhausted its retry window without an eligible partner and needs manual intervention.",
			e.LeadID, e.Country, e.Niche))
}

func (m *Module) onDeliveryFailed(ctx context.Context, event events.Event) error {
	e, ok := event.(events.DeliveryFailedPermanently)
	if !ok {
		return nil
	}
	m.log.Error("alert: delivery failed permanently",
		"lead_id", e.LeadID, "partner_id", e.PartnerID, "attempts", e.Attempts, "reason", e.Reason)
	return m.send(ctx,
		"Delivery failed permanently",
		fmt.Sprintf("Delivery of lead %s to partner %s failed permanently after %d attempt(s): %s",
			e.LeadID, e.PartnerID, e.Attempts, e.Reason))
}

func (m *Module) onPartnerOffline(ctx context.Context, event events.Event) error {
	e, ok := event.(events.PartnerOffline)
	if !ok {
		return nil
	}
	m.log.Error("alert: partner appears offline",
		"partner_id", e.PartnerID, "consecutive_failures", e.ConsecutiveFailures)
	return m.send(ctx,
		"Partner appears offline",
		fmt.Sprintf("Partner %s failed %d consecutive deliveries and may be offline.",
			e.PartnerID, e.ConsecutiveFailures))
}

func (m *Module) onFailureBurst(ctx context.Context, event events.Event) error {
	e, ok := event.(events.FailureBurst)
	if !ok {
		return nil
	}
	m.log.Error("alert: delivery failure burst",
		"failure_count", e.FailureCount, "threshold", e.Threshold)
	return m.send(ctx,
		"Delivery failure burst",
		fmt.Sprintf("%d delivery failures observed in the last sweep window (threshold %d). Check partner endpoints and network health.",
			e.FailureCount, e.Threshold))
}

func (m *Module) send(ctx context.Context, subject, body string) error {
	if m.sender == nil {
		return nil
	}
	if err := m.sender.Send(ctx, "[leadflow] "+subject, body); err != nil {
		m.log.Error("alert email send failed", "subject", subject, "error", err)
	}
	return nil
}
