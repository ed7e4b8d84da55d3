// Package distribution implements the coordinator: transactional lead
// assignment under per-partner daily caps and the premium/raw ratio rule,
// the per-day stats ledger, and conversion postback recording.
package distribution

import (
	"leadflow_backend/internal/leads"

	"github.com/google/uuid"
)

// Candidate is an eligible partner row as locked by the assignment query,
// carrying today's counters. Candidates arrive ordered by ascending load with
// a randomized tie-break.
type Candidate struct {
	PartnerID    uuid.UUID
	DailyLimit   int
	PremiumRatio float64
	Received     int
	Premium      int
	Raw          int
}

// SelectCandidate picks the partner for a lead. The first candidate whose
// ratio target still has room for the lead's type wins; when none does, the
// least-loaded candidate wins. Ratio preference never refuses delivery.
func SelectCandidate(candidates []Candidate, leadType leads.LeadType) (Candidate, bool) {
	if len(candidates) == 0 {
		return Candidate{}, false
	}

	for _, candidate := range candidates {
		if ratioHasRoom(candidate, leadType) {
			return candidate, true
		}
	}

	return candidates[0], true
}

// ratioHasRoom reports whether receiving a lead of this type keeps the
// candidate under its ratio target. A fresh candidate has a share of zero, so
// it has room exactly when the target for the type is above zero.
func ratioHasRoom(c Candidate, leadType leads.LeadType) bool {
	target := c.PremiumRatio
	count := c.Premium
	if leadType == leads.TypeRaw {
		target = 1 - c.PremiumRatio
		count = c.Raw
	}

	share := 0.0
	if c.Received > 0 {
		share = float64(count) / float64(c.Received)
	}
	return share < target
}
