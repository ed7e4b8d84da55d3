package distribution

import (
	"testing"

	"leadflow_backend/internal/leads"

	"github.com/google/uuid"
)

func TestSelectCandidate_NoCandidates(t *testing.T) {
	if _, ok := SelectCandidate(nil, leads.TypePremium); ok {
		t.Fatal("expected no selection from an empty candidate set")
	}
}

func TestSelectCandidate_FreshPartnerWithRatioTarget(t *testing.T) {
	// 0/0 counts as a zero share, so the first premium lead fits any positive
	// premium ratio.
	c := Candidate{PartnerID: uuid.New(), DailyLimit: 10, PremiumRatio: 0.7}

	selected, ok := SelectCandidate([]Candidate{c}, leads.TypePremium)
	if !ok {
		t.Fatal("expected a selection")
	}
	if selected.PartnerID != c.PartnerID {
		t.Fatal("expected the fresh partner with a positive premium ratio")
	}
}

func TestSelectCandidate_FreshPartnerZeroRatioYieldsToHeadroom(t *testing.T) {
	// A partner that wants no premium leads must not absorb one just because
	// it has received nothing today; the candidate with genuine premium
	// headroom wins.
	fresh := Candidate{PartnerID: uuid.New(), DailyLimit: 10, PremiumRatio: 0.0}
	room := Candidate{PartnerID: uuid.New(), PremiumRatio: 0.7, Received: 10, Premium: 5, Raw: 5}

	selected, ok := SelectCandidate([]Candidate{fresh, room}, leads.TypePremium)
	if !ok {
		t.Fatal("expected a selection")
	}
	if selected.PartnerID != room.PartnerID {
		t.Fatal("expected the partner with premium headroom over the zero-ratio fresh partner")
	}
}

func TestSelectCandidate_PrefersPartnerWithRatioRoom(t *testing.T) {
	// First partner is at its 70% premium target (7 of 10); second has room.
	full := Candidate{PartnerID: uuid.New(), PremiumRatio: 0.7, Received: 10, Premium: 7, Raw: 3}
	room := Candidate{PartnerID: uuid.New(), PremiumRatio: 0.7, Received: 10, Premium: 5, Raw: 5}

	selected, ok := SelectCandidate([]Candidate{full, room}, leads.TypePremium)
	if !ok {
		t.Fatal("expected a selection")
	}
	if selected.PartnerID != room.PartnerID {
		t.Fatal("expected the partner with premium headroom")
	}
}

func TestSelectCandidate_RawLeadUsesComplementRatio(t *testing.T) {
	// 0.7 premium ratio leaves 30% room for raw. First is saturated on raw.
	rawFull := Candidate{PartnerID: uuid.New(), PremiumRatio: 0.7, Received: 10, Premium: 7, Raw: 3}
	rawRoom := Candidate{PartnerID: uuid.New(), PremiumRatio: 0.7, Received: 10, Premium: 9, Raw: 1}

	selected, ok := SelectCandidate([]Candidate{rawFull, rawRoom}, leads.TypeRaw)
	if !ok {
		t.Fatal("expected a selection")
	}
	if selected.PartnerID != rawRoom.PartnerID {
		t.Fatal("expected the partner with raw headroom")
	}
}

func TestSelectCandidate_FallsBackToLeastLoaded(t *testing.T) {
	// Nobody has premium headroom. Candidates arrive least-loaded first, so
	// the first entry must win rather than the lead being refused.
	first := Candidate{PartnerID: uuid.New(), PremiumRatio: 0.5, Received: 4, Premium: 2, Raw: 2}
	second := Candidate{PartnerID: uuid.New(), PremiumRatio: 0.5, Received: 8, Premium: 4, Raw: 4}

	selected, ok := SelectCandidate([]Candidate{first, second}, leads.TypePremium)
	if !ok {
		t.Fatal("expected a fallback selection")
	}
	if selected.PartnerID != first.PartnerID {
		t.Fatal("expected the least-loaded candidate as fallback")
	}
}
