// Package phone provides phone number utilities.
// This is part of the platform layer and contains no business logic.
package phone

import (
	"strings"

	"github.com/nyaruka/phonenumbers"
)

// Shape selects the wire format a partner expects phone numbers in.
type Shape string

const (
	// ShapePlus is E.164 with a leading "+", e.g. +393331234567.
	ShapePlus Shape = "plus"
	// ShapeBare is E.164 without the leading "+", e.g. 393331234567.
	ShapeBare Shape = "bare"
	// ShapeZeroZero replaces "+" with the "00" international prefix, e.g. 00393331234567.
	ShapeZeroZero Shape = "zerozero"
	// ShapeLocal is the national significant number with a national prefix
	// where the region uses one, e.g. 03331234567.
	ShapeLocal Shape = "local"
)

// NormalizeE164 formats a phone number to E.164 using the given region as a
// parsing hint. If parsing fails, it returns the trimmed input.
func NormalizeE164(input, region string) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, regionOrDefault(region))
	if err != nil {
		return trimmed
	}

	if !phonenumbers.IsValidNumber(number) {
		return trimmed
	}

	return phonenumbers.Format(number, phonenumbers.E164)
}

// Format renders a phone number in the requested shape. The input is expected
// to be E.164 or near-E.164; on parse failure the input is returned unchanged
// so a malformed number still reaches the partner for manual follow-up.
func Format(input string, region string, shape Shape) string {
	trimmed := strings.TrimSpace(input)
	if trimmed == "" {
		return trimmed
	}

	number, err := phonenumbers.Parse(trimmed, regionOrDefault(region))
	if err != nil {
		return trimmed
	}

	e164 := phonenumbers.Format(number, phonenumbers.E164)

	switch shape {
	case ShapeBare:
		return strings.TrimPrefix(e164, "+")
	case ShapeZeroZero:
		return "00" + strings.TrimPrefix(e164, "+")
	case ShapeLocal:
		national := phonenumbers.Format(number, phonenumbers.NATIONAL)
		return stripNonDigits(national)
	default:
		return e164
	}
}

// Plausible reports whether a value looks like a dialable phone number: an
// optional "+" followed by 6 to 15 digits, allowing common separators.
// Region-aware validation happens later, during normalization.
func Plausible(input string) bool {
	trimmed := strings.TrimPrefix(strings.TrimSpace(input), "+")
	if trimmed == "" {
		return false
	}

	digits := 0
	for _, r := range trimmed {
		switch {
		case r >= '0' && r <= '9':
			digits++
		case r == ' ' || r == '-' || r == '(' || r == ')' || r == '.':
		default:
			return false
		}
	}
	return digits >= 6 && digits <= 15
}

func regionOrDefault(region string) string {
	region = strings.ToUpper(strings.TrimSpace(region))
	if len(region) != 2 {
		return "IT"
	}
	return region
}

func stripNonDigits(value string) string {
	var b strings.Builder
	b.Grow(len(value))
	for _, r := range value {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
