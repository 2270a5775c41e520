package domain

import (
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for alert history.
const DateLayout = "2006-01-02"

// Target is a hostname whose certificate is monitored.
type Target string

// NormalizeTarget trims and lower-cases a hostname so that the same host
// written differently maps to one identity.
func NormalizeTarget(raw string) Target {
	return Target(strings.ToLower(strings.TrimSpace(raw)))
}

func (t Target) String() string { return string(t) }

// CertificateResult is the outcome of probing one target. Either Expiry and
// Issuer are set, or Err is.
type CertificateResult struct {
	Target    Target      `json:"target"`
	Expiry    *time.Time  `json:"expiry,omitempty"`
	Issuer    string      `json:"issuer,omitempty"`
	Err       *ProbeError `json:"error,omitempty"`
	CheckedAt time.Time   `json:"checked_at"`
}

// Today returns the UTC calendar date of now in DateLayout.
func Today(now time.Time) string {
	return now.UTC().Format(DateLayout)
}
