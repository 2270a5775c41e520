package domain

import (
	"fmt"
	"math"
	"time"
)

// Severity is the tier a result is bucketed into. Higher values are worse.
type Severity int

const (
	Healthy Severity = iota
	Soon
	Warning
	Critical
	Expired
	ErrorState
)

// Dashboard tier boundaries in days. These are fixed; the alert threshold is
// configured separately and never moves them.
const (
	SoonDays     = 30
	WarningDays  = 15
	CriticalDays = 7
)

var severityNames = [...]string{"healthy", "soon", "warning", "critical", "expired", "error"}

// Severities lists every tier in order.
var Severities = []Severity{Healthy, Soon, Warning, Critical, Expired, ErrorState}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return fmt.Sprintf("severity(%d)", int(s))
	}
	return severityNames[s]
}

func (s Severity) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Severity) UnmarshalText(b []byte) error {
	for i, n := range severityNames {
		if n == string(b) {
			*s = Severity(i)
			return nil
		}
	}
	return fmt.Errorf("unknown severity %q", b)
}

// Alertable reports whether a tier is one the deduplicator should look at.
func (s Severity) Alertable() bool {
	return s >= Soon && s <= Expired
}

// DaysRemaining is floor((expiry-now) in days); negative once expired.
func DaysRemaining(expiry, now time.Time) int {
	return int(math.Floor(expiry.Sub(now).Hours() / 24))
}

// SeverityForDays maps a day count onto the fixed dashboard tiers.
func SeverityForDays(days int) Severity {
	switch {
	case days > SoonDays:
		return Healthy
	case days > WarningDays:
		return Soon
	case days > CriticalDays:
		return Warning
	case days >= 0:
		return Critical
	default:
		return Expired
	}
}

// Classify returns the tier of r as of now together with its day count.
// Errored results have no meaningful day count and report 0.
func Classify(r CertificateResult, now time.Time) (Severity, int) {
	if r.Err != nil || r.Expiry == nil {
		return ErrorState, 0
	}
	days := DaysRemaining(*r.Expiry, now)
	return SeverityForDays(days), days
}
