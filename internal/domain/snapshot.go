package domain

import "time"

// Entry is one target's row in a Snapshot.
type Entry struct {
	Result     CertificateResult `json:"result"`
	Days       int               `json:"days"`
	Severity   Severity          `json:"severity"`
	ComputedAt time.Time         `json:"computed_at"`
}

// Snapshot is the complete result of one check cycle. It is never mutated
// after it has been published.
type Snapshot struct {
	Cycle      string           `json:"cycle"`
	ComputedAt time.Time        `json:"computed_at"`
	Order      []Target         `json:"order"`
	Entries    map[Target]Entry `json:"entries"`
}

// NewSnapshot classifies results and keys them by target, keeping the order
// the results were given in.
func NewSnapshot(cycle string, results []CertificateResult, now time.Time) *Snapshot {
	s := &Snapshot{
		Cycle:      cycle,
		ComputedAt: now,
		Order:      make([]Target, 0, len(results)),
		Entries:    make(map[Target]Entry, len(results)),
	}
	for _, r := range results {
		sev, days := Classify(r, now)
		if _, dup := s.Entries[r.Target]; !dup {
			s.Order = append(s.Order, r.Target)
		}
		s.Entries[r.Target] = Entry{Result: r, Days: days, Severity: sev, ComputedAt: now}
	}
	return s
}

// Ordered returns the entries in target-list order.
func (s *Snapshot) Ordered() []Entry {
	if s == nil {
		return nil
	}
	out := make([]Entry, 0, len(s.Order))
	for _, t := range s.Order {
		out = append(out, s.Entries[t])
	}
	return out
}

// Counts returns the number of entries per tier; every tier is present.
func (s *Snapshot) Counts() map[Severity]int {
	c := make(map[Severity]int, len(Severities))
	for _, sev := range Severities {
		c[sev] = 0
	}
	if s == nil {
		return c
	}
	for _, e := range s.Entries {
		c[e.Severity]++
	}
	return c
}

// Alertable returns the entries whose tier is alertable, in target order.
func (s *Snapshot) Alertable() []Entry {
	var out []Entry
	for _, e := range s.Ordered() {
		if e.Severity.Alertable() {
			out = append(out, e)
		}
	}
	return out
}
