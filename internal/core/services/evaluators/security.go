package evaluators

import (
	"context"
	"sort"

	"github.com/hostpanel/backend/internal/domain"
)

// BruteForceEvaluator flags sources with too many authentication failures
// inside the snapshot's security window.
type BruteForceEvaluator struct {
	threshold int
}

func NewBruteForceEvaluator(threshold int) *BruteForceEvaluator {
	return &BruteForceEvaluator{threshold: threshold}
}

func (e *BruteForceEvaluator) Name() string { return "brute-force" }

func (e *BruteForceEvaluator) Evaluate(_ context.Context, s *domain.SystemSnapshot) ([]domain.Alert, error) {
	if e.threshold <= 0 {
		return nil, nil
	}
	at := detectedAt(s)
	var alerts []domain.Alert
	for _, source := range sortedSources(s.AuthFailures) {
		count := s.AuthFailures[source]
		if count < e.threshold {
			continue
		}
		severity := domain.SeverityWarning
		if count >= 2*e.threshold {
			severity = domain.SeverityCritical
		}
		a := newAlert(e.Name(), domain.AlertCategorySecurity, severity, "brute-force:"+source, at,
			"%d failed logins from %s in the last %s", count, source, s.SecurityWindow)
		a.Labels = map[string]string{"source": source}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// IntrusionEvaluator flags sources repeatedly blocked by the firewall or
// intrusion detection.
type IntrusionEvaluator struct {
	threshold int
}

func NewIntrusionEvaluator(threshold int) *IntrusionEvaluator {
	return &IntrusionEvaluator{threshold: threshold}
}

func (e *IntrusionEvaluator) Name() string { return "intrusion" }

func (e *IntrusionEvaluator) Evaluate(_ context.Context, s *domain.SystemSnapshot) ([]domain.Alert, error) {
	if e.threshold <= 0 {
		return nil, nil
	}
	at := detectedAt(s)
	var alerts []domain.Alert
	for _, source := range sortedSources(s.IntrusionHits) {
		count := s.IntrusionHits[source]
		if count < e.threshold {
			continue
		}
		a := newAlert(e.Name(), domain.AlertCategorySecurity, domain.SeverityCritical, "intrusion:"+source, at,
			"%d intrusion attempts from %s in the last %s", count, source, s.SecurityWindow)
		a.Labels = map[string]string{"source": source}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

func sortedSources(counts domain.SecurityCounts) []string {
	out := make([]string, 0, len(counts))
	for k := range counts {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
