package evaluators

import (
	"context"

	"github.com/hostpanel/backend/internal/domain"
)

type ServiceDownEvaluator struct {
	services []string
}

func NewServiceDownEvaluator(services []string) *ServiceDownEvaluator {
	return &ServiceDownEvaluator{services: append([]string(nil), services...)}
}

func (e *ServiceDownEvaluator) Name() string { return "service-down" }

// Evaluate raises a critical alert for every monitored service reported as
// stopped. Services missing from the snapshot could not be probed and are
// left alone.
func (e *ServiceDownEvaluator) Evaluate(_ context.Context, s *domain.SystemSnapshot) ([]domain.Alert, error) {
	at := detectedAt(s)
	var alerts []domain.Alert
	for _, name := range e.services {
		running, probed := s.Services[name]
		if !probed || running {
			continue
		}
		a := newAlert(e.Name(), domain.AlertCategoryService, domain.SeverityCritical, "service-down:"+name, at,
			"Service %s is not running", name)
		a.Labels = map[string]string{"service": name}
		alerts = append(alerts, a)
	}
	return alerts, nil
}
