package evaluators

import (
	"context"
	"strconv"
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

// CertificateExpiryEvaluator catches certificates the renewal machine is not
// keeping current.
type CertificateExpiryEvaluator struct {
	lead     time.Duration
	critical time.Duration
	quiet    time.Duration
}

// NewCertificateExpiryEvaluator alerts on certificates expiring within lead.
// For the first quiet stretch of the lead window, auto-renew certificates
// with no failed attempts are left to the renewal machine.
func NewCertificateExpiryEvaluator(lead, critical, quiet time.Duration) *CertificateExpiryEvaluator {
	if quiet < 0 || quiet >= lead {
		quiet = 0
	}
	return &CertificateExpiryEvaluator{lead: lead, critical: critical, quiet: quiet}
}

func (e *CertificateExpiryEvaluator) Name() string { return "certificate-expiry" }

func (e *CertificateExpiryEvaluator) Evaluate(_ context.Context, s *domain.SystemSnapshot) ([]domain.Alert, error) {
	at := detectedAt(s)
	var alerts []domain.Alert
	for i := range s.Certificates {
		cert := &s.Certificates[i]
		if cert.Status == domain.CertificateStatusRevoked || !cert.ExpiresWithin(at, e.lead) {
			continue
		}
		if !renewalStalled(cert) && !cert.ExpiresWithin(at, e.lead-e.quiet) {
			continue
		}

		severity := domain.SeverityWarning
		if cert.IsExpired(at) || cert.ExpiresWithin(at, e.critical) {
			severity = domain.SeverityCritical
		}

		id := strconv.FormatUint(uint64(cert.ID), 10)
		var a domain.Alert
		if cert.IsExpired(at) {
			a = newAlert(e.Name(), domain.AlertCategoryCertificate, severity, "cert-expiry:"+id+":"+cert.DomainName, at,
				"Certificate for %s expired on %s", cert.DomainName, cert.ExpiresAt.Format(time.RFC3339))
		} else {
			a = newAlert(e.Name(), domain.AlertCategoryCertificate, severity, "cert-expiry:"+id+":"+cert.DomainName, at,
				"Certificate for %s expires in %s (%s)", cert.DomainName, daysLeft(cert.ExpiresAt.Sub(at)), cert.ExpiresAt.Format(time.RFC3339))
		}
		a.Labels = map[string]string{"certificate_id": id, "domain": cert.DomainName, "status": string(cert.Status)}
		if cert.LastError != "" {
			a.Labels["last_error"] = cert.LastError
		}
		alerts = append(alerts, a)
	}
	return alerts, nil
}

// renewalStalled reports whether automatic renewal is off or has already
// been failing for the certificate.
func renewalStalled(c *domain.SslCertificate) bool {
	if !c.AutoRenew || c.RenewalAttempts > 0 {
		return true
	}
	return c.Status == domain.CertificateStatusFailed || c.Status == domain.CertificateStatusExpired
}

func daysLeft(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days < 1 {
		return strconv.Itoa(int(d.Hours())) + "h"
	}
	return strconv.Itoa(days) + "d"
}
