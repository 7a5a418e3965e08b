package system

import (
	"context"
	"errors"
	"fmt"
	"path"
	"strings"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
)

// opensslDateLayout matches "notAfter=Jan  2 15:04:05 2027 GMT".
const opensslDateLayout = "Jan _2 15:04:05 2006 MST"

type CertbotConfig struct {
	Email   string
	LiveDir string
	// Plugin is the certbot authenticator, "nginx" unless set.
	Plugin  string
}

// CertbotIssuer renews certificates through the certbot CLI and reads the
// new validity period back with openssl.
type CertbotIssuer struct {
	runner ports.CommandRunner
	cfg    CertbotConfig
}

func NewCertbotIssuer(runner ports.CommandRunner, cfg CertbotConfig) *CertbotIssuer {
	if cfg.LiveDir == "" {
		cfg.LiveDir = "/etc/letsencrypt/live"
	}
	if cfg.Plugin == "" {
		cfg.Plugin = "nginx"
	}
	return &CertbotIssuer{runner: runner, cfg: cfg}
}

func (c *CertbotIssuer) Renew(ctx context.Context, cert *domain.SslCertificate) (*ports.IssuedCertificate, error) {
	if cert.DomainName == "" || strings.ContainsAny(cert.DomainName, " /;&|`$'\"") {
		return nil, fmt.Errorf("certbot: invalid domain %q", cert.DomainName)
	}

	args := []string{
		"certonly", "--" + c.cfg.Plugin,
		"--non-interactive", "--agree-tos",
		"--cert-name", cert.DomainName,
		"-d", cert.DomainName,
	}
	if cert.IssuedAt != nil {
		args = append(args, "--force-renewal")
	}
	if c.cfg.Email != "" {
		args = append(args, "-m", c.cfg.Email)
	} else {
		args = append(args, "--register-unsafely-without-email")
	}
	if _, err := c.runner.Run(ctx, "certbot", args...); err != nil {
		return nil, fmt.Errorf("certbot: %w", err)
	}

	out, err := c.runner.Run(ctx, "openssl", "x509", "-noout", "-startdate", "-enddate",
		"-in", path.Join(c.cfg.LiveDir, cert.DomainName, "cert.pem"))
	if err != nil {
		return nil, fmt.Errorf("openssl: %w", err)
	}
	return parseValidity(out)
}

func parseValidity(out string) (*ports.IssuedCertificate, error) {
	var issued ports.IssuedCertificate
	for _, line := range strings.Split(out, "\n") {
		key, value, ok := strings.Cut(strings.TrimSpace(line), "=")
		if !ok {
			continue
		}
		t, err := time.Parse(opensslDateLayout, strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("openssl: bad date %q: %w", value, err)
		}
		switch key {
		case "notBefore":
			issued.IssuedAt = t
		case "notAfter":
			issued.ExpiresAt = t
		}
	}
	if issued.IssuedAt.IsZero() || issued.ExpiresAt.IsZero() {
		return nil, errors.New("openssl: validity dates missing from output")
	}
	return &issued, nil
}
