package dto

import (
	"time"

	"github.com/hostpanel/backend/internal/domain"
)

type CertificateResponse struct {
	ID              uint                     `json:"id"`
	DomainID        uint                     `json:"domain_id"`
	DomainName      string                   `json:"domain_name"`
	Status          domain.CertificateStatus `json:"status"`
	AutoRenew       bool                     `json:"auto_renew"`
	RenewalAttempts int                      `json:"renewal_attempts"`
	IssuedAt        *time.Time               `json:"issued_at,omitempty"`
	ExpiresAt       *time.Time               `json:"expires_at,omitempty"`
	DaysRemaining   *int                     `json:"days_remaining,omitempty"`
	LastError       string                   `json:"last_error,omitempty"`
	LastTaskID      string                   `json:"last_task_id,omitempty"`
	UpdatedAt       time.Time                `json:"updated_at"`
}

func CertificateToResponse(c *domain.SslCertificate, now time.Time) CertificateResponse {
	resp := CertificateResponse{
		ID:              c.ID,
		DomainID:        c.DomainID,
		DomainName:      c.DomainName,
		Status:          c.Status,
		AutoRenew:       c.AutoRenew,
		RenewalAttempts: c.RenewalAttempts,
		IssuedAt:        c.IssuedAt,
		ExpiresAt:       c.ExpiresAt,
		LastError:       c.LastError,
		LastTaskID:      c.LastTaskID,
		UpdatedAt:       c.UpdatedAt,
	}
	if c.ExpiresAt != nil {
		days := int(c.ExpiresAt.Sub(now).Hours() / 24)
		resp.DaysRemaining = &days
	}
	return resp
}

func CertificatesToResponse(certs []domain.SslCertificate, now time.Time) []CertificateResponse {
	responses := make([]CertificateResponse, len(certs))
	for i := range certs {
		responses[i] = CertificateToResponse(&certs[i], now)
	}
	return responses
}

type RenewResponse struct {
	Certificate uint         `json:"certificate_id"`
	Task        TaskResponse `json:"task"`
}
