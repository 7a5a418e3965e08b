package domain

import (
	"strconv"
	"time"
)

type CertificateStatus string

const (
	CertificateStatusPending  CertificateStatus = "pending"
	CertificateStatusActive   CertificateStatus = "active"
	CertificateStatusRenewing CertificateStatus = "renewing"
	CertificateStatusExpired  CertificateStatus = "expired"
	CertificateStatusRevoked  CertificateStatus = "revoked"
	CertificateStatusFailed   CertificateStatus = "failed"
)

var certificateTransitions = map[CertificateStatus][]CertificateStatus{
	CertificateStatusPending:  {CertificateStatusRenewing, CertificateStatusActive, CertificateStatusFailed},
	CertificateStatusActive:   {CertificateStatusRenewing, CertificateStatusExpired, CertificateStatusRevoked},
	CertificateStatusRenewing: {CertificateStatusActive, CertificateStatusPending, CertificateStatusExpired, CertificateStatusFailed},
	CertificateStatusExpired:  {CertificateStatusRenewing, CertificateStatusRevoked},
	CertificateStatusFailed:   {CertificateStatusRenewing, CertificateStatusExpired},
}

// CanTransitionCertificate reports whether a certificate may move between
// the two statuses.
func CanTransitionCertificate(from, to CertificateStatus) bool {
	for _, s := range certificateTransitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

// SslCertificate is owned by exactly one domain.
type SslCertificate struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	DomainID        uint              `gorm:"not null;uniqueIndex" json:"domain_id"`
	DomainName      string            `gorm:"size:255;not null" json:"domain_name"`
	Status          CertificateStatus `gorm:"size:20;not null;default:'pending';index" json:"status"`
	AutoRenew       bool              `gorm:"default:true" json:"auto_renew"`
	RenewalAttempts int               `gorm:"default:0" json:"renewal_attempts"`
	IssuedAt        *time.Time        `json:"issued_at,omitempty"`
	ExpiresAt       *time.Time        `gorm:"index" json:"expires_at,omitempty"`
	LastError       string            `gorm:"type:text" json:"last_error,omitempty"`
	LastTaskID      string            `gorm:"size:36" json:"last_task_id,omitempty"`
}

// ExpiresWithin reports whether the certificate expires before now+lead.
// Certificates without an expiry never match.
func (c *SslCertificate) ExpiresWithin(now time.Time, lead time.Duration) bool {
	if c.ExpiresAt == nil {
		return false
	}
	return c.ExpiresAt.Before(now.Add(lead))
}

// IsExpired reports whether the certificate is past its expiry.
func (c *SslCertificate) IsExpired(now time.Time) bool {
	return c.ExpiresAt != nil && !c.ExpiresAt.After(now)
}

// RestingStatus is where a certificate settles after an unsuccessful renewal
// that has not exhausted its attempts.
func (c *SslCertificate) RestingStatus(now time.Time) CertificateStatus {
	switch {
	case c.IssuedAt == nil || c.ExpiresAt == nil:
		return CertificateStatusPending
	case c.IsExpired(now):
		return CertificateStatusExpired
	default:
		return CertificateStatusActive
	}
}

func (c *SslCertificate) Ref() RelatedRef {
	return RelatedRef{Kind: RelatedCertificate, ID: strconv.FormatUint(uint64(c.ID), 10)}
}
