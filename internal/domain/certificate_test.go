package domain

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCanTransitionCertificate(t *testing.T) {
	assert.True(t, CanTransitionCertificate(CertificateStatusActive, CertificateStatusRenewing))
	assert.True(t, CanTransitionCertificate(CertificateStatusRenewing, CertificateStatusActive))
	assert.True(t, CanTransitionCertificate(CertificateStatusFailed, CertificateStatusRenewing))
	assert.True(t, CanTransitionCertificate(CertificateStatusExpired, CertificateStatusRevoked))

	assert.False(t, CanTransitionCertificate(CertificateStatusRevoked, CertificateStatusRenewing))
	assert.False(t, CanTransitionCertificate(CertificateStatusRenewing, CertificateStatusRenewing))
	assert.False(t, CanTransitionCertificate(CertificateStatusPending, CertificateStatusRevoked))
}

func TestSslCertificate_RestingStatus(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	past := now.Add(-time.Hour)
	future := now.Add(10 * 24 * time.Hour)
	issued := now.Add(-80 * 24 * time.Hour)

	assert.Equal(t, CertificateStatusPending, (&SslCertificate{}).RestingStatus(now))
	assert.Equal(t, CertificateStatusActive, (&SslCertificate{IssuedAt: &issued, ExpiresAt: &future}).RestingStatus(now))
	assert.Equal(t, CertificateStatusExpired, (&SslCertificate{IssuedAt: &issued, ExpiresAt: &past}).RestingStatus(now))
}

func TestSslCertificate_Expiry(t *testing.T) {
	now := time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
	in5d := now.Add(5 * 24 * time.Hour)
	cert := &SslCertificate{ExpiresAt: &in5d}

	assert.True(t, cert.ExpiresWithin(now, 30*24*time.Hour))
	assert.False(t, cert.ExpiresWithin(now, 24*time.Hour))
	assert.False(t, cert.IsExpired(now))
	assert.True(t, cert.IsExpired(in5d))
	assert.False(t, (&SslCertificate{}).ExpiresWithin(now, time.Hour))
}

func TestSslCertificate_Ref(t *testing.T) {
	ref := (&SslCertificate{ID: 42}).Ref()
	assert.Equal(t, RelatedCertificate, ref.Kind)
	assert.Equal(t, "42", ref.ID)
	assert.Equal(t, "certificate:42", ref.String())
}
