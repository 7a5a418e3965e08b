package db

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/hostpanel/backend/internal/core/ports"
	"github.com/hostpanel/backend/internal/domain"
)

type MemoryCertificateRepository struct {
	certs  map[uint]*domain.SslCertificate
	nextID uint
	mu     sync.RWMutex
}

func NewMemoryCertificateRepository() *MemoryCertificateRepository {
	return &MemoryCertificateRepository{certs: make(map[uint]*domain.SslCertificate), nextID: 1}
}

var _ ports.CertificateRepository = (*MemoryCertificateRepository)(nil)

func (r *MemoryCertificateRepository) Create(_ context.Context, cert *domain.SslCertificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if cert.ID == 0 {
		cert.ID = r.nextID
	}
	if cert.ID >= r.nextID {
		r.nextID = cert.ID + 1
	}
	now := time.Now()
	cert.CreatedAt = now
	cert.UpdatedAt = now
	c := *cert
	r.certs[cert.ID] = &c
	return nil
}

func (r *MemoryCertificateRepository) GetByID(_ context.Context, id uint) (*domain.SslCertificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cert, ok := r.certs[id]
	if !ok {
		return nil, ports.ErrNotFound
	}
	c := *cert
	return &c, nil
}

func (r *MemoryCertificateRepository) GetAll(_ context.Context) ([]domain.SslCertificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]domain.SslCertificate, 0, len(r.certs))
	for _, c := range r.certs {
		out = append(out, *c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryCertificateRepository) GetRenewable(_ context.Context, cutoff time.Time, statuses []domain.CertificateStatus) ([]domain.SslCertificate, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []domain.SslCertificate
	for _, c := range r.certs {
		if !c.AutoRenew {
			continue
		}
		if c.ExpiresAt != nil && !c.ExpiresAt.Before(cutoff) {
			continue
		}
		for _, s := range statuses {
			if c.Status == s {
				out = append(out, *c)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryCertificateRepository) Update(_ context.Context, cert *domain.SslCertificate) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.certs[cert.ID]; !ok {
		return ports.ErrNotFound
	}
	cert.UpdatedAt = time.Now()
	c := *cert
	r.certs[cert.ID] = &c
	return nil
}
