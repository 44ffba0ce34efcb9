package memory

import (
	"context"
	"sync"

	"warungrekap/internal/domain"
	"warungrekap/internal/store"
)

// Store is an in-memory TenantStore used by tests and dev mode. Records are
// cloned on the way in and out so callers never share slices with the store.
type Store struct {
	mu      sync.RWMutex
	records map[string]domain.TenantRecord
}

func New() *Store {
	return &Store{records: make(map[string]domain.TenantRecord)}
}

// NewSeeded returns a store with a small demo catalog for one tenant,
// handy when running without a database or data directory.
func NewSeeded() *Store {
	s := New()
	record := domain.NewTenantRecord()
	record.Menu = []domain.MenuItem{
		{ID: 1, Name: "Es Teh Manis", Price: 5000, Stock: 40},
		{ID: 2, Name: "Nasi Goreng", Price: 15000, Stock: 25},
		{ID: 3, Name: "Mie Ayam", Price: 12000, Stock: 20},
		{ID: 4, Name: "Kopi Hitam", Price: 6000, Stock: 30},
	}
	s.records["warung"] = record
	return s
}

func (s *Store) Load(ctx context.Context, tenant string) (domain.TenantRecord, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.TenantRecord{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	record, ok := s.records[tenant]
	if !ok {
		return domain.NewTenantRecord(), nil
	}
	return record.Clone(), nil
}

func (s *Store) Replace(ctx context.Context, tenant string, record domain.TenantRecord) error {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.records[tenant] = record.Clone()
	return nil
}
