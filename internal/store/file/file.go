package file

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"

	"warungrekap/internal/domain"
	"warungrekap/internal/store"
)

// Store keeps one JSON document per tenant at <dir>/data_<tenant>.json.
// Replace writes a temp file in the same directory and renames it over the
// old document, so readers never observe a partially written record.
type Store struct {
	dir    string
	logger *zap.Logger
}

func New(dir string, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("%w: create data dir: %v", store.ErrPersistence, err)
	}
	return &Store{dir: dir, logger: logger}, nil
}

func (s *Store) path(tenant string) string {
	return filepath.Join(s.dir, "data_"+tenant+".json")
}

func (s *Store) Load(ctx context.Context, tenant string) (domain.TenantRecord, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.TenantRecord{}, err
	}

	raw, err := os.ReadFile(s.path(tenant))
	if os.IsNotExist(err) {
		return domain.NewTenantRecord(), nil
	}
	if err != nil {
		return domain.TenantRecord{}, fmt.Errorf("%w: read tenant %s: %v", store.ErrPersistence, tenant, err)
	}

	record := domain.NewTenantRecord()
	if err := json.Unmarshal(raw, &record); err != nil {
		// An unreadable document reads as an empty ledger, but visibly so;
		// the bytes on disk stay intact until the next successful Replace.
		s.logger.Warn("tenant document is not valid JSON, treating as empty",
			zap.String("tenant", tenant), zap.Error(err))
		return domain.NewTenantRecord(), nil
	}
	if record.Menu == nil {
		record.Menu = []domain.MenuItem{}
	}
	if record.Sales == nil {
		record.Sales = []domain.SaleRecord{}
	}
	if record.Expenses == nil {
		record.Expenses = []domain.ExpenseRecord{}
	}
	if record.Credits == nil {
		record.Credits = []domain.CreditEntry{}
	}
	return record, nil
}

func (s *Store) Replace(ctx context.Context, tenant string, record domain.TenantRecord) error {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return err
	}

	payload, err := json.MarshalIndent(record, "", "    ")
	if err != nil {
		return fmt.Errorf("%w: encode tenant %s: %v", store.ErrPersistence, tenant, err)
	}

	tmp, err := os.CreateTemp(s.dir, "data_"+tenant+".*.tmp")
	if err != nil {
		return fmt.Errorf("%w: temp file for tenant %s: %v", store.ErrPersistence, tenant, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(payload); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: write tenant %s: %v", store.ErrPersistence, tenant, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("%w: sync tenant %s: %v", store.ErrPersistence, tenant, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: close tenant %s: %v", store.ErrPersistence, tenant, err)
	}
	if err := os.Rename(tmpName, s.path(tenant)); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("%w: rename tenant %s: %v", store.ErrPersistence, tenant, err)
	}
	return nil
}
