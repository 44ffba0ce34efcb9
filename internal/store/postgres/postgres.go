package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"warungrekap/internal/domain"
	"warungrekap/internal/store"
)

// Store keeps the whole tenant document in a single JSONB column. Replace is
// one UPSERT, so the row-level atomicity of Postgres gives the same
// no-torn-reads guarantee as the file store's rename.
type Store struct {
	db *sql.DB
}

func New(ctx context.Context, databaseURL string) (*Store, error) {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, err
	}

	db.SetMaxIdleConns(8)
	db.SetMaxOpenConns(30)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 6*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &Store{db: db}
	if err := s.ensureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenant_records (
			tenant     TEXT PRIMARY KEY,
			record     JSONB NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)
	`)
	return err
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Load(ctx context.Context, tenant string) (domain.TenantRecord, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.TenantRecord{}, err
	}

	var raw []byte
	err = s.db.QueryRowContext(ctx, `
		SELECT record FROM tenant_records WHERE tenant = $1
	`, tenant).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.NewTenantRecord(), nil
	}
	if err != nil {
		return domain.TenantRecord{}, fmt.Errorf("%w: load tenant %s: %v", store.ErrPersistence, tenant, err)
	}

	record := domain.NewTenantRecord()
	if err := json.Unmarshal(raw, &record); err != nil {
		return domain.TenantRecord{}, fmt.Errorf("%w: decode tenant %s: %v", store.ErrPersistence, tenant, err)
	}
	return record, nil
}

func (s *Store) Replace(ctx context.Context, tenant string, record domain.TenantRecord) error {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return err
	}

	payload, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("%w: encode tenant %s: %v", store.ErrPersistence, tenant, err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tenant_records (tenant, record, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (tenant) DO UPDATE SET record = EXCLUDED.record, updated_at = now()
	`, tenant, payload)
	if err != nil {
		return fmt.Errorf("%w: replace tenant %s: %v", store.ErrPersistence, tenant, err)
	}
	return nil
}
