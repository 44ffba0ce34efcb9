package file

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"warungrekap/internal/domain"
	"warungrekap/internal/store"
)

func TestLoadMissingTenantReturnsEmptyRecord(t *testing.T) {
	s, err := New(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	record, err := s.Load(context.Background(), "warung")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if record.Menu == nil || record.Sales == nil || record.Expenses == nil || record.Credits == nil {
		t.Fatalf("expected non-nil slices in an empty record, got %+v", record)
	}
	if len(record.Menu) != 0 {
		t.Fatalf("expected empty menu, got %d items", len(record.Menu))
	}
}

func TestReplaceThenLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	record := domain.NewTenantRecord()
	record.Menu = append(record.Menu, domain.MenuItem{ID: 1, Name: "Es Teh", Price: 5000, Stock: 10})
	record.Credits = append(record.Credits, domain.CreditEntry{ID: 1, DebtorName: "Pak Joko", Amount: 25000, DateIssued: "2026-03-15"})

	if err := s.Replace(ctx, "warung", record); err != nil {
		t.Fatalf("replace: %v", err)
	}

	loaded, err := s.Load(ctx, "warung")
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(loaded.Menu) != 1 || loaded.Menu[0].Name != "Es Teh" {
		t.Fatalf("round trip lost the menu: %+v", loaded.Menu)
	}
	if len(loaded.Credits) != 1 || loaded.Credits[0].DebtorName != "Pak Joko" {
		t.Fatalf("round trip lost the credit: %+v", loaded.Credits)
	}

	// The document keeps the data_<tenant>.json name and Indonesian keys.
	raw, err := os.ReadFile(filepath.Join(dir, "data_warung.json"))
	if err != nil {
		t.Fatalf("read document: %v", err)
	}
	for _, key := range []string{`"menu"`, `"penjualan"`, `"pengeluaran"`, `"kasbon"`, `"nama"`, `"harga"`, `"stok"`} {
		if !strings.Contains(string(raw), key) {
			t.Fatalf("expected key %s in the stored document", key)
		}
	}
}

func TestLoadCorruptDocumentFallsBackToEmpty(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := os.WriteFile(filepath.Join(dir, "data_warung.json"), []byte("{not json"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}

	record, err := s.Load(context.Background(), "warung")
	if err != nil {
		t.Fatalf("load must not fail on a corrupt document: %v", err)
	}
	if len(record.Menu) != 0 {
		t.Fatalf("expected empty record, got %+v", record)
	}

	// The corrupt bytes stay on disk until the next successful Replace.
	raw, _ := os.ReadFile(filepath.Join(dir, "data_warung.json"))
	if string(raw) != "{not json" {
		t.Fatalf("load must not rewrite the document, got %q", raw)
	}
}

func TestReplaceLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}

	if err := s.Replace(context.Background(), "warung", domain.NewTenantRecord()); err != nil {
		t.Fatalf("replace: %v", err)
	}

	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	for _, entry := range entries {
		if strings.HasSuffix(entry.Name(), ".tmp") {
			t.Fatalf("temp file left behind: %s", entry.Name())
		}
	}
}

func TestTenantHandleNormalization(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir, nil)
	if err != nil {
		t.Fatalf("new store: %v", err)
	}
	ctx := context.Background()

	record := domain.NewTenantRecord()
	record.Menu = append(record.Menu, domain.MenuItem{ID: 1, Name: "Es Teh", Price: 5000, Stock: 10})
	if err := s.Replace(ctx, "Warung Bu Sri!", record); err != nil {
		t.Fatalf("replace: %v", err)
	}

	loaded, err := s.Load(ctx, "warungbusri")
	if err != nil {
		t.Fatalf("load via normalized handle: %v", err)
	}
	if len(loaded.Menu) != 1 {
		t.Fatalf("expected the same document under the normalized handle, got %+v", loaded)
	}

	if _, err := s.Load(ctx, "!!!"); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for a handle with no alphanumerics, got %v", err)
	}
}

func TestUserStoreCreateAndFind(t *testing.T) {
	dir := t.TempDir()
	users, err := NewUserStore(dir)
	if err != nil {
		t.Fatalf("new user store: %v", err)
	}
	ctx := context.Background()

	account := domain.UserAccount{Username: "BuSri", Password: "hash", Tenant: "busri"}
	if err := users.CreateUser(ctx, account); err != nil {
		t.Fatalf("create user: %v", err)
	}
	if err := users.CreateUser(ctx, account); !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for duplicate username, got %v", err)
	}

	found, err := users.FindUser(ctx, "busri")
	if err != nil {
		t.Fatalf("find user: %v", err)
	}
	if found.Tenant != "busri" {
		t.Fatalf("expected tenant busri, got %q", found.Tenant)
	}

	if _, err := users.FindUser(ctx, "nobody"); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
