package store

import (
	"context"
	"errors"
	"strings"

	"warungrekap/internal/domain"
)

var (
	ErrNotFound          = errors.New("not found")
	ErrInvalidInput      = errors.New("invalid input")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrEmptyCart         = errors.New("empty cart")
	ErrPersistence       = errors.New("persistence failure")
)

// TenantStore owns the durable per-tenant document. Load returns a default
// empty record for unknown tenants and never fails for that reason. Replace
// overwrites the whole document atomically: a concurrent reader sees either
// the old record or the new one, never a torn write. Neither method
// serializes callers against each other; that is the service's job.
type TenantStore interface {
	Load(ctx context.Context, tenant string) (domain.TenantRecord, error)
	Replace(ctx context.Context, tenant string, record domain.TenantRecord) error
}

// NormalizeTenant reduces a handle to the lowercase alphanumeric form used
// as the document address.
func NormalizeTenant(handle string) (string, error) {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(handle)) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", ErrInvalidInput
	}
	return b.String(), nil
}
