package cache

import (
	"context"
	"time"

	"warungrekap/internal/domain"
)

// SummaryCache holds computed aggregation results. Invalidate is called by
// every mutating operation for the tenant, so a cached summary can never
// outlive the ledger entries it was folded from.
type SummaryCache interface {
	GetDaily(ctx context.Context, tenant, date string) (*domain.DailySummary, bool, error)
	SetDaily(ctx context.Context, tenant, date string, value *domain.DailySummary, ttl time.Duration) error
	GetMonthly(ctx context.Context, tenant, period string) (*domain.MonthlySummary, bool, error)
	SetMonthly(ctx context.Context, tenant, period string, value *domain.MonthlySummary, ttl time.Duration) error
	Invalidate(ctx context.Context, tenant string) error
}

type NoopSummaryCache struct{}

func (NoopSummaryCache) GetDaily(_ context.Context, _, _ string) (*domain.DailySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) SetDaily(_ context.Context, _, _ string, _ *domain.DailySummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) GetMonthly(_ context.Context, _, _ string) (*domain.MonthlySummary, bool, error) {
	return nil, false, nil
}

func (NoopSummaryCache) SetMonthly(_ context.Context, _, _ string, _ *domain.MonthlySummary, _ time.Duration) error {
	return nil
}

func (NoopSummaryCache) Invalidate(_ context.Context, _ string) error {
	return nil
}
