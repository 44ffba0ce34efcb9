package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"warungrekap/internal/cache"
	"warungrekap/internal/domain"
	"warungrekap/internal/store"
)

// Engine is the aggregation engine: a pure fold over an already-loaded
// tenant record, with a cache in front. It performs no I/O of its own beyond
// the cache, so a summary is always consistent with the single record
// snapshot it was computed from.
type Engine struct {
	cache cache.SummaryCache
	ttl   time.Duration
}

func NewEngine(c cache.SummaryCache, ttl time.Duration) *Engine {
	if c == nil {
		c = cache.NoopSummaryCache{}
	}
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Engine{cache: c, ttl: ttl}
}

// Daily computes income, outflow and net for one calendar date.
func (e *Engine) Daily(ctx context.Context, tenant string, record domain.TenantRecord, date string) (domain.DailySummary, error) {
	if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return domain.DailySummary{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}

	if cached, ok, err := e.cache.GetDaily(ctx, tenant, date); err == nil && ok {
		return *cached, nil
	}

	summary := foldDay(record, date)
	_ = e.cache.SetDaily(ctx, tenant, date, &summary, e.ttl)
	return summary, nil
}

// Monthly produces one entry per calendar day of the period, zero-filled for
// days with no activity, plus month totals. The per-day slice length always
// equals the number of days in that month.
func (e *Engine) Monthly(ctx context.Context, tenant string, record domain.TenantRecord, period string) (domain.MonthlySummary, error) {
	start, err := time.Parse(domain.MonthLayout, period)
	if err != nil {
		return domain.MonthlySummary{}, fmt.Errorf("%w: period must be YYYY-MM", store.ErrInvalidInput)
	}

	if cached, ok, err := e.cache.GetMonthly(ctx, tenant, period); err == nil && ok {
		return *cached, nil
	}

	// Bucket by exact date first; one pass over each ledger instead of one
	// pass per day.
	income := make(map[string]int64)
	outflow := make(map[string]int64)
	prefix := period + "-"
	for _, sale := range record.Sales {
		if strings.HasPrefix(sale.Date, prefix) {
			income[sale.Date] += sale.UnitPrice * int64(sale.Quantity)
		}
	}
	for _, expense := range record.Expenses {
		if strings.HasPrefix(expense.Date, prefix) {
			outflow[expense.Date] += expense.Amount
		}
	}

	days := daysInMonth(start)
	summary := domain.MonthlySummary{
		Period: period,
		PerDay: make([]domain.DailySummary, 0, days),
	}
	for day := 1; day <= days; day++ {
		date := fmt.Sprintf("%s-%02d", period, day)
		entry := domain.DailySummary{
			Date:    date,
			Income:  income[date],
			Outflow: outflow[date],
		}
		entry.Net = entry.Income - entry.Outflow
		summary.PerDay = append(summary.PerDay, entry)
		summary.TotalIncome += entry.Income
		summary.TotalOutflow += entry.Outflow
	}
	summary.NetProfit = summary.TotalIncome - summary.TotalOutflow

	_ = e.cache.SetMonthly(ctx, tenant, period, &summary, e.ttl)
	return summary, nil
}

// Invalidate drops every cached summary for the tenant. Best effort: a cache
// failure must never fail the write that triggered it.
func (e *Engine) Invalidate(ctx context.Context, tenant string) {
	_ = e.cache.Invalidate(ctx, tenant)
}

func foldDay(record domain.TenantRecord, date string) domain.DailySummary {
	summary := domain.DailySummary{Date: date}
	for _, sale := range record.Sales {
		if sale.Date == date {
			summary.Income += sale.UnitPrice * int64(sale.Quantity)
		}
	}
	for _, expense := range record.Expenses {
		if expense.Date == date {
			summary.Outflow += expense.Amount
		}
	}
	summary.Net = summary.Income - summary.Outflow
	return summary
}

func daysInMonth(start time.Time) int {
	return start.AddDate(0, 1, -1).Day()
}
