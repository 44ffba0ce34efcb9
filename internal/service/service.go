package service

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"warungrekap/internal/cart"
	"warungrekap/internal/domain"
	"warungrekap/internal/report"
	"warungrekap/internal/store"
)

// DefaultCustomerName is used when an order is started without a name.
const DefaultCustomerName = "Pelanggan"

// Service implements the core ledger operations. Every mutation is a whole
// load→modify→replace cycle against the TenantStore; a per-tenant mutex
// serializes those cycles so two concurrent writers can never both start
// from the same stale record and silently drop one another's delta. Distinct
// tenants never contend. Reads work from a loaded snapshot without the lock.
type Service struct {
	tenants store.TenantStore
	reports *report.Engine
	logger  *zap.Logger
	now     func() time.Time

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func New(tenants store.TenantStore, reports *report.Engine, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		tenants: tenants,
		reports: reports,
		logger:  logger,
		now:     time.Now,
		locks:   make(map[string]*sync.Mutex),
	}
}

func (s *Service) today() string {
	return s.now().UTC().Format(domain.DateLayout)
}

func (s *Service) tenantLock(tenant string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()

	lock, ok := s.locks[tenant]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[tenant] = lock
	}
	return lock
}

// mutate runs one load→modify→replace cycle under the tenant's lock. fn
// reports whether it changed the record; when it did not, no replace is
// issued and the stored bytes stay untouched. The cycle contains no blocking
// external calls besides the store itself, so the lock cannot wedge.
func (s *Service) mutate(ctx context.Context, tenant string, fn func(record *domain.TenantRecord) (bool, error)) error {
	lock := s.tenantLock(tenant)
	lock.Lock()
	defer lock.Unlock()

	record, err := s.tenants.Load(ctx, tenant)
	if err != nil {
		return err
	}
	changed, err := fn(&record)
	if err != nil {
		return err
	}
	if !changed {
		return nil
	}
	if err := s.tenants.Replace(ctx, tenant, record); err != nil {
		return err
	}
	s.reports.Invalidate(ctx, tenant)
	return nil
}

// --- catalog ---

func (s *Service) AddItem(ctx context.Context, tenant, name string, price int64, stock int) (domain.MenuItem, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.MenuItem{}, err
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return domain.MenuItem{}, fmt.Errorf("%w: item name is required", store.ErrInvalidInput)
	}
	if price < 0 || stock < 0 {
		return domain.MenuItem{}, fmt.Errorf("%w: price and stock must be non-negative", store.ErrInvalidInput)
	}

	var created domain.MenuItem
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		created = domain.MenuItem{
			ID:    record.NextMenuItemID(),
			Name:  name,
			Price: price,
			Stock: stock,
		}
		record.Menu = append(record.Menu, created)
		return true, nil
	})
	if err != nil {
		return domain.MenuItem{}, err
	}

	s.logger.Info("menu item added",
		zap.String("tenant", tenant), zap.Int("item_id", created.ID), zap.String("name", created.Name))
	return created, nil
}

func (s *Service) EditItemName(ctx context.Context, tenant string, id int, newName string) (domain.MenuItem, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.MenuItem{}, err
	}
	newName = strings.TrimSpace(newName)
	if newName == "" {
		return domain.MenuItem{}, fmt.Errorf("%w: item name is required", store.ErrInvalidInput)
	}

	var updated domain.MenuItem
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		item := record.FindMenuItem(id)
		if item == nil {
			return false, store.ErrNotFound
		}
		item.Name = newName
		updated = *item
		return true, nil
	})
	if err != nil {
		return domain.MenuItem{}, err
	}
	return updated, nil
}

func (s *Service) EditItemPrice(ctx context.Context, tenant string, id int, newPrice int64) (domain.MenuItem, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.MenuItem{}, err
	}
	if newPrice < 0 {
		return domain.MenuItem{}, fmt.Errorf("%w: price must be non-negative", store.ErrInvalidInput)
	}

	var updated domain.MenuItem
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		item := record.FindMenuItem(id)
		if item == nil {
			return false, store.ErrNotFound
		}
		item.Price = newPrice
		updated = *item
		return true, nil
	})
	if err != nil {
		return domain.MenuItem{}, err
	}
	return updated, nil
}

// UpdateItem applies a partial edit of name and price as a single write.
// Both fields are validated before the record is loaded, so a rejected edit
// never half-applies.
func (s *Service) UpdateItem(ctx context.Context, tenant string, id int, name *string, price *int64) (domain.MenuItem, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.MenuItem{}, err
	}
	if name != nil {
		trimmed := strings.TrimSpace(*name)
		if trimmed == "" {
			return domain.MenuItem{}, fmt.Errorf("%w: item name is required", store.ErrInvalidInput)
		}
		name = &trimmed
	}
	if price != nil && *price < 0 {
		return domain.MenuItem{}, fmt.Errorf("%w: price must be non-negative", store.ErrInvalidInput)
	}
	if name == nil && price == nil {
		return domain.MenuItem{}, fmt.Errorf("%w: nothing to update", store.ErrInvalidInput)
	}

	var updated domain.MenuItem
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		item := record.FindMenuItem(id)
		if item == nil {
			return false, store.ErrNotFound
		}
		if name != nil {
			item.Name = *name
		}
		if price != nil {
			item.Price = *price
		}
		updated = *item
		return true, nil
	})
	if err != nil {
		return domain.MenuItem{}, err
	}
	return updated, nil
}

// DeleteItem removes the item from the catalog. Past sale records keep their
// own name/price snapshots, so history survives the deletion.
func (s *Service) DeleteItem(ctx context.Context, tenant string, id int) error {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return err
	}

	return s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		kept := record.Menu[:0]
		found := false
		for _, item := range record.Menu {
			if item.ID == id {
				found = true
				continue
			}
			kept = append(kept, item)
		}
		if !found {
			return false, store.ErrNotFound
		}
		record.Menu = kept
		return true, nil
	})
}

// SetStock is an absolute set, not a delta; it is the operator's "sesuaikan
// stok" action.
func (s *Service) SetStock(ctx context.Context, tenant string, id int, newStock int) (domain.MenuItem, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.MenuItem{}, err
	}
	if newStock < 0 {
		return domain.MenuItem{}, fmt.Errorf("%w: stock must be non-negative", store.ErrInvalidInput)
	}

	var updated domain.MenuItem
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		item := record.FindMenuItem(id)
		if item == nil {
			return false, store.ErrNotFound
		}
		item.Stock = newStock
		updated = *item
		return true, nil
	})
	if err != nil {
		return domain.MenuItem{}, err
	}
	return updated, nil
}

// ListItems returns the catalog ordered by name, ties broken by id.
func (s *Service) ListItems(ctx context.Context, tenant string) ([]domain.MenuItem, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return nil, err
	}

	record, err := s.tenants.Load(ctx, tenant)
	if err != nil {
		return nil, err
	}

	items := record.Menu
	sort.Slice(items, func(i, j int) bool {
		if items[i].Name != items[j].Name {
			return items[i].Name < items[j].Name
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// --- cart session ---

// StartCart opens an ephemeral cart session. The session is owned by the
// caller (one conversation); the service holds no reference to it.
func (s *Service) StartCart(tenant, customerName string) (*cart.Session, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return nil, err
	}
	customerName = strings.TrimSpace(customerName)
	if customerName == "" {
		customerName = DefaultCustomerName
	}
	return cart.New(tenant, customerName), nil
}

// AddCartLine increments the line for itemID by one if the live catalog has
// stock left beyond what the cart already claims. On InsufficientStock the
// cart is left unchanged; the caller may retry with another item.
func (s *Service) AddCartLine(ctx context.Context, sess *cart.Session, itemID int) error {
	record, err := s.tenants.Load(ctx, sess.Tenant)
	if err != nil {
		return err
	}

	item := record.FindMenuItem(itemID)
	if item == nil {
		return store.ErrNotFound
	}
	if item.Stock-sess.Quantity(itemID) <= 0 {
		return fmt.Errorf("%w: %s", store.ErrInsufficientStock, item.Name)
	}
	sess.Add(itemID)
	return nil
}

// RemoveCartLine decrements the line by one; removing an absent item is not
// an error.
func (s *Service) RemoveCartLine(sess *cart.Session, itemID int) {
	sess.Remove(itemID)
}

// CartTotal prices the cart against the live catalog. Prices are not frozen
// while the cart is open; an operator price edit mid-cart shows up here
// immediately. Lines whose item has vanished contribute nothing.
func (s *Service) CartTotal(ctx context.Context, sess *cart.Session) (int64, error) {
	record, err := s.tenants.Load(ctx, sess.Tenant)
	if err != nil {
		return 0, err
	}

	var total int64
	for itemID, qty := range sess.Lines() {
		if item := record.FindMenuItem(itemID); item != nil {
			total += item.Price * int64(qty)
		}
	}
	return total, nil
}

// --- order finalization ---

// Finalize commits a cart session: one load, per-line re-resolution against
// that fresh catalog, sale appends with name/price snapshots, stock
// decrements, one replace. The whole order is a single atomic write. Lines
// whose item vanished since the cart was built are dropped and counted, not
// failed. Stock is deliberately not clamped at zero: the cart bounded
// quantities against an earlier snapshot, so an interleaved stock adjustment
// can drive it negative, and that inconsistency must stay observable.
func (s *Service) Finalize(ctx context.Context, sess *cart.Session) (domain.OrderSummary, error) {
	if sess == nil || sess.Empty() {
		return domain.OrderSummary{}, store.ErrEmptyCart
	}

	summary := domain.OrderSummary{
		CustomerName: sess.CustomerName,
		Date:         s.today(),
		Lines:        []domain.OrderLine{},
	}

	err := s.mutate(ctx, sess.Tenant, func(record *domain.TenantRecord) (bool, error) {
		for _, itemID := range sess.ItemIDs() {
			qty := sess.Quantity(itemID)
			item := record.FindMenuItem(itemID)
			if item == nil {
				summary.DroppedLineCount++
				continue
			}

			record.Sales = append(record.Sales, domain.SaleRecord{
				ItemID:       itemID,
				CustomerName: sess.CustomerName,
				ItemName:     item.Name,
				UnitPrice:    item.Price,
				Quantity:     qty,
				Date:         summary.Date,
			})
			item.Stock -= qty
			if item.Stock < 0 {
				summary.OversoldItemIDs = append(summary.OversoldItemIDs, itemID)
			}

			line := domain.OrderLine{
				ItemID:    itemID,
				ItemName:  item.Name,
				UnitPrice: item.Price,
				Quantity:  qty,
				LineTotal: item.Price * int64(qty),
			}
			summary.Lines = append(summary.Lines, line)
			summary.Subtotal += line.LineTotal
			summary.AppliedLineCount++
		}
		return summary.AppliedLineCount > 0, nil
	})
	if err != nil {
		return domain.OrderSummary{}, err
	}

	if len(summary.OversoldItemIDs) > 0 {
		s.logger.Warn("stock went negative during finalize",
			zap.String("tenant", sess.Tenant),
			zap.Ints("item_ids", summary.OversoldItemIDs))
	}
	return summary, nil
}

// --- credit ledger (kasbon) ---

func (s *Service) AddCredit(ctx context.Context, tenant, debtorName string, amount int64) (domain.CreditEntry, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.CreditEntry{}, err
	}
	debtorName = strings.TrimSpace(debtorName)
	if debtorName == "" {
		return domain.CreditEntry{}, fmt.Errorf("%w: debtor name is required", store.ErrInvalidInput)
	}
	if amount < 0 {
		return domain.CreditEntry{}, fmt.Errorf("%w: amount must be non-negative", store.ErrInvalidInput)
	}

	var created domain.CreditEntry
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		created = domain.CreditEntry{
			ID:         record.NextCreditID(),
			DebtorName: debtorName,
			Amount:     amount,
			DateIssued: s.today(),
			Settled:    false,
		}
		record.Credits = append(record.Credits, created)
		return true, nil
	})
	if err != nil {
		return domain.CreditEntry{}, err
	}
	return created, nil
}

func (s *Service) ListActiveCredits(ctx context.Context, tenant string) ([]domain.CreditEntry, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return nil, err
	}

	record, err := s.tenants.Load(ctx, tenant)
	if err != nil {
		return nil, err
	}

	active := make([]domain.CreditEntry, 0, len(record.Credits))
	for _, entry := range record.Credits {
		if !entry.Settled {
			active = append(active, entry)
		}
	}
	return active, nil
}

// SettleCredit flips the entry to settled. Settling an already-settled entry
// is an idempotent no-op: no error, no write.
func (s *Service) SettleCredit(ctx context.Context, tenant string, id int) (domain.CreditEntry, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.CreditEntry{}, err
	}

	var settled domain.CreditEntry
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		entry := record.FindCredit(id)
		if entry == nil {
			return false, store.ErrNotFound
		}
		settled = *entry
		if entry.Settled {
			return false, nil
		}
		entry.Settled = true
		settled = *entry
		return true, nil
	})
	if err != nil {
		return domain.CreditEntry{}, err
	}
	return settled, nil
}

// --- expense ledger ---

func (s *Service) AddExpense(ctx context.Context, tenant, description string, amount int64, date string) (domain.ExpenseRecord, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.ExpenseRecord{}, err
	}
	description = strings.TrimSpace(description)
	if description == "" {
		return domain.ExpenseRecord{}, fmt.Errorf("%w: description is required", store.ErrInvalidInput)
	}
	if amount < 0 {
		return domain.ExpenseRecord{}, fmt.Errorf("%w: amount must be non-negative", store.ErrInvalidInput)
	}
	if date == "" {
		date = s.today()
	} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return domain.ExpenseRecord{}, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}

	created := domain.ExpenseRecord{
		Description: description,
		Amount:      amount,
		Date:        date,
	}
	err = s.mutate(ctx, tenant, func(record *domain.TenantRecord) (bool, error) {
		record.Expenses = append(record.Expenses, created)
		return true, nil
	})
	if err != nil {
		return domain.ExpenseRecord{}, err
	}
	return created, nil
}

func (s *Service) ListExpensesByDate(ctx context.Context, tenant, date string) ([]domain.ExpenseRecord, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return nil, err
	}
	if date == "" {
		date = s.today()
	} else if _, err := time.Parse(domain.DateLayout, date); err != nil {
		return nil, fmt.Errorf("%w: date must be YYYY-MM-DD", store.ErrInvalidInput)
	}

	record, err := s.tenants.Load(ctx, tenant)
	if err != nil {
		return nil, err
	}

	matched := make([]domain.ExpenseRecord, 0, len(record.Expenses))
	for _, expense := range record.Expenses {
		if expense.Date == date {
			matched = append(matched, expense)
		}
	}
	return matched, nil
}

// --- aggregation ---

func (s *Service) DailySummary(ctx context.Context, tenant, date string) (domain.DailySummary, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.DailySummary{}, err
	}
	if date == "" {
		date = s.today()
	}

	record, err := s.tenants.Load(ctx, tenant)
	if err != nil {
		return domain.DailySummary{}, err
	}
	return s.reports.Daily(ctx, tenant, record, date)
}

func (s *Service) MonthlySummary(ctx context.Context, tenant, period string) (domain.MonthlySummary, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.MonthlySummary{}, err
	}

	record, err := s.tenants.Load(ctx, tenant)
	if err != nil {
		return domain.MonthlySummary{}, err
	}
	return s.reports.Monthly(ctx, tenant, record, period)
}

// Dashboard is the operator's landing view: today's numbers plus the active
// kasbon debtors, from one record snapshot.
func (s *Service) Dashboard(ctx context.Context, tenant string) (domain.Dashboard, error) {
	tenant, err := store.NormalizeTenant(tenant)
	if err != nil {
		return domain.Dashboard{}, err
	}

	record, err := s.tenants.Load(ctx, tenant)
	if err != nil {
		return domain.Dashboard{}, err
	}

	today, err := s.reports.Daily(ctx, tenant, record, s.today())
	if err != nil {
		return domain.Dashboard{}, err
	}

	dash := domain.Dashboard{
		Tenant:        tenant,
		Today:         today,
		ActiveDebtors: []string{},
	}
	for _, entry := range record.Credits {
		if !entry.Settled {
			dash.ActiveCreditCount++
			dash.ActiveDebtors = append(dash.ActiveDebtors, entry.DebtorName)
		}
	}
	return dash, nil
}
