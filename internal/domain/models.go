package domain

import "time"

// Date layouts used throughout the ledger. Dates are stored as plain strings
// so the persisted document stays byte-compatible with existing data files.
const (
	DateLayout  = "2006-01-02"
	MonthLayout = "2006-01"
)

// TenantRecord is the unit of atomic persistence: one whole document per
// tenant. The JSON keys are the Indonesian names used by existing
// data_<tenant>.json files.
type TenantRecord struct {
	Menu     []MenuItem      `json:"menu"`
	Sales    []SaleRecord    `json:"penjualan"`
	Expenses []ExpenseRecord `json:"pengeluaran"`
	Credits  []CreditEntry   `json:"kasbon"`
}

// NewTenantRecord returns an empty record with non-nil slices so a fresh
// tenant serializes as {"menu": [], ...} rather than nulls.
func NewTenantRecord() TenantRecord {
	return TenantRecord{
		Menu:     []MenuItem{},
		Sales:    []SaleRecord{},
		Expenses: []ExpenseRecord{},
		Credits:  []CreditEntry{},
	}
}

// Clone returns a deep copy. Stores hand out clones so callers can never
// mutate shared state behind the per-tenant lock's back.
func (r TenantRecord) Clone() TenantRecord {
	out := TenantRecord{
		Menu:     make([]MenuItem, len(r.Menu)),
		Sales:    make([]SaleRecord, len(r.Sales)),
		Expenses: make([]ExpenseRecord, len(r.Expenses)),
		Credits:  make([]CreditEntry, len(r.Credits)),
	}
	copy(out.Menu, r.Menu)
	copy(out.Sales, r.Sales)
	copy(out.Expenses, r.Expenses)
	copy(out.Credits, r.Credits)
	return out
}

// NextMenuItemID assigns max existing id + 1. Ids are never reused, even
// after deletions.
func (r TenantRecord) NextMenuItemID() int {
	next := 1
	for _, item := range r.Menu {
		if item.ID >= next {
			next = item.ID + 1
		}
	}
	return next
}

func (r TenantRecord) NextCreditID() int {
	next := 1
	for _, entry := range r.Credits {
		if entry.ID >= next {
			next = entry.ID + 1
		}
	}
	return next
}

// FindMenuItem returns a pointer into r.Menu, or nil when the id is absent.
func (r *TenantRecord) FindMenuItem(id int) *MenuItem {
	for i := range r.Menu {
		if r.Menu[i].ID == id {
			return &r.Menu[i]
		}
	}
	return nil
}

func (r *TenantRecord) FindCredit(id int) *CreditEntry {
	for i := range r.Credits {
		if r.Credits[i].ID == id {
			return &r.Credits[i]
		}
	}
	return nil
}

type MenuItem struct {
	ID    int    `json:"id"`
	Name  string `json:"nama"`
	Price int64  `json:"harga"`
	Stock int    `json:"stok"`
}

// SaleRecord is immutable history. Name and price are snapshots taken at
// finalization time; later catalog edits never touch them.
type SaleRecord struct {
	ItemID       int    `json:"menu_id"`
	CustomerName string `json:"nama_pemesan"`
	ItemName     string `json:"nama"`
	UnitPrice    int64  `json:"harga"`
	Quantity     int    `json:"jumlah"`
	Date         string `json:"tanggal"`
}

type ExpenseRecord struct {
	Description string `json:"deskripsi"`
	Amount      int64  `json:"nominal"`
	Date        string `json:"tanggal"`
}

// CreditEntry is a running-tab (kasbon) debt. Only Settled may change after
// creation, and only from false to true.
type CreditEntry struct {
	ID         int    `json:"id"`
	DebtorName string `json:"nama"`
	Amount     int64  `json:"nominal"`
	DateIssued string `json:"tanggal_ambil"`
	Settled    bool   `json:"lunas"`
}

type OrderLine struct {
	ItemID    int    `json:"item_id"`
	ItemName  string `json:"item_name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// OrderSummary reports what Finalize actually committed. Lines whose item
// vanished between cart building and commit are dropped, not failed, and
// counted in DroppedLineCount. OversoldItemIDs lists items whose stock went
// negative because of an interleaved stock adjustment.
type OrderSummary struct {
	CustomerName     string      `json:"customer_name"`
	Date             string      `json:"date"`
	Lines            []OrderLine `json:"lines"`
	Subtotal         int64       `json:"subtotal"`
	AppliedLineCount int         `json:"applied_line_count"`
	DroppedLineCount int         `json:"dropped_line_count"`
	OversoldItemIDs  []int       `json:"oversold_item_ids,omitempty"`
}

type DailySummary struct {
	Date    string `json:"date"`
	Income  int64  `json:"income"`
	Outflow int64  `json:"outflow"`
	Net     int64  `json:"net"`
}

// MonthlySummary always carries one PerDay entry per calendar day of the
// period, zero-filled for days with no activity.
type MonthlySummary struct {
	Period       string         `json:"period"`
	PerDay       []DailySummary `json:"per_day"`
	TotalIncome  int64          `json:"total_income"`
	TotalOutflow int64          `json:"total_outflow"`
	NetProfit    int64          `json:"net_profit"`
}

type Dashboard struct {
	Tenant            string       `json:"tenant"`
	Today             DailySummary `json:"today"`
	ActiveCreditCount int          `json:"active_credit_count"`
	ActiveDebtors     []string     `json:"active_debtors"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	AccessToken string `json:"access_token"`
	Tenant      string `json:"tenant"`
	ExpiresAt   string `json:"expires_at"`
}

// Actor is the authenticated caller. Tenant is the resolved tenant handle;
// the core operations only ever see that handle, never credentials.
type Actor struct {
	Username string
	Tenant   string
}

// UserAccount is the persistence model of the credential store (users.json).
type UserAccount struct {
	Username  string    `json:"username"`
	Password  string    `json:"password"`
	Tenant    string    `json:"tenant"`
	CreatedAt time.Time `json:"created_at"`
}
