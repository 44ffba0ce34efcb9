package httpapi

import (
	"errors"

	validation "github.com/go-ozzo/ozzo-validation"

	"warungrekap/internal/domain"
)

type RegisterRequest struct {
	Username        string `json:"username"`
	Password        string `json:"password"`
	ConfirmPassword string `json:"confirm_password"`
}

func (r RegisterRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Username, validation.Required, validation.Length(3, 32)),
		validation.Field(&r.Password, validation.Required, validation.Length(6, 72)),
		validation.Field(&r.ConfirmPassword, validation.Required),
	)
}

type AddMenuItemRequest struct {
	Name  string `json:"name"`
	Price int64  `json:"price"`
	Stock int    `json:"stock"`
}

func (r AddMenuItemRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Price, validation.Min(int64(0))),
		validation.Field(&r.Stock, validation.Min(0)),
	)
}

// UpdateMenuItemRequest carries a partial update; absent fields stay as they
// are.
type UpdateMenuItemRequest struct {
	Name  *string `json:"name"`
	Price *int64  `json:"price"`
}

func (r UpdateMenuItemRequest) Validate() error {
	if r.Name == nil && r.Price == nil {
		return errors.New("at least one of name or price is required")
	}
	return validation.ValidateStruct(&r,
		validation.Field(&r.Name, validation.Length(1, 100)),
		validation.Field(&r.Price, validation.Min(int64(0))),
	)
}

type SetStockRequest struct {
	Stock int `json:"stock"`
}

func (r SetStockRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Stock, validation.Min(0)),
	)
}

type StartOrderRequest struct {
	CustomerName string `json:"customer_name"`
}

func (r StartOrderRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.CustomerName, validation.Length(0, 100)),
	)
}

type OrderLineRequest struct {
	ItemID int `json:"item_id"`
}

func (r OrderLineRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.ItemID, validation.Required, validation.Min(1)),
	)
}

type AddCreditRequest struct {
	DebtorName string `json:"debtor_name"`
	Amount     int64  `json:"amount"`
}

func (r AddCreditRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.DebtorName, validation.Required, validation.Length(1, 100)),
		validation.Field(&r.Amount, validation.Min(int64(0))),
	)
}

type AddExpenseRequest struct {
	Description string `json:"description"`
	Amount      int64  `json:"amount"`
	Date        string `json:"date"`
}

func (r AddExpenseRequest) Validate() error {
	return validation.ValidateStruct(&r,
		validation.Field(&r.Description, validation.Required, validation.Length(1, 200)),
		validation.Field(&r.Amount, validation.Min(int64(0))),
		validation.Field(&r.Date, validation.Date(domain.DateLayout)),
	)
}
