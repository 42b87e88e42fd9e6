package settlement

import (
	"errors"

	"github.com/kiwari-pos/terminal/internal/discount"
	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/shopspring/decimal"
)

// Validation errors that block payment confirmation.
var (
	ErrInsufficientTender    = errors.New("amount received is less than amount due")
	ErrDiscountOverHeadcount = errors.New("discounted diners exceed headcount")
)

// Tender is the outcome of checking what the customer handed over.
type Tender struct {
	Valid  bool            `json:"valid"`
	Change decimal.Decimal `json:"change"`
}

// ValidateTender checks cash sufficiency. Non-cash methods are always valid
// and never produce change.
func ValidateTender(amountDue decimal.Decimal, method enum.PaymentMethod, received decimal.Decimal) Tender {
	if !method.IsCash() {
		return Tender{Valid: true, Change: decimal.Zero}
	}
	if received.LessThan(amountDue) {
		return Tender{Valid: false, Change: decimal.Zero}
	}
	return Tender{Valid: true, Change: received.Sub(amountDue)}
}

// CanConfirm combines tender sufficiency with the discount headcount rule.
func CanConfirm(t Tender, d discount.Result, headcount int) error {
	if !d.Valid(headcount) {
		return ErrDiscountOverHeadcount
	}
	if !t.Valid {
		return ErrInsufficientTender
	}
	return nil
}
