// Package discount splits a bill across diners and applies per-person
// discounts (statutory Senior/PWD or a custom rate) to the discounted diners.
package discount

import (
	"strconv"
	"strings"

	"github.com/kiwari-pos/terminal/internal/enum"
	"github.com/shopspring/decimal"
)

// FixedRate is the statutory Senior/PWD discount rate.
var FixedRate = decimal.RequireFromString("0.20")

var hundred = decimal.NewFromInt(100)

// Row is one discount line as entered by staff. Count and CustomRate are kept
// as entered; anything unparseable counts as zero.
type Row struct {
	ID         int               `json:"id"`
	Kind       enum.DiscountKind `json:"type"`
	Count      string            `json:"count"`
	CustomRate string            `json:"custom_rate"`
}

// RowResult is the computed discount for one row.
type RowResult struct {
	ID       int             `json:"id"`
	Rate     decimal.Decimal `json:"rate"`
	Count    int             `json:"count"`
	Discount decimal.Decimal `json:"discount"`
}

// Result is the allocation for a bill.
type Result struct {
	PerPerson        decimal.Decimal `json:"per_person"`
	Rows             []RowResult     `json:"rows"`
	TotalDiscount    decimal.Decimal `json:"total_discount"`
	AmountDue        decimal.Decimal `json:"amount_due"`
	DiscountedPeople int             `json:"discounted_people"`
}

// Valid reports whether the discounted diners fit within the headcount.
// Settlement must be blocked when this is false.
func (r Result) Valid(headcount int) bool {
	return r.DiscountedPeople <= headcount
}

// Allocate computes per-row and total discounts. It never fails: figures are
// produced even for over-allocated rows so an invalid state can be displayed
// while it is being edited.
func Allocate(totalBill decimal.Decimal, headcount int, rows []Row) Result {
	if headcount <= 0 {
		return Result{
			PerPerson:     decimal.Zero,
			Rows:          []RowResult{},
			TotalDiscount: decimal.Zero,
			AmountDue:     totalBill,
		}
	}

	perPerson := totalBill.Div(decimal.NewFromInt(int64(headcount)))
	res := Result{
		PerPerson:     perPerson,
		Rows:          make([]RowResult, 0, len(rows)),
		TotalDiscount: decimal.Zero,
	}
	for _, row := range rows {
		count := ParseCount(row.Count)
		rate := RateFor(row)
		d := perPerson.Mul(rate).Mul(decimal.NewFromInt(int64(count)))

		res.TotalDiscount = res.TotalDiscount.Add(d)
		res.DiscountedPeople += count
		res.Rows = append(res.Rows, RowResult{ID: row.ID, Rate: rate, Count: count, Discount: d})
	}

	res.AmountDue = totalBill.Sub(res.TotalDiscount)
	if res.AmountDue.IsNegative() {
		res.AmountDue = decimal.Zero
	}
	return res
}

// RateFor resolves a row's effective rate as a fraction.
func RateFor(row Row) decimal.Decimal {
	if row.Kind.Fixed() {
		return FixedRate
	}
	if row.Kind != enum.DiscountCustom {
		return decimal.Zero
	}
	pct, err := decimal.NewFromString(strings.TrimSpace(row.CustomRate))
	if err != nil || pct.IsNegative() {
		return decimal.Zero
	}
	return pct.Div(hundred)
}

// ParseCount reads a person count; blanks, garbage and negatives are 0.
func ParseCount(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
