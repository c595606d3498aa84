// Package billing holds the money arithmetic shared by every store
// implementation. Amounts are integer minor units; GST is a percentage of the
// pre-discount subtotal rounded half away from zero.
package billing

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/shopspring/decimal"

	"tillbook/backend/internal/domain"
)

var (
	ErrDiscountTooLarge = errors.New("discount exceeds bill amount")
	ErrInvalidGST       = errors.New("gst percent must be between 0 and 100")
	ErrNegativeDiscount = errors.New("discount must not be negative")
	ErrAmountOverflow   = errors.New("amount is too large")
	ErrQuantityOverflow = errors.New("quantity is too large")
)

var (
	hundred  = decimal.NewFromInt(100)
	maxMinor = decimal.NewFromInt(math.MaxInt64)
)

type Totals struct {
	Subtotal  domain.Money
	GSTAmount domain.Money
	Discount  domain.Money
	Total     domain.Money
}

func Compute(lines []domain.BillLine, gstPercent float64, discount domain.Money) (Totals, error) {
	if gstPercent < 0 || gstPercent > 100 {
		return Totals{}, ErrInvalidGST
	}
	if discount < 0 {
		return Totals{}, ErrNegativeDiscount
	}

	subtotal := decimal.Zero
	for _, line := range lines {
		subtotal = subtotal.Add(decimal.NewFromInt(int64(line.SalePrice)).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	gst := subtotal.Mul(decimal.NewFromFloat(gstPercent)).Div(hundred).Round(0)
	gross := subtotal.Add(gst)
	if gross.GreaterThan(maxMinor) {
		return Totals{}, ErrAmountOverflow
	}
	total := gross.Sub(decimal.NewFromInt(int64(discount)))
	if total.IsNegative() {
		return Totals{}, ErrDiscountTooLarge
	}

	return Totals{
		Subtotal:  domain.Money(subtotal.IntPart()),
		GSTAmount: domain.Money(gst.IntPart()),
		Discount:  discount,
		Total:     domain.Money(total.IntPart()),
	}, nil
}

func PurchaseTotal(lines []domain.PurchaseLine) (domain.Money, error) {
	total := decimal.Zero
	for _, line := range lines {
		total = total.Add(decimal.NewFromInt(int64(line.PurchasePrice)).Mul(decimal.NewFromInt(int64(line.Quantity))))
	}
	if total.GreaterThan(maxMinor) {
		return 0, ErrAmountOverflow
	}
	return domain.Money(total.IntPart()), nil
}

// MergeItems sums the quantities of repeated products and drops non-positive
// lines, keeping the order in which products first appear. A merged quantity
// above limit fails with ErrQuantityOverflow.
func MergeItems(items []domain.CartItem, limit int) ([]domain.CartItem, error) {
	index := make(map[int64]int, len(items))
	out := make([]domain.CartItem, 0, len(items))
	for _, item := range items {
		if item.ProductID <= 0 || item.Quantity <= 0 {
			continue
		}
		if item.Quantity > limit {
			return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrQuantityOverflow)
		}
		if i, ok := index[item.ProductID]; ok {
			// Both sides are at most limit, so the comparison cannot wrap.
			if out[i].Quantity > limit-item.Quantity {
				return nil, fmt.Errorf("product %d: %w", item.ProductID, ErrQuantityOverflow)
			}
			out[i].Quantity += item.Quantity
			continue
		}
		index[item.ProductID] = len(out)
		out = append(out, item)
	}
	return out, nil
}
// ProductIDs returns the distinct product ids of items in ascending order, the
// order in which stock rows are locked.
func ProductIDs(items []domain.CartItem) []int64 {
	seen := make(map[int64]struct{}, len(items))
	ids := make([]int64, 0, len(items))
	for _, item := range items {
		if _, ok := seen[item.ProductID]; ok {
			continue
		}
		seen[item.ProductID] = struct{}{}
		ids = append(ids, item.ProductID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
