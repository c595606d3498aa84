package billing

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tillbook/backend/internal/domain"
)

func TestComputeAppliesGSTBeforeDiscount(t *testing.T) {
	lines := []domain.BillLine{
		{ProductID: 1, SalePrice: 1000, Quantity: 2},
		{ProductID: 2, SalePrice: 550, Quantity: 1},
	}

	totals, err := Compute(lines, 18, 100)
	require.NoError(t, err)
	assert.Equal(t, domain.Money(2550), totals.Subtotal)
	assert.Equal(t, domain.Money(459), totals.GSTAmount)
	assert.Equal(t, domain.Money(2550+459-100), totals.Total)
}

func TestComputeRoundsHalfAwayFromZero(t *testing.T) {
	lines := []domain.BillLine{{ProductID: 1, SalePrice: 250, Quantity: 1}}

	totals, err := Compute(lines, 5, 0)
	require.NoError(t, err)
	// 250 * 5% = 12.5
	assert.Equal(t, domain.Money(13), totals.GSTAmount)
	assert.Equal(t, domain.Money(263), totals.Total)
}

func TestComputeRejectsBadInput(t *testing.T) {
	lines := []domain.BillLine{{ProductID: 1, SalePrice: 100, Quantity: 1}}

	_, err := Compute(lines, 101, 0)
	assert.ErrorIs(t, err, ErrInvalidGST)

	_, err = Compute(lines, 0, -1)
	assert.ErrorIs(t, err, ErrNegativeDiscount)

	_, err = Compute(lines, 0, 101)
	assert.ErrorIs(t, err, ErrDiscountTooLarge)
}

func TestComputeRejectsTotalsBeyondInt64(t *testing.T) {
	lines := []domain.BillLine{
		{ProductID: 1, SalePrice: math.MaxInt64 / 2, Quantity: 1},
		{ProductID: 2, SalePrice: math.MaxInt64 / 2, Quantity: 1},
	}
	// The subtotal still fits; adding GST pushes it past the limit.
	_, err := Compute(lines, 18, 0)
	assert.ErrorIs(t, err, ErrAmountOverflow)

	_, err = Compute([]domain.BillLine{{ProductID: 1, SalePrice: math.MaxInt64, Quantity: 2}}, 0, 0)
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestPurchaseTotal(t *testing.T) {
	total, err := PurchaseTotal([]domain.PurchaseLine{
		{ProductID: 1, Quantity: 3, PurchasePrice: 700},
		{ProductID: 2, Quantity: 1, PurchasePrice: 25},
	})
	require.NoError(t, err)
	assert.Equal(t, domain.Money(2125), total)

	_, err = PurchaseTotal([]domain.PurchaseLine{{ProductID: 1, Quantity: 3, PurchasePrice: math.MaxInt64 / 2}})
	assert.ErrorIs(t, err, ErrAmountOverflow)
}

func TestMergeItemsSumsDuplicatesInCartOrder(t *testing.T) {
	merged, err := MergeItems([]domain.CartItem{
		{ProductID: 7, Quantity: 1},
		{ProductID: 3, Quantity: 2},
		{ProductID: 7, Quantity: 4},
		{ProductID: 9, Quantity: 0},
	}, 100)
	require.NoError(t, err)
	assert.Equal(t, []domain.CartItem{
		{ProductID: 7, Quantity: 5},
		{ProductID: 3, Quantity: 2},
	}, merged)
	assert.Equal(t, []int64{3, 7}, ProductIDs(merged))
}

func TestMergeItemsRejectsSumsAboveLimit(t *testing.T) {
	half := math.MaxInt/2 + 1
	_, err := MergeItems([]domain.CartItem{
		{ProductID: 1, Quantity: half},
		{ProductID: 1, Quantity: half},
	}, math.MaxInt)
	assert.ErrorIs(t, err, ErrQuantityOverflow)

	_, err = MergeItems([]domain.CartItem{
		{ProductID: 1, Quantity: 600},
		{ProductID: 1, Quantity: 500},
	}, 1000)
	assert.ErrorIs(t, err, ErrQuantityOverflow)

	_, err = MergeItems([]domain.CartItem{{ProductID: 1, Quantity: 1001}}, 1000)
	assert.ErrorIs(t, err, ErrQuantityOverflow)

	merged, err := MergeItems([]domain.CartItem{
		{ProductID: 1, Quantity: 500},
		{ProductID: 1, Quantity: 500},
	}, 1000)
	require.NoError(t, err)
	assert.Equal(t, 1000, merged[0].Quantity)
}
