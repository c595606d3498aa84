package store

import (
	"fmt"
	"strings"
	"time"

	"tillbook/backend/internal/domain"
)

const (
	// MaxQuantity bounds a single line and the merged quantity of one product
	// in a bill or purchase.
	MaxQuantity = 1_000_000
	// MaxStock bounds the stock a purchase may build up for one product.
	MaxStock = 1_000_000_000
	// MaxAmount bounds any single price or discount: ten billion in major
	// units. MaxAmount*MaxQuantity still fits in an int64.
	MaxAmount domain.Money = 1_000_000_000_000
)

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidInput, fmt.Sprintf(format, args...))
}

func ValidateDate(value string) error {
	if _, err := time.Parse(domain.DateLayout, value); err != nil {
		return invalid("date %q must be YYYY-MM-DD", value)
	}
	return nil
}

// ValidateDateRange accepts empty bounds; a set bound must be a valid date.
func ValidateDateRange(from string, to string) error {
	if from != "" {
		if err := ValidateDate(from); err != nil {
			return err
		}
	}
	if to != "" {
		if err := ValidateDate(to); err != nil {
			return err
		}
	}
	if from != "" && to != "" && from > to {
		return invalid("date range %s..%s is reversed", from, to)
	}
	return nil
}

func ValidateProduct(p domain.Product) error {
	switch {
	case strings.TrimSpace(p.Code) == "":
		return invalid("product code is required")
	case strings.TrimSpace(p.Name) == "":
		return invalid("product name is required")
	case p.PurchasePrice < 0 || p.SalePrice < 0:
		return invalid("product prices must not be negative")
	case p.PurchasePrice > MaxAmount || p.SalePrice > MaxAmount:
		return invalid("product prices must not exceed %s", MaxAmount)
	case p.Stock < 0:
		return invalid("product stock must not be negative")
	case p.Stock > MaxStock:
		return invalid("product stock must not exceed %d", MaxStock)
	}
	return nil
}

func ValidateCustomer(c domain.Customer) error {
	if strings.TrimSpace(c.Name) == "" {
		return invalid("customer name is required")
	}
	if strings.TrimSpace(c.Mobile) == "" {
		return invalid("customer mobile is required")
	}
	return nil
}

func ValidateBillRequest(req domain.BillRequest) error {
	if req.CustomerID <= 0 {
		return invalid("customer is required")
	}
	if len(req.Items) == 0 {
		return invalid("bill has no items")
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return invalid("bill line has no product")
		}
		if item.Quantity < 1 {
			return invalid("quantity for product %d must be at least 1", item.ProductID)
		}
		if item.Quantity > MaxQuantity {
			return invalid("quantity for product %d must not exceed %d", item.ProductID, MaxQuantity)
		}
	}
	// Lines are bounded above, so the running sums cannot wrap.
	merged := make(map[int64]int, len(req.Items))
	for _, item := range req.Items {
		merged[item.ProductID] += item.Quantity
		if merged[item.ProductID] > MaxQuantity {
			return invalid("total quantity for product %d must not exceed %d", item.ProductID, MaxQuantity)
		}
	}
	if req.Discount < 0 {
		return invalid("discount must not be negative")
	}
	if req.Discount > MaxAmount {
		return invalid("discount must not exceed %s", MaxAmount)
	}
	if req.GST < 0 || req.GST > 100 {
		return invalid("gst percent must be between 0 and 100")
	}
	return ValidateDate(req.Date)
}

func ValidatePurchaseRequest(req domain.PurchaseRequest) error {
	if strings.TrimSpace(req.Vendor) == "" {
		return invalid("vendor is required")
	}
	if len(req.Items) == 0 {
		return invalid("purchase has no items")
	}
	for _, item := range req.Items {
		if item.ProductID <= 0 {
			return invalid("purchase line has no product")
		}
		if item.Quantity < 1 {
			return invalid("quantity for product %d must be at least 1", item.ProductID)
		}
		if item.Quantity > MaxQuantity {
			return invalid("quantity for product %d must not exceed %d", item.ProductID, MaxQuantity)
		}
		if item.PurchasePrice < 0 {
			return invalid("purchase price for product %d must not be negative", item.ProductID)
		}
		if item.PurchasePrice > MaxAmount {
			return invalid("purchase price for product %d must not exceed %s", item.ProductID, MaxAmount)
		}
	}
	merged := make(map[int64]int, len(req.Items))
	for _, item := range req.Items {
		merged[item.ProductID] += item.Quantity
		if merged[item.ProductID] > MaxQuantity {
			return invalid("total quantity for product %d must not exceed %d", item.ProductID, MaxQuantity)
		}
	}
	return ValidateDate(req.Date)
}

func ValidateSettings(s domain.Settings) error {
	if s.GSTPercentage < 0 || s.GSTPercentage > 100 {
		return invalid("gst percentage must be between 0 and 100")
	}
	return nil
}

