package store

import (
	"context"
	"errors"
	"fmt"

	"tillbook/backend/internal/domain"
)

var (
	ErrNotFound            = errors.New("not found")
	ErrInvalidInput        = errors.New("invalid input")
	ErrConstraintViolation = errors.New("constraint violation")
	ErrProductNotFound     = errors.New("product not found")
	ErrInsufficientStock   = errors.New("insufficient stock")
	// ErrStockConflict means stock changed between the check and the
	// decrement. The bill was not saved and the call can be retried.
	ErrStockConflict = errors.New("stock changed concurrently")
)

// InsufficientStockError reports the product that could not cover a bill line.
// It matches ErrInsufficientStock with errors.Is.
type InsufficientStockError struct {
	ProductID int64
	Name      string
	Available int
	Requested int
}

func (e *InsufficientStockError) Error() string {
	return fmt.Sprintf("insufficient stock for product %s: %d available, %d requested", e.Name, e.Available, e.Requested)
}

func (e *InsufficientStockError) Is(target error) bool {
	return target == ErrInsufficientStock
}

func ProductNotFound(productID int64) error {
	return fmt.Errorf("product with id %d: %w", productID, ErrProductNotFound)
}

type Repository interface {
	GetUserByUsername(ctx context.Context, username string) (*domain.UserAccount, error)
	CreateUser(ctx context.Context, user domain.UserAccount) (*domain.UserAccount, error)
	UpdateUserPassword(ctx context.Context, username string, password string) error

	ListProducts(ctx context.Context) ([]domain.Product, error)
	GetProduct(ctx context.Context, id int64) (*domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (domain.InsertResult, error)
	UpdateProduct(ctx context.Context, id int64, product domain.Product) (domain.WriteResult, error)
	DeleteProduct(ctx context.Context, id int64) (domain.WriteResult, error)

	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	CreateCustomer(ctx context.Context, customer domain.Customer) (domain.CustomerCreateResult, error)
	FindCustomerByMobile(ctx context.Context, mobile string) (*domain.Customer, error)

	SaveBill(ctx context.Context, req domain.BillRequest) (*domain.Bill, error)
	ListBills(ctx context.Context) ([]domain.BillRecord, error)
	SalesReport(ctx context.Context, filter domain.SalesReportFilter) ([]domain.BillRecord, error)

	CreatePurchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error)

	Daybook(ctx context.Context, date string) (domain.Daybook, error)

	GetSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, settings domain.Settings) (domain.WriteResult, error)

	Close() error
}
