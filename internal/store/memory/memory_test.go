package memory

import (
	"context"
	"errors"
	"math"
	"sync"
	"testing"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

func TestConcurrentBillsNeverOversell(t *testing.T) {
	s := NewSeeded("hash")
	ctx := context.Background()
	res, err := s.CreateProduct(ctx, domain.Product{Code: "LAST-5", Name: "Last five", Unit: "PCS", SalePrice: 100, Stock: 5})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		sold     int
		rejected int
	)
	for i := 0; i < 12; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := s.SaveBill(ctx, domain.BillRequest{
				CustomerID: 1,
				Items:      []domain.CartItem{{ProductID: res.ID, Quantity: 1}},
				Date:       "2024-06-15",
			})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				sold++
			case errors.Is(err, store.ErrInsufficientStock):
				rejected++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if sold != 5 || rejected != 7 {
		t.Fatalf("expected 5 sold and 7 rejected, got %d and %d", sold, rejected)
	}
	product, err := s.GetProduct(ctx, res.ID)
	if err != nil {
		t.Fatalf("get product: %v", err)
	}
	if product.Stock != 0 {
		t.Fatalf("expected stock 0, got %d", product.Stock)
	}
}

func TestPurchaseWithUnknownProductChangesNothing(t *testing.T) {
	s := NewSeeded("hash")
	ctx := context.Background()

	_, err := s.CreatePurchase(ctx, domain.PurchaseRequest{
		Vendor: "Metro",
		Date:   "2024-06-10",
		Items: []domain.PurchaseLine{
			{ProductID: 1, Quantity: 10, PurchasePrice: 50000},
			{ProductID: 77, Quantity: 1, PurchasePrice: 100},
		},
	})
	if !errors.Is(err, store.ErrProductNotFound) {
		t.Fatalf("expected ErrProductNotFound, got %v", err)
	}

	rice, _ := s.GetProduct(ctx, 1)
	if rice.Stock != 40 {
		t.Fatalf("expected rice stock untouched at 40, got %d", rice.Stock)
	}
	purchases, _ := s.ListPurchases(ctx, domain.PurchaseFilter{})
	if len(purchases) != 0 {
		t.Fatalf("expected no purchases, got %d", len(purchases))
	}
}

func TestReturnedBillsAreCopies(t *testing.T) {
	s := NewSeeded("hash")
	ctx := context.Background()

	bill, err := s.SaveBill(ctx, domain.BillRequest{
		CustomerID: 1,
		Items:      []domain.CartItem{{ProductID: 2, Quantity: 1}},
		Date:       "2024-06-15",
	})
	if err != nil {
		t.Fatalf("save bill: %v", err)
	}
	bill.Items[0].Quantity = 99

	bills, _ := s.ListBills(ctx)
	if len(bills) != 1 || bills[0].Items[0].Quantity != 1 {
		t.Fatalf("stored bill was mutated through the returned copy: %+v", bills)
	}
	if bills[0].CustomerName != "Walk-in Customer" {
		t.Fatalf("expected customer name join, got %q", bills[0].CustomerName)
	}
}

func TestSaveBillRejectsQuantitiesThatWouldOverflow(t *testing.T) {
	s := NewSeeded("hash")
	ctx := context.Background()
	half := math.MaxInt64/2 + 1

	_, err := s.SaveBill(ctx, domain.BillRequest{
		CustomerID: 1,
		Items: []domain.CartItem{
			{ProductID: 2, Quantity: half},
			{ProductID: 2, Quantity: half},
		},
		Date: "2024-06-15",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	_, err = s.SaveBill(ctx, domain.BillRequest{
		CustomerID: 1,
		Items: []domain.CartItem{
			{ProductID: 2, Quantity: store.MaxQuantity},
			{ProductID: 2, Quantity: 1},
		},
		Date: "2024-06-15",
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput for merged quantity, got %v", err)
	}

	sugar, _ := s.GetProduct(ctx, 2)
	if sugar.Stock != 120 {
		t.Fatalf("expected sugar stock untouched at 120, got %d", sugar.Stock)
	}
	if bills, _ := s.ListBills(ctx); len(bills) != 0 {
		t.Fatalf("expected no bills, got %d", len(bills))
	}
}

func TestPurchaseCannotPushStockPastLimit(t *testing.T) {
	s := NewSeeded("hash")
	ctx := context.Background()
	res, err := s.CreateProduct(ctx, domain.Product{Code: "BULK", Name: "Bulk", Stock: store.MaxStock - 10})
	if err != nil {
		t.Fatalf("create product: %v", err)
	}

	_, err = s.CreatePurchase(ctx, domain.PurchaseRequest{
		Vendor: "Metro",
		Date:   "2024-06-10",
		Items:  []domain.PurchaseLine{{ProductID: res.ID, Quantity: 11, PurchasePrice: 1}},
	})
	if !errors.Is(err, store.ErrInvalidInput) {
		t.Fatalf("expected ErrInvalidInput, got %v", err)
	}

	_, err = s.CreatePurchase(ctx, domain.PurchaseRequest{
		Vendor: "Metro",
		Date:   "2024-06-10",
		Items:  []domain.PurchaseLine{{ProductID: res.ID, Quantity: 10, PurchasePrice: 1}},
	})
	if err != nil {
		t.Fatalf("purchase up to the limit: %v", err)
	}
	bulk, _ := s.GetProduct(ctx, res.ID)
	if bulk.Stock != store.MaxStock {
		t.Fatalf("expected stock %d, got %d", store.MaxStock, bulk.Stock)
	}
}

func TestSettingsRoundTripIsExact(t *testing.T) {
	s := New()
	ctx := context.Background()

	want := domain.Settings{
		ID:            1,
		BusinessName:  "  Sharma Kirana  ",
		Logo:          "data:image/png;base64,iVBORw0KGgo=",
		GSTPercentage: 12.5,
		Units:         "pcs,Kg,LTR",
		InvoiceFooter: "Goods once sold\nwill not be taken back",
		InvoiceLayout: " compact ",
	}
	if _, err := s.UpdateSettings(ctx, want); err != nil {
		t.Fatalf("update settings: %v", err)
	}
	got, err := s.GetSettings(ctx)
	if err != nil {
		t.Fatalf("get settings: %v", err)
	}
	if got != want {
		t.Fatalf("settings changed on the way through:\nwant %+v\ngot  %+v", want, got)
	}
}

func TestUpdateSettingsWithoutRowIsNotFound(t *testing.T) {
	s := New()
	ctx := context.Background()
	s.dropSettings()

	got, err := s.GetSettings(ctx)
	if err != nil || got != (domain.Settings{}) {
		t.Fatalf("expected an empty settings row, got %+v %v", got, err)
	}
	if _, err := s.UpdateSettings(ctx, domain.DefaultSettings()); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
