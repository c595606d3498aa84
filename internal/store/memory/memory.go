package memory

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"tillbook/backend/internal/billing"
	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

// Store keeps every table in process memory behind one mutex. It follows the
// same contracts as the SQL store and backs tests and the "memory" driver.
type Store struct {
	mu sync.RWMutex

	nextID map[string]int64

	usersByName map[string]domain.UserAccount
	products    map[int64]domain.Product
	customers   map[int64]domain.Customer
	bills       []domain.Bill
	purchases   []domain.Purchase
	settings    *domain.Settings
}

func New() *Store {
	settings := domain.DefaultSettings()
	return &Store{
		nextID:      make(map[string]int64),
		usersByName: make(map[string]domain.UserAccount),
		products:    make(map[int64]domain.Product),
		customers:   make(map[int64]domain.Customer),
		bills:       make([]domain.Bill, 0, 64),
		purchases:   make([]domain.Purchase, 0, 64),
		settings:    &settings,
	}
}

// NewSeeded returns a store with the default admin account and a small demo
// catalogue for dev mode.
func NewSeeded(adminPasswordHash string) *Store {
	s := New()
	ctx := context.Background()
	if adminPasswordHash != "" {
		_, _ = s.CreateUser(ctx, domain.UserAccount{
			Username: domain.DefaultAdminUsername,
			Password: adminPasswordHash,
			Role:     domain.RoleAdmin,
		})
	}
	for _, p := range []domain.Product{
		{Code: "RICE-5KG", Name: "Basmati Rice 5kg", Category: "grocery", Unit: "PCS", PurchasePrice: 52000, SalePrice: 61000, Stock: 40},
		{Code: "SUGAR-1KG", Name: "Sugar", Category: "grocery", Unit: "KG", PurchasePrice: 4000, SalePrice: 4800, Stock: 120},
		{Code: "TEA-250", Name: "Tea Leaves 250g", Category: "beverage", Unit: "PCS", PurchasePrice: 11000, SalePrice: 13500, Stock: 60},
		{Code: "SOAP-BAR", Name: "Bath Soap", Category: "household", Unit: "PCS", PurchasePrice: 2800, SalePrice: 3500, Stock: 200},
	} {
		_, _ = s.CreateProduct(ctx, p)
	}
	_, _ = s.CreateCustomer(ctx, domain.Customer{Name: "Walk-in Customer", Mobile: "0000000000"})
	return s
}

func (s *Store) Close() error {
	return nil
}

func (s *Store) newID(table string) int64 {
	s.nextID[table]++
	return s.nextID[table]
}

func (s *Store) GetUserByUsername(_ context.Context, username string) (*domain.UserAccount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.usersByName[username]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &user, nil
}

func (s *Store) CreateUser(_ context.Context, user domain.UserAccount) (*domain.UserAccount, error) {
	if user.Username == "" || user.Password == "" || user.Role == "" {
		return nil, store.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usersByName[user.Username]; exists {
		return nil, fmt.Errorf("username %q: %w", user.Username, store.ErrConstraintViolation)
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	user.ID = s.newID("users")
	s.usersByName[user.Username] = user
	created := user
	return &created, nil
}

func (s *Store) UpdateUserPassword(_ context.Context, username string, password string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.usersByName[username]
	if !ok {
		return store.ErrNotFound
	}
	user.Password = password
	s.usersByName[username] = user
	return nil
}

func (s *Store) ListProducts(_ context.Context) ([]domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	products := make([]domain.Product, 0, len(s.products))
	for _, p := range s.products {
		products = append(products, p)
	}
	slices.SortFunc(products, func(a, b domain.Product) int { return compareID(a.ID, b.ID) })
	return products, nil
}

func (s *Store) GetProduct(_ context.Context, id int64) (*domain.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	product, ok := s.products[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	return &product, nil
}

func (s *Store) codeTaken(code string, exceptID int64) bool {
	for id, p := range s.products {
		if id != exceptID && p.Code == code {
			return true
		}
	}
	return false
}

func (s *Store) CreateProduct(_ context.Context, product domain.Product) (domain.InsertResult, error) {
	if err := store.ValidateProduct(product); err != nil {
		return domain.InsertResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.codeTaken(product.Code, 0) {
		return domain.InsertResult{}, fmt.Errorf("product code %q: %w", product.Code, store.ErrConstraintViolation)
	}
	product.ID = s.newID("products")
	s.products[product.ID] = product
	return domain.InsertResult{ID: product.ID, Changes: 1}, nil
}

func (s *Store) UpdateProduct(_ context.Context, id int64, product domain.Product) (domain.WriteResult, error) {
	if err := store.ValidateProduct(product); err != nil {
		return domain.WriteResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.products[id]
	if !ok {
		return domain.WriteResult{}, store.ErrNotFound
	}
	if s.codeTaken(product.Code, id) {
		return domain.WriteResult{}, fmt.Errorf("product code %q: %w", product.Code, store.ErrConstraintViolation)
	}
	product.ID = id
	product.Stock = current.Stock
	s.products[id] = product
	return domain.WriteResult{Changes: 1}, nil
}

func (s *Store) DeleteProduct(_ context.Context, id int64) (domain.WriteResult, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.products[id]; !ok {
		return domain.WriteResult{}, store.ErrNotFound
	}
	delete(s.products, id)
	return domain.WriteResult{Changes: 1}, nil
}

func (s *Store) ListCustomers(_ context.Context) ([]domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customers := make([]domain.Customer, 0, len(s.customers))
	for _, c := range s.customers {
		customers = append(customers, c)
	}
	slices.SortFunc(customers, func(a, b domain.Customer) int { return compareID(a.ID, b.ID) })
	return customers, nil
}

func (s *Store) CreateCustomer(_ context.Context, customer domain.Customer) (domain.CustomerCreateResult, error) {
	if err := store.ValidateCustomer(customer); err != nil {
		return domain.CustomerCreateResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.customerByMobile(customer.Mobile); ok {
		return domain.CustomerCreateResult{Existing: true, ID: existing.ID}, nil
	}
	customer.ID = s.newID("customers")
	s.customers[customer.ID] = customer
	return domain.CustomerCreateResult{Existing: false, ID: customer.ID}, nil
}

func (s *Store) FindCustomerByMobile(_ context.Context, mobile string) (*domain.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	customer, ok := s.customerByMobile(mobile)
	if !ok {
		return nil, store.ErrNotFound
	}
	return &customer, nil
}

func (s *Store) customerByMobile(mobile string) (domain.Customer, bool) {
	for _, c := range s.customers {
		if c.Mobile == mobile {
			return c, true
		}
	}
	return domain.Customer{}, false
}

// SaveBill checks and decrements stock under the write lock, so a bill is
// either fully applied or not applied at all.
func (s *Store) SaveBill(_ context.Context, req domain.BillRequest) (*domain.Bill, error) {
	if err := store.ValidateBillRequest(req); err != nil {
		return nil, err
	}
	items, err := billing.MergeItems(req.Items, store.MaxQuantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.customers[req.CustomerID]; !ok {
		return nil, fmt.Errorf("customer %d: %w", req.CustomerID, store.ErrNotFound)
	}
	for _, id := range billing.ProductIDs(items) {
		if _, ok := s.products[id]; !ok {
			return nil, store.ProductNotFound(id)
		}
	}

	lines := make([]domain.BillLine, 0, len(items))
	for _, item := range items {
		product := s.products[item.ProductID]
		if product.Stock < item.Quantity {
			return nil, &store.InsufficientStockError{
				ProductID: product.ID,
				Name:      product.Name,
				Available: product.Stock,
				Requested: item.Quantity,
			}
		}
		lines = append(lines, domain.BillLine{
			ProductID: product.ID,
			Name:      product.Name,
			SalePrice: product.SalePrice,
			Quantity:  item.Quantity,
		})
	}

	totals, err := billing.Compute(lines, float64(req.GST), req.Discount)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	for _, line := range lines {
		product := s.products[line.ProductID]
		product.Stock -= line.Quantity
		s.products[line.ProductID] = product
	}

	bill := domain.Bill{
		ID:         s.newID("bills"),
		CustomerID: req.CustomerID,
		Items:      lines,
		Subtotal:   totals.Subtotal,
		Discount:   totals.Discount,
		GST:        float64(req.GST),
		GSTAmount:  totals.GSTAmount,
		Total:      totals.Total,
		Date:       req.Date,
		CreatedAt:  time.Now().UTC(),
	}
	s.bills = append(s.bills, bill)
	return cloneBill(bill), nil
}

func (s *Store) ListBills(_ context.Context) ([]domain.BillRecord, error) {
	return s.billRecords(domain.SalesReportFilter{}), nil
}

func (s *Store) SalesReport(_ context.Context, filter domain.SalesReportFilter) ([]domain.BillRecord, error) {
	if err := store.ValidateDateRange(filter.DateFrom, filter.DateTo); err != nil {
		return nil, err
	}
	records := s.billRecords(filter)
	slices.SortStableFunc(records, func(a, b domain.BillRecord) int {
		if a.Date != b.Date {
			return strings.Compare(a.Date, b.Date)
		}
		return compareID(a.ID, b.ID)
	})
	return records, nil
}

// billRecords returns the matching bills in insertion order.
func (s *Store) billRecords(filter domain.SalesReportFilter) []domain.BillRecord {
	mobile := strings.ToLower(strings.TrimSpace(filter.Mobile))

	s.mu.RLock()
	defer s.mu.RUnlock()

	records := make([]domain.BillRecord, 0, len(s.bills))
	for _, bill := range s.bills {
		if filter.DateFrom != "" && bill.Date < filter.DateFrom {
			continue
		}
		if filter.DateTo != "" && bill.Date > filter.DateTo {
			continue
		}
		if filter.ProductID > 0 && !billHasProduct(bill, filter.ProductID) {
			continue
		}
		customer := s.customers[bill.CustomerID]
		if mobile != "" && !strings.Contains(strings.ToLower(customer.Mobile), mobile) {
			continue
		}
		records = append(records, domain.BillRecord{
			Bill:           *cloneBill(bill),
			CustomerName:   customer.Name,
			CustomerMobile: customer.Mobile,
		})
	}
	return records
}

func billHasProduct(bill domain.Bill, productID int64) bool {
	for _, line := range bill.Items {
		if line.ProductID == productID {
			return true
		}
	}
	return false
}

func (s *Store) CreatePurchase(_ context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	if err := store.ValidatePurchaseRequest(req); err != nil {
		return nil, err
	}
	total, err := billing.PurchaseTotal(req.Items)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	added := make(map[int64]int, len(req.Items))
	for _, line := range req.Items {
		product, ok := s.products[line.ProductID]
		if !ok {
			return nil, store.ProductNotFound(line.ProductID)
		}
		added[line.ProductID] += line.Quantity
		if product.Stock > store.MaxStock-added[line.ProductID] {
			return nil, fmt.Errorf("%w: stock for product %d would exceed %d", store.ErrInvalidInput, line.ProductID, store.MaxStock)
		}
	}
	for _, line := range req.Items {
		product := s.products[line.ProductID]
		product.Stock += line.Quantity
		s.products[line.ProductID] = product
	}

	items := make([]domain.PurchaseLine, len(req.Items))
	copy(items, req.Items)
	purchase := domain.Purchase{
		ID:        s.newID("purchases"),
		Vendor:    req.Vendor,
		Date:      req.Date,
		Items:     items,
		Total:     total,
		CreatedAt: time.Now().UTC(),
	}
	s.purchases = append(s.purchases, purchase)
	created := purchase
	created.Items = slices.Clone(items)
	return &created, nil
}

func (s *Store) ListPurchases(_ context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	if err := store.ValidateDateRange(filter.From, filter.To); err != nil {
		return nil, err
	}
	vendor := strings.ToLower(strings.TrimSpace(filter.Vendor))

	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]domain.Purchase, 0, len(s.purchases))
	for _, p := range s.purchases {
		if vendor != "" && !strings.Contains(strings.ToLower(p.Vendor), vendor) {
			continue
		}
		if filter.From != "" && p.Date < filter.From {
			continue
		}
		if filter.To != "" && p.Date > filter.To {
			continue
		}
		p.Items = slices.Clone(p.Items)
		out = append(out, p)
	}
	slices.SortStableFunc(out, func(a, b domain.Purchase) int {
		if a.Date != b.Date {
			return strings.Compare(b.Date, a.Date)
		}
		return compareID(b.ID, a.ID)
	})
	return out, nil
}

func (s *Store) Daybook(_ context.Context, day string) (domain.Daybook, error) {
	if err := store.ValidateDate(day); err != nil {
		return domain.Daybook{}, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	var book domain.Daybook
	for _, bill := range s.bills {
		if bill.Date == day {
			book.Sales += bill.Total
		}
	}
	for _, p := range s.purchases {
		if p.Date == day {
			book.Purchases += p.Total
		}
	}
	book.Profit = book.Sales - book.Purchases
	return book, nil
}

func (s *Store) GetSettings(_ context.Context) (domain.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.settings == nil {
		return domain.Settings{}, nil
	}
	return *s.settings, nil
}

func (s *Store) UpdateSettings(_ context.Context, settings domain.Settings) (domain.WriteResult, error) {
	if err := store.ValidateSettings(settings); err != nil {
		return domain.WriteResult{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.settings == nil {
		return domain.WriteResult{}, store.ErrNotFound
	}
	settings.ID = s.settings.ID
	s.settings = &settings
	return domain.WriteResult{Changes: 1}, nil
}

func cloneBill(bill domain.Bill) *domain.Bill {
	clone := bill
	clone.Items = slices.Clone(bill.Items)
	return &clone
}

func compareID(a int64, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
