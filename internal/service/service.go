package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"tillbook/backend/internal/cache"
	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

var ErrForbidden = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

func requireAdmin(ctx context.Context) (domain.Actor, error) {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != domain.RoleAdmin {
		return domain.Actor{}, ErrForbidden
	}
	return actor, nil
}

// ReadErrorPolicy decides what a list or lookup returns when the store fails.
type ReadErrorPolicy string

const (
	ReadErrorsPropagate ReadErrorPolicy = "propagate"
	// ReadErrorsEmpty logs the failure and answers with an empty result.
	ReadErrorsEmpty ReadErrorPolicy = "empty"
)

func ParseReadErrorPolicy(value string) (ReadErrorPolicy, error) {
	switch ReadErrorPolicy(strings.ToLower(strings.TrimSpace(value))) {
	case "", ReadErrorsPropagate:
		return ReadErrorsPropagate, nil
	case ReadErrorsEmpty:
		return ReadErrorsEmpty, nil
	default:
		return "", fmt.Errorf("unknown read error policy %q", value)
	}
}

type Options struct {
	ProductCacheTTL time.Duration
	ReadErrorPolicy ReadErrorPolicy
	Now             func() time.Time
}

type Service struct {
	repo       store.Repository
	products   cache.ProductCache
	productTTL time.Duration
	readPolicy ReadErrorPolicy
	now        func() time.Time

	// productGen counts product invalidations. A list read fills the cache
	// only if no invalidation ran since it started; cacheMu orders the two.
	cacheMu    sync.Mutex
	productGen uint64
}

func New(repo store.Repository, productCache cache.ProductCache, opts Options) *Service {
	if productCache == nil {
		productCache = cache.NoopProductCache{}
	}
	if opts.ProductCacheTTL <= 0 {
		opts.ProductCacheTTL = 30 * time.Second
	}
	if opts.ReadErrorPolicy == "" {
		opts.ReadErrorPolicy = ReadErrorsPropagate
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	return &Service{
		repo:       repo,
		products:   productCache,
		productTTL: opts.ProductCacheTTL,
		readPolicy: opts.ReadErrorPolicy,
		now:        opts.Now,
	}
}

func (s *Service) today() string {
	return s.now().Format(domain.DateLayout)
}

// readResult applies the read error policy. Validation failures and
// cancellations always reach the caller.
func readResult[T any](s *Service, op string, value T, err error, empty T) (T, error) {
	if err == nil {
		return value, nil
	}
	if s.readPolicy == ReadErrorsEmpty &&
		!errors.Is(err, store.ErrInvalidInput) &&
		!errors.Is(err, context.Canceled) &&
		!errors.Is(err, context.DeadlineExceeded) {
		log.Printf("[service] WARN: %s failed, answering empty: %v", op, err)
		return empty, nil
	}
	var zero T
	return zero, err
}

func audit(ctx context.Context, action string, format string, args ...any) {
	actor, _ := ActorFromContext(ctx)
	username := actor.Username
	if username == "" {
		username = "system"
	}
	log.Printf("[audit] %s %s %s", username, action, fmt.Sprintf(format, args...))
}

func (s *Service) invalidateProducts(ctx context.Context) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	s.productGen++
	if err := s.products.Invalidate(ctx); err != nil {
		log.Printf("[service] WARN: invalidate product cache: %v", err)
	}
}

func (s *Service) ListProducts(ctx context.Context) ([]domain.Product, error) {
	if cached, ok, err := s.products.GetProducts(ctx); err != nil {
		log.Printf("[service] WARN: product cache get failed: %v", err)
	} else if ok {
		return cached, nil
	}

	s.cacheMu.Lock()
	gen := s.productGen
	s.cacheMu.Unlock()

	products, err := s.repo.ListProducts(ctx)
	if err != nil {
		return readResult(s, "list products", products, err, []domain.Product{})
	}
	s.fillProductCache(ctx, gen, products)
	return products, nil
}

func (s *Service) fillProductCache(ctx context.Context, gen uint64, products []domain.Product) {
	s.cacheMu.Lock()
	defer s.cacheMu.Unlock()
	if s.productGen != gen {
		return
	}
	if err := s.products.SetProducts(ctx, products, s.productTTL); err != nil {
		log.Printf("[service] WARN: product cache set failed: %v", err)
	}
}

func normalizeProduct(p domain.Product) domain.Product {
	p.Code = strings.TrimSpace(p.Code)
	p.Name = strings.TrimSpace(p.Name)
	return p
}

func (s *Service) CreateProduct(ctx context.Context, product domain.Product) (domain.InsertResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.InsertResult{}, err
	}
	product = normalizeProduct(product)

	res, err := s.repo.CreateProduct(ctx, product)
	if err != nil {
		return domain.InsertResult{}, err
	}
	s.invalidateProducts(ctx)
	audit(ctx, "product.create", "id=%d code=%s stock=%d", res.ID, product.Code, product.Stock)
	return res, nil
}

func (s *Service) UpdateProduct(ctx context.Context, id int64, product domain.Product) (domain.WriteResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.WriteResult{}, err
	}
	if id <= 0 {
		return domain.WriteResult{}, fmt.Errorf("%w: product id is required", store.ErrInvalidInput)
	}
	product = normalizeProduct(product)

	res, err := s.repo.UpdateProduct(ctx, id, product)
	if err != nil {
		return domain.WriteResult{}, err
	}
	s.invalidateProducts(ctx)
	audit(ctx, "product.update", "id=%d code=%s", id, product.Code)
	return res, nil
}

func (s *Service) DeleteProduct(ctx context.Context, id int64) (domain.WriteResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.WriteResult{}, err
	}
	res, err := s.repo.DeleteProduct(ctx, id)
	if err != nil {
		return domain.WriteResult{}, err
	}
	s.invalidateProducts(ctx)
	audit(ctx, "product.delete", "id=%d", id)
	return res, nil
}

func (s *Service) ListCustomers(ctx context.Context) ([]domain.Customer, error) {
	customers, err := s.repo.ListCustomers(ctx)
	return readResult(s, "list customers", customers, err, []domain.Customer{})
}

func (s *Service) AddCustomer(ctx context.Context, customer domain.Customer) (domain.CustomerCreateResult, error) {
	customer.Name = strings.TrimSpace(customer.Name)
	customer.Mobile = strings.TrimSpace(customer.Mobile)
	customer.GSTIN = strings.ToUpper(strings.TrimSpace(customer.GSTIN))
	return s.repo.CreateCustomer(ctx, customer)
}

// FindCustomer returns nil without error when no customer has the mobile.
func (s *Service) FindCustomer(ctx context.Context, mobile string) (*domain.Customer, error) {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return nil, fmt.Errorf("%w: mobile is required", store.ErrInvalidInput)
	}
	customer, err := s.repo.FindCustomerByMobile(ctx, mobile)
	if errors.Is(err, store.ErrNotFound) {
		return nil, nil
	}
	return readResult(s, "find customer", customer, err, nil)
}

// SaveBill prices the cart from current product rows. Totals are never taken
// from the client.
func (s *Service) SaveBill(ctx context.Context, req domain.BillRequest) (*domain.Bill, error) {
	req.Date = strings.TrimSpace(req.Date)
	if req.Date == "" {
		req.Date = s.today()
	}

	bill, err := s.repo.SaveBill(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateProducts(ctx)
	if req.Total != nil && *req.Total != bill.Total {
		log.Printf("[service] WARN: bill %d: client total %s differs from computed %s", bill.ID, *req.Total, bill.Total)
	}
	audit(ctx, "bill.save", "id=%d customer=%d total=%s", bill.ID, bill.CustomerID, bill.Total)
	return bill, nil
}

func (s *Service) ListBills(ctx context.Context) ([]domain.BillRecord, error) {
	bills, err := s.repo.ListBills(ctx)
	return readResult(s, "list bills", bills, err, []domain.BillRecord{})
}

func (s *Service) AddPurchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	req.Vendor = strings.TrimSpace(req.Vendor)
	req.Date = strings.TrimSpace(req.Date)
	if req.Date == "" {
		req.Date = s.today()
	}

	purchase, err := s.repo.CreatePurchase(ctx, req)
	if err != nil {
		return nil, err
	}
	s.invalidateProducts(ctx)
	if req.Total != nil && *req.Total != purchase.Total {
		log.Printf("[service] WARN: purchase %d: client total %s differs from computed %s", purchase.ID, *req.Total, purchase.Total)
	}
	audit(ctx, "purchase.create", "id=%d vendor=%q total=%s", purchase.ID, purchase.Vendor, purchase.Total)
	return purchase, nil
}

func (s *Service) ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	filter.Vendor = strings.TrimSpace(filter.Vendor)
	purchases, err := s.repo.ListPurchases(ctx, filter)
	return readResult(s, "list purchases", purchases, err, []domain.Purchase{})
}

func (s *Service) SalesReport(ctx context.Context, filter domain.SalesReportFilter) ([]domain.BillRecord, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return nil, err
	}
	filter.Mobile = strings.TrimSpace(filter.Mobile)
	bills, err := s.repo.SalesReport(ctx, filter)
	return readResult(s, "sales report", bills, err, []domain.BillRecord{})
}

func (s *Service) Daybook(ctx context.Context, day string) (domain.Daybook, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.Daybook{}, err
	}
	day = strings.TrimSpace(day)
	if day == "" {
		day = s.today()
	}
	book, err := s.repo.Daybook(ctx, day)
	return readResult(s, "daybook", book, err, domain.Daybook{})
}

func (s *Service) GetSettings(ctx context.Context) (domain.Settings, error) {
	settings, err := s.repo.GetSettings(ctx)
	return readResult(s, "get settings", settings, err, domain.Settings{})
}

func (s *Service) UpdateSettings(ctx context.Context, settings domain.Settings) (domain.WriteResult, error) {
	if _, err := requireAdmin(ctx); err != nil {
		return domain.WriteResult{}, err
	}
	res, err := s.repo.UpdateSettings(ctx, settings)
	if err != nil {
		return domain.WriteResult{}, err
	}
	audit(ctx, "settings.update", "business_name=%q gst=%.2f", settings.BusinessName, settings.GSTPercentage)
	return res, nil
}
