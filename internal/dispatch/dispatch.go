// Package dispatch maps the named request contract used by the UI
// ("get-products", "save-bill", ...) onto service calls. Every operation takes
// a JSON payload and returns a JSON-encodable result.
package dispatch

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/store"
)

var ErrUnknownOperation = errors.New("unknown operation")

type Backend interface {
	ListProducts(ctx context.Context) ([]domain.Product, error)
	CreateProduct(ctx context.Context, product domain.Product) (domain.InsertResult, error)
	UpdateProduct(ctx context.Context, id int64, product domain.Product) (domain.WriteResult, error)
	DeleteProduct(ctx context.Context, id int64) (domain.WriteResult, error)
	ListCustomers(ctx context.Context) ([]domain.Customer, error)
	AddCustomer(ctx context.Context, customer domain.Customer) (domain.CustomerCreateResult, error)
	FindCustomer(ctx context.Context, mobile string) (*domain.Customer, error)
	SaveBill(ctx context.Context, req domain.BillRequest) (*domain.Bill, error)
	ListBills(ctx context.Context) ([]domain.BillRecord, error)
	AddPurchase(ctx context.Context, req domain.PurchaseRequest) (*domain.Purchase, error)
	ListPurchases(ctx context.Context, filter domain.PurchaseFilter) ([]domain.Purchase, error)
	SalesReport(ctx context.Context, filter domain.SalesReportFilter) ([]domain.BillRecord, error)
	Daybook(ctx context.Context, day string) (domain.Daybook, error)
	GetSettings(ctx context.Context) (domain.Settings, error)
	UpdateSettings(ctx context.Context, settings domain.Settings) (domain.WriteResult, error)
}

type Authenticator interface {
	Login(ctx context.Context, req domain.LoginRequest) (domain.LoginResponse, error)
	CreateUser(ctx context.Context, req domain.UserCreateRequest) (domain.UserAccount, error)
}

type Handler func(ctx context.Context, payload json.RawMessage) (any, error)

type Operation struct {
	Name string
	// Public operations are callable without a session.
	Public bool
	Handle Handler
}

type Dispatcher struct {
	ops map[string]Operation
}

func New(backend Backend, auth Authenticator) *Dispatcher {
	d := &Dispatcher{ops: make(map[string]Operation, 20)}

	d.public("login", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req domain.LoginRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return auth.Login(ctx, req)
	})
	d.handle("add-user", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req domain.UserCreateRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return auth.CreateUser(ctx, req)
	})

	d.handle("get-products", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return backend.ListProducts(ctx)
	})
	d.handle("add-product", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var product domain.Product
		if err := decode(payload, &product); err != nil {
			return nil, err
		}
		return backend.CreateProduct(ctx, product)
	})
	d.handle("update-product", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req domain.ProductUpdateRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		// A bare product row carries its own id.
		if req.Product == (domain.Product{}) {
			if err := decode(payload, &req.Product); err != nil {
				return nil, err
			}
		}
		return backend.UpdateProduct(ctx, req.ID, req.Product)
	})
	d.handle("delete-product", func(ctx context.Context, payload json.RawMessage) (any, error) {
		id, err := decodeID(payload)
		if err != nil {
			return nil, err
		}
		return backend.DeleteProduct(ctx, id)
	})

	d.handle("get-customers", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return backend.ListCustomers(ctx)
	})
	d.handle("add-customer", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var customer domain.Customer
		if err := decode(payload, &customer); err != nil {
			return nil, err
		}
		return backend.AddCustomer(ctx, customer)
	})
	d.handle("find-customer", func(ctx context.Context, payload json.RawMessage) (any, error) {
		mobile, err := decodeString(payload, "mobile")
		if err != nil {
			return nil, err
		}
		return backend.FindCustomer(ctx, mobile)
	})

	d.handle("save-bill", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req domain.BillRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return backend.SaveBill(ctx, req)
	})
	d.handle("get-bills", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return backend.ListBills(ctx)
	})

	d.handle("add-purchase", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var req domain.PurchaseRequest
		if err := decode(payload, &req); err != nil {
			return nil, err
		}
		return backend.AddPurchase(ctx, req)
	})
	d.handle("get-purchases", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var filter domain.PurchaseFilter
		if err := decode(payload, &filter); err != nil {
			return nil, err
		}
		return backend.ListPurchases(ctx, filter)
	})

	d.handle("get-sales-report", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var filter domain.SalesReportFilter
		if err := decode(payload, &filter); err != nil {
			return nil, err
		}
		return backend.SalesReport(ctx, filter)
	})
	d.handle("get-daybook", func(ctx context.Context, payload json.RawMessage) (any, error) {
		day, err := decodeString(payload, "date")
		if err != nil {
			return nil, err
		}
		return backend.Daybook(ctx, day)
	})

	d.handle("get-settings", func(ctx context.Context, _ json.RawMessage) (any, error) {
		return backend.GetSettings(ctx)
	})
	d.handle("update-settings", func(ctx context.Context, payload json.RawMessage) (any, error) {
		var settings domain.Settings
		if err := decode(payload, &settings); err != nil {
			return nil, err
		}
		return backend.UpdateSettings(ctx, settings)
	})

	return d
}

func (d *Dispatcher) handle(name string, h Handler) {
	d.ops[name] = Operation{Name: name, Handle: h}
}

func (d *Dispatcher) public(name string, h Handler) {
	d.ops[name] = Operation{Name: name, Public: true, Handle: h}
}

func (d *Dispatcher) Lookup(name string) (Operation, bool) {
	op, ok := d.ops[name]
	return op, ok
}

func (d *Dispatcher) Names() []string {
	names := make([]string, 0, len(d.ops))
	for name := range d.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (d *Dispatcher) Dispatch(ctx context.Context, name string, payload json.RawMessage) (any, error) {
	op, ok := d.ops[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownOperation, name)
	}
	return op.Handle(ctx, payload)
}

func isEmpty(payload json.RawMessage) bool {
	trimmed := bytes.TrimSpace(payload)
	return len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null"))
}

// decode ignores fields it does not know. Clients post whole rows, such as a
// product spread into a cart line, and only the named fields are read.
func decode(payload json.RawMessage, dst any) error {
	if isEmpty(payload) {
		return nil
	}
	if err := json.Unmarshal(payload, dst); err != nil {
		return fmt.Errorf("%w: %v", store.ErrInvalidInput, err)
	}
	return nil
}

// decodeID accepts a bare id (5 or "5") or an object {"id": 5}.
func decodeID(payload json.RawMessage) (int64, error) {
	if isEmpty(payload) {
		return 0, fmt.Errorf("%w: id is required", store.ErrInvalidInput)
	}
	var id int64
	if err := json.Unmarshal(payload, &id); err == nil {
		return id, nil
	}
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		parsed, err := strconv.ParseInt(strings.TrimSpace(text), 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: id %q is not a number", store.ErrInvalidInput, text)
		}
		return parsed, nil
	}
	var wrapped struct {
		ID int64 `json:"id"`
	}
	if err := decode(payload, &wrapped); err != nil {
		return 0, err
	}
	return wrapped.ID, nil
}

// decodeString accepts a bare JSON string or an object holding it under key.
func decodeString(payload json.RawMessage, key string) (string, error) {
	if isEmpty(payload) {
		return "", nil
	}
	var text string
	if err := json.Unmarshal(payload, &text); err == nil {
		return text, nil
	}
	var wrapped map[string]string
	if err := json.Unmarshal(payload, &wrapped); err != nil {
		return "", fmt.Errorf("%w: expected a string or {%q: ...}", store.ErrInvalidInput, key)
	}
	return wrapped[key], nil
}
