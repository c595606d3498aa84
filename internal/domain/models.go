package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"time"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
)

const DateLayout = "2006-01-02"

const DefaultAdminUsername = "admin"

type UserAccount struct {
	ID        int64     `json:"id" db:"id"`
	Username  string    `json:"username" db:"username"`
	Password  string    `json:"-" db:"password"`
	Role      string    `json:"role" db:"role"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

type UserCreateRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
	Role     string `json:"role"`
}

type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type LoginResponse struct {
	ID          int64  `json:"id"`
	Role        string `json:"role"`
	AccessToken string `json:"access_token"`
	ExpiresAt   string `json:"expires_at"`
}

type Actor struct {
	Username string
	Role     string
}

type Product struct {
	ID            int64  `json:"id" db:"id"`
	Code          string `json:"code" db:"code"`
	Name          string `json:"name" db:"name"`
	Category      string `json:"category" db:"category"`
	Unit          string `json:"unit" db:"unit"`
	PurchasePrice Money  `json:"purchase_price" db:"purchase_price_cents"`
	SalePrice     Money  `json:"sale_price" db:"sale_price_cents"`
	Stock         int    `json:"stock" db:"stock"`
}

type ProductUpdateRequest struct {
	ID      int64   `json:"id"`
	Product Product `json:"product"`
}

type Customer struct {
	ID     int64  `json:"id" db:"id"`
	Name   string `json:"name" db:"name"`
	Mobile string `json:"mobile" db:"mobile"`
	GSTIN  string `json:"gstin" db:"gstin"`
}

type CustomerCreateResult struct {
	Existing bool  `json:"existing"`
	ID       int64 `json:"id"`
}

type InsertResult struct {
	ID      int64 `json:"id"`
	Changes int64 `json:"changes"`
}

type WriteResult struct {
	Changes int64 `json:"changes"`
}

// CartItem is one line of a bill request. Clients often post whole product
// rows with a quantity added, so the product id is also read from "id" and
// the other product columns are ignored.
type CartItem struct {
	ProductID int64 `json:"product_id"`
	Quantity  int   `json:"quantity"`
}

func (c *CartItem) UnmarshalJSON(data []byte) error {
	var fields lineFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	id, quantity, err := fields.resolve()
	if err != nil {
		return err
	}
	*c = CartItem{ProductID: id, Quantity: quantity}
	return nil
}

// BillRequest carries the cart. Total is what the client computed; the bill
// is always priced from stored product rows and Total is only compared.
type BillRequest struct {
	CustomerID int64      `json:"customer_id"`
	Items      []CartItem `json:"items"`
	Discount   Money      `json:"discount"`
	GST        Percent    `json:"gst"`
	Total      *Money     `json:"total,omitempty"`
	Date       string     `json:"date"`
}

type BillLine struct {
	ProductID int64  `json:"product_id" db:"product_id"`
	Name      string `json:"name" db:"name"`
	SalePrice Money  `json:"sale_price" db:"sale_price_cents"`
	Quantity  int    `json:"quantity" db:"quantity"`
}

type Bill struct {
	ID         int64      `json:"id" db:"id"`
	CustomerID int64      `json:"customer_id" db:"customer_id"`
	Items      []BillLine `json:"items" db:"-"`
	Subtotal   Money      `json:"subtotal" db:"subtotal_cents"`
	Discount   Money      `json:"discount" db:"discount_cents"`
	GST        float64    `json:"gst" db:"gst_percent"`
	GSTAmount  Money      `json:"gst_amount" db:"gst_cents"`
	Total      Money      `json:"total" db:"total_cents"`
	Date       string     `json:"date" db:"date"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
}

// BillRecord is a bill joined with the customer it was issued to.
type BillRecord struct {
	Bill
	CustomerName   string `json:"name" db:"customer_name"`
	CustomerMobile string `json:"mobile" db:"customer_mobile"`
}

type SalesReportFilter struct {
	DateFrom  string `json:"dateFrom"`
	DateTo    string `json:"dateTo"`
	ProductID int64  `json:"productId"`
	Mobile    string `json:"mobile"`
}

type PurchaseLine struct {
	ProductID     int64 `json:"product_id" db:"product_id"`
	Quantity      int   `json:"quantity" db:"quantity"`
	PurchasePrice Money `json:"purchase_price" db:"purchase_price_cents"`
}

func (l *PurchaseLine) UnmarshalJSON(data []byte) error {
	var fields lineFields
	if err := json.Unmarshal(data, &fields); err != nil {
		return err
	}
	id, quantity, err := fields.resolve()
	if err != nil {
		return err
	}
	*l = PurchaseLine{ProductID: id, Quantity: quantity, PurchasePrice: fields.PurchasePrice}
	return nil
}

type lineFields struct {
	ProductID     json.RawMessage `json:"product_id"`
	ID            json.RawMessage `json:"id"`
	Quantity      json.RawMessage `json:"quantity"`
	PurchasePrice Money           `json:"purchase_price"`
}

func (f lineFields) resolve() (int64, int, error) {
	raw := f.ProductID
	if len(raw) == 0 || string(raw) == "null" {
		raw = f.ID
	}
	id, err := looseInt(raw)
	if err != nil {
		return 0, 0, fmt.Errorf("product id: %w", err)
	}
	quantity, err := looseInt(f.Quantity)
	if err != nil {
		return 0, 0, fmt.Errorf("quantity: %w", err)
	}
	if quantity > math.MaxInt32 || quantity < math.MinInt32 {
		return 0, 0, fmt.Errorf("quantity %d is out of range", quantity)
	}
	return id, int(quantity), nil
}

type PurchaseRequest struct {
	Vendor string         `json:"vendor"`
	Date   string         `json:"date"`
	Items  []PurchaseLine `json:"items"`
	Total  *Money         `json:"total,omitempty"`
}

type Purchase struct {
	ID        int64          `json:"id" db:"id"`
	Vendor    string         `json:"vendor" db:"vendor"`
	Date      string         `json:"date" db:"date"`
	Items     []PurchaseLine `json:"items" db:"-"`
	Total     Money          `json:"total" db:"total_cents"`
	CreatedAt time.Time      `json:"created_at" db:"created_at"`
}

type PurchaseFilter struct {
	Vendor string `json:"vendor"`
	From   string `json:"from"`
	To     string `json:"to"`
}

type Daybook struct {
	Sales     Money `json:"sales"`
	Purchases Money `json:"purchases"`
	Profit    Money `json:"profit"`
}

type Settings struct {
	ID            int64   `json:"id" db:"id"`
	BusinessName  string  `json:"business_name" db:"business_name"`
	Logo          string  `json:"logo" db:"logo"`
	GSTPercentage float64 `json:"gst_percentage" db:"gst_percentage"`
	Units         string  `json:"units" db:"units"`
	InvoiceFooter string  `json:"invoice_footer" db:"invoice_footer"`
	InvoiceLayout string  `json:"invoice_layout" db:"invoice_layout"`
}

func DefaultSettings() Settings {
	return Settings{
		ID:            1,
		BusinessName:  "My Business",
		GSTPercentage: 18,
		Units:         "PCS,KG",
		InvoiceFooter: "Thank you!",
		InvoiceLayout: "default",
	}
}
