package httpapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"tillbook/backend/internal/dispatch"
	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/service"
	"tillbook/backend/internal/store/memory"
)

// newTestAPI builds a full API over the in-memory store so handler tests
// exercise the complete request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	repo := memory.NewSeeded(mustHashPassword(t, "admin123"))
	svc := service.New(repo, nil, service.Options{
		Now: func() time.Time { return time.Date(2024, 6, 15, 9, 0, 0, 0, time.UTC) },
	})
	auth := NewAuthManager("test-secret-key", time.Hour, repo)

	return New(dispatch.New(svc, auth), auth, "*")
}

func mustHashPassword(t *testing.T, plain string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("bcrypt: %v", err)
	}
	return string(hash)
}

func login(t *testing.T, handler http.Handler, username, password string) string {
	t.Helper()
	payload, _ := json.Marshal(domain.LoginRequest{Username: username, Password: password})
	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(payload))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: expected 200, got %d (body: %s)", username, rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	if err := json.NewDecoder(rec.Body).Decode(&resp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	return resp.AccessToken
}

func call(t *testing.T, handler http.Handler, token, operation string, payload any) *httptest.ResponseRecorder {
	t.Helper()
	var body []byte
	if payload != nil {
		var err error
		if body, err = json.Marshal(payload); err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
	}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/ipc/"+operation, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeResult(t *testing.T, rec *httptest.ResponseRecorder, dest any) {
	t.Helper()
	var envelope struct {
		Result json.RawMessage `json:"result"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&envelope); err != nil {
		t.Fatalf("decode envelope: %v", err)
	}
	if err := json.Unmarshal(envelope.Result, dest); err != nil {
		t.Fatalf("decode result %s: %v", envelope.Result, err)
	}
}

func decodeErrorBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestHandleHealth(t *testing.T) {
	api := newTestAPI(t)
	handler := api.Handler()

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()

	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body["ok"])
	}
}

func TestLoginThroughDispatcher(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := call(t, handler, "", "login", domain.LoginRequest{Username: "admin", Password: "admin123"})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var resp domain.LoginResponse
	decodeResult(t, rec, &resp)
	if resp.AccessToken == "" || resp.Role != domain.RoleAdmin {
		t.Fatalf("unexpected login response: %+v", resp)
	}

	rec = call(t, handler, "", "login", domain.LoginRequest{Username: "admin", Password: "nope"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for wrong password, got %d", rec.Code)
	}
	if code := decodeErrorBody(t, rec)["code"]; code != "invalid_credentials" {
		t.Fatalf("expected invalid_credentials, got %v", code)
	}
}

func TestIPCRequiresBearerToken(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := call(t, handler, "", "get-products", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without token, got %d", rec.Code)
	}

	rec = call(t, handler, "not-a-jwt", "get-products", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 with garbage token, got %d", rec.Code)
	}
}

func TestIPCUnknownOperationAndMethod(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := call(t, handler, token, "drop-tables", nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown operation, got %d", rec.Code)
	}
	if code := decodeErrorBody(t, rec)["code"]; code != "unknown_operation" {
		t.Fatalf("expected unknown_operation, got %v", code)
	}

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ipc/get-products", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	res := httptest.NewRecorder()
	handler.ServeHTTP(res, req)
	if res.Code != http.StatusMethodNotAllowed {
		t.Fatalf("expected 405 for GET, got %d", res.Code)
	}
}

func TestOperationListing(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ipc", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var body struct {
		Operations []string `json:"operations"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Operations) != 17 {
		t.Fatalf("expected 17 operations, got %v", body.Operations)
	}
}

func TestSaveBillOverHTTP(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := call(t, handler, token, "save-bill", domain.BillRequest{
		CustomerID: 1,
		Items:      []domain.CartItem{{ProductID: 2, Quantity: 3}},
		GST:        18,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	var bill domain.Bill
	decodeResult(t, rec, &bill)
	if bill.Subtotal != 14400 || bill.GSTAmount != 2592 || bill.Total != 16992 {
		t.Fatalf("unexpected totals: %+v", bill)
	}
	if len(bill.Items) != 1 || bill.Items[0].Name != "Sugar" {
		t.Fatalf("expected the line to carry the product snapshot, got %+v", bill.Items)
	}

	rec = call(t, handler, token, "get-products", nil)
	var products []domain.Product
	decodeResult(t, rec, &products)
	if products[1].Stock != 117 {
		t.Fatalf("expected sugar stock 117, got %d", products[1].Stock)
	}
}

func TestSaveBillInsufficientStockIsConflict(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := call(t, handler, token, "save-bill", domain.BillRequest{
		CustomerID: 1,
		Items:      []domain.CartItem{{ProductID: 1, Quantity: 41}},
	})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeErrorBody(t, rec)
	if body["code"] != "insufficient_stock" {
		t.Fatalf("expected insufficient_stock, got %v", body["code"])
	}
	if _, ok := body["retryable"]; ok {
		t.Fatalf("insufficient stock must not be marked retryable")
	}

	rec = call(t, handler, token, "save-bill", domain.BillRequest{
		CustomerID: 1,
		Items:      []domain.CartItem{{ProductID: 404, Quantity: 1}},
	})
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown product, got %d", rec.Code)
	}
	if code := decodeErrorBody(t, rec)["code"]; code != "product_not_found" {
		t.Fatalf("expected product_not_found, got %v", code)
	}
}

func TestInvalidPayloadIsBadRequest(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	req := httptest.NewRequest(http.MethodPost, "/api/v1/ipc/add-product", bytes.NewReader([]byte(`{"code":`)))
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for broken JSON, got %d", rec.Code)
	}

	rec = call(t, handler, token, "add-product", map[string]any{"code": "X", "name": "X", "sale_price": "ten"})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed price, got %d", rec.Code)
	}
	if code := decodeErrorBody(t, rec)["code"]; code != "invalid_input" {
		t.Fatalf("expected invalid_input, got %v", code)
	}
}

func TestCashierCannotCallAdminOperations(t *testing.T) {
	handler := newTestAPI(t).Handler()
	adminToken := login(t, handler, "admin", "admin123")

	rec := call(t, handler, adminToken, "add-user", domain.UserCreateRequest{Username: "till-1", Password: "secret1", Role: domain.RoleCashier})
	if rec.Code != http.StatusOK {
		t.Fatalf("add-user: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	cashierToken := login(t, handler, "till-1", "secret1")

	for _, op := range []string{"add-product", "get-daybook", "get-purchases", "get-sales-report", "update-settings", "add-user"} {
		rec := call(t, handler, cashierToken, op, nil)
		if rec.Code != http.StatusForbidden {
			t.Fatalf("%s: expected 403 for cashier, got %d (body: %s)", op, rec.Code, rec.Body.String())
		}
	}

	rec = call(t, handler, cashierToken, "get-settings", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get-settings: expected 200 for cashier, got %d", rec.Code)
	}
	var settings domain.Settings
	decodeResult(t, rec, &settings)
	if settings.BusinessName != domain.DefaultSettings().BusinessName {
		t.Fatalf("unexpected settings: %+v", settings)
	}
}

func TestDeleteMissingProductIsNotFound(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := call(t, handler, token, "delete-product", 999)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
	if code := decodeErrorBody(t, rec)["code"]; code != "not_found" {
		t.Fatalf("expected not_found, got %v", code)
	}
}

func TestDuplicateProductCodeIsConflict(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := login(t, handler, "admin", "admin123")

	rec := call(t, handler, token, "add-product", domain.Product{Code: "RICE-5KG", Name: "Another rice", Unit: "PCS", SalePrice: 100})
	if rec.Code != http.StatusConflict {
		t.Fatalf("expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if code := decodeErrorBody(t, rec)["code"]; code != "constraint_violation" {
		t.Fatalf("expected constraint_violation, got %v", code)
	}
}
