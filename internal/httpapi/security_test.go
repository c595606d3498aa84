package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"tillbook/backend/internal/dispatch"
	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/service"
	"tillbook/backend/internal/store"
)

func TestMiddlewareSetsSecurityHeaders(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Content-Type-Options"); got != "nosniff" {
		t.Fatalf("expected X-Content-Type-Options nosniff, got %q", got)
	}
	if got := res.Header().Get("X-Frame-Options"); got != "DENY" {
		t.Fatalf("expected X-Frame-Options DENY, got %q", got)
	}
	if got := res.Header().Get("Referrer-Policy"); got == "" {
		t.Fatalf("expected Referrer-Policy to be set")
	}
	if got := res.Header().Get("X-Request-ID"); got == "" {
		t.Fatalf("expected a generated X-Request-ID")
	}
}

func TestMiddlewareEchoesRequestID(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	req.Header.Set("X-Request-ID", "till-42")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if got := res.Header().Get("X-Request-ID"); got != "till-42" {
		t.Fatalf("expected request id to be echoed, got %q", got)
	}
}

func TestPreflightReturnsNoContent(t *testing.T) {
	api := newTestAPI(t)
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/ipc/save-bill", nil)
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusNoContent {
		t.Fatalf("expected 204 for preflight, got %d", res.Code)
	}
	if got := res.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Fatalf("expected configured origin, got %q", got)
	}
}

func TestLoginRateLimitReturns429(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		req.RemoteAddr = "127.0.0.1:5000"
		res := httptest.NewRecorder()

		api.Handler().ServeHTTP(res, req)

		if i < 5 && res.Code != http.StatusUnauthorized {
			t.Fatalf("attempt %d expected 401 before limit, got %d", i+1, res.Code)
		}
		if i == 5 && res.Code != http.StatusTooManyRequests {
			t.Fatalf("attempt 6 expected 429, got %d", res.Code)
		}
	}

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", bytes.NewReader(body))
	req.RemoteAddr = "10.0.0.8:5000"
	res := httptest.NewRecorder()
	api.Handler().ServeHTTP(res, req)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("another client must not share the limit, got %d", res.Code)
	}
}

func TestDispatchedLoginSharesRateLimit(t *testing.T) {
	api := newTestAPI(t)
	body, _ := json.Marshal(domain.LoginRequest{Username: "admin", Password: "wrong-pass"})

	var last int
	for i := 0; i < 6; i++ {
		req := httptest.NewRequest(http.MethodPost, "/api/v1/ipc/login", bytes.NewReader(body))
		req.RemoteAddr = "127.0.0.1:6000"
		res := httptest.NewRecorder()
		api.Handler().ServeHTTP(res, req)
		last = res.Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 after repeated dispatched logins, got %d", last)
	}
}

func TestJSONBodyTooLargeRejected(t *testing.T) {
	api := newTestAPI(t)
	veryLong := strings.Repeat("a", (1<<20)+1024)
	body := fmt.Sprintf(`{"username":"%s","password":"x"}`, veryLong)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for too large body, got %d", res.Code)
	}

	token := loginAsAdmin(t, api)
	req = httptest.NewRequest(http.MethodPost, "/api/v1/ipc/add-customer", strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	res = httptest.NewRecorder()

	api.Handler().ServeHTTP(res, req)

	if res.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("expected 413 for too large operation payload, got %d", res.Code)
	}
}

func TestErrorStatusMapping(t *testing.T) {
	cases := []struct {
		err    error
		status int
		code   string
	}{
		{fmt.Errorf("%w: name is required", store.ErrInvalidInput), http.StatusBadRequest, "invalid_input"},
		{ErrInvalidCredentials, http.StatusUnauthorized, "invalid_credentials"},
		{service.ErrForbidden, http.StatusForbidden, "forbidden"},
		{fmt.Errorf("%w: x", dispatch.ErrUnknownOperation), http.StatusNotFound, "unknown_operation"},
		{store.ProductNotFound(9), http.StatusNotFound, "product_not_found"},
		{store.ErrNotFound, http.StatusNotFound, "not_found"},
		{&store.InsufficientStockError{ProductID: 1, Name: "Rice", Available: 1, Requested: 2}, http.StatusConflict, "insufficient_stock"},
		{store.ErrStockConflict, http.StatusConflict, "stock_conflict"},
		{store.ErrConstraintViolation, http.StatusConflict, "constraint_violation"},
		{errors.New("database is locked"), http.StatusInternalServerError, "store_error"},
	}
	for _, tc := range cases {
		status, code := errorStatus(tc.err)
		if status != tc.status || code != tc.code {
			t.Fatalf("%v: expected %d/%s, got %d/%s", tc.err, tc.status, tc.code, status, code)
		}
	}
}

func TestStockConflictIsRetryableAndStoreErrorsAreHidden(t *testing.T) {
	res := httptest.NewRecorder()
	writeOperationError(res, fmt.Errorf("save bill: %w", store.ErrStockConflict))
	var body map[string]any
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body["retryable"] != true {
		t.Fatalf("expected retryable flag, got %v", body)
	}

	res = httptest.NewRecorder()
	writeOperationError(res, errors.New("open /var/lib/tillbook.db: permission denied"))
	if res.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", res.Code)
	}
	if strings.Contains(res.Body.String(), "/var/lib") {
		t.Fatalf("store error details leaked: %s", res.Body.String())
	}
}

func loginAsAdmin(t *testing.T, api *API) string {
	t.Helper()
	return login(t, api.Handler(), "admin", "admin123")
}
