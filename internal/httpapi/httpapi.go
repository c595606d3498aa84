package httpapi

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/netip"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"tillbook/backend/internal/dispatch"
	"tillbook/backend/internal/domain"
	"tillbook/backend/internal/service"
	"tillbook/backend/internal/store"
)

const (
	ipcPrefix       = "/api/v1/ipc/"
	maxRequestBytes = 1 << 20
)

type API struct {
	dispatcher    *dispatch.Dispatcher
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(dispatcher *dispatch.Dispatcher, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		dispatcher:    dispatcher,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

// attemptLimiter hands out one token bucket per client key.
type attemptLimiter struct {
	mu      sync.Mutex
	limit   rate.Limit
	burst   int
	entries map[string]*limiterEntry
}

type limiterEntry struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{
		limit:   rate.Every(window / time.Duration(max)),
		burst:   max,
		entries: make(map[string]*limiterEntry),
	}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()

	l.mu.Lock()
	defer l.mu.Unlock()

	if len(l.entries) > 4096 {
		for k, entry := range l.entries {
			if now.Sub(entry.lastSeen) > 10*time.Minute {
				delete(l.entries, k)
			}
		}
	}

	entry, ok := l.entries[key]
	if !ok {
		entry = &limiterEntry{limiter: rate.NewLimiter(l.limit, l.burst)}
		l.entries[key] = entry
	}
	entry.lastSeen = now
	return entry.limiter.AllowN(now, 1)
}

func clientKey(r *http.Request) string {
	host := strings.TrimSpace(r.RemoteAddr)
	if host == "" {
		return "unknown"
	}
	if addr, err := netip.ParseAddrPort(host); err == nil {
		return addr.Addr().String()
	}
	if idx := strings.LastIndex(host, ":"); idx > 0 {
		return host[:idx]
	}
	return host
}

func (a *API) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", a.handleHealth)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)
	mux.HandleFunc("/api/v1/ipc", a.handleOperations)
	mux.HandleFunc(ipcPrefix, a.handleIPC)

	return a.withMiddleware(mux)
}

func (a *API) authenticate(r *http.Request) (domain.Actor, error) {
	authorization := strings.TrimSpace(r.Header.Get("Authorization"))
	if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
		return domain.Actor{}, errors.New("missing bearer token")
	}
	token := strings.TrimSpace(authorization[len("Bearer "):])
	return a.auth.ParseToken(token)
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

// handleOperations lists the operation names a signed-in client may call.
func (a *API) handleOperations(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	if _, err := a.authenticate(r); err != nil {
		writeError(w, http.StatusUnauthorized, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"operations": a.dispatcher.Names()})
}

func (a *API) handleIPC(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}

	name := strings.Trim(strings.TrimPrefix(r.URL.Path, ipcPrefix), "/")
	op, ok := a.dispatcher.Lookup(name)
	if !ok {
		writeOperationError(w, fmt.Errorf("%w: %s", dispatch.ErrUnknownOperation, name))
		return
	}

	ctx := r.Context()
	if op.Public {
		if !a.loginLimiter.Allow(clientKey(r)) {
			writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
			return
		}
	} else {
		actor, err := a.authenticate(r)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}
		ctx = service.WithActor(ctx, actor)
	}

	payload, err := io.ReadAll(r.Body)
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, errors.New("request body too large"))
			return
		}
		writeError(w, http.StatusBadRequest, err)
		return
	}
	if len(bytes.TrimSpace(payload)) > 0 && !json.Valid(payload) {
		writeError(w, http.StatusBadRequest, errors.New("payload is not valid JSON"))
		return
	}

	result, err := op.Handle(ctx, payload)
	if err != nil {
		writeOperationError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"result": result})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(status int) {
	s.status = status
	s.ResponseWriter.WriteHeader(status)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestID := strings.TrimSpace(r.Header.Get("X-Request-ID"))
		if requestID == "" || len(requestID) > 128 {
			requestID = uuid.NewString()
		}

		w.Header().Set("X-Request-ID", requestID)
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Request-ID")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost {
			r.Body = http.MaxBytesReader(w, r.Body, maxRequestBytes)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		log.Printf("[http] %s %s %s %d %s", requestID, r.Method, r.URL.Path, rec.status, time.Since(startedAt))
	})
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

// errorStatus maps an operation error onto an HTTP status and a stable code
// the UI can switch on.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest, "invalid_input"
	case errors.Is(err, ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid_credentials"
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden, "forbidden"
	case errors.Is(err, dispatch.ErrUnknownOperation):
		return http.StatusNotFound, "unknown_operation"
	case errors.Is(err, store.ErrProductNotFound):
		return http.StatusNotFound, "product_not_found"
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict, "insufficient_stock"
	case errors.Is(err, store.ErrStockConflict):
		return http.StatusConflict, "stock_conflict"
	case errors.Is(err, store.ErrConstraintViolation):
		return http.StatusConflict, "constraint_violation"
	default:
		return http.StatusInternalServerError, "store_error"
	}
}

func writeOperationError(w http.ResponseWriter, err error) {
	status, code := errorStatus(err)
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	body := map[string]any{
		"error": msg,
		"code":  code,
	}
	if errors.Is(err, store.ErrStockConflict) {
		body["retryable"] = true
	}
	writeJSON(w, status, body)
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies never carry the underlying error text.
	msg := err.Error()
	if status >= 500 {
		log.Printf("internal error (status %d): %v", status, err)
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
