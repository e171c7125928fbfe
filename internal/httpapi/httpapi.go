package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"ashkicharm/backend/internal/domain"
	"ashkicharm/backend/internal/service"
	"ashkicharm/backend/internal/session"
	"ashkicharm/backend/internal/store"
)

type API struct {
	service       *service.Service
	sessions      *session.Manager
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
}

func New(svc *service.Service, sessions *session.Manager, auth *AuthManager, allowedOrigin string) *API {
	return &API{
		service:       svc,
		sessions:      sessions,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
	}
}

type attemptLimiter struct {
	mu      sync.Mutex
	max     int
	window  time.Duration
	entries map[string][]time.Time
}

func newAttemptLimiter(max int, window time.Duration) *attemptLimiter {
	if max < 1 {
		max = 1
	}
	if window <= 0 {
		window = time.Minute
	}
	return &attemptLimiter{max: max, window: window, entries: make(map[string][]time.Time)}
}

func (l *attemptLimiter) Allow(key string) bool {
	if l == nil {
		return true
	}
	now := time.Now()
	cutoff := now.Add(-l.window)

	l.mu.Lock()
	defer l.mu.Unlock()

	history := l.entries[key]
	kept := make([]time.Time, 0, len(history)+1)
	for _, ts := range history {
		if ts.After(cutoff) {
			kept = append(kept, ts)
		}
	}
	if len(kept) >= l.max {
		l.entries[key] = kept
		return false
	}
	l.entries[key] = append(kept, now)
	return true
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
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/catalog", a.requireAuth(a.handleCatalog))
	mux.HandleFunc("/api/v1/catalog/price-list", a.requireAuth(a.handlePriceList))
	mux.HandleFunc("/api/v1/products", a.requireAuth(a.handleProducts))
	mux.HandleFunc("/api/v1/products/{id}", a.requireAuth(a.handleProduct))
	mux.HandleFunc("/api/v1/products/{id}/prices", a.requireAuth(a.handleProductPrices))
	mux.HandleFunc("/api/v1/products/{id}/flavors", a.requireAuth(a.handleProductFlavors))
	mux.HandleFunc("/api/v1/flavors/{id}", a.requireAuth(a.handleFlavor))
	mux.HandleFunc("/api/v1/flavors/{id}/quantity", a.requireAuth(a.handleFlavorQuantity))

	mux.HandleFunc("/api/v1/sales/cart", a.requireAuth(a.handleCartCommit))
	mux.HandleFunc("/api/v1/sales/quick", a.requireAuth(a.handleQuickSale))
	mux.HandleFunc("/api/v1/sales/{id}", a.requireAuth(a.handleSale))
	mux.HandleFunc("/api/v1/customers/today", a.requireAuth(a.handleTodayCustomers))
	mux.HandleFunc("/api/v1/customers/{id}", a.requireAuth(a.handleCustomer))
	mux.HandleFunc("/api/v1/customers/{id}/lines", a.requireAuth(a.handleCustomerLines))
	mux.HandleFunc("/api/v1/defects", a.requireAuth(a.handleDefects))

	mux.HandleFunc("/api/v1/income", a.requireAuth(a.handleIncome))
	mux.HandleFunc("/api/v1/income/current", a.requireAuth(a.handleCurrentIncome))
	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport))
	mux.HandleFunc("/api/v1/reports/customers", a.requireAuth(a.handleMonthCustomers))
	mux.HandleFunc("/api/v1/reports/stats", a.requireAuth(a.handleStats))

	mux.HandleFunc("/api/v1/conversations", a.requireAuth(a.handleConversations))
	mux.HandleFunc("/api/v1/conversations/{id}", a.requireAuth(a.handleConversation))
	mux.HandleFunc("/api/v1/conversations/{id}/lines", a.requireAuth(a.handleConversationLines))
	mux.HandleFunc("/api/v1/conversations/{id}/lines/{index}", a.requireAuth(a.handleConversationLine))
	mux.HandleFunc("/api/v1/conversations/{id}/checkout", a.requireAuth(a.handleConversationCheckout))
	mux.HandleFunc("/api/v1/conversations/{id}/back", a.requireAuth(a.handleConversationBack))
	mux.HandleFunc("/api/v1/conversations/{id}/commit", a.requireAuth(a.handleConversationCommit))
	mux.HandleFunc("/api/v1/conversations/{id}/defect", a.requireAuth(a.handleConversationDefect))
	mux.HandleFunc("/api/v1/conversations/{id}/customer", a.requireAuth(a.handleConversationCustomer))
	mux.HandleFunc("/api/v1/conversations/{id}/sale", a.requireAuth(a.handleConversationSale))
	mux.HandleFunc("/api/v1/conversations/{id}/action", a.requireAuth(a.handleConversationAction))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
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

	resp, err := a.auth.Login(req)
	if err != nil {
		log.Warn().Str("client", clientKey(r)).Msg("failed login attempt")
		writeError(w, http.StatusUnauthorized, err)
		return
	}

	writeJSON(w, http.StatusOK, resp)
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (s *statusRecorder) WriteHeader(code int) {
	s.status = code
	s.ResponseWriter.WriteHeader(code)
}

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Cross-Origin-Opener-Policy", "same-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if (r.Method == http.MethodPost || r.Method == http.MethodPatch || r.Method == http.MethodPut) && strings.Contains(strings.ToLower(r.Header.Get("Content-Type")), "application/json") {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		startedAt := time.Now()
		next.ServeHTTP(rec, r)
		took := time.Since(startedAt)

		observeRequest(r.Method, r.Pattern, rec.status, took)
		log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Int("status", rec.status).
			Dur("duration", took).
			Msg("request")
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

func pathID(r *http.Request, name string) (int64, error) {
	raw := strings.TrimSpace(r.PathValue(name))
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id < 1 {
		return 0, errors.New(name + " must be a positive integer")
	}
	return id, nil
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func writeError(w http.ResponseWriter, status int, err error) {
	// 5xx bodies stay generic; the cause goes to the log.
	msg := err.Error()
	if status >= 500 {
		log.Error().Err(err).Int("status", status).Msg("internal error")
		msg = "internal server error"
	}
	writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

// writeServiceError maps engine errors to status codes and keeps the
// details a caller needs to correct the request.
func writeServiceError(w http.ResponseWriter, err error) {
	var stockErr *service.InsufficientStockError
	var dupErr *service.DuplicateFlavorError
	var invalidErr *service.InvalidInputError

	switch {
	case errors.As(err, &stockErr):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "shortages": stockErr.Lines})
	case errors.As(err, &dupErr):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "duplicates": dupErr.Names})
	case errors.As(err, &invalidErr):
		writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error(), "problems": invalidErr.Problems})
	case errors.Is(err, store.ErrNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, store.ErrDuplicate), errors.Is(err, store.ErrConflict), errors.Is(err, store.ErrInsufficientStock):
		writeError(w, http.StatusConflict, err)
	case errors.Is(err, store.ErrInvalidInput):
		writeError(w, http.StatusBadRequest, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
