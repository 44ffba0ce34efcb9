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

	"go.uber.org/zap"

	"warungrekap/internal/cart"
	"warungrekap/internal/domain"
	"warungrekap/internal/service"
	"warungrekap/internal/store"
	"warungrekap/internal/xid"
)

// orderSessionTTL bounds how long an abandoned draft order is kept around.
const orderSessionTTL = 2 * time.Hour

type API struct {
	service       *service.Service
	auth          *AuthManager
	allowedOrigin string
	loginLimiter  *attemptLimiter
	logger        *zap.Logger

	mu     sync.Mutex
	orders map[string]*orderSession
}

// orderSession is a draft order held in process memory. It exists only
// between "start order" and checkout; nothing about it is persisted. The
// cart itself is unsynchronized, and concurrent handlers can share one
// draft, so every cart access goes through mu.
type orderSession struct {
	mu        sync.Mutex
	tenant    string
	cart      *cart.Session
	createdAt time.Time
}

func New(svc *service.Service, auth *AuthManager, allowedOrigin string, logger *zap.Logger) *API {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &API{
		service:       svc,
		auth:          auth,
		allowedOrigin: allowedOrigin,
		loginLimiter:  newAttemptLimiter(5, time.Minute),
		logger:        logger,
		orders:        make(map[string]*orderSession),
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
	kept = append(kept, now)
	l.entries[key] = kept
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
	mux.HandleFunc("/api/v1/auth/register", a.handleRegister)
	mux.HandleFunc("/api/v1/auth/login", a.handleLogin)

	mux.HandleFunc("/api/v1/menu", a.requireAuth(a.handleMenu))
	mux.HandleFunc("/api/v1/menu/", a.requireAuth(a.handleMenuActions))
	mux.HandleFunc("/api/v1/orders", a.requireAuth(a.handleOrders))
	mux.HandleFunc("/api/v1/orders/", a.requireAuth(a.handleOrderActions))
	mux.HandleFunc("/api/v1/credits", a.requireAuth(a.handleCredits))
	mux.HandleFunc("/api/v1/credits/", a.requireAuth(a.handleCreditActions))
	mux.HandleFunc("/api/v1/expenses", a.requireAuth(a.handleExpenses))
	mux.HandleFunc("/api/v1/reports/daily", a.requireAuth(a.handleDailyReport))
	mux.HandleFunc("/api/v1/reports/monthly", a.requireAuth(a.handleMonthlyReport))
	mux.HandleFunc("/api/v1/dashboard", a.requireAuth(a.handleDashboard))

	return a.withMiddleware(mux)
}

func (a *API) requireAuth(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		authorization := strings.TrimSpace(r.Header.Get("Authorization"))
		if !strings.HasPrefix(strings.ToLower(authorization), "bearer ") {
			a.writeError(w, http.StatusUnauthorized, errors.New("missing bearer token"))
			return
		}

		token := strings.TrimSpace(authorization[len("Bearer "):])
		actor, err := a.auth.ParseToken(token)
		if err != nil {
			a.writeError(w, http.StatusUnauthorized, err)
			return
		}

		next(w, r.WithContext(service.WithActor(r.Context(), actor)))
	}
}

func actor(r *http.Request) domain.Actor {
	act, _ := service.ActorFromContext(r.Context())
	return act
}

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	a.writeJSON(w, http.StatusOK, map[string]any{
		"ok": true,
		"at": time.Now().UTC().Format(time.RFC3339),
	})
}

func (a *API) handleRegister(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req RegisterRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Register(r.Context(), req)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}

	a.writeJSON(w, http.StatusCreated, resp)
}

func (a *API) handleLogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}
	if !a.loginLimiter.Allow(clientKey(r)) {
		a.writeError(w, http.StatusTooManyRequests, errors.New("too many login attempts"))
		return
	}

	var req domain.LoginRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	resp, err := a.auth.Login(r.Context(), req)
	if err != nil {
		a.writeError(w, http.StatusUnauthorized, err)
		return
	}

	a.writeJSON(w, http.StatusOK, resp)
}

// --- menu ---

func (a *API) handleMenu(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		items, err := a.service.ListItems(r.Context(), actor(r).Tenant)
		if err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"items": items})
	case http.MethodPost:
		var req AddMenuItemRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		item, err := a.service.AddItem(r.Context(), actor(r).Tenant, req.Name, req.Price, req.Stock)
		if err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"item": item})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleMenuActions(w http.ResponseWriter, r *http.Request) {
	tail, ok := pathTail(r.URL.Path, "/api/v1/menu/")
	if !ok || tail == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("menu item id required"))
		return
	}

	if rest, found := strings.CutSuffix(tail, "/stock"); found {
		id, err := parseID(rest)
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		a.handleSetStock(w, r, id)
		return
	}

	id, err := parseID(tail)
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	switch r.Method {
	case http.MethodPatch:
		var req UpdateMenuItemRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		item, err := a.service.UpdateItem(r.Context(), actor(r).Tenant, id, req.Name, req.Price)
		if err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"item": item})
	case http.MethodDelete:
		if err := a.service.DeleteItem(r.Context(), actor(r).Tenant, id); err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"deleted": true})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleSetStock(w http.ResponseWriter, r *http.Request, id int) {
	if r.Method != http.MethodPut {
		a.writeMethodNotAllowed(w)
		return
	}

	var req SetStockRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	item, err := a.service.SetStock(r.Context(), actor(r).Tenant, id, req.Stock)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"item": item})
}

// --- orders ---

func (a *API) handleOrders(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	var req StartOrderRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}
	if err := req.Validate(); err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	sess, err := a.service.StartCart(actor(r).Tenant, req.CustomerName)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}

	orderID := xid.New("ord")
	a.mu.Lock()
	a.pruneExpiredLocked()
	a.orders[orderID] = &orderSession{
		tenant:    sess.Tenant,
		cart:      sess,
		createdAt: time.Now(),
	}
	a.mu.Unlock()

	a.writeJSON(w, http.StatusCreated, map[string]any{
		"order_id":      orderID,
		"customer_name": sess.CustomerName,
	})
}

func (a *API) handleOrderActions(w http.ResponseWriter, r *http.Request) {
	tail, ok := pathTail(r.URL.Path, "/api/v1/orders/")
	if !ok || tail == "" {
		a.writeError(w, http.StatusBadRequest, errors.New("order id required"))
		return
	}

	parts := strings.Split(tail, "/")
	orderID := parts[0]

	sess, err := a.getOrder(orderID, actor(r).Tenant)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}

	sess.mu.Lock()
	defer sess.mu.Unlock()

	switch {
	case len(parts) == 1:
		switch r.Method {
		case http.MethodGet:
			a.writeOrderView(w, r, orderID, sess)
		case http.MethodDelete:
			a.dropOrder(orderID)
			a.writeJSON(w, http.StatusOK, map[string]any{"cancelled": true})
		default:
			a.writeMethodNotAllowed(w)
		}
	case parts[1] == "items" && len(parts) == 2:
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		var req OrderLineRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := a.service.AddCartLine(r.Context(), sess.cart, req.ItemID); err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeOrderView(w, r, orderID, sess)
	case parts[1] == "items" && len(parts) == 3:
		if r.Method != http.MethodDelete {
			a.writeMethodNotAllowed(w)
			return
		}
		itemID, err := parseID(parts[2])
		if err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		a.service.RemoveCartLine(sess.cart, itemID)
		a.writeOrderView(w, r, orderID, sess)
	case parts[1] == "checkout" && len(parts) == 2:
		if r.Method != http.MethodPost {
			a.writeMethodNotAllowed(w)
			return
		}
		summary, err := a.service.Finalize(r.Context(), sess.cart)
		if err != nil {
			// The draft survives a failed checkout so the client can fix
			// the cart and retry.
			a.writeError(w, statusForError(err), err)
			return
		}
		a.dropOrder(orderID)
		a.writeJSON(w, http.StatusOK, map[string]any{"order": summary})
	default:
		a.writeError(w, http.StatusBadRequest, errors.New("unknown order action"))
	}
}

func (a *API) writeOrderView(w http.ResponseWriter, r *http.Request, orderID string, sess *orderSession) {
	total, err := a.service.CartTotal(r.Context(), sess.cart)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{
		"order_id":      orderID,
		"customer_name": sess.cart.CustomerName,
		"lines":         sess.cart.Lines(),
		"total":         total,
	})
}

func (a *API) getOrder(orderID, tenant string) (*orderSession, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	sess, ok := a.orders[orderID]
	if !ok || sess.tenant != tenant {
		return nil, errors.New("order not found")
	}
	if time.Since(sess.createdAt) > orderSessionTTL {
		delete(a.orders, orderID)
		return nil, errors.New("order not found")
	}
	return sess, nil
}

func (a *API) dropOrder(orderID string) {
	a.mu.Lock()
	delete(a.orders, orderID)
	a.mu.Unlock()
}

func (a *API) pruneExpiredLocked() {
	for id, sess := range a.orders {
		if time.Since(sess.createdAt) > orderSessionTTL {
			delete(a.orders, id)
		}
	}
}

// --- credits ---

func (a *API) handleCredits(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		credits, err := a.service.ListActiveCredits(r.Context(), actor(r).Tenant)
		if err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"credits": credits})
	case http.MethodPost:
		var req AddCreditRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		entry, err := a.service.AddCredit(r.Context(), actor(r).Tenant, req.DebtorName, req.Amount)
		if err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"credit": entry})
	default:
		a.writeMethodNotAllowed(w)
	}
}

func (a *API) handleCreditActions(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		a.writeMethodNotAllowed(w)
		return
	}

	tail, ok := pathTail(r.URL.Path, "/api/v1/credits/")
	if !ok || !strings.HasSuffix(tail, "/settle") {
		a.writeError(w, http.StatusBadRequest, errors.New("invalid credit action path"))
		return
	}

	id, err := parseID(strings.TrimSuffix(tail, "/settle"))
	if err != nil {
		a.writeError(w, http.StatusBadRequest, err)
		return
	}

	entry, err := a.service.SettleCredit(r.Context(), actor(r).Tenant, id)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]any{"credit": entry})
}

// --- expenses ---

func (a *API) handleExpenses(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		date := r.URL.Query().Get("date")
		expenses, err := a.service.ListExpensesByDate(r.Context(), actor(r).Tenant, date)
		if err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusOK, map[string]any{"expenses": expenses})
	case http.MethodPost:
		var req AddExpenseRequest
		if err := decodeJSON(r, &req); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}
		if err := req.Validate(); err != nil {
			a.writeError(w, http.StatusBadRequest, err)
			return
		}

		expense, err := a.service.AddExpense(r.Context(), actor(r).Tenant, req.Description, req.Amount, req.Date)
		if err != nil {
			a.writeError(w, statusForError(err), err)
			return
		}
		a.writeJSON(w, http.StatusCreated, map[string]any{"expense": expense})
	default:
		a.writeMethodNotAllowed(w)
	}
}

// --- reports ---

func (a *API) handleDailyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	date := r.URL.Query().Get("date")
	summary, err := a.service.DailySummary(r.Context(), actor(r).Tenant, date)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleMonthlyReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	period := r.URL.Query().Get("period")
	summary, err := a.service.MonthlySummary(r.Context(), actor(r).Tenant, period)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, summary)
}

func (a *API) handleDashboard(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		a.writeMethodNotAllowed(w)
		return
	}

	dash, err := a.service.Dashboard(r.Context(), actor(r).Tenant)
	if err != nil {
		a.writeError(w, statusForError(err), err)
		return
	}
	a.writeJSON(w, http.StatusOK, dash)
}

// --- plumbing ---

func (a *API) withMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")
		w.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		w.Header().Set("Access-Control-Allow-Origin", a.allowedOrigin)
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Access-Control-Allow-Methods", "GET,POST,PUT,PATCH,DELETE,OPTIONS")
		w.Header().Set("Vary", "Origin")

		if r.Method == http.MethodPost || r.Method == http.MethodPut || r.Method == http.MethodPatch {
			r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
		}

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}

		startedAt := time.Now()
		next.ServeHTTP(w, r)
		a.logger.Info("request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Duration("took", time.Since(startedAt)))
	})
}

// statusForError maps ledger sentinels onto HTTP statuses. Unknown order ids
// and empty carts surface from getOrder/Finalize directly.
func statusForError(err error) int {
	switch {
	case errors.Is(err, store.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, store.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, store.ErrInsufficientStock):
		return http.StatusConflict
	case errors.Is(err, store.ErrEmptyCart):
		return http.StatusUnprocessableEntity
	case errors.Is(err, store.ErrPersistence):
		return http.StatusInternalServerError
	case err != nil && strings.Contains(err.Error(), "not found"):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func pathTail(path, prefix string) (string, bool) {
	if !strings.HasPrefix(path, prefix) {
		return "", false
	}
	return strings.TrimSpace(strings.Trim(strings.TrimPrefix(path, prefix), "/")), true
}

func parseID(raw string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(strings.Trim(raw, "/")))
	if err != nil || id < 1 {
		return 0, errors.New("numeric id required")
	}
	return id, nil
}

func decodeJSON(r *http.Request, dest any) error {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dest); err != nil {
		return err
	}
	return nil
}

func (a *API) writeMethodNotAllowed(w http.ResponseWriter) {
	a.writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func (a *API) writeError(w http.ResponseWriter, status int, err error) {
	// 5xx messages are replaced with a generic body so store internals never
	// leak to clients; the real error goes to the log.
	msg := err.Error()
	if status >= 500 {
		a.logger.Error("internal error", zap.Int("status", status), zap.Error(err))
		msg = "internal server error"
	}
	a.writeJSON(w, status, map[string]any{
		"error": msg,
	})
}

func (a *API) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
