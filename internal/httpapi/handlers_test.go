package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"warungrekap/internal/domain"
	"warungrekap/internal/report"
	"warungrekap/internal/service"
	"warungrekap/internal/store"
	"warungrekap/internal/store/memory"
)

// memUserStore is a map-backed UserStore for handler tests.
type memUserStore struct {
	users map[string]domain.UserAccount
}

func newMemUserStore() *memUserStore {
	return &memUserStore{users: make(map[string]domain.UserAccount)}
}

func (m *memUserStore) CreateUser(ctx context.Context, user domain.UserAccount) error {
	if _, exists := m.users[user.Username]; exists {
		return fmt.Errorf("%w: username already taken", store.ErrInvalidInput)
	}
	m.users[user.Username] = user
	return nil
}

func (m *memUserStore) FindUser(ctx context.Context, username string) (domain.UserAccount, error) {
	user, ok := m.users[username]
	if !ok {
		return domain.UserAccount{}, store.ErrNotFound
	}
	return user, nil
}

// newTestAPI builds a full API with an in-memory tenant store, real
// AuthManager and real Service so handler tests exercise the complete
// request path.
func newTestAPI(t *testing.T) *API {
	t.Helper()

	svc := service.New(memory.NewSeeded(), report.NewEngine(nil, 0), nil)
	auth := NewAuthManager("test-secret-key", time.Hour, newMemUserStore())
	return New(svc, auth, "*", nil)
}

func doJSON(t *testing.T, handler http.Handler, method, path, token string, payload any) *httptest.ResponseRecorder {
	t.Helper()

	var body *bytes.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(raw)
	} else {
		body = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()

	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode body: %v (raw: %s)", err, rec.Body.String())
	}
	return body
}

// registerAndLogin registers the "warung" account, whose tenant handle maps
// onto the seeded catalog, and returns its bearer token.
func registerAndLogin(t *testing.T, handler http.Handler) string {
	t.Helper()

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":         "warung",
		"password":         "rahasia123",
		"confirm_password": "rahasia123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	body := decodeBody(t, rec)
	token, _ := body["access_token"].(string)
	if token == "" {
		t.Fatalf("expected access_token in register response, got %v", body)
	}
	return token
}

func TestHandleHealth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/healthz", "", nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if body := decodeBody(t, rec); body["ok"] != true {
		t.Fatalf("expected ok:true, got %v", body)
	}
}

func TestRegisterThenLogin(t *testing.T) {
	handler := newTestAPI(t).Handler()
	registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "warung",
		"password": "rahasia123",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("login: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	body := decodeBody(t, rec)
	if body["tenant"] != "warung" {
		t.Fatalf("expected tenant warung, got %v", body["tenant"])
	}
}

func TestLoginWrongPassword(t *testing.T) {
	handler := newTestAPI(t).Handler()
	registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", map[string]string{
		"username": "warung",
		"password": "salah",
	})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rec.Code)
	}
}

func TestLoginRateLimit(t *testing.T) {
	handler := newTestAPI(t).Handler()

	// The limiter allows 5 attempts per minute per client address; httptest
	// uses a fixed RemoteAddr.
	payload := map[string]string{"username": "warung", "password": "salah"}
	var last int
	for i := 0; i < 6; i++ {
		last = doJSON(t, handler, http.MethodPost, "/api/v1/auth/login", "", payload).Code
	}
	if last != http.StatusTooManyRequests {
		t.Fatalf("expected 429 on the sixth attempt, got %d", last)
	}
}

func TestMenuRequiresAuth(t *testing.T) {
	handler := newTestAPI(t).Handler()

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/menu", "", nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without a token, got %d", rec.Code)
	}
}

func TestMenuCRUD(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodGet, "/api/v1/menu", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list: expected 200, got %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if items, _ := body["items"].([]any); len(items) != 4 {
		t.Fatalf("expected 4 seeded items, got %v", body["items"])
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/menu", token, map[string]any{
		"name": "Bakso", "price": 10000, "stock": 12,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPatch, "/api/v1/menu/5", token, map[string]any{
		"name": "Bakso Urat", "price": 11000,
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("patch: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	item := decodeBody(t, rec)["item"].(map[string]any)
	if item["nama"] != "Bakso Urat" || item["harga"] != float64(11000) {
		t.Fatalf("unexpected patched item: %v", item)
	}

	rec = doJSON(t, handler, http.MethodPut, "/api/v1/menu/5/stock", token, map[string]any{"stock": 3})
	if rec.Code != http.StatusOK {
		t.Fatalf("set stock: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/menu/5", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("delete: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodDelete, "/api/v1/menu/5", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("double delete: expected 404, got %d", rec.Code)
	}
}

func TestMenuCreateValidation(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/menu", token, map[string]any{
		"name": "", "price": 1000, "stock": 1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a blank name, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/menu", token, map[string]any{
		"name": "Bakso", "price": -5, "stock": 1,
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a negative price, got %d", rec.Code)
	}
}

func TestOrderFlow(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]string{
		"customer_name": "Budi",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("start order: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	orderID, _ := decodeBody(t, rec)["order_id"].(string)
	if orderID == "" {
		t.Fatalf("expected an order id")
	}

	for i := 0; i < 2; i++ {
		rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/items", token, map[string]any{"item_id": 1})
		if rec.Code != http.StatusOK {
			t.Fatalf("add item: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
		}
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("view order: expected 200, got %d", rec.Code)
	}
	view := decodeBody(t, rec)
	if view["total"] != float64(10000) {
		t.Fatalf("expected total 10000, got %v", view["total"])
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/checkout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	order := decodeBody(t, rec)["order"].(map[string]any)
	if order["subtotal"] != float64(10000) || order["customer_name"] != "Budi" {
		t.Fatalf("unexpected order summary: %v", order)
	}

	// The draft is gone after checkout.
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after checkout, got %d", rec.Code)
	}
}

func TestCheckoutEmptyCartKeepsDraft(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]string{})
	orderID, _ := decodeBody(t, rec)["order_id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/checkout", token, nil)
	if rec.Code != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for an empty cart, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("the draft must survive a failed checkout, got %d", rec.Code)
	}
}

func TestAddOrderItemInsufficientStock(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPut, "/api/v1/menu/1/stock", token, map[string]any{"stock": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("set stock: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]string{})
	orderID, _ := decodeBody(t, rec)["order_id"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/items", token, map[string]any{"item_id": 1})
	if rec.Code != http.StatusOK {
		t.Fatalf("first add: expected 200, got %d", rec.Code)
	}
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/items", token, map[string]any{"item_id": 1})
	if rec.Code != http.StatusConflict {
		t.Fatalf("second add: expected 409, got %d (body: %s)", rec.Code, rec.Body.String())
	}
}

func TestOrdersAreTenantScoped(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":         "tokolain",
		"password":         "rahasia123",
		"confirm_password": "rahasia123",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("register second tenant: expected 201, got %d", rec.Code)
	}
	otherToken, _ := decodeBody(t, rec)["access_token"].(string)

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]string{})
	orderID, _ := decodeBody(t, rec)["order_id"].(string)

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+orderID, otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("another tenant must not see the draft, got %d", rec.Code)
	}
}

func TestRegisterCollidingHandleCannotReachOtherTenant(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/menu", token, map[string]any{
		"name": "Rahasia Warung", "price": 1000, "stock": 1,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add item: expected 201, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/auth/register", "", map[string]string{
		"username":         "warung!!",
		"password":         "rahasia123",
		"confirm_password": "rahasia123",
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("a username colliding with an existing tenant handle must be rejected, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	if body := decodeBody(t, rec); body["access_token"] != nil {
		t.Fatalf("no token may be issued for a rejected registration, got %v", body)
	}
}

func TestConcurrentOrderItemAdds(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]string{})
	orderID, _ := decodeBody(t, rec)["order_id"].(string)
	if orderID == "" {
		t.Fatalf("expected an order id")
	}

	const adds = 10
	var wg sync.WaitGroup
	codes := make(chan int, adds)
	for i := 0; i < adds; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/items", token, map[string]any{"item_id": 1})
			codes <- rec.Code
		}()
	}
	wg.Wait()
	close(codes)
	for code := range codes {
		if code != http.StatusOK {
			t.Fatalf("concurrent add: expected 200, got %d", code)
		}
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/orders/"+orderID, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("view order: expected 200, got %d", rec.Code)
	}
	view := decodeBody(t, rec)
	lines := view["lines"].(map[string]any)
	if lines["1"] != float64(adds) {
		t.Fatalf("expected all %d concurrent adds applied, got %v", adds, lines["1"])
	}
	if view["total"] != float64(adds*5000) {
		t.Fatalf("expected total %d, got %v", adds*5000, view["total"])
	}
}

func TestCreditEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/credits", token, map[string]any{
		"debtor_name": "Pak Joko", "amount": 25000,
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add credit: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}
	credit := decodeBody(t, rec)["credit"].(map[string]any)
	id := int(credit["id"].(float64))

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/credits", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list credits: expected 200, got %d", rec.Code)
	}
	if credits, _ := decodeBody(t, rec)["credits"].([]any); len(credits) != 1 {
		t.Fatalf("expected one active credit, got %v", credits)
	}

	rec = doJSON(t, handler, http.MethodPost, fmt.Sprintf("/api/v1/credits/%d/settle", id), token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("settle: expected 200, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodPost, "/api/v1/credits/999/settle", token, nil)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("settle missing: expected 404, got %d", rec.Code)
	}
}

func TestExpenseEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/expenses", token, map[string]any{
		"description": "gas", "amount": 22000, "date": "2026-03-15",
	})
	if rec.Code != http.StatusCreated {
		t.Fatalf("add expense: expected 201, got %d (body: %s)", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/expenses?date=2026-03-15", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("list expenses: expected 200, got %d", rec.Code)
	}
	if expenses, _ := decodeBody(t, rec)["expenses"].([]any); len(expenses) != 1 {
		t.Fatalf("expected one expense, got %v", expenses)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/expenses?date=bad-date", token, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for a malformed date, got %d", rec.Code)
	}
}

func TestReportEndpoints(t *testing.T) {
	handler := newTestAPI(t).Handler()
	token := registerAndLogin(t, handler)

	rec := doJSON(t, handler, http.MethodPost, "/api/v1/orders", token, map[string]string{})
	orderID, _ := decodeBody(t, rec)["order_id"].(string)
	doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/items", token, map[string]any{"item_id": 2})
	rec = doJSON(t, handler, http.MethodPost, "/api/v1/orders/"+orderID+"/checkout", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("checkout: expected 200, got %d", rec.Code)
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/daily", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("daily report: expected 200, got %d", rec.Code)
	}
	daily := decodeBody(t, rec)
	if daily["income"] != float64(15000) {
		t.Fatalf("expected income 15000, got %v", daily["income"])
	}

	period := time.Now().UTC().Format("2006-01")
	rec = doJSON(t, handler, http.MethodGet, "/api/v1/reports/monthly?period="+period, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("monthly report: expected 200, got %d", rec.Code)
	}
	monthly := decodeBody(t, rec)
	if monthly["total_income"] != float64(15000) {
		t.Fatalf("expected total income 15000, got %v", monthly["total_income"])
	}

	rec = doJSON(t, handler, http.MethodGet, "/api/v1/dashboard", token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("dashboard: expected 200, got %d", rec.Code)
	}
	dash := decodeBody(t, rec)
	if dash["tenant"] != "warung" {
		t.Fatalf("expected tenant warung, got %v", dash["tenant"])
	}
}
