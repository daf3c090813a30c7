package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/vishal065/BookBazaar-masterji/internal/app"
	"github.com/vishal065/BookBazaar-masterji/internal/metrics"
	"github.com/vishal065/BookBazaar-masterji/pkg/store"
)

const (
	testAdminKey = "test-admin-key"
	testPassword = "Str0ng!Passw0rd"
)

type envelope struct {
	StatusCode int             `json:"statusCode"`
	Data       json.RawMessage `json:"data"`
	Message    string          `json:"message"`
	Errors     []string        `json:"errors"`
	Success    bool            `json:"success"`
	Request    *requestInfo    `json:"request"`
	Stack      string          `json:"stack"`
}

type testServer struct {
	handler http.Handler
}

func newTestServer(t *testing.T, mutate func(*Config)) *testServer {
	t.Helper()
	a, err := app.New(app.Config{
		Store:         store.NewMemoryStore(),
		JWTSecret:     "0123456789abcdef0123456789abcdef",
		SessionTTL:    time.Hour,
		SuperAdminKey: testAdminKey,
	})
	if err != nil {
		t.Fatalf("new app: %v", err)
	}
	cfg := Config{App: a}
	if mutate != nil {
		mutate(&cfg)
	}
	srv, err := New(cfg)
	if err != nil {
		t.Fatalf("new server: %v", err)
	}
	return &testServer{handler: srv.Router()}
}

func (ts *testServer) do(t *testing.T, method, path string, body any, headers map[string]string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, req)
	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		if err := json.Unmarshal(rec.Body.Bytes(), &env); err != nil {
			t.Fatalf("decode response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, env
}

func bearer(token string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + token}
}

// signup registers and logs in, returning a session token.
func (ts *testServer) signup(t *testing.T, email string, admin bool) string {
	t.Helper()
	headers := map[string]string{}
	if admin {
		headers[adminHeader] = testAdminKey
	}
	creds := map[string]string{"email": email, "password": testPassword}
	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/register", creds, headers)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register %s: status %d %+v", email, rec.Code, env)
	}
	rec, env = ts.do(t, http.MethodPost, "/api/v1/auth/login", creds, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d %+v", email, rec.Code, env)
	}
	var data loginResponse
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode login: %v", err)
	}
	return data.Token
}

func (ts *testServer) apiKey(t *testing.T, token string) string {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/api/v1/api-key/generate", nil, bearer(token))
	if rec.Code != http.StatusCreated {
		t.Fatalf("generate api key: status %d", rec.Code)
	}
	var data map[string]string
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode api key: %v", err)
	}
	return data["apiKey"]
}

func (ts *testServer) addBook(t *testing.T, adminToken, isbn, price string, stock int) string {
	t.Helper()
	rec, env := ts.do(t, http.MethodPost, "/api/v1/books/add", map[string]any{
		"title": "Book " + isbn, "author": "Author", "isbn": isbn, "price": price, "stock": stock,
	}, bearer(adminToken))
	if rec.Code != http.StatusCreated {
		t.Fatalf("add book: status %d %+v", rec.Code, env)
	}
	var data struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(env.Data, &data); err != nil {
		t.Fatalf("decode book: %v", err)
	}
	return data.ID
}

func TestHealth(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, _ := ts.do(t, http.MethodGet, "/healthz", nil, nil)
	if rec.Code != http.StatusOK || !strings.Contains(rec.Body.String(), `"status":"ok"`) {
		t.Fatalf("unexpected health response: %d %s", rec.Code, rec.Body.String())
	}
	if rec.Header().Get("X-Request-Id") == "" {
		t.Fatalf("expected request id header")
	}
}

func TestAuthFlow(t *testing.T) {
	ts := newTestServer(t, nil)
	creds := map[string]string{"email": "reader@example.com", "password": testPassword}

	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/register", creds, nil)
	if rec.Code != http.StatusCreated || env.Message != "User registered successfully" || !env.Success {
		t.Fatalf("register: %d %+v", rec.Code, env)
	}
	if strings.Contains(string(env.Data), "password") {
		t.Fatalf("user payload leaks password hash: %s", env.Data)
	}
	rec, env = ts.do(t, http.MethodPost, "/api/v1/auth/register", creds, nil)
	if rec.Code != http.StatusConflict || env.Message != "User already exists" {
		t.Fatalf("duplicate register: %d %+v", rec.Code, env)
	}

	rec, env = ts.do(t, http.MethodPost, "/api/v1/auth/login", map[string]string{"email": "reader@example.com", "password": "Wr0ng!Password"}, nil)
	if rec.Code != http.StatusBadRequest || env.Message != "Invalid credentials" {
		t.Fatalf("bad login: %d %+v", rec.Code, env)
	}

	rec, env = ts.do(t, http.MethodPost, "/api/v1/auth/login", creds, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login: %d %+v", rec.Code, env)
	}
	var cookie *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == tokenCookie {
			cookie = c
		}
	}
	if cookie == nil || !cookie.HttpOnly || cookie.Value == "" {
		t.Fatalf("expected HttpOnly session cookie, got %+v", cookie)
	}

	// The cookie alone authenticates.
	req := httptest.NewRequest(http.MethodGet, "/api/v1/auth/me", nil)
	req.AddCookie(cookie)
	meRec := httptest.NewRecorder()
	ts.handler.ServeHTTP(meRec, req)
	if meRec.Code != http.StatusOK || !strings.Contains(meRec.Body.String(), "reader@example.com") {
		t.Fatalf("me via cookie: %d %s", meRec.Code, meRec.Body.String())
	}

	rec, _ = ts.do(t, http.MethodPost, "/api/v1/auth/logout", nil, bearer(cookie.Value))
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: %d", rec.Code)
	}
	rec, env = ts.do(t, http.MethodGet, "/api/v1/auth/me", nil, bearer(cookie.Value))
	if rec.Code != http.StatusUnauthorized || env.Success {
		t.Fatalf("revoked token should be rejected, got %d", rec.Code)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/auth/me", nil, map[string]string{"Authorization": "Basic abc"})
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("non-bearer auth expected 401, got %d", rec.Code)
	}
}

func TestRegisterValidation(t *testing.T) {
	ts := newTestServer(t, nil)
	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{"email": "nope", "password": ""}, nil)
	if rec.Code != http.StatusBadRequest || env.Message != "Validation failed" {
		t.Fatalf("expected validation failure, got %d %+v", rec.Code, env)
	}
	want := map[string]bool{"email must be a valid email address": false, "password is required": false}
	for _, e := range env.Errors {
		if _, ok := want[e]; ok {
			want[e] = true
		}
	}
	for msg, seen := range want {
		if !seen {
			t.Fatalf("missing validation message %q in %v", msg, env.Errors)
		}
	}

	rec, env = ts.do(t, http.MethodPost, "/api/v1/auth/register", map[string]string{"email": "admin@example.com", "password": testPassword}, map[string]string{adminHeader: "wrong"})
	if rec.Code != http.StatusForbidden || env.Message != "Invalid admin key" {
		t.Fatalf("wrong admin key: %d %+v", rec.Code, env)
	}
}

func TestCatalogRequiresAPIKey(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "admin@example.com", true)
	bookID := ts.addBook(t, admin, "isbn-1", "12.00", 3)

	rec, env := ts.do(t, http.MethodGet, "/api/v1/books/getAll", nil, nil)
	if rec.Code != http.StatusUnauthorized || env.Message != "API key is required" {
		t.Fatalf("missing key: %d %+v", rec.Code, env)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/books/getAll", nil, map[string]string{apiKeyHeader: "bogus"})
	if rec.Code != http.StatusForbidden {
		t.Fatalf("bad key: expected 403, got %d", rec.Code)
	}

	key := ts.apiKey(t, admin)
	headers := map[string]string{apiKeyHeader: key}
	rec, env = ts.do(t, http.MethodGet, "/api/v1/books/getAll?page=1&limit=5", nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("list books: %d %+v", rec.Code, env)
	}
	var page app.BookPage
	if err := json.Unmarshal(env.Data, &page); err != nil {
		t.Fatalf("decode page: %v", err)
	}
	if page.Pagination.Total != 1 || page.Pagination.Limit != 5 || len(page.Books) != 1 {
		t.Fatalf("unexpected page: %+v", page)
	}

	rec, _ = ts.do(t, http.MethodGet, "/api/v1/books/get/"+bookID, nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("get book: %d", rec.Code)
	}
	rec, env = ts.do(t, http.MethodGet, "/api/v1/books/get/missing", nil, headers)
	if rec.Code != http.StatusNotFound || env.Message != "Book not found" {
		t.Fatalf("missing book: %d %+v", rec.Code, env)
	}
	rec, env = ts.do(t, http.MethodGet, "/api/v1/books/search", nil, headers)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("search without filter: %d %+v", rec.Code, env)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/books/search?isbn=isbn-1", nil, headers)
	if rec.Code != http.StatusOK {
		t.Fatalf("search: %d", rec.Code)
	}
}

func TestAdminOnlyRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	user := ts.signup(t, "user@example.com", false)
	rec, env := ts.do(t, http.MethodPost, "/api/v1/books/add", map[string]any{"title": "T", "author": "A", "isbn": "x", "price": "1.00"}, bearer(user))
	if rec.Code != http.StatusForbidden || env.Message != "Forbidden" {
		t.Fatalf("non-admin add book: %d %+v", rec.Code, env)
	}

	admin := ts.signup(t, "admin@example.com", true)
	rec, env = ts.do(t, http.MethodPost, "/api/v1/books/add", map[string]any{"title": "T", "author": "A", "isbn": "x"}, bearer(admin))
	if rec.Code != http.StatusBadRequest || len(env.Errors) != 1 || env.Errors[0] != "price is required" {
		t.Fatalf("missing price: %d %+v", rec.Code, env)
	}
	ts.addBook(t, admin, "dup", "1.00", 1)
	rec, env = ts.do(t, http.MethodPost, "/api/v1/books/add", map[string]any{"title": "T", "author": "A", "isbn": "dup", "price": 2}, bearer(admin))
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate isbn: %d %+v", rec.Code, env)
	}

	rec, env = ts.do(t, http.MethodPut, "/api/v1/books/cover/anything", nil, bearer(admin))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("cover without form: %d %+v", rec.Code, env)
	}
}

func TestOrderLifecycle(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "admin@example.com", true)
	bookA := ts.addBook(t, admin, "isbn-a", "10.00", 5)
	bookB := ts.addBook(t, admin, "isbn-b", "5.00", 1)
	user := ts.signup(t, "buyer@example.com", false)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/orders/place-order", nil, bearer(user))
	if rec.Code != http.StatusBadRequest || env.Message != "Cart is empty" {
		t.Fatalf("empty cart: %d %+v", rec.Code, env)
	}

	for _, line := range []struct {
		id  string
		qty int
	}{{bookA, 2}, {bookB, 3}} {
		rec, env = ts.do(t, http.MethodPost, "/api/v1/cart/add", map[string]any{"bookId": line.id, "quantity": line.qty}, bearer(user))
		if rec.Code != http.StatusCreated {
			t.Fatalf("add to cart: %d %+v", rec.Code, env)
		}
	}
	rec, env = ts.do(t, http.MethodPost, "/api/v1/cart/add", map[string]any{"bookId": bookA, "quantity": 1}, bearer(user))
	if rec.Code != http.StatusConflict || env.Message != "Book already in cart" {
		t.Fatalf("duplicate cart add: %d %+v", rec.Code, env)
	}

	rec, env = ts.do(t, http.MethodPost, "/api/v1/orders/place-order", nil, bearer(user))
	if rec.Code != http.StatusCreated || env.Message != "Order placed, few items are out of stock" {
		t.Fatalf("place order: %d %+v", rec.Code, env)
	}
	var placed struct {
		Order struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"order"`
		TotalAmount     string           `json:"totalAmount"`
		Payment         map[string]any   `json:"payment"`
		OutOfStockItems []map[string]any `json:"outOfStockItems"`
	}
	if err := json.Unmarshal(env.Data, &placed); err != nil {
		t.Fatalf("decode placed order: %v", err)
	}
	if placed.TotalAmount != "20" || placed.Order.Status != "pending" || len(placed.OutOfStockItems) != 1 {
		t.Fatalf("unexpected placement: %+v", placed)
	}
	for _, field := range []string{"razorpay_order_id", "razorpay_payment_id", "razorpay_signature"} {
		if v, _ := placed.Payment[field].(string); v == "" {
			t.Fatalf("payment missing %s: %+v", field, placed.Payment)
		}
	}

	rec, env = ts.do(t, http.MethodGet, "/api/v1/cart/get", nil, bearer(user))
	if rec.Code != http.StatusOK || env.Message != "Cart is empty" || string(env.Data) != "[]" {
		t.Fatalf("cart after order: %d %+v %s", rec.Code, env, env.Data)
	}

	verify := map[string]any{
		"razorpay_order_id":   placed.Payment["razorpay_order_id"],
		"razorpay_payment_id": placed.Payment["razorpay_payment_id"],
		"razorpay_signature":  placed.Payment["razorpay_signature"],
	}
	rec, env = ts.do(t, http.MethodPut, "/api/v1/orders/payment-verify", map[string]any{"razorpay_order_id": placed.Order.ID}, bearer(user))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("missing proof fields: %d %+v", rec.Code, env)
	}
	rec, env = ts.do(t, http.MethodPut, "/api/v1/orders/payment-verify", verify, bearer(user))
	if rec.Code != http.StatusOK || env.Message != "Order paid successfully" {
		t.Fatalf("verify: %d %+v", rec.Code, env)
	}
	rec, env = ts.do(t, http.MethodPut, "/api/v1/orders/payment-verify", verify, bearer(user))
	if rec.Code != http.StatusOK || env.Message != "Order already fulfilled" {
		t.Fatalf("second verify: %d %+v", rec.Code, env)
	}

	rec, env = ts.do(t, http.MethodGet, "/api/v1/orders/get/"+placed.Order.ID, nil, bearer(user))
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"isbn":"isbn-a"`) {
		t.Fatalf("order detail: %d %s", rec.Code, env.Data)
	}
	rec, env = ts.do(t, http.MethodGet, "/api/v1/orders/get?page=1&pageSize=5", nil, bearer(user))
	if rec.Code != http.StatusOK || env.Message != "Orders fetched" || !strings.Contains(string(env.Data), `"total":1`) {
		t.Fatalf("order list: %d %s", rec.Code, env.Data)
	}

	other := ts.signup(t, "other@example.com", false)
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/orders/get/"+placed.Order.ID, nil, bearer(other))
	if rec.Code != http.StatusNotFound {
		t.Fatalf("foreign order: expected 404, got %d", rec.Code)
	}

	rec, env = ts.do(t, http.MethodPut, "/api/v1/orders/cancel/"+placed.Order.ID, nil, bearer(user))
	if rec.Code != http.StatusOK || env.Message != "Order cancelled and refund initiated" {
		t.Fatalf("cancel paid order: %d %+v", rec.Code, env)
	}
	rec, env = ts.do(t, http.MethodPut, "/api/v1/orders/cancel/"+placed.Order.ID, nil, bearer(user))
	if rec.Code != http.StatusConflict || env.Message != "Order status does not allow this action" {
		t.Fatalf("cancel cancelled order: %d %+v", rec.Code, env)
	}
}

func TestVerifyPaymentMismatch(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "admin@example.com", true)
	bookID := ts.addBook(t, admin, "isbn-m", "4.50", 2)
	user := ts.signup(t, "buyer@example.com", false)
	if rec, env := ts.do(t, http.MethodPost, "/api/v1/cart/add", map[string]any{"bookId": bookID, "quantity": 1}, bearer(user)); rec.Code != http.StatusCreated {
		t.Fatalf("add to cart: %d %+v", rec.Code, env)
	}
	rec, env := ts.do(t, http.MethodPost, "/api/v1/orders/place-order", nil, bearer(user))
	if rec.Code != http.StatusCreated || env.Message != "Order placed successfully" {
		t.Fatalf("place order: %d %+v", rec.Code, env)
	}
	var placed struct {
		Order struct {
			ID string `json:"id"`
		} `json:"order"`
	}
	if err := json.Unmarshal(env.Data, &placed); err != nil {
		t.Fatalf("decode: %v", err)
	}

	rec, env = ts.do(t, http.MethodPut, "/api/v1/orders/payment-verify", map[string]string{
		"razorpay_order_id":   placed.Order.ID,
		"razorpay_payment_id": "forged",
		"razorpay_signature":  "forged",
	}, bearer(user))
	if rec.Code != http.StatusBadRequest || env.Message != "Invalid payment details" {
		t.Fatalf("mismatch: %d %+v", rec.Code, env)
	}
	if len(env.Errors) != 1 || env.Errors[0] != "Invalid payment details" {
		t.Fatalf("expected the error detail list to carry the message, got %v", env.Errors)
	}
	rec, env = ts.do(t, http.MethodGet, "/api/v1/orders/get/"+placed.Order.ID, nil, bearer(user))
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"status":"failed"`) {
		t.Fatalf("order should be failed: %s", env.Data)
	}
}

func TestReviewRoutes(t *testing.T) {
	ts := newTestServer(t, nil)
	admin := ts.signup(t, "admin@example.com", true)
	bookID := ts.addBook(t, admin, "isbn-r", "3.00", 2)
	user := ts.signup(t, "critic@example.com", false)

	rec, env := ts.do(t, http.MethodPost, "/api/v1/reviews/add", map[string]any{"bookId": bookID, "rating": 5}, bearer(user))
	if rec.Code != http.StatusForbidden || env.Message != "Purchase required to review this book" {
		t.Fatalf("review without purchase: %d %+v", rec.Code, env)
	}
	rec, env = ts.do(t, http.MethodPost, "/api/v1/reviews/add", map[string]any{"bookId": bookID, "rating": 9}, bearer(user))
	if rec.Code != http.StatusBadRequest || env.Errors[0] != "rating must be at most 5" {
		t.Fatalf("bad rating: %d %+v", rec.Code, env)
	}
	rec, _ = ts.do(t, http.MethodGet, "/api/v1/reviews/get?bookId="+bookID, nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("reviews without api key: %d", rec.Code)
	}
	key := ts.apiKey(t, user)
	rec, env = ts.do(t, http.MethodGet, "/api/v1/reviews/get?bookId="+bookID, nil, map[string]string{apiKeyHeader: key})
	if rec.Code != http.StatusOK || !strings.Contains(string(env.Data), `"total":0`) {
		t.Fatalf("list reviews: %d %s", rec.Code, env.Data)
	}
}

func TestErrorEnvelopeDetailsByEnvironment(t *testing.T) {
	dev := newTestServer(t, nil)
	_, env := dev.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil)
	if env.Request == nil || env.Request.Method != http.MethodGet || env.Request.URL != "/api/v1/auth/me" {
		t.Fatalf("development errors should carry request info: %+v", env)
	}
	if env.Errors == nil {
		t.Fatalf("errors should be an empty list, not null")
	}

	prod := newTestServer(t, func(cfg *Config) { cfg.Production = true })
	_, env = prod.do(t, http.MethodGet, "/api/v1/auth/me", nil, nil)
	if env.Request != nil || env.Stack != "" {
		t.Fatalf("production errors must not expose details: %+v", env)
	}
	if env.StatusCode != http.StatusUnauthorized || env.Success {
		t.Fatalf("unexpected envelope: %+v", env)
	}
}

func TestLoginRateLimit(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	ts := newTestServer(t, func(cfg *Config) {
		cfg.Redis = client
		cfg.LoginRateLimitPerMinute = 1
	})
	body := map[string]string{"email": "u@example.com", "password": testPassword}
	rec, _ := ts.do(t, http.MethodPost, "/api/v1/auth/login", body, nil)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("first request expected 400 for unknown user, got %d", rec.Code)
	}
	rec, env := ts.do(t, http.MethodPost, "/api/v1/auth/login", body, nil)
	if rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request expected 429, got %d", rec.Code)
	}
	if rec.Header().Get("Retry-After") == "" || env.Message != "Too many login attempts" {
		t.Fatalf("missing Retry-After or message: %q %+v", rec.Header().Get("Retry-After"), env)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	m := metrics.New()
	ts := newTestServer(t, func(cfg *Config) { cfg.Metrics = m })
	ts.do(t, http.MethodGet, "/healthz", nil, nil)

	rec := httptest.NewRecorder()
	ts.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("metrics status %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `bookbazaar_http_requests_total{method="GET",route="GET /healthz",status="200"} 1`) {
		t.Fatalf("request counter missing:\n%s", rec.Body.String())
	}
}
