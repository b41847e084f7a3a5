package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"exchange-core/internal/account"
	"exchange-core/internal/clock"
	"exchange-core/internal/db"
	"exchange-core/internal/events"
	"exchange-core/internal/exchange"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store, err := db.New(":memory:")
	if err != nil {
		t.Fatalf("db.New: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	bus := events.NewBus()
	bus.Start()
	t.Cleanup(bus.Stop)

	accounts := account.NewManager(store, account.ZeroFees)
	ex := exchange.New(clock.New(), bus, accounts)
	ex.AddSymbol(exchange.SymbolInfo{
		Symbol:         "BTCUSDT",
		BaseAsset:      "BTC",
		QuoteAsset:     "USDT",
		PricePrecision: 2,
		QtyPrecision:   6,
		MinQty:         decimal.NewFromFloat(0.000001),
		MinNotional:    decimal.NewFromInt(10),
	}, account.ZeroFees)

	return NewServer(ex, accounts, "test-secret")
}

func doJSON(t *testing.T, s *Server, method, path string, body any, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode body: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	s.Router.ServeHTTP(rec, req)
	return rec
}

func TestHealthAndPing(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/health", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/health status = %d", rec.Code)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v3/ping", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("/api/v3/ping status = %d", rec.Code)
	}
}

func TestExchangeInfoListsRegisteredSymbols(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v3/exchangeInfo", nil, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var resp struct {
		Symbols []struct {
			Symbol string `json:"symbol"`
		} `json:"symbols"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(resp.Symbols) != 1 || resp.Symbols[0].Symbol != "BTCUSDT" {
		t.Fatalf("unexpected symbols: %+v", resp.Symbols)
	}
}

func TestProtectedRouteRejectsMissingAuth(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodGet, "/api/v3/account", nil, nil)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRegisterLoginAndPlaceOrderFlow(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v3/auth/register", map[string]string{
		"email":    "trader@example.com",
		"password": "hunter2pass",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d, body = %s", rec.Code, rec.Body.String())
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v3/auth/login", map[string]string{
		"email":    "trader@example.com",
		"password": "hunter2pass",
	}, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("login status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var loginResp struct {
		Token  string `json:"token"`
		UserID string `json:"userId"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &loginResp); err != nil {
		t.Fatalf("decode login response: %v", err)
	}
	if loginResp.Token == "" {
		t.Fatal("expected a non-empty bearer token")
	}

	authHeader := map[string]string{"Authorization": "Bearer " + loginResp.Token}

	rec = doJSON(t, s, http.MethodGet, "/api/v3/account", nil, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("account status = %d, body = %s", rec.Code, rec.Body.String())
	}

	if err := s.Accounts.Deposit(loginResp.UserID, "USDT", decimal.NewFromInt(1000)); err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	rec = doJSON(t, s, http.MethodPost, "/api/v3/order", map[string]any{
		"symbol":      "BTCUSDT",
		"side":        "BUY",
		"type":        "LIMIT",
		"timeInForce": "GTC",
		"price":       "100",
		"quantity":    "1",
	}, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("place order status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var orderResp struct {
		Status string `json:"status"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &orderResp); err != nil {
		t.Fatalf("decode order response: %v", err)
	}
	if orderResp.Status != "NEW" {
		t.Fatalf("order status = %q, want NEW", orderResp.Status)
	}

	rec = doJSON(t, s, http.MethodGet, "/api/v3/openOrders", nil, authHeader)
	if rec.Code != http.StatusOK {
		t.Fatalf("openOrders status = %d, body = %s", rec.Code, rec.Body.String())
	}
	var open []json.RawMessage
	if err := json.Unmarshal(rec.Body.Bytes(), &open); err != nil {
		t.Fatalf("decode openOrders: %v", err)
	}
	if len(open) != 1 {
		t.Fatalf("open orders = %d, want 1", len(open))
	}
}

func TestPlaceOrderUnknownSymbolRespondsWithEnvelopeError(t *testing.T) {
	s := newTestServer(t)

	rec := doJSON(t, s, http.MethodPost, "/api/v3/auth/register", map[string]string{
		"email":    "trader2@example.com",
		"password": "hunter2pass",
	}, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("register status = %d", rec.Code)
	}
	rec = doJSON(t, s, http.MethodPost, "/api/v3/auth/login", map[string]string{
		"email":    "trader2@example.com",
		"password": "hunter2pass",
	}, nil)
	var loginResp struct {
		Token string `json:"token"`
	}
	json.Unmarshal(rec.Body.Bytes(), &loginResp)
	authHeader := map[string]string{"Authorization": "Bearer " + loginResp.Token}

	rec = doJSON(t, s, http.MethodPost, "/api/v3/order", map[string]any{
		"symbol":      "NOPE",
		"side":        "BUY",
		"type":        "LIMIT",
		"timeInForce": "GTC",
		"price":       "100",
		"quantity":    "1",
	}, authHeader)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400, body = %s", rec.Code, rec.Body.String())
	}
	var errResp struct {
		Code int    `json:"code"`
		Msg  string `json:"msg"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &errResp); err != nil {
		t.Fatalf("decode error response: %v", err)
	}
	if errResp.Code != -1102 {
		t.Fatalf("code = %d, want -1102", errResp.Code)
	}
}
