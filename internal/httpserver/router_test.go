package httpserver

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"
	"time"

	"lv-brokerage/internal/auth"
	"lv-brokerage/internal/health"
	"lv-brokerage/internal/marketdata"
	"lv-brokerage/internal/model"
	"lv-brokerage/internal/orders"
	"lv-brokerage/internal/portfolio"
	"lv-brokerage/internal/store"

	"github.com/shopspring/decimal"
	"golang.org/x/crypto/bcrypt"
)

const internalToken = "feed-token"

type testServer struct {
	*httptest.Server
	mem     *store.Memory
	stockID int64
}

func newTestServer(t *testing.T, authSvc *auth.Service) *testServer {
	t.Helper()
	mem := store.NewMemory("CURRENCY")
	mem.AddUser(model.User{ID: 1, Email: "one@example.com", AccountNumber: "A1"})
	mem.AddUser(model.User{ID: 2, Email: "two@example.com", AccountNumber: "A2"})
	mem.AddInstrument(model.Instrument{Ticker: "ARS", Name: "Pesos", Category: "CURRENCY"})
	stock := mem.AddInstrument(model.Instrument{Ticker: "AAPL", Name: "Apple Inc.", Category: "ACCIONES"})
	mem.AddQuote(model.Quote{InstrumentID: stock.ID, Close: decimal.RequireFromString("152.50"), AsOf: time.Now().UTC()})

	hash, err := bcrypt.GenerateFromPassword([]byte(internalToken), bcrypt.MinCost)
	if err != nil {
		t.Fatal(err)
	}
	bus := marketdata.NewBus()
	router := NewRouter(RouterDeps{
		OrderHandler:      orders.NewHandler(orders.NewService(mem, bus, nil, true)),
		PortfolioHandler:  portfolio.NewHandler(portfolio.NewService(mem, nil)),
		MarketHandler:     marketdata.NewHandler(marketdata.NewService(mem, bus)),
		AuthHandler:       auth.NewHandler(mem),
		HealthHandler:     health.NewHandler(mem, "memory", time.Now()),
		AuthService:       authSvc,
		InternalTokenHash: string(hash),
		WSHandler:         NewWSHandler(bus, authSvc, "*"),
		CORSOrigin:        "*",
	})
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)
	return &testServer{Server: srv, mem: mem, stockID: stock.ID}
}

func (s *testServer) do(t *testing.T, method, path, body string, header http.Header) (int, map[string]any) {
	t.Helper()
	var rdr *bytes.Reader
	if body != "" {
		rdr = bytes.NewReader([]byte(body))
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, s.URL+path, rdr)
	if err != nil {
		t.Fatal(err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	res, err := s.Client().Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer res.Body.Close()
	var out map[string]any
	dec := json.NewDecoder(res.Body)
	dec.UseNumber()
	_ = dec.Decode(&out)
	return res.StatusCode, out
}

func (s *testServer) placeOrder(t *testing.T, body string) (int, map[string]any) {
	t.Helper()
	return s.do(t, http.MethodPost, "/v1/orders", body, nil)
}

func TestOrderLifecycle(t *testing.T) {
	s := newTestServer(t, nil)

	status, cashIn := s.placeOrder(t, `{"userId":1,"side":"CASH_IN","size":10000}`)
	if status != http.StatusCreated {
		t.Fatalf("cash in status = %d body = %v", status, cashIn)
	}
	if cashIn["orderKind"] != nil || cashIn["price"] != json.Number("1.00") || cashIn["status"] != "FILLED" {
		t.Errorf("cash in = %v", cashIn)
	}

	body := `{"userId":1,"side":"BUY","instrumentId":` + strconv.FormatInt(s.stockID, 10) + `,"orderKind":"MARKET","size":10}`
	status, buy := s.placeOrder(t, body)
	if status != http.StatusCreated {
		t.Fatalf("buy status = %d body = %v", status, buy)
	}
	if buy["price"] != json.Number("152.50") || buy["size"] != json.Number("10") || buy["status"] != "FILLED" || buy["orderKind"] != "MARKET" {
		t.Errorf("buy = %v", buy)
	}

	body = `{"userId":1,"side":"BUY","instrumentId":` + strconv.FormatInt(s.stockID, 10) + `,"orderKind":"LIMIT","price":150,"size":1}`
	status, limit := s.placeOrder(t, body)
	if status != http.StatusCreated || limit["status"] != "NEW" {
		t.Fatalf("limit status = %d body = %v", status, limit)
	}
	id := limit["id"].(json.Number).String()

	status, cancelled := s.do(t, http.MethodPost, "/v1/orders/"+id+"/cancel", "", nil)
	if status != http.StatusOK || cancelled["status"] != "CANCELLED" {
		t.Fatalf("cancel status = %d body = %v", status, cancelled)
	}
	status, again := s.do(t, http.MethodDelete, "/v1/orders/"+id, "", nil)
	if status != http.StatusBadRequest || again["code"] != "invalid_request" {
		t.Errorf("second cancel status = %d body = %v", status, again)
	}

	status, pf := s.do(t, http.MethodGet, "/v1/portfolio/1", "", nil)
	if status != http.StatusOK {
		t.Fatalf("portfolio status = %d body = %v", status, pf)
	}
	if pf["availableCash"] != json.Number("8475.00") || pf["totalAccountValue"] != json.Number("10000.00") {
		t.Errorf("portfolio = %v", pf)
	}
	positions, _ := pf["positions"].([]any)
	if len(positions) != 1 {
		t.Fatalf("positions = %v", pf["positions"])
	}
	pos := positions[0].(map[string]any)
	if pos["ticker"] != "AAPL" || pos["quantity"] != json.Number("10") || pos["returnPercentage"] != json.Number("0.00") {
		t.Errorf("position = %v", pos)
	}
}

func TestOrderErrors(t *testing.T) {
	s := newTestServer(t, nil)
	stock := strconv.FormatInt(s.stockID, 10)
	tests := []struct {
		name   string
		body   string
		status int
		code   string
	}{
		{name: "malformed json", body: `{"userId":`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown field", body: `{"userId":1,"side":"CASH_IN","size":1,"extra":true}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "size and amount", body: `{"userId":1,"side":"CASH_IN","size":1,"amount":5}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "fractional size", body: `{"userId":1,"side":"CASH_IN","size":1.5}`, status: http.StatusBadRequest, code: "invalid_request"},
		{name: "unknown user", body: `{"userId":9,"side":"CASH_IN","size":1}`, status: http.StatusNotFound, code: "not_found"},
		{name: "unknown instrument", body: `{"userId":1,"side":"BUY","instrumentId":777,"orderKind":"MARKET","size":1}`, status: http.StatusNotFound, code: "not_found"},
		{name: "amount too small", body: `{"userId":1,"side":"BUY","instrumentId":` + stock + `,"orderKind":"MARKET","amount":10}`, status: http.StatusBadRequest, code: "invalid_request"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.placeOrder(t, tt.body)
			if status != tt.status || body["code"] != tt.code {
				t.Errorf("status = %d body = %v, want %d %s", status, body, tt.status, tt.code)
			}
		})
	}

	unquoted := s.mem.AddInstrument(model.Instrument{Ticker: "NOQ", Name: "Unquoted", Category: "ACCIONES"})
	status, body := s.placeOrder(t, `{"userId":1,"side":"BUY","instrumentId":`+strconv.FormatInt(unquoted.ID, 10)+`,"orderKind":"MARKET","size":1}`)
	if status != http.StatusUnprocessableEntity || body["code"] != "data_inconsistency" {
		t.Errorf("no quote: status = %d body = %v", status, body)
	}

	status, body = s.do(t, http.MethodGet, "/v1/portfolio/abc", "", nil)
	if status != http.StatusBadRequest {
		t.Errorf("bad user id: status = %d body = %v", status, body)
	}
}

func TestAuthEnforced(t *testing.T) {
	svc := auth.NewService("lv-brokerage", []byte("secret"), time.Hour)
	s := newTestServer(t, svc)
	token, err := svc.IssueToken(1)
	if err != nil {
		t.Fatal(err)
	}
	bearer := http.Header{"Authorization": {"Bearer " + token}}

	if status, _ := s.do(t, http.MethodGet, "/v1/portfolio/1", "", nil); status != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/v1/portfolio/1", "", bearer); status != http.StatusOK {
		t.Errorf("own portfolio: status = %d", status)
	}
	if status, _ := s.do(t, http.MethodGet, "/v1/portfolio/2", "", bearer); status != http.StatusForbidden {
		t.Errorf("other portfolio: status = %d", status)
	}
	if status, _ := s.do(t, http.MethodPost, "/v1/orders", `{"userId":2,"side":"CASH_IN","size":5}`, bearer); status != http.StatusForbidden {
		t.Errorf("order for other user: status = %d", status)
	}
	status, me := s.do(t, http.MethodGet, "/v1/me", "", bearer)
	if status != http.StatusOK || me["email"] != "one@example.com" {
		t.Errorf("me: status = %d body = %v", status, me)
	}
}

func TestInternalQuotes(t *testing.T) {
	s := newTestServer(t, nil)
	body := `{"instrumentId":` + strconv.FormatInt(s.stockID, 10) + `,"open":150,"high":161,"low":149,"close":160.005,"previousClose":152.5}`

	if status, _ := s.do(t, http.MethodPost, "/v1/internal/quotes", body, http.Header{"X-Internal-Token": {"wrong"}}); status != http.StatusUnauthorized {
		t.Errorf("wrong token: status = %d", status)
	}
	status, q := s.do(t, http.MethodPost, "/v1/internal/quotes", body, http.Header{"X-Internal-Token": {internalToken}})
	if status != http.StatusCreated {
		t.Fatalf("record quote: status = %d body = %v", status, q)
	}

	status, order := s.placeOrder(t, `{"userId":1,"side":"BUY","instrumentId":`+strconv.FormatInt(s.stockID, 10)+`,"orderKind":"MARKET","size":1}`)
	if status != http.StatusCreated || order["price"] != json.Number("160.01") {
		t.Errorf("order after new quote: status = %d body = %v", status, order)
	}
}

func TestInstrumentSearch(t *testing.T) {
	s := newTestServer(t, nil)
	status, body := s.do(t, http.MethodGet, "/v1/instruments?query=app&limit=5", "", nil)
	if status != http.StatusOK {
		t.Fatalf("status = %d body = %v", status, body)
	}
	meta := body["meta"].(map[string]any)
	if meta["total"] != json.Number("1") || meta["count"] != json.Number("1") || meta["limit"] != json.Number("5") {
		t.Errorf("meta = %v", meta)
	}
	if status, _ := s.do(t, http.MethodGet, "/v1/instruments?limit=500", "", nil); status != http.StatusBadRequest {
		t.Errorf("oversized limit: status = %d", status)
	}
	status, body = s.do(t, http.MethodGet, "/v1/instruments?limit=0", "", nil)
	if status != http.StatusBadRequest || body["code"] != "invalid_request" {
		t.Errorf("zero limit: status = %d body = %v", status, body)
	}
	status, body = s.do(t, http.MethodGet, "/v1/instruments", "", nil)
	if status != http.StatusOK || body["meta"].(map[string]any)["limit"] != json.Number("20") {
		t.Errorf("default limit: status = %d body = %v", status, body)
	}
}

func TestOrderHistoryLimit(t *testing.T) {
	s := newTestServer(t, nil)
	if status, body := s.placeOrder(t, `{"userId":1,"side":"CASH_IN","size":100}`); status != http.StatusCreated {
		t.Fatalf("cash in status = %d body = %v", status, body)
	}
	tests := []struct {
		path   string
		status int
	}{
		{"/v1/users/1/orders", http.StatusOK},
		{"/v1/users/1/orders?limit=1", http.StatusOK},
		{"/v1/users/1/orders?limit=0", http.StatusBadRequest},
		{"/v1/users/1/orders?limit=-2", http.StatusBadRequest},
		{"/v1/users/1/orders?limit=201", http.StatusBadRequest},
		{"/v1/users/1/orders?limit=ten", http.StatusBadRequest},
	}
	for _, tt := range tests {
		if status, _ := s.do(t, http.MethodGet, tt.path, "", nil); status != tt.status {
			t.Errorf("GET %s: status = %d, want %d", tt.path, status, tt.status)
		}
	}
}

func TestHealthAndHeaders(t *testing.T) {
	s := newTestServer(t, nil)
	res, err := s.Client().Get(s.URL + "/health")
	if err != nil {
		t.Fatal(err)
	}
	res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Errorf("health status = %d", res.StatusCode)
	}
	if res.Header.Get("X-Content-Type-Options") != "nosniff" || res.Header.Get(requestIDHeader) == "" {
		t.Errorf("headers = %v", res.Header)
	}
}

func TestRateLimiter(t *testing.T) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	rl := NewRateLimiter(1, 2)
	rl.now = func() time.Time { return now }

	if !rl.Allow("a") || !rl.Allow("a") {
		t.Fatal("burst not honoured")
	}
	if rl.Allow("a") {
		t.Fatal("third request within burst allowed")
	}
	if !rl.Allow("b") {
		t.Fatal("buckets are per key")
	}
	now = now.Add(time.Second)
	if !rl.Allow("a") {
		t.Fatal("bucket did not refill")
	}
}
