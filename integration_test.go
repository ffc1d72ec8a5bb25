package main

import (
	"bytes"
	"context"
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/aquadoks/sales-backend/config"
	"github.com/aquadoks/sales-backend/database"
	"github.com/aquadoks/sales-backend/hub"
	"github.com/aquadoks/sales-backend/services"
	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

type apiResponse struct {
	Status  bool            `json:"status"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string                 `json:"code"`
		Details map[string]interface{} `json:"details"`
	} `json:"error"`
}

func hashSecret(t *testing.T, secret string) string {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(secret), bcrypt.MinCost)
	require.NoError(t, err)
	return string(hash)
}

func testConfig(t *testing.T) *config.Config {
	return &config.Config{
		DB: config.DBConfig{Driver: "sqlite", Path: filepath.Join(t.TempDir(), "it.db")},
		Pricing: config.PricingConfig{
			DiscountThreshold: 5000,
			DiscountRate:      decimal.RequireFromString("0.10"),
		},
		Routing: config.RoutingConfig{
			HomeCity:     "Санкт-Петербург",
			CityAliases:  []string{"спб", "питер"},
			Marketplaces: []string{"Ozon", "Wildberries"},
		},
		Delivery: config.DeliveryConfig{BaseCost: 300, PerPackCost: 50, FreeFromAmount: 10000},
		Payment: config.PaymentConfig{
			Provider:           "robokassa",
			RobokassaLogin:     "aquadoks",
			RobokassaPassword1: "pass1",
			RobokassaPassword2: "pass2",
			RobokassaTestMode:  true,
			LinkTTL:            30 * time.Minute,
			PollInterval:       time.Minute,
			PollAfter:          5 * time.Minute,
		},
		Reservation: config.ReservationConfig{TTL: time.Hour, InitialStock: 20},
		Knowledge:   config.KnowledgeConfig{Dimension: 64},
		Auth: config.AuthConfig{
			JWTSecret:          "integration-secret",
			AgentClientID:      "agent",
			AgentSecretHash:    hashSecret(t, "agent-secret"),
			AdminClientID:      "admin",
			AdminSecretHash:    hashSecret(t, "admin-secret"),
			DeliveryClientID:   "courier",
			DeliverySecretHash: hashSecret(t, "courier-secret"),
			TokenTTL:           time.Hour,
			CORSOrigin:         "*",
		},
	}
}

type testServer struct {
	t   *testing.T
	app *application
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := testConfig(t)

	db, err := config.InitDB(cfg.DB)
	require.NoError(t, err)
	t.Cleanup(func() {
		if sqlDB, err := db.DB(); err == nil {
			sqlDB.Close()
		}
	})
	require.NoError(t, database.Migrate(db))
	require.NoError(t, services.SeedCatalog(db, cfg.Reservation.InitialStock))

	app, err := newApplication(cfg, db, hub.New())
	require.NoError(t, err)
	return &testServer{t: t, app: app}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, apiResponse) {
	s.t.Helper()
	var reader *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(s.t, err)
		reader = bytes.NewReader(raw)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)

	var resp apiResponse
	_ = json.Unmarshal(w.Body.Bytes(), &resp)
	return w.Code, resp
}

func (s *testServer) token(clientID, secret string) string {
	s.t.Helper()
	code, resp := s.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"client_id":     clientID,
		"client_secret": secret,
	})
	require.Equal(s.t, http.StatusOK, code, resp.Message)
	var data struct {
		Token string `json:"token"`
	}
	require.NoError(s.t, json.Unmarshal(resp.Data, &data))
	return data.Token
}

func (s *testServer) tool(token, name string, args interface{}) (int, apiResponse) {
	s.t.Helper()
	return s.do(http.MethodPost, "/api/v1/tools/call", token, map[string]interface{}{
		"name":             name,
		"arguments":        args,
		"channel":          "telegram",
		"external_chat_id": "chat-77",
	})
}

func decode(t *testing.T, raw json.RawMessage, v interface{}) {
	t.Helper()
	require.NoError(t, json.Unmarshal(raw, v))
}

// TestEndToEndIntegration walks an order from the agent conversation to
// completion: quote, order, payment link, provider callback, operator steps.
func TestEndToEndIntegration(t *testing.T) {
	s := newTestServer(t)
	agent := s.token("agent", "agent-secret")
	admin := s.token("admin", "admin-secret")

	code, resp := s.tool(agent, "check_stock_price", map[string]interface{}{"sku": "1l", "qty": 5})
	require.Equal(t, http.StatusOK, code, resp.Message)

	code, resp = s.tool(agent, "calculate_discount", map[string]interface{}{"total_amount": 6250})
	require.Equal(t, http.StatusOK, code)
	var summary struct {
		Discount    int64 `json:"discount_amount"`
		FinalAmount int64 `json:"final_amount"`
	}
	decode(t, resp.Data, &summary)
	assert.Equal(t, int64(625), summary.Discount)
	assert.Equal(t, int64(5625), summary.FinalAmount)

	code, resp = s.tool(agent, "create_order", map[string]interface{}{
		"customer_phone": "8 999 555 44 33",
		"customer_name":  "Ольга",
		"city":           "спб",
		"address":        "Лиговский пр., 10",
		"items":          []map[string]interface{}{{"sku": "1L", "qty": 5}},
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var order struct {
		OrderID     uint   `json:"order_id"`
		Reference   string `json:"reference"`
		Status      string `json:"status"`
		FinalAmount int64  `json:"final_amount"`
	}
	decode(t, resp.Data, &order)
	assert.Equal(t, "pending", order.Status)
	assert.Equal(t, int64(5625), order.FinalAmount)

	code, resp = s.tool(agent, "create_payment_link", map[string]interface{}{"order_id": order.OrderID})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var link struct {
		URL      string `json:"url"`
		Provider string `json:"provider"`
		Reused   bool   `json:"reused"`
	}
	decode(t, resp.Data, &link)
	assert.Equal(t, "robokassa", link.Provider)
	assert.False(t, link.Reused)
	u, err := url.Parse(link.URL)
	require.NoError(t, err)
	invID := u.Query().Get("InvId")
	assert.Equal(t, strconv.FormatUint(uint64(order.OrderID)*100+1, 10), invID)

	// forged callback
	rec := s.robokassaCallback("5625.000000", invID, "deadbeef")
	assert.Equal(t, http.StatusForbidden, rec.Code)

	sum := md5.Sum([]byte("5625.000000:" + invID + ":pass2"))
	rec = s.robokassaCallback("5625.000000", invID, strings.ToUpper(hex.EncodeToString(sum[:])))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "OK"+invID, rec.Body.String())

	code, resp = s.tool(agent, "get_order_status", map[string]interface{}{"order_id": order.OrderID})
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(resp.Data), `"status":"paid"`)

	orderPath := "/api/v1/admin/orders/" + strconv.FormatUint(uint64(order.OrderID), 10)
	for _, status := range []string{"processing", "delivering", "completed"} {
		code, resp = s.do(http.MethodPost, orderPath+"/advance", admin, map[string]string{"status": status})
		require.Equal(t, http.StatusOK, code, resp.Message)
	}

	code, resp = s.do(http.MethodGet, "/api/v1/admin/inventory", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var levels []services.StockLevel
	decode(t, resp.Data, &levels)
	for _, l := range levels {
		if l.SKU == "1L" {
			assert.Equal(t, 15, l.StockPacks)
			assert.Equal(t, 0, l.ReservedPacks)
		}
	}

	n, err := s.app.Relay.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 5, n, "created, paid and three status changes")
}

func (s *testServer) robokassaCallback(outSum, invID, signature string) *httptest.ResponseRecorder {
	form := url.Values{"OutSum": {outSum}, "InvId": {invID}, "SignatureValue": {signature}}
	req := httptest.NewRequest(http.MethodPost, "/api/v1/payments/robokassa/result", strings.NewReader(form.Encode()))
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	w := httptest.NewRecorder()
	s.app.Router.ServeHTTP(w, req)
	return w
}

func TestIntegration_AuthAndRoles(t *testing.T) {
	s := newTestServer(t)

	code, _ := s.do(http.MethodPost, "/api/v1/auth/token", "", map[string]string{
		"client_id": "agent", "client_secret": "wrong",
	})
	assert.Equal(t, http.StatusUnauthorized, code)

	code, _ = s.do(http.MethodGet, "/api/v1/tools", "", nil)
	assert.Equal(t, http.StatusUnauthorized, code)

	agent := s.token("agent", "agent-secret")
	courier := s.token("courier", "courier-secret")

	code, resp := s.do(http.MethodGet, "/api/v1/tools", agent, nil)
	require.Equal(t, http.StatusOK, code)
	var tools []string
	decode(t, resp.Data, &tools)
	assert.Len(t, tools, 10)
	assert.Contains(t, tools, "search_knowledge")

	code, _ = s.do(http.MethodGet, "/api/v1/admin/orders/1", agent, nil)
	assert.Equal(t, http.StatusForbidden, code)

	code, _ = s.do(http.MethodGet, "/api/v1/tools", courier, nil)
	assert.Equal(t, http.StatusForbidden, code)
}

func TestIntegration_ToolFailures(t *testing.T) {
	s := newTestServer(t)
	agent := s.token("agent", "agent-secret")

	code, resp := s.tool(agent, "make_coffee", nil)
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "not_found", resp.Error.Code)

	code, resp = s.tool(agent, "create_order", map[string]interface{}{
		"customer_phone": "+79990001122",
		"city":           "Санкт-Петербург",
		"items":          []map[string]interface{}{{"sku": "19L", "qty": 21}},
	})
	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "insufficient_stock", resp.Error.Code)
	assert.EqualValues(t, 20, resp.Error.Details["available"])

	code, resp = s.tool(agent, "create_order", map[string]interface{}{
		"customer_phone": "+79990001122",
		"city":           "Москва",
		"items":          []map[string]interface{}{{"sku": "19L", "qty": 1}},
	})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "routing_violation", resp.Error.Code)

	code, resp = s.tool(agent, "check_stock_price", map[string]interface{}{"sku": "7L"})
	assert.Equal(t, http.StatusNotFound, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "unknown_product", resp.Error.Code)

	code, resp = s.tool(agent, "search_knowledge", map[string]interface{}{"vector": []float64{1, 2}})
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "dimension_mismatch", resp.Error.Code)
}

func TestIntegration_RefundNotification(t *testing.T) {
	s := newTestServer(t)
	agent := s.token("agent", "agent-secret")
	admin := s.token("admin", "admin-secret")

	code, resp := s.tool(agent, "create_order", map[string]interface{}{
		"customer_phone": "+79990001122",
		"city":           "Санкт-Петербург",
		"items":          []map[string]interface{}{{"sku": "19L", "qty": 2}},
	})
	require.Equal(t, http.StatusOK, code, resp.Message)
	var order struct {
		OrderID uint `json:"order_id"`
	}
	decode(t, resp.Data, &order)
	orderPath := "/api/v1/admin/orders/" + strconv.FormatUint(uint64(order.OrderID), 10)

	code, resp = s.do(http.MethodPost, orderPath+"/mark-paid", admin, map[string]string{"external_ref": "bank-1"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	code, resp = s.do(http.MethodPost, orderPath+"/cancel", admin, map[string]string{"reason": "out of town"})
	require.Equal(t, http.StatusOK, code, resp.Message)
	assert.Contains(t, string(resp.Data), `"payment_status":"refund_requested"`)

	_, err := s.app.Relay.Flush(context.Background())
	require.NoError(t, err)

	code, resp = s.do(http.MethodGet, "/api/v1/admin/notifications?unread=true", admin, nil)
	require.Equal(t, http.StatusOK, code)
	var notes []struct {
		ID        uint   `json:"id"`
		EventType string `json:"event_type"`
	}
	decode(t, resp.Data, &notes)
	require.Len(t, notes, 1)
	assert.Equal(t, "payment.refund_requested", notes[0].EventType)

	code, _ = s.do(http.MethodPatch, "/api/v1/admin/notifications/"+strconv.FormatUint(uint64(notes[0].ID), 10)+"/read", admin, nil)
	assert.Equal(t, http.StatusOK, code)
}
