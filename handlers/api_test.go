package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/auth"
	"github.com/karthikraju391/farmconnect/chat"
	"github.com/karthikraju391/farmconnect/logging"
	"github.com/karthikraju391/farmconnect/marketplace"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/karthikraju391/farmconnect/orders"
	"github.com/karthikraju391/farmconnect/otp"
	"github.com/karthikraju391/farmconnect/storage"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	mu    sync.Mutex
	codes map[string]string
}

func (i *inbox) Send(_ context.Context, mobile, code string) error {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.codes[mobile] = code
	return nil
}

func (i *inbox) code(mobile string) string {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.codes[mobile]
}

type testServer struct {
	app   *fiber.App
	inbox *inbox
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := logging.Discard()
	m := metrics.New()
	db, err := storage.Open("", log)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	users := storage.NewUserStore(db, log)
	feed := marketplace.NewPriceFeed()
	products := marketplace.NewService(storage.NewProductStore(db, log), users, feed, log)
	orderSvc, err := orders.NewService(log, storage.NewOrderStore(db, log), products, m, decimal.RequireFromString("0.03"))
	require.NoError(t, err)
	box := &inbox{codes: make(map[string]string)}
	otpSvc := otp.NewService(log, box, m, time.Minute)
	tokens := auth.NewTokens("a-test-secret-of-decent-length", time.Hour)
	authSvc := auth.NewService(log, users, otpSvc, tokens)
	gw := chat.NewGateway(log, chat.NewRegistry(100), chat.NewLocalBus(), m, chat.GatewayOptions{})

	api := NewAPI(log, authSvc, otpSvc, products, feed, orderSvc,
		Probe{Name: "database", Check: func() bool { return !db.IsClosed() }})
	app := NewApp(log, api, NewChatHandler(log, gw, tokens, m, 16), m, "")
	return &testServer{app: app, inbox: box}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) (int, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(raw)
	}
	httpReq := httptest.NewRequest(method, path, r)
	httpReq.Header.Set("Content-Type", "application/json")
	if token != "" {
		httpReq.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := s.app.Test(httpReq, -1)
	require.NoError(t, err)
	defer resp.Body.Close()

	out := map[string]any{}
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func (s *testServer) signUp(t *testing.T, username, mobile, role string) (string, string) {
	t.Helper()
	status, _ := s.do(t, "POST", "/api/auth/send-otp", "", map[string]any{"mobile": mobile})
	require.Equal(t, fiber.StatusOK, status)

	status, body := s.do(t, "POST", "/api/auth/register", "", map[string]any{
		"username": username,
		"mobile":   mobile,
		"password": "kisan@123",
		"fullName": username + " Kumar",
		"role":     role,
		"location": map[string]string{"district": "Nashik", "state": "Maharashtra"},
		"otp":      s.inbox.code(mobile),
	})
	require.Equal(t, fiber.StatusOK, status, body)
	user := body["user"].(map[string]any)
	return body["token"].(string), user["id"].(string)
}

func TestAPI_MarketplaceFlow(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	farmerToken, _ := s.signUp(t, "lakshmi", "9876543210", "farmer")
	buyerToken, _ := s.signUp(t, "ravi", "9123456780", "buyer")

	status, body := s.do(t, "POST", "/api/auth/login", "", map[string]any{"username": "lakshmi", "password": "kisan@123"})
	req.Equal(fiber.StatusOK, status)
	req.Equal(true, body["success"])

	status, body = s.do(t, "POST", "/api/products/add", buyerToken, map[string]any{
		"productName": "Tomato", "category": "vegetables",
		"quantity": map[string]any{"value": 50, "unit": "kg"}, "pricePerUnit": "100",
	})
	req.Equal(fiber.StatusForbidden, status)
	req.Equal(false, body["success"])

	status, body = s.do(t, "POST", "/api/products/add", farmerToken, map[string]any{
		"productName": "Tomato", "category": "vegetables",
		"quantity": map[string]any{"value": 50, "unit": "kg"}, "pricePerUnit": "100",
		"tags": "fresh,organic",
	})
	req.Equal(fiber.StatusCreated, status, body)
	productID := body["product"].(map[string]any)["id"].(string)

	status, body = s.do(t, "GET", "/api/products/all?category=vegetables&search=tom", "", nil)
	req.Equal(fiber.StatusOK, status)
	req.Len(body["products"], 1)
	req.EqualValues(1, body["pagination"].(map[string]any)["total"])

	status, _ = s.do(t, "GET", "/api/products/all?minPrice=abc", "", nil)
	req.Equal(fiber.StatusBadRequest, status)

	status, body = s.do(t, "POST", "/api/orders/create", buyerToken, map[string]any{
		"productId": productID,
		"quantity":  3,
		"deliveryAddress": map[string]string{
			"address": "12 Market Road", "city": "Pune", "state": "Maharashtra", "pincode": "411001",
		},
	})
	req.Equal(fiber.StatusCreated, status, body)
	order := body["order"].(map[string]any)
	orderID := order["orderId"].(string)
	req.Equal("300", order["totalAmount"])
	req.Equal("9", order["commission"])
	req.Equal("291", order["farmerAmount"])
	req.Equal("pending", order["status"])

	status, _ = s.do(t, "PUT", "/api/orders/"+orderID+"/status", buyerToken, map[string]any{"status": "confirmed"})
	req.Equal(fiber.StatusForbidden, status)

	for _, step := range []string{"confirmed", "shipped"} {
		status, body = s.do(t, "PUT", "/api/orders/"+orderID+"/status", farmerToken, map[string]any{"status": step})
		req.Equal(fiber.StatusOK, status, body)
	}

	status, body = s.do(t, "PUT", "/api/orders/"+orderID+"/status", buyerToken, map[string]any{"status": "cancelled"})
	req.Equal(fiber.StatusConflict, status)
	req.Equal(false, body["success"])

	status, body = s.do(t, "GET", "/api/orders/"+orderID, buyerToken, nil)
	req.Equal(fiber.StatusOK, status)
	req.Equal("shipped", body["order"].(map[string]any)["status"])

	status, _ = s.do(t, "PUT", "/api/orders/"+orderID+"/status", buyerToken, map[string]any{"status": "delivered"})
	req.Equal(fiber.StatusOK, status)

	status, body = s.do(t, "GET", "/api/products/"+productID, "", nil)
	req.Equal(fiber.StatusOK, status)
	req.EqualValues(47, body["product"].(map[string]any)["quantity"].(map[string]any)["value"])

	status, body = s.do(t, "POST", "/api/orders/"+orderID+"/rate", buyerToken, map[string]any{"rating": 5})
	req.Equal(fiber.StatusOK, status, body)
	status, _ = s.do(t, "POST", "/api/orders/"+orderID+"/rate", buyerToken, map[string]any{"rating": 4})
	req.Equal(fiber.StatusConflict, status)

	status, body = s.do(t, "GET", "/api/orders/buyer-orders", buyerToken, nil)
	req.Equal(fiber.StatusOK, status)
	req.Len(body["orders"], 1)
	status, body = s.do(t, "GET", "/api/orders/farmer-orders", farmerToken, nil)
	req.Equal(fiber.StatusOK, status)
	req.Len(body["orders"], 1)
}

func TestAPI_Auth(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	status, body := s.do(t, "POST", "/api/auth/send-otp", "", map[string]any{"mobile": "12345"})
	req.Equal(fiber.StatusBadRequest, status)
	req.Equal("Please enter a valid 10-digit Indian mobile number", body["message"])

	status, _ = s.do(t, "GET", "/api/auth/profile", "", nil)
	req.Equal(fiber.StatusUnauthorized, status)
	status, _ = s.do(t, "GET", "/api/orders/buyer-orders", "garbage", nil)
	req.Equal(fiber.StatusUnauthorized, status)

	token, id := s.signUp(t, "anil", "9988776655", "buyer")
	status, body = s.do(t, "GET", "/api/auth/profile", token, nil)
	req.Equal(fiber.StatusOK, status)
	req.Equal(id, body["user"].(map[string]any)["id"])
	req.NotContains(body["user"], "passwordHash")

	status, _ = s.do(t, "POST", "/api/auth/login", "", map[string]any{"username": "anil", "password": "nope"})
	req.Equal(fiber.StatusUnauthorized, status)

	for i := 0; i < 3; i++ {
		s.do(t, "POST", "/api/auth/send-otp", "", map[string]any{"mobile": "9000000001"})
	}
	status, _ = s.do(t, "POST", "/api/auth/send-otp", "", map[string]any{"mobile": "9000000001"})
	req.Equal(fiber.StatusTooManyRequests, status)
}

func TestAPI_MarketPricesHealthMetrics(t *testing.T) {
	req := require.New(t)
	s := newTestServer(t)

	status, body := s.do(t, "GET", "/api/market-prices?product=Onion", "", nil)
	req.Equal(fiber.StatusOK, status)
	req.Equal("Onion", body["product"])
	req.Equal("28", body["price"])
	req.Equal("stable", body["trend"])

	status, body = s.do(t, "GET", "/api/market-prices", "", nil)
	req.Equal(fiber.StatusOK, status)
	req.Contains(body["prices"], "tomato")

	status, body = s.do(t, "GET", "/api/health", "", nil)
	req.Equal(fiber.StatusOK, status)
	req.Equal("healthy", body["status"])
	req.Equal("up", body["components"].(map[string]any)["database"])

	resp, err := s.app.Test(httptest.NewRequest("GET", "/metrics", nil), -1)
	req.NoError(err)
	req.Equal(fiber.StatusOK, resp.StatusCode)
	raw, _ := io.ReadAll(resp.Body)
	req.Contains(string(raw), "farmconnect_otp_sent_total")

	status, _ = s.do(t, "GET", "/ws", "", nil)
	req.Equal(fiber.StatusUpgradeRequired, status)
}

func TestStatusOf(t *testing.T) {
	cases := []struct {
		err  error
		want int
	}{
		{apperrors.Validation("op", "bad"), fiber.StatusBadRequest},
		{apperrors.Unauthenticated("op", "who"), fiber.StatusUnauthorized},
		{apperrors.Authorization("op", "no"), fiber.StatusForbidden},
		{apperrors.NotFound("op", "gone"), fiber.StatusNotFound},
		{apperrors.StateConflict("op", "late"), fiber.StatusConflict},
		{apperrors.RateLimited("op", "slow"), fiber.StatusTooManyRequests},
		{apperrors.Transient("op", io.ErrClosedPipe), fiber.StatusServiceUnavailable},
		{io.EOF, fiber.StatusInternalServerError},
	}
	for _, tc := range cases {
		require.Equal(t, tc.want, StatusOf(tc.err), tc.err.Error())
	}
}
