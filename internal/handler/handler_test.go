package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/naturemedica/commerce/internal/courier"
	"github.com/naturemedica/commerce/internal/domain"
	"github.com/naturemedica/commerce/internal/service"
	"github.com/naturemedica/commerce/internal/store"
	"github.com/naturemedica/commerce/internal/telemetry"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testWebhookToken = "hook-secret"

type testEnv struct {
	app      *fiber.App
	repo     *store.MemoryOrderRepository
	provider *courier.MockProvider
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	repo := store.NewMemoryOrderRepository()
	provider := &courier.MockProvider{}
	registry := courier.NewRegistry(provider)
	metrics := telemetry.NewTestMetrics()

	cfg := service.ShippingConfig{
		DefaultProvider:    domain.CourierShiprocket,
		DefaultWeightGrams: 500,
		DefaultLengthCm:    30,
		DefaultWidthCm:     20,
		DefaultHeightCm:    15,
		GSTRate:            0.18,
	}

	orchestrator := service.NewOrchestrator(repo, registry, nil, metrics, nil, cfg)
	statuses := service.NewStatusService(repo, nil, metrics, nil)
	resolver := service.NewResolver(repo, registry, nil, time.Minute, metrics, nil)

	app := fiber.New()
	admin := app.Group("/admin")
	NewAdminHandler(orchestrator, statuses, nil).Register(admin)
	NewTrackingHandler(resolver, nil).Register(app)
	NewWebhookHandler(repo, statuses, testWebhookToken, nil).Register(app)

	return &testEnv{app: app, repo: repo, provider: provider}
}

func (e *testEnv) seedOrder(t *testing.T, orderID string, status domain.OrderStatus) {
	t.Helper()

	order := domain.NewOrder(orderID,
		[]domain.OrderItem{{ProductID: "p1", Title: "Ashwagandha Capsules", Quantity: 1, UnitPricePaise: 60000}},
		domain.ShippingAddress{Name: "Asha Verma", City: "Pune", Pincode: "411001"},
		60000, 0, domain.PaymentOnline, time.Now(),
	)
	require.NoError(t, e.repo.Create(context.Background(), order))

	for _, next := range []domain.OrderStatus{domain.StatusConfirmed, domain.StatusShipped, domain.StatusDelivered} {
		if order.Status == status {
			break
		}
		require.NoError(t, order.Transition(next, "", time.Now()))
		entry := order.StatusHistory[len(order.StatusHistory)-1]
		require.NoError(t, e.repo.AppendStatus(context.Background(), orderID, order.StatusHistory[len(order.StatusHistory)-2].Status, entry))
		if next == status {
			break
		}
	}
}

func doJSON(t *testing.T, app *fiber.App, method, path string, body any, headers map[string]string) (*http.Response, []byte) {
	t.Helper()

	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, raw
}

func TestCreateShipmentEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "NM000080", domain.StatusConfirmed)

	resp, raw := doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000080/shipment", fiber.Map{"provider": "shiprocket"}, nil)
	require.Equal(t, http.StatusCreated, resp.StatusCode, string(raw))

	var result service.CreateShipmentResult
	require.NoError(t, json.Unmarshal(raw, &result))
	assert.True(t, result.Persisted)
	assert.Equal(t, "MOCK123", result.Order.TrackingID)
	assert.Equal(t, domain.StatusShipped, result.Order.Status)

	// Second attempt is rejected and the courier is not called again.
	resp, raw = doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000080/shipment", nil, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Equal(t, domain.EINVALID, errResp.Code)
	assert.Contains(t, errResp.Message, "already has a shipment")
	assert.Equal(t, 1, env.provider.CreateShipmentCalls)
}

func TestCreateShipmentEndpoint_WalletErrorSurfaced(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "NM000080", domain.StatusConfirmed)
	env.provider.CreateShipmentFn = func(ctx context.Context, params courier.CreateShipmentParams) (*courier.ShipmentRecord, error) {
		return nil, &domain.Error{Code: domain.EPAYMENT, Message: "Courier wallet balance exhausted, recharge required: not enough balance"}
	}

	resp, raw := doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000080/shipment", nil, nil)
	assert.Equal(t, http.StatusPaymentRequired, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Contains(t, errResp.Message, "recharge required")
}

func TestCreateShipmentEndpoint_InvalidProvider(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "NM000080", domain.StatusConfirmed)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000080/shipment", fiber.Map{"provider": "bluedart"}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, env.provider.CreateShipmentCalls)
}

func TestUpdateStatusEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "NM000081", domain.StatusProcessing)

	resp, raw := doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000081/status", fiber.Map{"status": "Confirmed", "note": "Payment verified"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	// Illegal edge is a 409.
	resp, raw = doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000081/status", fiber.Map{"status": "Delivered"}, nil)
	assert.Equal(t, http.StatusConflict, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Equal(t, domain.ESTATE, errResp.Code)
}

func TestCancelOrderEndpoint_RequiresReason(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "NM000082", domain.StatusProcessing)

	resp, _ := doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000082/cancel", fiber.Map{}, nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp, raw := doJSON(t, env.app, http.MethodPost, "/admin/orders/NM000082/cancel", fiber.Map{"reason": "Customer requested cancellation"}, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var order domain.Order
	require.NoError(t, json.Unmarshal(raw, &order))
	assert.Equal(t, domain.StatusCancelled, order.Status)
}

func TestTrackEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "NM000083", domain.StatusShipped)

	resp, raw := doJSON(t, env.app, http.MethodGet, "/track/NM000083", nil, nil)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))

	var view domain.TrackingView
	require.NoError(t, json.Unmarshal(raw, &view))
	assert.Equal(t, "NM000083", view.OrderID)
	assert.NotEmpty(t, view.Activities)
}

func TestTrackEndpoint_NotFoundIsGeneric(t *testing.T) {
	env := newTestEnv(t)
	env.provider.TrackByAWBFn = func(ctx context.Context, awb string) (*domain.TrackingView, error) {
		return nil, &domain.Error{Code: domain.ENOTFOUND, Message: "No shipment found"}
	}

	resp, raw := doJSON(t, env.app, http.MethodGet, "/track/GHOST1", nil, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var errResp ErrorResponse
	require.NoError(t, json.Unmarshal(raw, &errResp))
	assert.Contains(t, errResp.Message, "not available")
}

func TestWebhookEndpoint(t *testing.T) {
	env := newTestEnv(t)
	env.seedOrder(t, "NM000084", domain.StatusShipped)

	// Missing token.
	resp, _ := doJSON(t, env.app, http.MethodPost, "/webhooks/courier/shiprocket", fiber.Map{"order_id": "NM000084", "current_status": "Delivered"}, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	headers := map[string]string{"X-Webhook-Token": testWebhookToken}

	// Non-delivery scans are acknowledged without acting.
	resp, raw := doJSON(t, env.app, http.MethodPost, "/webhooks/courier/shiprocket", fiber.Map{"order_id": "NM000084", "current_status": "In Transit"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"processed":false`)

	resp, raw = doJSON(t, env.app, http.MethodPost, "/webhooks/courier/shiprocket", fiber.Map{"order_id": "NM000084", "current_status": "Delivered"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode, string(raw))
	assert.Contains(t, string(raw), `"processed":true`)

	stored, err := env.repo.FindByOrderID(context.Background(), "NM000084")
	require.NoError(t, err)
	assert.Equal(t, domain.StatusDelivered, stored.Status)

	// Replays are idempotent.
	resp, raw = doJSON(t, env.app, http.MethodPost, "/webhooks/courier/shiprocket", fiber.Map{"order_id": "NM000084", "current_status": "Delivered"}, headers)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(raw), `"processed":false`)
}
