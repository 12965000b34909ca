package remote

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floradistro/pos-checkout/pkg/httpclient"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

func newTestClient(serverURL string) *Client {
	// Zero retries: the commit call is single-shot by contract; the
	// server-side idempotency key handles duplicates.
	doer := httpclient.New(httpclient.Config{Timeout: 5 * time.Second, MaxRetries: 0, MaxConnsPerHost: 10})
	return NewClient(doer, serverURL, testLogger())
}

func scenarioInput() *CommitOrderInput {
	return &CommitOrderInput{
		IdempotencyKey: "fp-abc123",
		VendorID:       "vendor-1",
		LocationID:     "loc-1",
		RegisterID:     "reg-1",
		SessionID:      "sess-1",
		Items: []Item{
			{
				ProductID:    "prod-1",
				Name:         "Blue Dream",
				SKU:          "FD-BD-28G",
				UnitPrice:    2500,
				CartQuantity: 2,
				TierLabel:    "28g (Ounce)",
				DeductionQty: 28,
				LineTotal:    5000,
				InventoryRef: "inv-77",
			},
		},
		Subtotal: 5000,
		Tax:      400,
		Total:    5400,
		Payment:  Payment{Method: "cash", CashTendered: 6000, ChangeDue: 600},
	}
}

func TestCommitOrder_PayloadShape(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/v1/orders/commit", r.URL.Path)
		assert.Equal(t, "Bearer tok-1", r.Header.Get("Authorization"))
		assert.Equal(t, "fp-abc123", r.Header.Get("Idempotency-Key"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"order":   map[string]any{"order_number": "ORD-1001", "transaction_ref": "txn-555", "total": 5400},
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", scenarioInput())

	require.NoError(t, err)
	assert.Equal(t, "ORD-1001", result.OrderNumber)
	assert.Equal(t, "txn-555", result.TransactionRef)
	assert.Equal(t, int64(5400), result.Total)

	assert.Equal(t, "fp-abc123", body["idempotency_key"])
	assert.Equal(t, float64(5400), body["total"])

	items := body["items"].([]any)
	require.Len(t, items, 1)
	item := items[0].(map[string]any)
	assert.Equal(t, float64(5000), item["line_total"])
	assert.Equal(t, float64(28), item["deduction_quantity"])
	assert.Equal(t, float64(2), item["cart_quantity"])
	assert.Equal(t, "28g (Ounce)", item["tier_label"])

	payment := body["payment"].(map[string]any)
	assert.Equal(t, "cash", payment["method"])
	assert.Equal(t, float64(6000), payment["cash_tendered"])
}

func TestCommitOrder_VariantConversionOnTheWire(t *testing.T) {
	var body map[string]any
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": true,
			"order":   map[string]any{"order_number": "ORD-1002"},
		})
	}))
	defer server.Close()

	input := scenarioInput()
	input.Items[0].Conversion = &Conversion{TemplateID: "tpl-9", Name: "Preroll 4-pack", Ratio: 4}

	_, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", input)
	require.NoError(t, err)

	item := body["items"].([]any)[0].(map[string]any)
	conv := item["variant_conversion"].(map[string]any)
	assert.Equal(t, "tpl-9", conv["template_id"])
	assert.Equal(t, float64(4), conv["ratio"])
}

func TestCommitOrder_ServerLoyaltyFields(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success":                 true,
			"order":                   map[string]any{"order_number": "ORD-1003"},
			"loyalty_points_earned":   54,
			"loyalty_points_redeemed": 30,
			"auth_code":               "A1B2C3",
			"card_brand":              "visa",
			"card_last4":              "4242",
		})
	}))
	defer server.Close()

	result, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", scenarioInput())

	require.NoError(t, err)
	assert.Equal(t, int64(54), result.LoyaltyEarned)
	assert.Equal(t, int64(30), result.LoyaltyRedeemed)
	assert.Equal(t, "A1B2C3", result.AuthCode)
	assert.Equal(t, "visa", result.CardBrand)
	assert.Equal(t, "4242", result.CardLast4)
}

func TestCommitOrder_BusinessRejectionInside200(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"success": false,
			"error":   "insufficient stock for FD-BD-28G",
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", scenarioInput())

	require.Error(t, err)
	var rejection *RejectionError
	require.True(t, errors.As(err, &rejection))
	assert.Equal(t, "insufficient stock for FD-BD-28G", rejection.Reason)
}

func TestCommitOrder_StructuredErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"code": "TOTAL_MISMATCH", "message": "order total does not match line items"},
		})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", scenarioInput())

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusUnprocessableEntity, statusErr.StatusCode)
	assert.Equal(t, "TOTAL_MISMATCH", statusErr.Code)
	assert.Equal(t, "order total does not match line items", statusErr.Message)
}

func TestCommitOrder_PlainTextErrorBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte("bad gateway\n"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", scenarioInput())

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, http.StatusBadGateway, statusErr.StatusCode)
	assert.Equal(t, "bad gateway", statusErr.Message)
}

func TestCommitOrder_BareStringErrorField(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": "duplicate idempotency key"})
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", scenarioInput())

	require.Error(t, err)
	var statusErr *StatusError
	require.True(t, errors.As(err, &statusErr))
	assert.Equal(t, "duplicate idempotency key", statusErr.Message)
}

func TestCommitOrder_MalformedSuccessBody(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("{not json"))
	}))
	defer server.Close()

	_, err := newTestClient(server.URL).CommitOrder(context.Background(), "tok-1", scenarioInput())

	require.Error(t, err)
	var decodeErr *DecodeError
	assert.True(t, errors.As(err, &decodeErr))
}

func TestCommitOrder_ContextCancellation(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read starts and the
		// client disconnect cancels r.Context(); otherwise Close deadlocks.
		_, _ = io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		<-started
		cancel()
	}()

	_, err := newTestClient(server.URL).CommitOrder(ctx, "tok-1", scenarioInput())

	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}
