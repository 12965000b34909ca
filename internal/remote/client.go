// Package remote implements the client for the commit service: the
// opaque external system that performs atomic order creation, inventory
// reservation and loyalty computation in a single call.
package remote

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
)

// HTTPDoer executes HTTP requests. Both httpclient.Client and
// httpclient.CircuitBreakerClient satisfy this.
type HTTPDoer interface {
	Do(ctx context.Context, req *http.Request) (*http.Response, error)
}

// Client talks to the remote commit service.
type Client struct {
	http    HTTPDoer
	baseURL string
	logger  *slog.Logger
}

// NewClient creates a commit-service client rooted at baseURL.
func NewClient(doer HTTPDoer, baseURL string, logger *slog.Logger) *Client {
	return &Client{
		http:    doer,
		baseURL: strings.TrimRight(baseURL, "/"),
		logger:  logger,
	}
}

// commitItem is the wire form of one order line.
type commitItem struct {
	ProductID    string             `json:"product_id"`
	Name         string             `json:"name"`
	SKU          string             `json:"sku"`
	UnitPrice    int64              `json:"unit_price"`
	CartQuantity int                `json:"cart_quantity"`
	TierLabel    string             `json:"tier_label"`
	DeductionQty int                `json:"deduction_quantity"`
	LineTotal    int64              `json:"line_total"`
	InventoryRef string             `json:"inventory_ref,omitempty"`
	Conversion   *variantConversion `json:"variant_conversion,omitempty"`
}

type variantConversion struct {
	TemplateID string  `json:"template_id"`
	Name       string  `json:"name"`
	Ratio      float64 `json:"ratio"`
}

type commitPayment struct {
	Method       string        `json:"method"`
	CashTendered int64         `json:"cash_tendered,omitempty"`
	ChangeDue    int64         `json:"change_due,omitempty"`
	CardBrand    string        `json:"card_brand,omitempty"`
	CardLast4    string        `json:"card_last4,omitempty"`
	Splits       []commitSplit `json:"splits,omitempty"`
}

type commitSplit struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

// commitPayload is the full request body for the commit call.
type commitPayload struct {
	IdempotencyKey string        `json:"idempotency_key"`
	VendorID       string        `json:"vendor_id"`
	LocationID     string        `json:"location_id"`
	RegisterID     string        `json:"register_id"`
	SessionID      string        `json:"session_id"`
	Items          []commitItem  `json:"items"`
	Subtotal       int64         `json:"subtotal"`
	Tax            int64         `json:"tax"`
	Total          int64         `json:"total"`
	Payment        commitPayment `json:"payment"`
	CustomerID     string        `json:"customer_id,omitempty"`
	LoyaltyToUse   int64         `json:"loyalty_points_to_redeem,omitempty"`
	DiscountID     string        `json:"discount_id,omitempty"`
}

// commitResponse is the wire form of the commit service's reply. The
// service reports business rejections inside a 200 body with
// success=false.
type commitResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
	Order   struct {
		OrderNumber    string `json:"order_number"`
		TransactionRef string `json:"transaction_ref"`
		Total          int64  `json:"total"`
	} `json:"order"`
	LoyaltyEarned   int64  `json:"loyalty_points_earned"`
	LoyaltyRedeemed int64  `json:"loyalty_points_redeemed"`
	AuthCode        string `json:"auth_code,omitempty"`
	CardBrand       string `json:"card_brand,omitempty"`
	CardLast4       string `json:"card_last4,omitempty"`
}

// Result is the parsed outcome of a successful commit. Loyalty figures
// are the server-computed values.
type Result struct {
	OrderNumber     string
	TransactionRef  string
	Total           int64
	AuthCode        string
	CardBrand       string
	CardLast4       string
	LoyaltyEarned   int64
	LoyaltyRedeemed int64
}

// CommitOrderInput carries everything CommitOrder needs on the wire.
type CommitOrderInput struct {
	IdempotencyKey string
	VendorID       string
	LocationID     string
	RegisterID     string
	SessionID      string
	Items          []Item
	Subtotal       int64
	Tax            int64
	Total          int64
	Payment        Payment
	CustomerID     string
	LoyaltyToUse   int64
	DiscountID     string
}

// Item is one validated order line, already shaped by the preparer.
type Item struct {
	ProductID    string
	Name         string
	SKU          string
	UnitPrice    int64
	CartQuantity int
	TierLabel    string
	DeductionQty int
	LineTotal    int64
	InventoryRef string
	Conversion   *Conversion
}

// Conversion mirrors the variant-conversion metadata, passed through to
// the remote inventory logic untouched.
type Conversion struct {
	TemplateID string
	Name       string
	Ratio      float64
}

// Payment mirrors the payment descriptor on the wire.
type Payment struct {
	Method       string
	CashTendered int64
	ChangeDue    int64
	CardBrand    string
	CardLast4    string
	Splits       []Split
}

// Split is one leg of a split tender.
type Split struct {
	Method string
	Amount int64
}

// CommitOrder issues exactly one commit call. The caller owns the
// deadline on ctx; this method never retries.
func (c *Client) CommitOrder(ctx context.Context, token string, input *CommitOrderInput) (*Result, error) {
	payload := commitPayload{
		IdempotencyKey: input.IdempotencyKey,
		VendorID:       input.VendorID,
		LocationID:     input.LocationID,
		RegisterID:     input.RegisterID,
		SessionID:      input.SessionID,
		Items:          make([]commitItem, len(input.Items)),
		Subtotal:       input.Subtotal,
		Tax:            input.Tax,
		Total:          input.Total,
		Payment: commitPayment{
			Method:       input.Payment.Method,
			CashTendered: input.Payment.CashTendered,
			ChangeDue:    input.Payment.ChangeDue,
			CardBrand:    input.Payment.CardBrand,
			CardLast4:    input.Payment.CardLast4,
		},
		CustomerID:   input.CustomerID,
		LoyaltyToUse: input.LoyaltyToUse,
		DiscountID:   input.DiscountID,
	}
	for _, split := range input.Payment.Splits {
		payload.Payment.Splits = append(payload.Payment.Splits, commitSplit(split))
	}
	for i, item := range input.Items {
		payload.Items[i] = commitItem{
			ProductID:    item.ProductID,
			Name:         item.Name,
			SKU:          item.SKU,
			UnitPrice:    item.UnitPrice,
			CartQuantity: item.CartQuantity,
			TierLabel:    item.TierLabel,
			DeductionQty: item.DeductionQty,
			LineTotal:    item.LineTotal,
			InventoryRef: item.InventoryRef,
		}
		if item.Conversion != nil {
			conv := variantConversion(*item.Conversion)
			payload.Items[i].Conversion = &conv
		}
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("marshal commit payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/v1/orders/commit", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create commit request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Idempotency-Key", input.IdempotencyKey)

	resp, err := c.http.Do(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("call commit service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, parseStatusError(resp)
	}

	var parsed commitResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, &DecodeError{Err: err}
	}

	if !parsed.Success {
		return nil, &RejectionError{Reason: parsed.Error}
	}

	c.logger.DebugContext(ctx, "commit accepted",
		slog.String("order_number", parsed.Order.OrderNumber),
		slog.Int64("total", parsed.Order.Total),
	)

	return &Result{
		OrderNumber:     parsed.Order.OrderNumber,
		TransactionRef:  parsed.Order.TransactionRef,
		Total:           parsed.Order.Total,
		AuthCode:        parsed.AuthCode,
		CardBrand:       parsed.CardBrand,
		CardLast4:       parsed.CardLast4,
		LoyaltyEarned:   parsed.LoyaltyEarned,
		LoyaltyRedeemed: parsed.LoyaltyRedeemed,
	}, nil
}

// parseStatusError reads a non-2xx response body and builds a
// StatusError preserving the remote-supplied message when the body is
// the standard {"error": {"code", "message"}} shape, a bare
// {"error": "..."} string, or plain text.
func parseStatusError(resp *http.Response) error {
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return &StatusError{StatusCode: resp.StatusCode, Message: fmt.Sprintf("failed to read error body: %v", err)}
	}

	var structured struct {
		Error json.RawMessage `json:"error"`
	}
	if json.Unmarshal(raw, &structured) == nil && len(structured.Error) > 0 {
		var nested struct {
			Code    string `json:"code"`
			Message string `json:"message"`
		}
		if json.Unmarshal(structured.Error, &nested) == nil && nested.Message != "" {
			return &StatusError{StatusCode: resp.StatusCode, Code: nested.Code, Message: nested.Message}
		}
		var plain string
		if json.Unmarshal(structured.Error, &plain) == nil && plain != "" {
			return &StatusError{StatusCode: resp.StatusCode, Message: plain}
		}
	}

	return &StatusError{StatusCode: resp.StatusCode, Message: strings.TrimSpace(string(raw))}
}
