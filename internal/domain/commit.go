package domain

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// Payment method constants. These are the only methods the commit core
// accepts; anything else is a validation failure before any network call.
const (
	PaymentCash  = "cash"
	PaymentCard  = "card"
	PaymentSplit = "split"
)

// CartEntry is a raw cart line as supplied by the register UI, before
// validation. Amounts are cents.
type CartEntry struct {
	ProductID     string             `json:"product_id"`
	Name          string             `json:"name"`
	SKU           string             `json:"sku"`
	CatalogPrice  int64              `json:"catalog_price"`
	OverridePrice *int64             `json:"override_price,omitempty"`
	CartQuantity  int                `json:"cart_quantity"`
	TierLabel     string             `json:"tier_label"`
	// TierDeduction is the inventory amount one cart unit of this tier
	// subtracts (e.g. a "28g" tier deducts 28). It comes from the
	// product's pricing tier and is mandatory.
	TierDeduction int                `json:"tier_deduction"`
	InventoryRef  string             `json:"inventory_ref"`
	Conversion    *VariantConversion `json:"variant_conversion,omitempty"`
}

// LineItem is a validated, commit-ready line. Immutable once built by
// the preparer.
type LineItem struct {
	ProductID   string `json:"product_id"`
	DisplayName string `json:"name"`
	SKU         string `json:"sku"`
	UnitPrice   int64  `json:"unit_price"`
	CartQty     int    `json:"cart_quantity"`
	TierLabel   string `json:"tier_label"`
	// DeductionQty is the inventory amount to subtract per cart unit
	// sold, distinct from CartQty. Always strictly positive.
	DeductionQty int                `json:"deduction_quantity"`
	LineTotal    int64              `json:"line_total"`
	InventoryRef string             `json:"inventory_ref"`
	Conversion   *VariantConversion `json:"variant_conversion,omitempty"`
}

// VariantConversion carries the template metadata used when one physical
// SKU represents multiple sellable variants. It is passed through to the
// remote inventory-reservation logic untouched.
type VariantConversion struct {
	TemplateID string  `json:"template_id"`
	Name       string  `json:"name"`
	Ratio      float64 `json:"ratio"`
}

// TenderSplit is one leg of a split-tender payment.
type TenderSplit struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

// PaymentDescriptor describes how the order is paid. Exactly the fields
// for the declared method may be set; the orchestrator rejects
// internally inconsistent descriptors before any network call.
type PaymentDescriptor struct {
	Method       string        `json:"method"`
	CashTendered int64         `json:"cash_tendered,omitempty"`
	ChangeDue    int64         `json:"change_due,omitempty"`
	CardBrand    string        `json:"card_brand,omitempty"`
	CardLast4    string        `json:"card_last4,omitempty"`
	Splits       []TenderSplit `json:"splits,omitempty"`
}

// CommitRequest aggregates everything the remote commit call needs.
type CommitRequest struct {
	VendorID   string `json:"vendor_id"`
	LocationID string `json:"location_id"`
	RegisterID string `json:"register_id"`
	SessionID  string `json:"session_id"`

	Entries []CartEntry `json:"entries"`

	Subtotal int64 `json:"subtotal"`
	Tax      int64 `json:"tax"`
	Total    int64 `json:"total"`

	Payment PaymentDescriptor `json:"payment"`

	CustomerID   string `json:"customer_id,omitempty"`
	LoyaltyToUse int64  `json:"loyalty_points_to_redeem,omitempty"`
	DiscountID   string `json:"discount_id,omitempty"`
}

// Fingerprint returns a stable idempotency key for this request, keyed
// by register, session and cart contents. The remote side uses it to
// dedupe a commit that reached the server after the client gave up.
func (r *CommitRequest) Fingerprint() string {
	h := sha256.New()
	fmt.Fprintf(h, "%s|%s|%s|%d|%d", r.RegisterID, r.SessionID, r.Payment.Method, r.Total, r.LoyaltyToUse)
	for _, e := range r.Entries {
		price := e.CatalogPrice
		if e.OverridePrice != nil {
			price = *e.OverridePrice
		}
		fmt.Fprintf(h, "|%s:%d:%d:%s", e.ProductID, e.CartQuantity, price, e.TierLabel)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// CompletionSummary is the terminal result of a successful commit.
// Loyalty figures are the server-authoritative values; any client-side
// loyalty math is advisory only and discarded.
type CompletionSummary struct {
	OrderNumber     string `json:"order_number"`
	TransactionRef  string `json:"transaction_ref"`
	Subtotal        int64  `json:"subtotal"`
	Tax             int64  `json:"tax"`
	Total           int64  `json:"total"`
	AuthCode        string `json:"auth_code,omitempty"`
	CardBrand       string `json:"card_brand,omitempty"`
	CardLast4       string `json:"card_last4,omitempty"`
	LoyaltyEarned   int64  `json:"loyalty_points_earned"`
	LoyaltyRedeemed int64  `json:"loyalty_points_redeemed"`
}

// CheckoutSession is the single mutable piece of state in the commit
// core. It is owned by the orchestrator, which is its only writer; all
// access goes through the orchestrator's public operations.
type CheckoutSession struct {
	Stage      Stage              `json:"stage"`
	LastError  *ErrorDetail       `json:"last_error,omitempty"`
	Completion *CompletionSummary `json:"completion,omitempty"`

	// cancel aborts the in-flight remote call. Present only while one
	// is outstanding.
	cancel context.CancelFunc
}

// SetCancel records the cancellation handle for the outstanding remote
// call.
func (s *CheckoutSession) SetCancel(fn context.CancelFunc) {
	s.cancel = fn
}

// ClearCancel drops the cancellation handle once the remote call has
// resolved.
func (s *CheckoutSession) ClearCancel() {
	s.cancel = nil
}

// CancelInFlight aborts the outstanding remote call, if any. Reports
// whether there was one to abort.
func (s *CheckoutSession) CancelInFlight() bool {
	if s.cancel == nil {
		return false
	}
	s.cancel()
	return true
}

// Reset unconditionally returns the session to idle, clearing the last
// error and completion. This is the only way out of a terminal stage.
func (s *CheckoutSession) Reset() {
	s.Stage = StageIdle
	s.LastError = nil
	s.Completion = nil
	s.cancel = nil
}
