package http

import (
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/floradistro/pos-checkout/internal/domain"
	"github.com/floradistro/pos-checkout/internal/service"
	"github.com/floradistro/pos-checkout/pkg/httputil"
	"github.com/floradistro/pos-checkout/pkg/validator"
)

// CheckoutHandler handles HTTP requests from the register UI.
type CheckoutHandler struct {
	orchestrator *service.Orchestrator
	logger       *slog.Logger
}

// NewCheckoutHandler creates a new checkout HTTP handler.
func NewCheckoutHandler(orchestrator *service.Orchestrator, logger *slog.Logger) *CheckoutHandler {
	return &CheckoutHandler{
		orchestrator: orchestrator,
		logger:       logger,
	}
}

// --- Request DTOs ---

// CommitRequest is the JSON request body for committing a checkout.
// Amounts are cents. Cart-level semantics (deduction quantities, tender
// consistency, totals) are enforced by the commit core, not here; the
// DTO tags only reject requests with missing identity fields.
type CommitRequest struct {
	VendorID   string `json:"vendor_id" validate:"required"`
	LocationID string `json:"location_id" validate:"required"`
	RegisterID string `json:"register_id" validate:"required"`
	SessionID  string `json:"session_id" validate:"required"`

	Entries []CartEntryRequest `json:"entries"`

	Subtotal int64 `json:"subtotal" validate:"gte=0"`
	Tax      int64 `json:"tax" validate:"gte=0"`
	Total    int64 `json:"total" validate:"gte=0"`

	Payment PaymentRequest `json:"payment"`

	CustomerID   string `json:"customer_id"`
	LoyaltyToUse int64  `json:"loyalty_points_to_redeem" validate:"gte=0"`
	DiscountID   string `json:"discount_id"`
}

// CartEntryRequest represents a single cart line in the commit request.
type CartEntryRequest struct {
	ProductID     string                    `json:"product_id"`
	Name          string                    `json:"name"`
	SKU           string                    `json:"sku"`
	CatalogPrice  int64                     `json:"catalog_price"`
	OverridePrice *int64                    `json:"override_price"`
	CartQuantity  int                       `json:"cart_quantity"`
	TierLabel     string                    `json:"tier_label"`
	TierDeduction int                       `json:"tier_deduction"`
	InventoryRef  string                    `json:"inventory_ref"`
	Conversion    *VariantConversionRequest `json:"variant_conversion"`
}

// VariantConversionRequest carries variant template metadata.
type VariantConversionRequest struct {
	TemplateID string  `json:"template_id"`
	Name       string  `json:"name"`
	Ratio      float64 `json:"ratio"`
}

// PaymentRequest describes how the order is paid.
type PaymentRequest struct {
	Method       string               `json:"method" validate:"required"`
	CashTendered int64                `json:"cash_tendered"`
	ChangeDue    int64                `json:"change_due"`
	CardBrand    string               `json:"card_brand"`
	CardLast4    string               `json:"card_last4"`
	Splits       []TenderSplitRequest `json:"splits"`
}

// TenderSplitRequest is one leg of a split-tender payment.
type TenderSplitRequest struct {
	Method string `json:"method"`
	Amount int64  `json:"amount"`
}

// SessionResponse is the JSON body returned by the session endpoint.
type SessionResponse struct {
	Stage      string                    `json:"stage"`
	LastError  *domain.ErrorDetail       `json:"last_error,omitempty"`
	Completion *domain.CompletionSummary `json:"completion,omitempty"`
}

// --- Handlers ---

// Commit handles POST /api/v1/checkout/commit
// @Summary Commit a checkout
// @Description Validates the cart, refreshes credentials, and durably commits the paid order. At most one commit is in flight per register.
// @Tags checkout
// @Accept json
// @Produce json
// @Param request body CommitRequest true "Checkout commit data"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Failure 401 {object} map[string]interface{}
// @Failure 409 {object} map[string]interface{}
// @Failure 422 {object} map[string]interface{}
// @Failure 502 {object} map[string]interface{}
// @Failure 504 {object} map[string]interface{}
// @Router /api/v1/checkout/commit [post]
func (h *CheckoutHandler) Commit(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20) // 1MB limit

	var req CommitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return
	}

	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	summary, err := h.orchestrator.Commit(r.Context(), toDomainRequest(&req))
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: summary})
}

// Cancel handles POST /api/v1/checkout/cancel
// @Summary Cancel the in-flight commit
// @Description Aborts the outstanding remote commit call, if any. A no-op when nothing is in flight.
// @Tags checkout
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/checkout/cancel [post]
func (h *CheckoutHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	cancelled := h.orchestrator.Cancel()
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{
		Data: map[string]bool{"cancelled": cancelled},
	})
}

// Reset handles POST /api/v1/checkout/reset
// @Summary Reset the checkout session
// @Description Returns the session to idle, discarding any terminal result. The only way out of a terminal stage.
// @Tags checkout
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/checkout/reset [post]
func (h *CheckoutHandler) Reset(w http.ResponseWriter, r *http.Request) {
	h.orchestrator.Reset()
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.sessionSnapshot()})
}

// GetSession handles GET /api/v1/checkout/session
// @Summary Get the checkout session state
// @Description Returns the current stage plus the last error or completion summary, for register UI recovery after a reload.
// @Tags checkout
// @Produce json
// @Success 200 {object} map[string]interface{}
// @Router /api/v1/checkout/session [get]
func (h *CheckoutHandler) GetSession(w http.ResponseWriter, r *http.Request) {
	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: h.sessionSnapshot()})
}

// --- Helpers ---

func (h *CheckoutHandler) sessionSnapshot() SessionResponse {
	return SessionResponse{
		Stage:      h.orchestrator.CurrentStage().String(),
		LastError:  h.orchestrator.LastError(),
		Completion: h.orchestrator.Completion(),
	}
}

func toDomainRequest(req *CommitRequest) *domain.CommitRequest {
	entries := make([]domain.CartEntry, len(req.Entries))
	for i, e := range req.Entries {
		entries[i] = domain.CartEntry{
			ProductID:     e.ProductID,
			Name:          e.Name,
			SKU:           e.SKU,
			CatalogPrice:  e.CatalogPrice,
			OverridePrice: e.OverridePrice,
			CartQuantity:  e.CartQuantity,
			TierLabel:     e.TierLabel,
			TierDeduction: e.TierDeduction,
			InventoryRef:  e.InventoryRef,
		}
		if e.Conversion != nil {
			entries[i].Conversion = &domain.VariantConversion{
				TemplateID: e.Conversion.TemplateID,
				Name:       e.Conversion.Name,
				Ratio:      e.Conversion.Ratio,
			}
		}
	}

	splits := make([]domain.TenderSplit, len(req.Payment.Splits))
	for i, s := range req.Payment.Splits {
		splits[i] = domain.TenderSplit{Method: s.Method, Amount: s.Amount}
	}

	return &domain.CommitRequest{
		VendorID:   req.VendorID,
		LocationID: req.LocationID,
		RegisterID: req.RegisterID,
		SessionID:  req.SessionID,
		Entries:    entries,
		Subtotal:   req.Subtotal,
		Tax:        req.Tax,
		Total:      req.Total,
		Payment: domain.PaymentDescriptor{
			Method:       req.Payment.Method,
			CashTendered: req.Payment.CashTendered,
			ChangeDue:    req.Payment.ChangeDue,
			CardBrand:    req.Payment.CardBrand,
			CardLast4:    req.Payment.CardLast4,
			Splits:       splits,
		},
		CustomerID:   req.CustomerID,
		LoyaltyToUse: req.LoyaltyToUse,
		DiscountID:   req.DiscountID,
	}
}
