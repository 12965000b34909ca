package service

import (
	"fmt"

	"github.com/floradistro/pos-checkout/internal/domain"
)

// Preparer converts raw cart entries into validated, commit-ready line
// items. It performs no I/O and is fully deterministic.
type Preparer struct{}

// NewPreparer creates a line-item preparer.
func NewPreparer() *Preparer {
	return &Preparer{}
}

// Prepare validates and transforms every cart entry. Any failure aborts
// the whole preparation and returns no items: submitting even one line
// with a wrong deduction quantity silently corrupts inventory, so
// partial results are never returned.
func (p *Preparer) Prepare(entries []domain.CartEntry) ([]domain.LineItem, error) {
	if len(entries) == 0 {
		return nil, domain.ValidationError("cart is empty")
	}

	items := make([]domain.LineItem, 0, len(entries))
	for i, entry := range entries {
		if entry.ProductID == "" {
			return nil, domain.ValidationError(fmt.Sprintf("item %d: product id is required", i))
		}
		if entry.Name == "" {
			return nil, domain.ValidationError(fmt.Sprintf("item %d: name is required", i))
		}
		if entry.CartQuantity <= 0 {
			return nil, domain.ValidationError(fmt.Sprintf("item %d (%s): cart quantity must be greater than 0", i, entry.Name))
		}

		// Effective unit price: manual per-item override wins over the
		// catalog price. Discounts are already folded in upstream.
		unitPrice := entry.CatalogPrice
		if entry.OverridePrice != nil {
			unitPrice = *entry.OverridePrice
		}
		if unitPrice < 0 {
			return nil, domain.ValidationError(fmt.Sprintf("item %d (%s): unit price must not be negative", i, entry.Name))
		}

		// The tier-derived deduction quantity is mandatory metadata. A
		// zero or missing value is a data-integrity fault that must
		// abort before any network call.
		if entry.TierDeduction <= 0 {
			return nil, domain.MissingDeductionQuantity(i, entry.Name)
		}

		if entry.Conversion != nil && entry.Conversion.Ratio <= 0 {
			return nil, domain.ValidationError(fmt.Sprintf("item %d (%s): variant conversion ratio must be greater than 0", i, entry.Name))
		}

		items = append(items, domain.LineItem{
			ProductID:    entry.ProductID,
			DisplayName:  entry.Name,
			SKU:          entry.SKU,
			UnitPrice:    unitPrice,
			CartQty:      entry.CartQuantity,
			TierLabel:    entry.TierLabel,
			DeductionQty: entry.TierDeduction,
			LineTotal:    unitPrice * int64(entry.CartQuantity),
			InventoryRef: entry.InventoryRef,
			Conversion:   entry.Conversion,
		})
	}

	return items, nil
}
