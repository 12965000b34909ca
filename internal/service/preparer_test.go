package service

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/floradistro/pos-checkout/internal/domain"
)

func validEntry() domain.CartEntry {
	return domain.CartEntry{
		ProductID:     "prod-1",
		Name:          "Blue Dream",
		SKU:           "FD-BD-28G",
		CatalogPrice:  2500,
		CartQuantity:  2,
		TierLabel:     "28g (Ounce)",
		TierDeduction: 28,
		InventoryRef:  "inv-77",
	}
}

func TestPrepare_Success(t *testing.T) {
	p := NewPreparer()

	items, err := p.Prepare([]domain.CartEntry{validEntry()})

	require.NoError(t, err)
	require.Len(t, items, 1)
	item := items[0]
	assert.Equal(t, "prod-1", item.ProductID)
	assert.Equal(t, "Blue Dream", item.DisplayName)
	assert.Equal(t, "FD-BD-28G", item.SKU)
	assert.Equal(t, int64(2500), item.UnitPrice)
	assert.Equal(t, 2, item.CartQty)
	assert.Equal(t, "28g (Ounce)", item.TierLabel)
	assert.Equal(t, 28, item.DeductionQty)
	assert.Equal(t, int64(5000), item.LineTotal)
	assert.Equal(t, "inv-77", item.InventoryRef)
	assert.Nil(t, item.Conversion)
}

func TestPrepare_OverridePriceWins(t *testing.T) {
	p := NewPreparer()
	entry := validEntry()
	override := int64(2000)
	entry.OverridePrice = &override

	items, err := p.Prepare([]domain.CartEntry{entry})

	require.NoError(t, err)
	assert.Equal(t, int64(2000), items[0].UnitPrice)
	assert.Equal(t, int64(4000), items[0].LineTotal)
}

func TestPrepare_ZeroPriceIsAllowed(t *testing.T) {
	// Comped items carry a zero price; only negative prices are faults.
	p := NewPreparer()
	entry := validEntry()
	entry.CatalogPrice = 0

	items, err := p.Prepare([]domain.CartEntry{entry})

	require.NoError(t, err)
	assert.Equal(t, int64(0), items[0].LineTotal)
}

func TestPrepare_MissingDeductionFailsWholeCart(t *testing.T) {
	p := NewPreparer()
	good := validEntry()
	bad := validEntry()
	bad.Name = "Sour Diesel 3.5g"
	bad.TierDeduction = 0

	items, err := p.Prepare([]domain.CartEntry{good, bad, good})

	require.Error(t, err)
	assert.Nil(t, items, "no partial list may be returned")

	var ce *domain.CommitError
	require.True(t, errors.As(err, &ce))
	assert.Equal(t, domain.KindValidation, ce.Kind)
	assert.Equal(t, 1, ce.ItemIndex)
	assert.Equal(t, "Sour Diesel 3.5g", ce.ItemName)
}

func TestPrepare_NegativeDeductionFails(t *testing.T) {
	p := NewPreparer()
	entry := validEntry()
	entry.TierDeduction = -5

	items, err := p.Prepare([]domain.CartEntry{entry})

	require.Error(t, err)
	assert.Nil(t, items)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestPrepare_EmptyCart(t *testing.T) {
	p := NewPreparer()

	items, err := p.Prepare(nil)

	require.Error(t, err)
	assert.Nil(t, items)
	assert.Equal(t, domain.KindValidation, domain.KindOf(err))
}

func TestPrepare_InvalidEntries(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*domain.CartEntry)
	}{
		{"missing product id", func(e *domain.CartEntry) { e.ProductID = "" }},
		{"missing name", func(e *domain.CartEntry) { e.Name = "" }},
		{"zero quantity", func(e *domain.CartEntry) { e.CartQuantity = 0 }},
		{"negative quantity", func(e *domain.CartEntry) { e.CartQuantity = -1 }},
		{"negative price", func(e *domain.CartEntry) { e.CatalogPrice = -100 }},
		{"zero conversion ratio", func(e *domain.CartEntry) {
			e.Conversion = &domain.VariantConversion{TemplateID: "tpl-9", Name: "Preroll 4-pack", Ratio: 0}
		}},
	}

	p := NewPreparer()
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			entry := validEntry()
			tc.mutate(&entry)

			items, err := p.Prepare([]domain.CartEntry{entry})

			require.Error(t, err)
			assert.Nil(t, items)
			assert.Equal(t, domain.KindValidation, domain.KindOf(err))
		})
	}
}

func TestPrepare_VariantConversionPassesThrough(t *testing.T) {
	p := NewPreparer()
	entry := validEntry()
	entry.Conversion = &domain.VariantConversion{
		TemplateID: "tpl-9",
		Name:       "Preroll 4-pack",
		Ratio:      4,
	}

	items, err := p.Prepare([]domain.CartEntry{entry})

	require.NoError(t, err)
	require.NotNil(t, items[0].Conversion)
	assert.Equal(t, "tpl-9", items[0].Conversion.TemplateID)
	assert.Equal(t, float64(4), items[0].Conversion.Ratio)
}

func TestPrepare_Deterministic(t *testing.T) {
	// Same cart in, same lines out: the preparer does no I/O and holds
	// no state.
	p := NewPreparer()
	cart := []domain.CartEntry{validEntry(), validEntry(), validEntry()}

	first, err := p.Prepare(cart)
	require.NoError(t, err)
	second, err := p.Prepare(cart)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}
