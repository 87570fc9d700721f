package domain

import (
	"fmt"

	"github.com/shopspring/decimal"
)

// ErrUnknownUnit rejects any sale unit outside the closed pcs/packet/carton
// set. An empty unit is treated as pcs; everything else is a caller error.
var ErrUnknownUnit = fmt.Errorf("unknown sale unit")

// unitFactor returns how many base units one sale unit of the product holds.
// Unset conversion factors count as 1.
func unitFactor(p Product, unit SaleUnit) (int, error) {
	perPacket := p.UnitsPerPacket
	if perPacket < 1 {
		perPacket = 1
	}
	perCarton := p.PacketsPerCarton
	if perCarton < 1 {
		perCarton = 1
	}

	switch unit {
	case UnitPcs, "":
		return 1, nil
	case UnitPacket:
		return perPacket, nil
	case UnitCarton:
		return perPacket * perCarton, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, unit)
	}
}

// BaseUnits converts a quantity keyed in the given sale unit into base units
// (pcs) for stock arithmetic.
func BaseUnits(p Product, unit SaleUnit, qty int) (int, error) {
	factor, err := unitFactor(p, unit)
	if err != nil {
		return 0, err
	}
	return qty * factor, nil
}

// UnitPrice returns the per-sale-unit price for the customer type. Wholesale
// pricing requires the product to allow it; otherwise the retail price
// applies.
func UnitPrice(p Product, customerType CustomerType, unit SaleUnit) (decimal.Decimal, error) {
	factor, err := unitFactor(p, unit)
	if err != nil {
		return decimal.Decimal{}, err
	}

	base := p.RetailPrice
	if customerType == CustomerWholesale && p.AllowWholesale {
		base = p.WholesalePrice
	}
	return base.Mul(decimal.NewFromInt(int64(factor))), nil
}
