// Package ledger holds the order rules: how amounts are split between the
// farmer and the platform, how order ids are minted and which status
// transitions each party may trigger.
package ledger

import (
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/shopspring/decimal"
)

// DefaultCommissionRate is the platform cut applied when nothing else is configured.
var DefaultCommissionRate = decimal.RequireFromString("0.03")

var hundredths = int32(2)

// Amounts is the frozen money breakdown of an order.
// FarmerAmount + PlatformAmount == TotalAmount, always exactly.
type Amounts struct {
	UnitPrice      decimal.Decimal
	TotalAmount    decimal.Decimal
	CommissionRate decimal.Decimal
	Commission     decimal.Decimal
	FarmerAmount   decimal.Decimal
	PlatformAmount decimal.Decimal
}

// ComputeAmounts splits quantity × unitPrice. The farmer share is rounded to
// currency precision; the rounding remainder goes to the platform.
func ComputeAmounts(quantity int, unitPrice, rate decimal.Decimal) (Amounts, error) {
	const op = "ledger.ComputeAmounts"
	if quantity <= 0 {
		return Amounts{}, apperrors.Validation(op, "quantity must be a positive integer, got %d", quantity)
	}
	if !unitPrice.IsPositive() {
		return Amounts{}, apperrors.Validation(op, "unit price must be positive, got %s", unitPrice)
	}
	if err := ValidateRate(rate); err != nil {
		return Amounts{}, err
	}

	total := unitPrice.Mul(decimal.NewFromInt(int64(quantity)))
	farmer := total.Sub(total.Mul(rate)).Round(hundredths)
	platform := total.Sub(farmer)

	return Amounts{
		UnitPrice:      unitPrice,
		TotalAmount:    total,
		CommissionRate: rate,
		Commission:     platform,
		FarmerAmount:   farmer,
		PlatformAmount: platform,
	}, nil
}

func ValidateRate(rate decimal.Decimal) error {
	if rate.IsNegative() || rate.GreaterThan(decimal.NewFromInt(1)) {
		return apperrors.Validation("ledger.ValidateRate", "commission rate must be within [0,1], got %s", rate)
	}
	return nil
}
