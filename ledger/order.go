package ledger

import (
	"time"

	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/shopspring/decimal"
)

type NewOrderParams struct {
	OrderID         string
	BuyerID         string
	Product         models.Product
	Quantity        int
	CommissionRate  decimal.Decimal
	DeliveryAddress models.DeliveryAddress
	Notes           string
	Now             time.Time
}

// NewOrder builds a pending order with its amounts frozen.
func NewOrder(p NewOrderParams) (*models.Order, error) {
	const op = "ledger.NewOrder"
	if p.BuyerID == "" {
		return nil, apperrors.Validation(op, "buyer is required")
	}
	if p.BuyerID == p.Product.FarmerID {
		return nil, apperrors.Validation(op, "farmers cannot order their own produce")
	}
	amounts, err := ComputeAmounts(p.Quantity, p.Product.PricePerUnit, p.CommissionRate)
	if err != nil {
		return nil, err
	}
	now := p.Now.UTC()
	return &models.Order{
		OrderID:         p.OrderID,
		BuyerID:         p.BuyerID,
		FarmerID:        p.Product.FarmerID,
		ProductID:       p.Product.ID,
		ProductName:     p.Product.ProductName,
		Quantity:        p.Quantity,
		UnitPrice:       amounts.UnitPrice,
		TotalAmount:     amounts.TotalAmount,
		CommissionRate:  amounts.CommissionRate,
		Commission:      amounts.Commission,
		FarmerAmount:    amounts.FarmerAmount,
		PlatformAmount:  amounts.PlatformAmount,
		Status:          models.OrderStatusPending,
		PaymentStatus:   models.PaymentStatusPending,
		DeliveryAddress: p.DeliveryAddress,
		Notes:           p.Notes,
		CreatedAt:       now,
		UpdatedAt:       now,
	}, nil
}
