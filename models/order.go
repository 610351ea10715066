package models

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "pending"
	OrderStatusConfirmed OrderStatus = "confirmed"
	OrderStatusShipped   OrderStatus = "shipped"
	OrderStatusDelivered OrderStatus = "delivered"
	OrderStatusCancelled OrderStatus = "cancelled"
	OrderStatusDisputed  OrderStatus = "disputed"
)

func (s OrderStatus) Valid() bool {
	switch s {
	case OrderStatusPending, OrderStatusConfirmed, OrderStatusShipped,
		OrderStatusDelivered, OrderStatusCancelled, OrderStatusDisputed:
		return true
	}
	return false
}

type PaymentStatus string

const (
	PaymentStatusPending  PaymentStatus = "pending"
	PaymentStatusPaid     PaymentStatus = "paid"
	PaymentStatusFailed   PaymentStatus = "failed"
	PaymentStatusRefunded PaymentStatus = "refunded"
)

type DeliveryAddress struct {
	Address string `json:"address" validate:"required,max=256"`
	City    string `json:"city" validate:"required,max=64"`
	State   string `json:"state" validate:"required,max=64"`
	Pincode string `json:"pincode" validate:"required,numeric,len=6"`
}

// Order is a buyer's purchase of one product. Amounts are frozen at creation.
type Order struct {
	OrderID         string          `json:"orderId"`
	BuyerID         string          `json:"buyerId"`
	FarmerID        string          `json:"farmerId"`
	ProductID       string          `json:"productId"`
	ProductName     string          `json:"productName"`
	Quantity        int             `json:"quantity"`
	UnitPrice       decimal.Decimal `json:"unitPrice"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	CommissionRate  decimal.Decimal `json:"commissionRate"`
	Commission      decimal.Decimal `json:"commission"`
	FarmerAmount    decimal.Decimal `json:"farmerAmount"`
	PlatformAmount  decimal.Decimal `json:"platformAmount"`
	Status          OrderStatus     `json:"status"`
	PaymentStatus   PaymentStatus   `json:"paymentStatus"`
	DeliveryAddress DeliveryAddress `json:"deliveryAddress"`
	Notes           string          `json:"notes,omitempty"`
	BuyerRating     *int            `json:"buyerRating,omitempty"`
	FarmerRating    *int            `json:"farmerRating,omitempty"`
	EstimatedAt     *time.Time      `json:"estimatedDelivery,omitempty"`
	DeliveredAt     *time.Time      `json:"actualDelivery,omitempty"`
	StockDeducted   bool            `json:"stockDeducted"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// IsParticipant reports whether userID is the buyer or the farmer.
func (o *Order) IsParticipant(userID string) bool {
	return userID != "" && (o.BuyerID == userID || o.FarmerID == userID)
}
