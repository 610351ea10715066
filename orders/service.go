// Package orders runs the order lifecycle on top of the ledger rules and the
// order store.
package orders

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/ledger"
	"github.com/karthikraju391/farmconnect/metrics"
	"github.com/karthikraju391/farmconnect/models"
	"github.com/karthikraju391/farmconnect/storage"
	"github.com/shopspring/decimal"
)

const idAttempts = 3

type CreateOrderRequest struct {
	ProductID       string                 `json:"productId" validate:"required"`
	Quantity        int                    `json:"quantity" validate:"required,gt=0"`
	DeliveryAddress models.DeliveryAddress `json:"deliveryAddress"`
	Notes           string                 `json:"notes" validate:"max=500"`
}

type Service struct {
	log     *slog.Logger
	store   storage.IOrderStore
	catalog Catalog
	metrics *metrics.Metrics
	ids     *ledger.IDGenerator
	rate    decimal.Decimal
	now     func() time.Time
}

func NewService(log *slog.Logger, store storage.IOrderStore, catalog Catalog, m *metrics.Metrics, commissionRate decimal.Decimal) (*Service, error) {
	if err := ledger.ValidateRate(commissionRate); err != nil {
		return nil, err
	}
	return &Service{
		log:     log,
		store:   store,
		catalog: catalog,
		metrics: m,
		ids:     ledger.NewIDGenerator(),
		rate:    commissionRate,
		now:     time.Now,
	}, nil
}

// CreateOrder places a pending order for a buyer.
func (s *Service) CreateOrder(ctx context.Context, actor models.Actor, req CreateOrderRequest) (*models.Order, error) {
	order, err := s.createOrder(ctx, actor, req)
	if err != nil {
		s.reject(err)
		return nil, err
	}
	s.metrics.OrdersCreated.Inc()
	s.log.Info("Order created",
		"order", order.OrderID, "buyer", order.BuyerID, "farmer", order.FarmerID,
		"total", order.TotalAmount.String(), "commission", order.Commission.String())
	return order, nil
}

func (s *Service) createOrder(ctx context.Context, actor models.Actor, req CreateOrderRequest) (*models.Order, error) {
	const op = "orders.CreateOrder"
	if actor.Role != models.RoleBuyer {
		return nil, apperrors.Authorization(op, "Only buyers can place orders")
	}
	req.Notes = strings.TrimSpace(req.Notes)
	if err := models.Validate.Struct(req); err != nil {
		return nil, apperrors.Validation(op, "%v", err)
	}

	product, err := s.catalog.Product(ctx, req.ProductID)
	if err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			return nil, apperrors.NotFound(op, "Product not available")
		}
		return nil, err
	}
	if !product.IsAvailable {
		return nil, apperrors.NotFound(op, "Product not available")
	}
	if req.Quantity > product.Quantity.Value {
		return nil, apperrors.Validation(op, "Only %d %s available", product.Quantity.Value, product.Quantity.Unit)
	}

	for attempt := 1; ; attempt++ {
		id, err := s.ids.Next()
		if err != nil {
			return nil, apperrors.Transient(op, err)
		}
		order, err := ledger.NewOrder(ledger.NewOrderParams{
			OrderID:         id,
			BuyerID:         actor.ID,
			Product:         *product,
			Quantity:        req.Quantity,
			CommissionRate:  s.rate,
			DeliveryAddress: req.DeliveryAddress,
			Notes:           req.Notes,
			Now:             s.now(),
		})
		if err != nil {
			return nil, err
		}
		err = s.store.Create(ctx, order)
		if errors.Is(err, storage.ErrDuplicate) && attempt < idAttempts {
			s.log.Warn("Order id collision, retrying", "order", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return nil, err
		}
		return order, nil
	}
}

// UpdateStatus moves an order to status on behalf of actor. The order is
// unchanged when the move is rejected. Delivery deducts the product's stock;
// if that fails the order stays delivered with StockDeducted unset and the
// buyer repeating the delivered request settles it.
func (s *Service) UpdateStatus(ctx context.Context, actor models.Actor, orderID string, status models.OrderStatus) (*models.Order, error) {
	if status == models.OrderStatusDelivered {
		current, err := s.store.Get(ctx, orderID)
		if err == nil && current.Status == models.OrderStatusDelivered && !current.StockDeducted && current.BuyerID == actor.ID {
			return s.deductStock(ctx, current)
		}
	}

	order, err := s.store.Update(ctx, orderID, func(o *models.Order) error {
		return ledger.Transition(o, actor.ID, status, s.now())
	})
	if err != nil {
		s.reject(err)
		s.log.Debug("Order transition rejected", "order", orderID, "actor", actor.ID, "to", status, "error", err)
		return nil, err
	}
	s.metrics.OrderTransitions.WithLabelValues(string(status)).Inc()
	s.log.Info("Order status updated", "order", orderID, "actor", actor.ID, "status", status)

	if status == models.OrderStatusDelivered {
		return s.deductStock(ctx, order)
	}
	return order, nil
}

func (s *Service) deductStock(ctx context.Context, order *models.Order) (*models.Order, error) {
	if err := s.catalog.DeductStock(ctx, order.ProductID, order.Quantity); err != nil {
		s.log.Error("Failed to deduct stock for delivered order",
			"order", order.OrderID, "product", order.ProductID, "quantity", order.Quantity, "error", err)
		return nil, apperrors.Transient("orders.UpdateStatus", err)
	}
	return s.store.Update(ctx, order.OrderID, func(o *models.Order) error {
		o.StockDeducted = true
		return nil
	})
}

// Rate records actor's 1-5 rating of a delivered order.
func (s *Service) Rate(ctx context.Context, actor models.Actor, orderID string, rating int) (*models.Order, error) {
	order, err := s.store.Update(ctx, orderID, func(o *models.Order) error {
		return ledger.Rate(o, actor.ID, rating, s.now())
	})
	if err != nil {
		s.reject(err)
		return nil, err
	}
	s.log.Info("Order rated", "order", orderID, "actor", actor.ID, "rating", rating)
	return order, nil
}

// Get returns an order to one of its participants.
func (s *Service) Get(ctx context.Context, actor models.Actor, orderID string) (*models.Order, error) {
	order, err := s.store.Get(ctx, orderID)
	if err != nil {
		return nil, err
	}
	if !order.IsParticipant(actor.ID) {
		return nil, apperrors.Authorization("orders.Get", "Not authorized to view this order")
	}
	return order, nil
}

func (s *Service) BuyerOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	return s.store.ListByBuyer(ctx, actor.ID)
}

func (s *Service) FarmerOrders(ctx context.Context, actor models.Actor) ([]*models.Order, error) {
	return s.store.ListByFarmer(ctx, actor.ID)
}

func (s *Service) reject(err error) {
	s.metrics.OrderRejections.WithLabelValues(apperrors.KindOf(err).String()).Inc()
}
