package storage

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/karthikraju391/farmconnect/models"
)

type IOrderStore interface {
	Create(ctx context.Context, order *models.Order) error
	Get(ctx context.Context, orderID string) (*models.Order, error)
	// Update loads the order, lets mutate validate and change it, and writes
	// it back in one transaction. A concurrent update of the same order makes
	// one of the two fail instead of both succeeding.
	Update(ctx context.Context, orderID string, mutate func(*models.Order) error) (*models.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]*models.Order, error)
	ListByFarmer(ctx context.Context, farmerID string) ([]*models.Order, error)
}

type OrderStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewOrderStore(db *badger.DB, log *slog.Logger) *OrderStore {
	return &OrderStore{db: db, log: log}
}

// Keys:
//
//	order:{id}                                   -> order JSON
//	order_by_buyer:{buyer}:{created_ns}:{id}     -> id
//	order_by_farmer:{farmer}:{created_ns}:{id}   -> id
//
// The 19-digit zero padded timestamp keeps index keys in creation order.
func orderKey(id string) []byte { return []byte("order:" + id) }

func orderIndexKey(kind, owner string, o *models.Order) []byte {
	return []byte(fmt.Sprintf("order_by_%s:%s:%019d:%s", kind, owner, o.CreatedAt.UnixNano(), o.OrderID))
}

func (s *OrderStore) Create(ctx context.Context, order *models.Order) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		key := orderKey(order.OrderID)
		found, err := exists(txn, key)
		if err != nil {
			return err
		}
		if found {
			return ErrDuplicate
		}
		if err = setJSON(txn, key, order); err != nil {
			return err
		}
		if err = txn.Set(orderIndexKey("buyer", order.BuyerID, order), []byte(order.OrderID)); err != nil {
			return err
		}
		return txn.Set(orderIndexKey("farmer", order.FarmerID, order), []byte(order.OrderID))
	})
	return translate("storage.OrderStore.Create", "order", err)
}

func (s *OrderStore) Get(ctx context.Context, orderID string) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var order models.Order
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, orderKey(orderID), &order)
	})
	if err != nil {
		return nil, translate("storage.OrderStore.Get", "order "+orderID, err)
	}
	return &order, nil
}

func (s *OrderStore) Update(ctx context.Context, orderID string, mutate func(*models.Order) error) (*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var order models.Order
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, orderKey(orderID), &order); err != nil {
			return err
		}
		if err := mutate(&order); err != nil {
			return err
		}
		return setJSON(txn, orderKey(orderID), &order)
	})
	if err != nil {
		return nil, translate("storage.OrderStore.Update", "order "+orderID, err)
	}
	return &order, nil
}

func (s *OrderStore) ListByBuyer(ctx context.Context, buyerID string) ([]*models.Order, error) {
	return s.listBy(ctx, "buyer", buyerID)
}

func (s *OrderStore) ListByFarmer(ctx context.Context, farmerID string) ([]*models.Order, error) {
	return s.listBy(ctx, "farmer", farmerID)
}

// listBy returns the owner's orders, newest first.
func (s *OrderStore) listBy(ctx context.Context, kind, owner string) ([]*models.Order, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	orders := make([]*models.Order, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("order_by_%s:%s:", kind, owner))
		return scanPrefix(txn, prefix, true, func(_, val []byte) error {
			var o models.Order
			if err := getJSON(txn, orderKey(string(val)), &o); err != nil {
				return err
			}
			orders = append(orders, &o)
			return nil
		})
	})
	if err != nil {
		return nil, translate("storage.OrderStore.List", "order", err)
	}
	return orders, nil
}
