package storage

import (
	"context"
	"encoding/json"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/karthikraju391/farmconnect/models"
)

type IProductStore interface {
	Create(ctx context.Context, p *models.Product) error
	Get(ctx context.Context, id string) (*models.Product, error)
	Update(ctx context.Context, id string, mutate func(*models.Product) error) (*models.Product, error)
	Delete(ctx context.Context, id string, check func(*models.Product) error) error
	All(ctx context.Context) ([]*models.Product, error)
}

type ProductStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewProductStore(db *badger.DB, log *slog.Logger) *ProductStore {
	return &ProductStore{db: db, log: log}
}

func productKey(id string) []byte { return []byte("product:" + id) }

func (s *ProductStore) Create(ctx context.Context, p *models.Product) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		found, err := exists(txn, productKey(p.ID))
		if err != nil {
			return err
		}
		if found {
			return ErrDuplicate
		}
		return setJSON(txn, productKey(p.ID), p)
	})
	return translate("storage.ProductStore.Create", "product", err)
}

func (s *ProductStore) Get(ctx context.Context, id string) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p models.Product
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, productKey(id), &p)
	})
	if err != nil {
		return nil, translate("storage.ProductStore.Get", "product", err)
	}
	return &p, nil
}

func (s *ProductStore) Update(ctx context.Context, id string, mutate func(*models.Product) error) (*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var p models.Product
	err := s.db.Update(func(txn *badger.Txn) error {
		if err := getJSON(txn, productKey(id), &p); err != nil {
			return err
		}
		if err := mutate(&p); err != nil {
			return err
		}
		return setJSON(txn, productKey(id), &p)
	})
	if err != nil {
		return nil, translate("storage.ProductStore.Update", "product", err)
	}
	return &p, nil
}

// Delete removes the product once check accepts it.
func (s *ProductStore) Delete(ctx context.Context, id string, check func(*models.Product) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		var p models.Product
		if err := getJSON(txn, productKey(id), &p); err != nil {
			return err
		}
		if check != nil {
			if err := check(&p); err != nil {
				return err
			}
		}
		return txn.Delete(productKey(id))
	})
	return translate("storage.ProductStore.Delete", "product", err)
}

// All returns every product. The catalogue is small enough to filter in memory.
func (s *ProductStore) All(ctx context.Context) ([]*models.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	products := make([]*models.Product, 0)
	err := s.db.View(func(txn *badger.Txn) error {
		return scanPrefix(txn, []byte("product:"), false, func(_, val []byte) error {
			var p models.Product
			if err := json.Unmarshal(val, &p); err != nil {
				return err
			}
			products = append(products, &p)
			return nil
		})
	})
	if err != nil {
		return nil, translate("storage.ProductStore.All", "product", err)
	}
	return products, nil
}
