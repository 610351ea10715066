package storage

import (
	"context"
	"log/slog"

	"github.com/dgraph-io/badger/v4"
	"github.com/karthikraju391/farmconnect/apperrors"
	"github.com/karthikraju391/farmconnect/models"
)

type IUserStore interface {
	Create(ctx context.Context, u *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)
	GetByUsername(ctx context.Context, username string) (*models.User, error)
}

type UserStore struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserStore(db *badger.DB, log *slog.Logger) *UserStore {
	return &UserStore{db: db, log: log}
}

func userKey(id string) []byte            { return []byte("user:" + id) }
func usernameKey(username string) []byte { return []byte("user_by_username:" + username) }
func userMobileKey(mobile string) []byte { return []byte("user_by_mobile:" + mobile) }

// Create stores u, keeping usernames and mobile numbers unique.
func (s *UserStore) Create(ctx context.Context, u *models.User) error {
	const op = "storage.UserStore.Create"
	if err := ctx.Err(); err != nil {
		return err
	}
	err := s.db.Update(func(txn *badger.Txn) error {
		taken, err := exists(txn, usernameKey(u.Username))
		if err != nil {
			return err
		}
		if taken {
			return apperrors.Validation(op, "Username already taken")
		}
		if taken, err = exists(txn, userMobileKey(u.Mobile)); err != nil {
			return err
		}
		if taken {
			return apperrors.Validation(op, "Mobile number already registered")
		}
		if err = setJSON(txn, userKey(u.ID), u); err != nil {
			return err
		}
		if err = txn.Set(usernameKey(u.Username), []byte(u.ID)); err != nil {
			return err
		}
		return txn.Set(userMobileKey(u.Mobile), []byte(u.ID))
	})
	return translate(op, "user", err)
}

func (s *UserStore) GetByID(ctx context.Context, id string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var u models.User
	err := s.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &u)
	})
	if err != nil {
		return nil, translate("storage.UserStore.GetByID", "user", err)
	}
	return &u, nil
}

func (s *UserStore) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var u models.User
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(usernameKey(username))
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(string(id)), &u)
	})
	if err != nil {
		return nil, translate("storage.UserStore.GetByUsername", "user", err)
	}
	return &u, nil
}
