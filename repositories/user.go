//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"time"

	"github.com/dgraph-io/badger/v4"

	"market-chat/domain"
	apperrors "market-chat/errors"
)

type IUserRepository interface {
	Put(user User) error
	Get(id domain.UserID) (User, error)
	Exists(id domain.UserID) (bool, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) UserRepository {
	return UserRepository{db: db}
}

// User is the messaging core's view of an account: identity lifecycle is
// owned elsewhere, this record only backs existence checks and display.
type User struct {
	ID          domain.UserID
	DisplayName string
	CreatedAt   time.Time
}

type userRecord struct {
	ID          string `cbor:"id"`
	DisplayName string `cbor:"display_name,omitempty"`
	CreatedAt   int64  `cbor:"created_at"`
}

func (u UserRepository) Put(user User) error {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	data, err := encMode.Marshal(userRecord{
		ID:          string(user.ID),
		DisplayName: user.DisplayName,
		CreatedAt:   user.CreatedAt.UnixNano(),
	})
	if err != nil {
		return err
	}
	return u.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), data)
	})
}

func (u UserRepository) Get(id domain.UserID) (User, error) {
	var rec userRecord
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(userKey(id))
		if err == badger.ErrKeyNotFound {
			return apperrors.ErrUnknownUser
		}
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			return decMode.Unmarshal(val, &rec)
		})
	})
	if err != nil {
		return User{}, err
	}
	return User{
		ID:          domain.UserID(rec.ID),
		DisplayName: rec.DisplayName,
		CreatedAt:   time.Unix(0, rec.CreatedAt).UTC(),
	}, nil
}

func (u UserRepository) Exists(id domain.UserID) (bool, error) {
	err := u.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get(userKey(id))
		return err
	})
	switch err {
	case nil:
		return true, nil
	case badger.ErrKeyNotFound:
		return false, nil
	default:
		return false, err
	}
}
