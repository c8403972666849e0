//go:generate go run go.uber.org/mock/mockgen -source=user.go -destination=../mocks/mock_user_repository.go -package=mocks
package repositories

import (
	"chat-relay/errors"
	"fmt"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

type IUserRepository interface {
	CreateUser(email, hashedPassword string, profile Profile) (string, error)
	GetUserByEmail(email string) (User, error)
	GetUser(id string) (User, error)
	SearchUsers(term, excluded string) ([]User, error)
}

type UserRepository struct {
	db *badger.DB
}

func NewUserRepository(db *badger.DB) IUserRepository {
	return &UserRepository{db: db}
}

// User is the domain-friendly representation of a user in the repository layer.
type User struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	PasswordHash string    `bson:"password"`
	FirstName    string    `bson:"firstName,omitempty"`
	LastName     string    `bson:"lastName,omitempty"`
	Image        string    `bson:"image,omitempty"`
	Color        int       `bson:"color"`
	ProfileSetup bool      `bson:"profileSetup"`
	CreatedAt    time.Time `bson:"createdAt"`
}

// Profile holds the optional fields given at registration.
type Profile struct {
	FirstName string
	LastName  string
	Color     int
}

func userKey(id string) []byte {
	return []byte("user:id:" + id)
}

func emailKey(email string) []byte {
	return []byte("user:email:" + strings.ToLower(email))
}

// CreateUser persists the user with an already hashed password.
// It returns the newly generated User ID.
func (u UserRepository) CreateUser(email, hashedPassword string, profile Profile) (string, error) {
	user := User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hashedPassword,
		FirstName:    profile.FirstName,
		LastName:     profile.LastName,
		Color:        profile.Color,
		ProfileSetup: profile.FirstName != "" && profile.LastName != "",
		CreatedAt:    time.Now().UTC(),
	}

	data, err := bson.Marshal(user)
	if err != nil {
		return "", fmt.Errorf("marshal failed: %w", err)
	}

	err = u.db.Update(func(txn *badger.Txn) error {
		if _, err := txn.Get(emailKey(email)); err == nil {
			return errors.ErrUserAlreadyExists
		}
		if err := txn.Set(emailKey(email), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(userKey(user.ID), data)
	})
	if err != nil {
		return "", err
	}
	return user.ID, nil
}

func (u UserRepository) GetUserByEmail(email string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(emailKey(email))
		if err != nil {
			return notFound(err, "user "+email)
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		user, err = getUser(txn, string(id))
		return err
	})
	return user, err
}

func (u UserRepository) GetUser(id string) (User, error) {
	var user User
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		user, err = getUser(txn, id)
		return err
	})
	return user, err
}

// SearchUsers matches the term against first name, last name and email, case-insensitively.
// The excluded user (usually the requester) is never part of the result.
func (u UserRepository) SearchUsers(term, excluded string) ([]User, error) {
	term = strings.ToLower(strings.TrimSpace(term))
	var users []User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte("user:id:")
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var user User
			if err := it.Item().Value(func(val []byte) error {
				return bson.Unmarshal(val, &user)
			}); err != nil {
				return err
			}
			if user.ID == excluded {
				continue
			}
			haystack := strings.ToLower(strings.Join([]string{user.FirstName, user.LastName, user.Email}, " "))
			if strings.Contains(haystack, term) {
				user.CreatedAt = user.CreatedAt.UTC()
				users = append(users, user)
			}
		}
		return nil
	})
	return users, err
}

func getUser(txn *badger.Txn, id string) (User, error) {
	var user User
	item, err := txn.Get(userKey(id))
	if err != nil {
		return user, notFound(err, "user "+id)
	}
	err = item.Value(func(val []byte) error {
		return bson.Unmarshal(val, &user)
	})
	user.CreatedAt = user.CreatedAt.UTC()
	return user, err
}

// notFound maps the badger miss to ErrNotFound and keeps any other error as is.
func notFound(err error, what string) error {
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%w: %s", errors.ErrNotFound, what)
	}
	return err
}
