package store

import (
	"context"
	"errors"

	"github.com/flyashdesk/dashboard/internal/models"
)

// ErrNotFound is returned when a looked-up row does not exist.
var ErrNotFound = errors.New("store: record not found")

// UserFilter narrows ListUsers. Zero values match everything.
type UserFilter struct {
	IDs       []uint64
	CreatedBy *uint64
	Role      string
	Query     string
}

// TokenFilter narrows ListTokens. Zero values match everything.
type TokenFilter struct {
	UserIDs      []uint64
	CustomerName string
	Status       string
}

// Repository is the persistence surface the ledger service works against.
// Lock* methods take row locks when running inside WithinTx.
type Repository interface {
	FindUser(id uint64) (*models.User, error)
	ListUsers(filter UserFilter) ([]models.User, error)

	LockAccount(userID uint64, material string) (*models.MaterialAccount, error)
	EnsureAccount(userID uint64, material string) (*models.MaterialAccount, error)
	ListAccounts(userIDs []uint64) ([]models.MaterialAccount, error)
	SaveAccount(account *models.MaterialAccount) error

	LockToken(id uint64) (*models.Token, error)
	LockHistory(userID uint64, customerName string) ([]models.Token, error)
	PreviousToken(userID uint64, customerName string, beforeID uint64) (*models.Token, error)
	LastToken(userID uint64, customerName string) (*models.Token, error)
	CreateToken(token *models.Token) error
	SaveTokens(tokens ...*models.Token) error
	DeleteToken(id uint64) error
	ListTokens(filter TokenFilter) ([]models.Token, error)

	LockTransaction(id uint64) (*models.Transaction, error)
	LatestTransaction(userID uint64) (*models.Transaction, error)
	CreateTransaction(txn *models.Transaction) error
	SaveTransaction(txn *models.Transaction) error
	DeleteTransaction(id uint64) error
	ListTransactions(userID uint64, reference string) ([]models.Transaction, error)
}

// Store hands out repositories bound to a context.
type Store interface {
	Repo(ctx context.Context) Repository
	WithinTx(ctx context.Context, fn func(repo Repository) error) error
}
