package storage

import (
	"context"

	"github.com/sharma-sourabh3435/fleet-dispatch/internal/models"
)

// Storage defines the interface for database operations
type Storage interface {
	AccountStore
	DispatchLog

	// Database management
	Close() error
	Ping(ctx context.Context) error
}

// AccountStore is the account-credential store, keyed by nickname
type AccountStore interface {
	ListAccounts(ctx context.Context) ([]*models.Account, error)
	GetAccount(ctx context.Context, nickname string) (*models.Account, error)
	AddAccount(ctx context.Context, account *models.Account) error
	UpdateAccount(ctx context.Context, originalNickname string, account *models.Account) error
	DeleteAccount(ctx context.Context, nickname string) error
	// ImportAccounts inserts accounts whose nickname is not yet stored and
	// returns how many were added.
	ImportAccounts(ctx context.Context, accounts []models.Account) (int, error)
}

// DispatchLog records dispatch attempts
type DispatchLog interface {
	RecordDispatch(ctx context.Context, record *models.DispatchRecord) error
	ListDispatches(ctx context.Context, limit int) ([]*models.DispatchRecord, error)
}
