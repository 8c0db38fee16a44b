package repository

import (
	"context"

	"gorm.io/gorm"
)

// Repositories groups the repositories bound to one database handle, either
// the pool or an open transaction.
type Repositories struct {
	Cards         CardRepository
	Transfers     TransferRepository
	BlockRequests BlockRequestRepository
	Users         UserRepository
}

// Store hands out repositories and runs units of work that span several of them.
type Store interface {
	Repos() Repositories
	// WithTransaction executes fn within a database transaction. Returning an
	// error from fn rolls back everything written through tx.
	WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error
}

type gormStore struct {
	db *gorm.DB
}

// NewStore creates a GORM-backed store.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

func bind(db *gorm.DB) Repositories {
	return Repositories{
		Cards:         NewCardRepository(db),
		Transfers:     NewTransferRepository(db),
		BlockRequests: NewBlockRequestRepository(db),
		Users:         NewUserRepository(db),
	}
}

func (s *gormStore) Repos() Repositories {
	return bind(s.db)
}

func (s *gormStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx Repositories) error) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, bind(tx))
	})
}

// paginate applies page bounds to a query.
func paginate(limit, offset int) func(*gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Limit(limit).Offset(offset)
	}
}
