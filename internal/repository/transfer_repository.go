package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"cardledger/internal/model"
)

// TransferRepository defines transfer persistence operations.
type TransferRepository interface {
	Create(ctx context.Context, transfer *model.Transfer) error
	// UpdateStatus persists the status and error message of a transfer.
	UpdateStatus(ctx context.Context, transfer *model.Transfer) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Transfer, error)
	// ListForUser returns transfers the user initiated or that touch a card
	// the user owns, newest first.
	ListForUser(ctx context.Context, userID uuid.UUID, page model.Page) ([]model.Transfer, int64, error)
}

type transferRepository struct {
	db *gorm.DB
}

// NewTransferRepository creates a new transfer repository.
func NewTransferRepository(db *gorm.DB) TransferRepository {
	return &transferRepository{db: db}
}

// Create creates a new transfer record.
func (r *transferRepository) Create(ctx context.Context, transfer *model.Transfer) error {
	return r.db.WithContext(ctx).Create(transfer).Error
}

func (r *transferRepository) UpdateStatus(ctx context.Context, transfer *model.Transfer) error {
	return r.db.WithContext(ctx).Model(transfer).
		Select("status", "error_message", "updated_at").
		Updates(transfer).Error
}

// FindByID finds a transfer by ID.
func (r *transferRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Transfer, error) {
	var transfer model.Transfer
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&transfer).Error; err != nil {
		return nil, err
	}
	return &transfer, nil
}

func (r *transferRepository) ListForUser(ctx context.Context, userID uuid.UUID, page model.Page) ([]model.Transfer, int64, error) {
	owned := r.db.Model(&model.Card{}).Select("id").Where("owner_id = ?", userID)
	q := r.db.WithContext(ctx).Model(&model.Transfer{}).
		Where("initiator_id = ?", userID).
		Or("source_card_id IN (?)", owned).
		Or("destination_card_id IN (?)", owned)

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var transfers []model.Transfer
	if err := q.Order("created_at DESC").Order("id").
		Scopes(paginate(page.Limit, page.Offset)).Find(&transfers).Error; err != nil {
		return nil, 0, err
	}
	return transfers, total, nil
}
