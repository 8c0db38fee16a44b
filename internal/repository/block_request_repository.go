package repository

import (
	"context"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
)

// BlockRequestFilter narrows block request listings. Zero values match everything.
type BlockRequestFilter struct {
	Status model.BlockRequestStatus
	CardID *uuid.UUID
}

// BlockRequestRepository defines block request persistence operations.
type BlockRequestRepository interface {
	Create(ctx context.Context, req *model.BlockRequest) error
	// Update persists the resolution of a request that is still PENDING in
	// storage. A request resolved in the meantime yields ErrBlockRequestResolved.
	Update(ctx context.Context, req *model.BlockRequest) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.BlockRequest, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BlockRequest, error)
	// FindPendingByCardID returns gorm.ErrRecordNotFound when the card has no
	// open request.
	FindPendingByCardID(ctx context.Context, cardID uuid.UUID) (*model.BlockRequest, error)
	FindPendingByCardIDForUpdate(ctx context.Context, cardID uuid.UUID) (*model.BlockRequest, error)
	List(ctx context.Context, filter BlockRequestFilter, page model.Page) ([]model.BlockRequest, int64, error)
}

type blockRequestRepository struct {
	db *gorm.DB
}

// NewBlockRequestRepository creates a new block request repository.
func NewBlockRequestRepository(db *gorm.DB) BlockRequestRepository {
	return &blockRequestRepository{db: db}
}

func (r *blockRequestRepository) Create(ctx context.Context, req *model.BlockRequest) error {
	return r.db.WithContext(ctx).Create(req).Error
}

func (r *blockRequestRepository) Update(ctx context.Context, req *model.BlockRequest) error {
	res := r.db.WithContext(ctx).Model(req).
		Where("status = ?", model.BlockRequestPending).
		Select("status", "reason", "resolved_at").
		Updates(req)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrBlockRequestResolved
	}
	return nil
}

func (r *blockRequestRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.BlockRequest, error) {
	var req model.BlockRequest
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *blockRequestRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BlockRequest, error) {
	var req model.BlockRequest
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *blockRequestRepository) FindPendingByCardID(ctx context.Context, cardID uuid.UUID) (*model.BlockRequest, error) {
	var req model.BlockRequest
	if err := r.db.WithContext(ctx).
		Where("card_id = ? AND status = ?", cardID, model.BlockRequestPending).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *blockRequestRepository) FindPendingByCardIDForUpdate(ctx context.Context, cardID uuid.UUID) (*model.BlockRequest, error) {
	var req model.BlockRequest
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("card_id = ? AND status = ?", cardID, model.BlockRequestPending).
		First(&req).Error; err != nil {
		return nil, err
	}
	return &req, nil
}

func (r *blockRequestRepository) List(ctx context.Context, filter BlockRequestFilter, page model.Page) ([]model.BlockRequest, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.BlockRequest{})
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}
	if filter.CardID != nil {
		q = q.Where("card_id = ?", *filter.CardID)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var reqs []model.BlockRequest
	if err := q.Order("created_at DESC").Order("id").
		Scopes(paginate(page.Limit, page.Offset)).Find(&reqs).Error; err != nil {
		return nil, 0, err
	}
	return reqs, total, nil
}
