package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
)

// CardFilter narrows card listings. Zero values match everything.
type CardFilter struct {
	OwnerID *uuid.UUID
	Status  model.CardStatus
}

// CardRepository defines card persistence operations.
type CardRepository interface {
	Create(ctx context.Context, card *model.Card) error
	// Update writes status and balance if the stored version still equals
	// card.Version, then bumps the version. A stale version yields
	// ErrConcurrentUpdate.
	Update(ctx context.Context, card *model.Card) error
	Delete(ctx context.Context, id uuid.UUID) error
	FindByID(ctx context.Context, id uuid.UUID) (*model.Card, error)
	FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Card, error)
	ExistsByNumberHash(ctx context.Context, hash string) (bool, error)
	List(ctx context.Context, filter CardFilter, page model.Page) ([]model.Card, int64, error)
	// ExpireDue moves ACTIVE and BLOCKED cards whose expiry boundary is at or
	// before now to EXPIRED and returns their ids.
	ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error)
}

type cardRepository struct {
	db *gorm.DB
}

// NewCardRepository creates a new card repository.
func NewCardRepository(db *gorm.DB) CardRepository {
	return &cardRepository{db: db}
}

// Create creates a new card.
func (r *cardRepository) Create(ctx context.Context, card *model.Card) error {
	return r.db.WithContext(ctx).Create(card).Error
}

func (r *cardRepository) Update(ctx context.Context, card *model.Card) error {
	now := time.Now().UTC()
	res := r.db.WithContext(ctx).Model(&model.Card{}).
		Where("id = ? AND version = ?", card.ID, card.Version).
		Updates(map[string]interface{}{
			"status":     card.Status,
			"balance":    card.Balance,
			"version":    gorm.Expr("version + 1"),
			"updated_at": now,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return apperr.ErrConcurrentUpdate
	}
	card.Version++
	card.UpdatedAt = now
	return nil
}

// Delete hard-deletes a card.
func (r *cardRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&model.Card{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

// FindByID finds a card by ID.
func (r *cardRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.Card, error) {
	var card model.Card
	if err := r.db.WithContext(ctx).Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

// FindByIDForUpdate finds a card by ID with row-level lock for update.
func (r *cardRepository) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Card, error) {
	var card model.Card
	if err := r.db.WithContext(ctx).Clauses(clause.Locking{Strength: "UPDATE"}).
		Where("id = ?", id).First(&card).Error; err != nil {
		return nil, err
	}
	return &card, nil
}

func (r *cardRepository) ExistsByNumberHash(ctx context.Context, hash string) (bool, error) {
	var count int64
	if err := r.db.WithContext(ctx).Model(&model.Card{}).
		Where("number_hash = ?", hash).Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *cardRepository) List(ctx context.Context, filter CardFilter, page model.Page) ([]model.Card, int64, error) {
	q := r.db.WithContext(ctx).Model(&model.Card{})
	if filter.OwnerID != nil {
		q = q.Where("owner_id = ?", *filter.OwnerID)
	}
	if filter.Status != "" {
		q = q.Where("status = ?", filter.Status)
	}

	q = q.Session(&gorm.Session{})
	var total int64
	if err := q.Count(&total).Error; err != nil {
		return nil, 0, err
	}
	var cards []model.Card
	if err := q.Order("created_at DESC").Order("id").
		Scopes(paginate(page.Limit, page.Offset)).Find(&cards).Error; err != nil {
		return nil, 0, err
	}
	return cards, total, nil
}

func (r *cardRepository) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	var ids []uuid.UUID
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Card{}).Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("status IN ? AND expires_at <= ?", []model.CardStatus{model.CardStatusActive, model.CardStatusBlocked}, now).
			Pluck("id", &ids).Error; err != nil {
			return err
		}
		if len(ids) == 0 {
			return nil
		}
		return tx.Model(&model.Card{}).Where("id IN ?", ids).
			Updates(map[string]interface{}{
				"status":     model.CardStatusExpired,
				"version":    gorm.Expr("version + 1"),
				"updated_at": now,
			}).Error
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}
