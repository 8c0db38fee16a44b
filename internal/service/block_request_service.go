package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cardledger/internal/cache"
	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
	"cardledger/internal/repository"
)

// BlockRequestService runs the owner-request / admin-resolve block workflow.
type BlockRequestService interface {
	RequestBlock(ctx context.Context, caller model.Caller, cardID uuid.UUID, comment string) (*model.BlockRequest, error)
	Approve(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.BlockRequest, error)
	Reject(ctx context.Context, caller model.Caller, id uuid.UUID, reason string) (*model.BlockRequest, error)
	List(ctx context.Context, caller model.Caller, status model.BlockRequestStatus, page model.Page) (Page[model.BlockRequest], error)
}

type blockRequestService struct {
	Deps
}

// NewBlockRequestService creates a new block request service.
func NewBlockRequestService(deps Deps) BlockRequestService {
	return &blockRequestService{Deps: deps.withDefaults()}
}

// RequestBlock opens a PENDING request on an active card the caller owns.
// The card row lock serializes concurrent requests for the same card.
func (s *blockRequestService) RequestBlock(ctx context.Context, caller model.Caller, cardID uuid.UUID, comment string) (*model.BlockRequest, error) {
	var req *model.BlockRequest
	err := s.Store.WithTransaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
		card, err := tx.Cards.FindByIDForUpdate(ctx, cardID)
		if err != nil {
			return notFound(err, apperr.ErrCardNotFound, "lock card")
		}
		if card.OwnerID != caller.ID {
			return apperr.ErrCardNotFound
		}
		if !card.Usable(s.Clock.Now()) {
			return inactive(card, s.Clock.Now())
		}

		if _, err := tx.BlockRequests.FindPendingByCardID(ctx, cardID); err == nil {
			return apperr.ErrBlockRequestExists
		} else if !errors.Is(err, gorm.ErrRecordNotFound) {
			return fmt.Errorf("find pending block request: %w", err)
		}

		req = &model.BlockRequest{
			CardID:      cardID,
			RequestedBy: caller.ID,
			Status:      model.BlockRequestPending,
			Comment:     strings.TrimSpace(comment),
		}
		if err := tx.BlockRequests.Create(ctx, req); err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.ErrBlockRequestExists
			}
			return fmt.Errorf("create block request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.ObserveBlockRequest("requested")
	s.Logger.WithFields(logrus.Fields{"block_request_id": req.ID, "card_id": cardID}).Info("block requested")
	return req, nil
}

// Approve resolves the request and blocks the card in one transaction. If the
// card cannot be blocked the request stays PENDING.
func (s *blockRequestService) Approve(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.BlockRequest, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	var req *model.BlockRequest
	err := retry(s.Metrics, "approve_block", func() error {
		return s.Store.WithTransaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
			// Card before request, the same order DeleteCard takes.
			found, err := tx.BlockRequests.FindByID(ctx, id)
			if err != nil {
				return notFound(err, apperr.ErrBlockRequestNotFound, "find block request")
			}
			card, err := tx.Cards.FindByIDForUpdate(ctx, found.CardID)
			if err != nil {
				return notFound(err, apperr.ErrCardNotFound, "lock card")
			}
			if req, err = s.lockPending(ctx, tx, id); err != nil {
				return err
			}
			if err := transitionStatus(card, model.CardStatusBlocked, s.Clock.Now()); err != nil {
				return err
			}
			if err := tx.Cards.Update(ctx, card); err != nil {
				return err
			}
			req.Resolve(model.BlockRequestApproved, "", s.Clock.Now())
			if err := tx.BlockRequests.Update(ctx, req); err != nil {
				return fmt.Errorf("approve block request: %w", err)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}

	_ = s.Cache.Delete(ctx, cache.CardKey(req.CardID))
	s.Metrics.ObserveBlockRequest("approved")
	s.Logger.WithFields(logrus.Fields{"block_request_id": id, "card_id": req.CardID}).Info("block request approved, card blocked")
	return req, nil
}

// Reject resolves the request without touching the card.
func (s *blockRequestService) Reject(ctx context.Context, caller model.Caller, id uuid.UUID, reason string) (*model.BlockRequest, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	var req *model.BlockRequest
	err := s.Store.WithTransaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
		var err error
		if req, err = s.lockPending(ctx, tx, id); err != nil {
			return err
		}
		req.Resolve(model.BlockRequestRejected, strings.TrimSpace(reason), s.Clock.Now())
		if err := tx.BlockRequests.Update(ctx, req); err != nil {
			return fmt.Errorf("reject block request: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.Metrics.ObserveBlockRequest("rejected")
	s.Logger.WithFields(logrus.Fields{"block_request_id": id, "card_id": req.CardID}).Info("block request rejected")
	return req, nil
}

func (s *blockRequestService) List(ctx context.Context, caller model.Caller, status model.BlockRequestStatus, page model.Page) (Page[model.BlockRequest], error) {
	if err := requireAdmin(caller); err != nil {
		return Page[model.BlockRequest]{}, err
	}
	switch status {
	case "", model.BlockRequestPending, model.BlockRequestApproved, model.BlockRequestRejected:
	default:
		return Page[model.BlockRequest]{}, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
	}

	page = page.Normalize()
	reqs, total, err := s.Store.Repos().BlockRequests.List(ctx, repository.BlockRequestFilter{Status: status}, page)
	if err != nil {
		return Page[model.BlockRequest]{}, fmt.Errorf("list block requests: %w", err)
	}
	return newPage(reqs, total, page), nil
}

func (s *blockRequestService) lockPending(ctx context.Context, tx repository.Repositories, id uuid.UUID) (*model.BlockRequest, error) {
	req, err := tx.BlockRequests.FindByIDForUpdate(ctx, id)
	if err != nil {
		return nil, notFound(err, apperr.ErrBlockRequestNotFound, "lock block request")
	}
	if req.Status != model.BlockRequestPending {
		return nil, fmt.Errorf("%w: request is %s", apperr.ErrBlockRequestResolved, req.Status)
	}
	return req, nil
}
