package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"

	"cardledger/internal/cache"
	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
	"cardledger/internal/repository"
)

// TransferInput describes a card-to-card transfer between cards of the caller.
type TransferInput struct {
	SourceCardID      uuid.UUID
	DestinationCardID uuid.UUID
	Amount            decimal.Decimal
}

// TransferService handles card-to-card transfer operations.
type TransferService interface {
	Transfer(ctx context.Context, caller model.Caller, in TransferInput) (*model.Transfer, error)
	GetTransfer(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.Transfer, error)
	ListTransfersForUser(ctx context.Context, caller model.Caller, page model.Page) (Page[model.Transfer], error)
}

type transferService struct {
	Deps
}

// NewTransferService creates a new transfer service.
func NewTransferService(deps Deps) TransferService {
	return &transferService{Deps: deps.withDefaults()}
}

// Transfer records the intent in PROCESS, then debits and credits both cards
// and marks the transfer COMPLETED in a single transaction. Any failure rolls
// the balances back, leaves the transfer CANCELLED and returns the cause.
func (s *transferService) Transfer(ctx context.Context, caller model.Caller, in TransferInput) (*model.Transfer, error) {
	if in.SourceCardID == in.DestinationCardID {
		return nil, apperr.ErrSameCard
	}
	amount, ok := model.NormalizeAmount(in.Amount)
	if !ok {
		return nil, apperr.ErrInvalidAmount
	}

	repos := s.Store.Repos()
	now := s.Clock.Now()
	for _, id := range []uuid.UUID{in.SourceCardID, in.DestinationCardID} {
		card, err := repos.Cards.FindByID(ctx, id)
		if err != nil {
			return nil, notFound(err, apperr.ErrCardNotFound, "load card")
		}
		if card.OwnerID != caller.ID {
			return nil, apperr.ErrCardNotFound
		}
		if !card.Usable(now) {
			return nil, inactive(card, now)
		}
	}

	transfer := &model.Transfer{
		InitiatorID:       caller.ID,
		SourceCardID:      in.SourceCardID,
		DestinationCardID: in.DestinationCardID,
		Amount:            amount,
		Status:            model.TransferStatusProcess,
	}
	if err := repos.Transfers.Create(ctx, transfer); err != nil {
		return nil, fmt.Errorf("record transfer: %w", err)
	}

	// The transfer must reach a terminal status even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	err := retry(s.Metrics, "transfer", func() error {
		return s.Store.WithTransaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
			return s.moveFunds(ctx, tx, transfer)
		})
	})
	if err != nil {
		return nil, s.cancel(ctx, transfer, err)
	}

	_ = s.Cache.Delete(ctx, cache.CardKey(transfer.SourceCardID), cache.CardKey(transfer.DestinationCardID))
	s.Metrics.ObserveTransfer(string(model.TransferStatusCompleted))
	s.Logger.WithFields(logrus.Fields{
		"transfer_id": transfer.ID,
		"source":      transfer.SourceCardID,
		"destination": transfer.DestinationCardID,
		"amount":      amount.StringFixed(model.MoneyScale),
	}).Info("transfer completed")
	return transfer, nil
}

// moveFunds locks both cards in ascending id order, re-checks them under the
// lock and applies both legs together with the COMPLETED status.
func (s *transferService) moveFunds(ctx context.Context, tx repository.Repositories, transfer *model.Transfer) error {
	now := s.Clock.Now()
	order := []uuid.UUID{transfer.SourceCardID, transfer.DestinationCardID}
	if order[1].String() < order[0].String() {
		order[0], order[1] = order[1], order[0]
	}

	locked := make(map[uuid.UUID]*model.Card, 2)
	for _, id := range order {
		card, err := tx.Cards.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFound(err, apperr.ErrCardNotFound, "lock card")
		}
		if card.OwnerID != transfer.InitiatorID {
			return apperr.ErrCardNotFound
		}
		if !card.Usable(now) {
			return inactive(card, now)
		}
		locked[id] = card
	}

	source, destination := locked[transfer.SourceCardID], locked[transfer.DestinationCardID]
	if !source.Withdraw(transfer.Amount) {
		return apperr.ErrInsufficientFunds
	}
	destination.Deposit(transfer.Amount)

	if err := tx.Cards.Update(ctx, source); err != nil {
		return err
	}
	if err := tx.Cards.Update(ctx, destination); err != nil {
		return err
	}

	transfer.Status = model.TransferStatusCompleted
	if err := tx.Transfers.UpdateStatus(ctx, transfer); err != nil {
		return fmt.Errorf("complete transfer: %w", err)
	}
	return nil
}

func (s *transferService) cancel(ctx context.Context, transfer *model.Transfer, cause error) error {
	transfer.Status = model.TransferStatusCancelled
	transfer.ErrorMessage = cause.Error()
	s.Metrics.ObserveTransfer(string(model.TransferStatusCancelled))

	entry := s.Logger.WithFields(logrus.Fields{
		"transfer_id": transfer.ID,
		"source":      transfer.SourceCardID,
		"destination": transfer.DestinationCardID,
	}).WithError(cause)
	if err := s.Store.Repos().Transfers.UpdateStatus(ctx, transfer); err != nil {
		entry.WithField("cancel_error", err.Error()).Error("transfer failed and could not be marked cancelled")
		return errors.Join(cause, fmt.Errorf("mark transfer cancelled: %w", err))
	}
	entry.Warn("transfer cancelled")
	return cause
}

// GetTransfer returns a transfer to its initiator or an admin.
func (s *transferService) GetTransfer(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.Transfer, error) {
	transfer, err := s.Store.Repos().Transfers.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperr.ErrTransferNotFound, "get transfer")
	}
	if !caller.IsAdmin() && transfer.InitiatorID != caller.ID {
		return nil, apperr.ErrTransferNotFound
	}
	return transfer, nil
}

// ListTransfersForUser lists transfers the caller initiated or whose source
// or destination card the caller owns.
func (s *transferService) ListTransfersForUser(ctx context.Context, caller model.Caller, page model.Page) (Page[model.Transfer], error) {
	page = page.Normalize()
	transfers, total, err := s.Store.Repos().Transfers.ListForUser(ctx, caller.ID, page)
	if err != nil {
		return Page[model.Transfer]{}, fmt.Errorf("list transfers: %w", err)
	}
	return newPage(transfers, total, page), nil
}
