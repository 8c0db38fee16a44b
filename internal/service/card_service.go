package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cardledger/internal/cache"
	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
	"cardledger/internal/pan"
	"cardledger/internal/repository"
)

// maxGenerateAttempts bounds how many generated numbers are tried before
// issuance gives up on blind index collisions.
const maxGenerateAttempts = 5

// IssueCardInput describes a card to issue. An empty Number asks for a
// generated one. Status and balance are not caller-controlled.
type IssueCardInput struct {
	OwnerID     uuid.UUID
	Number      string
	HolderName  string
	ExpiryYear  int
	ExpiryMonth int
}

// CardService is the card ledger: issuance, status lifecycle and balance custody.
type CardService interface {
	IssueCard(ctx context.Context, caller model.Caller, in IssueCardInput) (*model.CardView, error)
	GetCard(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.CardView, error)
	ListCardsForUser(ctx context.Context, caller model.Caller, page model.Page) (Page[model.CardView], error)
	ListAllCards(ctx context.Context, caller model.Caller, status model.CardStatus, page model.Page) (Page[model.CardView], error)
	ChangeStatus(ctx context.Context, caller model.Caller, id uuid.UUID, status model.CardStatus) (*model.CardView, error)
	Deposit(ctx context.Context, caller model.Caller, id uuid.UUID, amount decimal.Decimal) (*model.CardView, error)
	Withdraw(ctx context.Context, caller model.Caller, id uuid.UUID, amount decimal.Decimal) (*model.CardView, error)
	DeleteCard(ctx context.Context, caller model.Caller, id uuid.UUID) error
	// ExpireDueCards moves every card past its expiry month to EXPIRED.
	ExpireDueCards(ctx context.Context) (int, error)
}

type cardService struct {
	Deps
}

// NewCardService creates a new card service.
func NewCardService(deps Deps) CardService {
	return &cardService{Deps: deps.withDefaults()}
}

// IssueCard encrypts and stores a new ACTIVE card with a zero balance.
func (s *cardService) IssueCard(ctx context.Context, caller model.Caller, in IssueCardInput) (*model.CardView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	holder := strings.TrimSpace(in.HolderName)
	if holder == "" {
		return nil, fmt.Errorf("%w: holder name is required", apperr.ErrInvalidInput)
	}
	if in.ExpiryMonth < 1 || in.ExpiryMonth > 12 {
		return nil, fmt.Errorf("%w: month must be between 1 and 12", apperr.ErrInvalidExpiry)
	}
	expiresAt := model.ExpiryBoundary(in.ExpiryYear, in.ExpiryMonth)
	if !expiresAt.After(s.Clock.Now()) {
		return nil, fmt.Errorf("%w: expiry must be in the future", apperr.ErrInvalidExpiry)
	}
	if _, err := s.Store.Repos().Users.FindByID(ctx, in.OwnerID); err != nil {
		return nil, notFound(err, apperr.ErrUserNotFound, "find owner")
	}

	card := &model.Card{
		OwnerID:     in.OwnerID,
		HolderName:  holder,
		ExpiryYear:  in.ExpiryYear,
		ExpiryMonth: in.ExpiryMonth,
		ExpiresAt:   expiresAt,
		Status:      model.CardStatusActive,
		Balance:     decimal.Zero,
	}

	var err error
	if in.Number != "" {
		number := pan.Normalize(in.Number)
		if err := pan.RequireValid(number); err != nil {
			return nil, err
		}
		err = s.createCard(ctx, card, number)
	} else {
		for attempt := 0; attempt < maxGenerateAttempts; attempt++ {
			var number string
			if number, err = pan.Generate(); err != nil {
				break
			}
			if err = s.createCard(ctx, card, number); !errors.Is(err, apperr.ErrCardNumberTaken) {
				break
			}
		}
	}
	s.Metrics.ObserveCardOp("issue", err)
	if err != nil {
		return nil, err
	}

	s.Logger.WithFields(logrus.Fields{
		"card_id":  card.ID,
		"owner_id": card.OwnerID,
		"last4":    card.Last4,
	}).Info("card issued")
	return s.view(card)
}

func (s *cardService) createCard(ctx context.Context, card *model.Card, number string) error {
	repos := s.Store.Repos()
	hash := s.Cipher.BlindIndex(number)
	taken, err := repos.Cards.ExistsByNumberHash(ctx, hash)
	if err != nil {
		return fmt.Errorf("check card number: %w", err)
	}
	if taken {
		return apperr.ErrCardNumberTaken
	}

	sealed, err := s.Cipher.Encrypt(number)
	if err != nil {
		s.Metrics.ObserveCryptoFailure()
		return err
	}
	card.ID = uuid.Nil
	card.NumberCiphertext = sealed
	card.NumberHash = hash
	card.Last4 = pan.Last4(number)

	if err := repos.Cards.Create(ctx, card); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.ErrCardNumberTaken
		}
		return fmt.Errorf("create card: %w", err)
	}
	return nil
}

// GetCard returns a card visible to the caller. The stored number is
// decrypted and checked against last4 before the view is cached.
func (s *cardService) GetCard(ctx context.Context, caller model.Caller, id uuid.UUID) (*model.CardView, error) {
	var cached model.CardView
	if s.Cache.GetJSON(ctx, cache.CardKey(id), &cached) {
		if !caller.IsAdmin() && cached.OwnerID != caller.ID {
			return nil, apperr.ErrCardNotFound
		}
		return &cached, nil
	}

	cards := s.Store.Repos().Cards
	card, err := cards.FindByID(ctx, id)
	if err != nil {
		return nil, notFound(err, apperr.ErrCardNotFound, "get card")
	}
	if !caller.IsAdmin() && card.OwnerID != caller.ID {
		return nil, apperr.ErrCardNotFound
	}
	if err := s.verify(card); err != nil {
		return nil, err
	}

	view, err := s.view(card)
	if err != nil {
		return nil, err
	}
	if s.Cache != nil {
		s.Cache.SetJSON(ctx, cache.CardKey(id), view, s.CacheTTL)
		// A writer that committed after our read has already invalidated the
		// key, so the entry just written may be stale. Drop it if the row moved.
		if current, err := cards.FindByID(ctx, id); err != nil || current.Version != card.Version {
			s.invalidate(ctx, id)
		}
	}
	return view, nil
}

func (s *cardService) ListCardsForUser(ctx context.Context, caller model.Caller, page model.Page) (Page[model.CardView], error) {
	return s.list(ctx, repository.CardFilter{OwnerID: &caller.ID}, page)
}

func (s *cardService) ListAllCards(ctx context.Context, caller model.Caller, status model.CardStatus, page model.Page) (Page[model.CardView], error) {
	if err := requireAdmin(caller); err != nil {
		return Page[model.CardView]{}, err
	}
	if status != "" && !status.Valid() {
		return Page[model.CardView]{}, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
	}
	return s.list(ctx, repository.CardFilter{Status: status}, page)
}

func (s *cardService) list(ctx context.Context, filter repository.CardFilter, page model.Page) (Page[model.CardView], error) {
	page = page.Normalize()
	cards, total, err := s.Store.Repos().Cards.List(ctx, filter, page)
	if err != nil {
		return Page[model.CardView]{}, fmt.Errorf("list cards: %w", err)
	}
	views := make([]model.CardView, 0, len(cards))
	for i := range cards {
		v, err := s.view(&cards[i])
		if err != nil {
			return Page[model.CardView]{}, err
		}
		views = append(views, *v)
	}
	return newPage(views, total, page), nil
}

// ChangeStatus moves a card between ACTIVE and BLOCKED.
func (s *cardService) ChangeStatus(ctx context.Context, caller model.Caller, id uuid.UUID, status model.CardStatus) (*model.CardView, error) {
	if err := requireAdmin(caller); err != nil {
		return nil, err
	}
	if !status.Valid() {
		return nil, fmt.Errorf("%w: unknown status %q", apperr.ErrInvalidInput, status)
	}

	var from model.CardStatus
	card, err := s.mutate(ctx, "change_status", id, func(card *model.Card) error {
		from = card.Status
		return transitionStatus(card, status, s.Clock.Now())
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"card_id": id,
		"from":    from,
		"to":      card.Status,
	}).Info("card status changed")
	return s.view(card)
}

func (s *cardService) Deposit(ctx context.Context, caller model.Caller, id uuid.UUID, amount decimal.Decimal) (*model.CardView, error) {
	amount, ok := model.NormalizeAmount(amount)
	if !ok {
		return nil, apperr.ErrInvalidAmount
	}
	card, err := s.mutate(ctx, "deposit", id, func(card *model.Card) error {
		if !caller.IsAdmin() && card.OwnerID != caller.ID {
			return apperr.ErrCardNotFound
		}
		if !card.Usable(s.Clock.Now()) {
			return inactive(card, s.Clock.Now())
		}
		card.Deposit(amount)
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"card_id": id, "amount": amount.StringFixed(model.MoneyScale)}).Info("deposit applied")
	return s.view(card)
}

func (s *cardService) Withdraw(ctx context.Context, caller model.Caller, id uuid.UUID, amount decimal.Decimal) (*model.CardView, error) {
	amount, ok := model.NormalizeAmount(amount)
	if !ok {
		return nil, apperr.ErrInvalidAmount
	}
	card, err := s.mutate(ctx, "withdraw", id, func(card *model.Card) error {
		if !caller.IsAdmin() && card.OwnerID != caller.ID {
			return apperr.ErrCardNotFound
		}
		if !card.Usable(s.Clock.Now()) {
			return inactive(card, s.Clock.Now())
		}
		if !card.Withdraw(amount) {
			return apperr.ErrInsufficientFunds
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{"card_id": id, "amount": amount.StringFixed(model.MoneyScale)}).Info("withdrawal applied")
	return s.view(card)
}

// DeleteCard hard-deletes an empty card and rejects its pending block request.
func (s *cardService) DeleteCard(ctx context.Context, caller model.Caller, id uuid.UUID) error {
	if err := requireAdmin(caller); err != nil {
		return err
	}
	err := s.Store.WithTransaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
		card, err := tx.Cards.FindByIDForUpdate(ctx, id)
		if err != nil {
			return notFound(err, apperr.ErrCardNotFound, "lock card")
		}
		if !card.Balance.IsZero() {
			return fmt.Errorf("%w: balance is %s", apperr.ErrNonZeroBalance, card.Balance.StringFixed(model.MoneyScale))
		}

		pending, err := tx.BlockRequests.FindPendingByCardIDForUpdate(ctx, id)
		switch {
		case err == nil:
			pending.Resolve(model.BlockRequestRejected, "card deleted", s.Clock.Now())
			// An admin may have resolved it first; that resolution stands.
			if err := tx.BlockRequests.Update(ctx, pending); err != nil && !errors.Is(err, apperr.ErrBlockRequestResolved) {
				return fmt.Errorf("reject pending block request: %w", err)
			}
		case !errors.Is(err, gorm.ErrRecordNotFound):
			return fmt.Errorf("find pending block request: %w", err)
		}

		if err := tx.Cards.Delete(ctx, id); err != nil {
			return notFound(err, apperr.ErrCardNotFound, "delete card")
		}
		return nil
	})
	s.Metrics.ObserveCardOp("delete", err)
	if err != nil {
		return err
	}
	s.invalidate(ctx, id)
	s.Logger.WithField("card_id", id).Info("card deleted")
	return nil
}

func (s *cardService) ExpireDueCards(ctx context.Context) (int, error) {
	ids, err := s.Store.Repos().Cards.ExpireDue(ctx, s.Clock.Now())
	s.Metrics.ObserveExpirySweep(int64(len(ids)), err)
	if err != nil {
		return 0, fmt.Errorf("expire cards: %w", err)
	}
	s.invalidate(ctx, ids...)
	if len(ids) > 0 {
		s.Logger.WithField("count", len(ids)).Info("cards expired")
	}
	return len(ids), nil
}

// mutate locks the card, applies fn and writes it back in one transaction,
// re-running from a fresh read when the version moved underneath.
func (s *cardService) mutate(ctx context.Context, op string, id uuid.UUID, fn func(card *model.Card) error) (*model.Card, error) {
	var out *model.Card
	err := retry(s.Metrics, op, func() error {
		return s.Store.WithTransaction(ctx, func(ctx context.Context, tx repository.Repositories) error {
			card, err := tx.Cards.FindByIDForUpdate(ctx, id)
			if err != nil {
				return notFound(err, apperr.ErrCardNotFound, "lock card")
			}
			if err := fn(card); err != nil {
				return err
			}
			if err := tx.Cards.Update(ctx, card); err != nil {
				return err
			}
			out = card
			return nil
		})
	})
	s.Metrics.ObserveCardOp(op, err)
	if err != nil {
		return nil, err
	}
	s.invalidate(ctx, id)
	return out, nil
}

// verify decrypts the stored number and checks it against last4.
func (s *cardService) verify(card *model.Card) error {
	number, err := s.Cipher.Decrypt(card.NumberCiphertext)
	if err == nil && pan.Last4(number) != card.Last4 {
		err = fmt.Errorf("%w: last4 does not match stored number", apperr.ErrCrypto)
	}
	if err != nil {
		s.Metrics.ObserveCryptoFailure()
		s.Logger.WithField("card_id", card.ID).WithError(err).Error("card number failed integrity check")
		return err
	}
	return nil
}

func (s *cardService) view(card *model.Card) (*model.CardView, error) {
	masked, err := pan.MaskLast4(card.Last4)
	if err != nil {
		return nil, err
	}
	return &model.CardView{
		ID:           card.ID,
		OwnerID:      card.OwnerID,
		MaskedNumber: masked,
		HolderName:   card.HolderName,
		Expiry:       fmt.Sprintf("%02d/%04d", card.ExpiryMonth, card.ExpiryYear),
		Status:       card.Status,
		Balance:      card.Balance,
		CreatedAt:    card.CreatedAt,
		UpdatedAt:    card.UpdatedAt,
	}, nil
}

func (s *cardService) invalidate(ctx context.Context, ids ...uuid.UUID) {
	keys := make([]string, 0, len(ids))
	for _, id := range ids {
		keys = append(keys, cache.CardKey(id))
	}
	_ = s.Cache.Delete(ctx, keys...)
}

// transitionStatus applies a caller-requested status change. Only
// ACTIVE <-> BLOCKED is allowed; EXPIRED is entered by the sweep alone.
func transitionStatus(card *model.Card, target model.CardStatus, now time.Time) error {
	if card.Status == target {
		return fmt.Errorf("%w: card %s is already %s", apperr.ErrStatusAlreadySet, card.ID, target)
	}
	if target == model.CardStatusExpired || card.Status == model.CardStatusExpired {
		return fmt.Errorf("%w: %s -> %s", apperr.ErrInvalidStatusTransition, card.Status, target)
	}
	if target == model.CardStatusActive && card.Expired(now) {
		return fmt.Errorf("%w: card %s is past its expiry date", apperr.ErrInvalidStatusTransition, card.ID)
	}
	card.Status = target
	return nil
}
