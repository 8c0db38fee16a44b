package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
	"cardledger/internal/repository"
)

// memStore is an in-memory repository.Store. Transactions are serialized by
// txMu, which stands in for row locks, and undone on error.
type memStore struct {
	txMu sync.Mutex
	mu   sync.Mutex

	users     map[uuid.UUID]model.User
	cards     map[uuid.UUID]model.Card
	transfers map[uuid.UUID]model.Transfer
	requests  map[uuid.UUID]model.BlockRequest

	// failCardUpdate, when set, is consulted before every card write.
	failCardUpdate func(card *model.Card) error
	// failTransferUpdate, when set, is consulted before every transfer status write.
	failTransferUpdate func(t *model.Transfer) error
	// afterCardRead, when set, runs after every card read made outside a
	// transaction, with no store lock held.
	afterCardRead func(id uuid.UUID)
	// afterPendingLookup, when set, runs after the locked pending-request
	// lookup returns, with no store lock held.
	afterPendingLookup func(req model.BlockRequest)
}

func newMemStore() *memStore {
	return &memStore{
		users:     map[uuid.UUID]model.User{},
		cards:     map[uuid.UUID]model.Card{},
		transfers: map[uuid.UUID]model.Transfer{},
		requests:  map[uuid.UUID]model.BlockRequest{},
	}
}

type memTx struct {
	undo []func()
}

func (tx *memTx) record(fn func()) {
	if tx != nil {
		tx.undo = append(tx.undo, fn)
	}
}

func (s *memStore) bind(tx *memTx) repository.Repositories {
	return repository.Repositories{
		Cards:         &memCards{s: s, tx: tx},
		Transfers:     &memTransfers{s: s, tx: tx},
		BlockRequests: &memRequests{s: s, tx: tx},
		Users:         &memUsers{s: s},
	}
}

func (s *memStore) Repos() repository.Repositories {
	return s.bind(nil)
}

func (s *memStore) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx repository.Repositories) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{}
	if err := fn(ctx, s.bind(tx)); err != nil {
		s.mu.Lock()
		for i := len(tx.undo) - 1; i >= 0; i-- {
			tx.undo[i]()
		}
		s.mu.Unlock()
		return err
	}
	return nil
}

func (s *memStore) card(id uuid.UUID) model.Card {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cards[id]
}

func (s *memStore) transfer(id uuid.UUID) model.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.transfers[id]
}

func (s *memStore) onlyTransfer() model.Transfer {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.transfers {
		return t
	}
	return model.Transfer{}
}

func (s *memStore) request(id uuid.UUID) model.BlockRequest {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.requests[id]
}

func window[T any](items []T, page model.Page) []T {
	if page.Offset >= len(items) {
		return nil
	}
	end := page.Offset + page.Limit
	if end > len(items) {
		end = len(items)
	}
	return items[page.Offset:end]
}

type memCards struct {
	s  *memStore
	tx *memTx
}

func (r *memCards) Create(ctx context.Context, card *model.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.cards {
		if c.NumberHash == card.NumberHash {
			return gorm.ErrDuplicatedKey
		}
	}
	if card.ID == uuid.Nil {
		card.ID = uuid.New()
	}
	now := time.Now().UTC()
	card.CreatedAt, card.UpdatedAt = now, now
	r.s.cards[card.ID] = *card
	id := card.ID
	r.tx.record(func() { delete(r.s.cards, id) })
	return nil
}

func (r *memCards) Update(ctx context.Context, card *model.Card) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failCardUpdate != nil {
		if err := r.s.failCardUpdate(card); err != nil {
			return err
		}
	}
	stored, ok := r.s.cards[card.ID]
	if !ok || stored.Version != card.Version {
		return apperr.ErrConcurrentUpdate
	}
	prev := stored
	stored.Status = card.Status
	stored.Balance = card.Balance
	stored.Version++
	stored.UpdatedAt = time.Now().UTC()
	r.s.cards[card.ID] = stored
	card.Version, card.UpdatedAt = stored.Version, stored.UpdatedAt
	r.tx.record(func() { r.s.cards[prev.ID] = prev })
	return nil
}

func (r *memCards) Delete(ctx context.Context, id uuid.UUID) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.cards[id]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	delete(r.s.cards, id)
	r.tx.record(func() { r.s.cards[id] = prev })
	return nil
}

func (r *memCards) load(id uuid.UUID) (*model.Card, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	card, ok := r.s.cards[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &card, nil
}

func (r *memCards) FindByID(ctx context.Context, id uuid.UUID) (*model.Card, error) {
	card, err := r.load(id)
	if r.tx == nil && r.s.afterCardRead != nil {
		r.s.afterCardRead(id)
	}
	return card, err
}

func (r *memCards) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.Card, error) {
	return r.load(id)
}

func (r *memCards) ExistsByNumberHash(ctx context.Context, hash string) (bool, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, c := range r.s.cards {
		if c.NumberHash == hash {
			return true, nil
		}
	}
	return false, nil
}

func (r *memCards) List(ctx context.Context, filter repository.CardFilter, page model.Page) ([]model.Card, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.Card
	for _, c := range r.s.cards {
		if filter.OwnerID != nil && c.OwnerID != *filter.OwnerID {
			continue
		}
		if filter.Status != "" && c.Status != filter.Status {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return window(out, page), int64(len(out)), nil
}

func (r *memCards) ExpireDue(ctx context.Context, now time.Time) ([]uuid.UUID, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var ids []uuid.UUID
	for id, c := range r.s.cards {
		if (c.Status == model.CardStatusActive || c.Status == model.CardStatusBlocked) && c.Expired(now) {
			c.Status = model.CardStatusExpired
			c.Version++
			r.s.cards[id] = c
			ids = append(ids, id)
		}
	}
	return ids, nil
}

type memTransfers struct {
	s  *memStore
	tx *memTx
}

func (r *memTransfers) Create(ctx context.Context, t *model.Transfer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	t.CreatedAt = time.Now().UTC()
	t.UpdatedAt = t.CreatedAt
	r.s.transfers[t.ID] = *t
	id := t.ID
	r.tx.record(func() { delete(r.s.transfers, id) })
	return nil
}

func (r *memTransfers) UpdateStatus(ctx context.Context, t *model.Transfer) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if r.s.failTransferUpdate != nil {
		if err := r.s.failTransferUpdate(t); err != nil {
			return err
		}
	}
	prev, ok := r.s.transfers[t.ID]
	if !ok {
		return gorm.ErrRecordNotFound
	}
	next := prev
	next.Status = t.Status
	next.ErrorMessage = t.ErrorMessage
	next.UpdatedAt = time.Now().UTC()
	r.s.transfers[t.ID] = next
	r.tx.record(func() { r.s.transfers[prev.ID] = prev })
	return nil
}

func (r *memTransfers) FindByID(ctx context.Context, id uuid.UUID) (*model.Transfer, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	t, ok := r.s.transfers[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &t, nil
}

func (r *memTransfers) ListForUser(ctx context.Context, userID uuid.UUID, page model.Page) ([]model.Transfer, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	owns := func(cardID uuid.UUID) bool {
		c, ok := r.s.cards[cardID]
		return ok && c.OwnerID == userID
	}
	var out []model.Transfer
	for _, t := range r.s.transfers {
		if t.InitiatorID == userID || owns(t.SourceCardID) || owns(t.DestinationCardID) {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return window(out, page), int64(len(out)), nil
}

type memRequests struct {
	s  *memStore
	tx *memTx
}

func (r *memRequests) Create(ctx context.Context, req *model.BlockRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if req.ID == uuid.Nil {
		req.ID = uuid.New()
	}
	req.CreatedAt = time.Now().UTC()
	r.s.requests[req.ID] = *req
	id := req.ID
	r.tx.record(func() { delete(r.s.requests, id) })
	return nil
}

func (r *memRequests) Update(ctx context.Context, req *model.BlockRequest) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	prev, ok := r.s.requests[req.ID]
	if !ok || prev.Status != model.BlockRequestPending {
		return apperr.ErrBlockRequestResolved
	}
	r.s.requests[req.ID] = *req
	r.tx.record(func() { r.s.requests[prev.ID] = prev })
	return nil
}

func (r *memRequests) FindByID(ctx context.Context, id uuid.UUID) (*model.BlockRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &req, nil
}

func (r *memRequests) FindByIDForUpdate(ctx context.Context, id uuid.UUID) (*model.BlockRequest, error) {
	return r.FindByID(ctx, id)
}

func (r *memRequests) FindPendingByCardID(ctx context.Context, cardID uuid.UUID) (*model.BlockRequest, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, req := range r.s.requests {
		if req.CardID == cardID && req.Status == model.BlockRequestPending {
			return &req, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memRequests) FindPendingByCardIDForUpdate(ctx context.Context, cardID uuid.UUID) (*model.BlockRequest, error) {
	req, err := r.FindPendingByCardID(ctx, cardID)
	if err == nil && r.s.afterPendingLookup != nil {
		r.s.afterPendingLookup(*req)
	}
	return req, err
}

func (r *memRequests) List(ctx context.Context, filter repository.BlockRequestFilter, page model.Page) ([]model.BlockRequest, int64, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	var out []model.BlockRequest
	for _, req := range r.s.requests {
		if filter.Status != "" && req.Status != filter.Status {
			continue
		}
		if filter.CardID != nil && req.CardID != *filter.CardID {
			continue
		}
		out = append(out, req)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID.String() < out[j].ID.String() })
	return window(out, page), int64(len(out)), nil
}

type memUsers struct {
	s *memStore
}

func (r *memUsers) Create(ctx context.Context, user *model.User) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if user.ID == uuid.Nil {
		user.ID = uuid.New()
	}
	r.s.users[user.ID] = *user
	return nil
}

func (r *memUsers) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	u, ok := r.s.users[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &u, nil
}

func (r *memUsers) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	for _, u := range r.s.users {
		if u.Email == email {
			return &u, nil
		}
	}
	return nil, gorm.ErrRecordNotFound
}

func (r *memUsers) List(ctx context.Context) ([]model.User, error) {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	out := make([]model.User, 0, len(r.s.users))
	for _, u := range r.s.users {
		out = append(out, u)
	}
	return out, nil
}
