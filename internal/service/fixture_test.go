package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/require"

	"cardledger/internal/cache"
	"cardledger/internal/metrics"
	"cardledger/internal/model"
	"cardledger/internal/pan"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

type fixture struct {
	deps      Deps
	store     *memStore
	clock     *testClock
	cipher    *pan.Cipher
	cards     CardService
	transfers TransferService
	blocks    BlockRequestService

	admin model.Caller
	owner model.Caller
	other model.Caller
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	cipher, err := pan.NewCipher([]byte("0123456789abcdef0123456789abcdef"))
	require.NoError(t, err)
	logger, _ := test.NewNullLogger()

	f := &fixture{
		store:  newMemStore(),
		clock:  &testClock{now: time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)},
		cipher: cipher,
	}
	f.deps = Deps{
		Store:   f.store,
		Cipher:  cipher,
		Clock:   f.clock,
		Metrics: metrics.New(prometheus.NewRegistry()),
		Logger:  logger,
	}
	f.build()

	f.admin = f.addUser("Ada Admin", "ada@example.com", model.RoleAdmin)
	f.owner = f.addUser("Olga Owner", "olga@example.com", model.RoleUser)
	f.other = f.addUser("Oscar Other", "oscar@example.com", model.RoleUser)
	return f
}

func (f *fixture) build() {
	f.cards = NewCardService(f.deps)
	f.transfers = NewTransferService(f.deps)
	f.blocks = NewBlockRequestService(f.deps)
}

// useCache rebuilds the services on top of an in-process redis.
func (f *fixture) useCache(t *testing.T) *miniredis.Miniredis {
	t.Helper()
	mr := miniredis.RunT(t)
	client := cache.New(mr.Addr(), "", 0)
	t.Cleanup(func() { client.Close() })
	f.deps.Cache = client
	f.build()
	return mr
}

func (f *fixture) addUser(name, email string, role model.Role) model.Caller {
	u := model.User{ID: uuid.New(), Name: name, Email: email, Role: role}
	f.store.users[u.ID] = u
	return model.Caller{ID: u.ID, Role: role}
}

// issue creates an ACTIVE card for owner expiring 06/2028, funded with balance.
func (f *fixture) issue(t *testing.T, owner model.Caller, balance string) uuid.UUID {
	t.Helper()
	ctx := context.Background()
	view, err := f.cards.IssueCard(ctx, f.admin, IssueCardInput{
		OwnerID:     owner.ID,
		HolderName:  "Olga Owner",
		ExpiryYear:  2028,
		ExpiryMonth: 6,
	})
	require.NoError(t, err)
	if amount := dec(balance); amount.IsPositive() {
		_, err = f.cards.Deposit(ctx, f.admin, view.ID, amount)
		require.NoError(t, err)
	}
	return view.ID
}

func (f *fixture) balance(id uuid.UUID) decimal.Decimal {
	return f.store.card(id).Balance
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
