package service

import (
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"cardledger/internal/cache"
	"cardledger/internal/clock"
	apperr "cardledger/internal/errors"
	"cardledger/internal/metrics"
	"cardledger/internal/model"
	"cardledger/internal/repository"
)

// maxAttempts bounds how often an operation is re-run after ErrConcurrentUpdate.
const maxAttempts = 3

const defaultCacheTTL = 5 * time.Minute

// Deps carries the collaborators shared by the ledger services. Cache and
// Metrics may be nil.
type Deps struct {
	Store    repository.Store
	Cipher   PANCipher
	Cache    *cache.Client
	CacheTTL time.Duration
	Clock    clock.Clock
	Metrics  *metrics.Metrics
	Logger   *logrus.Logger
}

func (d Deps) withDefaults() Deps {
	if d.CacheTTL <= 0 {
		d.CacheTTL = defaultCacheTTL
	}
	if d.Clock == nil {
		d.Clock = clock.RealClock{}
	}
	if d.Logger == nil {
		d.Logger = logrus.New()
	}
	return d
}

// PANCipher seals card numbers and indexes them for uniqueness. Views mask
// from the stored last4, so no decryption is needed to render one.
type PANCipher interface {
	Encrypt(plaintext string) (string, error)
	Decrypt(ciphertext string) (string, error)
	BlindIndex(number string) string
}

// Page is one page of a listing together with the total match count.
type Page[T any] struct {
	Items  []T   `json:"items"`
	Total  int64 `json:"total"`
	Limit  int   `json:"limit"`
	Offset int   `json:"offset"`
}

func newPage[T any](items []T, total int64, page model.Page) Page[T] {
	if items == nil {
		items = []T{}
	}
	return Page[T]{Items: items, Total: total, Limit: page.Limit, Offset: page.Offset}
}

// retry runs fn until it succeeds, fails with a non-retryable error, or
// maxAttempts is reached. fn must re-read every piece of state it relies on.
func retry(m *metrics.Metrics, operation string, fn func() error) error {
	var err error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err = fn(); err == nil || !apperr.Retryable(err) {
			return err
		}
		if attempt < maxAttempts {
			m.ObserveRetry(operation)
		}
	}
	return err
}

// notFound translates gorm.ErrRecordNotFound into target and wraps anything
// else with the operation name.
func notFound(err error, target error, op string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return fmt.Errorf("%s: %w", op, err)
}

// inactive explains why a card cannot take part in balance movements.
func inactive(card *model.Card, now time.Time) error {
	if card.Status == model.CardStatusActive && card.Expired(now) {
		return fmt.Errorf("%w: card %s is past its expiry date", apperr.ErrInactiveCard, card.ID)
	}
	return fmt.Errorf("%w: card %s is %s", apperr.ErrInactiveCard, card.ID, card.Status)
}

func requireAdmin(caller model.Caller) error {
	if !caller.IsAdmin() {
		return apperr.ErrForbidden
	}
	return nil
}
