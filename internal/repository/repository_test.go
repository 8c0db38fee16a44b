package repository

import (
	"context"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
)

func newMockDB(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { sqlDB.Close() })

	db, err := gorm.Open(mysql.New(mysql.Config{
		Conn:                      sqlDB,
		SkipInitializeWithVersion: true,
	}), &gorm.Config{
		SkipDefaultTransaction: true,
		Logger:                 logger.Discard,
	})
	require.NoError(t, err)
	return db, mock
}

const cardUpdateSQL = "UPDATE `cards` SET .+`version`=version \\+ 1.* WHERE \\(id = \\? AND version = \\?\\)"

func TestCardRepository_Update_StaleVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardRepository(db)
	card := &model.Card{ID: uuid.New(), Status: model.CardStatusActive, Balance: decimal.NewFromInt(10), Version: 3}

	mock.ExpectExec(cardUpdateSQL).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), card.ID, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 0))

	err := repo.Update(context.Background(), card)

	assert.ErrorIs(t, err, apperr.ErrConcurrentUpdate)
	assert.Equal(t, int64(3), card.Version)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepository_Update_BumpsVersion(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardRepository(db)
	card := &model.Card{ID: uuid.New(), Status: model.CardStatusBlocked, Balance: decimal.NewFromInt(10), Version: 3}

	mock.ExpectExec(cardUpdateSQL).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg(), card.ID, int64(3)).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.Update(context.Background(), card))

	assert.Equal(t, int64(4), card.Version)
	assert.False(t, card.UpdatedAt.IsZero())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStore_WithTransaction_RollsBackOnConflict(t *testing.T) {
	db, mock := newMockDB(t)
	store := NewStore(db)
	card := &model.Card{ID: uuid.New(), Status: model.CardStatusActive, Version: 1}

	mock.ExpectBegin()
	mock.ExpectExec(cardUpdateSQL).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()

	err := store.WithTransaction(context.Background(), func(ctx context.Context, tx Repositories) error {
		return tx.Cards.Update(ctx, card)
	})

	assert.ErrorIs(t, err, apperr.ErrConcurrentUpdate)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepository_ExpireDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardRepository(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	active, blocked := uuid.New(), uuid.New()

	mock.ExpectBegin()
	// Only ACTIVE and BLOCKED are candidates; EXPIRED rows are never selected.
	mock.ExpectQuery("SELECT `id` FROM `cards` WHERE \\(status IN \\(\\?,\\?\\) AND expires_at <= \\?\\) FOR UPDATE").
		WithArgs("ACTIVE", "BLOCKED", now).
		WillReturnRows(sqlmock.NewRows([]string{"id"}).
			AddRow(active.String()).
			AddRow(blocked.String()))
	mock.ExpectExec("UPDATE `cards` SET .+ WHERE id IN \\(\\?,\\?\\)").
		WithArgs("EXPIRED", now, active, blocked).
		WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	ids, err := repo.ExpireDue(context.Background(), now)

	require.NoError(t, err)
	assert.ElementsMatch(t, []uuid.UUID{active, blocked}, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCardRepository_ExpireDue_NothingDue(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewCardRepository(db)
	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT `id` FROM `cards` WHERE .+ FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id"}))
	mock.ExpectCommit()

	ids, err := repo.ExpireDue(context.Background(), now)

	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestTransferRepository_ListForUser(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewTransferRepository(db)
	userID := uuid.New()
	first, second := uuid.New(), uuid.New()

	// Initiated by the user, or touching a card the user owns on either leg.
	where := "WHERE initiator_id = \\? OR source_card_id IN \\(SELECT `id` FROM `cards` WHERE owner_id = \\?\\) " +
		"OR destination_card_id IN \\(SELECT `id` FROM `cards` WHERE owner_id = \\?\\)"

	mock.ExpectQuery("SELECT count\\(\\*\\) FROM `transfers` " + where).
		WithArgs(userID, userID, userID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))
	mock.ExpectQuery("SELECT \\* FROM `transfers` " + where + " ORDER BY created_at DESC,id LIMIT").
		WillReturnRows(sqlmock.NewRows([]string{"id", "initiator_id", "status"}).
			AddRow(first.String(), userID.String(), "COMPLETED").
			AddRow(second.String(), uuid.NewString(), "CANCELLED"))

	transfers, total, err := repo.ListForUser(context.Background(), userID, model.Page{Limit: 20})

	require.NoError(t, err)
	assert.Equal(t, int64(2), total)
	require.Len(t, transfers, 2)
	assert.Equal(t, first, transfers[0].ID)
	assert.Equal(t, userID, transfers[0].InitiatorID)
	assert.Equal(t, second, transfers[1].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestBlockRequestRepository_Update(t *testing.T) {
	resolvedAt := time.Now().UTC()

	tests := []struct {
		name     string
		affected int64
		wantErr  error
	}{
		{name: "still pending", affected: 1},
		{name: "resolved meanwhile", affected: 0, wantErr: apperr.ErrBlockRequestResolved},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock := newMockDB(t)
			repo := NewBlockRequestRepository(db)
			req := &model.BlockRequest{
				ID:         uuid.New(),
				CardID:     uuid.New(),
				Status:     model.BlockRequestRejected,
				Reason:     "card found",
				ResolvedAt: &resolvedAt,
			}

			mock.ExpectExec("UPDATE `block_requests` SET .+ WHERE .*status = \\?").
				WillReturnResult(sqlmock.NewResult(0, tt.affected))

			err := repo.Update(context.Background(), req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestBlockRequestRepository_FindPendingByCardIDForUpdate(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewBlockRequestRepository(db)
	cardID, reqID := uuid.New(), uuid.New()

	mock.ExpectQuery("SELECT \\* FROM `block_requests` WHERE \\(card_id = \\? AND status = \\?\\).* FOR UPDATE").
		WillReturnRows(sqlmock.NewRows([]string{"id", "card_id", "status"}).
			AddRow(reqID.String(), cardID.String(), "PENDING"))

	req, err := repo.FindPendingByCardIDForUpdate(context.Background(), cardID)

	require.NoError(t, err)
	assert.Equal(t, reqID, req.ID)
	assert.Equal(t, model.BlockRequestPending, req.Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}
