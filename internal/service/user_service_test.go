package service

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"gorm.io/gorm"

	apperr "cardledger/internal/errors"
	"cardledger/internal/model"
)

// MockUserRepository is a mock implementation of UserRepository.
type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) Create(ctx context.Context, user *model.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserRepository) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*model.User), args.Error(1)
}

func (m *MockUserRepository) List(ctx context.Context) ([]model.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]model.User), args.Error(1)
}

func TestUserService_CreateUser(t *testing.T) {
	tests := []struct {
		name      string
		user      model.User
		setupMock func(*MockUserRepository)
		wantRole  model.Role
		wantErr   error
	}{
		{
			name: "defaults role to USER",
			user: model.User{Name: "Olga", Email: "olga@example.com"},
			setupMock: func(m *MockUserRepository) {
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
			},
			wantRole: model.RoleUser,
		},
		{
			name: "keeps ADMIN",
			user: model.User{Name: "Ada", Email: "ada@example.com", Role: model.RoleAdmin},
			setupMock: func(m *MockUserRepository) {
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(nil)
			},
			wantRole: model.RoleAdmin,
		},
		{
			name:      "invalid email",
			user:      model.User{Name: "Olga", Email: "not-an-email"},
			setupMock: func(m *MockUserRepository) {},
			wantErr:   apperr.ErrInvalidInput,
		},
		{
			name:      "unknown role",
			user:      model.User{Name: "Olga", Email: "olga@example.com", Role: "ROOT"},
			setupMock: func(m *MockUserRepository) {},
			wantErr:   apperr.ErrInvalidInput,
		},
		{
			name: "duplicate email",
			user: model.User{Name: "Olga", Email: "olga@example.com"},
			setupMock: func(m *MockUserRepository) {
				m.On("Create", mock.Anything, mock.AnythingOfType("*model.User")).Return(gorm.ErrDuplicatedKey)
			},
			wantErr: apperr.ErrInvalidInput,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserRepository)
			tt.setupMock(repo)
			svc := NewUserService(repo, nil)

			user := tt.user
			got, err := svc.CreateUser(context.Background(), &user)

			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, got)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, tt.wantRole, got.Role)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestUserService_GetUser(t *testing.T) {
	id := uuid.New()
	tests := []struct {
		name      string
		setupMock func(*MockUserRepository)
		wantErr   error
	}{
		{
			name: "found",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByID", mock.Anything, id).Return(&model.User{ID: id, Name: "Olga"}, nil)
			},
		},
		{
			name: "not found",
			setupMock: func(m *MockUserRepository) {
				m.On("FindByID", mock.Anything, id).Return(nil, gorm.ErrRecordNotFound)
			},
			wantErr: apperr.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserRepository)
			tt.setupMock(repo)
			svc := NewUserService(repo, nil)

			got, err := svc.GetUser(context.Background(), id)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
				assert.Equal(t, id, got.ID)
			}
			repo.AssertExpectations(t)
		})
	}
}

func TestUserService_GetUser_StorageErrorIsWrapped(t *testing.T) {
	id := uuid.New()
	repo := new(MockUserRepository)
	dbErr := errors.New("connection refused")
	repo.On("FindByID", mock.Anything, id).Return(nil, dbErr)

	_, err := NewUserService(repo, nil).GetUser(context.Background(), id)
	assert.ErrorIs(t, err, dbErr)
	assert.NotErrorIs(t, err, apperr.ErrUserNotFound)
	assert.Equal(t, "INTERNAL_ERROR", apperr.MapErrorToHTTP(err).Code)
}
