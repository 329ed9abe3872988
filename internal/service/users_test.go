package service

import (
	"context"
	stderrors "errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"maintenance/internal/auth"
	"maintenance/internal/clock"
	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
	inmemory "maintenance/repository/inmemory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

var testNow = time.Date(2026, 5, 4, 7, 30, 0, 0, time.UTC)

func newTestUsers(repo UserRepository, clk clock.Clock) *Users {
	issuer := auth.NewIssuer(repo, auth.Options{Secret: "test-secret", BcryptCost: bcrypt.MinCost}, clk)
	return NewUsers(repo, issuer, clk, nil)
}

func mustRegister(t *testing.T, users *Users, email string, role models.Role) *models.User {
	t.Helper()
	user, err := users.Register(context.Background(), models.RegisterRequest{Email: email, Password: "password123", Role: string(role)})
	require.NoError(t, err)
	return user
}

func callerOf(u *models.User) *models.Caller {
	return &models.Caller{ID: u.ID, Email: u.Email, Role: u.Role}
}

func TestUsersRegister(t *testing.T) {
	store := inmemory.NewStorage()
	users := newTestUsers(store, clock.Fake(testNow))

	tests := []struct {
		name    string
		request models.RegisterRequest
		want    struct {
			err   error
			role  models.Role
			email string
		}
	}{
		{
			name:    "bootstrap admin",
			request: models.RegisterRequest{Email: "  Admin@Example.com", Password: "password123", Role: "admin"},
			want: struct {
				err   error
				role  models.Role
				email string
			}{role: models.RoleAdmin, email: "admin@example.com"},
		},
		{
			name:    "later admin request is downgraded",
			request: models.RegisterRequest{Email: "other@example.com", Password: "password123", Role: "admin"},
			want: struct {
				err   error
				role  models.Role
				email string
			}{role: models.RoleUser, email: "other@example.com"},
		},
		{
			name:    "duplicate",
			request: models.RegisterRequest{Email: "ADMIN@example.com", Password: "password123"},
			want: struct {
				err   error
				role  models.Role
				email string
			}{err: errors.ErrUserAlreadyExists},
		},
		{
			name:    "invalid role",
			request: models.RegisterRequest{Email: "x@example.com", Password: "password123", Role: "owner"},
			want: struct {
				err   error
				role  models.Role
				email string
			}{err: errors.ErrInvalidRole},
		},
		{
			name:    "short password",
			request: models.RegisterRequest{Email: "x@example.com", Password: "12345"},
			want: struct {
				err   error
				role  models.Role
				email string
			}{err: errors.ErrInvalidPassword},
		},
		{
			name:    "password beyond bcrypt limit",
			request: models.RegisterRequest{Email: "x@example.com", Password: string(make([]byte, 80))},
			want: struct {
				err   error
				role  models.Role
				email string
			}{err: errors.ErrInvalidPassword},
		},
		{
			name:    "blank email",
			request: models.RegisterRequest{Email: "   ", Password: "password123"},
			want: struct {
				err   error
				role  models.Role
				email string
			}{err: errors.ErrInvalidEmail},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			user, err := users.Register(context.Background(), tt.request)

			if tt.want.err != nil {
				assert.ErrorIs(t, err, tt.want.err)
				assert.Nil(t, user)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want.role, user.Role)
			assert.Equal(t, tt.want.email, user.Email)
			assert.Equal(t, testNow, user.CreatedAt)
			assert.True(t, auth.CheckPassword(user.PasswordHash, tt.request.Password))
		})
	}

	admins, err := store.CountUsersByRole(context.Background(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}

func TestUsersRegisterConcurrentAdmins(t *testing.T) {
	store := inmemory.NewStorage()
	users := newTestUsers(store, clock.Fake(testNow))

	const n = 8
	var wg sync.WaitGroup
	roles := make([]models.Role, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user, err := users.Register(context.Background(), models.RegisterRequest{
				Email:    fmt.Sprintf("admin%d@example.com", i),
				Password: "password123",
				Role:     "admin",
			})
			if assert.NoError(t, err) {
				roles[i] = user.Role
			}
		}(i)
	}
	wg.Wait()

	granted := 0
	for _, role := range roles {
		if role == models.RoleAdmin {
			granted++
		}
	}
	assert.Equal(t, 1, granted)

	admins, err := store.CountUsersByRole(context.Background(), models.RoleAdmin)
	require.NoError(t, err)
	assert.Equal(t, 1, admins)
}

func TestUsersLoginAndResolveCaller(t *testing.T) {
	store := inmemory.NewStorage()
	clk := clock.Fake(testNow)
	users := newTestUsers(store, clk)
	admin := mustRegister(t, users, "admin@example.com", models.RoleAdmin)
	tech := mustRegister(t, users, "tech@example.com", models.RoleUser)
	ctx := context.Background()

	_, err := users.Login(ctx, models.LoginRequest{Email: "tech@example.com", Password: "nope"})
	assert.ErrorIs(t, err, errors.ErrInvalidCredentials)

	session, err := users.Login(ctx, models.LoginRequest{Email: "TECH@example.com", Password: "password123"})
	require.NoError(t, err)
	assert.Equal(t, tech.ID, session.User.ID)
	assert.Equal(t, testNow.Add(auth.DefaultTokenTTL), session.ExpiresAt)

	caller, err := users.ResolveCaller(ctx, session.Token)
	require.NoError(t, err)
	assert.Equal(t, &models.Caller{ID: tech.ID, Email: tech.Email, Role: models.RoleUser}, caller)

	_, err = users.ChangeRole(ctx, callerOf(admin), tech.ID, "admin")
	require.NoError(t, err)
	caller, err = users.ResolveCaller(ctx, session.Token)
	require.NoError(t, err)
	assert.True(t, caller.IsAdmin(), "role is read from the store, not the token")

	_, err = users.ResolveCaller(ctx, "")
	assert.ErrorIs(t, err, errors.ErrTokenMissing)

	clk.Advance(auth.DefaultTokenTTL + time.Second)
	_, err = users.ResolveCaller(ctx, session.Token)
	assert.ErrorIs(t, err, errors.ErrTokenExpired)
}

func TestUsersAdministration(t *testing.T) {
	store := inmemory.NewStorage()
	users := newTestUsers(store, clock.Fake(testNow))
	admin := mustRegister(t, users, "admin@example.com", models.RoleAdmin)
	tech := mustRegister(t, users, "tech@example.com", models.RoleUser)
	ctx := context.Background()

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{
			name: "non-admin cannot list",
			call: func() error { _, err := users.List(ctx, callerOf(tech)); return err },
			want: errors.ErrAdminRequired,
		},
		{
			name: "unauthenticated cannot list",
			call: func() error { _, err := users.List(ctx, nil); return err },
			want: errors.ErrUnauthenticated,
		},
		{
			name: "non-admin cannot change roles",
			call: func() error { _, err := users.ChangeRole(ctx, callerOf(tech), tech.ID, "admin"); return err },
			want: errors.ErrAdminRequired,
		},
		{
			name: "unknown role",
			call: func() error { _, err := users.ChangeRole(ctx, callerOf(admin), tech.ID, "root"); return err },
			want: errors.ErrInvalidRole,
		},
		{
			name: "unknown target",
			call: func() error { _, err := users.ChangeRole(ctx, callerOf(admin), "missing", "user"); return err },
			want: errors.ErrUserNotFound,
		},
		{
			name: "admin cannot be deleted",
			call: func() error { return users.Delete(ctx, callerOf(admin), admin.ID) },
			want: errors.ErrAdminUndeletable,
		},
		{
			name: "non-admin cannot delete",
			call: func() error { return users.Delete(ctx, callerOf(tech), tech.ID) },
			want: errors.ErrAdminRequired,
		},
		{
			name: "delete unknown user",
			call: func() error { return users.Delete(ctx, callerOf(admin), "missing") },
			want: errors.ErrUserNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, tt.call(), tt.want)
		})
	}

	list, err := users.List(ctx, callerOf(admin))
	require.NoError(t, err)
	assert.Len(t, list, 2)

	require.NoError(t, users.Delete(ctx, callerOf(admin), tech.ID))
	_, err = store.GetUserByID(ctx, tech.ID)
	assert.ErrorIs(t, err, errors.ErrUserNotFound)
}

type MockUserRepository struct {
	mock.Mock
}

func (m *MockUserRepository) GetUserByID(ctx context.Context, id string) (*models.User, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.User), args.Error(1)
}

func (m *MockUserRepository) RegisterUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) UpdateUser(ctx context.Context, user *models.User) error {
	return m.Called(ctx, user).Error(0)
}

func (m *MockUserRepository) DeleteUser(ctx context.Context, id string) error {
	return m.Called(ctx, id).Error(0)
}

func (m *MockUserRepository) ListUsers(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.User), args.Error(1)
}

func TestUsersRegisterStoreFailures(t *testing.T) {
	storeErr := stderrors.New("connection refused")

	tests := []struct {
		name      string
		mockSetup func(*MockUserRepository)
	}{
		{
			name: "email lookup fails",
			mockSetup: func(m *MockUserRepository) {
				m.On("GetUserByEmail", mock.Anything, "admin@example.com").Return(nil, storeErr)
			},
		},
		{
			name: "insert fails",
			mockSetup: func(m *MockUserRepository) {
				m.On("GetUserByEmail", mock.Anything, "admin@example.com").Return(nil, errors.ErrUserNotFound)
				m.On("RegisterUser", mock.Anything, mock.AnythingOfType("*models.User")).Return(storeErr)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			repo := new(MockUserRepository)
			tt.mockSetup(repo)
			users := newTestUsers(repo, clock.Fake(testNow))

			user, err := users.Register(context.Background(), models.RegisterRequest{Email: "admin@example.com", Password: "password123", Role: "admin"})

			assert.Nil(t, user)
			assert.ErrorIs(t, err, storeErr)
			repo.AssertExpectations(t)
		})
	}
}
