package service

import (
	"context"
	"log/slog"
	"time"

	"maintenance/internal/auth"
	"maintenance/internal/clock"
	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"
	"maintenance/internal/rbac"

	"github.com/google/uuid"
)

const MinPasswordLength = 6

type Users struct {
	repo   UserRepository
	issuer *auth.Issuer
	clock  clock.Clock
	log    *slog.Logger
}

func NewUsers(repo UserRepository, issuer *auth.Issuer, clk clock.Clock, log *slog.Logger) *Users {
	if clk == nil {
		clk = clock.Real()
	}
	if log == nil {
		log = discardLogger()
	}
	return &Users{repo: repo, issuer: issuer, clock: clk, log: log}
}

// Register creates an account. An admin role is granted only while no
// admin exists; otherwise the request is quietly downgraded to user.
func (s *Users) Register(ctx context.Context, req models.RegisterRequest) (*models.User, error) {
	email := models.NormalizeEmail(req.Email)
	if email == "" {
		return nil, errors.ErrInvalidEmail
	}
	if len(req.Password) < MinPasswordLength {
		return nil, errors.ErrInvalidPassword
	}

	role := models.RoleUser
	if req.Role != "" {
		requested, err := models.ParseRole(req.Role)
		if err != nil {
			return nil, err
		}
		role = requested
	}

	if _, err := s.repo.GetUserByEmail(ctx, email); err == nil {
		return nil, errors.ErrUserAlreadyExists
	} else if !isNotFound(err) {
		return nil, err
	}

	hash, err := s.issuer.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}

	user := &models.User{
		ID:           uuid.New().String(),
		Email:        email,
		PasswordHash: hash,
		Role:         role,
		CreatedAt:    s.clock.Now(),
	}
	if err := s.repo.RegisterUser(ctx, user); err != nil {
		return nil, err
	}
	if user.Role != role {
		s.log.Info("admin role requested while an admin exists, registered as user", "email", email)
	}
	s.log.Info("user registered", "user_id", user.ID, "role", user.Role)
	return user, nil
}

type Session struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expiresAt"`
	User      *models.User `json:"user"`
}

func (s *Users) Login(ctx context.Context, req models.LoginRequest) (*Session, error) {
	user, err := s.issuer.Authenticate(ctx, req.Email, req.Password)
	if err != nil {
		return nil, err
	}
	token, expiresAt, err := s.issuer.IssueToken(user)
	if err != nil {
		return nil, err
	}
	return &Session{Token: token, ExpiresAt: expiresAt, User: user}, nil
}

// ResolveCaller verifies a bearer token and loads the account behind it,
// so that role changes and deletions apply to tokens already issued.
func (s *Users) ResolveCaller(ctx context.Context, token string) (*models.Caller, error) {
	claims, err := s.issuer.VerifyToken(token)
	if err != nil {
		return nil, err
	}
	user, err := s.repo.GetUserByID(ctx, claims.ID)
	if err != nil {
		if isNotFound(err) {
			return nil, errors.ErrTokenInvalid
		}
		return nil, err
	}
	return &models.Caller{ID: user.ID, Email: user.Email, Role: user.Role}, nil
}

func (s *Users) Me(ctx context.Context, caller *models.Caller) (*models.User, error) {
	if caller == nil {
		return nil, errors.ErrUnauthenticated
	}
	return s.repo.GetUserByID(ctx, caller.ID)
}

func (s *Users) List(ctx context.Context, caller *models.Caller) ([]models.User, error) {
	if err := rbac.CheckUser(caller, rbac.ListUsers, nil, ""); err != nil {
		return nil, err
	}
	return s.repo.ListUsers(ctx)
}

func (s *Users) ChangeRole(ctx context.Context, caller *models.Caller, userID, role string) (*models.User, error) {
	if err := rbac.RequireAdmin(caller); err != nil {
		return nil, err
	}
	target, err := s.lookup(ctx, userID)
	if err != nil {
		return nil, err
	}
	newRole := models.Role(role)
	if err := rbac.CheckUser(caller, rbac.ChangeRole, target, newRole); err != nil {
		return nil, err
	}

	if target.Role == newRole {
		return target, nil
	}
	target.Role = newRole
	if err := s.repo.UpdateUser(ctx, target); err != nil {
		return nil, err
	}
	s.log.Info("user role changed", "user_id", target.ID, "role", newRole, "by", caller.ID)
	return target, nil
}

func (s *Users) Delete(ctx context.Context, caller *models.Caller, userID string) error {
	if err := rbac.RequireAdmin(caller); err != nil {
		return err
	}
	target, err := s.lookup(ctx, userID)
	if err != nil {
		return err
	}
	if err := rbac.CheckUser(caller, rbac.DeleteUser, target, ""); err != nil {
		return err
	}
	if err := s.repo.DeleteUser(ctx, target.ID); err != nil {
		return err
	}
	s.log.Info("user deleted", "user_id", target.ID, "by", caller.ID)
	return nil
}

// lookup returns nil without error when the user is absent, leaving the
// not-found decision to rbac.
func (s *Users) lookup(ctx context.Context, id string) (*models.User, error) {
	user, err := s.repo.GetUserByID(ctx, id)
	if err != nil {
		if isNotFound(err) {
			return nil, nil
		}
		return nil, err
	}
	return user, nil
}
