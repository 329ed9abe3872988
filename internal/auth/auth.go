// Package auth verifies passwords and issues and validates bearer tokens.
package auth

import (
	"context"
	stderrors "errors"
	"time"

	"maintenance/internal/clock"
	"maintenance/internal/domain/errors"
	"maintenance/internal/domain/models"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const DefaultTokenTTL = time.Hour

// UserLookup is the part of the identity store the issuer needs.
type UserLookup interface {
	GetUserByEmail(ctx context.Context, email string) (*models.User, error)
}

type Claims struct {
	ID    string      `json:"id"`
	Email string      `json:"email"`
	Role  models.Role `json:"role"`
	jwt.RegisteredClaims
}

type Options struct {
	Secret     string
	TokenTTL   time.Duration
	BcryptCost int
}

type Issuer struct {
	users  UserLookup
	secret []byte
	ttl    time.Duration
	cost   int
	clock  clock.Clock
}

func NewIssuer(users UserLookup, opts Options, clk clock.Clock) *Issuer {
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = DefaultTokenTTL
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	if clk == nil {
		clk = clock.Real()
	}
	return &Issuer{
		users:  users,
		secret: []byte(opts.Secret),
		ttl:    opts.TokenTTL,
		cost:   opts.BcryptCost,
		clock:  clk,
	}
}

func (i *Issuer) HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), i.cost)
	if err != nil {
		if stderrors.Is(err, bcrypt.ErrPasswordTooLong) {
			return "", errors.ErrInvalidPassword
		}
		return "", err
	}
	return string(hash), nil
}

func CheckPassword(hash, password string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil
}

// Authenticate returns the user whose email and password match. Unknown
// emails and wrong passwords are indistinguishable to the caller.
func (i *Issuer) Authenticate(ctx context.Context, email, password string) (*models.User, error) {
	user, err := i.users.GetUserByEmail(ctx, models.NormalizeEmail(email))
	if err != nil {
		if stderrors.Is(err, errors.ErrNotFound) {
			return nil, errors.ErrInvalidCredentials
		}
		return nil, err
	}
	if !CheckPassword(user.PasswordHash, password) {
		return nil, errors.ErrInvalidCredentials
	}
	return user, nil
}

func (i *Issuer) IssueToken(user *models.User) (string, time.Time, error) {
	now := i.clock.Now()
	expiresAt := now.Add(i.ttl)
	claims := Claims{
		ID:    user.ID,
		Email: user.Email,
		Role:  user.Role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   user.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expiresAt, nil
}

// VerifyToken checks signature and expiry against the issuer's clock.
func (i *Issuer) VerifyToken(tokenString string) (*Claims, error) {
	if tokenString == "" {
		return nil, errors.ErrTokenMissing
	}

	claims := &Claims{}
	_, err := jwt.ParseWithClaims(tokenString, claims,
		func(*jwt.Token) (interface{}, error) { return i.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(i.clock.Now),
	)
	switch {
	case err == nil:
	case stderrors.Is(err, jwt.ErrTokenExpired):
		return nil, errors.ErrTokenExpired
	case stderrors.Is(err, jwt.ErrTokenMalformed):
		return nil, errors.ErrTokenMalformed
	default:
		return nil, errors.ErrTokenInvalid
	}

	if claims.ID == "" || !claims.Role.Valid() {
		return nil, errors.ErrTokenInvalid
	}
	return claims, nil
}
