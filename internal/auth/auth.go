// Package auth handles password accounts and the bearer tokens that carry a
// user's email into every task operation.
package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/nhle/taskminder/internal/model"
	"github.com/nhle/taskminder/internal/store"
)

var (
	// ErrEmailTaken is returned by Signup when the email already has an account.
	ErrEmailTaken = errors.New("user already exists with this email")

	// ErrInvalidCredentials is returned by Login for an unknown email or wrong password.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrInvalidToken is returned for a malformed, expired or foreign token.
	ErrInvalidToken = errors.New("token not valid")

	// ErrUnknownUser is returned when a valid token names a user that no longer exists.
	ErrUnknownUser = errors.New("user not found")
)

// InputError reports a missing or malformed signup or login field.
type InputError struct {
	Field string
}

func (e *InputError) Error() string {
	return fmt.Sprintf("%s is required", e.Field)
}

// Claims is the token payload.
type Claims struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	jwt.RegisteredClaims
}

// Service signs users up, logs them in and verifies their tokens.
type Service struct {
	users  store.UserStore
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
	google TokenVerifier
}

// NewService creates a Service signing HS256 tokens with secret that expire after ttl.
func NewService(users store.UserStore, secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, fmt.Errorf("jwt secret is required")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Service{
		users:  users,
		secret: []byte(secret),
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}, nil
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Signup creates an account and returns it with a fresh token.
func (s *Service) Signup(
	ctx context.Context,
	name, email, password string,
) (*model.User, string, error) {
	email = normalizeEmail(email)
	switch {
	case strings.TrimSpace(name) == "":
		return nil, "", &InputError{Field: "name"}
	case email == "":
		return nil, "", &InputError{Field: "email"}
	case password == "":
		return nil, "", &InputError{Field: "password"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.cost)
	if err != nil {
		return nil, "", fmt.Errorf("hashing password: %w", err)
	}

	u := model.User{
		ID:           uuid.New().String(),
		Name:         strings.TrimSpace(name),
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.users.CreateUser(ctx, u); err != nil {
		if errors.Is(err, store.ErrConflict) {
			return nil, "", ErrEmailTaken
		}
		return nil, "", fmt.Errorf("signing up %s: %w", email, err)
	}

	token, err := s.IssueToken(u)
	if err != nil {
		return nil, "", err
	}
	return &u, token, nil
}

// Login checks the password and returns the user with a fresh token.
func (s *Service) Login(
	ctx context.Context,
	email, password string,
) (*model.User, string, error) {
	email = normalizeEmail(email)
	if email == "" || password == "" {
		return nil, "", ErrInvalidCredentials
	}

	u, err := s.users.GetUserByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, "", ErrInvalidCredentials
		}
		return nil, "", fmt.Errorf("logging in %s: %w", email, err)
	}
	if u.PasswordHash == "" {
		return nil, "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return nil, "", ErrInvalidCredentials
	}

	token, err := s.IssueToken(*u)
	if err != nil {
		return nil, "", err
	}
	return u, token, nil
}

// IssueToken signs a token for u.
func (s *Service) IssueToken(u model.User) (string, error) {
	now := s.now()
	claims := Claims{
		ID:    u.ID,
		Email: u.Email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("signing token: %w", err)
	}
	return token, nil
}

// ParseToken verifies the signature and expiry of raw.
func (s *Service) ParseToken(raw string) (*Claims, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(raw, claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	if claims.Email == "" {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// Authenticate resolves a bearer token to the user it names.
func (s *Service) Authenticate(ctx context.Context, raw string) (*model.User, error) {
	claims, err := s.ParseToken(raw)
	if err != nil {
		return nil, err
	}
	u, err := s.users.GetUserByEmail(ctx, claims.Email)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, ErrUnknownUser
		}
		return nil, fmt.Errorf("loading user %s: %w", claims.Email, err)
	}
	return u, nil
}
