package user

import (
	"context"

	"github.com/go-faster/errors"
	"github.com/go-faster/sdk/zctx"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Niphilbert/e-Commerce-Backend/internal/apperr"
)

// Session is the result of a successful login.
type Session struct {
	Token string
	User  *User
}

// Service implements registration and login.
type Service struct {
	repo   Repository
	hasher PasswordHasher
	tokens TokenIssuer
}

// NewService creates a user Service.
func NewService(repo Repository, hasher PasswordHasher, tokens TokenIssuer) *Service {
	return &Service{repo: repo, hasher: hasher, tokens: tokens}
}

// Register creates a USER account. Email and username must both be unused.
func (s *Service) Register(ctx context.Context, username, email, password string) (*User, error) {
	if err := s.ensureUnused(ctx, username, email); err != nil {
		return nil, err
	}

	hash, err := s.hasher.Hash(password)
	if err != nil {
		return nil, errors.Wrap(err, "hash password")
	}

	u := &User{
		ID:           uuid.New().String(),
		Username:     username,
		Email:        email,
		PasswordHash: hash,
		Role:         RoleUser,
	}
	if err := s.repo.Create(ctx, u); err != nil {
		// A concurrent registration can win the race after ensureUnused.
		switch {
		case errors.Is(err, ErrDuplicateEmail):
			return nil, emailTaken()
		case errors.Is(err, ErrDuplicateUsername):
			return nil, usernameTaken()
		}
		return nil, errors.Wrap(err, "create user")
	}

	zctx.From(ctx).Info("User registered", zap.String("user_id", u.ID), zap.String("username", u.Username))
	return u, nil
}

// Login verifies the credentials and issues an access token.
func (s *Service) Login(ctx context.Context, email, password string) (*Session, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, invalidCredentials()
		}
		return nil, errors.Wrap(err, "find user")
	}
	if !s.hasher.Verify(password, u.PasswordHash) {
		return nil, invalidCredentials()
	}

	token, err := s.tokens.IssueToken(Identity{UserID: u.ID, Username: u.Username, Role: u.Role})
	if err != nil {
		return nil, errors.Wrap(err, "issue token")
	}
	return &Session{Token: token, User: u}, nil
}

func (s *Service) ensureUnused(ctx context.Context, username, email string) error {
	if _, err := s.repo.FindByEmail(ctx, email); err == nil {
		return emailTaken()
	} else if !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "find by email")
	}

	if _, err := s.repo.FindByUsername(ctx, username); err == nil {
		return usernameTaken()
	} else if !errors.Is(err, ErrNotFound) {
		return errors.Wrap(err, "find by username")
	}
	return nil
}

func emailTaken() error         { return apperr.Conflict("Email already exists") }
func usernameTaken() error      { return apperr.Conflict("Username already exists") }
func invalidCredentials() error { return apperr.Unauthorized("Invalid credentials") }
