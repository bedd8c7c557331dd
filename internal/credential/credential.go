// Package credential hashes passwords with bcrypt and issues and verifies
// HS256 access tokens.
package credential

import (
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/Niphilbert/e-Commerce-Backend/internal/domain/user"
)

// DefaultTokenTTL is the lifetime of issued tokens unless configured.
const DefaultTokenTTL = 7 * 24 * time.Hour

// ErrInvalidToken is returned by VerifyToken for any token that cannot be
// trusted: malformed, badly signed, expired or missing claims.
var ErrInvalidToken = errors.New("invalid token")

var (
	_ user.PasswordHasher = (*Service)(nil)
	_ user.TokenIssuer    = (*Service)(nil)
)

// Option configures a Service.
type Option func(*Service)

// WithBcryptCost overrides bcrypt.DefaultCost.
func WithBcryptCost(cost int) Option {
	return func(s *Service) { s.cost = cost }
}

// WithClock overrides the time source used for token timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// Service is the credential service.
type Service struct {
	secret []byte
	ttl    time.Duration
	cost   int
	now    func() time.Time
}

// New creates a Service signing tokens with secret. A non-positive ttl falls
// back to DefaultTokenTTL.
func New(secret []byte, ttl time.Duration, opts ...Option) *Service {
	if ttl <= 0 {
		ttl = DefaultTokenTTL
	}
	s := &Service{
		secret: secret,
		ttl:    ttl,
		cost:   bcrypt.DefaultCost,
		now:    time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Hash returns the bcrypt hash of plain.
func (s *Service) Hash(plain string) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), s.cost)
	if err != nil {
		return "", errors.Wrap(err, "bcrypt")
	}
	return string(b), nil
}

// Verify reports whether plain matches hash.
func (s *Service) Verify(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

type tokenClaims struct {
	UserID   string `json:"userId"`
	Username string `json:"username"`
	Role     string `json:"role"`
	jwt.RegisteredClaims
}

// IssueToken signs a token carrying the identity.
func (s *Service) IssueToken(id user.Identity) (string, error) {
	now := s.now()
	claims := tokenClaims{
		UserID:   id.UserID,
		Username: id.Username,
		Role:     string(id.Role),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", errors.Wrap(err, "sign token")
	}
	return token, nil
}

// VerifyToken validates raw and returns the identity it carries.
func (s *Service) VerifyToken(raw string) (user.Identity, error) {
	var claims tokenClaims
	_, err := jwt.ParseWithClaims(raw, &claims,
		func(*jwt.Token) (any, error) { return s.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		return user.Identity{}, errors.Wrap(ErrInvalidToken, err.Error())
	}

	role := user.Role(claims.Role)
	if claims.UserID == "" || (role != user.RoleUser && role != user.RoleAdmin) {
		return user.Identity{}, ErrInvalidToken
	}
	return user.Identity{UserID: claims.UserID, Username: claims.Username, Role: role}, nil
}
