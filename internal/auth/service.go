// Package auth validates the bearer tokens issued by the platform's session
// service. Tokens are HS256 JWTs carrying the user id in sub and a role claim.
package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	RoleAdmin = "admin"
	RoleUser  = "user"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrInvalidRole  = errors.New("invalid role")
	ErrNoSecret     = errors.New("jwt secret is required")
)

const defaultTokenTTL = 24 * time.Hour

type claims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

type Service struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewService signs tokens with secret. A non-positive ttl takes the default.
func NewService(secret string, ttl time.Duration) (*Service, error) {
	if secret == "" {
		return nil, ErrNoSecret
	}
	if ttl <= 0 {
		ttl = defaultTokenTTL
	}
	return &Service{secret: []byte(secret), ttl: ttl, now: time.Now}, nil
}

// IssueToken signs a token for userID. Used by operator tooling and tests;
// interactive sessions are issued elsewhere.
func (s *Service) IssueToken(userID uuid.UUID, role string) (string, error) {
	if role != RoleAdmin && role != RoleUser {
		return "", ErrInvalidRole
	}
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

// ValidateToken returns the subject and role of a valid, unexpired token.
func (s *Service) ValidateToken(token string) (uuid.UUID, string, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(s.now))
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: %v", ErrInvalidToken, err)
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", ErrInvalidToken
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", fmt.Errorf("%w: subject: %v", ErrInvalidToken, err)
	}
	if c.Role != RoleAdmin && c.Role != RoleUser {
		return uuid.Nil, "", fmt.Errorf("%w: role %q", ErrInvalidToken, c.Role)
	}
	return id, c.Role, nil
}
