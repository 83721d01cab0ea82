// Package auth issues and validates the agent tokens that let an automated
// payment agent act on behalf of a single renter.
package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/rentals/backend/internal/infrastructure/config"
)

// TokenTypeAgent marks tokens minted for renter payment agents
const TokenTypeAgent = "agent"

// DefaultAgentTokenTTL is used when GenerateAgentToken is given no TTL
const DefaultAgentTokenTTL = 15 * time.Minute

var (
	ErrInvalidToken     = errors.New("invalid token")
	ErrExpiredToken     = errors.New("token has expired")
	ErrInvalidTokenType = errors.New("invalid token type")
	ErrInvalidClaims    = errors.New("invalid token claims")
	ErrTokenNotYetValid = errors.New("token is not yet valid")
	ErrMissingSecret    = errors.New("jwt secret is not configured")
	ErrSubjectMismatch  = errors.New("token subject does not match renter")
)

// Claims carries the renter the token was minted for in the subject
type Claims struct {
	jwt.RegisteredClaims
	TokenType string `json:"token_type"`
}

// RenterID parses the subject as a renter id
func (c *Claims) RenterID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidClaims
	}
	return id, nil
}

// Authorizes reports whether the token may act for the given renter
func (c *Claims) Authorizes(renterID uuid.UUID) error {
	id, err := c.RenterID()
	if err != nil {
		return err
	}
	if id != renterID {
		return ErrSubjectMismatch
	}
	return nil
}

// JWTService signs and validates HS256 agent tokens
type JWTService struct {
	secret []byte
	issuer string
	now    func() time.Time
}

// NewJWTService creates a new JWTService
func NewJWTService(cfg config.JWTConfig) *JWTService {
	return &JWTService{
		secret: []byte(cfg.Secret),
		issuer: cfg.Issuer,
		now:    time.Now,
	}
}

// GenerateAgentToken mints a token whose subject is the renter id
func (s *JWTService) GenerateAgentToken(renterID uuid.UUID, ttl time.Duration) (string, time.Time, error) {
	if len(s.secret) == 0 {
		return "", time.Time{}, ErrMissingSecret
	}
	if renterID == uuid.Nil {
		return "", time.Time{}, ErrInvalidClaims
	}
	if ttl <= 0 {
		ttl = DefaultAgentTokenTTL
	}

	now := s.now()
	expiresAt := now.Add(ttl)
	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.New().String(),
			Issuer:    s.issuer,
			Subject:   renterID.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			NotBefore: jwt.NewNumericDate(now),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		TokenType: TokenTypeAgent,
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}

// ValidateToken parses a token and checks its signature, lifetime, issuer and type
func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	if len(s.secret) == 0 {
		return nil, ErrMissingSecret
	}

	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(s.now),
	}
	if s.issuer != "" {
		opts = append(opts, jwt.WithIssuer(s.issuer))
	}

	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return s.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		if errors.Is(err, jwt.ErrTokenNotValidYet) {
			return nil, ErrTokenNotYetValid
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*Claims)
	if !ok || !token.Valid {
		return nil, ErrInvalidClaims
	}
	if claims.TokenType != TokenTypeAgent {
		return nil, ErrInvalidTokenType
	}
	if _, err := claims.RenterID(); err != nil {
		return nil, err
	}
	return claims, nil
}
