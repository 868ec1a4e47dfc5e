// Package jwttoken mints and checks the HS256 bearer tokens that guard the
// /api routes.
package jwttoken

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const (
	// Issuer is the iss claim of every token the app mints and accepts.
	Issuer = "busybeaver"
	// ScopeAPI grants the /api routes.
	ScopeAPI = "api"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims are the claims carried by API tokens. Subject names the caller
// (an integration, an operator).
type Claims struct {
	Scope string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type JWTService struct {
	key    []byte
	issuer string
	parser *jwt.Parser
	now    func() time.Time
}

func NewJWTService(signingKey, issuer string) *JWTService {
	return &JWTService{
		key:    []byte(signingKey),
		issuer: issuer,
		parser: jwt.NewParser(
			jwt.WithIssuer(issuer),
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
		),
		now: time.Now,
	}
}

// GenerateToken signs a token for subject that expires after ttl.
func (s *JWTService) GenerateToken(subject, scope string, ttl time.Duration) (string, error) {
	if subject == "" {
		return "", fmt.Errorf("generate token: subject is required")
	}
	issued := s.now()
	claims := Claims{
		Scope: scope,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    s.issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.key)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken returns the claims of a token this service signed. Expired
// tokens report ErrTokenExpired; every other failure is ErrInvalidToken.
func (s *JWTService) ValidateToken(raw string) (*Claims, error) {
	var claims Claims
	tok, err := s.parser.ParseWithClaims(raw, &claims, s.keyFunc)
	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return nil, ErrTokenExpired
	case err != nil, !tok.Valid, claims.Subject == "":
		return nil, ErrInvalidToken
	}
	return &claims, nil
}

func (s *JWTService) keyFunc(*jwt.Token) (any, error) {
	return s.key, nil
}
