// Package jwttoken issues and verifies the HS256 bearer tokens that guard the
// admin API.
package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "credpass/pkg/domain-errors"
)

// RoleAdmin is the only role the admin API accepts.
const RoleAdmin = "admin"

const issuer = "credpass"

// AdminClaims are the claims carried by an admin token.
type AdminClaims struct {
	Role string `json:"role"`
	jwt.RegisteredClaims
}

// Service signs and verifies admin tokens with one shared key.
type Service struct {
	signingKey []byte
	now        func() time.Time
}

// New creates a Service. An empty key yields a Service that rejects every token.
func New(signingKey string) *Service {
	return &Service{signingKey: []byte(signingKey), now: time.Now}
}

// Issue signs an admin token for subject valid for ttl.
func (s *Service) Issue(subject string, ttl time.Duration) (string, error) {
	if len(s.signingKey) == 0 {
		return "", dErrors.New(dErrors.CodeInvalidInput, "admin signing key is not configured")
	}
	if subject == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "subject is required")
	}
	now := s.now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, AdminClaims{
		Role: RoleAdmin,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    issuer,
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	})
	signed, err := token.SignedString(s.signingKey)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "sign admin token")
	}
	return signed, nil
}

// Verify parses an admin token and returns its subject.
func (s *Service) Verify(tokenString string) (string, error) {
	if len(s.signingKey) == 0 {
		return "", dErrors.New(dErrors.CodeUnauthorized, "admin api is disabled")
	}
	claims := &AdminClaims{}
	_, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, errors.New("unexpected signing algorithm")
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(issuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "admin token expired")
		}
		return "", dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid admin token")
	}
	if claims.Role != RoleAdmin {
		return "", dErrors.New(dErrors.CodeForbidden, "token does not carry the admin role")
	}
	return claims.Subject, nil
}
