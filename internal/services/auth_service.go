package services

import (
	"time"

	relay_errors "relay-chat/pkg/errors"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// AuthService validates access tokens minted by the identity collaborator.
// Credential verification and session issuance live outside this service;
// only the verification half is needed here to attach an identity to each
// connection and request.
type AuthService struct {
	secret []byte
}

func NewAuthService(secret string) *AuthService {
	return &AuthService{secret: []byte(secret)}
}

type AccessClaims struct {
	UserID string `json:"uid"`
	jwt.RegisteredClaims
}

func (s *AuthService) ParseAccessToken(token string) (*AccessClaims, error) {
	if token == "" {
		return nil, relay_errors.ErrUnauthorized
	}
	claims := &AccessClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, relay_errors.ErrUnauthorized
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return nil, relay_errors.ErrUnauthorized
	}
	if _, err := uuid.Parse(claims.UserID); err != nil {
		return nil, relay_errors.ErrUnauthorized
	}
	return claims, nil
}

// MintAccessToken issues a short-lived token. Used by tests and local
// tooling; production tokens come from the identity service with the same
// shared secret.
func (s *AuthService) MintAccessToken(userID uuid.UUID, ttl time.Duration) (string, error) {
	claims := AccessClaims{
		UserID: userID.String(),
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}
