package application

import (
	"errors"
	"fmt"
	"time"

	"github.com/Heshamoov/aid-app-admin-production/internal/domain"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const tokenTypeAuth = "auth"

// AuthClaims mirrors the payload of a PocketBase auth token so the same
// cookie works against either backend.
type AuthClaims struct {
	CollectionID string `json:"collectionId"`
	Type         string `json:"type"`
	Refreshable  bool   `json:"refreshable"`
	jwt.RegisteredClaims
}

type TokenIssuer struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

func NewTokenIssuer(secret string, ttl time.Duration) (*TokenIssuer, error) {
	if len(secret) < 16 {
		return nil, errors.New("token secret must be at least 16 bytes")
	}
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &TokenIssuer{secret: []byte(secret), ttl: ttl, now: now}, nil
}

func (t *TokenIssuer) Issue(u domain.User) (string, error) {
	issued := t.now()
	claims := AuthClaims{
		CollectionID: domain.UsersCollectionID,
		Type:         tokenTypeAuth,
		Refreshable:  true,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Subject:   u.ID,
			IssuedAt:  jwt.NewNumericDate(issued),
			ExpiresAt: jwt.NewNumericDate(issued.Add(t.ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

func (t *TokenIssuer) Verify(token string) (*AuthClaims, error) {
	claims := &AuthClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now), jwt.WithExpirationRequired())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	}
	if claims.Type != tokenTypeAuth || claims.CollectionID != domain.UsersCollectionID || claims.Subject == "" {
		return nil, fmt.Errorf("%w: not a users auth token", domain.ErrUnauthorized)
	}
	return claims, nil
}
