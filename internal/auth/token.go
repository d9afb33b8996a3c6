package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/vestlabs/vesting-service/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret []byte
	ttl    time.Duration
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, ttlMinutes int) *TokenManager {
	if ttlMinutes <= 0 {
		ttlMinutes = 60
	}
	return &TokenManager{secret: []byte(secret), ttl: time.Duration(ttlMinutes) * time.Minute}
}

// Claims describes JWT payload.
type Claims struct {
	Identity domain.Identity `json:"identity"`
	Role     *domain.Role    `json:"role,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for the identity.
func (tm *TokenManager) GenerateToken(identity domain.Identity, role *domain.Role) (string, time.Time, error) {
	if identity.IsZero() {
		return "", time.Time{}, errors.New("identity required")
	}
	now := time.Now()
	expiresAt := now.Add(tm.ttl)
	claims := &Claims{
		Identity: identity,
		Role:     role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   identity.String(),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(tm.secret)
	if err != nil {
		return "", time.Time{}, err
	}
	return tokenString, expiresAt, nil
}

// ParseToken validates and returns claims.
func (tm *TokenManager) ParseToken(tokenStr string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, errors.New("unexpected signing method")
		}
		return tm.secret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid || claims.Identity.IsZero() {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
