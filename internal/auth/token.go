package auth

import (
	"errors"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/sssheik1337/BESPILOTNIK-sub000/internal/domain"
)

// TokenManager handles issuing and validating JWT tokens.
type TokenManager struct {
	secret         []byte
	operatorTTL    time.Duration
	integrationTTL time.Duration
	now            func() time.Time
}

// NewTokenManager builds a new manager.
func NewTokenManager(secret string, operatorTTLMinutes, integrationTTLMinutes int) *TokenManager {
	if operatorTTLMinutes <= 0 {
		operatorTTLMinutes = 60
	}
	if integrationTTLMinutes <= 0 {
		integrationTTLMinutes = operatorTTLMinutes
	}
	return &TokenManager{
		secret:         []byte(secret),
		operatorTTL:    time.Duration(operatorTTLMinutes) * time.Minute,
		integrationTTL: time.Duration(integrationTTLMinutes) * time.Minute,
		now:            time.Now,
	}
}

// Claims describes JWT payload.
type Claims struct {
	SubjectID  string             `json:"sub"`
	Subject    domain.SubjectType `json:"subject"`
	Privileged bool               `json:"privileged,omitempty"`
	jwt.RegisteredClaims
}

// GenerateToken builds and signs a JWT for the subject. Privileged only
// applies to operators.
func (tm *TokenManager) GenerateToken(subjectID string, subject domain.SubjectType, privileged bool) (string, time.Time, error) {
	ttl := tm.operatorTTL
	if subject == domain.SubjectTypeIntegration {
		ttl = tm.integrationTTL
		privileged = false
	}
	issuedAt := tm.now()
	expiresAt := issuedAt.Add(ttl)
	claims := &Claims{
		SubjectID:  subjectID,
		Subject:    subject,
		Privileged: privileged,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subjectID,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
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
	if !ok || !parsed.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}
