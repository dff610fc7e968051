package utils

import (
	"fmt"
	"time"

	"github.com/authgate/backend/internal/models"
	"github.com/golang-jwt/jwt/v5"
)

var (
	jwtSecret     = []byte("change-me-in-production")
	sessionMaxAge = 90 * 24 * time.Hour
)

// SessionClaims is the signed, client-held session token. The subject is
// the user id; name, email and role are projections of the user row and
// are re-derived on every refresh cycle.
type SessionClaims struct {
	Name  string          `json:"name,omitempty"`
	Email string          `json:"email,omitempty"`
	Role  models.UserRole `json:"role,omitempty"`
	jwt.RegisteredClaims
}

func ConfigureJWT(secret string, maxAge time.Duration) {
	if secret != "" {
		jwtSecret = []byte(secret)
	}
	if maxAge > 0 {
		sessionMaxAge = maxAge
	}
}

// GenerateToken signs the claims, stamping issued-at and the absolute
// expiry. The expiry bounds how long a compromised token stays valid even
// if refresh never triggers.
func GenerateToken(claims *SessionClaims) (string, error) {
	now := time.Now()
	claims.IssuedAt = jwt.NewNumericDate(now)
	claims.ExpiresAt = jwt.NewNumericDate(now.Add(sessionMaxAge))

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(jwtSecret)
}

func ValidateToken(tokenString string) (*SessionClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method")
		}
		return jwtSecret, nil
	})
	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}

	return claims, nil
}
