package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const (
	RolePoster = "poster"
	RoleSeeker = "seeker"
	RoleAdmin  = "admin"
)

var ErrInvalidToken = errors.New("invalid or expired token")

// Claims is the identity carried by a bearer token.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

func validRole(role string) bool {
	switch role {
	case RolePoster, RoleSeeker, RoleAdmin:
		return true
	}
	return false
}

// IssueToken signs an HS256 token for userID valid for ttl.
func IssueToken(secret, userID, role string, ttl time.Duration, now time.Time) (string, error) {
	if userID == "" {
		return "", errors.New("user id is required")
	}
	if !validRole(role) {
		return "", fmt.Errorf("unknown role %q", role)
	}
	claims := Claims{
		UserID: userID,
		Role:   role,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
}

// ParseToken verifies tokenStr and returns its claims.
func ParseToken(secret, tokenStr string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenStr, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(secret), nil
	})
	if err != nil || !token.Valid {
		return nil, ErrInvalidToken
	}
	if claims.UserID == "" || !validRole(claims.Role) {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
