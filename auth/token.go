package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v4"

	"taskboard/domain"
)

// TestToken mints an HS256 token accepted by an Auth built with the same
// TestSecret. It exists for local runs and load tests.
func TestToken(secret []byte, user domain.User, ttl time.Duration) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("test secret must be set")
	}
	if user.ID == "" {
		return "", errors.New("user id must be set")
	}
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": user.ID,
		"iat": now.Unix(),
		"exp": now.Add(ttl).Unix(),
	}
	if user.Email != "" {
		claims["email"] = user.Email
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}
