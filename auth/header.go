package auth

import (
	"errors"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	ErrMissingAuthorization = errors.New("missing authorization header")
	ErrBadAuthorization     = errors.New("bad auth header")
)

const bearerPrefix = "Bearer "

// BearerToken returns the compact JWT carried by the Authorization header.
func BearerToken(header http.Header) (string, error) {
	values := header.Values(echo.HeaderAuthorization)
	if len(values) == 0 {
		return "", ErrMissingAuthorization
	}
	return bearerFromString(values[0])
}

func bearerFromString(raw string) (string, error) {
	trimmed := strings.Trim(raw, " ")
	if trimmed == "" {
		return "", ErrMissingAuthorization
	}
	token, ok := strings.CutPrefix(trimmed, bearerPrefix)
	if !ok || token == "" {
		return "", ErrBadAuthorization
	}
	// header.payload.signature
	if strings.Count(token, ".") != 2 {
		return "", ErrBadAuthorization
	}
	return token, nil
}
