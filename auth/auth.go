// Package auth resolves the signed-in user from bearer tokens issued by the
// identity provider and handles sign-out by revoking tokens.
package auth

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/MicahParks/keyfunc"
	"github.com/golang-jwt/jwt/v4"

	"taskboard/domain"
)

const DefaultKeyCacheTTL = 15 * time.Minute

var ErrTokenRevoked = errors.New("token revoked")

// Revocations remembers tokens that were signed out before they expired.
type Revocations interface {
	Revoke(ctx context.Context, token string, until time.Time) error
	Revoked(ctx context.Context, token string) (bool, error)
}

// Options configures token validation. A non-empty TestSecret switches the
// validator to HS256 tokens signed with that secret instead of the JWKS.
type Options struct {
	Audience    string
	Issuer      string
	TestSecret  []byte
	KeyCacheTTL time.Duration
	Revocations Revocations
}

// Auth validates incoming JWT tokens.
type Auth struct {
	jwks        *keyfunc.JWKS
	opts        Options
	parser      *jwt.Parser
	keyCache    sync.Map
	keyCacheTTL time.Duration
}

type cachedKey struct {
	key       any
	expiresAt time.Time
}

type verified struct {
	user      domain.User
	expiresAt time.Time
}

func NewAuth(jwks *keyfunc.JWKS, opts Options) *Auth {
	a := &Auth{jwks: jwks, opts: opts, keyCacheTTL: opts.KeyCacheTTL}
	if a.keyCacheTTL == 0 {
		a.keyCacheTTL = DefaultKeyCacheTTL
	}
	if a.testMode() {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"HS256"}))
	} else {
		a.parser = jwt.NewParser(jwt.WithValidMethods([]string{"RS256"}))
	}
	return a
}

func (a *Auth) testMode() bool { return len(a.opts.TestSecret) > 0 }

// UserFromAuthHeader validates the bearer token in h and returns its user.
func (a *Auth) UserFromAuthHeader(ctx context.Context, h string) (domain.User, error) {
	token, err := bearerFromString(h)
	if err != nil {
		return domain.User{}, err
	}
	v, err := a.verify(ctx, token)
	if err != nil {
		return domain.User{}, err
	}
	return v.user, nil
}

// SignOut revokes the presented token for the rest of its lifetime.
func (a *Auth) SignOut(ctx context.Context, h string) error {
	token, err := bearerFromString(h)
	if err != nil {
		return err
	}
	v, err := a.verify(ctx, token)
	if err != nil {
		return err
	}
	if a.opts.Revocations == nil {
		return nil
	}
	if err := a.opts.Revocations.Revoke(ctx, token, v.expiresAt); err != nil {
		return fmt.Errorf("revoke token: %w", err)
	}
	return nil
}

func (a *Auth) verify(ctx context.Context, token string) (verified, error) {
	var parsed *jwt.Token
	var err error
	if a.testMode() {
		parsed, err = a.parser.Parse(token, func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, errors.New("invalid signing method")
			}
			return a.opts.TestSecret, nil
		})
	} else {
		parsed, err = a.parser.Parse(token, a.keyForToken)
	}
	if err != nil {
		return verified{}, err
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return verified{}, errors.New("invalid claims")
	}

	now := time.Now().Add(time.Minute).Unix()
	if !claims.VerifyExpiresAt(now, true) {
		return verified{}, errors.New("token expired")
	}
	if !claims.VerifyNotBefore(now, false) {
		return verified{}, errors.New("token not valid yet")
	}
	if !claims.VerifyIssuedAt(now, false) {
		return verified{}, errors.New("token used before issued")
	}
	if a.opts.Audience != "" && !claims.VerifyAudience(a.opts.Audience, false) {
		return verified{}, errors.New("invalid audience")
	}
	if a.opts.Issuer != "" && !claims.VerifyIssuer(a.opts.Issuer, false) {
		return verified{}, errors.New("invalid issuer")
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return verified{}, errors.New("missing sub")
	}
	email, _ := claims["email"].(string)

	if r := a.opts.Revocations; r != nil {
		revoked, err := r.Revoked(ctx, token)
		if err != nil {
			return verified{}, fmt.Errorf("check revocation: %w", err)
		}
		if revoked {
			return verified{}, ErrTokenRevoked
		}
	}

	var exp time.Time
	switch v := claims["exp"].(type) {
	case float64:
		exp = time.Unix(int64(v), 0)
	case int64:
		exp = time.Unix(v, 0)
	}
	return verified{user: domain.User{ID: sub, Email: email}, expiresAt: exp}, nil
}

func (a *Auth) keyForToken(token *jwt.Token) (any, error) {
	if a.jwks == nil {
		return nil, errors.New("jwks not configured")
	}

	kid, _ := token.Header["kid"].(string)
	if kid != "" {
		if cached, ok := a.keyCache.Load(kid); ok {
			entry := cached.(cachedKey)
			if time.Now().Before(entry.expiresAt) {
				return entry.key, nil
			}
			a.keyCache.Delete(kid)
		}
	}

	key, err := a.jwks.Keyfunc(token)
	if err != nil {
		return nil, err
	}
	if kid != "" {
		a.keyCache.Store(kid, cachedKey{key: key, expiresAt: time.Now().Add(a.keyCacheTTL)})
	}
	return key, nil
}
