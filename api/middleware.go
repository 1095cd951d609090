package api

import (
	"compress/gzip"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"

	"taskboard/domain"
)

const (
	userKey     = "taskboard.user"
	authTimeKey = "taskboard.auth_duration"
)

// GzipRequestMiddleware inflates board intents and comments sent with
// Content-Encoding: gzip before they reach the JSON decoder. A body that is
// not valid gzip gets a 400.
func GzipRequestMiddleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !hasGzipEncoding(req.Header.Get(echo.HeaderContentEncoding)) {
				return next(c)
			}

			body := req.Body
			gr, err := gzip.NewReader(body)
			if err != nil {
				_ = body.Close()
				return echo.NewHTTPError(http.StatusBadRequest, "invalid gzip body")
			}

			req.Body = &gzipReadCloser{Reader: gr, body: body}
			req.ContentLength = -1
			req.Header.Del(echo.HeaderContentEncoding)
			req.Header.Del(echo.HeaderContentLength)
			return next(c)
		}
	}
}

func hasGzipEncoding(header string) bool {
	for _, enc := range strings.Split(header, ",") {
		if strings.EqualFold(strings.TrimSpace(enc), "gzip") {
			return true
		}
	}
	return false
}

// gzipReadCloser closes the inflater and the underlying request body.
type gzipReadCloser struct {
	*gzip.Reader
	body io.Closer
}

func (g *gzipReadCloser) Close() error {
	err := g.Reader.Close()
	if cerr := g.body.Close(); cerr != nil && err == nil {
		err = cerr
	}
	return err
}

// RequestID tags every request with a uuid correlation id, reusing the
// caller's X-Request-Id when present.
func RequestID() echo.MiddlewareFunc {
	return middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: uuid.NewString,
	})
}

// requireUser authenticates the request. EventSource cannot send headers, so
// a token query parameter is accepted in place of the Authorization header.
func requireUser(auth Authenticator) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			header := c.Request().Header.Get(echo.HeaderAuthorization)
			if header == "" {
				if token := c.QueryParam("token"); token != "" {
					header = "Bearer " + token
				}
			}
			start := time.Now()
			user, err := auth.UserFromAuthHeader(c.Request().Context(), header)
			c.Set(authTimeKey, time.Since(start))
			if err != nil {
				return c.String(http.StatusUnauthorized, err.Error())
			}
			c.Set(userKey, user)
			return next(c)
		}
	}
}

func currentUser(c echo.Context) domain.User {
	u, _ := c.Get(userKey).(domain.User)
	return u
}

func authDuration(c echo.Context) time.Duration {
	d, _ := c.Get(authTimeKey).(time.Duration)
	return d
}
