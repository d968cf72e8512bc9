// Package auth gates the HTTP surface behind the API key.
package auth

import (
	"crypto/subtle"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	echojwt "github.com/labstack/echo-jwt/v4"
	"github.com/labstack/echo/v4"

	"github.com/memohai/jobrelay/internal/route"
)

const (
	HeaderAPIKey = "x-api-key"

	contextKeyToken  = "jwt"
	contextKeyCaller = "caller"
)

// KeySource yields the configured API key, or "" when none is set.
type KeySource interface {
	APIKey() string
}

// Middleware admits public webhook routes unconditionally, then requests
// carrying the API key in x-api-key, then requests with a bearer JWT signed
// with the API key. Everything else is rejected with 401 before any handler
// or trigger runs.
func Middleware(keys KeySource) echo.MiddlewareFunc {
	return echojwt.WithConfig(echojwt.Config{
		Skipper: func(c echo.Context) bool {
			if route.IsPublic(c.Request().URL.Path) {
				return true
			}
			return ValidAPIKey(keys.APIKey(), c.Request().Header.Get(HeaderAPIKey))
		},
		TokenLookup: "header:Authorization:Bearer ",
		ContextKey:  contextKeyToken,
		ParseTokenFunc: func(_ echo.Context, raw string) (interface{}, error) {
			return ParseToken(raw, keys.APIKey())
		},
		SuccessHandler: func(c echo.Context) {
			token, _ := c.Get(contextKeyToken).(*jwt.Token)
			c.Set(contextKeyCaller, SubjectFromToken(token))
		},
		ErrorHandler: func(echo.Context, error) error {
			return echo.NewHTTPError(http.StatusUnauthorized, "Unauthorized")
		},
	})
}

// Caller is the subject of the bearer token that admitted the request, or ""
// for requests admitted by the API key or a public route.
func Caller(c echo.Context) string {
	caller, _ := c.Get(contextKeyCaller).(string)
	return caller
}

// ValidAPIKey compares in constant time. An unset key never matches.
func ValidAPIKey(configured, presented string) bool {
	configured = strings.TrimSpace(configured)
	if configured == "" || presented == "" {
		return false
	}
	return subtle.ConstantTimeCompare([]byte(configured), []byte(presented)) == 1
}
