package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type staticKey string

func (k staticKey) APIKey() string { return string(k) }

func newGatedEcho(key string) (*echo.Echo, *int) {
	e := echo.New()
	hits := new(int)
	e.Use(Middleware(staticKey(key)))
	ok := func(c echo.Context) error {
		*hits++
		return c.JSON(http.StatusOK, map[string]bool{"ok": true})
	}
	e.POST("/webhook", ok)
	e.POST("/telegram/webhook", ok)
	e.POST("/github/webhook", ok)
	e.GET("/ping", ok)
	return e, hits
}

func TestMiddlewareAPIKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		configured string
		header     string
		want       int
	}{
		{name: "valid key", configured: "k3y", header: "k3y", want: http.StatusOK},
		{name: "wrong key", configured: "k3y", header: "nope", want: http.StatusUnauthorized},
		{name: "missing key", configured: "k3y", header: "", want: http.StatusUnauthorized},
		{name: "no key configured", configured: "", header: "", want: http.StatusUnauthorized},
		{name: "no key configured but header sent", configured: "", header: "anything", want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, hits := newGatedEcho(tt.configured)
			req := httptest.NewRequest(http.MethodGet, "/ping", nil)
			if tt.header != "" {
				req.Header.Set(HeaderAPIKey, tt.header)
			}
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
			if tt.want != http.StatusOK {
				assert.Equal(t, 0, *hits, "handler must not run")
			}
		})
	}
}

func TestMiddlewarePublicRoutes(t *testing.T) {
	t.Parallel()

	e, hits := newGatedEcho("k3y")
	for _, path := range []string{"/telegram/webhook", "/github/webhook"} {
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, path, nil))
		assert.Equal(t, http.StatusOK, rec.Code, path)
	}
	assert.Equal(t, 2, *hits)
}

func TestMiddlewareBearerToken(t *testing.T) {
	t.Parallel()

	token, _, err := GenerateToken("", "k3y", time.Hour)
	require.NoError(t, err)
	forged, _, err := GenerateToken("", "other", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{name: "valid", header: "Bearer " + token, want: http.StatusOK},
		{name: "wrong signer", header: "Bearer " + forged, want: http.StatusUnauthorized},
		{name: "garbage", header: "Bearer not-a-jwt", want: http.StatusUnauthorized},
		{name: "wrong scheme", header: "Basic " + token, want: http.StatusUnauthorized},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			e, _ := newGatedEcho("k3y")
			req := httptest.NewRequest(http.MethodPost, "/webhook", nil)
			req.Header.Set(echo.HeaderAuthorization, tt.header)
			rec := httptest.NewRecorder()
			e.ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestMiddlewareRecordsCaller(t *testing.T) {
	t.Parallel()

	token, _, err := GenerateToken("ci-bot", "k3y", time.Hour)
	require.NoError(t, err)

	e := echo.New()
	e.Use(Middleware(staticKey("k3y")))
	var seen []string
	e.GET("/ping", func(c echo.Context) error {
		seen = append(seen, Caller(c))
		return c.NoContent(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+token)
	e.ServeHTTP(httptest.NewRecorder(), req)

	req = httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(HeaderAPIKey, "k3y")
	e.ServeHTTP(httptest.NewRecorder(), req)

	assert.Equal(t, []string{"ci-bot", ""}, seen)
}

func TestParseTokenRequiresExpiry(t *testing.T) {
	t.Parallel()

	noExp := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "x"})
	raw, err := noExp.SignedString([]byte("k3y"))
	require.NoError(t, err)
	_, err = ParseToken(raw, "k3y")
	assert.ErrorIs(t, err, ErrInvalidToken)

	expired := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"exp": time.Now().Add(-time.Minute).Unix()})
	raw, err = expired.SignedString([]byte("k3y"))
	require.NoError(t, err)
	_, err = ParseToken(raw, "k3y")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestGenerateToken(t *testing.T) {
	t.Parallel()

	raw, expiresAt, err := GenerateToken("ci-bot", "k3y", 5*time.Minute)
	require.NoError(t, err)
	token, err := ParseToken(raw, "k3y")
	require.NoError(t, err)
	assert.Equal(t, "ci-bot", SubjectFromToken(token))
	assert.WithinDuration(t, time.Now().Add(5*time.Minute), expiresAt, 5*time.Second)

	_, _, err = GenerateToken("x", "", time.Minute)
	assert.Error(t, err)
	_, _, err = GenerateToken("x", "k3y", 0)
	assert.Error(t, err)
}

func TestValidAPIKey(t *testing.T) {
	t.Parallel()

	assert.True(t, ValidAPIKey("abc", "abc"))
	assert.False(t, ValidAPIKey("abc", "abd"))
	assert.False(t, ValidAPIKey("abc", "ab"))
	assert.False(t, ValidAPIKey("", ""))
}
