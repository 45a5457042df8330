package core

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubValidator accepts exactly one token.
type stubValidator struct {
	token   string
	subject string
	err     error
}

func (s stubValidator) Validate(token string) (Identity, error) {
	if token == s.token {
		return Identity{Subject: s.subject}, nil
	}
	if s.err != nil {
		return Identity{}, s.err
	}
	return Identity{}, newError(KindInvalidToken, "invalid token", nil)
}

func TestAuthorizationGate_ShortCircuits(t *testing.T) {
	gin.SetMode(gin.TestMode)

	validator := stubValidator{token: "good", subject: "alice", err: newError(KindExpiredToken, "token expired", nil)}
	handlerRan := false

	r := gin.New()
	r.Use(AuthorizationGate(validator, nil, NewPublicRoutes("GET /open")))
	r.GET("/open", func(c *gin.Context) {
		assert.True(t, Authorized(c))
		_, ok := SubjectFrom(c)
		assert.False(t, ok)
		c.Status(http.StatusOK)
	})
	r.GET("/closed", func(c *gin.Context) {
		handlerRan = true
		subject, ok := SubjectFrom(c)
		require.True(t, ok)
		c.String(http.StatusOK, subject)
	})

	serve := func(path, auth string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	assert.Equal(t, http.StatusOK, serve("/open", "").Code)

	rec := serve("/closed", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, handlerRan)

	rec = serve("/closed", "Bearer stale")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, rec.Body.String(), "TOKEN_EXPIRED")
	assert.False(t, handlerRan)

	rec = serve("/closed", "Basic Zm9vOmJhcg==")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, handlerRan)

	rec = serve("/closed", "Bearer good")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "alice", rec.Body.String())
	assert.True(t, handlerRan)
}

func TestBearerToken(t *testing.T) {
	token, ok := bearerToken("Bearer abc")
	assert.True(t, ok)
	assert.Equal(t, "abc", token)

	for _, v := range []string{"", "Bearer ", "Bearer    ", "bearer abc", "Token abc"} {
		_, ok := bearerToken(v)
		assert.False(t, ok, v)
	}
}

func TestDefaultPublicRoutes(t *testing.T) {
	p := DefaultPublicRoutes()

	assert.True(t, p.Allows(http.MethodGet, "/healthz"))
	assert.True(t, p.Allows(http.MethodPost, "/api/v1/auth/login"))
	assert.False(t, p.Allows(http.MethodGet, "/api/v1/auth/login"))
	assert.False(t, p.Allows(http.MethodGet, "/api/v1/users/me"))
}

func TestSameSiteFromString(t *testing.T) {
	assert.Equal(t, http.SameSiteLaxMode, sameSiteFromString("Lax"))
	assert.Equal(t, http.SameSiteNoneMode, sameSiteFromString("none"))
	assert.Equal(t, http.SameSiteStrictMode, sameSiteFromString(""))
}

func TestNormalizeOrigin(t *testing.T) {
	cases := []struct {
		raw  string
		want string
		ok   bool
	}{
		{"https://app.example.com", "https://app.example.com", true},
		{"https://App.Example.com/", "https://app.example.com", true},
		{"HTTPS://app.example.com:8443/login?next=/", "https://app.example.com:8443", true},
		{"null", "", false},
		{"app.example.com", "", false},
		{"", "", false},
	}
	for _, tc := range cases {
		got, ok := normalizeOrigin(tc.raw)
		assert.Equal(t, tc.ok, ok, tc.raw)
		assert.Equal(t, tc.want, got, tc.raw)
	}
}

func TestOriginRefererMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	var logs bytes.Buffer
	cfg := Default()
	cfg.AllowedOrigins = []string{"https://App.example.com/", "not an origin"}

	r := gin.New()
	r.Use(OriginRefererMiddleware(cfg, slog.New(slog.NewTextHandler(&logs, nil))))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	do := func(method, header, value string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(method, "/ping", nil)
		if header != "" {
			req.Header.Set(header, value)
		}
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	t.Run("no origin passes", func(t *testing.T) {
		rec := do(http.MethodGet, "", "")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("configured origin matches after normalization", func(t *testing.T) {
		rec := do(http.MethodGet, "Origin", "https://app.example.com")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
		assert.Empty(t, rec.Header().Get("Access-Control-Allow-Methods"))
	})

	t.Run("referer path is reduced to its origin", func(t *testing.T) {
		rec := do(http.MethodGet, "Referer", "https://app.example.com/settings/profile?tab=1")
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "https://app.example.com", rec.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("preflight lists request id header", func(t *testing.T) {
		rec := do(http.MethodOptions, "Origin", "https://app.example.com")
		assert.Equal(t, http.StatusNoContent, rec.Code)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Headers"), requestIDHeader)
		assert.Contains(t, rec.Header().Get("Access-Control-Allow-Methods"), http.MethodPost)
	})

	t.Run("rejected origin is logged", func(t *testing.T) {
		logs.Reset()
		rec := do(http.MethodGet, "Origin", "https://evil.example.com")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, logs.String(), "origin rejected")
		assert.Contains(t, logs.String(), "https://evil.example.com")
		assert.Contains(t, logs.String(), "source=origin")
	})

	t.Run("opaque origin rejected", func(t *testing.T) {
		logs.Reset()
		rec := do(http.MethodGet, "Origin", "null")
		assert.Equal(t, http.StatusForbidden, rec.Code)
		assert.Contains(t, logs.String(), "origin rejected")
	})

	t.Run("empty allow list rejects browsers", func(t *testing.T) {
		require.Empty(t, NewOriginPolicy(nil))
		assert.False(t, NewOriginPolicy(nil).Allows("https://app.example.com"))
	})
}
