package core

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/sessions"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
)

const (
	sessionName     = "auth_session"
	sessionTokenKey = "token"

	requestIDHeader = "X-Request-ID"

	// gin context keys set by the middleware chain
	requestIDKey  = "request_id"
	authorizedKey = "authorized"
	subjectKey    = "subject"
)

// RequestContextMiddleware assigns a request ID, opens a trace span and writes
// one access log line per request.
func RequestContextMiddleware(logger *slog.Logger, metrics *Metrics) gin.HandlerFunc {
	tracer := otel.Tracer("authgate/core")
	return func(c *gin.Context) {
		requestID := c.GetHeader(requestIDHeader)
		if requestID == "" {
			requestID = uuid.NewString()
		}
		route := c.FullPath()

		ctx, span := tracer.Start(c.Request.Context(), c.Request.Method+" "+route)
		defer span.End()
		c.Request = c.Request.WithContext(ctx)

		c.Set(requestIDKey, requestID)
		c.Header(requestIDHeader, requestID)

		start := time.Now()
		c.Next()
		elapsed := time.Since(start)
		status := c.Writer.Status()

		span.SetAttributes(
			attribute.String("http.request.method", c.Request.Method),
			attribute.String("http.route", route),
			attribute.Int("http.response.status_code", status),
			attribute.String("request.id", requestID),
		)
		metrics.ObserveRequest(c.Request.Method, route, status, elapsed)
		logger.InfoContext(ctx, "request",
			"request_id", requestID,
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", status,
			"duration", elapsed,
		)
	}
}

// RecoveryMiddleware converts panics into a generic 500 and an error log entry.
func RecoveryMiddleware(logger Logger) gin.HandlerFunc {
	return gin.CustomRecoveryWithWriter(io.Discard, func(c *gin.Context, recovered any) {
		logger.Error("uncaught error",
			"panic", fmt.Sprint(recovered),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"stack", string(debug.Stack()),
		)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{"code": "INTERNAL_SERVER_ERROR", "message": "There was an uncaught error"},
		})
	})
}

// PublicRoutes is the allow-list of "METHOD /path" pairs that skip the authorization gate.
type PublicRoutes map[string]struct{}

// DefaultPublicRoutes returns health, metrics and the auth endpoints themselves.
func DefaultPublicRoutes() PublicRoutes {
	return NewPublicRoutes(
		"GET /healthz",
		"GET /metrics",
		"POST /api/v1/auth/register",
		"POST /api/v1/auth/login",
		"POST /api/v1/auth/validate",
		"POST /api/v1/auth/logout",
	)
}

func NewPublicRoutes(routes ...string) PublicRoutes {
	p := make(PublicRoutes, len(routes))
	for _, r := range routes {
		p[r] = struct{}{}
	}
	return p
}

// Allows reports whether method+path is public.
func (p PublicRoutes) Allows(method, path string) bool {
	_, ok := p[method+" "+path]
	return ok
}

// TokenValidator is the slice of the auth service the gate needs.
type TokenValidator interface {
	Validate(token string) (Identity, error)
}

// AuthorizationGate lets public routes through and requires a valid token
// (Authorization: Bearer header, else the session cookie) everywhere else.
// It sets the "authorized" flag and, for token holders, the "subject".
// Unauthorized requests are aborted before any handler runs.
func AuthorizationGate(validator TokenValidator, store sessions.Store, public PublicRoutes) gin.HandlerFunc {
	return func(c *gin.Context) {
		if public.Allows(c.Request.Method, c.Request.URL.Path) {
			c.Set(authorizedKey, true)
			c.Next()
			return
		}

		token, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			token = sessionToken(c, store)
		}
		if token == "" {
			c.Set(authorizedKey, false)
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization required")
			c.Abort()
			return
		}

		identity, err := validator.Validate(token)
		if err != nil {
			c.Set(authorizedKey, false)
			switch KindOf(err) {
			case KindExpiredToken:
				respondError(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired")
			default:
				respondError(c, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token")
			}
			c.Abort()
			return
		}

		c.Set(authorizedKey, true)
		c.Set(subjectKey, identity.Subject)
		c.Next()
	}
}

// Authorized reports the gate's decision for the current request.
func Authorized(c *gin.Context) bool {
	return c.GetBool(authorizedKey)
}

// SubjectFrom returns the token subject established by the gate.
func SubjectFrom(c *gin.Context) (string, bool) {
	subject := c.GetString(subjectKey)
	return subject, subject != ""
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}

	token := strings.TrimSpace(value[len(bearer):])
	if token == "" {
		return "", false
	}

	return token, true
}

// OriginPolicy is the set of browser origins allowed to call the API.
// Entries are compared as lowercase "scheme://host[:port]".
type OriginPolicy map[string]struct{}

// NewOriginPolicy normalizes origins; entries that are not absolute URLs are dropped.
func NewOriginPolicy(origins []string) OriginPolicy {
	p := OriginPolicy{}
	for _, o := range origins {
		if n, ok := normalizeOrigin(o); ok {
			p[n] = struct{}{}
		}
	}
	return p
}

// Allows reports whether a normalized origin may call the API.
func (p OriginPolicy) Allows(origin string) bool {
	_, ok := p[origin]
	return ok
}

// normalizeOrigin reduces an Origin or Referer value to "scheme://host[:port]".
func normalizeOrigin(raw string) (string, bool) {
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "", false
	}
	return strings.ToLower(u.Scheme) + "://" + strings.ToLower(u.Host), true
}

var (
	corsAllowHeaders = strings.Join([]string{"Content-Type", "Authorization", requestIDHeader}, ", ")
	corsAllowMethods = strings.Join([]string{http.MethodGet, http.MethodPost, http.MethodOptions}, ", ")
)

// OriginRefererMiddleware rejects browser requests whose Origin (or, lacking one,
// Referer) is outside cfg.AllowedOrigins, and answers CORS preflights.
// Requests carrying neither header pass through.
func OriginRefererMiddleware(cfg Config, logger *slog.Logger) gin.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	policy := NewOriginPolicy(cfg.AllowedOrigins)

	return func(c *gin.Context) {
		raw := c.GetHeader("Origin")
		source := "origin"
		if raw == "" {
			raw, source = c.GetHeader("Referer"), "referer"
		}
		if raw == "" {
			c.Next()
			return
		}

		origin, ok := normalizeOrigin(raw)
		if !ok || !policy.Allows(origin) {
			logger.WarnContext(c.Request.Context(), "origin rejected",
				"source", source,
				"origin", raw,
				"method", c.Request.Method,
				"path", c.Request.URL.Path,
			)
			respondError(c, http.StatusForbidden, "FORBIDDEN", "origin not allowed")
			c.Abort()
			return
		}

		h := c.Writer.Header()
		h.Set("Access-Control-Allow-Origin", origin)
		h.Add("Vary", "Origin")
		h.Set("Access-Control-Allow-Credentials", "true")
		if c.Request.Method == http.MethodOptions {
			h.Set("Access-Control-Allow-Headers", corsAllowHeaders)
			h.Set("Access-Control-Allow-Methods", corsAllowMethods)
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

// sessionToken returns the token stored in the session cookie, if any.
func sessionToken(c *gin.Context, store sessions.Store) string {
	if store == nil {
		return ""
	}
	session, err := store.Get(c.Request, sessionName)
	if err != nil {
		return ""
	}
	token, _ := session.Values[sessionTokenKey].(string)
	return token
}

// saveSessionToken stores token in the session cookie; maxAge <= 0 clears it.
func saveSessionToken(c *gin.Context, cfg Config, store sessions.Store, token string, maxAge time.Duration) error {
	session, err := store.Get(c.Request, sessionName)
	if err != nil && session == nil {
		return err
	}
	session.Values = map[interface{}]interface{}{}
	applySessionOptions(cfg, session)
	if maxAge > 0 {
		session.Values[sessionTokenKey] = token
		session.Options.MaxAge = int(maxAge.Seconds())
	} else {
		session.Options.MaxAge = -1 // must follow applySessionOptions to delete the cookie
	}
	return session.Save(c.Request, c.Writer)
}

func applySessionOptions(cfg Config, session *sessions.Session) {
	if session.Options == nil {
		session.Options = &sessions.Options{}
	}
	session.Options.Path = "/"
	session.Options.HttpOnly = true
	session.Options.Secure = cfg.CookieSecure
	session.Options.SameSite = sameSiteFromString(cfg.CookieSameSite)
}

func sameSiteFromString(v string) http.SameSite {
	switch strings.ToLower(v) {
	case "lax":
		return http.SameSiteLaxMode
	case "none":
		return http.SameSiteNoneMode
	default:
		return http.SameSiteStrictMode
	}
}

func notFoundHandler(logger Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		message := fmt.Sprintf("Route %s %s not found", c.Request.Method, c.Request.URL.Path)
		logger.Warn(message)
		respondError(c, http.StatusNotFound, "NOT_FOUND", message)
	}
}
