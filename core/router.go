package core

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/sessions"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	defaultPerPage = 20
	maxPerPage     = 100
)

// RouterDeps bundles the collaborators the HTTP layer dispatches to.
type RouterDeps struct {
	Logger   *slog.Logger
	Auth     Authenticator
	Sessions sessions.Store
	Registry *prometheus.Registry
	Metrics  *Metrics
	TokenTTL time.Duration // cookie lifetime for issued tokens

	Status    ProvisionReporter
	StartedAt time.Time
}

// NewRouter constructs the Gin engine with routes wired.
func NewRouter(cfg Config, deps RouterDeps) *gin.Engine {
	r := gin.New()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	cookieTTL := deps.TokenTTL
	if cookieTTL <= 0 {
		cookieTTL = DefaultTokenTTL
	}
	if deps.StartedAt.IsZero() {
		deps.StartedAt = time.Now()
	}

	// Global pipeline: request context -> recovery -> origin/CORS -> authorization gate
	r.Use(RequestContextMiddleware(logger, deps.Metrics))
	r.Use(RecoveryMiddleware(logger))
	r.Use(OriginRefererMiddleware(cfg, logger))
	r.Use(AuthorizationGate(deps.Auth, deps.Sessions, DefaultPublicRoutes()))
	r.NoRoute(notFoundHandler(logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	if deps.Registry != nil {
		r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(deps.Registry, promhttp.HandlerOpts{})))
	}

	api := r.Group("/api/v1")
	{
		api.POST("/auth/register", func(c *gin.Context) {
			var req credentialsRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			session, err := deps.Auth.Register(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				respondAuthError(c, logger, err)
				return
			}
			if err := saveSessionToken(c, cfg, deps.Sessions, session.Token, cookieTTL); err != nil {
				logger.Warn("failed to set session cookie", "error", err)
			}

			c.JSON(http.StatusCreated, session)
		})

		api.POST("/auth/login", func(c *gin.Context) {
			var req credentialsRequest
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			session, err := deps.Auth.Login(c.Request.Context(), req.Username, req.Password)
			if err != nil {
				respondAuthError(c, logger, err)
				return
			}
			if err := saveSessionToken(c, cfg, deps.Sessions, session.Token, cookieTTL); err != nil {
				logger.Warn("failed to set session cookie", "error", err)
			}

			c.JSON(http.StatusOK, session)
		})

		api.POST("/auth/validate", func(c *gin.Context) {
			var req struct {
				Token string `json:"token"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", "invalid json")
				return
			}

			identity, err := deps.Auth.Validate(req.Token)
			if err != nil {
				respondAuthError(c, logger, err)
				return
			}
			c.JSON(http.StatusOK, identity)
		})

		api.POST("/auth/logout", func(c *gin.Context) {
			if err := saveSessionToken(c, cfg, deps.Sessions, "", 0); err != nil {
				respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "failed to clear session")
				return
			}
			c.Status(http.StatusNoContent)
		})

		api.GET("/users/me", func(c *gin.Context) {
			subject, ok := SubjectFrom(c)
			if !ok {
				respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization required")
				return
			}
			c.JSON(http.StatusOK, gin.H{"username": subject})
		})

		admin := api.Group("/admin")
		admin.Use(AdminListingOnly(cfg))

		admin.GET("/credentials", func(c *gin.Context) {
			page, perPage, err := parsePagination(c.Query("page"), c.Query("per_page"))
			if err != nil {
				respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", err.Error())
				return
			}
			records, err := deps.Auth.ListCredentials(c.Request.Context())
			if err != nil {
				respondAuthError(c, logger, err)
				return
			}

			total := len(records)
			start := min((page-1)*perPage, total)
			end := min(start+perPage, total)
			items := make([]CredentialListItem, 0, end-start)
			for _, rec := range records[start:end] {
				items = append(items, CredentialListItem{Username: rec.Username, CreatedAt: rec.CreatedAt})
			}

			c.JSON(http.StatusOK, gin.H{
				"items":       items,
				"page":        page,
				"per_page":    perPage,
				"total_items": total,
				"total_pages": calcTotalPages(total, perPage),
			})
		})

		admin.GET("/status", func(c *gin.Context) {
			c.JSON(http.StatusOK, CollectSystemStatus(cfg, deps.Status, deps.StartedAt))
		})
	}

	return r
}

type credentialsRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func parsePagination(pageStr, perPageStr string) (int, int, error) {
	page := 1
	perPage := defaultPerPage
	if strings.TrimSpace(pageStr) != "" {
		p, err := strconv.Atoi(pageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("page must be a positive integer")
		}
		page = p
	}
	if strings.TrimSpace(perPageStr) != "" {
		p, err := strconv.Atoi(perPageStr)
		if err != nil || p <= 0 {
			return 0, 0, errors.New("per_page must be a positive integer")
		}
		if p > maxPerPage {
			p = maxPerPage
		}
		perPage = p
	}
	return page, perPage, nil
}

func calcTotalPages(total, perPage int) int {
	if perPage <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}
