package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// AdminListingOnly hides the credential listing routes unless they are enabled
// in the configuration; the listing is a debug/ops affordance.
func AdminListingOnly(cfg Config) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !cfg.AdminListingEnabled {
			respondError(c, http.StatusNotFound, "NOT_FOUND", "credential listing is disabled")
			c.Abort()
			return
		}
		if !Authorized(c) {
			respondError(c, http.StatusUnauthorized, "UNAUTHORIZED", "authorization required")
			c.Abort()
			return
		}
		c.Next()
	}
}
