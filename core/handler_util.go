package core

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// respondError sends unified error payload {"error": {"code", "message"}}.
func respondError(c *gin.Context, status int, code, message string) {
	c.JSON(status, gin.H{"error": gin.H{"code": code, "message": message}})
}

// respondAuthError maps a classified failure onto the error envelope.
// Unknown usernames and wrong passwords share one response so callers cannot
// enumerate accounts; infrastructure faults never leak their cause.
func respondAuthError(c *gin.Context, logger Logger, err error) {
	switch KindOf(err) {
	case KindValidation:
		respondError(c, http.StatusBadRequest, "VALIDATION_ERROR", PublicMessage(err))
	case KindConflict:
		respondError(c, http.StatusConflict, "CONFLICT", PublicMessage(err))
	case KindNotFound, KindUnauthorized:
		respondError(c, http.StatusUnauthorized, "INVALID_CREDENTIALS", "invalid username or password")
	case KindExpiredToken:
		respondError(c, http.StatusUnauthorized, "TOKEN_EXPIRED", "token expired")
	case KindInvalidToken:
		respondError(c, http.StatusUnauthorized, "TOKEN_INVALID", "invalid token")
	default:
		logger.Error("request failed", "path", c.Request.URL.Path, "kind", string(KindOf(err)), "error", err)
		respondError(c, http.StatusInternalServerError, "INTERNAL_SERVER_ERROR", "internal server error")
	}
}
