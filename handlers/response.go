package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/chenguojun06-star/fz66666-sub008/logger"
	"github.com/chenguojun06-star/fz66666-sub008/services"
)

const (
	codeValidation      = "validation_error"
	codeNotFound        = "not_found"
	codeAlreadyFeedback = "already_feedback"
	codeUnavailable     = "unavailable"
	codeInternal        = "internal_error"
)

func abortJSON(c *gin.Context, status int, code, message string) {
	c.AbortWithStatusJSON(status, gin.H{"error": message, "code": code})
}

// respondError maps service errors onto HTTP. Store outages and anything
// unrecognised are a 500 whose detail stays in the log.
func respondError(c *gin.Context, log *logger.Logger, err error) {
	switch {
	case services.IsValidation(err):
		abortJSON(c, http.StatusBadRequest, codeValidation, err.Error())
	case services.IsNotFound(err):
		abortJSON(c, http.StatusNotFound, codeNotFound, err.Error())
	case services.IsAlreadyFeedback(err):
		abortJSON(c, http.StatusConflict, codeAlreadyFeedback, err.Error())
	case services.IsUpstreamUnavailable(err):
		log.Error("upstream unavailable", "path", c.FullPath(), "error", err)
		abortJSON(c, http.StatusInternalServerError, codeUnavailable, "service temporarily unavailable")
	default:
		log.Error("request failed", "path", c.FullPath(), "error", err)
		abortJSON(c, http.StatusInternalServerError, codeInternal, "internal error")
	}
}

func bindJSON(c *gin.Context, dest interface{}) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		abortJSON(c, http.StatusBadRequest, codeValidation, err.Error())
		return false
	}
	return true
}
