package common

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
)

func Ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func Fail(c *gin.Context, httpStatus int, code int, msg string) {
	c.JSON(httpStatus, gin.H{
		"code":    code,
		"message": msg,
		"data":    nil,
	})
}

// FailErr maps a sentinel error onto an HTTP status and app code. Anything
// unrecognized becomes a generic 500 so internal details never leak.
func FailErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, ErrUnauthorized):
		Fail(c, http.StatusUnauthorized, 40101, "unauthorized")
	case errors.Is(err, ErrForbidden):
		Fail(c, http.StatusForbidden, 40301, "forbidden")
	case errors.Is(err, ErrNotFound):
		Fail(c, http.StatusNotFound, 40401, "not found")
	case errors.Is(err, ErrInvalidRequest):
		Fail(c, http.StatusBadRequest, 10002, "invalid request")
	case errors.Is(err, ErrRateLimited):
		Fail(c, http.StatusTooManyRequests, 42901, "rate limit exceeded")
	default:
		Fail(c, http.StatusInternalServerError, 50001, "internal error")
	}
}
