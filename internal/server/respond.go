package server

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"podmill/internal/logging"
	"podmill/internal/services"
)

// Application error codes carried in failure envelopes. The leading digits
// mirror the HTTP status the code rides on; the trailing digits distinguish
// causes within it.
const (
	codeInvalidRequest   = 10001
	codeMissingFile      = 10002
	codeUnauthorized     = 40101
	codeForbidden        = 40301
	codeRouteNotFound    = 40400
	codeNotFound         = 40401
	codeMethodNotAllowed = 40500
	codeConflict         = 40901
	codePayloadTooLarge  = 41301
	codeRateLimited      = 42901
	codeInternal         = 50001
	codeUnavailable      = 50301
	codeVendorTimeout    = 50401
)

// fail writes the failure envelope. Handlers return immediately after
// calling it; middleware additionally aborts the chain.
func fail(c *gin.Context, status, code int, message string) {
	c.JSON(status, gin.H{
		"code":    code,
		"message": message,
	})
}

// failErr classifies err through the service error markers and writes the
// matching failure envelope. Internal errors are masked with a generic
// message; everything else surfaces the classified error text.
func failErr(c *gin.Context, logger *slog.Logger, err error) {
	status := services.HTTPStatus(err)
	message := err.Error()
	if status >= http.StatusInternalServerError {
		logging.WithContext(c.Request.Context(), logger).Warn("request failed",
			logging.String("route", c.FullPath()),
			logging.Int("status", status),
			logging.Error(err))
	}
	if status == http.StatusInternalServerError {
		message = "internal error"
	}
	fail(c, status, statusCode(status), message)
}

// statusCode picks the default application code for an HTTP status.
func statusCode(status int) int {
	switch status {
	case http.StatusBadRequest:
		return codeInvalidRequest
	case http.StatusUnauthorized:
		return codeUnauthorized
	case http.StatusForbidden:
		return codeForbidden
	case http.StatusNotFound:
		return codeNotFound
	case http.StatusConflict:
		return codeConflict
	case http.StatusRequestEntityTooLarge:
		return codePayloadTooLarge
	case http.StatusTooManyRequests:
		return codeRateLimited
	case http.StatusServiceUnavailable:
		return codeUnavailable
	case http.StatusGatewayTimeout:
		return codeVendorTimeout
	default:
		return codeInternal
	}
}
