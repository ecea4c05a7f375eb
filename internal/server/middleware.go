package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"podmill/internal/auth"
	"podmill/internal/logging"
	"podmill/internal/ratelimit"
	"podmill/internal/services"
)

// identityKey is the gin context key the authenticated caller is stored
// under.
const identityKey = "podmill.identity"

// Response header names.
const (
	headerRequestID     = "X-Request-ID"
	headerRateLimit     = "X-RateLimit-Limit"
	headerRateRemaining = "X-RateLimit-Remaining"
	headerRateReset     = "X-RateLimit-Reset"
	headerRetryAfter    = "Retry-After"
)

// identityFrom returns the caller identity stored by the auth middleware.
func identityFrom(c *gin.Context) (auth.Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return auth.Identity{}, false
	}
	ident, ok := v.(auth.Identity)
	return ident, ok
}

// RequestID assigns each request a correlation identifier, honoring one the
// caller already supplied, and echoes it on the response. The identifier
// rides the request context so downstream log lines carry it.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := strings.TrimSpace(c.GetHeader(headerRequestID))
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Header(headerRequestID, rid)
		c.Request = c.Request.WithContext(services.WithRequestID(c.Request.Context(), rid))
		c.Next()
	}
}

// Recovery converts handler panics into a 500 envelope instead of tearing
// down the connection.
func Recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logging.ErrorWithContext(logger, "handler panicked", "panic_recovered",
					logging.String("route", c.FullPath()),
					logging.Any("panic", r),
					logging.String("stack", string(debug.Stack())),
					logging.String(logging.FieldErrorHint, "file a bug with the stack trace"))
				fail(c, http.StatusInternalServerError, codeInternal, "internal error")
				c.Abort()
			}
		}()
		c.Next()
	}
}

// authenticate resolves the bearer token into a caller identity and stores
// it on the gin context and the request context.
func (s *Server) authenticate() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := bearerToken(c.GetHeader("Authorization"))
		if token == "" {
			fail(c, http.StatusUnauthorized, codeUnauthorized, "missing bearer token")
			c.Abort()
			return
		}
		ident, err := s.verifier.Verify(c.Request.Context(), token)
		if err != nil {
			fail(c, http.StatusUnauthorized, codeUnauthorized, "invalid token")
			c.Abort()
			return
		}
		c.Set(identityKey, ident)
		c.Request = c.Request.WithContext(services.WithUserID(c.Request.Context(), ident.UserID))
		c.Next()
	}
}

func bearerToken(header string) string {
	const prefix = "Bearer "
	if len(header) <= len(prefix) || !strings.EqualFold(header[:len(prefix)], prefix) {
		return ""
	}
	return strings.TrimSpace(header[len(prefix):])
}

// admit charges the caller's tier windows for the endpoint before the
// handler runs. Rejected POST requests are parked on the priority queue so
// they can be replayed once a window resets; the queue entry ID is returned
// in the rejection body.
func (s *Server) admit() gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil {
			c.Next()
			return
		}
		ident, ok := identityFrom(c)
		if !ok {
			c.Next()
			return
		}
		decision, err := s.limiter.Check(c.Request.Context(), ident.UserID, c.FullPath(), ident.Tier, 1)
		if err != nil {
			failErr(c, s.logger, err)
			c.Abort()
			return
		}
		rateHeaders(c, decision)
		if decision.Allowed {
			c.Next()
			return
		}

		retryAfter := int64(decision.RetryAfter / time.Second)
		c.Header(headerRetryAfter, strconv.FormatInt(retryAfter, 10))
		body := gin.H{
			"code": codeRateLimited,
			"message": fmt.Sprintf("rate limit exceeded for %s window, retry in %d seconds",
				decision.LimitType, retryAfter),
		}
		if c.Request.Method == http.MethodPost {
			queued, err := s.limiter.Enqueue(c.Request.Context(), ratelimit.QueuedRequest{
				User:     ident.UserID,
				Endpoint: c.FullPath(),
				Payload:  c.Request.Method + " " + c.Request.URL.Path,
				Priority: queuePriority(ident.Tier),
			})
			if err == nil {
				body["queued_request_id"] = queued
			}
		}
		c.JSON(http.StatusTooManyRequests, body)
		c.Abort()
	}
}

// rateHeaders reports the decisive window's usage on the response. Nothing
// is reported when the limiter failed open, since no counters were read.
func rateHeaders(c *gin.Context, decision ratelimit.Decision) {
	if decision.FailedOpen {
		return
	}
	window := decision.Violated()
	c.Header(headerRateLimit, strconv.FormatInt(window.Limit, 10))
	c.Header(headerRateRemaining, strconv.FormatInt(window.Remaining, 10))
	c.Header(headerRateReset, strconv.FormatInt(int64(window.ResetIn/time.Second), 10))
}

// queuePriority maps a subscription tier to its replay priority. Paying
// tiers drain first.
func queuePriority(tier string) int {
	switch tier {
	case ratelimit.TierAdmin:
		return ratelimit.HighestPriority
	case ratelimit.TierEnterprise:
		return 2
	case ratelimit.TierPremium:
		return 5
	default:
		return 8
	}
}

// observe records each handled request on the metrics collector and writes
// one access log line.
func (s *Server) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		elapsed := time.Since(start)
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		tier := ""
		if ident, ok := identityFrom(c); ok {
			tier = ident.Tier
		}
		status := c.Writer.Status()
		if s.collector != nil {
			s.collector.RecordRequest(c.Request.Method, route, status, elapsed, tier)
		}

		logger := logging.WithContext(c.Request.Context(), s.logger)
		args := []any{
			logging.String("method", c.Request.Method),
			logging.String("route", route),
			logging.Int("status", status),
			logging.Duration("elapsed", elapsed),
		}
		if status >= http.StatusInternalServerError {
			logger.Warn("request handled", args...)
			return
		}
		logger.Info("request handled", args...)
	}
}
