package services

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrValidation marks malformed or unsupported caller input. Never retried.
	ErrValidation = errors.New("validation error")
	// ErrConfiguration marks missing credentials or misconfigured services.
	ErrConfiguration = errors.New("configuration error")
	// ErrNotFound marks lookups against unknown resources.
	ErrNotFound = errors.New("not found")
	// ErrTimeout marks operations that exceeded their deadline.
	ErrTimeout = errors.New("timeout")
	// ErrTransient marks failures expected to resolve on retry.
	ErrTransient = errors.New("transient failure")
	// ErrUnavailable marks a dependency that is temporarily refusing work,
	// typically an open circuit breaker.
	ErrUnavailable = errors.New("service unavailable")
	// ErrRateLimited marks requests rejected by admission control.
	ErrRateLimited = errors.New("rate limited")
)

// Wrap builds an error message that includes stage context while tagging it
// with the provided marker for later classification. The marker should be one
// of the exported sentinel errors above.
func Wrap(marker error, stage, operation, message string, err error) error {
	detail := buildDetail(stage, operation, message)
	if marker == nil {
		marker = ErrTransient
	}
	if err != nil {
		return fmt.Errorf("%w: %s: %w", marker, detail, err)
	}
	return fmt.Errorf("%w: %s", marker, detail)
}

// Retryable reports whether an error is worth retrying inside the resilience
// executor. Validation, configuration, and not-found failures will not
// self-resolve; everything tagged transient or timeout will be retried.
func Retryable(err error) bool {
	switch {
	case err == nil:
		return false
	case errors.Is(err, ErrValidation),
		errors.Is(err, ErrConfiguration),
		errors.Is(err, ErrNotFound),
		errors.Is(err, ErrRateLimited):
		return false
	case errors.Is(err, ErrTransient), errors.Is(err, ErrTimeout):
		return true
	default:
		return false
	}
}

// HTTPStatus maps a classified error to the response status the HTTP layer
// should emit.
func HTTPStatus(err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, ErrConfiguration), errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable
	case errors.Is(err, ErrTimeout):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func buildDetail(stage, operation, message string) string {
	parts := make([]string, 0, 3)
	if stage = strings.TrimSpace(stage); stage != "" {
		parts = append(parts, stage)
	}
	if operation = strings.TrimSpace(operation); operation != "" {
		parts = append(parts, operation)
	}
	if message = strings.TrimSpace(message); message != "" {
		parts = append(parts, message)
	}
	if len(parts) == 0 {
		return "service failure"
	}
	return strings.Join(parts, ": ")
}
