package ai

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// ErrorClass represents the category of a provider-boundary error for retry
// decisions.
type ErrorClass int

const (
	// Examples: network timeout, rate limit, temporary service unavailability.
	ErrorClassTransient ErrorClass = iota

	// Examples: auth failure, malformed request, permission denied.
	ErrorClassPermanent
)

// String returns the string representation of ErrorClass.
func (e ErrorClass) String() string {
	switch e {
	case ErrorClassTransient:
		return "transient"
	case ErrorClassPermanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// ClassifiedError wraps a provider error with its classification.
type ClassifiedError struct {
	Original error
	Class    ErrorClass
}

// Error returns a formatted error message.
func (c *ClassifiedError) Error() string {
	return fmt.Sprintf("%s: %v", c.Class, c.Original)
}

// Unwrap returns the original error for errors.Is/As.
func (c *ClassifiedError) Unwrap() error {
	return c.Original
}

// ClassifyError analyzes a provider error and determines its class.
func ClassifyError(err error) *ClassifiedError {
	if err == nil {
		return nil
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.HTTPStatusCode == 429 || apiErr.HTTPStatusCode >= 500:
			return &ClassifiedError{Original: err, Class: ErrorClassTransient}
		default:
			return &ClassifiedError{Original: err, Class: ErrorClassPermanent}
		}
	}

	if isNetworkError(err) || isTimeoutError(err) {
		return &ClassifiedError{Original: err, Class: ErrorClassTransient}
	}

	// Default to permanent for unknown errors (fail safe).
	return &ClassifiedError{Original: err, Class: ErrorClassPermanent}
}

// IsTransient reports whether the error should be retried.
func IsTransient(err error) bool {
	classified := ClassifyError(err)
	return classified != nil && classified.Class == ErrorClassTransient
}

// isNetworkError checks if an error is network-related (transient).
func isNetworkError(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}

	errMsg := strings.ToLower(err.Error())
	networkPatterns := []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"network is unreachable",
		"no such host",
		"temporary failure",
		"dial tcp",
		"eof",
	}
	for _, pattern := range networkPatterns {
		if strings.Contains(errMsg, pattern) {
			return true
		}
	}
	return false
}

// isTimeoutError checks if an error is timeout-related (transient).
func isTimeoutError(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "timeout") || strings.Contains(errMsg, "deadline exceeded")
}
