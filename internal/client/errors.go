package client

import (
	"errors"
	"fmt"
	"net/http"
)

// APIError is a non-2xx answer from an upstream HTTP API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s error %d: %s", e.Service, e.StatusCode, e.Body)
}

// Retryable reports whether the same request may succeed later.
func (e *APIError) Retryable() bool {
	return e.StatusCode >= http.StatusInternalServerError || e.StatusCode == http.StatusTooManyRequests
}

// IsRetryable treats transport failures and retryable API answers as
// temporary. Anything else is a permanent rejection.
func IsRetryable(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Retryable()
	}
	return err != nil
}
