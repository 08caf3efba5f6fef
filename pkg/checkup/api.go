// Package checkup holds the wire format of the password checkup service
// and an HTTP client for it.
package checkup

import (
	"fmt"
	"net/http"

	"github.com/kylerisse/breachcheck/pkg/check"
)

const (
	// HeaderAccount names the signed-in account for account-scope requests.
	HeaderAccount = "X-Account"

	// HeaderRequestID carries the per-request correlation ID.
	HeaderRequestID = "X-Request-ID"

	// APIPrefix is the path prefix of every checkup endpoint.
	APIPrefix = "/api/v1/scopes/"
)

// CheckupPath returns the path that runs a checkup for scope.
func CheckupPath(scope check.Scope) string {
	return APIPrefix + scope.String() + "/checkup"
}

// BreachedPath returns the path of the last known breached count.
func BreachedPath(scope check.Scope) string {
	return APIPrefix + scope.String() + "/breached"
}

// CountPath returns the path of the saved credential count.
func CountPath(scope check.Scope) string {
	return APIPrefix + scope.String() + "/passwords/count"
}

// BreachedResponse is returned by the checkup and breached endpoints.
type BreachedResponse struct {
	Breached int `json:"breached"`
}

// CountResponse is returned by the count endpoint.
type CountResponse struct {
	Total int `json:"total"`
}

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
}

// APIError is a non-2xx response from the checkup service.
type APIError struct {
	StatusCode int
	Message    string
	RequestID  string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = http.StatusText(e.StatusCode)
	}
	if e.RequestID != "" {
		return fmt.Sprintf("checkup: %d %s (request %s)", e.StatusCode, msg, e.RequestID)
	}
	return fmt.Sprintf("checkup: %d %s", e.StatusCode, msg)
}
