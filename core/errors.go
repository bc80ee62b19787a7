package core

import (
	"fmt"
	"net/http"
)

// unauthorizedMessage is the fixed diagnostic attached to 401 responses.
const unauthorizedMessage = "Unauthorized: Access is denied due to invalid credentials"

// APIError reports a non-2xx status from the target service's own API, as
// opposed to a transport failure, which is passed through untouched. The raw
// response is retained for inspection.
type APIError struct {
	// StatusCode is the HTTP status of the failed call.
	StatusCode int

	// Message is a human-readable diagnostic. It is only populated for 401
	// responses; for everything else callers inspect the raw response.
	Message string

	// Response is the full response the error was derived from.
	Response *DetailedResponse
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return e.Message
	}
	return fmt.Sprintf("request failed with status %d %s", e.StatusCode, http.StatusText(e.StatusCode))
}

// newAPIError maps a failed response to an APIError, attaching the canned
// message for 401s.
func newAPIError(response *DetailedResponse) *APIError {
	message := ""
	if response.StatusCode == http.StatusUnauthorized {
		message = unauthorizedMessage
	}
	return &APIError{
		StatusCode: response.StatusCode,
		Message:    message,
		Response:   response,
	}
}
