package core

import (
	"encoding/json"
	"fmt"
	"net/http"
)

// DetailedResponse is the result of a successful outbound call: the response
// headers, the integer status code and, depending on what was requested,
// either the parsed JSON body or the raw bytes. A 204 response or a HEAD
// request yields a response with both Result and RawResult absent.
type DetailedResponse struct {
	// StatusCode is the HTTP status code.
	StatusCode int

	// Headers contains the response headers.
	Headers http.Header

	// Result holds the parsed JSON body when a JSON response was requested
	// and the body parsed cleanly.
	Result interface{}

	// RawResult holds the raw body bytes when JSON was not requested, and on
	// error responses.
	RawResult []byte
}

// GetStatusCode returns the HTTP status code.
func (r *DetailedResponse) GetStatusCode() int {
	return r.StatusCode
}

// GetHeaders returns the response headers.
func (r *DetailedResponse) GetHeaders() http.Header {
	return r.Headers
}

// GetResult returns the parsed response body, or nil when none is present.
func (r *DetailedResponse) GetResult() interface{} {
	return r.Result
}

// GetRawResult returns the raw response body, or nil when none is present.
func (r *DetailedResponse) GetRawResult() []byte {
	return r.RawResult
}

func (r *DetailedResponse) String() string {
	output, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return fmt.Sprintf("response: status=%d", r.StatusCode)
	}
	return string(output)
}
