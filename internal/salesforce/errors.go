package salesforce

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// Errors returned by the Tooling and flow clients.
var (
	ErrNotAuthenticated = errors.New("not authenticated: instance URL not available")
	ErrFlowNotFound     = errors.New("flow not found")
	ErrNoVersions       = errors.New("flow has no versions available")
	ErrInvalidVersion   = errors.New("invalid flow version")
	ErrAPIRestriction   = errors.New("API_RESTRICTION")
)

// RestrictionCode is the error code reported for flows that cannot be changed through the API.
const RestrictionCode = "API_RESTRICTION"

// APIError is a non-2xx response from the Tooling API.
type APIError struct {
	Status  int
	Code    string
	Message string
	Method  string
	URL     string
}

func (e *APIError) Error() string {
	msg := e.Message
	if msg == "" {
		msg = fmt.Sprintf("HTTP %d", e.Status)
	}
	if e.Code != "" && !strings.Contains(msg, e.Code) {
		msg = e.Code + ": " + msg
	}
	return "Tooling API request failed: " + msg
}

// StatusCode returns the HTTP status of the response.
func (e *APIError) StatusCode() int { return e.Status }

type apiErrorBody struct {
	Message          string `json:"message"`
	ErrorCode        string `json:"errorCode"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

// parseAPIError decodes either the array or the object error shape Salesforce returns.
func parseAPIError(status int, method, url string, body []byte) *APIError {
	apiErr := &APIError{Status: status, Method: method, URL: url}

	var list []apiErrorBody
	if err := json.Unmarshal(body, &list); err == nil && len(list) > 0 {
		apiErr.Code = list[0].ErrorCode
		apiErr.Message = list[0].Message
		return apiErr
	}

	var single apiErrorBody
	if err := json.Unmarshal(body, &single); err == nil {
		apiErr.Code = single.ErrorCode
		apiErr.Message = firstNonEmpty(single.Message, single.ErrorDescription, single.Error)
		if apiErr.Code == "" {
			apiErr.Code = single.Error
		}
		if apiErr.Message != "" {
			return apiErr
		}
	}

	apiErr.Message = strings.TrimSpace(string(body))
	return apiErr
}

// RestrictionError reports a flow that Salesforce refuses to change through the API,
// typically because it runs in system context.
// Action is the past participle of the refused change and defaults to "activated".
type RestrictionError struct {
	Flow   string
	Action string
	Err    error
}

func (e *RestrictionError) Error() string {
	action := e.Action
	if action == "" {
		action = "activated"
	}
	return fmt.Sprintf("Flow '%s' cannot be %s via API (system context restriction). Please use Salesforce UI.", e.Flow, action)
}

func (e *RestrictionError) Unwrap() []error { return []error{ErrAPIRestriction, e.Err} }

//nolint:gochecknoglobals // Fixed lookup table.
var restrictionMarkers = []string{
	"システムコンテキストで実行されるため",
	"system context",
	"UNKNOWN_EXCEPTION",
}

// IsSystemContextRestriction reports whether err indicates an API restriction on the flow.
func IsSystemContextRestriction(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, marker := range restrictionMarkers {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
