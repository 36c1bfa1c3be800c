package bitbucketapi

import (
	"encoding/json"
	"fmt"
	"strings"
)

// APIError is the generic failure for a non-2xx Bitbucket response.
// It carries the original status code and a best-effort message extracted
// from the response body.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("Bitbucket API error (%d): %s", e.StatusCode, e.Message)
}

// AuthenticationError is returned for 401 responses.
type AuthenticationError struct {
	APIError
}

// PermissionError is returned for 403 responses.
type PermissionError struct {
	APIError
}

// NotFoundError is returned for 404 responses.
type NotFoundError struct {
	APIError
}

// extractMessage pulls a human message out of a Bitbucket error body.
// Bodies come in three shapes: {errors: [{message}]}, {message}, or free
// text. Unparseable bodies degrade to a truncated raw excerpt.
func extractMessage(body []byte) string {
	var parsed struct {
		Errors []struct {
			Message string `json:"message"`
		} `json:"errors"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &parsed); err == nil {
		if len(parsed.Errors) > 0 {
			messages := make([]string, 0, len(parsed.Errors))
			for _, e := range parsed.Errors {
				messages = append(messages, e.Message)
			}
			return strings.Join(messages, "; ")
		}
		if parsed.Message != "" {
			return parsed.Message
		}
	}
	return truncate(string(body), 500)
}

// classifyError maps a non-2xx status plus body to a typed error.
func classifyError(statusCode int, body []byte) error {
	message := extractMessage(body)
	switch statusCode {
	case 401:
		return &AuthenticationError{APIError{
			StatusCode: statusCode,
			Message:    "Authentication failed — check your Personal Access Token",
		}}
	case 403:
		return &PermissionError{APIError{
			StatusCode: statusCode,
			Message:    "Permission denied: " + message,
		}}
	case 404:
		return &NotFoundError{APIError{
			StatusCode: statusCode,
			Message:    "Not found: " + message,
		}}
	}
	return &APIError{StatusCode: statusCode, Message: message}
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
