package airtable

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
)

// Common errors returned by the client.
var (
	// ErrRetryExhausted is returned when all retry attempts are exhausted.
	ErrRetryExhausted = errors.New("retry attempts exhausted")

	// ErrContextCancelled is returned when the context is cancelled during retry.
	ErrContextCancelled = errors.New("context cancelled")
)

// ErrorClass represents a classification of upstream errors.
type ErrorClass string

const (
	// ErrorClassClient represents 4xx client errors other than 429.
	ErrorClassClient ErrorClass = "client"

	// ErrorClassServer represents 5xx server errors.
	ErrorClassServer ErrorClass = "server"

	// ErrorClassRateLimit represents 429 rate limit errors.
	ErrorClassRateLimit ErrorClass = "rate_limit"

	// ErrorClassNetwork represents network/timeout errors.
	ErrorClassNetwork ErrorClass = "network"
)

// APIError is an error response from Airtable.
type APIError struct {
	StatusCode int
	ErrorClass ErrorClass

	// Type is Airtable's error type (e.g. "TABLE_NOT_FOUND"), when present
	Type    string
	Message string
	Err     error
}

// Error implements the error interface.
func (e *APIError) Error() string {
	msg := e.Message
	if e.Type != "" {
		msg = e.Type + ": " + msg
	}
	if e.Err != nil {
		return fmt.Sprintf("airtable %s error (status %d): %s: %v",
			e.ErrorClass, e.StatusCode, msg, e.Err)
	}
	return fmt.Sprintf("airtable %s error (status %d): %s",
		e.ErrorClass, e.StatusCode, msg)
}

// Unwrap implements error unwrapping for errors.Is/As.
func (e *APIError) Unwrap() error {
	return e.Err
}

// classifyStatus categorizes an HTTP status code.
func classifyStatus(status int) ErrorClass {
	switch {
	case status == http.StatusTooManyRequests:
		return ErrorClassRateLimit
	case status >= 400 && status < 500:
		return ErrorClassClient
	case status >= 500:
		return ErrorClassServer
	default:
		return ""
	}
}

// shouldRetry determines if an error should be retried based on its classification.
func shouldRetry(errorClass ErrorClass) bool {
	switch errorClass {
	case ErrorClassClient:
		// Bad table/view names and auth failures will not fix themselves
		return false
	case ErrorClassServer:
		return true
	case ErrorClassRateLimit:
		// Retried once the penalty window has passed
		return true
	case ErrorClassNetwork:
		return true
	default:
		return false
	}
}

// parseAPIError builds an APIError from an Airtable error body. Airtable uses
// three shapes: {"error":{"type","message"}}, {"error":"TYPE"} and
// {"errors":[{"error","message"}]}.
func parseAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{
		StatusCode: status,
		ErrorClass: classifyStatus(status),
		Message:    http.StatusText(status),
	}

	var payload struct {
		Error  json.RawMessage `json:"error"`
		Errors []struct {
			Error   string `json:"error"`
			Message string `json:"message"`
		} `json:"errors"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return apiErr
	}

	if len(payload.Error) > 0 {
		var detailed struct {
			Type    string `json:"type"`
			Message string `json:"message"`
		}
		var plain string
		switch {
		case json.Unmarshal(payload.Error, &detailed) == nil && detailed.Type != "":
			apiErr.Type = detailed.Type
			if detailed.Message != "" {
				apiErr.Message = detailed.Message
			}
		case json.Unmarshal(payload.Error, &plain) == nil && plain != "":
			apiErr.Type = plain
		}
		return apiErr
	}

	if len(payload.Errors) > 0 {
		apiErr.Type = payload.Errors[0].Error
		if payload.Errors[0].Message != "" {
			apiErr.Message = payload.Errors[0].Message
		}
	}
	return apiErr
}
