package airtable

import (
	"errors"
	"net/http"
	"strings"
	"testing"
)

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		name       string
		errorClass ErrorClass
		expected   bool
	}{
		{name: "client error should not retry", errorClass: ErrorClassClient, expected: false},
		{name: "server error should retry", errorClass: ErrorClassServer, expected: true},
		{name: "rate limit should retry", errorClass: ErrorClassRateLimit, expected: true},
		{name: "network error should retry", errorClass: ErrorClassNetwork, expected: true},
		{name: "empty error class should not retry", errorClass: "", expected: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if result := shouldRetry(tt.errorClass); result != tt.expected {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.errorClass, result, tt.expected)
			}
		})
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{status: http.StatusTooManyRequests, want: ErrorClassRateLimit},
		{status: http.StatusNotFound, want: ErrorClassClient},
		{status: http.StatusUnauthorized, want: ErrorClassClient},
		{status: http.StatusUnprocessableEntity, want: ErrorClassClient},
		{status: http.StatusInternalServerError, want: ErrorClassServer},
		{status: http.StatusBadGateway, want: ErrorClassServer},
		{status: http.StatusOK, want: ""},
	}

	for _, tt := range tests {
		if got := classifyStatus(tt.status); got != tt.want {
			t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
		}
	}
}

func TestParseAPIError(t *testing.T) {
	tests := []struct {
		name        string
		status      int
		body        string
		wantType    string
		wantMessage string
	}{
		{
			name:        "detailed error object",
			status:      404,
			body:        `{"error":{"type":"TABLE_NOT_FOUND","message":"Could not find table Users"}}`,
			wantType:    "TABLE_NOT_FOUND",
			wantMessage: "Could not find table Users",
		},
		{
			name:        "plain error string",
			status:      404,
			body:        `{"error":"NOT_FOUND"}`,
			wantType:    "NOT_FOUND",
			wantMessage: "Not Found",
		},
		{
			name:        "errors array",
			status:      429,
			body:        `{"errors":[{"error":"RATE_LIMIT_REACHED","message":"Rate limit exceeded"}]}`,
			wantType:    "RATE_LIMIT_REACHED",
			wantMessage: "Rate limit exceeded",
		},
		{
			name:        "non-json body",
			status:      502,
			body:        `<html>Bad Gateway</html>`,
			wantMessage: "Bad Gateway",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			apiErr := parseAPIError(tt.status, []byte(tt.body))
			if apiErr.StatusCode != tt.status {
				t.Errorf("StatusCode = %d, want %d", apiErr.StatusCode, tt.status)
			}
			if apiErr.Type != tt.wantType {
				t.Errorf("Type = %q, want %q", apiErr.Type, tt.wantType)
			}
			if apiErr.Message != tt.wantMessage {
				t.Errorf("Message = %q, want %q", apiErr.Message, tt.wantMessage)
			}
			if apiErr.ErrorClass != classifyStatus(tt.status) {
				t.Errorf("ErrorClass = %q", apiErr.ErrorClass)
			}
		})
	}
}

func TestAPIError_Error(t *testing.T) {
	tests := []struct {
		name     string
		apiError *APIError
		expected string
	}{
		{
			name: "with type",
			apiError: &APIError{
				StatusCode: 404,
				ErrorClass: ErrorClassClient,
				Type:       "VIEW_NAME_NOT_FOUND",
				Message:    "Could not find view",
			},
			expected: "airtable client error (status 404): VIEW_NAME_NOT_FOUND: Could not find view",
		},
		{
			name: "with wrapped error",
			apiError: &APIError{
				StatusCode: 500,
				ErrorClass: ErrorClassServer,
				Message:    "Internal Server Error",
				Err:        errors.New("connection reset"),
			},
			expected: "airtable server error (status 500): Internal Server Error: connection reset",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.apiError.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestAPIError_Unwrap(t *testing.T) {
	inner := errors.New("inner")
	apiErr := &APIError{StatusCode: 500, ErrorClass: ErrorClassServer, Err: inner}

	if !errors.Is(apiErr, inner) {
		t.Error("errors.Is should find the wrapped error")
	}

	var target *APIError
	wrapped := errors.Join(errors.New("outer"), apiErr)
	if !errors.As(wrapped, &target) {
		t.Error("errors.As should find APIError")
	}
	if !strings.Contains(wrapped.Error(), "status 500") {
		t.Errorf("unexpected message %q", wrapped.Error())
	}
}
