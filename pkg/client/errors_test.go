package client

import (
	"context"
	"errors"
	"fmt"
	"io"
	"testing"
	"time"
)

func TestCatalogError_Error(t *testing.T) {
	tests := []struct {
		name string
		err  *CatalogError
		want string
	}{
		{
			name: "without wrapped error",
			err:  &CatalogError{StatusCode: 503, ErrorClass: ErrorClassServer, Message: "503 Service Unavailable"},
			want: "catalog server error (status 503): 503 Service Unavailable",
		},
		{
			name: "with wrapped error",
			err:  &CatalogError{ErrorClass: ErrorClassNetwork, Message: "transport failure", Err: io.ErrUnexpectedEOF},
			want: "catalog network error (status 0): transport failure: unexpected EOF",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.err.Error(); got != tt.want {
				t.Errorf("Error() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestCatalogError_Unwrap(t *testing.T) {
	err := fmt.Errorf("fetch: %w", &CatalogError{ErrorClass: ErrorClassNetwork, Err: io.EOF})

	if !errors.Is(err, io.EOF) {
		t.Error("errors.Is should reach the wrapped cause")
	}
	var ce *CatalogError
	if !errors.As(err, &ce) {
		t.Fatal("errors.As should find CatalogError")
	}
	if ce.ErrorClass != ErrorClassNetwork {
		t.Errorf("ErrorClass = %s", ce.ErrorClass)
	}
}

func TestClassifyStatus(t *testing.T) {
	tests := []struct {
		status int
		want   ErrorClass
	}{
		{200, ""},
		{304, ""},
		{400, ErrorClassClient},
		{401, ErrorClassClient},
		{404, ErrorClassClient},
		{429, ErrorClassRateLimit},
		{500, ErrorClassServer},
		{503, ErrorClassServer},
		{504, ErrorClassServer},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("status_%d", tt.status), func(t *testing.T) {
			if got := classifyStatus(tt.status); got != tt.want {
				t.Errorf("classifyStatus(%d) = %q, want %q", tt.status, got, tt.want)
			}
		})
	}
}

func TestClassOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want ErrorClass
	}{
		{"nil", nil, ""},
		{"catalog error", &CatalogError{ErrorClass: ErrorClassRateLimit}, ErrorClassRateLimit},
		{"wrapped catalog error", fmt.Errorf("x: %w", &CatalogError{ErrorClass: ErrorClassClient}), ErrorClassClient},
		{"plain error", errors.New("boom"), ErrorClassNetwork},
		{"cancelled", context.Canceled, ""},
		{"deadline", fmt.Errorf("x: %w", context.DeadlineExceeded), ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassOf(tt.err); got != tt.want {
				t.Errorf("ClassOf() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShouldRetry(t *testing.T) {
	tests := []struct {
		class ErrorClass
		want  bool
	}{
		{ErrorClassClient, false},
		{ErrorClassServer, true},
		{ErrorClassRateLimit, true},
		{ErrorClassNetwork, true},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.class), func(t *testing.T) {
			if got := shouldRetry(tt.class); got != tt.want {
				t.Errorf("shouldRetry(%q) = %v, want %v", tt.class, got, tt.want)
			}
		})
	}
}

func TestCatalogError_RetryAfterField(t *testing.T) {
	err := &CatalogError{StatusCode: 429, ErrorClass: ErrorClassRateLimit, RetryAfter: 2 * time.Second}
	if err.RetryAfter != 2*time.Second {
		t.Errorf("RetryAfter = %v", err.RetryAfter)
	}
}
