package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"
)

func TestConstructors(t *testing.T) {
	cause := errors.New("dial tcp: connection refused")

	tests := []struct {
		name       string
		err        *AppError
		wantCode   string
		wantStatus int
	}{
		{"source unavailable", SourceUnavailable(cause), CodeSourceUnavailable, http.StatusBadGateway},
		{"already running", AlreadyRunning(), CodeAlreadyRunning, http.StatusConflict},
		{"bad request", BadRequest("window_hours must be positive"), CodeBadRequest, http.StatusBadRequest},
		{"bad request default message", BadRequest(""), CodeBadRequest, http.StatusBadRequest},
		{"unauthorized", Unauthorized(""), CodeUnauthorized, http.StatusUnauthorized},
		{"invalid token", InvalidToken("token expired"), CodeInvalidToken, http.StatusUnauthorized},
		{"internal", Internal(cause), CodeInternalError, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", tt.err.Code, tt.wantCode)
			}
			if tt.err.HTTPStatus() != tt.wantStatus {
				t.Errorf("status = %d, want %d", tt.err.HTTPStatus(), tt.wantStatus)
			}
			if tt.err.Message == "" {
				t.Error("constructor produced an empty message")
			}
		})
	}
}

func TestUnwrapAndIs(t *testing.T) {
	cause := errors.New("graph returned 503")
	ae := SourceUnavailable(cause)

	if !errors.Is(ae, cause) {
		t.Error("AppError does not unwrap to its cause")
	}
	if !Is(ae, CodeSourceUnavailable) {
		t.Error("Is() did not match the error code")
	}
	if Is(ae, CodeAlreadyRunning) {
		t.Error("Is() matched a different code")
	}
	if Is(cause, CodeSourceUnavailable) {
		t.Error("Is() matched a plain error")
	}
}

func TestFrom(t *testing.T) {
	t.Run("passes AppError through", func(t *testing.T) {
		ae := AlreadyRunning()
		if got := From(ae); got != ae {
			t.Error("From() did not return the original AppError")
		}
	})

	t.Run("unwraps fmt-wrapped AppError", func(t *testing.T) {
		wrapped := fmt.Errorf("run trigger: %w", AlreadyRunning())
		got := From(wrapped)
		if got.Code != CodeAlreadyRunning {
			t.Errorf("code = %s, want %s", got.Code, CodeAlreadyRunning)
		}
	})

	t.Run("wraps foreign errors as internal", func(t *testing.T) {
		cause := errors.New("boom")
		got := From(cause)
		if got.Code != CodeInternalError {
			t.Errorf("code = %s, want %s", got.Code, CodeInternalError)
		}
		if !errors.Is(got, cause) {
			t.Error("internal wrapper lost the cause")
		}
	})
}

func TestWithDetail(t *testing.T) {
	ae := BadRequest("invalid body").WithDetail("field", "max_count")
	if ae.Details["field"] != "max_count" {
		t.Errorf("detail = %v, want max_count", ae.Details["field"])
	}
}
