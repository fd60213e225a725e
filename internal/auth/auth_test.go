package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func tokenServer(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		switch req.Token {
		case "alice-token":
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, UID: "alice", Name: "Alice"})
		case "anon-token":
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, UID: "u-77"})
		default:
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: false})
		}
	}))
	t.Cleanup(server.Close)
	return server
}

func TestHTTPValidator_ValidToken(t *testing.T) {
	t.Parallel()
	validator := NewHTTPValidator(tokenServer(t).URL, "")

	identity, err := validator.Validate(context.Background(), "alice-token")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if identity.UID != "alice" || identity.Name != "Alice" {
		t.Errorf("unexpected identity %+v", identity)
	}

	identity, err = validator.Validate(context.Background(), "anon-token")
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if identity.Name != "u-77" {
		t.Errorf("name should default to uid, got %q", identity.Name)
	}
}

func TestHTTPValidator_InvalidToken(t *testing.T) {
	t.Parallel()
	validator := NewHTTPValidator(tokenServer(t).URL, "")
	if _, err := validator.Validate(context.Background(), "nope"); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken, got %v", err)
	}
}

func TestHTTPValidator_EmptyToken(t *testing.T) {
	t.Parallel()
	validator := NewHTTPValidator("http://localhost:9999", "")
	if _, err := validator.Validate(context.Background(), ""); !errors.Is(err, ErrInvalidToken) {
		t.Errorf("expected ErrInvalidToken for empty token, got %v", err)
	}
}

func TestHTTPValidator_StatusCodes(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name       string
		statusCode int
		wantErr    error
	}{
		{"unauthorized", http.StatusUnauthorized, ErrInvalidToken},
		{"forbidden", http.StatusForbidden, ErrInvalidToken},
		{"rate limited", http.StatusTooManyRequests, ErrUnavailable},
		{"server error", http.StatusInternalServerError, ErrUnavailable},
		{"unexpected", http.StatusTeapot, ErrUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.statusCode)
			}))
			defer server.Close()

			_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestHTTPValidator_Timeout(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(2 * time.Second)
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, UID: "late"})
	}))
	defer server.Close()

	_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable on timeout, got %v", err)
	}
}

func TestHTTPValidator_AdminSecret(t *testing.T) {
	t.Parallel()
	secrets := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		secrets <- r.Header.Get("X-Admin-Secret")
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, UID: "x"})
	}))
	defer server.Close()

	_, _ = NewHTTPValidator(server.URL, "my-secret").Validate(context.Background(), "token")
	if got := <-secrets; got != "my-secret" {
		t.Errorf("expected admin secret 'my-secret', got '%s'", got)
	}
}

func TestHTTPValidator_MalformedJSON(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for malformed JSON, got %v", err)
	}
}

func TestHTTPValidator_NetworkError(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPValidator("http://localhost:1", "").Validate(context.Background(), "token")
	if !errors.Is(err, ErrUnavailable) {
		t.Errorf("expected ErrUnavailable for network error, got %v", err)
	}
}

func TestNoopValidator(t *testing.T) {
	t.Parallel()
	validator := NewNoopValidator()
	identity, err := validator.Validate(context.Background(), "bob")
	if err != nil {
		t.Fatalf("noop validator should never error: %v", err)
	}
	if identity == nil || identity.UID != "bob" {
		t.Errorf("token should become the uid, got %+v", identity)
	}

	identity, err = validator.Validate(context.Background(), "")
	if err != nil || identity != nil {
		t.Errorf("empty token should be anonymous, got %+v %v", identity, err)
	}
}
