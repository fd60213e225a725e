// Package auth answers who is at the table: it validates sign-in tokens,
// tracks the current identity of a client and decides whether that identity
// may act for a seat.
package auth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"
)

var (
	// ErrInvalidToken indicates the token is definitively invalid.
	ErrInvalidToken = errors.New("auth: invalid token")

	// ErrUnavailable indicates the identity service is unreachable.
	// Callers choose whether to fail open or closed.
	ErrUnavailable = errors.New("auth: unavailable")

	// ErrAuthDenied means the identity may not act for the seat: it is
	// missing, belongs to someone else, or is banned.
	ErrAuthDenied = errors.New("auth: denied")
)

// Identity is a signed-in user. UID doubles as the player id at a table.
type Identity struct {
	UID  string `json:"uid"`
	Name string `json:"name"`
}

// Validator turns a token into an identity.
type Validator interface {
	// Validate returns (*Identity, nil) for a good token, ErrInvalidToken for a
	// rejected one and ErrUnavailable when the service cannot answer.
	Validate(ctx context.Context, token string) (*Identity, error)
}

const validateTimeout = 500 * time.Millisecond

// HTTPValidator validates tokens by POSTing them to an external endpoint.
type HTTPValidator struct {
	url         string
	client      *http.Client
	adminSecret string
}

// NewHTTPValidator creates a validator that calls url.
func NewHTTPValidator(url string, adminSecret string) *HTTPValidator {
	return &HTTPValidator{
		url:         url,
		adminSecret: adminSecret,
		client:      &http.Client{Timeout: validateTimeout},
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid bool   `json:"valid"`
	UID   string `json:"uid,omitempty"`
	Name  string `json:"name,omitempty"`
	Error string `json:"error,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, validateTimeout)
	defer cancel()

	body, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.adminSecret != "" {
		req.Header.Set("X-Admin-Secret", v.adminSecret)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, ErrInvalidToken
	default:
		return nil, fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var out validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	if !out.Valid || out.UID == "" {
		return nil, ErrInvalidToken
	}
	name := out.Name
	if name == "" {
		name = out.UID
	}
	return &Identity{UID: out.UID, Name: name}, nil
}

// NoopValidator trusts the token as the user id (dev mode). An empty token
// is anonymous and validates to nil.
type NoopValidator struct{}

// NewNoopValidator creates a validator that accepts every token.
func NewNoopValidator() *NoopValidator {
	return &NoopValidator{}
}

func (v *NoopValidator) Validate(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, nil
	}
	return &Identity{UID: token, Name: token}, nil
}
