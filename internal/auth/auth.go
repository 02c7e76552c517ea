// Package auth maps connection tokens to player identities.
package auth

import (
	"bytes"
	"context"
	"crypto/subtle"
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

	// ErrUnavailable indicates the auth service could not be asked. Callers
	// decide whether to fail open or closed.
	ErrUnavailable = errors.New("auth: unavailable")
)

// Identity is the player behind a token. PlayerID keys the balance ledger.
type Identity struct {
	PlayerID string `json:"player_id"`
	Name     string `json:"name"`
	// Balance is the starting balance for a player the ledger has not seen.
	Balance int `json:"balance,omitempty"`
}

// Validator validates tokens.
type Validator interface {
	// Validate returns the identity for token, ErrInvalidToken when the token
	// is rejected or ErrUnavailable when the answer is unknown.
	Validate(ctx context.Context, token string) (*Identity, error)
}

// StaticValidator checks tokens against a fixed list, typically from config.
type StaticValidator struct {
	byToken map[string]Identity
}

// NewStaticValidator creates a validator from token to identity.
func NewStaticValidator(tokens map[string]Identity) *StaticValidator {
	byToken := make(map[string]Identity, len(tokens))
	for tok, id := range tokens {
		byToken[tok] = id
	}
	return &StaticValidator{byToken: byToken}
}

func (v *StaticValidator) Validate(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	for tok, id := range v.byToken {
		if subtle.ConstantTimeCompare([]byte(tok), []byte(token)) == 1 {
			return &id, nil
		}
	}
	return nil, ErrInvalidToken
}

// HTTPValidator validates tokens by calling an external service.
type HTTPValidator struct {
	url         string
	client      *http.Client
	adminSecret string
}

// NewHTTPValidator creates a validator that POSTs tokens to url.
func NewHTTPValidator(url string, adminSecret string) *HTTPValidator {
	return &HTTPValidator{
		url:         url,
		adminSecret: adminSecret,
		client:      &http.Client{Timeout: 500 * time.Millisecond},
	}
}

type validateRequest struct {
	Token string `json:"token"`
}

type validateResponse struct {
	Valid    bool   `json:"valid"`
	PlayerID string `json:"player_id,omitempty"`
	Name     string `json:"name,omitempty"`
	Balance  int    `json:"balance,omitempty"`
	Error    string `json:"error,omitempty"`
}

func (v *HTTPValidator) Validate(ctx context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}

	ctx, cancel := context.WithTimeout(ctx, 500*time.Millisecond)
	defer cancel()

	reqBody, err := json.Marshal(validateRequest{Token: token})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.url, bytes.NewReader(reqBody))
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

	var authResp validateResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&authResp); err != nil {
		return nil, fmt.Errorf("%w: decode error: %v", ErrUnavailable, err)
	}
	if !authResp.Valid || authResp.PlayerID == "" {
		return nil, ErrInvalidToken
	}

	return &Identity{
		PlayerID: authResp.PlayerID,
		Name:     authResp.Name,
		Balance:  authResp.Balance,
	}, nil
}

// NoopValidator trusts the token as the player ID (dev mode).
type NoopValidator struct{}

// NewNoopValidator creates a validator that accepts every non-empty token.
func NewNoopValidator() *NoopValidator {
	return &NoopValidator{}
}

func (v *NoopValidator) Validate(_ context.Context, token string) (*Identity, error) {
	if token == "" {
		return nil, ErrInvalidToken
	}
	return &Identity{PlayerID: token, Name: token}, nil
}
