package auth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStaticValidator(t *testing.T) {
	t.Parallel()
	v := NewStaticValidator(map[string]Identity{
		"s3cret": {PlayerID: "alice", Name: "Alice", Balance: 1000},
	})

	id, err := v.Validate(context.Background(), "s3cret")
	require.NoError(t, err)
	assert.Equal(t, Identity{PlayerID: "alice", Name: "Alice", Balance: 1000}, *id)

	_, err = v.Validate(context.Background(), "guess")
	assert.ErrorIs(t, err, ErrInvalidToken)
	_, err = v.Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorValidToken(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req validateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req.Token == "valid-token" {
			_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, PlayerID: "player-123", Name: "Bob", Balance: 250})
			return
		}
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: false})
	}))
	defer server.Close()

	v := NewHTTPValidator(server.URL, "")
	id, err := v.Validate(context.Background(), "valid-token")
	require.NoError(t, err)
	assert.Equal(t, "player-123", id.PlayerID)
	assert.Equal(t, "Bob", id.Name)
	assert.Equal(t, 250, id.Balance)

	_, err = v.Validate(context.Background(), "other")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorRejectsValidWithoutPlayer(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true})
	}))
	defer server.Close()

	_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorEmptyToken(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPValidator("http://localhost:9999", "").Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestHTTPValidatorStatusCodes(t *testing.T) {
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
		{"service unavailable", http.StatusServiceUnavailable, ErrUnavailable},
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
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestHTTPValidatorTimeout(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(2 * time.Second):
		case <-r.Context().Done():
		}
	}))
	defer server.Close()

	_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPValidatorAdminSecret(t *testing.T) {
	t.Parallel()
	got := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got <- r.Header.Get("X-Admin-Secret")
		_ = json.NewEncoder(w).Encode(validateResponse{Valid: true, PlayerID: "p"})
	}))
	defer server.Close()

	_, err := NewHTTPValidator(server.URL, "my-secret").Validate(context.Background(), "token")
	require.NoError(t, err)
	assert.Equal(t, "my-secret", <-got)
}

func TestHTTPValidatorMalformedJSON(t *testing.T) {
	t.Parallel()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("not json"))
	}))
	defer server.Close()

	_, err := NewHTTPValidator(server.URL, "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestHTTPValidatorNetworkError(t *testing.T) {
	t.Parallel()
	_, err := NewHTTPValidator("http://localhost:1", "").Validate(context.Background(), "token")
	assert.ErrorIs(t, err, ErrUnavailable)
}

func TestNoopValidator(t *testing.T) {
	t.Parallel()
	id, err := NewNoopValidator().Validate(context.Background(), "dev-player")
	require.NoError(t, err)
	assert.Equal(t, "dev-player", id.PlayerID)

	_, err = NewNoopValidator().Validate(context.Background(), "")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
