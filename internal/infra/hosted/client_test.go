package hosted

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/resumekit/credential-service/internal/core/domain"
	"github.com/resumekit/credential-service/internal/infra/config"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()

	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)

	client := NewClient(config.HostedSettings{
		BaseURL: server.URL,
		APIKey:  "test-api-key",
		Timeout: 2 * time.Second,
	}, zaptest.NewLogger(t))

	return client
}

func TestClientSignInInstallsSession(t *testing.T) {
	var gotAPIKey, gotGrantType string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/auth/v1/token", r.URL.Path)
		gotAPIKey = r.Header.Get("apikey")
		gotGrantType = r.URL.Query().Get("grant_type")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		require.Equal(t, "alice@example.com", body["email"])

		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token":  "token-abc",
			"refresh_token": "refresh-abc",
			"expires_in":    3600,
			"user": map[string]any{
				"email":         "alice@example.com",
				"user_metadata": map[string]any{"display_name": "Alice"},
				"app_metadata":  map[string]any{"role": "admin"},
			},
		})
	}))

	changes, cancel := client.Subscribe(1)
	defer cancel()

	session, err := client.SignIn(context.Background(), "alice@example.com", "sup3r-secret")
	require.NoError(t, err)
	assert.Equal(t, "test-api-key", gotAPIKey)
	assert.Equal(t, "password", gotGrantType)
	assert.Equal(t, "token-abc", session.AccessToken)
	assert.Equal(t, "alice@example.com", session.Email)
	assert.Equal(t, "Alice", session.DisplayName)
	assert.Equal(t, domain.RoleAdmin, session.Role)
	assert.False(t, session.ExpiresAt.IsZero())

	select {
	case change := <-changes:
		assert.Equal(t, domain.HostedUserSignedIn, change.Event)
		require.NotNil(t, change.Session)
		assert.Equal(t, "alice@example.com", change.Session.Email)
	case <-time.After(time.Second):
		t.Fatal("expected signed-in change on subscriber channel")
	}

	held, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, "token-abc", held.AccessToken)
}

func TestRoleFromMetadata(t *testing.T) {
	assert.Equal(t, domain.RoleAdmin, roleFromMetadata(hostedUser{
		AppMetadata: map[string]any{"role": "admin"},
	}))
	assert.Equal(t, domain.RoleAdmin, roleFromMetadata(hostedUser{
		AppMetadata: map[string]any{"role": " Admin "},
	}))
	assert.Equal(t, domain.RoleUser, roleFromMetadata(hostedUser{
		AppMetadata: map[string]any{"role": "superuser"},
	}))
	assert.Equal(t, domain.RoleUser, roleFromMetadata(hostedUser{
		AppMetadata: map[string]any{"role": 42},
	}))
	assert.Equal(t, domain.RoleUser, roleFromMetadata(hostedUser{}))
}

func TestClientSignInRejected(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_ = json.NewEncoder(w).Encode(map[string]any{
			"error_code": "invalid_credentials",
			"msg":        "Invalid login credentials",
		})
	}))

	_, err := client.SignIn(context.Background(), "alice@example.com", "wrong")
	require.Error(t, err)

	var hostedErr *domain.HostedError
	require.ErrorAs(t, err, &hostedErr)
	assert.Equal(t, http.StatusBadRequest, hostedErr.Status)
	assert.Equal(t, "invalid_credentials", hostedErr.Code)
	assert.Equal(t, "Invalid login credentials", hostedErr.Message)

	held, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestClientSignOutClearsSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "token-abc",
				"expires_in":   3600,
				"user":         map[string]any{"email": "alice@example.com"},
			})
		case "/auth/v1/logout":
			require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
			w.WriteHeader(http.StatusNoContent)
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := client.SignIn(context.Background(), "alice@example.com", "sup3r-secret")
	require.NoError(t, err)

	changes, cancel := client.Subscribe(1)
	defer cancel()

	require.NoError(t, client.SignOut(context.Background()))

	select {
	case change := <-changes:
		assert.Equal(t, domain.HostedUserSignedOut, change.Event)
	case <-time.After(time.Second):
		t.Fatal("expected signed-out change on subscriber channel")
	}

	held, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, held)

	// signing out with no session is a no-op
	require.NoError(t, client.SignOut(context.Background()))
}

func TestClientUpdatePasswordRequiresSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("no request expected")
	}))

	err := client.UpdatePassword(context.Background(), "new-password1")
	require.Error(t, err)
}

func TestClientUpdatePassword(t *testing.T) {
	var gotPassword string

	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			_ = json.NewEncoder(w).Encode(map[string]any{
				"access_token": "token-abc",
				"expires_in":   3600,
				"user":         map[string]any{"email": "alice@example.com"},
			})
		case "/auth/v1/user":
			require.Equal(t, http.MethodPut, r.Method)
			require.Equal(t, "Bearer token-abc", r.Header.Get("Authorization"))
			var body map[string]any
			require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
			gotPassword, _ = body["password"].(string)
			_ = json.NewEncoder(w).Encode(map[string]any{"email": "alice@example.com"})
		default:
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
	}))

	_, err := client.SignIn(context.Background(), "alice@example.com", "sup3r-secret")
	require.NoError(t, err)

	require.NoError(t, client.UpdatePassword(context.Background(), "new-password1"))
	assert.Equal(t, "new-password1", gotPassword)
}

func TestClientSendPasswordResetEmail(t *testing.T) {
	var gotEmail, gotRedirect string

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/recover", r.URL.Path)
		gotRedirect = r.URL.Query().Get("redirect_to")

		var body map[string]any
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		gotEmail, _ = body["email"].(string)

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewClient(config.HostedSettings{
		BaseURL:    server.URL,
		RedirectTo: "http://localhost:3000/reset-password",
	}, zaptest.NewLogger(t))

	require.NoError(t, client.SendPasswordResetEmail(context.Background(), "carol@example.com"))
	assert.Equal(t, "carol@example.com", gotEmail)
	assert.Equal(t, "http://localhost:3000/reset-password", gotRedirect)
}

func TestClientAdoptSession(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/auth/v1/user", r.URL.Path)
		require.Equal(t, "Bearer recovery-token", r.Header.Get("Authorization"))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"email":         "carol@example.com",
			"user_metadata": map[string]any{"display_name": "Carol"},
		})
	}))

	session, err := client.AdoptSession(context.Background(), "recovery-token")
	require.NoError(t, err)
	assert.Equal(t, "carol@example.com", session.Email)
	assert.Equal(t, "Carol", session.DisplayName)
	assert.Equal(t, domain.RoleUser, session.Role)

	held, err := client.GetSession(context.Background())
	require.NoError(t, err)
	require.NotNil(t, held)
	assert.Equal(t, "recovery-token", held.AccessToken)
}

func TestClientAdoptSessionRejected(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_ = json.NewEncoder(w).Encode(map[string]any{"msg": "invalid token"})
	}))

	_, err := client.AdoptSession(context.Background(), "stale-token")

	var hostedErr *domain.HostedError
	require.ErrorAs(t, err, &hostedErr)
	assert.Equal(t, http.StatusUnauthorized, hostedErr.Status)
}

func TestClientExpiredSessionDropped(t *testing.T) {
	client := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "token-abc",
			"expires_in":   60,
			"user":         map[string]any{"email": "alice@example.com"},
		})
	}))

	base := time.Date(2025, 3, 10, 12, 0, 0, 0, time.UTC)
	current := base
	client.WithClock(func() time.Time { return current })

	_, err := client.SignIn(context.Background(), "alice@example.com", "sup3r-secret")
	require.NoError(t, err)

	current = base.Add(2 * time.Minute)

	held, err := client.GetSession(context.Background())
	require.NoError(t, err)
	assert.Nil(t, held)
}

func TestClientNotConfigured(t *testing.T) {
	client := NewClient(config.HostedSettings{}, zaptest.NewLogger(t))

	_, err := client.SignIn(context.Background(), "alice@example.com", "pw")
	require.ErrorIs(t, err, ErrNotConfigured)

	var hostedErr *domain.HostedError
	require.False(t, errors.As(err, &hostedErr), "configuration failures must not surface as in-band rejections")
}
