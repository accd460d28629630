package idp_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"golang.org/x/oauth2"

	"github.com/memolanes/memolanes-server/internal/idp"
)

func TestAuthCodeURLIncludesState(t *testing.T) {
	p := idp.NewGitHubProvider("client-id", "client-secret", "http://localhost/callback", slog.Default())

	url := p.AuthCodeURL("xyz-state")
	require.Contains(t, url, "client_id=client-id")
	require.Contains(t, url, "state=xyz-state")
}

func TestExchangeResolvesIdentity(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_test",
			"token_type":   "bearer",
		})
	})

	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		require.True(t, strings.HasPrefix(r.Header.Get("Authorization"), "Bearer"))
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    int64(4242),
			"login": "octocat",
			"email": "octocat@example.com",
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	p := idp.NewGitHubProviderWithEndpoint(
		"client-id", "client-secret", "http://localhost/callback",
		oauth2.Endpoint{AuthURL: server.URL + "/login/oauth/authorize", TokenURL: server.URL + "/login/oauth/access_token"},
		server.URL,
		slog.Default(),
	)

	identity, err := p.Exchange(context.Background(), "fake-code")
	require.NoError(t, err)
	require.Equal(t, "4242", identity.ExternalUID)
	require.Equal(t, "octocat", identity.Login)
	require.Equal(t, "octocat@example.com", identity.Email)
}

func TestExchangeFallsBackToEmailList(t *testing.T) {
	mux := http.NewServeMux()

	mux.HandleFunc("/login/oauth/access_token", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "gho_test",
			"token_type":   "bearer",
		})
	})

	mux.HandleFunc("/user", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"id":    int64(99),
			"login": "private-email-user",
			"email": "",
		})
	})

	mux.HandleFunc("/user/emails", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode([]map[string]any{
			{"email": "secondary@example.com", "primary": false, "verified": true},
			{"email": "primary@example.com", "primary": true, "verified": true},
		})
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	p := idp.NewGitHubProviderWithEndpoint(
		"client-id", "client-secret", "http://localhost/callback",
		oauth2.Endpoint{AuthURL: server.URL + "/login/oauth/authorize", TokenURL: server.URL + "/login/oauth/access_token"},
		server.URL,
		slog.Default(),
	)

	identity, err := p.Exchange(context.Background(), "fake-code")
	require.NoError(t, err)
	require.Equal(t, "primary@example.com", identity.Email)
}
