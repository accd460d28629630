// Package idp adapts external identity providers to the narrow interface
// internal/auth needs to mint a session for a user: an external uid plus
// whatever profile fields are worth keeping. GitHub is the only provider
// spec §6's `/user/sso/github` names; the package is shaped so a second
// provider is one more Config plus one more Identity mapping away.
package idp

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
)

// Identity is the subset of an external provider's profile that
// internal/auth needs to create or look up a local user.
type Identity struct {
	// ExternalUID is the provider's stable numeric/string id for the
	// account — never the email, which can change.
	ExternalUID string
	Login       string
	Email       string
}

// Provider is the identity-flow interface spec §6's `/user/sso/github`
// endpoints drive: build the redirect URL, then exchange the callback's
// code for a verified Identity. Defined at the consumer per "accept
// interfaces, return structs" — internal/httpapi depends on this
// interface, not on *GitHubProvider directly.
type Provider interface {
	// AuthCodeURL returns the URL to redirect the browser to, binding
	// state for CSRF verification on the callback leg.
	AuthCodeURL(state string) string
	// Exchange trades an authorization code from the callback for a
	// verified Identity.
	Exchange(ctx context.Context, code string) (Identity, error)
}

// GitHubProvider implements Provider against GitHub's OAuth2 web
// application flow. Unlike a CLI's device-code and localhost-PKCE
// flows, the redirect URL is fixed and server-side — there is no
// per-login callback server to stand up.
type GitHubProvider struct {
	cfg     *oauth2.Config
	apiBase string
	logger  *slog.Logger
}

// apiBaseURL is the GitHub REST API's production base URL.
const apiBaseURL = "https://api.github.com"

// NewGitHubProvider builds a Provider for the given OAuth2 application
// credentials and redirect URL, sourced from the GITHUB_CLIENT_ID /
// GITHUB_CLIENT_SECRET environment variables.
func NewGitHubProvider(clientID, clientSecret, redirectURL string, logger *slog.Logger) *GitHubProvider {
	return NewGitHubProviderWithEndpoint(clientID, clientSecret, redirectURL, github.Endpoint, apiBaseURL, logger)
}

// NewGitHubProviderWithEndpoint builds a Provider against an arbitrary
// OAuth2 endpoint and API base URL, so tests can point it at a fake
// server instead of github.com.
func NewGitHubProviderWithEndpoint(clientID, clientSecret, redirectURL string, endpoint oauth2.Endpoint, apiBase string, logger *slog.Logger) *GitHubProvider {
	return &GitHubProvider{
		cfg: &oauth2.Config{
			ClientID:     clientID,
			ClientSecret: clientSecret,
			RedirectURL:  redirectURL,
			Scopes:       []string{"read:user", "user:email"},
			Endpoint:     endpoint,
		},
		apiBase: apiBase,
		logger:  logger,
	}
}

// AuthCodeURL implements Provider.
func (p *GitHubProvider) AuthCodeURL(state string) string {
	return p.cfg.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange implements Provider: trades the code for a token, then calls
// the GitHub user API to resolve the account's id, login, and primary
// email.
func (p *GitHubProvider) Exchange(ctx context.Context, code string) (Identity, error) {
	tok, err := p.cfg.Exchange(ctx, code)
	if err != nil {
		return Identity{}, fmt.Errorf("idp: exchanging code: %w", err)
	}

	p.logger.Info("github oauth2 exchange succeeded")

	client := p.cfg.Client(ctx, tok)

	profile, err := fetchGitHubUser(ctx, client, p.apiBase)
	if err != nil {
		return Identity{}, err
	}

	email := profile.Email
	if email == "" {
		email, err = fetchGitHubPrimaryEmail(ctx, client, p.apiBase)
		if err != nil {
			p.logger.Warn("github user has no public email and email list lookup failed", slog.String("error", err.Error()))
		}
	}

	return Identity{
		ExternalUID: fmt.Sprintf("%d", profile.ID),
		Login:       profile.Login,
		Email:       email,
	}, nil
}

type githubUser struct {
	ID    int64  `json:"id"`
	Login string `json:"login"`
	Email string `json:"email"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHubUser(ctx context.Context, client *http.Client, apiBase string) (githubUser, error) {
	var user githubUser
	if err := getJSON(ctx, client, apiBase+"/user", &user); err != nil {
		return githubUser{}, fmt.Errorf("idp: fetching github user: %w", err)
	}

	return user, nil
}

func fetchGitHubPrimaryEmail(ctx context.Context, client *http.Client, apiBase string) (string, error) {
	var emails []githubEmail
	if err := getJSON(ctx, client, apiBase+"/user/emails", &emails); err != nil {
		return "", fmt.Errorf("idp: fetching github emails: %w", err)
	}

	for _, e := range emails {
		if e.Primary && e.Verified {
			return e.Email, nil
		}
	}

	return "", nil
}

func getJSON(ctx context.Context, client *http.Client, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}

	req.Header.Set("Accept", "application/vnd.github+json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("github api %s returned %d: %s", url, resp.StatusCode, body)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}
