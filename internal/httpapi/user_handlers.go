package httpapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"

	"github.com/memolanes/memolanes-server/internal/apierr"
)

const githubProviderName = "github"

func (s *Server) handleGetUser(w http.ResponseWriter, r *http.Request) {
	user := userFromContext(r.Context())
	writeJSON(w, http.StatusOK, user)
}

// handleGitHubLoginStart implements GET /user/sso/github: redirects the
// browser to GitHub's consent screen with a random CSRF state value, the
// same state handling as the device-code flow but for a server-side web
// redirect instead of a polling loop.
func (s *Server) handleGitHubLoginStart(w http.ResponseWriter, r *http.Request) {
	state, err := randomState()
	if err != nil {
		writeError(w, s.logger, apierr.Internal(err))
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     "gh_oauth_state",
		Value:    state,
		Path:     "/",
		HttpOnly: true,
		Secure:   true,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(w, r, s.idp.AuthCodeURL(state), http.StatusFound)
}

// handleGitHubLoginCallback implements the GitHub OAuth2 redirect target:
// verifies the CSRF state cookie, exchanges the code for an identity,
// resolves or creates the local user, and returns a bearer token.
func (s *Server) handleGitHubLoginCallback(w http.ResponseWriter, r *http.Request) {
	cookie, err := r.Cookie("gh_oauth_state")
	if err != nil || r.URL.Query().Get("state") != cookie.Value {
		writeError(w, s.logger, apierr.New(apierr.Unauthorized, "oauth state mismatch"))
		return
	}

	code := r.URL.Query().Get("code")
	if code == "" {
		writeError(w, s.logger, apierr.New(apierr.Unauthorized, "missing oauth code"))
		return
	}

	identity, err := s.idp.Exchange(r.Context(), code)
	if err != nil {
		writeError(w, s.logger, apierr.New(apierr.Unauthorized, "oauth exchange failed: "+err.Error()))
		return
	}

	user, err := s.auth.ResolveOrCreateExternalUser(r.Context(), githubProviderName, identity.ExternalUID, identity.Email)
	if err != nil {
		writeError(w, s.logger, err)
		return
	}

	token, err := s.auth.IssueToken(user.ID)
	if err != nil {
		writeError(w, s.logger, apierr.Internal(err))
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func randomState() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	return hex.EncodeToString(buf), nil
}
