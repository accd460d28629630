// Package config resolves the server's configuration: env-var driven, with
// an optional local TOML file for single-user bootstrap/dev setups. Split
// into the same Holder/env.go/bootstrap.go trio as a TOML-file-first sync
// client's config package, repointed to an env-var-first server.
package config

// Config is the fully resolved server configuration (spec §6's env var
// list, plus defaulted quota/size limits).
type Config struct {
	// DatabaseURL is the SQLite DSN or file path for the main database.
	DatabaseURL string
	// DataBaseDir is the root directory for content-addressed file
	// storage (internal/filestore).
	DataBaseDir string
	// GitHubClientID/GitHubClientSecret are the OAuth2 app credentials
	// for the internal/idp GitHub provider.
	GitHubClientID     string
	GitHubClientSecret string
	// GitHubRedirectURL is the callback URL registered with GitHub.
	GitHubRedirectURL string
	// JWTSecret signs internal/auth bearer tokens.
	JWTSecret string
	// CORSAllowedOrigins is the set of origins the HTTP layer echoes
	// back in Access-Control-Allow-Origin.
	CORSAllowedOrigins []string
	// SingleUserNoAuthMode enables the SINGLE_USER_NO_AUTH_MODE
	// convenience flag (spec §7). Off by default.
	SingleUserNoAuthMode bool
	// QuotaPerUserBytes is the per-user content-addressed storage quota
	// (internal/filestore, internal/snapshot).
	QuotaPerUserBytes int64
	// ListenAddr is the HTTP server's bind address.
	ListenAddr string
}

// defaultQuotaPerUserBytes is the fallback per-user storage quota when
// QUOTA_PER_USER_BYTES is unset: 5 GiB.
const defaultQuotaPerUserBytes = 5 * 1024 * 1024 * 1024

// defaultListenAddr is the fallback HTTP bind address.
const defaultListenAddr = ":8080"
