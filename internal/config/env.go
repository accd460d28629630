package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Environment variable names, exactly as spec §6 lists them plus the
// server's own size/quota knobs.
const (
	EnvDatabaseURL        = "DATABASE_URL"
	EnvDataBaseDir        = "DATA_BASE_DIR"
	EnvGitHubClientID     = "GITHUB_CLIENT_ID"
	EnvGitHubClientSecret = "GITHUB_CLIENT_SECRET"
	EnvGitHubRedirectURL  = "GITHUB_REDIRECT_URL"
	EnvJWTSecret          = "JWT_SECRET"
	EnvCORSAllowedOrigins = "CORS_ALLOWED_ORIGINS"
	EnvSingleUserNoAuth   = "SINGLE_USER_NO_AUTH_MODE"
	EnvQuotaPerUserBytes  = "QUOTA_PER_USER_BYTES"
	EnvListenAddr         = "LISTEN_ADDR"
)

// requiredEnvVars lists the environment variables Validate enforces —
// separate from FromEnv so a bootstrap file gets a chance to fill gaps
// before the check runs.
var requiredEnvVars = []string{EnvDatabaseURL, EnvDataBaseDir, EnvJWTSecret}

// FromEnv resolves a Config from the process environment, applying
// defaults for anything optional. Unlike a standalone CLI tool, required
// fields are not checked here — call Validate after overlaying an
// optional bootstrap file, so env vars and the file together can satisfy
// the requirement.
func FromEnv() (*Config, error) {
	cfg := &Config{
		DatabaseURL:          os.Getenv(EnvDatabaseURL),
		DataBaseDir:          os.Getenv(EnvDataBaseDir),
		GitHubClientID:       os.Getenv(EnvGitHubClientID),
		GitHubClientSecret:   os.Getenv(EnvGitHubClientSecret),
		GitHubRedirectURL:    os.Getenv(EnvGitHubRedirectURL),
		JWTSecret:            os.Getenv(EnvJWTSecret),
		CORSAllowedOrigins:   splitCSV(os.Getenv(EnvCORSAllowedOrigins)),
		SingleUserNoAuthMode: parseBool(os.Getenv(EnvSingleUserNoAuth)),
		QuotaPerUserBytes:    defaultQuotaPerUserBytes,
		ListenAddr:           defaultListenAddr,
	}

	if raw := os.Getenv(EnvQuotaPerUserBytes); raw != "" {
		quota, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", EnvQuotaPerUserBytes, err)
		}

		cfg.QuotaPerUserBytes = quota
	}

	if raw := os.Getenv(EnvListenAddr); raw != "" {
		cfg.ListenAddr = raw
	}

	return cfg, nil
}

// Validate checks that every field spec §6 treats as mandatory is
// populated, naming every missing one at once.
func Validate(cfg *Config) error {
	var missing []string

	fields := map[string]string{
		EnvDatabaseURL: cfg.DatabaseURL,
		EnvDataBaseDir: cfg.DataBaseDir,
		EnvJWTSecret:   cfg.JWTSecret,
	}

	for _, name := range requiredEnvVars {
		if fields[name] == "" {
			missing = append(missing, name)
		}
	}

	if len(missing) > 0 {
		return fmt.Errorf("config: missing required configuration: %s", strings.Join(missing, ", "))
	}

	return nil
}

func splitCSV(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))

	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}

	return out
}

func parseBool(raw string) bool {
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}

	return v
}
