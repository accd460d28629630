package config

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
)

// BootstrapFile is the optional local TOML file a single-user/dev
// deployment can use to fill in values that would otherwise have to be
// passed as environment variables. A much smaller surface than a
// per-drive TOML config file — this server has no per-drive sections to
// decode, so a single flat struct suffices.
type BootstrapFile struct {
	DatabaseURL          string `toml:"database_url"`
	DataBaseDir          string `toml:"data_base_dir"`
	GitHubClientID       string `toml:"github_client_id"`
	GitHubClientSecret   string `toml:"github_client_secret"`
	GitHubRedirectURL    string `toml:"github_redirect_url"`
	JWTSecret            string `toml:"jwt_secret"`
	SingleUserNoAuthMode bool   `toml:"single_user_no_auth_mode"`
	ListenAddr           string `toml:"listen_addr"`
}

// LoadBootstrapFile reads a BootstrapFile from path. Missing file is not
// an error — bootstrap files are opt-in.
func LoadBootstrapFile(path string) (*BootstrapFile, error) {
	var bf BootstrapFile

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil, nil //nolint:nilnil // absence is the common case, not a failure
	}

	if _, err := toml.DecodeFile(path, &bf); err != nil {
		return nil, fmt.Errorf("config: parsing bootstrap file %s: %w", path, err)
	}

	return &bf, nil
}

// ApplyBootstrapFile overlays non-empty BootstrapFile fields onto cfg,
// env vars taking precedence for anything already set (env vars are
// "layer 1", the bootstrap file is "layer 0").
func ApplyBootstrapFile(cfg *Config, bf *BootstrapFile) {
	if bf == nil {
		return
	}

	if cfg.DatabaseURL == "" {
		cfg.DatabaseURL = bf.DatabaseURL
	}

	if cfg.DataBaseDir == "" {
		cfg.DataBaseDir = bf.DataBaseDir
	}

	if cfg.GitHubClientID == "" {
		cfg.GitHubClientID = bf.GitHubClientID
	}

	if cfg.GitHubClientSecret == "" {
		cfg.GitHubClientSecret = bf.GitHubClientSecret
	}

	if cfg.GitHubRedirectURL == "" {
		cfg.GitHubRedirectURL = bf.GitHubRedirectURL
	}

	if cfg.JWTSecret == "" {
		cfg.JWTSecret = bf.JWTSecret
	}

	if !cfg.SingleUserNoAuthMode {
		cfg.SingleUserNoAuthMode = bf.SingleUserNoAuthMode
	}

	if cfg.ListenAddr == "" || cfg.ListenAddr == defaultListenAddr {
		if bf.ListenAddr != "" {
			cfg.ListenAddr = bf.ListenAddr
		}
	}
}

// Resolve builds the full Config: env vars first, the bootstrap file
// (if bootstrapPath is non-empty and exists) filling anything env vars
// left blank, then validates that every required field ended up set.
func Resolve(bootstrapPath string) (*Config, error) {
	cfg, err := FromEnv()
	if err != nil {
		return nil, err
	}

	if bootstrapPath != "" {
		bf, err := LoadBootstrapFile(bootstrapPath)
		if err != nil {
			return nil, err
		}

		ApplyBootstrapFile(cfg, bf)
	}

	if err := Validate(cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
