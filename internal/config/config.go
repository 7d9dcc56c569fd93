// Package config loads server settings from defaults, an optional
// config.yaml, and AIDLEDGER_* environment variables, in increasing order of
// precedence.
package config

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	configFileName = "config"
	configFileType = "yaml"
	envPrefix      = "AIDLEDGER"

	KeyAddr          = "addr"
	KeySocket        = "socket"
	KeyDB            = "db"
	KeyAdminEmail    = "admin_email"
	KeyAdminPassword = "admin_password"
	KeyTokenSecret   = "token_secret"
	KeyTokenTTL      = "token_ttl"
	KeyAuthBackend   = "auth_backend"
	KeyCookieSecure  = "cookie_secure"
	KeyRepoDir       = "repo_dir"
	KeyLogLevel      = "log_level"
)

type Config struct {
	Addr          string
	Socket        string
	DB            string
	AdminEmail    string
	AdminPassword string
	TokenSecret   string
	TokenTTL      time.Duration
	// AuthBackend is the base URL of a remote auth backend. Empty means the
	// server authenticates against its own users table.
	AuthBackend  string
	CookieSecure bool
	RepoDir      string
	LogLevel     string
}

func defaults(v *viper.Viper) {
	v.SetDefault(KeyAddr, ":8080")
	v.SetDefault(KeySocket, "/tmp/aidledger.sock")
	v.SetDefault(KeyDB, "aidledger.db")
	v.SetDefault(KeyAdminEmail, "admin@aidledger.local")
	v.SetDefault(KeyAdminPassword, "admin")
	v.SetDefault(KeyTokenSecret, "")
	v.SetDefault(KeyTokenTTL, 7*24*time.Hour)
	v.SetDefault(KeyAuthBackend, "")
	v.SetDefault(KeyCookieSecure, false)
	v.SetDefault(KeyRepoDir, ".")
	v.SetDefault(KeyLogLevel, "info")
}

// Load reads config.yaml from dir when present. A missing file is not an
// error; an unreadable or malformed one is.
func Load(dir string) (Config, error) {
	v := viper.New()
	defaults(v)
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if dir != "" {
		v.SetConfigName(configFileName)
		v.SetConfigType(configFileType)
		v.AddConfigPath(dir)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	cfg := Config{
		Addr:          v.GetString(KeyAddr),
		Socket:        v.GetString(KeySocket),
		DB:            v.GetString(KeyDB),
		AdminEmail:    v.GetString(KeyAdminEmail),
		AdminPassword: v.GetString(KeyAdminPassword),
		TokenSecret:   v.GetString(KeyTokenSecret),
		TokenTTL:      v.GetDuration(KeyTokenTTL),
		AuthBackend:   strings.TrimRight(v.GetString(KeyAuthBackend), "/"),
		CookieSecure:  v.GetBool(KeyCookieSecure),
		RepoDir:       v.GetString(KeyRepoDir),
		LogLevel:      v.GetString(KeyLogLevel),
	}
	if cfg.TokenTTL <= 0 {
		return Config{}, fmt.Errorf("%s must be positive, got %s", KeyTokenTTL, cfg.TokenTTL)
	}
	return cfg, nil
}

// NewLogger returns a text logger on stderr at the configured level.
func NewLogger(level string) *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: ParseLevel(level)}))
}

func ParseLevel(level string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(level)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
