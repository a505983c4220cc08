// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Parlance Contributors

// Package config loads Parlance settings from defaults, a YAML file, the
// environment and command-line flags, in increasing order of precedence.
package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/samber/oops"
	"github.com/spf13/pflag"

	"github.com/parlance-ai/parlance/internal/auth"
	"github.com/parlance-ai/parlance/internal/logging"
	"github.com/parlance-ai/parlance/internal/mail"
	"github.com/parlance-ai/parlance/internal/xdg"
)

// CodeInvalid is the error code for every load or validation failure.
const CodeInvalid = "CONFIG_INVALID"

// EnvPrefix is stripped from environment variables; "__" separates nested keys,
// so PARLANCE_TOKEN__SECRET sets token.secret.
const EnvPrefix = "PARLANCE_"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// envAliases are unprefixed variables accepted for compatibility with common
// deployment conventions. PARLANCE_ variables take precedence.
var envAliases = map[string]string{
	"DATABASE_URL": "database.url",
	"JWT_SECRET":   "token.secret",
}

// Config is the complete runtime configuration.
type Config struct {
	Server   ServerConfig      `koanf:"server"`
	Database DatabaseConfig    `koanf:"database"`
	Store    string            `koanf:"store"`
	Token    auth.TokenConfig  `koanf:"token"`
	Hasher   auth.HasherConfig `koanf:"hasher"`
	Reset    auth.ResetConfig  `koanf:"reset"`
	Mail     mail.Config       `koanf:"mail"`
	Log      logging.Config    `koanf:"log"`
	Metrics  MetricsConfig     `koanf:"metrics"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr            string        `koanf:"addr"`
	PublicURL       string        `koanf:"public_url"`
	AllowedOrigin   string        `koanf:"allowed_origin"`
	Production      bool          `koanf:"production"`
	ShutdownTimeout time.Duration `koanf:"shutdown_timeout"`
}

// DatabaseConfig configures the PostgreSQL connection.
type DatabaseConfig struct {
	URL             string        `koanf:"url"`
	ConnectAttempts uint64        `koanf:"connect_attempts"`
	ConnectBackoff  time.Duration `koanf:"connect_backoff"`
}

// MetricsConfig configures the observability listener. An empty Addr disables it.
type MetricsConfig struct {
	Addr string `koanf:"addr"`
}

// Default returns the built-in settings. The token secret has no default.
func Default() Config {
	return Config{
		Server: ServerConfig{
			Addr:            ":8080",
			PublicURL:       "http://localhost:8080",
			AllowedOrigin:   "http://localhost:5173",
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{
			ConnectAttempts: 8,
			ConnectBackoff:  250 * time.Millisecond,
		},
		Store: StorePostgres,
		Token: auth.TokenConfig{
			TTL:       auth.DefaultTokenTTL,
			Issuer:    auth.DefaultTokenIssuer,
			CookieTTL: auth.DefaultTokenTTL,
		},
		Hasher:  auth.DefaultHasherConfig(),
		Reset:   auth.ResetConfig{TTL: auth.DefaultResetTTL},
		Mail:    mail.DefaultConfig(),
		Log:     logging.DefaultConfig(),
		Metrics: MetricsConfig{Addr: "127.0.0.1:9100"},
	}
}

// LoadOptions selects the file and flags to layer over the defaults.
type LoadOptions struct {
	// File is an explicit config path; it must exist. When empty the XDG
	// config file is read if present.
	File string
	// Flags are applied last; only flags the user changed override.
	// RegisterFlags defines the recognised ones.
	Flags *pflag.FlagSet
	// Partial skips Validate. Maintenance commands that read one or two
	// settings use it and check what they need themselves.
	Partial bool
}

// Load reads configuration from every layer and validates the result.
func Load(opts LoadOptions) (*Config, error) {
	k := koanf.New(".")

	path, explicit := opts.File, opts.File != ""
	if !explicit {
		if p, err := xdg.ConfigFile(); err == nil {
			path = p
		}
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			if explicit || !errors.Is(err, fs.ErrNotExist) {
				return nil, oops.Code(CodeInvalid).With("file", path).Wrap(err)
			}
		}
	}

	if err := k.Load(env.ProviderWithValue("", ".", aliasKey), nil); err != nil {
		return nil, oops.Code(CodeInvalid).With("operation", "load env aliases").Wrap(err)
	}
	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return nil, oops.Code(CodeInvalid).With("operation", "load env").Wrap(err)
	}

	if opts.Flags != nil {
		if err := k.Load(posflag.ProviderWithFlag(opts.Flags, ".", k, flagKey), nil); err != nil {
			return nil, oops.Code(CodeInvalid).With("operation", "load flags").Wrap(err)
		}
	}

	cfg := Default()
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, oops.Code(CodeInvalid).With("operation", "decode config").Wrap(err)
	}
	if opts.Partial {
		return &cfg, nil
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// ConfigFlag names the flag holding an explicit config file path.
const ConfigFlag = "config"

// RegisterFlags defines the command-line overrides on fs. The token secret
// has no flag so it never shows up in process listings.
func RegisterFlags(fs *pflag.FlagSet) {
	d := Default()
	fs.String(ConfigFlag, "", "path to a YAML config file")
	fs.String("server-addr", d.Server.Addr, "HTTP API listen address")
	fs.String("server-public-url", d.Server.PublicURL, "public base URL used in reset links")
	fs.String("server-allowed-origin", d.Server.AllowedOrigin, "CORS allowed origin")
	fs.Bool("server-production", d.Server.Production, "mark cookies Secure")
	fs.String("database-url", "", "PostgreSQL connection URL")
	fs.String("store", d.Store, "user store backend (postgres or memory)")
	fs.String("log-level", d.Log.Level, "log level (debug, info, warn, error)")
	fs.String("log-format", d.Log.Format, "log format (json or text)")
	fs.String("metrics-addr", d.Metrics.Addr, "observability listen address, empty to disable")
}

func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// aliasKey skips unset and empty aliases so they never mask the file.
func aliasKey(name, value string) (string, any) {
	if value == "" {
		return "", nil
	}
	return envAliases[name], value
}

// flagKey maps a changed flag to its config key: dashes become underscores
// and the first dash separates the section, so "token-cookie-ttl" is token.cookie_ttl.
func flagKey(f *pflag.Flag) (string, any) {
	if !f.Changed || f.Name == ConfigFlag {
		return "", nil
	}
	section, rest, found := strings.Cut(f.Name, "-")
	if !found {
		return f.Name, f.Value.String()
	}
	return section + "." + strings.ReplaceAll(rest, "-", "_"), f.Value.String()
}

// Validate checks every section and returns the first problem found.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return invalid("server.addr", "server address is required")
	}
	if c.Server.ShutdownTimeout <= 0 {
		return invalid("server.shutdown_timeout", "shutdown timeout must be positive")
	}
	switch c.Store {
	case StorePostgres:
		if c.Database.URL == "" {
			return invalid("database.url", "database URL is required for the postgres store")
		}
	case StoreMemory:
	default:
		return invalid("store", "store must be postgres or memory")
	}
	if len(c.Token.Secret) < auth.MinTokenSecretLen {
		return invalid("token.secret", "token secret must be at least 32 bytes")
	}
	if c.Token.TTL <= 0 {
		return invalid("token.ttl", "token TTL must be positive")
	}
	if c.Token.CookieTTL <= 0 {
		return invalid("token.cookie_ttl", "cookie TTL must be positive")
	}
	if c.Reset.TTL <= 0 {
		return invalid("reset.ttl", "reset TTL must be positive")
	}
	// Section errors carry their own codes; restate them under CodeInvalid.
	if err := c.Hasher.Validate(); err != nil {
		return invalid("hasher", err.Error())
	}
	if err := c.Mail.Validate(); err != nil {
		return invalid("mail", err.Error())
	}
	if c.Log.Format != "" && c.Log.Format != "json" && c.Log.Format != "text" {
		return invalid("log.format", "log format must be json or text")
	}
	if _, err := logging.ParseLevel(c.Log.Level); err != nil {
		return invalid("log.level", err.Error())
	}
	return nil
}

func invalid(key, msg string) error {
	return oops.Code(CodeInvalid).With("key", key).Errorf("invalid %s: %s", key, msg)
}
