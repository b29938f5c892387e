// Package config loads process settings for the server binary from the
// environment, an optional .env file and an optional config.yaml.
//
// Priority, highest first: NOTEVAULT_* environment variables, config file,
// defaults. A .env file in the working directory is loaded into the
// environment before anything else and never overrides variables that are
// already set.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	notevault "github.com/MrEthical07/notevault"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "NOTEVAULT"

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Settings is the full process configuration.
type Settings struct {
	Env      string `mapstructure:"env"`
	Addr     string `mapstructure:"addr"`
	LogLevel string `mapstructure:"log_level"`

	Store       string `mapstructure:"store"`
	DatabaseURL string `mapstructure:"database_url"`
	DBMaxConns  int32  `mapstructure:"db_max_conns"`

	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
	RedisPrefix   string `mapstructure:"redis_prefix"`

	AccessSecret  string `mapstructure:"jwt_access_secret"`
	RefreshSecret string `mapstructure:"jwt_refresh_secret"`

	AllowedOrigins []string `mapstructure:"allowed_origins"`
	CookieDomain   string   `mapstructure:"cookie_domain"`

	ResendAPIKey string `mapstructure:"resend_api_key"`
	MailFrom     string `mapstructure:"mail_from"`
	NotifyLogins bool   `mapstructure:"notify_logins"`

	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`

	// ConfigFile is the file actually read, if any.
	ConfigFile string `mapstructure:"-"`
}

var defaults = map[string]any{
	"env":                "development",
	"addr":               ":5000",
	"log_level":          "",
	"store":              StorePostgres,
	"database_url":       "",
	"db_max_conns":       10,
	"redis_addr":         "localhost:6379",
	"redis_password":     "",
	"redis_db":           0,
	"redis_prefix":       "nv",
	"jwt_access_secret":  "",
	"jwt_refresh_secret": "",
	"allowed_origins":    []string{"http://localhost:3000"},
	"cookie_domain":      "",
	"resend_api_key":     "",
	"mail_from":          "Secure Notes Vault <noreply@notevault.local>",
	"notify_logins":      true,
	"read_timeout":       10 * time.Second,
	"write_timeout":      30 * time.Second,
	"shutdown_timeout":   15 * time.Second,
}

// Load reads settings. configFile may be empty, in which case config.yaml
// in the working directory is used when present.
func Load(configFile string) (*Settings, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("config")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	s := &Settings{}
	if err := v.Unmarshal(s); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	s.ConfigFile = v.ConfigFileUsed()
	s.AllowedOrigins = splitOrigins(s.AllowedOrigins)
	return s, nil
}

// Production reports whether Env is "production".
func (s *Settings) Production() bool {
	return s.Env == "production"
}

// Validate checks the settings needed to start the server.
func (s *Settings) Validate() error {
	if s.AccessSecret == "" || s.RefreshSecret == "" {
		return errors.New("NOTEVAULT_JWT_ACCESS_SECRET and NOTEVAULT_JWT_REFRESH_SECRET are required")
	}
	if s.AccessSecret == s.RefreshSecret {
		return errors.New("access and refresh secrets must differ")
	}
	if s.Production() && (len(s.AccessSecret) < 32 || len(s.RefreshSecret) < 32) {
		return errors.New("JWT secrets must be at least 32 bytes in production")
	}
	switch s.Store {
	case StorePostgres:
		if s.DatabaseURL == "" {
			return errors.New("NOTEVAULT_DATABASE_URL is required for the postgres store")
		}
	case StoreMemory:
		if s.Production() {
			return errors.New("the memory store is not allowed in production")
		}
	default:
		return fmt.Errorf("unknown store %q", s.Store)
	}
	if s.RedisAddr == "" {
		return errors.New("NOTEVAULT_REDIS_ADDR is required")
	}
	if s.Addr == "" {
		return errors.New("listen address is required")
	}
	return nil
}

// EngineConfig derives the engine configuration from the settings.
func (s *Settings) EngineConfig() notevault.Config {
	cfg := notevault.DefaultConfig()
	cfg.JWT.AccessSecret = []byte(s.AccessSecret)
	cfg.JWT.RefreshSecret = []byte(s.RefreshSecret)
	cfg.Redis.KeyPrefix = s.RedisPrefix
	cfg.Security.ProductionMode = s.Production()
	cfg.Security.NotifyLogins = s.NotifyLogins
	return cfg
}

// DumpEnv lists the effective settings as environment assignments with
// secrets masked.
func (s *Settings) DumpEnv() []string {
	mask := func(v string) string {
		if v == "" {
			return ""
		}
		return "********"
	}
	return []string{
		envPrefix + "_ENV=" + s.Env,
		envPrefix + "_ADDR=" + s.Addr,
		envPrefix + "_STORE=" + s.Store,
		envPrefix + "_DATABASE_URL=" + mask(s.DatabaseURL),
		envPrefix + "_REDIS_ADDR=" + s.RedisAddr,
		envPrefix + "_JWT_ACCESS_SECRET=" + mask(s.AccessSecret),
		envPrefix + "_JWT_REFRESH_SECRET=" + mask(s.RefreshSecret),
		envPrefix + "_ALLOWED_ORIGINS=" + strings.Join(s.AllowedOrigins, ","),
		envPrefix + "_RESEND_API_KEY=" + mask(s.ResendAPIKey),
	}
}

func splitOrigins(in []string) []string {
	out := make([]string, 0, len(in))
	for _, item := range in {
		for _, o := range strings.Split(item, ",") {
			if o = strings.TrimSpace(o); o != "" {
				out = append(out, o)
			}
		}
	}
	return out
}
