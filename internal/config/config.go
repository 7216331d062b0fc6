package config

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/caarlos0/env/v11"
)

// Config represents the global ~/.wpp/config.toml. Every field can be
// overridden by its WPP_* environment variable.
type Config struct {
	DefaultSession string         `toml:"default_session" env:"WPP_SESSION"`
	Gateway        GatewayConfig  `toml:"gateway"`
	Identity       IdentityConfig `toml:"identity"`
	Sync           SyncConfig     `toml:"sync"`
	Log            LogConfig      `toml:"log"`
}

// GatewayConfig locates the messaging gateway.
type GatewayConfig struct {
	URL                string   `toml:"url"                  env:"WPP_GATEWAY_URL"`
	SocketPath         string   `toml:"socket_path"          env:"WPP_GATEWAY_SOCKET_PATH"`
	Token              string   `toml:"token"                env:"WPP_GATEWAY_TOKEN"`
	RequestTimeout     Duration `toml:"request_timeout"      env:"WPP_GATEWAY_REQUEST_TIMEOUT"`
	ReconnectBaseDelay Duration `toml:"reconnect_base_delay" env:"WPP_GATEWAY_RECONNECT_BASE_DELAY"`
	ReconnectMaxDelay  Duration `toml:"reconnect_max_delay"  env:"WPP_GATEWAY_RECONNECT_MAX_DELAY"`
}

// IdentityConfig tells local messages apart from remote ones.
type IdentityConfig struct {
	LocalID        string `toml:"local_id"        env:"WPP_IDENTITY_LOCAL_ID"`
	AddressPrefix  string `toml:"address_prefix"  env:"WPP_IDENTITY_ADDRESS_PREFIX"`
	PrefixFallback bool   `toml:"prefix_fallback" env:"WPP_IDENTITY_PREFIX_FALLBACK"`
}

// SyncConfig tunes history and roster fetching.
type SyncConfig struct {
	HistoryPageSize   int      `toml:"history_page_size"   env:"WPP_SYNC_HISTORY_PAGE_SIZE"`
	HistoryMaxPages   int      `toml:"history_max_pages"   env:"WPP_SYNC_HISTORY_MAX_PAGES"`
	RosterPageSize    int      `toml:"roster_page_size"    env:"WPP_SYNC_ROSTER_PAGE_SIZE"`
	DurabilityTimeout Duration `toml:"durability_timeout"  env:"WPP_SYNC_DURABILITY_TIMEOUT"`
	ResyncOnReconnect bool     `toml:"resync_on_reconnect" env:"WPP_SYNC_RESYNC_ON_RECONNECT"`
}

// LogConfig sets the daemon log level.
type LogConfig struct {
	Level string `toml:"level" env:"WPP_LOG_LEVEL"`
}

// Duration is a time.Duration written as "10s" in TOML and env vars.
type Duration struct {
	time.Duration
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (d *Duration) UnmarshalText(text []byte) error {
	v, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	d.Duration = v
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(d.Duration.String()), nil
}

// Default returns the built-in configuration.
func Default() *Config {
	return &Config{
		DefaultSession: "main",
		Gateway: GatewayConfig{
			URL:                "http://localhost:3000",
			SocketPath:         "/ws",
			RequestTimeout:     Duration{10 * time.Second},
			ReconnectBaseDelay: Duration{time.Second},
			ReconnectMaxDelay:  Duration{30 * time.Second},
		},
		Identity: IdentityConfig{},
		Sync: SyncConfig{
			HistoryPageSize:   50,
			HistoryMaxPages:   4,
			RosterPageSize:    50,
			DurabilityTimeout: Duration{10 * time.Second},
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of the defaults. Returns an
// error if the file is missing or has keys this version does not know.
func Load(path string) (*Config, error) {
	cfg := Default()
	md, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return nil, err
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		keys := make([]string, len(undecoded))
		for i, k := range undecoded {
			keys[i] = k.String()
		}
		return nil, fmt.Errorf("%s: unknown keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, nil
}

// LoadOrDefault reads the config file when it exists, applies environment
// overrides and validates the result.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, os.ErrNotExist) {
		cfg, err = Default(), nil
	}
	if err != nil {
		return nil, err
	}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config env: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values the daemon cannot run without.
func (c *Config) Validate() error {
	u, err := url.Parse(c.Gateway.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("gateway.url %q: must be an http(s) URL", c.Gateway.URL)
	}
	if c.Sync.HistoryPageSize <= 0 || c.Sync.HistoryMaxPages <= 0 || c.Sync.RosterPageSize <= 0 {
		return errors.New("sync page sizes must be positive")
	}
	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level %q: want debug, info, warn or error", c.Log.Level)
	}
	return nil
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
