// Package config loads docstored configuration from, in ascending
// priority: built-in defaults, docstored.toml, environment variables.
// cmd/docstored's --config flag selects which file is read; no CLI flag
// overrides individual settings.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// Config holds all docstored configuration, loaded from TOML + env.
type Config struct {
	Server   ServerConfig   `toml:"server"`
	Data     DataConfig     `toml:"data"`
	Database DatabaseConfig `toml:"database"`
	Auth     AuthConfig     `toml:"auth"`
	Sync     SyncConfig     `toml:"sync"`
	Log      LogConfig      `toml:"log"`
}

// ServerConfig holds HTTP listener settings.
type ServerConfig struct {
	ListenAddr   string `toml:"listen_addr"`
	WebDAVPrefix string `toml:"webdav_prefix"`
}

// DataConfig holds filesystem storage settings.
type DataConfig struct {
	DataDir string `toml:"data_dir"`
}

// DatabaseConfig holds SQLite connection settings.
type DatabaseConfig struct {
	DSN string `toml:"dsn"`
}

// AuthConfig holds JWT and session settings.
type AuthConfig struct {
	JWTSecret         string        `toml:"jwt_secret"`
	JWTIssuer         string        `toml:"jwt_issuer"`
	JWTTTL            time.Duration `toml:"jwt_ttl"`
	RefreshCookieName string        `toml:"refresh_cookie_name"`
}

// SyncConfig holds Sync Coordinator and watcher/reconciler tuning.
type SyncConfig struct {
	RecentlyWrittenTTL    time.Duration `toml:"recently_written_ttl"`
	DebounceWindow        time.Duration `toml:"debounce_window"`
	WatcherStabilityDelay time.Duration `toml:"watcher_stability_delay"`
	ReconcileInterval     time.Duration `toml:"reconcile_interval"`
}

// LogConfig controls structured logging output.
type LogConfig struct {
	Level  string `toml:"level"`  // "debug", "info", "warn", "error"
	Format string `toml:"format"` // "console" or "json"
}

// DefaultConfig returns a Config with all built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			ListenAddr:   ":8080",
			WebDAVPrefix: "/webdav",
		},
		Data: DataConfig{
			DataDir: "./data",
		},
		Database: DatabaseConfig{
			DSN: "./data/docstore.db",
		},
		Auth: AuthConfig{
			JWTIssuer:         "docstore",
			JWTTTL:            15 * time.Minute,
			RefreshCookieName: "docstore_refresh",
		},
		Sync: SyncConfig{
			RecentlyWrittenTTL:    5 * time.Second,
			DebounceWindow:        500 * time.Millisecond,
			WatcherStabilityDelay: 300 * time.Millisecond,
			ReconcileInterval:     6 * time.Hour,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}

// Load merges all configuration sources: defaults < TOML file < env vars.
func Load() (*Config, error) {
	return LoadFrom(findConfigFile())
}

// LoadFrom loads configuration from a specific TOML file path (if it
// exists), merging with defaults and environment variables. Pass "" to
// skip the file and load defaults + env only.
func LoadFrom(configPath string) (*Config, error) {
	cfg := DefaultConfig()

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			meta, err := toml.DecodeFile(configPath, cfg)
			if err != nil {
				return nil, fmt.Errorf("parse config %s: %w", configPath, err)
			}
			warnUnknownKeys(meta, configPath)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

// applyEnv overlays environment variables onto cfg, per the env var list.
func applyEnv(cfg *Config) {
	if v := os.Getenv("LISTEN_ADDR"); v != "" {
		cfg.Server.ListenAddr = v
	}
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Data.DataDir = v
	}
	if v := os.Getenv("DATABASE_DSN"); v != "" {
		cfg.Database.DSN = v
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.Auth.JWTSecret = v
	}
	if v := os.Getenv("REFRESH_COOKIE_NAME"); v != "" {
		cfg.Auth.RefreshCookieName = v
	}
	if v := os.Getenv("RECONCILE_INTERVAL"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Sync.ReconcileInterval = d
		} else if n, err := strconv.Atoi(v); err == nil {
			cfg.Sync.ReconcileInterval = time.Duration(n) * time.Second
		}
	}
}

// findConfigFile looks for docstored.toml in the CWD first, then at
// ~/.config/docstored/docstored.toml. It returns "" if neither exists.
func findConfigFile() string {
	if cwd, err := os.Getwd(); err == nil {
		p := filepath.Join(cwd, "docstored.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, ".config", "docstored", "docstored.toml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// Validate checks that required settings are present. JWT_SECRET has no
// safe default, so it must come from the file or environment.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return fmt.Errorf("auth.jwt_secret (or JWT_SECRET) must be set")
	}
	return nil
}

// configSuggestions maps common wrong keys to the correct TOML key name.
var configSuggestions = map[string]string{
	"listen":     "listen_addr",
	"addr":       "listen_addr",
	"datadir":    "data_dir",
	"dsn":        "database.dsn",
	"jwtsecret":  "jwt_secret",
	"jwt-secret": "jwt_secret",
	"ttl":        "jwt_ttl",
	"debounce":   "debounce_window",
	"stability":  "watcher_stability_delay",
	"reconcile":  "reconcile_interval",
	"loglevel":   "level",
	"log-level":  "level",
	"logformat":  "format",
}

// warnUnknownKeys prints warnings for unrecognized config keys, the same
// way the teacher flags typo'd TOML keys instead of silently ignoring them.
func warnUnknownKeys(meta toml.MetaData, configPath string) {
	undecoded := meta.Undecoded()
	if len(undecoded) == 0 {
		return
	}
	fname := filepath.Base(configPath)
	for _, key := range undecoded {
		keyStr := key.String()
		lastPart := key[len(key)-1]
		if suggestion, ok := configSuggestions[lastPart]; ok {
			fmt.Fprintf(os.Stderr, "docstored: WARNING: unknown key %q in %s — did you mean %q?\n",
				keyStr, fname, suggestion)
		} else {
			fmt.Fprintf(os.Stderr, "docstored: WARNING: unknown key %q in %s (will be ignored)\n",
				keyStr, fname)
		}
	}
}

// GenerateConfig writes a default docstored.toml file with comments, the
// same way the teacher's GenerateConfig seeds .same/config.toml.
func GenerateConfig(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create config dir: %w", err)
	}
	return os.WriteFile(path, []byte(generateTOMLContent()), 0o600)
}

func generateTOMLContent() string {
	var b strings.Builder
	b.WriteString("# docstored configuration\n")
	b.WriteString("#\n")
	b.WriteString("# Priority: environment variables > this file > built-in defaults\n")
	b.WriteString("# Environment variables: DATA_DIR, DATABASE_DSN, JWT_SECRET,\n")
	b.WriteString("#   REFRESH_COOKIE_NAME, LISTEN_ADDR, RECONCILE_INTERVAL\n\n")

	b.WriteString("[server]\n")
	b.WriteString("listen_addr = \":8080\"\n")
	b.WriteString("webdav_prefix = \"/webdav\"\n\n")

	b.WriteString("[data]\n")
	b.WriteString("data_dir = \"./data\"\n\n")

	b.WriteString("[database]\n")
	b.WriteString("dsn = \"./data/docstore.db\"\n\n")

	b.WriteString("[auth]\n")
	b.WriteString("# jwt_secret = \"\"  # required — set here or via JWT_SECRET\n")
	b.WriteString("jwt_issuer = \"docstore\"\n")
	b.WriteString("jwt_ttl = \"15m\"\n")
	b.WriteString("refresh_cookie_name = \"docstore_refresh\"\n\n")

	b.WriteString("[sync]\n")
	b.WriteString("recently_written_ttl = \"5s\"\n")
	b.WriteString("debounce_window = \"500ms\"\n")
	b.WriteString("watcher_stability_delay = \"300ms\"\n")
	b.WriteString("reconcile_interval = \"6h\"\n\n")

	b.WriteString("[log]\n")
	b.WriteString("level = \"info\"\n")
	b.WriteString("format = \"console\"\n")

	return b.String()
}
