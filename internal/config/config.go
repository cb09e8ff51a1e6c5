package config

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"chatmark/internal/site"
)

// Config is the root configuration for chatmark.
type Config struct {
	General GeneralConfig `json:"general"`
	Store   StoreConfig   `json:"store"`
	Panel   PanelConfig   `json:"panel"`
	Browser BrowserConfig `json:"browser"`
	Scanner ScannerConfig `json:"scanner"`
	// Sites overrides built-in selectors, keyed by hostname.
	Sites map[string]site.Selectors `json:"sites,omitempty"`
	// SitesFile is a YAML file of extra site descriptors, reloaded on change.
	SitesFile string        `json:"sitesFile,omitempty"`
	Metrics   MetricsConfig `json:"metrics"`
}

type GeneralConfig struct {
	LogLevel string `json:"logLevel"`          // debug | info | warn | error
	LogFile  string `json:"logFile,omitempty"` // optional log file path
}

// SlogLevel maps LogLevel to a slog level, defaulting to info.
func (g GeneralConfig) SlogLevel() slog.Level {
	switch strings.ToLower(g.LogLevel) {
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

type StoreConfig struct {
	DBPath string `json:"dbPath"`
}

type PanelConfig struct {
	Enabled            bool    `json:"enabled"`
	Host               string  `json:"host"`
	Port               int     `json:"port"`
	WSPath             string  `json:"wsPath"`
	RateLimitPerSecond float64 `json:"rateLimitPerSecond"` // 0 = unlimited
	Burst              int     `json:"burst"`
}

type BrowserConfig struct {
	ProfileDir string `json:"profileDir"`
	Headless   bool   `json:"headless"`
}

// ScannerConfig holds tracker timings in milliseconds.
type ScannerConfig struct {
	RetryDelayMs   int `json:"retryDelayMs"`
	SettleDelayMs  int `json:"settleDelayMs"`
	PollIntervalMs int `json:"pollIntervalMs"`
}

func (s ScannerConfig) RetryDelay() time.Duration {
	return time.Duration(s.RetryDelayMs) * time.Millisecond
}

func (s ScannerConfig) SettleDelay() time.Duration {
	return time.Duration(s.SettleDelayMs) * time.Millisecond
}

func (s ScannerConfig) PollInterval() time.Duration {
	return time.Duration(s.PollIntervalMs) * time.Millisecond
}

// MetricsConfig configures the Prometheus endpoint on the panel server.
type MetricsConfig struct {
	Enabled  bool   `json:"enabled"`
	Endpoint string `json:"endpoint"`
}

// DefaultConfigDir returns the default config directory (~/.chatmark).
func DefaultConfigDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".chatmark"
	}
	return filepath.Join(home, ".chatmark")
}

func DefaultConfigPath() string {
	return filepath.Join(DefaultConfigDir(), "config.json")
}

func Load(path string) (*Config, error) {
	path = ExpandPath(path)

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read config file %s: %w", path, err)
	}

	// Substitute environment variables: ${VAR} and ${VAR:-default}
	data = []byte(ExpandEnvVars(string(data)))

	cfg := Defaults()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("cannot parse config file %s: %w", path, err)
	}
	cfg.expandPaths()

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// LoadOrDefault loads path, falling back to the defaults when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	if _, err := os.Stat(ExpandPath(path)); os.IsNotExist(err) {
		cfg := Defaults()
		cfg.expandPaths()
		return cfg, nil
	}
	return Load(path)
}

func (c *Config) expandPaths() {
	c.General.LogFile = ExpandPath(c.General.LogFile)
	c.Store.DBPath = ExpandPath(c.Store.DBPath)
	c.Browser.ProfileDir = ExpandPath(c.Browser.ProfileDir)
	c.SitesFile = ExpandPath(c.SitesFile)
}

// envVarPattern matches ${VAR} and ${VAR:-default} patterns in config strings.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-(.*?))?\}`)

// ExpandEnvVars replaces ${VAR} with the environment variable value.
// ${VAR:-default} uses "default" when VAR is unset or empty; an unset variable
// without default is left as written.
func ExpandEnvVars(input string) string {
	return envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name, def := groups[1], groups[2]
		if val, ok := os.LookupEnv(name); ok && val != "" {
			return val
		}
		if def != "" {
			return def
		}
		return match
	})
}

func Save(path string, cfg *Config) error {
	path = ExpandPath(path)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("cannot create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot marshal config: %w", err)
	}

	return os.WriteFile(path, data, 0o644)
}

// Validate checks that the config has valid values.
func Validate(cfg *Config) error {
	var errs []string

	switch strings.ToLower(cfg.General.LogLevel) {
	case "", "debug", "info", "warn", "warning", "error":
	default:
		errs = append(errs, "general.logLevel must be one of: debug, info, warn, error")
	}

	if cfg.Store.DBPath == "" {
		errs = append(errs, "store.dbPath is required")
	}

	if cfg.Panel.Port < 0 || cfg.Panel.Port > 65535 {
		errs = append(errs, "panel.port must be between 0 and 65535")
	}
	if cfg.Panel.WSPath != "" && !strings.HasPrefix(cfg.Panel.WSPath, "/") {
		errs = append(errs, "panel.wsPath must start with /")
	}
	if cfg.Panel.RateLimitPerSecond < 0 {
		errs = append(errs, "panel.rateLimitPerSecond must be >= 0")
	}
	if cfg.Panel.RateLimitPerSecond > 0 && cfg.Panel.Burst < 1 {
		errs = append(errs, "panel.burst must be >= 1 when rate limiting is enabled")
	}

	if cfg.Scanner.RetryDelayMs < 1 {
		errs = append(errs, "scanner.retryDelayMs must be >= 1")
	}
	if cfg.Scanner.SettleDelayMs < 0 {
		errs = append(errs, "scanner.settleDelayMs must be >= 0")
	}
	if cfg.Scanner.PollIntervalMs < 10 {
		errs = append(errs, "scanner.pollIntervalMs must be >= 10")
	}

	for host, sel := range cfg.Sites {
		if host != strings.ToLower(host) {
			errs = append(errs, fmt.Sprintf("sites.%s: hostnames must be lower case", host))
		}
		if sel == (site.Selectors{}) {
			errs = append(errs, fmt.Sprintf("sites.%s: at least one selector is required", host))
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Endpoint, "/") {
		errs = append(errs, "metrics.endpoint must start with / when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("config validation errors:\n  - %s", strings.Join(errs, "\n  - "))
	}
	return nil
}

// ExpandPath resolves ~/ to the user's home directory.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") {
		home, err := os.UserHomeDir()
		if err != nil {
			return path
		}
		return filepath.Join(home, path[2:])
	}
	return path
}
