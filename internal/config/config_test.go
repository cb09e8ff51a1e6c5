package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"

	"chatmark/internal/site"
)

// --- Validate ---

func TestValidate_ValidConfig(t *testing.T) {
	cfg := Defaults()
	if err := Validate(cfg); err != nil {
		t.Fatalf("expected valid config, got: %v", err)
	}
}

func TestValidate_InvalidPort(t *testing.T) {
	cfg := Defaults()
	cfg.Panel.Port = -1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for negative port")
	}

	cfg.Panel.Port = 70000
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for port > 65535")
	}
}

func TestValidate_LogLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error", ""} {
		cfg := Defaults()
		cfg.General.LogLevel = level
		if err := Validate(cfg); err != nil {
			t.Fatalf("logLevel %q should be valid: %v", level, err)
		}
	}

	cfg := Defaults()
	cfg.General.LogLevel = "verbose"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for unknown log level")
	}
}

func TestValidate_RateLimitNeedsBurst(t *testing.T) {
	cfg := Defaults()
	cfg.Panel.RateLimitPerSecond = 5
	cfg.Panel.Burst = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for burst=0 with rate limiting")
	}

	cfg.Panel.RateLimitPerSecond = 0
	if err := Validate(cfg); err != nil {
		t.Fatalf("unlimited panel should not need a burst: %v", err)
	}
}

func TestValidate_ScannerTimings(t *testing.T) {
	cfg := Defaults()
	cfg.Scanner.RetryDelayMs = 0
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for retryDelayMs=0")
	}

	cfg = Defaults()
	cfg.Scanner.PollIntervalMs = 1
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for pollIntervalMs=1")
	}
}

func TestValidate_SiteOverrides(t *testing.T) {
	cfg := Defaults()
	cfg.Sites = map[string]site.Selectors{"chat.openai.com": {Message: ".msg"}}
	if err := Validate(cfg); err != nil {
		t.Fatalf("override should be valid: %v", err)
	}

	cfg.Sites = map[string]site.Selectors{"Chat.OpenAI.com": {Message: ".msg"}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for upper-case hostname")
	}

	cfg.Sites = map[string]site.Selectors{"chat.openai.com": {}}
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for empty override")
	}
}

func TestValidate_MetricsEndpoint(t *testing.T) {
	cfg := Defaults()
	cfg.Metrics.Endpoint = "metrics"
	if err := Validate(cfg); err == nil {
		t.Fatal("expected error for relative metrics endpoint")
	}
	cfg.Metrics.Enabled = false
	if err := Validate(cfg); err != nil {
		t.Fatalf("disabled metrics should not be validated: %v", err)
	}
}

// --- Load / Save ---

func TestLoadSave_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")

	original := Defaults()
	original.Panel.Port = 9999
	original.Sites = map[string]site.Selectors{"gemini.google.com": {ObserverTarget: "main"}}

	if err := Save(path, original); err != nil {
		t.Fatalf("save: %v", err)
	}

	loaded, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if loaded.Panel.Port != 9999 {
		t.Fatalf("expected port 9999, got %d", loaded.Panel.Port)
	}
	if loaded.Sites["gemini.google.com"].ObserverTarget != "main" {
		t.Fatalf("site override lost: %+v", loaded.Sites)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.json")
	if err == nil {
		t.Fatal("expected error for missing file")
	}
}

func TestLoadOrDefault_MissingFile(t *testing.T) {
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatalf("expected defaults, got %v", err)
	}
	if cfg.Panel.Port != 8765 {
		t.Fatalf("expected default port, got %d", cfg.Panel.Port)
	}
}

func TestLoad_InvalidJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "bad.json")
	os.WriteFile(path, []byte("{not json}"), 0o644)

	_, err := Load(path)
	if err == nil {
		t.Fatal("expected error for invalid JSON")
	}
}

func TestLoad_ValidatesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"scanner": {"pollIntervalMs": 0}}`), 0o644)

	if _, err := Load(path); err == nil {
		t.Fatal("expected validation error")
	}
}

func TestLoad_PartialFileKeepsDefaults(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	os.WriteFile(path, []byte(`{"panel": {"port": 9000}}`), 0o644)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Panel.Port != 9000 || cfg.Panel.WSPath != "/ws" {
		t.Fatalf("unexpected panel config %+v", cfg.Panel)
	}
	if cfg.Scanner.RetryDelay() != 2*time.Second || cfg.Scanner.SettleDelay() != time.Second {
		t.Fatalf("unexpected scanner timings %+v", cfg.Scanner)
	}
}

func TestLoad_ExpandsHome(t *testing.T) {
	home, err := os.UserHomeDir()
	if err != nil {
		t.Skip("no home directory")
	}
	cfg, err := LoadOrDefault(filepath.Join(t.TempDir(), "absent.json"))
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Store.DBPath != filepath.Join(home, ".chatmark", "chatmark.db") {
		t.Fatalf("dbPath not expanded: %q", cfg.Store.DBPath)
	}
}

// --- Accessor ---

func TestGetByPath_ValidPaths(t *testing.T) {
	cfg := Defaults()

	val, err := GetByPath(cfg, "panel.wsPath")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if val != "/ws" {
		t.Fatalf("expected /ws, got %v", val)
	}
}

func TestGetByPath_InvalidPath(t *testing.T) {
	if _, err := GetByPath(Defaults(), "panel.nope"); err == nil {
		t.Fatal("expected error for unknown key")
	}
	if _, err := GetByPath(Defaults(), "panel.port.deeper"); err == nil {
		t.Fatal("expected error traversing into a number")
	}
}

func TestSetByPath_Conversions(t *testing.T) {
	cfg := Defaults()

	if err := SetByPath(cfg, "browser.headless", "true"); err != nil {
		t.Fatalf("set bool: %v", err)
	}
	if err := SetByPath(cfg, "panel.port", "9100"); err != nil {
		t.Fatalf("set int: %v", err)
	}
	if err := SetByPath(cfg, "panel.rateLimitPerSecond", "2.5"); err != nil {
		t.Fatalf("set float: %v", err)
	}
	if err := SetByPath(cfg, "general.logLevel", "debug"); err != nil {
		t.Fatalf("set string: %v", err)
	}

	if !cfg.Browser.Headless || cfg.Panel.Port != 9100 || cfg.Panel.RateLimitPerSecond != 2.5 {
		t.Fatalf("values not applied: %+v %+v", cfg.Browser, cfg.Panel)
	}
	if cfg.General.SlogLevel() != slog.LevelDebug {
		t.Fatalf("expected debug level, got %v", cfg.General.SlogLevel())
	}
}

func TestSetByPath_TypeMismatch(t *testing.T) {
	cfg := Defaults()
	if err := SetByPath(cfg, "panel.port", "not-a-number"); err == nil {
		t.Fatal("expected error assigning a string to an int field")
	}
	if cfg.Panel.Port != 8765 {
		t.Fatalf("failed set must not change config, got port %d", cfg.Panel.Port)
	}
}

func TestSetByPath_EmptyPath(t *testing.T) {
	if err := SetByPath(Defaults(), "", "x"); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestListPaths_ReturnsAllLeaves(t *testing.T) {
	paths := ListPaths(Defaults())
	for _, p := range []string{"general.logLevel", "store.dbPath", "panel.port", "scanner.retryDelayMs", "metrics.endpoint"} {
		if _, ok := paths[p]; !ok {
			t.Errorf("missing path %s", p)
		}
	}

	sorted := SortedPaths(Defaults())
	for i := 1; i < len(sorted); i++ {
		if sorted[i-1] > sorted[i] {
			t.Fatalf("paths not sorted at %d: %q > %q", i, sorted[i-1], sorted[i])
		}
	}
}

// --- Env vars ---

func TestExpandEnvVars_SimpleSubstitution(t *testing.T) {
	t.Setenv("CHATMARK_TEST_VAR", "hello")
	if got := ExpandEnvVars(`"${CHATMARK_TEST_VAR}"`); got != `"hello"` {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_DefaultValue(t *testing.T) {
	os.Unsetenv("CHATMARK_UNSET_VAR")
	if got := ExpandEnvVars(`${CHATMARK_UNSET_VAR:-fallback}`); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_EmptyVarUsesDefault(t *testing.T) {
	t.Setenv("CHATMARK_EMPTY_VAR", "")
	if got := ExpandEnvVars(`${CHATMARK_EMPTY_VAR:-fallback}`); got != "fallback" {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_UnsetVarNoDefault_KeepsOriginal(t *testing.T) {
	os.Unsetenv("CHATMARK_UNSET_VAR")
	input := `${CHATMARK_UNSET_VAR}`
	if got := ExpandEnvVars(input); got != input {
		t.Fatalf("got %q", got)
	}
}

func TestExpandEnvVars_DollarSignWithoutBraces(t *testing.T) {
	input := `"$HOME is not substituted"`
	if got := ExpandEnvVars(input); got != input {
		t.Fatalf("expected no change for bare $VAR, got %q", got)
	}
}

func TestLoad_WithEnvVarSubstitution(t *testing.T) {
	t.Setenv("CHATMARK_TEST_DB", "/tmp/chatmark-test.db")

	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "config.json")
	content := `{"store": {"dbPath": "${CHATMARK_TEST_DB}"}, "panel": {"port": ${CHATMARK_TEST_PORT:-8800}}}`
	if err := os.WriteFile(cfgFile, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	cfg, err := Load(cfgFile)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Store.DBPath != "/tmp/chatmark-test.db" {
		t.Fatalf("expected substituted dbPath, got %q", cfg.Store.DBPath)
	}
	if cfg.Panel.Port != 8800 {
		t.Fatalf("expected default port substitution, got %d", cfg.Panel.Port)
	}
}
