package config

func Defaults() *Config {
	return &Config{
		General: GeneralConfig{
			LogLevel: "info",
		},
		Store: StoreConfig{
			DBPath: "~/.chatmark/chatmark.db",
		},
		Panel: PanelConfig{
			Enabled:            true,
			Host:               "127.0.0.1",
			Port:               8765,
			WSPath:             "/ws",
			RateLimitPerSecond: 20,
			Burst:              40,
		},
		Browser: BrowserConfig{
			ProfileDir: "~/.chatmark/chrome-profile",
			Headless:   false,
		},
		Scanner: ScannerConfig{
			RetryDelayMs:   2000,
			SettleDelayMs:  1000,
			PollIntervalMs: 500,
		},
		SitesFile: "~/.chatmark/sites.yaml",
		Metrics: MetricsConfig{
			Enabled:  true,
			Endpoint: "/metrics",
		},
	}
}
