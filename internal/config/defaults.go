package config

// DefaultConfig returns a Config populated with all default values.
func DefaultConfig() *Config {
	return &Config{
		Tracking: TrackingConfig{
			DefaultTrackedSites: []string{"notion.so", "leetcode.com"},
			HeartbeatPolicy:     "additive",
		},
		Storage: StorageConfig{
			Path:              "~/.config/sitetime",
			SQLiteFile:        "sitetime.db",
			SQLiteJournalMode: "wal",
		},
		Daemon: DaemonConfig{
			Host:           "127.0.0.1",
			Port:           8721,
			AuthToken:      "",
			MaxRequestSize: 1 << 20,
			AllowedOrigins: []string{
				"chrome-extension://*",
				"moz-extension://*",
				"http://localhost:*",
				"http://127.0.0.1:*",
			},
		},
		Watch: WatchConfig{
			PollIntervalMS: 1000,
		},
		Retention: RetentionConfig{
			ChangeLogDays:      7,
			PruneIntervalHours: 24,
		},
		Logging: LoggingConfig{
			Level:  "info",
			File:   "",
			Format: "text",
		},
	}
}
