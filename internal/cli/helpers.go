package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/storage"
)

// loadConfig reads --config, or the default path, creating it with defaults
// when missing.
func loadConfig(globals *GlobalFlags) (*config.Config, error) {
	if globals == nil || globals.Config == "" {
		return config.LoadOrCreate()
	}
	expanded, err := config.ExpandPath(globals.Config)
	if err != nil {
		return nil, err
	}
	return config.LoadOrCreateAt(expanded)
}

// openStore opens the configured database with migrations applied.
func openStore(cfg *config.Config) (*storage.SQLiteStore, func(), error) {
	dbPath, err := cfg.DBPath()
	if err != nil {
		return nil, nil, fmt.Errorf("resolve db path: %w", err)
	}
	store, db, err := storage.Open(dbPath, cfg.Storage.SQLiteJournalMode)
	if err != nil {
		return nil, nil, err
	}
	closeFn := func() {
		store.Close()
		db.Close()
	}
	return store, closeFn, nil
}

// withConfigStore loads config, opens the store and calls fn.
func withConfigStore(globals *GlobalFlags, fn func(*storage.SQLiteStore, *config.Config) error) error {
	cfg, err := loadConfig(globals)
	if err != nil {
		return err
	}
	store, closeFn, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeFn()
	return fn(store, cfg)
}

// cliLogger logs warnings to stderr, or debug output with --verbose.
func cliLogger(globals *GlobalFlags) *slog.Logger {
	level := slog.LevelWarn
	if globals != nil && globals.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// newTracker builds a Tracker from config. An explicit empty
// default_tracked_sites seeds an empty list; only a missing or null key falls
// back to the built-in defaults.
func newTracker(store storage.Store, cfg *config.Config, logger *slog.Logger) (*accounting.Tracker, error) {
	policy, err := accounting.ParsePolicy(cfg.Tracking.HeartbeatPolicy)
	if err != nil {
		return nil, err
	}
	opts := []accounting.Option{accounting.WithPolicy(policy), accounting.WithLogger(logger)}
	if cfg.Tracking.DefaultTrackedSites != nil {
		opts = append(opts, accounting.WithDefaultTrackedSites(cfg.Tracking.DefaultTrackedSites))
	}
	return accounting.New(store, opts...), nil
}

// withTracker runs a Tracker over store for the duration of fn.
func withTracker(store storage.Store, cfg *config.Config, logger *slog.Logger, fn func(context.Context, *accounting.Tracker) error) error {
	tr, err := newTracker(store, cfg, logger)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = tr.Run(ctx)
	}()
	defer func() {
		cancel()
		<-done
	}()

	return fn(ctx, tr)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseDuration parses a human-friendly duration string like "7d", "24h", "2w".
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, fmt.Errorf("invalid duration: empty string")
	}
	if s == "0" {
		return 0, nil
	}

	if len(s) < 2 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]

	n, err := strconv.Atoi(numStr)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("invalid duration: %q", s)
	}

	switch suffix {
	case 'd':
		return time.Duration(n) * 24 * time.Hour, nil
	case 'h':
		return time.Duration(n) * time.Hour, nil
	case 'w':
		return time.Duration(n) * 7 * 24 * time.Hour, nil
	case 'm':
		return time.Duration(n) * time.Minute, nil
	default:
		return 0, fmt.Errorf("invalid duration: %q (use d, h, w, or m suffix)", s)
	}
}

// formatDurationHuman formats a duration into a human-readable string like "30 days".
func formatDurationHuman(d time.Duration) string {
	days := int(d.Hours() / 24)
	if days > 0 {
		if days == 1 {
			return "1 day"
		}
		return fmt.Sprintf("%d days", days)
	}
	hours := int(d.Hours())
	if hours > 0 {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", hours)
	}
	return d.String()
}

// formatSeconds renders an accumulated time like "2h 05m 09s".
func formatSeconds(secs int64) string {
	h := secs / 3600
	m := (secs % 3600) / 60
	s := secs % 60
	switch {
	case h > 0:
		return fmt.Sprintf("%dh %02dm %02ds", h, m, s)
	case m > 0:
		return fmt.Sprintf("%dm %02ds", m, s)
	default:
		return fmt.Sprintf("%ds", s)
	}
}

// formatNumber formats an int64 with comma separators.
func formatNumber(n int64) string {
	s := strconv.FormatInt(n, 10)
	if len(s) <= 3 {
		return s
	}

	var result strings.Builder
	remainder := len(s) % 3
	if remainder > 0 {
		result.WriteString(s[:remainder])
	}
	for i := remainder; i < len(s); i += 3 {
		if i > 0 {
			result.WriteString(",")
		}
		result.WriteString(s[i : i+3])
	}
	return result.String()
}
