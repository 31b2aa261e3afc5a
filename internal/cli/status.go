package cli

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/daemon"
	"github.com/runnerr0/sitetime/internal/storage"
)

const statusTopDomains = 10

// statusJSON is the JSON output structure for the status command.
type statusJSON struct {
	Version           string               `json:"version"`
	DatabasePath      string               `json:"database_path"`
	DatabaseSizeBytes int64                `json:"database_size_bytes"`
	TrackedSites      []string             `json:"tracked_sites"`
	Totals            storage.Totals       `json:"totals"`
	Domains           int64                `json:"domains"`
	TotalSeconds      int64                `json:"total_seconds"`
	Changes           int64                `json:"changes"`
	TopDomains        []storage.DomainTime `json:"top_domains"`
	HeartbeatPolicy   string               `json:"heartbeat_policy"`
	ChangeLogDays     int                  `json:"change_log_days"`
	DaemonAddr        string               `json:"daemon_addr"`
	DaemonRunning     bool                 `json:"daemon_running"`
}

// Execute implements the go-flags Commander interface for StatusCommand.
func (c *StatusCommand) Execute(args []string) error {
	return withConfigStore(c.globals, c.executeWithStore)
}

// executeWithStore runs status against a provided store (for testing).
func (c *StatusCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config) error {
	ctx := context.Background()

	stats, err := store.GetStats(ctx, statusTopDomains)
	if err != nil {
		return fmt.Errorf("get stats: %w", err)
	}
	totals, err := store.Totals(ctx)
	if err != nil {
		return fmt.Errorf("get totals: %w", err)
	}
	sites, ok, err := store.TrackedSites(ctx)
	if err != nil {
		return fmt.Errorf("get tracked sites: %w", err)
	}
	if !ok {
		// Not seeded yet; show what the tracker will seed.
		sites = cfg.Tracking.DefaultTrackedSites
		if sites == nil {
			sites = accounting.DefaultTrackedSites
		}
	}

	dbPath, _ := cfg.DBPath()
	out := statusJSON{
		Version:           c.version,
		DatabasePath:      dbPath,
		DatabaseSizeBytes: databaseSize(dbPath),
		TrackedSites:      sites,
		Totals:            totals,
		Domains:           stats.Domains,
		TotalSeconds:      stats.TotalSeconds,
		Changes:           stats.Changes,
		TopDomains:        stats.TopDomains,
		HeartbeatPolicy:   cfg.Tracking.HeartbeatPolicy,
		ChangeLogDays:     cfg.Retention.ChangeLogDays,
		DaemonAddr:        cfg.Addr(),
		DaemonRunning:     checkDaemon(cfg),
	}
	if out.TopDomains == nil {
		out.TopDomains = []storage.DomainTime{}
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(out)
	}
	return c.printStatusHuman(out)
}

func (c *StatusCommand) printStatusHuman(s statusJSON) error {
	fmt.Println("Sitetime Status")
	fmt.Println("===============")
	fmt.Printf("Version:       %s\n", s.Version)
	fmt.Printf("Database:      %s (%s)\n", s.DatabasePath, formatBytes(s.DatabaseSizeBytes))
	fmt.Printf("Sites:         %s\n", formatNumber(s.Domains))
	fmt.Printf("Total time:    %s\n", formatSeconds(s.TotalSeconds))
	fmt.Printf("Tracked:       %s\n", formatSeconds(s.Totals.Tracked))
	fmt.Printf("Other:         %s\n", formatSeconds(s.Totals.Other))
	fmt.Printf("Policy:        %s\n", s.HeartbeatPolicy)
	fmt.Printf("Change log:    %s rows, kept %d days\n", formatNumber(s.Changes), s.ChangeLogDays)

	fmt.Println()
	if len(s.TrackedSites) == 0 {
		fmt.Println("Tracked Sites: (none)")
	} else {
		fmt.Println("Tracked Sites:")
		for _, site := range s.TrackedSites {
			fmt.Printf("  %s\n", site)
		}
	}

	if len(s.TopDomains) > 0 {
		fmt.Println()
		fmt.Println("Top Sites:")
		for _, d := range s.TopDomains {
			fmt.Printf("  %-24s %s\n", d.Domain, formatSeconds(d.Seconds))
		}
	}

	fmt.Println()
	if s.DaemonRunning {
		fmt.Printf("Daemon:        running on %s\n", s.DaemonAddr)
	} else {
		fmt.Println("Daemon:        not running")
	}
	return nil
}

// databaseSize returns the database file size in bytes, 0 if unknown.
func databaseSize(dbPath string) int64 {
	info, err := os.Stat(dbPath)
	if err != nil {
		return 0
	}
	return info.Size()
}

// checkDaemon attempts an HTTP GET to the configured daemon address.
// Returns true if the daemon responds within 1 second.
func checkDaemon(cfg *config.Config) bool {
	req, err := http.NewRequest(http.MethodGet, "http://"+cfg.Addr()+"/status", nil)
	if err != nil {
		return false
	}
	if cfg.Daemon.AuthToken != "" {
		token, err := daemon.GenerateToken(cfg.Daemon.AuthToken, time.Minute)
		if err != nil {
			return false
		}
		req.Header.Set("Authorization", "Bearer "+token)
	}

	client := &http.Client{Timeout: 1 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

// formatBytes formats a byte count into a human-readable string.
func formatBytes(b int64) string {
	switch {
	case b >= 1<<30:
		return fmt.Sprintf("%.1f GB", float64(b)/float64(1<<30))
	case b >= 1<<20:
		return fmt.Sprintf("%.1f MB", float64(b)/float64(1<<20))
	case b >= 1<<10:
		return fmt.Sprintf("%.1f KB", float64(b)/float64(1<<10))
	default:
		return fmt.Sprintf("%d B", b)
	}
}
