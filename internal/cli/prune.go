package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/storage"
)

// pruneJSON is the JSON output structure for the prune command.
type pruneJSON struct {
	Cutoff  string `json:"cutoff"`
	Pruned  int64  `json:"pruned"`
	DryRun  bool   `json:"dry_run"`
	Message string `json:"message"`
}

// Execute implements the go-flags Commander interface for PruneCommand.
func (c *PruneCommand) Execute(args []string) error {
	return withConfigStore(c.globals, c.executeWithStore)
}

// executeWithStore runs prune against a provided store (for testing).
func (c *PruneCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config) error {
	retention := time.Duration(cfg.Retention.ChangeLogDays) * 24 * time.Hour
	if c.OlderThan != "" {
		d, err := parseDuration(c.OlderThan)
		if err != nil {
			return err
		}
		retention = d
	}
	if retention <= 0 {
		return fmt.Errorf("retention period must be positive")
	}

	ctx := context.Background()
	cutoff := time.Now().Add(-retention)

	var n int64
	var err error
	if c.DryRun {
		n, err = store.CountChangesBefore(ctx, cutoff)
	} else {
		n, err = store.PruneChanges(ctx, cutoff)
	}
	if err != nil {
		return fmt.Errorf("prune change log: %w", err)
	}

	var msg string
	if c.DryRun {
		msg = fmt.Sprintf("Would prune %s change-log rows older than %s.", formatNumber(n), formatDurationHuman(retention))
	} else {
		msg = fmt.Sprintf("Pruned %s change-log rows older than %s.", formatNumber(n), formatDurationHuman(retention))
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(pruneJSON{
			Cutoff:  cutoff.UTC().Format(time.RFC3339),
			Pruned:  n,
			DryRun:  c.DryRun,
			Message: msg,
		})
	}
	fmt.Println(msg)
	return nil
}
