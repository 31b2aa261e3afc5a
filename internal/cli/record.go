package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/storage"
)

// Execute implements the go-flags Commander interface for RecordCommand.
func (c *RecordCommand) Execute(args []string) error {
	if c.Domain == "" {
		return fmt.Errorf("--domain is required for record command")
	}
	if c.Seconds <= 0 {
		return fmt.Errorf("--seconds must be positive")
	}
	return withConfigStore(c.globals, c.executeWithStore)
}

func (c *RecordCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config) error {
	var totals storage.Totals
	err := withTracker(store, cfg, cliLogger(c.globals), func(ctx context.Context, tr *accounting.Tracker) error {
		if err := tr.RecordTime(ctx, c.Domain, c.Seconds); err != nil {
			return err
		}
		var err error
		totals, err = tr.Totals(ctx)
		return err
	})
	if err != nil {
		return err
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(map[string]any{
			"recorded": true,
			"domain":   c.Domain,
			"seconds":  c.Seconds,
			"totals":   totals,
		})
	}
	fmt.Printf("Recorded %s for %s.\n", formatSeconds(c.Seconds), c.Domain)
	fmt.Printf("Tracked %s, other %s.\n", formatSeconds(totals.Tracked), formatSeconds(totals.Other))
	return nil
}
