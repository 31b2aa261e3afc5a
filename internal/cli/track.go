package cli

import (
	"context"
	"fmt"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/storage"
)

type trackedSitesJSON struct {
	Sites []string `json:"sites"`
}

// Execute implements the go-flags Commander interface for TrackListCommand.
func (c *TrackListCommand) Execute(args []string) error {
	return withConfigStore(c.globals, func(store *storage.SQLiteStore, cfg *config.Config) error {
		return runTrack(c.globals, store, cfg, func(ctx context.Context, tr *accounting.Tracker) ([]string, error) {
			return tr.TrackedSites(ctx)
		})
	})
}

// Execute implements the go-flags Commander interface for TrackAddCommand.
func (c *TrackAddCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("track add requires at least one site")
	}
	return withConfigStore(c.globals, func(store *storage.SQLiteStore, cfg *config.Config) error {
		return c.executeWithStore(store, cfg, args)
	})
}

func (c *TrackAddCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config, sites []string) error {
	return runTrack(c.globals, store, cfg, func(ctx context.Context, tr *accounting.Tracker) ([]string, error) {
		var out []string
		for _, site := range sites {
			var err error
			if out, err = tr.AddTrackedSite(ctx, site); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// Execute implements the go-flags Commander interface for TrackRemoveCommand.
func (c *TrackRemoveCommand) Execute(args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("track remove requires at least one site")
	}
	return withConfigStore(c.globals, func(store *storage.SQLiteStore, cfg *config.Config) error {
		return c.executeWithStore(store, cfg, args)
	})
}

func (c *TrackRemoveCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config, sites []string) error {
	return runTrack(c.globals, store, cfg, func(ctx context.Context, tr *accounting.Tracker) ([]string, error) {
		var out []string
		for _, site := range sites {
			var err error
			if out, err = tr.RemoveTrackedSite(ctx, site); err != nil {
				return nil, err
			}
		}
		return out, nil
	})
}

// Execute implements the go-flags Commander interface for TrackSetCommand.
// No arguments clears the list.
func (c *TrackSetCommand) Execute(args []string) error {
	return withConfigStore(c.globals, func(store *storage.SQLiteStore, cfg *config.Config) error {
		return c.executeWithStore(store, cfg, args)
	})
}

func (c *TrackSetCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config, sites []string) error {
	return runTrack(c.globals, store, cfg, func(ctx context.Context, tr *accounting.Tracker) ([]string, error) {
		return tr.SetTrackedSites(ctx, sites)
	})
}

// runTrack applies op through a Tracker, so totals are reclassified the same
// way the daemon does it, then prints the resulting list.
func runTrack(globals *GlobalFlags, store storage.Store, cfg *config.Config, op func(context.Context, *accounting.Tracker) ([]string, error)) error {
	var sites []string
	err := withTracker(store, cfg, cliLogger(globals), func(ctx context.Context, tr *accounting.Tracker) error {
		var err error
		sites, err = op(ctx, tr)
		return err
	})
	if err != nil {
		return err
	}

	if globals != nil && globals.JSON {
		return printJSON(trackedSitesJSON{Sites: sites})
	}
	if len(sites) == 0 {
		fmt.Println("No tracked sites.")
		return nil
	}
	for _, s := range sites {
		fmt.Println(s)
	}
	return nil
}
