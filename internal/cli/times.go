package cli

import (
	"context"
	"fmt"
	"sort"

	"github.com/runnerr0/sitetime/internal/config"
	"github.com/runnerr0/sitetime/internal/storage"
)

type siteTimeJSON struct {
	Domain  string `json:"domain"`
	Seconds int64  `json:"seconds"`
	Tracked bool   `json:"tracked"`
}

// Execute implements the go-flags Commander interface for TimesCommand.
func (c *TimesCommand) Execute(args []string) error {
	return withConfigStore(c.globals, c.executeWithStore)
}

func (c *TimesCommand) executeWithStore(store *storage.SQLiteStore, cfg *config.Config) error {
	ctx := context.Background()

	times, err := store.SiteTimes(ctx)
	if err != nil {
		return fmt.Errorf("read site times: %w", err)
	}
	sites, _, err := store.TrackedSites(ctx)
	if err != nil {
		return fmt.Errorf("read tracked sites: %w", err)
	}
	tracked := make(map[string]bool, len(sites))
	for _, s := range sites {
		tracked[s] = true
	}

	rows := make([]siteTimeJSON, 0, len(times))
	for domain, secs := range times {
		rows = append(rows, siteTimeJSON{Domain: domain, Seconds: secs, Tracked: tracked[domain]})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Seconds != rows[j].Seconds {
			return rows[i].Seconds > rows[j].Seconds
		}
		return rows[i].Domain < rows[j].Domain
	})
	if c.Limit > 0 && len(rows) > c.Limit {
		rows = rows[:c.Limit]
	}

	if c.globals != nil && c.globals.JSON {
		return printJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No time recorded yet.")
		return nil
	}
	for _, r := range rows {
		mark := " "
		if r.Tracked {
			mark = "*"
		}
		fmt.Printf("%s %-32s %12s\n", mark, r.Domain, formatSeconds(r.Seconds))
	}
	fmt.Println()
	fmt.Println("* tracked site")
	return nil
}
