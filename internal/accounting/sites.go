package accounting

import (
	"context"
	"fmt"

	"github.com/runnerr0/sitetime/internal/sitedomain"
	"github.com/runnerr0/sitetime/internal/storage"
)

// setSites persists the normalized list, rebuilds the set and recomputes
// totals from scratch.
func (t *Tracker) setSites(ctx context.Context, sites []string) error {
	sites = sitedomain.NormalizeSites(sites)
	if err := t.store.SetTrackedSites(ctx, sites); err != nil {
		return fmt.Errorf("save tracked sites: %w", err)
	}
	t.rebuild(sites)
	return t.recompute(ctx)
}

func (t *Tracker) sitesCopy() []string {
	return append([]string{}, t.sites...)
}

// SetTrackedSites replaces the tracked list and returns it normalized.
func (t *Tracker) SetTrackedSites(ctx context.Context, sites []string) ([]string, error) {
	var out []string
	err := t.do(ctx, func(ctx context.Context) error {
		err := t.setSites(ctx, sites)
		out = t.sitesCopy()
		return err
	})
	return out, err
}

// AddTrackedSite appends site if it is not already tracked. A blank site
// leaves the list unchanged.
func (t *Tracker) AddTrackedSite(ctx context.Context, site string) ([]string, error) {
	site = sitedomain.NormalizeSite(site)
	var out []string
	err := t.do(ctx, func(ctx context.Context) error {
		if site == "" {
			out = t.sitesCopy()
			return nil
		}
		err := t.setSites(ctx, append(t.sitesCopy(), site))
		out = t.sitesCopy()
		return err
	})
	return out, err
}

// RemoveTrackedSite drops site from the tracked list.
func (t *Tracker) RemoveTrackedSite(ctx context.Context, site string) ([]string, error) {
	site = sitedomain.NormalizeSite(site)
	var out []string
	err := t.do(ctx, func(ctx context.Context) error {
		kept := make([]string, 0, len(t.sites))
		for _, s := range t.sites {
			if s != site {
				kept = append(kept, s)
			}
		}
		err := t.setSites(ctx, kept)
		out = t.sitesCopy()
		return err
	})
	return out, err
}

// TrackedSites returns the current tracked list.
func (t *Tracker) TrackedSites(ctx context.Context) ([]string, error) {
	var out []string
	err := t.do(ctx, func(ctx context.Context) error {
		if err := t.syncExternal(ctx); err != nil {
			return err
		}
		out = t.sitesCopy()
		return nil
	})
	return out, err
}

// Reset clears all recorded time and totals. The tracked list is kept.
func (t *Tracker) Reset(ctx context.Context) error {
	return t.do(ctx, func(ctx context.Context) error {
		if err := t.store.Reset(ctx); err != nil {
			return fmt.Errorf("reset: %w", err)
		}
		t.totals = storage.Totals{}
		t.logger.Info("accounting reset")
		return nil
	})
}

// SiteTimes returns every domain's accumulated seconds.
func (t *Tracker) SiteTimes(ctx context.Context) (map[string]int64, error) {
	var out map[string]int64
	err := t.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.store.SiteTimes(ctx)
		return err
	})
	return out, err
}

// Totals returns the persisted totals and refreshes the in-memory copy.
func (t *Tracker) Totals(ctx context.Context) (storage.Totals, error) {
	var out storage.Totals
	err := t.do(ctx, func(ctx context.Context) error {
		var err error
		out, err = t.store.Totals(ctx)
		if err == nil {
			t.totals = out
		}
		return err
	})
	return out, err
}

// UntrackedTime returns the seconds spent on sites that are not tracked.
func (t *Tracker) UntrackedTime(ctx context.Context) (int64, error) {
	totals, err := t.Totals(ctx)
	return totals.Untracked, err
}
