// Package accounting keeps per-domain time totals for the browser. A Tracker
// owns all mutable accounting state and applies every operation on a single
// goroutine, so storage writes never interleave.
package accounting

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/runnerr0/sitetime/internal/sitedomain"
	"github.com/runnerr0/sitetime/internal/storage"
)

// ErrStopped is returned by operations submitted after Run has returned.
var ErrStopped = errors.New("accounting: tracker stopped")

// ErrDurationTooLong is returned when a single recording exceeds
// MaxRecordSeconds.
var ErrDurationTooLong = errors.New("accounting: duration too long")

// MaxRecordSeconds caps one recording at a day.
const MaxRecordSeconds int64 = 24 * 60 * 60

// WindowNone is the window id reported when every browser window lost focus.
const WindowNone = -1

// DefaultTrackedSites seeds the tracked list when none was ever persisted.
var DefaultTrackedSites = []string{"notion.so", "leetcode.com"}

// Tab identifies a browser tab and the URL it shows. URL may be empty for
// internal browser pages.
type Tab struct {
	ID  int    `json:"id"`
	URL string `json:"url"`
}

// ActiveTab is the focused tab and the time it became active.
type ActiveTab struct {
	Tab
	Since time.Time `json:"since"`
}

// Heartbeat is a visibility tick reported by a page.
type Heartbeat struct {
	Visible bool
	URL     string
	Seconds int64
	TabID   int
}

// Snapshot is a point-in-time copy of the tracker's in-memory state.
type Snapshot struct {
	TrackedSites []string       `json:"trackedSites"`
	Totals       storage.Totals `json:"totals"`
	Active       *ActiveTab     `json:"active,omitempty"`
	Policy       Policy         `json:"heartbeatPolicy"`
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Tracker) { t.logger = logger }
}

// WithPolicy sets how heartbeats and focus transitions share recording.
func WithPolicy(p Policy) Option {
	return func(t *Tracker) { t.policy = p }
}

// WithDefaultTrackedSites overrides DefaultTrackedSites.
func WithDefaultTrackedSites(sites []string) Option {
	return func(t *Tracker) { t.defaults = sitedomain.NormalizeSites(sites) }
}

// Tracker is the time accounting store. Construct with New, start Run in its
// own goroutine, then call the exported methods from anywhere.
type Tracker struct {
	store    storage.Store
	logger   *slog.Logger
	now      func() time.Time
	policy   Policy
	defaults []string

	ops     chan func()
	stopped chan struct{}
	running atomic.Bool

	// Owned by the Run goroutine.
	loaded       bool
	sites        []string
	tracked      map[string]struct{}
	totals       storage.Totals
	active       *Tab
	lastActive   time.Time
	lastChangeID int64
}

// New creates a Tracker over store.
func New(store storage.Store, opts ...Option) *Tracker {
	t := &Tracker{
		store:    store,
		logger:   slog.Default(),
		now:      time.Now,
		policy:   PolicyAdditive,
		defaults: sitedomain.NormalizeSites(DefaultTrackedSites),
		ops:      make(chan func()),
		stopped:  make(chan struct{}),
		sites:    []string{},
		tracked:  map[string]struct{}{},
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Run applies submitted operations one at a time until ctx is done. It must
// be called exactly once.
func (t *Tracker) Run(ctx context.Context) error {
	if !t.running.CompareAndSwap(false, true) {
		return errors.New("accounting: tracker already running")
	}
	defer close(t.stopped)

	for {
		select {
		case <-ctx.Done():
			return nil
		case op := <-t.ops:
			op()
		}
	}
}

// Now returns the tracker's clock reading.
func (t *Tracker) Now() time.Time {
	return t.now()
}

// do runs fn on the Run goroutine and waits for its result. Once accepted an
// operation always runs to completion.
func (t *Tracker) do(ctx context.Context, fn func(ctx context.Context) error) error {
	errc := make(chan error, 1)
	op := func() {
		if err := t.ensureLoaded(ctx); err != nil {
			errc <- err
			return
		}
		errc <- fn(ctx)
	}

	select {
	case t.ops <- op:
	case <-t.stopped:
		return ErrStopped
	case <-ctx.Done():
		return ctx.Err()
	}
	return <-errc
}

// ensureLoaded reads the tracked list and totals the first time any
// operation runs, seeding the default list on a fresh database.
func (t *Tracker) ensureLoaded(ctx context.Context) error {
	if t.loaded {
		return nil
	}

	id, err := t.store.LatestChangeID(ctx)
	if err != nil {
		return fmt.Errorf("load change position: %w", err)
	}
	t.lastChangeID = id

	sites, ok, err := t.store.TrackedSites(ctx)
	if err != nil {
		return fmt.Errorf("load tracked sites: %w", err)
	}
	if !ok {
		sites = append([]string(nil), t.defaults...)
		if err := t.store.SetTrackedSites(ctx, sites); err != nil {
			return fmt.Errorf("seed tracked sites: %w", err)
		}
		t.logger.Info("seeded default tracked sites", "sites", sites)
	}
	t.rebuild(sites)

	if err := t.recompute(ctx); err != nil {
		return err
	}
	t.loaded = true
	return nil
}

// rebuild replaces the in-memory tracked list and set.
func (t *Tracker) rebuild(sites []string) {
	t.sites = sitedomain.NormalizeSites(sites)
	t.tracked = make(map[string]struct{}, len(t.sites))
	for _, s := range t.sites {
		t.tracked[s] = struct{}{}
	}
}

func (t *Tracker) isTracked(domain string) bool {
	_, ok := t.tracked[domain]
	return ok
}

// recompute overwrites all totals from a full scan of site times.
func (t *Tracker) recompute(ctx context.Context) error {
	totals, err := t.store.RecomputeTotals(ctx, t.isTracked)
	if err != nil {
		return fmt.Errorf("recompute totals: %w", err)
	}
	t.totals = totals
	return nil
}

// syncExternal applies changes other processes wrote since the last look:
// a new tracked list is reloaded and fully recomputed, other keys only
// refresh the cached totals.
func (t *Tracker) syncExternal(ctx context.Context) error {
	changes, err := t.store.ChangesSince(ctx, t.lastChangeID)
	if err != nil {
		return fmt.Errorf("read change log: %w", err)
	}

	var reload, refresh bool
	for _, c := range changes {
		t.lastChangeID = c.ID
		if c.Origin == t.store.Origin() {
			continue
		}
		if c.Has(storage.KeyTrackedSites) {
			reload = true
		} else {
			refresh = true
		}
	}

	switch {
	case reload:
		sites, _, err := t.store.TrackedSites(ctx)
		if err != nil {
			return fmt.Errorf("reload tracked sites: %w", err)
		}
		t.rebuild(sites)
		t.logger.Info("tracked sites changed externally", "sites", t.sites)
		return t.recompute(ctx)
	case refresh:
		totals, err := t.store.Totals(ctx)
		if err != nil {
			return fmt.Errorf("refresh totals: %w", err)
		}
		t.totals = totals
	}
	return nil
}

// recordTime adds seconds to domain and to its classification bucket.
// Non-positive durations are ignored.
func (t *Tracker) recordTime(ctx context.Context, domain string, seconds int64) error {
	if seconds <= 0 {
		return nil
	}
	if seconds > MaxRecordSeconds {
		return fmt.Errorf("%w: %ds for %s", ErrDurationTooLong, seconds, domain)
	}
	if err := t.syncExternal(ctx); err != nil {
		return err
	}

	tracked := t.isTracked(domain)
	totals, err := t.store.AddTime(ctx, domain, seconds, tracked)
	if err != nil {
		return fmt.Errorf("record %ds for %s: %w", seconds, domain, err)
	}
	t.totals = totals
	t.logger.Debug("recorded time", "domain", domain, "seconds", seconds, "tracked", tracked)
	return nil
}

// RecordTime adds seconds to domain. Durations <= 0 are a no-op.
func (t *Tracker) RecordTime(ctx context.Context, domain string, seconds int64) error {
	domain = sitedomain.NormalizeSite(domain)
	if domain == "" {
		domain = sitedomain.Unknown
	}
	return t.do(ctx, func(ctx context.Context) error {
		return t.recordTime(ctx, domain, seconds)
	})
}

// Sync picks up tracked-list and totals changes written by other processes.
func (t *Tracker) Sync(ctx context.Context) error {
	return t.do(ctx, t.syncExternal)
}

// Snapshot returns a copy of the in-memory state.
func (t *Tracker) Snapshot(ctx context.Context) (Snapshot, error) {
	var snap Snapshot
	err := t.do(ctx, func(context.Context) error {
		snap = Snapshot{
			TrackedSites: append([]string{}, t.sites...),
			Totals:       t.totals,
			Policy:       t.policy,
		}
		if t.active != nil {
			snap.Active = &ActiveTab{Tab: *t.active, Since: t.lastActive}
		}
		return nil
	})
	return snap, err
}
