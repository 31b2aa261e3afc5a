package message

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/sitetime/internal/accounting"
	"github.com/runnerr0/sitetime/internal/storage"
)

// Accounting is the subset of *accounting.Tracker the dispatcher drives.
type Accounting interface {
	SetTrackedSites(ctx context.Context, sites []string) ([]string, error)
	AddTrackedSite(ctx context.Context, site string) ([]string, error)
	RemoveTrackedSite(ctx context.Context, site string) ([]string, error)
	TrackedSites(ctx context.Context) ([]string, error)
	Heartbeat(ctx context.Context, hb accounting.Heartbeat) error
	SiteTimes(ctx context.Context) (map[string]int64, error)
	Totals(ctx context.Context) (storage.Totals, error)
	UntrackedTime(ctx context.Context) (int64, error)
	Reset(ctx context.Context) error
	TabActivated(ctx context.Context, now time.Time, tab accounting.Tab) error
	TabUpdated(ctx context.Context, now time.Time, tabID int, url string) error
	WindowFocusChanged(ctx context.Context, now time.Time, windowID int, tab *accounting.Tab) error
	Initialize(ctx context.Context, now time.Time, tab *accounting.Tab) error
	Now() time.Time
}

// SitesResponse answers tracked-site reads and mutations.
type SitesResponse struct {
	OK    bool     `json:"ok,omitempty"`
	Sites []string `json:"sites"`
}

type TimesResponse struct {
	Times map[string]int64 `json:"times"`
}

type TotalsResponse struct {
	TrackedTotal       int64 `json:"trackedTotal"`
	OtherTotal         int64 `json:"otherTotal"`
	UntrackedSitesTime int64 `json:"untrackedSitesTime"`
}

type UntrackedTimeResponse struct {
	UntrackedSitesTime int64 `json:"untrackedSitesTime"`
}

type OKResponse struct {
	OK bool `json:"ok"`
}

// Dispatcher routes decoded messages to the accounting tracker.
type Dispatcher struct {
	acct Accounting
}

func NewDispatcher(acct Accounting) *Dispatcher {
	return &Dispatcher{acct: acct}
}

func (d *Dispatcher) at(ms int64) time.Time {
	if ms > 0 {
		return time.UnixMilli(ms)
	}
	return d.acct.Now()
}

func tabOf(id int, url string) *accounting.Tab {
	if id == 0 && url == "" {
		return nil
	}
	return &accounting.Tab{ID: id, URL: url}
}

// Dispatch applies msg. A nil response means the message kind has no reply.
func (d *Dispatcher) Dispatch(ctx context.Context, msg Message) (any, error) {
	switch m := msg.(type) {
	case SetTrackedSitesArray:
		sites, err := d.acct.SetTrackedSites(ctx, m.Sites)
		if err != nil {
			return nil, err
		}
		return SitesResponse{OK: true, Sites: sites}, nil

	case GetTrackedSitesArray:
		sites, err := d.acct.TrackedSites(ctx)
		if err != nil {
			return nil, err
		}
		return SitesResponse{Sites: sites}, nil

	case AddTrackedSite:
		sites, err := d.acct.AddTrackedSite(ctx, m.Site)
		if err != nil {
			return nil, err
		}
		return SitesResponse{OK: true, Sites: sites}, nil

	case RemoveTrackedSite:
		sites, err := d.acct.RemoveTrackedSite(ctx, m.Site)
		if err != nil {
			return nil, err
		}
		return SitesResponse{OK: true, Sites: sites}, nil

	case Heartbeat:
		hb := accounting.Heartbeat{Visible: m.Visible, URL: m.URL, Seconds: m.Seconds}
		if m.Sender != nil {
			hb.TabID = m.Sender.TabID
		}
		return nil, d.acct.Heartbeat(ctx, hb)

	case GetTimes:
		times, err := d.acct.SiteTimes(ctx)
		if err != nil {
			return nil, err
		}
		return TimesResponse{Times: times}, nil

	case GetTotals:
		t, err := d.acct.Totals(ctx)
		if err != nil {
			return nil, err
		}
		return TotalsResponse{TrackedTotal: t.Tracked, OtherTotal: t.Other, UntrackedSitesTime: t.Untracked}, nil

	case GetUntrackedTime:
		u, err := d.acct.UntrackedTime(ctx)
		if err != nil {
			return nil, err
		}
		return UntrackedTimeResponse{UntrackedSitesTime: u}, nil

	case Reset:
		if err := d.acct.Reset(ctx); err != nil {
			return nil, err
		}
		return OKResponse{OK: true}, nil

	case TabActivated:
		return nil, d.acct.TabActivated(ctx, d.at(m.Timestamp), accounting.Tab{ID: m.TabID, URL: m.URL})

	case TabUpdated:
		return nil, d.acct.TabUpdated(ctx, d.at(m.Timestamp), m.TabID, m.URL)

	case WindowFocusChanged:
		return nil, d.acct.WindowFocusChanged(ctx, d.at(m.Timestamp), m.WindowID, tabOf(m.TabID, m.URL))

	case Startup:
		return nil, d.acct.Initialize(ctx, d.at(m.Timestamp), tabOf(m.TabID, m.URL))

	case Installed:
		return nil, d.acct.Initialize(ctx, d.at(m.Timestamp), tabOf(m.TabID, m.URL))

	default:
		return nil, fmt.Errorf("%w: %T", ErrUnknownType, msg)
	}
}
