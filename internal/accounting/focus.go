package accounting

import (
	"context"
	"fmt"
	"time"

	"github.com/runnerr0/sitetime/internal/sitedomain"
)

// noteFocusTransition closes the interval of the previously active tab and
// installs next (nil clears). The interval is dropped when the previous tab
// had no URL. State moves on even if recording fails, so a failed write can
// never cause the same interval to be counted twice. lastActive never moves
// backwards: an event stamped before it installs next without reopening time
// that was already counted.
func (t *Tracker) noteFocusTransition(ctx context.Context, now time.Time, next *Tab) error {
	var err error
	if prev := t.active; prev != nil && prev.URL != "" {
		delta := int64(now.Sub(t.lastActive) / time.Second)
		if delta > 0 && t.policy.recordsFocus() {
			err = t.recordTime(ctx, sitedomain.FromURL(prev.URL), delta)
		}
	}

	if next != nil {
		tab := *next
		t.active = &tab
	} else {
		t.active = nil
	}
	if now.After(t.lastActive) {
		t.lastActive = now
	}
	return err
}

// NoteFocusTransition records time for the previous active tab and makes
// next the active tab. A nil next means no tab has focus.
func (t *Tracker) NoteFocusTransition(ctx context.Context, now time.Time, next *Tab) error {
	return t.do(ctx, func(ctx context.Context) error {
		return t.noteFocusTransition(ctx, now, next)
	})
}

// TabActivated handles the user switching to tab.
func (t *Tracker) TabActivated(ctx context.Context, now time.Time, tab Tab) error {
	return t.NoteFocusTransition(ctx, now, &tab)
}

// TabUpdated handles a URL change. Only a navigation of the active tab
// counts; anything else is ignored.
func (t *Tracker) TabUpdated(ctx context.Context, now time.Time, tabID int, url string) error {
	return t.do(ctx, func(ctx context.Context) error {
		if t.active == nil || t.active.ID != tabID || url == "" {
			return nil
		}
		return t.noteFocusTransition(ctx, now, &Tab{ID: tabID, URL: url})
	})
}

// WindowFocusChanged handles focus moving between windows. windowID
// WindowNone clears the active tab; otherwise tab is the active tab of the
// newly focused window, or nil if it has none.
func (t *Tracker) WindowFocusChanged(ctx context.Context, now time.Time, windowID int, tab *Tab) error {
	if windowID == WindowNone {
		tab = nil
	}
	return t.NoteFocusTransition(ctx, now, tab)
}

// Initialize is called on process start and extension install. It drops any
// stale active tab without recording and installs tab.
func (t *Tracker) Initialize(ctx context.Context, now time.Time, tab *Tab) error {
	return t.do(ctx, func(context.Context) error {
		t.active = nil
		if tab != nil {
			cp := *tab
			t.active = &cp
		}
		t.lastActive = now
		return nil
	})
}

// Heartbeat records a page's visibility tick. Ticks from hidden pages or
// without a sending tab are ignored; a missing duration counts as one second.
// Durations above MaxRecordSeconds are rejected.
func (t *Tracker) Heartbeat(ctx context.Context, hb Heartbeat) error {
	if !hb.Visible || hb.TabID <= 0 || !t.policy.recordsHeartbeats() {
		return nil
	}
	seconds := hb.Seconds
	if seconds == 0 {
		seconds = 1
	}
	if seconds > MaxRecordSeconds {
		return fmt.Errorf("%w: heartbeat of %ds", ErrDurationTooLong, seconds)
	}
	domain := sitedomain.FromURL(hb.URL)
	return t.do(ctx, func(ctx context.Context) error {
		return t.recordTime(ctx, domain, seconds)
	})
}
