package accounting

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/runnerr0/sitetime/internal/storage"
)

var t0 = time.Date(2025, 6, 1, 9, 0, 0, 0, time.UTC)

func siteTimes(t *testing.T, tr *Tracker) map[string]int64 {
	t.Helper()
	times, err := tr.SiteTimes(context.Background())
	require.NoError(t, err)
	return times
}

func TestFocus_TabSwitchRecordsPreviousTab(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://www.Notion.so/page"}))
	require.NoError(t, tr.TabActivated(ctx, t0.Add(42*time.Second+900*time.Millisecond), Tab{ID: 2, URL: "https://news.com"}))

	assert.Equal(t, map[string]int64{"notion.so": 42}, siteTimes(t, tr), "delta is floored to whole seconds")

	totals, err := tr.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(42), totals.Tracked, "notion.so is tracked by default")

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	require.NotNil(t, snap.Active)
	assert.Equal(t, 2, snap.Active.ID)
	assert.Equal(t, t0.Add(42*time.Second+900*time.Millisecond), snap.Active.Since)
}

func TestFocus_FirstActivationRecordsNothing(t *testing.T) {
	tr := startTracker(t, openStore(t))
	require.NoError(t, tr.TabActivated(context.Background(), t0, Tab{ID: 1, URL: "https://a.com"}))
	assert.Empty(t, siteTimes(t, tr))
}

func TestFocus_TabWithoutURLDiscardsInterval(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1}))
	require.NoError(t, tr.TabActivated(ctx, t0.Add(30*time.Second), Tab{ID: 2, URL: "https://a.com"}))
	assert.Empty(t, siteTimes(t, tr))

	// The timestamp still moved, so a.com only gets its own 5 seconds.
	require.NoError(t, tr.TabActivated(ctx, t0.Add(35*time.Second), Tab{ID: 3, URL: "https://b.com"}))
	assert.Equal(t, map[string]int64{"a.com": 5}, siteTimes(t, tr))
}

func TestFocus_URLChangeOnActiveTab(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.TabUpdated(ctx, t0.Add(10*time.Second), 1, "https://b.com/x"))
	require.NoError(t, tr.TabUpdated(ctx, t0.Add(12*time.Second), 1, "https://c.com"))

	assert.Equal(t, map[string]int64{"a.com": 10, "b.com": 2}, siteTimes(t, tr))
}

func TestFocus_URLChangeOnOtherTabIsIgnored(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.TabUpdated(ctx, t0.Add(10*time.Second), 99, "https://b.com"))
	require.NoError(t, tr.TabUpdated(ctx, t0.Add(11*time.Second), 1, ""))
	assert.Empty(t, siteTimes(t, tr))

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "https://a.com", snap.Active.URL)
	assert.Equal(t, t0, snap.Active.Since)
}

func TestFocus_URLChangeWithNoActiveTabIsIgnored(t *testing.T) {
	tr := startTracker(t, openStore(t))
	require.NoError(t, tr.TabUpdated(context.Background(), t0, 1, "https://b.com"))

	snap, err := tr.Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Active)
}

func TestFocus_LossAndRegain(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.WindowFocusChanged(ctx, t0.Add(20*time.Second), WindowNone, &Tab{ID: 1, URL: "https://a.com"}))

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Active, "focus loss clears the active tab even if a tab is passed")

	// Time away from the browser is not counted.
	require.NoError(t, tr.WindowFocusChanged(ctx, t0.Add(300*time.Second), 3, &Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.TabActivated(ctx, t0.Add(310*time.Second), Tab{ID: 2, URL: "https://b.com"}))

	assert.Equal(t, map[string]int64{"a.com": 30}, siteTimes(t, tr))
}

func TestFocus_LossThenRegainWithNoElapsedTime(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.WindowFocusChanged(ctx, t0, WindowNone, nil))
	require.NoError(t, tr.WindowFocusChanged(ctx, t0, 1, &Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.WindowFocusChanged(ctx, t0, WindowNone, nil))

	assert.Empty(t, siteTimes(t, tr))
	totals, err := tr.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Totals{}, totals)
}

func TestFocus_ClockGoingBackwardsRecordsNothing(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.TabActivated(ctx, t0.Add(-time.Minute), Tab{ID: 2, URL: "https://b.com"}))
	assert.Empty(t, siteTimes(t, tr))
}

// Events can arrive out of order over separate requests. A late event must
// not reopen time that was already counted.
func TestFocus_OutOfOrderEventDoesNotCountOverlapTwice(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://p.com"}))
	require.NoError(t, tr.TabActivated(ctx, t0.Add(100*time.Second), Tab{ID: 2, URL: "https://a.com"}))
	require.NoError(t, tr.TabActivated(ctx, t0.Add(90*time.Second), Tab{ID: 3, URL: "https://b.com"}))

	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, snap.Active.ID, "the late event still installs its tab")
	assert.Equal(t, t0.Add(100*time.Second), snap.Active.Since)

	require.NoError(t, tr.TabActivated(ctx, t0.Add(110*time.Second), Tab{ID: 4, URL: "https://c.com"}))

	times := siteTimes(t, tr)
	assert.Equal(t, map[string]int64{"p.com": 100, "b.com": 10}, times)

	var sum int64
	for _, s := range times {
		sum += s
	}
	assert.Equal(t, int64(110), sum, "recorded time never exceeds wall time")
}

func TestFocus_RegainWithoutActiveTab(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.WindowFocusChanged(ctx, t0.Add(8*time.Second), 2, nil))

	assert.Equal(t, map[string]int64{"a.com": 8}, siteTimes(t, tr))
	snap, err := tr.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Active)
}

func TestInitialize_DropsStaleTabWithoutRecording(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	require.NoError(t, tr.Initialize(ctx, t0.Add(time.Hour), &Tab{ID: 5, URL: "https://b.com"}))
	assert.Empty(t, siteTimes(t, tr))

	require.NoError(t, tr.TabActivated(ctx, t0.Add(time.Hour+15*time.Second), Tab{ID: 6, URL: "https://c.com"}))
	assert.Equal(t, map[string]int64{"b.com": 15}, siteTimes(t, tr))
}

func TestHeartbeat_RecordsVisibleTicks(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.Heartbeat(ctx, Heartbeat{Visible: true, URL: "https://leetcode.com/problems", Seconds: 5, TabID: 3}))
	require.NoError(t, tr.Heartbeat(ctx, Heartbeat{Visible: true, URL: "https://leetcode.com/", TabID: 3}))

	assert.Equal(t, map[string]int64{"leetcode.com": 6}, siteTimes(t, tr), "missing seconds count as one")
}

func TestHeartbeat_IgnoredTicks(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	require.NoError(t, tr.Heartbeat(ctx, Heartbeat{Visible: false, URL: "https://a.com", Seconds: 5, TabID: 3}))
	require.NoError(t, tr.Heartbeat(ctx, Heartbeat{Visible: true, URL: "https://a.com", Seconds: 5}))
	require.NoError(t, tr.Heartbeat(ctx, Heartbeat{Visible: true, URL: "https://a.com", Seconds: -5, TabID: 3}))

	assert.Empty(t, siteTimes(t, tr))
}

func TestHeartbeat_RejectsOversizedDuration(t *testing.T) {
	tr := startTracker(t, openStore(t))
	ctx := context.Background()

	err := tr.Heartbeat(ctx, Heartbeat{Visible: true, URL: "https://a.com", Seconds: math.MaxInt64 - 10, TabID: 1})
	require.ErrorIs(t, err, ErrDurationTooLong)
	require.NoError(t, tr.Heartbeat(ctx, Heartbeat{Visible: true, URL: "https://a.com", Seconds: 100, TabID: 1}))

	assert.Equal(t, map[string]int64{"a.com": 100}, siteTimes(t, tr))
	totals, err := tr.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, storage.Totals{Other: 100, Untracked: 100}, totals)
}

func TestHeartbeat_UnparsableURLGoesToUnknown(t *testing.T) {
	tr := startTracker(t, openStore(t))
	require.NoError(t, tr.Heartbeat(context.Background(), Heartbeat{Visible: true, URL: "not a url", Seconds: 5, TabID: 1}))
	assert.Equal(t, map[string]int64{"unknown": 5}, siteTimes(t, tr))
}

// Both sources report the same interval under the additive policy, which
// double counts. The other policies keep exactly one source.
func TestPolicy_OverlappingSources(t *testing.T) {
	run := func(t *testing.T, p Policy) int64 {
		tr := startTracker(t, openStore(t), WithPolicy(p))
		ctx := context.Background()

		require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
		for i := 0; i < 2; i++ {
			require.NoError(t, tr.Heartbeat(ctx, Heartbeat{Visible: true, URL: "https://a.com", Seconds: 5, TabID: 1}))
		}
		require.NoError(t, tr.TabActivated(ctx, t0.Add(10*time.Second), Tab{ID: 2, URL: "https://b.com"}))
		return siteTimes(t, tr)["a.com"]
	}

	t.Run("additive", func(t *testing.T) { assert.Equal(t, int64(20), run(t, PolicyAdditive)) })
	t.Run("heartbeat_only", func(t *testing.T) { assert.Equal(t, int64(10), run(t, PolicyHeartbeatOnly)) })
	t.Run("focus_only", func(t *testing.T) { assert.Equal(t, int64(10), run(t, PolicyFocusOnly)) })
}

func TestFocus_RecordFailureStillAdvancesState(t *testing.T) {
	fs := &failingStore{Store: openStore(t)}
	tr := startTracker(t, fs)
	ctx := context.Background()

	require.NoError(t, tr.TabActivated(ctx, t0, Tab{ID: 1, URL: "https://a.com"}))
	fs.failAdd = true
	require.Error(t, tr.TabActivated(ctx, t0.Add(10*time.Second), Tab{ID: 2, URL: "https://b.com"}))
	fs.failAdd = false

	require.NoError(t, tr.TabActivated(ctx, t0.Add(13*time.Second), Tab{ID: 3, URL: "https://c.com"}))
	assert.Equal(t, map[string]int64{"b.com": 3}, siteTimes(t, tr))
}
