package storage

import (
	"context"
	"database/sql"
	"math"
	"path/filepath"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// openTestStore creates a migrated in-memory Store for testing.
func openTestStore(t *testing.T) (*SQLiteStore, *sql.DB) {
	t.Helper()
	db := openTestDB(t)
	require.NoError(t, NewMigrationRunner(db).Run())

	store, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store, db
}

func TestAddTime_AccumulatesPerDomain(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddTime(ctx, "a.com", 10, false)
	require.NoError(t, err)
	_, err = store.AddTime(ctx, "a.com", 5, false)
	require.NoError(t, err)
	_, err = store.AddTime(ctx, "b.com", 3, true)
	require.NoError(t, err)

	times, err := store.SiteTimes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a.com": 15, "b.com": 3}, times)
}

func TestAddTime_SplitsTotalsByClassification(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	totals, err := store.AddTime(ctx, "notion.so", 10, true)
	require.NoError(t, err)
	assert.Equal(t, Totals{Tracked: 10}, totals)

	totals, err = store.AddTime(ctx, "news.com", 7, false)
	require.NoError(t, err)
	assert.Equal(t, Totals{Tracked: 10, Other: 7, Untracked: 7}, totals)

	persisted, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, totals, persisted)
}

func TestAddTime_RejectsNonPositive(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddTime(ctx, "a.com", 0, false)
	require.Error(t, err)

	times, err := store.SiteTimes(ctx)
	require.NoError(t, err)
	assert.Empty(t, times)
}

func TestTrackedSites_NeverWritten(t *testing.T) {
	store, _ := openTestStore(t)

	sites, ok, err := store.TrackedSites(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Empty(t, sites)
}

func TestTrackedSites_Roundtrip(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetTrackedSites(ctx, []string{"notion.so", "leetcode.com"}))
	sites, ok, err := store.TrackedSites(ctx)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []string{"notion.so", "leetcode.com"}, sites)

	require.NoError(t, store.SetTrackedSites(ctx, nil))
	sites, ok, err = store.TrackedSites(ctx)
	require.NoError(t, err)
	assert.True(t, ok, "an explicitly empty list is still a written list")
	assert.Empty(t, sites)
}

func TestRecomputeTotals_ReclassifiesHistory(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddTime(ctx, "a.com", 10, false)
	require.NoError(t, err)
	_, err = store.AddTime(ctx, "b.com", 5, false)
	require.NoError(t, err)

	totals, err := store.RecomputeTotals(ctx, func(d string) bool { return d == "a.com" })
	require.NoError(t, err)
	assert.Equal(t, Totals{Tracked: 10, Other: 5, Untracked: 5}, totals)

	persisted, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, totals, persisted)
}

func TestReset_ClearsTimesAndTotalsButKeepsTrackedSites(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, store.SetTrackedSites(ctx, []string{"a.com"}))
	_, err := store.AddTime(ctx, "a.com", 10, true)
	require.NoError(t, err)
	_, err = store.AddTime(ctx, "b.com", 4, false)
	require.NoError(t, err)

	require.NoError(t, store.Reset(ctx))

	times, err := store.SiteTimes(ctx)
	require.NoError(t, err)
	assert.Empty(t, times)

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{}, totals)

	sites, _, err := store.TrackedSites(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"a.com"}, sites)
}

func TestChangeLog_RecordsKeysAndOrigin(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddTime(ctx, "a.com", 3, true)
	require.NoError(t, err)
	require.NoError(t, store.SetTrackedSites(ctx, []string{"a.com"}))

	changes, err := store.ChangesSince(ctx, 0)
	require.NoError(t, err)
	require.Len(t, changes, 2)

	assert.Equal(t, []string{KeySiteTimes, KeyTrackedTotal}, changes[0].Keys)
	assert.Equal(t, AreaLocal, changes[0].Area)
	assert.Equal(t, store.Origin(), changes[0].Origin)
	assert.NotEmpty(t, changes[0].ChangeID)
	assert.False(t, changes[0].Timestamp.IsZero())

	assert.True(t, changes[1].Has(KeyTrackedSites))
	assert.False(t, changes[1].Has(KeySiteTimes))

	latest, err := store.LatestChangeID(ctx)
	require.NoError(t, err)
	assert.Equal(t, changes[1].ID, latest)
}

func TestPruneChanges_KeepsNewestRow(t *testing.T) {
	store, db := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		_, err := store.AddTime(ctx, "a.com", 1, false)
		require.NoError(t, err)
	}
	_, err := db.Exec("UPDATE changes SET ts = '2020-01-01T00:00:00Z'")
	require.NoError(t, err)

	cutoff := time.Now().Add(-24 * time.Hour)
	pending, err := store.CountChangesBefore(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), pending)

	n, err := store.PruneChanges(ctx, cutoff)
	require.NoError(t, err)
	assert.Equal(t, int64(2), n)

	changes, err := store.ChangesSince(ctx, 0)
	require.NoError(t, err)
	assert.Len(t, changes, 1)
}

func TestPruneChanges_EmptyLog(t *testing.T) {
	store, _ := openTestStore(t)
	n, err := store.PruneChanges(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestGetStats(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	stats, err := store.GetStats(ctx, 10)
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Domains)
	assert.Empty(t, stats.TopDomains)

	for domain, secs := range map[string]int64{"a.com": 30, "b.com": 10, "c.com": 20} {
		_, err := store.AddTime(ctx, domain, secs, false)
		require.NoError(t, err)
	}

	stats, err = store.GetStats(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, int64(3), stats.Domains)
	assert.Equal(t, int64(60), stats.TotalSeconds)
	assert.Equal(t, int64(3), stats.Changes)
	assert.Equal(t, []DomainTime{{"a.com", 30}, {"c.com", 20}}, stats.TopDomains)
}

func TestWatch_DeliversOnlyForeignChanges(t *testing.T) {
	local, db := openTestStore(t)
	remote, err := NewSQLiteStore(db)
	require.NoError(t, err)
	t.Cleanup(func() { remote.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	start, err := local.LatestChangeID(ctx)
	require.NoError(t, err)

	got := make(chan Change, 4)
	done := make(chan error, 1)
	go func() {
		done <- local.WatchFrom(ctx, start, 10*time.Millisecond, func(c Change) { got <- c }, nil)
	}()

	_, err = local.AddTime(context.Background(), "a.com", 1, false)
	require.NoError(t, err)
	require.NoError(t, remote.SetTrackedSites(context.Background(), []string{"a.com"}))

	select {
	case c := <-got:
		assert.Equal(t, remote.Origin(), c.Origin)
		assert.True(t, c.Has(KeyTrackedSites))
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change notification")
	}

	select {
	case c := <-got:
		t.Fatalf("unexpected extra change: %+v", c)
	case <-time.After(50 * time.Millisecond):
	}

	cancel()
	require.NoError(t, <-done)
}

func TestWatch_RejectsZeroInterval(t *testing.T) {
	store, _ := openTestStore(t)
	err := store.Watch(context.Background(), 0, func(Change) {}, nil)
	require.Error(t, err)
}

func TestOpen_CreatesDatabaseFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "sitetime.db")

	store, db, err := Open(path, "wal")
	require.NoError(t, err)
	defer db.Close()
	defer store.Close()

	_, err = store.AddTime(context.Background(), "a.com", 2, false)
	require.NoError(t, err)
	assert.FileExists(t, path)
}

func TestAddTime_RejectsTotalOverflow(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddTime(ctx, "a.com", math.MaxInt64-10, false)
	require.NoError(t, err)

	_, err = store.AddTime(ctx, "b.com", 100, false)
	require.ErrorIs(t, err, ErrTotalOverflow)

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{Other: math.MaxInt64 - 10, Untracked: math.MaxInt64 - 10}, totals)

	times, err := store.SiteTimes(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]int64{"a.com": math.MaxInt64 - 10}, times, "the failed write left no site row")

	// The other bucket still has room.
	totals, err = store.AddTime(ctx, "c.com", 100, true)
	require.NoError(t, err)
	assert.Equal(t, int64(100), totals.Tracked)
}

func TestRecomputeTotals_RejectsOverflow(t *testing.T) {
	store, _ := openTestStore(t)
	ctx := context.Background()

	_, err := store.AddTime(ctx, "a.com", math.MaxInt64-10, false)
	require.NoError(t, err)
	_, err = store.AddTime(ctx, "b.com", math.MaxInt64-10, true)
	require.NoError(t, err)

	_, err = store.RecomputeTotals(ctx, func(string) bool { return true })
	require.ErrorIs(t, err, ErrTotalOverflow)

	totals, err := store.Totals(ctx)
	require.NoError(t, err)
	assert.Equal(t, Totals{Tracked: math.MaxInt64 - 10, Other: math.MaxInt64 - 10, Untracked: math.MaxInt64 - 10}, totals)
}

// A second process committing while a recompute is pending must not make the
// recompute fail or miss the committed row.
func TestRecomputeTotals_WaitsForOtherProcessWriter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sitetime.db")

	storeA, dbA, err := Open(path, "wal")
	require.NoError(t, err)
	t.Cleanup(func() {
		storeA.Close()
		dbA.Close()
	})
	storeB, dbB, err := Open(path, "wal")
	require.NoError(t, err)
	t.Cleanup(func() {
		storeB.Close()
		dbB.Close()
	})

	ctx := context.Background()
	tx, err := dbA.BeginTx(ctx, nil)
	require.NoError(t, err)
	_, err = tx.ExecContext(ctx,
		"INSERT INTO site_times (domain, seconds, updated_at) VALUES ('a.com', 7, ?)", nowString())
	require.NoError(t, err)

	type result struct {
		totals Totals
		err    error
	}
	done := make(chan result, 1)
	go func() {
		totals, err := storeB.RecomputeTotals(ctx, func(string) bool { return false })
		done <- result{totals, err}
	}()

	time.Sleep(50 * time.Millisecond)
	require.NoError(t, tx.Commit())

	select {
	case r := <-done:
		require.NoError(t, r.err)
		assert.Equal(t, Totals{Other: 7, Untracked: 7}, r.totals)
	case <-time.After(5 * time.Second):
		t.Fatal("recompute did not finish")
	}
}
