package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/oklog/ulid/v2"
)

// ErrTotalOverflow is returned when a write would push a total past the
// largest representable number of seconds.
var ErrTotalOverflow = errors.New("storage: total overflow")

// Store defines the durable state behind the time accounting.
type Store interface {
	SiteTimes(ctx context.Context) (map[string]int64, error)
	AddTime(ctx context.Context, domain string, seconds int64, tracked bool) (Totals, error)
	Totals(ctx context.Context) (Totals, error)
	TrackedSites(ctx context.Context) ([]string, bool, error)
	SetTrackedSites(ctx context.Context, sites []string) error
	RecomputeTotals(ctx context.Context, isTracked func(domain string) bool) (Totals, error)
	Reset(ctx context.Context) error
	GetStats(ctx context.Context, top int) (*Stats, error)
	LatestChangeID(ctx context.Context) (int64, error)
	ChangesSince(ctx context.Context, afterID int64) ([]Change, error)
	PruneChanges(ctx context.Context, olderThan time.Time) (int64, error)
	Origin() string
	Close() error
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore implements Store backed by a SQLite database. Every write runs
// in one transaction and appends a change-log row tagged with origin.
type SQLiteStore struct {
	db     *sql.DB
	origin string

	// Prepared statements
	upsertSiteTime *sql.Stmt
	getKV          *sql.Stmt
	putKV          *sql.Stmt
	insertChange   *sql.Stmt
}

// Open opens (creating if needed) the database at path, runs migrations and
// returns a ready store plus the underlying *sql.DB.
func Open(path, journalMode string) (*SQLiteStore, *sql.DB, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	// Immediate transactions take the write lock up front. A deferred one that
	// reads before writing fails with SQLITE_BUSY_SNAPSHOT when another
	// process commits in between.
	db, err := sql.Open("sqlite3", path+"?_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, nil, fmt.Errorf("open database: %w", err)
	}
	// One connection: writes are serialized and an in-memory database is
	// shared by every caller.
	db.SetMaxOpenConns(1)

	if err := NewMigrationRunner(db).WithJournalMode(journalMode).Run(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	store, err := NewSQLiteStore(db)
	if err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("create store: %w", err)
	}
	return store, db, nil
}

// NewSQLiteStore creates a new SQLiteStore from an already-opened and migrated
// database. Each store gets a fresh origin so it can tell its own changes
// apart from those written by other processes.
func NewSQLiteStore(db *sql.DB) (*SQLiteStore, error) {
	s := &SQLiteStore{db: db, origin: ulid.Make().String()}

	if err := s.prepareStatements(); err != nil {
		return nil, fmt.Errorf("prepare statements: %w", err)
	}

	return s, nil
}

func (s *SQLiteStore) prepareStatements() error {
	var err error

	s.upsertSiteTime, err = s.db.Prepare(`
		INSERT INTO site_times (domain, seconds, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(domain) DO UPDATE SET
			seconds = seconds + excluded.seconds,
			updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.getKV, err = s.db.Prepare(`SELECT value FROM kv WHERE key = ?`)
	if err != nil {
		return err
	}

	s.putKV, err = s.db.Prepare(`
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at
	`)
	if err != nil {
		return err
	}

	s.insertChange, err = s.db.Prepare(`
		INSERT INTO changes (change_id, area, keys, origin, ts) VALUES (?, ?, ?, ?, ?)
	`)
	if err != nil {
		return err
	}

	return nil
}

// Origin returns the identifier stamped on this store's change-log rows.
func (s *SQLiteStore) Origin() string {
	return s.origin
}

func nowString() string {
	return time.Now().UTC().Format(time.RFC3339)
}

// parseTimestamp tries several common SQLite timestamp formats.
func parseTimestamp(s string) (time.Time, error) {
	formats := []string{
		time.RFC3339Nano,
		time.RFC3339,
		"2006-01-02 15:04:05",
	}
	for _, f := range formats {
		if t, err := time.Parse(f, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("cannot parse timestamp: %s", s)
}

// SiteTimes returns every recorded domain with its accumulated seconds.
func (s *SQLiteStore) SiteTimes(ctx context.Context) (map[string]int64, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT domain, seconds FROM site_times")
	if err != nil {
		return nil, fmt.Errorf("query site times: %w", err)
	}
	defer rows.Close()

	times := make(map[string]int64)
	for rows.Next() {
		var domain string
		var seconds int64
		if err := rows.Scan(&domain, &seconds); err != nil {
			return nil, fmt.Errorf("scan site time: %w", err)
		}
		times[domain] = seconds
	}
	return times, rows.Err()
}

// AddTime adds seconds to domain and to the bucket matching tracked, all in
// one transaction. It returns the totals as persisted.
func (s *SQLiteStore) AddTime(ctx context.Context, domain string, seconds int64, tracked bool) (Totals, error) {
	if seconds <= 0 {
		return Totals{}, fmt.Errorf("add time: non-positive duration %d", seconds)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Totals{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	totals, err := s.readTotals(ctx, tx)
	if err != nil {
		return Totals{}, err
	}
	// A site's time never exceeds its bucket, so checking the buckets also
	// covers the per-site sum.
	if tracked && totals.Tracked > math.MaxInt64-seconds ||
		!tracked && (totals.Other > math.MaxInt64-seconds || totals.Untracked > math.MaxInt64-seconds) {
		return Totals{}, fmt.Errorf("%w: adding %ds to %s", ErrTotalOverflow, seconds, domain)
	}

	ts := nowString()
	if _, err := tx.StmtContext(ctx, s.upsertSiteTime).ExecContext(ctx, domain, seconds, ts); err != nil {
		return Totals{}, fmt.Errorf("update site time: %w", err)
	}

	var keys []string
	if tracked {
		totals.Tracked += seconds
		keys = []string{KeySiteTimes, KeyTrackedTotal}
	} else {
		totals.Other += seconds
		totals.Untracked += seconds
		keys = []string{KeySiteTimes, KeyOtherTotal, KeyUntrackedSitesTime}
	}

	if err := s.writeTotals(ctx, tx, totals, ts); err != nil {
		return Totals{}, err
	}
	if err := s.logChange(ctx, tx, keys, ts); err != nil {
		return Totals{}, err
	}

	if err := tx.Commit(); err != nil {
		return Totals{}, fmt.Errorf("commit: %w", err)
	}
	return totals, nil
}

// Totals returns the persisted cached totals.
func (s *SQLiteStore) Totals(ctx context.Context) (Totals, error) {
	return s.readTotals(ctx, s.db)
}

func (s *SQLiteStore) readTotals(ctx context.Context, q querier) (Totals, error) {
	var t Totals
	targets := map[string]*int64{
		KeyTrackedTotal:       &t.Tracked,
		KeyOtherTotal:         &t.Other,
		KeyUntrackedSitesTime: &t.Untracked,
	}
	for key, dst := range targets {
		raw, ok, err := s.readKV(ctx, q, key)
		if err != nil {
			return Totals{}, err
		}
		if !ok {
			continue
		}
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Totals{}, fmt.Errorf("decode %s: %w", key, err)
		}
		*dst = n
	}
	return t, nil
}

func (s *SQLiteStore) writeTotals(ctx context.Context, tx *sql.Tx, t Totals, ts string) error {
	values := []struct {
		key string
		n   int64
	}{
		{KeyTrackedTotal, t.Tracked},
		{KeyOtherTotal, t.Other},
		{KeyUntrackedSitesTime, t.Untracked},
	}
	stmt := tx.StmtContext(ctx, s.putKV)
	for _, v := range values {
		if _, err := stmt.ExecContext(ctx, v.key, strconv.FormatInt(v.n, 10), ts); err != nil {
			return fmt.Errorf("write %s: %w", v.key, err)
		}
	}
	return nil
}

func (s *SQLiteStore) readKV(ctx context.Context, q querier, key string) (string, bool, error) {
	var raw string
	var err error
	if tx, ok := q.(*sql.Tx); ok {
		err = tx.StmtContext(ctx, s.getKV).QueryRowContext(ctx, key).Scan(&raw)
	} else {
		err = s.getKV.QueryRowContext(ctx, key).Scan(&raw)
	}
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("read %s: %w", key, err)
	}
	return raw, true, nil
}

// TrackedSites returns the persisted tracked-site list. The boolean is false
// when no list has ever been written.
func (s *SQLiteStore) TrackedSites(ctx context.Context) ([]string, bool, error) {
	raw, ok, err := s.readKV(ctx, s.db, KeyTrackedSites)
	if err != nil || !ok {
		return []string{}, false, err
	}
	var sites []string
	if err := json.Unmarshal([]byte(raw), &sites); err != nil {
		return nil, true, fmt.Errorf("decode %s: %w", KeyTrackedSites, err)
	}
	if sites == nil {
		sites = []string{}
	}
	return sites, true, nil
}

// SetTrackedSites persists sites as given. Normalization is the caller's job.
func (s *SQLiteStore) SetTrackedSites(ctx context.Context, sites []string) error {
	if sites == nil {
		sites = []string{}
	}
	data, err := json.Marshal(sites)
	if err != nil {
		return fmt.Errorf("encode %s: %w", KeyTrackedSites, err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	ts := nowString()
	if _, err := tx.StmtContext(ctx, s.putKV).ExecContext(ctx, KeyTrackedSites, string(data), ts); err != nil {
		return fmt.Errorf("write %s: %w", KeyTrackedSites, err)
	}
	if err := s.logChange(ctx, tx, []string{KeyTrackedSites}, ts); err != nil {
		return err
	}
	return tx.Commit()
}

// RecomputeTotals rescans every site time, classifies it with isTracked and
// overwrites all three totals.
func (s *SQLiteStore) RecomputeTotals(ctx context.Context, isTracked func(domain string) bool) (Totals, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return Totals{}, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	rows, err := tx.QueryContext(ctx, "SELECT domain, seconds FROM site_times")
	if err != nil {
		return Totals{}, fmt.Errorf("query site times: %w", err)
	}
	var t Totals
	for rows.Next() {
		var domain string
		var seconds int64
		if err := rows.Scan(&domain, &seconds); err != nil {
			rows.Close()
			return Totals{}, fmt.Errorf("scan site time: %w", err)
		}
		bucket := &t.Other
		if isTracked(domain) {
			bucket = &t.Tracked
		}
		if *bucket > math.MaxInt64-seconds {
			rows.Close()
			return Totals{}, fmt.Errorf("%w: reclassifying %s", ErrTotalOverflow, domain)
		}
		*bucket += seconds
		t.Untracked = t.Other
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return Totals{}, err
	}
	rows.Close()

	ts := nowString()
	if err := s.writeTotals(ctx, tx, t, ts); err != nil {
		return Totals{}, err
	}
	if err := s.logChange(ctx, tx, TotalKeys, ts); err != nil {
		return Totals{}, err
	}
	if err := tx.Commit(); err != nil {
		return Totals{}, fmt.Errorf("commit: %w", err)
	}
	return t, nil
}

// Reset deletes all site times and zeroes the totals. The tracked-site list
// is left alone.
func (s *SQLiteStore) Reset(ctx context.Context) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx, "DELETE FROM site_times"); err != nil {
		return fmt.Errorf("reset site times: %w", err)
	}
	ts := nowString()
	if err := s.writeTotals(ctx, tx, Totals{}, ts); err != nil {
		return err
	}
	keys := append([]string{KeySiteTimes}, TotalKeys...)
	if err := s.logChange(ctx, tx, keys, ts); err != nil {
		return err
	}
	return tx.Commit()
}

func (s *SQLiteStore) logChange(ctx context.Context, tx *sql.Tx, keys []string, ts string) error {
	_, err := tx.StmtContext(ctx, s.insertChange).ExecContext(ctx,
		ulid.Make().String(), AreaLocal, strings.Join(keys, ","), s.origin, ts,
	)
	if err != nil {
		return fmt.Errorf("record change: %w", err)
	}
	return nil
}

// LatestChangeID returns the id of the newest change-log row, or 0.
func (s *SQLiteStore) LatestChangeID(ctx context.Context) (int64, error) {
	var id sql.NullInt64
	if err := s.db.QueryRowContext(ctx, "SELECT MAX(id) FROM changes").Scan(&id); err != nil {
		return 0, fmt.Errorf("latest change: %w", err)
	}
	return id.Int64, nil
}

// ChangesSince returns change-log rows with id greater than afterID, oldest first.
func (s *SQLiteStore) ChangesSince(ctx context.Context, afterID int64) ([]Change, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, change_id, area, keys, origin, ts FROM changes WHERE id > ? ORDER BY id",
		afterID,
	)
	if err != nil {
		return nil, fmt.Errorf("query changes: %w", err)
	}
	defer rows.Close()

	changes := []Change{}
	for rows.Next() {
		var c Change
		var keys, ts string
		if err := rows.Scan(&c.ID, &c.ChangeID, &c.Area, &keys, &c.Origin, &ts); err != nil {
			return nil, fmt.Errorf("scan change: %w", err)
		}
		if keys != "" {
			c.Keys = strings.Split(keys, ",")
		}
		c.Timestamp, _ = parseTimestamp(ts)
		changes = append(changes, c)
	}
	return changes, rows.Err()
}

// PruneChanges deletes change-log rows written before olderThan. The newest
// row is always kept so watchers never see the id sequence move backwards.
func (s *SQLiteStore) PruneChanges(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM changes WHERE ts < ? AND id < (SELECT MAX(id) FROM changes)",
		olderThan.UTC().Format(time.RFC3339),
	)
	if err != nil {
		return 0, fmt.Errorf("prune changes: %w", err)
	}
	return res.RowsAffected()
}

// CountChangesBefore reports how many change-log rows PruneChanges would delete.
func (s *SQLiteStore) CountChangesBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM changes WHERE ts < ? AND id < (SELECT MAX(id) FROM changes)",
		olderThan.UTC().Format(time.RFC3339),
	).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count changes: %w", err)
	}
	return n, nil
}

// GetStats returns aggregate statistics with up to top domains by time.
func (s *SQLiteStore) GetStats(ctx context.Context, top int) (*Stats, error) {
	if top <= 0 {
		top = 10
	}
	stats := &Stats{TopDomains: []DomainTime{}}

	err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(*), COALESCE(SUM(seconds), 0) FROM site_times",
	).Scan(&stats.Domains, &stats.TotalSeconds)
	if err != nil {
		return nil, fmt.Errorf("count site times: %w", err)
	}

	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM changes").Scan(&stats.Changes); err != nil {
		return nil, fmt.Errorf("count changes: %w", err)
	}

	rows, err := s.db.QueryContext(ctx,
		"SELECT domain, seconds FROM site_times ORDER BY seconds DESC, domain LIMIT ?", top,
	)
	if err != nil {
		return nil, fmt.Errorf("top domains: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var dt DomainTime
		if err := rows.Scan(&dt.Domain, &dt.Seconds); err != nil {
			return nil, err
		}
		stats.TopDomains = append(stats.TopDomains, dt)
	}

	return stats, rows.Err()
}

// Close releases all prepared statements. The underlying *sql.DB is NOT
// closed; that is the caller's responsibility.
func (s *SQLiteStore) Close() error {
	stmts := []*sql.Stmt{s.upsertSiteTime, s.getKV, s.putKV, s.insertChange}
	for _, stmt := range stmts {
		if stmt != nil {
			stmt.Close()
		}
	}
	return nil
}
