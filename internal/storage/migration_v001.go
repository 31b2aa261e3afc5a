package storage

import "database/sql"

// migrateV001 creates the site-time schema. Every statement uses IF NOT
// EXISTS for idempotency.
func migrateV001(tx *sql.Tx) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS site_times (
			domain     TEXT PRIMARY KEY,
			seconds    INTEGER NOT NULL DEFAULT 0 CHECK (seconds >= 0),
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		// Scalar and list values (totals, tracked sites) stored as JSON text.
		`CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
		)`,

		`CREATE TABLE IF NOT EXISTS changes (
			id        INTEGER PRIMARY KEY AUTOINCREMENT,
			change_id TEXT NOT NULL UNIQUE,
			area      TEXT NOT NULL DEFAULT 'local',
			keys      TEXT NOT NULL,
			origin    TEXT NOT NULL,
			ts        DATETIME NOT NULL
		)`,

		`CREATE INDEX IF NOT EXISTS idx_site_times_seconds ON site_times(seconds)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_ts         ON changes(ts)`,
		`CREATE INDEX IF NOT EXISTS idx_changes_origin     ON changes(origin)`,
	}

	for _, stmt := range stmts {
		if _, err := tx.Exec(stmt); err != nil {
			return err
		}
	}

	// Totals always exist so reads never have to special-case a fresh DB.
	for _, key := range TotalKeys {
		if _, err := tx.Exec(`INSERT OR IGNORE INTO kv (key, value) VALUES (?, '0')`, key); err != nil {
			return err
		}
	}

	return nil
}
