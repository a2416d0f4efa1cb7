package storage

const schemaVersion = 3

const schema = `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS monitors (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	name             TEXT    NOT NULL,
	type             TEXT    NOT NULL,
	active           INTEGER NOT NULL DEFAULT 1,
	interval_sec     INTEGER NOT NULL DEFAULT 60,
	timeout_ms       INTEGER NOT NULL DEFAULT 5000,
	failures_to_down INTEGER NOT NULL DEFAULT 2,
	successes_to_up  INTEGER NOT NULL DEFAULT 2,
	config           TEXT    NOT NULL DEFAULT '{}',
	created_at       INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS monitor_state (
	monitor_id            INTEGER PRIMARY KEY REFERENCES monitors(id) ON DELETE CASCADE,
	status                TEXT    NOT NULL DEFAULT 'unknown',
	last_checked_at       INTEGER,
	last_latency_ms       INTEGER,
	last_error            TEXT    NOT NULL DEFAULT '',
	consecutive_failures  INTEGER NOT NULL DEFAULT 0,
	consecutive_successes INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS check_results (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id INTEGER NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	checked_at INTEGER NOT NULL,
	status     TEXT    NOT NULL,
	latency_ms INTEGER,
	error      TEXT    NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_check_results_monitor_time ON check_results(monitor_id, checked_at);

CREATE TABLE IF NOT EXISTS outages (
	id            INTEGER PRIMARY KEY AUTOINCREMENT,
	monitor_id    INTEGER NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	started_at    INTEGER NOT NULL,
	ended_at      INTEGER,
	initial_error TEXT    NOT NULL DEFAULT '',
	last_error    TEXT    NOT NULL DEFAULT ''
);

CREATE UNIQUE INDEX IF NOT EXISTS idx_outages_open ON outages(monitor_id) WHERE ended_at IS NULL;

CREATE TABLE IF NOT EXISTS incidents (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	title       TEXT    NOT NULL,
	status      TEXT    NOT NULL DEFAULT 'investigating',
	impact      TEXT    NOT NULL DEFAULT 'none',
	message     TEXT    NOT NULL DEFAULT '',
	started_at  INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	resolved_at INTEGER
);

CREATE INDEX IF NOT EXISTS idx_incidents_open ON incidents(status) WHERE resolved_at IS NULL;

CREATE TABLE IF NOT EXISTS incident_updates (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	incident_id INTEGER NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
	status      TEXT    NOT NULL,
	message     TEXT    NOT NULL DEFAULT '',
	created_at  INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS incident_monitors (
	incident_id INTEGER NOT NULL REFERENCES incidents(id) ON DELETE CASCADE,
	monitor_id  INTEGER NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	PRIMARY KEY (incident_id, monitor_id)
);

CREATE TABLE IF NOT EXISTS maintenance_windows (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	title      TEXT    NOT NULL,
	message    TEXT    NOT NULL DEFAULT '',
	starts_at  INTEGER NOT NULL,
	ends_at    INTEGER NOT NULL,
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now')),
	CHECK (starts_at < ends_at)
);

CREATE TABLE IF NOT EXISTS maintenance_monitors (
	window_id  INTEGER NOT NULL REFERENCES maintenance_windows(id) ON DELETE CASCADE,
	monitor_id INTEGER NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	PRIMARY KEY (window_id, monitor_id)
);

CREATE TABLE IF NOT EXISTS notification_channels (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	name       TEXT    NOT NULL,
	config     TEXT    NOT NULL DEFAULT '{}',
	created_at INTEGER NOT NULL DEFAULT (strftime('%s','now'))
);

CREATE TABLE IF NOT EXISTS notification_deliveries (
	id           INTEGER PRIMARY KEY AUTOINCREMENT,
	event_key    TEXT    NOT NULL,
	channel_id   INTEGER NOT NULL REFERENCES notification_channels(id) ON DELETE CASCADE,
	status       TEXT    NOT NULL DEFAULT 'pending',
	http_status  INTEGER,
	error        TEXT    NOT NULL DEFAULT '',
	attempted_at INTEGER NOT NULL,
	finalized_at INTEGER,
	UNIQUE (event_key, channel_id)
);

CREATE TABLE IF NOT EXISTS locks (
	name        TEXT    PRIMARY KEY,
	holder      TEXT    NOT NULL,
	acquired_at INTEGER NOT NULL,
	expires_at  INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS monitor_daily_rollups (
	monitor_id   INTEGER NOT NULL REFERENCES monitors(id) ON DELETE CASCADE,
	day_start_at INTEGER NOT NULL,
	total_sec    INTEGER NOT NULL DEFAULT 0,
	downtime_sec INTEGER NOT NULL DEFAULT 0,
	unknown_sec  INTEGER NOT NULL DEFAULT 0,
	uptime_sec   INTEGER NOT NULL DEFAULT 0,
	PRIMARY KEY (monitor_id, day_start_at)
);

CREATE TABLE IF NOT EXISTS public_snapshots (
	key          TEXT    PRIMARY KEY,
	generated_at INTEGER NOT NULL,
	body         TEXT    NOT NULL DEFAULT '{}'
);

CREATE INDEX IF NOT EXISTS idx_check_results_checked_at ON check_results(checked_at);
CREATE INDEX IF NOT EXISTS idx_outages_monitor_range ON outages(monitor_id, started_at);
CREATE INDEX IF NOT EXISTS idx_maintenance_windows_range ON maintenance_windows(starts_at, ends_at);
`

// migrations holds incremental schema changes after the initial schema.
var migrations = []struct {
	version int
	sql     string
}{
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_check_results_checked_at ON check_results(checked_at);
CREATE INDEX IF NOT EXISTS idx_outages_monitor_range ON outages(monitor_id, started_at);
CREATE INDEX IF NOT EXISTS idx_maintenance_windows_range ON maintenance_windows(starts_at, ends_at);`,
	},
	{
		version: 3,
		sql: `
CREATE TABLE IF NOT EXISTS public_snapshots (
	key          TEXT    PRIMARY KEY,
	generated_at INTEGER NOT NULL,
	body         TEXT    NOT NULL DEFAULT '{}'
);`,
	},
}
