package store

// schemaSQL is the full schema applied to a fresh database. Grounded on
// internal/database/schema.go's "apply once on a fresh DB, no-op
// otherwise" shape, re-targeted at SQLite DDL, and on
// original_source/app/models.py for column shape (ownership/cascade
// behavior is expressed here via ON DELETE CASCADE rather than an ORM
// relationship, per spec §9's "replace cyclic ORM graph with flat
// records").
const schemaSQL = `
CREATE TABLE IF NOT EXISTS system_settings (
	id INTEGER PRIMARY KEY CHECK (id = 1),
	master_enabled INTEGER NOT NULL DEFAULT 0,
	poll_interval_seconds INTEGER NOT NULL DEFAULT 60,
	inter_announcement_pause_seconds INTEGER NOT NULL DEFAULT 10,
	ptt_gpio_pin INTEGER,
	ptt_active_level INTEGER NOT NULL DEFAULT 1,
	ptt_lead_ms INTEGER NOT NULL DEFAULT 500,
	ptt_tail_ms INTEGER NOT NULL DEFAULT 500,
	tx_timeout_seconds INTEGER NOT NULL DEFAULT 30
);

INSERT OR IGNORE INTO system_settings (id) VALUES (1);

CREATE TABLE IF NOT EXISTS provider_credentials (
	provider_id TEXT PRIMARY KEY,
	credentials_json TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE TABLE IF NOT EXISTS channels (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	name TEXT NOT NULL,
	enabled INTEGER NOT NULL DEFAULT 0,

	provider_id TEXT NOT NULL,
	station_id TEXT NOT NULL,
	station_name_cache TEXT,
	station_visual_url_cache TEXT,

	measurement_period_seconds INTEGER NOT NULL,
	offsets_seconds_json TEXT NOT NULL,
	min_interval_between_tx_seconds INTEGER NOT NULL DEFAULT 300,

	template_text TEXT NOT NULL,
	voice_engine_id TEXT NOT NULL,
	voice_id TEXT NOT NULL,
	voice_params_json TEXT,
	audio_device TEXT,

	ptt_lead_ms INTEGER NOT NULL DEFAULT 500,
	ptt_tail_ms INTEGER NOT NULL DEFAULT 500,

	created_at TEXT NOT NULL,
	updated_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_channels_provider ON channels (provider_id);

CREATE TABLE IF NOT EXISTS channel_runtime (
	channel_id INTEGER PRIMARY KEY REFERENCES channels(id) ON DELETE CASCADE,
	last_measurement_at TEXT,
	last_tx_at TEXT,
	next_tx_at TEXT,
	last_error TEXT
);

CREATE TABLE IF NOT EXISTS tx_history (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tx_id TEXT NOT NULL UNIQUE,

	channel_id INTEGER NOT NULL REFERENCES channels(id) ON DELETE CASCADE,
	mode TEXT NOT NULL,
	status TEXT NOT NULL,

	station_id TEXT NOT NULL,
	measurement_at TEXT NOT NULL,
	offset_seconds INTEGER NOT NULL,
	planned_at TEXT NOT NULL,
	sent_at TEXT,

	rendered_text TEXT NOT NULL,
	audio_path TEXT,
	error_message TEXT,

	created_at TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_tx_history_status_planned ON tx_history (status, planned_at);
CREATE INDEX IF NOT EXISTS idx_tx_history_channel_status ON tx_history (channel_id, status);

CREATE TABLE IF NOT EXISTS audio_cache (
	cache_key TEXT PRIMARY KEY,
	audio_path TEXT NOT NULL,
	size_bytes INTEGER NOT NULL,
	created_at TEXT NOT NULL,
	last_used_at TEXT NOT NULL
);
`
