package inventory

// schema creates the five core tables. Timestamps are stored as RFC 3339
// UTC text; open_ports and raw_evidence as JSON text.
const schema = `
CREATE TABLE IF NOT EXISTS scans (
	id           TEXT PRIMARY KEY,
	target       TEXT NOT NULL,
	scan_method  TEXT NOT NULL,
	started_at   TEXT NOT NULL,
	completed_at TEXT,
	total_assets INTEGER NOT NULL DEFAULT 0,
	is_root      INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS assets (
	id               TEXT PRIMARY KEY,
	ip               TEXT NOT NULL,
	mac              TEXT,
	hostname         TEXT,
	vendor           TEXT,
	os_hint          TEXT,
	bigr_category    TEXT NOT NULL DEFAULT 'unclassified',
	confidence_score REAL NOT NULL DEFAULT 0.0,
	scan_method      TEXT NOT NULL DEFAULT 'passive',
	first_seen       TEXT NOT NULL,
	last_seen        TEXT NOT NULL,
	manual_category  TEXT,
	manual_note      TEXT,
	is_ignored       INTEGER NOT NULL DEFAULT 0,
	UNIQUE(ip, mac)
);

CREATE TABLE IF NOT EXISTS scan_assets (
	scan_id          TEXT NOT NULL,
	asset_id         TEXT NOT NULL,
	open_ports       TEXT,
	confidence_score REAL NOT NULL DEFAULT 0.0,
	bigr_category    TEXT NOT NULL DEFAULT 'unclassified',
	raw_evidence     TEXT,
	PRIMARY KEY (scan_id, asset_id),
	FOREIGN KEY (scan_id) REFERENCES scans(id),
	FOREIGN KEY (asset_id) REFERENCES assets(id)
);

CREATE TABLE IF NOT EXISTS asset_changes (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	asset_id    TEXT NOT NULL,
	scan_id     TEXT NOT NULL,
	change_type TEXT NOT NULL,
	field_name  TEXT,
	old_value   TEXT,
	new_value   TEXT,
	detected_at TEXT NOT NULL,
	FOREIGN KEY (asset_id) REFERENCES assets(id),
	FOREIGN KEY (scan_id) REFERENCES scans(id)
);

CREATE TABLE IF NOT EXISTS subnets (
	cidr         TEXT PRIMARY KEY,
	label        TEXT DEFAULT '',
	vlan_id      INTEGER,
	last_scanned TEXT,
	asset_count  INTEGER DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_scans_started ON scans(started_at);
CREATE INDEX IF NOT EXISTS idx_assets_ip ON assets(ip);
CREATE INDEX IF NOT EXISTS idx_changes_detected ON asset_changes(detected_at);
`
