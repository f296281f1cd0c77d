package queue

// Schema changes bump schemaVersion; the migration runner applies statements
// for versions above the stored one in order.
const schemaVersion = 1

var migrations = map[int][]string{
	1: {
		`CREATE TABLE IF NOT EXISTS queue_items (
            id TEXT PRIMARY KEY,
            title TEXT,
            status TEXT NOT NULL,
            audio_path TEXT,
            content_hash TEXT,
            error_message TEXT,
            raw_text TEXT,
            final_text TEXT,
            metadata_json TEXT,
            created_at TEXT NOT NULL,
            updated_at TEXT NOT NULL
        )`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_status ON queue_items(status)`,
		`CREATE INDEX IF NOT EXISTS idx_queue_items_hash ON queue_items(content_hash)`,
		`CREATE TABLE IF NOT EXISTS item_history (
            seq INTEGER PRIMARY KEY AUTOINCREMENT,
            item_id TEXT NOT NULL,
            from_status TEXT NOT NULL,
            to_status TEXT NOT NULL,
            changed_at TEXT NOT NULL,
            FOREIGN KEY(item_id) REFERENCES queue_items(id) ON DELETE CASCADE
        )`,
		`CREATE INDEX IF NOT EXISTS idx_item_history_item ON item_history(item_id)`,
		`CREATE TABLE IF NOT EXISTS schema_meta (
            key TEXT PRIMARY KEY,
            value TEXT NOT NULL
        )`,
	},
}
