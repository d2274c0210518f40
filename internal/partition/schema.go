package partition

// Partition schema: six independent tables, no cross-partition references.
// Every statement is guarded by "if not exists" so re-running the schema on
// an already provisioned file is a no-op; the daily stats seed uses
// INSERT OR IGNORE for the same reason.
const schema = `
CREATE TABLE IF NOT EXISTS messages (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	sender_uuid TEXT,
	sender_name TEXT NOT NULL DEFAULT '',
	message_type TEXT NOT NULL DEFAULT 'text',
	content TEXT NOT NULL,
	content_encrypted TEXT,
	reply_to_id INTEGER,
	thread_root_id INTEGER,
	is_edited INTEGER NOT NULL DEFAULT 0,
	is_deleted INTEGER NOT NULL DEFAULT 0,
	is_pinned INTEGER NOT NULL DEFAULT 0,
	is_system INTEGER NOT NULL DEFAULT 0,
	reactions TEXT NOT NULL DEFAULT '{}',
	mentions TEXT NOT NULL DEFAULT '[]',
	reply_count INTEGER NOT NULL DEFAULT 0,
	reaction_count INTEGER NOT NULL DEFAULT 0,
	read_count INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL,
	updated_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_messages_sender ON messages(sender_uuid, created_at);
CREATE INDEX IF NOT EXISTS idx_messages_thread ON messages(thread_root_id);

CREATE TABLE IF NOT EXISTS message_reads (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL,
	reader_uuid TEXT NOT NULL,
	read_at DATETIME NOT NULL,
	UNIQUE(message_id, reader_uuid)
);

CREATE TABLE IF NOT EXISTS message_translations (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL,
	locale TEXT NOT NULL,
	content TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(message_id, locale)
);

CREATE TABLE IF NOT EXISTS file_attachments (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL,
	file_name TEXT NOT NULL,
	file_path TEXT NOT NULL,
	mime_type TEXT NOT NULL DEFAULT '',
	byte_size INTEGER NOT NULL DEFAULT 0,
	created_at DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS message_favourites (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	message_id INTEGER NOT NULL,
	user_uuid TEXT NOT NULL,
	created_at DATETIME NOT NULL,
	UNIQUE(message_id, user_uuid)
);

CREATE TABLE IF NOT EXISTS room_daily_stats (
	stat_date TEXT PRIMARY KEY,
	message_count INTEGER NOT NULL DEFAULT 0,
	active_senders INTEGER NOT NULL DEFAULT 0,
	file_count INTEGER NOT NULL DEFAULT 0
);
`

const seedStats = `INSERT OR IGNORE INTO room_daily_stats (stat_date) VALUES (?);`
