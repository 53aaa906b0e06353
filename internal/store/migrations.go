package store

// migration holds a single schema migration with its target version and SQL.
type migration struct {
	version int
	sql     string
}

// migrations is the ordered list of schema migrations.
// Each migration's version must be sequential starting from 1.
var migrations = []migration{
	{
		version: 1,
		sql: `
CREATE TABLE IF NOT EXISTS schema_version (
	version INTEGER NOT NULL
);

CREATE TABLE IF NOT EXISTS users (
	id            TEXT PRIMARY KEY,
	name          TEXT NOT NULL DEFAULT '',
	email         TEXT NOT NULL UNIQUE,
	password_hash TEXT NOT NULL DEFAULT '',
	created_at    DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS collections (
	email      TEXT PRIMARY KEY,
	created_at DATETIME NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
	id          TEXT PRIMARY KEY,
	email       TEXT NOT NULL REFERENCES collections(email) ON DELETE CASCADE,
	position    INTEGER NOT NULL,
	title       TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	due_date    TEXT NOT NULL,
	status      TEXT NOT NULL DEFAULT 'open' CHECK(status IN ('open', 'completed')),
	reminded    INTEGER NOT NULL DEFAULT 0 CHECK(reminded IN (0, 1))
);

CREATE INDEX IF NOT EXISTS idx_tasks_email_position ON tasks(email, position);

INSERT INTO schema_version (version) VALUES (1);
`,
	},
	{
		version: 2,
		sql: `
CREATE INDEX IF NOT EXISTS idx_tasks_pending
	ON tasks(status, reminded);

INSERT INTO schema_version (version) VALUES (2);
`,
	},
	{
		version: 3,
		sql: `
ALTER TABLE users ADD COLUMN google_id TEXT;

CREATE UNIQUE INDEX IF NOT EXISTS idx_users_google_id
	ON users(google_id) WHERE google_id IS NOT NULL;

INSERT INTO schema_version (version) VALUES (3);
`,
	},
}
