package sqlite

// schema defines the full database layout: engine-owned app tables first,
// then the read-only reference tables the engine links against.
const schema = `
CREATE TABLE IF NOT EXISTS entities (
	id             TEXT PRIMARY KEY,
	session_id     TEXT NOT NULL,
	user_id        TEXT NOT NULL,
	name           TEXT NOT NULL,
	name_hash      TEXT NOT NULL,
	canonical_name TEXT NOT NULL,
	type           TEXT NOT NULL,
	source         TEXT NOT NULL,
	external_ref   TEXT,
	confidence     REAL NOT NULL,
	embedding      BLOB,
	created_at     TIMESTAMP NOT NULL,
	UNIQUE(user_id, session_id, canonical_name)
);

CREATE INDEX IF NOT EXISTS idx_entities_user_hash ON entities(user_id, name_hash);
CREATE INDEX IF NOT EXISTS idx_entities_canonical ON entities(user_id, canonical_name, created_at);

CREATE TABLE IF NOT EXISTS entity_aliases (
	id                  TEXT PRIMARY KEY,
	canonical_entity_id TEXT NOT NULL REFERENCES entities(id),
	alias_text          TEXT NOT NULL,
	alias_hash          TEXT NOT NULL,
	source              TEXT NOT NULL,
	confidence          REAL NOT NULL,
	created_at          TIMESTAMP NOT NULL,
	UNIQUE(alias_hash, canonical_entity_id)
);

CREATE TABLE IF NOT EXISTS relationships (
	id                TEXT PRIMARY KEY,
	subject_entity_id TEXT NOT NULL,
	predicate         TEXT NOT NULL,
	object_entity_id  TEXT NOT NULL DEFAULT '',
	object_value      TEXT NOT NULL DEFAULT '',
	embedding         BLOB,
	confidence        REAL NOT NULL,
	source            TEXT NOT NULL,
	created_at        TIMESTAMP NOT NULL,
	UNIQUE(subject_entity_id, predicate, object_entity_id, object_value)
);

CREATE INDEX IF NOT EXISTS idx_relationships_subject ON relationships(subject_entity_id, predicate);

CREATE TABLE IF NOT EXISTS memories (
	id           TEXT PRIMARY KEY,
	session_id   TEXT NOT NULL,
	user_id      TEXT NOT NULL,
	kind         TEXT NOT NULL,
	text         TEXT NOT NULL,
	embedding    BLOB,
	importance   REAL NOT NULL,
	ttl_days     INTEGER NOT NULL DEFAULT 0,
	expires_at   TIMESTAMP,
	provenance   TEXT,
	consolidated INTEGER NOT NULL DEFAULT 0,
	created_at   TIMESTAMP NOT NULL,
	updated_at   TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_memories_scope ON memories(user_id, session_id, kind, created_at);
CREATE INDEX IF NOT EXISTS idx_memories_expiry ON memories(expires_at);

CREATE TABLE IF NOT EXISTS memory_summaries (
	id             TEXT PRIMARY KEY,
	user_id        TEXT NOT NULL,
	session_window INTEGER NOT NULL,
	summary_text   TEXT NOT NULL,
	embedding      BLOB,
	memory_ids     TEXT NOT NULL,
	importance     REAL NOT NULL,
	created_at     TIMESTAMP NOT NULL,
	UNIQUE(user_id, session_window)
);

CREATE TABLE IF NOT EXISTS sessions (
	id               TEXT PRIMARY KEY,
	user_id          TEXT NOT NULL,
	started_at       TIMESTAMP NOT NULL,
	last_activity_at TIMESTAMP NOT NULL,
	turn_count       INTEGER NOT NULL DEFAULT 0,
	consolidated     INTEGER NOT NULL DEFAULT 0
);

CREATE INDEX IF NOT EXISTS idx_sessions_user ON sessions(user_id, started_at);

CREATE TABLE IF NOT EXISTS customers (
	customer_id TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	industry    TEXT,
	notes       TEXT,
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS sales_orders (
	so_id       TEXT PRIMARY KEY,
	customer_id TEXT NOT NULL REFERENCES customers(customer_id),
	so_number   TEXT NOT NULL UNIQUE,
	title       TEXT NOT NULL,
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS work_orders (
	wo_id         TEXT PRIMARY KEY,
	so_id         TEXT NOT NULL REFERENCES sales_orders(so_id),
	wo_number     TEXT NOT NULL UNIQUE,
	description   TEXT,
	status        TEXT NOT NULL,
	technician    TEXT,
	scheduled_for TIMESTAMP
);

CREATE TABLE IF NOT EXISTS invoices (
	invoice_id     TEXT PRIMARY KEY,
	so_id          TEXT NOT NULL REFERENCES sales_orders(so_id),
	invoice_number TEXT NOT NULL UNIQUE,
	amount         REAL NOT NULL,
	due_date       TIMESTAMP NOT NULL,
	status         TEXT NOT NULL,
	issued_at      TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS payments (
	payment_id TEXT PRIMARY KEY,
	invoice_id TEXT NOT NULL REFERENCES invoices(invoice_id),
	amount     REAL NOT NULL,
	method     TEXT,
	paid_at    TIMESTAMP NOT NULL
);

CREATE TABLE IF NOT EXISTS tasks (
	task_id     TEXT PRIMARY KEY,
	customer_id TEXT REFERENCES customers(customer_id),
	title       TEXT NOT NULL,
	body        TEXT,
	status      TEXT NOT NULL,
	created_at  TIMESTAMP NOT NULL
);
`
