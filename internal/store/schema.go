// Package store is the persistence adapter: a Postgres-backed table of
// phrase counts plus a moderation blocklist, queried in pages at startup
// to seed the trie and written back on every ingestion flush and admin
// edit. The schema follows php-workx-clai's schema-as-SQL-constant style,
// translated from its SQLite DDL to Postgres.
package store

// SchemaVersion is the current supported schema version. A store refuses to
// run against a database whose recorded version is newer than this.
const SchemaVersion = 1

// schema creates the full table set if it does not already exist.
const schema = `
CREATE TABLE IF NOT EXISTS phrase (
  phrase        TEXT PRIMARY KEY,
  count         BIGINT NOT NULL DEFAULT 0,
  last_updated  TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE INDEX IF NOT EXISTS idx_phrase_count ON phrase(count DESC);

CREATE TABLE IF NOT EXISTS filtered_phrase (
  phrase      TEXT PRIMARY KEY,
  reason      TEXT,
  filtered_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS schema_migrations (
  version     INTEGER PRIMARY KEY,
  applied_at  TIMESTAMPTZ NOT NULL DEFAULT now()
);
`

// AllTables lists every table the schema creates, for validation in tests.
var AllTables = []string{"phrase", "filtered_phrase", "schema_migrations"}
