package sqlstore

import "fmt"

// Dialect abstracts the SQL differences between backends: placeholder
// syntax and the DDL used to create the tuples table and its indexes.
type Dialect interface {
	// Placeholder returns the positional bind-parameter marker for the nth
	// (1-indexed) argument in a query.
	Placeholder(n int) string
	// CreateTableSQL returns the DDL that creates the tuples table and its
	// supporting indexes, using "IF NOT EXISTS" semantics.
	CreateTableSQL() string
}

// SQLite is the modernc.org/sqlite dialect: '?' placeholders.
type SQLite struct{}

func (SQLite) Placeholder(int) string { return "?" }

func (SQLite) CreateTableSQL() string {
	return `
CREATE TABLE IF NOT EXISTS rebac_tuples (
	id               TEXT PRIMARY KEY,
	subject_type     TEXT NOT NULL,
	subject_id       TEXT NOT NULL,
	relation         TEXT NOT NULL,
	object_type      TEXT NOT NULL,
	object_id        TEXT NOT NULL,
	valid_since      TIMESTAMP NULL,
	valid_until      TIMESTAMP NULL
);
CREATE INDEX IF NOT EXISTS idx_rebac_tuples_subject ON rebac_tuples (subject_type, subject_id, relation);
CREATE INDEX IF NOT EXISTS idx_rebac_tuples_object ON rebac_tuples (object_type, object_id, relation);
`
}

// Postgres is the lib/pq dialect: '$n' placeholders.
type Postgres struct{}

func (Postgres) Placeholder(n int) string { return fmt.Sprintf("$%d", n) }

func (Postgres) CreateTableSQL() string {
	return `
CREATE TABLE IF NOT EXISTS rebac_tuples (
	id               TEXT PRIMARY KEY,
	subject_type     TEXT NOT NULL,
	subject_id       TEXT NOT NULL,
	relation         TEXT NOT NULL,
	object_type      TEXT NOT NULL,
	object_id        TEXT NOT NULL,
	valid_since      TIMESTAMPTZ NULL,
	valid_until      TIMESTAMPTZ NULL
);
CREATE INDEX IF NOT EXISTS idx_rebac_tuples_subject ON rebac_tuples (subject_type, subject_id, relation);
CREATE INDEX IF NOT EXISTS idx_rebac_tuples_object ON rebac_tuples (object_type, object_id, relation);
`
}
