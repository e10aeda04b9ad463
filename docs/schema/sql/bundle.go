// Package sqldocs exposes the mapping store DDL from the docs tree.
package sqldocs

import _ "embed"

// SQLite contains the SQLite DDL for the mapping store.
//
//go:embed sqlite.sql
var SQLite string

// Postgres contains the Postgres DDL for the mapping store.
//
//go:embed postgres.sql
var Postgres string
