// Package sqlbundle exposes the mapping store DDL bundles for SQL adapters.
package sqlbundle

import (
	"bufio"
	"strings"

	sqldocs "crimestats/docs/schema/sql"
)

// SQLite returns the SQLite DDL for the mapping store.
func SQLite() string {
	return sqldocs.SQLite
}

// Postgres returns the Postgres DDL for the mapping store.
func Postgres() string {
	return sqldocs.Postgres
}

// SplitStatements splits a semicolon-terminated script into executable
// statements, dropping blank lines and "--" comment lines.
func SplitStatements(ddl string) []string {
	scanner := bufio.NewScanner(strings.NewReader(ddl))
	var stmts []string
	var current strings.Builder

	flush := func() {
		if stmt := strings.TrimSpace(current.String()); stmt != "" {
			stmts = append(stmts, stmt)
		}
		current.Reset()
	}

	for scanner.Scan() {
		line := scanner.Text()
		trimmed := strings.TrimSpace(line)
		if trimmed == "" || strings.HasPrefix(trimmed, "--") {
			continue
		}
		current.WriteString(line)
		current.WriteByte('\n')
		if strings.HasSuffix(trimmed, ";") {
			flush()
		}
	}
	flush()
	return stmts
}
