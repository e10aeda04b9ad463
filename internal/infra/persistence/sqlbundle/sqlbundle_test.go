package sqlbundle

import (
	"strings"
	"testing"
)

func TestSplitStatements(t *testing.T) {
	for name, ddl := range map[string]string{"sqlite": SQLite(), "postgres": Postgres()} {
		stmts := SplitStatements(ddl)
		if len(stmts) != 2 {
			t.Fatalf("%s: expected 2 statements, got %d", name, len(stmts))
		}
		if !strings.HasPrefix(stmts[0], "CREATE TABLE IF NOT EXISTS mapping_sets") {
			t.Fatalf("%s: unexpected first statement %q", name, stmts[0])
		}
		for _, stmt := range stmts {
			if !strings.HasSuffix(stmt, ";") {
				t.Fatalf("%s: statement missing terminator: %q", name, stmt)
			}
		}
	}
}

func TestSplitStatementsKeepsUnterminatedTail(t *testing.T) {
	stmts := SplitStatements("-- comment\nSELECT 1;\n\nSELECT 2")
	if len(stmts) != 2 || stmts[1] != "SELECT 2" {
		t.Fatalf("unexpected statements %q", stmts)
	}
}
