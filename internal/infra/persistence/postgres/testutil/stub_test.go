package testutil

import (
	"context"
	"database/sql/driver"
	"io"
	"strings"
	"testing"
)

func insertArgs(version string, seq int64) []driver.NamedValue {
	return []driver.NamedValue{
		{Ordinal: 1, Value: version},
		{Ordinal: 2, Value: seq},
		{Ordinal: 3, Value: "2026-01-01T00:00:00Z"},
		{Ordinal: 4, Value: []byte(`{"version":"` + version + `"}`)},
	}
}

const insertStmt = "INSERT INTO mapping_sets(version, seq, saved_at, payload) VALUES($1, $2, $3, $4)"

func TestStubStoresMappingRowsInSeqOrder(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()

	if _, err := conn.ExecContext(ctx, "CREATE TABLE IF NOT EXISTS mapping_sets (version TEXT PRIMARY KEY)", nil); err != nil {
		t.Fatalf("ddl: %v", err)
	}
	if len(conn.DDL) != 1 {
		t.Fatalf("expected DDL to be recorded, got %v", conn.DDL)
	}
	if _, err := conn.ExecContext(ctx, insertStmt, insertArgs("second", 2)); err != nil {
		t.Fatalf("insert second: %v", err)
	}
	if _, err := conn.ExecContext(ctx, insertStmt, insertArgs("first", 1)); err != nil {
		t.Fatalf("insert first: %v", err)
	}

	rows, err := conn.QueryContext(ctx, "SELECT version, seq, payload FROM mapping_sets ORDER BY seq", nil)
	if err != nil {
		t.Fatalf("query: %v", err)
	}
	defer func() { _ = rows.Close() }()
	dest := make([]driver.Value, 3)
	var versions []string
	for {
		if err := rows.Next(dest); err == io.EOF {
			break
		} else if err != nil {
			t.Fatalf("next: %v", err)
		}
		versions = append(versions, dest[0].(string))
	}
	if strings.Join(versions, ",") != "first,second" {
		t.Fatalf("expected seq order, got %v", versions)
	}
}

func TestStubEnforcesKeys(t *testing.T) {
	ctx := context.Background()
	_, conn := NewStubDB()
	if _, err := conn.ExecContext(ctx, insertStmt, insertArgs("builtin", 1)); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if _, err := conn.ExecContext(ctx, insertStmt, insertArgs("builtin", 2)); err == nil || !strings.Contains(err.Error(), "pkey") {
		t.Fatalf("expected version conflict, got %v", err)
	}
	if _, err := conn.ExecContext(ctx, insertStmt, insertArgs("refresh", 1)); err == nil || !strings.Contains(err.Error(), "seq") {
		t.Fatalf("expected seq conflict, got %v", err)
	}
	if _, err := conn.ExecContext(ctx, "DELETE FROM mapping_sets", nil); err == nil {
		t.Fatalf("expected unknown statements to fail")
	}
	if len(conn.Rows) != 1 {
		t.Fatalf("expected one stored row, got %d", len(conn.Rows))
	}
}
