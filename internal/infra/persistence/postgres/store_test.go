package postgres

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"

	"crimestats/internal/infra/persistence/postgres/testutil"
	"crimestats/pkg/domain"
)

func openStub(t *testing.T) (*Store, *testutil.StubConn) {
	t.Helper()
	db, conn := testutil.NewStubDB()
	restore := OverrideSQLOpen(func(driver, dsn string) (*sql.DB, error) {
		if driver != defaultDriver {
			t.Fatalf("unexpected driver %s", driver)
		}
		if dsn != defaultDSN {
			t.Fatalf("expected default dsn, got %s", dsn)
		}
		return db, nil
	})
	t.Cleanup(restore)
	store, err := NewStore(context.Background(), "")
	if err != nil {
		t.Fatalf("NewStore: %v", err)
	}
	return store, conn
}

func TestNewStoreAppliesDDL(t *testing.T) {
	_, conn := openStub(t)
	var sawTable, sawIndex bool
	for _, stmt := range conn.DDL {
		up := strings.ToUpper(stmt)
		if strings.Contains(up, "CREATE TABLE IF NOT EXISTS MAPPING_SETS") {
			sawTable = true
		}
		if strings.Contains(up, "CREATE INDEX") {
			sawIndex = true
		}
	}
	if !sawTable || !sawIndex {
		t.Fatalf("expected mapping_sets DDL, got %v", conn.DDL)
	}
}

func TestSaveAndLoadMappings(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	if _, err := store.LoadMappings(ctx, ""); !errors.Is(err, domain.ErrMappingsNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if err := store.SaveMappings(ctx, domain.DefaultMappings()); err != nil {
		t.Fatalf("save: %v", err)
	}
	next := domain.DefaultMappings()
	next.Version = "2013-refresh"
	next.Districts["Colombo Div"] = "Colombo"
	if err := store.SaveMappings(ctx, next); err != nil {
		t.Fatalf("save next: %v", err)
	}
	rows := conn.Rows
	if len(rows) != 2 {
		t.Fatalf("expected 2 stored rows, got %d", len(rows))
	}
	if rows[1].Version != "2013-refresh" || rows[1].Seq != 2 || rows[1].SavedAt == "" {
		t.Fatalf("unexpected second row %+v", rows[1])
	}
	got, err := store.LoadMappings(ctx, "")
	if err != nil {
		t.Fatalf("load latest: %v", err)
	}
	if got.Version != "2013-refresh" || got.Districts["Colombo Div"] != "Colombo" {
		t.Fatalf("unexpected latest %+v", got)
	}
	if _, err := store.LoadMappings(ctx, "missing"); !errors.Is(err, domain.ErrMappingsNotFound) {
		t.Fatalf("expected not found for unknown version, got %v", err)
	}
	if err := store.SaveMappings(ctx, next); !errors.Is(err, domain.ErrMappingVersionExists) {
		t.Fatalf("expected version exists, got %v", err)
	}
	versions, err := store.MappingVersions(ctx)
	if err != nil || len(versions) != 2 || versions[0] != domain.BuiltinMappingVersion {
		t.Fatalf("unexpected versions %v %v", versions, err)
	}
}

func TestSaveRejectsInvalidSet(t *testing.T) {
	store, conn := openStub(t)
	bad := domain.DefaultMappings()
	bad.Version = ""
	if err := store.SaveMappings(context.Background(), bad); !errors.Is(err, domain.ErrInvalidMappings) {
		t.Fatalf("expected invalid mappings, got %v", err)
	}
	if len(conn.Rows) != 0 {
		t.Fatalf("invalid set must not be stored")
	}
}

func TestSaveSurfacesDriverFailures(t *testing.T) {
	ctx := context.Background()
	store, conn := openStub(t)
	conn.FailBegin = true
	if err := store.SaveMappings(ctx, domain.DefaultMappings()); err == nil {
		t.Fatalf("expected begin failure")
	}
	conn.FailBegin = false
	conn.FailCommit = true
	if err := store.SaveMappings(ctx, domain.DefaultMappings()); err == nil || !strings.Contains(err.Error(), "commit") {
		t.Fatalf("expected commit failure, got %v", err)
	}
	conn.FailCommit = false
	conn.FailInsert = true
	if err := store.SaveMappings(ctx, domain.DefaultMappings()); err == nil || !strings.Contains(err.Error(), "insert mapping set") {
		t.Fatalf("expected insert failure, got %v", err)
	}
	conn.FailInsert = false
	conn.FailQuery = true
	if _, err := store.MappingVersions(ctx); err == nil {
		t.Fatalf("expected query failure")
	}
	if err := store.SaveMappings(ctx, domain.DefaultMappings()); err == nil || !strings.Contains(err.Error(), "select mapping sets") {
		t.Fatalf("expected listing failure inside save, got %v", err)
	}
}

func TestNewStorePingFailure(t *testing.T) {
	db, conn := testutil.NewStubDB()
	conn.FailPing = true
	restore := OverrideSQLOpen(func(string, string) (*sql.DB, error) { return db, nil })
	defer restore()
	if _, err := NewStore(context.Background(), "postgres://example"); err == nil || !strings.Contains(err.Error(), "ping") {
		t.Fatalf("expected ping error, got %v", err)
	}
}
