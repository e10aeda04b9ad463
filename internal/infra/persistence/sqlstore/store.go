// Package sqlstore implements the mapping store over database/sql. The sqlite
// and postgres packages open the database, apply their DDL bundle and wrap
// this store.
package sqlstore

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"crimestats/internal/infra/persistence/sqlbundle"
	"crimestats/pkg/domain"
)

var _ domain.MappingStore = (*Store)(nil)

// Dialect captures the SQL differences between backends.
type Dialect struct {
	Name string
	// Placeholder returns the bind marker for the n-th (1-based) argument.
	Placeholder func(n int) string
}

var (
	SQLite   = Dialect{Name: "sqlite", Placeholder: func(int) string { return "?" }}
	Postgres = Dialect{Name: "postgres", Placeholder: func(n int) string { return fmt.Sprintf("$%d", n) }}
)

// Store persists mapping sets as JSON payloads in the mapping_sets table.
type Store struct {
	db      *sql.DB
	dialect Dialect
	mu      sync.Mutex
	now     func() time.Time
}

// New wraps an open database. The schema must already exist; see ApplyDDL.
func New(db *sql.DB, dialect Dialect) *Store {
	return &Store{db: db, dialect: dialect, now: time.Now}
}

// ApplyDDL executes every statement of a DDL bundle.
func ApplyDDL(ctx context.Context, db execer, ddl string) error {
	for _, stmt := range sqlbundle.SplitStatements(ddl) {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("execute ddl: %w", err)
		}
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

type storedSet struct {
	version string
	seq     int64
	payload []byte
}

func (s *Store) list(ctx context.Context, q queryer) ([]storedSet, error) {
	rows, err := q.QueryContext(ctx, `SELECT version, seq, payload FROM mapping_sets ORDER BY seq`)
	if err != nil {
		return nil, fmt.Errorf("select mapping sets: %w", err)
	}
	defer func() { _ = rows.Close() }()
	var out []storedSet
	for rows.Next() {
		var r storedSet
		if err := rows.Scan(&r.version, &r.seq, &r.payload); err != nil {
			return nil, fmt.Errorf("scan mapping set: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate mapping sets: %w", err)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].seq < out[j].seq })
	return out, nil
}

func (s *Store) LoadMappings(ctx context.Context, version string) (domain.MappingSet, error) {
	sets, err := s.list(ctx, s.db)
	if err != nil {
		return domain.MappingSet{}, err
	}
	if len(sets) == 0 {
		return domain.MappingSet{}, domain.ErrMappingsNotFound
	}
	target := sets[len(sets)-1]
	if version != "" {
		found := false
		for _, r := range sets {
			if r.version == version {
				target, found = r, true
				break
			}
		}
		if !found {
			return domain.MappingSet{}, fmt.Errorf("%w: %s", domain.ErrMappingsNotFound, version)
		}
	}
	set, err := domain.DecodeMappingSet(bytes.NewReader(target.payload))
	if err != nil {
		return domain.MappingSet{}, fmt.Errorf("decode mapping set %s: %w", target.version, err)
	}
	return set, nil
}

func (s *Store) SaveMappings(ctx context.Context, set domain.MappingSet) (retErr error) {
	if err := set.Validate(); err != nil {
		return err
	}
	payload, err := json.Marshal(set)
	if err != nil {
		return fmt.Errorf("encode mapping set: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	existing, err := s.list(ctx, tx)
	if err != nil {
		return err
	}
	var seq int64
	for _, r := range existing {
		if r.version == set.Version {
			return fmt.Errorf("%w: %s", domain.ErrMappingVersionExists, set.Version)
		}
		if r.seq > seq {
			seq = r.seq
		}
	}
	p := s.dialect.Placeholder
	stmt := fmt.Sprintf(`INSERT INTO mapping_sets(version, seq, saved_at, payload) VALUES(%s, %s, %s, %s)`, p(1), p(2), p(3), p(4))
	if _, err := tx.ExecContext(ctx, stmt, set.Version, seq+1, s.now().UTC().Format(time.RFC3339Nano), payload); err != nil {
		return fmt.Errorf("insert mapping set %s: %w", set.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	committed = true
	return nil
}

func (s *Store) MappingVersions(ctx context.Context) ([]string, error) {
	sets, err := s.list(ctx, s.db)
	if err != nil {
		return nil, err
	}
	out := make([]string, len(sets))
	for i, r := range sets {
		out[i] = r.version
	}
	return out, nil
}

// DB exposes the underlying handle for integration hooks.
func (s *Store) DB() *sql.DB { return s.db }

func (s *Store) Dialect() Dialect { return s.dialect }

func (s *Store) Close() error { return s.db.Close() }
