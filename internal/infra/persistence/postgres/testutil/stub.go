// Package testutil provides a stub database/sql driver that understands the
// statements the mapping store issues against Postgres.
package testutil

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"fmt"
	"io"
	"sort"
	"strings"
	"time"
)

// MappingRow is one stored row of the mapping_sets table.
type MappingRow struct {
	Version string
	Seq     int64
	SavedAt string
	Payload []byte
}

// StubConn records DDL and keeps mapping_sets rows in memory.
type StubConn struct {
	DDL  []string
	Rows []MappingRow

	FailPing   bool
	FailBegin  bool
	FailCommit bool
	FailQuery  bool
	FailInsert bool
}

// NewStubDB registers a sql.DB backed by a fresh stub connection.
func NewStubDB() (*sql.DB, *StubConn) {
	conn := &StubConn{}
	name := fmt.Sprintf("stubpg%d", time.Now().UnixNano())
	sql.Register(name, &stubDriver{conn: conn})
	db, err := sql.Open(name, "stub")
	if err != nil {
		panic(err)
	}
	return db, conn
}

type stubDriver struct {
	conn *StubConn
}

func (d *stubDriver) Open(string) (driver.Conn, error) {
	return d.conn, nil
}

// Prepare implements driver.Conn.
func (c *StubConn) Prepare(string) (driver.Stmt, error) { return nil, fmt.Errorf("not implemented") }

// Close implements driver.Conn.
func (c *StubConn) Close() error { return nil }

// Begin implements driver.Conn.
func (c *StubConn) Begin() (driver.Tx, error) {
	return c.BeginTx(context.Background(), driver.TxOptions{})
}

// Ping implements driver.Pinger.
func (c *StubConn) Ping(context.Context) error {
	if c.FailPing {
		return fmt.Errorf("ping fail")
	}
	return nil
}

// BeginTx implements driver.ConnBeginTx.
func (c *StubConn) BeginTx(context.Context, driver.TxOptions) (driver.Tx, error) {
	if c.FailBegin {
		return nil, fmt.Errorf("begin fail")
	}
	return &stubTx{conn: c}, nil
}

// ExecContext implements driver.ExecerContext. CREATE statements are
// recorded; inserts into mapping_sets enforce the version and seq keys.
func (c *StubConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	up := strings.ToUpper(strings.TrimSpace(query))
	switch {
	case strings.HasPrefix(up, "CREATE "):
		c.DDL = append(c.DDL, query)
		return driver.RowsAffected(0), nil
	case strings.HasPrefix(up, "INSERT INTO MAPPING_SETS"):
		if c.FailInsert {
			return nil, fmt.Errorf("insert fail")
		}
		row, err := mappingRow(args)
		if err != nil {
			return nil, err
		}
		for _, existing := range c.Rows {
			if existing.Version == row.Version {
				return nil, fmt.Errorf(`duplicate key value violates unique constraint "mapping_sets_pkey"`)
			}
			if existing.Seq == row.Seq {
				return nil, fmt.Errorf(`duplicate key value violates unique constraint "mapping_sets_seq_key"`)
			}
		}
		c.Rows = append(c.Rows, row)
		return driver.RowsAffected(1), nil
	}
	return nil, fmt.Errorf("unexpected statement: %s", query)
}

// QueryContext implements driver.QueryerContext for the mapping set listing.
func (c *StubConn) QueryContext(_ context.Context, query string, _ []driver.NamedValue) (driver.Rows, error) {
	lower := strings.ToLower(strings.Join(strings.Fields(query), " "))
	if !strings.HasPrefix(lower, "select version, seq, payload from mapping_sets") {
		return nil, fmt.Errorf("unexpected query: %s", query)
	}
	if c.FailQuery {
		return nil, fmt.Errorf("query fail")
	}
	rows := append([]MappingRow(nil), c.Rows...)
	sort.SliceStable(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })
	values := make([][]driver.Value, len(rows))
	for i, r := range rows {
		values[i] = []driver.Value{r.Version, r.Seq, append([]byte(nil), r.Payload...)}
	}
	return &stubRows{cols: []string{"version", "seq", "payload"}, rows: values}, nil
}

func mappingRow(args []driver.NamedValue) (MappingRow, error) {
	if len(args) != 4 {
		return MappingRow{}, fmt.Errorf("mapping_sets insert expects 4 args, got %d", len(args))
	}
	version, ok := args[0].Value.(string)
	if !ok || version == "" {
		return MappingRow{}, fmt.Errorf("mapping_sets version must be a non-empty string")
	}
	seq, ok := args[1].Value.(int64)
	if !ok {
		return MappingRow{}, fmt.Errorf("mapping_sets seq must be int64, got %T", args[1].Value)
	}
	savedAt, _ := args[2].Value.(string)
	payload, ok := args[3].Value.([]byte)
	if !ok {
		return MappingRow{}, fmt.Errorf("mapping_sets payload must be bytes, got %T", args[3].Value)
	}
	return MappingRow{Version: version, Seq: seq, SavedAt: savedAt, Payload: append([]byte(nil), payload...)}, nil
}

type stubTx struct {
	conn *StubConn
}

func (t *stubTx) Commit() error {
	if t.conn.FailCommit {
		return fmt.Errorf("commit fail")
	}
	return nil
}

func (t *stubTx) Rollback() error { return nil }

type stubRows struct {
	cols []string
	rows [][]driver.Value
	idx  int
}

func (r *stubRows) Columns() []string { return r.cols }
func (r *stubRows) Close() error      { return nil }

func (r *stubRows) Next(dest []driver.Value) error {
	if r.idx >= len(r.rows) {
		return io.EOF
	}
	copy(dest, r.rows[r.idx])
	r.idx++
	return nil
}
