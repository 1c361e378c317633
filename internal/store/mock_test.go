package store

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type queryExpectation struct {
	expect *regexp.Regexp
	args   []any
	// row answers QueryRow; rows answers Query.
	row  []any
	rows [][]any
	err  error
}

type mockDB struct {
	t       *testing.T
	queries []queryExpectation
}

func (m *mockDB) next(sql string, args []any) queryExpectation {
	m.t.Helper()
	if len(m.queries) == 0 {
		m.t.Fatalf("unexpected query: %s", sql)
	}
	exp := m.queries[0]
	m.queries = m.queries[1:]
	if !exp.expect.MatchString(sql) {
		m.t.Fatalf("query mismatch: %s", sql)
	}
	assertArgs(m.t, exp.args, args)
	return exp
}

func (m *mockDB) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	exp := m.next(sql, args)
	return mockRow{values: exp.row, err: exp.err}
}

func (m *mockDB) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	exp := m.next(sql, args)
	if exp.err != nil {
		return nil, exp.err
	}
	return &mockRows{rows: exp.rows, idx: -1}, nil
}

func (m *mockDB) assertDone() {
	if len(m.queries) != 0 {
		m.t.Fatalf("pending queries: %d", len(m.queries))
	}
}

type mockRow struct {
	values []any
	err    error
}

func (m mockRow) Scan(dest ...any) error {
	if m.err != nil {
		return m.err
	}
	return scanValues(m.values, dest)
}

type mockRows struct {
	rows   [][]any
	idx    int
	closed bool
}

func (m *mockRows) Close()                                       { m.closed = true }
func (m *mockRows) Err() error                                   { return nil }
func (m *mockRows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (m *mockRows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (m *mockRows) RawValues() [][]byte                          { return nil }
func (m *mockRows) Conn() *pgx.Conn                              { return nil }

func (m *mockRows) Next() bool {
	if m.closed {
		return false
	}
	m.idx++
	return m.idx < len(m.rows)
}

func (m *mockRows) Scan(dest ...any) error {
	return scanValues(m.rows[m.idx], dest)
}

func (m *mockRows) Values() ([]any, error) {
	return m.rows[m.idx], nil
}

func scanValues(values, dest []any) error {
	if len(values) != len(dest) {
		return fmt.Errorf("unexpected dest count: %d, have %d values", len(dest), len(values))
	}
	for i := range dest {
		if err := assign(dest[i], values[i]); err != nil {
			return fmt.Errorf("column %d: %w", i, err)
		}
	}
	return nil
}

func assign(dest, value any) error {
	dv := reflect.ValueOf(dest)
	if dv.Kind() != reflect.Ptr || dv.IsNil() {
		return fmt.Errorf("destination %T is not a pointer", dest)
	}
	target := dv.Elem()
	if value == nil {
		target.Set(reflect.Zero(target.Type()))
		return nil
	}
	v := reflect.ValueOf(value)
	if v.Type().AssignableTo(target.Type()) {
		target.Set(v)
		return nil
	}
	if target.Kind() == reflect.Ptr && v.Type().AssignableTo(target.Type().Elem()) {
		p := reflect.New(target.Type().Elem())
		p.Elem().Set(v)
		target.Set(p)
		return nil
	}
	return fmt.Errorf("cannot assign %T to %T", value, dest)
}

func assertArgs(t *testing.T, expected, actual []any) {
	t.Helper()
	if len(expected) == 0 {
		return
	}
	if len(expected) != len(actual) {
		t.Fatalf("argument length mismatch: expected %d got %d", len(expected), len(actual))
	}
	for i, exp := range expected {
		if exp == nil {
			continue
		}
		if !reflect.DeepEqual(exp, actual[i]) {
			t.Fatalf("argument mismatch at %d: expected %v got %v", i, exp, actual[i])
		}
	}
}
