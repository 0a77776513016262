// Package pgdbtest provides scripted test doubles for the pgdb query
// surface, so repository tests can exercise their SQL sequencing, row
// scanning, and transaction discipline without a live database. It lives
// under internal/pgdb/ because it implements the driver-shaped interfaces
// and therefore needs the pgx types the rest of the tree must not import.
package pgdbtest

import (
	"context"
	"fmt"
	"reflect"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/shamell/shamell/internal/pgdb"
)

// DB is a scripted pgdb.Querier. Unset function fields fall back to benign
// defaults (empty command tag, no rows) so a test only scripts the calls it
// cares about.
type DB struct {
	ExecFn     func(ctx context.Context, sql string, args ...any) (pgdb.CommandTag, error)
	QueryFn    func(ctx context.Context, sql string, args ...any) (pgdb.Rows, error)
	QueryRowFn func(ctx context.Context, sql string, args ...any) pgdb.Row
	BeginFn    func(ctx context.Context) (pgdb.Tx, error)

	Closed bool
}

var _ pgdb.Querier = (*DB)(nil)

func (d *DB) Exec(ctx context.Context, sql string, args ...any) (pgdb.CommandTag, error) {
	if d.ExecFn != nil {
		return d.ExecFn(ctx, sql, args...)
	}
	return pgdb.CommandTag{}, nil
}

func (d *DB) Query(ctx context.Context, sql string, args ...any) (pgdb.Rows, error) {
	if d.QueryFn != nil {
		return d.QueryFn(ctx, sql, args...)
	}
	return RowsOf(), nil
}

func (d *DB) QueryRow(ctx context.Context, sql string, args ...any) pgdb.Row {
	if d.QueryRowFn != nil {
		return d.QueryRowFn(ctx, sql, args...)
	}
	return ErrRow(pgdb.ErrNoRows)
}

func (d *DB) Begin(ctx context.Context) (pgdb.Tx, error) {
	if d.BeginFn != nil {
		return d.BeginFn(ctx)
	}
	return &Tx{}, nil
}

func (d *DB) Close() { d.Closed = true }

// Tx is a scripted pgdb.Tx. Commit/Rollback record their outcome so tests
// can assert the transaction discipline: committed on success, rolled back
// by the deferred Rollback on every early return.
type Tx struct {
	ExecFn     func(ctx context.Context, sql string, args ...any) (pgdb.CommandTag, error)
	QueryFn    func(ctx context.Context, sql string, args ...any) (pgdb.Rows, error)
	QueryRowFn func(ctx context.Context, sql string, args ...any) pgdb.Row

	Committed  bool
	RolledBack bool
}

var _ pgdb.Tx = (*Tx)(nil)

func (t *Tx) Exec(ctx context.Context, sql string, args ...any) (pgdb.CommandTag, error) {
	if t.ExecFn != nil {
		return t.ExecFn(ctx, sql, args...)
	}
	return pgdb.CommandTag{}, nil
}

func (t *Tx) Query(ctx context.Context, sql string, args ...any) (pgdb.Rows, error) {
	if t.QueryFn != nil {
		return t.QueryFn(ctx, sql, args...)
	}
	return RowsOf(), nil
}

func (t *Tx) QueryRow(ctx context.Context, sql string, args ...any) pgdb.Row {
	if t.QueryRowFn != nil {
		return t.QueryRowFn(ctx, sql, args...)
	}
	return ErrRow(pgdb.ErrNoRows)
}

func (t *Tx) Commit(context.Context) error { t.Committed = true; return nil }

func (t *Tx) Rollback(context.Context) error {
	if !t.Committed {
		t.RolledBack = true
	}
	return nil
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) { return t, nil }

func (t *Tx) Conn() *pgx.Conn { return nil }

func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("pgdbtest: CopyFrom not scripted")
}

func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("pgdbtest: SendBatch not scripted")
}

func (t *Tx) LargeObjects() pgx.LargeObjects {
	panic("pgdbtest: LargeObjects not scripted")
}

func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("pgdbtest: Prepare not scripted")
}

// Row is a scripted pgdb.Row.
type Row struct {
	ScanFn func(dest ...any) error
}

func (r Row) Scan(dest ...any) error { return r.ScanFn(dest...) }

// RowOf builds a Row whose Scan assigns vals positionally into the scan
// destinations. A nil val leaves the destination at its zero value, the
// way a SQL NULL scans into a pointer.
func RowOf(vals ...any) Row {
	return Row{ScanFn: func(dest ...any) error { return assign(dest, vals) }}
}

// ErrRow builds a Row whose Scan fails with err (pass pgdb.ErrNoRows to
// script an empty result).
func ErrRow(err error) Row {
	return Row{ScanFn: func(...any) error { return err }}
}

// Rows is a scripted pgdb.Rows over a fixed list of value tuples.
type Rows struct {
	tuples [][]any
	idx    int
	err    error
}

var _ pgdb.Rows = (*Rows)(nil)

// RowsOf builds a Rows cursor yielding one tuple per call to Next.
func RowsOf(tuples ...[]any) *Rows {
	return &Rows{tuples: tuples, idx: -1}
}

func (r *Rows) Next() bool {
	r.idx++
	return r.idx < len(r.tuples)
}

func (r *Rows) Scan(dest ...any) error {
	if r.idx < 0 || r.idx >= len(r.tuples) {
		return fmt.Errorf("pgdbtest: Scan outside Next window")
	}
	return assign(dest, r.tuples[r.idx])
}

func (r *Rows) Close()                                       {}
func (r *Rows) Err() error                                   { return r.err }
func (r *Rows) CommandTag() pgdb.CommandTag                  { return pgdb.CommandTag{} }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) Values() ([]any, error) {
	if r.idx < 0 || r.idx >= len(r.tuples) {
		return nil, fmt.Errorf("pgdbtest: Values outside Next window")
	}
	return r.tuples[r.idx], nil
}
func (r *Rows) RawValues() [][]byte { return nil }
func (r *Rows) Conn() *pgx.Conn    { return nil }

// assign copies vals into the pointer destinations Scan received.
func assign(dest []any, vals []any) error {
	if len(dest) != len(vals) {
		return fmt.Errorf("pgdbtest: scanned %d destinations, scripted %d values", len(dest), len(vals))
	}
	for i, val := range vals {
		dv := reflect.ValueOf(dest[i])
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("pgdbtest: destination %d is not a non-nil pointer", i)
		}
		elem := dv.Elem()
		if val == nil {
			elem.Set(reflect.Zero(elem.Type()))
			continue
		}
		vv := reflect.ValueOf(val)
		switch {
		case vv.Type().AssignableTo(elem.Type()):
			elem.Set(vv)
		case vv.Type().ConvertibleTo(elem.Type()):
			elem.Set(vv.Convert(elem.Type()))
		default:
			return fmt.Errorf("pgdbtest: cannot assign %s into %s at destination %d", vv.Type(), elem.Type(), i)
		}
	}
	return nil
}
