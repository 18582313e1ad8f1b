// Package dbtest provides in-memory stand-ins for pgx transactions so service
// tests can assert commit and rollback behaviour without a database.
package dbtest

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// Pool hands out a fresh Tx per Begin and remembers every one.
type Pool struct {
	mu       sync.Mutex
	BeginErr error
	Txs      []*Tx
	// NewTx customises each transaction before it is returned.
	NewTx func(*Tx)
}

func (p *Pool) Begin(ctx context.Context) (pgx.Tx, error) {
	if p.BeginErr != nil {
		return nil, p.BeginErr
	}
	tx := &Tx{}
	if p.NewTx != nil {
		p.NewTx(tx)
	}
	p.mu.Lock()
	p.Txs = append(p.Txs, tx)
	p.mu.Unlock()
	return tx, nil
}

// Last returns the most recent transaction or nil.
func (p *Pool) Last() *Tx {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.Txs) == 0 {
		return nil
	}
	return p.Txs[len(p.Txs)-1]
}

type Tx struct {
	Committed bool
	Rolled    bool
	CommitErr error

	Execs   []string
	ExecErr error

	QueryFn    func(sql string, args ...any) (pgx.Rows, error)
	QueryRowFn func(sql string, args ...any) pgx.Row
}

func (t *Tx) Begin(context.Context) (pgx.Tx, error) {
	return nil, errors.New("dbtest: nested transactions not supported")
}

func (t *Tx) Commit(context.Context) error {
	if t.CommitErr != nil {
		return t.CommitErr
	}
	t.Committed = true
	return nil
}

// Rollback after Commit is a no-op, as with pgx.
func (t *Tx) Rollback(context.Context) error {
	if !t.Committed {
		t.Rolled = true
	}
	return nil
}

func (t *Tx) CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error) {
	panic("dbtest: CopyFrom not implemented")
}

func (t *Tx) SendBatch(context.Context, *pgx.Batch) pgx.BatchResults {
	panic("dbtest: SendBatch not implemented")
}

func (t *Tx) LargeObjects() pgx.LargeObjects {
	panic("dbtest: LargeObjects not implemented")
}

func (t *Tx) Prepare(context.Context, string, string) (*pgconn.StatementDescription, error) {
	panic("dbtest: Prepare not implemented")
}

func (t *Tx) Exec(_ context.Context, sql string, _ ...any) (pgconn.CommandTag, error) {
	t.Execs = append(t.Execs, sql)
	if t.ExecErr != nil {
		return pgconn.CommandTag{}, t.ExecErr
	}
	return pgconn.NewCommandTag("UPDATE 1"), nil
}

func (t *Tx) Query(_ context.Context, sql string, args ...any) (pgx.Rows, error) {
	if t.QueryFn == nil {
		panic("dbtest: Query not configured")
	}
	return t.QueryFn(sql, args...)
}

func (t *Tx) QueryRow(_ context.Context, sql string, args ...any) pgx.Row {
	if t.QueryRowFn == nil {
		panic("dbtest: QueryRow not configured")
	}
	return t.QueryRowFn(sql, args...)
}

func (t *Tx) Conn() *pgx.Conn {
	return nil
}

// Rows replays fixed values. Scan assigns by reflection and converts between
// named types with the same underlying kind.
type Rows struct {
	Data   [][]any
	Fail   error
	idx    int
	closed bool
}

func (r *Rows) Close()                                       { r.closed = true }
func (r *Rows) Err() error                                   { return r.Fail }
func (r *Rows) CommandTag() pgconn.CommandTag                { return pgconn.NewCommandTag("SELECT") }
func (r *Rows) FieldDescriptions() []pgconn.FieldDescription { return nil }
func (r *Rows) RawValues() [][]byte                          { return nil }
func (r *Rows) Conn() *pgx.Conn                              { return nil }

func (r *Rows) Next() bool {
	if r.closed || r.idx >= len(r.Data) {
		return false
	}
	r.idx++
	return true
}

func (r *Rows) Values() ([]any, error) {
	return r.Data[r.idx-1], nil
}

func (r *Rows) Scan(dest ...any) error {
	return assign(r.Data[r.idx-1], dest)
}

// Row is a single-row result. A non-nil Err is returned from Scan.
type Row struct {
	Values []any
	Err    error
}

func (r Row) Scan(dest ...any) error {
	if r.Err != nil {
		return r.Err
	}
	return assign(r.Values, dest)
}

func assign(src []any, dest []any) error {
	if len(src) != len(dest) {
		return fmt.Errorf("dbtest: scan %d values into %d targets", len(src), len(dest))
	}
	for i, d := range dest {
		dv := reflect.ValueOf(d)
		if dv.Kind() != reflect.Pointer || dv.IsNil() {
			return fmt.Errorf("dbtest: target %d is not a pointer", i)
		}
		target := dv.Elem()
		if src[i] == nil {
			target.Set(reflect.Zero(target.Type()))
			continue
		}
		sv := reflect.ValueOf(src[i])
		switch {
		case sv.Type().AssignableTo(target.Type()):
			target.Set(sv)
		case sv.Type().ConvertibleTo(target.Type()):
			target.Set(sv.Convert(target.Type()))
		case target.Kind() == reflect.Pointer && sv.Type().ConvertibleTo(target.Type().Elem()):
			p := reflect.New(target.Type().Elem())
			p.Elem().Set(sv.Convert(target.Type().Elem()))
			target.Set(p)
		default:
			return fmt.Errorf("dbtest: cannot scan %T into %s", src[i], target.Type())
		}
	}
	return nil
}
