package pool

import (
	"context"

	"github.com/jackc/pgconn"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// something sending SQL.
//
// this is a subset of methods shared by `*pgxpool.Pool`, `*pgxpool.Conn` and `pgx.Tx`.
type Queryer interface {
	// sending SQL Command which does not have any result rows.
	Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error)

	// sending SQL Command which has result rows.
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)

	// sending SQL Command which has just single result row.
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

// something begins SQL Transaction.
type Begin interface {
	Begin(ctx context.Context) (Tx, error)
}

// interface extracted from `pgx.Tx`.
//
// `pgx.Tx` itself does not implement this because its Begin returns `pgx.Tx`.
// Get one from Pool or Conn in this package.
type Tx interface {
	Queryer
	Begin

	Commit(ctx context.Context) error
	Rollback(ctx context.Context) error
}

// interface extracted from `*pgxpool.Conn`.
//
// Session-level state (like advisory locks) survives while the Conn is acquired.
type Conn interface {
	Queryer
	Begin

	Release()

	// underlying connection
	Conn() *pgx.Conn
}

// interface extracted from `*pgxpool.Pool`.
type Pool interface {
	Queryer
	Begin

	Acquire(ctx context.Context) (Conn, error)
	Ping(ctx context.Context) error
	Close()
}

type pgxTx struct {
	base pgx.Tx
}

var _ Tx = &pgxTx{}

func (tx *pgxTx) Begin(ctx context.Context) (Tx, error) {
	nested, err := tx.base.Begin(ctx)
	if nested == nil {
		return nil, err
	}
	return &pgxTx{nested}, err
}
func (tx *pgxTx) Commit(ctx context.Context) error {
	return tx.base.Commit(ctx)
}
func (tx *pgxTx) Rollback(ctx context.Context) error {
	return tx.base.Rollback(ctx)
}
func (tx *pgxTx) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return tx.base.Exec(ctx, sql, arguments...)
}
func (tx *pgxTx) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return tx.base.Query(ctx, sql, args...)
}
func (tx *pgxTx) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return tx.base.QueryRow(ctx, sql, args...)
}

type pgxPoolConn struct {
	base *pgxpool.Conn
}

var _ Conn = &pgxPoolConn{}

func (c *pgxPoolConn) Begin(ctx context.Context) (Tx, error) {
	tx, err := c.base.Begin(ctx)
	if tx == nil {
		return nil, err
	}
	return &pgxTx{tx}, err
}
func (c *pgxPoolConn) Release() {
	c.base.Release()
}
func (c *pgxPoolConn) Conn() *pgx.Conn {
	return c.base.Conn()
}
func (c *pgxPoolConn) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return c.base.Exec(ctx, sql, arguments...)
}
func (c *pgxPoolConn) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return c.base.Query(ctx, sql, args...)
}
func (c *pgxPoolConn) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return c.base.QueryRow(ctx, sql, args...)
}

type pgxPool struct {
	base *pgxpool.Pool
}

var _ Pool = &pgxPool{}

func (p *pgxPool) Begin(ctx context.Context) (Tx, error) {
	tx, err := p.base.Begin(ctx)
	if tx == nil {
		return nil, err
	}
	return &pgxTx{tx}, err
}
func (p *pgxPool) Acquire(ctx context.Context) (Conn, error) {
	conn, err := p.base.Acquire(ctx)
	if conn == nil {
		return nil, err
	}
	return &pgxPoolConn{conn}, err
}
func (p *pgxPool) Exec(ctx context.Context, sql string, arguments ...interface{}) (pgconn.CommandTag, error) {
	return p.base.Exec(ctx, sql, arguments...)
}
func (p *pgxPool) Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error) {
	return p.base.Query(ctx, sql, args...)
}
func (p *pgxPool) QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row {
	return p.base.QueryRow(ctx, sql, args...)
}
func (p *pgxPool) Ping(ctx context.Context) error {
	return p.base.Ping(ctx)
}
func (p *pgxPool) Close() {
	p.base.Close()
}

func Wrap(p *pgxpool.Pool) Pool {
	return &pgxPool{p}
}

// Connect opens a new pool for the database url.
func Connect(ctx context.Context, url string) (Pool, error) {
	p, err := pgxpool.Connect(ctx, url)
	if err != nil {
		return nil, err
	}
	return Wrap(p), nil
}
