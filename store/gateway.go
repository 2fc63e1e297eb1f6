// Package store is the State Store Gateway: the only component that
// writes to metadata tables. Every topology mutation runs inside an
// explicit transaction scoped to one procedure step, opened here and
// committed or rolled back by the executor. Modeled on the teacher's
// use of github.com/jmoiron/sqlx (cluster/prx.go imports it directly
// for backend connections); the gateway applies the same library to
// the metadata store itself.
package store

import (
	"context"
	"database/sql"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/jmoiron/sqlx"
	_ "github.com/go-sql-driver/mysql"
	log "github.com/sirupsen/logrus"
)

// Gateway wraps the metadata store connection. DSN points at one of
// the fleet's own backends designated to host metadata (spec.md §1).
type Gateway struct {
	db *sqlx.DB
}

// Open connects to the metadata backend and verifies it is reachable.
func Open(driverName, dsn string) (*Gateway, error) {
	db, err := sqlx.Connect(driverName, dsn)
	if err != nil {
		return nil, errs.Database("ERR-DB-001", err, errs.Msg("ERR-DB-001"), err)
	}
	return &Gateway{db: db}, nil
}

// OpenDB wraps an already-open *sqlx.DB, used by tests with sqlmock.
func OpenDB(db *sqlx.DB) *Gateway { return &Gateway{db: db} }

func (g *Gateway) Close() error { return g.db.Close() }

// Tx is a single procedure step's transaction scope: begin on step
// entry, commit on success, rollback on failure.
type Tx struct {
	tx *sqlx.Tx
}

// Begin opens the transaction backing one step.
func (g *Gateway) Begin(ctx context.Context) (*Tx, error) {
	tx, err := g.db.BeginTxx(ctx, nil)
	if err != nil {
		return nil, errs.Database("ERR-DB-001", err, errs.Msg("ERR-DB-001"), err)
	}
	return &Tx{tx: tx}, nil
}

func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		return errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return nil
}

func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil && err != sql.ErrTxDone {
		log.WithError(err).Warn("store: rollback failed")
		return errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return nil
}

// Exec runs a mutating statement inside the step's transaction.
func (t *Tx) Exec(ctx context.Context, query string, args ...interface{}) (sql.Result, error) {
	res, err := t.tx.ExecContext(ctx, query, args...)
	if err != nil {
		return nil, errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return res, nil
}

// Get scans a single row into dest.
func (t *Tx) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := t.tx.GetContext(ctx, dest, query, args...); err != nil {
		return errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return nil
}

// Select scans a row set into dest (a pointer to a slice).
func (t *Tx) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := t.tx.SelectContext(ctx, dest, query, args...); err != nil {
		return errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return nil
}

// LastInsertID reads the auto-increment id produced by a prior Exec's
// sql.Result, wrapping the driver error per the gateway's contract.
func LastInsertID(res sql.Result) (int64, error) {
	id, err := res.LastInsertId()
	if err != nil {
		return 0, errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return id, nil
}

// Select runs a read against the pool directly, outside any step
// transaction -- used by topology.Load to hydrate the cache at
// startup, a read that does not mutate topology and need not hold a
// step's lock.
func (g *Gateway) Select(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := g.db.SelectContext(ctx, dest, query, args...); err != nil {
		return errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return nil
}

func (g *Gateway) Get(ctx context.Context, dest interface{}, query string, args ...interface{}) error {
	if err := g.db.GetContext(ctx, dest, query, args...); err != nil {
		return errs.Database("ERR-DB-002", err, errs.Msg("ERR-DB-002"), err)
	}
	return nil
}
