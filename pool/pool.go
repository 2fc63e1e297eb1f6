// Package pool implements the per-backend connection pool: a
// thread-safe, backend-identity-keyed cache of validated client
// connections. Modeled on the teacher's per-proxy connection handling
// (cluster/prx.go's GetCluster/db.Close patterns) generalized into an
// explicit, dependency-injected component per spec.md §9.
package pool

import (
	"context"
	"sync"

	"github.com/jmoiron/sqlx"
)

// Opener dials a backend given its DSN; swappable for tests.
type Opener func(dsn string) (*sqlx.DB, error)

// Pool is the process-wide connection pool, keyed by backend UUID.
type Pool struct {
	mu    sync.Mutex
	conns map[string][]*sqlx.DB
	open  Opener
}

func New(open Opener) *Pool {
	return &Pool{conns: make(map[string][]*sqlx.DB), open: open}
}

// Get returns a connection for backendID that passes a liveness probe,
// dialing a fresh one via Opener if none is cached or the cached one is
// stale. Stale connections are discarded inside Get, never returned.
func (p *Pool) Get(ctx context.Context, backendID, dsn string) (*sqlx.DB, error) {
	p.mu.Lock()
	cached := p.conns[backendID]
	if len(cached) > 0 {
		conn := cached[len(cached)-1]
		p.conns[backendID] = cached[:len(cached)-1]
		p.mu.Unlock()
		if conn.PingContext(ctx) == nil {
			return conn, nil
		}
		conn.Close()
	} else {
		p.mu.Unlock()
	}

	conn, err := p.open(dsn)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Release returns conn to the pool unconditionally; no state inspection.
func (p *Pool) Release(backendID string, conn *sqlx.DB) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.conns[backendID] = append(p.conns[backendID], conn)
}

// Purge closes every cached connection for backendID. Called when the
// backend is removed, demoted hard, or observed with changed
// credentials.
func (p *Pool) Purge(backendID string) {
	p.mu.Lock()
	conns := p.conns[backendID]
	delete(p.conns, backendID)
	p.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// Count reports how many idle connections are currently cached for
// backendID.
func (p *Pool) Count(backendID string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.conns[backendID])
}

// SqlOpener adapts sqlx.Open/Connect to the Opener signature for a
// given driver name, used to build the real pool in cmd/fabrikd.
func SqlOpener(driverName string) Opener {
	return func(dsn string) (*sqlx.DB, error) {
		db, err := sqlx.Open(driverName, dsn)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(); err != nil {
			db.Close()
			return nil, err
		}
		return db, nil
	}
}
