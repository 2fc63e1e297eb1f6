// replication-manager - Replication Manager Monitoring and CLI for MariaDB and MySQL
// Copyright 2017-2021 SIGNAL18 CLOUD SAS
// Author: Guillaume Lefranc <guillaume@signal18.io>
// License: GNU General Public License, version 3. Redistribution/Reuse of this code is permitted under the GNU v3 license, as an additional term ALL code must carry the original Author(s) credit in comment form.
// See LICENSE in this directory for the integral text.

// Package server exposes fabrikd's control-plane operations over an
// HTTP + JWT API, the same shape as the teacher's apiserver: a
// gorilla/mux router, negroni middleware chains per route, and a
// bearer-token login handler. Unlike the teacher's package-global
// RepMan, every dependency here is constructed explicitly and injected
// into Server, so the package has no package-level mutable state.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/codegangsta/negroni"
	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"

	"github.com/fabrikd/fabrikd/executor"
	"github.com/fabrikd/fabrikd/ha"
	"github.com/fabrikd/fabrikd/metrics"
	"github.com/fabrikd/fabrikd/pool"
	"github.com/fabrikd/fabrikd/sharding"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

// Server bundles every component the HTTP API dispatches into. It is
// constructed once by cmd/fabrikd and handed to Run.
type Server struct {
	exec  *executor.Executor
	coord *ha.Coordinator
	eng   *sharding.Engine
	cache *topology.Cache
	gw    *store.Gateway
	bk    sharding.Backupper
	pool  *pool.Pool

	listenAddr  string
	jwtSecret   string
	adminUser   string
	adminPasswd string
	replCreds   ha.ReplicationCreds
}

// Deps is the explicit set of components Server needs, named the way
// a constructor's options struct groups related arguments.
type Deps struct {
	Executor      *executor.Executor
	Coordinator   *ha.Coordinator
	Engine        *sharding.Engine
	Cache         *topology.Cache
	Gateway       *store.Gateway
	Backupper     sharding.Backupper
	Pool          *pool.Pool
	ListenAddress string
	JWTSecret     string
	AdminUser     string
	AdminPasswd   string
	ReplUser      string
	ReplPasswd    string
}

func New(d Deps) *Server {
	return &Server{
		exec:        d.Executor,
		coord:       d.Coordinator,
		eng:         d.Engine,
		cache:       d.Cache,
		gw:          d.Gateway,
		bk:          d.Backupper,
		pool:        d.Pool,
		listenAddr:  d.ListenAddress,
		jwtSecret:   d.JWTSecret,
		adminUser:   d.AdminUser,
		adminPasswd: d.AdminPasswd,
		replCreds:   ha.ReplicationCreds{User: d.ReplUser, Passwd: d.ReplPasswd},
	}
}

// Router builds the full route table: public login and metrics
// endpoints, then every mutating/read operation behind
// validateTokenMiddleware, mirroring the teacher's public/protected
// split between apiDatabaseUnprotectedHandler and
// apiDatabaseProtectedHandler.
func (s *Server) Router() *mux.Router {
	router := mux.NewRouter()

	router.Handle("/api/login", negroni.New(
		negroni.Wrap(http.HandlerFunc(s.loginHandler)),
	)).Methods(http.MethodPost)

	router.Handle("/metrics", negroni.New(
		negroni.Wrap(metrics.Handler()),
	)).Methods(http.MethodGet)

	protected := func(h http.HandlerFunc) http.Handler {
		return negroni.New(
			negroni.HandlerFunc(s.validateTokenMiddleware),
			negroni.Wrap(h),
		)
	}

	router.Handle("/api/groups", protected(s.handleLookupGroups)).Methods(http.MethodGet)
	router.Handle("/api/groups/{groupId}", protected(s.handleCreateGroup)).Methods(http.MethodPut)
	router.Handle("/api/groups/{groupId}", protected(s.handleDestroyGroup)).Methods(http.MethodDelete)
	router.Handle("/api/groups/{groupId}/description", protected(s.handleGroupDescription)).Methods(http.MethodPost)
	router.Handle("/api/groups/{groupId}/members", protected(s.handleGroupAdd)).Methods(http.MethodPost)
	router.Handle("/api/groups/{groupId}/members", protected(s.handleGroupRemove)).Methods(http.MethodDelete)
	router.Handle("/api/groups/{groupId}/servers", protected(s.handleLookupServers)).Methods(http.MethodGet)
	router.Handle("/api/groups/{groupId}/activate", protected(s.setGroupStatus(topology.GroupActive))).Methods(http.MethodPost)
	router.Handle("/api/groups/{groupId}/deactivate", protected(s.setGroupStatus(topology.GroupInactive))).Methods(http.MethodPost)
	router.Handle("/api/groups/{groupId}/health", protected(s.handleGroupHealth)).Methods(http.MethodGet)
	router.Handle("/api/groups/{groupId}/promote", protected(s.handlePromote)).Methods(http.MethodPost)
	router.Handle("/api/groups/{groupId}/demote", protected(s.handleDemote)).Methods(http.MethodPost)
	router.Handle("/api/groups/reconcile", protected(s.handleReconcile)).Methods(http.MethodPost)

	router.Handle("/api/backends/{uuid}/status", protected(s.handleSetBackendStatus)).Methods(http.MethodPost)
	router.Handle("/api/backends/{uuid}/mode", protected(s.handleSetBackendMode)).Methods(http.MethodPost)
	router.Handle("/api/backends/{uuid}/weight", protected(s.handleSetBackendWeight)).Methods(http.MethodPost)
	router.Handle("/api/backends/lookup-uuid", protected(s.handleLookupUUID)).Methods(http.MethodGet)

	router.Handle("/api/mappings", protected(s.handleListDefinitions)).Methods(http.MethodGet)
	router.Handle("/api/mappings", protected(s.handleCreateDefinition)).Methods(http.MethodPost)
	router.Handle("/api/mappings/{mappingId}", protected(s.handleRemoveDefinition)).Methods(http.MethodDelete)
	router.Handle("/api/mappings/{mappingId}/lookup", protected(s.handleLookup)).Methods(http.MethodGet)
	router.Handle("/api/mappings/{mappingId}/shards", protected(s.handleAddShard)).Methods(http.MethodPost)
	router.Handle("/api/mappings/{mappingId}/rebalance-estimate", protected(s.handleRebalanceEstimate)).Methods(http.MethodPost)
	router.Handle("/api/mappings/{mappingId}/tables", protected(s.handleListTables)).Methods(http.MethodGet)
	router.Handle("/api/mappings/{mappingId}/tables", protected(s.handleAddTable)).Methods(http.MethodPost)
	router.Handle("/api/mappings/{mappingId}/prune", protected(s.handlePruneShard)).Methods(http.MethodPost)

	router.Handle("/api/tables/{tableName}", protected(s.handleLookupTable)).Methods(http.MethodGet)
	router.Handle("/api/tables/{tableName}", protected(s.handleRemoveTable)).Methods(http.MethodDelete)

	router.Handle("/api/shards/{shardId}/enable", protected(s.handleEnableShard)).Methods(http.MethodPost)
	router.Handle("/api/shards/{shardId}/disable", protected(s.handleDisableShard)).Methods(http.MethodPost)
	router.Handle("/api/shards/{shardId}", protected(s.handleRemoveShard)).Methods(http.MethodDelete)
	router.Handle("/api/shards/{shardId}/move", protected(s.handleMoveShard)).Methods(http.MethodPost)
	router.Handle("/api/shards/{shardId}/split", protected(s.handleSplitShard)).Methods(http.MethodPost)

	router.Handle("/api/procedures/{id}", protected(s.handleProcedureStatus)).Methods(http.MethodGet)

	return router
}

// Run starts the HTTP listener; it blocks until ctx is cancelled or
// the listener errors, the way the teacher's StartServerV3 blocks its
// caller for the lifetime of the process.
func (s *Server) Run(ctx context.Context) error {
	httpServer := &http.Server{
		Addr:    s.listenAddr,
		Handler: s.Router(),
	}

	errCh := make(chan error, 1)
	go func() {
		log.WithField("addr", s.listenAddr).Info("server: HTTP & JWT API starting")
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}
