// Package fabrikd_test exercises a demote-then-destroy flow end to end
// over the real HTTP API, store gateway, topology cache, and
// procedure executor wired together the way cmd/fabrikd wires them —
// the one test in the module that drives every layer at once rather
// than a single package in isolation.
package fabrikd_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/events"
	"github.com/fabrikd/fabrikd/executor"
	"github.com/fabrikd/fabrikd/ha"
	"github.com/fabrikd/fabrikd/replication"
	"github.com/fabrikd/fabrikd/server"
	"github.com/fabrikd/fabrikd/sharding"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

type harness struct {
	srv   *server.Server
	cache *topology.Cache
	exec  *executor.Executor
	mock  sqlmock.Sqlmock
	token string
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	gw := store.OpenDB(sqlx.NewDb(db, "mysql"))

	cache := topology.NewCache()
	bus := events.NewBus()
	drv := replication.NewFakeDriver()
	exec := executor.New(gw, bus, 1)
	exec.Run(context.Background())
	t.Cleanup(exec.Shutdown)

	srv := server.New(server.Deps{
		Executor:      exec,
		Coordinator:   ha.NewCoordinator(drv, bus, cache),
		Engine:        sharding.NewEngine(cache, drv),
		Cache:         cache,
		Gateway:       gw,
		Backupper:     sharding.NewMysqldumpBackupper("repl", "secret"),
		ListenAddress: ":0",
		JWTSecret:     "integration-secret",
		AdminUser:     "admin",
		AdminPasswd:   "adminpass",
		ReplUser:      "repl",
		ReplPasswd:    "secret",
	})

	h := &harness{srv: srv, cache: cache, exec: exec, mock: mock}
	h.token = h.login(t)
	return h
}

func (h *harness) login(t *testing.T) string {
	t.Helper()
	body, _ := json.Marshal(map[string]string{"username": "admin", "password": "adminpass"})
	req := httptest.NewRequest("POST", "/api/login", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	require.Equal(t, 200, rec.Code)
	var tok struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	return tok.Token
}

func (h *harness) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var r *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		r = bytes.NewReader(b)
	} else {
		r = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Authorization", "Bearer "+h.token)
	rec := httptest.NewRecorder()
	h.srv.Router().ServeHTTP(rec, req)
	return rec
}

func (h *harness) awaitSuccess(t *testing.T, rec *httptest.ResponseRecorder) bool {
	t.Helper()
	require.Equal(t, 202, rec.Code)
	var resp struct {
		ProcedureID string `json:"procedureId"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	proc, ok := h.exec.Get(resp.ProcedureID)
	require.True(t, ok)
	require.NoError(t, proc.Wait(context.Background()))
	return proc.Success()
}

// TestDemoteThenDestroyGroup walks scenario S5: demoting a group
// leaves it masterless; destroying it while it still hosts an enabled
// shard fails; disabling and removing that shard clears the way for
// destroy to succeed.
func TestDemoteThenDestroyGroup(t *testing.T) {
	h := newHarness(t)

	master := &topology.Backend{UUID: "m", Address: "m-dsn", Status: topology.StatusPrimary, Mode: topology.ModeReadWrite}
	gid := "g1"
	master.GroupID = &gid
	h.cache.PutGroup(&topology.Group{ID: gid, Master: &master.UUID, Status: topology.GroupActive})
	h.cache.PutBackend(master)
	h.cache.PutMapping(&topology.ShardMapping{ID: 1, Type: topology.TypeRange, GlobalGroupID: "global-group"})
	h.cache.PutShard(&topology.Shard{ID: 1, GroupID: gid, MapID: 1, State: topology.ShardEnabled, LowerBound: "0"})

	h.mock.ExpectBegin()
	h.mock.ExpectExec("UPDATE groups SET master_uuid").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec("UPDATE backends SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()
	require.True(t, h.awaitSuccess(t, h.do(t, "POST", "/api/groups/g1/demote", nil)))

	group, ok := h.cache.Group(gid)
	require.True(t, ok)
	require.Nil(t, group.Master)

	h.mock.ExpectBegin()
	h.mock.ExpectRollback()
	require.False(t, h.awaitSuccess(t, h.do(t, "DELETE", "/api/groups/g1", nil)))
	_, stillThere := h.cache.Group(gid)
	require.True(t, stillThere)

	h.mock.ExpectBegin()
	h.mock.ExpectExec("UPDATE shards SET state").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()
	require.True(t, h.awaitSuccess(t, h.do(t, "POST", "/api/shards/1/disable", nil)))

	h.mock.ExpectBegin()
	h.mock.ExpectExec("DELETE FROM shard_ranges").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectExec("DELETE FROM shards").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()
	require.True(t, h.awaitSuccess(t, h.do(t, "DELETE", "/api/shards/1", nil)))

	h.mock.ExpectBegin()
	h.mock.ExpectExec("DELETE FROM groups").WillReturnResult(sqlmock.NewResult(0, 1))
	h.mock.ExpectCommit()
	require.True(t, h.awaitSuccess(t, h.do(t, "DELETE", "/api/groups/g1", nil)))
	_, destroyed := h.cache.Group(gid)
	require.False(t, destroyed)

	require.NoError(t, h.mock.ExpectationsWereMet())
}
