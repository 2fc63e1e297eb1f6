package server

import (
	"encoding/json"
	"net/http"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/topology"
)

func TestSetBackendStatusRejectsFaultyOnCurrentPrimary(t *testing.T) {
	s, _ := newTestServer(t)
	tok := loginAndGetToken(t, s)
	master := "b1"
	s.cache.PutGroup(&topology.Group{ID: "g1", Master: &master, Status: topology.GroupActive})
	gid := "g1"
	s.cache.PutBackend(&topology.Backend{UUID: "b1", Address: "b1-dsn", GroupID: &gid, Status: topology.StatusPrimary})

	rec := doRequest(t, s, tok, "POST", "/api/backends/b1/status", setStatusRequest{Status: topology.StatusFaulty})
	require.Equal(t, 400, rec.Code)
}

func TestSetBackendStatusSucceedsForSecondary(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	gid := "g1"
	s.cache.PutGroup(&topology.Group{ID: "g1", Status: topology.GroupActive})
	s.cache.PutBackend(&topology.Backend{UUID: "b2", Address: "b2-dsn", GroupID: &gid, Status: topology.StatusSecondary})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE backends SET status").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(t, s, tok, "POST", "/api/backends/b2/status", setStatusRequest{Status: topology.StatusFaulty})
	waitProc(t, s, rec)

	b, _ := s.cache.Backend("b2")
	require.Equal(t, topology.StatusFaulty, b.Status)
}

func TestSetBackendModeFlipsReadOnly(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutBackend(&topology.Backend{UUID: "b1", Address: "b1-dsn", Mode: topology.ModeReadWrite})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE backends SET mode").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(t, s, tok, "POST", "/api/backends/b1/mode", setModeRequest{Mode: topology.ModeReadOnly})
	waitProc(t, s, rec)

	b, _ := s.cache.Backend("b1")
	require.Equal(t, topology.ModeReadOnly, b.Mode)
	require.True(t, b.ReadOnly)
}

func TestSetBackendWeightPersists(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutBackend(&topology.Backend{UUID: "b1", Address: "b1-dsn"})

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE backends SET weight").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(t, s, tok, "POST", "/api/backends/b1/weight", setWeightRequest{Weight: 2.5})
	waitProc(t, s, rec)

	b, _ := s.cache.Backend("b1")
	require.Equal(t, 2.5, b.Weight)
}

func TestLookupUUIDByAddress(t *testing.T) {
	s, _ := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutBackend(&topology.Backend{UUID: "b1", Address: "10.0.0.5:3306"})

	rec := doRequest(t, s, tok, "GET", "/api/backends/lookup-uuid?address=10.0.0.5:3306", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var b topology.Backend
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &b))
	require.Equal(t, "b1", b.UUID)

	rec = doRequest(t, s, tok, "GET", "/api/backends/lookup-uuid?address=unknown", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}
