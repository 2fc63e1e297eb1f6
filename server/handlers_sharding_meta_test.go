package server

import (
	"encoding/json"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/require"

	"github.com/fabrikd/fabrikd/topology"
)

func TestCreateDefinitionReturnsNewMappingID(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutGroup(&topology.Group{ID: "global", Status: topology.GroupActive})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO shard_maps").WillReturnResult(sqlmock.NewResult(7, 1))
	mock.ExpectCommit()

	rec := doRequest(t, s, tok, "POST", "/api/mappings", createDefinitionRequest{Type: topology.TypeRange, GlobalGroupID: "global"})
	require.Equal(t, 202, rec.Code)

	var resp createDefinitionResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, int64(7), resp.MappingID)

	_, ok := s.cache.Mapping(7)
	require.True(t, ok)
}

func TestRemoveDefinitionRejectsWhileShardsOrTablesRemain(t *testing.T) {
	s, _ := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutMapping(&topology.ShardMapping{ID: 1, Type: topology.TypeRange, GlobalGroupID: "global"})
	s.cache.PutShard(&topology.Shard{ID: 1, GroupID: "g1", MapID: 1, State: topology.ShardEnabled, LowerBound: "0"})

	rec := doRequest(t, s, tok, "DELETE", "/api/mappings/1", nil)
	require.Equal(t, 400, rec.Code)

	s.cache.DeleteShard(1)
	s.cache.PutTable(&topology.ShardTable{MapID: 1, TableName: "orders", ColumnName: "customer_id"})

	rec = doRequest(t, s, tok, "DELETE", "/api/mappings/1", nil)
	require.Equal(t, 400, rec.Code)
}

func TestRemoveDefinitionSucceedsOnceClear(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutMapping(&topology.ShardMapping{ID: 1, Type: topology.TypeRange, GlobalGroupID: "global"})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM shard_maps").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(t, s, tok, "DELETE", "/api/mappings/1", nil)
	waitProc(t, s, rec)

	_, ok := s.cache.Mapping(1)
	require.False(t, ok)
}

func TestAddTableRejectsDuplicateAttachment(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutMapping(&topology.ShardMapping{ID: 1, Type: topology.TypeRange, GlobalGroupID: "global"})

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO shard_tables").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(t, s, tok, "POST", "/api/mappings/1/tables", addTableRequest{TableName: "orders", ColumnName: "customer_id"})
	waitProc(t, s, rec)

	rec = doRequest(t, s, tok, "POST", "/api/mappings/1/tables", addTableRequest{TableName: "orders", ColumnName: "customer_id"})
	require.Equal(t, 400, rec.Code)
}

func TestRemoveTableThenLookupMisses(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutTable(&topology.ShardTable{MapID: 1, TableName: "orders", ColumnName: "customer_id"})

	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM shard_tables").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	rec := doRequest(t, s, tok, "DELETE", "/api/tables/orders", nil)
	waitProc(t, s, rec)

	rec = doRequest(t, s, tok, "GET", "/api/tables/orders", nil)
	require.Equal(t, 400, rec.Code)
}

func TestPruneShardDeletesOutOfRangeRows(t *testing.T) {
	s, mock := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutMapping(&topology.ShardMapping{ID: 1, Type: topology.TypeRange, GlobalGroupID: "global"})
	s.cache.PutGroup(&topology.Group{ID: "g1", Master: strPtr("m"), Status: topology.GroupActive})
	gid := "g1"
	s.cache.PutBackend(&topology.Backend{UUID: "m", Address: "m-dsn", GroupID: &gid})
	s.cache.PutShard(&topology.Shard{ID: 1, GroupID: "g1", MapID: 1, State: topology.ShardEnabled, LowerBound: "0"})

	mock.ExpectExec("DELETE FROM orders").WillReturnResult(sqlmock.NewResult(0, 3))

	rec := doRequest(t, s, tok, "POST", "/api/mappings/1/prune", pruneShardRequest{TableName: "orders", ShardColumn: "customer_id"})
	require.Equal(t, 200, rec.Code)
}

func strPtr(s string) *string { return &s }

func TestListTablesAndDefinitions(t *testing.T) {
	s, _ := newTestServer(t)
	tok := loginAndGetToken(t, s)
	s.cache.PutMapping(&topology.ShardMapping{ID: 1, Type: topology.TypeRange, GlobalGroupID: "global"})
	s.cache.PutTable(&topology.ShardTable{MapID: 1, TableName: "orders", ColumnName: "customer_id"})

	rec := doRequest(t, s, tok, "GET", "/api/mappings", nil)
	require.Equal(t, 200, rec.Code)
	var mappings []*topology.ShardMapping
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &mappings))
	require.Len(t, mappings, 1)

	rec = doRequest(t, s, tok, "GET", "/api/mappings/1/tables", nil)
	require.Equal(t, 200, rec.Code)
	var tables []*topology.ShardTable
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tables))
	require.Len(t, tables, 1)
}
