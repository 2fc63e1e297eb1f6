package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/executor"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

type createDefinitionRequest struct {
	Type          topology.ShardingType `json:"type"`
	GlobalGroupID string                `json:"globalGroup"`
}

type createDefinitionResponse struct {
	ProcedureID string `json:"procedureId"`
	MappingID   int64  `json:"mappingId"`
}

// handleCreateDefinition triggers sharding.create_definition. The
// mapping id is the store's auto-increment shard_maps.id, read back
// inside the same step so the caller learns it without a second round
// trip, the same pattern handleAddShard uses for globalMasterDSN.
func (s *Server) handleCreateDefinition(w http.ResponseWriter, r *http.Request) {
	var req createDefinitionRequest
	json.NewDecoder(r.Body).Decode(&req)

	if _, ok := s.cache.Group(req.GlobalGroupID); !ok {
		writeError(w, errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), req.GlobalGroupID))
		return
	}

	var mappingID int64
	proc := s.exec.Trigger("sharding.create_definition", nil, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		res, err := tx.Exec(ctx, "INSERT INTO shard_maps (type, global_group) VALUES (?, ?)", string(req.Type), req.GlobalGroupID)
		if err != nil {
			return nil, err
		}
		id, err := store.LastInsertID(res)
		if err != nil {
			return nil, err
		}
		mappingID = id
		s.cache.PutMapping(&topology.ShardMapping{ID: id, Type: req.Type, GlobalGroupID: req.GlobalGroupID})
		return nil, nil
	})
	if err := proc.Wait(r.Context()); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, createDefinitionResponse{ProcedureID: proc.ID, MappingID: mappingID})
}

// handleRemoveDefinition triggers sharding.remove_definition: a
// mapping may only be dropped once every shard and table referencing
// it is gone, the same ordering group.destroy enforces for shards
// hosted on a group.
func (s *Server) handleRemoveDefinition(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseInt64Var(r, "mappingId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid mappingId"})
		return
	}
	if _, ok := s.cache.Mapping(mappingID); !ok {
		writeError(w, errs.Sharding("ERR-SHD-001", "mapping %d does not exist", mappingID))
		return
	}
	if shards := s.cache.ShardsOfMapping(mappingID); len(shards) > 0 {
		writeError(w, errs.Sharding("ERR-SHD-008", errs.Msg("ERR-SHD-008"), mappingID))
		return
	}
	if tables := s.cache.TablesOfMapping(mappingID); len(tables) > 0 {
		writeError(w, errs.Sharding("ERR-SHD-011", errs.Msg("ERR-SHD-011"), mappingID))
		return
	}

	proc := s.exec.Trigger("sharding.remove_definition", nil, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "DELETE FROM shard_maps WHERE id = ?", mappingID); err != nil {
			return nil, err
		}
		s.cache.DeleteMapping(mappingID)
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

// handleListDefinitions serves sharding.list_definitions.
func (s *Server) handleListDefinitions(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.cache.AllMappings())
}

type addTableRequest struct {
	TableName  string `json:"tableName"`
	ColumnName string `json:"columnName"`
}

// handleAddTable triggers sharding.add_table.
func (s *Server) handleAddTable(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseInt64Var(r, "mappingId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid mappingId"})
		return
	}
	var req addTableRequest
	json.NewDecoder(r.Body).Decode(&req)

	if _, ok := s.cache.Mapping(mappingID); !ok {
		writeError(w, errs.Sharding("ERR-SHD-001", "mapping %d does not exist", mappingID))
		return
	}
	if _, ok := s.cache.Table(req.TableName); ok {
		writeError(w, errs.Sharding("ERR-SHD-009", errs.Msg("ERR-SHD-009"), req.TableName, mappingID))
		return
	}

	proc := s.exec.Trigger("sharding.add_table", nil, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "INSERT INTO shard_tables (map_id, table_name, column_name) VALUES (?, ?, ?)",
			mappingID, req.TableName, req.ColumnName); err != nil {
			return nil, err
		}
		s.cache.PutTable(&topology.ShardTable{MapID: mappingID, TableName: req.TableName, ColumnName: req.ColumnName})
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

// handleRemoveTable triggers sharding.remove_table.
func (s *Server) handleRemoveTable(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["tableName"]
	if _, ok := s.cache.Table(tableName); !ok {
		writeError(w, errs.Sharding("ERR-SHD-010", errs.Msg("ERR-SHD-010"), tableName))
		return
	}

	proc := s.exec.Trigger("sharding.remove_table", nil, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "DELETE FROM shard_tables WHERE table_name = ?", tableName); err != nil {
			return nil, err
		}
		s.cache.DeleteTable(tableName)
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

// handleListTables serves sharding.list_tables.
func (s *Server) handleListTables(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseInt64Var(r, "mappingId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid mappingId"})
		return
	}
	writeJSON(w, http.StatusOK, s.cache.TablesOfMapping(mappingID))
}

// handleLookupTable serves sharding.lookup_table.
func (s *Server) handleLookupTable(w http.ResponseWriter, r *http.Request) {
	tableName := mux.Vars(r)["tableName"]
	table, ok := s.cache.Table(tableName)
	if !ok {
		writeError(w, errs.Sharding("ERR-SHD-010", errs.Msg("ERR-SHD-010"), tableName))
		return
	}
	writeJSON(w, http.StatusOK, table)
}

type pruneShardRequest struct {
	TableName   string `json:"tableName"`
	ShardColumn string `json:"shardColumn"`
}

// handlePruneShard serves sharding.prune_shard. Pruning issues direct
// DELETEs against backend data connections rather than metadata-store
// mutations, so it runs against s.pool outside the executor's
// step/lock machinery -- the same reasoning MysqldumpBackupper's
// filesystem work already uses inside SplitShard's step.
func (s *Server) handlePruneShard(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseInt64Var(r, "mappingId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid mappingId"})
		return
	}
	var req pruneShardRequest
	json.NewDecoder(r.Body).Decode(&req)

	if err := s.eng.PruneTable(r.Context(), s.pool, mappingID, req.TableName, req.ShardColumn); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, struct{}{})
}
