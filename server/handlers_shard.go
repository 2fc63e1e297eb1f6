package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"sync/atomic"

	"github.com/gorilla/mux"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/executor"
	"github.com/fabrikd/fabrikd/sharding"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

// shardStateOf defaults an unrecognized or empty initialState to
// PENDING, the safe starting point add_shard falls back to per
// spec.md §6 rather than silently enabling an unreviewed shard.
func shardStateOf(s string) topology.ShardState {
	switch topology.ShardState(s) {
	case topology.ShardEnabled, topology.ShardDisabled, topology.ShardPending:
		return topology.ShardState(s)
	default:
		return topology.ShardPending
	}
}

// nextShardID is a process-wide monotonic counter handed to AddShard
// and SplitShard; the store's auto-increment id column is not used
// here since a mapping's initial shard set and every later split need
// ids minted before the row exists, to populate shard_ranges in the
// same statement batch.
var shardIDCounter uint64

func nextShardID() int64 { return int64(atomic.AddUint64(&shardIDCounter, 1)) }

// globalMasterDSN resolves a mapping's global group's current master
// address, the value every sharding mutator needs to point newly
// enabled or moved shards at.
func (s *Server) globalMasterDSN(mappingID int64) (string, error) {
	mapping, ok := s.cache.Mapping(mappingID)
	if !ok {
		return "", errs.Sharding("ERR-SHD-001", "mapping %d does not exist", mappingID)
	}
	group, ok := s.cache.Group(mapping.GlobalGroupID)
	if !ok || group.Master == nil {
		return "", errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), mapping.GlobalGroupID)
	}
	backend, ok := s.cache.Backend(*group.Master)
	if !ok {
		return "", errs.Uuid("ERR-API-006", "master backend %s not found", *group.Master)
	}
	return backend.Address, nil
}

func parseInt64Var(r *http.Request, name string) (int64, error) {
	return strconv.ParseInt(mux.Vars(r)[name], 10, 64)
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseInt64Var(r, "mappingId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid mappingId"})
		return
	}
	key := r.URL.Query().Get("key")
	hint := sharding.Hint(r.URL.Query().Get("hint"))
	if hint == "" {
		hint = sharding.HintLocal
	}

	results, err := s.eng.Lookup(r.Context(), mappingID, key, hint)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, results)
}

type rebalanceEstimateRequest struct {
	SampleKeys []string `json:"sampleKeys"`
}

type rebalanceEstimateResponse struct {
	Skew float64 `json:"skew"`
}

// handleRebalanceEstimate runs a read-only sample-bucket skew check so
// an operator can decide whether a split is warranted before
// triggering the procedure that actually moves data.
func (s *Server) handleRebalanceEstimate(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseInt64Var(r, "mappingId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid mappingId"})
		return
	}
	var req rebalanceEstimateRequest
	json.NewDecoder(r.Body).Decode(&req)

	skew := s.eng.EstimateRebalanceCost(mappingID, req.SampleKeys)
	writeJSON(w, http.StatusOK, rebalanceEstimateResponse{Skew: skew})
}

type addShardRequest struct {
	Groups       []sharding.GroupBound `json:"groups"`
	InitialState string                `json:"initialState"`
}

type shardIDsResponse struct {
	ProcedureID string `json:"procedureId"`
}

func (s *Server) handleAddShard(w http.ResponseWriter, r *http.Request) {
	mappingID, err := parseInt64Var(r, "mappingId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid mappingId"})
		return
	}
	var req addShardRequest
	json.NewDecoder(r.Body).Decode(&req)

	dsn, err := s.globalMasterDSN(mappingID)
	if err != nil {
		writeError(w, err)
		return
	}
	mappingKey := strconv.FormatInt(mappingID, 10)

	proc := s.exec.Trigger("sharding.addShard", []string{mappingKey}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		_, err := s.eng.AddShard(ctx, tx, mappingID, req.Groups, shardStateOf(req.InitialState), nextShardID, dsn,
			sharding.ReplicationCreds{User: s.replCreds.User, Passwd: s.replCreds.Passwd})
		return nil, err
	})
	writeJSON(w, http.StatusAccepted, shardIDsResponse{ProcedureID: proc.ID})
}

func (s *Server) handleEnableShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := parseInt64Var(r, "shardId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid shardId"})
		return
	}

	shard, ok := s.cache.Shard(shardID)
	if !ok {
		writeError(w, errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID))
		return
	}
	dsn, err := s.globalMasterDSN(shard.MapID)
	if err != nil {
		writeError(w, err)
		return
	}

	proc := s.exec.Trigger("sharding.enableShard", []string{shard.GroupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		return nil, s.eng.EnableShard(ctx, tx, shardID, dsn,
			sharding.ReplicationCreds{User: s.replCreds.User, Passwd: s.replCreds.Passwd})
	})
	writeJSON(w, http.StatusAccepted, shardIDsResponse{ProcedureID: proc.ID})
}

func (s *Server) handleDisableShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := parseInt64Var(r, "shardId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid shardId"})
		return
	}
	shard, ok := s.cache.Shard(shardID)
	if !ok {
		writeError(w, errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID))
		return
	}

	proc := s.exec.Trigger("sharding.disableShard", []string{shard.GroupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		return nil, s.eng.DisableShard(ctx, tx, shardID)
	})
	writeJSON(w, http.StatusAccepted, shardIDsResponse{ProcedureID: proc.ID})
}

func (s *Server) handleRemoveShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := parseInt64Var(r, "shardId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid shardId"})
		return
	}
	shard, ok := s.cache.Shard(shardID)
	if !ok {
		writeError(w, errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID))
		return
	}

	proc := s.exec.Trigger("sharding.removeShard", []string{shard.GroupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		return nil, s.eng.RemoveShard(ctx, tx, shardID)
	})
	writeJSON(w, http.StatusAccepted, shardIDsResponse{ProcedureID: proc.ID})
}

type moveShardRequest struct {
	DestGroupID string `json:"destGroupId"`
	UpdateOnly  bool   `json:"updateOnly"`
}

func (s *Server) handleMoveShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := parseInt64Var(r, "shardId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid shardId"})
		return
	}
	var req moveShardRequest
	json.NewDecoder(r.Body).Decode(&req)

	shard, ok := s.cache.Shard(shardID)
	if !ok {
		writeError(w, errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID))
		return
	}
	dsn, err := s.globalMasterDSN(shard.MapID)
	if err != nil {
		writeError(w, err)
		return
	}

	proc := s.exec.Trigger("sharding.moveShard", []string{shard.GroupID, req.DestGroupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		return nil, s.eng.MoveShard(ctx, tx, shardID, req.DestGroupID, req.UpdateOnly, s.bk, dsn,
			sharding.ReplicationCreds{User: s.replCreds.User, Passwd: s.replCreds.Passwd})
	})
	writeJSON(w, http.StatusAccepted, shardIDsResponse{ProcedureID: proc.ID})
}

type splitShardRequest struct {
	NewGroupID string `json:"newGroupId"`
	SplitValue string `json:"splitValue"`
	UpdateOnly bool   `json:"updateOnly"`
}

type splitShardResponse struct {
	ProcedureID string `json:"procedureId"`
}

func (s *Server) handleSplitShard(w http.ResponseWriter, r *http.Request) {
	shardID, err := parseInt64Var(r, "shardId")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Code: "ERR-API-004", Message: "invalid shardId"})
		return
	}
	var req splitShardRequest
	json.NewDecoder(r.Body).Decode(&req)

	shard, ok := s.cache.Shard(shardID)
	if !ok {
		writeError(w, errs.Sharding("ERR-SHD-002", "shard %d does not exist", shardID))
		return
	}
	dsn, err := s.globalMasterDSN(shard.MapID)
	if err != nil {
		writeError(w, err)
		return
	}

	proc := s.exec.Trigger("sharding.splitShard", []string{shard.GroupID, req.NewGroupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		_, _, err := s.eng.SplitShard(ctx, tx, shardID, req.NewGroupID, req.SplitValue, req.UpdateOnly, s.bk, nextShardID, dsn,
			sharding.ReplicationCreds{User: s.replCreds.User, Passwd: s.replCreds.Passwd})
		return nil, err
	})
	writeJSON(w, http.StatusAccepted, splitShardResponse{ProcedureID: proc.ID})
}
