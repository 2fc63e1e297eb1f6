package server

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/fabrikd/fabrikd/errs"
	"github.com/fabrikd/fabrikd/executor"
	"github.com/fabrikd/fabrikd/ha"
	"github.com/fabrikd/fabrikd/store"
	"github.com/fabrikd/fabrikd/topology"
)

type promoteRequest struct {
	CandidateID string `json:"candidateId"`
}

type promoteResponse struct {
	ProcedureID string `json:"procedureId"`
}

// handlePromote triggers group.promote as a locked, single-step
// procedure: ha.Coordinator.Promote mutates the cache, then
// ha.PersistGroupState writes the resulting master/status rows back to
// the store inside the same step's transaction.
func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	var req promoteRequest
	json.NewDecoder(r.Body).Decode(&req)

	proc := s.exec.Trigger("group.promote", []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := s.coord.Promote(ctx, groupID, req.CandidateID, s.replCreds); err != nil {
			return nil, err
		}
		return nil, ha.PersistGroupState(ctx, tx, s.cache, groupID)
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

// handleDemote triggers group.demote the same way.
func (s *Server) handleDemote(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]

	proc := s.exec.Trigger("group.demote", []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if err := s.coord.Demote(ctx, groupID); err != nil {
			return nil, err
		}
		return nil, ha.PersistGroupState(ctx, tx, s.cache, groupID)
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

// handleDestroyGroup enforces shard-index invariant 4 before deleting a
// group: a group still hosting an enabled shard, or serving as a
// mapping's global group, may not be destroyed.
func (s *Server) handleDestroyGroup(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	if _, ok := s.cache.Group(groupID); !ok {
		writeError(w, errs.Group("ERR-GRP-001", "group %s does not exist", groupID))
		return
	}

	proc := s.exec.Trigger("group.destroy", []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if err := topology.CanDestroyGroup(groupID, s.cache.GroupHostsShard(groupID), s.cache.GroupIsGlobalOfMapping(groupID)); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, "DELETE FROM groups WHERE id = ?", groupID); err != nil {
			return nil, err
		}
		s.cache.DeleteGroup(groupID)
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

type createGroupRequest struct {
	Description string `json:"description"`
}

// handleCreateGroup triggers group.create: a new, masterless, ACTIVE
// group with no members. Masters and membership are assigned
// afterwards via group.add and group.promote.
func (s *Server) handleCreateGroup(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	var req createGroupRequest
	json.NewDecoder(r.Body).Decode(&req)

	if _, ok := s.cache.Group(groupID); ok {
		writeError(w, errs.Group("ERR-GRP-010", errs.Msg("ERR-GRP-010"), groupID))
		return
	}

	proc := s.exec.Trigger("group.create", []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "INSERT INTO groups (id, description, status) VALUES (?, ?, ?)",
			groupID, req.Description, string(topology.GroupActive)); err != nil {
			return nil, err
		}
		s.cache.PutGroup(&topology.Group{ID: groupID, Description: req.Description, Status: topology.GroupActive})
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

type groupDescriptionRequest struct {
	Description string `json:"description"`
}

// handleGroupDescription triggers group.description.
func (s *Server) handleGroupDescription(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	var req groupDescriptionRequest
	json.NewDecoder(r.Body).Decode(&req)

	group, ok := s.cache.Group(groupID)
	if !ok {
		writeError(w, errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID))
		return
	}

	proc := s.exec.Trigger("group.description", []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "UPDATE groups SET description = ? WHERE id = ?", req.Description, groupID); err != nil {
			return nil, err
		}
		group.Description = req.Description
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

type groupMemberRequest struct {
	BackendUUID string `json:"backendUuid"`
}

// handleGroupAdd triggers group.add: attaches an existing, ungrouped
// backend to groupID. Status/mode are left as-is; group.promote or
// server.set_status/set_mode assign them afterwards.
func (s *Server) handleGroupAdd(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	var req groupMemberRequest
	json.NewDecoder(r.Body).Decode(&req)

	if _, ok := s.cache.Group(groupID); !ok {
		writeError(w, errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID))
		return
	}
	backend, ok := s.cache.Backend(req.BackendUUID)
	if !ok {
		writeError(w, errs.Uuid("ERR-API-007", errs.Msg("ERR-API-007"), req.BackendUUID))
		return
	}
	if backend.GroupID != nil {
		writeError(w, errs.Group("ERR-GRP-011", errs.Msg("ERR-GRP-011"), req.BackendUUID, *backend.GroupID))
		return
	}

	proc := s.exec.Trigger("group.add", []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "INSERT INTO group_members (group_id, backend_uuid) VALUES (?, ?)", groupID, req.BackendUUID); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, "UPDATE backends SET group_id = ? WHERE uuid = ?", groupID, req.BackendUUID); err != nil {
			return nil, err
		}
		gid := groupID
		backend.GroupID = &gid
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

// handleGroupRemove triggers group.remove: detaches a backend from
// groupID. The current PRIMARY may not be removed this way — demote
// or promote a replacement first, per ERR-GRP-006.
func (s *Server) handleGroupRemove(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	var req groupMemberRequest
	json.NewDecoder(r.Body).Decode(&req)

	group, ok := s.cache.Group(groupID)
	if !ok {
		writeError(w, errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID))
		return
	}
	backend, ok := s.cache.Backend(req.BackendUUID)
	if !ok || backend.GroupID == nil || *backend.GroupID != groupID {
		writeError(w, errs.Group("ERR-GRP-012", errs.Msg("ERR-GRP-012"), req.BackendUUID, groupID))
		return
	}
	if err := topology.CanRemove(group, backend); err != nil {
		writeError(w, err)
		return
	}

	proc := s.exec.Trigger("group.remove", []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "DELETE FROM group_members WHERE group_id = ? AND backend_uuid = ?", groupID, req.BackendUUID); err != nil {
			return nil, err
		}
		if _, err := tx.Exec(ctx, "UPDATE backends SET group_id = NULL WHERE uuid = ?", req.BackendUUID); err != nil {
			return nil, err
		}
		backend.GroupID = nil
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

type groupView struct {
	ID          string               `json:"id"`
	Description string               `json:"description"`
	Master      *string              `json:"master,omitempty"`
	Status      topology.GroupStatus `json:"status"`
}

// handleLookupGroups serves group.lookup_groups: the full group list,
// read directly from the cache since it is a read-only query, not a
// mutation the executor needs to lock-order.
func (s *Server) handleLookupGroups(w http.ResponseWriter, r *http.Request) {
	groups := s.cache.AllGroups()
	out := make([]groupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, groupView{ID: g.ID, Description: g.Description, Master: g.Master, Status: g.Status})
	}
	writeJSON(w, http.StatusOK, out)
}

// handleLookupServers serves group.lookup_servers: every backend
// hosted in groupId.
func (s *Server) handleLookupServers(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	if _, ok := s.cache.Group(groupID); !ok {
		writeError(w, errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID))
		return
	}
	writeJSON(w, http.StatusOK, s.cache.BackendsOfGroup(groupID))
}

// handleGroupHealth serves group.health: a read-only replication
// health snapshot, bypassing the executor since it issues no mutation.
func (s *Server) handleGroupHealth(w http.ResponseWriter, r *http.Request) {
	groupID := mux.Vars(r)["groupId"]
	health, err := s.coord.Health(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

func (s *Server) setGroupStatus(status topology.GroupStatus) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		groupID := mux.Vars(r)["groupId"]
		group, ok := s.cache.Group(groupID)
		if !ok {
			writeError(w, errs.Group("ERR-GRP-001", errs.Msg("ERR-GRP-001"), groupID))
			return
		}

		name := "group.deactivate"
		if status == topology.GroupActive {
			name = "group.activate"
		}
		proc := s.exec.Trigger(name, []string{groupID}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
			if _, err := tx.Exec(ctx, "UPDATE groups SET status = ? WHERE id = ?", string(status), groupID); err != nil {
				return nil, err
			}
			group.Status = status
			return nil, nil
		})
		writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
	}
}

// handleReconcile triggers an on-demand read-only drift sweep across
// every group, the same correction cmd/fabrikd also runs on its
// periodic schedule. Every group's corrected mode is persisted in the
// same step, since the sweep does not report which groups it touched.
func (s *Server) handleReconcile(w http.ResponseWriter, r *http.Request) {
	proc := s.exec.Trigger("group.reconcile", nil, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if err := s.coord.ReconcileReadOnly(ctx); err != nil {
			return nil, err
		}
		for _, g := range s.cache.AllGroups() {
			if err := ha.PersistGroupState(ctx, tx, s.cache, g.ID); err != nil {
				return nil, err
			}
		}
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}
