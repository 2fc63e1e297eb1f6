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

type setStatusRequest struct {
	Status topology.BackendStatus `json:"status"`
}

// handleSetBackendStatus triggers server.set_status. Marking the
// current PRIMARY FAULTY through this admin path is forbidden per
// ERR-SRV-002 -- go through group.demote or a failover instead.
func (s *Server) handleSetBackendStatus(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]
	var req setStatusRequest
	json.NewDecoder(r.Body).Decode(&req)

	backend, ok := s.cache.Backend(uuid)
	if !ok {
		writeError(w, errs.Uuid("ERR-API-007", errs.Msg("ERR-API-007"), uuid))
		return
	}
	if req.Status == topology.StatusFaulty && backend.GroupID != nil {
		if group, ok := s.cache.Group(*backend.GroupID); ok {
			if err := topology.CanMarkFaulty(group, backend); err != nil {
				writeError(w, err)
				return
			}
		}
	}

	proc := s.exec.Trigger("server.set_status", []string{uuid}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "UPDATE backends SET status = ? WHERE uuid = ?", string(req.Status), uuid); err != nil {
			return nil, err
		}
		backend.Status = req.Status
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

type setModeRequest struct {
	Mode topology.BackendMode `json:"mode"`
}

// handleSetBackendMode triggers server.set_mode.
func (s *Server) handleSetBackendMode(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]
	var req setModeRequest
	json.NewDecoder(r.Body).Decode(&req)

	backend, ok := s.cache.Backend(uuid)
	if !ok {
		writeError(w, errs.Uuid("ERR-API-007", errs.Msg("ERR-API-007"), uuid))
		return
	}

	proc := s.exec.Trigger("server.set_mode", []string{uuid}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		readOnly := req.Mode == topology.ModeReadOnly
		if _, err := tx.Exec(ctx, "UPDATE backends SET mode = ?, read_only = ? WHERE uuid = ?", string(req.Mode), readOnly, uuid); err != nil {
			return nil, err
		}
		backend.Mode = req.Mode
		backend.ReadOnly = readOnly
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

type setWeightRequest struct {
	Weight float64 `json:"weight"`
}

// handleSetBackendWeight triggers server.set_weight: the read-traffic
// share a load balancer or proxy layer gives this backend relative to
// its peers. fabrikd itself does not route reads, it only persists the
// weight for whatever proxy layer queries the topology.
func (s *Server) handleSetBackendWeight(w http.ResponseWriter, r *http.Request) {
	uuid := mux.Vars(r)["uuid"]
	var req setWeightRequest
	json.NewDecoder(r.Body).Decode(&req)

	backend, ok := s.cache.Backend(uuid)
	if !ok {
		writeError(w, errs.Uuid("ERR-API-007", errs.Msg("ERR-API-007"), uuid))
		return
	}

	proc := s.exec.Trigger("server.set_weight", []string{uuid}, func(ctx context.Context, tx *store.Tx) ([]executor.Step, error) {
		if _, err := tx.Exec(ctx, "UPDATE backends SET weight = ? WHERE uuid = ?", req.Weight, uuid); err != nil {
			return nil, err
		}
		backend.Weight = req.Weight
		return nil, nil
	})
	writeJSON(w, http.StatusAccepted, promoteResponse{ProcedureID: proc.ID})
}

// handleLookupUUID serves server.lookup_uuid: resolve the backend
// identity behind a DSN/address a caller already has in hand. A
// read-only query, bypasses the executor.
func (s *Server) handleLookupUUID(w http.ResponseWriter, r *http.Request) {
	address := r.URL.Query().Get("address")
	backend, ok := s.cache.BackendByAddress(address)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "ERR-API-007", Message: errs.Msg("ERR-API-007")})
		return
	}
	writeJSON(w, http.StatusOK, backend)
}
