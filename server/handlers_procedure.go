package server

import (
	"net/http"

	"github.com/gorilla/mux"
)

type stepRecordView struct {
	Name      string `json:"name"`
	Success   bool   `json:"success"`
	State     string `json:"state"`
	Diagnosis string `json:"diagnosis,omitempty"`
}

type procedureStatusResponse struct {
	ID      string           `json:"id"`
	State   string           `json:"state"`
	Success bool             `json:"success"`
	Records []stepRecordView `json:"records"`
	Error   string           `json:"error,omitempty"`
}

// handleProcedureStatus implements spec.md §4.4's asynchronous result
// contract: a caller that triggered an operation without waiting polls
// this endpoint for the procedure's terminal state and per-step record.
func (s *Server) handleProcedureStatus(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	proc, ok := s.exec.Get(id)
	if !ok {
		writeJSON(w, http.StatusNotFound, errorBody{Code: "ERR-API-005", Message: "unknown procedure id"})
		return
	}

	resp := procedureStatusResponse{
		ID:      proc.ID,
		State:   string(proc.State()),
		Success: proc.Done() && proc.Success(),
	}
	for _, rec := range proc.Records() {
		resp.Records = append(resp.Records, stepRecordView{
			Name:      rec.Name,
			Success:   rec.Success,
			State:     string(rec.State),
			Diagnosis: rec.Diagnosis,
		})
	}
	if proc.Done() && proc.Err() != nil {
		resp.Error = proc.Err().Error()
	}
	writeJSON(w, http.StatusOK, resp)
}
