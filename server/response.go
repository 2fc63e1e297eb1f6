package server

import (
	"encoding/json"
	"net/http"

	"github.com/fabrikd/fabrikd/errs"
)

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// writeError maps a typed errs.Error to an HTTP status the way the
// teacher's jsonResponse helper maps its own error strings, but keyed
// on Kind instead of matching substrings.
func writeError(w http.ResponseWriter, err error) {
	if e, ok := err.(*errs.Error); ok {
		status := http.StatusInternalServerError
		switch e.Kind {
		case errs.KindGroup, errs.KindSharding, errs.KindUuid, errs.KindInvalidGtid, errs.KindServer:
			status = http.StatusBadRequest
		case errs.KindCredential:
			status = http.StatusUnauthorized
		case errs.KindTimeout:
			status = http.StatusGatewayTimeout
		}
		writeJSON(w, status, errorBody{Code: e.Code, Message: e.Error()})
		return
	}
	writeJSON(w, http.StatusInternalServerError, errorBody{Code: "ERR-SRV-000", Message: err.Error()})
}
