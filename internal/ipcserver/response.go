package ipcserver

import (
	"encoding/json"
	"net/http"

	"github.com/syncevo/syncengine/internal/apierrors"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	err := apierrors.New(code, message).WithRequestID(requestIDFrom(r.Context()))
	writeJSON(w, status, apierrors.Envelope{Error: err})
}
