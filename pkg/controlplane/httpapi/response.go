// Package httpapi exposes a read-only HTTP introspection surface alongside
// the binary control plane (spec.md §6's DOMAIN STACK "admin/metrics HTTP
// surface"): liveness/readiness, Prometheus /metrics, and JSON listings of
// live snapshots and branches. It never accepts mutating requests -- every
// state change still goes through the binary protocol in pkg/controlplane --
// so it carries none of the control plane's taxonomy-coded error handling,
// only a thin response envelope.
//
// Grounded on the teacher's pkg/api: chi router, middleware.RequestID/
// RealIP/Recoverer/Timeout stack, and the Response{Status,Timestamp,Data,
// Error} envelope from pkg/api/response.go.
package httpapi

import (
	"encoding/json"
	"net/http"
	"time"
)

// Response is the JSON envelope every handler in this package writes,
// mirroring the teacher's pkg/api.Response.
type Response struct {
	Status    string      `json:"status"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, body Response) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		http.Error(w, `{"status":"error","error":"failed to encode response"}`, http.StatusInternalServerError)
	}
}

func okResponse(data interface{}) Response {
	return Response{Status: "ok", Timestamp: time.Now().UTC(), Data: data}
}

func errorResponse(errMsg string) Response {
	return Response{Status: "error", Timestamp: time.Now().UTC(), Error: errMsg}
}
