package handlers

import (
	"encoding/json"
	"net/http"
	"time"
)

// healthResponse is the JSON body of the health probe.
type healthResponse struct {
	Status    string      `json:"status"`
	Timestamp int64       `json:"timestamp"`
	DBStatus  *string     `json:"db_status"`
	RPCStatus *nodeStatus `json:"rpc_status"`
	Mode      string      `json:"mode"`
}

// nodeStatus mirrors the CAS node's version report.
type nodeStatus struct {
	Version string `json:"version"`
	Commit  string `json:"commit"`
}

// Healthz reports 200 when both the index and the CAS node answer, 503
// otherwise. The body carries per-dependency detail either way.
func (h *Handler) Healthz(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Timestamp: time.Now().Unix(),
		Mode:      string(h.mode),
	}

	if err := h.store.Ping(r.Context()); err != nil {
		h.logger.Error("index unreachable", "error", err)
	} else {
		connected := "connected"
		resp.DBStatus = &connected
	}

	if v, err := h.cas.Version(r.Context()); err != nil {
		h.logger.Error("storage node unreachable", "error", err)
	} else {
		resp.RPCStatus = &nodeStatus{Version: v.Version, Commit: v.Commit}
	}

	status := http.StatusOK
	if resp.DBStatus == nil || resp.RPCStatus == nil {
		status = http.StatusServiceUnavailable
	}
	resp.Status = http.StatusText(status)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}
