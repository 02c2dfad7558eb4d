package handler

import (
	"net/http"
	"strings"

	"github.com/russellb/corosync/internal/ipc"
	"github.com/russellb/corosync/internal/telemetry/logger"
)

// MemberView is one cluster member in a status reply.
type MemberView struct {
	NodeID uint32 `json:"nodeid"`
	Name   string `json:"name"`
	Addr   string `json:"addr"`
}

// StatusView is the JSON form of ipc.Status.
type StatusView struct {
	Version     string            `json:"version"`
	Uptime      string            `json:"uptime"`
	NodeID      uint32            `json:"nodeid"`
	RingSeq     uint64            `json:"ring_seq"`
	Quorate     bool              `json:"quorate"`
	Syncing     bool              `json:"syncing"`
	QueueLevel  string            `json:"queue_level"`
	Connections int               `json:"connections"`
	Members     []MemberView      `json:"members"`
	Directives  map[string]string `json:"flow_control"`
}

func (h *Handler) view(st ipc.Status) StatusView {
	v := StatusView{
		Version:     version(),
		Uptime:      h.uptime(),
		NodeID:      st.LocalNodeID,
		RingSeq:     st.RingSeq,
		Quorate:     st.Quorate,
		Syncing:     st.Syncing,
		QueueLevel:  st.QueueLevel.String(),
		Connections: st.Connections,
		Members:     make([]MemberView, 0, len(st.Members)),
		Directives:  make(map[string]string, len(st.Directives)),
	}
	for _, m := range st.Members {
		addr := ""
		if m.Addr != nil {
			addr = m.Addr.String()
		}
		v.Members = append(v.Members, MemberView{NodeID: m.NodeID, Name: m.Name, Addr: addr})
	}
	for svc, d := range st.Directives {
		v.Directives[svc] = d.String()
	}
	return v
}

// handleStatus handles GET /v1/status.
func (h *Handler) handleStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.currentStatus(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "CS-SYS-5030", err.Error())
		return
	}
	h.writeJSON(w, r, http.StatusOK, h.view(st))
}

// handleStats handles GET /v1/stats?prefix=stats.ipcs.
func (h *Handler) handleStats(w http.ResponseWriter, r *http.Request) {
	if h.stats == nil {
		h.writeError(w, r, http.StatusNotFound, "CS-SYS-4040", "object database not available")
		return
	}
	prefix := r.URL.Query().Get("prefix")
	if prefix != "" && !strings.HasPrefix(prefix, "stats.") && !strings.HasPrefix(prefix, "runtime.") {
		h.writeError(w, r, http.StatusBadRequest, "CS-ARG-4000", "prefix must start with stats. or runtime.")
		return
	}

	keys, err := h.stats.Snapshot(r.Context(), prefix)
	if err != nil {
		logger.With(r.Context(), h.logger).Error("object database snapshot failed", "prefix", prefix, "error", err)
		h.writeError(w, r, http.StatusInternalServerError, "CS-SYS-5000", "internal server error")
		return
	}
	h.writeJSON(w, r, http.StatusOK, keys)
}
