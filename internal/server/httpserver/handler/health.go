package handler

import (
	"net/http"
	"time"
)

// handleHealth handles GET /healthz. The daemon is alive while it answers.
func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	h.writeJSON(w, r, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// handleReady handles GET /readyz. The node is ready once it is quorate and
// service synchronization has completed.
func (h *Handler) handleReady(w http.ResponseWriter, r *http.Request) {
	st, err := h.currentStatus(r.Context())
	if err != nil {
		h.writeError(w, r, http.StatusServiceUnavailable, "CS-SYS-5030", err.Error())
		return
	}

	status := http.StatusOK
	state := "ready"
	switch {
	case !st.Quorate:
		status, state = http.StatusServiceUnavailable, "inquorate"
	case st.Syncing:
		status, state = http.StatusServiceUnavailable, "syncing"
	}
	h.writeJSON(w, r, status, map[string]any{
		"status":   state,
		"quorate":  st.Quorate,
		"syncing":  st.Syncing,
		"ring_seq": st.RingSeq,
	})
}
