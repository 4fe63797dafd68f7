package api

import "net/http"

// handleSnapshot returns the full device catalogue: every light, cover,
// cover group, dry contact, and sensor this bridge knows about. It is the
// HTTP equivalent of the snapshot a WebSocket client receives on connect —
// a UI can poll this once at startup instead of waiting on the socket.
func (s *Server) handleSnapshot(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.registry.Snapshot())
}
