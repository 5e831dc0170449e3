package api

import (
	"encoding/json"
	"net/http"
	"strconv"
	"time"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:             "ok",
		UptimeSeconds:      int64(time.Since(s.startedAt).Seconds()),
		GrammarFingerprint: s.grammar.Fingerprint(),
	})
}

func (s *Server) handleStats(w http.ResponseWriter, r *http.Request) {
	resp := StatsResponse{
		UptimeSeconds:      int64(time.Since(s.startedAt).Seconds()),
		GrammarFingerprint: s.grammar.Fingerprint(),
		Patterns:           len(s.grammar.Patterns()),
		Outcomes: map[string]int64{
			"handled":      s.stats.Handled.Load(),
			"unrecognized": s.stats.Unrecognized.Load(),
			"failed":       s.stats.Failed.Load(),
		},
	}
	if s.conns != nil {
		resp.OpenConns = s.conns.OpenConns()
		resp.DroppedCommands = s.conns.DroppedCommands()
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleCommands(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, CommandsResponse{Patterns: s.grammar.Patterns()})
}

func (s *Server) handleRecentCommands(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 1000 {
			s.writeError(w, http.StatusBadRequest, "limit must be 1..1000")
			return
		}
		limit = n
	}

	resp := RecentCommandsResponse{Commands: []RecentCommand{}}
	if s.audit != nil {
		entries, err := s.audit.Recent(r.Context(), limit)
		if err != nil {
			s.logger.Error("audit query failed", "error", err)
			s.writeError(w, http.StatusInternalServerError, "audit query failed")
			return
		}
		for _, e := range entries {
			resp.Commands = append(resp.Commands, RecentCommand{
				ID:          e.ID,
				ConnID:      e.ConnID,
				Utterance:   e.Utterance,
				Command:     e.Command,
				Outcome:     e.Outcome,
				Error:       e.Error,
				ReceivedAt:  e.ReceivedAt,
				CompletedAt: e.CompletedAt,
			})
		}
	}
	respondJSON(w, http.StatusOK, resp)
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	var since int64
	if raw := r.URL.Query().Get("since"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 {
			s.writeError(w, http.StatusBadRequest, "since must be a non-negative event id")
			return
		}
		since = n
	}

	resp := EventsResponse{}
	if s.hub != nil {
		resp.Events = s.hub.SnapshotSince(since)
	}
	respondJSON(w, http.StatusOK, resp)
}

// respondJSON is a helper to write JSON responses.
func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response.
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}
