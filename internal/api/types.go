package api

import (
	"time"

	"github.com/mattjoyce/voxgate/internal/events"
)

// HealthzResponse is the /healthz payload.
type HealthzResponse struct {
	Status             string `json:"status"`
	UptimeSeconds      int64  `json:"uptime_seconds"`
	GrammarFingerprint string `json:"grammar_fingerprint"`
}

// StatsResponse is the /stats payload.
type StatsResponse struct {
	UptimeSeconds      int64            `json:"uptime_seconds"`
	GrammarFingerprint string           `json:"grammar_fingerprint"`
	Patterns           int              `json:"patterns"`
	Outcomes           map[string]int64 `json:"outcomes"`
	OpenConns          int64            `json:"open_conns"`
	DroppedCommands    int64            `json:"dropped_commands"`
}

// CommandsResponse lists the registered pattern sources.
type CommandsResponse struct {
	Patterns []string `json:"patterns"`
}

// RecentCommand is one audited utterance.
type RecentCommand struct {
	ID          string    `json:"id"`
	ConnID      string    `json:"conn_id"`
	Utterance   string    `json:"utterance"`
	Command     string    `json:"command,omitempty"`
	Outcome     string    `json:"outcome"`
	Error       string    `json:"error,omitempty"`
	ReceivedAt  time.Time `json:"received_at"`
	CompletedAt time.Time `json:"completed_at"`
}

// RecentCommandsResponse is the /commands/recent payload.
type RecentCommandsResponse struct {
	Commands []RecentCommand `json:"commands"`
}

// EventsResponse is the /events payload.
type EventsResponse struct {
	Events []events.Event `json:"events"`
}

// ErrorResponse is the error payload for all endpoints.
type ErrorResponse struct {
	Error string `json:"error"`
}
