package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/voxgate/internal/audit"
	"github.com/mattjoyce/voxgate/internal/dispatch"
	"github.com/mattjoyce/voxgate/internal/events"
	"github.com/mattjoyce/voxgate/internal/grammar"
	"github.com/mattjoyce/voxgate/internal/storage"
)

type fakeConnStats struct {
	open    int64
	dropped int64
}

func (f fakeConnStats) OpenConns() int64       { return f.open }
func (f fakeConnStats) DroppedCommands() int64 { return f.dropped }

func testServer(t *testing.T) (*Server, *dispatch.Processor) {
	t.Helper()

	reg := grammar.NewRegistry()
	require.NoError(t, reg.Register("type <text>", func(ctx context.Context, args []grammar.Arg) error {
		return nil
	}))
	g, err := grammar.Combine(reg)
	require.NoError(t, err)

	db, err := storage.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "audit.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	auditLog := audit.NewLog(db)
	hub := events.NewHub(16)
	proc := dispatch.NewProcessor(g, auditLog, hub)

	srv := New(
		Config{Listen: "127.0.0.1:0", APIKey: "secret"},
		g, proc.Stats(), fakeConnStats{open: 2, dropped: 1}, auditLog, hub,
		slog.Default(),
	)
	return srv, proc
}

func get(t *testing.T, h http.Handler, path, key string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if key != "" {
		req.Header.Set("Authorization", "Bearer "+key)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHealthzIsOpen(t *testing.T) {
	srv, _ := testServer(t)

	rr := get(t, srv.routes(), "/healthz", "")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp HealthzResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, "ok", resp.Status)
	assert.Contains(t, resp.GrammarFingerprint, "blake3:")
}

func TestStatsRequiresAuth(t *testing.T) {
	srv, _ := testServer(t)
	routes := srv.routes()

	assert.Equal(t, http.StatusUnauthorized, get(t, routes, "/stats", "").Code)
	assert.Equal(t, http.StatusUnauthorized, get(t, routes, "/stats", "wrong").Code)
	assert.Equal(t, http.StatusOK, get(t, routes, "/stats", "secret").Code)
}

func TestStatsReportsOutcomes(t *testing.T) {
	srv, proc := testServer(t)

	proc.Process(context.Background(), "conn-1", "type hello")
	proc.Process(context.Background(), "conn-1", "nonsense")

	rr := get(t, srv.routes(), "/stats", "secret")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp StatsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, int64(1), resp.Outcomes["handled"])
	assert.Equal(t, int64(1), resp.Outcomes["unrecognized"])
	assert.Equal(t, int64(2), resp.OpenConns)
	assert.Equal(t, int64(1), resp.DroppedCommands)
	assert.Equal(t, 1, resp.Patterns)
}

func TestRecentCommands(t *testing.T) {
	srv, proc := testServer(t)

	proc.Process(context.Background(), "conn-9", "type hi")

	rr := get(t, srv.routes(), "/commands/recent?limit=5", "secret")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp RecentCommandsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Commands, 1)
	assert.Equal(t, "conn-9", resp.Commands[0].ConnID)
	assert.Equal(t, "handled", resp.Commands[0].Outcome)
}

func TestRecentCommandsRejectsBadLimit(t *testing.T) {
	srv, _ := testServer(t)

	rr := get(t, srv.routes(), "/commands/recent?limit=0", "secret")
	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestEventsSince(t *testing.T) {
	srv, proc := testServer(t)

	proc.Process(context.Background(), "conn-1", "type one")
	proc.Process(context.Background(), "conn-1", "type two")

	rr := get(t, srv.routes(), "/events?since=1", "secret")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp EventsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	require.Len(t, resp.Events, 1)
	assert.Equal(t, int64(2), resp.Events[0].ID)
}

func TestCommandsListsPatterns(t *testing.T) {
	srv, _ := testServer(t)

	rr := get(t, srv.routes(), "/commands", "secret")
	require.Equal(t, http.StatusOK, rr.Code)

	var resp CommandsResponse
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &resp))
	assert.Equal(t, []string{"type <text>"}, resp.Patterns)
}

func TestValidateAPIKey(t *testing.T) {
	assert.True(t, ValidateAPIKey("abc", "abc"))
	assert.False(t, ValidateAPIKey("abc", "abd"))
	assert.False(t, ValidateAPIKey("", "abc"))
	assert.False(t, ValidateAPIKey("abc", ""))
	assert.False(t, ValidateAPIKey("ab", "abc"))
}
