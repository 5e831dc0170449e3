package server

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/mattjoyce/voxgate/internal/dispatch"
	"github.com/mattjoyce/voxgate/internal/grammar"
)

func testProcessor(t *testing.T, handlers map[string]grammar.HandlerFunc) *dispatch.Processor {
	t.Helper()
	reg := grammar.NewRegistry()
	for pattern, h := range handlers {
		if err := reg.Register(pattern, h); err != nil {
			t.Fatalf("Register(%q): %v", pattern, err)
		}
	}
	g, err := grammar.Combine(reg)
	if err != nil {
		t.Fatalf("Combine: %v", err)
	}
	return dispatch.NewProcessor(g, nil, nil)
}

// startServer binds a socket in a temp dir and serves until the test ends.
func startServer(t *testing.T, opts Options, proc *dispatch.Processor) (*Server, string) {
	t.Helper()
	if opts.SocketPath == "" {
		opts.SocketPath = filepath.Join(t.TempDir(), "gw.sock")
	}
	if opts.MaxFrameLength == 0 {
		opts.MaxFrameLength = 4096
	}

	srv := New(opts, proc, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx) }()
	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("Serve: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("Serve did not stop")
		}
	})
	return srv, opts.SocketPath
}

func TestServeDispatchesUtterances(t *testing.T) {
	t.Parallel()

	typed := make(chan string, 10)
	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error {
			typed <- args[0].Text
			return nil
		},
	})
	_, path := startServer(t, Options{}, proc)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("type hello\ntype world\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	got := map[string]bool{}
	for i := 0; i < 2; i++ {
		select {
		case text := <-typed:
			got[text] = true
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out, got %v", got)
		}
	}
	if !got["hello"] || !got["world"] {
		t.Fatalf("got %v", got)
	}
}

func TestSlowHandlerDoesNotBlockNextUtterance(t *testing.T) {
	t.Parallel()

	release := make(chan struct{})
	alerted := make(chan string, 1)
	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error {
			<-release
			return nil
		},
		"alert <text>": func(ctx context.Context, args []grammar.Arg) error {
			alerted <- args[0].Text
			return nil
		},
	})
	_, path := startServer(t, Options{MaxInFlight: 4}, proc)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("type slow\nalert fast\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// The alert completes while the type handler is still parked.
	select {
	case text := <-alerted:
		if text != "fast" {
			t.Fatalf("alerted %q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("alert blocked behind slow handler")
	}
	close(release)
}

func TestInFlightBoundDropsExcess(t *testing.T) {
	t.Parallel()

	started := make(chan struct{}, 1)
	release := make(chan struct{})
	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error {
			started <- struct{}{}
			<-release
			return nil
		},
	})
	srv, path := startServer(t, Options{MaxInFlight: 1}, proc)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("type one\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}
	<-started

	if _, err := conn.Write([]byte("type two\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for srv.DroppedCommands() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("second utterance was never dropped")
		}
		time.Sleep(5 * time.Millisecond)
	}
	close(release)
}

func TestUnrecognizedUtteranceDoesNotPoisonConnection(t *testing.T) {
	t.Parallel()

	typed := make(chan string, 1)
	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error {
			typed <- args[0].Text
			return nil
		},
	})
	_, path := startServer(t, Options{}, proc)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// Garbage first, then a well-formed command on the same connection.
	if _, err := conn.Write([]byte("open the pod bay doors\ntype hello\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case text := <-typed:
		if text != "hello" {
			t.Fatalf("typed %q", text)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("command after unrecognized utterance was never handled")
	}
}

func TestFatalFrameErrorCancelsInFlightHandlers(t *testing.T) {
	t.Parallel()

	canceled := make(chan struct{}, 1)
	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error {
			select {
			case <-ctx.Done():
				canceled <- struct{}{}
				return ctx.Err()
			case <-time.After(30 * time.Second):
				return nil
			}
		},
	})
	_, path := startServer(t, Options{MaxFrameLength: 64, MaxInFlight: 4}, proc)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	if _, err := conn.Write([]byte("type slow\n")); err != nil {
		t.Fatalf("Write: %v", err)
	}

	// Blow the frame limit while the handler is still parked.
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = 'a'
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	select {
	case <-canceled:
	case <-time.After(5 * time.Second):
		t.Fatal("handler context was not canceled on fatal framing error")
	}

	// The connection is torn down without waiting out the handler's timer.
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed")
	}
}

func TestOversizedFrameClosesConnection(t *testing.T) {
	t.Parallel()

	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error { return nil },
	})
	_, path := startServer(t, Options{MaxFrameLength: 64}, proc)

	conn, err := net.Dial("unix", path)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	// No terminator anywhere in sight.
	payload := make([]byte, 1024)
	for i := range payload {
		payload[i] = 'a'
	}
	if _, err := conn.Write(payload); err != nil {
		t.Fatalf("Write: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	buf := make([]byte, 1)
	if _, err := conn.Read(buf); err == nil {
		t.Fatal("expected connection to be closed")
	}
}

func TestListenRemovesStaleSocket(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gw.sock")

	// Leave a socket file behind the way a crashed process would.
	ln, err := net.Listen("unix", path)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	ln.(*net.UnixListener).SetUnlinkOnClose(false)
	_ = ln.Close()
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("stale socket missing: %v", err)
	}

	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error { return nil },
	})
	srv := New(Options{SocketPath: path, MaxFrameLength: 4096}, proc, nil)
	if err := srv.Listen(); err != nil {
		t.Fatalf("Listen over stale socket: %v", err)
	}
	t.Cleanup(func() { _ = srv.ln.Close() })
}

func TestListenRefusesNonSocketPath(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "gw.sock")
	if err := os.WriteFile(path, []byte("not a socket"), 0o644); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error { return nil },
	})
	srv := New(Options{SocketPath: path, MaxFrameLength: 4096}, proc, nil)
	if err := srv.Listen(); err == nil {
		_ = srv.ln.Close()
		t.Fatal("expected error for non-socket path")
	}

	// The file is left untouched.
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("path was removed: %v", err)
	}
}

func TestListenAppliesSocketMode(t *testing.T) {
	t.Parallel()

	proc := testProcessor(t, map[string]grammar.HandlerFunc{
		"type <text>": func(ctx context.Context, args []grammar.Arg) error { return nil },
	})
	_, path := startServer(t, Options{Mode: 0o600, ModeSet: true}, proc)

	fi, err := os.Stat(path)
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := fi.Mode().Perm(); perm != 0o600 {
		t.Fatalf("socket mode = %o, want 600", perm)
	}
}
