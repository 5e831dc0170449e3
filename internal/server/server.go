// Package server owns the unix socket: binding it, accepting connections,
// and pumping newline-delimited utterances from each connection into the
// dispatch processor without head-of-line blocking.
package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/mattjoyce/voxgate/internal/dispatch"
	"github.com/mattjoyce/voxgate/internal/events"
	"github.com/mattjoyce/voxgate/internal/framing"
	"github.com/mattjoyce/voxgate/internal/log"
)

// Options configure the socket listener.
type Options struct {
	// SocketPath is where the unix socket is bound.
	SocketPath string
	// Mode, when ModeSet is true, is applied to the socket file before the
	// first Accept so no client ever sees looser permissions.
	Mode    os.FileMode
	ModeSet bool
	// MaxFrameLength bounds one utterance in bytes.
	MaxFrameLength int
	// MaxInFlight bounds concurrently running handlers per connection.
	// Utterances arriving past the bound are dropped and logged.
	MaxInFlight int
}

// Server accepts local connections and dispatches their utterances.
type Server struct {
	opts   Options
	proc   *dispatch.Processor
	hub    *events.Hub
	logger *slog.Logger

	ln          net.Listener
	openConns   atomic.Int64
	droppedCmds atomic.Int64
}

// New returns an unstarted server. Call Listen then Serve.
func New(opts Options, proc *dispatch.Processor, hub *events.Hub) *Server {
	if opts.MaxInFlight <= 0 {
		opts.MaxInFlight = 64
	}
	return &Server{
		opts:   opts,
		proc:   proc,
		hub:    hub,
		logger: log.WithComponent("server"),
	}
}

// Listen binds the unix socket, replacing a stale socket file from a
// previous run. A path occupied by a non-socket file is an error; it is
// never removed.
func (s *Server) Listen() error {
	path := s.opts.SocketPath
	if path == "" {
		return fmt.Errorf("socket path is empty")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create socket directory: %w", err)
	}

	if fi, err := os.Lstat(path); err == nil {
		if fi.Mode().Type() != os.ModeSocket {
			return fmt.Errorf("socket path %q exists and is not a socket", path)
		}
		s.logger.Warn("removing stale socket", "path", path)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("remove stale socket: %w", err)
		}
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat socket path: %w", err)
	}

	ln, err := net.Listen("unix", path)
	if err != nil {
		return fmt.Errorf("bind socket %q: %w", path, err)
	}

	if s.opts.ModeSet {
		if err := os.Chmod(path, s.opts.Mode); err != nil {
			_ = ln.Close()
			return fmt.Errorf("chmod socket: %w", err)
		}
	}

	s.ln = ln
	s.logger.Info("listening", "path", path)
	return nil
}

// Addr returns the bound socket path, or "" before Listen.
func (s *Server) Addr() string {
	if s.ln == nil {
		return ""
	}
	return s.ln.Addr().String()
}

// OpenConns reports currently open client connections.
func (s *Server) OpenConns() int64 { return s.openConns.Load() }

// DroppedCommands reports utterances rejected by the per-connection
// concurrency bound.
func (s *Server) DroppedCommands() int64 { return s.droppedCmds.Load() }

// Serve accepts connections until ctx is canceled, then closes the listener
// and waits for every connection handler to finish.
func (s *Server) Serve(ctx context.Context) error {
	if s.ln == nil {
		return fmt.Errorf("server is not listening")
	}

	group, ctx := errgroup.WithContext(ctx)
	stop := context.AfterFunc(ctx, func() { _ = s.ln.Close() })
	defer stop()

	for {
		conn, err := s.ln.Accept()
		if err != nil {
			// Listener closed on shutdown; anything else is fatal.
			if ctx.Err() != nil {
				break
			}
			_ = group.Wait()
			return fmt.Errorf("accept: %w", err)
		}

		group.Go(func() error {
			s.handleConn(ctx, conn)
			return nil
		})
	}

	err := group.Wait()
	s.logger.Info("listener stopped", "path", s.opts.SocketPath)
	return err
}

// handleConn reads frames sequentially and runs handlers concurrently.
// A slow handler never delays parsing of the next frame; the in-flight
// bound caps how far dispatch can run ahead.
func (s *Server) handleConn(ctx context.Context, conn net.Conn) {
	connID := uuid.New().String()
	logger := log.WithConn(connID)

	s.openConns.Add(1)
	if s.hub != nil {
		s.hub.Publish(events.TypeConnOpened, map[string]string{"conn_id": connID})
	}
	logger.Info("connection opened")

	// The connection scope: fatal framing errors cancel it so in-flight
	// handlers stop instead of running to completion on a dead connection.
	connCtx, cancelConn := context.WithCancel(ctx)
	defer cancelConn()

	// Unblock the reader when the server shuts down mid-read.
	stop := context.AfterFunc(connCtx, func() { _ = conn.Close() })

	scope, sctx := errgroup.WithContext(connCtx)
	scope.SetLimit(s.opts.MaxInFlight)

	receiver := framing.NewReceiver(conn, []byte("\n"), s.opts.MaxFrameLength)
	var closeReason string
	for {
		frame, err := receiver.Receive()
		if err != nil {
			closeReason = s.frameError(logger, err)
			if fatalFrameError(err) {
				cancelConn()
			}
			break
		}

		utterance := strings.TrimSpace(string(frame))
		if utterance == "" {
			continue
		}

		if !scope.TryGo(func() error {
			s.proc.Process(sctx, connID, utterance)
			return nil
		}) {
			s.droppedCmds.Add(1)
			logger.Warn("in-flight bound reached, dropping utterance",
				"utterance", utterance, "max_in_flight", s.opts.MaxInFlight)
		}
	}

	// Join admitted handlers. After a clean EOF they run to completion;
	// after a fatal framing error the canceled scope hurries them out.
	_ = scope.Wait()
	stop()
	_ = conn.Close()

	s.openConns.Add(-1)
	if s.hub != nil {
		s.hub.Publish(events.TypeConnClosed, map[string]string{
			"conn_id": connID,
			"reason":  closeReason,
		})
	}
	logger.Info("connection closed", "reason", closeReason)
}

// fatalFrameError reports whether a receive error must tear the whole
// connection scope down, cancelling outstanding handlers. Clean EOF lets
// them finish.
func fatalFrameError(err error) bool {
	return errors.Is(err, framing.ErrFrameTooLong) || errors.Is(err, framing.ErrIncompleteFrame)
}

// frameError classifies the error that ended a connection's read loop.
func (s *Server) frameError(logger *slog.Logger, err error) string {
	switch {
	case errors.Is(err, io.EOF):
		return "eof"
	case errors.Is(err, framing.ErrFrameTooLong):
		logger.Warn("frame exceeds limit, closing connection",
			"max_frame_length", s.opts.MaxFrameLength)
		return "frame_too_long"
	case errors.Is(err, framing.ErrIncompleteFrame):
		logger.Warn("connection ended mid-frame")
		return "incomplete_frame"
	case errors.Is(err, net.ErrClosed):
		return "shutdown"
	default:
		logger.Warn("read error", "error", err)
		return "read_error"
	}
}
