package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/voxgate/internal/api"
	"github.com/mattjoyce/voxgate/internal/audit"
	"github.com/mattjoyce/voxgate/internal/automation"
	"github.com/mattjoyce/voxgate/internal/config"
	"github.com/mattjoyce/voxgate/internal/dispatch"
	"github.com/mattjoyce/voxgate/internal/doctor"
	"github.com/mattjoyce/voxgate/internal/events"
	"github.com/mattjoyce/voxgate/internal/grammar"
	"github.com/mattjoyce/voxgate/internal/lock"
	"github.com/mattjoyce/voxgate/internal/log"
	"github.com/mattjoyce/voxgate/internal/plugin"
	"github.com/mattjoyce/voxgate/internal/server"
	"github.com/mattjoyce/voxgate/internal/storage"
	"github.com/mattjoyce/voxgate/plugins/basic"
)

const version = "0.1.0"

// descriptors lists every compiled-in plugin. Configuration toggles them;
// the binary decides what exists.
func descriptors(ctrl automation.Controller) []plugin.Descriptor {
	return []plugin.Descriptor{
		basic.Descriptor(ctrl),
	}
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	args := os.Args[2:]

	switch cmd {
	// --- NOUNS ---
	case "system":
		os.Exit(runSystemNoun(args))
	case "config":
		os.Exit(runConfigNoun(args))
	case "plugin":
		os.Exit(runPluginNoun(args))

	// --- ROOT ALIASES ---
	case "start":
		os.Exit(runStart(args))
	case "send":
		os.Exit(runSend(args))
	case "doctor":
		os.Exit(runConfigCheck(args))
	case "version":
		fmt.Printf("voxgate version %s\n", version)
		os.Exit(0)
	case "help", "--help", "-h":
		printUsage()
		os.Exit(0)

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`voxgate - Local voice command gateway

Usage:
  voxgate <noun> <action> [flags]

Core Resources (Nouns):
  system    Daemon lifecycle and health
  config    Configuration inspection and validation
  plugin    Compiled-in command plugins

System Commands:
  system start      Start the daemon in foreground

Config Commands:
  config check      Validate configuration and grammar assembly
  config show       Print the effective configuration

Plugin Commands:
  plugin list       Show compiled-in plugins and their patterns

General:
  send <utterance>  Send one utterance to a running daemon
  version           Show version information
  help              Show this help message
`)
}

func isHelpToken(s string) bool {
	return s == "help" || s == "--help" || s == "-h"
}

// --- NOUN DISPATCHERS ---

func runSystemNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: voxgate system start [--config <path>]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "start":
		return runStart(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown system action: %s\n", args[0])
		return 1
	}
}

func runConfigNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: voxgate config <check|show> [--config <path>]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "check":
		return runConfigCheck(args[1:])
	case "show":
		return runConfigShow(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown config action: %s\n", args[0])
		return 1
	}
}

func runPluginNoun(args []string) int {
	if len(args) < 1 || isHelpToken(args[0]) {
		fmt.Println("Usage: voxgate plugin list [--config <path>]")
		if len(args) < 1 {
			return 1
		}
		return 0
	}

	switch args[0] {
	case "list":
		return runPluginList(args[1:])
	default:
		fmt.Fprintf(os.Stderr, "Unknown plugin action: %s\n", args[0])
		return 1
	}
}

// loadConfig resolves the --config flag or falls back to discovery.
func loadConfig(configPath string) (*config.Config, string, error) {
	if configPath == "" {
		discovered, err := config.DiscoverConfigPath()
		if err != nil {
			return nil, "", fmt.Errorf("discover config: %w", err)
		}
		configPath = discovered
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, "", err
	}
	return cfg, configPath, nil
}

// --- ACTIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel, cfg.Service.LogFormat)
	logger := log.WithComponent("main")
	logger.Info("voxgate starting", "version", version, "config", resolvedPath)

	lockPath := lock.ForSocket(cfg.Socket.Path)
	sockLock, err := lock.Acquire(lockPath)
	if err != nil {
		logger.Error("failed to acquire socket lock (another instance may be running)",
			"path", lockPath, "error", err)
		return 1
	}
	defer sockLock.Release()
	logger.Info("acquired socket lock", "path", lockPath)

	ctx := context.Background()
	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		logger.Error("failed to open database", "path", cfg.State.Path, "error", err)
		return 1
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	auditLog := audit.NewLog(db)
	hub := events.NewHub(256)

	g, err := plugin.Assemble(cfg, descriptors(automation.NewExecController()))
	if err != nil {
		logger.Error("grammar assembly failed", "error", err)
		return 1
	}
	logger.Info("grammar assembled",
		"patterns", len(g.Patterns()), "fingerprint", g.Fingerprint())

	proc := dispatch.NewProcessor(g, auditLog, hub)

	mode, modeSet, err := cfg.Socket.FileMode()
	if err != nil {
		logger.Error("invalid socket mode", "mode", cfg.Socket.Mode, "error", err)
		return 1
	}
	srv := server.New(server.Options{
		SocketPath:     cfg.Socket.Path,
		Mode:           mode,
		ModeSet:        modeSet,
		MaxFrameLength: cfg.Socket.MaxFrameLength,
		MaxInFlight:    cfg.Dispatch.MaxInFlight,
	}, proc, hub)
	if err := srv.Listen(); err != nil {
		logger.Error("socket bind failed", "path", cfg.Socket.Path, "error", err)
		return 1
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	errCh := make(chan error, 2)

	go func() {
		if err := srv.Serve(ctx); err != nil && err != context.Canceled {
			errCh <- fmt.Errorf("server: %w", err)
		}
	}()

	if cfg.API.Enabled {
		if cfg.API.APIKey == "" {
			logger.Error("api.enabled requires api.api_key")
			return 1
		}
		apiServer := api.New(
			api.Config{Listen: cfg.API.Listen, APIKey: cfg.API.APIKey},
			g, proc.Stats(), srv, auditLog, hub,
			log.WithComponent("api"),
		)
		go func() {
			if err := apiServer.Start(ctx); err != nil && err != context.Canceled {
				errCh <- fmt.Errorf("api: %w", err)
			}
		}()
		logger.Info("api server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("voxgate running (press Ctrl+C to stop)")

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	case err := <-errCh:
		logger.Error("component failed", "error", err)
		cancel()
		return 1
	}

	logger.Info("voxgate stopped")
	return 0
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output report in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, resolvedPath, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	d := doctor.New(cfg, descriptors(automation.NewExecController()))
	result := d.Validate()

	if *jsonOut {
		out, _ := json.MarshalIndent(result, "", "  ")
		fmt.Println(string(out))
	} else {
		fmt.Printf("Config: %s\n", resolvedPath)
		for _, e := range result.Errors {
			fmt.Printf("  ERROR [%s] %s\n", e.Category, e.Message)
		}
		for _, w := range result.Warnings {
			fmt.Printf("  WARN  [%s] %s\n", w.Category, w.Message)
		}
		if result.Valid {
			fmt.Println("  OK")
		}
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in JSON instead of YAML")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	var out []byte
	if *jsonOut {
		out, err = json.MarshalIndent(cfg, "", "  ")
		out = append(out, '\n')
	} else {
		out, err = yaml.Marshal(cfg)
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to render config: %v\n", err)
		return 1
	}
	fmt.Print(string(out))
	return 0
}

func runPluginList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, _, err := loadConfig(*configPath)
	if err != nil {
		// plugin list still works without a config; everything defaults on.
		cfg = config.Defaults()
	}

	for _, d := range descriptors(automation.NewExecController()) {
		state := "enabled"
		if !plugin.Enabled(cfg, d.Name) {
			state = "disabled"
		}
		reg := grammar.NewRegistry()
		if err := d.Register(reg); err != nil {
			fmt.Fprintf(os.Stderr, "plugin %s: %v\n", d.Name, err)
			return 1
		}
		fmt.Printf("%s (%s, %d patterns)\n", d.Name, state, len(reg.Patterns()))
		fmt.Printf("  %s\n", d.Description)
		for _, p := range reg.Patterns() {
			fmt.Printf("    %s\n", p)
		}
	}
	return 0
}

func runSend(args []string) int {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to configuration file or directory")
	socketPath := fs.String("socket", "", "Socket path (overrides config)")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	utterance := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if utterance == "" {
		fmt.Fprintln(os.Stderr, "Usage: voxgate send [--socket <path>] <utterance>")
		return 1
	}

	path := *socketPath
	if path == "" {
		cfg, _, err := loadConfig(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
			return 1
		}
		path = cfg.Socket.Path
	}

	conn, err := net.DialTimeout("unix", path, 3*time.Second)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to connect to %s: %v\n", path, err)
		return 1
	}
	defer conn.Close()

	if _, err := conn.Write([]byte(utterance + "\n")); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to send: %v\n", err)
		return 1
	}
	return 0
}
