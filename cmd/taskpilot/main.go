// Taskpilot is a conversational todo manager.
//
// It exposes an HTTP API whose central endpoint runs a model-driven
// chat turn: the model can create, list, complete, update, and delete
// the caller's tasks through a fixed tool set, while a circuit breaker
// guards the model provider. Configuration is loaded from a single YAML
// file discovered automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	taskpilot serve              Start the API server
//	taskpilot init [dir]         Initialize a working directory with defaults
//	taskpilot token <owner>      Mint a bearer token for local testing
//	taskpilot version            Print version and build information
//	taskpilot -o json version    Output version information as JSON
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/davenby/taskpilot/internal/agent"
	"github.com/davenby/taskpilot/internal/api"
	"github.com/davenby/taskpilot/internal/auth"
	"github.com/davenby/taskpilot/internal/buildinfo"
	"github.com/davenby/taskpilot/internal/config"
	"github.com/davenby/taskpilot/internal/history"
	"github.com/davenby/taskpilot/internal/llm"
	"github.com/davenby/taskpilot/internal/metrics"
	"github.com/davenby/taskpilot/internal/store"
	"github.com/davenby/taskpilot/internal/tools"
	"github.com/davenby/taskpilot/internal/usage"
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run] so that the
// full startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the taskpilot command. All OS-level
// dependencies are injected as parameters: ctx controls the process
// lifetime, stdout/stderr receive all output, and args is os.Args[1:].
// Arguments are parsed by hand; the flag package relies on package-level
// globals, which makes it impossible to call run() concurrently from
// tests, and the argument surface is small enough that manual parsing
// is clearer than bringing in a CLI framework.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	// A .env file supplies values for ${VAR} expansion in the config.
	// Missing files are fine.
	_ = godotenv.Load()

	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string
	var cmdArgs []string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++ // skip the value
		case strings.HasPrefix(args[i], "-config="):
			configPath = strings.TrimPrefix(args[i], "-config=")
		case (args[i] == "-o" || args[i] == "--output") && i+1 < len(args):
			outputFmt = args[i+1]
			i++
		case strings.HasPrefix(args[i], "-o="):
			outputFmt = strings.TrimPrefix(args[i], "-o=")
		case strings.HasPrefix(args[i], "--output="):
			outputFmt = strings.TrimPrefix(args[i], "--output=")
		case args[i] == "-h" || args[i] == "-help" || args[i] == "--help":
			return printUsage(stdout)
		case !strings.HasPrefix(args[i], "-") && command == "":
			command = args[i]
		default:
			if command != "" {
				cmdArgs = append(cmdArgs, args[i])
			} else {
				return fmt.Errorf("unknown flag: %s", args[i])
			}
		}
	}

	if outputFmt == "" {
		outputFmt = "text"
	}
	if outputFmt != "text" && outputFmt != "json" {
		return fmt.Errorf("unknown output format: %q (expected text or json)", outputFmt)
	}

	switch command {
	case "serve":
		return runServe(ctx, stdout, configPath)
	case "init":
		dir := "."
		if len(cmdArgs) > 0 {
			dir = cmdArgs[0]
		}
		return runInit(stdout, dir)
	case "token":
		if len(cmdArgs) == 0 {
			return fmt.Errorf("usage: taskpilot token <owner>")
		}
		return runToken(stdout, configPath, cmdArgs[0])
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
}

// runServe boots the full service: storage, model client with breaker,
// tool registry, history manager, orchestrator, and the HTTP server.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	cfg, cfgPath, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	level, err := config.ParseLogLevel(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger := newLogger(stdout, level)
	logger.Info(buildinfo.String())
	logger.Info("config loaded", "path", cfgPath)

	if cfg.Auth.Secret == "" {
		return fmt.Errorf("auth.secret is required (set TASKPILOT_AUTH_SECRET or edit %s)", cfgPath)
	}

	st, err := store.Open(cfg.Database.Path)
	if err != nil {
		return fmt.Errorf("open database %s: %w", cfg.Database.Path, err)
	}
	defer st.Close()
	logger.Info("database opened", "path", cfg.Database.Path)

	// The breaker is the only thing standing between the orchestrator
	// and the provider; everything downstream talks to the instrumented
	// wrapper, never the raw client.
	provider := llm.NewOllamaClient(cfg.Model.BaseURL, cfg.Model.CallTimeout())
	breaker := llm.NewBreaker(provider, cfg.Breaker.FailureThreshold, cfg.Breaker.RecoveryTimeout(), logger)
	client := metrics.NewInstrumentedClient(breaker)

	registry := tools.NewRegistry(st)
	summarizer := history.NewLLMSummarizer(client, cfg.Model.Name)
	hist := history.NewManager(st, summarizer, cfg.Agent.MaxContextTokens, cfg.Agent.KeepRecent, logger)
	loop := agent.NewLoop(client, cfg.Model.Name, registry, cfg.Agent.MaxIterations, logger)

	authSvc := auth.NewService(cfg.Auth.Secret, tokenTTL(cfg))

	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, st, loop, hist, authSvc, client, logger)

	usageStore, err := usage.NewStore(usagePath(cfg.Database.Path))
	if err != nil {
		return fmt.Errorf("open usage database: %w", err)
	}
	defer usageStore.Close()
	server.SetUsageStore(usageStore)

	// SIGINT/SIGTERM cancellation flows through the same ctx used by
	// all components.
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	go func() {
		<-ctx.Done()
		logger.Info("shutdown signal received")
		_ = server.Shutdown(context.Background())
	}()

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Taskpilot stopped")
	return nil
}

// runToken mints a bearer token for local testing against a server
// running with the same auth secret.
func runToken(stdout io.Writer, configPath, owner string) error {
	cfg, _, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	token, err := auth.NewService(cfg.Auth.Secret, tokenTTL(cfg)).IssueToken(owner)
	if err != nil {
		return err
	}

	fmt.Fprintln(stdout, token)
	return nil
}

// runVersion prints build metadata in the requested output format.
func runVersion(w io.Writer, outputFmt string) error {
	info := buildinfo.Info()
	if outputFmt == "json" {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(info)
	}
	fmt.Fprintln(w, buildinfo.String())
	// Print fields in a stable order for human readability.
	for _, k := range []string{"version", "git_commit", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

// printUsage writes the top-level help text to w.
func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Taskpilot - Conversational Todo Manager")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: taskpilot [flags] <command> [args]")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve          Start the API server")
	fmt.Fprintln(w, "  init [dir]     Initialize working directory with defaults (default: .)")
	fmt.Fprintln(w, "  token <owner>  Mint a bearer token for local testing")
	fmt.Fprintln(w, "  version        Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./taskpilot.yaml, ~/.config/taskpilot/taskpilot.yaml, /etc/taskpilot/taskpilot.yaml")
	return nil
}

// newLogger creates a structured text logger writing to w. All log
// output in Taskpilot goes through slog.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level}))
}

// loadConfig locates and parses the YAML configuration file. If
// explicit is non-empty, that exact path is used (and must exist).
func loadConfig(explicit string) (*config.Config, string, error) {
	cfgPath, err := config.FindConfig(explicit)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, cfgPath, fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	return cfg, cfgPath, nil
}

// usagePath derives the usage database path from the main database
// path, keeping both files side by side.
func usagePath(dbPath string) string {
	ext := filepath.Ext(dbPath)
	return strings.TrimSuffix(dbPath, ext) + "-usage" + ext
}

func tokenTTL(cfg *config.Config) time.Duration {
	return time.Duration(cfg.Auth.TokenTTLHours) * time.Hour
}
