// Wayfarer is a conversational travel assistant.
//
// It serves a streaming chat API backed by an OpenAI-compatible LLM,
// live flight search (Amadeus), aircraft lookups (ADSBDB), and trip
// artifact creation (Google Docs, Google Calendar or CalDAV).
// Configuration is loaded from a single YAML file discovered
// automatically (see [config.DefaultSearchPaths]).
//
// Usage:
//
//	wayfarer serve           Start the API server
//	wayfarer version         Print version and build information
//	wayfarer -o json version Output version information as JSON
package main

import (
	"context"
	"crypto/rand"
	"encoding/hex"
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

	"github.com/wayfarerlabs/wayfarer/internal/adsbdb"
	"github.com/wayfarerlabs/wayfarer/internal/agent"
	"github.com/wayfarerlabs/wayfarer/internal/amadeus"
	"github.com/wayfarerlabs/wayfarer/internal/api"
	"github.com/wayfarerlabs/wayfarer/internal/buildinfo"
	"github.com/wayfarerlabs/wayfarer/internal/config"
	"github.com/wayfarerlabs/wayfarer/internal/extract"
	"github.com/wayfarerlabs/wayfarer/internal/gcal"
	"github.com/wayfarerlabs/wayfarer/internal/gdocs"
	"github.com/wayfarerlabs/wayfarer/internal/llm"
	"github.com/wayfarerlabs/wayfarer/internal/memory"
	"github.com/wayfarerlabs/wayfarer/internal/mqtt"
	"github.com/wayfarerlabs/wayfarer/internal/prefs"
	"github.com/wayfarerlabs/wayfarer/internal/session"
	"github.com/wayfarerlabs/wayfarer/internal/tools"
	"github.com/wayfarerlabs/wayfarer/internal/update"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for database/sql
)

// main is intentionally minimal. It constructs the OS-level environment
// (context, stdio, argv) and delegates immediately to [run], keeping
// os.Exit and os.Args out of the application logic so the full
// startup-to-shutdown lifecycle can be driven from tests.
func main() {
	ctx := context.Background()

	if err := run(ctx, os.Stdout, os.Stderr, os.Args[1:]); err != nil {
		fmt.Fprintf(os.Stderr, "%s\n", err)
		os.Exit(1)
	}
}

// run is the real entry point for the wayfarer command. Arguments are
// parsed by hand: the flag package relies on package-level globals
// (flag.CommandLine), which makes it impossible to call run()
// concurrently from tests, and our argument surface is small.
func run(ctx context.Context, stdout io.Writer, stderr io.Writer, args []string) error {
	var configPath string
	var outputFmt string // "text" (default) or "json"
	var command string

	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "-config" && i+1 < len(args):
			configPath = args[i+1]
			i++
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
			return fmt.Errorf("unknown flag: %s", args[i])
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
	case "version":
		return runVersion(stdout, outputFmt)
	case "":
		return printUsage(stdout)
	default:
		return fmt.Errorf("unknown command: %s", command)
	}
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
	for _, k := range []string{"version", "git_commit", "git_branch", "build_time", "go_version", "os", "arch"} {
		if v, ok := info[k]; ok {
			fmt.Fprintf(w, "  %-12s %s\n", k+":", v)
		}
	}
	return nil
}

func printUsage(w io.Writer) error {
	fmt.Fprintln(w, "Wayfarer - Conversational Travel Assistant")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Usage: wayfarer [flags] <command>")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  serve        Start the API server")
	fmt.Fprintln(w, "  version      Show version information")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Flags:")
	fmt.Fprintln(w, "  -config <path>    Path to config file (default: auto-discover)")
	fmt.Fprintln(w, "  -o, --output fmt  Output format: text (default) or json")
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Config search order:")
	fmt.Fprintln(w, "  ./config.yaml, ~/.config/wayfarer/config.yaml, /etc/wayfarer/config.yaml")
	return nil
}

// runServe is the primary operating mode: load config, open databases,
// construct the LLM client and tool backends, start the API server, and
// block until a shutdown signal arrives.
func runServe(ctx context.Context, stdout io.Writer, configPath string) error {
	logger := newLogger(stdout, slog.LevelInfo)
	logger.Info("starting Wayfarer",
		"version", buildinfo.Version,
		"commit", buildinfo.GitCommit,
		"built", buildinfo.BuildTime,
	)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfgPath, err := config.FindConfig(configPath)
	if err != nil {
		return err
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return fmt.Errorf("load config %s: %w", cfgPath, err)
	}

	// Reconfigure the logger now that the desired level is known. The
	// initial Info-level logger covers only the startup banner.
	if cfg.LogLevel != "" {
		level, err := config.ParseLogLevel(cfg.LogLevel)
		if err != nil {
			return err
		}
		logger = newLogger(stdout, level)
	}

	logger.Info("config loaded",
		"path", cfgPath,
		"port", cfg.Listen.Port,
		"model", cfg.Models.Default,
	)

	if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
		return fmt.Errorf("create data directory %s: %w", cfg.DataDir, err)
	}

	// --- Stores ---
	// Transcripts and traveler knowledge live in separate SQLite files
	// so wiping one never touches the other.
	transcripts, err := memory.NewStore(filepath.Join(cfg.DataDir, "wayfarer.db"))
	if err != nil {
		return fmt.Errorf("open transcript database: %w", err)
	}
	defer transcripts.Close()

	prefsStore, err := prefs.NewStore(filepath.Join(cfg.DataDir, "prefs.db"))
	if err != nil {
		return fmt.Errorf("open preference database: %w", err)
	}
	defer prefsStore.Close()

	// --- LLM client ---
	llmClient := createLLMClient(cfg, logger)

	// --- Tool backends ---
	flights := amadeus.NewClient(cfg.Amadeus.BaseURL, cfg.Amadeus.ClientID, cfg.Amadeus.ClientSecret, logger)
	aircraft := adsbdb.NewClient("")
	docs := gdocs.NewClient("", logger)

	var calendar gcal.Creator
	switch cfg.Calendar.Backend {
	case "caldav":
		calendar, err = gcal.NewCalDAVClient(cfg.Calendar.CalDAVURL, cfg.Calendar.CalDAVUsername, cfg.Calendar.CalDAVPassword, logger)
		if err != nil {
			return fmt.Errorf("configure CalDAV backend: %w", err)
		}
		logger.Info("calendar backend: caldav", "url", cfg.Calendar.CalDAVURL)
	default:
		calendar = gcal.NewGoogleClient("", logger)
	}

	registry, err := tools.NewRegistry(flights, aircraft, docs, calendar, logger)
	if err != nil {
		return fmt.Errorf("build tool registry: %w", err)
	}

	controller := agent.NewController(llmClient, registry, prefsStore, cfg.Models.Default, logger)

	// --- Sessions ---
	secretKey, err := ensureSessionKey(cfg.Session.SecretKey, cfg.DataDir)
	if err != nil {
		return err
	}
	sealer, err := session.NewSealer(secretKey, time.Duration(cfg.Session.TTLHours)*time.Hour)
	if err != nil {
		return fmt.Errorf("session sealer: %w", err)
	}

	// --- Knowledge extraction ---
	extractor := extract.NewExtractor(prefsStore, llmExtractFunc(llmClient, cfg.Models.Default), logger)

	// --- API server ---
	server := api.NewServer(cfg.Listen.Address, cfg.Listen.Port, controller, transcripts, prefsStore, sealer, logger)
	server.SetExtractor(extractor)
	server.SetPublicURL(cfg.Listen.PublicURL)

	// --- MQTT bridge ---
	if cfg.MQTT.Enabled {
		instanceID, _ := os.Hostname()
		if instanceID == "" {
			instanceID = "default"
		}
		pub := mqtt.New(cfg.MQTT, instanceID, logger)
		go func() {
			if err := pub.Start(ctx); err != nil {
				logger.Error("MQTT bridge stopped", "error", err)
			}
		}()
		defer func() {
			stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = pub.Stop(stopCtx)
		}()
		server.SetPublisher(pub)
	}

	// --- Release check ---
	if !cfg.Update.Disabled {
		go update.NewChecker(logger).Check(ctx)
	}

	if err := server.Start(ctx); err != nil {
		if ctx.Err() == nil {
			return fmt.Errorf("server failed: %w", err)
		}
	}

	logger.Info("Wayfarer stopped")
	return nil
}

// newLogger creates a structured text logger writing to w. All log
// output goes through slog; this standardizes handler configuration.
func newLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{
		Level:       level,
		ReplaceAttr: config.ReplaceLogLevelNames,
	}))
}

// createLLMClient builds the chat client. When a fallback API key is
// configured, requests that hit a rate limit on the primary key are
// retried once on the alternate.
func createLLMClient(cfg *config.Config, logger *slog.Logger) llm.Client {
	primary := llm.NewOpenAIClient(cfg.Models.BaseURL, cfg.Models.APIKey, cfg.Models.Temperature, logger)
	if cfg.Models.FallbackAPIKey == "" {
		return primary
	}
	alternate := llm.NewOpenAIClient(cfg.Models.BaseURL, cfg.Models.FallbackAPIKey, cfg.Models.Temperature, logger)
	logger.Info("LLM failover configured")
	return llm.NewFailoverClient(primary, alternate, logger)
}

// ensureSessionKey returns the configured session secret, or loads one
// persisted next to the database, generating it on first run.
func ensureSessionKey(configured, dataDir string) (string, error) {
	if configured != "" {
		return configured, nil
	}

	keyPath := filepath.Join(dataDir, "session.key")
	if data, err := os.ReadFile(keyPath); err == nil {
		return strings.TrimSpace(string(data)), nil
	}

	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("generate session key: %w", err)
	}
	key := hex.EncodeToString(raw)
	if err := os.WriteFile(keyPath, []byte(key+"\n"), 0600); err != nil {
		return "", fmt.Errorf("persist session key: %w", err)
	}
	return key, nil
}

// llmExtractFunc adapts the chat client to the extractor's interface:
// one non-streaming completion over the recent transcript window,
// returning structured JSON.
func llmExtractFunc(client llm.Client, model string) extract.ExtractFunc {
	return func(ctx context.Context, window []llm.Message) (*extract.Result, error) {
		var transcript strings.Builder
		for _, m := range window {
			if m.Content == "" {
				continue
			}
			fmt.Fprintf(&transcript, "%s: %s\n", m.Role, m.Content)
		}

		prompt := fmt.Sprintf(`Review this travel-planning conversation and extract durable traveler knowledge.

Respond with only a JSON object in this exact shape:
{"preferences": ["..."], "title": "..."}

- "preferences" lists lasting traveler preferences stated or strongly implied (budget habits, seating, airlines, schedules). Leave it empty if none.
- "title" is a short descriptive name for the conversation, five words or fewer.

Conversation:
%s`, transcript.String())

		resp, err := client.Chat(ctx, model, []llm.Message{{Role: "user", Content: prompt}}, nil)
		if err != nil {
			return nil, err
		}

		content := strings.TrimSpace(resp.Message.Content)
		content = strings.TrimPrefix(content, "```json")
		content = strings.TrimPrefix(content, "```")
		content = strings.TrimSuffix(content, "```")
		content = strings.TrimSpace(content)

		var result extract.Result
		if err := json.Unmarshal([]byte(content), &result); err != nil {
			return nil, fmt.Errorf("parse extraction response: %w", err)
		}
		return &result, nil
	}
}
