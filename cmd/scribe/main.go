package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
	_ "modernc.org/sqlite"

	"github.com/hazyhaar/scribe/agent"
	"github.com/hazyhaar/scribe/confluence"
	"github.com/hazyhaar/scribe/dbopen"
	"github.com/hazyhaar/scribe/jira"
	"github.com/hazyhaar/scribe/llm"
	"github.com/hazyhaar/scribe/prompt"
)

func main() {
	configPath := env("SCRIBE_CONFIG", "scribe.yaml")
	mcpTransport := env("MCP_TRANSPORT", "")

	cfg, err := agent.LoadConfig(configPath)
	if err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}
	if v := env("LOG_LEVEL", ""); v != "" {
		cfg.LogLevel = v
	}

	// Logging.
	var lvl slog.Level
	switch cfg.LogLevel {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)

	if err := cfg.Validate(); err != nil {
		slog.Error("config", "error", err)
		os.Exit(1)
	}

	// Signal context.
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	// Ledger DB. The agent applies its schema on construction.
	db, err := dbopen.Open(cfg.LedgerPath, dbopen.WithMkdirAll())
	if err != nil {
		slog.Error("ledger db", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Prompt templates.
	searchTpl, err := prompt.Load(filepath.Join(cfg.PromptDir, "search_queries.prompt"))
	if err != nil {
		slog.Error("search prompt", "error", err)
		os.Exit(1)
	}
	analyzeTpl, err := prompt.Load(filepath.Join(cfg.PromptDir, "ticket_analyzer.prompt"))
	if err != nil {
		slog.Error("analyzer prompt", "error", err)
		os.Exit(1)
	}

	// Inference provider.
	model, err := llm.New(cfg.LLMConfig())
	if err != nil {
		slog.Error("llm client", "error", err)
		os.Exit(1)
	}

	deps := agent.Deps{
		LLM:           model,
		DB:            db,
		SearchPrompt:  searchTpl,
		AnalyzePrompt: analyzeTpl,
	}

	// Tracker and wiki clients, skipped in static mode.
	if cfg.StaticTicketsPath == "" {
		tracker, err := jira.New(cfg.JiraConfig())
		if err != nil {
			slog.Error("jira client", "error", err)
			os.Exit(1)
		}
		if err := tracker.Ping(ctx); err != nil {
			slog.Error("jira ping", "error", err)
			os.Exit(1)
		}
		kb, err := confluence.New(cfg.ConfluenceConfig())
		if err != nil {
			slog.Error("confluence client", "error", err)
			os.Exit(1)
		}
		if err := kb.Ping(ctx); err != nil {
			slog.Error("confluence ping", "error", err)
			os.Exit(1)
		}
		deps.Tickets = tracker
		deps.KB = kb
	}

	svc, err := agent.New(cfg, logger, deps)
	if err != nil {
		slog.Error("agent service", "error", err)
		os.Exit(1)
	}

	// Static mode: one pass, then exit.
	if cfg.StaticTicketsPath != "" {
		if err := svc.RunStatic(ctx); err != nil {
			slog.Error("static pass", "error", err)
			os.Exit(1)
		}
		return
	}

	// Optional MCP over stdio.
	if mcpTransport == "stdio" {
		mcpSrv := mcp.NewServer(&mcp.Implementation{
			Name:    "scribe",
			Version: "1.0.0",
		}, nil)
		svc.RegisterMCP(mcpSrv)
		go func() {
			if err := mcpSrv.Run(ctx, &mcp.StdioTransport{}); err != nil && ctx.Err() == nil {
				slog.Error("mcp stdio", "error", err)
			}
		}()
	}

	// Poll loop.
	go func() {
		if err := svc.Run(ctx); err != nil && ctx.Err() == nil {
			slog.Error("poll loop", "error", err)
		}
	}()

	// HTTP server.
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           svc.Router(),
		ReadHeaderTimeout: 10 * time.Second,
		WriteTimeout:      120 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		slog.Info("server starting", "addr", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown", "error", err)
	}
	slog.Info("server stopped")
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
