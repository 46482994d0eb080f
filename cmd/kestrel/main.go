// Kestrel - Risk flags and priority scores for every CRM record.
// Copyright (c) 2025 opensource.crm
// Licensed under the Apache License 2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/opensource-crm/kestrel/internal/api"
	"github.com/opensource-crm/kestrel/internal/assess"
	"github.com/opensource-crm/kestrel/internal/batch"
	"github.com/opensource-crm/kestrel/internal/bus"
	"github.com/opensource-crm/kestrel/internal/cache"
	"github.com/opensource-crm/kestrel/internal/crm"
	"github.com/opensource-crm/kestrel/internal/domain"
	"github.com/opensource-crm/kestrel/internal/repository"
)

// Version information (set via ldflags)
var (
	Version   = "dev"
	Commit    = "none"
	BuildDate = "unknown"
)

func main() {
	// Initialize structured logger
	logLevel := slog.LevelInfo
	if os.Getenv("KESTREL_DEBUG") == "true" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	// Log startup
	slog.Info("starting kestrel",
		"version", Version,
		"commit", Commit,
		"build_date", BuildDate,
	)

	// Load configuration
	cfg := domain.DefaultConfig()

	// Check for Pro tier via environment
	if os.Getenv("KESTREL_TIER") == "pro" {
		cfg = domain.ProConfig()
		slog.Info("running in Pro tier mode")
	}
	applyEnvOverrides(cfg)

	slog.Info("configuration loaded",
		"tier", cfg.Tier,
		"repository", cfg.Repository.Driver,
		"cache", cfg.Cache.Type,
		"eventbus", cfg.EventBus.Type,
		"crm", cfg.CRM.Mode,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		slog.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Initialize Repository
	repo, err := repository.New(cfg.Repository)
	if err != nil {
		slog.Error("failed to initialize repository", "error", err)
		os.Exit(1)
	}
	defer repo.Close()
	slog.Info("repository initialized", "driver", cfg.Repository.Driver)

	// Initialize Cache
	cacheImpl, err := cache.New(cfg.Cache)
	if err != nil {
		slog.Error("failed to initialize cache", "error", err)
		os.Exit(1)
	}
	defer cacheImpl.Close()
	slog.Info("cache initialized", "type", cfg.Cache.Type)

	// Initialize EventBus
	busImpl, err := bus.New(cfg.EventBus)
	if err != nil {
		slog.Error("failed to initialize event bus", "error", err)
		os.Exit(1)
	}
	defer busImpl.Close()
	slog.Info("event bus initialized", "type", cfg.EventBus.Type)

	// Initialize CRM record fetcher
	fetcher, err := crm.New(cfg.CRM)
	if err != nil {
		slog.Error("failed to initialize crm fetcher", "error", err)
		os.Exit(1)
	}
	static, _ := fetcher.(*crm.StaticFetcher)
	slog.Info("crm fetcher initialized", "mode", cfg.CRM.Mode)

	// Assessor joins the CRM boundary, the config store, and both engines
	assessor := assess.NewAssessor(repo, fetcher, cacheImpl, busImpl)

	// Batch runner doubles as the async worker
	runner := batch.NewRunner(assessor, fetcher, busImpl, 10)

	// Start async workers for the configured orgs (Pro tier)
	if cfg.Tier == domain.TierPro || os.Getenv("KESTREL_ASYNC_WORKER") == "true" {
		orgIDs := splitOrgs(os.Getenv("KESTREL_ORGS"))
		if len(orgIDs) == 0 {
			slog.Warn("async worker enabled but KESTREL_ORGS is empty")
		} else if err := runner.Start(ctx, orgIDs); err != nil {
			slog.Error("failed to start async workers", "error", err)
		} else {
			slog.Info("async workers started", "org_count", len(orgIDs))
		}
	}

	// Initialize Server
	srv := api.NewServer(cfg.Server, repo, cacheImpl, busImpl, assessor, runner, static, Version)

	// Start Server in goroutine
	go func() {
		if err := srv.Start(); err != nil && err != http.ErrServerClosed {
			slog.Error("server failed", "error", err)
			os.Exit(1)
		}
	}()

	slog.Info("kestrel is ready",
		"host", cfg.Server.Host,
		"port", cfg.Server.Port,
	)

	printBanner(cfg, Version)

	// Wait for shutdown signal
	<-ctx.Done()
	slog.Info("shutting down...")

	// Stop async workers first
	if err := runner.Stop(); err != nil {
		slog.Error("failed to stop async workers", "error", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
	}

	slog.Info("kestrel shutdown complete")
}

// applyEnvOverrides layers environment settings over the tier defaults.
func applyEnvOverrides(cfg *domain.Config) {
	if v := os.Getenv("KESTREL_PG_HOST"); v != "" {
		cfg.Repository.PostgresHost = v
	}
	if v := os.Getenv("KESTREL_PG_USER"); v != "" {
		cfg.Repository.PostgresUser = v
	}
	if v := os.Getenv("KESTREL_PG_PASSWORD"); v != "" {
		cfg.Repository.PostgresPassword = v
	}
	if v := os.Getenv("KESTREL_PG_DB"); v != "" {
		cfg.Repository.PostgresDB = v
	}
	if v := os.Getenv("KESTREL_SQLITE_PATH"); v != "" {
		cfg.Repository.SQLitePath = v
	}
	if v := os.Getenv("KESTREL_REDIS_ADDR"); v != "" {
		cfg.Cache.RedisAddr = v
	}
	if v := os.Getenv("KESTREL_NATS_URL"); v != "" {
		cfg.EventBus.NATSUrl = v
	}
	if v := os.Getenv("KESTREL_CRM_URL"); v != "" {
		cfg.CRM.Mode = "http"
		cfg.CRM.BaseURL = v
	}
	if v := os.Getenv("KESTREL_CRM_TOKEN"); v != "" {
		cfg.CRM.AccessToken = v
	}
}

func splitOrgs(s string) []string {
	var orgs []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			orgs = append(orgs, p)
		}
	}
	return orgs
}

func printBanner(cfg *domain.Config, version string) {
	fmt.Println()
	fmt.Println("  ╔═══════════════════════════════════════════╗")
	fmt.Println("  ║               🪶 KESTREL                   ║")
	fmt.Println("  ║   Risk Rules & Priority Scoring Engine     ║")
	fmt.Println("  ║      Every record, ranked and flagged.     ║")
	fmt.Println("  ╚═══════════════════════════════════════════╝")
	fmt.Println()
	fmt.Printf("  Version:  %s\n", version)
	fmt.Printf("  Tier:     %s\n", cfg.Tier)
	fmt.Printf("  Server:   http://%s:%d\n", cfg.Server.Host, cfg.Server.Port)
	fmt.Println()
	fmt.Println("  Endpoints:")
	fmt.Println("    POST /evaluate                        - Score a record")
	fmt.Println("    POST /evaluate/batch                  - Score a batch of records")
	fmt.Println("    GET  /assessments/{id}                - Get assessment by ID")
	fmt.Println("    GET  /records/{id}/assessments        - Assessment history for a record")
	fmt.Println("    PUT  /records/{id}                    - Ingest a record (static CRM)")
	fmt.Println("    GET  /rules                           - List risk rules")
	fmt.Println("    POST /rules                           - Create a risk rule")
	fmt.Println("    PUT  /rules/{id}                      - Update a risk rule")
	fmt.Println("    DELETE /rules/{id}                    - Delete a risk rule")
	fmt.Println("    GET  /scoring                         - Get scoring config")
	fmt.Println("    PUT  /scoring                         - Replace scoring config")
	fmt.Println("    GET  /health                          - Health check")
	fmt.Println()
}
