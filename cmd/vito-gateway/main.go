// ABOUTME: Entry point for vito-gateway
// ABOUTME: Wires the coordinator, providers, stores, and the Matrix transport

package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"github.com/2389/vito-gateway/internal/admission"
	"github.com/2389/vito-gateway/internal/config"
	"github.com/2389/vito-gateway/internal/conversation"
	"github.com/2389/vito-gateway/internal/dispatch"
	"github.com/2389/vito-gateway/internal/frontend/matrix"
	"github.com/2389/vito-gateway/internal/memory"
	"github.com/2389/vito-gateway/internal/metrics"
	"github.com/2389/vito-gateway/internal/priority"
	"github.com/2389/vito-gateway/internal/provider"
	"github.com/2389/vito-gateway/internal/status"
	"github.com/2389/vito-gateway/internal/store"
	"github.com/2389/vito-gateway/internal/task"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
        _ _                       _
 __   _(_) |_ ___         __ _  __ _| |_ _____      ____ _ _   _
 \ \ / / | __/ _ \ _____ / _' |/ _' | __/ _ \ \ /\ / / _' | | | |
  \ V /| | || (_) |_____| (_| | (_| | ||  __/\ V  V / (_| | |_| |
   \_/ |_|\__\___/       \__, |\__,_|\__\___| \_/\_/ \__,_|\__, |
                         |___/                             |___/
`

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: vito-gateway <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve    Start the assistant")
		fmt.Println("  init     Create a new config file interactively")
		fmt.Println("  check    Validate the config file")
		fmt.Println("  health   Check a running gateway via its status server")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "check":
		err = runCheck()
	case "health":
		err = runHealth(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := config.Path()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:     %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Homeserver: %s\n", cfg.Matrix.Homeserver)
	green.Print("    ▶ ")
	fmt.Printf("Database:   %s\n", cfg.Storage.DatabasePath)
	green.Print("    ▶ ")
	fmt.Printf("Providers:  gemini (%s), openrouter (%s)\n", modelOrDefault(cfg.Providers.Gemini.Model), cfg.Providers.OpenRouter.Model)
	if cfg.Status.Addr != "" {
		green.Print("    ▶ ")
		fmt.Printf("Status:     %s\n", cfg.Status.Addr)
	}
	if cfg.Matrix.Encryption {
		green.Print("    ▶ ")
		fmt.Println("Encryption: enabled")
	}
	fmt.Println()

	logger.Info("starting vito-gateway", "config", configPath, "version", version)
	return serve(ctx, cfg, logger)
}

// serve runs until ctx is cancelled. In-flight units of work are cancelled
// with it and drained before returning.
func serve(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.MemoryPath), 0700); err != nil {
		return fmt.Errorf("creating memory directory: %w", err)
	}

	sqlStore, err := store.NewSQLiteStore(cfg.Storage.DatabasePath)
	if err != nil {
		return fmt.Errorf("opening conversation store: %w", err)
	}
	defer sqlStore.Close()
	convos := conversation.New(sqlStore, logger, conversation.WithTTL(cfg.Conversation.TTL))

	memories, err := memory.Open(cfg.Storage.MemoryPath, logger)
	if err != nil {
		return fmt.Errorf("opening memory store: %w", err)
	}

	gw, err := newGateway(cfg, logger)
	if err != nil {
		return err
	}

	registry := task.NewRegistry(logger)
	gate := admission.NewGate(cfg.Admission.RecheckInterval, logger)

	var (
		m        *metrics.Metrics
		gatherer prometheus.Gatherer
	)
	if cfg.Metrics.Enabled {
		promReg := metrics.NewRegistry()
		m = metrics.MustNew(promReg, metrics.Gauges{InFlight: registry.Len, Waiting: gate.Waiting})
		gatherer = promReg
	}

	loc, err := cfg.Location()
	if err != nil {
		return err
	}
	dispatcher := dispatch.New(dispatch.Config{
		Persona:    cfg.Persona.SystemPrompt,
		Location:   loc,
		SoftLimit:  cfg.Replies.SoftLimit,
		HardLimit:  cfg.Replies.HardLimit,
		ChunkDelay: cfg.Replies.ChunkDelay,
	}, dispatch.Deps{
		Policy:   priority.NewPolicy(cfg.Access.Creator, cfg.Access.Admins),
		Registry: registry,
		Gate:     gate,
		Convos:   convos,
		Memories: memories,
		Gateway:  gw,
		Metrics:  m,
		Logger:   logger,
	})

	bridge, err := matrix.NewBridge(matrix.Config{
		Homeserver:   cfg.Matrix.Homeserver,
		UserID:       cfg.Matrix.UserID,
		AccessToken:  cfg.Matrix.AccessToken,
		Username:     cfg.Matrix.Username,
		Password:     cfg.Matrix.Password,
		DeviceID:     cfg.Matrix.DeviceID,
		Encryption:   cfg.Matrix.Encryption,
		RecoveryKey:  cfg.Matrix.RecoveryKey,
		CryptoDir:    cfg.Storage.CryptoDir,
		AllowedRooms: cfg.Matrix.AllowedRooms,
		IgnoreUsers:  cfg.Matrix.IgnoreUsers,
		Typing:       cfg.Matrix.Typing(),
	}, dispatcher, logger)
	if err != nil {
		return err
	}
	if err := bridge.Login(ctx); err != nil {
		return fmt.Errorf("matrix login: %w", err)
	}
	crypto, err := bridge.EnableCrypto(ctx)
	if err != nil {
		return fmt.Errorf("setting up encryption: %w", err)
	}
	defer crypto.Close()

	swept, err := convos.Sweep(ctx, time.Now(), registry.IsRunning)
	if err != nil {
		logger.Warn("startup sweep failed", "error", err)
	}
	m.Swept(swept)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return bridge.Run(gctx) })
	g.Go(func() error { return convos.RunSweeper(gctx, cfg.Conversation.SweepInterval, registry.IsRunning) })
	if cfg.Status.Addr != "" {
		srv := status.New(status.Config{
			Addr:        cfg.Status.Addr,
			MetricsPath: cfg.Metrics.Path,
			Gatherer:    gatherer,
			Tasks:       registry,
			Gate:        gate,
			Ready:       bridge.Ready,
			Logger:      logger,
		})
		g.Go(func() error { return srv.Run(gctx) })
	}

	err = g.Wait()
	logger.Info("shutting down", "in_flight", registry.Len())
	dispatcher.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	return nil
}

func newGateway(cfg *config.Config, logger *slog.Logger) (*provider.Gateway, error) {
	client := &http.Client{Timeout: cfg.Providers.Timeout}

	gemini, err := provider.NewGemini(provider.GeminiConfig{
		APIKey:     cfg.Providers.Gemini.APIKey,
		Model:      cfg.Providers.Gemini.Model,
		BaseURL:    cfg.Providers.Gemini.BaseURL,
		HTTPClient: client,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring gemini: %w", err)
	}
	openrouter, err := provider.NewOpenRouter(provider.OpenRouterConfig{
		APIKey:     cfg.Providers.OpenRouter.APIKey,
		Model:      cfg.Providers.OpenRouter.Model,
		BaseURL:    cfg.Providers.OpenRouter.BaseURL,
		HTTPClient: client,
	})
	if err != nil {
		return nil, fmt.Errorf("configuring openrouter: %w", err)
	}
	return provider.NewGateway(gemini, openrouter, logger), nil
}

func modelOrDefault(model string) string {
	if model == "" {
		return provider.DefaultGeminiModel
	}
	return model
}

func runCheck() error {
	configPath := config.Path()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if _, err := newGateway(cfg, slog.Default()); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("✓ %s is valid\n", configPath)
	fmt.Printf("  creator: %s, admins: %d\n", cfg.Access.Creator, len(cfg.Access.Admins))
	fmt.Printf("  conversation ttl: %s, sweep every %s\n", cfg.Conversation.TTL, cfg.Conversation.SweepInterval)
	return nil
}

func runHealth(ctx context.Context) error {
	cfg, err := config.Load(config.Path())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if cfg.Status.Addr == "" {
		return errors.New("status.addr is not configured")
	}

	url := fmt.Sprintf("http://%s/health/ready", cfg.Status.Addr)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unhealthy: status %d", resp.StatusCode)
	}
	fmt.Println("healthy")
	return nil
}
