// Command server boots the orchestration engine: it loads configuration, wires the
// LLM Router, Memory Manager, Tool Registry, and Orchestrator, then serves the HTTP/SSE
// API until an interrupt signal asks it to drain and exit (spec §6, §9).
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/flowmesh/swarmcore/api"
	"github.com/flowmesh/swarmcore/core"
	"github.com/flowmesh/swarmcore/llm"
	"github.com/flowmesh/swarmcore/llm/providers"
	"github.com/flowmesh/swarmcore/memory"
	"github.com/flowmesh/swarmcore/orchestrator"
	"github.com/flowmesh/swarmcore/telemetry"
	"github.com/flowmesh/swarmcore/tools"
)

func main() {
	cfg, err := core.NewConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}
	logger := cfg.Logger()

	ctx := context.Background()

	telemetryProvider, err := buildTelemetry(ctx, cfg, logger)
	if err != nil {
		log.Fatalf("failed to initialize telemetry: %v", err)
	}

	registry := buildProviderRegistry(ctx, cfg, logger, telemetryProvider)
	router := llm.NewRouter(registry, logger, telemetryProvider)

	mgr, err := buildMemoryManager(ctx, cfg, router, logger)
	if err != nil {
		log.Fatalf("failed to initialize memory tiers: %v", err)
	}

	toolRegistry := tools.NewDefaultRegistry(cfg.Providers, logger)

	orch := orchestrator.New(
		router,
		mgr,
		toolRegistry,
		registry.CloudProviders(),
		cfg.Orchestration,
		"google",
		logger,
		telemetryProvider,
	)

	if !cfg.Development.Enabled {
		gin.SetMode(gin.ReleaseMode)
	}
	server := api.NewServer(orch, mgr, router, toolRegistry, cfg.Store.SettingsFilePath, logger, telemetryProvider)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Port),
		Handler:           telemetry.WrapHandler(cfg.Name, server.Engine()),
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		logger.Info("server: listening", map[string]interface{}{"port": cfg.Port})
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server: listen failed: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("server: shutting down", nil)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: graceful shutdown failed", map[string]interface{}{"error": err.Error()})
	}
	if err := telemetryProvider.Shutdown(shutdownCtx); err != nil {
		logger.Error("server: telemetry shutdown failed", map[string]interface{}{"error": err.Error()})
	}
}

// buildTelemetry constructs the OpenTelemetry provider. Development mode (or an
// unconfigured endpoint) exports traces to stdout instead of dialing a collector that
// won't exist on a developer's machine (spec's ambient observability stack).
func buildTelemetry(ctx context.Context, cfg *core.Config, logger core.Logger) (*telemetry.Provider, error) {
	return telemetry.New(ctx, telemetry.Config{
		ServiceName:  cfg.Telemetry.ServiceName,
		OTLPEndpoint: cfg.Telemetry.Endpoint,
		Development:  cfg.Development.Enabled || !cfg.Telemetry.Enabled,
	}, logger)
}

// buildProviderRegistry registers every cloud provider whose API key is configured,
// in priority order (anthropic > google > openai > openrouter > bedrock, matching the
// teacher's credential precedence), plus a local inference endpoint when configured
// (spec §4.1).
func buildProviderRegistry(ctx context.Context, cfg *core.Config, logger core.Logger, telemetryProvider core.Telemetry) *llm.Registry {
	registry := llm.NewRegistry(logger, telemetryProvider)

	if cfg.Providers.AnthropicAPIKey != "" {
		registry.Add("anthropic", 50, providers.NewAnthropicClient(cfg.Providers.AnthropicAPIKey, "", logger))
	}
	if cfg.Providers.GoogleAPIKey != "" {
		registry.Add("google", 40, providers.NewGeminiClient(cfg.Providers.GoogleAPIKey, "", logger))
	}
	if cfg.Providers.OpenAIAPIKey != "" {
		registry.Add("openai", 30, providers.NewOpenAIClient(cfg.Providers.OpenAIAPIKey, "", logger))
	}
	if cfg.Providers.OpenRouterAPIKey != "" {
		registry.Add("openrouter", 20, providers.NewOpenRouterClient(cfg.Providers.OpenRouterAPIKey, "", logger))
	}
	if cfg.Providers.BedrockRegion != "" {
		if client, err := providers.NewBedrockClient(ctx, cfg.Providers.BedrockRegion, logger); err != nil {
			logger.Warn("server: bedrock client unavailable, skipping", map[string]interface{}{"error": err.Error()})
		} else {
			registry.Add("bedrock", 10, client)
		}
	}
	if cfg.Providers.LocalBaseURL != "" {
		registry.SetLocal("local", providers.NewOpenAIClient("", cfg.Providers.LocalBaseURL, logger))
	}

	if len(registry.CloudProviders()) == 0 {
		logger.Warn("server: no cloud LLM provider configured", nil)
	}
	return registry
}

// buildMemoryManager wires the ephemeral, vector, and durable tiers. The durable tier
// is Postgres-backed and required (spec §4.2 has no in-process substitute for it);
// ephemeral falls back to an in-process implementation when no Redis URL is usable so
// a single-node deployment can still run end to end.
func buildMemoryManager(ctx context.Context, cfg *core.Config, router *llm.Router, logger core.Logger) (*memory.Manager, error) {
	if cfg.Store.DurableURL == "" {
		return nil, core.NewTaskError("main.buildMemoryManager", core.KindFatalPlan, "", fmt.Errorf("SWARMCORE_DURABLE_URL is required"))
	}
	if err := memory.Migrate(cfg.Store.DurableURL); err != nil {
		return nil, fmt.Errorf("running durable store migrations: %w", err)
	}
	durable, err := memory.NewPgDurable(ctx, cfg.Store.DurableURL)
	if err != nil {
		return nil, fmt.Errorf("connecting durable store: %w", err)
	}

	var ephemeral memory.Ephemeral
	if cfg.Store.EphemeralRedisURL != "" {
		redisEphemeral, err := memory.NewRedisEphemeral(cfg.Store.EphemeralRedisURL, cfg.Name, logger)
		if err != nil {
			logger.Warn("server: redis ephemeral tier unavailable, falling back to in-process", map[string]interface{}{"error": err.Error()})
			ephemeral = memory.NewLocalEphemeral()
		} else {
			ephemeral = redisEphemeral
		}
	} else {
		ephemeral = memory.NewLocalEphemeral()
	}

	var vector memory.Vector
	if cfg.Store.VectorURL != "" {
		pgVector, err := memory.NewPgVector(ctx, cfg.Store.VectorURL)
		if err != nil {
			logger.Warn("server: vector tier unavailable, continuing without it", map[string]interface{}{"error": err.Error()})
		} else {
			vector = pgVector
		}
	}

	return memory.NewManager(ephemeral, vector, durable, router, logger), nil
}
