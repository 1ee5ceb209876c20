// Inquest server — exposes the investigation HTTP API, binds provisioned
// agent fleets, and records session outcomes. With --provision it creates a
// scenario's agent fleet out-of-band and exits.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/probelab/inquest/pkg/agents"
	"github.com/probelab/inquest/pkg/api"
	"github.com/probelab/inquest/pkg/backend"
	"github.com/probelab/inquest/pkg/config"
	"github.com/probelab/inquest/pkg/database"
	"github.com/probelab/inquest/pkg/discovery"
	"github.com/probelab/inquest/pkg/orchestrator"
	"github.com/probelab/inquest/pkg/session"
)

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func main() {
	// Parse command-line flags
	configDir := flag.String("config-dir",
		getEnv("CONFIG_DIR", "./deploy/config"),
		"Path to configuration directory")
	provisionScenario := flag.String("provision", "",
		"Provision the named scenario's agent fleet and exit")
	flag.Parse()

	// Load .env file from config directory
	envPath := filepath.Join(*configDir, ".env")
	if err := godotenv.Load(envPath); err != nil {
		slog.Warn("Could not load .env file, continuing with existing environment",
			"path", envPath, "error", err)
	} else {
		slog.Info("Loaded environment", "path", envPath)
	}

	httpPort := getEnv("HTTP_PORT", "8080")
	ctx := context.Background()

	// 1. Load scenario manifests and runtime knobs
	scenarios, err := config.LoadScenarios(filepath.Join(*configDir, "scenarios"))
	if err != nil {
		slog.Error("Failed to load scenario manifests", "error", err)
		os.Exit(1)
	}
	rc := config.LoadRuntimeFromEnv()
	slog.Info("Scenarios loaded", "scenarios", scenarios.Names())

	// 2. Build the agent service client and provisioner
	if rc.AgentServiceURL == "" {
		slog.Error("AGENT_SERVICE_URL is required")
		os.Exit(1)
	}
	agentClient := agents.NewClient(rc.AgentServiceURL, os.Getenv("AGENT_SERVICE_KEY"))
	provisioner := agents.NewProvisioner(agentClient)

	// --provision runs out-of-band and exits without starting the server.
	if *provisionScenario != "" {
		if err := runProvision(ctx, provisioner, scenarios, rc, *configDir, *provisionScenario); err != nil {
			slog.Error("Provisioning failed", "scenario", *provisionScenario, "error", err)
			os.Exit(1)
		}
		return
	}

	// 3. Connect to PostgreSQL; fall back to in-memory-only operation
	var store database.Store = database.NoopStore{}
	dbConfig, err := database.LoadConfigFromEnv()
	if err != nil {
		slog.Warn("Database config incomplete, session history disabled", "error", err)
	} else if dbClient, dbErr := database.NewClient(ctx, dbConfig); dbErr != nil {
		slog.Warn("Database unavailable, session history disabled", "error", dbErr)
	} else {
		defer func() {
			if err := dbClient.Close(); err != nil {
				slog.Error("Error closing database client", "error", err)
			}
		}()
		store = database.NewEntStore(dbClient)
		slog.Info("Connected to PostgreSQL database")
	}

	// 4. Discovery cache over the control-plane API
	tokens := &discovery.CachedTokenSource{
		Inner:  discovery.EnvTokenSource{Key: "FABRIC_API_TOKEN"},
		MaxAge: rc.TokenStaleAfter,
	}
	resolver := discovery.NewControlPlaneClient(rc.FabricAPIURL, tokens)
	disc := discovery.NewCache(resolver, discovery.CacheConfig{
		TTL:              rc.DiscoveryTTL,
		ConventionPrefix: os.Getenv("DISCOVERY_PREFIX"),
	})

	// 5. Backend factory; eager build validates each scenario's bindings
	factory := backend.NewFactory(tokens, disc)
	defer func() {
		if err := factory.Close(); err != nil {
			slog.Error("Error closing backends", "error", err)
		}
	}()
	for _, name := range scenarios.Names() {
		m, err := scenarios.Get(name)
		if err != nil {
			continue
		}
		if _, err := factory.ForScenario(m); err != nil {
			slog.Warn("Backend set unavailable for scenario", "scenario", name, "error", err)
		}
	}

	// 6. Orchestrator runtime with fleets resolved from the remote service
	runtime := orchestrator.New(agentClient, orchestrator.Config{
		StallWatchdog: rc.StallWatchdog,
	})
	for _, name := range scenarios.Names() {
		m, err := scenarios.Get(name)
		if err != nil {
			continue
		}
		fleet, err := provisioner.ResolveFleet(ctx, m)
		if err != nil {
			slog.Warn("Fleet not bound, investigations for this scenario will fail until provisioned",
				"scenario", name, "error", err)
			continue
		}
		runtime.BindFleet(name, fleet)
		slog.Info("Fleet bound", "scenario", name, "agents", len(fleet.Agents))
	}

	// 7. Session registry
	registry, err := session.NewRegistry(runtime, store, session.Config{
		MaxActive:   rc.MaxActiveSessions,
		RecentSize:  rc.RecentCacheSize,
		IdleTimeout: rc.SessionIdleTimeout,
	})
	if err != nil {
		slog.Error("Failed to create session registry", "error", err)
		os.Exit(1)
	}

	// 8. HTTP server (non-blocking)
	server := api.NewServer(registry, scenarios, store, factory)
	httpServer := &http.Server{
		Addr:    ":" + httpPort,
		Handler: server.Routes(),
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("HTTP server listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()
	slog.Info("Inquest started successfully", "scenarios", len(scenarios.Names()))

	// 9. Wait for shutdown signal or server error
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM, syscall.SIGINT)

	select {
	case sig := <-sigCh:
		slog.Info("Shutdown signal received", "signal", sig.String())
	case err := <-errCh:
		slog.Error("HTTP server error", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		slog.Error("HTTP server shutdown error", "error", err)
	}
	slog.Info("Shutdown complete")
}

// runProvision creates the named scenario's fleet, printing progress to
// stdout so the operator sees each agent land.
func runProvision(ctx context.Context, p *agents.Provisioner, scenarios *config.Registry, rc config.RuntimeConfig, configDir, name string) error {
	m, err := scenarios.Get(name)
	if err != nil {
		return err
	}
	fleet, err := p.ProvisionFromConfig(ctx, m, agents.ProvisionOptions{
		APIBaseURL:         rc.QueryAPIBaseURL,
		SearchConnectionID: rc.SearchConnectionID,
		PromptsDir:         filepath.Join(configDir, "prompts"),
		OnProgress:         func(msg string) { fmt.Println(msg) },
	})
	if err != nil {
		return err
	}
	fmt.Printf("Provisioned %d agents for scenario %s\n", len(fleet.Agents), name)
	return nil
}
