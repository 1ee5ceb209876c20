package config

import (
	"os"
	"strconv"
	"time"
)

// RuntimeConfig carries the process-level knobs read from the environment.
type RuntimeConfig struct {
	// MaxActiveSessions is the ceiling on concurrently active investigations.
	MaxActiveSessions int

	// RecentCacheSize bounds the recently-completed session cache.
	RecentCacheSize int

	// SessionIdleTimeout evicts a Completed session that receives no
	// follow-up within this window.
	SessionIdleTimeout time.Duration

	// StallWatchdog is the per-event receive timeout on the orchestrator
	// stream; exceeding it synthesizes an error event.
	StallWatchdog time.Duration

	// DiscoveryTTL is the discovery cache refresh interval.
	DiscoveryTTL time.Duration

	// TokenStaleAfter is the age-based credential staleness fallback for
	// issuers that don't expose expiry.
	TokenStaleAfter time.Duration

	// AgentServiceURL is the remote agent service endpoint.
	AgentServiceURL string

	// FabricAPIURL is the control-plane base URL for discovery.
	FabricAPIURL string

	// SearchConnectionID wires provisioned search tools to the AI Search
	// connection.
	SearchConnectionID string

	// QueryAPIBaseURL is substituted into OpenAPI tool specs ({base_url}).
	QueryAPIBaseURL string
}

// LoadRuntimeFromEnv reads the runtime knobs, applying documented defaults.
func LoadRuntimeFromEnv() RuntimeConfig {
	return RuntimeConfig{
		MaxActiveSessions:  envInt("MAX_ACTIVE_SESSIONS", 20),
		RecentCacheSize:    envInt("RECENT_CACHE_SIZE", 100),
		SessionIdleTimeout: envSeconds("SESSION_IDLE_TIMEOUT", 600),
		StallWatchdog:      envSeconds("STALL_WATCHDOG", 120),
		DiscoveryTTL:       envSeconds("DISCOVERY_TTL", 600),
		TokenStaleAfter:    envSeconds("TOKEN_STALE_AFTER", 3000),
		AgentServiceURL:    os.Getenv("AGENT_SERVICE_URL"),
		FabricAPIURL:       os.Getenv("FABRIC_API_URL"),
		SearchConnectionID: os.Getenv("SEARCH_CONNECTION_ID"),
		QueryAPIBaseURL:    os.Getenv("QUERY_API_BASE_URL"),
	}
}

func envInt(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return def
}

func envSeconds(key string, defSeconds int) time.Duration {
	return time.Duration(envInt(key, defSeconds)) * time.Second
}
