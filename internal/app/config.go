package app

import (
	"time"

	"github.com/chorusapp/chorus-backend/internal/platform/envutil"
	"github.com/chorusapp/chorus-backend/internal/services"
)

type Config struct {
	Port        string
	Environment string

	Knowledge services.KnowledgeConfig
	Runner    services.RunnerConfig

	// RolePresetsPath points at a YAML role list used to plan runs when no
	// model credential is configured.
	RolePresetsPath string
}

func LoadConfig() Config {
	return Config{
		Port:        envutil.String("PORT", "8080"),
		Environment: envutil.String("ENVIRONMENT", "development"),
		Knowledge: services.KnowledgeConfig{
			ChunkWindow:  envutil.Int("KNOWLEDGE_CHUNK_WINDOW", 1000),
			ChunkOverlap: envutil.Int("KNOWLEDGE_CHUNK_OVERLAP", 200),
			SearchTopK:   envutil.Int("KNOWLEDGE_SEARCH_TOP_K", 5),
		},
		Runner: services.RunnerConfig{
			MaxTurns:       envutil.Int("TEAM_MAX_TURNS", 12),
			MaxTurnRetries: envutil.Int("TEAM_MAX_TURN_RETRIES", 2),
			TurnTimeout:    envutil.Seconds("TEAM_TURN_TIMEOUT_SECONDS", 3*time.Minute),
			RetryBackoff:   envutil.Seconds("TEAM_RETRY_BACKOFF_SECONDS", time.Second),
		},
		RolePresetsPath: envutil.String("TEAM_ROLE_PRESETS", ""),
	}
}
