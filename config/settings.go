// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig
	Store    StoreConfig
	Pipeline PipelineConfig
	Queue    QueueConfig
	Shards   ShardConfig
	Server   ServerConfig
}

// LLMConfig holds Reasoning Service provider configuration.
type LLMConfig struct {
	Provider   string
	Model      string
	EmbedModel string
	BaseURL    string
	Timeout    time.Duration
}

// StoreConfig selects and configures the persistent store backend.
type StoreConfig struct {
	Backend    string // "sqlite" or "mongo"
	SQLitePath string
	MongoURI   string
	MongoDB    string
}

// PipelineConfig bounds the per-turn reasoning loop.
type PipelineConfig struct {
	MaxReasoningLoops int
	ChunkThreshold    int
}

// QueueConfig tunes the proactive injection policy.
type QueueConfig struct {
	GapUrgencyThreshold float64
	Cooldown            time.Duration
}

// ShardConfig sets the background cycle intervals.
type ShardConfig struct {
	CuratorInterval time.Duration
	ThinkerInterval time.Duration
}

// ServerConfig configures the HTTP surface.
type ServerConfig struct {
	Addr string
}

// New loads settings from environment variables, applying defaults.
// Returns an error if any variable contains an invalid value.
func New() (Settings, error) {
	timeout, err := getEnvSeconds("CARLOS_LLM_TIMEOUT_SECONDS", 60*time.Second)
	if err != nil {
		return Settings{}, err
	}
	maxLoops, err := getEnvInt("CARLOS_MAX_REASONING_LOOPS", 5)
	if err != nil {
		return Settings{}, err
	}
	chunkThreshold, err := getEnvInt("CARLOS_CHUNK_THRESHOLD", 4000)
	if err != nil {
		return Settings{}, err
	}
	gapThreshold, err := getEnvFloat64("CARLOS_GAP_URGENCY_THRESHOLD", 0.7)
	if err != nil {
		return Settings{}, err
	}
	cooldown, err := getEnvSeconds("CARLOS_PROACTIVE_COOLDOWN_SECONDS", 5*time.Minute)
	if err != nil {
		return Settings{}, err
	}
	curatorInterval, err := getEnvSeconds("CARLOS_CURATOR_INTERVAL_SECONDS", 5*time.Minute)
	if err != nil {
		return Settings{}, err
	}
	thinkerInterval, err := getEnvSeconds("CARLOS_THINKER_INTERVAL_SECONDS", 15*time.Minute)
	if err != nil {
		return Settings{}, err
	}

	backend := getEnv("CARLOS_STORE", "sqlite")
	if backend != "sqlite" && backend != "mongo" {
		return Settings{}, fmt.Errorf("invalid value for CARLOS_STORE: %q (want sqlite or mongo)", backend)
	}

	return Settings{
		LLM: LLMConfig{
			Provider:   getEnv("CARLOS_PROVIDER", "local"),
			Model:      os.Getenv("CARLOS_MODEL"),
			EmbedModel: os.Getenv("CARLOS_EMBED_MODEL"),
			BaseURL:    getEnv("CARLOS_API_BASE", "http://localhost:1234/v1"),
			Timeout:    timeout,
		},
		Store: StoreConfig{
			Backend:    backend,
			SQLitePath: getEnv("CARLOS_SQLITE_PATH", "carlos.db"),
			MongoURI:   getEnv("MONGO_URI", "mongodb://localhost:27017"),
			MongoDB:    getEnv("CARLOS_MONGO_DB", "carlos"),
		},
		Pipeline: PipelineConfig{
			MaxReasoningLoops: maxLoops,
			ChunkThreshold:    chunkThreshold,
		},
		Queue: QueueConfig{
			GapUrgencyThreshold: gapThreshold,
			Cooldown:            cooldown,
		},
		Shards: ShardConfig{
			CuratorInterval: curatorInterval,
			ThinkerInterval: thinkerInterval,
		},
		Server: ServerConfig{
			Addr: getEnv("CARLOS_ADDR", ":8080"),
		},
	}, nil
}

// MustNew loads settings and panics on invalid values.
// Use this only when configuration errors should be fatal.
func MustNew() Settings {
	settings, err := New()
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvSeconds(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return time.Duration(i) * time.Second, nil
}
