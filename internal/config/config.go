package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// Load reads the .env file specified by RECALL_ENV (or .env by default),
// then loads the corresponding .secret sidecar if it exists.
// All config is flat env vars read via os.Getenv after loading.
func Load() error {
	envFile := os.Getenv("RECALL_ENV")
	if envFile == "" {
		envFile = ".env"
	}

	_ = godotenv.Load(envFile)
	_ = godotenv.Load(envFile + ".secret")

	return nil
}

func ServerPort() int {
	port, err := strconv.Atoi(os.Getenv("SERVER_PORT"))
	if err != nil {
		return 8080
	}
	return port
}

func ServerAddr() string {
	return fmt.Sprintf(":%d", ServerPort())
}

func MemgraphURL() string {
	u := os.Getenv("MEMGRAPH_URL")
	if u == "" {
		return "bolt://localhost:7687"
	}
	return u
}

func MemgraphUser() string {
	return os.Getenv("MEMGRAPH_USER")
}

func MemgraphPassword() string {
	return os.Getenv("MEMGRAPH_PASSWORD")
}

func OpenAIAPIKey() string {
	return os.Getenv("OPENAI_API_KEY")
}

// LLMProvider returns the configured LLM provider.
// Valid values: openai, mock. Defaults to "openai".
func LLMProvider() string {
	p := os.Getenv("LLM_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingProvider returns the configured embedding provider.
// Valid values: openai, mock. Defaults to "openai".
func EmbeddingProvider() string {
	p := os.Getenv("EMBEDDING_PROVIDER")
	if p == "" {
		return "openai"
	}
	return p
}

// EmbeddingDims must match the active provider's declared dimension.
// Changing it requires a schema rebuild and a full re-embed.
func EmbeddingDims() int {
	dims, err := strconv.Atoi(os.Getenv("EMBEDDING_DIMS"))
	if err != nil || dims <= 0 {
		return 1536
	}
	return dims
}

// OpenAIRequestsPerMinute caps outbound OpenAI calls; it also bounds the
// bulk-ingest dedup fan-out.
func OpenAIRequestsPerMinute() int {
	rpm, err := strconv.Atoi(os.Getenv("OPENAI_REQUESTS_PER_MINUTE"))
	if err != nil || rpm <= 0 {
		return 500
	}
	return rpm
}

func DedupEnabled() bool {
	v := os.Getenv("DEDUP_ENABLED")
	if v == "" {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}

// DedupThreshold is the minimum cosine similarity for dedup candidates.
// The default suits OpenAI-class embedding providers; override per provider.
func DedupThreshold() float64 {
	t, err := strconv.ParseFloat(os.Getenv("DEDUP_THRESHOLD"), 64)
	if err != nil || t <= 0 || t > 1 {
		return 0.85
	}
	return t
}

func ContextWindowEnabled() bool {
	v := os.Getenv("CONTEXT_WINDOW_ENABLED")
	if v == "" {
		return true
	}
	enabled, err := strconv.ParseBool(v)
	if err != nil {
		return true
	}
	return enabled
}

// ContextWindowSize is the number of recent live memories prepended to the
// embedding input. Clamped to [0, 50].
func ContextWindowSize() int {
	n, err := strconv.Atoi(os.Getenv("CONTEXT_WINDOW_SIZE"))
	if err != nil || n < 0 {
		return 10
	}
	if n > 50 {
		return 50
	}
	return n
}

// RateLimitRPS returns requests per second limit for the HTTP surface.
func RateLimitRPS() float64 {
	rps, err := strconv.ParseFloat(os.Getenv("RATE_LIMIT_RPS"), 64)
	if err != nil || rps <= 0 {
		return 100
	}
	return rps
}

// RateLimitBurst returns the burst size for rate limiting.
func RateLimitBurst() int {
	burst, err := strconv.Atoi(os.Getenv("RATE_LIMIT_BURST"))
	if err != nil || burst <= 0 {
		return 20
	}
	return burst
}

// LogLevel returns the log level (debug, info, warn, error).
func LogLevel() string {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		return "info"
	}
	return level
}
