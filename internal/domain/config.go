package domain

import (
	"strings"
	"time"
)

// Config holds the complete ChainFlow configuration.
type Config struct {
	Server ServerConfig `koanf:"server" json:"server"`

	// Tier determines which backends are used
	Tier Tier `koanf:"tier" json:"tier" validate:"oneof=community pro"`

	Engine EngineConfig `koanf:"engine" json:"engine"`

	// Component configurations
	Repository RepositoryConfig `koanf:"repository" json:"repository"`
	Cache      CacheConfig      `koanf:"cache" json:"cache"`
	EventBus   EventBusConfig   `koanf:"eventbus" json:"eventBus"`

	Worker WorkerConfig `koanf:"worker" json:"worker"`

	// Observability
	Logging LoggingConfig `koanf:"logging" json:"logging"`
	Tracing TracingConfig `koanf:"tracing" json:"tracing"`
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Host         string `koanf:"host" json:"host"`
	Port         int    `koanf:"port" json:"port" validate:"min=1,max=65535"`
	ReadTimeout  int    `koanf:"read_timeout" json:"readTimeout"`   // seconds
	WriteTimeout int    `koanf:"write_timeout" json:"writeTimeout"` // seconds

	// Per-tenant request rate limit; zero disables limiting.
	RateLimit float64 `koanf:"rate_limit" json:"rateLimit" validate:"min=0"`
	RateBurst int     `koanf:"rate_burst" json:"rateBurst" validate:"min=0"`

	// SharedRateLimit counts requests in the cache instead of per-process
	// token buckets, so replicas behind one Redis share a tenant's budget.
	SharedRateLimit bool `koanf:"shared_rate_limit" json:"sharedRateLimit"`

	// EnqueueTimeout bounds how long POST /verify?async=true waits for a
	// worker to accept the request.
	EnqueueTimeout time.Duration `koanf:"enqueue_timeout" json:"enqueueTimeout"`

	// Comma-separated browser origins allowed by CORS; empty allows any.
	CORSOrigins string `koanf:"cors_origins" json:"corsOrigins"`
}

// AllowedOrigins splits CORSOrigins, dropping blanks.
func (s ServerConfig) AllowedOrigins() []string {
	return splitList(s.CORSOrigins)
}

// EngineConfig controls the routing and scoring engine.
type EngineConfig struct {
	// Seed feeds both the route randomness and the synthetic training data.
	Seed uint64 `koanf:"seed" json:"seed"`

	// FraudBackend is "forest" or "constant".
	FraudBackend string `koanf:"fraud_backend" json:"fraudBackend" validate:"oneof=forest constant"`

	ForestTrees      int `koanf:"forest_trees" json:"forestTrees" validate:"min=1"`
	ForestMaxDepth   int `koanf:"forest_max_depth" json:"forestMaxDepth" validate:"min=1"`
	SyntheticSamples int `koanf:"synthetic_samples" json:"syntheticSamples" validate:"min=10"`

	// ForestSnapshot is a JSON file holding the trained forest; empty
	// retrains on every start.
	ForestSnapshot string `koanf:"forest_snapshot" json:"forestSnapshot"`

	// MaxConcurrency bounds parallel rule evaluation and async verifications.
	MaxConcurrency int `koanf:"max_concurrency" json:"maxConcurrency" validate:"min=1"`

	// VelocityWindow is the look-back used for supplier assessment counts.
	VelocityWindow time.Duration `koanf:"velocity_window" json:"velocityWindow"`
}

// Fraud model backends
const (
	FraudBackendForest   = "forest"
	FraudBackendConstant = "constant"
)

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `koanf:"level" json:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" json:"format" validate:"oneof=json text"`
}

// TracingConfig holds OpenTelemetry settings. Spans are exported to stdout.
type TracingConfig struct {
	Enabled     bool    `koanf:"enabled" json:"enabled"`
	ServiceName string  `koanf:"service_name" json:"serviceName"`
	SampleRatio float64 `koanf:"sample_ratio" json:"sampleRatio" validate:"min=0,max=1"`
}

// WorkerConfig controls the async verification worker.
type WorkerConfig struct {
	Enabled bool `koanf:"enabled" json:"enabled"`

	// Tenants is a comma-separated list of tenants whose own request topic
	// is also consumed. The global request topic is always consumed.
	Tenants string `koanf:"tenants" json:"tenants"`

	Count int `koanf:"count" json:"count" validate:"min=1"`
}

// TenantIDs splits Tenants, dropping blanks.
func (w WorkerConfig) TenantIDs() []string {
	return splitList(w.Tenants)
}

func splitList(s string) []string {
	var out []string
	for _, item := range strings.Split(s, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}

// Tier represents the deployment tier.
type Tier string

const (
	// TierCommunity runs on SQLite + channels + in-memory cache
	TierCommunity Tier = "community"

	// TierPro runs on PostgreSQL + NATS + Redis
	TierPro Tier = "pro"
)

// DefaultConfig returns a default configuration for the community tier.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30,
			WriteTimeout: 30,
			RateLimit:    100,
			RateBurst:    200,

			EnqueueTimeout: 5 * time.Second,
		},
		Tier: TierCommunity,
		Engine: EngineConfig{
			Seed:             42,
			FraudBackend:     FraudBackendForest,
			ForestTrees:      100,
			ForestMaxDepth:   10,
			SyntheticSamples: 1000,
			MaxConcurrency:   10,
			VelocityWindow:   24 * time.Hour,
		},
		Repository: RepositoryConfig{
			Driver:     "sqlite",
			SQLitePath: "./chainflow.db",
		},
		Cache: CacheConfig{
			Type:         "memory",
			LocalMaxSize: 10000,
			LocalTTL:     5 * time.Minute,
			ShipmentTTL:  30 * 24 * time.Hour,
		},
		EventBus: EventBusConfig{
			Type:              "channel",
			ChannelBufferSize: 1000,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Worker: WorkerConfig{
			Enabled: false,
			Count:   5,
		},
		Tracing: TracingConfig{
			Enabled:     false,
			ServiceName: "chainflow",
			SampleRatio: 1,
		},
	}
}

// ProConfig returns a configuration for the pro tier.
func ProConfig() *Config {
	cfg := DefaultConfig()
	cfg.Tier = TierPro
	cfg.Repository = RepositoryConfig{
		Driver:       "postgres",
		PostgresHost: "localhost",
		PostgresPort: 5432,
		PostgresDB:   "chainflow",
	}
	cfg.Cache = CacheConfig{
		Type:           "redis",
		RedisAddr:      "localhost:6379",
		EnableTwoPhase: true,
		LocalMaxSize:   1000,
		LocalTTL:       5 * time.Minute,
		ShipmentTTL:    30 * 24 * time.Hour,
	}
	cfg.EventBus = EventBusConfig{
		Type:              "nats",
		NATSUrl:           "nats://localhost:4222",
		NATSMaxReconnects: 10,
		NATSReconnectWait: 5,
		NATSQueueGroup:    "chainflow-workers",
	}
	cfg.Server.SharedRateLimit = true
	cfg.Worker.Enabled = true
	cfg.Tracing.Enabled = true
	return cfg
}
