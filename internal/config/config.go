package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the fraud decision engine
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Kafka     KafkaConfig     `mapstructure:"kafka"`
	Engine    EngineConfig    `mapstructure:"engine"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
	Security  SecurityConfig  `mapstructure:"security"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Database        string        `mapstructure:"database"`
	SSLMode         string        `mapstructure:"ssl_mode"`
	MaxConns        int           `mapstructure:"max_conns"`
	MinConns        int           `mapstructure:"min_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
}

// RedisConfig holds Redis configuration for the pattern catalog cache
type RedisConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	Password        string        `mapstructure:"password"`
	DB              int           `mapstructure:"db"`
	PoolSize        int           `mapstructure:"pool_size"`
	DialTimeout     time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	PatternCacheTTL time.Duration `mapstructure:"pattern_cache_ttl"`
}

// KafkaConfig holds Kafka configuration for decision event publishing
type KafkaConfig struct {
	Brokers        []string `mapstructure:"brokers"`
	DecisionsTopic string   `mapstructure:"decisions_topic"`
	AlertsTopic    string   `mapstructure:"alerts_topic"`
}

// EngineConfig holds the decision engine's weights, thresholds and policies.
// Everything here is operator-tunable; the defaults implement the reference
// behavior.
type EngineConfig struct {
	EmbeddingDim           int           `mapstructure:"embedding_dim"`
	EvaluatorTimeout       time.Duration `mapstructure:"evaluator_timeout"`
	DecidedBy              string        `mapstructure:"decided_by"`
	PatternRefreshInterval time.Duration `mapstructure:"pattern_refresh_interval"`

	Velocity   VelocityConfig   `mapstructure:"velocity"`
	Device     DeviceConfig     `mapstructure:"device"`
	Network    NetworkConfig    `mapstructure:"network"`
	Pattern    PatternConfig    `mapstructure:"pattern"`
	Thresholds ThresholdsConfig `mapstructure:"thresholds"`
}

// VelocityConfig tunes the recent-activity evaluator
type VelocityConfig struct {
	Window         time.Duration `mapstructure:"window"`
	CountThreshold int           `mapstructure:"count_threshold"`
	Weight         float64       `mapstructure:"weight"`
	FailOpen       bool          `mapstructure:"fail_open"`
}

// DeviceConfig tunes the device-fingerprint evaluator
type DeviceConfig struct {
	VPNWeight         float64 `mapstructure:"vpn_weight"`
	VMWeight          float64 `mapstructure:"vm_weight"`
	NovelDeviceWeight float64 `mapstructure:"novel_device_weight"`
	FailOpen          bool    `mapstructure:"fail_open"`
}

// NetworkConfig tunes the account-network proximity evaluator.
// MaxContribution = 0 means the proximity penalty is uncapped.
type NetworkConfig struct {
	RiskThreshold    float64 `mapstructure:"risk_threshold"`
	ConnectionWeight float64 `mapstructure:"connection_weight"`
	MaxContribution  float64 `mapstructure:"max_contribution"`
	Direction        string  `mapstructure:"direction"`
	RingDepth        int     `mapstructure:"ring_depth"`
	FailOpen         bool    `mapstructure:"fail_open"`
}

// PatternConfig tunes the fraud-pattern similarity evaluator
type PatternConfig struct {
	CriticalDistance float64 `mapstructure:"critical_distance"`
	CriticalWeight   float64 `mapstructure:"critical_weight"`
	HighDistance     float64 `mapstructure:"high_distance"`
	HighWeight       float64 `mapstructure:"high_weight"`
	FailOpen         bool    `mapstructure:"fail_open"`
}

// ThresholdsConfig maps the aggregate risk score to a decision
type ThresholdsConfig struct {
	Review float64 `mapstructure:"review"`
	Block  float64 `mapstructure:"block"`
}

// TelemetryConfig holds observability configuration
type TelemetryConfig struct {
	ServiceName   string  `mapstructure:"service_name"`
	Environment   string  `mapstructure:"environment"`
	OTLPEndpoint  string  `mapstructure:"otlp_endpoint"`
	SamplingRatio float64 `mapstructure:"sampling_ratio"`
}

// SecurityConfig holds API security configuration
type SecurityConfig struct {
	JWTSecret      string   `mapstructure:"jwt_secret"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load loads configuration from environment and config files
func Load() (*Config, error) {
	v := viper.New()

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.SetEnvPrefix("FRAUD_ENGINE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Config file (optional)
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath("/etc/fraud-engine")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		// Config file not found, use defaults + env
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.port", 8086)
	v.SetDefault("server.read_timeout", "30s")
	v.SetDefault("server.write_timeout", "30s")
	v.SetDefault("server.idle_timeout", "60s")
	v.SetDefault("server.shutdown_timeout", "30s")

	// Database defaults
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "postgres")
	v.SetDefault("database.database", "fraud_db")
	v.SetDefault("database.ssl_mode", "disable")
	v.SetDefault("database.max_conns", 50)
	v.SetDefault("database.min_conns", 10)
	v.SetDefault("database.conn_max_lifetime", "30m")

	// Redis defaults
	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.pool_size", 50)
	v.SetDefault("redis.dial_timeout", "5s")
	v.SetDefault("redis.read_timeout", "1s")
	v.SetDefault("redis.write_timeout", "1s")
	v.SetDefault("redis.pattern_cache_ttl", "1h")

	// Kafka defaults
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.decisions_topic", "banking.fraud.decisions")
	v.SetDefault("kafka.alerts_topic", "banking.fraud.alerts")

	// Engine defaults (reference behavior)
	v.SetDefault("engine.embedding_dim", 384)
	v.SetDefault("engine.evaluator_timeout", "250ms")
	v.SetDefault("engine.decided_by", "fraud-engine")
	v.SetDefault("engine.pattern_refresh_interval", "5m")

	v.SetDefault("engine.velocity.window", "1h")
	v.SetDefault("engine.velocity.count_threshold", 10)
	v.SetDefault("engine.velocity.weight", 0.2)
	v.SetDefault("engine.velocity.fail_open", true)

	v.SetDefault("engine.device.vpn_weight", 0.15)
	v.SetDefault("engine.device.vm_weight", 0.10)
	v.SetDefault("engine.device.novel_device_weight", 0.10)
	v.SetDefault("engine.device.fail_open", true)

	v.SetDefault("engine.network.risk_threshold", 0.7)
	v.SetDefault("engine.network.connection_weight", 0.15)
	v.SetDefault("engine.network.max_contribution", 0.0) // 0 = uncapped
	v.SetDefault("engine.network.direction", "outbound")
	v.SetDefault("engine.network.ring_depth", 2)
	v.SetDefault("engine.network.fail_open", false)

	v.SetDefault("engine.pattern.critical_distance", 0.20)
	v.SetDefault("engine.pattern.critical_weight", 0.40)
	v.SetDefault("engine.pattern.high_distance", 0.30)
	v.SetDefault("engine.pattern.high_weight", 0.25)
	v.SetDefault("engine.pattern.fail_open", false)

	v.SetDefault("engine.thresholds.review", 0.4)
	v.SetDefault("engine.thresholds.block", 0.7)

	// Telemetry defaults
	v.SetDefault("telemetry.service_name", "fraud-engine")
	v.SetDefault("telemetry.environment", "development")
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4317")
	v.SetDefault("telemetry.sampling_ratio", 0.1)

	// Security defaults
	v.SetDefault("security.jwt_secret", "")
	v.SetDefault("security.allowed_origins", []string{"*"})
}
