package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Limiter   LimiterSettings   `mapstructure:"limiter"`
	Admin     AdminSettings     `mapstructure:"admin"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
}

type AppSettings struct {
	Name        string   `mapstructure:"name"`
	Env         string   `mapstructure:"env"`
	Host        string   `mapstructure:"host"`
	Port        int      `mapstructure:"port"`
	CORSOrigins []string `mapstructure:"cors_origins"`
}

// LimiterSettings bounds the in-memory guard stores and tunes backoff and abuse detection.
type LimiterSettings struct {
	WindowCapacity      int           `mapstructure:"window_capacity"`
	FailureCapacity     int           `mapstructure:"failure_capacity"`
	ActivityCapacity    int           `mapstructure:"activity_capacity"`
	JanitorInterval     time.Duration `mapstructure:"janitor_interval"`
	BackoffBase         time.Duration `mapstructure:"backoff_base"`
	BackoffMax          time.Duration `mapstructure:"backoff_max"`
	FailureTTL          time.Duration `mapstructure:"failure_ttl"`
	ActivityTTL         time.Duration `mapstructure:"activity_ttl"`
	PatternHistory      int           `mapstructure:"pattern_history"`
	SuspiciousThreshold int           `mapstructure:"suspicious_threshold"`
	BlockThreshold      int           `mapstructure:"block_threshold"`
	BlockOnAbuse        bool          `mapstructure:"block_on_abuse"`
	EnforceLockout      bool          `mapstructure:"enforce_lockout"`
}

// AdminSettings configures the administrator account and the operations token.
type AdminSettings struct {
	Username     string `mapstructure:"username"`
	PasswordHash string `mapstructure:"password_hash"`
	OpsToken     string `mapstructure:"ops_token"`
}

type TelemetrySettings struct {
	MetricsEnabled bool    `mapstructure:"metrics_enabled"`
	TracingEnabled bool    `mapstructure:"tracing_enabled"`
	OTLPEndpoint   string  `mapstructure:"otlp_endpoint"`
	ServiceName    string  `mapstructure:"service_name"`
	SamplingRate   float64 `mapstructure:"sampling_rate"`
}

// Argon2Settings configures Argon2id password hashing parameters
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("GUARD")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"app.host",
		"app.port",
		"app.cors_origins",
		"limiter.window_capacity",
		"limiter.failure_capacity",
		"limiter.activity_capacity",
		"limiter.janitor_interval",
		"limiter.backoff_base",
		"limiter.backoff_max",
		"limiter.failure_ttl",
		"limiter.activity_ttl",
		"limiter.pattern_history",
		"limiter.suspicious_threshold",
		"limiter.block_threshold",
		"limiter.block_on_abuse",
		"limiter.enforce_lockout",
		"admin.username",
		"admin.password_hash",
		"admin.ops_token",
		"telemetry.metrics_enabled",
		"telemetry.tracing_enabled",
		"telemetry.otlp_endpoint",
		"telemetry.service_name",
		"telemetry.sampling_rate",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
	}); err != nil {
		return nil, err
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate rejects settings the guard cannot run with.
func (c *AppConfig) Validate() error {
	l := c.Limiter
	switch {
	case l.WindowCapacity <= 0, l.FailureCapacity <= 0, l.ActivityCapacity <= 0:
		return fmt.Errorf("limiter capacities must be positive")
	case l.BackoffBase <= 0 || l.BackoffMax < l.BackoffBase:
		return fmt.Errorf("limiter backoff_max must be >= backoff_base > 0")
	case l.FailureTTL <= 0 || l.ActivityTTL <= 0:
		return fmt.Errorf("limiter ttls must be positive")
	case l.PatternHistory <= 0:
		return fmt.Errorf("limiter pattern_history must be positive")
	case l.SuspiciousThreshold <= 0 || l.BlockThreshold < l.SuspiciousThreshold:
		return fmt.Errorf("limiter block_threshold must be >= suspicious_threshold > 0")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "abuse-guard")
	v.SetDefault("app.env", "development")
	v.SetDefault("app.host", "0.0.0.0")
	v.SetDefault("app.port", 8080)
	v.SetDefault("app.cors_origins", []string{})

	v.SetDefault("limiter.window_capacity", 10000)
	v.SetDefault("limiter.failure_capacity", 10000)
	v.SetDefault("limiter.activity_capacity", 10000)
	v.SetDefault("limiter.janitor_interval", "1m")
	v.SetDefault("limiter.backoff_base", "1s")
	v.SetDefault("limiter.backoff_max", "60s")
	v.SetDefault("limiter.failure_ttl", "1h")
	v.SetDefault("limiter.activity_ttl", "24h")
	v.SetDefault("limiter.pattern_history", 10)
	v.SetDefault("limiter.suspicious_threshold", 10)
	v.SetDefault("limiter.block_threshold", 50)
	v.SetDefault("limiter.block_on_abuse", false)
	v.SetDefault("limiter.enforce_lockout", false)

	v.SetDefault("admin.username", "admin")
	v.SetDefault("admin.password_hash", "")
	v.SetDefault("admin.ops_token", "")

	v.SetDefault("telemetry.metrics_enabled", true)
	v.SetDefault("telemetry.tracing_enabled", false)
	v.SetDefault("telemetry.otlp_endpoint", "localhost:4318")
	v.SetDefault("telemetry.service_name", "abuse-guard")
	v.SetDefault("telemetry.sampling_rate", 1.0)

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "GUARD_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
