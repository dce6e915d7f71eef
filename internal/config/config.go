package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/nulzo/omni-router/internal/routing"
)

type Config struct {
	Server    ServerConfig     `mapstructure:"server"`
	Database  DatabaseConfig   `mapstructure:"database"`
	Redis     RedisConfig      `mapstructure:"redis"`
	RateLimit RateLimitConfig  `mapstructure:"rate_limit"`
	Tracing   TracingConfig    `mapstructure:"tracing"`
	Embedding EmbeddingConfig  `mapstructure:"embedding"`
	Ranker    RankerConfig     `mapstructure:"ranker"`
	Routing   RoutingConfig    `mapstructure:"routing"`
	Providers []ProviderConfig `mapstructure:"providers" validate:"dive"`
}

type ServerConfig struct {
	Port        string   `mapstructure:"port" validate:"required"`
	Env         string   `mapstructure:"env"`
	APIKeys     []string `mapstructure:"api_keys"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// AllowAnonymousApps lets a request identified only by X-App-Name through
	// without a key.
	AllowAnonymousApps bool `mapstructure:"allow_anonymous_apps"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	Enabled  bool   `mapstructure:"enabled"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `mapstructure:"requests_per_second" validate:"gt=0"`
	Burst             int     `mapstructure:"burst" validate:"gt=0"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// EmbeddingConfig selects the backend used for query and description vectors.
type EmbeddingConfig struct {
	Backend    string        `mapstructure:"backend" validate:"oneof=openai hashing"`
	BaseURL    string        `mapstructure:"base_url"`
	Model      string        `mapstructure:"model"`
	APIKey     string        `mapstructure:"api_key"`
	Dimensions int           `mapstructure:"dimensions" validate:"gte=0"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

// RankerConfig selects how prompt/candidate pairs are scored: a remote
// text-classification endpoint, or embedding similarity when no URL is set.
type RankerConfig struct {
	Backend       string        `mapstructure:"backend" validate:"omitempty,oneof=remote similarity"`
	URL           string        `mapstructure:"url" validate:"omitempty,url"`
	APIKey        string        `mapstructure:"api_key"`
	PositiveLabel string        `mapstructure:"positive_label"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type RoutingConfig struct {
	LengthThreshold       int                   `mapstructure:"length_threshold" validate:"gt=0"`
	ClassifierPath        string                `mapstructure:"classifier_path"`
	ModelsFile            string                `mapstructure:"models_file"`
	TasksFile             string                `mapstructure:"tasks_file"`
	Tasks                 []routing.TaskProfile `mapstructure:"tasks"`
	NumModelsToQuery      int                   `mapstructure:"num_models_to_query" validate:"gt=0"`
	NumCandidatesPerModel int                   `mapstructure:"num_candidates_per_model" validate:"gt=0"`
	TopKFusion            int                   `mapstructure:"top_k_fusion" validate:"gt=0"`
	MaxGenerationTokens   int                   `mapstructure:"max_generation_tokens" validate:"gt=0"`
	MaxParallel           int                   `mapstructure:"max_parallel" validate:"gte=0"`
	FuserModel            string                `mapstructure:"fuser_model"`
}

type ProviderConfig struct {
	ID      string            `mapstructure:"id" validate:"required"`
	Name    string            `mapstructure:"name"`
	Type    string            `mapstructure:"type" validate:"required"`
	APIKey  string            `mapstructure:"api_key"`
	BaseURL string            `mapstructure:"base_url"`
	Enabled bool              `mapstructure:"enabled"`
	Timeout time.Duration     `mapstructure:"timeout"`
	Config  map[string]string `mapstructure:"config"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig() (*Config, error) {
	// Load .env file if present
	_ = godotenv.Load()

	v := viper.New()

	if path := os.Getenv("CONFIG_FILE"); path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
	}

	setDefaults(v)

	// Environment Variables
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unable to decode into struct: %w", err)
	}

	// Resolve API Keys
	for i, p := range cfg.Providers {
		cfg.Providers[i].APIKey = resolveSecret(v, p.APIKey)
	}
	cfg.Embedding.APIKey = resolveSecret(v, cfg.Embedding.APIKey)
	cfg.Ranker.APIKey = resolveSecret(v, cfg.Ranker.APIKey)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.env", "development")
	v.SetDefault("server.allow_anonymous_apps", false)
	v.SetDefault("database.path", "omni.db")
	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("rate_limit.requests_per_second", 10.0)
	v.SetDefault("rate_limit.burst", 20)
	v.SetDefault("tracing.enabled", false)
	v.SetDefault("tracing.service_name", "omni-router")

	v.SetDefault("embedding.backend", "hashing")
	v.SetDefault("embedding.model", "text-embedding-3-small")
	v.SetDefault("embedding.dimensions", 384)
	v.SetDefault("embedding.timeout", 30*time.Second)

	v.SetDefault("ranker.positive_label", "LABEL_1")
	v.SetDefault("ranker.timeout", 30*time.Second)

	v.SetDefault("routing.length_threshold", routing.DefaultLengthThreshold)
	v.SetDefault("routing.num_models_to_query", 3)
	v.SetDefault("routing.num_candidates_per_model", 5)
	v.SetDefault("routing.top_k_fusion", 3)
	v.SetDefault("routing.max_generation_tokens", 50)
	v.SetDefault("routing.max_parallel", 4)
	v.SetDefault("routing.fuser_model", "gpt-4o-mini")
}

// resolveSecret expands the "ENV:NAME" indirection used for credentials.
func resolveSecret(v *viper.Viper, value string) string {
	if !strings.HasPrefix(value, "ENV:") {
		return value
	}
	envVar := strings.TrimPrefix(value, "ENV:")
	// Check process environment first (explicit override)
	if val := os.Getenv(envVar); val != "" {
		return val
	}
	return v.GetString(envVar)
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks struct tags and the cross-field rules tags cannot express.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	if c.Embedding.Backend == "openai" && c.Embedding.BaseURL == "" {
		return fmt.Errorf("invalid configuration: embedding.base_url is required for the openai backend")
	}

	seen := make(map[string]struct{}, len(c.Providers))
	for _, p := range c.Providers {
		if _, dup := seen[p.ID]; dup {
			return fmt.Errorf("invalid configuration: duplicate provider id %q", p.ID)
		}
		seen[p.ID] = struct{}{}
	}
	return nil
}

// TaskSet builds the task profiles from, in order of preference, the tasks file,
// the inline tasks, or the built-in defaults.
func (r RoutingConfig) TaskSet() (*routing.TaskSet, error) {
	if r.TasksFile != "" {
		return routing.LoadTaskFile(r.TasksFile)
	}
	return routing.NewTaskSet(r.Tasks)
}
