// Package config loads the engine configuration from an optional YAML file,
// a .env file and FLOATSHARE_* environment variables.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g. FLOATSHARE_LLM_MODEL.
const EnvPrefix = "FLOATSHARE"

// Config is the complete engine configuration.
type Config struct {
	LLM         LLMConfig         `mapstructure:"llm"`
	SEC         SECConfig         `mapstructure:"sec"`
	Methodology MethodologyConfig `mapstructure:"methodology"`
	Prompts     PromptsConfig     `mapstructure:"prompts"`
	Cache       CacheConfig       `mapstructure:"cache"`
	Assets      AssetsConfig      `mapstructure:"assets"`
	Output      OutputConfig      `mapstructure:"output"`
	Batch       BatchConfig       `mapstructure:"batch"`
	Log         LogConfig         `mapstructure:"log"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`

	GeminiAPIKey   string `mapstructure:"gemini_api_key"`
	DeepSeekAPIKey string `mapstructure:"deepseek_api_key"`
	QwenAPIKey     string `mapstructure:"qwen_api_key"`
	DatabaseURL    string `mapstructure:"database_url"`
}

type LLMConfig struct {
	Provider string        `mapstructure:"provider" validate:"oneof=gemini gemini-legacy deepseek qwen"`
	Model    string        `mapstructure:"model"`
	Timeout  time.Duration `mapstructure:"timeout" validate:"gt=0"`
}

type SECConfig struct {
	UserAgent    string        `mapstructure:"user_agent" validate:"required"`
	PaceInterval time.Duration `mapstructure:"pace_interval" validate:"gte=0"`
}

type MethodologyConfig struct {
	// Document is a local path or URL.
	Document            string  `mapstructure:"document" validate:"required"`
	DefaultThresholdPct float64 `mapstructure:"default_threshold_pct" validate:"gt=0,lte=100"`
}

type PromptsConfig struct {
	// Dir overrides or extends the built-in prompt library.
	Dir string `mapstructure:"dir"`
}

type CacheConfig struct {
	Backend string `mapstructure:"backend" validate:"oneof=file postgres memory"`
	Dir     string `mapstructure:"dir"`
}

type AssetsConfig struct {
	Dir string `mapstructure:"dir" validate:"required"`
}

type OutputConfig struct {
	Dir      string `mapstructure:"dir" validate:"required"`
	XLSX     bool   `mapstructure:"xlsx"`
	Postgres bool   `mapstructure:"postgres"`
}

type BatchConfig struct {
	Workers int `mapstructure:"workers" validate:"gte=1,lte=64"`
}

type LogConfig struct {
	Level  string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	Format string `mapstructure:"format" validate:"oneof=console json"`
}

type MetricsConfig struct {
	// Addr serves /metrics during batch runs when set, e.g. ":9090".
	Addr string `mapstructure:"addr"`
}

// NeedsDatabase reports whether any configured component uses Postgres.
func (c *Config) NeedsDatabase() bool {
	return c.Cache.Backend == "postgres" || c.Output.Postgres
}

// Load reads .env (if present), then the YAML file at path (or
// floatshare.yaml in . or ./config when path is empty), then environment
// overrides, and validates the result.
func Load(path string) (*Config, error) {
	// .env is optional; real environment variables win over it.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	bindAliases(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config file %s: %w", path, err)
		}
	} else {
		v.SetConfigName("floatshare")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./config")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("error reading config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("llm.provider", "gemini")
	v.SetDefault("llm.model", "")
	v.SetDefault("llm.timeout", 5*time.Minute)

	v.SetDefault("sec.user_agent", "sp1500-float research contact@example.com")
	v.SetDefault("sec.pace_interval", time.Second)

	v.SetDefault("methodology.document", "./doc_assets/sp_float.pdf")
	v.SetDefault("methodology.default_threshold_pct", 5.0)

	v.SetDefault("prompts.dir", "")

	v.SetDefault("cache.backend", "file")
	v.SetDefault("cache.dir", ".cache/extractions")

	v.SetDefault("assets.dir", "doc_assets")

	v.SetDefault("output.dir", ".")
	v.SetDefault("output.xlsx", false)
	v.SetDefault("output.postgres", false)

	v.SetDefault("batch.workers", 1)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")

	v.SetDefault("metrics.addr", "")

	v.SetDefault("gemini_api_key", "")
	v.SetDefault("deepseek_api_key", "")
	v.SetDefault("qwen_api_key", "")
	v.SetDefault("database_url", "")
}

// bindAliases accepts the conventional unprefixed names for secrets and the
// methodology path alongside the FLOATSHARE_ forms.
func bindAliases(v *viper.Viper) {
	_ = v.BindEnv("gemini_api_key", EnvPrefix+"_GEMINI_API_KEY", "GEMINI_API_KEY")
	_ = v.BindEnv("deepseek_api_key", EnvPrefix+"_DEEPSEEK_API_KEY", "DEEPSEEK_API_KEY")
	_ = v.BindEnv("qwen_api_key", EnvPrefix+"_QWEN_API_KEY", "DASHSCOPE_API_KEY")
	_ = v.BindEnv("database_url", EnvPrefix+"_DATABASE_URL", "DATABASE_URL")
	_ = v.BindEnv("methodology.document", EnvPrefix+"_METHODOLOGY_DOCUMENT", "SP_DOCUMENT_PATH")
}

var validate = validator.New()

// Validate checks field constraints and cross-field requirements.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, formatFieldError(fe))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.NeedsDatabase() && c.DatabaseURL == "" {
		return errors.New("invalid config: database_url is required when cache.backend is postgres or output.postgres is set")
	}
	return nil
}

func formatFieldError(fe validator.FieldError) string {
	field := fe.Namespace()
	if i := strings.Index(field, "."); i >= 0 {
		field = field[i+1:]
	}
	switch fe.Tag() {
	case "required":
		return field + " is required"
	case "oneof":
		return fmt.Sprintf("%s must be one of [%s], got %q", field, fe.Param(), fe.Value())
	default:
		return fmt.Sprintf("%s fails %s=%s (got %v)", field, fe.Tag(), fe.Param(), fe.Value())
	}
}
