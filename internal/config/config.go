package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	Database    DatabaseConfig    `mapstructure:"database"`
	Storage     StorageConfig     `mapstructure:"storage"`
	Oracle      OracleConfig      `mapstructure:"oracle"`
	Transcriber TranscriberConfig `mapstructure:"transcriber"`
	Language    LanguageConfig    `mapstructure:"language"`
	Notify      NotifyConfig      `mapstructure:"notify"`
	Lock        LockConfig        `mapstructure:"lock"`
	Pipeline    PipelineConfig    `mapstructure:"pipeline"`
	Quality     QualityConfig     `mapstructure:"quality"`
	Retry       RetryConfig       `mapstructure:"retry"`
	QA          QAConfig          `mapstructure:"qa"`
	Metrics     MetricsConfig     `mapstructure:"metrics"`
	Log         LogConfig         `mapstructure:"log"`
}

type ServerConfig struct {
	Port int        `mapstructure:"port"`
	Mode string     `mapstructure:"mode"`
	CORS CORSConfig `mapstructure:"cors"`
}

type CORSConfig struct {
	AllowedOrigins  []string `mapstructure:"allowed_origins"`
	AllowAllOrigins bool     `mapstructure:"allow_all_origins"`
}

type DatabaseConfig struct {
	Driver          string        `mapstructure:"driver"` // sqlite or postgres
	Path            string        `mapstructure:"path"`
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	AutoMigrate     bool          `mapstructure:"auto_migrate"`
	LogLevel        string        `mapstructure:"log_level"`
}

// DSN returns the driver-specific connection string.
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "postgres" {
		return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
			c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
	}
	return c.Path
}

type StorageConfig struct {
	Type      string `mapstructure:"type"` // s3, r2, s3compatible, memory, local
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	UseSSL    bool   `mapstructure:"use_ssl"`
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	PublicURL string `mapstructure:"public_url"`
	LocalPath string `mapstructure:"local_path"`
}

type OracleConfig struct {
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type TranscriberConfig struct {
	Model   string        `mapstructure:"model"`
	APIKey  string        `mapstructure:"api_key"`
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type LanguageConfig struct {
	BaseURL  string        `mapstructure:"base_url"`
	Language string        `mapstructure:"language"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	Slack   SlackConfig   `mapstructure:"slack"`
	Webhook WebhookConfig `mapstructure:"webhook"`
	SMTP    SMTPConfig    `mapstructure:"smtp"`
}

type SlackConfig struct {
	BotToken string `mapstructure:"bot_token"`
}

type WebhookConfig struct {
	Timeout time.Duration `mapstructure:"timeout"`
	Secret  string        `mapstructure:"secret"`
}

type SMTPConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Username string `mapstructure:"username"`
	Password string `mapstructure:"password"`
	From     string `mapstructure:"from"`
}

type LockConfig struct {
	Backend  string        `mapstructure:"backend"` // memory or redis
	RedisURL string        `mapstructure:"redis_url"`
	TTL      time.Duration `mapstructure:"ttl"`
}

type PipelineConfig struct {
	StepTimeout time.Duration `mapstructure:"step_timeout"`
	TemplateRef string        `mapstructure:"template_ref"`
}

type RetryConfig struct {
	MaxAttempts int           `mapstructure:"max_attempts"` // 0 means unlimited
	Backoff     time.Duration `mapstructure:"backoff"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
	File   string `mapstructure:"file"` // optional rotating log file
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.cors.allow_all_origins", true)
	v.SetDefault("server.cors.allowed_origins", []string{})
	v.SetDefault("database.driver", "sqlite")
	v.SetDefault("database.path", "./data/recap.db")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.log_level", "warn")
	v.SetDefault("storage.type", "memory")
	v.SetDefault("storage.bucket", "recap-reports")
	v.SetDefault("storage.local_path", "./data/reports")
	v.SetDefault("oracle.model", "gpt-4o-mini")
	v.SetDefault("oracle.base_url", "https://api.openai.com/v1")
	v.SetDefault("oracle.timeout", 90*time.Second)
	v.SetDefault("transcriber.model", "whisper-1")
	v.SetDefault("transcriber.base_url", "https://api.openai.com/v1")
	v.SetDefault("transcriber.timeout", 5*time.Minute)
	v.SetDefault("language.base_url", "https://api.languagetool.org/v2")
	v.SetDefault("language.language", "en-US")
	v.SetDefault("language.timeout", 30*time.Second)
	v.SetDefault("notify.webhook.timeout", 10*time.Second)
	v.SetDefault("notify.smtp.port", 587)
	v.SetDefault("lock.backend", "memory")
	v.SetDefault("lock.ttl", 15*time.Minute)
	v.SetDefault("pipeline.step_timeout", 2*time.Minute)
	v.SetDefault("pipeline.template_ref", "meeting-report/v1")
	// retries are operator-gated; no cap and no cool-down unless configured
	v.SetDefault("retry.max_attempts", 0)
	v.SetDefault("retry.backoff", time.Duration(0))
	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.path", "/metrics")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("log.file", "")
	setQualityDefaults(v)
	setQADefaults(v)
}

func Load(configPath string) (*Config, error) {
	// Load .env file if exists
	_ = godotenv.Load()

	v := viper.New()

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath("./configs")
		v.AddConfigPath(".")
	}

	// Enable environment variable override
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	// Bind environment variables explicitly for sensitive data
	v.BindEnv("database.password", "DATABASE_PASSWORD")
	v.BindEnv("storage.access_key", "STORAGE_ACCESS_KEY")
	v.BindEnv("storage.secret_key", "STORAGE_SECRET_KEY")
	v.BindEnv("oracle.api_key", "OPENAI_API_KEY")
	v.BindEnv("oracle.base_url", "OPENAI_BASE_URL")
	v.BindEnv("oracle.model", "ORACLE_MODEL")
	v.BindEnv("transcriber.api_key", "OPENAI_API_KEY")
	v.BindEnv("notify.slack.bot_token", "SLACK_BOT_TOKEN")
	v.BindEnv("notify.smtp.password", "SMTP_PASSWORD")
	v.BindEnv("lock.redis_url", "REDIS_URL")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks the policy sections that gate delivery decisions.
func (c *Config) Validate() error {
	if err := c.Quality.Validate(); err != nil {
		return err
	}
	if err := c.QA.Validate(); err != nil {
		return err
	}
	if c.Retry.MaxAttempts < 0 {
		return fmt.Errorf("retry: max_attempts must not be negative")
	}
	if c.Retry.Backoff < 0 {
		return fmt.Errorf("retry: backoff must not be negative")
	}
	switch c.Lock.Backend {
	case "memory", "":
	case "redis":
		if c.Lock.RedisURL == "" {
			return fmt.Errorf("lock: redis_url is required for the redis backend")
		}
	default:
		return fmt.Errorf("lock: unknown backend %q", c.Lock.Backend)
	}
	return nil
}
