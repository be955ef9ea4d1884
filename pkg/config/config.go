package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Config struct {
	Env            string
	Port           int
	APIPrefix      string
	RequestTimeout time.Duration

	Database   DatabaseConfig
	Redis      RedisConfig
	JWT        JWTConfig
	CORS       CORSConfig
	Log        LogConfig
	LLM        LLMConfig
	Storage    StorageConfig
	Events     EventsConfig
	Telemetry  TelemetryConfig
	Dashboard  DashboardConfig
	Evaluation EvaluationConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret     string
	Expiration time.Duration
	Issuer     string
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LLMConfig points the goal evaluator at an OpenAI-compatible chat completion API.
type LLMConfig struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
}

// StorageConfig configures the S3 bucket holding teaching materials and chat images.
type StorageConfig struct {
	Endpoint         string
	Region           string
	Bucket           string
	AccessKey        string
	SecretKey        string
	ForcePathStyle   bool
	PresignTTL       time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// EventsConfig enables NATS domain events. An empty URL disables publishing.
type EventsConfig struct {
	URL           string
	SubjectPrefix string
}

// TelemetryConfig enables OTLP trace export. An empty endpoint disables tracing.
type TelemetryConfig struct {
	OTLPEndpoint string
	ServiceName  string
}

// DashboardConfig governs dashboard exposure and cache tuning.
type DashboardConfig struct {
	Enabled  bool
	CacheTTL time.Duration
}

// EvaluationConfig tunes the background goal evaluation worker.
type EvaluationConfig struct {
	Workers       int
	Retries       int
	RetryDelay    time.Duration
	SweepSchedule string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.RequestTimeout = parseDuration(v.GetString("REQUEST_TIMEOUT"), 30*time.Second)

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:     v.GetString("JWT_SECRET"),
		Expiration: parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		Issuer:     v.GetString("JWT_ISSUER"),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.LLM = LLMConfig{
		APIKey:     v.GetString("LLM_API_KEY"),
		BaseURL:    v.GetString("LLM_BASE_URL"),
		Model:      v.GetString("LLM_MODEL"),
		Timeout:    parseDuration(v.GetString("LLM_TIMEOUT"), 20*time.Second),
		MaxRetries: v.GetInt("LLM_MAX_RETRIES"),
	}

	maxMaterialSize := v.GetInt64("MATERIALS_MAX_FILE_SIZE")
	if maxMaterialSize <= 0 {
		maxMaterialSize = 20 * 1024 * 1024
	}
	cfg.Storage = StorageConfig{
		Endpoint:         v.GetString("S3_ENDPOINT"),
		Region:           v.GetString("S3_REGION"),
		Bucket:           v.GetString("S3_BUCKET"),
		AccessKey:        v.GetString("S3_ACCESS_KEY"),
		SecretKey:        v.GetString("S3_SECRET_KEY"),
		ForcePathStyle:   v.GetBool("S3_FORCE_PATH_STYLE"),
		PresignTTL:       parseDuration(v.GetString("S3_PRESIGN_TTL"), 15*time.Minute),
		MaxFileSizeBytes: maxMaterialSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("MATERIALS_ALLOWED_MIME_TYPES")),
	}

	cfg.Events = EventsConfig{
		URL:           v.GetString("NATS_URL"),
		SubjectPrefix: v.GetString("NATS_SUBJECT_PREFIX"),
	}

	cfg.Telemetry = TelemetryConfig{
		OTLPEndpoint: v.GetString("OTEL_EXPORTER_OTLP_ENDPOINT"),
		ServiceName:  v.GetString("OTEL_SERVICE_NAME"),
	}

	cfg.Dashboard = DashboardConfig{
		Enabled:  v.GetBool("ENABLE_DASHBOARD"),
		CacheTTL: parseDuration(v.GetString("DASHBOARD_CACHE_TTL"), 5*time.Minute),
	}

	cfg.Evaluation = EvaluationConfig{
		Workers:       v.GetInt("EVALUATION_WORKERS"),
		Retries:       v.GetInt("EVALUATION_RETRIES"),
		RetryDelay:    parseDuration(v.GetString("EVALUATION_RETRY_DELAY"), time.Minute),
		SweepSchedule: v.GetString("EVALUATION_SWEEP_SCHEDULE"),
	}

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "qbot")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_HOST", "")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("JWT_ISSUER", "qbot-api")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LLM_API_KEY", "")
	v.SetDefault("LLM_BASE_URL", "https://api.openai.com/v1")
	v.SetDefault("LLM_MODEL", "gpt-4o-mini")
	v.SetDefault("LLM_TIMEOUT", "20s")
	v.SetDefault("LLM_MAX_RETRIES", 3)

	v.SetDefault("S3_ENDPOINT", "")
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_BUCKET", "qbot-materials")
	v.SetDefault("S3_FORCE_PATH_STYLE", true)
	v.SetDefault("S3_PRESIGN_TTL", "15m")
	v.SetDefault("MATERIALS_MAX_FILE_SIZE", 20*1024*1024)
	v.SetDefault("MATERIALS_ALLOWED_MIME_TYPES", "application/pdf,image/png,image/jpeg,image/webp,text/plain")

	v.SetDefault("NATS_URL", "")
	v.SetDefault("NATS_SUBJECT_PREFIX", "qbot")

	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_SERVICE_NAME", "qbot-api")

	v.SetDefault("ENABLE_DASHBOARD", true)
	v.SetDefault("DASHBOARD_CACHE_TTL", "5m")

	v.SetDefault("EVALUATION_WORKERS", 2)
	v.SetDefault("EVALUATION_RETRIES", 3)
	v.SetDefault("EVALUATION_RETRY_DELAY", "1m")
	v.SetDefault("EVALUATION_SWEEP_SCHEDULE", "@every 10m")
}

func isMissingFile(err error) bool {
	return errors.Is(err, os.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
