package config

import (
	"errors"
	"fmt"
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

// Config is decoded from flat environment keys; each section squashes its own keys.
type Config struct {
	Env       string `mapstructure:"ENV"`
	Port      int    `mapstructure:"PORT"`
	APIPrefix string `mapstructure:"API_PREFIX"`

	Database DatabaseConfig `mapstructure:",squash"`
	Redis    RedisConfig    `mapstructure:",squash"`
	JWT      JWTConfig      `mapstructure:",squash"`
	CORS     CORSConfig     `mapstructure:",squash"`
	Log      LogConfig      `mapstructure:",squash"`
	Grading  GradingConfig  `mapstructure:",squash"`
	Reports  ReportsConfig  `mapstructure:",squash"`
	Results  ResultsConfig  `mapstructure:",squash"`
}

type DatabaseConfig struct {
	Host         string `mapstructure:"DB_HOST"`
	Port         int    `mapstructure:"DB_PORT"`
	User         string `mapstructure:"DB_USER"`
	Password     string `mapstructure:"DB_PASSWORD"`
	Name         string `mapstructure:"DB_NAME"`
	SSLMode      string `mapstructure:"DB_SSL_MODE"`
	MaxOpenConns int    `mapstructure:"DB_MAX_OPEN_CONNS"`
	MaxIdleConns int    `mapstructure:"DB_MAX_IDLE_CONNS"`
}

type RedisConfig struct {
	Host     string `mapstructure:"REDIS_HOST"`
	Port     int    `mapstructure:"REDIS_PORT"`
	Password string `mapstructure:"REDIS_PASSWORD"`
	DB       int    `mapstructure:"REDIS_DB"`
}

// JWTConfig holds the secret shared with the issuing application. Tokens are only verified here.
type JWTConfig struct {
	Secret string `mapstructure:"JWT_SECRET"`
}

// CORSConfig keeps the raw comma separated list; AllowedOrigins is derived from it.
type CORSConfig struct {
	Origins        string   `mapstructure:"ALLOWED_ORIGINS"`
	AllowedOrigins []string `mapstructure:"-"`
}

type LogConfig struct {
	Level  string `mapstructure:"LOG_LEVEL"`
	Format string `mapstructure:"LOG_FORMAT"`
}

// GradingConfig carries the raw grading policy knobs read from the environment.
type GradingConfig struct {
	BestN        int    `mapstructure:"GRADING_BEST_N"`
	Selection    string `mapstructure:"GRADING_SELECTION"`
	Padding      string `mapstructure:"GRADING_PADDING"`
	RankKey      string `mapstructure:"GRADING_RANK_KEY"`
	PassDivision string `mapstructure:"GRADING_PASS_DIVISION"`
}

// ReportsConfig configures report card batches.
type ReportsConfig struct {
	StorageDir        string        `mapstructure:"REPORTS_STORAGE_DIR"`
	SignedURLSecret   string        `mapstructure:"REPORTS_SIGNED_URL_SECRET"`
	SignedURLTTL      time.Duration `mapstructure:"REPORTS_SIGNED_URL_TTL"`
	CleanupInterval   time.Duration `mapstructure:"REPORTS_CLEANUP_INTERVAL"`
	WorkerConcurrency int           `mapstructure:"REPORTS_WORKER_CONCURRENCY"`
	WorkerRetries     int           `mapstructure:"REPORTS_WORKER_RETRIES"`
	BatchWorkers      int           `mapstructure:"REPORTS_BATCH_WORKERS"`
	RenderTimeout     time.Duration `mapstructure:"REPORTS_RENDER_TIMEOUT"`
}

// ResultsConfig governs the class results cache.
type ResultsConfig struct {
	CacheEnabled bool          `mapstructure:"ENABLE_RESULTS_CACHE"`
	CacheTTL     time.Duration `mapstructure:"RESULTS_CACHE_TTL"`
}

var defaults = map[string]interface{}{
	"ENV":        EnvDevelopment,
	"PORT":       8080,
	"API_PREFIX": "/api/v1",

	"DB_HOST":           "localhost",
	"DB_PORT":           5432,
	"DB_USER":           "postgres",
	"DB_PASSWORD":       "postgres",
	"DB_NAME":           "sma_results",
	"DB_SSL_MODE":       "disable",
	"DB_MAX_OPEN_CONNS": 10,
	"DB_MAX_IDLE_CONNS": 5,

	"REDIS_HOST":     "localhost",
	"REDIS_PORT":     6379,
	"REDIS_PASSWORD": "",
	"REDIS_DB":       0,

	"JWT_SECRET":      "dev_secret",
	"ALLOWED_ORIGINS": "",
	"LOG_LEVEL":       "info",
	"LOG_FORMAT":      "json",

	"GRADING_BEST_N":        7,
	"GRADING_SELECTION":     "best",
	"GRADING_PADDING":       "none",
	"GRADING_RANK_KEY":      "points",
	"GRADING_PASS_DIVISION": "IV",

	"REPORTS_STORAGE_DIR":        "./report-cards",
	"REPORTS_SIGNED_URL_SECRET":  "dev_reports_secret",
	"REPORTS_SIGNED_URL_TTL":     "24h",
	"REPORTS_CLEANUP_INTERVAL":   "1h",
	"REPORTS_WORKER_CONCURRENCY": 1,
	"REPORTS_WORKER_RETRIES":     3,
	"REPORTS_BATCH_WORKERS":      4,
	"REPORTS_RENDER_TIMEOUT":     "30s",

	"ENABLE_RESULTS_CACHE": true,
	"RESULTS_CACHE_TTL":    "10m",
}

// Load reads .env when present, then the process environment, over the defaults.
func Load() (*Config, error) {
	_ = godotenv.Load()

	v := newViper()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !errors.Is(err, os.ErrNotExist) {
			return nil, err
		}
	}
	return decode(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}

	cfg.CORS.AllowedOrigins = splitAndTrim(cfg.CORS.Origins)
	cfg.Grading.Selection = strings.ToLower(strings.TrimSpace(cfg.Grading.Selection))
	cfg.Grading.Padding = strings.ToLower(strings.TrimSpace(cfg.Grading.Padding))
	cfg.Grading.RankKey = strings.ToLower(strings.TrimSpace(cfg.Grading.RankKey))
	cfg.Grading.PassDivision = strings.ToUpper(strings.TrimSpace(cfg.Grading.PassDivision))

	if cfg.Env == EnvProduction && (cfg.JWT.Secret == defaults["JWT_SECRET"] || cfg.Reports.SignedURLSecret == defaults["REPORTS_SIGNED_URL_SECRET"]) {
		return nil, errors.New("production requires JWT_SECRET and REPORTS_SIGNED_URL_SECRET")
	}
	return &cfg, nil
}

func splitAndTrim(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
