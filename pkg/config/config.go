package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/joho/godotenv"
)

// Config holds all application configuration
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Database      DatabaseConfig      `yaml:"database"`
	Observability ObservabilityConfig `yaml:"observability"`
	Gemini        GeminiConfig        `yaml:"gemini"`
	Extraction    ExtractionConfig    `yaml:"extraction"`
	Redaction     RedactionConfig     `yaml:"redaction"`
	Storage       StorageConfig       `yaml:"storage"`
	NATS          NATSConfig          `yaml:"nats"`
	Notification  NotificationConfig  `yaml:"notification"`
	Cron          CronConfig          `yaml:"cron"`
}

type ServerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	BaseURL  string `yaml:"base_url"`
	LogLevel string `yaml:"log_level"`
	Currency string `yaml:"currency"`
}

type DatabaseConfig struct {
	Enabled  bool   `yaml:"enabled"`
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
	SSLMode  string `yaml:"sslmode"`
}

type ObservabilityConfig struct {
	MetricsEnabled bool `yaml:"metrics_enabled"`
	MetricsPort    int  `yaml:"metrics_port"`
}

type GeminiConfig struct {
	APIKey        string `yaml:"api_key"`
	PrimaryModel  string `yaml:"primary_model"`
	FallbackModel string `yaml:"fallback_model"`
}

type ExtractionConfig struct {
	PagesPerChunk      int           `yaml:"pages_per_chunk"`
	BatchLimit         int           `yaml:"batch_limit"`
	MaxTurns           int           `yaml:"max_turns"`
	MaxEmptyTurns      int           `yaml:"max_empty_turns"`
	ContinueOnProgress bool          `yaml:"continue_on_progress"`
	PollInterval       time.Duration `yaml:"poll_interval"`
	PollAttempts       int           `yaml:"poll_attempts"`
	TurnTimeout        time.Duration `yaml:"turn_timeout"`
	RetryDelay         time.Duration `yaml:"retry_delay"`
	RequestsPerMinute  float64       `yaml:"requests_per_minute"`
}

type RedactionConfig struct {
	Debug       bool   `yaml:"debug"`
	Rasterize   bool   `yaml:"rasterize"`
	DPI         int    `yaml:"dpi"`
	PdftoppmBin string `yaml:"pdftoppm_bin"`
	Concurrency int    `yaml:"concurrency"`
}

type StorageConfig struct {
	Type      string `yaml:"type"`
	LocalPath string `yaml:"local_path"`
}

type NATSConfig struct {
	URL            string `yaml:"url"`
	Token          string `yaml:"token"`
	RequestSubject string `yaml:"request_subject"`
	EventSubject   string `yaml:"event_subject"`
}

type NotificationConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	FromEmail    string `yaml:"from_email"`
	DownloadURL  string `yaml:"download_url"`
}

type CronConfig struct {
	StaleJobSchedule string        `yaml:"stale_job_schedule"`
	StaleJobAfter    time.Duration `yaml:"stale_job_after"`
}

// Defaults returns the configuration used when nothing is set.
func Defaults() *Config {
	return &Config{
		Server: ServerConfig{
			Host:     "0.0.0.0",
			Port:     8080,
			BaseURL:  "http://localhost:8080",
			LogLevel: "info",
			Currency: "EUR",
		},
		Database: DatabaseConfig{
			Enabled:  true,
			Host:     "localhost",
			Port:     5432,
			User:     "postgres",
			Password: "postgres",
			Database: "bankstatement2csv",
			SSLMode:  "disable",
		},
		Observability: ObservabilityConfig{
			MetricsEnabled: true,
			MetricsPort:    9090,
		},
		Gemini: GeminiConfig{
			PrimaryModel:  "gemini-2.5-flash",
			FallbackModel: "gemini-2.0-flash",
		},
		Extraction: ExtractionConfig{
			PagesPerChunk:      5,
			BatchLimit:         200,
			MaxTurns:           200,
			MaxEmptyTurns:      2,
			ContinueOnProgress: true,
			PollInterval:       2 * time.Second,
			PollAttempts:       60,
			TurnTimeout:        59*time.Minute + 59*time.Second,
			RetryDelay:         5 * time.Second,
		},
		Redaction: RedactionConfig{
			Rasterize:   true,
			DPI:         200,
			PdftoppmBin: "pdftoppm",
			Concurrency: 4,
		},
		Storage: StorageConfig{
			Type:      "local",
			LocalPath: "./artifacts",
		},
		NATS: NATSConfig{
			RequestSubject: "statements.process",
			EventSubject:   "statements.events",
		},
		Cron: CronConfig{
			StaleJobSchedule: "*/15 * * * *",
			StaleJobAfter:    2 * time.Hour,
		},
	}
}

// Load reads configuration from, in increasing precedence: defaults, the
// YAML file named by CONFIG_FILE, and environment variables (a .env file
// in the working directory is loaded first when present).
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := Defaults()
	if path := os.Getenv("CONFIG_FILE"); path != "" {
		if err := loadFile(path, cfg); err != nil {
			return nil, err
		}
	}
	applyEnv(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func loadFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to parse config file %s: %w", path, err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	s := &cfg.Server
	s.Host = getEnv("SERVER_HOST", s.Host)
	s.Port = getEnvAsInt("SERVER_PORT", s.Port)
	s.BaseURL = getEnv("BASE_URL", s.BaseURL)
	s.LogLevel = getEnv("LOG_LEVEL", s.LogLevel)
	s.Currency = getEnv("STATEMENT_CURRENCY", s.Currency)

	d := &cfg.Database
	d.Enabled = getEnvAsBool("DATABASE_ENABLED", d.Enabled)
	d.Host = getEnv("POSTGRES_HOST", d.Host)
	d.Port = getEnvAsInt("POSTGRES_PORT", d.Port)
	d.User = getEnv("POSTGRES_USER", d.User)
	d.Password = getEnv("POSTGRES_PASSWORD", d.Password)
	d.Database = getEnv("POSTGRES_DB", d.Database)
	d.SSLMode = getEnv("POSTGRES_SSLMODE", d.SSLMode)

	o := &cfg.Observability
	o.MetricsEnabled = getEnvAsBool("METRICS_ENABLED", o.MetricsEnabled)
	o.MetricsPort = getEnvAsInt("METRICS_PORT", o.MetricsPort)

	g := &cfg.Gemini
	g.APIKey = getEnv("GEMINI_API_KEY", g.APIKey)
	g.PrimaryModel = getEnv("GEMINI_MODEL", g.PrimaryModel)
	g.FallbackModel = getEnv("GEMINI_FALLBACK_MODEL", g.FallbackModel)

	e := &cfg.Extraction
	e.PagesPerChunk = getEnvAsInt("EXTRACTION_PAGES_PER_CHUNK", e.PagesPerChunk)
	e.BatchLimit = getEnvAsInt("EXTRACTION_BATCH_LIMIT", e.BatchLimit)
	e.MaxTurns = getEnvAsInt("EXTRACTION_MAX_TURNS", e.MaxTurns)
	e.MaxEmptyTurns = getEnvAsInt("EXTRACTION_MAX_EMPTY_TURNS", e.MaxEmptyTurns)
	e.ContinueOnProgress = getEnvAsBool("EXTRACTION_CONTINUE_ON_PROGRESS", e.ContinueOnProgress)
	e.PollInterval = getEnvAsDuration("EXTRACTION_POLL_INTERVAL", e.PollInterval)
	e.PollAttempts = getEnvAsInt("EXTRACTION_POLL_ATTEMPTS", e.PollAttempts)
	e.TurnTimeout = getEnvAsDuration("EXTRACTION_TURN_TIMEOUT", e.TurnTimeout)
	e.RetryDelay = getEnvAsDuration("EXTRACTION_RETRY_DELAY", e.RetryDelay)
	e.RequestsPerMinute = getEnvAsFloat("EXTRACTION_REQUESTS_PER_MINUTE", e.RequestsPerMinute)

	r := &cfg.Redaction
	r.Debug = getEnvAsBool("REDACTION_DEBUG", r.Debug)
	r.Rasterize = getEnvAsBool("REDACTION_RASTERIZE", r.Rasterize)
	r.DPI = getEnvAsInt("REDACTION_DPI", r.DPI)
	r.PdftoppmBin = getEnv("PDFTOPPM_BIN", r.PdftoppmBin)
	r.Concurrency = getEnvAsInt("REDACTION_CONCURRENCY", r.Concurrency)

	st := &cfg.Storage
	st.Type = getEnv("STORAGE_TYPE", st.Type)
	st.LocalPath = getEnv("STORAGE_LOCAL_PATH", st.LocalPath)

	n := &cfg.NATS
	n.URL = getEnv("NATS_URL", n.URL)
	n.Token = getEnv("NATS_TOKEN", n.Token)
	n.RequestSubject = getEnv("NATS_REQUEST_SUBJECT", n.RequestSubject)
	n.EventSubject = getEnv("NATS_EVENT_SUBJECT", n.EventSubject)

	nt := &cfg.Notification
	nt.ResendAPIKey = getEnv("RESEND_API_KEY", nt.ResendAPIKey)
	nt.FromEmail = getEnv("RESEND_FROM_EMAIL", nt.FromEmail)
	nt.DownloadURL = getEnv("DOWNLOAD_BASE_URL", nt.DownloadURL)

	c := &cfg.Cron
	c.StaleJobSchedule = getEnv("CRON_STALE_JOB_SCHEDULE", c.StaleJobSchedule)
	c.StaleJobAfter = getEnvAsDuration("CRON_STALE_JOB_AFTER", c.StaleJobAfter)
}

// Validate checks values every command relies on.
func (c *Config) Validate() error {
	var errs []error
	if c.Extraction.PagesPerChunk <= 0 {
		errs = append(errs, errors.New("EXTRACTION_PAGES_PER_CHUNK must be positive"))
	}
	if c.Extraction.BatchLimit <= 0 {
		errs = append(errs, errors.New("EXTRACTION_BATCH_LIMIT must be positive"))
	}
	if c.Extraction.MaxTurns <= 0 || c.Extraction.MaxEmptyTurns <= 0 {
		errs = append(errs, errors.New("EXTRACTION_MAX_TURNS and EXTRACTION_MAX_EMPTY_TURNS must be positive"))
	}
	if c.Extraction.RequestsPerMinute < 0 {
		errs = append(errs, errors.New("EXTRACTION_REQUESTS_PER_MINUTE must not be negative"))
	}
	if c.Gemini.PrimaryModel == "" {
		errs = append(errs, errors.New("GEMINI_MODEL is required"))
	}
	return errors.Join(errs...)
}

// RequireGemini is checked by commands that call the extraction model.
func (c *Config) RequireGemini() error {
	if c.Gemini.APIKey == "" {
		return errors.New("GEMINI_API_KEY is required")
	}
	return nil
}

// DSN returns the database connection string
func (c *DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.Database, c.SSLMode,
	)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := os.Getenv(key)
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if value, err := strconv.ParseFloat(valueStr, 64); err == nil {
		return value
	}
	return defaultValue
}
