package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all configuration for the callscore server.
type Config struct {
	Server      ServerConfig
	Database    DatabaseConfig
	Redis       RedisConfig
	Analysis    AnalysisConfig
	Classifier  ClassifierConfig
	Transcriber TranscriberConfig
	Metrics     MetricsConfig
}

type ServerConfig struct {
	Port               int
	Env                string
	RateLimitPerMinute int
	// TrustProxy takes client addresses from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

type DatabaseConfig struct {
	URL             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
	MigrationsDir   string
}

type RedisConfig struct {
	URL           string
	AssessmentTTL time.Duration
	JobStatusTTL  time.Duration
}

// AnalysisConfig controls the assessment pipeline itself.
type AnalysisConfig struct {
	LexiconPath       string
	DefaultLanguage   string
	UseFinalSentiment bool
	BatchConcurrency  int
}

// ClassifierConfig selects the optional ML classifiers. "none" keeps the
// component purely rule-based.
type ClassifierConfig struct {
	Sentiment  string
	Resolution string
	Timeout    time.Duration
	OpenAI     OpenAIConfig
	Emotion    EmotionConfig
}

type OpenAIConfig struct {
	APIKey          string
	BaseURL         string
	SentimentModel  string
	ResolutionModel string
}

type EmotionConfig struct {
	URL   string
	Token string
}

// TranscriberConfig lists transcription backends in fallback order.
type TranscriberConfig struct {
	Providers  []string
	Timeout    time.Duration
	AssemblyAI AssemblyAIConfig
	HTTP       HTTPASRConfig
}

type AssemblyAIConfig struct {
	APIKey string
}

type HTTPASRConfig struct {
	URL string
}

type MetricsConfig struct {
	Enabled     bool
	ServiceName string
}

var (
	validSentimentProviders   = map[string]bool{"none": true, "openai": true, "emotion-http": true}
	validResolutionProviders  = map[string]bool{"none": true, "openai": true}
	validTranscriberProviders = map[string]bool{"assemblyai": true, "http": true}
)

// Load reads configuration from environment variables and returns a validated Config.
// Returns an error with a descriptive message if any required value is missing or invalid.
func Load() (*Config, error) {
	cfg := &Config{
		Server: ServerConfig{
			Port:               envInt("CALLSCORE_PORT", 8080),
			Env:                envString("CALLSCORE_ENV", "development"),
			RateLimitPerMinute: envInt("CALLSCORE_RATE_LIMIT_PER_MINUTE", 100),
		},
		Database: DatabaseConfig{
			URL:             os.Getenv("DATABASE_URL"),
			MaxOpenConns:    envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns:    envInt("DATABASE_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime: envDuration("DATABASE_CONN_MAX_LIFETIME", 5*time.Minute),
			MigrationsDir:   envString("DATABASE_MIGRATIONS_DIR", "migrations"),
		},
		Redis: RedisConfig{
			URL:           os.Getenv("REDIS_URL"),
			AssessmentTTL: envDuration("REDIS_ASSESSMENT_TTL", 24*time.Hour),
			JobStatusTTL:  envDuration("REDIS_JOB_STATUS_TTL", 30*time.Minute),
		},
		Analysis: AnalysisConfig{
			LexiconPath:       os.Getenv("LEXICON_PATH"),
			DefaultLanguage:   strings.ToLower(envString("DEFAULT_LANGUAGE", "ru")),
			UseFinalSentiment: envBool("ANALYSIS_FINAL_SENTIMENT", false),
			BatchConcurrency:  envInt("ANALYSIS_BATCH_CONCURRENCY", 4),
		},
		Classifier: ClassifierConfig{
			Sentiment:  strings.ToLower(envString("SENTIMENT_PROVIDER", "none")),
			Resolution: strings.ToLower(envString("RESOLUTION_PROVIDER", "none")),
			Timeout:    envDurationSecs("CLASSIFIER_TIMEOUT_SECS", 10*time.Second),
			OpenAI: OpenAIConfig{
				APIKey:          os.Getenv("OPENAI_API_KEY"),
				BaseURL:         os.Getenv("OPENAI_BASE_URL"),
				SentimentModel:  envString("OPENAI_SENTIMENT_MODEL", "gpt-4o-mini"),
				ResolutionModel: envString("OPENAI_RESOLUTION_MODEL", "gpt-4o-mini"),
			},
			Emotion: EmotionConfig{
				URL:   os.Getenv("EMOTION_SERVICE_URL"),
				Token: os.Getenv("EMOTION_SERVICE_TOKEN"),
			},
		},
		Transcriber: TranscriberConfig{
			Providers: envList("TRANSCRIBER_PROVIDERS"),
			Timeout:   envDurationSecs("TRANSCRIBER_TIMEOUT_SECS", 300*time.Second),
			AssemblyAI: AssemblyAIConfig{
				APIKey: os.Getenv("ASSEMBLYAI_API_KEY"),
			},
			HTTP: HTTPASRConfig{
				URL: os.Getenv("ASR_SERVICE_URL"),
			},
		},
		Metrics: MetricsConfig{
			Enabled:     envBool("METRICS_ENABLED", true),
			ServiceName: envString("METRICS_SERVICE_NAME", "callscore"),
		},
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.Database.URL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}

	if c.Redis.URL == "" {
		return fmt.Errorf("REDIS_URL is required")
	}

	if c.Server.RateLimitPerMinute <= 0 {
		return fmt.Errorf("CALLSCORE_RATE_LIMIT_PER_MINUTE must be positive, got %d", c.Server.RateLimitPerMinute)
	}
	if c.Analysis.BatchConcurrency <= 0 {
		return fmt.Errorf("ANALYSIS_BATCH_CONCURRENCY must be positive, got %d", c.Analysis.BatchConcurrency)
	}

	if !validSentimentProviders[c.Classifier.Sentiment] {
		return fmt.Errorf("SENTIMENT_PROVIDER must be one of none, openai, emotion-http; got %q", c.Classifier.Sentiment)
	}
	if !validResolutionProviders[c.Classifier.Resolution] {
		return fmt.Errorf("RESOLUTION_PROVIDER must be one of none, openai; got %q", c.Classifier.Resolution)
	}
	if (c.Classifier.Sentiment == "openai" || c.Classifier.Resolution == "openai") && c.Classifier.OpenAI.APIKey == "" {
		return fmt.Errorf("OPENAI_API_KEY is required when an openai classifier is enabled")
	}
	if c.Classifier.Sentiment == "emotion-http" {
		if err := requireHTTPURL("EMOTION_SERVICE_URL", c.Classifier.Emotion.URL); err != nil {
			return err
		}
	}

	for _, p := range c.Transcriber.Providers {
		if !validTranscriberProviders[p] {
			return fmt.Errorf("TRANSCRIBER_PROVIDERS entries must be assemblyai or http; got %q", p)
		}
		if p == "assemblyai" && c.Transcriber.AssemblyAI.APIKey == "" {
			return fmt.Errorf("ASSEMBLYAI_API_KEY is required when the assemblyai transcriber is enabled")
		}
		if p == "http" {
			if err := requireHTTPURL("ASR_SERVICE_URL", c.Transcriber.HTTP.URL); err != nil {
				return err
			}
		}
	}

	return nil
}

func requireHTTPURL(key, v string) error {
	if v == "" {
		return fmt.Errorf("%s is required", key)
	}
	if !strings.HasPrefix(v, "http://") && !strings.HasPrefix(v, "https://") {
		return fmt.Errorf("%s must start with http:// or https://, got %q", key, v)
	}
	return nil
}

func envString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func envInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func envBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func envList(key string) []string {
	var out []string
	for _, p := range strings.Split(os.Getenv(key), ",") {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

func envDurationSecs(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	secs, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return time.Duration(secs) * time.Second
}
