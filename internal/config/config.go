package config

import (
	"os"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	DatabaseURL string `env:"DATABASE_URL"`

	HTTPAddr     string        `env:"HTTP_ADDR" envDefault:":8080"`
	ReadTimeout  time.Duration `env:"HTTP_READ_TIMEOUT" envDefault:"5s"`
	WriteTimeout time.Duration `env:"HTTP_WRITE_TIMEOUT" envDefault:"30s"`
	IdleTimeout  time.Duration `env:"HTTP_IDLE_TIMEOUT" envDefault:"120s"`

	AuthToken string `env:"AUTH_TOKEN"`
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`

	// DevMode runs without Postgres or provider credentials: in-memory
	// store, stub provider, stub analyzer.
	DevMode bool `env:"DEV_MODE" envDefault:"false"`

	Workers        int           `env:"WORKERS" envDefault:"4"`
	QueueSize      int           `env:"QUEUE_SIZE" envDefault:"256"`
	MaxAttempts    uint64        `env:"MAX_ATTEMPTS" envDefault:"3"`
	InitialBackoff time.Duration `env:"INITIAL_BACKOFF" envDefault:"2s"`

	TranscribeTimeout time.Duration `env:"TRANSCRIBE_TIMEOUT" envDefault:"2m"`
	PerAudioMinute    time.Duration `env:"TRANSCRIBE_TIMEOUT_PER_MINUTE" envDefault:"30s"`
	SubStepTimeout    time.Duration `env:"ANALYZE_SUBSTEP_TIMEOUT" envDefault:"30s"`

	WhisperURL   string        `env:"WHISPER_URL"`
	WhisperModel string        `env:"WHISPER_MODEL" envDefault:"whisper-1"`
	HTTPTimeout  time.Duration `env:"PROVIDER_HTTP_TIMEOUT" envDefault:"5m"`

	ElevenLabsKey   string `env:"ELEVENLABS_API_KEY"`
	ElevenLabsModel string `env:"ELEVENLABS_MODEL" envDefault:"scribe_v1"`

	LLMGatewayURL string `env:"LLM_GATEWAY_URL"`
	LLMGatewayKey string `env:"LLM_GATEWAY_KEY"`
	LLMModel      string `env:"LLM_MODEL" envDefault:"gpt-4o-mini"`

	DiarizerURL string `env:"DIARIZER_URL"`

	MQTTBrokerURL   string `env:"MQTT_BROKER_URL"`
	MQTTClientID    string `env:"MQTT_CLIENT_ID" envDefault:"call-engine"`
	MQTTTopicPrefix string `env:"MQTT_TOPIC_PREFIX" envDefault:"call-engine/recordings"`
	MQTTUsername    string `env:"MQTT_USERNAME"`
	MQTTPassword    string `env:"MQTT_PASSWORD"`

	AudioDir  string `env:"AUDIO_DIR" envDefault:"./audio"`
	IngestDir string `env:"INGEST_DIR"`

	S3Endpoint  string `env:"S3_ENDPOINT"`
	S3Region    string `env:"S3_REGION" envDefault:"us-east-1"`
	S3Bucket    string `env:"S3_BUCKET"`
	S3Prefix    string `env:"S3_PREFIX"`
	S3AccessKey string `env:"S3_ACCESS_KEY"`
	S3SecretKey string `env:"S3_SECRET_KEY"`
}

// UseS3 reports whether audio should be fetched from object storage
// rather than the local audio dir.
func (c *Config) UseS3() bool { return c.S3Bucket != "" }

// Overrides holds CLI flag values that take priority over env vars.
type Overrides struct {
	EnvFile     string
	HTTPAddr    string
	LogLevel    string
	DatabaseURL string
	AudioDir    string
	DevMode     bool
}

// Load reads configuration from .env file, environment variables, and CLI overrides.
// Priority: CLI flags > environment variables > .env file > struct defaults.
func Load(overrides Overrides) (*Config, error) {
	// Load .env file (silent if missing)
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	// Parse environment variables into config struct
	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, err
	}

	// Apply CLI overrides (non-empty values win)
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.DatabaseURL != "" {
		cfg.DatabaseURL = overrides.DatabaseURL
	}
	if overrides.AudioDir != "" {
		cfg.AudioDir = overrides.AudioDir
	}
	if overrides.DevMode {
		cfg.DevMode = true
	}

	return cfg, nil
}
