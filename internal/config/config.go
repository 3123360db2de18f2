// Package config loads the YAML configuration shared by the CLI and the server.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/codebuildervaibhav/lecture-transcriber/internal/logging"
	"github.com/codebuildervaibhav/lecture-transcriber/internal/media"
)

// DefaultPath is where the CLI looks for a config file when -config is not set
const DefaultPath = "config/config.yaml"

// Config represents the application configuration
type Config struct {
	Server struct {
		Port          int      `yaml:"port" validate:"gte=1,lte=65535"`
		Host          string   `yaml:"host"`
		BodyLimitKB   int      `yaml:"body_limit_kb" validate:"gte=0"`
		MaxUploadMB   int      `yaml:"max_upload_mb" validate:"gte=0"`
		SourceDirs    []string `yaml:"source_dirs"`
		ShutdownGrace int      `yaml:"shutdown_grace_seconds" validate:"gte=0"`
	} `yaml:"server"`

	Workers struct {
		Count     int `yaml:"count" validate:"gte=1"`
		QueueSize int `yaml:"queue_size" validate:"gte=1"`
	} `yaml:"workers"`

	Pipeline      PipelineConfig      `yaml:"pipeline"`
	Media         media.Config        `yaml:"media"`
	Transcription TranscriptionConfig `yaml:"transcription"`

	Presentation struct {
		AudioExtensions []string `yaml:"audio_extensions" validate:"min=1,dive,required"`
	} `yaml:"presentation"`

	Storage struct {
		Database  string `yaml:"database" validate:"required"`
		OutputDir string `yaml:"output_dir"`
		UploadDir string `yaml:"upload_dir"`
	} `yaml:"storage"`

	Cleanup struct {
		IntervalMinutes int `yaml:"interval_minutes" validate:"gte=0"`
		MaxAgeHours     int `yaml:"max_age_hours" validate:"gte=0"`
	} `yaml:"cleanup"`

	GoogleDrive struct {
		Enabled         bool   `yaml:"enabled"`
		CredentialsFile string `yaml:"credentials_file"`
		TokenFile       string `yaml:"token_file"`
		FolderName      string `yaml:"folder_name"`
	} `yaml:"google_drive"`

	Kafka KafkaConfig `yaml:"kafka"`

	Logging logging.Config `yaml:"logging"`
}

// PipelineConfig controls chunking and concurrency
type PipelineConfig struct {
	ChunkDurationSeconds float64 `yaml:"chunk_duration_seconds" validate:"gt=0"`
	Concurrency          int     `yaml:"concurrency" validate:"gte=1,lte=64"`
	MaxChunkBytes        int64   `yaml:"max_chunk_bytes" validate:"gte=0"`
	WorkDir              string  `yaml:"work_dir"`
	KeepArtifacts        bool    `yaml:"keep_artifacts"`
	Checkpoints          bool    `yaml:"checkpoints"`
}

// TranscriptionConfig selects and configures the speech-to-text provider
type TranscriptionConfig struct {
	Provider string `yaml:"provider" validate:"oneof=openai google mock"`
	Language string `yaml:"language" validate:"required"`

	OpenAI struct {
		BaseURL        string `yaml:"base_url" validate:"omitempty,url"`
		APIKey         string `yaml:"api_key"`
		Model          string `yaml:"model"`
		TimeoutSeconds int    `yaml:"timeout_seconds" validate:"gte=0"`
	} `yaml:"openai"`

	Google struct {
		CredentialsFile string `yaml:"credentials_file"`
		Encoding        string `yaml:"encoding" validate:"omitempty,oneof=MP3 LINEAR16 FLAC OGG_OPUS"`
		SampleRateHertz int32  `yaml:"sample_rate_hertz" validate:"gte=0"`
	} `yaml:"google"`

	Retry RetryConfig `yaml:"retry"`
}

// RetryConfig bounds retries of transient provider failures
type RetryConfig struct {
	MaxAttempts int `yaml:"max_attempts" validate:"gte=1,lte=10"`
	BaseDelayMS int `yaml:"base_delay_ms" validate:"gte=0"`
	MaxDelayMS  int `yaml:"max_delay_ms" validate:"gte=0"`
}

// BaseDelay returns the first backoff interval
func (r RetryConfig) BaseDelay() time.Duration {
	return time.Duration(r.BaseDelayMS) * time.Millisecond
}

// MaxDelay returns the backoff ceiling
func (r RetryConfig) MaxDelay() time.Duration {
	return time.Duration(r.MaxDelayMS) * time.Millisecond
}

// KafkaConfig holds Kafka publisher configuration. An empty broker list
// disables publishing.
type KafkaConfig struct {
	Brokers []string `yaml:"brokers"`
	Topic   string   `yaml:"topic" validate:"required_with=Brokers"`
}

// Enabled reports whether events should be sent to Kafka
func (k KafkaConfig) Enabled() bool {
	return len(k.Brokers) > 0
}

// DefaultWorkDir is a directory of its own under the system temp dir, so the
// cleanup sweep never looks at files of other programs
func DefaultWorkDir() string {
	return filepath.Join(os.TempDir(), "lecture-transcriber")
}

// Default returns the configuration used when no file is present
func Default() *Config {
	cfg := &Config{}
	cfg.Server.Port = 3000
	cfg.Server.Host = "0.0.0.0"
	cfg.Server.BodyLimitKB = 64
	cfg.Server.MaxUploadMB = 512
	cfg.Server.ShutdownGrace = 30

	cfg.Workers.Count = 2
	cfg.Workers.QueueSize = 100

	cfg.Pipeline = PipelineConfig{
		ChunkDurationSeconds: 900,
		Concurrency:          4,
		MaxChunkBytes:        25 * 1024 * 1024,
		WorkDir:              DefaultWorkDir(),
		Checkpoints:          true,
	}

	cfg.Media = media.DefaultConfig()

	cfg.Transcription.Provider = "openai"
	cfg.Transcription.Language = "en"
	cfg.Transcription.OpenAI.BaseURL = "https://api.openai.com/v1"
	cfg.Transcription.OpenAI.Model = "whisper-1"
	cfg.Transcription.OpenAI.TimeoutSeconds = 300
	cfg.Transcription.Google.Encoding = "MP3"
	cfg.Transcription.Google.SampleRateHertz = 16000
	cfg.Transcription.Retry = RetryConfig{MaxAttempts: 4, BaseDelayMS: 1000, MaxDelayMS: 30000}

	cfg.Presentation.AudioExtensions = []string{".m4a", ".mp3", ".wav", ".wma", ".aac"}

	cfg.Storage.Database = "transcriber.db"
	cfg.Storage.OutputDir = "transcripts"
	cfg.Storage.UploadDir = "uploads"

	cfg.Cleanup.IntervalMinutes = 30
	cfg.Cleanup.MaxAgeHours = 24

	cfg.GoogleDrive.CredentialsFile = "credentials.json"
	cfg.GoogleDrive.TokenFile = "token.json"
	cfg.GoogleDrive.FolderName = "Lecture Transcripts"

	cfg.Kafka.Topic = "transcripts"

	cfg.Logging = logging.DefaultConfig()
	return cfg
}

// Load reads the YAML file at path on top of the defaults. A missing file is
// not an error when allowMissing is set.
func Load(path string, allowMissing bool) (*Config, error) {
	cfg, err := read(path, allowMissing)
	if err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOffline is Load without the provider credential checks, for commands
// that never call a transcription provider.
func LoadOffline(path string, allowMissing bool) (*Config, error) {
	cfg, err := read(path, allowMissing)
	if err != nil {
		return nil, err
	}
	if err := cfg.validateStruct(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func read(path string, allowMissing bool) (*Config, error) {
	cfg := Default()

	file, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(file, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && allowMissing:
	default:
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg.applyEnv()
	cfg.normalize()
	return cfg, nil
}

func (c *Config) applyEnv() {
	if v := os.Getenv("TRANSCRIBER_OPENAI_API_KEY"); v != "" {
		c.Transcription.OpenAI.APIKey = v
	} else if v := os.Getenv("OPENAI_API_KEY"); v != "" && c.Transcription.OpenAI.APIKey == "" {
		c.Transcription.OpenAI.APIKey = v
	}
	if v := os.Getenv("GOOGLE_APPLICATION_CREDENTIALS"); v != "" && c.Transcription.Google.CredentialsFile == "" {
		c.Transcription.Google.CredentialsFile = v
	}
	if v := os.Getenv("TRANSCRIBER_PROVIDER"); v != "" {
		c.Transcription.Provider = strings.ToLower(v)
	}
	if v := os.Getenv("TRANSCRIBER_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("TRANSCRIBER_WORK_DIR"); v != "" {
		c.Pipeline.WorkDir = v
	}
	if v := os.Getenv("TRANSCRIBER_DATABASE"); v != "" {
		c.Storage.Database = v
	}
}

func (c *Config) normalize() {
	for i, ext := range c.Presentation.AudioExtensions {
		ext = strings.ToLower(strings.TrimSpace(ext))
		if ext != "" && !strings.HasPrefix(ext, ".") {
			ext = "." + ext
		}
		c.Presentation.AudioExtensions[i] = ext
	}
}

var validate = validator.New()

// Validate checks struct tags and the rules that span sections
func (c *Config) Validate() error {
	if err := c.validateStruct(); err != nil {
		return err
	}

	if c.Transcription.Provider == "openai" && c.Transcription.OpenAI.APIKey == "" {
		return errors.New("invalid config: openai provider requires OPENAI_API_KEY or transcription.openai.api_key")
	}
	return nil
}

func (c *Config) validateStruct() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("invalid config: %w", err)
	}

	if c.Transcription.Retry.MaxDelayMS < c.Transcription.Retry.BaseDelayMS {
		return errors.New("invalid config: transcription.retry.max_delay_ms must be >= base_delay_ms")
	}
	return nil
}
