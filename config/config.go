package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds every process-wide tunable. All timeouts and limits the
// pipeline or the session manager consult live here, so there is exactly
// one source of truth for values like the zombie timeout.
type Config struct {
	// API server
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`

	// OpenAI-compatible API access
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	ChatModel      string `mapstructure:"chat_model"`
	SegmentModel   string `mapstructure:"segment_model"`
	AnalysisModel  string `mapstructure:"analysis_model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
	WhisperModel   string `mapstructure:"whisper_model"`

	// Pipeline tunables
	DataDir        string        `mapstructure:"data_dir"`
	MaxVideoLength float64       `mapstructure:"max_video_length"` // seconds
	FrameInterval  int           `mapstructure:"frame_interval"`   // seconds between uniform frames
	ProxyFPS       int           `mapstructure:"proxy_fps"`
	SegmentSeconds int           `mapstructure:"segment_seconds"`
	AnalysisFrames int           `mapstructure:"analysis_frames"` // max proxy frames sent to the analyzer
	RequestTimeout time.Duration `mapstructure:"request_timeout"`

	// Session lifecycle
	ZombieTimeout time.Duration `mapstructure:"zombie_timeout"`

	// Transcription
	Transcriber string `mapstructure:"transcriber"` // "auto", "whisper-api", "whisper-local", "mock"
	STTEnabled  bool   `mapstructure:"stt_enabled"` // off skips transcription except for subtitle modes

	// Storage backends
	SessionStore string `mapstructure:"session_store"` // "file" or "postgres"
	DocIndex     string `mapstructure:"doc_index"`     // "memory", "pgvector" or "milvus"
	PostgresURL  string `mapstructure:"postgres_url"`
	MilvusAddr   string `mapstructure:"milvus_addr"`
}

// Load reads config.yaml (working directory) if present, applies
// VIDEODOCS_* environment overrides and fills in defaults.
func Load() (*Config, error) {
	v := viper.New()

	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("port", 8080)
	// Every key needs a default: viper only surfaces environment
	// overrides through Unmarshal for keys it already knows about.
	v.SetDefault("api_key", "")
	v.SetDefault("base_url", "")
	v.SetDefault("chat_model", "gpt-4o")
	v.SetDefault("segment_model", "gpt-4o-mini")
	v.SetDefault("analysis_model", "gpt-4o-mini")
	v.SetDefault("embedding_model", "text-embedding-3-small")
	v.SetDefault("whisper_model", "whisper-1")
	v.SetDefault("data_dir", "data")
	v.SetDefault("max_video_length", 900.0) // 15 minutes
	v.SetDefault("frame_interval", 5)
	v.SetDefault("proxy_fps", 1)
	v.SetDefault("segment_seconds", 30)
	v.SetDefault("analysis_frames", 20)
	v.SetDefault("request_timeout", 4*time.Minute)
	v.SetDefault("zombie_timeout", 10*time.Minute)
	v.SetDefault("transcriber", "auto")
	v.SetDefault("stt_enabled", true)
	v.SetDefault("session_store", "file")
	v.SetDefault("doc_index", "memory")
	v.SetDefault("postgres_url", "")
	v.SetDefault("milvus_addr", "localhost:19530")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("VIDEODOCS")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing file is fine; anything else is a real problem.
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshaling config: %w", err)
	}
	return &cfg, nil
}

// HasValidAPI reports whether generative calls can be attempted at all.
func (c *Config) HasValidAPI() bool {
	return strings.TrimSpace(c.APIKey) != ""
}

// Validate checks the fields that have no workable zero value.
func (c *Config) Validate() error {
	var problems []string
	if c.MaxVideoLength <= 0 {
		problems = append(problems, "max_video_length must be positive")
	}
	if c.FrameInterval <= 0 {
		problems = append(problems, "frame_interval must be positive")
	}
	if c.SegmentSeconds <= 0 {
		problems = append(problems, "segment_seconds must be positive")
	}
	if c.ZombieTimeout <= 0 {
		problems = append(problems, "zombie_timeout must be positive")
	}
	if c.SessionStore == "postgres" && c.PostgresURL == "" {
		problems = append(problems, "postgres_url is required when session_store is postgres")
	}
	if c.DocIndex == "pgvector" && c.PostgresURL == "" {
		problems = append(problems, "postgres_url is required when doc_index is pgvector")
	}
	if (c.DocIndex == "pgvector" || c.DocIndex == "milvus") && !c.HasValidAPI() {
		problems = append(problems, "api_key is required for embedding-backed doc indexes")
	}
	if len(problems) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(problems, "; "))
	}
	return nil
}
