// Package config provides configuration management for companioncore.
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds all application configuration.
type Config struct {
	Data        DataConfig        `mapstructure:"data"`
	Audio       AudioConfig       `mapstructure:"audio"`
	STT         STTConfig         `mapstructure:"stt"`
	LLM         LLMConfig         `mapstructure:"llm"`
	TTS         TTSConfig         `mapstructure:"tts"`
	Conversation ConversationConfig `mapstructure:"conversation"`
	Motion      MotionConfig      `mapstructure:"motion"`
	Bus         BusConfig         `mapstructure:"bus"`
	Gateway     GatewayConfig     `mapstructure:"gateway"`
	A2A         A2AConfig         `mapstructure:"a2a"`
}

// A2AConfig locates the a2abrain agent shared by the STT, LLM, and TTS
// "a2abrain" providers. BaseURL "auto" (the default) probes the
// conventional local ports for a live agent card instead of requiring a
// fixed address.
type A2AConfig struct {
	BaseURL string `mapstructure:"base_url"`
}

// DataConfig locates the runtime data directories.
type DataConfig struct {
	DataDir  string `mapstructure:"data_dir" validate:"required"`
	CacheDir string `mapstructure:"cache_dir" validate:"required"`
}

// AudioConfig configures the audio pipeline state machine.
type AudioConfig struct {
	SampleRate          int           `mapstructure:"sample_rate" validate:"required"`
	FrameMs             int           `mapstructure:"frame_ms" validate:"required"`
	WakeTimeout         time.Duration `mapstructure:"wake_timeout"`
	SilenceTimeout      time.Duration `mapstructure:"silence_timeout"`
	MinSpeechDuration   time.Duration `mapstructure:"min_speech_duration"`
	RingBufferSeconds   int           `mapstructure:"ring_buffer_seconds"`
	VADAggressiveness   int           `mapstructure:"vad_aggressiveness" validate:"min=0,max=3"`
	WakeWordSensitivity float64       `mapstructure:"wake_word_sensitivity" validate:"min=0,max=1"`
	EnhancedEnabled     bool          `mapstructure:"enhanced_enabled"`
	EnhancedServiceURL  string        `mapstructure:"enhanced_service_url"`
	WakeWords           []string      `mapstructure:"wake_words"`
}

// STTConfig configures speech-to-text engine selection.
type STTConfig struct {
	Provider string        `mapstructure:"provider"` // whisper, groq, a2abrain
	Timeout  time.Duration `mapstructure:"timeout"`
	Language string        `mapstructure:"language"`
	APIKey   string        `mapstructure:"api_key"`
	BaseURL  string        `mapstructure:"base_url"`
	Model    string        `mapstructure:"model"`
}

// LLMConfig configures language-model engine selection and generation params.
type LLMConfig struct {
	Provider         string        `mapstructure:"provider"` // a2abrain, ollama, openaicompat
	Timeout          time.Duration `mapstructure:"timeout"`
	MaxTokens        int           `mapstructure:"max_tokens"`
	Temperature      float64       `mapstructure:"temperature"`
	TopP             float64       `mapstructure:"top_p"`
	UseFrontierModel bool          `mapstructure:"use_frontier_model"`
	APIKey           string        `mapstructure:"api_key"`
	BaseURL          string        `mapstructure:"base_url"`
	Model            string        `mapstructure:"model"`
}

// TTSConfig configures text-to-speech engine selection.
type TTSConfig struct {
	Provider   string        `mapstructure:"provider"` // openaicompat, piper, a2abrain
	Timeout    time.Duration `mapstructure:"timeout"`
	VoiceID    string        `mapstructure:"voice_id"`
	APIKey     string        `mapstructure:"api_key"`
	BaseURL    string        `mapstructure:"base_url"`
	BinaryPath string        `mapstructure:"binary_path"`
	ModelsDir  string        `mapstructure:"models_dir"`
}

// ConversationConfig configures context assembly.
type ConversationConfig struct {
	HistoryLimit  int           `mapstructure:"history_limit"`
	MemoryLimit   int           `mapstructure:"memory_limit"`
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
	XPPerExchange int           `mapstructure:"xp_per_exchange"`
}

// MotionConfig configures the Live2D motion resolver.
type MotionConfig struct {
	UngroupedThreshold int `mapstructure:"ungrouped_threshold"`
}

// BusConfig configures the event bus.
type BusConfig struct {
	SubscriberQueueDepth int `mapstructure:"subscriber_queue_depth"`
}

// GatewayConfig configures the thin external adapter.
type GatewayConfig struct {
	ListenAddr string `mapstructure:"listen_addr"`
}

// DefaultConfig returns sensible default configuration.
func DefaultConfig() *Config {
	home, _ := os.UserHomeDir()
	return &Config{
		Data: DataConfig{
			DataDir:  filepath.Join(home, ".companioncore", "data"),
			CacheDir: filepath.Join(home, ".companioncore", "cache"),
		},
		Audio: AudioConfig{
			SampleRate:          16000,
			FrameMs:             30,
			WakeTimeout:         10 * time.Second,
			SilenceTimeout:      1800 * time.Millisecond,
			MinSpeechDuration:   500 * time.Millisecond,
			RingBufferSeconds:   10,
			VADAggressiveness:   2,
			WakeWordSensitivity: 0.5,
			EnhancedEnabled:     false,
			EnhancedServiceURL:  "http://localhost:8899",
			WakeWords:           []string{"hey companion"},
		},
		STT: STTConfig{
			Provider: "whisper",
			Timeout:  12 * time.Second,
			Language: "auto",
		},
		LLM: LLMConfig{
			Provider:    "a2abrain",
			Timeout:     30 * time.Second,
			MaxTokens:   512,
			Temperature: 0.8,
			TopP:        0.95,
		},
		TTS: TTSConfig{
			Provider: "piper",
			Timeout:  10 * time.Second,
			VoiceID:  "default",
		},
		Conversation: ConversationConfig{
			HistoryLimit:  10,
			MemoryLimit:   5,
			CacheTTL:      24 * time.Hour,
			XPPerExchange: 5,
		},
		Motion: MotionConfig{
			UngroupedThreshold: 50,
		},
		Bus: BusConfig{
			SubscriberQueueDepth: 64,
		},
		Gateway: GatewayConfig{
			ListenAddr: ":8780",
		},
		A2A: A2AConfig{
			BaseURL: "auto",
		},
	}
}

// Load reads configuration from file and environment, applying defaults
// and live-reload via fsnotify (through viper.WatchConfig).
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".companioncore")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	viper.SetEnvPrefix("COMPANIONCORE")
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	if err := validator.New().Struct(cfg); err != nil {
		return cfg, err
	}

	return cfg, nil
}

// WatchForChanges invokes onChange with a freshly unmarshalled Config
// whenever the config file is edited on disk. It does not apply the new
// values anywhere itself: running engines keep the VAD aggressiveness,
// wake-word sensitivity and engine choices they were built with.
func WatchForChanges(onChange func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err == nil {
			onChange(cfg)
		}
	})
	viper.WatchConfig()
}

// Save writes the configuration to file.
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".companioncore")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("data", cfg.Data)
	viper.Set("audio", cfg.Audio)
	viper.Set("stt", cfg.STT)
	viper.Set("llm", cfg.LLM)
	viper.Set("tts", cfg.TTS)
	viper.Set("conversation", cfg.Conversation)
	viper.Set("motion", cfg.Motion)
	viper.Set("bus", cfg.Bus)
	viper.Set("gateway", cfg.Gateway)
	viper.Set("a2a", cfg.A2A)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path.
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".companioncore"), nil
}
