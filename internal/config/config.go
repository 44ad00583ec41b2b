// Package config provides configuration management for TutorSense
package config

import (
	"os"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// Config holds all application configuration
type Config struct {
	Audio      AudioConfig      `mapstructure:"audio"`
	Smoothing  SmoothingConfig  `mapstructure:"smoothing"`
	Fusion     FusionConfig     `mapstructure:"fusion"`
	Reward     RewardConfig     `mapstructure:"reward"`
	Bandit     BanditConfig     `mapstructure:"bandit"`
	Session    SessionConfig    `mapstructure:"session"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// AudioConfig configures audio capture and chunking
type AudioConfig struct {
	InputDevice              string  `mapstructure:"input_device"`
	NativeRate               int     `mapstructure:"native_rate"`
	TargetRate               int     `mapstructure:"target_rate"`
	ChunkSeconds             float64 `mapstructure:"chunk_seconds"`
	DuplicateThreshold       float64 `mapstructure:"duplicate_threshold"`
	QuietRMS                 float64 `mapstructure:"quiet_rms"`
	MaxConsecutiveDuplicates int     `mapstructure:"max_consecutive_duplicates"`
}

// SmoothingConfig configures the per-modality EMA smoothers
type SmoothingConfig struct {
	Alpha float64 `mapstructure:"alpha"` // weight on history, default 0.7
	Drift float64 `mapstructure:"drift"` // max random-walk step on classifier failure
}

// FusionConfig configures cross-modal fusion
type FusionConfig struct {
	Lambda float64 `mapstructure:"lambda"`  // face share, clamped [0,1]
	MinVAD float64 `mapstructure:"min_vad"` // VAD gate, [0,1], live-adjustable
}

// RewardConfig configures the reward weights
type RewardConfig struct {
	Preset string  `mapstructure:"preset"` // baseline, aggressive, conservative, custom
	Alpha  float64 `mapstructure:"alpha"`
	Beta   float64 `mapstructure:"beta"`
	Gamma  float64 `mapstructure:"gamma"`
}

// BanditConfig configures the LinUCB policy
type BanditConfig struct {
	Exploration float64 `mapstructure:"exploration"` // UCB exploration coefficient
	Ridge       float64 `mapstructure:"ridge"`       // identity scale for new arms
}

// SessionConfig configures the pipeline driver
type SessionConfig struct {
	FaceInterval time.Duration `mapstructure:"face_interval"`
}

// ClassifierConfig configures the remote classifier clients
type ClassifierConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// DebugConfig configures the debug/instrumentation stream
type DebugConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Listen  string `mapstructure:"listen"`
}

// DefaultConfig returns sensible default configuration
func DefaultConfig() *Config {
	return &Config{
		Audio: AudioConfig{
			InputDevice:              "",
			NativeRate:               48000,
			TargetRate:               16000,
			ChunkSeconds:             2.5,
			DuplicateThreshold:       1e-4,
			QuietRMS:                 0.01,
			MaxConsecutiveDuplicates: 5,
		},
		Smoothing: SmoothingConfig{
			Alpha: 0.7,
			Drift: 0.02,
		},
		Fusion: FusionConfig{
			Lambda: 0.6,
			MinVAD: 0.2,
		},
		Reward: RewardConfig{
			Preset: "baseline",
		},
		Bandit: BanditConfig{
			Exploration: 1.0,
			Ridge:       1.0,
		},
		Session: SessionConfig{
			FaceInterval: 100 * time.Millisecond,
		},
		Classifier: ClassifierConfig{
			BaseURL: "http://localhost:8000",
			Timeout: 5 * time.Second,
		},
		Debug: DebugConfig{
			Enabled: false,
			Listen:  "127.0.0.1:7878",
		},
	}
}

// Normalize clamps configuration values into their valid ranges.
func (c *Config) Normalize() {
	if c.Audio.ChunkSeconds < 0.25 {
		c.Audio.ChunkSeconds = 0.25
	}
	if c.Audio.DuplicateThreshold <= 0 {
		c.Audio.DuplicateThreshold = 1e-4
	}
	if c.Audio.QuietRMS < 0 {
		c.Audio.QuietRMS = 0
	}
	if c.Audio.MaxConsecutiveDuplicates < 1 {
		c.Audio.MaxConsecutiveDuplicates = 1
	}
	c.Fusion.Lambda = clamp01(c.Fusion.Lambda)
	c.Fusion.MinVAD = clamp01(c.Fusion.MinVAD)
	c.Smoothing.Alpha = clamp01(c.Smoothing.Alpha)
	if c.Smoothing.Drift < 0 {
		c.Smoothing.Drift = 0
	}
	if c.Bandit.Exploration < 0 {
		c.Bandit.Exploration = 0
	}
	if c.Bandit.Ridge <= 0 {
		c.Bandit.Ridge = 1.0
	}
	if c.Session.FaceInterval <= 0 {
		c.Session.FaceInterval = 100 * time.Millisecond
	}
	if c.Classifier.Timeout <= 0 {
		c.Classifier.Timeout = 5 * time.Second
	}
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// Load reads configuration from file and environment
func Load() (*Config, error) {
	cfg := DefaultConfig()

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return cfg, err
	}

	configDir := filepath.Join(homeDir, ".tutorsense")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return cfg, err
	}

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(configDir)
	viper.AddConfigPath(".")

	// Environment variable overrides
	viper.SetEnvPrefix("TUTORSENSE")
	viper.AutomaticEnv()

	// Read config file if it exists
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return cfg, err
		}
		// Config file not found, use defaults and create one
		if err := Save(cfg); err != nil {
			return cfg, err
		}
	}

	if err := viper.Unmarshal(cfg); err != nil {
		return cfg, err
	}

	cfg.Normalize()
	return cfg, nil
}

// Watch re-reads the config on file change and invokes fn with the new values.
// Used for the live-adjustable fusion gate and weight.
func Watch(fn func(*Config)) {
	viper.OnConfigChange(func(_ fsnotify.Event) {
		cfg := DefaultConfig()
		if err := viper.Unmarshal(cfg); err != nil {
			return
		}
		cfg.Normalize()
		fn(cfg)
	})
	viper.WatchConfig()
}

// Save writes the configuration to file
func Save(cfg *Config) error {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return err
	}

	configDir := filepath.Join(homeDir, ".tutorsense")
	if err := os.MkdirAll(configDir, 0755); err != nil {
		return err
	}

	viper.Set("audio", cfg.Audio)
	viper.Set("smoothing", cfg.Smoothing)
	viper.Set("fusion", cfg.Fusion)
	viper.Set("reward", cfg.Reward)
	viper.Set("bandit", cfg.Bandit)
	viper.Set("session", cfg.Session)
	viper.Set("classifier", cfg.Classifier)
	viper.Set("debug", cfg.Debug)

	configPath := filepath.Join(configDir, "config.yaml")
	return viper.WriteConfigAs(configPath)
}

// GetConfigDir returns the configuration directory path
func GetConfigDir() (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(homeDir, ".tutorsense"), nil
}
