package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
)

const DefaultPath = "config/voicekit.json"

type AppConfig struct {
	Logging LoggingConfig `json:"logging"`
	Audio   AudioConfig   `json:"audio"`
	Player  PlayerConfig  `json:"player"`
	Media   MediaConfig   `json:"media"`
}

type LoggingConfig struct {
	Level  string `json:"level"`
	Format string `json:"format"`
}

type AudioConfig struct {
	SampleRate    int `json:"sample_rate"`
	Channels      int `json:"channels"`
	BitsPerSample int `json:"bits_per_sample"`
}

type PlayerConfig struct {
	Volume           float64 `json:"volume"`
	DuckingRatio     float64 `json:"ducking_ratio"`
	PollIntervalMs   int     `json:"poll_interval_ms"`
	CommandTimeoutMs int     `json:"command_timeout_ms"`
}

type MediaConfig struct {
	WriteTimeoutMs int `json:"write_timeout_ms"`
	HTTPTimeoutSec int `json:"http_timeout_sec"`
}

func DefaultConfig() *AppConfig {
	return &AppConfig{
		Logging: LoggingConfig{},
		Audio: AudioConfig{
			SampleRate:    16000,
			Channels:      1,
			BitsPerSample: 16,
		},
		Player: PlayerConfig{
			Volume:           0.5,
			DuckingRatio:     0.3,
			PollIntervalMs:   10,
			CommandTimeoutMs: 50,
		},
		Media: MediaConfig{
			WriteTimeoutMs: 50,
			HTTPTimeoutSec: 10,
		},
	}
}

func Load(path string) (*AppConfig, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		path = DefaultPath
	}

	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			cfg.ApplyEnv()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}

	cfg.ApplyEnv()
	return cfg, cfg.Validate()
}

func (c *AppConfig) ApplyEnv() {
	if level := strings.TrimSpace(os.Getenv("LOG_LEVEL")); level != "" {
		c.Logging.Level = level
	}
	if format := strings.TrimSpace(os.Getenv("LOG_FORMAT")); format != "" {
		c.Logging.Format = format
	}

	if volume := strings.TrimSpace(os.Getenv("PLAYER_VOLUME")); volume != "" {
		if v, err := strconv.ParseFloat(volume, 64); err == nil {
			c.Player.Volume = v
		}
	}
	if rate := strings.TrimSpace(os.Getenv("AUDIO_SAMPLE_RATE")); rate != "" {
		if v, err := strconv.Atoi(rate); err == nil {
			c.Audio.SampleRate = v
		}
	}
}

func (c *AppConfig) Validate() error {
	if c.Audio.SampleRate <= 0 {
		return errors.New("audio.sample_rate must be positive")
	}
	if c.Audio.Channels != 1 && c.Audio.Channels != 2 {
		return fmt.Errorf("audio.channels must be 1 or 2, got %d", c.Audio.Channels)
	}
	if c.Audio.BitsPerSample != 16 {
		return fmt.Errorf("audio.bits_per_sample must be 16, got %d", c.Audio.BitsPerSample)
	}

	if c.Player.Volume < 0 || c.Player.Volume > 1 {
		return errors.New("player.volume must be in [0,1]")
	}
	if c.Player.DuckingRatio < 0 || c.Player.DuckingRatio > 1 {
		return errors.New("player.ducking_ratio must be in [0,1]")
	}
	if c.Player.PollIntervalMs <= 0 {
		return errors.New("player.poll_interval_ms must be positive")
	}
	if c.Player.CommandTimeoutMs <= 0 {
		return errors.New("player.command_timeout_ms must be positive")
	}

	if c.Media.WriteTimeoutMs < 0 {
		return errors.New("media.write_timeout_ms must be non-negative")
	}
	if c.Media.HTTPTimeoutSec < 0 {
		return errors.New("media.http_timeout_sec must be non-negative")
	}

	return nil
}
