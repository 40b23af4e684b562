// Package config loads the runner's bootstrap configuration: the handful
// of variables that must be known before the store is even open, since
// everything else (channels, credentials, PTT pin, poll interval) lives in
// the store itself and is re-read every tick (spec.md §4.10).
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config holds the process's bootstrap-only settings. Per spec.md §6 the
// only externally documented variable is DATA_DIR; the rest are carried
// the same way because the teacher's config layer always reads log level
// and a listen address regardless of domain scope (SPEC_FULL.md §2).
type Config struct {
	DataDir     string `env:"DATA_DIR" envDefault:"/opt/vhf-balise/data"`
	LogLevel    string `env:"LOG_LEVEL" envDefault:"info"`
	HTTPAddr    string `env:"HTTP_ADDR" envDefault:":8080"`
	GPIOChip    string `env:"PTT_GPIO_CHIP" envDefault:"/dev/gpiochip0"`
	PiperBinary string `env:"PIPER_BINARY" envDefault:"piper"`
}

// Paths are the filesystem locations derived from DataDir (spec.md §6's
// filesystem layout).
type Paths struct {
	DBPath       string
	AudioCacheDir string
	TTSModelsDir string
	LogDir       string
	PIDFile      string
}

// Paths derives the fixed sub-layout under DataDir.
func (c *Config) Paths() Paths {
	return Paths{
		DBPath:        filepath.Join(c.DataDir, "vhf-balise.db"),
		AudioCacheDir: filepath.Join(c.DataDir, "audio_cache"),
		TTSModelsDir:  filepath.Join(c.DataDir, "tts_models"),
		LogDir:        filepath.Join(c.DataDir, "logs"),
		PIDFile:       filepath.Join(c.DataDir, "runner.pid"),
	}
}

// EnsureDirs creates every directory Paths names, so a fresh DATA_DIR on
// an unattended SBC bootstraps cleanly on first run.
func (p Paths) EnsureDirs() error {
	for _, dir := range []string{filepath.Dir(p.DBPath), p.AudioCacheDir, p.TTSModelsDir, p.LogDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	return nil
}

// Overrides holds CLI flag values that take priority over env vars,
// following the teacher's CLI > env > .env > defaults precedence.
type Overrides struct {
	EnvFile  string
	DataDir  string
	LogLevel string
	HTTPAddr string
}

// Load reads configuration from an optional .env file, environment
// variables, and CLI overrides, in that ascending priority.
func Load(overrides Overrides) (*Config, error) {
	envFile := overrides.EnvFile
	if envFile == "" {
		envFile = ".env"
	}
	if _, err := os.Stat(envFile); err == nil {
		_ = godotenv.Load(envFile)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("config: parse environment: %w", err)
	}

	if overrides.DataDir != "" {
		cfg.DataDir = overrides.DataDir
	}
	if overrides.LogLevel != "" {
		cfg.LogLevel = overrides.LogLevel
	}
	if overrides.HTTPAddr != "" {
		cfg.HTTPAddr = overrides.HTTPAddr
	}

	return cfg, nil
}
