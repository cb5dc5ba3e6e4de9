// Package daemon manages the ytdlhost service lifecycle and configuration.
package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/dustin/go-humanize"

	"github.com/ytdlhost/ytdlhost/internal/app/orchestrator"
	"github.com/ytdlhost/ytdlhost/internal/infra/engine"
	"github.com/ytdlhost/ytdlhost/internal/infra/quota"
)

// Config holds all daemon configuration.
type Config struct {
	Server    ServerConfig    `toml:"server"`
	Storage   StorageConfig   `toml:"storage"`
	Quota     QuotaConfig     `toml:"quota"`
	Engine    EngineConfig    `toml:"engine"`
	Telemetry TelemetryConfig `toml:"telemetry"`
	Logging   LoggingConfig   `toml:"logging"`
}

// ServerConfig controls the HTTP API server.
type ServerConfig struct {
	Host        string   `toml:"host"`
	Port        int      `toml:"port"`
	CORSOrigins []string `toml:"cors_origins"`
}

// StorageConfig controls where state and artifacts live.
type StorageConfig struct {
	DataDir         string `toml:"data_dir"`
	DownloadDir     string `toml:"download_dir"`
	TaskRetention   string `toml:"task_retention"`
	CleanupInterval string `toml:"cleanup_interval"`
}

// QuotaConfig sets the admission limits. Sizes are human-readable
// ("4GB", "512MiB"); empty or zero means unlimited.
type QuotaConfig struct {
	MaxMemory         string `toml:"max_memory"`
	MaxActiveTasks    int    `toml:"max_active_tasks"`
	KeyMaxMemory      string `toml:"key_max_memory"`
	KeyMaxActiveTasks int    `toml:"key_max_active_tasks"`
	AudioEstimate     string `toml:"audio_estimate"`
	VideoEstimate     string `toml:"video_estimate"`
}

// EngineConfig controls the yt-dlp subprocess.
type EngineConfig struct {
	Binary       string `toml:"binary"`
	Timeout      string `toml:"timeout"`
	Retries      int    `toml:"retries"`
	RetryBackoff string `toml:"retry_backoff"`
}

// TelemetryConfig controls metrics export.
type TelemetryConfig struct {
	Prometheus bool `toml:"prometheus"`
}

// LoggingConfig controls logging behavior.
type LoggingConfig struct {
	File string `toml:"file"` // stderr when empty
}

// DefaultConfig returns a sensible default configuration.
func DefaultConfig() Config {
	homeDir := ytdlhostHome()
	return Config{
		Server: ServerConfig{
			Host:        "127.0.0.1",
			Port:        5050,
			CORSOrigins: []string{"*"},
		},
		Storage: StorageConfig{
			DataDir:         homeDir,
			DownloadDir:     filepath.Join(homeDir, "downloads"),
			TaskRetention:   "24h",
			CleanupInterval: "10m",
		},
		Quota: QuotaConfig{
			MaxMemory:         "4GB",
			MaxActiveTasks:    8,
			KeyMaxMemory:      "1GB",
			KeyMaxActiveTasks: 2,
			AudioEstimate:     "64MB",
			VideoEstimate:     "512MB",
		},
		Engine: EngineConfig{
			Binary:       "yt-dlp",
			Timeout:      "30m",
			RetryBackoff: "2s",
		},
		Telemetry: TelemetryConfig{
			Prometheus: true,
		},
	}
}

// LoadConfig reads config from ~/.ytdlhost/config.toml, falling back to defaults.
func LoadConfig() (Config, error) {
	cfg := DefaultConfig()
	path := ConfigPath()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return cfg, nil // no config file yet, use defaults
	}

	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// SaveConfig writes the config to ~/.ytdlhost/config.toml.
func SaveConfig(cfg Config) error {
	path := ConfigPath()
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	encoder := toml.NewEncoder(f)
	return encoder.Encode(cfg)
}

// Validate rejects size strings that do not parse.
func (c Config) Validate() error {
	for name, s := range map[string]string{
		"quota.max_memory":     c.Quota.MaxMemory,
		"quota.key_max_memory": c.Quota.KeyMaxMemory,
		"quota.audio_estimate": c.Quota.AudioEstimate,
		"quota.video_estimate": c.Quota.VideoEstimate,
	} {
		if s == "" {
			continue
		}
		if _, err := humanize.ParseBytes(s); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
	}
	if c.Quota.MaxActiveTasks < 0 || c.Quota.KeyMaxActiveTasks < 0 {
		return fmt.Errorf("quota task limits must not be negative")
	}
	if c.Engine.Retries < 0 {
		return fmt.Errorf("engine.retries must not be negative")
	}
	return nil
}

// ─── Derived Settings ───────────────────────────────────────────────────────

// QuotaLimits converts the [quota] section into ledger limits.
func (c Config) QuotaLimits() quota.Limits {
	return quota.Limits{
		MaxBytes:    parseSize(c.Quota.MaxMemory, 0),
		MaxTasks:    int64(c.Quota.MaxActiveTasks),
		KeyMaxBytes: parseSize(c.Quota.KeyMaxMemory, 0),
		KeyMaxTasks: int64(c.Quota.KeyMaxActiveTasks),
	}
}

// OrchestratorConfig converts [quota] estimates and [storage] retention.
func (c Config) OrchestratorConfig() orchestrator.Config {
	def := orchestrator.DefaultConfig()
	return orchestrator.Config{
		AudioEstimate:   parseSize(c.Quota.AudioEstimate, def.AudioEstimate),
		VideoEstimate:   parseSize(c.Quota.VideoEstimate, def.VideoEstimate),
		Retention:       parseDuration(c.Storage.TaskRetention, def.Retention),
		CleanupInterval: parseDuration(c.Storage.CleanupInterval, def.CleanupInterval),
		SaveTimeout:     def.SaveTimeout,
	}
}

// ExecutorConfig converts the [engine] section.
func (c Config) ExecutorConfig() engine.Config {
	def := engine.DefaultConfig()
	return engine.Config{
		Timeout:      parseDuration(c.Engine.Timeout, def.Timeout),
		Retries:      c.Engine.Retries,
		RetryBackoff: parseDuration(c.Engine.RetryBackoff, def.RetryBackoff),
	}
}

// DataDir returns the state directory, defaulting to the home directory.
func (c Config) DataDir() string {
	if c.Storage.DataDir != "" {
		return c.Storage.DataDir
	}
	return ytdlhostHome()
}

// DownloadDir returns the artifact root.
func (c Config) DownloadDir() string {
	if c.Storage.DownloadDir != "" {
		return c.Storage.DownloadDir
	}
	return filepath.Join(c.DataDir(), "downloads")
}

// Addr is the listen address.
func (c Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port)
}

// parseSize converts "4GB" or "512MiB" to bytes, returning fallback when
// s is empty or malformed.
func parseSize(s string, fallback int64) int64 {
	if s == "" {
		return fallback
	}
	n, err := humanize.ParseBytes(s)
	if err != nil {
		return fallback
	}
	return int64(n)
}

// parseDuration parses a duration string, returning a fallback on error.
func parseDuration(s string, fallback time.Duration) time.Duration {
	if s == "" {
		return fallback
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return fallback
	}
	return d
}

// ytdlhostHome returns the ytdlhost data directory.
func ytdlhostHome() string {
	if env := os.Getenv("YTDLHOST_HOME"); env != "" {
		return env
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".ytdlhost")
}

// Home is exported for use by other packages.
func Home() string {
	return ytdlhostHome()
}

// ConfigPath is the location of config.toml.
func ConfigPath() string {
	return filepath.Join(ytdlhostHome(), "config.toml")
}
