// Package config provides the configuration schema and loader for the
// VVTTS gateway, worker, and key-management tool. Configuration comes from
// an optional YAML file with environment-variable overrides; the
// environment names match the deployment contract (BROKER_URL, JOB_TIMEOUT,
// API_PORT, WORKER_ID, QUALITY, ENGINE_URL, NFE_STEPS, HEARTBEAT_INTERVAL).
package config

import (
	"time"

	"github.com/vietvoice/vvtts/pkg/tts"
)

// LogLevel controls log verbosity.
type LogLevel string

const (
	LogDebug LogLevel = "debug"
	LogInfo  LogLevel = "info"
	LogWarn  LogLevel = "warn"
	LogError LogLevel = "error"
)

// IsValid reports whether l is a recognised log level.
func (l LogLevel) IsValid() bool {
	switch l {
	case LogDebug, LogInfo, LogWarn, LogError:
		return true
	}
	return false
}

// Config is the root configuration shared by all VVTTS binaries. Each
// binary reads only the sections it needs.
type Config struct {
	Server  ServerConfig  `yaml:"server"`
	Broker  BrokerConfig  `yaml:"broker"`
	Worker  WorkerConfig  `yaml:"worker"`
	Samples SamplesConfig `yaml:"samples"`
}

// ServerConfig holds the gateway's network and policy settings.
type ServerConfig struct {
	// Port is the TCP port the gateway listens on.
	Port int `yaml:"port"`

	// LogLevel controls verbosity.
	LogLevel LogLevel `yaml:"log_level"`

	// JobTimeout bounds the synchronous wait for a synthesis result, in
	// seconds. It is stamped into every job and does not bound worker
	// execution.
	JobTimeout float64 `yaml:"job_timeout"`

	// TrustProxy enables the X-Forwarded-For localhost bypass. Only safe
	// behind a proxy that overwrites the header; off by default.
	TrustProxy bool `yaml:"trust_proxy"`
}

// JobTimeoutDuration returns the synchronous wait bound as a Duration.
func (s ServerConfig) JobTimeoutDuration() time.Duration {
	return time.Duration(s.JobTimeout * float64(time.Second))
}

// BrokerConfig holds the shared store connection settings.
type BrokerConfig struct {
	// URL is a redis-style connection URL, e.g. "redis://localhost:6379/0".
	URL string `yaml:"url"`
}

// WorkerConfig holds the synthesis worker's settings.
type WorkerConfig struct {
	// WorkerID identifies this worker in the liveness registry. Generated
	// when empty.
	WorkerID string `yaml:"worker_id"`

	// Quality selects the single queue this worker consumes and the
	// engine's refinement preset.
	Quality tts.Quality `yaml:"quality"`

	// EngineURL is the base URL of the synthesis inference server,
	// e.g. "http://localhost:5002".
	EngineURL string `yaml:"engine_url"`

	// NFESteps overrides the quality preset's refinement-step count.
	// Zero means use the preset (32 for high, 16 for fast).
	NFESteps int `yaml:"nfe_steps"`

	// HeartbeatInterval is the liveness re-registration period in seconds.
	// Must stay below the registry TTL or the worker flaps in and out of
	// health counts.
	HeartbeatInterval int `yaml:"heartbeat_interval"`
}

// HeartbeatDuration returns the heartbeat interval as a Duration.
func (w WorkerConfig) HeartbeatDuration() time.Duration {
	return time.Duration(w.HeartbeatInterval) * time.Second
}

// SamplesConfig holds the voice-sample catalog settings.
type SamplesConfig struct {
	// Dir is the directory holding one WAV per sample plus the JSON index.
	Dir string `yaml:"dir"`
}

// Default returns the built-in configuration: local broker, port 8000,
// 120 s job timeout, high quality, 30 s heartbeat.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Port:       8000,
			LogLevel:   LogInfo,
			JobTimeout: 120,
		},
		Broker: BrokerConfig{
			URL: "redis://localhost:6379/0",
		},
		Worker: WorkerConfig{
			Quality:           tts.QualityHigh,
			EngineURL:         "http://localhost:5002",
			HeartbeatInterval: 30,
		},
		Samples: SamplesConfig{
			Dir: "voice_samples",
		},
	}
}
