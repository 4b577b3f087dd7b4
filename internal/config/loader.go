package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/vietvoice/vvtts/internal/queue"
	"github.com/vietvoice/vvtts/pkg/tts"
)

// Load builds the effective configuration: defaults, then the YAML file at
// path (skipped when path is empty), then environment overrides, then
// validation. It is the single entry point used by all binaries.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("config: open %q: %w", path, err)
		}
		defer f.Close()
		if err := decodeInto(cfg, f); err != nil {
			return nil, fmt.Errorf("config: parse %q: %w", path, err)
		}
	}

	if err := applyEnv(cfg); err != nil {
		return nil, err
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromReader decodes YAML from r over the defaults and validates the
// result. Useful in tests where configs are built from string literals.
func LoadFromReader(r io.Reader) (*Config, error) {
	cfg := Default()
	if err := decodeInto(cfg, r); err != nil {
		return nil, fmt.Errorf("config: decode yaml: %w", err)
	}
	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func decodeInto(cfg *Config, r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
		return err
	}
	return nil
}

// applyEnv overrides cfg with the deployment environment variables.
func applyEnv(cfg *Config) error {
	var errs []error

	if v := os.Getenv("BROKER_URL"); v != "" {
		cfg.Broker.URL = v
	}
	if v := os.Getenv("API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: API_PORT %q is not an integer", v))
		} else {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("JOB_TIMEOUT"); v != "" {
		timeout, err := strconv.ParseFloat(v, 64)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: JOB_TIMEOUT %q is not a number", v))
		} else {
			cfg.Server.JobTimeout = timeout
		}
	}
	if v := os.Getenv("TRUST_PROXY"); v != "" {
		trust, err := strconv.ParseBool(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: TRUST_PROXY %q is not a boolean", v))
		} else {
			cfg.Server.TrustProxy = trust
		}
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Server.LogLevel = LogLevel(v)
	}
	if v := os.Getenv("WORKER_ID"); v != "" {
		cfg.Worker.WorkerID = v
	}
	if v := os.Getenv("QUALITY"); v != "" {
		cfg.Worker.Quality = tts.Quality(v)
	}
	if v := os.Getenv("ENGINE_URL"); v != "" {
		cfg.Worker.EngineURL = v
	}
	if v := os.Getenv("NFE_STEPS"); v != "" {
		steps, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: NFE_STEPS %q is not an integer", v))
		} else {
			cfg.Worker.NFESteps = steps
		}
	}
	if v := os.Getenv("HEARTBEAT_INTERVAL"); v != "" {
		interval, err := strconv.Atoi(v)
		if err != nil {
			errs = append(errs, fmt.Errorf("config: HEARTBEAT_INTERVAL %q is not an integer", v))
		} else {
			cfg.Worker.HeartbeatInterval = interval
		}
	}
	if v := os.Getenv("VOICE_SAMPLES_DIR"); v != "" {
		cfg.Samples.Dir = v
	}

	return errors.Join(errs...)
}

// Validate checks that cfg contains a coherent set of values. It returns a
// joined error listing all validation failures found.
func Validate(cfg *Config) error {
	var errs []error

	if !cfg.Server.LogLevel.IsValid() {
		errs = append(errs, fmt.Errorf("server.log_level %q is invalid; valid values: debug, info, warn, error", cfg.Server.LogLevel))
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		errs = append(errs, fmt.Errorf("server.port %d is out of range [1, 65535]", cfg.Server.Port))
	}
	if cfg.Server.JobTimeout < 0 {
		errs = append(errs, fmt.Errorf("server.job_timeout %.2f must not be negative", cfg.Server.JobTimeout))
	}
	if cfg.Broker.URL == "" {
		errs = append(errs, errors.New("broker.url is required"))
	}
	if !cfg.Worker.Quality.IsValid() {
		errs = append(errs, fmt.Errorf("worker.quality %q is invalid; valid values: high, fast", cfg.Worker.Quality))
	}
	if cfg.Worker.EngineURL == "" {
		errs = append(errs, errors.New("worker.engine_url is required"))
	}
	if cfg.Worker.NFESteps < 0 {
		errs = append(errs, fmt.Errorf("worker.nfe_steps %d must not be negative", cfg.Worker.NFESteps))
	}
	if cfg.Worker.HeartbeatInterval <= 0 {
		errs = append(errs, fmt.Errorf("worker.heartbeat_interval %d must be positive", cfg.Worker.HeartbeatInterval))
	} else if cfg.Worker.HeartbeatDuration() >= queue.WorkerTTL {
		// A heartbeat period at or beyond the liveness TTL lets the
		// registration lapse between refreshes.
		errs = append(errs, fmt.Errorf("worker.heartbeat_interval %d must be shorter than the %s worker liveness TTL", cfg.Worker.HeartbeatInterval, queue.WorkerTTL))
	}
	if cfg.Samples.Dir == "" {
		errs = append(errs, errors.New("samples.dir is required"))
	}

	return errors.Join(errs...)
}
