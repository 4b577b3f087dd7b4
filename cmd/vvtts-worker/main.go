// Command vvtts-worker runs one synthesis worker: a single engine bound to
// a single quality queue. Start one process per quality class and scale by
// adding processes.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"

	"github.com/vietvoice/vvtts/internal/config"
	"github.com/vietvoice/vvtts/internal/observe"
	"github.com/vietvoice/vvtts/internal/queue"
	"github.com/vietvoice/vvtts/internal/worker"
	"github.com/vietvoice/vvtts/pkg/broker"
	"github.com/vietvoice/vvtts/pkg/tts"
	"github.com/vietvoice/vvtts/pkg/tts/remote"
)

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvtts-worker: %v\n", err)
		return 1
	}

	workerID := cfg.Worker.WorkerID
	if workerID == "" {
		workerID = "worker-" + uuid.NewString()[:8]
	}
	nfeSteps := cfg.Worker.NFESteps
	if nfeSteps == 0 {
		nfeSteps = tts.NFESteps(cfg.Worker.Quality)
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("worker starting",
		"worker_id", workerID,
		"quality", cfg.Worker.Quality,
		"nfe_steps", nfeSteps,
		"engine_url", cfg.Worker.EngineURL,
		"broker_url", cfg.Broker.URL,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider("vvtts-worker", "")
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer shutdownMetrics(context.Background())

	// Broker first, engine second: the init order makes a dead broker fail
	// before the (potentially slow) engine health check runs.
	b, err := broker.NewRedis(ctx, cfg.Broker.URL)
	if err != nil {
		slog.Error("failed to connect to broker", "err", err)
		return 1
	}
	defer b.Close()

	engine, err := remote.New(cfg.Worker.EngineURL, remote.WithNFESteps(nfeSteps))
	if err != nil {
		slog.Error("failed to create engine", "err", err)
		return 1
	}
	if err := engine.Ping(ctx); err != nil {
		slog.Error("engine unreachable", "err", err)
		return 1
	}

	w := worker.New(queue.New(b), engine, observe.DefaultMetrics(), worker.Config{
		WorkerID:          workerID,
		Quality:           cfg.Worker.Quality,
		HeartbeatInterval: cfg.Worker.HeartbeatDuration(),
	})

	if err := w.Run(ctx); err != nil {
		slog.Error("worker error", "err", err)
		return 1
	}
	slog.Info("goodbye")
	return 0
}

// newLogger builds the process logger at the configured level.
func newLogger(level config.LogLevel) *slog.Logger {
	var lvl slog.Level
	switch level {
	case config.LogDebug:
		lvl = slog.LevelDebug
	case config.LogWarn:
		lvl = slog.LevelWarn
	case config.LogError:
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
}
