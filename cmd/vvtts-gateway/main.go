// Command vvtts-gateway is the HTTP front of the VVTTS dispatch layer. It
// serves the public synthesis API plus the Prometheus scrape endpoint on a
// single listener and shuts down gracefully on SIGINT/SIGTERM.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/vietvoice/vvtts/internal/auth"
	"github.com/vietvoice/vvtts/internal/config"
	"github.com/vietvoice/vvtts/internal/gateway"
	"github.com/vietvoice/vvtts/internal/observe"
	"github.com/vietvoice/vvtts/internal/queue"
	"github.com/vietvoice/vvtts/internal/samples"
	"github.com/vietvoice/vvtts/pkg/broker"
)

// shutdownTimeout bounds the connection drain on exit.
const shutdownTimeout = 15 * time.Second

func main() {
	os.Exit(run())
}

func run() int {
	configPath := flag.String("config", "", "path to the YAML configuration file (optional)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "vvtts-gateway: %v\n", err)
		return 1
	}

	slog.SetDefault(newLogger(cfg.Server.LogLevel))
	slog.Info("gateway starting",
		"port", cfg.Server.Port,
		"broker_url", cfg.Broker.URL,
		"job_timeout", cfg.Server.JobTimeout,
		"log_level", cfg.Server.LogLevel,
	)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdownMetrics, err := observe.InitProvider("vvtts-gateway", gateway.APIVersion)
	if err != nil {
		slog.Error("failed to initialise metrics provider", "err", err)
		return 1
	}
	defer shutdownMetrics(context.Background())

	b, err := broker.NewRedis(ctx, cfg.Broker.URL)
	if err != nil {
		slog.Error("failed to connect to broker", "err", err)
		return 1
	}
	defer b.Close()

	store, err := samples.NewStore(cfg.Samples.Dir)
	if err != nil {
		slog.Error("failed to open voice-sample store", "err", err)
		return 1
	}

	srv := gateway.New(
		queue.New(b),
		auth.NewManager(b),
		store,
		observe.DefaultMetrics(),
		gateway.Config{
			JobTimeout: cfg.Server.JobTimeout,
			TrustProxy: cfg.Server.TrustProxy,
		},
	)

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("listening", "addr", httpServer.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		slog.Info("shutdown signal received, draining connections")
		drainCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return httpServer.Shutdown(drainCtx)
	})

	if err := g.Wait(); err != nil {
		slog.Error("gateway error", "err", err)
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
