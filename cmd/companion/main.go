// Command companion runs the companioncore server: it loads configuration,
// logs the detected host profile, opens the store, wires the engine stack
// named by the config's provider settings, and serves the gateway's
// websocket endpoint until interrupted. The host profile does not influence
// which engines are built.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/normanking/companioncore/internal/bus"
	"github.com/normanking/companioncore/internal/config"
	"github.com/normanking/companioncore/internal/gateway"
	"github.com/normanking/companioncore/internal/hostprofile"
	"github.com/normanking/companioncore/internal/metrics"
	"github.com/normanking/companioncore/internal/orchestrator"
	"github.com/normanking/companioncore/internal/store"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "companion:", err)
		os.Exit(1)
	}
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	log, closeLog, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logging: %w", err)
	}
	defer closeLog()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	profile := hostprofile.Detect(ctx)
	log.Info().
		Str("platform", profile.Platform).
		Str("tier", string(profile.Tier)).
		Int("memory_mb", profile.TotalMemoryMB).
		Bool("has_gpu", profile.HasGPU).
		Msg("host profile detected")

	if err := os.MkdirAll(cfg.Data.DataDir, 0755); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}

	st, err := store.Open(filepath.Join(cfg.Data.DataDir, "companioncore.db"))
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer st.Close()

	eventBus := bus.New(cfg.Bus.SubscriberQueueDepth, log)
	defer eventBus.Close()

	m := metrics.New("companioncore")

	orch, err := orchestrator.New(cfg, st, eventBus, m, log)
	if err != nil {
		return fmt.Errorf("init orchestrator: %w", err)
	}
	defer orch.Close()

	srv := gateway.New(cfg.Gateway, orch, eventBus, m, false, log)

	config.WatchForChanges(func(updated *config.Config) {
		log.Info().Msg("configuration file changed; running engines keep their current settings until restart")
	})

	go func() {
		ticker := time.NewTicker(6 * time.Hour)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n, err := st.CleanExpired(ctx); err != nil {
					log.Warn().Err(err).Msg("failed to clean expired LLM cache entries")
				} else if n > 0 {
					log.Debug().Int64("rows", n).Msg("cleaned expired LLM cache entries")
				}
			}
		}
	}()

	log.Info().Str("addr", cfg.Gateway.ListenAddr).Msg("companioncore starting")
	if err := srv.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("gateway server: %w", err)
	}
	log.Info().Msg("companioncore shut down cleanly")
	return nil
}

func newLogger(cfg *config.Config) (zerolog.Logger, func(), error) {
	logDir := filepath.Join(filepath.Dir(cfg.Data.DataDir), "logs")
	if err := os.MkdirAll(logDir, 0755); err != nil {
		return zerolog.Logger{}, nil, err
	}

	logPath := filepath.Join(logDir, fmt.Sprintf("companioncore_%s.log", time.Now().Format("2006-01-02")))
	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
	if err != nil {
		return zerolog.Logger{}, nil, err
	}

	console := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "15:04:05"}
	multi := io.MultiWriter(file, console)

	log := zerolog.New(multi).With().Timestamp().Str("app", "companioncore").Logger()
	return log, func() { file.Close() }, nil
}
