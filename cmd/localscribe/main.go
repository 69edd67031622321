package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	audioimpl "github.com/foxseedlab/localscribe/external/audio"
	configloader "github.com/foxseedlab/localscribe/external/config"
	"github.com/foxseedlab/localscribe/external/discord"
	repositoryimpl "github.com/foxseedlab/localscribe/external/repository"
	"github.com/foxseedlab/localscribe/external/server"
	transcriberimpl "github.com/foxseedlab/localscribe/external/transcriber"
	webhookimpl "github.com/foxseedlab/localscribe/external/webhook"
	"github.com/foxseedlab/localscribe/internal/config"
	"github.com/foxseedlab/localscribe/internal/convert"
	"github.com/foxseedlab/localscribe/internal/metrics"
	"github.com/foxseedlab/localscribe/internal/orchestrator"
	"github.com/foxseedlab/localscribe/internal/repository"
	"github.com/foxseedlab/localscribe/internal/session"
	"github.com/samber/do/v2"
)

const shutdownTimeout = 20 * time.Second

func main() {
	slog.Info("startup: loading configuration")
	cfg := mustLoadConfig()
	initLogger(cfg)
	slog.Info("startup: configuration loaded", "env", cfg.Env, "engine", cfg.TranscriptionEngine, "mode", cfg.TranscriptionMode)

	slog.Info("startup: building dependency graph")
	injector := setupDI(cfg)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sweepStaleScratch(cfg, injector)

	o := mustInvoke[*orchestrator.Orchestrator](injector, "orchestrator")
	srv := mustInvoke[*server.HTTPServer](injector, "http server")
	if err := srv.Start(); err != nil {
		slog.Error("http server start failed", "error", err)
		os.Exit(1)
	}

	var manager *session.Manager
	if cfg.DiscordEnabled() {
		slog.Info("startup: connecting to discord gateway")
		manager = mustInvoke[*session.Manager](injector, "session manager")
		if err := manager.Start(ctx); err != nil {
			slog.Error("discord connect failed", "error", err)
			os.Exit(1)
		}
		slog.Info("startup: discord connected", "channel_id", cfg.DiscordChannelID)
	}

	<-ctx.Done()
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if manager != nil {
		if err := manager.Close(); err != nil {
			slog.Error("discord close failed", "error", err)
		}
	}
	if err := srv.Stop(shutdownCtx); err != nil {
		slog.Error("http server shutdown failed", "error", err)
	}
	if err := o.Close(); err != nil {
		slog.Error("failed to release model", "error", err)
	}
	if repo, err := do.Invoke[repository.Repository](injector); err == nil {
		repo.Close()
	}
}

func mustLoadConfig() *config.Config {
	cfg, err := configloader.Load()
	if err != nil {
		slog.Error("config validation failed", "error", err)
		os.Exit(1)
	}
	return cfg
}

func initLogger(cfg *config.Config) {
	logLevel := slog.LevelInfo
	if cfg.IsDevelopment() {
		logLevel = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))
}

func setupDI(cfg *config.Config) do.Injector {
	injector := do.New()

	do.ProvideValue(injector, cfg)
	metrics.RegisterDI(injector)
	repositoryimpl.RegisterDI(injector)
	audioimpl.RegisterDI(injector)
	convert.RegisterDI(injector)
	transcriberimpl.RegisterDI(injector)
	webhookimpl.RegisterDI(injector)
	orchestrator.RegisterDI(injector)
	server.RegisterDI(injector)
	discord.RegisterDI(injector)
	session.RegisterDI(injector)

	return injector
}

func mustInvoke[T any](injector do.Injector, name string) T {
	v, err := do.Invoke[T](injector)
	if err != nil {
		slog.Error("failed to resolve "+name, "error", err)
		os.Exit(1)
	}
	return v
}

// sweepStaleScratch removes files a previous process left behind.
func sweepStaleScratch(cfg *config.Config, injector do.Injector) {
	p := mustInvoke[*convert.Pipeline](injector, "conversion pipeline")
	n, err := p.Sweep(cfg.ScratchRetention)
	if err != nil {
		slog.Warn("startup scratch sweep incomplete", "removed", n, "error", err)
		return
	}
	slog.Info("startup: scratch directory swept", "dir", cfg.ScratchDir, "removed", n)
}
