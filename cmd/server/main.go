package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/jsnider89/ai-news-digest/internal/ai"
	"github.com/jsnider89/ai-news-digest/internal/api"
	"github.com/jsnider89/ai-news-digest/internal/archive"
	"github.com/jsnider89/ai-news-digest/internal/config"
	"github.com/jsnider89/ai-news-digest/internal/mail"
	"github.com/jsnider89/ai-news-digest/internal/market"
	"github.com/jsnider89/ai-news-digest/internal/pipeline"
	"github.com/jsnider89/ai-news-digest/internal/pkg/logger"
	"github.com/jsnider89/ai-news-digest/internal/pkg/runlock"
	"github.com/jsnider89/ai-news-digest/internal/render"
	"github.com/jsnider89/ai-news-digest/internal/scheduler"
	"github.com/jsnider89/ai-news-digest/internal/store"
)

func fatal(msg string, err error) {
	logger.Error(msg, "error", err.Error())
	os.Exit(1)
}

func main() {
	cfg, err := config.LoadFromEnv("config/config.yaml")
	if err != nil {
		fatal("failed to load config", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))

	logger.Info("starting ai-news-digest",
		"db", cfg.Database.Driver(),
		"email_transport", cfg.Email.Transport,
		"log_level", cfg.Logging.Level)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, err := store.Open(cfg.Database)
	if err != nil {
		fatal("failed to open database", err)
	}
	defer st.Close()

	// Redis extends run coalescing across instances. Without it the
	// in-process locker still guards a single instance.
	var locks runlock.Locker
	if cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(cfg.Redis.URL)
		if err != nil {
			logger.Warn("invalid redis url, run locks stay in-process", "error", err.Error())
		} else {
			client := redis.NewClient(opts)
			pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
			err := client.Ping(pingCtx).Err()
			cancel()
			if err != nil {
				logger.Warn("redis unreachable, run locks stay in-process", "error", err.Error())
				client.Close()
			} else {
				// The lock TTL must outlive the longest possible run.
				locks = runlock.New(client, cfg.Digest.RunDeadline()+time.Minute)
				defer client.Close()
				logger.Info("redis connected, cross-instance run coalescing enabled")
			}
		}
	}

	cascade := ai.NewCascade(ctx, cfg.AI)
	quotes := market.NewClient(cfg.Market)
	if !quotes.Enabled() {
		logger.Info("market quotes disabled (no api key)")
	}

	mailer, err := mail.New(ctx, cfg.Email)
	if err != nil {
		fatal("failed to initialize email transport", err)
	}

	renderer, err := render.NewRenderer()
	if err != nil {
		fatal("failed to load digest templates", err)
	}

	archiver, err := archive.New(ctx, cfg.Archive)
	if err != nil {
		logger.Warn("s3 archive unavailable, archiving locally", "error", err.Error())
		archiver = archive.NewLocalArchive(cfg.Archive.LocalDir)
	}

	pipe := pipeline.New(pipeline.Deps{
		Store:     st,
		Config:    cfg,
		Generator: cascade,
		Quotes:    quotes,
		Mailer:    mailer,
		Renderer:  renderer,
		Archiver:  archiver,
		Locks:     locks,
	})

	sched := scheduler.New(st, cfg, pipe)
	if err := sched.Start(); err != nil {
		fatal("failed to start scheduler", err)
	}

	server := api.New(cfg, st, pipe, sched)

	addr := fmt.Sprintf("%s:%d", cfg.Server.GetHost(), cfg.Server.Port)
	errCh := make(chan error, 1)
	go func() {
		logger.Info("http server listening", "addr", addr)
		if err := server.ListenAndServe(addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutdown signal received")
	case err := <-errCh:
		logger.Error("http server failed", "error", err.Error())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http server shutdown", "error", err.Error())
	}
	sched.Stop()
	logger.Info("stopped")
}
