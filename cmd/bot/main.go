// Package main is the entry point for the YouTube downloader bot.
package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/emanuelef/yt-dl-bot-go/internal/bot"
	"github.com/emanuelef/yt-dl-bot-go/internal/config"
	"github.com/emanuelef/yt-dl-bot-go/internal/delivery"
	"github.com/emanuelef/yt-dl-bot-go/internal/fetcher"
	"github.com/emanuelef/yt-dl-bot-go/internal/infra/cache"
	"github.com/emanuelef/yt-dl-bot-go/internal/infra/fs"
	"github.com/emanuelef/yt-dl-bot-go/internal/infra/sqlite"
	"github.com/emanuelef/yt-dl-bot-go/internal/queue"
	"github.com/emanuelef/yt-dl-bot-go/internal/session"
	"github.com/emanuelef/yt-dl-bot-go/internal/storage"
	transporthttp "github.com/emanuelef/yt-dl-bot-go/internal/transport/http"
	"github.com/emanuelef/yt-dl-bot-go/pkg/httpclient"
	"github.com/emanuelef/yt-dl-bot-go/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	logger.Setup(&logger.Config{
		Level:  cfg.LogLevel,
		Format: cfg.LogFormat,
	})

	// Fetcher with cached metadata probes
	ytdlp, err := fetcher.New(&fetcher.Config{
		DownloadDir: cfg.DownloadDir,
		YtDlpPath:   cfg.YtDlpPath,
		FFmpegPath:  cfg.FFmpegPath,
		MaxFileSize: cfg.MaxFileSize,
	}, cache.Default())
	if err != nil {
		slog.Error("Failed to initialize fetcher", "error", err)
		os.Exit(1)
	}

	if err := ytdlp.CheckBinary(); err != nil {
		slog.Error("yt-dlp binary not available", "error", err)
		os.Exit(1)
	}

	// Delivery history
	repo, err := sqlite.NewRepository(cfg.DataDir)
	if err != nil {
		slog.Error("Failed to open history store", "error", err)
		os.Exit(1)
	}
	defer repo.Close()

	// Optional oversize fallback
	var uploader delivery.Uploader
	var remotePruner fs.RemotePruner
	if cfg.R2Enabled() {
		r2, err := storage.NewR2(context.Background(),
			cfg.R2AccountID, cfg.R2AccessKeyID, cfg.R2SecretAccessKey,
			cfg.R2BucketName, cfg.R2PublicURL)
		if err != nil {
			slog.Warn("R2 not available, oversize files will be dropped", "error", err)
		} else {
			uploader = r2
			remotePruner = r2
		}
	}

	// Telegram transport
	api, err := tgbotapi.NewBotAPIWithClient(cfg.BotToken, tgbotapi.APIEndpoint, httpclient.NewMediaClient())
	if err != nil {
		slog.Error("Failed to connect to Telegram", "error", err)
		os.Exit(1)
	}
	api.Debug = cfg.IsDevelopment()

	sessions := session.NewStore()
	sender := bot.NewSender(api)

	pipeline := delivery.New(sessions, ytdlp, sender, repo, uploader, delivery.Config{
		MaxFileSize:    cfg.MaxFileSize,
		SendRetries:    cfg.SendRetries,
		SendRetryDelay: cfg.SendRetryDelay,
	})

	dispatcher := queue.NewDispatcher(cfg.MaxWorkers, cfg.MaxQueueSize, func(req queue.Request) {
		pipeline.Deliver(req.UserID, req.URL, req.Kind)
	})
	dispatcher.Start()

	limiter := bot.NewRateLimiter(&bot.RateLimitConfig{
		RequestsPerMinute: cfg.RateLimitRPM,
		Burst:             cfg.RateLimitBurst,
		CleanupInterval:   10 * time.Minute,
	})

	b := bot.New(api, sessions, dispatcher, limiter, cfg.AllowedUserIDs)

	// Cleanup backstop for orphaned files and old history
	cleanerCtx, cancelCleaner := context.WithCancel(context.Background())
	cleaner := fs.NewCleaner(&fs.Config{
		DownloadDir:   cfg.DownloadDir,
		MaxFileAge:    cfg.MaxFileAge,
		Interval:      cfg.CleanupInterval,
		History:       repo,
		HistoryMaxAge: cfg.HistoryMaxAge,
		Remote:        remotePruner,
		RemoteMaxAge:  cfg.R2MaxFileAge,
	})
	cleaner.Start(cleanerCtx)

	// Optional status endpoints
	var server *http.Server
	if cfg.StatusPort != "" {
		handlers := transporthttp.NewHandlers(sessions, dispatcher, repo)
		router := transporthttp.NewRouter(cfg.AllowedOrigins, handlers)
		server = transporthttp.NewServer(":"+cfg.StatusPort, router)

		go func() {
			slog.Info("Status server starting", "port", cfg.StatusPort)
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				slog.Error("Status server error", "error", err)
			}
		}()
	}

	go b.Run()

	// Graceful shutdown
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	slog.Info("Shutting down...")

	b.Stop()
	dispatcher.Stop()
	limiter.Stop()
	cleaner.Stop()
	cancelCleaner()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		server.Shutdown(ctx)
	}

	slog.Info("Shutdown complete")
}
