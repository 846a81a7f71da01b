package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"parent-bridge/api/internal/audit"
	"parent-bridge/api/internal/blob"
	"parent-bridge/api/internal/blob/s3"
	"parent-bridge/api/internal/config"
	"parent-bridge/api/internal/handle"
	"parent-bridge/api/internal/httpserver"
	"parent-bridge/api/internal/llm"
	"parent-bridge/api/internal/llm/gemini"
	"parent-bridge/api/internal/llm/openai"
	"parent-bridge/api/internal/notify"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Fatal("parent-bridge stopped", zap.Error(err))
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	engines := &llm.Engines{
		Llama: openai.New(cfg.LlamaAPIKey, cfg.LlamaModel, cfg.LlamaBaseURL),
	}
	if cfg.GeminiAPIKey != "" {
		engines.Gemini = gemini.New(cfg.GeminiAPIKey, cfg.GeminiModel)
	}

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	opts := handle.Options{
		Bucket:     cfg.StorageBucket,
		DemoImages: cfg.DemoImages,
		Audit:      audit.Nop{},
		Logger:     logger,
	}

	if cfg.DatabaseDSN != "" {
		dctx, cancel := context.WithTimeout(ctx, 5*time.Second)
		db, err := audit.Open(dctx, cfg.DatabaseDSN)
		cancel()
		if err != nil {
			return err
		}
		defer db.Close()
		repo := audit.NewRepo(db)
		if err := repo.EnsureSchema(ctx); err != nil {
			return err
		}
		opts.Audit = repo
		logger.Info("audit log enabled", zap.String("db", config.SafeDSNSummary(cfg.DatabaseDSN)))
	}

	if cfg.TelegramBotToken != "" {
		tg, err := notify.New(cfg.TelegramBotToken, cfg.TelegramChatID)
		if err != nil {
			return err
		}
		opts.Notifier = tg
		logger.Info("telegram delivery enabled", zap.Int64("default_chat", cfg.TelegramChatID))
	}

	mux := http.NewServeMux()
	handle.New(engines, store, opts).Register(mux)

	logger.Info("parent-bridge starting",
		zap.String("model", engines.Llama.Model()),
		zap.Bool("gemini", engines.Gemini != nil),
		zap.String("storage", cfg.StorageBackend),
		zap.String("bucket", cfg.StorageBucket),
	)
	return httpserver.Run(ctx, logger, ":"+cfg.Port, httpserver.RequestLog(logger, mux))
}

func newStore(ctx context.Context, cfg *config.Config) (blob.Store, error) {
	if cfg.StorageBackend == config.BackendMemory {
		return blob.NewMemoryStore(cfg.StoragePublicBaseURL), nil
	}
	return s3.New(ctx, s3.Config{
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PublicBaseURL:   cfg.StoragePublicBaseURL,
	})
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("LOG_LEVEL: %w", err)
	}
	zc := zap.NewProductionConfig()
	zc.Level = lvl
	return zc.Build()
}
