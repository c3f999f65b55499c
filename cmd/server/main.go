package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"lingochat/internal/ai"
	"lingochat/internal/chat"
	"lingochat/internal/config"
	"lingochat/internal/httpapi"
	"lingochat/internal/httpapi/handlers"
	"lingochat/internal/jobs"
	"lingochat/internal/lifecycle"
	"lingochat/internal/notes"
	"lingochat/internal/ollama"
	"lingochat/internal/settings"
	"lingochat/internal/storage"
	"lingochat/internal/store/rabbitmq"
	"lingochat/internal/store/redisstore"
)

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load()

	db, err := storage.Open(cfg)
	if err != nil {
		logger.Fatal("open database", zap.Error(err))
	}

	redis := redisstore.New(cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	defer redis.Close()

	rabbit, err := rabbitmq.NewPublisher(cfg.RabbitURL, cfg.RabbitQueue)
	if err != nil {
		logger.Fatal("connect rabbitmq", zap.Error(err))
	}
	defer rabbit.Close()

	oc := ollama.NewClient(cfg.OllamaBaseURL, logger)
	reg := lifecycle.NewRegistry()
	manager := lifecycle.NewManager(oc, reg, logger)

	st := settings.NewStore(cfg.SettingsFile)

	providers := ai.NewRegistry()
	providers.Register(settings.ModelTypeOpenAI, func(ctx context.Context, s settings.ModelSettings) (ai.Provider, error) {
		return ai.NewOpenAIProvider(s.OpenAIAPIKey, cfg.OpenAIBaseURL, cfg.OpenAIModel), nil
	})
	providers.Register(settings.ModelTypeLocal, func(ctx context.Context, s settings.ModelSettings) (ai.Provider, error) {
		return ai.NewLocalProvider(oc, s.ModelID), nil
	})

	chatSvc := chat.NewService(chat.NewRepo(db), providers, st, cfg.ChatContextWindowSize, logger)

	h := handlers.NewHandler(
		db, cfg, redis,
		chatSvc,
		notes.NewRepo(db),
		jobs.NewRepo(db),
		rabbit,
		oc, manager, st,
		logger,
	)

	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: httpapi.NewRouter(h, cfg.JWTSecret, logger),
	}

	go func() {
		logger.Info("server starting", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down server...")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Fatal("forced shutdown", zap.Error(err))
	}
	logger.Info("server exited")
}
