package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"health-chat/internal/config"
	"health-chat/internal/db"
	apihttp "health-chat/internal/http"
	"health-chat/internal/llm"
	"health-chat/internal/metrics"
	"health-chat/internal/repository"
	"health-chat/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil {
		log.Printf("warning: loading .env: %v", err)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		panic(err)
	}

	logger, _ := zap.NewProduction()
	defer logger.Sync()

	var (
		conversationRepo repository.ConversationRepository
		messageRepo      repository.MessageRepository
		userRepo         repository.UserRepository
		storage          apihttp.Pinger
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Ping(ctx, pool); err != nil {
			logger.Fatal("db ping", zap.Error(err))
		}
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		conversationRepo = repository.NewPgConversationRepository(pool)
		messageRepo = repository.NewPgMessageRepository(pool)
		userRepo = repository.NewPgUserRepository(pool)
		storage = pool
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory store")
		store := repository.NewMemoryStore()
		conversationRepo = store.Conversations()
		messageRepo = store.Messages()
		userRepo = store.Users()
		storage = store
	}

	var limiter service.RequestLimiter
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed, using in-memory request limiter", zap.Error(err))
		} else {
			limiter = service.NewRedisRequestLimiter(redisClient, cfg.ChatRateWindow, cfg.ChatRateLimit)
			defer redisClient.Close()
		}
		cancel()
	}
	if limiter == nil {
		limiter = service.NewMemoryRequestLimiter(cfg.ChatRateWindow, cfg.ChatRateLimit)
	}

	var responder service.ResponseGenerator
	if cfg.LLMAPIKey != "" {
		llmClient := llm.NewOpenAIClient(cfg.LLMBaseURL, cfg.LLMAPIKey, cfg.LLMModel, logger)
		responder = service.NewLLMResponder(llmClient, cfg.LLMHistoryLimit)
	} else {
		logger.Warn("LLM_API_KEY not set, using keyword responder")
		responder = service.NewKeywordResponder()
	}

	exporter := metrics.NewExporter(metrics.DefaultConfig())

	chatSvc := service.NewConversationService(logger, conversationRepo, messageRepo, responder, limiter, exporter, service.ConversationSettings{
		UpstreamTimeout: cfg.LLMTimeout,
		HistoryLimit:    cfg.LLMHistoryLimit,
	})
	userSvc := service.NewUserService(logger, userRepo)

	conversationHandler := apihttp.NewConversationHandler(logger, chatSvc)
	quickActionHandler := apihttp.NewQuickActionHandler(logger, chatSvc)
	userHandler := apihttp.NewUserHandler(logger, userSvc)
	router := apihttp.NewRouter(logger, exporter, storage, conversationHandler, quickActionHandler, userHandler)

	server := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			logger.Warn("server shutdown", zap.Error(err))
		}
	}()

	logger.Info("starting server", zap.String("port", cfg.HTTPPort))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
