package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"sdq-screen/internal/config"
	"sdq-screen/internal/db"
	"sdq-screen/internal/email"
	apihttp "sdq-screen/internal/http"
	"sdq-screen/internal/llm"
	"sdq-screen/internal/repository"
	"sdq-screen/internal/sdq"
	"sdq-screen/internal/service"

	"github.com/joho/godotenv"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
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

	catalog := sdq.DefaultCatalog()
	if cfg.CatalogPath != "" {
		catalog, err = sdq.LoadCatalogFile(cfg.CatalogPath)
		if err != nil {
			logger.Fatal("load catalog", zap.String("path", cfg.CatalogPath), zap.Error(err))
		}
	}
	logger.Info("catalog loaded", zap.String("version", catalog.Version()))

	var (
		userRepo       repository.UserRepository
		subjectRepo    repository.SubjectRepository
		sessionRepo    repository.SessionRepository
		reviewRepo     repository.ReviewRepository
		transcriptRepo repository.TranscriptRepository
	)
	if cfg.DatabaseURL != "" {
		pool, err := db.NewPool(ctx, cfg)
		if err != nil {
			logger.Fatal("db connect", zap.Error(err))
		}
		defer pool.Close()
		if err := db.Migrate(ctx, pool); err != nil {
			logger.Fatal("db migrate", zap.Error(err))
		}
		userRepo = repository.NewPgUserRepository(pool)
		subjectRepo = repository.NewPgSubjectRepository(pool)
		sessionRepo = repository.NewPgSessionRepository(pool)
		reviewRepo = repository.NewPgReviewRepository(pool)
		transcriptRepo = repository.NewPgTranscriptRepository(pool)
	} else {
		logger.Warn("DATABASE_URL not set, using in-memory stores")
		userRepo = repository.NewMemoryUserRepository()
		subjectRepo = repository.NewMemorySubjectRepository()
		sessionRepo = repository.NewMemorySessionRepository()
		reviewRepo = repository.NewMemoryReviewRepository()
		transcriptRepo = repository.NewMemoryTranscriptRepository()
	}

	retry := llm.DefaultRetryConfig()
	retry.MaxAttempts = cfg.LLMMaxAttempts
	provider, embedder, err := llm.NewProvider(ctx, llm.Config{
		Provider:       cfg.LLMProvider,
		APIKey:         cfg.LLMAPIKey,
		BaseURL:        cfg.LLMBaseURL,
		Model:          cfg.LLMModel,
		EmbeddingModel: cfg.EmbeddingModel,
		Retry:          retry,
	}, logger)
	if err != nil {
		logger.Fatal("llm provider", zap.Error(err))
	}
	var (
		interpreter service.Interpreter    = service.KeywordInterpreter{}
		drafter     service.SummaryDrafter = service.TemplateDrafter{}
	)
	if provider != nil {
		interpreter = service.NewLLMInterpreter(provider, logger)
		drafter = service.NewLLMSummaryDrafter(provider, logger)
		logger.Info("llm provider ready", zap.String("model", provider.ModelID()))
	}
	indexer := service.NewTranscriptIndexer(logger, embedder, transcriptRepo)
	defer indexer.Wait()

	var notifier email.Notifier
	if cfg.SMTPHost != "" {
		var sender email.Sender
		smtpSender, err := email.NewSMTPSender(email.SMTPConfig{
			Host:        cfg.SMTPHost,
			Port:        cfg.SMTPPort,
			Username:    cfg.SMTPUser,
			Password:    cfg.SMTPPass,
			From:        cfg.SMTPFrom,
			FromName:    cfg.SMTPFromName,
			ImplicitTLS: cfg.SMTPUseTLS,
		})
		if err != nil {
			logger.Warn("smtp sender init failed, notifications disabled", zap.Error(err))
			sender = email.NewDisabledSender(err.Error())
		} else {
			sender = smtpSender
		}
		notifier = email.NewMailNotifier(sender, cfg.ReviewerEmails, cfg.PublicBaseURL)
	}

	var (
		limiter    = service.NewMemoryRateLimiter(cfg.RespondRateWindow, cfg.RespondRateLimit)
		tokenStore service.RefreshTokenStore
	)
	if cfg.RedisAddr != "" {
		redisClient := redis.NewClient(&redis.Options{
			Addr:     cfg.RedisAddr,
			Password: cfg.RedisPassword,
			DB:       cfg.RedisDB,
		})
		defer redisClient.Close()
		ctxPing, cancel := context.WithTimeout(ctx, 2*time.Second)
		if err := redisClient.Ping(ctxPing).Err(); err != nil {
			logger.Warn("redis ping failed", zap.Error(err))
		} else {
			limiter = service.NewRedisRateLimiter(redisClient, cfg.RespondRateWindow, cfg.RespondRateLimit)
			tokenStore = service.NewRedisRefreshTokenStore(redisClient)
		}
		cancel()
	}
	jwtSvc := service.NewJWTServiceWithStore(
		cfg.JWTSecret,
		time.Duration(cfg.JWTAccessTTLMinutes)*time.Minute,
		time.Duration(cfg.JWTRefreshTTLMinutes)*time.Minute,
		tokenStore,
	)
	if cfg.JWTSecret == "" {
		logger.Warn("jwt secret not configured")
	}

	policy := service.RespondentPolicy{
		SelfReportMinAge: cfg.SelfReportMinAge,
		RequireAllRoles:  cfg.ReviewRequireAllRoles,
	}
	userSvc := service.NewUserService(logger, userRepo, cfg.ReviewerEmails...)
	subjectSvc, err := service.NewSubjectService(logger, subjectRepo, catalog, cfg.SharingCodeSalt)
	if err != nil {
		logger.Fatal("subject service", zap.Error(err))
	}
	aggregator := service.NewAggregator(logger, subjectRepo, sessionRepo, reviewRepo, catalog, policy, notifier)
	sessionSvc := service.NewSessionService(logger, subjectRepo, sessionRepo, catalog, interpreter, aggregator,
		service.WithRateLimiter(limiter),
		service.WithTranscriptIndexer(indexer),
		service.WithInterpretTimeout(cfg.InterpretTimeout),
	)
	reviewSvc := service.NewReviewService(logger, reviewRepo, sessionRepo, subjectRepo, userRepo, aggregator, drafter, indexer, notifier)

	router := apihttp.NewRouter(logger, jwtSvc,
		apihttp.NewUserHandler(logger, userSvc, jwtSvc),
		apihttp.NewSubjectHandler(logger, subjectSvc, aggregator),
		apihttp.NewSessionHandler(logger, sessionSvc, subjectSvc),
		apihttp.NewReviewHandler(logger, reviewSvc),
		apihttp.NewResultsHandler(logger, reviewSvc),
	)

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

	logger.Info("starting server", zap.String("port", cfg.HTTPPort), zap.String("llm_provider", cfg.LLMProvider))

	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatal("server error", zap.Error(err))
	}
}
