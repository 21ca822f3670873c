package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"intake-platform/internal/audit"
	"intake-platform/internal/auth"
	"intake-platform/internal/config"
	"intake-platform/internal/observer"
	"intake-platform/internal/profile"
	"intake-platform/internal/projects"
	"intake-platform/internal/transcripts"
	"intake-platform/internal/vapi"
	"intake-platform/pkg/logger"
	"intake-platform/pkg/utils"

	"github.com/gin-gonic/gin"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
)

func main() {
	// Root context that cancels on shutdown
	rootCtx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Local runs keep secrets in .env; absence is fine everywhere else.
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config load failed", "err", err)
		os.Exit(1)
	}

	log := logger.New(cfg.App.Env)
	slog.SetDefault(log)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	authManager, err := auth.NewManager(cfg.Auth)
	if err != nil {
		log.Error("auth init failed", "err", err)
		os.Exit(1)
	}

	db, err := utils.OpenPostgres(rootCtx, "pgx", cfg.PostgresDSN(), utils.PostgresPoolConfig{})
	if err != nil {
		log.Error("postgres init failed", "err", err)
		os.Exit(1)
	}
	defer db.Close()

	rdb, err := utils.OpenRedis(rootCtx, utils.RedisConfig{Addr: cfg.RedisAddr()})
	if err != nil {
		log.Error("redis init failed", "err", err)
		os.Exit(1)
	}
	defer rdb.Close()

	auditTrail := audit.NewService(audit.NewSQLRepository(db))
	obs := observer.Multi{
		observer.NewLogObserver(log),
		audit.NewObserver(auditTrail),
	}

	// LLM extraction is optional; without a key the populator merges only
	// vendor-supplied structured data.
	var extractor profile.FactExtractor
	if cfg.OpenAI.APIKey != "" {
		extractor, err = profile.NewOpenAIExtractor(cfg.OpenAI)
		if err != nil {
			log.Error("openai init failed", "err", err)
			os.Exit(1)
		}
	} else {
		log.Warn("OPENAI_API_KEY not set; transcript fact extraction disabled")
	}

	profileSvc := profile.NewService(profile.NewSQLRepository(db), extractor, obs)

	vendor := vapi.NewClient(cfg.Vapi.BaseURL, cfg.Vapi.APIKey)
	limiter := vapi.NewRedisLimiter(rdb, 0, 0) // defaults: 1 concurrent call per project
	ingest := vapi.NewService(
		vendor,
		transcripts.NewSQLRepository(db),
		projects.NewSQLRepository(db),
		profileSvc,
		limiter,
		obs,
	)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(logger.Middleware(log))

	registerRoutes(r, registerDeps{
		db:      db,
		auth:    authManager,
		ingest:  ingest,
		webhook: cfg.Vapi.WebhookSecret,
	})

	srv := &http.Server{
		Addr:              cfg.HTTPAddr(),
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	go func() {
		log.Info("api listening", "addr", srv.Addr, "env", cfg.App.Env)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server failed", "err", err)
			stop()
		}
	}()

	<-rootCtx.Done()
	log.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http shutdown failed", "err", err)
	}

	_ = logger.ShutdownFlush(shutdownCtx, 2*time.Second)
}
