package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/courseflow/video-server-go/internal/features/lesson"
	"github.com/courseflow/video-server-go/internal/features/updates"
	"github.com/courseflow/video-server-go/internal/http/routes"
	"github.com/courseflow/video-server-go/pkg/cache"
	"github.com/courseflow/video-server-go/pkg/config"
	"github.com/courseflow/video-server-go/pkg/database"
	"github.com/courseflow/video-server-go/pkg/jobs"
	"github.com/courseflow/video-server-go/pkg/logger"
	"github.com/courseflow/video-server-go/pkg/metrics"
	"github.com/courseflow/video-server-go/pkg/middleware"
	"github.com/courseflow/video-server-go/pkg/mux"
	"github.com/courseflow/video-server-go/pkg/request"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("load config: %v", err)
	}

	appLogger, err := logger.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger: %v", err)
	}

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}

	db, err := database.ConnectWithRetry(ctx, cfg.Database, appLogger, 5, 2*time.Second)
	if err != nil {
		appLogger.Error("database connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}

	defer func() {
		if err := database.Close(db, appLogger); err != nil {
			appLogger.Error("database close failed", slog.String("error", err.Error()))
		}
	}()

	cacheClient, err := cache.NewRedisClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		appLogger.Error("redis connection failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer cacheClient.Close()

	// Initialize the video provider client
	muxClient := mux.NewClient(cfg.Mux.TokenID, cfg.Mux.TokenSecret, cfg.Mux.BaseURL)
	if !muxClient.IsConfigured() {
		appLogger.Warn("video provider credentials missing, upload sessions will fail")
	}

	// Signer degrades to unsigned URLs when signing material is absent
	signer, err := mux.NewURLSigner(
		cfg.Mux.SigningKeyID,
		cfg.Mux.SigningKey,
		cfg.Mux.StreamBaseURL,
		cfg.Mux.ImageBaseURL,
		cfg.Mux.TokenTTL,
	)
	if err != nil {
		appLogger.Error("url signer initialization failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
	if !signer.Enabled() {
		appLogger.Warn("signing key not configured, serving unsigned playback URLs")
	}

	broadcaster := updates.NewBroadcaster(cfg.Updates.SubscriberBuffer)

	// Background reconcile job for lessons whose webhook never arrived
	scheduler := jobs.NewScheduler(appLogger)
	scheduler.AddJob(
		lesson.NewReconcileJob(
			db,
			muxClient,
			signer,
			cacheClient,
			broadcaster,
			appLogger,
			time.Duration(cfg.Updates.PendingStaleAfter)*time.Minute,
		),
		time.Duration(cfg.Updates.ReconcileMinutes)*time.Minute,
	)
	scheduler.Start()
	defer scheduler.Stop()

	router := gin.New()

	router.Use(middleware.Recovery(appLogger))
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(middleware.RequestID())
	router.Use(middleware.RequestLogger(appLogger))
	router.Use(middleware.SecurityHeaders())
	router.Use(middleware.RequestSizeLimit(1 * 1024 * 1024)) // webhook and JSON payloads only
	router.Use(metrics.Middleware())
	router.Use(request.Handler(appLogger))

	// Rate limiting (100 requests per minute per IP)
	rateLimiter := middleware.NewRateLimiter(100, time.Minute)
	router.Use(rateLimiter.Middleware())

	routes.Register(router, cfg, db, appLogger, muxClient, signer, cacheClient, broadcaster)

	srv := &http.Server{
		Addr:              cfg.ServerAddress(),
		Handler:           router,
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 5 * time.Second,
		// No write deadline: the course updates stream stays open until
		// the peer disconnects.
		WriteTimeout:   0,
		IdleTimeout:    120 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1MB
	}

	go func() {
		appLogger.Info("server starting",
			slog.String("addr", cfg.ServerAddress()),
			slog.String("env", cfg.Env),
			slog.String("log_level", cfg.LogLevel),
		)

		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			appLogger.Error("server listen failed", slog.String("error", err.Error()))
			os.Exit(1)
		}
	}()

	appLogger.Info("server started successfully")

	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		appLogger.Error("server shutdown failed", slog.String("error", err.Error()))
	} else {
		appLogger.Info("server stopped gracefully")
	}
}
