package routes

import (
	"time"

	"log/slog"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/courseflow/video-server-go/internal/features/course"
	"github.com/courseflow/video-server-go/internal/features/lesson"
	"github.com/courseflow/video-server-go/internal/features/updates"
	"github.com/courseflow/video-server-go/internal/features/userview"
	"github.com/courseflow/video-server-go/internal/middleware"
	"github.com/courseflow/video-server-go/pkg/cache"
	"github.com/courseflow/video-server-go/pkg/config"
	"github.com/courseflow/video-server-go/pkg/health"
	"github.com/courseflow/video-server-go/pkg/mux"
	"github.com/courseflow/video-server-go/pkg/types"
)

// Register wires all feature routes onto the engine.
func Register(engine *gin.Engine, cfg *config.Config, db *gorm.DB, logger *slog.Logger, muxClient *mux.Client, signer *mux.URLSigner, cacheClient cache.Client, broadcaster *updates.Broadcaster) {
	// Health check endpoints (no /api prefix for Kubernetes probes)
	healthHandler := health.NewHandler(db, cacheClient, logger)
	engine.GET("/health", healthHandler.Health)
	engine.GET("/ready", healthHandler.Ready)
	engine.GET("/version", healthHandler.VersionInfo)

	// Metrics endpoint for Prometheus
	engine.GET("/metrics", gin.WrapH(promhttp.Handler()))

	api := engine.Group("/api")

	// Initialize global middleware instance
	middleware.Initialize(db, cfg.JWTSecret, logger)

	// SuperAdmin automatically has access to everything (handled in AuthorizeRoles)
	adminOnly := middleware.RequireRoles(types.UserTypeAdmin)
	staff := middleware.RequireRoles(types.UserTypeAdmin, types.UserTypeInstructor)
	allUsers := middleware.RequireRoles(types.UserTypeAdmin, types.UserTypeInstructor, types.UserTypeStudent)

	corsOrigin := "*"
	if len(cfg.AllowedOrigins) > 0 {
		corsOrigin = cfg.AllowedOrigins[0]
	}

	courseHandler := course.NewHandler(db, logger)
	course.RegisterRoutes(api, courseHandler, staff, allUsers)

	lessonHandler := lesson.NewHandler(db, logger, muxClient, signer, cacheClient, broadcaster, corsOrigin)
	lesson.RegisterRoutes(api, lessonHandler, staff, allUsers)

	userviewHandler := userview.NewHandler(db, logger, signer)
	userview.RegisterRoutes(api, userviewHandler, adminOnly, allUsers)

	keepAlive := time.Duration(cfg.Updates.KeepAliveSeconds) * time.Second
	updatesHandler := updates.NewHandler(db, logger, broadcaster, keepAlive)
	updates.RegisterRoutes(api, updatesHandler, allUsers)
}
