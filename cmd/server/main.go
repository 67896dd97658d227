// Package main runs the live session HTTP server with the presenter event stream and graceful shutdown.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/aura-pulse/backend/config"
	"github.com/aura-pulse/backend/internal/analytics"
	"github.com/aura-pulse/backend/internal/auth"
	"github.com/aura-pulse/backend/internal/middleware"
	"github.com/aura-pulse/backend/internal/models"
	"github.com/aura-pulse/backend/internal/participants"
	"github.com/aura-pulse/backend/internal/realtime"
	"github.com/aura-pulse/backend/internal/reports"
	"github.com/aura-pulse/backend/internal/scoring"
	"github.com/aura-pulse/backend/internal/sessions"
	"github.com/aura-pulse/backend/internal/viewerlog"
	"github.com/aura-pulse/backend/internal/worker"
	"github.com/aura-pulse/backend/pkg/database"
	"github.com/aura-pulse/backend/pkg/queue"
	"github.com/aura-pulse/backend/pkg/redis"
	"github.com/aura-pulse/backend/pkg/response"
	"github.com/aura-pulse/backend/pkg/storage"
)

func main() {
	logger := newLogger()
	defer logger.Sync()

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("load config", zap.Error(err))
	}

	ctx := context.Background()
	pool, err := database.NewPostgresPool(ctx, cfg.Database.DSN(), cfg.Database.MaxConns, logger)
	if err != nil {
		logger.Fatal("database", zap.Error(err))
	}
	defer pool.Close()

	if err := database.Migrate(ctx, pool, logger); err != nil {
		logger.Fatal("migrate", zap.Error(err))
	}

	// Redis carries cross-instance fan-out and the report queue; without it both stay local or off.
	var (
		rdb         *redis.Client
		jobQueue    *queue.Queue
		reportQueue sessions.ReportQueue
		enqueuer    reports.Enqueuer
		hubOpts     = realtime.Options{
			HeartbeatInterval:  cfg.Stream.Heartbeat(),
			MaxConnsPerSession: cfg.Stream.MaxConnsPerSession,
			Metrics:            realtime.NewMetrics(prometheus.DefaultRegisterer),
		}
	)
	if cfg.Redis.Enabled {
		rdb, err = redis.NewClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, logger)
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer rdb.Close()
		pubsub := realtime.NewRedisPubSub(rdb.Client, logger)
		hubOpts.RedisPub, hubOpts.RedisSub = pubsub, pubsub
		jobQueue = queue.NewQueue(rdb.Client, logger)
		reportQueue, enqueuer = jobQueue, jobQueue
	} else {
		logger.Warn("redis disabled: fan-out is local to this instance and reports are not exported")
	}

	var (
		s3Client  *storage.S3
		presigner reports.Presigner
	)
	if cfg.AWS.Region != "" {
		s3Client, err = storage.NewS3(ctx, storage.S3Config{
			Region:               cfg.AWS.Region,
			AccessKeyID:          cfg.AWS.AccessKeyID,
			SecretAccessKey:      cfg.AWS.SecretAccessKey,
			ReportsBucket:        cfg.AWS.ReportsBucket,
			PresignExpireMinutes: cfg.AWS.PresignExpireMinutes,
		}, logger)
		if err != nil {
			logger.Warn("s3 disabled", zap.Error(err))
			s3Client = nil
		} else {
			presigner = s3Client
		}
	}

	jwtService := auth.NewJWTService(cfg.JWT.Secret, cfg.JWT.ExpireHours)
	hub := realtime.NewHub(logger, hubOpts)

	// Auth
	authRepo := auth.NewRepository(pool)
	authHandler := auth.NewHandler(authRepo, jwtService, logger)

	// Sessions and participants
	sessionRepo := sessions.NewRepository(pool)
	participantRepo := participants.NewRepository(pool)
	sessionSvc := sessions.NewService(sessionRepo, participantRepo, hub, hub, reportQueue, logger)
	sessionHandler := sessions.NewHandler(sessionSvc, logger)
	participantSvc := participants.NewService(participantRepo, sessionRepo, hub, scoring.LikertScorer{}, logger)
	participantHandler := participants.NewHandler(participantSvc, logger)

	// Analytics
	aggregator := analytics.Default()
	analyticsHandler := analytics.NewHandler(sessionSvc, aggregator)

	// Presenter connection log
	viewerRepo := viewerlog.NewRepository(pool)
	viewerHandler := viewerlog.NewHandler(viewerRepo, hub)
	hub.SetViewerHooks(viewerlog.Hooks(viewerRepo, logger))

	// Reports
	reportRepo := reports.NewRepository(pool)
	reportHandler := reports.NewHandler(reportRepo, presigner, enqueuer, logger)

	// Event stream
	streamHandler := realtime.NewStreamHandler(hub, sessionSvc, jwtService.Identify, cfg.Stream.SendBuffer, logger)

	httpMetrics := middleware.NewHTTPMetrics(prometheus.DefaultRegisterer)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.CORS(cfg.Server.CORSAllowedOrigins))
	router.Use(middleware.Logger(logger))
	router.Use(httpMetrics.Handler())

	// Health
	router.GET("/health", func(c *gin.Context) {
		if err := pool.Ping(c.Request.Context()); err != nil {
			response.ServiceUnavailable(c, "database unavailable")
			return
		}
		if rdb != nil {
			if err := rdb.Healthy(c.Request.Context()); err != nil {
				response.ServiceUnavailable(c, "redis unavailable")
				return
			}
		}
		response.OK(c, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// Auth (public)
	authGroup := router.Group("/auth")
	{
		authGroup.POST("/login", authHandler.Login)
		authGroup.POST("/register", authHandler.Register)
	}

	// Participant routes (public; participants hold only their own id)
	router.GET("/api/sessions/code/:code", sessionHandler.GetByCode)
	router.POST("/api/sessions/join", participantHandler.Join)
	router.PUT("/api/participants/:id/answers/:index", participantHandler.SaveAnswer)
	router.POST("/api/participants/:id/complete", participantHandler.Complete)

	// Event stream (token in query; EventSource cannot send headers)
	if cfg.Stream.Enabled {
		router.GET("/api/sessions/:id/stream", streamHandler.Serve)
	}

	// Protected API (JWT required)
	api := router.Group("/api")
	api.Use(middleware.JWT(jwtService))
	{
		api.GET("/me", authHandler.Me)

		api.POST("/sessions", middleware.RequireRole(models.RoleAdmin), sessionHandler.Create)
		api.GET("/sessions", sessionHandler.List)
		// Per-session routes: observers and the creator may read, only the creator may change.
		viewer, owner := sessionHandler.Viewer(), sessionHandler.Owner()
		admin := middleware.RequireRole(models.RoleAdmin)
		api.GET("/sessions/:id", viewer, sessionHandler.GetByID)
		api.PATCH("/sessions/:id/active", admin, owner, sessionHandler.SetActive)
		api.POST("/sessions/:id/end", admin, owner, sessionHandler.End)
		api.DELETE("/sessions/:id", admin, owner, sessionHandler.Delete)
		api.DELETE("/sessions/:id/participants/:pid", admin, owner, sessionHandler.RemoveParticipant)
		api.GET("/sessions/:id/snapshot", viewer, sessionHandler.Snapshot)
		api.GET("/sessions/:id/analytics", viewer, analyticsHandler.GetBySession)
		api.GET("/sessions/:id/capabilities", viewer, realtime.CapabilitiesHandler(cfg.Stream.Enabled, cfg.Stream.PollIntervalMs))
		api.GET("/sessions/:id/viewers", viewer, viewerHandler.GetViewers)
		api.GET("/sessions/:id/report", viewer, reportHandler.GetLatest)
		api.POST("/sessions/:id/report", admin, owner, reportHandler.Request)
	}

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      router,
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
	}

	// Heartbeats, and the in-process report worker when queue and storage are both up.
	bgCtx, bgCancel := context.WithCancel(context.Background())
	defer bgCancel()
	go hub.Run(bgCtx)
	if cfg.Server.RunWorker && jobQueue != nil && s3Client != nil {
		exporter := reports.NewExporter(sessionSvc, s3Client, reportRepo, logger)
		go worker.NewReportProcessor(exporter, jobQueue, logger).Run(bgCtx)
		logger.Info("report worker started")
	}

	go func() {
		logger.Info("server listening", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	// Streams never finish on their own; cancelling the hub closes them so Shutdown can drain.
	bgCancel()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}

func newLogger() *zap.Logger {
	config := zap.NewProductionConfig()
	config.EncoderConfig.TimeKey = "timestamp"
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	logger, _ := config.Build()
	return logger
}
