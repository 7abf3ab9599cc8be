package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cyberguard-server/internal/api"
	"cyberguard-server/internal/config"
	"cyberguard-server/internal/database"
	"cyberguard-server/internal/middleware"
	"cyberguard-server/internal/scan"
	"cyberguard-server/internal/services"
	"cyberguard-server/internal/websocket"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/minio/minio-go/v7"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

var startTime = time.Now()

func main() {
	log := logrus.New()

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Warn("failed to load config, using defaults")
		cfg = &config.Config{
			Server: config.ServerConfig{
				Address: "localhost:5000",
				Mode:    "debug",
			},
			Scan:    scan.DefaultConfig(),
			Metrics: config.DefaultMetricsConfig(),
			Scoring: config.DefaultScoringConfig(),
		}
	}

	configureLogger(log, cfg.Logging)
	log.Info("starting CyberGuard server")

	// Backends degrade gracefully: each is optional and the core keeps
	// running in memory without it.
	var db *gorm.DB
	var influxDB influxdb2.Client
	var redisClient *redis.Client
	var minioClient *minio.Client

	db, err = database.InitPostgreSQL(cfg.Database.PostgreSQL)
	if err != nil {
		log.WithError(err).Warn("PostgreSQL unavailable, continuing without database")
		db = nil
	} else {
		log.Info("PostgreSQL connected")
	}

	influxDB, err = database.InitInfluxDB(cfg.Database.InfluxDB)
	if err != nil {
		log.WithError(err).Warn("InfluxDB unavailable, continuing without time series")
		influxDB = nil
	} else {
		log.Info("InfluxDB connected")
	}

	redisClient, err = database.InitRedis(cfg.Database.Redis)
	if err != nil {
		log.WithError(err).Warn("Redis unavailable, continuing without snapshot cache")
		redisClient = nil
	} else {
		log.Info("Redis connected")
	}

	minioClient, err = database.InitMinIO(cfg.Storage.MinIO)
	if err != nil {
		log.WithError(err).Warn("MinIO unavailable, continuing without report storage")
		minioClient = nil
	} else {
		log.Info("MinIO connected")
	}

	wsHub := websocket.NewHub(log)
	go wsHub.Run()

	metricsService := services.NewMetricsService(cfg.Metrics.Aggregator, wsHub, redisClient,
		cfg.Metrics.SnapshotKey, cfg.Metrics.SnapshotTTL, cfg.Metrics.RefreshInterval, log)
	if cached, ok := metricsService.Warmup(context.Background()); ok {
		log.WithField("cached_at", cached.Timestamp).Info("previous metrics snapshot found in cache")
	}

	reportService := services.NewReportService(db, influxDB, minioClient,
		cfg.Storage.MinIO.Bucket, cfg.Database.InfluxDB.Org, cfg.Database.InfluxDB.Bucket,
		cfg.Scoring.Compliance, log)

	scanManager := scan.NewManager(cfg.Scan, nil, metricsService.Aggregator(), wsHub, reportService, log)

	threatService := services.NewThreatService(db, influxDB, metricsService.Aggregator(), wsHub,
		cfg.Scoring.Phishing, cfg.Database.InfluxDB.Org, cfg.Database.InfluxDB.Bucket, log)
	if backlog, err := threatService.UnresolvedBacklog(); err != nil {
		log.WithError(err).Warn("failed to count unresolved threats")
	} else if backlog > 0 {
		log.WithField("unresolved", backlog).Info("unresolved threats carried over from storage")
	}

	authMiddleware := middleware.NewAuthMiddleware(cfg.Security.JWTSecret, cfg.Security.SourceKeys)

	router := setupRouter(cfg, scanManager, threatService, metricsService, reportService, wsHub, authMiddleware)

	background, stopBackground := context.WithCancel(context.Background())
	metricsService.StartRefresher(background)

	srv := &http.Server{
		Addr:         cfg.Server.Address,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	go func() {
		log.WithField("address", cfg.Server.Address).Info("CyberGuard server listening")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server failed to start")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down server")

	stopBackground()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Fatal("server forced to shutdown")
	}

	log.Info("server exited")
}

func configureLogger(log *logrus.Logger, cfg config.LoggingConfig) {
	if level, err := logrus.ParseLevel(cfg.Level); err == nil {
		log.SetLevel(level)
	}
	if cfg.Format == "json" {
		log.SetFormatter(&logrus.JSONFormatter{})
	}
}

func setupRouter(cfg *config.Config, scanManager *scan.Manager, threatService *services.ThreatService,
	metricsService *services.MetricsService, reportService *services.ReportService,
	wsHub *websocket.Hub, authMiddleware *middleware.AuthMiddleware) *gin.Engine {

	if cfg.Server.Mode == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()

	router.Use(gin.LoggerWithFormatter(func(param gin.LogFormatterParams) string {
		return fmt.Sprintf("%s - [%s] \"%s %s %s %d %s \"%s\" %s\"\n",
			param.ClientIP,
			param.TimeStamp.Format(time.RFC1123),
			param.Method,
			param.Path,
			param.Request.Proto,
			param.StatusCode,
			param.Latency,
			param.Request.UserAgent(),
			param.ErrorMessage,
		)
	}))

	router.Use(gin.Recovery())

	corsConfig := cors.DefaultConfig()
	if len(cfg.Security.AllowedOrigins) > 0 {
		corsConfig.AllowOrigins = cfg.Security.AllowedOrigins
	} else {
		corsConfig.AllowAllOrigins = true
	}
	corsConfig.AllowHeaders = []string{
		"Origin", "Content-Length", "Content-Type",
		"Authorization", "X-API-Key",
	}
	corsConfig.AllowMethods = []string{
		"GET", "POST", "PUT", "DELETE", "OPTIONS",
	}
	router.Use(cors.New(corsConfig))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":    "OK",
			"timestamp": time.Now().Unix(),
			"version":   "1.0.0",
			"service":   "CyberGuard Server",
			"uptime":    time.Since(startTime).Seconds(),
			"clients":   wsHub.ClientCount(),
		})
	})

	router.GET("/info", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"name":        "CyberGuard Server",
			"version":     "1.0.0",
			"description": "Security monitoring and threat analysis platform",
		})
	})

	router.GET("/ws", func(c *gin.Context) {
		websocket.HandleWebSocket(wsHub, c.Writer, c.Request)
	})

	apiRouter := router.Group("/api/v1")
	{
		apiRouter.Use(authMiddleware.RateLimit(cfg.Security.RateLimit, time.Minute))
		apiRouter.Use(authMiddleware.InputValidation())

		authRouter := apiRouter.Group("/auth")
		{
			authHandler := api.NewAuthHandler(authMiddleware,
				cfg.Security.AdminUsername, cfg.Security.AdminPassword)
			authRouter.POST("/login", authHandler.Login) // No auth for login
			authRouter.Use(authMiddleware.AdminAuth())
			authRouter.Use(authMiddleware.RBAC("admin"))
			authRouter.POST("/sources", authHandler.CreateSourceKey)
		}

		scanRouter := apiRouter.Group("/scans")
		scanRouter.Use(authMiddleware.AdminAuth())
		scanRouter.Use(authMiddleware.RBAC("admin"))
		{
			scanHandler := api.NewScanHandler(scanManager, reportService)
			scanRouter.POST("", scanHandler.Start)
			scanRouter.GET("", scanHandler.List)
			scanRouter.GET("/history", scanHandler.History)
			scanRouter.GET("/:id", scanHandler.Get)
			scanRouter.POST("/:id/cancel", scanHandler.Cancel)
			scanRouter.GET("/:id/report", scanHandler.Report)
		}

		threatRouter := apiRouter.Group("/threats")
		{
			threatHandler := api.NewThreatHandler(threatService)
			// Ingestion authenticates intel sources by API key
			threatRouter.POST("", authMiddleware.SourceAuth(), threatHandler.Ingest)
			threatRouter.POST("/batch", authMiddleware.SourceAuth(), threatHandler.IngestBatch)
			threatRouter.Use(authMiddleware.AdminAuth())
			threatRouter.Use(authMiddleware.RBAC("admin"))
			threatRouter.GET("", threatHandler.List)
			threatRouter.POST("/:id/resolve", threatHandler.Resolve)
		}

		// Analysis endpoints are stateless and stay open to the dashboard
		analyzeRouter := apiRouter.Group("/analyze")
		{
			threatHandler := api.NewThreatHandler(threatService)
			analyzeRouter.POST("/threat", threatHandler.Analyze)
			analyzeRouter.POST("/phishing", threatHandler.AnalyzePhishing)
			analyzeRouter.POST("/posture", threatHandler.AnalyzePosture)
		}

		metricsRouter := apiRouter.Group("/metrics")
		metricsRouter.Use(authMiddleware.AdminAuth())
		metricsRouter.Use(authMiddleware.RBAC("admin"))
		{
			metricsHandler := api.NewMetricsHandler(metricsService)
			metricsRouter.GET("/realtime", metricsHandler.Realtime)
			metricsRouter.POST("/refresh", metricsHandler.Refresh)
		}
	}

	return router
}
