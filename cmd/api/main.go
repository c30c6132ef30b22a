package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/Bala333sr/IntelliAttend-sub000/internal/activation"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/config"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/handler"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/httpmiddleware"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/logging"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/metrics"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/queue"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/scan"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/session"
	"github.com/Bala333sr/IntelliAttend-sub000/internal/store"
)

func main() {
	cfg := config.Load()

	log, err := logging.New(cfg.Env)
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	if cfg.Env == "production" || cfg.Env == "prod" {
		gin.SetMode(gin.ReleaseMode)
	}

	if err := run(cfg, log); err != nil {
		log.Fatal("server failed", zap.Error(err))
	}
}

func run(cfg config.App, log *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var db *store.DB
	if cfg.StorageBackend != "memory" {
		var err error
		db, err = store.NewDB(cfg.DatabaseURL)
		if err != nil {
			return err
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return err
		}
	}

	redisClient := store.NewRedis(cfg.RedisAddr)

	var q queue.Queue
	if cfg.QueueBackend == "memory" {
		q = queue.NewInMemory(64)
	} else {
		q = queue.NewRedisQueue(redisClient.Client, "attendance:reviews")
	}

	m := metrics.New(prometheus.DefaultRegisterer)

	var (
		sessionStore session.Store
		classes      session.ClassDirectory
		records      scan.RecordStore
		devices      handler.DeviceStore
	)
	if db != nil {
		sessionRepo := session.NewRepository(db.Client)
		scanRepo := scan.NewRepository(db.Client)
		sessionStore, classes = sessionRepo, sessionRepo
		records, devices = scanRepo, scanRepo
	} else {
		memRepo := scan.NewMemoryRepository()
		sessionStore = session.NewMemoryStore()
		classes = session.NewMemoryClassDirectory()
		records, devices = memRepo, memRepo
		log.Warn("running on in-memory storage; state is process-local")
	}

	registry := session.NewRegistry(sessionStore, classes, session.Config{
		RotationInterval: cfg.RotationInterval,
		GraceBuffer:      cfg.GraceBuffer,
		RetainedTokens:   cfg.RetainedTokens,
		Window:           cfg.SessionWindow,
	}, redisClient, m, log)
	defer registry.Close()
	registry.StartSweeper(ctx, cfg.SweepInterval)

	issuer := activation.NewIssuer(registry, cfg.CodeLength, cfg.CodeTTL, cfg.CodeReissueAfter, m, log)

	validator := scan.NewValidator(registry, records, q, scan.Config{
		GeofenceRadiusM:  cfg.GeofenceRadiusM,
		AccuracyCeilingM: cfg.AccuracyCeilingM,
		ProximityStrong:  cfg.ProximityStrong,
		ProximityWeak:    cfg.ProximityWeak,
		AcceptThreshold:  cfg.AcceptThreshold,
		RejectFloor:      cfg.RejectFloor,
		LateGrace:        cfg.LateGrace,
		Weights: scan.Weights{
			Location:  cfg.WeightLocation,
			Proximity: cfg.WeightProximity,
			Network:   cfg.WeightNetwork,
			Liveness:  cfg.WeightLiveness,
		},
	}, m, log)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(gin.LoggerWithConfig(gin.LoggerConfig{
		SkipPaths: []string{"/healthz", "/metrics"},
	}))
	r.Use(corsMiddleware())
	r.Use(securityHeaders())
	r.Use(httpmiddleware.NewSimpleTokenBucket(cfg.RateLimitPerMin, cfg.RateLimitPerMin).GinMiddleware())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", func(c *gin.Context) {
		redisHealthy := redisClient.Healthy(c.Request.Context())
		dbHealthy := db == nil || db.Client.PingContext(c.Request.Context()) == nil
		status := http.StatusOK
		if !redisHealthy || !dbHealthy {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"status": "ok", "redis": redisHealthy, "db": dbHealthy})
	})

	handler.New(issuer, registry, validator, devices, cfg, log).Register(r)

	srv := &http.Server{
		Addr:         ":" + cfg.HTTPPort,
		Handler:      r,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	go func() {
		log.Info("starting server", zap.String("port", cfg.HTTPPort))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("server error", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down")
	cancel()

	shutdownCtx, done := context.WithTimeout(context.Background(), 10*time.Second)
	defer done()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("forced shutdown", zap.Error(err))
	}
	log.Info("server exited")
	return nil
}

// CORS middleware for browser requests
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		origin := c.Request.Header.Get("Origin")
		if origin == "" {
			origin = "*"
		}

		c.Header("Access-Control-Allow-Origin", origin)
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Accept, Authorization")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "86400")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}

// Security headers middleware
func securityHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("X-Content-Type-Options", "nosniff")
		c.Header("X-Frame-Options", "DENY")
		c.Header("X-XSS-Protection", "1; mode=block")
		c.Header("Referrer-Policy", "strict-origin-when-cross-origin")

		if gin.Mode() == gin.ReleaseMode {
			c.Header("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}
