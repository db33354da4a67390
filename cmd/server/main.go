package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Santy1422/barcos-sub007/internal/config"
	"github.com/Santy1422/barcos-sub007/internal/handler"
	"github.com/Santy1422/barcos-sub007/internal/middleware"
	"github.com/Santy1422/barcos-sub007/internal/pkg/logger"
	"github.com/Santy1422/barcos-sub007/internal/repository"
	"github.com/Santy1422/barcos-sub007/internal/service"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	// 1. Load Configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	logger.Init(cfg.Log.Level)

	sweepCtx, stopSweep := context.WithCancel(context.Background())
	defer stopSweep()

	// 2. Initialize Persistence (Postgres > Redis > Memory)
	retention := cfg.Database.Retention()
	var store service.TxLogStore
	if cfg.Database.DSN != "" {
		db, err := repository.NewDB(cfg)
		if err == nil {
			logger.Info("✅ Connected to PostgreSQL")
			pgRepo := repository.NewPostgresTxLogRepo(db, retention)
			pgRepo.StartSweeper(sweepCtx, cfg.Database.CleanupInterval())
			store = pgRepo
		} else {
			logger.Error("⚠️ Failed to connect to DB", "error", err)
		}
	}
	if store == nil && cfg.Redis.Addr != "" {
		redisRepo, err := repository.NewRedisTxLogRepo(cfg, retention)
		if err == nil {
			logger.Info("✅ Connected to Redis, using capped-list store")
			store = redisRepo
		} else {
			logger.Error("⚠️ Failed to connect to Redis", "error", err)
		}
	}
	if store == nil {
		logger.Warn("No durable store configured, entries are file + memory only")
	}

	// 3. Initialize Core Service
	txlogSvc, err := service.NewTxLogService(cfg.Capture.LogDir, store, retention)
	if err != nil {
		log.Fatalf("Failed to initialize txlog service: %v", err)
	}

	logsHandler := handler.NewLogsHandler(txlogSvc, cfg.Capture)

	// 4. Setup Router
	r := gin.New()

	// Health Check + Metrics live outside the captured surface
	r.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok", "service": "barcos-txlog"})
	})
	if cfg.Metrics.Enabled {
		r.GET(cfg.Metrics.Path, gin.WrapH(promhttp.Handler()))
	}

	// Global Middleware
	// ErrorHandler 最外层渲染，ErrorBoundary 兜底 panic，Capture 记录事务
	r.Use(middleware.ErrorHandler())
	r.Use(middleware.ErrorBoundary(txlogSvc))
	r.Use(middleware.MetricsMiddleware())
	r.Use(middleware.Capture(txlogSvc, cfg.Capture))

	logs := r.Group("/logs")
	{
		logs.POST("/frontend", middleware.RateLimitMiddleware(cfg.Ingest), logsHandler.IngestFrontend)
		logs.GET("", logsHandler.List)
		logs.GET("/stats", logsHandler.Stats)
	}

	// 5. Start Server with Graceful Shutdown
	srv := &http.Server{
		Addr:    ":" + cfg.Server.Port,
		Handler: r,
	}

	go func() {
		logger.Info("🚀 barcos txlog service started", "port", cfg.Server.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server listen failed: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("🛑 Shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	stopSweep()
	txlogSvc.Close()

	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown: ", err)
	}

	logger.Info("Server exiting")
}
