package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"cardiolens-data/internal/analysis"
	"cardiolens-data/internal/config"
	"cardiolens-data/internal/consumer"
	"cardiolens-data/internal/database"
	httpapi "cardiolens-data/internal/http"
	"cardiolens-data/internal/logger"
	mqttclient "cardiolens-data/internal/mqtt"
	"cardiolens-data/internal/provider"
	redisclient "cardiolens-data/internal/redis"
	"cardiolens-data/internal/repository"
	"cardiolens-data/internal/service"
)

func main() {
	// 加载配置
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	// 初始化Logger
	zlog, err := logger.New(cfg.Log.Level, cfg.Log.Format, "cardiolens-data")
	if err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer zlog.Sync()

	zlog.Info("Starting cardiolens-data service",
		zap.String("mqtt_broker", cfg.MQTT.Broker),
		zap.String("mqtt_topic", cfg.Ingest.Topic),
		zap.String("stream", cfg.Ingest.Stream),
		zap.String("http_addr", cfg.HTTP.ListenAddr),
	)

	// 初始化 PostgreSQL
	db, err := database.NewPostgresDB(&cfg.Database)
	if err != nil {
		zlog.Fatal("Failed to connect to PostgreSQL", zap.Error(err))
	}
	defer database.Close(db)

	// 初始化 Redis
	redisCli := redisclient.NewRedisClient(&cfg.Redis)
	defer redisclient.Close(redisCli)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := redisclient.Ping(ctx, redisCli); err != nil {
		zlog.Fatal("Failed to connect to Redis", zap.Error(err))
	}

	// Repositories
	intradayRepo := repository.NewIntradayRepository(db, zlog)
	sleepRepo := repository.NewSleepRepository(db, zlog)
	activityRepo := repository.NewActivityRepository(db, zlog)
	summaryRepo := repository.NewSummaryRepository(db, zlog)

	// 厂家 API 客户端（无密钥时以纯离线模式运行）
	var vendor service.VendorAPI
	if cfg.Vendor.APIKey != "" {
		vendor = provider.NewVendorClient(cfg.Vendor.BaseURL, cfg.Vendor.APIKey, cfg.Vendor.APISecret, cfg.Vendor.Timeout, zlog)
	} else {
		zlog.Warn("Vendor API key not configured, running without vendor backfill")
	}

	// 分析引擎 + RHR 服务
	engine := analysis.NewEngine(service.EngineConfigFromApp(cfg), zlog)
	rhrService := service.NewRHRService(intradayRepo, sleepRepo, activityRepo, summaryRepo, vendor, engine, zlog)

	// MQTT 消费者（broker 未配置时跳过，服务仍可只做查询）
	var mqttConsumer *consumer.MQTTConsumer
	if cfg.MQTT.Broker != "" {
		mqttCli, err := mqttclient.NewClient(&cfg.MQTT)
		if err != nil {
			zlog.Fatal("Failed to connect to MQTT broker", zap.Error(err))
		}
		defer mqttCli.Disconnect()

		mqttConsumer = consumer.NewMQTTConsumer(cfg, mqttCli, redisCli, zlog)
		go func() {
			if err := mqttConsumer.Start(ctx); err != nil {
				zlog.Fatal("Failed to start MQTT consumer", zap.Error(err))
			}
		}()
	} else {
		zlog.Warn("MQTT broker not configured, ingest pipeline disabled")
	}

	// Stream 消费者
	streamConsumer := consumer.NewStreamConsumer(cfg, redisCli, intradayRepo, zlog)
	go func() {
		if err := streamConsumer.Start(ctx); err != nil {
			zlog.Fatal("Failed to start stream consumer", zap.Error(err))
		}
	}()

	// HTTP 服务
	router := httpapi.NewRouter(zlog)
	router.RegisterRHRRoutes(httpapi.NewRHRHandler(rhrService, cfg.HTTP.MaxRangeDays, zlog))

	server := &http.Server{
		Addr:         cfg.HTTP.ListenAddr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	go func() {
		zlog.Info("HTTP server listening", zap.String("addr", cfg.HTTP.ListenAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			zlog.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	// 等待中断信号
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	sig := <-sigChan
	zlog.Info("Received signal, shutting down", zap.String("signal", sig.String()))

	// 优雅关闭
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		zlog.Error("Error during HTTP shutdown", zap.Error(err))
	}
	if mqttConsumer != nil {
		if err := mqttConsumer.Stop(shutdownCtx); err != nil {
			zlog.Error("Error during MQTT consumer shutdown", zap.Error(err))
		}
	}

	zlog.Info("Service stopped")
}
