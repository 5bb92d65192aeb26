package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"restock-service/config"
	"restock-service/internal/api"
	"restock-service/internal/broker"
	"restock-service/internal/redisclient"
	"restock-service/internal/service"
	"restock-service/internal/store"
	"restock-service/internal/util"
	"restock-service/internal/worker"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

func main() {

	cfg := config.Load()

	if err := util.InitLogger(cfg.Server.Env); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer util.SyncLogger()

	logger := util.GetLogger()
	logger.Info("Starting restock service")

	tp, err := util.InitTracer(cfg.Observ.JaegerEndpoint, cfg.Server.Env)
	if err != nil {
		logger.Fatal("Failed to initialize tracer", zap.Error(err))
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tp.Shutdown(ctx); err != nil {
			logger.Error("Error shutting down tracer", zap.Error(err))
		}
	}()

	db, err := store.NewStore(cfg.Database.URL, cfg.Database.MaxBatchOps)
	if err != nil {
		logger.Fatal("Failed to connect to database", zap.Error(err))
	}
	defer db.Close()
	logger.Info("Database connected")

	redisClient, err := redisclient.NewClient(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
	if err != nil {
		logger.Fatal("Failed to connect to Redis", zap.Error(err))
	}
	defer redisClient.Close()
	logger.Info("Redis connected")

	producer := broker.NewProducer(cfg.Kafka.Brokers, cfg.Kafka.TopicProductEvents)
	defer producer.Close()
	logger.Info("Kafka producer initialized")

	eventPublisher := broker.NewEventPublisher(producer)

	notifier := service.NewNotifier(db, cfg.Inventory.AdminRole)
	reorderer := service.NewReorderer(db, notifier, cfg.Inventory.DefaultReorderQuantity)
	recoverySweep := service.NewStockRecoverySweep(db, notifier)
	lowStockSweep := service.NewLowStockSweep(db, notifier, reorderer, cfg.Inventory.DefaultLowStockThreshold)
	backInStock := service.NewBackInStockHandler(service.NewSubscriberFanout(db, notifier), redisClient)
	receipts := service.NewReceiptHandler(db, eventPublisher, redisClient)

	workerCtx, workerCancel := context.WithCancel(context.Background())
	defer workerCancel()

	productConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicProductEvents, cfg.Kafka.ConsumerGroup+"-products")
	productWorker := worker.NewProductWorker(productConsumer, backInStock)
	go func() {
		if err := productWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Product worker error", zap.Error(err))
		}
	}()

	orderConsumer := broker.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.TopicPurchaseOrderEvents, cfg.Kafka.ConsumerGroup+"-purchase-orders")
	orderWorker := worker.NewPurchaseOrderWorker(orderConsumer, receipts)
	go func() {
		if err := orderWorker.Start(workerCtx); err != nil && workerCtx.Err() == nil {
			logger.Error("Purchase order worker error", zap.Error(err))
		}
	}()

	schedule := func(interval time.Duration) worker.ScheduleConfig {
		return worker.ScheduleConfig{
			Interval:     interval,
			StartupDelay: cfg.Schedule.StartupDelay,
			Timeout:      cfg.Schedule.SweepTimeout,
			MaxAttempts:  cfg.Schedule.MaxAttempts,
			RetryBackoff: cfg.Schedule.RetryBackoff,
		}
	}
	recoveryScheduler := worker.NewScheduler(recoverySweep, redisClient, schedule(cfg.Schedule.StockRecoveryInterval))
	lowStockScheduler := worker.NewScheduler(lowStockSweep, redisClient, schedule(cfg.Schedule.LowStockInterval))
	recoveryScheduler.Start()
	lowStockScheduler.Start()

	if cfg.Server.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	handler := api.NewHandler(
		map[string]api.Pinger{"postgres": db, "redis": redisClient},
		recoveryScheduler,
		lowStockScheduler,
	)
	handler.SetupRoutes(router)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		logger.Info("Starting HTTP server", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("Shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("Server forced to shutdown", zap.Error(err))
	}

	recoveryScheduler.Stop()
	lowStockScheduler.Stop()
	workerCancel()
	productWorker.Stop()
	orderWorker.Stop()

	logger.Info("Server exited")
}
