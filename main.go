package main

import (
	"context"
	"errors"
	"io"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/glivermore2025/getsovrn-site/config"
	"github.com/glivermore2025/getsovrn-site/controllers"
	"github.com/glivermore2025/getsovrn-site/database"
	"github.com/glivermore2025/getsovrn-site/logger"
	"github.com/glivermore2025/getsovrn-site/middleware"
	aws_pkg "github.com/glivermore2025/getsovrn-site/pkg/aws"
	"github.com/glivermore2025/getsovrn-site/repository"
	"github.com/glivermore2025/getsovrn-site/routes"
	"github.com/glivermore2025/getsovrn-site/services"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

const serviceName = "marketplace-service"

func main() {
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("Config load failed: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// --- AWS setup ---
	awsCfg, err := aws_pkg.LoadAWSConfig(ctx)
	if err != nil {
		log.Fatalf("Failed to load AWS config: %v", err)
	}

	var cwWriter io.Writer
	if cfg.CloudWatchEnabled {
		cw, err := aws_pkg.NewCloudWatchLogsClient(ctx, awsCfg, cfg.CloudWatchLogGroup, serviceName)
		if err != nil {
			log.Printf("CloudWatch Logs disabled: %v", err)
		} else {
			cwWriter = cw
		}
	}

	zl, err := logger.New(cfg.AppEnv, cwWriter)
	if err != nil {
		log.Fatalf("failed to initialize logger: %v", err)
	}
	defer zl.Sync()

	metricsClient := aws_pkg.NewMetricsClient(awsCfg, cfg.CloudWatchNamespace, cfg.CloudWatchEnabled)

	var snsClient aws_pkg.SNSPublisher
	if cfg.MarketplaceSNSTopicARN != "" {
		snsClient = aws_pkg.NewSNSClient(awsCfg)
	} else {
		zl.Warn("MARKETPLACE_SNS_TOPIC_ARN not set, marketplace events will not be published")
	}

	// --- Database ---
	db, err := database.Connect(cfg.PostgresDSN())
	if err != nil {
		zl.Fatal("DB connection failed", zap.Error(err))
	}
	if err := database.Migrate(db); err != nil {
		zl.Fatal("Migration failed", zap.Error(err))
	}

	// --- Dependency injection ---
	purchaseRepo := repository.NewGormPurchaseRepository(db)
	allocationRepo := repository.NewGormAllocationRepository(db)
	catalogRepo := repository.NewGormCatalogRepository(db)
	contributionRepo := repository.NewGormContributionRepository(db)

	stripeService := services.NewStripeService(cfg.StripeSecretKey, cfg.StripeWebhookSecret)
	allocator := services.NewRevenueAllocator(purchaseRepo, allocationRepo, snsClient, cfg.MarketplaceSNSTopicARN, metricsClient, zl)

	var retryQueue services.AllocationRetryQueue
	var sqsQueue *aws_pkg.SQSQueue
	if cfg.AllocationRetryQueueURL != "" {
		sqsQueue = aws_pkg.NewSQSQueue(awsCfg, cfg.AllocationRetryQueueURL, zl)
		retryQueue = services.NewAllocationRetryQueue(sqsQueue)
	} else {
		zl.Warn("ALLOCATION_RETRY_QUEUE_URL not set, failed allocations are recovered only on webhook redelivery")
	}

	reconciler := services.NewPurchaseReconciler(stripeService, purchaseRepo, allocator, retryQueue, snsClient, cfg.MarketplaceSNSTopicARN, metricsClient, zl)
	checkoutService := services.NewCheckoutService(stripeService, catalogRepo, cfg.SiteURL, metricsClient, zl)
	contributionService := services.NewContributionService(contributionRepo, catalogRepo, zl)
	portfolioService := services.NewPortfolioService(allocationRepo, zl)
	catalogService := services.NewCatalogService(catalogRepo, purchaseRepo, zl)
	downloadService := services.NewDownloadService(catalogRepo, purchaseRepo, aws_pkg.NewS3Presigner(awsCfg), cfg.DatasetsBucket, cfg.DownloadURLTTL, zl)

	// --- HTTP router ---
	if cfg.AppEnv == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	r := gin.New()
	r.Use(
		gin.Recovery(),
		middleware.RequestID(),
		middleware.RequestLogger(zl),
		middleware.MetricsMiddleware(metricsClient, serviceName),
		middleware.SecurityHeaders(),
		middleware.CORSMiddleware(cfg.AllowedOrigins),
		middleware.Timeout(30*time.Second),
	)

	// 100 requests per minute per IP with a burst of 50.
	limiter := middleware.NewRateLimiter(rate.Every(time.Minute/100), 50, 5*time.Minute)
	go limiter.RunEviction(ctx)

	routes.RegisterRoutes(r, routes.Controllers{
		Webhook:      controllers.NewWebhookController(reconciler),
		Checkout:     controllers.NewCheckoutController(checkoutService),
		Contribution: controllers.NewContributionController(contributionService),
		Portfolio:    controllers.NewPortfolioController(portfolioService, downloadService),
		Catalog:      controllers.NewCatalogController(catalogService),
	}, limiter)

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "OK", "service": serviceName})
	})

	// --- Allocation retry consumer ---
	consumerDone := make(chan struct{})
	if sqsQueue != nil {
		consumer := services.NewAllocationRetryConsumer(allocator, zl)
		go func() {
			defer close(consumerDone)
			if err := consumer.Start(ctx, sqsQueue); err != nil && !errors.Is(err, context.Canceled) {
				zl.Error("Allocation retry consumer stopped", zap.Error(err))
			}
		}()
	} else {
		close(consumerDone)
	}

	// --- HTTP server ---
	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		zl.Info("Marketplace service started", zap.String("port", cfg.Port), zap.String("env", cfg.AppEnv))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zl.Fatal("server failed", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---
	<-ctx.Done()
	stop()

	zl.Info("Initiating graceful shutdown...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		zl.Error("Server shutdown error", zap.Error(err))
	}
	select {
	case <-consumerDone:
	case <-shutdownCtx.Done():
		zl.Warn("Allocation retry consumer did not stop in time")
	}
	if err := database.Close(db); err != nil {
		zl.Error("Database close error", zap.Error(err))
	}

	zl.Info("Marketplace service stopped gracefully")
}
