package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	fiberlogger "github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/gofiber/websocket/v2"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/lexybrain/backend/internal/api/handlers"
	"github.com/lexybrain/backend/internal/assembler"
	"github.com/lexybrain/backend/internal/ingestion"
	"github.com/lexybrain/backend/internal/metrics"
	"github.com/lexybrain/backend/internal/middleware/ratelimit"
	"github.com/lexybrain/backend/internal/middleware/security"
	"github.com/lexybrain/backend/internal/modelclient"
	"github.com/lexybrain/backend/internal/orchestrator"
	"github.com/lexybrain/backend/internal/quota"
	"github.com/lexybrain/backend/internal/reporting"
	"github.com/lexybrain/backend/internal/retrieval"
	"github.com/lexybrain/backend/internal/search/hybrid"
	"github.com/lexybrain/backend/internal/storage/sqlite"
	"github.com/lexybrain/backend/internal/vector/milvus"
	"github.com/lexybrain/backend/pkg/config"
	appLogger "github.com/lexybrain/backend/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	err = appLogger.Init(cfg.Logging.Level, cfg.Logging.Format, cfg.Logging.OutputPath)
	if err != nil {
		fmt.Printf("Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer appLogger.Sync()

	appLogger.Info("Starting LexyBrain API Server")

	metrics.Init()

	sqliteClient, err := sqlite.NewClient(cfg.SQLite.Path)
	if err != nil {
		appLogger.Fatal("Failed to create SQLite client", zap.Error(err))
	}
	defer sqliteClient.Close()

	if err := sqliteClient.InitSchema(); err != nil {
		appLogger.Fatal("Failed to initialize schema", zap.Error(err))
	}

	// The vector index is optional: without it retrieval degrades to lexical
	// ranking instead of taking the service down.
	var milvusClient *milvus.Client
	milvusClient, err = milvus.NewClient(
		cfg.Milvus.Endpoint,
		cfg.Milvus.CollectionName,
		cfg.Milvus.VectorDim,
	)
	if err != nil {
		appLogger.Warn("Vector index unavailable, running lexical-only", zap.Error(err))
		milvusClient = nil
	} else {
		defer milvusClient.Close()
		if err := milvusClient.CreateCollection(context.Background()); err != nil {
			appLogger.Fatal("Failed to create collection", zap.Error(err))
		}
	}

	var vectorIndex hybrid.VectorIndex
	if milvusClient != nil {
		vectorIndex = milvusClient
	}
	searcher := hybrid.NewSearcher(sqliteClient, vectorIndex)
	retriever := retrieval.New(searcher)

	generator := modelclient.New(cfg.Model)
	ledger := quota.NewLedger(sqliteClient, cfg.Quota.DailyCostCapCents)
	asm := assembler.New(sqliteClient)

	orch := orchestrator.New(
		sqliteClient,
		asm,
		retriever,
		generator,
		ledger,
		cfg.Model,
		cfg.Retrieval.CorpusLimit,
	)

	app := fiber.New(fiber.Config{
		ReadTimeout:  time.Duration(cfg.Server.ReadTimeout) * time.Second,
		WriteTimeout: time.Duration(cfg.Server.WriteTimeout) * time.Second,
		BodyLimit:    cfg.Server.BodyLimit,
	})

	app.Use(recover.New())
	app.Use(fiberlogger.New())
	app.Use(security.HeadersMiddleware(security.HeadersConfig{
		IsDevelopment: cfg.Logging.Level == "debug",
	}))
	app.Use(cors.New(cors.Config{
		AllowOrigins: "*",
		AllowHeaders: "Origin, Content-Type, Accept, Authorization, X-User-ID",
		AllowMethods: "GET, POST, OPTIONS",
	}))

	limiter := buildLimiter(cfg)
	app.Use("/api/v1", ratelimit.Middleware(limiter))

	var vectorStore ingestion.VectorStore
	if milvusClient != nil {
		vectorStore = milvusClient
	}
	processor := ingestion.NewProcessor(sqliteClient, vectorStore)
	reporter := reporting.NewReporter(sqliteClient)

	insightHandler := handlers.NewInsightHandler(orch, sqliteClient)
	quotaHandler := handlers.NewQuotaHandler(ledger)
	corpusHandler := handlers.NewCorpusHandler(sqliteClient, milvusClient, processor)
	usageHandler := handlers.NewUsageHandler(reporter)
	relayHandler := handlers.NewRelayHandler(orch)

	api := app.Group("/api/v1")

	api.Post("/insights", insightHandler.HandleInsight)
	api.Get("/insights/history", insightHandler.HandleHistory)
	api.Get("/quota", quotaHandler.HandleQuota)
	api.Get("/usage", usageHandler.HandleUsage)
	api.Post("/corpus", corpusHandler.HandleIngest)
	api.Post("/corpus/documents", corpusHandler.HandleIngestDocument)

	api.Use("/extension/relay", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	api.Get("/extension/relay", websocket.New(relayHandler.HandleConnection))

	api.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{
			"status": "healthy",
			"time":   time.Now().Unix(),
		})
	})

	api.Get("/ready", func(c *fiber.Ctx) error {
		if err := sqliteClient.Ping(c.UserContext()); err != nil {
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"status": "unavailable",
			})
		}
		return c.JSON(fiber.Map{
			"status": "ready",
		})
	})

	app.Get("/metrics", metrics.MetricsHandler())

	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	appLogger.Info("Server starting", zap.String("address", addr))

	go func() {
		if err := app.Listen(addr); err != nil {
			appLogger.Fatal("Server failed to start", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	appLogger.Info("Server shutting down gracefully...")
	app.Shutdown()
	appLogger.Info("Server stopped")
}

func buildLimiter(cfg *config.Config) ratelimit.Limiter {
	if cfg.RateLimit.Backend == "redis" {
		rdb := redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", cfg.Redis.Host, cfg.Redis.Port),
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err := rdb.Ping(context.Background()).Err(); err != nil {
			appLogger.Warn("Redis unreachable, falling back to in-memory rate limiting", zap.Error(err))
			return ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerMinute)
		}
		return ratelimit.NewRedisLimiter(rdb, cfg.RateLimit.RequestsPerMinute)
	}
	return ratelimit.NewMemoryLimiter(cfg.RateLimit.RequestsPerMinute)
}
