package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web-rag-engine/internal/ai"
	"web-rag-engine/internal/config"
	"web-rag-engine/internal/logger"
	"web-rag-engine/internal/queue"
	"web-rag-engine/internal/registry"
	"web-rag-engine/internal/telemetry"
	"web-rag-engine/internal/vectorstore"
	"web-rag-engine/middleware"
	"web-rag-engine/routes"
	"web-rag-engine/services"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("web-rag-engine", cfg.OTLPEndpoint)
		if err != nil {
			log.Fatal("Failed to init tracer:", err)
		}
		defer shutdown()
	}

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Connect to Redis
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	// Vector store client
	store := vectorstore.NewStore(vectorstore.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Timeout:    time.Duration(cfg.UpstreamTimeout) * time.Second,
	})

	// Gemini clients
	ctx := context.Background()
	embedder, err := ai.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingsModel)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

	generator, err := ai.NewGenerator(ctx, cfg.GeminiAPIKey, cfg.GenerationModel, cfg.GeminiTier)
	if err != nil {
		log.Fatal("Failed to initialize generator:", err)
	}
	defer generator.Close()

	// Core services
	reg := registry.NewDocumentRegistry(mongoClient.Database(cfg.DBName))
	jobQueue := queue.NewJobQueue(rdb, cfg.IngestQueue)
	ingestService := services.NewIngestService(reg, jobQueue)
	queryService := services.NewQueryService(embedder, store, generator,
		cfg.SearchTopK, cfg.ScoreFloor, cfg.ContextChunks,
		time.Duration(cfg.UpstreamTimeout)*time.Second)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	if cfg.TracingEnabled {
		router.Use(middleware.TracingMiddleware())
		router.Use(middleware.EnrichTrace())
	}
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With"}
	router.Use(cors.New(corsConfig))

	// Health check verifies each dependency independently
	router.GET("/health", func(c *gin.Context) {
		healthHandler(c, rdb, mongoClient, store)
	})

	routes.SetupIngestRoutes(router, ingestService, reg)
	routes.SetupQueryRoutes(router, queryService)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("Server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("Server exited")
}

func healthHandler(c *gin.Context, rdb *redis.Client, mongoClient *mongo.Client, store *vectorstore.Store) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 5*time.Second)
	defer cancel()

	redisOK := rdb.Ping(ctx).Err() == nil
	mongoOK := mongoClient.Ping(ctx, nil) == nil
	qdrantOK := store.Ping(ctx) == nil

	status := "ok"
	if !redisOK || !mongoOK || !qdrantOK {
		status = "partial"
	}
	c.JSON(http.StatusOK, gin.H{
		"status": status,
		"redis":  redisOK,
		"mongo":  mongoOK,
		"qdrant": qdrantOK,
	})
}
