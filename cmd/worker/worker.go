package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"web-rag-engine/internal/ai"
	"web-rag-engine/internal/config"
	"web-rag-engine/internal/logger"
	"web-rag-engine/internal/queue"
	"web-rag-engine/internal/registry"
	"web-rag-engine/internal/textproc"
	"web-rag-engine/internal/vectorstore"
	"web-rag-engine/internal/worker"
	"web-rag-engine/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

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

	// Gemini embedder
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	embedder, err := ai.NewEmbedder(ctx, cfg.GeminiAPIKey, cfg.EmbeddingsModel)
	if err != nil {
		log.Fatal("Failed to initialize embedder:", err)
	}
	defer embedder.Close()

	chunker, err := textproc.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Invalid chunking config:", err)
	}

	reg := registry.NewDocumentRegistry(mongoClient.Database(cfg.DBName))
	jobQueue := queue.NewJobQueue(rdb, cfg.IngestQueue)
	store := vectorstore.NewStore(vectorstore.Config{
		URL:        cfg.QdrantURL,
		APIKey:     cfg.QdrantAPIKey,
		Collection: cfg.QdrantCollection,
		Timeout:    time.Duration(cfg.UpstreamTimeout) * time.Second,
	})

	w := worker.New(worker.Options{
		Registry: reg,
		Jobs:     jobQueue,
		Fetcher:  textproc.NewFetcher(time.Duration(cfg.FetchTimeout) * time.Second),
		Extract:  textproc.ExtractMainText,
		Chunker:  chunker,
		Embedder: embedder,
		Store:    store,

		VectorDimensions: cfg.VectorDimensions,
		PollInterval:     time.Duration(cfg.WorkerPollInterval) * time.Second,
		FetchTimeout:     time.Duration(cfg.FetchTimeout) * time.Second,
		UpstreamTimeout:  time.Duration(cfg.UpstreamTimeout) * time.Second,
	})

	// Reconciliation sweep for documents abandoned by a crashed worker
	reconciler, err := services.NewReconciler(reg,
		time.Duration(cfg.StuckProcessingTTL)*time.Minute,
		time.Duration(cfg.ReconcileInterval)*time.Minute)
	if err != nil {
		log.Fatal("Failed to schedule reconciler:", err)
	}
	reconciler.Start()
	defer reconciler.Stop()

	// Stop the consumer loop on SIGINT/SIGTERM
	go func() {
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit
		logger.Info("Shutting down worker...")
		cancel()
	}()

	if err := w.Run(ctx); err != nil && err != context.Canceled {
		log.Fatal("Worker exited with error:", err)
	}
	logger.Info("Worker exited")
}
