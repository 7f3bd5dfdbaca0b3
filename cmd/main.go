package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	"rag-chatbot-platform/internal/ai"
	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/internal/telemetry"
	"rag-chatbot-platform/middleware"
	"rag-chatbot-platform/routes"
	"rag-chatbot-platform/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Tracing is optional; without an exporter endpoint spans are no-ops
	if cfg.OTELExporterEndpoint != "" {
		shutdownTracer, err := telemetry.InitTracer("rag-chatbot-platform", cfg.OTELExporterEndpoint)
		if err != nil {
			log.Fatal("Failed to init tracer:", err)
		}
		defer shutdownTracer()
	}

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	ctx := context.Background()

	// Gemini client serves both embeddings and streamed generation
	gemini, err := ai.NewGeminiClient(ctx, cfg, metrics)
	if err != nil {
		log.Fatal("Failed to init Gemini client:", err)
	}
	defer gemini.Close()

	store, err := services.NewVectorStore(cfg.PersistDir)
	if err != nil {
		log.Fatal("Failed to init vector store:", err)
	}
	defer store.Close()

	chunker, err := services.NewChunker(cfg.MaxChunkSize, cfg.ChunkOverlap)
	if err != nil {
		log.Fatal("Failed to init chunker:", err)
	}

	extractors := services.NewExtractorRegistry(cfg)

	knowledge, err := services.NewKnowledgeService(cfg, store, chunker, extractors, gemini, metrics)
	if err != nil {
		log.Fatal("Failed to init knowledge service:", err)
	}
	defer knowledge.Close()

	memory := services.NewConversationMemory(cfg.MemoryWindowSize)
	engine := services.NewRAGEngine(cfg, knowledge, memory, gemini, gemini, metrics)

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.RateLimitMiddleware(10, 30))
	router.Use(otelgin.Middleware("rag-chatbot-platform"))

	// CORS configuration
	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.CORSOrigins
	corsConfig.AllowMethods = []string{"GET", "POST", "DELETE", "OPTIONS"}
	corsConfig.AllowHeaders = []string{"Origin", "Content-Type", "Accept", "X-Requested-With", "X-Session-ID"}
	corsConfig.AllowCredentials = true
	router.Use(cors.New(corsConfig))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	routes.SetupKnowledgeRoutes(router, cfg, knowledge)
	routes.SetupChatRoutes(router, engine, memory)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		logger.Info("server starting", "port", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logger.Info("shutting down server")

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	logger.Info("server exited")
}
