package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"graphrag/backend/internal/chat"
	"graphrag/backend/internal/evaluation"
	"graphrag/backend/internal/extract"
	"graphrag/backend/internal/graph"
	"graphrag/backend/internal/llm"
	"graphrag/backend/internal/memory"
	"graphrag/backend/internal/observability"
	"graphrag/backend/internal/services"
	"graphrag/backend/pkg/config"
	"graphrag/backend/pkg/logger"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		panic(fmt.Sprintf("Failed to load configuration: %v", err))
	}

	// Initialize logger
	if err := logger.Init(cfg.Env); err != nil {
		panic(fmt.Sprintf("Failed to initialize logger: %v", err))
	}
	defer logger.Sync()

	log := logger.Get()
	log.Info("Starting graph memory server...")

	// Connect to Neo4j
	ctx := context.Background()
	driver, err := graph.Connect(ctx, cfg.Neo4jURI, cfg.Neo4jUser, cfg.Neo4jPassword)
	if err != nil {
		log.Fatal("Failed to connect to Neo4j", zap.Error(err))
	}
	defer driver.Close(context.Background())

	store := graph.NewStore(driver)
	retriever := graph.NewRetriever(driver)

	// Optionally launch the NER sidecar; extraction is a hard
	// dependency, so a managed sidecar that never becomes ready is
	// a startup failure
	if cfg.NERSidecarCommand != "" {
		sidecar := services.NewSidecarManager(log, cfg.NERSidecarCommand, cfg.NERSidecarDir, cfg.NERServiceURL)
		if err := sidecar.Start(); err != nil {
			log.Fatal("Failed to start NER sidecar", zap.Error(err))
		}
		defer sidecar.Stop()

		readyCtx, cancelReady := context.WithTimeout(ctx, 30*time.Second)
		if err := sidecar.WaitReady(readyCtx); err != nil {
			cancelReady()
			sidecar.Stop()
			log.Fatal("NER sidecar did not become ready", zap.Error(err))
		}
		cancelReady()
	}

	// Extraction: NER sidecar plus the topic vocabulary
	nerClient := extract.NewNERClient(cfg.NERServiceURL, cfg.NERTimeout)
	extractor := extract.NewExtractor(nerClient, loadTopicVocabulary(cfg, log))

	if cfg.WatchVocabulary {
		watcher, err := extract.WatchVocabulary(cfg.TopicVocabularyPath, extractor)
		if err != nil {
			log.Warn("Vocabulary hot reload disabled", zap.Error(err))
		} else {
			defer watcher.Stop()
		}
	}

	// Generation behind the circuit breaker
	collector := observability.NewCollector("graphrag")
	resolver := llm.NewResolver(llm.NewClient(cfg.LiteLLMURL, cfg.OpenRouterAPIKey, cfg.ModelID, cfg.GenerationTimeout), collector)

	baseline, err := memory.NewBaselineMemory(cfg.BaselineBufferSize, cfg.BaselineMaxUsers)
	if err != nil {
		log.Fatal("Failed to create baseline memory", zap.Error(err))
	}

	evaluator := evaluation.NewEvaluator(extractorFunc(extractor))

	svc := chat.NewService(extractor, retriever, store, baseline, resolver, evaluator, collector, cfg.RetrievalLimit)

	// Setup Gin router
	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := newRouter(svc, collector, log)

	// Start server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Graceful shutdown
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal("Failed to start server", zap.Error(err))
		}
	}()

	log.Info("Server started", zap.String("port", cfg.Port))

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info("Shutting down server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("Server forced to shutdown", zap.Error(err))
	}

	log.Info("Server exited")
}

// turnRunner is what the HTTP layer needs from the chat service
type turnRunner interface {
	HandleTurn(ctx context.Context, userID, message string, mode chat.Mode) (*chat.TurnResult, error)
}

type chatRequest struct {
	UserID  string `json:"user_id" binding:"required"`
	Message string `json:"message" binding:"required"`
	Mode    string `json:"mode" binding:"omitempty,oneof=graph baseline"`
}

func newRouter(runner turnRunner, collector *observability.Collector, log *zap.Logger) *gin.Engine {
	router := gin.New()
	router.Use(ginLogger(log))
	router.Use(gin.Recovery())

	// CORS middleware
	router.Use(func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Credentials", "true")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Content-Type, Content-Length, Accept-Encoding, X-CSRF-Token, Authorization, accept, origin, Cache-Control, X-Requested-With")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "POST, OPTIONS, GET, PUT, DELETE")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Health check
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	// Prometheus metrics
	router.GET("/metrics", gin.WrapH(collector.Handler()))

	// Chat in either memory mode
	router.POST("/chat", func(c *gin.Context) {
		var req chatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}

		mode := chat.ModeGraph
		if req.Mode == string(chat.ModeBaseline) {
			mode = chat.ModeBaseline
		}

		result, err := runner.HandleTurn(c.Request.Context(), req.UserID, req.Message, mode)
		if err != nil {
			log.Error("Failed to process chat turn",
				zap.String("user_id", req.UserID),
				zap.String("mode", string(mode)),
				zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process message"})
			return
		}

		contextUsed := result.ContextUsed
		if contextUsed == nil {
			contextUsed = []string{}
		}

		resp := gin.H{
			"response":     result.Response,
			"context_used": contextUsed,
			"mode":         string(mode),
		}
		if result.Scores != nil {
			resp["crs_scores"] = result.Scores
		}
		if result.WriteFailed {
			resp["memory_write_failed"] = true
		}

		c.JSON(http.StatusOK, resp)
	})

	return router
}

// loadTopicVocabulary reads the configured vocabulary file, falling
// back to the built-in default when no file is present. A file that
// exists but does not parse is a startup failure.
func loadTopicVocabulary(cfg *config.Config, log *zap.Logger) *extract.Vocabulary {
	if _, err := os.Stat(cfg.TopicVocabularyPath); os.IsNotExist(err) {
		log.Info("Topic vocabulary file not found, using built-in default",
			zap.String("path", cfg.TopicVocabularyPath))
		return extract.DefaultVocabulary()
	}

	vocab, err := extract.LoadVocabulary(cfg.TopicVocabularyPath)
	if err != nil {
		log.Fatal("Failed to load topic vocabulary",
			zap.String("path", cfg.TopicVocabularyPath),
			zap.Error(err))
	}
	return vocab
}

// extractorFunc adapts the extractor to the evaluator's callback shape
func extractorFunc(ex *extract.Extractor) evaluation.ExtractFunc {
	return func(ctx context.Context, text string) ([]string, []string, error) {
		result, err := ex.Extract(ctx, text)
		if err != nil {
			return nil, nil, err
		}
		return result.Entities, result.Topics, nil
	}
}

// ginLogger is a custom logger middleware for Gin
func ginLogger(log *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		raw := c.Request.URL.RawQuery

		c.Next()

		latency := time.Since(start)
		status := c.Writer.Status()

		if raw != "" {
			path = path + "?" + raw
		}

		log.Info("HTTP Request",
			zap.Int("status", status),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
			zap.Duration("latency", latency),
			zap.String("ip", c.ClientIP()),
		)
	}
}
