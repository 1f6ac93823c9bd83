package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"strconv"
	"time"

	"ragdemo/config"
	"ragdemo/controller"
	"ragdemo/services"

	chromago "github.com/amikos-tech/chroma-go/pkg/api/v2"
	"github.com/gin-gonic/gin"
	"google.golang.org/genai"
)

func main() {
	configPath := os.Getenv("RAGDEMO_CONFIG")
	if configPath == "" {
		configPath = "config.yaml"
	}
	cfg, err := config.Load(configPath)
	if err != nil {
		log.Fatalf("FATAL: Failed to load config: %v", err)
	}

	httpClient := &http.Client{
		Timeout: time.Duration(cfg.Ollama.TimeoutSecs) * time.Second,
	}
	// PDF downloads can be much larger than an embedding round-trip.
	downloadClient := &http.Client{
		Timeout: 5 * time.Minute,
	}

	// Create Chroma client using v2 API
	chromaClient, err := chromago.NewHTTPClient(chromago.WithBaseURL(cfg.Chroma.URL))
	if err != nil {
		log.Fatalf("FATAL: Failed to create chroma client: %v", err)
	}

	// Ensure we close the client to release resources like local embedding functions
	defer func() {
		if closeErr := chromaClient.Close(); closeErr != nil {
			log.Printf("Warning: Failed to close chroma client: %v", closeErr)
		}
	}()

	// Create Gemini client
	geminiClient, err := genai.NewClient(context.Background(), &genai.ClientConfig{
		APIKey:  os.Getenv("GEMINI_API_KEY"),
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		log.Fatalf("FATAL: Failed to create Gemini client: %v. Make sure GEMINI_API_KEY is set.", err)
	}
	log.Println("Successfully connected to Google Gemini.")

	embedder := services.NewOllamaEmbedder(httpClient, cfg.Ollama.URL, cfg.Ollama.Model)

	// One pipeline per configured variant, each with its own collection.
	pipelines := make([]*services.Pipeline, 0, len(cfg.Pipelines))
	for _, pc := range cfg.Pipelines {
		p, err := services.NewPipeline(context.Background(), chromaClient, cfg, pc, embedder)
		if err != nil {
			log.Fatalf("FATAL: Failed to set up pipeline %s: %v", pc.Name, err)
		}
		pipelines = append(pipelines, p)
	}

	ragService := services.NewRAGService(downloadClient, geminiClient, cfg.Gemini, pipelines)
	ragController := controller.NewRAGController(ragService)

	if cfg.Watch.Enabled {
		indexer := services.NewDirectoryIndexer(ragService, cfg.Watch.Pipeline)
		go func() {
			ctx := context.Background()
			indexer.ScanDirectory(ctx, cfg.Watch.Dir)
			indexer.WatchDirectory(ctx, cfg.Watch.Dir)
		}()
	}

	// Setup Gin router
	router := gin.Default()
	router.LoadHTMLGlob("web/templates/*.html")

	// Add CORS middleware for testing
	router.Use(func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	})

	// Add health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(200, gin.H{
			"status":  "healthy",
			"service": "RAG Demo",
			"version": "1.0.0",
		})
	})

	// Browser UI
	router.GET("/", ragController.Home)
	router.GET("/pages/:pipeline", ragController.Page)

	// API routes
	apiV1 := router.Group("/api/v1")
	{
		apiV1.GET("/pipelines", ragController.ListPipelines)
		apiV1.POST("/pipelines/:pipeline/documents", ragController.LoadDocuments)
		apiV1.GET("/pipelines/:pipeline/documents", ragController.GetDocuments)
		apiV1.POST("/pipelines/:pipeline/query", ragController.Query)
		apiV1.POST("/pipelines/:pipeline/reset", ragController.Reset)
	}

	// Start the Server
	addr := ":" + strconv.Itoa(cfg.Server.Port)
	log.Printf("RAG demo server starting on http://localhost%s", addr)
	log.Printf("Health check available at: http://localhost%s/health", addr)

	if err := router.Run(addr); err != nil {
		log.Fatalf("FATAL: Failed to start server: %v", err)
	}
}
