package controller

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"ragdemo/models"
	"ragdemo/services"
)

// RAGController handles the HTTP requests for the RAG demo. It depends on
// the RAGService to perform the actual business logic.
type RAGController struct {
	ragService services.RAGService
}

// NewRAGController is a constructor function that creates a new RAGController.
// This is called from main.go to inject the service dependency.
func NewRAGController(service services.RAGService) *RAGController {
	return &RAGController{
		ragService: service,
	}
}

// ListPipelines is the Gin handler for GET /api/v1/pipelines.
func (c *RAGController) ListPipelines(ctx *gin.Context) {
	ctx.JSON(http.StatusOK, gin.H{"pipelines": c.ragService.ListPipelines(ctx.Request.Context())})
}

// LoadDocuments is the Gin handler for POST /api/v1/pipelines/:pipeline/documents.
// It validates the URL list and delegates ingestion to the service layer.
func (c *RAGController) LoadDocuments(ctx *gin.Context) {
	var req models.LoadDocumentsRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if !hasNonEmpty(req.URLs) {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Please enter one or more PDF URLs before loading."})
		return
	}

	response, err := c.ragService.LoadDocuments(ctx.Request.Context(), ctx.Param("pipeline"), req)
	if err != nil {
		if errors.Is(err, services.ErrPipelineNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusBadGateway, gin.H{"error": "Could not load PDFs. Make sure your PDF URLs are valid."})
		return
	}
	ctx.JSON(http.StatusCreated, response)
}

// Query is the Gin handler for POST /api/v1/pipelines/:pipeline/query.
func (c *RAGController) Query(ctx *gin.Context) {
	var req models.QueryRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body: " + err.Error()})
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		ctx.JSON(http.StatusBadRequest, gin.H{"error": "Please enter a non-empty query"})
		return
	}

	response, err := c.ragService.Query(ctx.Request.Context(), ctx.Param("pipeline"), req)
	if err != nil {
		switch {
		case errors.Is(err, services.ErrPipelineNotFound):
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		case errors.Is(err, services.ErrPipelineNotReady):
			ctx.JSON(http.StatusConflict, gin.H{"error": "RAG system was not built correctly. Please re-load PDFs."})
		default:
			ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to generate AI response"})
		}
		return
	}
	ctx.JSON(http.StatusOK, response)
}

// GetDocuments is the Gin handler for GET /api/v1/pipelines/:pipeline/documents.
func (c *RAGController) GetDocuments(ctx *gin.Context) {
	response, err := c.ragService.GetDocuments(ctx.Request.Context(), ctx.Param("pipeline"))
	if err != nil {
		if errors.Is(err, services.ErrPipelineNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to retrieve documents"})
		return
	}
	ctx.JSON(http.StatusOK, response)
}

// Reset is the Gin handler for POST /api/v1/pipelines/:pipeline/reset.
func (c *RAGController) Reset(ctx *gin.Context) {
	if err := c.ragService.Reset(ctx.Request.Context(), ctx.Param("pipeline")); err != nil {
		if errors.Is(err, services.ErrPipelineNotFound) {
			ctx.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
			return
		}
		ctx.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to reset pipeline"})
		return
	}
	ctx.JSON(http.StatusOK, gin.H{"message": "Pipeline reset"})
}

// Home renders the landing page listing all pipeline variants.
func (c *RAGController) Home(ctx *gin.Context) {
	ctx.HTML(http.StatusOK, "home.html", gin.H{
		"Pipelines": c.ragService.ListPipelines(ctx.Request.Context()),
	})
}

// Page renders the interactive page for one pipeline variant.
func (c *RAGController) Page(ctx *gin.Context) {
	name := ctx.Param("pipeline")
	for _, info := range c.ragService.ListPipelines(ctx.Request.Context()) {
		if info.Name == name {
			ctx.HTML(http.StatusOK, "pipeline.html", gin.H{"Pipeline": info})
			return
		}
	}
	ctx.HTML(http.StatusNotFound, "notfound.html", gin.H{"Name": name})
}

func hasNonEmpty(values []string) bool {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return true
		}
	}
	return false
}
