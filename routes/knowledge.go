package routes

import (
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"rag-chatbot-platform/internal/config"
	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/middleware"
	"rag-chatbot-platform/models"
	"rag-chatbot-platform/services"
	"rag-chatbot-platform/utils"
)

// SetupKnowledgeRoutes wires the knowledge base management endpoints.
func SetupKnowledgeRoutes(router *gin.Engine, cfg *config.Config, knowledge *services.KnowledgeService) {
	group := router.Group("/knowledge-bases")

	// Create an empty knowledge base
	group.POST("", func(c *gin.Context) {
		var req struct {
			Name string `json:"name" binding:"required"`
		}
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		kb, err := knowledge.Create(c.Request.Context(), req.Name)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		logger.Info("knowledge base created", "name", kb.Name, "request_id", middleware.GetRequestID(c))
		c.JSON(http.StatusCreated, kb)
	})

	// List all knowledge bases
	group.GET("", func(c *gin.Context) {
		bases, err := knowledge.List(c.Request.Context())
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"knowledge_bases": bases, "count": len(bases)})
	})

	// Inspect a single knowledge base
	group.GET("/:name", func(c *gin.Context) {
		kb, err := knowledge.Get(c.Request.Context(), c.Param("name"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, kb)
	})

	// Delete a knowledge base and its stored vectors
	group.DELETE("/:name", func(c *gin.Context) {
		name := c.Param("name")
		if err := knowledge.Delete(c.Request.Context(), name); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		logger.Info("knowledge base deleted", "name", name, "request_id", middleware.GetRequestID(c))
		c.JSON(http.StatusOK, gin.H{"deleted": name})
	})

	// Upload a document into a knowledge base. The knowledge base is
	// created on first upload when it does not exist yet.
	group.POST("/:name/documents", middleware.RequestSizeLimit(cfg.MaxUploadBytes()), func(c *gin.Context) {
		name := c.Param("name")

		fileHeader, err := c.FormFile("file")
		if err != nil {
			utils.RespondWithBadRequest(c, "Missing file upload", gin.H{"error": err.Error()})
			return
		}

		file, err := fileHeader.Open()
		if err != nil {
			utils.RespondWithBadRequest(c, "Cannot read uploaded file", gin.H{"error": err.Error()})
			return
		}
		defer file.Close()

		content, err := io.ReadAll(file)
		if err != nil {
			utils.RespondWithInternalError(c, "Failed to read upload", gin.H{"error": err.Error()})
			return
		}

		doc := models.Document{
			Filename:   fileHeader.Filename,
			Content:    content,
			UploadedAt: time.Now().UTC(),
		}

		result, err := knowledge.Ingest(c.Request.Context(), name, doc)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		logger.Info("document ingested",
			"knowledge_base", name,
			"filename", doc.Filename,
			"chunks", result.ChunksAdded,
			"request_id", middleware.GetRequestID(c))
		c.JSON(http.StatusCreated, result)
	})
}
