package routes

import (
	"errors"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"rag-chatbot-platform/internal/logger"
	"rag-chatbot-platform/middleware"
	"rag-chatbot-platform/models"
	"rag-chatbot-platform/services"
	"rag-chatbot-platform/utils"
)

// SetupChatRoutes wires the question answering and conversation history
// endpoints. Answers stream back as server-sent events: one "chunk" event
// per text fragment, then a single "done" event carrying the final status.
func SetupChatRoutes(router *gin.Engine, engine *services.RAGEngine, memory *services.ConversationMemory) {
	chat := router.Group("/chat")

	chat.POST("/ask", func(c *gin.Context) {
		var req models.ChatRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}
		if req.SessionID == "" {
			req.SessionID = uuid.NewString()
		}

		fragments, err := engine.Ask(c.Request.Context(), req)
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		c.Header("Content-Type", "text/event-stream")
		c.Header("Cache-Control", "no-cache")
		c.Header("Connection", "keep-alive")
		c.Header("X-Session-ID", req.SessionID)

		c.Stream(func(w io.Writer) bool {
			fragment, ok := <-fragments
			if !ok {
				return false
			}
			if fragment.Done {
				c.SSEvent("done", doneEvent(req.SessionID, fragment))
				return false
			}
			c.SSEvent("chunk", gin.H{"text": fragment.Text})
			return true
		})
	})

	chat.GET("/history/:session_id", func(c *gin.Context) {
		sessionID := c.Param("session_id")
		window := memory.Window(sessionID)
		c.JSON(http.StatusOK, gin.H{
			"session_id":     sessionID,
			"knowledge_base": memory.KnowledgeBase(sessionID),
			"exchanges":      window,
			"count":          len(window),
		})
	})

	chat.DELETE("/history/:session_id", func(c *gin.Context) {
		sessionID := c.Param("session_id")
		memory.CloseSession(sessionID)
		logger.Info("session closed", "session_id", sessionID, "request_id", middleware.GetRequestID(c))
		c.JSON(http.StatusOK, gin.H{"session_id": sessionID, "closed": true})
	})
}

func doneEvent(sessionID string, fragment models.AnswerFragment) gin.H {
	event := gin.H{"session_id": sessionID, "status": "completed"}
	if fragment.Err != nil {
		status := "failed"
		if fragment.Incomplete {
			status = "incomplete"
		}
		event["status"] = status
		event["error_code"] = errorCode(fragment.Err)
		event["message"] = fragment.Err.Error()
	}
	return event
}

func errorCode(err error) string {
	var rateErr *models.RateLimitError
	var interrupted *models.GenerationInterruptedError
	switch {
	case errors.As(err, &rateErr):
		return "rate_limited"
	case errors.As(err, &interrupted):
		return "generation_interrupted"
	default:
		return "generation_failed"
	}
}
