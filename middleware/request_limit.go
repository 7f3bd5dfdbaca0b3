package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"rag-chatbot-platform/utils"
)

// RequestSizeLimit rejects request bodies larger than maxBytes before any
// handler reads them. Used on the document upload route so oversize files
// fail fast instead of being buffered and rejected by the extractor.
func RequestSizeLimit(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.ContentLength > maxBytes {
			utils.RespondWithError(c, http.StatusRequestEntityTooLarge,
				"request_too_large",
				"Request body exceeds maximum size",
				gin.H{
					"max_size_mb": maxBytes >> 20,
					"received":    c.Request.ContentLength,
				})
			c.Abort()
			return
		}
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
		c.Next()
	}
}
