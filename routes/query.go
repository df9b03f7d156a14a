package routes

import (
	"errors"
	"net/http"

	"web-rag-engine/services"
	"web-rag-engine/utils"

	"github.com/gin-gonic/gin"
)

// QueryRequest is the retrieval payload.
type QueryRequest struct {
	Query string `json:"query" binding:"required"`
}

// SetupQueryRoutes wires the question-answering endpoint.
func SetupQueryRoutes(router *gin.Engine, query *services.QueryService) {
	router.POST("/query", func(c *gin.Context) {
		var req QueryRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Query text missing", gin.H{"error": err.Error()})
			return
		}

		answer, err := query.Answer(c.Request.Context(), req.Query)
		if err != nil {
			var upstreamErr *services.UpstreamError
			switch {
			case errors.Is(err, services.ErrEmptyQuery):
				utils.RespondWithBadRequest(c, "Query text missing", nil)
			case errors.As(err, &upstreamErr):
				utils.RespondWithUpstreamError(c, "RAG query failed", gin.H{"cause": upstreamErr.Error()})
			default:
				utils.RespondWithInternalError(c, "RAG query failed", gin.H{"cause": err.Error()})
			}
			return
		}

		c.JSON(http.StatusOK, answer)
	})
}
