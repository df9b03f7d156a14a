package routes

import (
	"errors"
	"net/http"

	"web-rag-engine/internal/registry"
	"web-rag-engine/services"
	"web-rag-engine/utils"

	"github.com/gin-gonic/gin"
)

// IngestURLRequest is the submission payload.
type IngestURLRequest struct {
	URL    string `json:"url" binding:"required"`
	Source string `json:"source"`
}

// SetupIngestRoutes wires the ingestion submission endpoints.
func SetupIngestRoutes(router *gin.Engine, ingest *services.IngestService, reg *registry.DocumentRegistry) {
	router.POST("/ingest-url", func(c *gin.Context) {
		var req IngestURLRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		result, err := ingest.Submit(c.Request.Context(), req.URL, req.Source)
		if err != nil {
			var upstreamErr *services.UpstreamError
			switch {
			case errors.Is(err, services.ErrInvalidURL):
				utils.RespondWithBadRequest(c, "URL must be a valid http(s) address", nil)
			case errors.As(err, &upstreamErr):
				utils.RespondWithUpstreamError(c, "Ingestion submission failed", gin.H{"cause": upstreamErr.Error()})
			default:
				utils.RespondWithInternalError(c, "Ingestion submission failed", gin.H{"cause": err.Error()})
			}
			return
		}

		// New work was enqueued only when a job_id is present
		status := http.StatusOK
		if result.JobID != "" {
			status = http.StatusAccepted
		}
		c.JSON(status, result)
	})

	router.GET("/documents/:doc_id", func(c *gin.Context) {
		doc, err := reg.FindByDocID(c.Request.Context(), c.Param("doc_id"))
		if err != nil {
			if errors.Is(err, registry.ErrNotFound) {
				utils.RespondWithNotFound(c, "Document not found")
				return
			}
			utils.RespondWithUpstreamError(c, "Document lookup failed", gin.H{"cause": err.Error()})
			return
		}
		c.JSON(http.StatusOK, doc)
	})
}
