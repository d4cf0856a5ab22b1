package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/troikatech/voice-bridge/pkg/errors"
	"github.com/troikatech/voice-bridge/pkg/middleware"
)

type IndexDocumentRequest struct {
	Title string `json:"title" binding:"required"`
	Body  string `json:"body" binding:"required"`
}

// IndexDocument adds one document to the keyword index.
func (h *Handler) IndexDocument(c *gin.Context) {
	var req IndexDocumentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		errors.BadRequest(c, err.Error())
		return
	}

	doc, err := h.docIndex.Add(
		middleware.SanitizeString(req.Title),
		middleware.SanitizeString(req.Body),
	)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusCreated, doc)
}

// SearchDocuments runs a keyword query against the index.
func (h *Handler) SearchDocuments(c *gin.Context) {
	query := c.Query("q")
	if query == "" {
		errors.BadRequest(c, "q query parameter is required")
		return
	}

	results, err := h.docIndex.Search(query)
	if err != nil {
		errors.InternalError(c, err, h.logger)
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"query":   query,
		"count":   len(results),
		"results": results,
	})
}
