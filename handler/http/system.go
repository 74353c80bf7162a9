package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowbot/src/infrastructure/log"
)

// ResetCollection drops and recreates the fragment collection. Dropping a
// collection that does not exist is reported, not failed.
func (h *Handler) ResetCollection(c *gin.Context) {
	cleared, err := h.catalog.Reset(c.Request.Context())
	if err != nil {
		recoverReply(c, err, "collection reset failed")
		return
	}

	log.Info("collection reset", "cleared", cleared)
	c.JSON(http.StatusOK, gin.H{
		"cleared": cleared,
	})
}

// CheckHealth reports liveness plus how much scratch space pending uploads
// and media are holding.
func (h *Handler) CheckHealth(c *gin.Context) {
	count, size, err := h.files.GetFileStats(h.scratchRoot)
	if err != nil {
		log.Error(err, "failed to stat scratch directory", "path", h.scratchRoot)
		c.JSON(http.StatusOK, gin.H{
			"status": "ok",
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"status":       "ok",
		"scratchFiles": count,
		"scratchBytes": size,
	})
}
