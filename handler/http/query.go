package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"knowbot/src/infrastructure/log"
)

type queryRequest struct {
	OwnerID int64  `json:"ownerId" binding:"required"`
	Query   string `json:"query" binding:"required"`
}

// Query retrieves the owner's best-matching fragments and synthesizes an
// answer. An empty retrieval is a normal outcome and gets the not-found
// message; a synthesis failure gets the answer fallback.
func (h *Handler) Query(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	hits, err := h.retriever.Retrieve(c.Request.Context(), req.OwnerID, req.Query)
	if err != nil {
		recoverReply(c, err, "retrieval failed")
		return
	}
	if len(hits) == 0 {
		reply(c, msgNothingFound)
		return
	}

	answer, err := h.synthesizer.Synthesize(c.Request.Context(), hits, req.Query)
	if err != nil {
		log.Error(err, "synthesis failed", "owner_id", req.OwnerID)
		reply(c, msgAnswerFallback)
		return
	}

	reply(c, answer)
}
