package http

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"knowbot/src/core/knowledge"
	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/job"
	"knowbot/src/infrastructure/log"
)

type uploadResponse struct {
	DocumentID string `json:"documentId"`
	JobID      int    `json:"jobId"`
	Message    string `json:"message"`
}

// UploadDocument accepts a multipart document upload, stores it in the
// scratch directory, and enqueues an ingest job. The reply is immediate;
// indexing happens in the worker.
func (h *Handler) UploadDocument(c *gin.Context) {
	ownerID, err := ownerIDFromForm(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	file, err := c.FormFile("file")
	if err != nil {
		sendError(c, http.StatusBadRequest, fmt.Errorf("file is required"))
		return
	}

	documentID := h.node.Generate().String()
	scratchPath := fsutil.ScratchPath(h.scratchRoot, ownerID, documentID, file.Filename)

	src, err := file.Open()
	if err != nil {
		recoverReply(c, err, "failed to open uploaded file")
		return
	}
	defer src.Close()

	if _, err := h.files.WriteFile(scratchPath, src); err != nil {
		recoverReply(c, err, "failed to store uploaded file")
		return
	}

	ingestJob, err := h.jobs.EnqueueIngest(c.Request.Context(), job.IngestPayload{
		OwnerID:    ownerID,
		DocumentID: documentID,
		FileName:   file.Filename,
		Path:       scratchPath,
	})
	if err != nil {
		recoverReply(c, err, "failed to enqueue ingest job")
		return
	}

	log.Info("document upload accepted",
		"owner_id", ownerID,
		"document_id", documentID,
		"file_name", file.Filename,
		"job_id", ingestJob.ID)

	c.JSON(http.StatusAccepted, uploadResponse{
		DocumentID: documentID,
		JobID:      ingestJob.ID,
		Message:    msgAccepted,
	})
}

type documentChoice struct {
	FileName string `json:"fileName"`
	Token    string `json:"token"`
}

type listDocumentsResponse struct {
	Message   string           `json:"message"`
	Documents []documentChoice `json:"documents"`
}

// ListDocuments returns the owner's documents as a selection list, each with
// a short-lived delete token. A fresh listing invalidates previous tokens.
// An owner with no documents gets an empty list, not an error.
func (h *Handler) ListDocuments(c *gin.Context) {
	ownerID, err := ownerIDFromQuery(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	refs, err := h.catalog.ListDocuments(c.Request.Context(), ownerID)
	if err != nil {
		recoverReply(c, err, "failed to list documents")
		return
	}

	tokens := h.tokens.ReplaceAll(ownerID, refs)

	choices := make([]documentChoice, 0, len(refs))
	for i, ref := range refs {
		choices = append(choices, documentChoice{
			FileName: ref.FileName,
			Token:    tokens[i],
		})
	}

	c.JSON(http.StatusOK, listDocumentsResponse{
		Message:   msgChooseToRemove,
		Documents: choices,
	})
}

type confirmDeleteRequest struct {
	OwnerID int64  `json:"ownerId" binding:"required"`
	Token   string `json:"token" binding:"required"`
}

// ConfirmDelete consumes a pending-delete token and removes the chosen
// document's fragments. On a failed delete the token stays valid so the
// user can retry.
func (h *Handler) ConfirmDelete(c *gin.Context) {
	var req confirmDeleteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	pending, err := h.tokens.Peek(req.OwnerID, req.Token)
	if err != nil {
		sendError(c, http.StatusNotFound, err)
		return
	}

	if err := h.catalog.DeleteDocument(c.Request.Context(), req.OwnerID, pending.DocumentID); err != nil {
		log.Error(err, "failed to delete document",
			"owner_id", req.OwnerID,
			"document_id", pending.DocumentID)
		reply(c, msgDeleteFailed)
		return
	}

	// Consume only after the delete succeeded.
	if _, err := h.tokens.Consume(req.OwnerID, req.Token); err != nil && err != knowledge.ErrTokenNotFound {
		log.Error(err, "failed to consume delete token", "owner_id", req.OwnerID)
	}

	// The archived original must not outlive the deleted fragments. A failed
	// removal only leaves an orphaned archive copy behind.
	if h.archive != nil {
		if err := h.archive.Remove(c.Request.Context(), req.OwnerID, pending.DocumentID, pending.FileName); err != nil {
			log.Error(err, "failed to remove archived document",
				"owner_id", req.OwnerID,
				"document_id", pending.DocumentID)
		}
	}

	reply(c, msgDocumentRemoved)
}

// DownloadDocument returns the archived original of one of the owner's
// documents.
func (h *Handler) DownloadDocument(c *gin.Context) {
	ownerID, err := ownerIDFromQuery(c)
	if err != nil {
		sendError(c, http.StatusBadRequest, err)
		return
	}

	documentID := c.Query("documentId")
	fileName := c.Query("fileName")
	if documentID == "" || fileName == "" {
		sendError(c, http.StatusBadRequest, fmt.Errorf("documentId and fileName are required"))
		return
	}

	if h.archive == nil {
		sendError(c, http.StatusNotFound, fmt.Errorf("document archive is not configured"))
		return
	}

	data, err := h.archive.Fetch(c.Request.Context(), ownerID, documentID, fileName)
	if err != nil {
		sendError(c, http.StatusNotFound, fmt.Errorf("archived document not found"))
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", fileName))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

func ownerIDFromForm(c *gin.Context) (int64, error) {
	raw := c.PostForm("ownerId")
	if raw == "" {
		return 0, fmt.Errorf("ownerId is required")
	}
	ownerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ownerId: %w", err)
	}
	return ownerID, nil
}

func ownerIDFromQuery(c *gin.Context) (int64, error) {
	raw := c.Query("ownerId")
	if raw == "" {
		return 0, fmt.Errorf("ownerId is required")
	}
	ownerID, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid ownerId: %w", err)
	}
	return ownerID, nil
}
