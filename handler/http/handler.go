// Package http exposes the bot-facing operations over a gin HTTP API. The
// chat transport proper is an external collaborator; these routes are what
// it calls on the user's behalf. Every failure surfaces as a short message
// payload, never a stack trace.
package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"

	"knowbot/src/core/knowledge"
	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/job"
	"knowbot/src/infrastructure/log"
)

// User-visible reply strings. The bot always answers with a chat message,
// including on failure.
const (
	msgAccepted        = "Document accepted for processing, this may take a minute."
	msgNothingFound    = "No information found in the knowledge base."
	msgAnswerFallback  = "Could not get an answer from the language model."
	msgImageFallback   = "Could not get an answer based on the image."
	msgAudioFallback   = "Could not transcribe the audio file."
	msgDeleteFailed    = "Could not remove the document, please try again."
	msgTryAgainLater   = "Something went wrong, please try again later."
	msgChooseToRemove  = "Choose which document to remove."
	msgDocumentRemoved = "Document removed."
)

// Enqueuer accepts ingest jobs for background processing.
type Enqueuer interface {
	EnqueueIngest(ctx context.Context, payload job.IngestPayload) (*job.Job, error)
}

// Archive is the long-term store holding the original uploads whose
// fragments are indexed. May be nil when no object store is configured.
type Archive interface {
	Fetch(ctx context.Context, ownerID int64, documentID, fileName string) ([]byte, error)
	Remove(ctx context.Context, ownerID int64, documentID, fileName string) error
}

// Handler wires the bot operations to their services.
type Handler struct {
	jobs        Enqueuer
	catalog     *knowledge.Catalog
	tokens      *knowledge.TokenCache
	retriever   *knowledge.Retriever
	synthesizer *knowledge.Synthesizer
	transcoder  *knowledge.Transcoder
	archive     Archive
	files       fsutil.FileStore
	node        *snowflake.Node
	scratchRoot string
}

func NewHandler(
	jobs Enqueuer,
	catalog *knowledge.Catalog,
	tokens *knowledge.TokenCache,
	retriever *knowledge.Retriever,
	synthesizer *knowledge.Synthesizer,
	transcoder *knowledge.Transcoder,
	archive Archive,
	files fsutil.FileStore,
	scratchRoot string,
) (*Handler, error) {
	node, err := snowflake.NewNode(1)
	if err != nil {
		return nil, err
	}

	if err := files.MakeDirectory(scratchRoot); err != nil {
		return nil, err
	}

	return &Handler{
		jobs:        jobs,
		catalog:     catalog,
		tokens:      tokens,
		retriever:   retriever,
		synthesizer: synthesizer,
		transcoder:  transcoder,
		archive:     archive,
		files:       files,
		node:        node,
		scratchRoot: scratchRoot,
	}, nil
}

// RegisterRoutes registers all API routes
func (h *Handler) RegisterRoutes(r *gin.Engine) {
	api := r.Group("/api/v1")

	// Document routes
	api.POST("/documents", h.UploadDocument)
	api.GET("/documents", h.ListDocuments)
	api.GET("/documents/content", h.DownloadDocument)
	api.POST("/documents/delete", h.ConfirmDelete)

	// Query route
	api.POST("/queries", h.Query)

	// Media routes
	api.POST("/media/images", h.AnswerImage)
	api.POST("/media/audio", h.TranscribeAudio)

	// System routes
	api.POST("/collection/reset", h.ResetCollection)
	api.GET("/health", h.CheckHealth)
}

// ErrorResponse is the error envelope for malformed or failed requests.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func sendError(c *gin.Context, status int, err error) {
	code := "INTERNAL_ERROR"
	switch {
	case errors.Is(err, knowledge.ErrTokenNotFound):
		code = "TOKEN_NOT_FOUND"
		status = http.StatusNotFound
	case status == http.StatusBadRequest:
		code = "BAD_REQUEST"
	}

	c.JSON(status, ErrorResponse{
		Code:    code,
		Message: err.Error(),
	})
}

// reply sends the bot's chat answer for the request.
func reply(c *gin.Context, text string) {
	c.JSON(http.StatusOK, gin.H{"reply": text})
}

// recoverReply converts an unclassified handler failure into the generic
// try-again message after logging it.
func recoverReply(c *gin.Context, err error, msg string) {
	log.Error(err, msg)
	reply(c, msgTryAgainLater)
}
