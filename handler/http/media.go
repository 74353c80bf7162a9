package http

import (
	"fmt"
	"mime/multipart"
	"net/http"

	"github.com/gin-gonic/gin"

	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/log"
)

// AnswerImage saves the uploaded image to scratch storage and asks the
// vision model to answer the caption against it. Model failures turn
// into the image fallback message.
func (h *Handler) AnswerImage(c *gin.Context) {
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
	caption := c.PostForm("caption")

	path, err := h.saveScratch(file, ownerID)
	if err != nil {
		recoverReply(c, err, "failed to store uploaded image")
		return
	}

	answer, err := h.transcoder.AnswerImage(c.Request.Context(), path, caption)
	if err != nil {
		log.Error(err, "image answering failed", "owner_id", ownerID)
		reply(c, msgImageFallback)
		return
	}

	reply(c, answer)
}

// TranscribeAudio saves the uploaded audio file to scratch storage and runs
// it through the speech-to-text service.
func (h *Handler) TranscribeAudio(c *gin.Context) {
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

	path, err := h.saveScratch(file, ownerID)
	if err != nil {
		recoverReply(c, err, "failed to store uploaded audio")
		return
	}

	text, err := h.transcoder.TranscribeAudio(c.Request.Context(), path)
	if err != nil {
		log.Error(err, "audio transcription failed", "owner_id", ownerID)
		reply(c, msgAudioFallback)
		return
	}

	reply(c, text)
}

func (h *Handler) saveScratch(file *multipart.FileHeader, ownerID int64) (string, error) {
	src, err := file.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	path := fsutil.ScratchPath(h.scratchRoot, ownerID, h.node.Generate().String(), file.Filename)
	if _, err := h.files.WriteFile(path, src); err != nil {
		return "", err
	}
	return path, nil
}
