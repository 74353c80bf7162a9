package knowledge

import (
	"context"
	"fmt"
	"io"

	"knowbot/src/fsutil"
	"knowbot/src/infrastructure/log"
)

// VisionProvider answers questions about one image.
type VisionProvider interface {
	DescribeImage(ctx context.Context, image []byte, caption string) (string, error)
}

// Transcriber turns one audio file into a transcript.
type Transcriber interface {
	Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error)
}

// RetentionPolicy states which scratch files survive processing. Documents
// default to retained, transient media to removed.
type RetentionPolicy struct {
	KeepDocuments bool
	KeepMedia     bool
}

// Transcoder handles inputs that bypass the index entirely: images go to the
// vision model, audio to speech-to-text. Both are single-shot calls.
type Transcoder struct {
	vision      VisionProvider
	transcriber Transcriber
	files       fsutil.FileStore
	retention   RetentionPolicy
}

// NewTranscoder creates a Transcoder.
func NewTranscoder(vision VisionProvider, transcriber Transcriber, files fsutil.FileStore, retention RetentionPolicy) *Transcoder {
	return &Transcoder{
		vision:      vision,
		transcriber: transcriber,
		files:       files,
		retention:   retention,
	}
}

// AnswerImage sends the image at path to the vision model with the caption
// as the question. The scratch file is removed afterwards unless media
// retention is on.
func (t *Transcoder) AnswerImage(ctx context.Context, path, caption string) (string, error) {
	defer t.cleanup(path)

	image, err := t.files.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read image: %w", err)
	}

	answer, err := t.vision.DescribeImage(ctx, image, caption)
	if err != nil {
		return "", fmt.Errorf("failed to answer image: %w", err)
	}
	return answer, nil
}

// TranscribeAudio runs the audio file at path through speech-to-text. The
// scratch file is removed afterwards unless media retention is on.
func (t *Transcoder) TranscribeAudio(ctx context.Context, path string) (string, error) {
	defer t.cleanup(path)

	audio, err := t.files.ReadFileAsStream(path)
	if err != nil {
		return "", fmt.Errorf("failed to open audio: %w", err)
	}
	defer audio.Close()

	transcript, err := t.transcriber.Transcribe(ctx, path, audio)
	if err != nil {
		return "", fmt.Errorf("failed to transcribe audio: %w", err)
	}
	return transcript, nil
}

func (t *Transcoder) cleanup(path string) {
	if t.retention.KeepMedia {
		return
	}
	if err := t.files.RemoveAll(path); err != nil {
		log.Error(err, "failed to remove scratch media file", "path", path)
	}
}
