package knowledge

import (
	"fmt"

	"github.com/tmc/langchaingo/textsplitter"
)

// DefaultChunkSize is the default maximum chunk length in characters.
const DefaultChunkSize = 1250

// DefaultChunkOverlap is the default overlap between consecutive chunks.
const DefaultChunkOverlap = 125

// chunkSeparators orders the split preference: paragraph, then sentence,
// then word, then a hard character cut.
var chunkSeparators = []string{"\n\n", "\n", ". ", " ", ""}

// Chunker splits normalized text into overlapping fragments, attaching the
// page metadata to every fragment unchanged.
type Chunker struct {
	chunkSize int
	overlap   int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the maximum chunk size in characters.
func WithChunkSize(size int) ChunkerOption {
	return func(c *Chunker) {
		if size > 0 {
			c.chunkSize = size
		}
	}
}

// WithChunkOverlap sets the overlap between chunks in characters.
func WithChunkOverlap(overlap int) ChunkerOption {
	return func(c *Chunker) {
		if overlap >= 0 {
			c.overlap = overlap
		}
	}
}

// NewChunker creates a Chunker with the given options.
func NewChunker(opts ...ChunkerOption) *Chunker {
	c := &Chunker{
		chunkSize: DefaultChunkSize,
		overlap:   DefaultChunkOverlap,
	}

	for _, opt := range opts {
		opt(c)
	}

	// Overlap must stay below the chunk size or the splitter cannot advance.
	if c.overlap >= c.chunkSize {
		c.overlap = c.chunkSize / 10
	}

	return c
}

// Split chunks the text and stamps every chunk with the page metadata.
// Empty text yields no fragments.
func (c *Chunker) Split(text string, meta Metadata) ([]Fragment, error) {
	if text == "" {
		return nil, nil
	}

	splitter := textsplitter.NewRecursiveCharacter(
		textsplitter.WithChunkSize(c.chunkSize),
		textsplitter.WithChunkOverlap(c.overlap),
		textsplitter.WithSeparators(chunkSeparators),
	)

	chunks, err := splitter.SplitText(text)
	if err != nil {
		return nil, fmt.Errorf("failed to split text: %w", err)
	}

	fragments := make([]Fragment, 0, len(chunks))
	for _, chunk := range chunks {
		fragments = append(fragments, Fragment{
			Text:       chunk,
			OwnerID:    meta.OwnerID,
			DocumentID: meta.DocumentID,
			FileName:   meta.FileName,
			PageNumber: meta.PageNumber,
		})
	}

	return fragments, nil
}
