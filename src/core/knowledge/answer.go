package knowledge

import (
	"context"
	"fmt"

	"knowbot/src/infrastructure/log"
)

// CompletionProvider is the slice of the LLM client the synthesizer needs.
type CompletionProvider interface {
	AnswerFragment(ctx context.Context, fragment, query string) (string, error)
	Summarize(ctx context.Context, answers []string, query string) (string, error)
}

// Synthesizer builds the final answer for a query: one fragment-scoped
// completion per retrieved hit, then a single consolidated completion over
// all of them. Failures propagate as typed errors; rendering a user-facing
// fallback is the gateway's job.
type Synthesizer struct {
	provider CompletionProvider
}

// NewSynthesizer creates a Synthesizer.
func NewSynthesizer(provider CompletionProvider) *Synthesizer {
	return &Synthesizer{provider: provider}
}

// AnswerFragment requests an answer scoped to a single fragment.
func (s *Synthesizer) AnswerFragment(ctx context.Context, fragmentText, query string) (string, error) {
	answer, err := s.provider.AnswerFragment(ctx, fragmentText, query)
	if err != nil {
		return "", fmt.Errorf("failed to answer fragment: %w", err)
	}
	return answer, nil
}

// Synthesize answers the query over the retrieved hits. Hits whose
// fragment-scoped completion fails are skipped; the call only fails when no
// per-fragment answer or the final summary could be produced.
func (s *Synthesizer) Synthesize(ctx context.Context, hits []Hit, query string) (string, error) {
	answers := make([]string, 0, len(hits))
	var lastErr error
	for _, hit := range hits {
		answer, err := s.provider.AnswerFragment(ctx, hit.Fragment.Text, query)
		if err != nil {
			log.Error(err, "fragment answer failed",
				"document_id", hit.Fragment.DocumentID,
				"page", hit.Fragment.PageNumber)
			lastErr = err
			continue
		}
		answers = append(answers, answer)
	}

	if len(answers) == 0 {
		if lastErr != nil {
			return "", fmt.Errorf("failed to answer any fragment: %w", lastErr)
		}
		return "", fmt.Errorf("no fragments to answer")
	}

	summary, err := s.provider.Summarize(ctx, answers, query)
	if err != nil {
		return "", fmt.Errorf("failed to summarize answers: %w", err)
	}
	return summary, nil
}
