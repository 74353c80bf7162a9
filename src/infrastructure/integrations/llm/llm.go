// Package llm wraps the OpenAI-compatible chat completion API behind the
// three calls the bot needs: fragment-scoped answers, consolidated summaries,
// and image descriptions.
package llm

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/tmc/langchaingo/llms"
	"github.com/tmc/langchaingo/llms/openai"
	"github.com/tmc/langchaingo/schema"
)

const (
	fragmentSystemPrompt = "You are an assistant that answers questions based on fragments of text."
	summarySystemPrompt  = "You are an assistant that consolidates per-fragment answers into one detailed, comprehensive answer to the user's query."
	imageSystemPrompt    = "You are an assistant that answers questions about the supplied image in full detail."

	fragmentMaxTokens = 300
	summaryMaxTokens  = 1500
	imageMaxTokens    = 1000
)

// FailureKind classifies a completion failure so callers can decide whether a
// retry makes sense without matching on message strings.
type FailureKind int

const (
	FailureTransient FailureKind = iota
	FailurePermanent
)

// CallError is returned for any completion failure.
type CallError struct {
	Kind FailureKind
	Op   string
	Err  error
}

func (e *CallError) Error() string {
	return fmt.Sprintf("llm %s failed: %v", e.Op, e.Err)
}

func (e *CallError) Unwrap() error {
	return e.Err
}

// IsTransient reports whether err is a CallError with a retryable kind.
func IsTransient(err error) bool {
	var ce *CallError
	return errors.As(err, &ce) && ce.Kind == FailureTransient
}

// Config holds the connection settings for the completion API.
type Config struct {
	BaseURL     string
	Token       string
	Model       string
	VisionModel string
	Timeout     time.Duration
}

// Client issues chat completions through langchaingo's OpenAI client.
type Client struct {
	model       *openai.LLM
	visionModel *openai.LLM
	timeout     time.Duration
}

// NewClient creates a Client for both the text and the vision model.
func NewClient(cfg Config) (*Client, error) {
	model, err := openai.New(
		openai.WithBaseURL(cfg.BaseURL),
		openai.WithToken(cfg.Token),
		openai.WithModel(cfg.Model),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create completion client: %w", err)
	}

	visionModel := model
	if cfg.VisionModel != "" && cfg.VisionModel != cfg.Model {
		visionModel, err = openai.New(
			openai.WithBaseURL(cfg.BaseURL),
			openai.WithToken(cfg.Token),
			openai.WithModel(cfg.VisionModel),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create vision client: %w", err)
		}
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}

	return &Client{
		model:       model,
		visionModel: visionModel,
		timeout:     timeout,
	}, nil
}

// AnswerFragment asks the model to answer the query using only the given
// fragment. Output is bounded to a small token budget.
func (c *Client) AnswerFragment(ctx context.Context, fragment, query string) (string, error) {
	prompt := fmt.Sprintf("Based on the following fragment: %q, answer the question: %q", fragment, query)
	return c.generate(ctx, "fragment answer", c.model, fragmentSystemPrompt, prompt, fragmentMaxTokens)
}

// Summarize asks the model for a single consolidated answer built from all
// per-fragment answers. The minimum length is a prompt-level hint only.
func (c *Client) Summarize(ctx context.Context, answers []string, query string) (string, error) {
	prompt := fmt.Sprintf(
		"Based on the following answers, give a detailed, consolidated answer to the query: %q. "+
			"Cover every important detail and keep the answer at least 1000 characters long:\n\n%s",
		query, strings.Join(answers, "\n\n"))
	return c.generate(ctx, "summary", c.model, summarySystemPrompt, prompt, summaryMaxTokens)
}

// DescribeImage sends the raw image as a base64 data URL to the vision model
// together with the caption, or a default prompt when the caption is empty.
func (c *Client) DescribeImage(ctx context.Context, image []byte, caption string) (string, error) {
	if caption == "" {
		caption = "Describe this image in detail."
	}

	dataURL := fmt.Sprintf("data:image/jpeg;base64,%s", base64.StdEncoding.EncodeToString(image))

	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, imageSystemPrompt),
		{
			Role: schema.ChatMessageTypeHuman,
			Parts: []llms.ContentPart{
				llms.TextPart(caption),
				llms.ImageURLPart(dataURL),
			},
		},
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.visionModel.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(imageMaxTokens),
	)
	if err != nil {
		return "", &CallError{Kind: classify(err), Op: "image answer", Err: err}
	}

	return firstChoice(resp, "image answer")
}

func (c *Client) generate(ctx context.Context, op string, model *openai.LLM, system, prompt string, maxTokens int) (string, error) {
	messages := []llms.MessageContent{
		llms.TextParts(schema.ChatMessageTypeSystem, system),
		llms.TextParts(schema.ChatMessageTypeHuman, prompt),
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := model.GenerateContent(ctx, messages,
		llms.WithTemperature(0),
		llms.WithMaxTokens(maxTokens),
	)
	if err != nil {
		return "", &CallError{Kind: classify(err), Op: op, Err: err}
	}

	return firstChoice(resp, op)
}

func firstChoice(resp *llms.ContentResponse, op string) (string, error) {
	if resp == nil || len(resp.Choices) == 0 {
		return "", &CallError{Kind: FailurePermanent, Op: op, Err: errors.New("empty completion response")}
	}
	return strings.TrimSpace(resp.Choices[0].Content), nil
}

// classify treats network-level and timeout failures as transient; anything
// else (bad request, auth, content policy) is permanent.
func classify(err error) FailureKind {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return FailureTransient
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return FailureTransient
	}
	msg := err.Error()
	if strings.Contains(msg, "429") || strings.Contains(msg, "500") ||
		strings.Contains(msg, "502") || strings.Contains(msg, "503") {
		return FailureTransient
	}
	return FailurePermanent
}
