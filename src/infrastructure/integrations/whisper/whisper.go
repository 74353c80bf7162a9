// Package whisper is a small HTTP client for a whisper-compatible
// speech-to-text endpoint.
package whisper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"path/filepath"
)

const (
	DefaultURL = "http://localhost:9300"

	// SampleRate is the rate the model expects; the server resamples inputs
	// to it before decoding.
	SampleRate = 16000
)

// TranscriptionResponse represents the response structure from transcription
type TranscriptionResponse struct {
	Text string `json:"text"`
}

// Client represents a speech-to-text API client
type Client struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// NewClient creates a new speech-to-text API client
func NewClient(baseURL, model string, c *http.Client) *Client {
	if baseURL == "" {
		baseURL = DefaultURL
	}
	if c == nil {
		c = http.DefaultClient
	}

	return &Client{
		httpClient: c,
		baseURL:    baseURL,
		model:      model,
	}
}

// Transcribe uploads one audio file and returns the decoded transcript.
// Long audio is sent in a single call; the endpoint owns any resampling.
func (c *Client) Transcribe(ctx context.Context, fileName string, audio io.Reader) (string, error) {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	part, err := writer.CreateFormFile("file", filepath.Base(fileName))
	if err != nil {
		return "", fmt.Errorf("error creating form file: %w", err)
	}
	if _, err := io.Copy(part, audio); err != nil {
		return "", fmt.Errorf("error copying audio data: %w", err)
	}
	if err := writer.WriteField("model", c.model); err != nil {
		return "", fmt.Errorf("error writing model field: %w", err)
	}
	if err := writer.WriteField("sample_rate", fmt.Sprintf("%d", SampleRate)); err != nil {
		return "", fmt.Errorf("error writing sample rate field: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("error closing multipart writer: %w", err)
	}

	url := fmt.Sprintf("%s/v1/audio/transcriptions", c.baseURL)
	req, err := http.NewRequestWithContext(ctx, "POST", url, &body)
	if err != nil {
		return "", fmt.Errorf("error creating request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("error making request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("transcription request failed with status %d: %s", resp.StatusCode, string(data))
	}

	var result TranscriptionResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("error decoding response: %w", err)
	}

	return result.Text, nil
}
