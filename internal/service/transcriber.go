package service

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Transcriber turns meeting audio into text.
type Transcriber interface {
	Transcribe(ctx context.Context, audio []byte, format string) (string, error)
}

// TranscriberConfig holds configuration for the transcription endpoint.
type TranscriberConfig struct {
	Model   string
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAITranscriber posts audio to an OpenAI-compatible /audio/transcriptions endpoint.
type OpenAITranscriber struct {
	client   *resty.Client
	model    string
	endpoint string
}

// NewOpenAITranscriber creates a transcription client.
// Parameters:
//   - cfg: endpoint, model and timeout.
//
// Returns:
//   - *OpenAITranscriber: initialized client.
func NewOpenAITranscriber(cfg *TranscriberConfig) *OpenAITranscriber {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	return &OpenAITranscriber{
		client: resty.New().
			SetHeader("Authorization", "Bearer "+cfg.APIKey).
			SetTimeout(timeout),
		model:    cfg.Model,
		endpoint: baseURL + "/audio/transcriptions",
	}
}

type transcriptionResponse struct {
	Text  string `json:"text"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error,omitempty"`
}

// Transcribe uploads the audio and returns its text.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - audio: raw audio bytes.
//   - format: audio format such as mp3.
//
// Returns:
//   - string: transcript text.
//   - error: transport error or an empty transcript.
func (t *OpenAITranscriber) Transcribe(ctx context.Context, audio []byte, format string) (string, error) {
	if len(audio) == 0 {
		return "", fmt.Errorf("audio is empty")
	}
	format = strings.TrimPrefix(strings.ToLower(format), ".")

	var resp transcriptionResponse
	httpResp, err := t.client.R().
		SetContext(ctx).
		SetFileReader("file", "meeting."+format, bytes.NewReader(audio)).
		SetFormData(map[string]string{
			"model":           t.model,
			"response_format": "json",
		}).
		SetResult(&resp).
		SetError(&resp).
		Post(t.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call transcription API: %w", err)
	}
	if httpResp.IsError() {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", fmt.Errorf("transcription API returned HTTP %d: %s", httpResp.StatusCode(), msg)
	}
	return resp.Text, nil
}
