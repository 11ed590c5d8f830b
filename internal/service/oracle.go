package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Schema asks the oracle for a JSON answer matching Definition.
type Schema struct {
	Name       string
	Definition map[string]interface{}
}

// Oracle is the content oracle: it generates reports and judges coherence.
type Oracle interface {
	// Submit sends prompt and returns the model's answer. With a non-nil
	// schema the answer is a JSON document conforming to it.
	Submit(ctx context.Context, prompt string, schema *Schema) (string, error)
}

// OracleConfig holds configuration for the OpenAI-compatible oracle.
type OracleConfig struct {
	Model     string
	APIKey    string
	BaseURL   string
	Timeout   time.Duration
	MaxTokens int
}

// OpenAIOracle calls an OpenAI-compatible chat completions endpoint.
type OpenAIOracle struct {
	client    *resty.Client
	model     string
	endpoint  string
	maxTokens int
}

// NewOpenAIOracle creates a new oracle client.
// Parameters:
//   - cfg: model, credentials and endpoint.
//
// Returns:
//   - *OpenAIOracle: initialized client wrapper.
func NewOpenAIOracle(cfg *OracleConfig) *OpenAIOracle {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	client := resty.New().
		SetHeader("Authorization", "Bearer "+cfg.APIKey).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)

	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 4096
	}

	return &OpenAIOracle{
		client:    client,
		model:     cfg.Model,
		endpoint:  baseURL + "/chat/completions",
		maxTokens: maxTokens,
	}
}

// GetModel returns the model name being used.
// Returns:
//   - string: model name.
func (o *OpenAIOracle) GetModel() string {
	return o.model
}

type chatRequest struct {
	Model          string          `json:"model"`
	Messages       []chatMessage   `json:"messages"`
	MaxTokens      int             `json:"max_tokens"`
	ResponseFormat *responseFormat `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFormat struct {
	Type       string      `json:"type"`
	JSONSchema *jsonSchema `json:"json_schema,omitempty"`
}

type jsonSchema struct {
	Name   string                 `json:"name"`
	Schema map[string]interface{} `json:"schema"`
	Strict bool                   `json:"strict"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error,omitempty"`
}

// Submit sends one prompt to the chat completions endpoint.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - prompt: user prompt.
//   - schema: optional JSON schema the answer must follow; nil for free text.
//
// Returns:
//   - string: model answer.
//   - error: transport error or an empty answer.
func (o *OpenAIOracle) Submit(ctx context.Context, prompt string, schema *Schema) (string, error) {
	req := chatRequest{
		Model:     o.model,
		Messages:  []chatMessage{{Role: "user", Content: prompt}},
		MaxTokens: o.maxTokens,
	}
	if schema != nil {
		req.ResponseFormat = &responseFormat{
			Type: "json_schema",
			JSONSchema: &jsonSchema{
				Name:   schema.Name,
				Schema: schema.Definition,
				Strict: true,
			},
		}
	}

	var resp chatResponse
	httpResp, err := o.client.R().
		SetContext(ctx).
		SetBody(req).
		SetResult(&resp).
		SetError(&resp).
		Post(o.endpoint)
	if err != nil {
		return "", fmt.Errorf("failed to call oracle: %w", err)
	}

	if httpResp.IsError() {
		msg := string(httpResp.Body())
		if resp.Error != nil {
			msg = resp.Error.Message
		}
		return "", fmt.Errorf("oracle returned HTTP %d: %s", httpResp.StatusCode(), msg)
	}
	if resp.Error != nil {
		return "", fmt.Errorf("oracle error: %s", resp.Error.Message)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("oracle returned no choices (status %d)", httpResp.StatusCode())
	}

	return resp.Choices[0].Message.Content, nil
}
