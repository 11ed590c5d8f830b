package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// LanguageMatch is one spelling or grammar finding.
type LanguageMatch struct {
	Message      string
	Offset       int
	Length       int
	RuleID       string
	Replacements []string
}

// LanguageChecker reports language-correctness errors in a text.
type LanguageChecker interface {
	Check(ctx context.Context, text string) ([]LanguageMatch, error)
}

// LanguageToolConfig holds configuration for a LanguageTool server.
type LanguageToolConfig struct {
	BaseURL  string
	Language string
	Timeout  time.Duration
}

// LanguageToolChecker calls the LanguageTool /v2/check API.
type LanguageToolChecker struct {
	client   *resty.Client
	endpoint string
	language string
}

// NewLanguageToolChecker creates a LanguageTool client.
// Parameters:
//   - cfg: endpoint, language and timeout.
//
// Returns:
//   - *LanguageToolChecker: initialized client.
func NewLanguageToolChecker(cfg *LanguageToolConfig) *LanguageToolChecker {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	baseURL := strings.TrimSuffix(cfg.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.languagetool.org/v2"
	}
	language := cfg.Language
	if language == "" {
		language = "en-US"
	}
	return &LanguageToolChecker{
		client:   resty.New().SetTimeout(timeout),
		endpoint: baseURL + "/check",
		language: language,
	}
}

type languageToolResponse struct {
	Matches []struct {
		Message      string `json:"message"`
		Offset       int    `json:"offset"`
		Length       int    `json:"length"`
		Replacements []struct {
			Value string `json:"value"`
		} `json:"replacements"`
		Rule struct {
			ID       string `json:"id"`
			Category struct {
				ID string `json:"id"`
			} `json:"category"`
		} `json:"rule"`
	} `json:"matches"`
}

// Check returns matches in the TYPOS and GRAMMAR categories. Style hints are ignored.
// Parameters:
//   - ctx: context for cancellation and deadlines.
//   - text: text to check.
//
// Returns:
//   - []LanguageMatch: reported issues.
//   - error: transport or decode error.
func (c *LanguageToolChecker) Check(ctx context.Context, text string) ([]LanguageMatch, error) {
	var resp languageToolResponse
	httpResp, err := c.client.R().
		SetContext(ctx).
		SetFormData(map[string]string{
			"text":     text,
			"language": c.language,
		}).
		SetResult(&resp).
		Post(c.endpoint)
	if err != nil {
		return nil, fmt.Errorf("failed to call LanguageTool: %w", err)
	}
	if httpResp.IsError() {
		return nil, fmt.Errorf("LanguageTool returned HTTP %d: %s", httpResp.StatusCode(), string(httpResp.Body()))
	}

	matches := make([]LanguageMatch, 0, len(resp.Matches))
	for _, m := range resp.Matches {
		switch m.Rule.Category.ID {
		case "TYPOS", "GRAMMAR":
		default:
			continue
		}
		lm := LanguageMatch{
			Message: m.Message,
			Offset:  m.Offset,
			Length:  m.Length,
			RuleID:  m.Rule.ID,
		}
		for i, r := range m.Replacements {
			if i == 3 {
				break
			}
			lm.Replacements = append(lm.Replacements, r.Value)
		}
		matches = append(matches, lm)
	}
	return matches, nil
}
