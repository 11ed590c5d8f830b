package service

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strings"

	"github.com/timmy/recap/internal/config"
	"github.com/timmy/recap/internal/domain"
	"github.com/timmy/recap/internal/prompts"
)

type checkResult struct {
	score  float64
	status domain.CheckpointStatus
	issues domain.IssueList
}

type qualityCheck struct {
	kind domain.CheckpointKind
	run  func(ctx context.Context, content string) (checkResult, error)
}

func (g *QualityGate) checks() []qualityCheck {
	return []qualityCheck{
		{domain.CheckpointSpelling, g.checkSpelling},
		{domain.CheckpointFormat, g.checkFormat},
		{domain.CheckpointCompleteness, g.checkCompleteness},
		{domain.CheckpointCoherence, g.checkCoherence},
		{domain.CheckpointCompliance, g.checkCompliance},
	}
}

func runCheck(ctx context.Context, chk qualityCheck, content string) *domain.Checkpoint {
	res, err := chk.run(ctx, content)
	if err != nil {
		return &domain.Checkpoint{
			Kind:   chk.kind,
			Status: domain.CheckpointFailed,
			Score:  0,
			Issues: domain.IssueList{{
				Kind:     "check_error",
				Severity: domain.SeverityHigh,
				Message:  err.Error(),
			}},
		}
	}
	if res.issues == nil {
		res.issues = domain.IssueList{}
	}
	return &domain.Checkpoint{
		Kind:   chk.kind,
		Status: res.status,
		Score:  clamp01(res.score),
		Issues: res.issues,
	}
}

func (g *QualityGate) checkSpelling(ctx context.Context, content string) (checkResult, error) {
	if g.checker == nil {
		return checkResult{}, fmt.Errorf("no language checker configured")
	}
	matches, err := g.checker.Check(ctx, content)
	if err != nil {
		return checkResult{}, fmt.Errorf("language check: %w", err)
	}

	issues := make(domain.IssueList, 0, len(matches))
	for _, m := range matches {
		issue := domain.Issue{Kind: "spelling", Severity: domain.SeverityLow, Message: m.Message}
		if len(m.Replacements) > 0 {
			issue.Suggestion = m.Replacements[0]
		}
		issues = append(issues, issue)
	}

	n := len(matches)
	status := domain.CheckpointPassed
	if n > g.policy.MaxSpellingErrs {
		status = domain.CheckpointFailed
	}
	return checkResult{score: math.Max(0, 1-0.1*float64(n)), status: status, issues: issues}, nil
}

var headingLine = regexp.MustCompile(`(?m)^#{1,6}\s+\S`)

// CountSections counts Markdown heading lines.
// Parameters:
//   - content: Markdown text.
//
// Returns:
//   - int: number of heading lines.
func CountSections(content string) int {
	return len(headingLine.FindAllStringIndex(content, -1))
}

func (g *QualityGate) checkFormat(_ context.Context, content string) (checkResult, error) {
	var issues domain.IssueList
	sections := CountSections(content)
	words := WordCount(content)

	if sections < g.policy.MinSections {
		issues = append(issues, domain.Issue{
			Kind:       "sections",
			Severity:   domain.SeverityMedium,
			Message:    fmt.Sprintf("%d sections, expected at least %d", sections, g.policy.MinSections),
			Suggestion: "structure the report with Markdown headings",
		})
	}
	if words < g.policy.MinWords {
		issues = append(issues, domain.Issue{
			Kind:       "word_count",
			Severity:   domain.SeverityHigh,
			Message:    fmt.Sprintf("%d words, expected at least %d", words, g.policy.MinWords),
			Suggestion: "expand the summary and decisions",
		})
	}
	if g.policy.MaxWords > 0 && words > g.policy.MaxWords {
		issues = append(issues, domain.Issue{
			Kind:       "word_count",
			Severity:   domain.SeverityLow,
			Message:    fmt.Sprintf("%d words, expected at most %d", words, g.policy.MaxWords),
			Suggestion: "shorten the report",
		})
	}

	status := domain.CheckpointPassed
	for _, issue := range issues {
		if issue.Severity == domain.SeverityHigh {
			status = domain.CheckpointFailed
			break
		}
		status = domain.CheckpointReviewRequired
	}
	return checkResult{score: math.Max(0, 1-0.15*float64(len(issues))), status: status, issues: issues}, nil
}

// checkCompleteness deducts a fixed penalty per missing required term,
// independent of how many terms are configured.
func (g *QualityGate) checkCompleteness(_ context.Context, content string) (checkResult, error) {
	terms := g.policy.RequiredTerms
	if len(terms) == 0 {
		return checkResult{score: 1, status: domain.CheckpointPassed}, nil
	}
	lower := strings.ToLower(content)
	var issues domain.IssueList
	for _, term := range terms {
		if !strings.Contains(lower, strings.ToLower(term)) {
			issues = append(issues, domain.Issue{
				Kind:       "missing_topic",
				Severity:   domain.SeverityMedium,
				Message:    fmt.Sprintf("required topic %q not covered", term),
				Suggestion: fmt.Sprintf("add a %q section", term),
			})
		}
	}
	penalty := g.policy.CompletenessPenalty
	if penalty <= 0 {
		penalty = config.DefaultCompletenessPenalty
	}
	score := math.Max(0, 1-penalty*float64(len(issues)))
	return checkResult{score: score, status: g.reviewIfLow(score), issues: issues}, nil
}

type coherenceAnswer struct {
	Score  float64 `json:"score"`
	Issues []struct {
		Kind       string `json:"kind"`
		Severity   string `json:"severity"`
		Message    string `json:"message"`
		Suggestion string `json:"suggestion"`
	} `json:"issues"`
}

func (g *QualityGate) checkCoherence(ctx context.Context, content string) (checkResult, error) {
	if g.oracle == nil {
		return checkResult{}, fmt.Errorf("no oracle configured")
	}
	raw, err := g.oracle.Submit(ctx, prompts.CoherencePrompt(content), &Schema{
		Name:       "coherence",
		Definition: prompts.CoherenceSchema,
	})
	if err != nil {
		return checkResult{}, fmt.Errorf("coherence oracle: %w", err)
	}

	var answer coherenceAnswer
	if err := json.Unmarshal([]byte(strings.TrimSpace(raw)), &answer); err != nil {
		return checkResult{}, fmt.Errorf("coherence oracle returned invalid JSON: %w", err)
	}
	issues := make(domain.IssueList, 0, len(answer.Issues))
	for _, i := range answer.Issues {
		issues = append(issues, domain.Issue{
			Kind:       i.Kind,
			Severity:   parseSeverity(i.Severity),
			Message:    i.Message,
			Suggestion: i.Suggestion,
		})
	}
	score := clamp01(answer.Score)
	return checkResult{score: score, status: g.reviewIfLow(score), issues: issues}, nil
}

// checkCompliance only applies a soft penalty; it never fails.
func (g *QualityGate) checkCompliance(_ context.Context, content string) (checkResult, error) {
	marker := g.policy.SignatureMarker
	if marker == "" || strings.Contains(strings.ToLower(content), strings.ToLower(marker)) {
		return checkResult{score: 1, status: domain.CheckpointPassed}, nil
	}
	return checkResult{
		score:  0.8,
		status: domain.CheckpointReviewRequired,
		issues: domain.IssueList{{
			Kind:       "signature",
			Severity:   domain.SeverityLow,
			Message:    "signature marker missing",
			Suggestion: fmt.Sprintf("end the report with %q", marker),
		}},
	}, nil
}

func (g *QualityGate) reviewIfLow(score float64) domain.CheckpointStatus {
	if score <= g.policy.ReviewBelow {
		return domain.CheckpointReviewRequired
	}
	return domain.CheckpointPassed
}

func parseSeverity(s string) domain.Severity {
	switch domain.Severity(strings.ToLower(s)) {
	case domain.SeverityHigh:
		return domain.SeverityHigh
	case domain.SeverityMedium:
		return domain.SeverityMedium
	default:
		return domain.SeverityLow
	}
}

func clamp01(v float64) float64 {
	if math.IsNaN(v) {
		return 0
	}
	return math.Max(0, math.Min(1, v))
}
