// Package prompts holds the oracle prompts for report generation and
// coherence judging.
package prompts

import (
	"fmt"
	"strings"
)

// ReportSystemPrompt sets the role for report generation.
const ReportSystemPrompt = `You write meeting reports in Markdown for the people who attended.
Use "## " headings for sections. Always include these sections: Summary, Decisions, Action Items, Next Steps.
Attribute action items to owners when the transcript names them. Do not invent facts.
End the report with the line: %s`

// ReportUserPrompt renders the generation request for one meeting.
func ReportUserPrompt(title string, participants []string, transcript string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Meeting: %s\n", title)
	if len(participants) > 0 {
		fmt.Fprintf(&b, "Participants: %s\n", strings.Join(participants, ", "))
	}
	b.WriteString("\nTranscript:\n")
	b.WriteString(transcript)
	return b.String()
}

// ReportPrompt combines the system instructions and the meeting input into
// a single oracle prompt.
func ReportPrompt(signature, title string, participants []string, transcript string) string {
	return fmt.Sprintf(ReportSystemPrompt, signature) + "\n\n" + ReportUserPrompt(title, participants, transcript)
}

// CoherencePrompt asks the oracle to grade internal consistency of a report.
func CoherencePrompt(report string) string {
	return `Grade the internal coherence of the meeting report below.
Return a score between 0 and 1, where 1 means no contradictions and no unclear statements.
List every contradiction or unclear statement as an issue with a severity of low, medium or high.

Report:
` + report
}

// CoherenceSchema is the JSON schema of the coherence answer.
var CoherenceSchema = map[string]interface{}{
	"type": "object",
	"properties": map[string]interface{}{
		"score": map[string]interface{}{"type": "number"},
		"issues": map[string]interface{}{
			"type": "array",
			"items": map[string]interface{}{
				"type": "object",
				"properties": map[string]interface{}{
					"kind":       map[string]interface{}{"type": "string", "enum": []string{"contradiction", "unclear"}},
					"severity":   map[string]interface{}{"type": "string", "enum": []string{"low", "medium", "high"}},
					"message":    map[string]interface{}{"type": "string"},
					"suggestion": map[string]interface{}{"type": "string"},
				},
				"required":             []string{"kind", "severity", "message", "suggestion"},
				"additionalProperties": false,
			},
		},
	},
	"required":             []string{"score", "issues"},
	"additionalProperties": false,
}

// ReportReadySubject is the notification subject for a finished report.
func ReportReadySubject(title string, version int) string {
	return fmt.Sprintf("Meeting report ready: %s (v%d)", title, version)
}

// ReportReadyBody is the notification body. An empty link means the upload
// did not happen and readers are pointed at the app instead.
func ReportReadyBody(title, link string) string {
	if link == "" {
		return fmt.Sprintf("The report for %q is ready. No external link is available; open it in Recap.", title)
	}
	return fmt.Sprintf("The report for %q is ready: %s", title, link)
}
