package service

import (
	"regexp"
	"strings"
)

var (
	inlineSpace    = regexp.MustCompile(`[ \t\f\v\x{00a0}]+`)
	leadingStamp   = regexp.MustCompile(`^\[?\d{1,2}:\d{2}(?::\d{2})?(?:\.\d+)?\]?\s*`)
	genericSpeaker = regexp.MustCompile(`^\[?(?i:speaker|spk)[ _-]*0*(\d+)\]?\s*:\s*`)
	namedSpeaker   = regexp.MustCompile(`^\[?(\p{Lu}[\p{L}.'-]*(?: \p{Lu}[\p{L}.'-]*){0,2})\]?\s+:\s*`)
	bareSpeaker    = regexp.MustCompile(`^Speaker \d+:$`)
)

// NormalizeTranscript cleans a raw transcript: unified line endings, collapsed
// inline whitespace, leading timestamps removed, blank lines dropped and
// speaker labels rewritten as "Speaker N: text" or "Name: text".
// Parameters:
//   - raw: transcript as uploaded.
//
// Returns:
//   - string: cleaned transcript.
func NormalizeTranscript(raw string) string {
	raw = strings.ReplaceAll(raw, "\r\n", "\n")
	raw = strings.ReplaceAll(raw, "\r", "\n")

	lines := strings.Split(raw, "\n")
	out := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.TrimSpace(inlineSpace.ReplaceAllString(line, " "))
		line = leadingStamp.ReplaceAllString(line, "")
		line = genericSpeaker.ReplaceAllString(line, "Speaker $1: ")
		line = namedSpeaker.ReplaceAllString(line, "$1: ")
		line = strings.TrimSpace(line)
		if line == "" || bareSpeaker.MatchString(line) {
			continue
		}
		out = append(out, line)
	}
	return strings.Join(out, "\n")
}

// WordCount counts whitespace-separated words.
// Parameters:
//   - text: any text.
//
// Returns:
//   - int: number of words.
func WordCount(text string) int {
	return len(strings.Fields(text))
}
