package services

import (
	"regexp"
	"strings"
)

// Assistants are instructed never to leak structured data into conversational
// replies, but occasionally do. Sanitization strips code fences, inline
// backticks and JSON-looking lines before text reaches an end user.

// sanitizeFloor: below this many characters the stripped reply is considered
// gutted and the original is returned instead.
const sanitizeFloor = 20

var (
	fencedBlockRE = regexp.MustCompile("(?s)```.*?```")
	openFenceRE   = regexp.MustCompile("(?s)```.*$")
	jsonLineRE    = regexp.MustCompile(`^\s*(?:[{}\[\]],?|"[^"]*"\s*:.*|[{\[].*[}\]],?)\s*$`)
	blankRunsRE   = regexp.MustCompile(`\n{3,}`)
)

// SanitizeAssistantReply removes structured-data artifacts from an assistant
// reply. If stripping would reduce a substantive reply below the floor, the
// original text is returned unchanged.
func SanitizeAssistantReply(text string) string {
	cleaned := fencedBlockRE.ReplaceAllString(text, "")
	// An unterminated fence swallows the rest of the reply.
	cleaned = openFenceRE.ReplaceAllString(cleaned, "")

	lines := strings.Split(cleaned, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if jsonLineRE.MatchString(line) && strings.TrimSpace(line) != "" {
			continue
		}
		kept = append(kept, line)
	}
	cleaned = strings.Join(kept, "\n")

	cleaned = strings.ReplaceAll(cleaned, "`", "")
	cleaned = blankRunsRE.ReplaceAllString(cleaned, "\n\n")
	cleaned = strings.TrimSpace(cleaned)

	if len(cleaned) < sanitizeFloor {
		return text
	}
	return cleaned
}
