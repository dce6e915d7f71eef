package processing

import "strings"

const (
	ThinkStart = "<think>"
	ThinkEnd   = "</think>"
)

// ExtractThinking splits text into the answer and the concatenated <think> blocks.
// An unclosed block runs to the end of the text.
func ExtractThinking(text string) (content string, reasoning string) {
	var c, r strings.Builder

	rest := text
	for {
		before, after, found := strings.Cut(rest, ThinkStart)
		c.WriteString(before)
		if !found {
			break
		}

		inner, tail, closed := strings.Cut(after, ThinkEnd)
		r.WriteString(inner)
		if !closed {
			break
		}
		rest = tail
	}

	return c.String(), r.String()
}

// Answer returns only the visible answer, trimmed. Candidates are ranked on this.
func Answer(text string) string {
	content, _ := ExtractThinking(text)
	return strings.TrimSpace(content)
}
