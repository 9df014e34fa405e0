package sanitize

import (
	"strings"
	"unicode/utf8"
)

// TaskName normalizes a task description to a single trimmed line.
// Prompts enumerate tasks one per line and the prioritizer parses the reply
// line by line, so an embedded newline would split one task into two.
func TaskName(name string) string {
	return strings.Join(strings.Fields(name), " ")
}

// Preview shortens s to at most n runes, appending "..." when truncated.
// A non-positive n returns s unchanged.
func Preview(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}

// SingleLine replaces newlines with spaces without collapsing other whitespace.
func SingleLine(s string) string {
	s = strings.ReplaceAll(s, "\r\n", " ")
	return strings.NewReplacer("\n", " ", "\r", " ").Replace(s)
}
