package normalize

import (
	"regexp"
	"strings"
)

var (
	// fencePattern matches a fenced block, optionally tagged json: ```json { ... } ```
	fencePattern = regexp.MustCompile("(?s)```(?:json|JSON)?[ \\t]*\\n?(.*?)\\s*```")
	// objectPattern matches the outermost-looking JSON object (greedy)
	objectPattern = regexp.MustCompile(`(?s)\{.*\}`)
)

// extractPayload returns the JSON candidate inside a model reply.
// A fenced block wins; otherwise the outermost {...} span; otherwise the
// trimmed reply itself. The second return reports whether a fence was found.
func extractPayload(content string) (string, bool) {
	if m := fencePattern.FindStringSubmatch(content); len(m) > 1 {
		return strings.TrimSpace(m[1]), true
	}
	if m := objectPattern.FindString(content); m != "" {
		return m, false
	}
	return strings.TrimSpace(content), false
}

// cleanJSON strips // comments outside string values and trailing commas,
// both common artifacts in model output
func cleanJSON(raw string) string {
	lines := strings.Split(raw, "\n")
	for i, line := range lines {
		lines[i] = stripLineComment(line)
	}
	return stripTrailingCommas(strings.Join(lines, "\n"))
}

// stripTrailingCommas drops commas that directly precede ] or }, leaving
// string values untouched
func stripTrailingCommas(s string) string {
	var b strings.Builder
	b.Grow(len(s))

	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if inString {
			b.WriteByte(ch)
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		if ch == '"' {
			inString = true
		}
		if ch == ',' {
			j := i + 1
			for j < len(s) && strings.IndexByte(" \t\r\n", s[j]) >= 0 {
				j++
			}
			if j < len(s) && (s[j] == '}' || s[j] == ']') {
				continue
			}
		}
		b.WriteByte(ch)
	}
	return b.String()
}

// stripLineComment removes a // comment from one line, respecting string literals
func stripLineComment(line string) string {
	if !strings.Contains(line, "//") {
		return line
	}

	inString := false
	escaped := false
	for i := 0; i < len(line); i++ {
		ch := line[i]
		if escaped {
			escaped = false
			continue
		}
		if ch == '\\' && inString {
			escaped = true
			continue
		}
		if ch == '"' {
			inString = !inString
			continue
		}
		if !inString && ch == '/' && i+1 < len(line) && line[i+1] == '/' {
			return strings.TrimRight(line[:i], " \t")
		}
	}
	return line
}
