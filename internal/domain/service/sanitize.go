package service

import (
	"regexp"
	"strings"
)

// Text normalization applied to every reasoning/content delta before it
// leaves the relay. Normalization is not distributive over concatenation
// (tag spans and LF runs cross delta boundaries), so the cleaner always
// runs over the full raw accumulator and DiffChannel emits only the suffix
// beyond what was already sent.

// quickMarkupRe is the fast-path check: when nothing matches, the string
// needs no tag processing and only whitespace normalization runs.
var quickMarkupRe = regexp.MustCompile(`(?i)<(?:script|style|br|/p)\b`)

// scriptSpanRe and styleSpanRe match complete tag spans, case-insensitive,
// across newlines.
var scriptSpanRe = regexp.MustCompile(`(?is)<script\b[^>]*>.*?</script\s*>`)
var styleSpanRe = regexp.MustCompile(`(?is)<style\b[^>]*>.*?</style\s*>`)

// brTagRe matches <br>, <br/>, <br ...> variants; closePTagRe matches </p>.
// Both become line feeds.
var brTagRe = regexp.MustCompile(`(?i)<br\b[^>]*>`)
var closePTagRe = regexp.MustCompile(`(?i)</p\s*>`)

// multiLFRe collapses runs of three or more line feeds down to two.
var multiLFRe = regexp.MustCompile(`\n{3,}`)

// CleanText normalizes a model text fragment:
//
//  1. remove <script>...</script> and <style>...</style> spans
//  2. replace <br .../> and </p> with LF
//  3. collapse runs of >=3 LFs into 2
//  4. trim whitespace on each line
//  5. strip leading/trailing LFs from the whole string
func CleanText(text string) string {
	if text == "" {
		return text
	}

	cleaned := text
	if quickMarkupRe.MatchString(cleaned) {
		cleaned = scriptSpanRe.ReplaceAllString(cleaned, "")
		cleaned = styleSpanRe.ReplaceAllString(cleaned, "")
		cleaned = brTagRe.ReplaceAllString(cleaned, "\n")
		cleaned = closePTagRe.ReplaceAllString(cleaned, "\n")
	}

	cleaned = multiLFRe.ReplaceAllString(cleaned, "\n\n")
	cleaned = trimLines(cleaned)
	return strings.Trim(cleaned, "\n")
}

// trimLines trims leading and trailing whitespace on every line while
// keeping the line structure intact.
func trimLines(s string) string {
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSpace(line)
	}
	return strings.Join(lines, "\n")
}
