package normalize

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"unicode"
)

var (
	markdownSectionRe = regexp.MustCompile(
		`^\*\*\s*([^*]+?)\s*\*\*\s*[:：]\s*(.*)$`)
	plainSectionRe = regexp.MustCompile(
		`^\s*([A-Za-z][A-Za-z _()-]*?)\s*[:：]\s*(.*)$`)
	bulletPrefixRe = regexp.MustCompile(
		`^\s*(?:[-*・•●◎◦]|[0-9]+[.)])\s*`)

	summaryHeaderMarkdownRe = regexp.MustCompile(
		`(?i)\*\*\s*summary(?:\s+long)?\s*\*\*\s*[:：]\s*`)
	summaryHeaderPlainRe = regexp.MustCompile(
		`(?i)^\s*summary(?:_long|\s+long)?[^:：]*[:：]\s*`)
)

// Header keyword sets. A section header counts as a summary or diff
// section when it contains one of these substrings after lowering.
var (
	summaryKeywords = []string{
		"summary_long", "summary long", "long summary",
		"summary (500", "summary (120",
	}
	diffKeywords = []string{
		"diff_points", "diff points", "differences", "diffs",
	}
)

func matchesAny(header string, keywords []string) bool {
	for _, keyword := range keywords {
		if strings.Contains(header, keyword) {
			return true
		}
	}
	return false
}

// sectionSet holds labeled sections in first-seen order. A repeated
// header keeps its original position but takes the latest body.
type sectionSet struct {
	order  []string
	bodies map[string]string
}

func (s *sectionSet) put(key, body string) {
	if _, seen := s.bodies[key]; !seen {
		s.order = append(s.order, key)
	}
	s.bodies[key] = body
}

func (s *sectionSet) pick(keywords []string) (string, bool) {
	for _, key := range s.order {
		if matchesAny(key, keywords) {
			return s.bodies[key], true
		}
	}
	return "", false
}

func startsWithBullet(line string) bool {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" {
		return false
	}
	switch []rune(trimmed)[0] {
	case '-', '*', '・', '•', '●', '◎', '◦':
		return true
	}
	return false
}

// parseSections splits text into labeled sections. Markdown headers
// (`**label**:`) always open a section; plain `Label:` lines only do so
// when the label carries a known keyword and the line is not a bullet,
// since prose sentences with colons are common in model output.
func parseSections(text string) *sectionSet {
	set := &sectionSet{bodies: make(map[string]string)}

	var (
		current string
		active  bool
		buffer  []string
	)

	flush := func() {
		if active {
			var kept []string
			for _, line := range buffer {
				if strings.TrimSpace(line) != "" {
					kept = append(kept, line)
				}
			}
			set.put(current, strings.TrimSpace(strings.Join(kept, "\n")))
		}
		current, active, buffer = "", false, nil
	}

	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimRightFunc(rawLine, unicode.IsSpace)

		if m := markdownSectionRe.FindStringSubmatch(line); m != nil {
			flush()
			current = strings.ToLower(strings.TrimSpace(m[1]))
			active = true
			if rem := strings.TrimSpace(m[2]); rem != "" {
				buffer = []string{rem}
			}
			continue
		}

		if m := plainSectionRe.FindStringSubmatch(line); m != nil &&
			!startsWithBullet(line) {

			header := strings.ToLower(strings.TrimSpace(m[1]))
			if matchesAny(header, summaryKeywords) ||
				matchesAny(header, diffKeywords) {

				flush()
				current = header
				active = true
				if rem := strings.TrimSpace(m[2]); rem != "" {
					buffer = []string{rem}
				}
				continue
			}
		}

		if active {
			buffer = append(buffer, line)
		}
	}

	flush()
	return set
}

// fromLabeledSections resolves text that uses explicit section headers,
// the most common shape for markdown-leaning model output.
func fromLabeledSections(text string) (string, []string, bool) {
	sections := parseSections(text)
	if _, ok := sections.pick(summaryKeywords); !ok {
		return "", nil, false
	}

	summary := cleanSummaryText(text)
	if summary == "" {
		return "", nil, false
	}

	var diffs []string
	if body, ok := sections.pick(diffKeywords); ok {
		diffs = splitDiffLines(body)
	}
	return summary, diffs, true
}

// cleanSummaryText reduces a summary candidate to its content lines:
// the summary-labeled section is selected when present, then bullets,
// nested headers, and label echoes are dropped and duplicate lines
// removed. When filtering would discard everything the unfiltered
// section body is kept instead.
func cleanSummaryText(value string) string {
	text := strings.TrimSpace(value)
	if text == "" {
		return ""
	}

	if body, ok := parseSections(text).pick(summaryKeywords); ok {
		text = body
	}

	var lines []string
	for _, rawLine := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(rawLine)
		if stripped == "" {
			continue
		}
		if strings.HasPrefix(stripped, "```") {
			continue
		}
		if bulletPrefixRe.MatchString(stripped) {
			continue
		}
		lowered := strings.ToLower(stripped)
		if strings.HasPrefix(lowered, "summary") ||
			strings.HasPrefix(lowered, "diff") {
			continue
		}
		if markdownSectionRe.MatchString(stripped) {
			continue
		}
		lines = append(lines, stripped)
	}

	if len(lines) > 0 {
		seen := make(map[string]struct{}, len(lines))
		deduped := lines[:0]
		for _, line := range lines {
			if _, dup := seen[line]; dup {
				continue
			}
			seen[line] = struct{}{}
			deduped = append(deduped, line)
		}
		text = strings.Join(deduped, "\n")
	} else {
		// Filtering discarded every line, usually because the whole
		// body is bulleted. Keep the content with whitespace
		// normalized instead of returning nothing.
		var kept []string
		for _, rawLine := range strings.Split(text, "\n") {
			s := strings.TrimSpace(rawLine)
			if s == "" || strings.HasPrefix(s, "```") {
				continue
			}
			kept = append(kept, s)
		}
		text = strings.Join(kept, "\n")
	}

	text = summaryHeaderMarkdownRe.ReplaceAllString(text, "")
	text = stripPrefixes(text, summaryHeaderPlainRe, boilerplateRe)
	return strings.TrimSpace(text)
}

// stripPrefixes removes anchored prefix matches until none remain, so
// stacked label echoes cannot survive a single cleaning pass.
func stripPrefixes(text string, res ...*regexp.Regexp) string {
	for {
		next := text
		for _, re := range res {
			next = re.ReplaceAllString(next, "")
		}
		if next == text {
			return text
		}
		text = next
	}
}

// splitDiffLines turns a diff section body into points: one per line,
// bullet markers stripped, empties dropped.
func splitDiffLines(body string) []string {
	var points []string
	for _, rawLine := range strings.Split(body, "\n") {
		stripped := strings.TrimSpace(rawLine)
		if stripped == "" {
			continue
		}
		cleaned := strings.TrimSpace(
			bulletPrefixRe.ReplaceAllString(stripped, ""))
		if cleaned != "" {
			points = append(points, cleaned)
		}
	}
	return points
}

// parseDiffPoints extracts diff points from an arbitrary string: a JSON
// array when the text looks like one, else the diff-labeled section,
// keeping only lines that were bulleted or mention a diff keyword.
func parseDiffPoints(value string) []string {
	text := strings.TrimSpace(value)
	if text == "" {
		return nil
	}

	if strings.HasPrefix(text, "[") {
		var arr []any
		if err := json.Unmarshal([]byte(text), &arr); err == nil {
			var points []string
			for _, item := range arr {
				if s := strings.TrimSpace(stringify(item)); s != "" {
					points = append(points, s)
				}
			}
			return points
		}
	}

	if body, ok := parseSections(text).pick(diffKeywords); ok {
		text = body
	}

	var points []string
	for _, rawLine := range strings.Split(text, "\n") {
		stripped := strings.TrimSpace(rawLine)
		if stripped == "" {
			continue
		}
		hadPrefix := bulletPrefixRe.MatchString(stripped)
		cleaned := strings.TrimSpace(
			bulletPrefixRe.ReplaceAllString(stripped, ""))
		if cleaned == "" {
			continue
		}
		if hadPrefix || matchesAny(strings.ToLower(stripped), diffKeywords) {
			points = append(points, cleaned)
		}
	}
	return points
}

func stringify(item any) string {
	switch v := item.(type) {
	case string:
		return v
	case nil:
		return ""
	default:
		return fmt.Sprint(v)
	}
}
