// Package normalize turns free-form detail generation output into a
// stable display summary plus optional differential points. Upstream
// models are asked for a strict JSON object but routinely reply with
// fenced blocks, markdown section headers, preamble prose, or nothing
// usable at all, so extraction is a best-effort cascade that must never
// fail outright.
package normalize

import (
	"regexp"
	"strings"
)

// Result is the outcome of normalizing one raw detail payload.
type Result struct {
	// Summary is the cleaned display text. Empty when nothing usable
	// could be extracted or when the upstream reported failure.
	Summary string

	// DiffPoints are the extracted differential bullet points, if any.
	DiffPoints []string

	// Failed is set when the text carries an explicit failure marker.
	// The caller must treat the generation as failed and discard any
	// remaining text.
	Failed bool
}

var (
	japaneseRe = regexp.MustCompile(
		`[\x{3040}-\x{30ff}\x{3400}-\x{4dbf}\x{4e00}-\x{9fff}]`)

	boilerplateRe = regexp.MustCompile(
		`(?i)^\s*here(?:'s|\s+is)\s+(?:the\s+|a\s+)?summary\s*[:：]?\s*`)
)

// failureMarkers are phrases the generation pipeline emits instead of a
// summary when it could not produce one. Matched by substring so the
// longer sentence variants are covered too.
var failureMarkers = []string{
	"要約を生成できませんでした",
	"要約を取得できませんでした",
}

// Normalize extracts a summary and diff points from raw upstream text.
// Strategies run in order and the first one that matches wins: labeled
// sections, a structured JSON payload, quoted-field extraction, then a
// verbatim fallback with only wrapper noise removed.
//
// Normalize is pure and never fails: malformed input degrades to the
// fallback strategy. Re-normalizing an extracted summary returns it
// unchanged.
func Normalize(raw string) Result {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}
	}

	summary, diffs, ok := fromLabeledSections(text)
	if !ok {
		summary, diffs, ok = fromStructuredPayload(text)
	}
	if !ok {
		summary, diffs, ok = fromQuotedFields(text)
	}
	if !ok {
		summary = fallbackText(text)
		diffs = parseDiffPoints(text)
	}

	summary = extractJapaneseLines(summary)

	if hasFailureMarker(summary) || (summary == "" && hasFailureMarker(text)) {
		return Result{Failed: true}
	}

	return Result{Summary: summary, DiffPoints: diffs}
}

// fallbackTextCap bounds the verbatim fallback when even wrapper
// stripping leaves nothing, so a runaway payload cannot flood the
// display layer.
const fallbackTextCap = 600

func fallbackText(text string) string {
	if stripped := stripWrappers(text); stripped != "" {
		return stripped
	}
	return truncateRunes(text, fallbackTextCap)
}

// stripWrappers removes fence lines and known boilerplate preambles,
// keeping everything else. Interior blank lines survive so the text
// stays as close to verbatim as wrapper removal allows.
func stripWrappers(text string) string {
	var lines []string
	for _, rawLine := range strings.Split(text, "\n") {
		line := strings.TrimSpace(rawLine)
		if strings.HasPrefix(line, "```") {
			continue
		}
		if line != "" {
			line = strings.TrimSpace(stripPrefixes(line, boilerplateRe))
			if line == "" {
				continue
			}
		}
		lines = append(lines, line)
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}

// extractJapaneseLines keeps only the lines containing Japanese script
// when at least one line has it. Mixed-language output usually means
// the model wrapped the actual summary in English narration.
func extractJapaneseLines(text string) string {
	if text == "" {
		return ""
	}

	var japanese []string
	for _, line := range strings.Split(text, "\n") {
		seg := strings.TrimSpace(line)
		if seg == "" {
			continue
		}
		if japaneseRe.MatchString(seg) {
			japanese = append(japanese, seg)
		}
	}

	if len(japanese) > 0 {
		return strings.Join(japanese, "\n")
	}
	return strings.TrimSpace(text)
}

func hasFailureMarker(text string) bool {
	for _, marker := range failureMarkers {
		if strings.Contains(text, marker) {
			return true
		}
	}
	return false
}

func truncateRunes(s string, limit int) string {
	s = strings.TrimSpace(s)
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return strings.TrimSpace(string(runes[:limit]))
}
