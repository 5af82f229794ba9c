package normalize

import (
	"bytes"
	"encoding/json"
	"regexp"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	gmtext "github.com/yuin/goldmark/text"
)

var markdown = goldmark.New()

// fromStructuredPayload resolves text carrying a JSON object, fenced or
// embedded in prose. Candidates are tried in order; the first one that
// parses and carries a recognized field wins.
func fromStructuredPayload(text string) (string, []string, bool) {
	for _, candidate := range jsonCandidates(text) {
		var payload map[string]any
		if err := json.Unmarshal([]byte(candidate), &payload); err != nil {
			continue
		}

		summary, diffs, ok := normalizePayload(payload)
		if !ok {
			continue
		}
		return summary, diffs, true
	}
	return "", nil, false
}

// jsonCandidates returns possible JSON object payloads: fenced code
// blocks first, else every balanced top-level brace run in the text.
func jsonCandidates(text string) []string {
	if candidates := fencedPayloads([]byte(text)); len(candidates) > 0 {
		return candidates
	}
	return balancedObjects(text)
}

// fencedPayloads walks the markdown tree and collects fence bodies that
// look like JSON objects. Fences tagged with a language other than json
// are skipped.
func fencedPayloads(source []byte) []string {
	doc := markdown.Parser().Parse(gmtext.NewReader(source))

	var candidates []string
	_ = ast.Walk(doc, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		fence, ok := node.(*ast.FencedCodeBlock)
		if !ok {
			return ast.WalkContinue, nil
		}
		if lang := string(fence.Language(source)); lang != "" && lang != "json" {
			return ast.WalkContinue, nil
		}

		var buf bytes.Buffer
		lines := fence.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			buf.Write(seg.Value(source))
		}

		body := strings.TrimSpace(buf.String())
		if strings.HasPrefix(body, "{") && strings.HasSuffix(body, "}") {
			candidates = append(candidates, body)
		}
		return ast.WalkContinue, nil
	})

	return candidates
}

// balancedObjects scans for top-level `{`...`}` runs. Nested braces are
// tracked by depth; unbalanced trailing braces are ignored.
func balancedObjects(text string) []string {
	var (
		results []string
		depth   int
		start   = -1
	)

	for idx, ch := range text {
		switch ch {
		case '{':
			if depth == 0 {
				start = idx
			}
			depth++
		case '}':
			if depth == 0 {
				continue
			}
			depth--
			if depth == 0 && start >= 0 {
				results = append(results, strings.TrimSpace(text[start:idx+1]))
				start = -1
			}
		}
	}
	return results
}

// normalizePayload maps a parsed object onto a summary and diff points.
// summary_long and its camelCase twin take precedence over a bare
// summary field. Objects carrying none of the recognized fields do not
// match; a diff_points field of the wrong type rejects the candidate.
func normalizePayload(payload map[string]any) (string, []string, bool) {
	summaryRaw, hasSummary := pickString(payload,
		"summary_long", "summaryLong", "summary")

	diffsRaw, hasDiffs := payload["diff_points"]
	if !hasDiffs {
		diffsRaw, hasDiffs = payload["diffPoints"]
	}

	if !hasSummary && !hasDiffs {
		return "", nil, false
	}

	var diffs []string
	switch v := diffsRaw.(type) {
	case nil:
	case string:
		diffs = parseDiffPoints(v)
	case []any:
		for _, item := range v {
			if s := strings.TrimSpace(stringify(item)); s != "" {
				diffs = append(diffs, s)
			}
		}
	default:
		return "", nil, false
	}

	return cleanSummaryText(summaryRaw), diffs, true
}

// pickString returns the first non-empty string value among keys.
func pickString(payload map[string]any, keys ...string) (string, bool) {
	for _, key := range keys {
		if value, ok := payload[key].(string); ok {
			if text := strings.TrimSpace(value); text != "" {
				return text, true
			}
		}
	}
	return "", false
}

var (
	quotedSummaryRes = []*regexp.Regexp{
		regexp.MustCompile(`"summary_long"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		regexp.MustCompile(`"summaryLong"\s*:\s*"((?:[^"\\]|\\.)*)"`),
		regexp.MustCompile(`"summary"\s*:\s*"((?:[^"\\]|\\.)*)"`),
	}
	quotedDiffArrayRe = regexp.MustCompile(`"(?:diff_points|diffPoints)"\s*:\s*\[`)
	quotedStringRe    = regexp.MustCompile(`"((?:[^"\\]|\\.)*)"`)
)

// fromQuotedFields is the last structured resort: pull quoted field
// values straight out of text that would not parse as JSON, decoding
// escape sequences. Handles truncated or comma-mangled model output.
func fromQuotedFields(text string) (string, []string, bool) {
	var summary string
	for _, re := range quotedSummaryRes {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		if summary = cleanSummaryText(decodeJSONString(m[1])); summary != "" {
			break
		}
	}
	if summary == "" {
		return "", nil, false
	}

	var diffs []string
	if loc := quotedDiffArrayRe.FindStringIndex(text); loc != nil {
		rest := text[loc[1]:]
		if end := strings.IndexByte(rest, ']'); end >= 0 {
			for _, m := range quotedStringRe.FindAllStringSubmatch(rest[:end], -1) {
				if s := strings.TrimSpace(decodeJSONString(m[1])); s != "" {
					diffs = append(diffs, s)
				}
			}
		}
	}
	return summary, diffs, true
}

// decodeJSONString interprets raw as the inside of a JSON string
// literal. Undecodable input is returned as-is.
func decodeJSONString(raw string) string {
	var s string
	if err := json.Unmarshal([]byte(`"`+raw+`"`), &s); err != nil {
		return raw
	}
	return s
}
