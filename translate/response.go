package translate

import (
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
)

// ErrUnparsable is returned when a model reply holds no entity list.
var ErrUnparsable = errors.New("reply is not a list of strings")

var (
	markdownCodeBlock = regexp.MustCompile("(?s)```(?:json|python)?\\s*(.*?)\\s*```")
	thinkBlock        = regexp.MustCompile(`(?s)<think>.*?</think>`)
)

// stripReasoning removes <think> blocks and any dangling closing tag left
// by models that omit the opening one.
func stripReasoning(s string) string {
	s = thinkBlock.ReplaceAllString(s, "")
	if i := strings.LastIndex(s, "</think>"); i >= 0 {
		s = s[i+len("</think>"):]
	}
	return s
}

// CleanResponse reduces a translation reply to the sentence itself: the
// reasoning is dropped, the last non-empty line is kept and wrapping quotes
// are removed.
func CleanResponse(s string) string {
	s = stripReasoning(s)
	if m := markdownCodeBlock.FindStringSubmatch(s); m != nil {
		s = m[1]
	}

	var last string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			last = line
		}
	}
	return trimQuotes(last)
}

func trimQuotes(s string) string {
	pairs := [][2]string{{`"`, `"`}, {"'", "'"}, {"“", "”"}, {"「", "」"}}
	for _, p := range pairs {
		if len(s) >= len(p[0])+len(p[1]) && strings.HasPrefix(s, p[0]) && strings.HasSuffix(s, p[1]) {
			inner := s[len(p[0]) : len(s)-len(p[1])]
			if !strings.Contains(inner, p[0]) {
				return strings.TrimSpace(inner)
			}
		}
	}
	return s
}

// ParseEntityList reads a list of entity strings from a model reply. Both
// JSON arrays and single-quoted list literals are accepted, with or without
// a surrounding code fence. Empty and duplicate entries are dropped.
func ParseEntityList(reply string) ([]string, error) {
	s := stripReasoning(reply)
	if m := markdownCodeBlock.FindStringSubmatch(s); m != nil {
		s = m[1]
	}
	start := strings.Index(s, "[")
	end := strings.LastIndex(s, "]")
	if start < 0 || end < start {
		return nil, fmt.Errorf("%w: %s", ErrUnparsable, truncate(strings.TrimSpace(reply), 200))
	}
	body := s[start : end+1]

	var items []string
	if err := json.Unmarshal([]byte(body), &items); err != nil {
		items, err = parseQuotedList(body)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparsable, err)
		}
	}

	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, it := range items {
		it = strings.TrimSpace(it)
		if it == "" || seen[it] {
			continue
		}
		seen[it] = true
		out = append(out, it)
	}
	return out, nil
}

// parseQuotedList scans a bracketed list of single- or double-quoted
// strings separated by commas.
func parseQuotedList(s string) ([]string, error) {
	rs := []rune(strings.TrimSpace(s))
	if len(rs) < 2 || rs[0] != '[' || rs[len(rs)-1] != ']' {
		return nil, fmt.Errorf("not a list")
	}
	rs = rs[1 : len(rs)-1]

	var out []string
	i := 0
	skipSpace := func() {
		for i < len(rs) && (rs[i] == ' ' || rs[i] == '\t' || rs[i] == '\n' || rs[i] == '\r') {
			i++
		}
	}
	for {
		skipSpace()
		if i >= len(rs) {
			return out, nil
		}
		q := rs[i]
		if q != '\'' && q != '"' {
			return nil, fmt.Errorf("unexpected %q at offset %d", rs[i], i)
		}
		i++
		var sb strings.Builder
		closed := false
		for i < len(rs) {
			r := rs[i]
			i++
			if r == '\\' && i < len(rs) {
				sb.WriteRune(rs[i])
				i++
				continue
			}
			if r == q {
				closed = true
				break
			}
			sb.WriteRune(r)
		}
		if !closed {
			return nil, fmt.Errorf("unterminated string")
		}
		out = append(out, sb.String())

		skipSpace()
		if i >= len(rs) {
			return out, nil
		}
		if rs[i] != ',' {
			return nil, fmt.Errorf("expected ',' at offset %d", i)
		}
		i++
	}
}
