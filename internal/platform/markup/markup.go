// Package markup extracts searchable text and problem response types from
// block content (HTML bodies and capa problem XML).
package markup

import (
	"sort"
	"strings"

	"golang.org/x/net/html"
)

const responseSuffix = "response"

// ProblemTypes returns the distinct response element names found in capa
// markup, sorted. "<multiplechoiceresponse>" yields "multiplechoiceresponse".
func ProblemTypes(data string) []string {
	if strings.TrimSpace(data) == "" {
		return nil
	}
	z := html.NewTokenizer(strings.NewReader(data))
	seen := map[string]struct{}{}
	for {
		tt := z.Next()
		if tt == html.ErrorToken {
			break
		}
		if tt != html.StartTagToken && tt != html.SelfClosingTagToken {
			continue
		}
		name, _ := z.TagName()
		tag := strings.ToLower(string(name))
		if len(tag) > len(responseSuffix) && strings.HasSuffix(tag, responseSuffix) {
			seen[tag] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return nil
	}
	out := make([]string, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

// MatchesCapaType reports whether any of types satisfies the filter. Both the
// short ("multiplechoice") and full ("multiplechoiceresponse") forms match.
func MatchesCapaType(types []string, capaType string) bool {
	want := strings.ToLower(strings.TrimSpace(capaType))
	if want == "" {
		return false
	}
	for _, t := range types {
		if t == want || t == want+responseSuffix {
			return true
		}
	}
	return false
}

// PlainText flattens markup to whitespace-collapsed text, dropping script and
// style bodies. maxLen <= 0 means no limit.
func PlainText(data string, maxLen int) string {
	if strings.TrimSpace(data) == "" {
		return ""
	}
	z := html.NewTokenizer(strings.NewReader(data))
	var (
		b    strings.Builder
		skip int
	)
	for {
		tt := z.Next()
		switch tt {
		case html.ErrorToken:
			return truncate(strings.Join(strings.Fields(b.String()), " "), maxLen)
		case html.StartTagToken:
			name, _ := z.TagName()
			if isSkipped(string(name)) {
				skip++
			}
		case html.EndTagToken:
			name, _ := z.TagName()
			if isSkipped(string(name)) && skip > 0 {
				skip--
			}
		case html.TextToken:
			if skip == 0 {
				b.Write(z.Text())
				b.WriteByte(' ')
			}
		}
	}
}

func isSkipped(tag string) bool {
	switch strings.ToLower(tag) {
	case "script", "style", "solution":
		return true
	}
	return false
}

func truncate(s string, maxLen int) string {
	if maxLen <= 0 {
		return s
	}
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen])
}
