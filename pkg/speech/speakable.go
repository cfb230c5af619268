package speech

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	markdownLink = regexp.MustCompile(`\[([^\]]+)\]\([^)]+\)`)
	listMarker   = regexp.MustCompile(`(?m)^\s*(?:[-*•]|\d+[.)])\s+`)
	headingMark  = regexp.MustCompile(`(?m)^\s*#+\s*`)
)

var speechReplacements = strings.NewReplacer(
	"**", "",
	"__", "",
	"`", "",
	"~~", "",
	"&", " and ",
	" - ", ", ",
)

// Speakable rewrites a chat reply for synthesis: markdown and emoji are
// dropped, list items become sentences and whitespace is collapsed. The
// chat copy of the reply is left untouched.
func Speakable(text string) string {
	out := markdownLink.ReplaceAllString(text, "$1")
	out = headingMark.ReplaceAllString(out, "")
	out = listMarker.ReplaceAllString(out, "")
	out = speechReplacements.Replace(out)
	out = strings.Map(func(r rune) rune {
		switch {
		case r == '*' || r == '#' || r == '_':
			return ' '
		case r >= 0x1F000, unicode.Is(unicode.So, r):
			return -1
		default:
			return r
		}
	}, out)

	lines := strings.Split(out, "\n")
	parts := make([]string, 0, len(lines))
	for _, line := range lines {
		line = strings.Join(strings.Fields(line), " ")
		if line == "" {
			continue
		}
		if last := line[len(line)-1]; !strings.ContainsRune(".!?,:;", rune(last)) && len(lines) > 1 {
			line += "."
		}
		parts = append(parts, line)
	}
	return strings.Join(parts, " ")
}
