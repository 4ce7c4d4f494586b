package pipeline

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	fenceOpenRe   = regexp.MustCompile("(?im)^```html")
	fenceRe       = regexp.MustCompile("(?m)^```")
	tagIndentRe   = regexp.MustCompile(`(?m)^[ \t]+(<)`)
	boilerplateRe = regexp.MustCompile(`(?i)유튜브\s*댓글\s*분석|보고서\s*작성|분석\s*결과`)
)

// boilerplateMaxRunes bounds the title lines Tidy drops.
const boilerplateMaxRunes = 50

// Tidy cleans a model reply for display: code fences are removed, tag lines
// lose their indentation so renderers do not treat them as code, and short
// boilerplate title lines are dropped.
func Tidy(text string) string {
	if text == "" {
		return ""
	}
	text = fenceOpenRe.ReplaceAllString(text, "")
	text = fenceRe.ReplaceAllString(text, "")
	text = tagIndentRe.ReplaceAllString(text, "$1")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.TrimSpace(line) != "" && boilerplateRe.MatchString(line) && utf8.RuneCountInString(line) < boilerplateMaxRunes {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
