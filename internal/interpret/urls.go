package interpret

import (
	"cmp"
	"net/url"
	"regexp"
	"slices"
	"strings"
)

var (
	videoIDRe   = regexp.MustCompile(`^[A-Za-z0-9_-]{11}$`)
	shortLinkRe = regexp.MustCompile(`https?://youtu\.be/([A-Za-z0-9_-]{11})`)
	shortsRe    = regexp.MustCompile(`https?://(?:www\.)?youtube\.com/shorts/([A-Za-z0-9_-]{11})`)
	watchRe     = regexp.MustCompile(`https?://(?:www\.)?youtube\.com/watch\?\S+`)
	anyURLRe    = regexp.MustCompile(`https?://\S+`)
	spaceRe     = regexp.MustCompile(`\s+`)
)

// IsVideoID reports whether s has the shape of a video id.
func IsVideoID(s string) bool {
	return videoIDRe.MatchString(s)
}

// ExtractVideoIDs returns the ids of every video link in text, in the order
// they first appear.
func ExtractVideoIDs(text string) []string {
	type hit struct {
		pos int
		id  string
	}
	var hits []hit
	for _, re := range []*regexp.Regexp{shortLinkRe, shortsRe} {
		for _, m := range re.FindAllStringSubmatchIndex(text, -1) {
			hits = append(hits, hit{pos: m[0], id: text[m[2]:m[3]]})
		}
	}
	for _, m := range watchRe.FindAllStringIndex(text, -1) {
		u, err := url.Parse(text[m[0]:m[1]])
		if err != nil {
			continue
		}
		if v := u.Query().Get("v"); IsVideoID(v) {
			hits = append(hits, hit{pos: m[0], id: v})
		}
	}

	slices.SortStableFunc(hits, func(a, b hit) int { return cmp.Compare(a.pos, b.pos) })

	seen := make(map[string]bool, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		if seen[h.id] {
			continue
		}
		seen[h.id] = true
		out = append(out, h.id)
	}
	return out
}

// StripURLs removes links from s and collapses whitespace.
func StripURLs(s string) string {
	s = anyURLRe.ReplaceAllString(s, " ")
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}
