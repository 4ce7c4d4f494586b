// Package catalog resolves first-party videos from locally exported
// cache_token_*.json files.
package catalog

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/commentscope/internal/interpret"
)

// FilePattern matches catalog files inside the catalog directory.
const FilePattern = "cache_token_*.json"

// ErrEmpty is returned when the catalog directory holds no catalog files.
var ErrEmpty = eris.New("catalog: no catalog files found")

// Entry is one catalogued video.
type Entry struct {
	VideoID     string
	Title       string
	Description string
	PublishedAt time.Time
	HasDate     bool
}

// Catalog is a directory of first-party video listings.
type Catalog struct {
	dir string
}

// New returns a Catalog over dir.
func New(dir string) *Catalog {
	return &Catalog{dir: dir}
}

// Dir returns the catalog directory.
func (c *Catalog) Dir() string {
	return c.dir
}

// Files lists the catalog files, or ErrEmpty if there are none.
func (c *Catalog) Files() ([]string, error) {
	files, err := filepath.Glob(filepath.Join(c.dir, FilePattern))
	if err != nil {
		return nil, eris.Wrap(err, "catalog: glob")
	}
	if len(files) == 0 {
		return nil, ErrEmpty
	}
	return files, nil
}

// Entries loads every entry from every catalog file. Unreadable files are
// skipped and logged.
func (c *Catalog) Entries() ([]Entry, error) {
	files, err := c.Files()
	if err != nil {
		return nil, err
	}
	var out []Entry
	for _, fp := range files {
		data, err := os.ReadFile(fp)
		if err != nil {
			zap.L().Warn("catalog: read file", zap.String("file", fp), zap.Error(err))
			continue
		}
		entries, err := Decode(data)
		if err != nil {
			zap.L().Warn("catalog: decode file", zap.String("file", fp), zap.Error(err))
			continue
		}
		out = append(out, entries...)
	}
	return out, nil
}

// Match returns the ids of catalogued videos whose title or description
// contains keyword, in catalog order without duplicates. A non-zero start or
// end restricts matches to dated entries inside the window.
func (c *Catalog) Match(keyword string, start, end time.Time) ([]string, error) {
	entries, err := c.Entries()
	if err != nil {
		return nil, err
	}
	return MatchEntries(entries, keyword, start, end), nil
}

// MatchEntries is Match over already loaded entries.
func MatchEntries(entries []Entry, keyword string, start, end time.Time) []string {
	kw := Normalize(keyword)
	if kw == "" {
		return nil
	}
	windowed := !start.IsZero() || !end.IsZero()

	seen := make(map[string]bool)
	var out []string
	for _, e := range entries {
		if windowed {
			if !e.HasDate {
				continue
			}
			if !start.IsZero() && e.PublishedAt.Before(start) {
				continue
			}
			if !end.IsZero() && e.PublishedAt.After(end) {
				continue
			}
		}
		if !interpret.IsVideoID(e.VideoID) || seen[e.VideoID] {
			continue
		}
		if strings.Contains(Normalize(e.Title), kw) || strings.Contains(Normalize(e.Description), kw) {
			seen[e.VideoID] = true
			out = append(out, e.VideoID)
		}
	}
	return out
}

// Normalize folds s for matching: NFC, lower case, letters and digits only.
func Normalize(s string) string {
	s = norm.NFC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(unicode.ToLower(r))
		}
	}
	return b.String()
}

type rawEntry struct {
	VideoID     string   `json:"video_id"`
	VideoIDAlt  string   `json:"videoId"`
	ID          any      `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Date        string   `json:"date"`
	PublishedAt string   `json:"published_at"`
	Published   string   `json:"publishedAt"`
	Snippet     *snippet `json:"snippet"`
}

type snippet struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	PublishedAt string `json:"publishedAt"`
}

// Decode reads one catalog file. It accepts a list of entries, an object
// with a videos or items list, or a single entry object.
func Decode(data []byte) ([]Entry, error) {
	var list []rawEntry
	if err := json.Unmarshal(data, &list); err == nil {
		return convert(list), nil
	}

	var wrapped struct {
		Videos []rawEntry `json:"videos"`
		Items  []rawEntry `json:"items"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil {
		return nil, eris.Wrap(err, "catalog: decode")
	}
	switch {
	case wrapped.Videos != nil:
		return convert(wrapped.Videos), nil
	case wrapped.Items != nil:
		return convert(wrapped.Items), nil
	}

	var single rawEntry
	if err := json.Unmarshal(data, &single); err != nil {
		return nil, eris.Wrap(err, "catalog: decode")
	}
	return convert([]rawEntry{single}), nil
}

func convert(raw []rawEntry) []Entry {
	out := make([]Entry, 0, len(raw))
	for _, r := range raw {
		e := Entry{
			VideoID:     firstNonEmpty(r.VideoID, r.VideoIDAlt, idString(r.ID)),
			Title:       r.Title,
			Description: r.Description,
		}
		date := firstNonEmpty(r.Date, r.PublishedAt, r.Published)
		if r.Snippet != nil {
			e.Title = firstNonEmpty(e.Title, r.Snippet.Title)
			e.Description = firstNonEmpty(e.Description, r.Snippet.Description)
			date = firstNonEmpty(date, r.Snippet.PublishedAt)
		}
		if t, ok := parseDate(date); ok {
			e.PublishedAt, e.HasDate = t, true
		}
		out = append(out, e)
	}
	return out
}

// idString accepts "id" as a plain string or as a search-result object
// carrying videoId.
func idString(v any) string {
	switch id := v.(type) {
	case string:
		return id
	case map[string]any:
		if s, ok := id["videoId"].(string); ok {
			return s
		}
	}
	return ""
}

func parseDate(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339Nano, "2006-01-02T15:04:05", "2006-01-02"} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}
