package session

import (
	"context"
	"regexp"
	"strconv"
	"unicode"

	"github.com/rotisserie/eris"

	"github.com/sells-group/commentscope/internal/model"
)

var (
	// ErrNotFound is returned when no session matches user and name.
	ErrNotFound = eris.New("session: not found")
	// ErrExists is returned when renaming onto an existing session.
	ErrExists = eris.New("session: name already taken")
)

// MaxBaseRunes caps the keyword part of a generated session name.
const MaxBaseRunes = 12

// FallbackBase names sessions whose keyword has no letters or digits.
const FallbackBase = "session"

// Store persists saved sessions per user.
type Store interface {
	Save(ctx context.Context, user, name string, b *model.SessionBundle) error
	Load(ctx context.Context, user, name string) (*model.SessionBundle, error)
	List(ctx context.Context, user string) ([]model.SessionSummary, error)
	Rename(ctx context.Context, user, oldName, newName string) error
	Delete(ctx context.Context, user, name string) error
	// NextName returns base followed by one more than the highest number
	// already used with that base.
	NextName(ctx context.Context, user, base string) (string, error)

	Migrate(ctx context.Context) error
	Close() error
}

// BaseName derives a session name prefix from a keyword: letters and
// digits only, at most MaxBaseRunes runes.
func BaseName(keyword string) string {
	out := make([]rune, 0, MaxBaseRunes)
	for _, r := range keyword {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		out = append(out, r)
		if len(out) == MaxBaseRunes {
			break
		}
	}
	if len(out) == 0 {
		return FallbackBase
	}
	return string(out)
}

// nextName picks the next free "<base><n>" given the existing names.
func nextName(names []string, base string) string {
	pat := regexp.MustCompile(`^` + regexp.QuoteMeta(base) + `(\d+)$`)
	highest := 0
	for _, n := range names {
		m := pat.FindStringSubmatch(n)
		if m == nil {
			continue
		}
		if v, err := strconv.Atoi(m[1]); err == nil && v > highest {
			highest = v
		}
	}
	return base + strconv.Itoa(highest+1)
}
