package sampler

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/model"
)

func records(n int) []model.CommentRecord {
	out := make([]model.CommentRecord, n)
	for i := range out {
		out[i] = model.CommentRecord{
			VideoID:   "vid",
			CommentID: fmt.Sprintf("c%04d", i),
			Author:    fmt.Sprintf("user%d", i%37),
			Text:      fmt.Sprintf("comment number %d", i%900),
			LikeCount: int64((i * 7919) % 613),
			IsReply:   i%4 == 0,
		}
	}
	return out
}

func writeCorpus(t *testing.T, recs []model.CommentRecord) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "comments.csv")
	w, err := corpus.Create(path)
	require.NoError(t, err)
	require.NoError(t, w.Append(recs))
	return path
}

func TestSample_1500Records(t *testing.T) {
	res := SampleFile(writeCorpus(t, records(1500)), DefaultOptions())

	require.Empty(t, res.Meta.Error)
	assert.Equal(t, 1500, res.Meta.TotalRows)
	assert.Equal(t, 1000, res.Meta.UsedTop)
	assert.Equal(t, 500, res.Meta.UsedRandom)
	assert.Equal(t, 1500, res.Meta.SampledTarget)
	assert.Equal(t, 900, res.Meta.UniqueRows)
	assert.Equal(t, 1500, res.Lines)
	assert.Equal(t, "text", res.Meta.DedupKey)
}

func TestSample_Deterministic(t *testing.T) {
	path := writeCorpus(t, records(3000))
	a := SampleFile(path, DefaultOptions())
	b := SampleFile(path, DefaultOptions())

	assert.Equal(t, a.Text, b.Text)
	assert.Equal(t, a.Meta, b.Meta)
	assert.Equal(t, 1000, a.Meta.UsedRandom)
}

func TestSample_SeedChangesRandomTier(t *testing.T) {
	recs := records(3000)
	opts := DefaultOptions()
	a := Sample(recs, opts)
	opts.Seed = 7
	b := Sample(recs, opts)

	assert.NotEqual(t, a.Text, b.Text)
	topA := strings.Join(strings.Split(a.Text, "\n")[:1000], "\n")
	topB := strings.Join(strings.Split(b.Text, "\n")[:1000], "\n")
	assert.Equal(t, topA, topB)
}

func TestSample_TopTierOrderedByLikesStable(t *testing.T) {
	recs := []model.CommentRecord{
		{Author: "a", Text: "x", LikeCount: 1},
		{Author: "b", Text: "y", LikeCount: 5},
		{Author: "c", Text: "z", LikeCount: 5},
		{Author: "d", Text: "w", LikeCount: 3},
	}
	opts := DefaultOptions()
	opts.TopN, opts.RandomN = 3, 0

	res := Sample(recs, opts)
	assert.Equal(t, "[T|♥5] b: y\n[T|♥5] c: z\n[T|♥3] d: w", res.Text)
	assert.Equal(t, 0, res.Meta.UsedRandom)
}

func TestSample_RandomTierExcludesTop(t *testing.T) {
	recs := records(50)
	opts := DefaultOptions()
	opts.TopN, opts.RandomN = 10, 100

	res := Sample(recs, opts)
	assert.Equal(t, 40, res.Meta.UsedRandom)
	lines := strings.Split(res.Text, "\n")
	seen := map[string]bool{}
	for _, l := range lines {
		assert.False(t, seen[l], "duplicate line %q", l)
		seen[l] = true
	}
	assert.Len(t, lines, 50)
}

func TestSample_BudgetCut(t *testing.T) {
	recs := records(500)
	for _, budget := range []int{1, 100, 2500, 9999} {
		opts := DefaultOptions()
		opts.MaxTotalChars = budget
		res := Sample(recs, opts)

		lines := strings.Split(res.Text, "\n")
		last := len([]rune(lines[len(lines)-1]))
		assert.LessOrEqual(t, len([]rune(res.Text)), budget+last, "budget %d", budget)
		assert.Equal(t, len(lines), res.Lines)
		assert.Equal(t, len([]rune(res.Text))+1, res.Chars)

		// dropping the last line must leave the count under budget
		assert.Less(t, res.Chars-last-1, budget)
	}
}

func TestFormatLine(t *testing.T) {
	r := model.CommentRecord{Author: "kim\nlee", Text: "첫 줄\n둘째 줄", LikeCount: 12, IsReply: true}
	assert.Equal(t, "[R|♥12] kim lee: 첫 줄 둘째 줄", FormatLine(r, 280))
	assert.Equal(t, "[R|♥12] kim lee: 첫 줄…", FormatLine(r, 3))
}

func TestSampleFile_ErrorTags(t *testing.T) {
	dir := t.TempDir()

	missing := SampleFile(filepath.Join(dir, "missing.csv"), DefaultOptions())
	assert.Equal(t, ErrTagNotFound, missing.Meta.Error)
	assert.True(t, missing.Empty())

	empty := filepath.Join(dir, "empty.csv")
	require.NoError(t, os.WriteFile(empty, nil, 0o644))
	assert.Equal(t, ErrTagEmpty, SampleFile(empty, DefaultOptions()).Meta.Error)

	bad := filepath.Join(dir, "bad.csv")
	require.NoError(t, os.WriteFile(bad, []byte("video_id,like_count\nv,\"unterminated\n"), 0o644))
	assert.Equal(t, ErrTagReadFailed, SampleFile(bad, DefaultOptions()).Meta.Error)
}

func TestSample_DedupKeys(t *testing.T) {
	recs := records(100)
	opts := DefaultOptions()
	opts.DedupKey = "author"
	assert.Equal(t, 37, Sample(recs, opts).Meta.UniqueRows)
}
