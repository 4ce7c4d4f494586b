// Package sampler turns a comment corpus into a bounded, reproducible LLM
// input: the most-liked comments plus a seeded random draw from the rest.
package sampler

import (
	"errors"
	"math/rand/v2"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/sells-group/commentscope/internal/corpus"
	"github.com/sells-group/commentscope/internal/model"
)

// Error tags reported in SampleMeta.Error.
const (
	ErrTagNotFound   = "csv_not_found"
	ErrTagReadFailed = "csv_read_failed"
	ErrTagEmpty      = "csv_empty"
)

// Options bound the sample.
type Options struct {
	MaxCharsPerComment int
	MaxTotalChars      int
	TopN               int
	RandomN            int
	DedupKey           string
	Seed               uint64
}

// DefaultOptions returns the production sampling budget.
func DefaultOptions() Options {
	return Options{
		MaxCharsPerComment: 280,
		MaxTotalChars:      420000,
		TopN:               1000,
		RandomN:            1000,
		DedupKey:           "text",
		Seed:               42,
	}
}

// Result is the serialized sample.
type Result struct {
	Text  string
	Lines int
	Chars int
	Meta  model.SampleMeta
}

// Empty reports whether the sample carries no lines.
func (r Result) Empty() bool {
	return r.Lines == 0
}

// SampleFile loads the corpus at path and samples it. Load failures are
// reported through Meta.Error rather than returned.
func SampleFile(path string, opts Options) Result {
	if _, err := os.Stat(path); err != nil {
		return failed(opts, ErrTagNotFound)
	}
	recs, err := corpus.ReadComments(path)
	switch {
	case errors.Is(err, corpus.ErrEmpty):
		return failed(opts, ErrTagEmpty)
	case err != nil:
		return failed(opts, ErrTagReadFailed)
	}
	return Sample(recs, opts)
}

func failed(opts Options, tag string) Result {
	m := baseMeta(opts)
	m.Error = tag
	return Result{Meta: m}
}

func baseMeta(opts Options) model.SampleMeta {
	return model.SampleMeta{
		TopN:               opts.TopN,
		RandomN:            opts.RandomN,
		MaxCharsPerComment: opts.MaxCharsPerComment,
		MaxTotalChars:      opts.MaxTotalChars,
		DedupKey:           opts.DedupKey,
	}
}

// Sample draws from recs. The same records, options and seed always yield
// the same result.
func Sample(recs []model.CommentRecord, opts Options) Result {
	if len(recs) == 0 {
		return failed(opts, ErrTagEmpty)
	}

	meta := baseMeta(opts)
	meta.TotalRows = len(recs)
	meta.UniqueRows = uniqueCount(recs, opts.DedupKey)

	order := make([]int, len(recs))
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return recs[order[a]].LikeCount > recs[order[b]].LikeCount
	})

	topN := min(max(opts.TopN, 0), len(order))
	top, rest := order[:topN], order[topN:]

	var random []int
	if len(rest) > 0 && opts.RandomN > 0 {
		// draw from the remainder in its original corpus order
		remainder := append([]int(nil), rest...)
		sort.Ints(remainder)
		rng := rand.New(rand.NewPCG(opts.Seed, opts.Seed))
		perm := rng.Perm(len(remainder))
		for _, p := range perm[:min(opts.RandomN, len(remainder))] {
			random = append(random, remainder[p])
		}
	}

	meta.UsedTop = len(top)
	meta.UsedRandom = len(random)
	meta.SampledTarget = len(top) + len(random)

	picked := make([]int, 0, len(top)+len(random))
	picked = append(append(picked, top...), random...)

	var sb strings.Builder
	lines, chars := 0, 0
	for _, idx := range picked {
		if chars >= opts.MaxTotalChars {
			break
		}
		line := FormatLine(recs[idx], opts.MaxCharsPerComment)
		if lines > 0 {
			sb.WriteByte('\n')
		}
		sb.WriteString(line)
		lines++
		chars += runeLen(line) + 1
	}

	meta.InputLines = lines
	meta.InputChars = chars
	return Result{Text: sb.String(), Lines: lines, Chars: chars, Meta: meta}
}

// FormatLine renders one record as "[R|♥likes] author: text". Newlines are
// flattened and text longer than maxChars runes is cut and suffixed "…".
func FormatLine(r model.CommentRecord, maxChars int) string {
	kind := "T"
	if r.IsReply {
		kind = "R"
	}
	text := strings.ReplaceAll(r.Text, "\n", " ")
	if maxChars > 0 {
		if runes := []rune(text); len(runes) > maxChars {
			text = string(runes[:maxChars]) + "…"
		}
	}
	author := strings.ReplaceAll(r.Author, "\n", " ")
	return "[" + kind + "|♥" + strconv.FormatInt(r.LikeCount, 10) + "] " + author + ": " + text
}

func runeLen(s string) int {
	return len([]rune(s))
}

func uniqueCount(recs []model.CommentRecord, key string) int {
	seen := make(map[string]struct{}, len(recs))
	for _, r := range recs {
		v := strings.TrimSpace(field(r, key))
		if v == "" {
			continue
		}
		seen[v] = struct{}{}
	}
	return len(seen)
}

func field(r model.CommentRecord, key string) string {
	switch key {
	case "author":
		return r.Author
	case "comment_id":
		return r.CommentID
	case "video_id":
		return r.VideoID
	case "parent_id":
		return r.ParentID
	default:
		return r.Text
	}
}
