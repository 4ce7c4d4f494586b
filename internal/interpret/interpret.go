// Package interpret turns a first-turn question into a QuerySchema with one
// lightweight LLM call.
package interpret

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/gate"
	"github.com/sells-group/commentscope/internal/model"
)

// DefaultTimezone is the zone relative periods are resolved in.
const DefaultTimezone = "Asia/Seoul"

// FallbackKeyword is used when neither a keyword list nor any two-character
// token could be extracted.
const FallbackKeyword = "default"

// FallbackWindow is the search window used when no period could be
// extracted.
const FallbackWindow = 24 * time.Hour

const promptTemplate = "역할: 유튜브 댓글 반응 분석기의 자연어 해석가.\n" +
	"목표: 한국어 입력에서 [기간(KST)]과 [키워드/옵션]만 정확히 추출.\n" +
	"규칙:\n" +
	"- 기간은 {ZONE} 기준, 상대기간의 종료는 지금.\n" +
	"- '키워드'는 검색에 사용할 핵심 주제 1개로 한정.\n" +
	"- 옵션: include_replies, channel_filter(any|official|unofficial), lang(ko|en|auto).\n\n" +
	"출력(5줄 고정):\n" +
	"- 한 줄 요약: <문장>\n" +
	"- 기간(KST): <YYYY-MM-DDTHH:MM:SS+09:00> ~ <YYYY-MM-DDTHH:MM:SS+09:00>\n" +
	"- 키워드: [<핵심 키워드 1개>]\n" +
	"- 옵션: { include_replies: true|false, channel_filter: \"any|official|unofficial\", lang: \"ko|en|auto\" }\n" +
	"- 원문: {QUERY}\n\n" +
	"현재 KST: {NOW}\n" +
	"입력:\n{QUERY}"

var (
	periodRe   = regexp.MustCompile(`기간\(KST\)\s*:\s*([^~]+)~\s*([^\n]+)`)
	keywordsRe = regexp.MustCompile(`(?s)키워드\s*:\s*\[(.*?)\]`)
	optionsRe  = regexp.MustCompile(`(?s)옵션\s*:\s*\{(.*?)\}`)
	repliesRe  = regexp.MustCompile(`(?i)include_replies\s*:\s*(true|false)`)
	channelRe  = regexp.MustCompile(`(?i)channel_filter\s*:\s*"(any|official|unofficial)"`)
	langRe     = regexp.MustCompile(`(?i)lang\s*:\s*"(ko|en|auto)"`)
	commaRe    = regexp.MustCompile(`\s*,\s*`)
	tokenRe    = regexp.MustCompile(`[가-힣A-Za-z0-9]{2,}`)
)

// Generator makes one uncached LLM call.
type Generator interface {
	Generate(ctx context.Context, p gate.Permit, system, prompt string) (string, error)
}

// Interpreter extracts search schemas from user questions.
type Interpreter struct {
	llm Generator
	loc *time.Location
	now func() time.Time
}

// New builds an Interpreter. A nil location means DefaultTimezone.
func New(llm Generator, loc *time.Location) *Interpreter {
	if loc == nil {
		loc = LoadLocation(DefaultTimezone)
	}
	return &Interpreter{llm: llm, loc: loc, now: time.Now}
}

// LoadLocation resolves name, falling back to a fixed +09:00 zone when the
// tz database is unavailable.
func LoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		zap.L().Warn("interpret: timezone unavailable, using +09:00",
			zap.String("timezone", name),
			zap.Error(err),
		)
		return time.FixedZone("KST", 9*60*60)
	}
	return loc
}

// Location returns the zone periods are resolved in.
func (i *Interpreter) Location() *time.Location {
	return i.loc
}

// Prompt renders the extraction instruction for query at now.
func Prompt(query string, now time.Time, loc *time.Location) string {
	return strings.NewReplacer(
		"{ZONE}", loc.String(),
		"{NOW}", now.In(loc).Format(time.RFC3339),
		"{QUERY}", query,
	).Replace(promptTemplate)
}

// Interpret asks the model to extract a schema from query. Only provider
// failures are returned; an unparseable reply yields the fallback schema.
func (i *Interpreter) Interpret(ctx context.Context, query string) (*model.QuerySchema, error) {
	now := i.now()
	reply, err := i.llm.Generate(ctx, gate.Permit{}, "", Prompt(query, now, i.loc))
	if err != nil {
		return nil, eris.Wrap(err, "interpret: extract schema")
	}
	schema := ParseSchema(reply, now, i.loc)
	zap.L().Info("interpret: schema extracted",
		zap.Time("start", schema.Start),
		zap.Time("end", schema.End),
		zap.Strings("keywords", schema.Keywords),
		zap.Bool("include_replies", schema.Options.IncludeReplies),
	)
	return schema, nil
}

// ParseSchema reads the five-line reply. Each field is matched
// independently and falls back on its own, so ParseSchema never fails.
func ParseSchema(reply string, now time.Time, loc *time.Location) *model.QuerySchema {
	raw := strings.TrimSpace(reply)
	schema := &model.QuerySchema{
		Options: model.DefaultQueryOptions(),
		Raw:     raw,
	}

	start, end, ok := parsePeriod(raw, loc)
	if !ok {
		end = now.In(loc)
		start = end.Add(-FallbackWindow)
	}
	schema.Start, schema.End = start, end

	if m := keywordsRe.FindStringSubmatch(raw); m != nil {
		for _, kw := range commaRe.Split(m[1], -1) {
			if kw = strings.TrimSpace(kw); kw != "" {
				schema.Keywords = append(schema.Keywords, kw)
			}
		}
	}
	if len(schema.Keywords) == 0 {
		if tok := tokenRe.FindString(raw); tok != "" {
			schema.Keywords = []string{tok}
		} else {
			schema.Keywords = []string{FallbackKeyword}
		}
	}

	if m := optionsRe.FindStringSubmatch(raw); m != nil {
		blob := m[1]
		if o := repliesRe.FindStringSubmatch(blob); o != nil {
			schema.Options.IncludeReplies = strings.EqualFold(o[1], "true")
		}
		if o := channelRe.FindStringSubmatch(blob); o != nil {
			schema.Options.ChannelFilter = model.ChannelFilter(strings.ToLower(o[1]))
		}
		if o := langRe.FindStringSubmatch(blob); o != nil {
			schema.Options.Lang = model.Lang(strings.ToLower(o[1]))
		}
	}
	return schema
}

func parsePeriod(raw string, loc *time.Location) (time.Time, time.Time, bool) {
	m := periodRe.FindStringSubmatch(raw)
	if m == nil {
		return time.Time{}, time.Time{}, false
	}
	start, err := parseTime(m[1], loc)
	if err != nil {
		return time.Time{}, time.Time{}, false
	}
	end, err := parseTime(m[2], loc)
	if err != nil || end.Before(start) {
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func parseTime(s string, loc *time.Location) (time.Time, error) {
	s = strings.Trim(strings.TrimSpace(s), "<>")
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.In(loc), nil
	}
	return time.ParseInLocation("2006-01-02T15:04:05", s, loc)
}
