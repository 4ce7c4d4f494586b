package pipeline

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/commentscope/internal/model"
	"github.com/sells-group/commentscope/internal/sampler"
)

// DefaultSystemPrompt is used when no prompt file is configured.
const DefaultSystemPrompt = `너는 유튜브 댓글 반응 분석가다.
주어진 [METRICS], [키워드], [기간(KST)], [댓글 샘플]만 근거로 시청자 반응을 분석한다.

출력 규칙:
- HTML 조각으로만 답한다. 코드 블록, 마크다운 제목은 쓰지 않는다.
- 첫 단락에 분석 대상 댓글 수(ANALYSIS_COMMENT_COUNT_LINE)를 그대로 밝힌다.
- 긍정, 부정, 중립 반응의 비중과 대표 댓글을 인용과 함께 정리한다.
- 반복해서 언급되는 인물, 장면, 이슈를 주제별로 묶어 설명한다.
- 데이터에 없는 내용은 추측하지 않는다.`

// FollowupInstruction switches the model from summarizing to answering one
// question at a time from the cached sample.
const FollowupInstruction = "🛑 [지시사항 변경] 🛑\n" +
	"지금부터는 전체 요약가가 아니라, 사용자의 질문 하나하나를 파고드는 **'심층 분석가'**로서 행동해.\n" +
	"이전의 요약 미션은 잊어. 오직 아래 [현재 질문]에만 집중해서 답해.\n\n" +
	"=== 답변 전략 ===\n" +
	"1. 질문의 의도(속성/대상)를 먼저 파악해라.\n" +
	"2. 네 기억 속에 있는 [댓글 샘플]에서 그와 관련된 구체적인 증거(댓글)를 찾아라.\n" +
	"3. 뭉뚱그려 말하지 말고, `> 댓글 내용` 형식으로 직접 인용하며 근거를 대라.\n" +
	"4. 질문과 관련 없는 TMI(다른 배우, 다른 이슈 등)는 절대 말하지 마라.\n" +
	"5. 만약 관련 내용이 데이터에 없으면 '데이터에서 확인되지 않는다'고 딱 잘라 말해라.\n"

// LoadSystemPrompt reads the first-turn system prompt from path. An empty
// path means DefaultSystemPrompt; a missing or blank file is an error.
func LoadSystemPrompt(path string) (string, error) {
	if path == "" {
		return DefaultSystemPrompt, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return "", eris.Wrapf(err, "pipeline: read system prompt %s", path)
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return "", eris.Errorf("pipeline: system prompt %s is empty", path)
	}
	return text, nil
}

// ScopeLine describes the sample in one human-readable line.
func ScopeLine(s sampler.Result) string {
	m := s.Meta
	return fmt.Sprintf("%s개 (추출: 인기댓글 %s개 + 랜덤 %s개, 댓글당 %d자 컷, 총 %s자 컷)",
		thousands(s.Lines), thousands(m.UsedTop), thousands(m.UsedRandom),
		m.MaxCharsPerComment, thousands(m.MaxTotalChars))
}

// MetricsBlock renders the [METRICS] header the model quotes counts from.
func MetricsBlock(s sampler.Result) string {
	m := s.Meta
	var b strings.Builder
	b.WriteString("[METRICS]\n")
	fmt.Fprintf(&b, "TOTAL_COLLECTED_COMMENTS=%d\n", m.TotalRows)
	fmt.Fprintf(&b, "UNIQUE_COMMENTS_BY_%s=%d\n", strings.ToUpper(m.DedupKey), m.UniqueRows)
	fmt.Fprintf(&b, "SAMPLE_RULE=top_like:%d/%d, random:%d/%d\n", m.UsedTop, m.TopN, m.UsedRandom, m.RandomN)
	fmt.Fprintf(&b, "LLM_INPUT_LINES=%d\n", s.Lines)
	fmt.Fprintf(&b, "LLM_INPUT_CHARS=%d\n", s.Chars)
	fmt.Fprintf(&b, "ANALYSIS_COMMENT_COUNT_LINE=%s\n", ScopeLine(s))
	return b.String()
}

// BuildContext assembles the cacheable first-turn context.
func BuildContext(schema *model.QuerySchema, s sampler.Result) string {
	return fmt.Sprintf("%s\n[키워드]: %s\n[기간(KST)]: %s\n\n[댓글 샘플]:\n%s\n",
		MetricsBlock(s), strings.Join(schema.Keywords, ", "), Period(schema), s.Text)
}

// Period formats the schema window.
func Period(schema *model.QuerySchema) string {
	return schema.Start.Format(time.RFC3339) + " ~ " + schema.End.Format(time.RFC3339)
}

// FirstTurnPrompt wraps the user's question for the first turn.
func FirstTurnPrompt(question string) string {
	return "[사용자 원본 질문]: " + question
}

// FollowupPrompt builds the follow-up payload from prior turns.
func FollowupPrompt(history []model.ChatTurn, question string, schema *model.QuerySchema) string {
	lines := make([]string, 0, len(history))
	for _, t := range history {
		tag := "A"
		if t.Role == model.RoleUser {
			tag = "Q"
		}
		lines = append(lines, fmt.Sprintf("[이전 %s]: %s", tag, t.Content))
	}
	return fmt.Sprintf("%s\n\n%s\n\n[현재 질문]: %s\n[기간(KST)]: %s\n",
		FollowupInstruction, strings.Join(lines, "\n"), question, Period(schema))
}

var numbers = message.NewPrinter(language.Korean)

func thousands(n int) string {
	return numbers.Sprintf("%d", n)
}
