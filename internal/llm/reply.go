package llm

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/sells-group/commentscope/internal/gate"
	"github.com/sells-group/commentscope/internal/keypool"
	"github.com/sells-group/commentscope/internal/model"
)

// User-facing messages for non-ok replies.
const (
	MsgBusy        = "⚠️ 현재 요청이 많아 AI 분석 대기열이 꽉 찼습니다. 잠시 후 다시 시도해주세요."
	MsgExpired     = "⚠️ [오류] 세션이 만료되어 복구할 데이터가 없습니다. 새 분석을 시작해주세요."
	MsgNoOutput    = "⚠️ [시스템] 내용 과다 또는 차단으로 답변 생성 실패"
	MsgSystemError = "⚠️ [시스템] 처리 중 에러: "
)

// ToReply converts an Ask result into a user-facing reply. Credential and
// cancellation errors are returned for the caller to surface; every other
// failure becomes a non-ok reply.
func ToReply(ans Answer, err error) (model.Reply, error) {
	switch {
	case err == nil:
		return model.Reply{Text: ans.Text, Status: model.ReplyOK}, nil
	case errors.Is(err, gate.ErrAdmissionTimeout):
		return model.Reply{Text: MsgBusy, Status: model.ReplyBusy}, nil
	case errors.Is(err, ErrCacheExpired):
		return model.Reply{Text: MsgExpired, Status: model.ReplyExpired}, nil
	case errors.Is(err, ErrNoOutput):
		return model.Reply{Text: MsgNoOutput, Status: model.ReplyNoOutput}, nil
	case errors.Is(err, ErrCredentialsExhausted),
		errors.Is(err, keypool.ErrNoCredentials),
		errors.Is(err, context.Canceled):
		return model.Reply{}, err
	default:
		zap.L().Error("llm: generation failed", zap.Error(err))
		return model.Reply{Text: MsgSystemError + err.Error(), Status: model.ReplySystemError}, nil
	}
}
