package notify

import (
	"context"

	"dice-server/common/logger"

	"go.uber.org/zap"
)

// Notifier 向玩家推送结算/超时等业务消息。
// 通知是尽力而为的：失败只记日志，绝不影响已提交的结算。
type Notifier interface {
	Notify(ctx context.Context, userID int64, message string) error
}

// logNotifier 未配置推送渠道时的兜底实现，只写日志。
type logNotifier struct{}

// NewLogNotifier 返回仅记录日志的通知器。
func NewLogNotifier() Notifier { return &logNotifier{} }

func (l *logNotifier) Notify(ctx context.Context, userID int64, message string) error {
	logger.InfoCtx(ctx, "[notify disabled] drop message",
		zap.Int64("user_id", userID),
		zap.String("message", message))
	return nil
}
