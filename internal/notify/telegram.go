package notify

import (
	"context"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"dice-server/common/logger"

	"go.uber.org/zap"
)

// telegramNotifier 通过 Telegram Bot API 推送消息。
// user_id 即玩家的 Telegram chat id，与支付网关侧一致。
type telegramNotifier struct {
	bot *tgbotapi.BotAPI
}

// NewTelegramNotifier 创建 Telegram 通知器，token 无效时返回错误由调用方降级。
func NewTelegramNotifier(token string) (Notifier, error) {
	bot, err := tgbotapi.NewBotAPI(token)
	if err != nil {
		return nil, err
	}
	logger.Info("telegram notifier ready", zap.String("bot", bot.Self.UserName))
	return &telegramNotifier{bot: bot}, nil
}

func (t *telegramNotifier) Notify(ctx context.Context, userID int64, message string) error {
	msg := tgbotapi.NewMessage(userID, message)
	if _, err := t.bot.Send(msg); err != nil {
		logger.WarnCtx(ctx, "telegram send failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return err
	}
	return nil
}
