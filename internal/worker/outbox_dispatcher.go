package worker

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"dice-server/common/logger"
	infmq "dice-server/internal/infra/rocketmq"
	"dice-server/internal/model"
	"dice-server/internal/notify"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Outbox 分发器：把业务事务内落库的消息异步投递出去
// notify_user 主题走通知器（Telegram 等），其余主题发往 RocketMQ

const (
	dispatchInterval = 1 * time.Second
	dispatchBatch    = 100

	// TopicNotifyUser 的消息体为 {"user_id": ..., "message": ...}
	TopicNotifyUser = "notify_user"
)

type userNotice struct {
	UserID  int64  `json:"user_id"`
	Message string `json:"message"`
}

// StartOutboxDispatcher 启动 Outbox 分发器，支持通过 ctx 优雅退出
func StartOutboxDispatcher(ctx context.Context, wg *sync.WaitGroup, db *sqlx.DB, notifier notify.Notifier) {
	wg.Add(1)
	go func() {
		ticker := time.NewTicker(dispatchInterval)
		defer wg.Done()
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c, cancel := context.WithTimeout(ctx, 2*time.Second)
				rows, err := model.ListOutboxPending(c, db, dispatchBatch)
				cancel()
				if err != nil {
					logger.Warn("outbox: list pending failed", zap.Error(err))
					continue
				}
				for _, r := range rows {
					if err := dispatch(ctx, notifier, r); err != nil {
						_ = model.MarkOutboxFailed(ctx, db, r.ID, truncateErr(err))
						continue
					}
					if err := model.MarkOutboxSent(ctx, db, r.ID); err != nil {
						logger.Warn("outbox: mark sent failed", zap.Int64("id", r.ID), zap.Error(err))
					}
				}
			}
		}
	}()
}

// dispatch 按主题路由一条消息
func dispatch(ctx context.Context, notifier notify.Notifier, r model.OutboxRow) error {
	if r.Topic == TopicNotifyUser {
		var n userNotice
		if err := json.Unmarshal([]byte(r.Payload), &n); err != nil {
			// 消息体损坏，重试也没有意义，但仍交给失败计数让它自然进入永久失败
			return err
		}
		return notifier.Notify(ctx, n.UserID, n.Message)
	}

	// 对局事件主题：MQ 未启用时丢弃并视为已发送，避免堆积
	if !infmq.Enabled() {
		logger.Debug("outbox: mq disabled, drop event",
			zap.String("topic", r.Topic),
			zap.String("biz_key", r.BizKey))
		return nil
	}
	return infmq.PublisherInstance().Publish(r.Topic, []byte(r.Payload))
}

func truncateErr(err error) string {
	b, _ := json.Marshal(map[string]string{"error": err.Error()})
	if len(b) > 240 {
		return string(b[:240])
	}
	return string(b)
}
