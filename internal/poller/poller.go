package poller

import (
	"context"
	"fmt"
	"sync"
	"time"

	chelper "dice-server/common/helper"
	"dice-server/common/logger"
	"dice-server/internal/gateway"
	infrds "dice-server/internal/infra/redis"
	"dice-server/internal/metrics"
	"dice-server/internal/model"
	"dice-server/internal/state"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// 支付轮询：每个等待付款的房间一个轮询任务
// 任务反复向网关查询账单状态，全部确认后触发结算，预算耗尽则触发过期善后

const (
	defaultInterval    = 10 * time.Second
	defaultMaxAttempts = 30

	// 恢复轮询时一次最多捞取的房间数
	resumeBatchLimit = 1000
)

// Store 轮询器需要的房间存取能力
type Store interface {
	GetRoom(ctx context.Context, roomID int64) (*model.Room, error)
	SetPlayerPaid(ctx context.Context, roomID int64, seat int) error
	ListAwaitingRooms(ctx context.Context, limit int) ([]int64, error)
}

// Settler 结算入口，幂等（重复调用按无操作处理）
type Settler interface {
	SettleRoom(ctx context.Context, roomID int64, traceID string) error
}

// TimeoutHandler 轮询预算耗尽时的善后
type TimeoutHandler interface {
	HandleTimeout(ctx context.Context, roomID int64) error
}

// Manager 管理所有房间的轮询任务
// 同一进程内每个房间至多一个任务；跨实例互斥由 Redis 轮询锁兜底
type Manager struct {
	store    Store
	gw       gateway.Client
	settler  Settler
	timeouts TimeoutHandler

	interval    time.Duration
	maxAttempts int

	mu     sync.Mutex
	active map[int64]struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

func NewManager(store Store, gw gateway.Client, settler Settler, timeouts TimeoutHandler, interval time.Duration, maxAttempts int) *Manager {
	if interval <= 0 {
		interval = defaultInterval
	}
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Manager{
		store:       store,
		gw:          gw,
		settler:     settler,
		timeouts:    timeouts,
		interval:    interval,
		maxAttempts: maxAttempts,
		active:      make(map[int64]struct{}),
		ctx:         ctx,
		cancel:      cancel,
	}
}

// StartPoller 为房间启动轮询任务（幂等）
// 返回 false 表示该房间已有任务在跑或管理器已停止
func (m *Manager) StartPoller(roomID int64) bool {
	m.mu.Lock()
	if _, running := m.active[roomID]; running {
		m.mu.Unlock()
		return false
	}
	select {
	case <-m.ctx.Done():
		m.mu.Unlock()
		return false
	default:
	}
	m.active[roomID] = struct{}{}
	m.mu.Unlock()

	m.wg.Add(1)
	go func() {
		defer m.wg.Done()
		defer func() {
			m.mu.Lock()
			delete(m.active, roomID)
			m.mu.Unlock()
		}()
		m.pollRoom(roomID)
	}()
	return true
}

// Resume 服务重启后恢复所有等待付款房间的轮询
func (m *Manager) Resume(ctx context.Context) error {
	ids, err := m.store.ListAwaitingRooms(ctx, resumeBatchLimit)
	if err != nil {
		return err
	}
	started := 0
	for _, id := range ids {
		if m.StartPoller(id) {
			started++
		}
	}
	logger.Info("payment pollers resumed",
		zap.Int("awaiting_rooms", len(ids)),
		zap.Int("started", started))
	return nil
}

// Stop 停止所有轮询任务并等待退出
func (m *Manager) Stop() {
	m.cancel()
	m.wg.Wait()
}

// pollRoom 单个房间的轮询主循环
func (m *Manager) pollRoom(roomID int64) {
	metrics.PollerStarted()
	defer metrics.PollerStopped()

	// 跨实例互斥：拿不到锁说明另一实例在轮询同一房间
	release, acquired := m.acquirePollLock(roomID)
	if !acquired {
		logger.Warn("poll lock held by another instance, skip",
			zap.Int64("room_id", roomID))
		metrics.RecordPollOutcome("aborted")
		return
	}
	defer release()

	fmt.Printf("[Poller]  开始轮询: room_id=%d, interval=%s, max_attempts=%d\n",
		roomID, m.interval, m.maxAttempts)

	for attempt := 1; attempt <= m.maxAttempts; attempt++ {
		metrics.RecordPollTick()

		done, outcome := m.checkOnce(roomID, attempt)
		if done {
			metrics.RecordPollOutcome(outcome)
			return
		}

		// 带抖动的固定间隔，避免多个房间的网关请求齐步走
		jitter := time.Duration(chelper.GenerateRandNum(0, int(m.interval/10)+1))
		select {
		case <-m.ctx.Done():
			metrics.RecordPollOutcome("aborted")
			return
		case <-time.After(m.interval + jitter):
		}
	}

	// 预算耗尽：超时不是错误，是需要通知参与者的终态
	fmt.Printf("[Poller]  轮询预算耗尽: room_id=%d, attempts=%d\n", roomID, m.maxAttempts)
	metrics.RecordPollOutcome("timeout")
	if err := m.timeouts.HandleTimeout(m.ctx, roomID); err != nil {
		logger.Error("poll timeout handling failed",
			zap.Int64("room_id", roomID),
			zap.Error(err))
	}
}

// checkOnce 一次轮询：查账单、置付款标记、条件满足则结算
// 返回 done=true 表示轮询可以结束
func (m *Manager) checkOnce(roomID int64, attempt int) (done bool, outcome string) {
	ctx, cancel := context.WithTimeout(m.ctx, m.interval)
	defer cancel()

	room, err := m.store.GetRoom(ctx, roomID)
	if err != nil {
		logger.Error("poll read room failed",
			zap.Int64("room_id", roomID),
			zap.Int("attempt", attempt),
			zap.Error(err))
		return false, ""
	}
	if state.IsTerminal(state.CodeToState(room.Status)) {
		// 已被结算或后台关闭，无事可做
		return true, "aborted"
	}

	if room.Player1Paid != 1 && room.InvoiceID != "" {
		if m.invoicePaid(ctx, room.InvoiceID) {
			if err := m.store.SetPlayerPaid(ctx, roomID, 1); err != nil {
				logger.Error("set player1 paid failed", zap.Int64("room_id", roomID), zap.Error(err))
			} else {
				fmt.Printf("[Poller]  玩家1付款确认: room_id=%d, invoice_id=%s\n", roomID, room.InvoiceID)
			}
		}
	}
	if room.Player2ID != 0 && room.Player2Paid != 1 && room.InvoiceID2 != "" {
		if m.invoicePaid(ctx, room.InvoiceID2) {
			if err := m.store.SetPlayerPaid(ctx, roomID, 2); err != nil {
				logger.Error("set player2 paid failed", zap.Int64("room_id", roomID), zap.Error(err))
			} else {
				fmt.Printf("[Poller]  玩家2付款确认: room_id=%d, invoice_id=%s\n", roomID, room.InvoiceID2)
			}
		}
	}

	// 置完标记后重读，避免基于过期快照做结算判定
	room, err = m.store.GetRoom(ctx, roomID)
	if err != nil {
		return false, ""
	}
	if room.Player1Paid == 1 && (room.Player2ID == 0 || room.Player2Paid == 1) {
		if err := m.settler.SettleRoom(ctx, roomID, room.TraceID); err != nil {
			// 结算失败（存储故障等）留在循环里下个周期整体重试
			logger.Error("settlement failed, will retry",
				zap.Int64("room_id", roomID),
				zap.Int("attempt", attempt),
				zap.Error(err))
			return false, ""
		}
		return true, "settled"
	}

	return false, ""
}

// invoicePaid 查询网关账单是否已付，查询失败按未付处理（下个周期再查）
func (m *Manager) invoicePaid(ctx context.Context, invoiceID string) bool {
	status, err := m.gw.GetInvoiceStatus(ctx, invoiceID)
	if err != nil {
		logger.Warn("invoice status query failed",
			zap.String("invoice_id", invoiceID),
			zap.Error(err))
		return false
	}
	return status == gateway.InvoiceStatusPaid
}

// acquirePollLock 获取房间级轮询锁，Redis 不可用时退化为仅进程内互斥
func (m *Manager) acquirePollLock(roomID int64) (release func(), acquired bool) {
	r := infrds.Client()
	if r == nil {
		return func() {}, true
	}

	lockKey := infrds.PollLockKey(roomID)
	lockValue := uuid.New().String()
	ttl := time.Duration(m.maxAttempts+2) * m.interval

	ctx, cancel := context.WithTimeout(m.ctx, 2*time.Second)
	defer cancel()
	ok, err := r.SetNX(ctx, lockKey, lockValue, ttl).Result()
	if err != nil {
		// Redis 故障时不阻塞轮询，结算自身的幂等守卫兜底
		logger.Warn("poll lock acquire failed, proceeding without lock",
			zap.Int64("room_id", roomID),
			zap.Error(err))
		return func() {}, true
	}
	if !ok {
		return func() {}, false
	}

	return func() {
		script := `
			if redis.call("get", KEYS[1]) == ARGV[1] then
				return redis.call("del", KEYS[1])
			else
				return 0
			end
		`
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		if _, err := r.Eval(ctx, script, []string{lockKey}, lockValue).Result(); err != nil {
			logger.Warn("poll lock release failed",
				zap.Int64("room_id", roomID),
				zap.Error(err))
		}
	}, true
}
