package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	chelper "dice-server/common/helper"
	"dice-server/internal/config"
	"dice-server/internal/gateway"
	infrds "dice-server/internal/infra/redis"
	"dice-server/internal/metrics"
	"dice-server/internal/model"
	"dice-server/internal/state"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	decimal "github.com/shopspring/decimal"
)

// 房间编排：建房、加入、过期，以及为轮询器提供的存取封装

const (
	// Redis 进行中锁 TTL：吸收瞬时重复请求
	idemLockTTL = 45 * time.Second
	// 结果缓存 TTL：重复请求直接返回第一次成功结果
	idemResultTTL = 1 * time.Minute

	// 建房金额兜底上限（配置缺失时生效）
	defaultMaxBet = 1000000

	defaultCurrency = "USDT"

	openRoomsLimit = 50
)

// CreateRoomInput 建房输入
type CreateRoomInput struct {
	UserID         int64
	BetAmount      string
	IdempotencyKey string
	TraceID        string
}

// CreateRoomOutput 建房结果
type CreateRoomOutput struct {
	RoomID    int64  `json:"room_id"`
	RoomCode  string `json:"room_code"`
	InvoiceID string `json:"invoice_id"`
	PayURL    string `json:"pay_url"`
}

// JoinRoomOutput 加入房间结果
type JoinRoomOutput struct {
	RoomID    int64  `json:"room_id"`
	InvoiceID string `json:"invoice_id"`
	PayURL    string `json:"pay_url"`
}

// PollerStarter 为房间启动支付轮询（幂等：已在轮询的房间返回 false）
type PollerStarter interface {
	StartPoller(roomID int64) bool
}

// RoomService 房间编排服务，依赖全部注入
type RoomService struct {
	db      *sqlx.DB
	gw      gateway.Client
	pollers PollerStarter
}

func NewRoomService(db *sqlx.DB, gw gateway.Client) *RoomService {
	return &RoomService{db: db, gw: gw}
}

// SetPollerStarter 注入轮询管理器（构造顺序上轮询器依赖本服务，故后置注入）
func (s *RoomService) SetPollerStarter(p PollerStarter) { s.pollers = p }

// parseBetAmount 解析并校验赌注金额
func parseBetAmount(raw string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(strings.TrimSpace(raw))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid bet amount format", ErrBadRequest)
	}
	if amt.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: bet amount must be positive", ErrBadRequest)
	}
	maxBet := decimal.NewFromInt(defaultMaxBet)
	if cfg := config.Get(); cfg != nil && cfg.Game.MaxBetAmount > 0 {
		maxBet = decimal.NewFromFloat(cfg.Game.MaxBetAmount)
	}
	if amt.GreaterThan(maxBet) {
		return decimal.Zero, fmt.Errorf("%w: bet amount exceeds maximum limit: %s", ErrBadRequest, maxBet.String())
	}
	return amt.Round(2), nil
}

func currency() string {
	if cfg := config.Get(); cfg != nil && cfg.Game.Currency != "" {
		return cfg.Game.Currency
	}
	return defaultCurrency
}

// loadActiveUser 查用户并校验封禁标记
func (s *RoomService) loadActiveUser(ctx context.Context, userID int64) (*model.Users, error) {
	user, err := model.GetUser(ctx, s.db, userID)
	if err != nil {
		if model.IsNoRows(err) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.IsBanned == 1 {
		return nil, ErrUserBanned
	}
	return user, nil
}

// CreateRoom 建房主流程：
// 先向网关开账单，账单成功后才落房间记录，避免产生无账单的孤儿房间；
// 幂等键冲突时凭 ref（房间码）回查并返回首次结果
func (s *RoomService) CreateRoom(ctx context.Context, in CreateRoomInput) (*CreateRoomOutput, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordRoom("create", result, start) }()

	fmt.Printf("[Room]  收到建房请求: user_id=%d, bet_amount=%s, idem_key=%s, trace_id=%s\n",
		in.UserID, in.BetAmount, in.IdempotencyKey, in.TraceID)

	amt, err := parseBetAmount(in.BetAmount)
	if err != nil {
		return nil, err
	}

	if _, err := s.loadActiveUser(ctx, in.UserID); err != nil {
		fmt.Printf("[Room]  建房用户校验失败: user_id=%d, error=%v, trace_id=%s\n",
			in.UserID, err, in.TraceID)
		return nil, err
	}

	// Redis 快路径：若已有结果缓存，直接返回
	if r := infrds.Client(); r != nil {
		if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
			var out CreateRoomOutput
			if json.Unmarshal(bs, &out) == nil {
				fmt.Printf("[Room]  Redis 缓存命中: idem_key=%s, room_code=%s, trace_id=%s\n",
					in.IdempotencyKey, out.RoomCode, in.TraceID)
				result = "success"
				return &out, nil
			}
		}

		// 进行中锁，吸收瞬时重复
		lockValue := uuid.New().String()
		lockKey := infrds.IdemLockKey(in.IdempotencyKey)
		ok, _ := r.SetNX(ctx, lockKey, lockValue, idemLockTTL).Result()
		if !ok {
			if bs, _ := r.Get(ctx, infrds.IdemResultKey(in.IdempotencyKey)).Bytes(); len(bs) > 0 {
				var out CreateRoomOutput
				if json.Unmarshal(bs, &out) == nil {
					result = "success"
					return &out, nil
				}
			}
			fmt.Printf("[Room]  重复请求进行中: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			return nil, ErrDuplicateInFlight
		}

		// Lua 原子释放：仅当锁值匹配时删除
		defer func() {
			script := `
				if redis.call("get", KEYS[1]) == ARGV[1] then
					return redis.call("del", KEYS[1])
				else
					return 0
				end
			`
			if _, err := r.Eval(ctx, script, []string{lockKey}, lockValue).Result(); err != nil {
				fmt.Printf("[Room] 释放分布式锁失败: idem_key=%s, error=%v, trace_id=%s\n",
					in.IdempotencyKey, err, in.TraceID)
			}
		}()
	}

	// 账单先行：网关失败则房间完全不落库
	invoice, err := s.gw.CreateInvoice(ctx, amt, fmt.Sprintf("Dice game stake %s", amt.String()))
	if err != nil {
		fmt.Printf("[Room]  创建账单失败: error=%v, user_id=%d, trace_id=%s\n",
			err, in.UserID, in.TraceID)
		return nil, fmt.Errorf("%w: %v", ErrPaymentInit, err)
	}

	roomCode, err := chelper.NewRoomCode()
	if err != nil {
		return nil, err
	}

	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	// 幂等：先占幂等键，ref 记录房间码
	if err := (&model.IdempotencyKey{IdempotencyKey: in.IdempotencyKey, Purpose: "create_room", Ref: roomCode}).Insert(txCtx, tx); err != nil {
		if me, ok := err.(*mysqlerr.MySQLError); ok && me.Number == 1062 {
			_ = tx.Rollback()
			fmt.Printf("[Room]  幂等键冲突，尝试返回上次结果: idem_key=%s, trace_id=%s\n",
				in.IdempotencyKey, in.TraceID)
			ref, e1 := model.SelectRefByIdemKey(ctx, s.db, in.IdempotencyKey)
			if e1 == nil && ref != "" {
				if room, e2 := model.GetRoomByCode(ctx, s.db, ref); e2 == nil {
					result = "success"
					return &CreateRoomOutput{RoomID: room.ID, RoomCode: room.RoomCode, InvoiceID: room.InvoiceID}, nil
				}
			}
		}
		fmt.Printf("[Room]  插入幂等键失败: error=%v, idem_key=%s, trace_id=%s\n",
			err, in.IdempotencyKey, in.TraceID)
		return nil, fmt.Errorf("idempotency conflict or insert failed: %w", err)
	}

	room := &model.Room{
		RoomCode:  roomCode,
		CreatorID: in.UserID,
		Player1ID: in.UserID,
		BetAmount: amt.InexactFloat64(),
		Currency:  currency(),
		Status:    state.CodeAwaitingPayment,
		InvoiceID: invoice.InvoiceID,
		TraceID:   in.TraceID,
	}
	if err := room.Insert(txCtx, tx); err != nil {
		fmt.Printf("[Room]  落房间记录失败: error=%v, room_code=%s, trace_id=%s\n",
			err, roomCode, in.TraceID)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Room]  提交事务失败: error=%v, room_code=%s, trace_id=%s\n",
			err, roomCode, in.TraceID)
		return nil, err
	}

	if s.pollers != nil {
		s.pollers.StartPoller(room.ID)
	}

	result = "success"
	out := &CreateRoomOutput{RoomID: room.ID, RoomCode: roomCode, InvoiceID: invoice.InvoiceID, PayURL: invoice.PayURL}

	fmt.Printf("[Room]  建房成功: room_id=%d, room_code=%s, bet_amount=%s, invoice_id=%s, trace_id=%s\n",
		room.ID, roomCode, amt.String(), invoice.InvoiceID, in.TraceID)

	// 写入 Redis 结果缓存（降级容错）
	if r := infrds.Client(); r != nil {
		if b, e := json.Marshal(out); e == nil {
			_ = r.Set(ctx, infrds.IdemResultKey(in.IdempotencyKey), b, idemResultTTL).Err()
		}
	}

	return out, nil
}

// JoinRoom 加入房间：校验通过后先开账单，再以条件更新抢占第二个座位。
// 抢座失败（并发加入被别人抢先）时网关侧会留下一张孤儿账单，该账单永远不会
// 被轮询器确认，随网关侧过期自行作废
func (s *RoomService) JoinRoom(ctx context.Context, userID, roomID int64, traceID string) (*JoinRoomOutput, error) {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordRoom("join", result, start) }()

	fmt.Printf("[Room]  收到加入请求: user_id=%d, room_id=%d, trace_id=%s\n",
		userID, roomID, traceID)

	if _, err := s.loadActiveUser(ctx, userID); err != nil {
		fmt.Printf("[Room]  加入用户校验失败: user_id=%d, error=%v, trace_id=%s\n",
			userID, err, traceID)
		return nil, err
	}

	room, err := model.GetRoomByID(ctx, s.db, roomID)
	if err != nil {
		if model.IsNoRows(err) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}

	if room.Status != state.CodeAwaitingPayment || room.Player2ID != 0 {
		fmt.Printf("[Room]  房间不可加入: room_id=%d, status=%s, player2_id=%d, trace_id=%s\n",
			roomID, state.CodeToState(room.Status), room.Player2ID, traceID)
		return nil, ErrRoomFull
	}
	if room.CreatorID == userID {
		return nil, ErrSelfJoinForbidden
	}

	invoice, err := s.gw.CreateInvoice(ctx, decimal.NewFromFloat(room.BetAmount),
		fmt.Sprintf("Dice game stake %s (room %s)", decimal.NewFromFloat(room.BetAmount).String(), room.RoomCode))
	if err != nil {
		fmt.Printf("[Room]  创建第二张账单失败: error=%v, room_id=%d, trace_id=%s\n",
			err, roomID, traceID)
		return nil, fmt.Errorf("%w: %v", ErrPaymentInit, err)
	}

	claimed, err := model.ClaimSecondSeat(ctx, s.db, roomID, userID, invoice.InvoiceID)
	if err != nil {
		return nil, err
	}
	if !claimed {
		// 座位被抢占或状态已迁移，重读以区分失败原因
		fmt.Printf("[Room]  抢座失败: room_id=%d, user_id=%d, trace_id=%s\n",
			roomID, userID, traceID)
		if _, e := model.GetRoomByID(ctx, s.db, roomID); e != nil && model.IsNoRows(e) {
			return nil, ErrRoomNotFound
		}
		return nil, ErrRoomFull
	}

	if s.pollers != nil {
		s.pollers.StartPoller(roomID)
	}

	result = "success"
	fmt.Printf("[Room]  加入成功: room_id=%d, user_id=%d, invoice_id=%s, trace_id=%s\n",
		roomID, userID, invoice.InvoiceID, traceID)

	return &JoinRoomOutput{RoomID: roomID, InvoiceID: invoice.InvoiceID, PayURL: invoice.PayURL}, nil
}

// GetRoomDetail 查询房间详情
func (s *RoomService) GetRoomDetail(ctx context.Context, roomID int64) (*model.Room, error) {
	room, err := model.GetRoomByID(ctx, s.db, roomID)
	if err != nil {
		if model.IsNoRows(err) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetRoomByCode 按房间码查询
func (s *RoomService) GetRoomByCode(ctx context.Context, code string) (*model.Room, error) {
	if !chelper.ValidRoomCode(code) {
		return nil, ErrRoomNotFound
	}
	room, err := model.GetRoomByCode(ctx, s.db, code)
	if err != nil {
		if model.IsNoRows(err) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	return room, nil
}

// GetRoomResult 查询已结算房间的结果：优先读 Redis 结果缓存，未命中回源结算日志。
// 未结算的房间返回 ErrRoomNotSettleable
func (s *RoomService) GetRoomResult(ctx context.Context, roomID int64) (*SettleOutput, error) {
	if r := infrds.Client(); r != nil {
		if bs, _ := r.Get(ctx, infrds.RoomResultKey(roomID)).Bytes(); len(bs) > 0 {
			var out SettleOutput
			if err := json.Unmarshal(bs, &out); err == nil {
				return &out, nil
			}
		}
	}

	room, err := model.GetRoomByID(ctx, s.db, roomID)
	if err != nil {
		if model.IsNoRows(err) {
			return nil, ErrRoomNotFound
		}
		return nil, err
	}
	if room.Status != state.CodeSettled {
		return nil, ErrRoomNotSettleable
	}
	slog, err := model.GetSettlementLog(ctx, s.db, room.ID)
	if err != nil {
		if model.IsNoRows(err) {
			// 状态为已结算但日志缺失属于数据异常
			return nil, fmt.Errorf("settlement log missing for settled room %d", room.ID)
		}
		return nil, err
	}

	out := &SettleOutput{
		RoomID:      room.ID,
		Player1ID:   room.Player1ID,
		Player2ID:   room.Player2ID,
		Player1Dice: slog.Player1Dice,
		Player2Dice: slog.Player2Dice,
		Result:      slog.Result,
		WinnerID:    slog.WinnerID,
		PotAmount:   slog.PotAmount,
		FeeAmount:   slog.FeeAmount,
		PrizeAmount: slog.PrizeAmount,
		Idempotent:  true,
	}

	// 回填缓存，覆盖结算后短时间内的高频查询
	if r := infrds.Client(); r != nil {
		if b, e := json.Marshal(out); e == nil {
			_ = r.Set(ctx, infrds.RoomResultKey(roomID), b, roomResultTTL).Err()
		}
	}
	return out, nil
}

// ListOpenRooms 大厅：可加入的房间列表
func (s *RoomService) ListOpenRooms(ctx context.Context) ([]model.RoomListItem, error) {
	limit := int(config.GetThreshold("open_rooms_limit", openRoomsLimit))
	return model.ListOpenRooms(ctx, s.db, limit)
}

// ExpireRoom 将等待付款的房间置为已过期（轮询预算耗尽或后台强制关闭）。
// 幂等：已过期的房间返回成功；已结算的房间不可过期
func (s *RoomService) ExpireRoom(ctx context.Context, roomID int64, operator, traceID string) error {
	start := time.Now()
	result := "fail"
	defer func() { metrics.RecordRoom("expire", result, start) }()

	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	room, err := model.GetRoomForUpdate(txCtx, tx, roomID)
	if err != nil {
		if model.IsNoRows(err) {
			return ErrRoomNotFound
		}
		return err
	}
	if room.Status == state.CodeExpired {
		result = "success"
		return nil
	}
	if room.Status != state.CodeAwaitingPayment {
		return ErrRoomNotSettleable
	}

	next, err := state.NextState(state.CodeToState(room.Status), state.EvtExpire)
	if err != nil {
		return ErrRoomNotSettleable
	}
	ok, err := model.CASStatus(txCtx, tx, roomID, room.Status, state.StateToCode(next))
	if err != nil {
		return err
	}
	if !ok {
		// 竞态败方：对方已结算或已过期，按无操作处理
		result = "success"
		return nil
	}

	now := time.Now().UnixMilli()
	if err := model.ApplyRoomPatch(txCtx, tx, roomID, &model.RoomPatch{FinishedAt: &now}); err != nil {
		return err
	}

	// 超时是非错误的终态，照常通知参与者
	msg := fmt.Sprintf("⏰ Room %s closed: payment not confirmed in time", room.RoomCode)
	bizKey := fmt.Sprintf("room:%d:expired", roomID)
	if err := model.CreateOutbox(txCtx, tx, "notify_user", bizKey+":p1", map[string]any{
		"user_id": room.Player1ID,
		"message": msg,
	}); err != nil {
		return err
	}
	if room.Player2ID != 0 {
		if err := model.CreateOutbox(txCtx, tx, "notify_user", bizKey+":p2", map[string]any{
			"user_id": room.Player2ID,
			"message": msg,
		}); err != nil {
			return err
		}
	}
	if err := model.CreateOutbox(txCtx, tx, "room_expired", bizKey, map[string]any{
		"event":     "room_expired",
		"room_id":   roomID,
		"room_code": room.RoomCode,
		"operator":  operator,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}

	result = "success"
	fmt.Printf("[Room]  房间已过期: room_id=%d, operator=%s, trace_id=%s\n",
		roomID, operator, traceID)
	return nil
}

// ---- 轮询器存取封装 ----

// GetRoom 供轮询器读取房间
func (s *RoomService) GetRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	return model.GetRoomByID(ctx, s.db, roomID)
}

// SetPlayerPaid 供轮询器置付款标记（幂等）
func (s *RoomService) SetPlayerPaid(ctx context.Context, roomID int64, seat int) error {
	return model.SetPlayerPaid(ctx, s.db, roomID, seat)
}

// ListAwaitingRooms 供轮询器在重启后恢复所有等待付款的房间
func (s *RoomService) ListAwaitingRooms(ctx context.Context, limit int) ([]int64, error) {
	return model.ListRoomIDsByStatus(ctx, s.db, state.CodeAwaitingPayment, limit)
}

// HandleTimeout 轮询预算耗尽时的善后：将房间置为已过期
func (s *RoomService) HandleTimeout(ctx context.Context, roomID int64) error {
	err := s.ExpireRoom(ctx, roomID, "poller", "")
	if err != nil && !errors.Is(err, ErrRoomNotSettleable) {
		return err
	}
	return nil
}
