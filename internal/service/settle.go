package service

import (
	"context"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"dice-server/common/constant"
	"dice-server/internal/config"
	infrds "dice-server/internal/infra/redis"
	"dice-server/internal/metrics"
	"dice-server/internal/model"
	"dice-server/internal/state"

	mysqlerr "github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	decimal "github.com/shopspring/decimal"
)

// 结算业务逻辑：掷骰、派彩、写账本、更新统计
// 整个结算在单个 MySQL 事务内完成，结果要么全部落地要么全部不落地

// 默认事务超时时间，防止长事务占用资源影响并发（若上游已有 deadline，则沿用上游）
const defaultTxTimeout = 3 * time.Second

// 结算结果缓存 TTL：覆盖结算后短时间内的高频查询
const roomResultTTL = 10 * time.Minute

// 默认平台抽成比例（配置缺失时兜底）
const defaultFeeRate = 0.05

// SettleInput 输入参数
type SettleInput struct {
	RoomID   int64
	Operator string // poller|admin
	TraceID  string
}

// SettleOutput 结算结果
// Idempotent=true 表示本次调用命中了已有结算记录，未产生任何新的副作用
type SettleOutput struct {
	RoomID      int64
	Player1ID   int64
	Player2ID   int64
	Player1Dice int8
	Player2Dice int8
	Result      string // player1|player2|tie
	WinnerID    int64  // 和局为0
	PotAmount   float64
	FeeAmount   float64
	PrizeAmount float64
	Idempotent  bool
}

// SettleService 结算引擎
// roll 可注入固定骰子用于测试，默认为密码学随机
type SettleService struct {
	db   *sqlx.DB
	roll func() int
}

func NewSettleService(db *sqlx.DB) *SettleService {
	return &SettleService{db: db, roll: rollDie}
}

// rollDie 掷一枚骰子，均匀分布于 [1,6]
func rollDie() int {
	n, err := rand.Int(rand.Reader, big.NewInt(6))
	if err != nil {
		// crypto/rand 读取失败说明系统熵源异常，无法安全继续
		panic(fmt.Sprintf("dice roll failed: %v", err))
	}
	return int(n.Int64()) + 1
}

// decideOutcome 比大小定胜负，点数相同为和局
// 单人局 d2=0，任何点数都大于0，玩家1必胜
func decideOutcome(d1, d2 int) (code int8, str string) {
	switch {
	case d1 > d2:
		return 1, "player1"
	case d2 > d1:
		return 2, "player2"
	default:
		return 3, "tie"
	}
}

// computePayout 计算彩池、抽成、奖金
// 不变式：prize + fee == pot 精确成立（fee 先四舍五入到两位小数，prize 用减法得出）
func computePayout(bet decimal.Decimal, players int64, feeRate decimal.Decimal) (pot, fee, prize decimal.Decimal) {
	pot = bet.Mul(decimal.NewFromInt(players)).Round(2)
	fee = pot.Mul(feeRate).Round(2)
	prize = pot.Sub(fee)
	return
}

// feeRate 从配置读取抽成比例，配置缺失或越界时用默认值
func feeRate() decimal.Decimal {
	if cfg := config.Get(); cfg != nil {
		if r := cfg.Game.FeeRate; r >= 0 && r < 1 {
			return decimal.NewFromFloat(r)
		}
	}
	return decimal.NewFromFloat(defaultFeeRate)
}

// Settle 结算主流程（幂等）：
//  1. FOR UPDATE 锁房间，已结算则直接回读结算日志返回
//  2. 校验付款前置条件
//  3. 掷骰、定胜负、算派彩
//  4. CAS 状态迁移 + 结算日志唯一键，双层防重
//  5. 赢家入账（账本 + 原子余额自增 + 胜负统计），和局只记录不动钱
//  6. Outbox 落通知消息，提交事务
func (s *SettleService) Settle(ctx context.Context, in SettleInput) (*SettleOutput, error) {
	start := time.Now()
	result := "fail"
	outcome := ""
	defer func() { metrics.RecordSettle(result, outcome, start) }()

	fmt.Printf("[Settle]  收到结算请求: room_id=%d, operator=%s, trace_id=%s\n",
		in.RoomID, in.Operator, in.TraceID)

	txCtx := ctx
	if _, has := ctx.Deadline(); !has {
		c, cancel := context.WithTimeout(ctx, defaultTxTimeout)
		txCtx = c
		defer cancel()
	}
	tx, err := s.db.BeginTxx(txCtx, nil)
	if err != nil {
		fmt.Printf("[Settle] 开启事务失败: error=%v, room_id=%d, trace_id=%s\n",
			err, in.RoomID, in.TraceID)
		return nil, err
	}
	defer func() { _ = tx.Rollback() }()

	room, err := model.GetRoomForUpdate(txCtx, tx, in.RoomID)
	if err != nil {
		if model.IsNoRows(err) {
			return nil, ErrRoomNotFound
		}
		fmt.Printf("[Settle]  查询房间失败: error=%v, room_id=%d, trace_id=%s\n",
			err, in.RoomID, in.TraceID)
		return nil, fmt.Errorf("failed to get room: %w", err)
	}

	// 幂等守卫第一层：已结算直接回读结算日志，零副作用返回
	if room.Status == state.CodeSettled {
		out, err := s.replayFromLog(txCtx, tx, room)
		if err != nil {
			return nil, err
		}
		result, outcome = "success_idempotent", out.Result
		fmt.Printf("[Settle]  房间已结算，返回既有结果: room_id=%d, result=%s, trace_id=%s\n",
			in.RoomID, out.Result, in.TraceID)
		return out, nil
	}
	if room.Status != state.CodeAwaitingPayment {
		fmt.Printf("[Settle]  房间状态不允许结算: room_id=%d, status=%s, trace_id=%s\n",
			in.RoomID, state.CodeToState(room.Status), in.TraceID)
		return nil, ErrRoomNotSettleable
	}

	// 付款前置条件：玩家1已付，且（玩家2从未入座，或玩家2已付）
	if room.Player1Paid != 1 || (room.Player2ID != 0 && room.Player2Paid != 1) {
		fmt.Printf("[Settle]  存在未确认的付款: room_id=%d, p1_paid=%d, p2_id=%d, p2_paid=%d, trace_id=%s\n",
			in.RoomID, room.Player1Paid, room.Player2ID, room.Player2Paid, in.TraceID)
		return nil, ErrPaymentIncomplete
	}

	// 掷骰：单人局玩家2点数记为0
	d1 := s.roll()
	d2 := 0
	players := int64(1)
	if room.Player2ID != 0 {
		d2 = s.roll()
		players = 2
	}
	resCode, resStr := decideOutcome(d1, d2)

	var winnerID, loserID int64
	switch resCode {
	case 1:
		winnerID, loserID = room.Player1ID, room.Player2ID
	case 2:
		winnerID, loserID = room.Player2ID, room.Player1ID
	}

	bet := decimal.NewFromFloat(room.BetAmount)
	pot, fee, prize := computePayout(bet, players, feeRate())
	if winnerID == 0 {
		// 和局：不抽成，prize 记录为全部彩池（仅展示用途，不产生任何账变）
		fee = decimal.Zero
		prize = pot
	}

	// 幂等守卫第二层：状态 CAS，输掉竞态的一方按无操作处理
	next, err := state.NextState(state.CodeToState(room.Status), state.EvtSettle)
	if err != nil {
		return nil, ErrRoomNotSettleable
	}
	ok, err := model.CASStatus(txCtx, tx, in.RoomID, room.Status, state.StateToCode(next))
	if err != nil {
		return nil, fmt.Errorf("settle status cas failed: %w", err)
	}
	if !ok {
		_ = tx.Rollback()
		return s.replayCommitted(ctx, in.RoomID, &result, &outcome, in.TraceID)
	}

	// 幂等守卫第三层：结算日志唯一键兜底
	slog := &model.SettlementLog{
		RoomID:      in.RoomID,
		Player1Dice: int8(d1),
		Player2Dice: int8(d2),
		Result:      resStr,
		WinnerID:    winnerID,
		PotAmount:   pot.InexactFloat64(),
		FeeAmount:   fee.InexactFloat64(),
		PrizeAmount: prize.InexactFloat64(),
		Operator:    in.Operator,
		TraceID:     in.TraceID,
	}
	if err := model.CreateSettlementLog(txCtx, tx, slog); err != nil {
		if me, isMe := err.(*mysqlerr.MySQLError); isMe && me.Number == 1062 {
			_ = tx.Rollback()
			fmt.Printf("[Settle]  结算日志唯一键冲突，返回既有结果: room_id=%d, trace_id=%s\n",
				in.RoomID, in.TraceID)
			return s.replayCommitted(ctx, in.RoomID, &result, &outcome, in.TraceID)
		}
		fmt.Printf("[Settle]  写入结算日志失败: error=%v, room_id=%d, trace_id=%s\n",
			err, in.RoomID, in.TraceID)
		return nil, err
	}

	// 骰子点数与派彩只在此处写入一次，此后不再变更
	now := time.Now().UnixMilli()
	p1d, p2d := int8(d1), int8(d2)
	prizeF := prize.InexactFloat64()
	patch := &model.RoomPatch{
		Player1Dice: &p1d,
		Player2Dice: &p2d,
		Result:      &resCode,
		ResultStr:   &resStr,
		WinnerID:    &winnerID,
		PrizeAmount: &prizeF,
		FinishedAt:  &now,
	}
	if err := model.ApplyRoomPatch(txCtx, tx, in.RoomID, patch); err != nil {
		fmt.Printf("[Settle]  更新房间结算字段失败: error=%v, room_id=%d, trace_id=%s\n",
			err, in.RoomID, in.TraceID)
		return nil, err
	}

	if winnerID != 0 {
		// 赢家账本 + 余额 + 统计；平台抽成记到哨兵账户
		winLedger := &model.Transaction{
			UserID:   winnerID,
			BizType:  constant.BizTypeWin,
			Amount:   prize.InexactFloat64(),
			Currency: room.Currency,
			RoomID:   in.RoomID,
			Remark:   "game prize",
			TraceID:  in.TraceID,
		}
		if err := winLedger.Insert(txCtx, tx); err != nil {
			fmt.Printf("[Settle]  写入赢家账本失败: error=%v, room_id=%d, trace_id=%s\n",
				err, in.RoomID, in.TraceID)
			return nil, err
		}
		feeLedger := &model.Transaction{
			UserID:   constant.ProjectAccountID,
			BizType:  constant.BizTypeProjectFee,
			Amount:   fee.InexactFloat64(),
			Currency: room.Currency,
			RoomID:   in.RoomID,
			Remark:   "project fee",
			TraceID:  in.TraceID,
		}
		if err := feeLedger.Insert(txCtx, tx); err != nil {
			fmt.Printf("[Settle]  写入抽成账本失败: error=%v, room_id=%d, trace_id=%s\n",
				err, in.RoomID, in.TraceID)
			return nil, err
		}
		if err := model.ApplyBalanceDelta(txCtx, tx, winnerID, prize.InexactFloat64()); err != nil {
			return nil, err
		}
		if err := model.ApplyWinStats(txCtx, tx, winnerID, pot.InexactFloat64()); err != nil {
			return nil, err
		}
		if loserID != 0 {
			if err := model.ApplyLossStats(txCtx, tx, loserID, bet.Round(2).InexactFloat64()); err != nil {
				return nil, err
			}
		}
	}

	// 结果通知（尽力而为，经由 Outbox 异步投递，绝不阻塞或回滚结算）
	if err := s.enqueueResultNotices(txCtx, tx, room, slog); err != nil {
		fmt.Printf("[Settle]  写入 Outbox 失败: error=%v, room_id=%d, trace_id=%s\n",
			err, in.RoomID, in.TraceID)
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		fmt.Printf("[Settle]  提交事务失败: error=%v, room_id=%d, trace_id=%s\n",
			err, in.RoomID, in.TraceID)
		return nil, err
	}

	result, outcome = "success", resStr
	out := &SettleOutput{
		RoomID:      in.RoomID,
		Player1ID:   room.Player1ID,
		Player2ID:   room.Player2ID,
		Player1Dice: int8(d1),
		Player2Dice: int8(d2),
		Result:      resStr,
		WinnerID:    winnerID,
		PotAmount:   pot.InexactFloat64(),
		FeeAmount:   fee.InexactFloat64(),
		PrizeAmount: prize.InexactFloat64(),
	}

	fmt.Printf("[Settle]  结算完成: room_id=%d, p1_dice=%d, p2_dice=%d, result=%s, winner_id=%d, prize=%s, fee=%s, trace_id=%s\n",
		in.RoomID, d1, d2, resStr, winnerID, prize.String(), fee.String(), in.TraceID)

	// 写入 Redis 结果缓存（降级容错）
	if r := infrds.Client(); r != nil {
		if b, e := json.Marshal(out); e == nil {
			_ = r.Set(ctx, infrds.RoomResultKey(in.RoomID), b, roomResultTTL).Err()
		}
	}

	return out, nil
}

// SettleRoom 供轮询器调用的精简入口
func (s *SettleService) SettleRoom(ctx context.Context, roomID int64, traceID string) error {
	_, err := s.Settle(ctx, SettleInput{RoomID: roomID, Operator: "poller", TraceID: traceID})
	return err
}

// replayFromLog 从结算日志重建结算结果
func (s *SettleService) replayFromLog(ctx context.Context, exec sqlx.ExtContext, room *model.Room) (*SettleOutput, error) {
	slog, err := model.GetSettlementLog(ctx, exec, room.ID)
	if err != nil {
		if model.IsNoRows(err) {
			// 状态为已结算但日志缺失属于数据异常
			return nil, fmt.Errorf("room %d settled but settlement log missing", room.ID)
		}
		return nil, err
	}
	return &SettleOutput{
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
	}, nil
}

// replayCommitted 竞态败方路径：放弃本事务后回读对方已提交的结算结果
func (s *SettleService) replayCommitted(ctx context.Context, roomID int64, result, outcome *string, traceID string) (*SettleOutput, error) {
	room, err := model.GetRoomByID(ctx, s.db, roomID)
	if err != nil {
		return nil, err
	}
	out, err := s.replayFromLog(ctx, s.db, room)
	if err != nil {
		return nil, err
	}
	*result, *outcome = "success_idempotent", out.Result
	fmt.Printf("[Settle]  并发结算竞态，按无操作返回既有结果: room_id=%d, result=%s, trace_id=%s\n",
		roomID, out.Result, traceID)
	return out, nil
}

// enqueueResultNotices 为每位参与者落一条通知消息，另发一条对局事件
func (s *SettleService) enqueueResultNotices(ctx context.Context, exec sqlx.ExtContext, room *model.Room, slog *model.SettlementLog) error {
	msg := formatResultMessage(room, slog)

	bizKey := fmt.Sprintf("room:%d", room.ID)
	if err := model.CreateOutbox(ctx, exec, "notify_user", bizKey+":p1", map[string]any{
		"user_id": room.Player1ID,
		"message": msg,
	}); err != nil {
		return err
	}
	if room.Player2ID != 0 {
		if err := model.CreateOutbox(ctx, exec, "notify_user", bizKey+":p2", map[string]any{
			"user_id": room.Player2ID,
			"message": msg,
		}); err != nil {
			return err
		}
	}
	return model.CreateOutbox(ctx, exec, "room_settled", bizKey, map[string]any{
		"event":        "room_settled",
		"room_id":      room.ID,
		"room_code":    room.RoomCode,
		"result":       slog.Result,
		"winner_id":    slog.WinnerID,
		"pot_amount":   slog.PotAmount,
		"fee_amount":   slog.FeeAmount,
		"prize_amount": slog.PrizeAmount,
	})
}

// formatResultMessage 拼接发给玩家的结算通知文案
func formatResultMessage(room *model.Room, slog *model.SettlementLog) string {
	msg := fmt.Sprintf("🎲 Game result for room %s\nPlayer 1: %d\n", room.RoomCode, slog.Player1Dice)
	if room.Player2ID != 0 {
		msg += fmt.Sprintf("Player 2: %d\n", slog.Player2Dice)
	}
	if slog.WinnerID != 0 {
		msg += fmt.Sprintf("🏆 Winner: %d\n💰 Prize: %s %s", slog.WinnerID,
			decimal.NewFromFloat(slog.PrizeAmount).String(), room.Currency)
	} else {
		msg += "🤝 Tie! No winner this round"
	}
	return msg
}
