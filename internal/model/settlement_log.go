package model

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
)

// SettlementLog 结算日志表（room_id 唯一索引，防止重复结算）
// 同时保存一次结算的完整结果，幂等重放时直接回读本表
type SettlementLog struct {
	ID          int64   `db:"id"`           // 自增ID
	RoomID      int64   `db:"room_id"`      // 房间ID（唯一键）
	Player1Dice int8    `db:"player1_dice"` // 玩家1骰子
	Player2Dice int8    `db:"player2_dice"` // 玩家2骰子，单人局为0
	Result      string  `db:"result"`       // player1|player2|tie
	WinnerID    int64   `db:"winner_id"`    // 赢家，和局为0
	PotAmount   float64 `db:"pot_amount"`   // 彩池
	FeeAmount   float64 `db:"fee_amount"`   // 平台抽成，和局为0
	PrizeAmount float64 `db:"prize_amount"` // 奖金
	Operator    string  `db:"operator"`     // 操作方: poller|admin
	TraceID     string  `db:"trace_id"`     // 链路追踪ID
	CreatedAt   int64   `db:"created_at"`   // 创建时间（13位毫秒时间戳）
}

// CreateSettlementLog 创建结算日志（利用唯一索引防止重复结算）
// 如果返回唯一键冲突错误，说明该房间已经结算过
func CreateSettlementLog(ctx context.Context, exec sqlx.ExtContext, log *SettlementLog) error {
	now := time.Now().UnixMilli()
	log.CreatedAt = now

	sqlStr := `INSERT INTO settlement_log (room_id, player1_dice, player2_dice, result, winner_id, pot_amount, fee_amount, prize_amount, operator, trace_id, created_at)
	           VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	result, err := exec.ExecContext(ctx, sqlStr,
		log.RoomID, log.Player1Dice, log.Player2Dice, log.Result, log.WinnerID,
		log.PotAmount, log.FeeAmount, log.PrizeAmount, log.Operator, log.TraceID, log.CreatedAt)

	if err != nil {
		return err
	}

	id, _ := result.LastInsertId()
	log.ID = id

	return nil
}

// GetSettlementLog 查询结算日志
func GetSettlementLog(ctx context.Context, exec sqlx.ExtContext, roomID int64) (*SettlementLog, error) {
	sqlStr := `SELECT id, room_id, player1_dice, player2_dice, result, winner_id, pot_amount, fee_amount, prize_amount, operator, trace_id, created_at
	           FROM settlement_log WHERE room_id = ? LIMIT 1`

	var log SettlementLog
	if err := sqlx.GetContext(ctx, exec, &log, sqlStr, roomID); err != nil {
		return nil, err
	}

	return &log, nil
}
