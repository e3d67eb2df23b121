package model

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
)

// Room 对应 rooms 表
// status: 1=awaiting_payment 2=settled 3=expired
// result: 0=未结算 1=player1 2=player2 3=tie（冗余 result_str 便于查询）
// player2_id=0 表示尚无第二名玩家；winner_id=0 表示无赢家（未结算或和局）
// 骰子点数与 prize_amount 仅在结算时写入一次，之后不再变更
type Room struct {
	ID          int64   `db:"room_id"`      // 自增ID
	RoomCode    string  `db:"room_code"`    // 对外展示的10位房间码（Luhn 校验位）
	CreatorID   int64   `db:"creator_id"`   // 创建者
	Player1ID   int64   `db:"player1_id"`   // 玩家1（=创建者）
	Player2ID   int64   `db:"player2_id"`   // 玩家2，0=未加入
	BetAmount   float64 `db:"bet_amount"`   // 单人赌注
	Currency    string  `db:"currency"`     // 币种
	Status      int8    `db:"status"`       // 状态
	Player1Paid int8    `db:"player1_paid"` // 玩家1已付款: 0/1
	Player2Paid int8    `db:"player2_paid"` // 玩家2已付款: 0/1
	InvoiceID   string  `db:"invoice_id"`   // 玩家1账单
	InvoiceID2  string  `db:"invoice_id2"`  // 玩家2账单
	Player1Dice int8    `db:"player1_dice"` // 玩家1骰子点数 1-6
	Player2Dice int8    `db:"player2_dice"` // 玩家2骰子点数 1-6，单人局为0
	Result      int8    `db:"result"`       // 结算结果码
	ResultStr   string  `db:"result_str"`   // 结算结果字符串
	WinnerID    int64   `db:"winner_id"`    // 赢家，0=无
	PrizeAmount float64 `db:"prize_amount"` // 奖金（和局时记录全部彩池，仅展示用途）
	TraceID     string  `db:"trace_id"`     // 链路追踪ID
	CreatedAt   int64   `db:"created_at"`   // 创建时间（13位毫秒时间戳）
	UpdatedAt   int64   `db:"updated_at"`   // 更新时间
	FinishedAt  int64   `db:"finished_at"`  // 结束时间，0=未结束
}

const roomColumns = `room_id, room_code, creator_id, player1_id, player2_id, bet_amount, currency,
	status, player1_paid, player2_paid, invoice_id, invoice_id2,
	player1_dice, player2_dice, result, result_str, winner_id, prize_amount,
	trace_id, created_at, updated_at, finished_at`

// Insert 落房间记录（建房时已有账单，status 由调用方给定）
func (r *Room) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	r.CreatedAt = now
	r.UpdatedAt = now

	// 使用原生 SQL 以避免 goqu 在某些 MySQL 版本上的兼容性问题
	sqlStr := `INSERT INTO rooms (room_code, creator_id, player1_id, player2_id, bet_amount, currency,
		status, player1_paid, player2_paid, invoice_id, invoice_id2,
		player1_dice, player2_dice, result, result_str, winner_id, prize_amount,
		trace_id, created_at, updated_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	args := []interface{}{r.RoomCode, r.CreatorID, r.Player1ID, r.Player2ID, r.BetAmount, r.Currency,
		r.Status, r.Player1Paid, r.Player2Paid, r.InvoiceID, r.InvoiceID2,
		r.Player1Dice, r.Player2Dice, r.Result, r.ResultStr, r.WinnerID, r.PrizeAmount,
		r.TraceID, r.CreatedAt, r.UpdatedAt, r.FinishedAt}

	result, err := exec.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}

	id, _ := result.LastInsertId()
	r.ID = id
	return nil
}

// GetRoomByID 按房间ID查询（不加锁）
func GetRoomByID(ctx context.Context, exec sqlx.ExtContext, roomID int64) (*Room, error) {
	sqlStr := "SELECT " + roomColumns + " FROM rooms WHERE room_id = ? LIMIT 1"
	var room Room
	if err := sqlx.GetContext(ctx, exec, &room, sqlStr, roomID); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoomByCode 按房间码查询（不加锁）
func GetRoomByCode(ctx context.Context, exec sqlx.ExtContext, code string) (*Room, error) {
	sqlStr := "SELECT " + roomColumns + " FROM rooms WHERE room_code = ? LIMIT 1"
	var room Room
	if err := sqlx.GetContext(ctx, exec, &room, sqlStr, code); err != nil {
		return nil, err
	}
	return &room, nil
}

// GetRoomForUpdate 按房间ID加锁查询，必须在事务中调用
func GetRoomForUpdate(ctx context.Context, exec sqlx.ExtContext, roomID int64) (*Room, error) {
	sqlStr := "SELECT " + roomColumns + " FROM rooms WHERE room_id = ? FOR UPDATE"
	var room Room
	if err := sqlx.GetContext(ctx, exec, &room, sqlStr, roomID); err != nil {
		return nil, err
	}
	return &room, nil
}

// ClaimSecondSeat 占用第二个座位（条件更新，先到先得）
// 仅当房间仍在等待付款且没有玩家2时生效；返回 false 表示座位已被抢占或状态不允许
func ClaimSecondSeat(ctx context.Context, exec sqlx.ExtContext, roomID, userID int64, invoiceID string) (bool, error) {
	now := time.Now().UnixMilli()

	// 使用原生 SQL 以避免 goqu 在某些 MySQL 版本上的兼容性问题
	sqlStr := `UPDATE rooms SET player2_id = ?, invoice_id2 = ?, updated_at = ?
		WHERE room_id = ? AND status = 1 AND player2_id = 0`
	res, err := exec.ExecContext(ctx, sqlStr, userID, invoiceID, now, roomID)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// SetPlayerPaid 置付款标记（幂等：重复置1无副作用）
// seat: 1 或 2
func SetPlayerPaid(ctx context.Context, exec sqlx.ExtContext, roomID int64, seat int) error {
	now := time.Now().UnixMilli()

	var sqlStr string
	switch seat {
	case 1:
		sqlStr = "UPDATE rooms SET player1_paid = 1, updated_at = ? WHERE room_id = ?"
	case 2:
		sqlStr = "UPDATE rooms SET player2_paid = 1, updated_at = ? WHERE room_id = ?"
	default:
		return errors.New("invalid seat")
	}
	_, err := exec.ExecContext(ctx, sqlStr, now, roomID)
	return err
}

// CASStatus 原子状态迁移：仅当当前状态为 from 时置为 to
// 返回 false 表示已被其他调用方迁移（结算竞态的败者按无操作处理）
func CASStatus(ctx context.Context, exec sqlx.ExtContext, roomID int64, from, to int8) (bool, error) {
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE rooms SET status = ?, updated_at = ? WHERE room_id = ? AND status = ?"
	res, err := exec.ExecContext(ctx, sqlStr, to, now, roomID, from)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// RoomPatch 类型化的部分更新请求
// 只更新显式赋值的字段，列名固定在本文件内，绝不拼接外部传入的字段名
type RoomPatch struct {
	Player2ID   *int64
	InvoiceID2  *string
	Player1Paid *int8
	Player2Paid *int8
	Status      *int8
	Player1Dice *int8
	Player2Dice *int8
	Result      *int8
	ResultStr   *string
	WinnerID    *int64
	PrizeAmount *float64
	FinishedAt  *int64
}

// build 生成 SET 子句与参数；空补丁报错
func (p *RoomPatch) build() (string, []interface{}, error) {
	var cols []string
	var args []interface{}

	add := func(col string, v interface{}) {
		cols = append(cols, col+" = ?")
		args = append(args, v)
	}

	if p.Player2ID != nil {
		add("player2_id", *p.Player2ID)
	}
	if p.InvoiceID2 != nil {
		add("invoice_id2", *p.InvoiceID2)
	}
	if p.Player1Paid != nil {
		add("player1_paid", *p.Player1Paid)
	}
	if p.Player2Paid != nil {
		add("player2_paid", *p.Player2Paid)
	}
	if p.Status != nil {
		add("status", *p.Status)
	}
	if p.Player1Dice != nil {
		add("player1_dice", *p.Player1Dice)
	}
	if p.Player2Dice != nil {
		add("player2_dice", *p.Player2Dice)
	}
	if p.Result != nil {
		add("result", *p.Result)
	}
	if p.ResultStr != nil {
		add("result_str", *p.ResultStr)
	}
	if p.WinnerID != nil {
		add("winner_id", *p.WinnerID)
	}
	if p.PrizeAmount != nil {
		add("prize_amount", *p.PrizeAmount)
	}
	if p.FinishedAt != nil {
		add("finished_at", *p.FinishedAt)
	}

	if len(cols) == 0 {
		return "", nil, errors.New("empty room patch")
	}
	return strings.Join(cols, ", "), args, nil
}

// ApplyRoomPatch 执行部分更新，自动附带 updated_at
func ApplyRoomPatch(ctx context.Context, exec sqlx.ExtContext, roomID int64, p *RoomPatch) error {
	set, args, err := p.build()
	if err != nil {
		return err
	}
	now := time.Now().UnixMilli()
	sqlStr := "UPDATE rooms SET " + set + ", updated_at = ? WHERE room_id = ?"
	args = append(args, now, roomID)

	_, err = exec.ExecContext(ctx, sqlStr, args...)
	return err
}

// ListRoomIDsByStatus 按状态列出房间ID（服务重启后恢复轮询用）
func ListRoomIDsByStatus(ctx context.Context, exec sqlx.ExtContext, status int8, limit int) ([]int64, error) {
	sqlStr := "SELECT room_id FROM rooms WHERE status = ? ORDER BY room_id ASC LIMIT ?"
	var ids []int64
	if err := sqlx.SelectContext(ctx, exec, &ids, sqlStr, status, limit); err != nil {
		return nil, err
	}
	return ids, nil
}

// RoomListItem 大厅列表的轻量投影
type RoomListItem struct {
	RoomID    int64   `db:"room_id"`
	RoomCode  string  `db:"room_code"`
	CreatorID int64   `db:"creator_id"`
	BetAmount float64 `db:"bet_amount"`
	Currency  string  `db:"currency"`
	CreatedAt int64   `db:"created_at"`
}

// ListOpenRooms 列出可加入的房间：等待付款且玩家2未入座
func ListOpenRooms(ctx context.Context, exec sqlx.ExtContext, limit int) ([]RoomListItem, error) {
	sqlStr := `SELECT room_id, room_code, creator_id, bet_amount, currency, created_at
		FROM rooms WHERE status = 1 AND player2_id = 0 ORDER BY room_id DESC LIMIT ?`
	var list []RoomListItem
	if err := sqlx.SelectContext(ctx, exec, &list, sqlStr, limit); err != nil {
		return nil, err
	}
	return list, nil
}

// IsNoRows sql.ErrNoRows 判定的便捷封装
func IsNoRows(err error) bool {
	return errors.Is(err, sql.ErrNoRows)
}
