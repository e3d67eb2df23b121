package model

import (
	"context"
	"strings"
	"time"

	"dice-server/common/constant"

	"github.com/jmoiron/sqlx"
)

// Transaction 对应 transactions 表（追加式账本）
// 只允许插入，永不修改或删除；余额必须等于该用户全部账本金额之和
// biz_type: 1=deposit 充值 2=withdraw 提现 3=win 赢奖 4=project_fee 平台抽成
// 同时冗余 biz_type_str 便于查询
// project_fee 记录统一记到哨兵账户 user_id=0
type Transaction struct {
	ID         int64   `db:"id"`
	UserID     int64   `db:"user_id"`
	BizType    int     `db:"biz_type"`
	BizTypeStr string  `db:"biz_type_str"`
	Amount     float64 `db:"amount"` // 有符号金额，正=入账 负=出账
	Currency   string  `db:"currency"`
	RoomID     int64   `db:"room_id"` // 0=与对局无关
	Remark     string  `db:"remark"`
	TraceID    string  `db:"trace_id"`
	CreatedAt  int64   `db:"created_at"`
}

// Insert 新增一条账本记录（biz_type 数值码与字符串双写）
func (t *Transaction) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	code := t.BizType
	str := t.BizTypeStr
	if code == 0 && str != "" {
		code = constant.BalanceChangeTypeCode(strings.ToLower(str))
	}
	if str == "" && code != 0 {
		str = constant.BalanceChangeTypeDesc[code]
	}
	// 使用原生 SQL 以避免 goqu 在某些 MySQL 版本上的兼容性问题
	sqlStr := "INSERT INTO transactions (user_id, biz_type, biz_type_str, amount, currency, room_id, remark, trace_id, created_at) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)"
	args := []interface{}{t.UserID, code, str, t.Amount, t.Currency, t.RoomID, t.Remark, t.TraceID, now}

	res, err := exec.ExecContext(ctx, sqlStr, args...)
	if err != nil {
		return err
	}
	id, _ := res.LastInsertId()
	t.ID = id
	return nil
}

// CountByRoom 统计某房间产生的账本记录数（幂等校验/测试用）
func CountByRoom(ctx context.Context, exec sqlx.ExtContext, roomID int64) (int, error) {
	sqlStr := "SELECT COUNT(1) FROM transactions WHERE room_id = ?"
	var cnt int
	if err := sqlx.GetContext(ctx, exec, &cnt, sqlStr, roomID); err != nil {
		return 0, err
	}
	return cnt, nil
}
