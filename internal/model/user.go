package model

import (
	"context"
	"database/sql"
	"time"

	"dice-server/common/logger"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"
)

// Users 用户表
// user_id 为稳定的外部用户标识（非自增，由接入方分配，例如 IM 用户ID）
// is_banned=1 的用户禁止开房与加入对局
type Users struct {
	UserID      int64   `db:"user_id"`      // 外部用户ID（主键）
	Username    string  `db:"username"`     // 用户名（可选）
	DisplayName string  `db:"display_name"` // 展示名
	Balance     float64 `db:"balance"`      // 余额
	TotalWins   int     `db:"total_wins"`   // 胜场数
	TotalLosses int     `db:"total_losses"` // 负场数
	TotalStaked float64 `db:"total_staked"` // 累计参与金额
	IsBanned    int8    `db:"is_banned"`    // 封禁标记: 0/1
	CreatedAt   int64   `db:"created_at"`   // 创建时间（13位毫秒时间戳）
	UpdatedAt   int64   `db:"updated_at"`   // 更新时间
}

const userColumns = `user_id, username, display_name, balance, total_wins, total_losses, total_staked,
	is_banned, created_at, updated_at`

// GetUser 按用户ID查询用户
func GetUser(ctx context.Context, exec sqlx.ExtContext, userID int64) (*Users, error) {
	query := "SELECT " + userColumns + " FROM users WHERE user_id = ? LIMIT 1"

	var user Users
	err := sqlx.GetContext(ctx, exec, &user, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.Error("get user failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// GetUserForUpdate 按用户ID加锁查询，必须在事务中调用
func GetUserForUpdate(ctx context.Context, exec sqlx.ExtContext, userID int64) (*Users, error) {
	query := "SELECT " + userColumns + " FROM users WHERE user_id = ? FOR UPDATE"

	var user Users
	err := sqlx.GetContext(ctx, exec, &user, query, userID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, err
		}
		logger.Error("get user for update failed",
			zap.Int64("user_id", userID),
			zap.Error(err))
		return nil, err
	}

	return &user, nil
}

// Insert 插入用户（注册）
func (u *Users) Insert(ctx context.Context, exec sqlx.ExtContext) error {
	now := time.Now().UnixMilli()
	u.CreatedAt = now
	u.UpdatedAt = now

	query := `INSERT INTO users (user_id, username, display_name, balance, total_wins, total_losses, total_staked, is_banned, created_at, updated_at)
	          VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`

	_, err := exec.ExecContext(ctx, query,
		u.UserID, u.Username, u.DisplayName, u.Balance, u.TotalWins, u.TotalLosses, u.TotalStaked, u.IsBanned, u.CreatedAt, u.UpdatedAt)
	if err != nil {
		logger.Error("insert user failed",
			zap.Int64("user_id", u.UserID),
			zap.Error(err))
		return err
	}

	logger.Info("user created",
		zap.Int64("user_id", u.UserID),
		zap.String("username", u.Username))

	return nil
}

// ApplyBalanceDelta 以原子自增方式调整余额
// 不做应用层读改写，并发结算落在同一用户时也不会丢更新
func ApplyBalanceDelta(ctx context.Context, exec sqlx.ExtContext, userID int64, delta float64) error {
	now := time.Now().UnixMilli()
	query := `UPDATE users SET balance = balance + ?, updated_at = ? WHERE user_id = ?`

	_, err := exec.ExecContext(ctx, query, delta, now, userID)
	if err != nil {
		logger.Error("apply balance delta failed",
			zap.Int64("user_id", userID),
			zap.Float64("delta", delta),
			zap.Error(err))
		return err
	}

	return nil
}

// ApplyWinStats 赢家统计：胜场+1，累计参与金额加上整个彩池
func ApplyWinStats(ctx context.Context, exec sqlx.ExtContext, userID int64, staked float64) error {
	now := time.Now().UnixMilli()
	query := `UPDATE users SET total_wins = total_wins + 1, total_staked = total_staked + ?, updated_at = ? WHERE user_id = ?`
	_, err := exec.ExecContext(ctx, query, staked, now, userID)
	return err
}

// ApplyLossStats 输家统计：负场+1，累计参与金额加上自己的赌注
func ApplyLossStats(ctx context.Context, exec sqlx.ExtContext, userID int64, staked float64) error {
	now := time.Now().UnixMilli()
	query := `UPDATE users SET total_losses = total_losses + 1, total_staked = total_staked + ?, updated_at = ? WHERE user_id = ?`
	_, err := exec.ExecContext(ctx, query, staked, now, userID)
	return err
}

// SetBanned 设置封禁标记
func SetBanned(ctx context.Context, exec sqlx.ExtContext, userID int64, banned int8) error {
	now := time.Now().UnixMilli()
	query := `UPDATE users SET is_banned = ?, updated_at = ? WHERE user_id = ?`

	res, err := exec.ExecContext(ctx, query, banned, now, userID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return sql.ErrNoRows
	}
	return nil
}
