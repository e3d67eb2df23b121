package service

import (
	"context"
	"fmt"
	"time"

	"dice-server/common"
	"dice-server/common/constant"
	"dice-server/internal/gateway"
	"dice-server/internal/model"
	"dice-server/internal/state"

	g "github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	decimal "github.com/shopspring/decimal"
)

// 后台运营：人工入账、提现、封禁、平台统计

type AdminService struct {
	db *sqlx.DB
	gw gateway.Client
}

func NewAdminService(db *sqlx.DB, gw gateway.Client) *AdminService {
	return &AdminService{db: db, gw: gw}
}

// parseAdminAmount 解析后台操作金额（必须为正）
func parseAdminAmount(raw string) (decimal.Decimal, error) {
	amt, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("%w: invalid amount format", ErrBadRequest)
	}
	if amt.LessThanOrEqual(decimal.Zero) {
		return decimal.Zero, fmt.Errorf("%w: amount must be positive", ErrBadRequest)
	}
	return amt.Round(2), nil
}

// Deposit 人工入账：账本与余额在同一事务内落地
func (s *AdminService) Deposit(ctx context.Context, userID int64, amount, remark, traceID string) error {
	amt, err := parseAdminAmount(amount)
	if err != nil {
		return err
	}

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

	if _, err := model.GetUserForUpdate(txCtx, tx, userID); err != nil {
		if model.IsNoRows(err) {
			return ErrUserNotFound
		}
		return err
	}

	if remark == "" {
		remark = "manual deposit"
	}
	ledger := &model.Transaction{
		UserID:   userID,
		BizType:  constant.BizTypeDeposit,
		Amount:   amt.InexactFloat64(),
		Currency: currency(),
		Remark:   remark,
		TraceID:  traceID,
	}
	if err := ledger.Insert(txCtx, tx); err != nil {
		return err
	}
	if err := model.ApplyBalanceDelta(txCtx, tx, userID, amt.InexactFloat64()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	fmt.Printf("[Admin]  人工入账完成: user_id=%d, amount=%s, trace_id=%s\n",
		userID, amt.String(), traceID)
	return nil
}

// Withdraw 提现：先在本地扣账，再通过网关转账。
// 网关转账失败时执行补偿入账，把扣掉的余额原路退回
func (s *AdminService) Withdraw(ctx context.Context, userID int64, amount, traceID string) error {
	amt, err := parseAdminAmount(amount)
	if err != nil {
		return err
	}

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

	user, err := model.GetUserForUpdate(txCtx, tx, userID)
	if err != nil {
		if model.IsNoRows(err) {
			return ErrUserNotFound
		}
		return err
	}
	if decimal.NewFromFloat(user.Balance).Cmp(amt) < 0 {
		return ErrInsufficient
	}

	ledger := &model.Transaction{
		UserID:   userID,
		BizType:  constant.BizTypeWithdraw,
		Amount:   amt.Neg().InexactFloat64(),
		Currency: currency(),
		Remark:   "withdraw",
		TraceID:  traceID,
	}
	if err := ledger.Insert(txCtx, tx); err != nil {
		return err
	}
	if err := model.ApplyBalanceDelta(txCtx, tx, userID, amt.Neg().InexactFloat64()); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	// 本地扣账已提交，向网关发起转账
	spendID := uuid.New().String()
	if err := s.gw.Transfer(ctx, userID, amt, spendID, "withdraw"); err != nil {
		fmt.Printf("[Admin]  网关转账失败，执行补偿入账: user_id=%d, amount=%s, error=%v, trace_id=%s\n",
			userID, amt.String(), err, traceID)
		if cErr := s.compensateWithdraw(ctx, userID, amt, traceID); cErr != nil {
			// 补偿失败必须人工介入，余额与账本此刻少记了一笔
			fmt.Printf("[Admin]  补偿入账失败，需人工处理: user_id=%d, amount=%s, error=%v, trace_id=%s\n",
				userID, amt.String(), cErr, traceID)
			return fmt.Errorf("withdraw transfer failed and compensation failed: %v (transfer: %w)", cErr, err)
		}
		return fmt.Errorf("%w: %v", ErrPaymentInit, err)
	}

	fmt.Printf("[Admin]  提现完成: user_id=%d, amount=%s, spend_id=%s, trace_id=%s\n",
		userID, amt.String(), spendID, traceID)
	return nil
}

// compensateWithdraw 提现补偿：退回扣掉的余额并记一笔冲正账
func (s *AdminService) compensateWithdraw(ctx context.Context, userID int64, amt decimal.Decimal, traceID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()

	ledger := &model.Transaction{
		UserID:   userID,
		BizType:  constant.BizTypeDeposit,
		Amount:   amt.InexactFloat64(),
		Currency: currency(),
		Remark:   "withdraw reversal",
		TraceID:  traceID,
	}
	if err := ledger.Insert(ctx, tx); err != nil {
		return err
	}
	if err := model.ApplyBalanceDelta(ctx, tx, userID, amt.InexactFloat64()); err != nil {
		return err
	}
	return tx.Commit()
}

// SetBanned 封禁/解封用户
func (s *AdminService) SetBanned(ctx context.Context, userID int64, banned bool) error {
	flag := int8(constant.UserBanNone)
	if banned {
		flag = constant.UserBanned
	}
	if err := model.SetBanned(ctx, s.db, userID, flag); err != nil {
		if model.IsNoRows(err) {
			return ErrUserNotFound
		}
		return err
	}
	return nil
}

// CloseRoom 后台强制关闭等待付款的房间
func (s *AdminService) CloseRoom(ctx context.Context, rooms *RoomService, roomID int64, traceID string) error {
	return rooms.ExpireRoom(ctx, roomID, "admin", traceID)
}

// PlatformStats 平台运营统计
type PlatformStats struct {
	TotalUsers    int     `json:"total_users"`
	TotalRooms    int     `json:"total_rooms"`
	SettledRooms  int     `json:"settled_rooms"`
	AwaitingRooms int     `json:"awaiting_rooms"`
	VolumeTotal   float64 `json:"volume_total"`   // 累计彩池流水
	DepositTotal  float64 `json:"deposit_total"`  // 累计入账
	WithdrawTotal float64 `json:"withdraw_total"` // 累计提现（正数）
	FeeToday      float64 `json:"fee_today"`
	FeeTotal      float64 `json:"fee_total"`
}

// GetPlatformStats 聚合平台维度的统计数据
func (s *AdminService) GetPlatformStats(ctx context.Context) (*PlatformStats, error) {
	totalUsers, err := common.Count(s.db, "users")
	if err != nil {
		return nil, err
	}
	totalRooms, err := common.Count(s.db, "rooms")
	if err != nil {
		return nil, err
	}
	settledRooms, err := common.Count(s.db, "rooms", g.C("status").Eq(state.CodeSettled))
	if err != nil {
		return nil, err
	}
	awaitingRooms, err := common.Count(s.db, "rooms", g.C("status").Eq(state.CodeAwaitingPayment))
	if err != nil {
		return nil, err
	}
	volumeTotal, err := common.SumInfo(s.db, "settlement_log", "pot_amount")
	if err != nil {
		return nil, err
	}
	depositTotal, err := common.SumInfo(s.db, "transactions", "amount",
		g.C("biz_type").Eq(constant.BizTypeDeposit))
	if err != nil {
		return nil, err
	}
	// 提现账本按负数入账，对外报告取绝对值
	withdrawSum, err := common.SumInfo(s.db, "transactions", "amount",
		g.C("biz_type").Eq(constant.BizTypeWithdraw))
	if err != nil {
		return nil, err
	}
	feeTotal, err := common.SumInfo(s.db, "transactions", "amount",
		g.C("biz_type").Eq(constant.BizTypeProjectFee))
	if err != nil {
		return nil, err
	}
	dayStart, dayEnd := common.GetTodayRangeMillis(time.Now())
	feeToday, err := common.SumInfo(s.db, "transactions", "amount",
		g.C("biz_type").Eq(constant.BizTypeProjectFee),
		g.C("created_at").Between(g.Range(dayStart, dayEnd)))
	if err != nil {
		return nil, err
	}

	return &PlatformStats{
		TotalUsers:    totalUsers,
		TotalRooms:    totalRooms,
		SettledRooms:  settledRooms,
		AwaitingRooms: awaitingRooms,
		VolumeTotal:   volumeTotal,
		DepositTotal:  depositTotal,
		WithdrawTotal: -withdrawSum,
		FeeToday:      feeToday,
		FeeTotal:      feeTotal,
	}, nil
}
