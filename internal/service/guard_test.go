package service

import (
	"context"
	"errors"
	"os"
	"reflect"
	"sync/atomic"
	"testing"

	"dice-server/common/logger"
	"dice-server/internal/gateway"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	decimal "github.com/shopspring/decimal"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}

// stubGateway 统计账单创建次数，守卫类失败路径不允许触达网关
type stubGateway struct {
	createCalls int32
}

func (g *stubGateway) CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (*gateway.Invoice, error) {
	atomic.AddInt32(&g.createCalls, 1)
	return &gateway.Invoice{InvoiceID: "inv-1", PayURL: "https://pay.test/inv-1", Status: gateway.InvoiceStatusPending}, nil
}

func (g *stubGateway) GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	return gateway.InvoiceStatusPending, nil
}

func (g *stubGateway) Transfer(ctx context.Context, userID int64, amount decimal.Decimal, spendID, comment string) error {
	return nil
}

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	return sqlx.NewDb(db, "mysql"), mock
}

var userCols = []string{"user_id", "username", "display_name", "balance",
	"total_wins", "total_losses", "total_staked", "is_banned", "created_at", "updated_at"}

func userRow(userID int64, banned int) *sqlmock.Rows {
	return sqlmock.NewRows(userCols).
		AddRow(userID, "u", "User", 25.0, 1, 2, 30.0, banned, 1700000000000, 1700000000000)
}

var roomCols = []string{"room_id", "room_code", "creator_id", "player1_id", "player2_id",
	"bet_amount", "currency", "status", "player1_paid", "player2_paid",
	"invoice_id", "invoice_id2", "player1_dice", "player2_dice", "result", "result_str",
	"winner_id", "prize_amount", "trace_id", "created_at", "updated_at", "finished_at"}

var slogCols = []string{"id", "room_id", "player1_dice", "player2_dice", "result",
	"winner_id", "pot_amount", "fee_amount", "prize_amount", "operator", "trace_id", "created_at"}

// 已结算房间的重复结算必须零副作用返回既有结果。
// mock 只脚本化两条 SELECT，任何 INSERT/UPDATE 都会让事务中断并使断言失败
func TestSettleSettledRoomReturnsStoredResult(t *testing.T) {
	settleOnce := func() *SettleOutput {
		db, mock := newMockDB(t)
		defer db.Close()
		svc := NewSettleService(db)

		mock.ExpectBegin()
		mock.ExpectQuery("FROM rooms WHERE room_id").WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(roomCols).
				AddRow(42, "1000000009", 11, 11, 22,
					10.0, "USDT", 2, 1, 1,
					"inv-a", "inv-b", 5, 3, 1, "player1",
					11, 19.0, "trace-1", 1700000000000, 1700000000000, 1700000001000))
		mock.ExpectQuery("FROM settlement_log WHERE room_id").WithArgs(int64(42)).
			WillReturnRows(sqlmock.NewRows(slogCols).
				AddRow(1, 42, 5, 3, "player1",
					11, 20.0, 1.0, 19.0, "poller", "trace-1", 1700000001000))
		mock.ExpectRollback()

		out, err := svc.Settle(context.Background(), SettleInput{RoomID: 42, Operator: "poller", TraceID: "trace-2"})
		if err != nil {
			t.Fatalf("settle settled room: %v", err)
		}
		if !out.Idempotent {
			t.Fatal("expected idempotent replay")
		}
		if err := mock.ExpectationsWereMet(); err != nil {
			t.Fatalf("unexpected database activity: %v", err)
		}
		return out
	}

	first := settleOnce()
	second := settleOnce()
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("repeat settle changed result: %+v vs %+v", first, second)
	}
	if first.Result != "player1" || first.WinnerID != 11 || first.PrizeAmount != 19.0 {
		t.Fatalf("replayed result does not match stored log: %+v", first)
	}
}

// CAS 竞态败方放弃本事务后，必须经由注入的连接回读对方已提交的结果
func TestSettleCASRaceLoserReplaysCommittedResult(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	svc := NewSettleService(db)
	svc.roll = func() int { return 4 }

	mock.ExpectBegin()
	mock.ExpectQuery("FROM rooms WHERE room_id").WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(roomCols).
			AddRow(42, "1000000009", 11, 11, 22,
				10.0, "USDT", 1, 1, 1,
				"inv-a", "inv-b", 0, 0, 0, "",
				0, 0.0, "trace-1", 1700000000000, 1700000000000, 0))
	// 对方抢先迁移了状态，条件更新零行生效
	mock.ExpectExec("UPDATE rooms SET status").WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectRollback()
	mock.ExpectQuery("FROM rooms WHERE room_id").WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(roomCols).
			AddRow(42, "1000000009", 11, 11, 22,
				10.0, "USDT", 2, 1, 1,
				"inv-a", "inv-b", 5, 3, 1, "player1",
				11, 19.0, "trace-1", 1700000000000, 1700000000000, 1700000001000))
	mock.ExpectQuery("FROM settlement_log WHERE room_id").WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(slogCols).
			AddRow(1, 42, 5, 3, "player1",
				11, 20.0, 1.0, 19.0, "poller", "trace-1", 1700000001000))

	out, err := svc.Settle(context.Background(), SettleInput{RoomID: 42, Operator: "poller", TraceID: "trace-6"})
	if err != nil {
		t.Fatalf("race loser settle: %v", err)
	}
	if !out.Idempotent || out.Result != "player1" || out.WinnerID != 11 {
		t.Fatalf("expected committed result replay, got %+v", out)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database activity: %v", err)
	}
}

// 封禁用户建房必须在开账单之前被拒绝，且不产生任何落库动作
func TestCreateRoomBannedUserRejected(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	gw := &stubGateway{}
	svc := NewRoomService(db, gw)

	mock.ExpectQuery("FROM users WHERE user_id").WithArgs(int64(7)).
		WillReturnRows(userRow(7, 1))

	_, err := svc.CreateRoom(context.Background(), CreateRoomInput{
		UserID: 7, BetAmount: "10", IdempotencyKey: "idem-1", TraceID: "trace-3",
	})
	if !errors.Is(err, ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
	if n := atomic.LoadInt32(&gw.createCalls); n != 0 {
		t.Fatalf("invoice created for banned user: %d calls", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database activity: %v", err)
	}
}

// 封禁用户加入房间同样被拒绝，房间甚至不会被读出
func TestJoinRoomBannedUserRejected(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	gw := &stubGateway{}
	svc := NewRoomService(db, gw)

	mock.ExpectQuery("FROM users WHERE user_id").WithArgs(int64(7)).
		WillReturnRows(userRow(7, 1))

	_, err := svc.JoinRoom(context.Background(), 7, 42, "trace-4")
	if !errors.Is(err, ErrUserBanned) {
		t.Fatalf("expected ErrUserBanned, got %v", err)
	}
	if n := atomic.LoadInt32(&gw.createCalls); n != 0 {
		t.Fatalf("invoice created for banned user: %d calls", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database activity: %v", err)
	}
}

// 创建者不能加入自己的房间：校验发生在第二张账单创建与抢座之前
func TestJoinRoomOwnRoomRejected(t *testing.T) {
	db, mock := newMockDB(t)
	defer db.Close()
	gw := &stubGateway{}
	svc := NewRoomService(db, gw)

	mock.ExpectQuery("FROM users WHERE user_id").WithArgs(int64(7)).
		WillReturnRows(userRow(7, 0))
	mock.ExpectQuery("FROM rooms WHERE room_id").WithArgs(int64(42)).
		WillReturnRows(sqlmock.NewRows(roomCols).
			AddRow(42, "1000000009", 7, 7, 0,
				10.0, "USDT", 1, 0, 0,
				"inv-a", "", 0, 0, 0, "",
				0, 0.0, "trace-1", 1700000000000, 1700000000000, 0))

	_, err := svc.JoinRoom(context.Background(), 7, 42, "trace-5")
	if !errors.Is(err, ErrSelfJoinForbidden) {
		t.Fatalf("expected ErrSelfJoinForbidden, got %v", err)
	}
	if n := atomic.LoadInt32(&gw.createCalls); n != 0 {
		t.Fatalf("invoice created for own-room join: %d calls", n)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unexpected database activity: %v", err)
	}
}
