package poller

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"dice-server/common/logger"
	"dice-server/internal/gateway"
	"dice-server/internal/model"
	"dice-server/internal/state"

	decimal "github.com/shopspring/decimal"
)

func TestMain(m *testing.M) {
	logger.InitLogger()
	os.Exit(m.Run())
}

type fakeStore struct {
	mu   sync.Mutex
	room model.Room
}

func (f *fakeStore) GetRoom(ctx context.Context, roomID int64) (*model.Room, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	r := f.room
	return &r, nil
}

func (f *fakeStore) SetPlayerPaid(ctx context.Context, roomID int64, seat int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if seat == 1 {
		f.room.Player1Paid = 1
	} else {
		f.room.Player2Paid = 1
	}
	return nil
}

func (f *fakeStore) ListAwaitingRooms(ctx context.Context, limit int) ([]int64, error) {
	return []int64{f.room.ID}, nil
}

type fakeGateway struct {
	mu       sync.Mutex
	statuses map[string]string
	queries  int
}

func (f *fakeGateway) CreateInvoice(ctx context.Context, amount decimal.Decimal, description string) (*gateway.Invoice, error) {
	return &gateway.Invoice{InvoiceID: "inv-new", PayURL: "https://pay.test/inv-new", Status: gateway.InvoiceStatusPending}, nil
}

func (f *fakeGateway) GetInvoiceStatus(ctx context.Context, invoiceID string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queries++
	if s, ok := f.statuses[invoiceID]; ok {
		return s, nil
	}
	return gateway.InvoiceStatusPending, nil
}

func (f *fakeGateway) Transfer(ctx context.Context, userID int64, amount decimal.Decimal, spendID, comment string) error {
	return nil
}

func (f *fakeGateway) queryCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.queries
}

type fakeSettler struct{ calls int32 }

func (f *fakeSettler) SettleRoom(ctx context.Context, roomID int64, traceID string) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

type fakeTimeout struct{ calls int32 }

func (f *fakeTimeout) HandleTimeout(ctx context.Context, roomID int64) error {
	atomic.AddInt32(&f.calls, 1)
	return nil
}

func awaitingRoom() model.Room {
	return model.Room{
		ID:        7,
		RoomCode:  "1000000009",
		CreatorID: 100,
		Player1ID: 100,
		BetAmount: 10,
		Currency:  "USDT",
		Status:    state.CodeAwaitingPayment,
		InvoiceID: "inv-1",
	}
}

// waitFor 轮询断言条件，避免用固定 sleep 拍时序
func waitFor(t *testing.T, timeout time.Duration, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("condition not met within %s", timeout)
}

func TestPollerTimeoutAfterMaxAttempts(t *testing.T) {
	store := &fakeStore{room: awaitingRoom()}
	gw := &fakeGateway{statuses: map[string]string{}}
	settler := &fakeSettler{}
	timeouts := &fakeTimeout{}

	m := NewManager(store, gw, settler, timeouts, time.Millisecond, 5)
	defer m.Stop()

	if !m.StartPoller(7) {
		t.Fatal("StartPoller returned false for fresh room")
	}

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&timeouts.calls) == 1 })

	if got := gw.queryCount(); got != 5 {
		t.Fatalf("invoice status queries = %d, want exactly maxAttempts (5)", got)
	}
	if atomic.LoadInt32(&settler.calls) != 0 {
		t.Fatal("settlement must not trigger when payment is never confirmed")
	}
}

func TestPollerSettlesWhenBothPaid(t *testing.T) {
	room := awaitingRoom()
	room.Player2ID = 200
	room.InvoiceID2 = "inv-2"
	store := &fakeStore{room: room}
	gw := &fakeGateway{statuses: map[string]string{
		"inv-1": gateway.InvoiceStatusPaid,
		"inv-2": gateway.InvoiceStatusPaid,
	}}
	settler := &fakeSettler{}
	timeouts := &fakeTimeout{}

	m := NewManager(store, gw, settler, timeouts, time.Millisecond, 30)
	defer m.Stop()
	m.StartPoller(7)

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&settler.calls) == 1 })

	store.mu.Lock()
	p1, p2 := store.room.Player1Paid, store.room.Player2Paid
	store.mu.Unlock()
	if p1 != 1 || p2 != 1 {
		t.Fatalf("paid flags = (%d,%d), want (1,1)", p1, p2)
	}
	if atomic.LoadInt32(&timeouts.calls) != 0 {
		t.Fatal("timeout handler must not fire after successful settlement")
	}
}

func TestPollerSoloRoomSettlesOnFirstPayment(t *testing.T) {
	store := &fakeStore{room: awaitingRoom()}
	gw := &fakeGateway{statuses: map[string]string{"inv-1": gateway.InvoiceStatusPaid}}
	settler := &fakeSettler{}
	timeouts := &fakeTimeout{}

	m := NewManager(store, gw, settler, timeouts, time.Millisecond, 30)
	defer m.Stop()
	m.StartPoller(7)

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&settler.calls) == 1 })
}

func TestPollerWaitsForJoinedButUnpaidSecondPlayer(t *testing.T) {
	room := awaitingRoom()
	room.Player2ID = 200
	room.InvoiceID2 = "inv-2"
	store := &fakeStore{room: room}
	// 玩家1已付，玩家2已入座但始终未付：不得结算，走超时
	gw := &fakeGateway{statuses: map[string]string{"inv-1": gateway.InvoiceStatusPaid}}
	settler := &fakeSettler{}
	timeouts := &fakeTimeout{}

	m := NewManager(store, gw, settler, timeouts, time.Millisecond, 4)
	defer m.Stop()
	m.StartPoller(7)

	waitFor(t, 2*time.Second, func() bool { return atomic.LoadInt32(&timeouts.calls) == 1 })

	if atomic.LoadInt32(&settler.calls) != 0 {
		t.Fatal("settlement must not trigger while player2 invoice is unpaid")
	}
}

func TestPollerAbortsOnTerminalRoom(t *testing.T) {
	room := awaitingRoom()
	room.Status = state.CodeSettled
	store := &fakeStore{room: room}
	gw := &fakeGateway{statuses: map[string]string{}}
	settler := &fakeSettler{}
	timeouts := &fakeTimeout{}

	m := NewManager(store, gw, settler, timeouts, time.Millisecond, 30)
	m.StartPoller(7)
	m.Stop()

	if atomic.LoadInt32(&settler.calls) != 0 || atomic.LoadInt32(&timeouts.calls) != 0 {
		t.Fatal("terminal room must not be settled or expired again")
	}
	if gw.queryCount() != 0 {
		t.Fatal("terminal room must not hit the gateway")
	}
}

func TestStartPollerIdempotent(t *testing.T) {
	store := &fakeStore{room: awaitingRoom()}
	gw := &fakeGateway{statuses: map[string]string{}}
	m := NewManager(store, gw, &fakeSettler{}, &fakeTimeout{}, time.Minute, 30)
	defer m.Stop()

	if !m.StartPoller(7) {
		t.Fatal("first StartPoller should succeed")
	}
	if m.StartPoller(7) {
		t.Fatal("second StartPoller for the same room must be a no-op")
	}
}

func TestResumeStartsAwaitingRooms(t *testing.T) {
	store := &fakeStore{room: awaitingRoom()}
	gw := &fakeGateway{statuses: map[string]string{}}
	m := NewManager(store, gw, &fakeSettler{}, &fakeTimeout{}, time.Minute, 30)
	defer m.Stop()

	if err := m.Resume(context.Background()); err != nil {
		t.Fatalf("Resume: %v", err)
	}
	if m.StartPoller(7) {
		t.Fatal("room resumed by Resume should already have a running poller")
	}
}
